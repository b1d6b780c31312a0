package repository

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
)

func TestShopRepository_Members(t *testing.T) {
	db := setupTestDB(t)
	repo := NewShopRepository(db)
	ctx := context.Background()

	shop := &models.Shop{OwnerID: 1, Name: "Fade Factory", Status: models.ShopStatusActive}
	require.NoError(t, repo.Create(ctx, shop))

	require.NoError(t, repo.AddBarber(ctx, shop.ID, 3))
	require.NoError(t, repo.AddBarber(ctx, shop.ID, 2))
	require.NoError(t, repo.AddBarber(ctx, shop.ID, 2))

	ids, err := repo.ListBarberIDs(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{2, 3}, ids)

	ok, err := repo.IsMember(ctx, shop.ID, 3)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = repo.IsMember(ctx, shop.ID, 4)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := repo.GetByID(ctx, shop.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), got.OwnerID)
}

func TestUserRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	user := &models.User{Name: "Sam", Email: utils.StringPtr("sam@x.io"), Type: models.UserTypeBarber, Status: models.UserStatusActive}
	require.NoError(t, repo.Create(ctx, user))

	require.NoError(t, repo.UpdatePayoutAccount(ctx, user.ID, "cipher"))
	assert.ErrorIs(t, repo.UpdatePayoutAccount(ctx, 999, "cipher"), gorm.ErrRecordNotFound)

	got, err := repo.GetByID(ctx, user.ID)
	require.NoError(t, err)
	require.NotNil(t, got.PayoutAccountEncrypted)
	assert.Equal(t, "cipher", *got.PayoutAccountEncrypted)
}

func TestNotificationRepository(t *testing.T) {
	db := setupTestDB(t)
	repo := NewNotificationRepository(db)
	ctx := context.Background()

	related := models.RelatedTypePayout
	payoutID := int64(5)
	for i := 0; i < 3; i++ {
		require.NoError(t, repo.Create(ctx, &models.Notification{
			UserID: 1, Type: models.NotificationTypePayoutSuccess, Title: "Payout sent", Content: "ok",
			RelatedType: &related, RelatedID: &payoutID,
		}))
	}

	list, total, err := repo.ListByUser(ctx, 1, 0, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	assert.Len(t, list, 2)

	require.NoError(t, repo.MarkAsRead(ctx, list[0].ID, 1))
	assert.ErrorIs(t, repo.MarkAsRead(ctx, list[0].ID, 2), gorm.ErrRecordNotFound)
	unread, err := repo.CountUnread(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, int64(2), unread)
}
