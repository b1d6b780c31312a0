package repository

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

func createTxn(t *testing.T, repo *TransactionRepository, barberID, shopID int64, amount, status string) *models.CommissionTransaction {
	t.Helper()
	txn := &models.CommissionTransaction{
		BarberID:      barberID,
		ShopID:        shopID,
		ArrangementID: 1,
		Kind:          models.TransactionKindService,
		GrossAmount:   dec("100"),
		Rate:          dec("0.4"),
		Amount:        dec(amount),
		Status:        status,
		OccurredAt:    time.Now(),
	}
	require.NoError(t, repo.Create(context.Background(), txn))
	return txn
}

func TestTransactionRepository_List(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	createTxn(t, repo, 1, 10, "40", models.TransactionStatusPending)
	createTxn(t, repo, 1, 10, "25.5", models.TransactionStatusPaid)
	cancelled := createTxn(t, repo, 1, 10, "10", models.TransactionStatusPending)
	createTxn(t, repo, 2, 10, "7", models.TransactionStatusPending)
	createTxn(t, repo, 1, 11, "3", models.TransactionStatusPending)

	require.NoError(t, repo.Cancel(ctx, cancelled.ID))
	assert.ErrorIs(t, repo.Cancel(ctx, cancelled.ID), gorm.ErrRecordNotFound)

	t.Run("待打款流水", func(t *testing.T) {
		pending, err := repo.ListPending(ctx, 1, 10)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		assert.True(t, pending[0].Amount.Equal(dec("40")))
	})

	t.Run("可结算流水不含已取消", func(t *testing.T) {
		txns, err := repo.ListSettleable(ctx, 1, 10)
		require.NoError(t, err)
		assert.Len(t, txns, 2)
	})

	t.Run("去重组合", func(t *testing.T) {
		pairs, err := repo.ListPairs(ctx)
		require.NoError(t, err)
		assert.Equal(t, []BarberShopPair{{1, 10}, {2, 10}, {1, 11}}, pairs)
	})

	t.Run("分页", func(t *testing.T) {
		list, total, err := repo.ListByBarber(ctx, 1, 10, 0, 2)
		require.NoError(t, err)
		assert.Equal(t, int64(3), total)
		assert.Len(t, list, 2)
	})
}

func TestTransactionRepository_Reference(t *testing.T) {
	db := setupTestDB(t)
	repo := NewTransactionRepository(db)
	ctx := context.Background()

	ref := "sale:abc"
	txn := &models.CommissionTransaction{
		BarberID: 1, ShopID: 1, ArrangementID: 1, Kind: models.TransactionKindProduct,
		Reference: &ref, Amount: dec("1"), Status: models.TransactionStatusPending, OccurredAt: time.Now(),
	}
	require.NoError(t, repo.Create(ctx, txn))

	got, err := repo.GetByReference(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, txn.ID, got.ID)

	_, err = repo.GetByReference(ctx, "missing")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
}
