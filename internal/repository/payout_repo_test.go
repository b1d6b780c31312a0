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

func newPayout(barberID, shopID int64, no string) *models.Payout {
	return &models.Payout{
		PayoutNo:    no,
		BarberID:    barberID,
		ShopID:      shopID,
		Amount:      dec("40"),
		Currency:    "usd",
		Status:      models.PayoutStatusPending,
		Trigger:     models.PayoutTriggerSingle,
		RequestedBy: 99,
	}
}

func TestPayoutRepository_CompleteSuccess(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPayoutRepository(db)
	txRepo := NewTransactionRepository(db)
	balRepo := NewBalanceRepository(db)
	ctx := context.Background()

	t1 := createTxn(t, txRepo, 1, 10, "25", models.TransactionStatusPending)
	t2 := createTxn(t, txRepo, 1, 10, "15", models.TransactionStatusPending)
	require.NoError(t, balRepo.Upsert(ctx, &models.CommissionBalance{BarberID: 1, ShopID: 10, PendingAmount: dec("40"), TotalEarned: dec("40")}))

	payout := newPayout(1, 10, "PO001")
	require.NoError(t, repo.Create(ctx, payout))

	at := time.Now()
	require.NoError(t, repo.CompleteSuccess(ctx, payout, []int64{t1.ID, t2.ID}, nil, "tr_123", at))

	got, err := repo.GetByPayoutNo(ctx, "PO001")
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSuccess, got.Status)
	require.NotNil(t, got.TransferRef)
	assert.Equal(t, "tr_123", *got.TransferRef)

	pending, err := txRepo.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)

	b, err := balRepo.Get(ctx, 1, 10)
	require.NoError(t, err)
	assert.True(t, b.PendingAmount.IsZero())
	assert.True(t, b.TotalEarned.Equal(dec("40")), "累计收入不因打款变化")

	t.Run("重复完成被拒绝", func(t *testing.T) {
		err := repo.CompleteSuccess(ctx, payout, nil, nil, "tr_456", at)
		assert.ErrorIs(t, err, gorm.ErrRecordNotFound)
	})
}

func TestPayoutRepository_CompleteSuccessRollback(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPayoutRepository(db)
	txRepo := NewTransactionRepository(db)
	ctx := context.Background()

	t1 := createTxn(t, txRepo, 1, 10, "25", models.TransactionStatusPending)
	t2 := createTxn(t, txRepo, 1, 10, "15", models.TransactionStatusPending)
	require.NoError(t, txRepo.Cancel(ctx, t2.ID))

	payout := newPayout(1, 10, "PO002")
	require.NoError(t, repo.Create(ctx, payout))

	err := repo.CompleteSuccess(ctx, payout, []int64{t1.ID, t2.ID}, nil, "tr_x", time.Now())
	assert.ErrorIs(t, err, ErrTransactionsChanged)

	got, err := repo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusPending, got.Status, "事务回滚后打款单保持处理中")

	pending, err := txRepo.ListPending(ctx, 1, 10)
	require.NoError(t, err)
	assert.Len(t, pending, 1)
}

func TestPayoutRepository_CompleteSuccessCarry(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPayoutRepository(db)
	txRepo := NewTransactionRepository(db)
	balRepo := NewBalanceRepository(db)
	ctx := context.Background()

	t1 := createTxn(t, txRepo, 3, 10, "10.0049", models.TransactionStatusPending)
	require.NoError(t, balRepo.Upsert(ctx, &models.CommissionBalance{BarberID: 3, ShopID: 10, PendingAmount: dec("10.0049")}))

	payout := newPayout(3, 10, "PO010")
	require.NoError(t, repo.Create(ctx, payout))

	has, err := repo.HasPending(ctx, 3, 10)
	require.NoError(t, err)
	assert.True(t, has)

	at := time.Now()
	carry := &models.CommissionTransaction{
		BarberID: 3, ShopID: 10, Kind: models.TransactionKindCarryover,
		Amount: dec("0.0049"), Status: models.TransactionStatusPending, OccurredAt: at,
	}
	require.NoError(t, repo.CompleteSuccess(ctx, payout, []int64{t1.ID}, carry, "tr_carry", at))

	pending, err := txRepo.ListPending(ctx, 3, 10)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.TransactionKindCarryover, pending[0].Kind)
	assert.True(t, pending[0].Amount.Equal(dec("0.0049")))

	b, err := balRepo.Get(ctx, 3, 10)
	require.NoError(t, err)
	assert.True(t, b.PendingAmount.Equal(dec("0.0049")))

	has, err = repo.HasPending(ctx, 3, 10)
	require.NoError(t, err)
	assert.False(t, has)
}

func TestPayoutRepository_MarkFailure(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPayoutRepository(db)
	ctx := context.Background()

	payout := newPayout(2, 10, "PO003")
	require.NoError(t, repo.Create(ctx, payout))
	require.NoError(t, repo.MarkFailure(ctx, payout.ID, "account closed", time.Now()))
	assert.ErrorIs(t, repo.MarkFailure(ctx, payout.ID, "again", time.Now()), gorm.ErrRecordNotFound)

	got, err := repo.GetByID(ctx, payout.ID)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailure, got.Status)
	assert.Equal(t, "account closed", *got.FailureReason)
}

func TestPayoutRepository_ListByShop(t *testing.T) {
	db := setupTestDB(t)
	repo := NewPayoutRepository(db)
	ctx := context.Background()

	require.NoError(t, repo.Create(ctx, newPayout(1, 10, "A")))
	require.NoError(t, repo.Create(ctx, newPayout(2, 10, "B")))
	require.NoError(t, repo.Create(ctx, newPayout(1, 11, "C")))

	list, total, err := repo.ListByShop(ctx, 10, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	assert.Equal(t, "B", list[0].PayoutNo)

	barberID := int64(1)
	_, total, err = repo.ListByShop(ctx, 10, &barberID, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
}
