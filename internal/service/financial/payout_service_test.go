package financial

import (
	"context"
	stderrors "errors"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
	"github.com/dumeirei/barbershop-backend/internal/common/crypto"
	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/pkg/payment"
)

func TestPayoutRequest_Validate(t *testing.T) {
	assert.NoError(t, (&PayoutRequest{Action: PayoutActionProcessAll}).Validate())
	assert.NoError(t, (&PayoutRequest{Action: PayoutActionProcessSingle, BarberID: 3}).Validate())
	assert.ErrorIs(t, (&PayoutRequest{Action: PayoutActionProcessSingle}).Validate(), errors.ErrInvalidPayoutAction)
	assert.ErrorIs(t, (&PayoutRequest{Action: "refund"}).Validate(), errors.ErrInvalidPayoutAction)
}

func TestPayoutService_ProcessSingle(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_barber_1")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	ctx := context.Background()

	result, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	assert.Zero(t, result.Errors)
	assert.True(t, result.TotalPaid.Equal(dec("20")))

	require.Len(t, e.pay.Transfers, 1)
	call := e.pay.Transfers[0]
	assert.Equal(t, "acct_barber_1", call.Destination)
	assert.Equal(t, int64(2000), call.AmountCents)
	assert.True(t, strings.HasPrefix(call.IdempotencyKey, "payout-PO"))

	payout, err := e.payoutRepo.GetByPayoutNo(ctx, result.Items[0].PayoutNo)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusSuccess, payout.Status)
	assert.Equal(t, models.PayoutTriggerSingle, payout.Trigger)
	assert.NotNil(t, payout.TransferRef)

	balance, err := e.balanceRepo.Get(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	assert.True(t, balance.PendingAmount.IsZero())
	assert.True(t, balance.TotalEarned.Equal(dec("20")), "打款不影响累计收入")
	assert.NotNil(t, balance.LastPayoutAt)

	pending, err := e.txnRepo.ListPending(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	assert.Empty(t, pending)

	notes := e.notes(t, barberID, models.RelatedTypePayout, payout.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTypePayoutSuccess, notes[0].Type)

	// 第二次执行无可打款金额
	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrNothingToPay)
	assert.Equal(t, 1, e.pay.TransferCount())
}

func TestPayoutService_TransferFailureKeepsBalance(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_broken")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	e.pay.TransferErrs["acct_broken"] = stderrors.New("account restricted")
	ctx := context.Background()

	result, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, PayoutItemFailure, result.Items[0].Status)
	assert.Contains(t, result.Items[0].Reason, "account restricted")

	payout, err := e.payoutRepo.GetByPayoutNo(ctx, result.Items[0].PayoutNo)
	require.NoError(t, err)
	assert.Equal(t, models.PayoutStatusFailure, payout.Status)
	require.NotNil(t, payout.FailureReason)

	assert.True(t, e.pending(t, barberID).Equal(dec("20")))
	pending, err := e.txnRepo.ListPending(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	notes := e.notes(t, barberID, models.RelatedTypePayout, payout.ID)
	require.Len(t, notes, 1)
	assert.Equal(t, models.NotificationTypePayoutFailure, notes[0].Type)
}

func TestPayoutService_ProcessAllIsolatesFailures(t *testing.T) {
	e := newTestEnv(t)
	ids := make([]int64, 3)
	for i := range ids {
		ids[i] = e.addBarber(t, fmt.Sprintf("acct_%d", i+1))
		e.commission(t, ids[i], "50")
		e.sale(t, ids[i], "100")
	}
	e.pay.TransferErrs["acct_2"] = stderrors.New("insufficient platform balance")
	ctx := context.Background()

	result, err := e.payouts.Execute(ctx, e.owner, &PayoutRequest{ShopID: e.shop.ID, Action: PayoutActionProcessAll})
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Equal(t, 1, result.Errors)
	assert.True(t, result.TotalPaid.Equal(dec("100")))
	assert.Len(t, result.Items, 3)

	assert.True(t, e.pending(t, ids[0]).IsZero())
	assert.True(t, e.pending(t, ids[1]).Equal(dec("50")))
	assert.True(t, e.pending(t, ids[2]).IsZero())

	payouts, total, err := e.payoutRepo.ListByShop(ctx, e.shop.ID, nil, 0, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	for _, p := range payouts {
		assert.Equal(t, models.PayoutTriggerBulk, p.Trigger)
	}
}

func TestPayoutService_LockContention(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_1")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	ctx := context.Background()

	unlock, err := e.locker.Lock(ctx, cache.BuildKey(cache.KeyPrefixPayout, "barber", fmt.Sprint(barberID)))
	require.NoError(t, err)

	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrPayoutInProgress)
	assert.Zero(t, e.pay.TransferCount())

	unlock()
	result, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
}

func TestPayoutService_MissingPayoutAccount(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")

	_, err := e.payouts.ProcessSingle(context.Background(), e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrPayoutAccountAbsent)
	assert.Zero(t, e.pay.TransferCount())
	assert.True(t, e.pending(t, barberID).Equal(dec("20")))
}

func TestPayoutService_EncryptedPayoutAccount(t *testing.T) {
	e := newTestEnv(t)
	cipher, err := crypto.NewAES("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	e.payouts.cipher = cipher

	sealed, err := cipher.Encrypt("acct_secret")
	require.NoError(t, err)
	barberID := e.addBarber(t, sealed)
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "25")

	_, err = e.payouts.ProcessSingle(context.Background(), e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	require.Len(t, e.pay.Transfers, 1)
	assert.Equal(t, "acct_secret", e.pay.Transfers[0].Destination)
	assert.Equal(t, int64(1000), e.pay.Transfers[0].AmountCents)
}

func TestPayoutService_PreviewHasNoSideEffects(t *testing.T) {
	e := newTestEnv(t)
	b1 := e.addBarber(t, "acct_1")
	b2 := e.addBarber(t, "")
	e.commission(t, b1, "40")
	e.commission(t, b2, "40")
	e.sale(t, b1, "50")
	e.sale(t, b2, "25")
	ctx := context.Background()

	preview, err := e.payouts.Preview(ctx, e.owner, &PayoutRequest{ShopID: e.shop.ID, Action: PayoutActionProcessAll})
	require.NoError(t, err)
	require.Len(t, preview.Items, 2)
	assert.True(t, preview.Total.Equal(dec("30")))
	assert.True(t, preview.Items[0].HasPayoutAccount)
	assert.False(t, preview.Items[1].HasPayoutAccount)

	single, err := e.payouts.Preview(ctx, e.owner, &PayoutRequest{ShopID: e.shop.ID, Action: PayoutActionProcessSingle, BarberID: b1})
	require.NoError(t, err)
	require.Len(t, single.Items, 1)
	assert.True(t, single.Total.Equal(dec("20")))

	_, total, err := e.payoutRepo.ListByShop(ctx, e.shop.ID, nil, 0, 10)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Zero(t, e.pay.TransferCount())
}

func TestPayoutService_Authorization(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_1")
	stranger := models.Caller{UserID: e.owner.UserID + 50, UserType: models.UserTypeShopOwner}
	ctx := context.Background()

	_, err := e.payouts.ProcessSingle(ctx, stranger, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrNotShopOwner)
	_, err = e.payouts.ProcessAll(ctx, stranger, e.shop.ID)
	assert.ErrorIs(t, err, errors.ErrNotShopOwner)
	_, _, err = e.payouts.History(ctx, stranger, e.shop.ID, nil, nil)
	assert.ErrorIs(t, err, errors.ErrNotShopOwner)
}

func TestPayoutService_SetPayoutAccount(t *testing.T) {
	e := newTestEnv(t)
	cipher, err := crypto.NewAES("0123456789abcdef0123456789abcdef")
	require.NoError(t, err)
	e.payouts.cipher = cipher
	ctx := context.Background()

	barberID := e.addBarber(t, "")
	barber := models.Caller{UserID: barberID, UserType: models.UserTypeBarber}

	assert.ErrorIs(t, e.payouts.SetPayoutAccount(ctx, barber, "acct_"), errors.ErrInvalidPayoutAccount)
	assert.ErrorIs(t, e.payouts.SetPayoutAccount(ctx, barber, "ba_123"), errors.ErrInvalidPayoutAccount)
	assert.ErrorIs(t, e.payouts.SetPayoutAccount(ctx, e.owner, "acct_owner"), errors.ErrPermissionDenied)

	require.NoError(t, e.payouts.SetPayoutAccount(ctx, barber, " acct_new "))
	user, err := e.userRepo.GetByID(ctx, barberID)
	require.NoError(t, err)
	require.NotNil(t, user.PayoutAccountEncrypted)
	assert.NotContains(t, *user.PayoutAccountEncrypted, "acct_new")

	e.commission(t, barberID, "40")
	e.sale(t, barberID, "10")
	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	require.Len(t, e.pay.Transfers, 1)
	assert.Equal(t, "acct_new", e.pay.Transfers[0].Destination)
}

func TestPayoutService_Get(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_1")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	ctx := context.Background()

	result, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	no := result.Items[0].PayoutNo

	payout, err := e.payouts.Get(ctx, e.owner, e.shop.ID, no)
	require.NoError(t, err)
	assert.Equal(t, barberID, payout.BarberID)

	_, err = e.payouts.Get(ctx, e.owner, e.shop.ID, "PO-missing")
	assert.ErrorIs(t, err, errors.ErrPayoutNotFound)

	other := &models.Shop{OwnerID: e.owner.UserID, Name: "Second Chair"}
	require.NoError(t, e.shopRepo.Create(ctx, other))
	_, err = e.payouts.Get(ctx, e.owner, other.ID, no)
	assert.ErrorIs(t, err, errors.ErrPayoutNotFound)
}

func TestPayoutService_VoidTransaction(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_1")
	e.commission(t, barberID, "40")
	keep := e.sale(t, barberID, "50")
	void := e.sale(t, barberID, "100")
	ctx := context.Background()
	require.True(t, e.pending(t, barberID).Equal(dec("60")))

	balance, err := e.payouts.VoidTransaction(ctx, e.owner, e.shop.ID, void.ID)
	require.NoError(t, err)
	assert.True(t, balance.PendingAmount.Equal(dec("20")))

	_, err = e.payouts.VoidTransaction(ctx, e.owner, e.shop.ID, void.ID)
	assert.ErrorIs(t, err, errors.ErrTransactionSettled)

	stranger := models.Caller{UserID: e.owner.UserID + 50, UserType: models.UserTypeShopOwner}
	_, err = e.payouts.VoidTransaction(ctx, stranger, e.shop.ID, keep.ID)
	assert.ErrorIs(t, err, errors.ErrNotShopOwner)

	// 打款进行中时不能作废
	unlock, err := e.locker.Lock(ctx, cache.BuildKey(cache.KeyPrefixPayout, "barber", fmt.Sprint(barberID)))
	require.NoError(t, err)
	_, err = e.payouts.VoidTransaction(ctx, e.owner, e.shop.ID, keep.ID)
	assert.ErrorIs(t, err, errors.ErrPayoutInProgress)
	unlock()

	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	_, err = e.payouts.VoidTransaction(ctx, e.owner, e.shop.ID, keep.ID)
	assert.ErrorIs(t, err, errors.ErrTransactionSettled)
}

// hookTransferer 在转账前执行回调，模拟打款期间的并发写入
type hookTransferer struct {
	payment.Transferer
	before func()
}

func (h *hookTransferer) Transfer(ctx context.Context, destination string, amountCents int64, metadata map[string]string, idempotencyKey string) (*payment.TransferResult, error) {
	if h.before != nil {
		h.before()
	}
	return h.Transferer.Transfer(ctx, destination, amountCents, metadata, idempotencyKey)
}

func TestPayoutService_SaleDuringTransferStaysPending(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_busy")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	ctx := context.Background()

	var late *models.CommissionTransaction
	svc := e.payoutService(&hookTransferer{Transferer: e.pay, before: func() {
		late = e.sale(t, barberID, "25")
	}})

	result, err := svc.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Processed)
	require.Len(t, e.pay.Transfers, 1)
	assert.Equal(t, int64(2000), e.pay.Transfers[0].AmountCents)

	pending, err := e.txnRepo.ListPending(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, late.ID, pending[0].ID, "转账期间的新销售留待下次打款")
	assert.True(t, e.pending(t, barberID).Equal(dec("10")))

	result, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.True(t, result.TotalPaid.Equal(dec("10")))
	assert.Equal(t, int64(1000), e.pay.Transfers[1].AmountCents)
}

func TestPayoutService_UnrecordedTransferBlocksRepeat(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_once")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "50")
	ctx := context.Background()

	failing := true
	require.NoError(t, e.db.Callback().Update().Before("gorm:update").Register("test:fail_payout_complete", func(tx *gorm.DB) {
		if failing && tx.Statement.Table == "payouts" {
			_ = tx.AddError(stderrors.New("disk full"))
		}
	}))

	_, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrDatabaseError)
	require.Equal(t, 1, e.pay.TransferCount())
	failing = false

	// 资金已转出但未落库，流水仍是 pending，不得再次转账
	pending, err := e.txnRepo.ListPending(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	assert.Len(t, pending, 1)

	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrPayoutUnreconciled)

	result, err := e.payouts.ProcessAll(ctx, e.owner, e.shop.ID)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 1, result.Errors)
	assert.Equal(t, 1, e.pay.TransferCount())
}

func TestPayoutService_SubCentRemainderCarriesForward(t *testing.T) {
	e := newTestEnv(t)
	barberID := e.addBarber(t, "acct_cents")
	e.commission(t, barberID, "40")
	e.sale(t, barberID, "10.01")
	ctx := context.Background()

	result, err := e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.True(t, result.TotalPaid.Equal(dec("4")))
	assert.Equal(t, int64(400), e.pay.Transfers[0].AmountCents)

	pending, err := e.txnRepo.ListPending(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, models.TransactionKindCarryover, pending[0].Kind)
	assert.True(t, pending[0].Amount.Equal(dec("0.004")))

	balance, err := e.balanceRepo.Get(ctx, barberID, e.shop.ID)
	require.NoError(t, err)
	assert.True(t, balance.PendingAmount.Equal(dec("0.004")))
	assert.True(t, balance.TotalEarned.Equal(dec("4.004")), "结转余数不重复计入累计收入")

	// 不足一分时不打款
	_, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	assert.ErrorIs(t, err, errors.ErrNothingToPay)

	e.sale(t, barberID, "10.01")
	result, err = e.payouts.ProcessSingle(ctx, e.owner, e.shop.ID, barberID)
	require.NoError(t, err)
	assert.True(t, result.TotalPaid.Equal(dec("4")))
	assert.True(t, e.pending(t, barberID).Equal(dec("0.008")))
}
