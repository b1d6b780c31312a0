package marketing

import (
	"context"
	stderrors "errors"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

func costOf(total string) *CampaignCost {
	t := decimal.RequireFromString(total)
	return &CampaignCost{RecipientCount: 5, ServiceCost: t, PlatformFee: decimal.Zero, TotalCost: t}
}

func TestBillingService_SkipChargeBoundary(t *testing.T) {
	e := newTestEnv(t)
	campaign := &models.MarketingCampaign{ID: 1, BillingAccountID: e.account.ID}
	ctx := context.Background()

	outcome, err := e.billing.Charge(ctx, e.account, campaign, costOf("0.009"))
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
	assert.Equal(t, NoteNoChargeRequired, outcome.Note)
	assert.True(t, outcome.AmountCharged.IsZero())
	assert.Zero(t, e.pay.ChargeCount())

	outcome, err = e.billing.Charge(ctx, e.account, campaign, costOf("0.01"))
	require.NoError(t, err)
	assert.False(t, outcome.Skipped)
	assert.Equal(t, 1, e.pay.ChargeCount())
	assert.Equal(t, int64(1), e.pay.Charges[0].AmountCents)
	assert.Equal(t, "cus_123", e.pay.Charges[0].CustomerRef)
	assert.Equal(t, "pm_456", e.pay.Charges[0].PaymentMethodRef)
	assert.True(t, outcome.AmountCharged.Equal(decimal.RequireFromString("0.01")))
	assert.NotEmpty(t, outcome.ChargeRef)
}

func TestBillingService_SkipIgnoresMissingPaymentMethod(t *testing.T) {
	e := newTestEnv(t)
	account := &models.BillingAccount{ID: 9, OwnerType: models.OwnerTypeShop}

	outcome, err := e.billing.Charge(context.Background(), account, &models.MarketingCampaign{ID: 1}, costOf("0.0054"))
	require.NoError(t, err)
	assert.True(t, outcome.Skipped)
}

func TestBillingService_DistinctFailures(t *testing.T) {
	e := newTestEnv(t)
	campaign := &models.MarketingCampaign{ID: 1}
	ctx := context.Background()

	inactive := *e.account
	inactive.PaymentMethodActive = false
	_, err := e.billing.Charge(ctx, &inactive, campaign, costOf("1.80"))
	assert.ErrorIs(t, err, errors.ErrNoPaymentMethod)

	noMethod := *e.account
	noMethod.PaymentMethodID = nil
	_, err = e.billing.Charge(ctx, &noMethod, campaign, costOf("1.80"))
	assert.ErrorIs(t, err, errors.ErrNoPaymentMethod)

	noCustomer := *e.account
	noCustomer.StripeCustomerID = utils.StringPtr("")
	_, err = e.billing.Charge(ctx, &noCustomer, campaign, costOf("1.80"))
	assert.ErrorIs(t, err, errors.ErrNoCustomerRef)
	assert.Zero(t, e.pay.ChargeCount())

	e.pay.ChargeErr = stderrors.New("card_declined")
	_, err = e.billing.Charge(ctx, e.account, campaign, costOf("1.80"))
	assert.ErrorIs(t, err, errors.ErrChargeFailed)
	assert.True(t, errors.IsExternal(err))
	assert.Equal(t, 1, e.pay.ChargeCount())
}

func TestBillingService_RecordAndHistory(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	campaign := &models.MarketingCampaign{ID: 42, BillingAccountID: e.account.ID}

	cost, err := defaultCalculator().Calculate(1000, models.CampaignChannelEmail, models.OwnerTypeShop)
	require.NoError(t, err)
	outcome, err := e.billing.Charge(ctx, e.account, campaign, cost)
	require.NoError(t, err)
	assert.Equal(t, int64(180), e.pay.Charges[0].AmountCents)

	record, err := e.billing.Record(ctx, campaign, outcome, &messaging.Result{SentCount: 998, FailedCount: 2})
	require.NoError(t, err)
	assert.True(t, record.AmountCharged.Equal(decimal.RequireFromString("1.8")))
	assert.True(t, record.PlatformFee.Equal(decimal.RequireFromString("0.8")))
	assert.Equal(t, 1000, record.RecipientCount)
	assert.Equal(t, 998, record.SentCount)
	require.NotNil(t, record.ChargeRef)

	// 记录不可修改
	err = e.db.Model(record).Update("note", "edited").Error
	assert.ErrorIs(t, err, models.ErrBillingRecordImmutable)

	records, total, err := e.billing.History(ctx, e.owner, e.account.ID, &utils.Pagination{Page: 1, PageSize: 10})
	require.NoError(t, err)
	assert.Equal(t, int64(1), total)
	assert.Len(t, records, 1)

	_, _, err = e.billing.History(ctx, models.Caller{UserID: e.owner.UserID + 1, UserType: models.UserTypeBarber}, e.account.ID, &utils.Pagination{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, errors.ErrPermissionDenied)

	_, _, err = e.billing.History(ctx, e.owner, e.account.ID+100, &utils.Pagination{Page: 1, PageSize: 10})
	assert.ErrorIs(t, err, errors.ErrBillingAccountNotFound)

	byCampaign, err := e.billing.CampaignRecords(ctx, campaign.ID)
	require.NoError(t, err)
	require.Len(t, byCampaign, 1)
	assert.Equal(t, record.ID, byCampaign[0].ID)
}

func TestBillingService_CreateAccount(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()
	barber := models.Caller{UserID: e.owner.UserID + 1, UserType: models.UserTypeBarber}

	account, err := e.billing.CreateAccount(ctx, barber, &CreateAccountRequest{StripeCustomerID: "cus_barber"})
	require.NoError(t, err)
	assert.Equal(t, models.OwnerTypeBarber, account.OwnerType)
	assert.False(t, account.PaymentMethodActive)

	_, err = e.billing.CreateAccount(ctx, barber, &CreateAccountRequest{StripeCustomerID: "cus_again"})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	// 店主已有账户
	_, err = e.billing.CreateAccount(ctx, e.owner, &CreateAccountRequest{StripeCustomerID: "cus_owner"})
	assert.ErrorIs(t, err, errors.ErrAlreadyExists)

	_, err = e.billing.CreateAccount(ctx, models.Caller{UserID: 9999, UserType: models.UserTypeAdmin}, &CreateAccountRequest{StripeCustomerID: "cus_admin"})
	assert.ErrorIs(t, err, errors.ErrInvalidOwnerType)

	got, err := e.billing.DefaultAccount(ctx, barber)
	require.NoError(t, err)
	assert.Equal(t, account.ID, got.ID)

	// 没有支付方式的账户超过最低金额时不能扣费
	cost, err := defaultCalculator().Calculate(1000, models.CampaignChannelEmail, models.OwnerTypeBarber)
	require.NoError(t, err)
	_, err = e.billing.Charge(ctx, got, &models.MarketingCampaign{ID: 7, BillingAccountID: got.ID}, cost)
	assert.ErrorIs(t, err, errors.ErrNoPaymentMethod)
}
