package marketing

import (
	"context"
	stderrors "errors"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/crypto"
	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/logger"
	"github.com/dumeirei/barbershop-backend/internal/common/metrics"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
	"github.com/dumeirei/barbershop-backend/pkg/messaging"
	"github.com/dumeirei/barbershop-backend/pkg/payment"
)

// NoteNoChargeRequired 低于最低扣款金额时的记录备注
const NoteNoChargeRequired = "no charge required"

// ChargeOutcome 扣款结果
type ChargeOutcome struct {
	Cost          *CampaignCost   `json:"-"`
	Skipped       bool            `json:"skipped"`
	AmountCharged decimal.Decimal `json:"amount_charged"`
	ChargeRef     string          `json:"charge_ref,omitempty"`
	Note          string          `json:"note,omitempty"`
}

// BillingService 活动计费服务
type BillingService struct {
	billingRepo *repository.BillingRepository
	charger     payment.Charger
	minCharge   decimal.Decimal
	timeout     time.Duration
	metrics     *metrics.Metrics
	logger      *zap.Logger
}

// NewBillingService 创建计费服务
func NewBillingService(
	billingRepo *repository.BillingRepository,
	charger payment.Charger,
	cfg config.CampaignConfig,
	m *metrics.Metrics,
	log *zap.Logger,
) *BillingService {
	timeout := cfg.ChargeTimeout()
	if timeout <= 0 {
		timeout = 20 * time.Second
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &BillingService{
		billingRepo: billingRepo,
		charger:     charger,
		minCharge:   decimal.NewFromFloat(cfg.MinCharge),
		timeout:     timeout,
		metrics:     m,
		logger:      log.Named("billing"),
	}
}

// Charge 按活动费用扣款；低于最低金额时跳过外部调用
func (s *BillingService) Charge(ctx context.Context, account *models.BillingAccount, campaign *models.MarketingCampaign, cost *CampaignCost) (*ChargeOutcome, error) {
	if cost.TotalCost.LessThan(s.minCharge) {
		s.metrics.RecordCharge(metrics.ResultSkipped)
		return &ChargeOutcome{Cost: cost, Skipped: true, AmountCharged: decimal.Zero, Note: NoteNoChargeRequired}, nil
	}

	if !account.PaymentMethodActive || utils.SafeString(account.PaymentMethodID) == "" {
		return nil, errors.ErrNoPaymentMethod
	}
	customerRef := utils.SafeString(account.StripeCustomerID)
	if customerRef == "" {
		return nil, errors.ErrNoCustomerRef
	}

	cents := payment.ToCents(cost.TotalCost)
	chargeCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	res, err := s.charger.ChargePaymentMethod(chargeCtx, customerRef, *account.PaymentMethodID, cents, map[string]string{
		"campaign_id":        strconv.FormatInt(campaign.ID, 10),
		"billing_account_id": strconv.FormatInt(account.ID, 10),
		"recipient_count":    strconv.Itoa(cost.RecipientCount),
	})
	s.metrics.ObserveExternalCall("stripe_charge", time.Since(start))

	if err == nil && (res == nil || !res.Success) {
		err = payment.ErrChargeNotSucceeded
	}
	if err != nil {
		s.metrics.RecordCharge(metrics.ResultFailure)
		s.logger.Warn("campaign charge failed",
			logger.CampaignID(campaign.ID), logger.Amount(cost.TotalCost), zap.Error(err))
		if stderrors.Is(err, context.DeadlineExceeded) {
			return nil, errors.ErrChargeFailed.WithMessage("payment charge timed out").WithError(err)
		}
		return nil, errors.ErrChargeFailed.WithError(err)
	}

	s.metrics.RecordCharge(metrics.ResultSuccess)
	s.logger.Info("campaign charged",
		logger.CampaignID(campaign.ID), logger.Amount(cost.TotalCost),
		zap.String("charge_ref", crypto.MaskRef(res.TransactionRef)))

	return &ChargeOutcome{
		Cost:          cost,
		AmountCharged: decimal.New(cents, -2),
		ChargeRef:     res.TransactionRef,
	}, nil
}

// Record 写入不可变的计费记录
func (s *BillingService) Record(ctx context.Context, campaign *models.MarketingCampaign, outcome *ChargeOutcome, result *messaging.Result) (*models.BillingRecord, error) {
	record := &models.BillingRecord{
		CampaignID:       campaign.ID,
		BillingAccountID: campaign.BillingAccountID,
		AmountCharged:    outcome.AmountCharged,
		PlatformFee:      outcome.Cost.PlatformFee,
		ServiceCost:      outcome.Cost.ServiceCost,
		RecipientCount:   outcome.Cost.RecipientCount,
		Skipped:          outcome.Skipped,
		Note:             outcome.Note,
	}
	if result != nil {
		record.SentCount = result.SentCount
		record.FailedCount = result.FailedCount
	}
	if outcome.ChargeRef != "" {
		record.ChargeRef = utils.StringPtr(outcome.ChargeRef)
	}

	if err := s.billingRepo.CreateRecord(ctx, record); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return record, nil
}

// Account 获取计费账户并校验归属
func (s *BillingService) Account(ctx context.Context, caller models.Caller, accountID int64) (*models.BillingAccount, error) {
	account, err := s.billingRepo.GetAccountByID(ctx, accountID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBillingAccountNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !caller.IsAdmin() && account.OwnerID != caller.UserID {
		return nil, errors.ErrPermissionDenied
	}
	return account, nil
}

// DefaultAccount 调用者自己的计费账户，账户类型由用户类型决定
func (s *BillingService) DefaultAccount(ctx context.Context, caller models.Caller) (*models.BillingAccount, error) {
	ownerType, ok := ownerTypeOf(caller.UserType)
	if !ok {
		return nil, errors.ErrBillingAccountNotFound.WithMessage("billing_account_id is required")
	}
	account, err := s.billingRepo.GetAccountByOwner(ctx, caller.UserID, ownerType)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrBillingAccountNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return account, nil
}

// CreateAccountRequest 开通计费账户请求
type CreateAccountRequest struct {
	StripeCustomerID string `json:"stripe_customer_id" binding:"required,startswith=cus_"`
	PaymentMethodID  string `json:"payment_method_id" binding:"omitempty,startswith=pm_"`
}

// CreateAccount 为调用者开通计费账户，每个用户只有一个
func (s *BillingService) CreateAccount(ctx context.Context, caller models.Caller, req *CreateAccountRequest) (*models.BillingAccount, error) {
	ownerType, ok := ownerTypeOf(caller.UserType)
	if !ok {
		return nil, errors.ErrInvalidOwnerType
	}
	if _, err := s.billingRepo.GetAccountByOwner(ctx, caller.UserID, ownerType); err == nil {
		return nil, errors.ErrAlreadyExists.WithMessage("billing account already exists")
	} else if !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	account := &models.BillingAccount{
		OwnerID:             caller.UserID,
		OwnerType:           ownerType,
		StripeCustomerID:    utils.StringPtr(req.StripeCustomerID),
		PaymentMethodActive: req.PaymentMethodID != "",
	}
	if req.PaymentMethodID != "" {
		account.PaymentMethodID = utils.StringPtr(req.PaymentMethodID)
	}
	if err := s.billingRepo.CreateAccount(ctx, account); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	s.logger.Info("billing account created",
		logger.UserID(caller.UserID), zap.String("owner_type", ownerType),
		zap.String("customer", crypto.MaskRef(req.StripeCustomerID)))
	return account, nil
}

// CampaignRecords 单个活动的计费记录
func (s *BillingService) CampaignRecords(ctx context.Context, campaignID int64) ([]*models.BillingRecord, error) {
	records, err := s.billingRepo.ListRecordsByCampaign(ctx, campaignID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return records, nil
}

func ownerTypeOf(userType string) (string, bool) {
	switch userType {
	case models.UserTypeBarber:
		return models.OwnerTypeBarber, true
	case models.UserTypeShopOwner:
		return models.OwnerTypeShop, true
	case models.UserTypeEnterprise:
		return models.OwnerTypeEnterprise, true
	}
	return "", false
}

// History 分页查看计费记录
func (s *BillingService) History(ctx context.Context, caller models.Caller, accountID int64, p *utils.Pagination) ([]*models.BillingRecord, int64, error) {
	if _, err := s.Account(ctx, caller, accountID); err != nil {
		return nil, 0, err
	}
	records, total, err := s.billingRepo.ListRecordsByAccount(ctx, accountID, p.GetOffset(), p.GetLimit())
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return records, total, nil
}
