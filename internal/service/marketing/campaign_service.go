package marketing

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/crypto"
	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/logger"
	"github.com/dumeirei/barbershop-backend/internal/common/metrics"
	"github.com/dumeirei/barbershop-backend/internal/common/tracing"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
	"github.com/dumeirei/barbershop-backend/pkg/messaging"
)

// dispatchBatch 每轮定时发送处理的活动数
const dispatchBatch = 50

// maxReportedErrors 响应中最多返回的发送错误条数
const maxReportedErrors = 10

// Locker 活动级互斥锁，防止同一活动被并发扣费
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// CampaignService 营销活动服务
type CampaignService struct {
	campaignRepo     *repository.CampaignRepository
	customerRepo     *repository.CustomerRepository
	shopRepo         *repository.ShopRepository
	userRepo         *repository.UserRepository
	notificationRepo *repository.NotificationRepository
	calculator       *CostCalculator
	billing          *BillingService
	transports       map[string]messaging.BulkSender
	locker           Locker
	sendTimeout      time.Duration
	metrics          *metrics.Metrics
	logger           *zap.Logger
}

// CampaignDeps 营销活动服务依赖
type CampaignDeps struct {
	CampaignRepo     *repository.CampaignRepository
	CustomerRepo     *repository.CustomerRepository
	ShopRepo         *repository.ShopRepository
	UserRepo         *repository.UserRepository
	NotificationRepo *repository.NotificationRepository
	Calculator       *CostCalculator
	Billing          *BillingService
	Transports       map[string]messaging.BulkSender // 渠道 → 群发通道
	Locker           Locker
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

// NewCampaignService 创建营销活动服务
func NewCampaignService(deps CampaignDeps, cfg config.CampaignConfig) *CampaignService {
	timeout := cfg.SendTimeout()
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	calculator := deps.Calculator
	if calculator == nil {
		calculator = NewCostCalculator(cfg)
	}
	return &CampaignService{
		campaignRepo:     deps.CampaignRepo,
		customerRepo:     deps.CustomerRepo,
		shopRepo:         deps.ShopRepo,
		userRepo:         deps.UserRepo,
		notificationRepo: deps.NotificationRepo,
		calculator:       calculator,
		billing:          deps.Billing,
		transports:       deps.Transports,
		locker:           deps.Locker,
		sendTimeout:      timeout,
		metrics:          deps.Metrics,
		logger:           log.Named("campaign"),
	}
}

// CreateCampaignRequest 创建活动请求
type CreateCampaignRequest struct {
	ShopID           int64  `json:"shop_id" binding:"required"`
	BillingAccountID int64  `json:"billing_account_id"`
	Name             string `json:"name" binding:"required,max=100"`
	Channel          string `json:"channel" binding:"required,oneof=email sms"`
	Subject          string `json:"subject" binding:"omitempty,max=200"`
	Content          string `json:"content" binding:"required"`
	Segment          string `json:"segment" binding:"omitempty,oneof=all recent lapsed"`
	SegmentDays      int    `json:"segment_days" binding:"omitempty,min=0,max=3650"`
}

// ScheduleCampaignRequest 定时发送请求
type ScheduleCampaignRequest struct {
	ScheduledAt time.Time `json:"scheduled_at" binding:"required"`
}

// SendCampaignRequest 发送请求，send_test 为真时只发给调用者本人
type SendCampaignRequest struct {
	CampaignID int64 `json:"campaign_id" binding:"required"`
	UserID     int64 `json:"user_id" binding:"required"`
	SendTest   bool  `json:"send_test"`
}

// EstimateCostRequest 费用估算请求
type EstimateCostRequest struct {
	RecipientCount int    `json:"recipient_count" binding:"required,min=1"`
	Channel        string `json:"channel" binding:"required,oneof=email sms"`
	OwnerType      string `json:"owner_type" binding:"required,oneof=barber shop enterprise"`
}

// SendMetrics 发送统计
type SendMetrics struct {
	RecipientCount int      `json:"recipient_count"`
	SentCount      int      `json:"sent_count"`
	FailedCount    int      `json:"failed_count"`
	Errors         []string `json:"errors,omitempty"`
}

// BillingSummary 发送响应中的计费摘要
type BillingSummary struct {
	*CampaignCost
	Display       CostDisplay `json:"display"`
	AmountCharged string      `json:"amount_charged"`
	Skipped       bool        `json:"skipped"`
	ChargeRef     string      `json:"charge_ref,omitempty"`
	Note          string      `json:"note,omitempty"`
	RecordID      int64       `json:"record_id,omitempty"`
}

// SendCampaignResponse 发送响应
type SendCampaignResponse struct {
	Success    bool            `json:"success"`
	CampaignID int64           `json:"campaign_id"`
	Status     string          `json:"status"`
	Test       bool            `json:"test,omitempty"`
	Metrics    SendMetrics     `json:"metrics"`
	Billing    *BillingSummary `json:"billing,omitempty"`
	NextSteps  []string        `json:"next_steps"`
}

// CostPreview 活动费用预览
type CostPreview struct {
	CampaignID int64         `json:"campaign_id"`
	Cost       *CampaignCost `json:"cost"`
	Display    CostDisplay   `json:"display"`
}

// campaignAccount 未指定账户时使用调用者自己的计费账户
func (s *CampaignService) campaignAccount(ctx context.Context, caller models.Caller, accountID int64) (*models.BillingAccount, error) {
	if accountID == 0 {
		return s.billing.DefaultAccount(ctx, caller)
	}
	return s.billing.Account(ctx, caller, accountID)
}

// Create 创建草稿活动
func (s *CampaignService) Create(ctx context.Context, caller models.Caller, req *CreateCampaignRequest) (*models.MarketingCampaign, error) {
	if !models.IsValidChannel(req.Channel) {
		return nil, errors.ErrInvalidChannel
	}
	segment := req.Segment
	if segment == "" {
		segment = models.CampaignSegmentAll
	}
	if !models.IsValidSegment(segment) {
		return nil, errors.ErrInvalidSegment
	}
	if segment != models.CampaignSegmentAll && req.SegmentDays <= 0 {
		return nil, errors.ErrInvalidSegment.WithMessage("segment_days is required for recent and lapsed segments")
	}

	account, err := s.campaignAccount(ctx, caller, req.BillingAccountID)
	if err != nil {
		return nil, err
	}
	if _, err := s.shopRepo.GetByID(ctx, req.ShopID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrShopNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	campaign := &models.MarketingCampaign{
		OwnerID:          account.OwnerID,
		ShopID:           req.ShopID,
		BillingAccountID: account.ID,
		Name:             req.Name,
		Channel:          req.Channel,
		Content:          req.Content,
		Segment:          segment,
		SegmentDays:      req.SegmentDays,
		Status:           models.CampaignStatusDraft,
	}
	if req.Channel == models.CampaignChannelEmail {
		subject := req.Subject
		if subject == "" {
			subject = req.Name
		}
		campaign.Subject = &subject
	}

	if err := s.campaignRepo.Create(ctx, campaign); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return campaign, nil
}

// Get 获取活动并校验归属
func (s *CampaignService) Get(ctx context.Context, caller models.Caller, id int64) (*models.MarketingCampaign, error) {
	campaign, err := s.campaignRepo.GetByIDWithAccount(ctx, id)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrCampaignNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !caller.IsAdmin() && campaign.OwnerID != caller.UserID {
		return nil, errors.ErrNotCampaignOwner
	}
	return campaign, nil
}

// BillingRecords 活动的计费记录，只有活动所有者可见
func (s *CampaignService) BillingRecords(ctx context.Context, caller models.Caller, id int64) ([]*models.BillingRecord, error) {
	if _, err := s.Get(ctx, caller, id); err != nil {
		return nil, err
	}
	return s.billing.CampaignRecords(ctx, id)
}

// List 分页获取调用者的活动
func (s *CampaignService) List(ctx context.Context, caller models.Caller, p *utils.Pagination) ([]*models.MarketingCampaign, int64, error) {
	campaigns, total, err := s.campaignRepo.ListByOwner(ctx, caller.UserID, p.GetOffset(), p.GetLimit())
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return campaigns, total, nil
}

// Approve 审批草稿活动
func (s *CampaignService) Approve(ctx context.Context, caller models.Caller, id int64) (*models.MarketingCampaign, error) {
	unlock, err := s.lockCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	campaign, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	if err := s.transition(ctx, campaign, models.CampaignStatusApproved, map[string]interface{}{
		"approved_at": time.Now(),
	}); err != nil {
		return nil, err
	}
	return campaign, nil
}

// Schedule 设置定时发送；已定时的活动可改期，改期会清除扣费失败标记
func (s *CampaignService) Schedule(ctx context.Context, caller models.Caller, id int64, at time.Time) (*models.MarketingCampaign, error) {
	if !at.After(time.Now()) {
		return nil, errors.ErrScheduleInPast
	}
	unlock, err := s.lockCampaign(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	campaign, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}

	fields := map[string]interface{}{
		"scheduled_at":      at,
		"billing_failed_at": nil,
	}
	if campaign.Status == models.CampaignStatusScheduled {
		if err := s.campaignRepo.UpdateFields(ctx, id, fields); err != nil {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		campaign.ScheduledAt = &at
		campaign.BillingFailedAt = nil
		return campaign, nil
	}

	if err := s.transition(ctx, campaign, models.CampaignStatusScheduled, fields); err != nil {
		return nil, err
	}
	campaign.ScheduledAt = &at
	campaign.BillingFailedAt = nil
	return campaign, nil
}

// PreviewCost 按当前收件人计算费用，不扣款
func (s *CampaignService) PreviewCost(ctx context.Context, caller models.Caller, id int64) (*CostPreview, error) {
	campaign, err := s.Get(ctx, caller, id)
	if err != nil {
		return nil, err
	}
	account, err := s.accountOf(ctx, campaign)
	if err != nil {
		return nil, err
	}

	count, err := s.customerRepo.CountRecipients(ctx, s.recipientFilter(campaign, time.Now()))
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	cost, err := s.calculator.Calculate(int(count), campaign.Channel, account.OwnerType)
	if err != nil {
		return nil, err
	}
	return &CostPreview{CampaignID: campaign.ID, Cost: cost, Display: cost.Display()}, nil
}

// EstimateCost 不依赖活动的费用估算
func (s *CampaignService) EstimateCost(req *EstimateCostRequest) (*CostPreview, error) {
	cost, err := s.calculator.Calculate(req.RecipientCount, req.Channel, req.OwnerType)
	if err != nil {
		return nil, err
	}
	return &CostPreview{Cost: cost, Display: cost.Display()}, nil
}

// Send 处理发送请求
func (s *CampaignService) Send(ctx context.Context, caller models.Caller, req *SendCampaignRequest) (*SendCampaignResponse, error) {
	if req.UserID != caller.UserID && !caller.IsAdmin() {
		return nil, errors.ErrCallerMismatch
	}
	campaign, err := s.Get(ctx, caller, req.CampaignID)
	if err != nil {
		return nil, err
	}
	if req.SendTest {
		return s.sendTest(ctx, caller, campaign)
	}
	return s.send(ctx, campaign)
}

// send 扣费后群发：计价 → 扣款 → active → 发送 → completed|failed → 计费记录
func (s *CampaignService) send(ctx context.Context, campaign *models.MarketingCampaign) (*SendCampaignResponse, error) {
	unlock, err := s.lockCampaign(ctx, campaign.ID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	// 以加锁后的状态为准
	current, err := s.campaignRepo.GetByIDWithAccount(ctx, campaign.ID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	campaign = current
	if !models.CanTransition(campaign.Status, models.CampaignStatusActive) {
		return nil, errors.ErrCampaignStatusInvalid
	}

	account, err := s.accountOf(ctx, campaign)
	if err != nil {
		return nil, err
	}
	transport, ok := s.transports[campaign.Channel]
	if !ok || transport == nil {
		return nil, errors.ErrTransportMissing
	}

	recipients, err := s.recipients(ctx, campaign, time.Now())
	if err != nil {
		return nil, err
	}
	if len(recipients) == 0 {
		return nil, errors.ErrZeroRecipients
	}
	cost, err := s.calculator.Calculate(len(recipients), campaign.Channel, account.OwnerType)
	if err != nil {
		return nil, err
	}

	// 扣款完成前不得发送；开始扣款后不再响应调用方取消
	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "campaign.send",
		tracing.WithCampaignID(campaign.ID), tracing.WithChannel(campaign.Channel))
	defer span.End()

	outcome, err := s.billing.Charge(ctx, account, campaign, cost)
	if err != nil {
		tracing.SetError(ctx, err)
		s.markBillingFailed(ctx, campaign, err)
		return nil, err
	}
	tracing.AddEvent(ctx, "charged", tracing.WithOperation("charge"))

	from := campaign.Status
	if err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, from, models.CampaignStatusActive, map[string]interface{}{
		"started_at":        time.Now(),
		"recipient_count":   len(recipients),
		"billing_failed_at": nil,
	}); err != nil {
		s.logger.Error("campaign charged but could not be activated",
			logger.CampaignID(campaign.ID), zap.String("charge_ref", crypto.MaskRef(outcome.ChargeRef)), zap.Error(err))
		s.markChargedNotSent(ctx, campaign, outcome)
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	msg := messaging.Message{
		Subject: utils.SafeString(campaign.Subject),
		Body:    campaign.Content,
		Tags:    map[string]string{"campaign_id": strconv.FormatInt(campaign.ID, 10)},
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	start := time.Now()
	result, sendErr := transport.SendBulk(sendCtx, recipients, msg)
	cancel()
	s.metrics.ObserveExternalCall(campaign.Channel+"_send", time.Since(start))
	if sendErr != nil {
		tracing.SetError(ctx, sendErr)
		result = &messaging.Result{FailedCount: len(recipients), Errors: []string{sendErr.Error()}}
	}
	tracing.SetAttributes(ctx, tracing.WithOperation("bulk_send"))

	status := models.CampaignStatusCompleted
	fields := map[string]interface{}{
		"completed_at": time.Now(),
		"sent_count":   result.SentCount,
		"failed_count": result.FailedCount,
	}
	if result.SentCount == 0 {
		status = models.CampaignStatusFailed
		reason := "no message was delivered"
		if len(result.Errors) > 0 {
			reason = truncate(result.Errors[0], 500)
		}
		fields["failure_reason"] = reason
	}
	if err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, models.CampaignStatusActive, status, fields); err != nil {
		s.logger.Error("update campaign final status failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}
	s.metrics.RecordMessages(campaign.Channel, metrics.ResultSuccess, result.SentCount)
	s.metrics.RecordMessages(campaign.Channel, metrics.ResultFailure, result.FailedCount)

	record, err := s.billing.Record(ctx, campaign, outcome, result)
	if err != nil {
		s.logger.Error("write billing record failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}

	s.logger.Info("campaign sent",
		logger.CampaignID(campaign.ID),
		zap.String("status", status),
		zap.Int("recipients", len(recipients)),
		zap.Int("sent", result.SentCount),
		zap.Int("failed", result.FailedCount),
		logger.Amount(outcome.AmountCharged),
	)

	if status == models.CampaignStatusCompleted {
		s.notify(ctx, campaign, models.NotificationTypeCampaignSent, "Campaign sent",
			fmt.Sprintf("%q was delivered to %d of %d recipients", campaign.Name, result.SentCount, len(recipients)))
	} else {
		s.notify(ctx, campaign, models.NotificationTypeCampaignFailed, "Campaign failed",
			fmt.Sprintf("%q could not be delivered: %s", campaign.Name, fields["failure_reason"]))
	}

	billing := &BillingSummary{
		CampaignCost:  cost,
		Display:       cost.Display(),
		AmountCharged: outcome.AmountCharged.StringFixed(2),
		Skipped:       outcome.Skipped,
		ChargeRef:     crypto.MaskRef(outcome.ChargeRef),
		Note:          outcome.Note,
	}
	if record != nil {
		billing.RecordID = record.ID
	}

	return &SendCampaignResponse{
		Success:    status == models.CampaignStatusCompleted,
		CampaignID: campaign.ID,
		Status:     status,
		Metrics:    metricsOf(len(recipients), result),
		Billing:    billing,
		NextSteps:  nextSteps(status, result),
	}, nil
}

// sendTest 只发给调用者本人，不扣费也不改变活动状态
func (s *CampaignService) sendTest(ctx context.Context, caller models.Caller, campaign *models.MarketingCampaign) (*SendCampaignResponse, error) {
	transport, ok := s.transports[campaign.Channel]
	if !ok || transport == nil {
		return nil, errors.ErrTransportMissing
	}

	user, err := s.userRepo.GetByID(ctx, caller.UserID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNoTestContact
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	contact := user.Phone
	if campaign.Channel == models.CampaignChannelEmail {
		contact = user.Email
	}
	if utils.SafeString(contact) == "" {
		return nil, errors.ErrNoTestContact
	}

	msg := messaging.Message{
		Subject: "[TEST] " + utils.SafeString(campaign.Subject),
		Body:    campaign.Content,
		Tags:    map[string]string{"campaign_id": strconv.FormatInt(campaign.ID, 10), "test": "true"},
	}
	sendCtx, cancel := context.WithTimeout(ctx, s.sendTimeout)
	defer cancel()
	result, err := transport.SendBulk(sendCtx, []string{*contact}, msg)
	if err != nil {
		return nil, errors.ErrMessageSendFailed.WithError(err)
	}
	masked := crypto.MaskPhone(*contact)
	if campaign.Channel == models.CampaignChannelEmail {
		masked = crypto.MaskEmail(*contact)
	}
	s.logger.Info("campaign test message sent",
		logger.CampaignID(campaign.ID), zap.String("contact", masked), zap.Int("sent", result.SentCount))

	steps := []string{"Review the test message, then send the campaign to all recipients"}
	if result.SentCount == 0 {
		steps = []string{"Check your contact details and try the test send again"}
	}
	return &SendCampaignResponse{
		Success:    result.SentCount > 0,
		CampaignID: campaign.ID,
		Status:     campaign.Status,
		Test:       true,
		Metrics:    metricsOf(1, result),
		NextSteps:  steps,
	}, nil
}

// DispatchScheduled 发送所有到期的定时活动，返回成功发送的数量
func (s *CampaignService) DispatchScheduled(ctx context.Context, now time.Time) (int, error) {
	campaigns, err := s.campaignRepo.ListDueScheduled(ctx, now, dispatchBatch)
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}

	sent := 0
	for _, c := range campaigns {
		if err := ctx.Err(); err != nil {
			return sent, err
		}
		resp, err := s.send(ctx, c)
		if err != nil {
			s.logger.Warn("scheduled campaign not sent", logger.CampaignID(c.ID), zap.Error(err))
			continue
		}
		if resp.Success {
			sent++
		}
	}
	return sent, nil
}

// transition 校验并执行状态流转
func (s *CampaignService) transition(ctx context.Context, campaign *models.MarketingCampaign, to string, fields map[string]interface{}) error {
	if !models.CanTransition(campaign.Status, to) {
		return errors.ErrCampaignStatusInvalid
	}
	if err := s.campaignRepo.TransitionStatus(ctx, campaign.ID, campaign.Status, to, fields); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrCampaignStatusInvalid
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	campaign.Status = to
	return nil
}

// lockCampaign 活动级互斥锁，发送与审批、改期互斥
func (s *CampaignService) lockCampaign(ctx context.Context, id int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, cache.BuildKey("campaign:", "send", strconv.FormatInt(id, 10)))
	if err != nil {
		if stderrors.Is(err, cache.ErrLockHeld) {
			return nil, errors.ErrCampaignStatusInvalid.WithMessage("campaign is already being sent")
		}
		return nil, errors.ErrCacheError.WithError(err)
	}
	return unlock, nil
}

// markChargedNotSent 已扣款但未能进入发送：写入零发送的计费记录并挂起定时发送
func (s *CampaignService) markChargedNotSent(ctx context.Context, campaign *models.MarketingCampaign, outcome *ChargeOutcome) {
	if _, err := s.billing.Record(ctx, campaign, outcome, &messaging.Result{}); err != nil {
		s.logger.Error("write billing record for unsent campaign failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}
	reason := "charged but the campaign could not be started; contact support for a refund"
	if err := s.campaignRepo.UpdateFields(ctx, campaign.ID, map[string]interface{}{
		"billing_failed_at": time.Now(),
		"failure_reason":    reason,
	}); err != nil {
		s.logger.Error("flag unsent campaign failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}
	s.notify(ctx, campaign, models.NotificationTypeCampaignFailed, "Campaign not sent",
		fmt.Sprintf("%q was charged %s but not sent: %s", campaign.Name, outcome.AmountCharged.StringFixed(2), reason))
}

// markBillingFailed 扣费失败：状态不变，挂起定时发送直到用户重新发起
func (s *CampaignService) markBillingFailed(ctx context.Context, campaign *models.MarketingCampaign, cause error) {
	reason := truncate(errors.GetAppError(cause).Message, 500)
	if err := s.campaignRepo.UpdateFields(ctx, campaign.ID, map[string]interface{}{
		"billing_failed_at": time.Now(),
		"failure_reason":    reason,
	}); err != nil {
		s.logger.Error("mark campaign billing failure failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}
	s.notify(ctx, campaign, models.NotificationTypeBillingFailed, "Campaign billing failed",
		fmt.Sprintf("%q was not sent: %s", campaign.Name, reason))
}

func (s *CampaignService) accountOf(ctx context.Context, campaign *models.MarketingCampaign) (*models.BillingAccount, error) {
	if campaign.BillingAccount != nil {
		return campaign.BillingAccount, nil
	}
	return s.billing.Account(ctx, models.Caller{UserID: campaign.OwnerID}, campaign.BillingAccountID)
}

func (s *CampaignService) recipientFilter(campaign *models.MarketingCampaign, now time.Time) repository.RecipientFilter {
	return repository.RecipientFilter{
		ShopID:      campaign.ShopID,
		Channel:     campaign.Channel,
		Segment:     campaign.Segment,
		SegmentDays: campaign.SegmentDays,
		Now:         now,
	}
}

// recipients 解析收件地址，丢弃格式错误的地址并去重
func (s *CampaignService) recipients(ctx context.Context, campaign *models.MarketingCampaign, now time.Time) ([]string, error) {
	customers, err := s.customerRepo.ListRecipients(ctx, s.recipientFilter(campaign, now))
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	addresses := make([]string, 0, len(customers))
	malformed := 0
	for _, c := range customers {
		if campaign.Channel == models.CampaignChannelEmail {
			addr := strings.ToLower(strings.TrimSpace(utils.SafeString(c.Email)))
			if !utils.ValidateEmail(addr) {
				malformed++
				continue
			}
			addresses = append(addresses, addr)
		} else {
			phone := strings.TrimSpace(utils.SafeString(c.Phone))
			if !utils.ValidatePhone(phone) {
				malformed++
				continue
			}
			addresses = append(addresses, phone)
		}
	}
	if malformed > 0 {
		s.logger.Warn("skipped malformed recipient addresses",
			logger.CampaignID(campaign.ID), zap.Int("count", malformed))
	}
	return utils.Unique(addresses), nil
}

func (s *CampaignService) notify(ctx context.Context, campaign *models.MarketingCampaign, typ, title, content string) {
	n := &models.Notification{
		UserID:      campaign.OwnerID,
		Type:        typ,
		Title:       title,
		Content:     content,
		RelatedType: utils.StringPtr(models.RelatedTypeCampaign),
		RelatedID:   utils.Int64Ptr(campaign.ID),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Warn("create campaign notification failed", logger.CampaignID(campaign.ID), zap.Error(err))
	}
}

func metricsOf(recipients int, result *messaging.Result) SendMetrics {
	m := SendMetrics{
		RecipientCount: recipients,
		SentCount:      result.SentCount,
		FailedCount:    result.FailedCount,
		Errors:         result.Errors,
	}
	if len(m.Errors) > maxReportedErrors {
		m.Errors = m.Errors[:maxReportedErrors]
	}
	return m
}

func nextSteps(status string, result *messaging.Result) []string {
	switch {
	case status == models.CampaignStatusFailed:
		return []string{"Check the transport configuration and recipient list, then create a new campaign"}
	case result.FailedCount > 0:
		return []string{"Review failed recipients in the delivery report", "Track responses from delivered messages"}
	default:
		return []string{"Track responses from delivered messages"}
	}
}

// truncate 按字符截断，避免切断多字节字符
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
