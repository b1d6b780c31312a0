package financial

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
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
	"github.com/dumeirei/barbershop-backend/pkg/payment"
)

// 打款动作
const (
	PayoutActionProcessSingle = "process_single"
	PayoutActionProcessAll    = "process_all"
)

// payoutAccountPrefix Stripe 连接账户前缀
const payoutAccountPrefix = "acct_"

// 单个理发师的打款结果
const (
	PayoutItemSuccess = "success"
	PayoutItemFailure = "failure"
	PayoutItemSkipped = "skipped"
)

// Locker 理发师级互斥锁
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// PayoutService 佣金打款服务
type PayoutService struct {
	shopRepo         *repository.ShopRepository
	userRepo         *repository.UserRepository
	txnRepo          *repository.TransactionRepository
	payoutRepo       *repository.PayoutRepository
	notificationRepo *repository.NotificationRepository
	balances         *BalanceService
	transferer       payment.Transferer
	locker           Locker
	cipher           *crypto.AES
	metrics          *metrics.Metrics
	cfg              config.PayoutConfig
	logger           *zap.Logger
}

// PayoutDeps 打款服务依赖
type PayoutDeps struct {
	ShopRepo         *repository.ShopRepository
	UserRepo         *repository.UserRepository
	TxnRepo          *repository.TransactionRepository
	PayoutRepo       *repository.PayoutRepository
	NotificationRepo *repository.NotificationRepository
	Balances         *BalanceService
	Transferer       payment.Transferer
	Locker           Locker
	Cipher           *crypto.AES // 为 nil 时收款账户按明文读取
	Metrics          *metrics.Metrics
	Logger           *zap.Logger
}

// NewPayoutService 创建打款服务
func NewPayoutService(deps PayoutDeps, cfg config.PayoutConfig) *PayoutService {
	if cfg.MaxConcurrency < 1 {
		cfg.MaxConcurrency = 1
	}
	if cfg.Currency == "" {
		cfg.Currency = "usd"
	}
	if cfg.TransferTimeoutSeconds <= 0 {
		cfg.TransferTimeoutSeconds = 30
	}
	log := deps.Logger
	if log == nil {
		log = zap.NewNop()
	}
	return &PayoutService{
		shopRepo:         deps.ShopRepo,
		userRepo:         deps.UserRepo,
		txnRepo:          deps.TxnRepo,
		payoutRepo:       deps.PayoutRepo,
		notificationRepo: deps.NotificationRepo,
		balances:         deps.Balances,
		transferer:       deps.Transferer,
		locker:           deps.Locker,
		cipher:           deps.Cipher,
		metrics:          deps.Metrics,
		cfg:              cfg,
		logger:           log.Named("payout"),
	}
}

// PayoutRequest 打款请求，process_single 必须指定理发师
type PayoutRequest struct {
	ShopID   int64  `json:"-"`
	Action   string `json:"action" binding:"required,oneof=process_single process_all"`
	BarberID int64  `json:"barber_id" binding:"required_if=Action process_single"`
}

// Validate 校验动作与参数组合
func (r *PayoutRequest) Validate() error {
	switch r.Action {
	case PayoutActionProcessSingle:
		if r.BarberID <= 0 {
			return errors.ErrInvalidPayoutAction.WithMessage("barber_id is required for process_single")
		}
	case PayoutActionProcessAll:
	default:
		return errors.ErrInvalidPayoutAction
	}
	return nil
}

// PreviewItem 预览中的单个理发师
type PreviewItem struct {
	BarberID         int64           `json:"barber_id"`
	Amount           decimal.Decimal `json:"amount"`
	HasPayoutAccount bool            `json:"has_payout_account"`
}

// PayoutPreview 确认前的打款预览
type PayoutPreview struct {
	Items []PreviewItem     `json:"items"`
	Total decimal.Decimal `json:"total"`
}

// PayoutItem 单个理发师的打款结果
type PayoutItem struct {
	BarberID int64           `json:"barber_id"`
	Amount   decimal.Decimal `json:"amount"`
	Status   string          `json:"status"`
	PayoutNo string          `json:"payout_no,omitempty"`
	Reason   string          `json:"reason,omitempty"`
}

// PayoutResult 打款汇总，部分失败不视为整体失败
type PayoutResult struct {
	Processed int             `json:"processed"`
	Errors    int             `json:"errors"`
	Skipped   int             `json:"skipped"`
	TotalPaid decimal.Decimal `json:"total_paid"`
	Items     []PayoutItem    `json:"items"`
}

func (r *PayoutResult) add(item PayoutItem) {
	switch item.Status {
	case PayoutItemSuccess:
		r.Processed++
		r.TotalPaid = r.TotalPaid.Add(item.Amount)
	case PayoutItemSkipped:
		r.Skipped++
	default:
		r.Errors++
	}
	r.Items = append(r.Items, item)
}

// Preview 计算待打款金额，不产生任何副作用
func (s *PayoutService) Preview(ctx context.Context, caller models.Caller, req *PayoutRequest) (*PayoutPreview, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if _, err := authorizeShop(ctx, s.shopRepo, caller, req.ShopID); err != nil {
		return nil, err
	}

	var balances []*models.CommissionBalance
	if req.Action == PayoutActionProcessSingle {
		txns, err := s.txnRepo.ListSettleable(ctx, req.BarberID, req.ShopID)
		if err != nil {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		b := summarize(txns)
		b.BarberID = req.BarberID
		balances = append(balances, b)
	} else {
		var err error
		if balances, err = s.balances.ListPayable(ctx, req.ShopID); err != nil {
			return nil, err
		}
	}

	preview := &PayoutPreview{Items: make([]PreviewItem, 0, len(balances)), Total: decimal.Zero}
	for _, b := range balances {
		amount := b.PendingAmount.Truncate(2)
		if !amount.IsPositive() {
			continue
		}
		user, err := s.userRepo.GetByID(ctx, b.BarberID)
		if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
		preview.Items = append(preview.Items, PreviewItem{
			BarberID:         b.BarberID,
			Amount:           amount,
			HasPayoutAccount: user != nil && utils.SafeString(user.PayoutAccountEncrypted) != "",
		})
		preview.Total = preview.Total.Add(amount)
	}
	return preview, nil
}

// Execute 按动作执行打款
func (s *PayoutService) Execute(ctx context.Context, caller models.Caller, req *PayoutRequest) (*PayoutResult, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}
	if req.Action == PayoutActionProcessSingle {
		return s.ProcessSingle(ctx, caller, req.ShopID, req.BarberID)
	}
	return s.ProcessAll(ctx, caller, req.ShopID)
}

// ProcessSingle 为单个理发师打款；转账失败记入结果而非返回错误
func (s *PayoutService) ProcessSingle(ctx context.Context, caller models.Caller, shopID, barberID int64) (*PayoutResult, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}

	// 开始处理后不再响应调用方取消
	ctx = context.WithoutCancel(ctx)
	item, err := s.payOne(ctx, caller, shopID, barberID, models.PayoutTriggerSingle)
	if err != nil && !stderrors.Is(err, errors.ErrPayoutTransferFail) {
		return nil, err
	}

	result := &PayoutResult{TotalPaid: decimal.Zero}
	result.add(item)
	return result, nil
}

// ProcessAll 为门店所有待打款理发师打款，单人失败不影响其他人
func (s *PayoutService) ProcessAll(ctx context.Context, caller models.Caller, shopID int64) (*PayoutResult, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}

	targets, err := s.balances.ListPayable(ctx, shopID)
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	ctx, span := tracing.StartSpan(ctx, "payout.process_all",
		tracing.WithShopID(shopID), tracing.WithUserID(caller.UserID))
	defer span.End()

	items := make([]PayoutItem, len(targets))
	var g errgroup.Group
	g.SetLimit(s.cfg.MaxConcurrency)
	for i, target := range targets {
		g.Go(func() error {
			item, err := s.payOne(ctx, caller, shopID, target.BarberID, models.PayoutTriggerBulk)
			if err != nil && item.Status == "" {
				item = PayoutItem{BarberID: target.BarberID, Amount: target.PendingAmount.Truncate(2), Status: PayoutItemFailure, Reason: reasonOf(err)}
				if stderrors.Is(err, errors.ErrNothingToPay) {
					item.Status = PayoutItemSkipped
				}
			}
			items[i] = item
			return nil
		})
	}
	_ = g.Wait()

	result := &PayoutResult{TotalPaid: decimal.Zero, Items: make([]PayoutItem, 0, len(items))}
	for _, item := range items {
		result.add(item)
	}

	s.logger.Info("bulk payout finished",
		logger.ShopID(shopID),
		zap.Int("processed", result.Processed),
		zap.Int("errors", result.Errors),
		zap.Int("skipped", result.Skipped),
		logger.Amount(result.TotalPaid),
	)
	return result, nil
}

// payOne 在理发师锁内完成一次打款尝试
func (s *PayoutService) payOne(ctx context.Context, caller models.Caller, shopID, barberID int64, trigger string) (PayoutItem, error) {
	ctx, span := tracing.StartSpan(ctx, "payout.execute",
		tracing.WithShopID(shopID), tracing.WithBarberID(barberID))
	defer span.End()

	unlock, err := s.lockBarber(ctx, barberID)
	if err != nil {
		return PayoutItem{}, err
	}
	defer unlock()

	// 上一笔打款未结束（可能已转出但未落库）时不得再次转账
	unsettled, err := s.payoutRepo.HasPending(ctx, barberID, shopID)
	if err != nil {
		return PayoutItem{}, errors.ErrDatabaseError.WithError(err)
	}
	if unsettled {
		return PayoutItem{}, errors.ErrPayoutUnreconciled
	}

	// 金额与结清的流水来自同一次查询，期间新增的销售留待下次打款
	txns, err := s.txnRepo.ListPending(ctx, barberID, shopID)
	if err != nil {
		return PayoutItem{}, errors.ErrDatabaseError.WithError(err)
	}
	pending := summarize(txns).PendingAmount
	amount := pending.Truncate(2)
	cents := payment.ToCents(amount)
	if cents <= 0 {
		s.metrics.RecordPayout(metrics.ResultSkipped, decimal.Zero)
		return PayoutItem{}, errors.ErrNothingToPay
	}

	destination, err := s.payoutAccount(ctx, barberID)
	if err != nil {
		return PayoutItem{}, err
	}

	payout := &models.Payout{
		PayoutNo:    utils.GenerateSerialNo("PO"),
		BarberID:    barberID,
		ShopID:      shopID,
		Amount:      amount,
		Currency:    s.cfg.Currency,
		Status:      models.PayoutStatusPending,
		Trigger:     trigger,
		RequestedBy: caller.UserID,
	}
	if err := s.payoutRepo.Create(ctx, payout); err != nil {
		return PayoutItem{}, errors.ErrDatabaseError.WithError(err)
	}
	span.SetAttributes(tracing.WithPayoutNo(payout.PayoutNo))
	item := PayoutItem{BarberID: barberID, Amount: amount, PayoutNo: payout.PayoutNo}

	transferCtx, cancel := context.WithTimeout(ctx, s.cfg.TransferTimeout())
	start := time.Now()
	res, err := s.transferer.Transfer(transferCtx, destination, cents, map[string]string{
		"payout_no": payout.PayoutNo,
		"barber_id": strconv.FormatInt(barberID, 10),
		"shop_id":   strconv.FormatInt(shopID, 10),
	}, "payout-"+payout.PayoutNo)
	cancel()
	s.metrics.ObserveExternalCall("stripe_transfer", time.Since(start))

	now := time.Now()
	if err != nil {
		reason := reasonOf(err)
		if stderrors.Is(err, context.DeadlineExceeded) {
			reason = "transfer timed out"
		}
		tracing.SetError(ctx, err)
		if markErr := s.payoutRepo.MarkFailure(ctx, payout.ID, reason, now); markErr != nil {
			s.logger.Error("mark payout failure failed", logger.PayoutNo(payout.PayoutNo), zap.Error(markErr))
		}
		s.notify(ctx, barberID, models.NotificationTypePayoutFailure, "Payout failed",
			fmt.Sprintf("Payout %s of %s %s failed: %s", payout.PayoutNo, amount.StringFixed(2), s.cfg.Currency, reason), payout.ID)
		s.metrics.RecordPayout(metrics.ResultFailure, amount)
		s.logger.Warn("payout transfer failed",
			logger.PayoutNo(payout.PayoutNo), logger.BarberID(barberID), logger.ShopID(shopID),
			logger.Amount(amount), zap.String("reason", reason))

		item.Status = PayoutItemFailure
		item.Reason = reason
		return item, errors.ErrPayoutTransferFail.WithError(err)
	}

	ids := make([]int64, 0, len(txns))
	for _, t := range txns {
		ids = append(ids, t.ID)
	}
	carry := carryover(txns, pending.Sub(amount), payout.PayoutNo, now)
	if err := s.payoutRepo.CompleteSuccess(ctx, payout, ids, carry, res.TransferRef, now); err != nil {
		// 资金已转出但落库失败，打款单停留在 pending 等待人工对账
		s.logger.Error("payout transferred but not recorded",
			logger.PayoutNo(payout.PayoutNo), logger.BarberID(barberID), zap.String("transfer_ref", res.TransferRef), zap.Error(err))
		item.Status = PayoutItemFailure
		item.Reason = "transfer succeeded but recording failed"
		return item, errors.ErrDatabaseError.WithError(err)
	}
	if _, err := s.balances.Recompute(ctx, barberID, shopID); err != nil {
		s.logger.Warn("recompute after payout failed", logger.BarberID(barberID), zap.Error(err))
	}

	s.notify(ctx, barberID, models.NotificationTypePayoutSuccess, "Payout sent",
		fmt.Sprintf("Payout %s of %s %s has been sent", payout.PayoutNo, amount.StringFixed(2), s.cfg.Currency), payout.ID)
	s.metrics.RecordPayout(metrics.ResultSuccess, amount)
	s.logger.Info("payout succeeded",
		logger.PayoutNo(payout.PayoutNo), logger.BarberID(barberID), logger.ShopID(shopID),
		logger.Amount(amount), zap.String("transfer_ref", crypto.MaskRef(res.TransferRef)))

	item.Status = PayoutItemSuccess
	return item, nil
}

// carryover 打款只付到分，余数作为新的待打款流水结转
func carryover(txns []*models.CommissionTransaction, remainder decimal.Decimal, payoutNo string, at time.Time) *models.CommissionTransaction {
	if remainder.IsZero() || len(txns) == 0 {
		return nil
	}
	last := txns[len(txns)-1]
	return &models.CommissionTransaction{
		BarberID:      last.BarberID,
		ShopID:        last.ShopID,
		ArrangementID: last.ArrangementID,
		Kind:          models.TransactionKindCarryover,
		Reference:     utils.StringPtr("carry-" + payoutNo),
		Amount:        remainder,
		Status:        models.TransactionStatusPending,
		OccurredAt:    at,
	}
}

// lockBarber 获取理发师锁，打款与作废流水互斥
func (s *PayoutService) lockBarber(ctx context.Context, barberID int64) (func(), error) {
	unlock, err := s.locker.Lock(ctx, cache.BuildKey(cache.KeyPrefixPayout, "barber", strconv.FormatInt(barberID, 10)))
	if err != nil {
		if stderrors.Is(err, cache.ErrLockHeld) {
			return nil, errors.ErrPayoutInProgress
		}
		return nil, errors.ErrCacheError.WithError(err)
	}
	return unlock, nil
}

// payoutAccount 读取并解密理发师的收款账户
func (s *PayoutService) payoutAccount(ctx context.Context, barberID int64) (string, error) {
	user, err := s.userRepo.GetByID(ctx, barberID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return "", errors.ErrPayoutAccountAbsent
		}
		return "", errors.ErrDatabaseError.WithError(err)
	}
	stored := utils.SafeString(user.PayoutAccountEncrypted)
	if stored == "" {
		return "", errors.ErrPayoutAccountAbsent
	}
	if s.cipher == nil {
		return stored, nil
	}
	account, err := s.cipher.Decrypt(stored)
	if err != nil {
		return "", errors.ErrPayoutAccountAbsent.WithError(err)
	}
	return account, nil
}

// notify 写入审计通知，失败只记录日志
func (s *PayoutService) notify(ctx context.Context, userID int64, typ, title, content string, payoutID int64) {
	n := &models.Notification{
		UserID:      userID,
		Type:        typ,
		Title:       title,
		Content:     content,
		RelatedType: utils.StringPtr(models.RelatedTypePayout),
		RelatedID:   utils.Int64Ptr(payoutID),
	}
	if err := s.notificationRepo.Create(ctx, n); err != nil {
		s.logger.Warn("create payout notification failed", logger.UserID(userID), zap.Error(err))
	}
}

// History 分页查看门店打款记录
func (s *PayoutService) History(ctx context.Context, caller models.Caller, shopID int64, barberID *int64, p *utils.Pagination) ([]*models.Payout, int64, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, 0, err
	}
	payouts, total, err := s.payoutRepo.ListByShop(ctx, shopID, barberID, p.GetOffset(), p.GetLimit())
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return payouts, total, nil
}

// Get 按打款单号查询门店的打款记录
func (s *PayoutService) Get(ctx context.Context, caller models.Caller, shopID int64, payoutNo string) (*models.Payout, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}
	payout, err := s.payoutRepo.GetByPayoutNo(ctx, payoutNo)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrPayoutNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if payout.ShopID != shopID {
		return nil, errors.ErrPayoutNotFound
	}
	return payout, nil
}

// SetPayoutAccount 理发师绑定自己的收款账户，加密后保存
func (s *PayoutService) SetPayoutAccount(ctx context.Context, caller models.Caller, account string) error {
	if caller.UserType != models.UserTypeBarber {
		return errors.ErrPermissionDenied.WithMessage("only barbers can set a payout account")
	}
	account = strings.TrimSpace(account)
	if !strings.HasPrefix(account, payoutAccountPrefix) || len(account) == len(payoutAccountPrefix) {
		return errors.ErrInvalidPayoutAccount
	}

	stored := account
	if s.cipher != nil {
		enc, err := s.cipher.Encrypt(account)
		if err != nil {
			return errors.ErrInternalError.WithError(err)
		}
		stored = enc
	}
	if err := s.userRepo.UpdatePayoutAccount(ctx, caller.UserID, stored); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrNotFound.WithMessage("user not found")
		}
		return errors.ErrDatabaseError.WithError(err)
	}

	s.logger.Info("payout account updated",
		logger.BarberID(caller.UserID), zap.String("account", crypto.MaskRef(account)))
	return nil
}

// VoidTransaction 作废一笔待打款流水并刷新余额
func (s *PayoutService) VoidTransaction(ctx context.Context, caller models.Caller, shopID, txnID int64) (*models.CommissionBalance, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}
	txn, err := s.txnRepo.GetByID(ctx, txnID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrNotFound.WithMessage("transaction not found")
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if txn.ShopID != shopID {
		return nil, errors.ErrNotFound.WithMessage("transaction not found")
	}

	unlock, err := s.lockBarber(ctx, txn.BarberID)
	if err != nil {
		return nil, err
	}
	defer unlock()

	if err := s.txnRepo.Cancel(ctx, txn.ID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrTransactionSettled
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	s.logger.Info("transaction voided",
		logger.BarberID(txn.BarberID), logger.ShopID(shopID),
		zap.Int64("transaction_id", txn.ID), logger.Amount(txn.Amount), logger.UserID(caller.UserID))

	return s.balances.Recompute(ctx, txn.BarberID, shopID)
}

// reasonOf 取面向用户的失败原因
func reasonOf(err error) string {
	if appErr := errors.GetAppError(err); appErr.Code != errors.ErrUnknown.Code {
		return appErr.Message
	}
	return err.Error()
}
