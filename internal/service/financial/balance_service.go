package financial

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/logger"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
)

// maxRentCatchUp 单次最多补记的租金周期数
const maxRentCatchUp = 62

// BalanceService 佣金余额服务，余额始终由流水重算
type BalanceService struct {
	arrangements *ArrangementService
	shopRepo     *repository.ShopRepository
	txnRepo      *repository.TransactionRepository
	balanceRepo  *repository.BalanceRepository
	logger       *zap.Logger
}

// NewBalanceService 创建余额服务
func NewBalanceService(
	arrangements *ArrangementService,
	shopRepo *repository.ShopRepository,
	txnRepo *repository.TransactionRepository,
	balanceRepo *repository.BalanceRepository,
	log *zap.Logger,
) *BalanceService {
	if log == nil {
		log = zap.NewNop()
	}
	return &BalanceService{
		arrangements: arrangements,
		shopRepo:     shopRepo,
		txnRepo:      txnRepo,
		balanceRepo:  balanceRepo,
		logger:       log.Named("balance"),
	}
}

// PostSaleRequest 记录销售请求
type PostSaleRequest struct {
	ShopID      int64           `json:"-"`
	BarberID    int64           `json:"barber_id" binding:"required"`
	Kind        string          `json:"kind" binding:"required,oneof=service product"`
	GrossAmount decimal.Decimal `json:"gross_amount"`
	Reference   string          `json:"reference" binding:"omitempty,max=100"`
	OccurredAt  *time.Time      `json:"occurred_at"`
}

// PostSale 按生效方案计算佣金并写入待打款流水，同一 reference 只记一次
func (s *BalanceService) PostSale(ctx context.Context, caller models.Caller, req *PostSaleRequest) (*models.CommissionTransaction, error) {
	if !req.GrossAmount.IsPositive() {
		return nil, errors.ErrInvalidGrossAmount
	}
	if _, err := authorizeShop(ctx, s.shopRepo, caller, req.ShopID); err != nil {
		return nil, err
	}

	if req.Reference != "" {
		existing, err := s.txnRepo.GetByReference(ctx, req.Reference)
		if err == nil {
			return existing, nil
		}
		if !stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrDatabaseError.WithError(err)
		}
	}

	arrangement, err := s.arrangements.Resolve(ctx, req.BarberID, req.ShopID)
	if err != nil {
		return nil, err
	}
	terms := TermsOf(arrangement)
	rate, err := terms.RateFor(req.Kind)
	if err != nil {
		return nil, err
	}
	amount, err := terms.CommissionFor(req.Kind, req.GrossAmount)
	if err != nil {
		return nil, err
	}

	occurredAt := time.Now()
	if req.OccurredAt != nil {
		occurredAt = *req.OccurredAt
	}
	txn := &models.CommissionTransaction{
		BarberID:      req.BarberID,
		ShopID:        req.ShopID,
		ArrangementID: arrangement.ID,
		Kind:          req.Kind,
		GrossAmount:   req.GrossAmount,
		Rate:          rate,
		Amount:        amount,
		Status:        models.TransactionStatusPending,
		OccurredAt:    occurredAt,
	}
	if req.Reference != "" {
		txn.Reference = utils.StringPtr(req.Reference)
	}

	if err := s.txnRepo.Create(ctx, txn); err != nil {
		// 并发重复提交：唯一索引冲突后返回已存在的流水
		if req.Reference != "" {
			if existing, getErr := s.txnRepo.GetByReference(ctx, req.Reference); getErr == nil {
				return existing, nil
			}
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	if _, err := s.Recompute(ctx, req.BarberID, req.ShopID); err != nil {
		return nil, err
	}
	return txn, nil
}

// PostBoothRent 为到期周期写入负数租金流水，返回写入条数
func (s *BalanceService) PostBoothRent(ctx context.Context, arrangement *models.FinancialArrangement, now time.Time) (int, error) {
	terms := TermsOf(arrangement)
	if !arrangement.IsActive || !terms.BearsRent() {
		return 0, nil
	}

	posted := 0
	last := arrangement.LastRentPostedAt
	for i := 0; i < maxRentCatchUp; i++ {
		due := terms.NextRentDue(last, now)
		if due.After(now) {
			break
		}

		reference := fmt.Sprintf("rent:%d:%s", arrangement.ID, due.Format("2006-01-02"))
		txn := &models.CommissionTransaction{
			BarberID:      arrangement.BarberID,
			ShopID:        arrangement.ShopID,
			ArrangementID: arrangement.ID,
			Kind:          models.TransactionKindBoothRent,
			Reference:     utils.StringPtr(reference),
			Amount:        terms.BoothRentDue().Neg(),
			Status:        models.TransactionStatusPending,
			OccurredAt:    due,
		}
		if err := s.txnRepo.CreateRent(ctx, txn, due); err != nil {
			if _, getErr := s.txnRepo.GetByReference(ctx, reference); getErr == nil {
				// 该周期已由其他实例写入
				break
			}
			return posted, errors.ErrDatabaseError.WithError(err)
		}
		posted++
		last = &due
	}

	if posted > 0 {
		s.logger.Info("booth rent posted",
			logger.BarberID(arrangement.BarberID),
			logger.ShopID(arrangement.ShopID),
			zap.Int("periods", posted),
			logger.Amount(terms.BoothRentDue()),
		)
		if _, err := s.Recompute(ctx, arrangement.BarberID, arrangement.ShopID); err != nil {
			return posted, err
		}
	}
	return posted, nil
}

// PostDueRent 为所有计租方案补记到期租金
func (s *BalanceService) PostDueRent(ctx context.Context, now time.Time) (int, error) {
	arrangements, err := s.arrangements.arrangementRepo.ListRentBearing(ctx)
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}

	total := 0
	var errs []error
	for _, a := range arrangements {
		n, err := s.PostBoothRent(ctx, a, now)
		total += n
		if err != nil {
			s.logger.Error("post booth rent failed", logger.BarberID(a.BarberID), logger.ShopID(a.ShopID), zap.Error(err))
			errs = append(errs, err)
		}
	}
	return total, stderrors.Join(errs...)
}

// Recompute 由流水重算余额并写入缓存
func (s *BalanceService) Recompute(ctx context.Context, barberID, shopID int64) (*models.CommissionBalance, error) {
	txns, err := s.txnRepo.ListSettleable(ctx, barberID, shopID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	balance := summarize(txns)
	balance.BarberID = barberID
	balance.ShopID = shopID

	existing, err := s.balanceRepo.Get(ctx, barberID, shopID)
	switch {
	case err == nil:
		balance.LastPayoutAt = existing.LastPayoutAt
	case !stderrors.Is(err, gorm.ErrRecordNotFound):
		return nil, errors.ErrDatabaseError.WithError(err)
	}

	if err := s.balanceRepo.Upsert(ctx, balance); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return balance, nil
}

// summarize 汇总流水：待打款不为负，累计收入只计正数佣金
// 结转余数只计入待打款，它的来源流水已计入累计收入
func summarize(txns []*models.CommissionTransaction) *models.CommissionBalance {
	pending := decimal.Zero
	earned := decimal.Zero
	var lastAt *time.Time

	for _, t := range txns {
		if t.Status == models.TransactionStatusPending {
			pending = pending.Add(t.Amount)
		}
		if t.Kind == models.TransactionKindCarryover {
			continue
		}
		if t.Amount.IsPositive() {
			earned = earned.Add(t.Amount)
		}
		if lastAt == nil || t.OccurredAt.After(*lastAt) {
			lastAt = utils.TimePtr(t.OccurredAt)
		}
	}
	if pending.IsNegative() {
		pending = decimal.Zero
	}

	return &models.CommissionBalance{
		PendingAmount:     pending,
		TotalEarned:       earned,
		LastTransactionAt: lastAt,
	}
}

// ListBalances 店主查看门店全部余额
func (s *BalanceService) ListBalances(ctx context.Context, caller models.Caller, shopID int64) ([]*models.CommissionBalance, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}
	balances, err := s.balanceRepo.ListByShop(ctx, shopID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return balances, nil
}

// ListPayable 待打款余额大于零的理发师
func (s *BalanceService) ListPayable(ctx context.Context, shopID int64) ([]*models.CommissionBalance, error) {
	balances, err := s.balanceRepo.ListPayable(ctx, shopID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return balances, nil
}

// ListTransactions 分页查看理发师流水
func (s *BalanceService) ListTransactions(ctx context.Context, caller models.Caller, shopID, barberID int64, p *utils.Pagination) ([]*models.CommissionTransaction, int64, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, 0, err
	}
	txns, total, err := s.txnRepo.ListByBarber(ctx, barberID, shopID, p.GetOffset(), p.GetLimit())
	if err != nil {
		return nil, 0, errors.ErrDatabaseError.WithError(err)
	}
	return txns, total, nil
}

// Reconcile 重建全部余额缓存，返回处理的组合数
func (s *BalanceService) Reconcile(ctx context.Context) (int, error) {
	pairs, err := s.txnRepo.ListPairs(ctx)
	if err != nil {
		return 0, errors.ErrDatabaseError.WithError(err)
	}

	var errs []error
	done := 0
	for _, p := range pairs {
		if err := ctx.Err(); err != nil {
			return done, err
		}
		if _, err := s.Recompute(ctx, p.BarberID, p.ShopID); err != nil {
			s.logger.Error("reconcile balance failed", logger.BarberID(p.BarberID), logger.ShopID(p.ShopID), zap.Error(err))
			errs = append(errs, err)
			continue
		}
		done++
	}
	return done, stderrors.Join(errs...)
}
