// Package financial 提供佣金方案、余额与打款服务
package financial

import (
	"context"
	stderrors "errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
)

var hundred = decimal.NewFromInt(100)

// ArrangementService 佣金方案服务
type ArrangementService struct {
	arrangementRepo *repository.ArrangementRepository
	shopRepo        *repository.ShopRepository
	userRepo        *repository.UserRepository
}

// NewArrangementService 创建佣金方案服务
func NewArrangementService(
	arrangementRepo *repository.ArrangementRepository,
	shopRepo *repository.ShopRepository,
	userRepo *repository.UserRepository,
) *ArrangementService {
	return &ArrangementService{
		arrangementRepo: arrangementRepo,
		shopRepo:        shopRepo,
		userRepo:        userRepo,
	}
}

// UpsertArrangementRequest 设置方案请求，BarberID/ShopID 来自路径
type UpsertArrangementRequest struct {
	BarberID             int64           `json:"-"`
	ShopID               int64           `json:"-"`
	Type                 string          `json:"type" binding:"required,oneof=commission booth_rent hybrid"`
	ServiceCommissionPct decimal.Decimal `json:"service_commission_pct"`
	ProductCommissionPct decimal.Decimal `json:"product_commission_pct"`
	BoothRentAmount      decimal.Decimal `json:"booth_rent_amount"`
	BoothRentFrequency   string          `json:"booth_rent_frequency" binding:"omitempty,oneof=daily weekly monthly"`
	PaymentMethod        string          `json:"payment_method" binding:"omitempty,oneof=stripe manual"`
	PaymentFrequency     string          `json:"payment_frequency" binding:"omitempty,oneof=weekly biweekly monthly"`
}

// Resolve 获取理发师在门店的生效方案
func (s *ArrangementService) Resolve(ctx context.Context, barberID, shopID int64) (*models.FinancialArrangement, error) {
	arrangement, err := s.arrangementRepo.GetActive(ctx, barberID, shopID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrArrangementNotConfigured
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return arrangement, nil
}

// Get 店主查看方案
func (s *ArrangementService) Get(ctx context.Context, caller models.Caller, barberID, shopID int64) (*models.FinancialArrangement, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}
	return s.Resolve(ctx, barberID, shopID)
}

// Upsert 设置方案：旧方案停用，新方案生效
func (s *ArrangementService) Upsert(ctx context.Context, caller models.Caller, req *UpsertArrangementRequest) (*models.FinancialArrangement, error) {
	arrangement, err := buildArrangement(req)
	if err != nil {
		return nil, err
	}

	if _, err := authorizeShop(ctx, s.shopRepo, caller, req.ShopID); err != nil {
		return nil, err
	}
	member, err := s.shopRepo.IsMember(ctx, req.ShopID, req.BarberID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !member {
		return nil, errors.ErrBarberNotInShop
	}

	// 租金型方案之间切换时沿用计租时间，避免同一周期重复扣租
	previous, err := s.arrangementRepo.GetActive(ctx, req.BarberID, req.ShopID)
	if err != nil && !stderrors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if previous != nil && TermsOf(previous).BearsRent() && TermsOf(arrangement).BearsRent() {
		arrangement.LastRentPostedAt = previous.LastRentPostedAt
	}

	arrangement.CreatedBy = caller.UserID
	if err := s.arrangementRepo.Replace(ctx, arrangement); err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return arrangement, nil
}

// Deactivate 停用方案，历史记录保留
func (s *ArrangementService) Deactivate(ctx context.Context, caller models.Caller, barberID, shopID int64) error {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return err
	}
	if err := s.arrangementRepo.Deactivate(ctx, barberID, shopID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrArrangementNotConfigured
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// buildArrangement 校验请求并按类型清零无关字段
func buildArrangement(req *UpsertArrangementRequest) (*models.FinancialArrangement, error) {
	if !models.IsValidArrangementType(req.Type) {
		return nil, errors.ErrInvalidArrangementType
	}

	arrangement := &models.FinancialArrangement{
		BarberID:         req.BarberID,
		ShopID:           req.ShopID,
		Type:             req.Type,
		PaymentMethod:    req.PaymentMethod,
		PaymentFrequency: req.PaymentFrequency,
	}
	if arrangement.PaymentMethod == "" {
		arrangement.PaymentMethod = models.PaymentMethodStripe
	}
	if arrangement.PaymentFrequency == "" {
		arrangement.PaymentFrequency = "weekly"
	}

	if req.Type != models.ArrangementTypeBoothRent {
		for _, pct := range []decimal.Decimal{req.ServiceCommissionPct, req.ProductCommissionPct} {
			if pct.IsNegative() || pct.GreaterThan(hundred) {
				return nil, errors.ErrPercentageOutOfRange
			}
		}
		arrangement.ServiceCommissionPct = req.ServiceCommissionPct
		arrangement.ProductCommissionPct = req.ProductCommissionPct
	}

	if req.Type != models.ArrangementTypeCommission {
		if req.BoothRentAmount.IsNegative() {
			return nil, errors.ErrNegativeBoothRent
		}
		if req.BoothRentAmount.IsPositive() {
			if !models.IsValidRentFrequency(req.BoothRentFrequency) {
				return nil, errors.ErrInvalidFrequency
			}
			freq := req.BoothRentFrequency
			arrangement.BoothRentFrequency = &freq
		}
		arrangement.BoothRentAmount = req.BoothRentAmount
	}

	return arrangement, nil
}

// Terms 方案的计算视图，按类型屏蔽无关字段
type Terms struct {
	Type        string
	ServiceRate decimal.Decimal // 小数形式，40% 为 0.4
	ProductRate decimal.Decimal
	BoothRent   decimal.Decimal
	Frequency   string
}

// TermsOf 由方案得到计算视图
func TermsOf(a *models.FinancialArrangement) Terms {
	t := Terms{Type: a.Type}
	if a.Type == models.ArrangementTypeCommission || a.Type == models.ArrangementTypeHybrid {
		t.ServiceRate = a.ServiceCommissionPct.Div(hundred)
		t.ProductRate = a.ProductCommissionPct.Div(hundred)
	}
	if a.Type == models.ArrangementTypeBoothRent || a.Type == models.ArrangementTypeHybrid {
		t.BoothRent = a.BoothRentAmount
		if a.BoothRentFrequency != nil {
			t.Frequency = *a.BoothRentFrequency
		}
	}
	return t
}

// RateFor 返回销售类型对应的佣金比例
func (t Terms) RateFor(kind string) (decimal.Decimal, error) {
	switch kind {
	case models.TransactionKindService:
		return t.ServiceRate, nil
	case models.TransactionKindProduct:
		return t.ProductRate, nil
	}
	return decimal.Zero, errors.ErrInvalidSaleKind
}

// CommissionFor 计算一笔销售的佣金，保留 4 位小数
func (t Terms) CommissionFor(kind string, gross decimal.Decimal) (decimal.Decimal, error) {
	rate, err := t.RateFor(kind)
	if err != nil {
		return decimal.Zero, err
	}
	return gross.Mul(rate).Round(4), nil
}

// BoothRentDue 每个周期应扣的租金
func (t Terms) BoothRentDue() decimal.Decimal {
	return t.BoothRent
}

// BearsRent 是否需要计租
func (t Terms) BearsRent() bool {
	return t.BoothRent.IsPositive() && models.IsValidRentFrequency(t.Frequency)
}

// NextRentDue 下一次计租时间，从未计租时立即到期
func (t Terms) NextRentDue(last *time.Time, now time.Time) time.Time {
	if last == nil {
		return now
	}
	switch t.Frequency {
	case models.RentFrequencyDaily:
		return last.AddDate(0, 0, 1)
	case models.RentFrequencyMonthly:
		return last.AddDate(0, 1, 0)
	default:
		return last.AddDate(0, 0, 7)
	}
}

// AddBarber 店主把理发师加入门店，重复加入时恢复在职
func (s *ArrangementService) AddBarber(ctx context.Context, caller models.Caller, shopID, barberID int64) error {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return err
	}
	user, err := s.userRepo.GetByID(ctx, barberID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrNotFound.WithMessage("barber not found")
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	if user.Type != models.UserTypeBarber {
		return errors.ErrInvalidParams.WithMessage("user is not a barber")
	}
	if err := s.shopRepo.AddBarber(ctx, shopID, barberID); err != nil {
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}

// ListBarbers 门店在职理发师
func (s *ArrangementService) ListBarbers(ctx context.Context, caller models.Caller, shopID int64) ([]int64, error) {
	if _, err := authorizeShop(ctx, s.shopRepo, caller, shopID); err != nil {
		return nil, err
	}
	ids, err := s.shopRepo.ListBarberIDs(ctx, shopID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return ids, nil
}

// authorizeShop 校验调用者为门店所有者或平台管理员
func authorizeShop(ctx context.Context, shopRepo *repository.ShopRepository, caller models.Caller, shopID int64) (*models.Shop, error) {
	shop, err := shopRepo.GetByID(ctx, shopID)
	if err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.ErrShopNotFound
		}
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	if !caller.IsAdmin() && shop.OwnerID != caller.UserID {
		return nil, errors.ErrNotShopOwner
	}
	return shop, nil
}
