package repository

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// BalanceRepository 佣金余额仓储（缓存表）
type BalanceRepository struct {
	db *gorm.DB
}

// NewBalanceRepository 创建佣金余额仓储
func NewBalanceRepository(db *gorm.DB) *BalanceRepository {
	return &BalanceRepository{db: db}
}

// Get 获取理发师在门店的余额
func (r *BalanceRepository) Get(ctx context.Context, barberID, shopID int64) (*models.CommissionBalance, error) {
	var balance models.CommissionBalance
	err := r.db.WithContext(ctx).
		Where("barber_id = ? AND shop_id = ?", barberID, shopID).
		First(&balance).Error
	if err != nil {
		return nil, err
	}
	return &balance, nil
}

// Upsert 按 (barber_id, shop_id) 写入余额
func (r *BalanceRepository) Upsert(ctx context.Context, balance *models.CommissionBalance) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "barber_id"}, {Name: "shop_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"pending_amount", "total_earned", "last_transaction_at", "last_payout_at", "updated_at",
		}),
	}).Create(balance).Error
}

// ListPayable 获取门店待打款余额大于零的记录
func (r *BalanceRepository) ListPayable(ctx context.Context, shopID int64) ([]*models.CommissionBalance, error) {
	var balances []*models.CommissionBalance
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND pending_amount > 0", shopID).
		Order("barber_id ASC").
		Find(&balances).Error
	return balances, err
}

// ListByShop 获取门店全部余额
func (r *BalanceRepository) ListByShop(ctx context.Context, shopID int64) ([]*models.CommissionBalance, error) {
	var balances []*models.CommissionBalance
	err := r.db.WithContext(ctx).
		Preload("Barber").
		Where("shop_id = ?", shopID).
		Order("barber_id ASC").
		Find(&balances).Error
	return balances, err
}
