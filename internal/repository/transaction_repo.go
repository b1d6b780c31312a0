package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// BarberShopPair 理发师与门店组合
type BarberShopPair struct {
	BarberID int64
	ShopID   int64
}

// TransactionRepository 佣金流水仓储
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository 创建佣金流水仓储
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// Create 创建流水
func (r *TransactionRepository) Create(ctx context.Context, txn *models.CommissionTransaction) error {
	return r.db.WithContext(ctx).Create(txn).Error
}

// CreateRent 写入租金流水并推进方案的计租时间
func (r *TransactionRepository) CreateRent(ctx context.Context, txn *models.CommissionTransaction, postedAt time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(txn).Error; err != nil {
			return err
		}
		result := tx.Model(&models.FinancialArrangement{}).
			Where("id = ? AND is_active = ?", txn.ArrangementID, true).
			Update("last_rent_posted_at", postedAt)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return nil
	})
}

// GetByID 根据ID获取流水
func (r *TransactionRepository) GetByID(ctx context.Context, id int64) (*models.CommissionTransaction, error) {
	var txn models.CommissionTransaction
	err := r.db.WithContext(ctx).First(&txn, id).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// GetByReference 根据外部引用获取流水
func (r *TransactionRepository) GetByReference(ctx context.Context, reference string) (*models.CommissionTransaction, error) {
	var txn models.CommissionTransaction
	err := r.db.WithContext(ctx).Where("reference = ?", reference).First(&txn).Error
	if err != nil {
		return nil, err
	}
	return &txn, nil
}

// ListPending 获取待打款流水
func (r *TransactionRepository) ListPending(ctx context.Context, barberID, shopID int64) ([]*models.CommissionTransaction, error) {
	var txns []*models.CommissionTransaction
	err := r.db.WithContext(ctx).
		Where("barber_id = ? AND shop_id = ? AND status = ?", barberID, shopID, models.TransactionStatusPending).
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

// ListSettleable 获取未取消的全部流水，用于重算余额
func (r *TransactionRepository) ListSettleable(ctx context.Context, barberID, shopID int64) ([]*models.CommissionTransaction, error) {
	var txns []*models.CommissionTransaction
	err := r.db.WithContext(ctx).
		Select("id", "kind", "amount", "status", "occurred_at").
		Where("barber_id = ? AND shop_id = ? AND status <> ?", barberID, shopID, models.TransactionStatusCancelled).
		Order("id ASC").
		Find(&txns).Error
	return txns, err
}

// ListPairs 获取存在流水的全部理发师门店组合
func (r *TransactionRepository) ListPairs(ctx context.Context) ([]BarberShopPair, error) {
	var pairs []BarberShopPair
	err := r.db.WithContext(ctx).Model(&models.CommissionTransaction{}).
		Distinct("barber_id", "shop_id").
		Order("shop_id ASC, barber_id ASC").
		Scan(&pairs).Error
	return pairs, err
}

// ListByBarber 分页获取理发师在门店的流水
func (r *TransactionRepository) ListByBarber(ctx context.Context, barberID, shopID int64, offset, limit int) ([]*models.CommissionTransaction, int64, error) {
	var txns []*models.CommissionTransaction
	var total int64

	query := r.db.WithContext(ctx).Model(&models.CommissionTransaction{}).
		Where("barber_id = ? AND shop_id = ?", barberID, shopID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&txns).Error; err != nil {
		return nil, 0, err
	}
	return txns, total, nil
}

// Cancel 取消待打款流水
func (r *TransactionRepository) Cancel(ctx context.Context, id int64) error {
	result := r.db.WithContext(ctx).Model(&models.CommissionTransaction{}).
		Where("id = ? AND status = ?", id, models.TransactionStatusPending).
		Update("status", models.TransactionStatusCancelled)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}
