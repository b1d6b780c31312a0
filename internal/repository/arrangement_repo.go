package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// ArrangementRepository 佣金方案仓储
type ArrangementRepository struct {
	db *gorm.DB
}

// NewArrangementRepository 创建佣金方案仓储
func NewArrangementRepository(db *gorm.DB) *ArrangementRepository {
	return &ArrangementRepository{db: db}
}

// GetActive 获取理发师在门店的生效方案
func (r *ArrangementRepository) GetActive(ctx context.Context, barberID, shopID int64) (*models.FinancialArrangement, error) {
	var arrangement models.FinancialArrangement
	err := r.db.WithContext(ctx).
		Where("barber_id = ? AND shop_id = ? AND is_active = ?", barberID, shopID, true).
		First(&arrangement).Error
	if err != nil {
		return nil, err
	}
	return &arrangement, nil
}

// GetByID 根据 ID 获取方案（含已失效）
func (r *ArrangementRepository) GetByID(ctx context.Context, id int64) (*models.FinancialArrangement, error) {
	var arrangement models.FinancialArrangement
	err := r.db.WithContext(ctx).First(&arrangement, id).Error
	if err != nil {
		return nil, err
	}
	return &arrangement, nil
}

// Replace 停用旧方案并创建新方案，二者在同一事务内完成
func (r *ArrangementRepository) Replace(ctx context.Context, arrangement *models.FinancialArrangement) error {
	now := time.Now()
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.FinancialArrangement{}).
			Where("barber_id = ? AND shop_id = ? AND is_active = ?", arrangement.BarberID, arrangement.ShopID, true).
			Updates(map[string]interface{}{
				"is_active":      false,
				"deactivated_at": now,
			}).Error; err != nil {
			return err
		}

		arrangement.ID = 0
		arrangement.IsActive = true
		return tx.Create(arrangement).Error
	})
}

// Deactivate 停用生效方案，不删除历史记录
func (r *ArrangementRepository) Deactivate(ctx context.Context, barberID, shopID int64) error {
	result := r.db.WithContext(ctx).Model(&models.FinancialArrangement{}).
		Where("barber_id = ? AND shop_id = ? AND is_active = ?", barberID, shopID, true).
		Updates(map[string]interface{}{
			"is_active":      false,
			"deactivated_at": time.Now(),
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByShop 获取门店全部生效方案
func (r *ArrangementRepository) ListByShop(ctx context.Context, shopID int64) ([]*models.FinancialArrangement, error) {
	var arrangements []*models.FinancialArrangement
	err := r.db.WithContext(ctx).
		Where("shop_id = ? AND is_active = ?", shopID, true).
		Order("barber_id ASC").
		Find(&arrangements).Error
	return arrangements, err
}

// ListRentBearing 获取所有需要计租的生效方案
func (r *ArrangementRepository) ListRentBearing(ctx context.Context) ([]*models.FinancialArrangement, error) {
	var arrangements []*models.FinancialArrangement
	err := r.db.WithContext(ctx).
		Where("is_active = ? AND type IN ? AND booth_rent_amount > 0", true,
			[]string{models.ArrangementTypeBoothRent, models.ArrangementTypeHybrid}).
		Order("id ASC").
		Find(&arrangements).Error
	return arrangements, err
}
