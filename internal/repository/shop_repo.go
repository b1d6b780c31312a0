package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// ShopRepository 门店仓储
type ShopRepository struct {
	db *gorm.DB
}

// NewShopRepository 创建门店仓储
func NewShopRepository(db *gorm.DB) *ShopRepository {
	return &ShopRepository{db: db}
}

// Create 创建门店
func (r *ShopRepository) Create(ctx context.Context, shop *models.Shop) error {
	return r.db.WithContext(ctx).Create(shop).Error
}

// GetByID 根据 ID 获取门店
func (r *ShopRepository) GetByID(ctx context.Context, id int64) (*models.Shop, error) {
	var shop models.Shop
	err := r.db.WithContext(ctx).First(&shop, id).Error
	if err != nil {
		return nil, err
	}
	return &shop, nil
}

// AddBarber 添加门店理发师，已存在时恢复为在职
func (r *ShopRepository) AddBarber(ctx context.Context, shopID, barberID int64) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.ShopBarber{}).
			Where("shop_id = ? AND barber_id = ?", shopID, barberID).
			Update("status", models.ShopBarberStatusActive)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected > 0 {
			return nil
		}
		return tx.Create(&models.ShopBarber{
			ShopID:   shopID,
			BarberID: barberID,
			Status:   models.ShopBarberStatusActive,
		}).Error
	})
}

// IsMember 理发师是否在门店在职
func (r *ShopRepository) IsMember(ctx context.Context, shopID, barberID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.ShopBarber{}).
		Where("shop_id = ? AND barber_id = ? AND status = ?", shopID, barberID, models.ShopBarberStatusActive).
		Count(&count).Error
	return count > 0, err
}

// ListBarberIDs 获取门店在职理发师 ID 列表
func (r *ShopRepository) ListBarberIDs(ctx context.Context, shopID int64) ([]int64, error) {
	var ids []int64
	err := r.db.WithContext(ctx).Model(&models.ShopBarber{}).
		Where("shop_id = ? AND status = ?", shopID, models.ShopBarberStatusActive).
		Order("barber_id ASC").
		Pluck("barber_id", &ids).Error
	return ids, err
}
