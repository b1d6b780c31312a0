package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// CampaignRepository 营销活动仓储
type CampaignRepository struct {
	db *gorm.DB
}

// NewCampaignRepository 创建营销活动仓储
func NewCampaignRepository(db *gorm.DB) *CampaignRepository {
	return &CampaignRepository{db: db}
}

// Create 创建营销活动
func (r *CampaignRepository) Create(ctx context.Context, campaign *models.MarketingCampaign) error {
	return r.db.WithContext(ctx).Create(campaign).Error
}

// GetByID 根据 ID 获取营销活动
func (r *CampaignRepository) GetByID(ctx context.Context, id int64) (*models.MarketingCampaign, error) {
	var campaign models.MarketingCampaign
	err := r.db.WithContext(ctx).First(&campaign, id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// GetByIDWithAccount 根据 ID 获取营销活动（包含计费账户）
func (r *CampaignRepository) GetByIDWithAccount(ctx context.Context, id int64) (*models.MarketingCampaign, error) {
	var campaign models.MarketingCampaign
	err := r.db.WithContext(ctx).Preload("BillingAccount").First(&campaign, id).Error
	if err != nil {
		return nil, err
	}
	return &campaign, nil
}

// TransitionStatus 条件更新状态，仅当当前状态为 from 时生效
func (r *CampaignRepository) TransitionStatus(ctx context.Context, id int64, from, to string, fields map[string]interface{}) error {
	updates := map[string]interface{}{"status": to}
	for k, v := range fields {
		updates[k] = v
	}

	result := r.db.WithContext(ctx).Model(&models.MarketingCampaign{}).
		Where("id = ? AND status = ?", id, from).
		Updates(updates)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// UpdateFields 更新营销活动字段
func (r *CampaignRepository) UpdateFields(ctx context.Context, id int64, fields map[string]interface{}) error {
	return r.db.WithContext(ctx).Model(&models.MarketingCampaign{}).
		Where("id = ?", id).
		Updates(fields).Error
}

// ListDueScheduled 获取已到发送时间且未被扣费失败挂起的定时活动
func (r *CampaignRepository) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.MarketingCampaign, error) {
	var campaigns []*models.MarketingCampaign
	err := r.db.WithContext(ctx).
		Where("status = ? AND scheduled_at <= ? AND billing_failed_at IS NULL", models.CampaignStatusScheduled, now).
		Order("scheduled_at ASC").
		Limit(limit).
		Find(&campaigns).Error
	return campaigns, err
}

// ListByOwner 分页获取用户的营销活动
func (r *CampaignRepository) ListByOwner(ctx context.Context, ownerID int64, offset, limit int) ([]*models.MarketingCampaign, int64, error) {
	var campaigns []*models.MarketingCampaign
	var total int64

	query := r.db.WithContext(ctx).Model(&models.MarketingCampaign{}).Where("owner_id = ?", ownerID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&campaigns).Error; err != nil {
		return nil, 0, err
	}
	return campaigns, total, nil
}
