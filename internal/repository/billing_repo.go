package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// BillingRepository 计费账户与计费记录仓储
type BillingRepository struct {
	db *gorm.DB
}

// NewBillingRepository 创建计费仓储
func NewBillingRepository(db *gorm.DB) *BillingRepository {
	return &BillingRepository{db: db}
}

// CreateAccount 创建计费账户
func (r *BillingRepository) CreateAccount(ctx context.Context, account *models.BillingAccount) error {
	return r.db.WithContext(ctx).Create(account).Error
}

// GetAccountByID 根据 ID 获取计费账户
func (r *BillingRepository) GetAccountByID(ctx context.Context, id int64) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).First(&account, id).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// GetAccountByOwner 根据所有者获取计费账户
func (r *BillingRepository) GetAccountByOwner(ctx context.Context, ownerID int64, ownerType string) (*models.BillingAccount, error) {
	var account models.BillingAccount
	err := r.db.WithContext(ctx).
		Where("owner_id = ? AND owner_type = ?", ownerID, ownerType).
		First(&account).Error
	if err != nil {
		return nil, err
	}
	return &account, nil
}

// CreateRecord 写入计费记录，记录写入后不可修改
func (r *BillingRepository) CreateRecord(ctx context.Context, record *models.BillingRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

// ListRecordsByAccount 分页获取计费账户的计费记录
func (r *BillingRepository) ListRecordsByAccount(ctx context.Context, accountID int64, offset, limit int) ([]*models.BillingRecord, int64, error) {
	var records []*models.BillingRecord
	var total int64

	query := r.db.WithContext(ctx).Model(&models.BillingRecord{}).Where("billing_account_id = ?", accountID)
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&records).Error; err != nil {
		return nil, 0, err
	}
	return records, total, nil
}

// ListRecordsByCampaign 获取营销活动的计费记录
func (r *BillingRepository) ListRecordsByCampaign(ctx context.Context, campaignID int64) ([]*models.BillingRecord, error) {
	var records []*models.BillingRecord
	err := r.db.WithContext(ctx).
		Where("campaign_id = ?", campaignID).
		Order("id ASC").
		Find(&records).Error
	return records, err
}
