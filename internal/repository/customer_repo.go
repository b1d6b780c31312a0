package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// RecipientFilter 收件人筛选条件
type RecipientFilter struct {
	ShopID      int64
	Channel     string
	Segment     string
	SegmentDays int
	Now         time.Time
}

// CustomerRepository 顾客仓储
type CustomerRepository struct {
	db *gorm.DB
}

// NewCustomerRepository 创建顾客仓储
func NewCustomerRepository(db *gorm.DB) *CustomerRepository {
	return &CustomerRepository{db: db}
}

// Create 创建顾客
func (r *CustomerRepository) Create(ctx context.Context, customer *models.Customer) error {
	return r.db.WithContext(ctx).Create(customer).Error
}

// ListRecipients 获取已订阅渠道且联系方式有效的收件人
func (r *CustomerRepository) ListRecipients(ctx context.Context, f RecipientFilter) ([]*models.Customer, error) {
	var customers []*models.Customer
	err := r.recipientQuery(ctx, f).Order("id ASC").Find(&customers).Error
	return customers, err
}

// CountRecipients 统计收件人数量
func (r *CustomerRepository) CountRecipients(ctx context.Context, f RecipientFilter) (int64, error) {
	var count int64
	err := r.recipientQuery(ctx, f).Count(&count).Error
	return count, err
}

func (r *CustomerRepository) recipientQuery(ctx context.Context, f RecipientFilter) *gorm.DB {
	query := r.db.WithContext(ctx).Model(&models.Customer{}).Where("shop_id = ?", f.ShopID)

	switch f.Channel {
	case models.CampaignChannelEmail:
		query = query.Where("email_opt_in = ? AND email IS NOT NULL AND email <> ''", true)
	case models.CampaignChannelSMS:
		query = query.Where("sms_opt_in = ? AND phone IS NOT NULL AND phone <> ''", true)
	default:
		return query.Where("1 = 0")
	}

	if f.SegmentDays > 0 {
		cutoff := f.Now.AddDate(0, 0, -f.SegmentDays)
		switch f.Segment {
		case models.CampaignSegmentRecent:
			query = query.Where("last_visit_at >= ?", cutoff)
		case models.CampaignSegmentLapsed:
			query = query.Where("last_visit_at < ?", cutoff)
		}
	}
	return query
}
