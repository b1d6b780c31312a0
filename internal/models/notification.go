package models

import (
	"time"
)

// Notification 审计通知
type Notification struct {
	ID          int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      int64     `gorm:"index;not null" json:"user_id"`
	Type        string    `gorm:"type:varchar(30);not null" json:"type"`
	Title       string    `gorm:"type:varchar(100);not null" json:"title"`
	Content     string    `gorm:"type:text;not null" json:"content"`
	RelatedType *string   `gorm:"type:varchar(30)" json:"related_type,omitempty"`
	RelatedID   *int64    `json:"related_id,omitempty"`
	IsRead      bool      `gorm:"not null;default:false" json:"is_read"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (Notification) TableName() string {
	return "notifications"
}

// NotificationType 通知类型
const (
	NotificationTypePayoutSuccess  = "payout_success"
	NotificationTypePayoutFailure  = "payout_failure"
	NotificationTypeCampaignSent   = "campaign_sent"
	NotificationTypeCampaignFailed = "campaign_failed"
	NotificationTypeBillingFailed  = "billing_failed"
)

// NotificationRelated 通知关联对象
const (
	RelatedTypePayout   = "payout"
	RelatedTypeCampaign = "campaign"
)

// All 返回需要迁移的全部模型
func All() []interface{} {
	return []interface{}{
		&User{},
		&Shop{},
		&ShopBarber{},
		&FinancialArrangement{},
		&CommissionTransaction{},
		&CommissionBalance{},
		&Payout{},
		&Notification{},
		&Customer{},
		&MarketingCampaign{},
		&BillingAccount{},
		&BillingRecord{},
	}
}
