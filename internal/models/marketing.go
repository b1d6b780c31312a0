package models

import (
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer 门店顾客（营销活动收件人）
type Customer struct {
	ID          int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	ShopID      int64      `gorm:"index;not null" json:"shop_id"`
	Name        string     `gorm:"type:varchar(100);not null;default:''" json:"name"`
	Email       *string    `gorm:"type:varchar(255)" json:"email,omitempty"`
	Phone       *string    `gorm:"type:varchar(20)" json:"phone,omitempty"`
	EmailOptIn  bool       `gorm:"not null;default:false" json:"email_opt_in"`
	SMSOptIn    bool       `gorm:"column:sms_opt_in;not null;default:false" json:"sms_opt_in"`
	LastVisitAt *time.Time `gorm:"index" json:"last_visit_at,omitempty"`
	CreatedAt   time.Time  `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (Customer) TableName() string {
	return "customers"
}

// MarketingCampaign 营销活动
type MarketingCampaign struct {
	ID               int64      `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID          int64      `gorm:"index;not null" json:"owner_id"`
	ShopID           int64      `gorm:"index;not null" json:"shop_id"`
	BillingAccountID int64      `gorm:"index;not null" json:"billing_account_id"`
	Name             string     `gorm:"type:varchar(100);not null" json:"name"`
	Channel          string     `gorm:"type:varchar(10);not null" json:"channel"`
	Subject          *string    `gorm:"type:varchar(200)" json:"subject,omitempty"`
	Content          string     `gorm:"type:text;not null" json:"content"`
	Segment          string     `gorm:"type:varchar(20);not null;default:'all'" json:"segment"`
	SegmentDays      int        `gorm:"not null;default:0" json:"segment_days"`
	Status           string     `gorm:"type:varchar(20);index;not null;default:'draft'" json:"status"`
	ScheduledAt      *time.Time `gorm:"index" json:"scheduled_at,omitempty"`
	ApprovedAt       *time.Time `json:"approved_at,omitempty"`
	StartedAt        *time.Time `json:"started_at,omitempty"`
	CompletedAt      *time.Time `json:"completed_at,omitempty"`
	BillingFailedAt  *time.Time `json:"billing_failed_at,omitempty"`
	RecipientCount   int        `gorm:"not null;default:0" json:"recipient_count"`
	SentCount        int        `gorm:"not null;default:0" json:"sent_count"`
	FailedCount      int        `gorm:"not null;default:0" json:"failed_count"`
	FailureReason    *string    `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	BillingAccount *BillingAccount `gorm:"foreignKey:BillingAccountID" json:"billing_account,omitempty"`
}

// TableName 表名
func (MarketingCampaign) TableName() string {
	return "marketing_campaigns"
}

// CampaignChannel 活动渠道
const (
	CampaignChannelEmail = "email"
	CampaignChannelSMS   = "sms"
)

// CampaignSegment 收件人分群
const (
	CampaignSegmentAll    = "all"    // 全部顾客
	CampaignSegmentRecent = "recent" // 最近 N 天到店
	CampaignSegmentLapsed = "lapsed" // 超过 N 天未到店
)

// CampaignStatus 活动状态
const (
	CampaignStatusDraft     = "draft"
	CampaignStatusApproved  = "approved"
	CampaignStatusScheduled = "scheduled"
	CampaignStatusActive    = "active"
	CampaignStatusCompleted = "completed"
	CampaignStatusFailed    = "failed"
)

// campaignTransitions 允许的状态流转，只能前进，failed 与 completed 为终态
var campaignTransitions = map[string][]string{
	CampaignStatusDraft:     {CampaignStatusApproved, CampaignStatusScheduled},
	CampaignStatusApproved:  {CampaignStatusScheduled, CampaignStatusActive},
	CampaignStatusScheduled: {CampaignStatusActive},
	CampaignStatusActive:    {CampaignStatusCompleted, CampaignStatusFailed},
}

// CanTransition 判断活动状态能否从 from 流转到 to
func CanTransition(from, to string) bool {
	for _, next := range campaignTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsValidChannel 是否为合法渠道
func IsValidChannel(ch string) bool {
	return ch == CampaignChannelEmail || ch == CampaignChannelSMS
}

// IsValidSegment 是否为合法分群
func IsValidSegment(s string) bool {
	switch s {
	case CampaignSegmentAll, CampaignSegmentRecent, CampaignSegmentLapsed:
		return true
	}
	return false
}

// BillingAccount 计费账户
type BillingAccount struct {
	ID                  int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID             int64     `gorm:"index;not null" json:"owner_id"`
	OwnerType           string    `gorm:"type:varchar(20);not null" json:"owner_type"`
	StripeCustomerID    *string   `gorm:"type:varchar(100)" json:"-"`
	PaymentMethodID     *string   `gorm:"type:varchar(100)" json:"-"`
	PaymentMethodActive bool      `gorm:"not null;default:false" json:"payment_method_active"`
	CreatedAt           time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt           time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (BillingAccount) TableName() string {
	return "billing_accounts"
}

// BillingOwnerType 计费账户类型，决定加价比例
const (
	OwnerTypeBarber     = "barber"
	OwnerTypeShop       = "shop"
	OwnerTypeEnterprise = "enterprise"
)

// ErrBillingRecordImmutable 计费记录创建后不可修改
var ErrBillingRecordImmutable = errors.New("billing record is immutable")

// BillingRecord 计费记录，每次完成的发送尝试写入一条，不可修改
type BillingRecord struct {
	ID               int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	CampaignID       int64           `gorm:"index;not null" json:"campaign_id"`
	BillingAccountID int64           `gorm:"index;not null" json:"billing_account_id"`
	AmountCharged    decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"amount_charged"`
	PlatformFee      decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"platform_fee"`
	ServiceCost      decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"service_cost"`
	RecipientCount   int             `gorm:"not null" json:"recipient_count"`
	SentCount        int             `gorm:"not null" json:"sent_count"`
	FailedCount      int             `gorm:"not null" json:"failed_count"`
	ChargeRef        *string         `gorm:"type:varchar(100)" json:"charge_ref,omitempty"`
	Skipped          bool            `gorm:"not null;default:false" json:"skipped"`
	Note             string          `gorm:"type:varchar(255);not null;default:''" json:"note"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (BillingRecord) TableName() string {
	return "billing_records"
}

// BeforeUpdate 拒绝更新
func (BillingRecord) BeforeUpdate(*gorm.DB) error {
	return ErrBillingRecordImmutable
}

// BeforeDelete 拒绝删除
func (BillingRecord) BeforeDelete(*gorm.DB) error {
	return ErrBillingRecordImmutable
}
