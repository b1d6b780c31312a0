package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// FinancialArrangement 理发师与门店之间的佣金/租金方案
type FinancialArrangement struct {
	ID                   int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BarberID             int64           `gorm:"index;uniqueIndex:uk_active_arrangement,where:is_active = true;not null" json:"barber_id"`
	ShopID               int64           `gorm:"index;uniqueIndex:uk_active_arrangement,where:is_active = true;not null" json:"shop_id"`
	Type                 string          `gorm:"type:varchar(20);not null" json:"type"`
	ServiceCommissionPct decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"service_commission_pct"`
	ProductCommissionPct decimal.Decimal `gorm:"type:decimal(5,2);not null;default:0" json:"product_commission_pct"`
	BoothRentAmount      decimal.Decimal `gorm:"type:decimal(12,2);not null;default:0" json:"booth_rent_amount"`
	BoothRentFrequency   *string         `gorm:"type:varchar(20)" json:"booth_rent_frequency,omitempty"`
	PaymentMethod        string          `gorm:"type:varchar(20);not null;default:'stripe'" json:"payment_method"`
	PaymentFrequency     string          `gorm:"type:varchar(20);not null;default:'weekly'" json:"payment_frequency"`
	IsActive             bool            `gorm:"not null;default:true" json:"is_active"`
	CreatedBy            int64           `gorm:"not null" json:"created_by"`
	DeactivatedAt        *time.Time      `json:"deactivated_at,omitempty"`
	LastRentPostedAt     *time.Time      `json:"last_rent_posted_at,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt            time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (FinancialArrangement) TableName() string {
	return "financial_arrangements"
}

// ArrangementType 方案类型
const (
	ArrangementTypeCommission = "commission" // 纯佣金
	ArrangementTypeBoothRent  = "booth_rent" // 纯租金
	ArrangementTypeHybrid     = "hybrid"     // 佣金 + 租金
)

// RentFrequency 租金周期
const (
	RentFrequencyDaily   = "daily"
	RentFrequencyWeekly  = "weekly"
	RentFrequencyMonthly = "monthly"
)

// PaymentMethod 结算方式
const (
	PaymentMethodStripe = "stripe" // Stripe 转账
	PaymentMethodManual = "manual" // 线下结算
)

// IsValidArrangementType 是否为合法方案类型
func IsValidArrangementType(t string) bool {
	switch t {
	case ArrangementTypeCommission, ArrangementTypeBoothRent, ArrangementTypeHybrid:
		return true
	}
	return false
}

// IsValidRentFrequency 是否为合法租金周期
func IsValidRentFrequency(f string) bool {
	switch f {
	case RentFrequencyDaily, RentFrequencyWeekly, RentFrequencyMonthly:
		return true
	}
	return false
}

// CommissionTransaction 佣金流水，余额的唯一数据来源
type CommissionTransaction struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BarberID      int64           `gorm:"index:idx_ctx_barber_shop_status;not null" json:"barber_id"`
	ShopID        int64           `gorm:"index:idx_ctx_barber_shop_status;not null" json:"shop_id"`
	ArrangementID int64           `gorm:"index;not null" json:"arrangement_id"`
	Kind          string          `gorm:"type:varchar(20);not null" json:"kind"`
	Reference     *string         `gorm:"type:varchar(100);uniqueIndex" json:"reference,omitempty"`
	GrossAmount   decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"gross_amount"`
	Rate          decimal.Decimal `gorm:"type:decimal(7,4);not null;default:0" json:"rate"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,4);not null" json:"amount"`
	Status        string          `gorm:"type:varchar(20);index:idx_ctx_barber_shop_status;not null;default:'pending'" json:"status"`
	PayoutID      *int64          `gorm:"index" json:"payout_id,omitempty"`
	OccurredAt    time.Time       `gorm:"not null" json:"occurred_at"`
	PaidAt        *time.Time      `json:"paid_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

// TableName 表名
func (CommissionTransaction) TableName() string {
	return "commission_transactions"
}

// TransactionKind 流水类型
const (
	TransactionKindService   = "service"    // 服务佣金
	TransactionKindProduct   = "product"    // 商品佣金
	TransactionKindBoothRent = "booth_rent" // 租金扣除（负数）
	TransactionKindCarryover = "carryover"  // 打款时不足一分的余数，结转到下次
)

// TransactionStatus 流水状态
const (
	TransactionStatusPending   = "pending"   // 待打款
	TransactionStatusPaid      = "paid"      // 已打款
	TransactionStatusCancelled = "cancelled" // 已取消
)

// CommissionBalance 佣金余额缓存，可随时由流水重算
type CommissionBalance struct {
	ID                int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	BarberID          int64           `gorm:"uniqueIndex:uk_balance_barber_shop;not null" json:"barber_id"`
	ShopID            int64           `gorm:"uniqueIndex:uk_balance_barber_shop;index;not null" json:"shop_id"`
	PendingAmount     decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"pending_amount"`
	TotalEarned       decimal.Decimal `gorm:"type:decimal(12,4);not null;default:0" json:"total_earned"`
	LastTransactionAt *time.Time      `json:"last_transaction_at,omitempty"`
	LastPayoutAt      *time.Time      `json:"last_payout_at,omitempty"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Barber *User `gorm:"foreignKey:BarberID" json:"barber,omitempty"`
}

// TableName 表名
func (CommissionBalance) TableName() string {
	return "commission_balances"
}

// Payout 打款记录，每次打款尝试一条
type Payout struct {
	ID            int64           `gorm:"primaryKey;autoIncrement" json:"id"`
	PayoutNo      string          `gorm:"type:varchar(64);uniqueIndex;not null" json:"payout_no"`
	BarberID      int64           `gorm:"index;not null" json:"barber_id"`
	ShopID        int64           `gorm:"index;not null" json:"shop_id"`
	Amount        decimal.Decimal `gorm:"type:decimal(12,2);not null" json:"amount"`
	Currency      string          `gorm:"type:varchar(10);not null" json:"currency"`
	Status        string          `gorm:"type:varchar(20);index;not null;default:'pending'" json:"status"`
	Trigger       string          `gorm:"type:varchar(20);not null" json:"trigger"`
	TransferRef   *string         `gorm:"type:varchar(100)" json:"transfer_ref,omitempty"`
	FailureReason *string         `gorm:"type:varchar(500)" json:"failure_reason,omitempty"`
	RequestedBy   int64           `gorm:"not null" json:"requested_by"`
	ProcessedAt   *time.Time      `json:"processed_at,omitempty"`
	CreatedAt     time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt     time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (Payout) TableName() string {
	return "payouts"
}

// PayoutStatus 打款状态
const (
	PayoutStatusPending = "pending" // 处理中
	PayoutStatusSuccess = "success" // 成功
	PayoutStatusFailure = "failure" // 失败
)

// PayoutTrigger 打款触发方式
const (
	PayoutTriggerSingle = "single" // 单人打款
	PayoutTriggerBulk   = "bulk"   // 批量打款
)
