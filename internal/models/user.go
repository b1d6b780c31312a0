// Package models 定义数据模型
package models

import (
	"time"
)

// User 用户模型（理发师、店主、企业账户、平台管理员）
type User struct {
	ID                     int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	Name                   string    `gorm:"type:varchar(100);not null;default:''" json:"name"`
	Email                  *string   `gorm:"type:varchar(255);uniqueIndex" json:"email,omitempty"`
	Phone                  *string   `gorm:"type:varchar(20);uniqueIndex" json:"phone,omitempty"`
	Type                   string    `gorm:"type:varchar(20);not null;index" json:"type"`
	PayoutAccountEncrypted *string   `gorm:"type:text" json:"-"`
	Status                 int8      `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt              time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt              time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

// TableName 表名
func (User) TableName() string {
	return "users"
}

// UserType 用户类型
const (
	UserTypeBarber     = "barber"     // 理发师
	UserTypeShopOwner  = "shop_owner" // 店主
	UserTypeEnterprise = "enterprise" // 企业（连锁）
	UserTypeAdmin      = "admin"      // 平台管理员
)

// UserStatus 用户状态
const (
	UserStatusDisabled = 0 // 禁用
	UserStatusActive   = 1 // 正常
)

// Shop 门店
type Shop struct {
	ID        int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	OwnerID   int64     `gorm:"index;not null" json:"owner_id"`
	Name      string    `gorm:"type:varchar(100);not null" json:"name"`
	Status    int8      `gorm:"type:smallint;not null;default:1" json:"status"`
	CreatedAt time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"autoUpdateTime" json:"updated_at"`

	// 关联
	Owner *User `gorm:"foreignKey:OwnerID" json:"owner,omitempty"`
}

// TableName 表名
func (Shop) TableName() string {
	return "shops"
}

// ShopStatus 门店状态
const (
	ShopStatusClosed = 0 // 停业
	ShopStatusActive = 1 // 营业
)

// ShopBarber 门店理发师关系
type ShopBarber struct {
	ID       int64     `gorm:"primaryKey;autoIncrement" json:"id"`
	ShopID   int64     `gorm:"uniqueIndex:uk_shop_barber;not null" json:"shop_id"`
	BarberID int64     `gorm:"uniqueIndex:uk_shop_barber;index;not null" json:"barber_id"`
	Status   int8      `gorm:"type:smallint;not null;default:1" json:"status"`
	JoinedAt time.Time `gorm:"autoCreateTime" json:"joined_at"`

	// 关联
	Barber *User `gorm:"foreignKey:BarberID" json:"barber,omitempty"`
}

// TableName 表名
func (ShopBarber) TableName() string {
	return "shop_barbers"
}

// ShopBarberStatus 门店成员状态
const (
	ShopBarberStatusLeft   = 0 // 已离开
	ShopBarberStatusActive = 1 // 在职
)

// Caller 已认证的调用者身份
type Caller struct {
	UserID   int64
	UserType string
}

// IsAdmin 是否为平台管理员
func (c Caller) IsAdmin() bool {
	return c.UserType == UserTypeAdmin
}
