// Package marketing 提供营销活动计价、扣费与群发服务
package marketing

import (
	"github.com/shopspring/decimal"

	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/models"
)

// accountingPlaces 内部记账精度
const accountingPlaces = 4

// CampaignCost 活动费用
type CampaignCost struct {
	RecipientCount   int             `json:"recipient_count"`
	ServiceCost      decimal.Decimal `json:"service_cost"`
	PlatformFee      decimal.Decimal `json:"platform_fee"`
	TotalCost        decimal.Decimal `json:"total_cost"`
	CostPerRecipient decimal.Decimal `json:"cost_per_recipient"`
}

// CostDisplay 两位小数的展示金额
type CostDisplay struct {
	ServiceCost      string `json:"service_cost"`
	PlatformFee      string `json:"platform_fee"`
	TotalCost        string `json:"total_cost"`
	CostPerRecipient string `json:"cost_per_recipient"`
}

// Display 转为展示金额
func (c *CampaignCost) Display() CostDisplay {
	return CostDisplay{
		ServiceCost:      c.ServiceCost.StringFixed(2),
		PlatformFee:      c.PlatformFee.StringFixed(2),
		TotalCost:        c.TotalCost.StringFixed(2),
		CostPerRecipient: c.CostPerRecipient.StringFixed(2),
	}
}

// CostCalculator 活动计价器，无副作用
type CostCalculator struct {
	unitCosts   map[string]decimal.Decimal
	markupRates map[string]decimal.Decimal
}

// NewCostCalculator 由配置创建计价器
func NewCostCalculator(cfg config.CampaignConfig) *CostCalculator {
	c := &CostCalculator{
		unitCosts: map[string]decimal.Decimal{
			models.CampaignChannelEmail: decimal.NewFromFloat(cfg.EmailUnitCost),
			models.CampaignChannelSMS:   decimal.NewFromFloat(cfg.SMSUnitCost),
		},
		markupRates: make(map[string]decimal.Decimal, len(cfg.MarkupRates)),
	}
	for owner, rate := range cfg.MarkupRates {
		c.markupRates[owner] = decimal.NewFromFloat(rate)
	}
	return c
}

// Calculate 计算活动费用；收件人数为零时拒绝计价
func (c *CostCalculator) Calculate(recipientCount int, channel, ownerType string) (*CampaignCost, error) {
	if recipientCount <= 0 {
		return nil, errors.ErrZeroRecipients
	}
	unit, ok := c.unitCosts[channel]
	if !ok {
		return nil, errors.ErrInvalidChannel
	}
	markup, ok := c.markupRates[ownerType]
	if !ok {
		return nil, errors.ErrInvalidOwnerType
	}

	n := decimal.NewFromInt(int64(recipientCount))
	serviceCost := unit.Mul(n).Round(accountingPlaces)
	platformFee := serviceCost.Mul(markup).Round(accountingPlaces)
	total := serviceCost.Add(platformFee)

	return &CampaignCost{
		RecipientCount:   recipientCount,
		ServiceCost:      serviceCost,
		PlatformFee:      platformFee,
		TotalCost:        total,
		CostPerRecipient: total.DivRound(n, accountingPlaces),
	}, nil
}
