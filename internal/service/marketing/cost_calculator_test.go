package marketing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/models"
)

var (
	channels   = []string{models.CampaignChannelEmail, models.CampaignChannelSMS}
	ownerTypes = []string{models.OwnerTypeBarber, models.OwnerTypeShop, models.OwnerTypeEnterprise}
)

// defaultCalculator 默认价目：邮件 0.001、短信 0.0075，加价 0.95/0.80/0.50
func defaultCalculator() *CostCalculator {
	return NewCostCalculator(testCampaignConfig())
}

func TestCostCalculator_ShopEmailScenario(t *testing.T) {
	cost, err := defaultCalculator().Calculate(1000, models.CampaignChannelEmail, models.OwnerTypeShop)
	require.NoError(t, err)

	assert.Equal(t, "1", cost.ServiceCost.String())
	assert.Equal(t, "0.8", cost.PlatformFee.String())
	assert.Equal(t, "1.8", cost.TotalCost.String())
	assert.Equal(t, "0.0018", cost.CostPerRecipient.String())

	display := cost.Display()
	assert.Equal(t, "1.00", display.ServiceCost)
	assert.Equal(t, "0.80", display.PlatformFee)
	assert.Equal(t, "1.80", display.TotalCost)
	assert.Equal(t, "0.00", display.CostPerRecipient)
}

func TestCostCalculator_SMSPricing(t *testing.T) {
	cost, err := defaultCalculator().Calculate(200, models.CampaignChannelSMS, models.OwnerTypeBarber)
	require.NoError(t, err)

	assert.True(t, cost.ServiceCost.Equal(decimal.RequireFromString("1.5")))
	assert.True(t, cost.PlatformFee.Equal(decimal.RequireFromString("1.425")))
	assert.True(t, cost.TotalCost.Equal(decimal.RequireFromString("2.925")))
}

func TestCostCalculator_TotalsAreConsistent(t *testing.T) {
	calc := defaultCalculator()
	for _, ch := range channels {
		for _, owner := range ownerTypes {
			for _, n := range []int{1, 7, 99, 1000, 12345} {
				cost, err := calc.Calculate(n, ch, owner)
				require.NoError(t, err)

				assert.True(t, cost.TotalCost.Equal(cost.ServiceCost.Add(cost.PlatformFee)), "%s/%s/%d", ch, owner, n)
				want := cost.TotalCost.DivRound(decimal.NewFromInt(int64(n)), 4)
				assert.True(t, cost.CostPerRecipient.Equal(want), "%s/%s/%d", ch, owner, n)
				assert.True(t, cost.TotalCost.Equal(cost.TotalCost.Round(4)))
			}
		}
	}
}

func TestCostCalculator_MonotonicInRecipients(t *testing.T) {
	calc := defaultCalculator()
	for _, ch := range channels {
		for _, owner := range ownerTypes {
			prev := decimal.Zero
			for n := 1; n <= 2000; n++ {
				cost, err := calc.Calculate(n, ch, owner)
				require.NoError(t, err)
				require.True(t, cost.TotalCost.GreaterThan(prev), "%s/%s n=%d", ch, owner, n)
				prev = cost.TotalCost
			}
		}
	}
}

func TestCostCalculator_MarkupOrdering(t *testing.T) {
	calc := defaultCalculator()
	for _, ch := range channels {
		for _, n := range []int{10, 500, 5000} {
			barber, err := calc.Calculate(n, ch, models.OwnerTypeBarber)
			require.NoError(t, err)
			shop, err := calc.Calculate(n, ch, models.OwnerTypeShop)
			require.NoError(t, err)
			enterprise, err := calc.Calculate(n, ch, models.OwnerTypeEnterprise)
			require.NoError(t, err)

			assert.True(t, barber.TotalCost.GreaterThan(shop.TotalCost))
			assert.True(t, shop.TotalCost.GreaterThan(enterprise.TotalCost))
		}
	}
}

func TestCostCalculator_Rejects(t *testing.T) {
	calc := defaultCalculator()

	_, err := calc.Calculate(0, models.CampaignChannelEmail, models.OwnerTypeShop)
	assert.ErrorIs(t, err, errors.ErrZeroRecipients)
	assert.True(t, errors.IsValidation(err))

	_, err = calc.Calculate(-3, models.CampaignChannelEmail, models.OwnerTypeShop)
	assert.ErrorIs(t, err, errors.ErrZeroRecipients)

	_, err = calc.Calculate(10, "push", models.OwnerTypeShop)
	assert.ErrorIs(t, err, errors.ErrInvalidChannel)

	_, err = calc.Calculate(10, models.CampaignChannelSMS, "franchise")
	assert.ErrorIs(t, err, errors.ErrInvalidOwnerType)
}

func TestCostCalculator_FromConfig(t *testing.T) {
	fromDefaults := NewCostCalculator(config.Default().Business.Campaign)
	a, err := fromDefaults.Calculate(1000, models.CampaignChannelEmail, models.OwnerTypeShop)
	require.NoError(t, err)
	b, err := defaultCalculator().Calculate(1000, models.CampaignChannelEmail, models.OwnerTypeShop)
	require.NoError(t, err)
	assert.True(t, a.TotalCost.Equal(b.TotalCost))

	custom := NewCostCalculator(config.CampaignConfig{
		EmailUnitCost: 0.002,
		SMSUnitCost:   0.01,
		MarkupRates:   map[string]float64{models.OwnerTypeShop: 1},
	})
	c, err := custom.Calculate(100, models.CampaignChannelEmail, models.OwnerTypeShop)
	require.NoError(t, err)
	assert.True(t, c.TotalCost.Equal(decimal.RequireFromString("0.4")))

	_, err = custom.Calculate(100, models.CampaignChannelEmail, models.OwnerTypeBarber)
	assert.ErrorIs(t, err, errors.ErrInvalidOwnerType)
}
