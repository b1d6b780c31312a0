package marketing

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
	"github.com/dumeirei/barbershop-backend/pkg/email"
	"github.com/dumeirei/barbershop-backend/pkg/messaging"
	"github.com/dumeirei/barbershop-backend/pkg/payment"
	"github.com/dumeirei/barbershop-backend/pkg/sms"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	db, err := gorm.Open(sqlite.Open(fmt.Sprintf("file:%s?mode=memory&cache=shared", name)), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })

	require.NoError(t, db.AutoMigrate(models.All()...))
	return db
}

func testCampaignConfig() config.CampaignConfig {
	return config.CampaignConfig{
		Currency:      "usd",
		EmailUnitCost: 0.001,
		SMSUnitCost:   0.0075,
		MarkupRates: map[string]float64{
			models.OwnerTypeBarber:     0.95,
			models.OwnerTypeShop:       0.80,
			models.OwnerTypeEnterprise: 0.50,
		},
		MinCharge:            0.01,
		ChargeTimeoutSeconds: 5,
		SendTimeoutSeconds:   5,
	}
}

// testEnv 一个店主、一个门店、一个计费账户与营销服务
type testEnv struct {
	db           *gorm.DB
	owner        models.Caller
	ownerUser    *models.User
	shop         *models.Shop
	account      *models.BillingAccount
	pay          *payment.MockClient
	mail         *email.MockSender
	sms          *sms.MockBulkSender
	campaignRepo *repository.CampaignRepository
	customerRepo *repository.CustomerRepository
	billingRepo  *repository.BillingRepository
	notifyRepo   *repository.NotificationRepository
	billing      *BillingService
	campaigns    *CampaignService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t)

	e := &testEnv{
		db:           db,
		pay:          payment.NewMockClient(),
		mail:         email.NewMockSender(),
		sms:          sms.NewMockBulkSender(),
		campaignRepo: repository.NewCampaignRepository(db),
		customerRepo: repository.NewCustomerRepository(db),
		billingRepo:  repository.NewBillingRepository(db),
		notifyRepo:   repository.NewNotificationRepository(db),
	}
	userRepo := repository.NewUserRepository(db)
	shopRepo := repository.NewShopRepository(db)

	ownerEmail := "owner@fadestreet.test"
	e.ownerUser = &models.User{Name: "owner", Email: &ownerEmail, Type: models.UserTypeShopOwner}
	require.NoError(t, userRepo.Create(ctx, e.ownerUser))
	e.owner = models.Caller{UserID: e.ownerUser.ID, UserType: e.ownerUser.Type}

	e.shop = &models.Shop{OwnerID: e.ownerUser.ID, Name: "Fade Street"}
	require.NoError(t, shopRepo.Create(ctx, e.shop))

	customerRef, methodRef := "cus_123", "pm_456"
	e.account = &models.BillingAccount{
		OwnerID:             e.ownerUser.ID,
		OwnerType:           models.OwnerTypeShop,
		StripeCustomerID:    &customerRef,
		PaymentMethodID:     &methodRef,
		PaymentMethodActive: true,
	}
	require.NoError(t, e.billingRepo.CreateAccount(ctx, e.account))

	cfg := testCampaignConfig()
	e.billing = NewBillingService(e.billingRepo, e.pay, cfg, nil, nil)
	e.campaigns = NewCampaignService(CampaignDeps{
		CampaignRepo:     e.campaignRepo,
		CustomerRepo:     e.customerRepo,
		ShopRepo:         shopRepo,
		UserRepo:         userRepo,
		NotificationRepo: e.notifyRepo,
		Billing:          e.billing,
		Transports: map[string]messaging.BulkSender{
			models.CampaignChannelEmail: e.mail,
			models.CampaignChannelSMS:   e.sms,
		},
		Locker: cache.NewLocalLocker(),
	}, cfg)
	return e
}

// addCustomers 创建 n 个已订阅邮件和短信的顾客
func (e *testEnv) addCustomers(t *testing.T, n int, lastVisit *time.Time) {
	t.Helper()
	for i := 0; i < n; i++ {
		mail := fmt.Sprintf("c%d-%d@example.test", e.shop.ID, i)
		phone := fmt.Sprintf("1380000%04d", i)
		require.NoError(t, e.customerRepo.Create(context.Background(), &models.Customer{
			ShopID:      e.shop.ID,
			Name:        fmt.Sprintf("customer %d", i),
			Email:       &mail,
			Phone:       &phone,
			EmailOptIn:  true,
			SMSOptIn:    true,
			LastVisitAt: lastVisit,
		}))
	}
}

// approved 创建并审批一个活动
func (e *testEnv) approved(t *testing.T, channel string) *models.MarketingCampaign {
	t.Helper()
	ctx := context.Background()
	c, err := e.campaigns.Create(ctx, e.owner, &CreateCampaignRequest{
		ShopID:           e.shop.ID,
		BillingAccountID: e.account.ID,
		Name:             "Spring fades",
		Channel:          channel,
		Content:          "20% off this week",
	})
	require.NoError(t, err)
	c, err = e.campaigns.Approve(ctx, e.owner, c.ID)
	require.NoError(t, err)
	return c
}

func (e *testEnv) reload(t *testing.T, id int64) *models.MarketingCampaign {
	t.Helper()
	c, err := e.campaignRepo.GetByID(context.Background(), id)
	require.NoError(t, err)
	return c
}

// notes 取用户收到的、关联到指定对象的通知
func (e *testEnv) notes(t *testing.T, userID int64, relatedType string, relatedID int64) []*models.Notification {
	t.Helper()
	all, _, err := e.notifyRepo.ListByUser(context.Background(), userID, 0, 100)
	require.NoError(t, err)
	var out []*models.Notification
	for _, n := range all {
		if n.RelatedType != nil && *n.RelatedType == relatedType && n.RelatedID != nil && *n.RelatedID == relatedID {
			out = append(out, n)
		}
	}
	return out
}
