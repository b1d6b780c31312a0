package main

import (
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/common/crypto"
	"github.com/dumeirei/barbershop-backend/internal/common/metrics"
	financialHandler "github.com/dumeirei/barbershop-backend/internal/handler/financial"
	marketingHandler "github.com/dumeirei/barbershop-backend/internal/handler/marketing"
	notificationHandler "github.com/dumeirei/barbershop-backend/internal/handler/notification"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
	"github.com/dumeirei/barbershop-backend/internal/scheduler"
	financialService "github.com/dumeirei/barbershop-backend/internal/service/financial"
	marketingService "github.com/dumeirei/barbershop-backend/internal/service/marketing"
	notificationService "github.com/dumeirei/barbershop-backend/internal/service/notification"
	"github.com/dumeirei/barbershop-backend/pkg/email"
	"github.com/dumeirei/barbershop-backend/pkg/messaging"
	"github.com/dumeirei/barbershop-backend/pkg/payment"
	"github.com/dumeirei/barbershop-backend/pkg/sms"
)

// app 组装完成的服务与处理器
type app struct {
	balances  *financialService.BalanceService
	campaigns *marketingService.CampaignService

	financialH    *financialHandler.Handler
	campaignH     *marketingHandler.CampaignHandler
	notificationH *notificationHandler.Handler
}

// paymentClient 同时支持扣款与转账
type paymentClient interface {
	payment.Charger
	payment.Transferer
}

// newApp 初始化仓储、外部客户端与服务
func newApp(cfg *config.Config, log *zap.Logger, db *gorm.DB, redisClient *redis.Client, m *metrics.Metrics) (*app, error) {
	cipher, err := crypto.NewAES(cfg.Crypto.AESKey)
	if err != nil {
		return nil, fmt.Errorf("init payout account cipher: %w", err)
	}

	// 初始化仓储
	userRepo := repository.NewUserRepository(db)
	shopRepo := repository.NewShopRepository(db)
	arrangementRepo := repository.NewArrangementRepository(db)
	txnRepo := repository.NewTransactionRepository(db)
	balanceRepo := repository.NewBalanceRepository(db)
	payoutRepo := repository.NewPayoutRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	campaignRepo := repository.NewCampaignRepository(db)
	customerRepo := repository.NewCustomerRepository(db)
	billingRepo := repository.NewBillingRepository(db)

	// 初始化外部服务客户端，开发环境使用 Mock
	var payments paymentClient
	if cfg.Stripe.Enabled {
		payments = payment.NewStripeClient(cfg.Stripe.SecretKey, cfg.Business.Payout.Currency)
	} else {
		log.Warn("stripe disabled, using mock payment client")
		payments = payment.NewMockClient()
	}
	transports, err := newTransports(cfg, log)
	if err != nil {
		return nil, err
	}

	locker := cache.NewRedisLocker(redisClient, cfg.Business.Payout.LockTTL())

	// 初始化服务
	arrangementSvc := financialService.NewArrangementService(arrangementRepo, shopRepo, userRepo)
	balanceSvc := financialService.NewBalanceService(arrangementSvc, shopRepo, txnRepo, balanceRepo, log)
	payoutSvc := financialService.NewPayoutService(financialService.PayoutDeps{
		ShopRepo:         shopRepo,
		UserRepo:         userRepo,
		TxnRepo:          txnRepo,
		PayoutRepo:       payoutRepo,
		NotificationRepo: notificationRepo,
		Balances:         balanceSvc,
		Transferer:       payments,
		Locker:           locker,
		Cipher:           cipher,
		Metrics:          m,
		Logger:           log,
	}, cfg.Business.Payout)

	billingSvc := marketingService.NewBillingService(billingRepo, payments, cfg.Business.Campaign, m, log)
	campaignSvc := marketingService.NewCampaignService(marketingService.CampaignDeps{
		CampaignRepo:     campaignRepo,
		CustomerRepo:     customerRepo,
		ShopRepo:         shopRepo,
		UserRepo:         userRepo,
		NotificationRepo: notificationRepo,
		Calculator:       marketingService.NewCostCalculator(cfg.Business.Campaign),
		Billing:          billingSvc,
		Transports:       transports,
		Locker:           locker,
		Metrics:          m,
		Logger:           log,
	}, cfg.Business.Campaign)

	return &app{
		balances:      balanceSvc,
		campaigns:     campaignSvc,
		financialH:    financialHandler.NewHandler(arrangementSvc, balanceSvc, payoutSvc),
		campaignH:     marketingHandler.NewCampaignHandler(campaignSvc, billingSvc),
		notificationH: notificationHandler.NewHandler(notificationService.NewService(notificationRepo)),
	}, nil
}

// newTransports 按配置创建邮件与短信群发通道
func newTransports(cfg *config.Config, log *zap.Logger) (map[string]messaging.BulkSender, error) {
	transports := make(map[string]messaging.BulkSender, 2)

	switch cfg.Email.Provider {
	case "sendgrid":
		transports[models.CampaignChannelEmail] = email.NewSendGridSender(&email.SendGridConfig{
			APIKey:    cfg.Email.APIKey,
			FromEmail: cfg.Email.FromEmail,
			FromName:  cfg.Email.FromName,
		})
	default:
		log.Warn("email provider not configured, using mock sender", zap.String("provider", cfg.Email.Provider))
		transports[models.CampaignChannelEmail] = email.NewMockSender()
	}

	switch cfg.SMS.Provider {
	case "aliyun":
		sender, err := sms.NewAliyunBulkSender(&sms.AliyunConfig{
			AccessKeyID:     cfg.SMS.AccessKeyID,
			AccessKeySecret: cfg.SMS.AccessKeySecret,
			SignName:        cfg.SMS.SignName,
			TemplateCode:    cfg.SMS.TemplateCode,
			RegionID:        cfg.SMS.RegionID,
		})
		if err != nil {
			return nil, err
		}
		transports[models.CampaignChannelSMS] = sender
	default:
		log.Warn("sms provider not configured, using mock sender", zap.String("provider", cfg.SMS.Provider))
		transports[models.CampaignChannelSMS] = sms.NewMockBulkSender()
	}

	return transports, nil
}

// setupScheduler 注册摊位租金、定时活动与余额对账任务
func setupScheduler(cfg *config.Config, log *zap.Logger, redisClient *redis.Client, a *app) *scheduler.Scheduler {
	if !cfg.Business.Scheduler.Enabled {
		log.Info("scheduler disabled")
		return nil
	}
	s := scheduler.NewScheduler(cache.NewRedisLocker(redisClient, cfg.Business.Payout.LockTTL()), log)
	scheduler.SetupTasks(s, scheduler.NewTaskHandler(a.balances, a.campaigns, log), cfg.Business.Scheduler)
	log.Info("scheduler configured", zap.Int("tasks", len(s.Tasks())))
	return s
}
