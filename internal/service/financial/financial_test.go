package financial

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
	"github.com/dumeirei/barbershop-backend/internal/common/config"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
	"github.com/dumeirei/barbershop-backend/pkg/payment"
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

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// testEnv 一个门店、一个店主与全部财务服务
type testEnv struct {
	db           *gorm.DB
	owner        models.Caller
	shop         *models.Shop
	pay          *payment.MockClient
	locker       *cache.LocalLocker
	userRepo     *repository.UserRepository
	shopRepo     *repository.ShopRepository
	txnRepo      *repository.TransactionRepository
	balanceRepo  *repository.BalanceRepository
	payoutRepo   *repository.PayoutRepository
	notifyRepo   *repository.NotificationRepository
	arrangements *ArrangementService
	balances     *BalanceService
	payouts      *PayoutService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	ctx := context.Background()
	db := setupTestDB(t)

	e := &testEnv{
		db:          db,
		pay:         payment.NewMockClient(),
		locker:      cache.NewLocalLocker(),
		userRepo:    repository.NewUserRepository(db),
		shopRepo:    repository.NewShopRepository(db),
		txnRepo:     repository.NewTransactionRepository(db),
		balanceRepo: repository.NewBalanceRepository(db),
		payoutRepo:  repository.NewPayoutRepository(db),
		notifyRepo:  repository.NewNotificationRepository(db),
	}
	arrangementRepo := repository.NewArrangementRepository(db)

	owner := &models.User{Name: "owner", Type: models.UserTypeShopOwner}
	require.NoError(t, e.userRepo.Create(ctx, owner))
	e.owner = models.Caller{UserID: owner.ID, UserType: owner.Type}

	e.shop = &models.Shop{OwnerID: owner.ID, Name: "Fade Street"}
	require.NoError(t, e.shopRepo.Create(ctx, e.shop))

	e.arrangements = NewArrangementService(arrangementRepo, e.shopRepo, e.userRepo)
	e.balances = NewBalanceService(e.arrangements, e.shopRepo, e.txnRepo, e.balanceRepo, nil)
	e.payouts = e.payoutService(e.pay)
	return e
}

// payoutService 使用指定转账客户端创建打款服务
func (e *testEnv) payoutService(transferer payment.Transferer) *PayoutService {
	return NewPayoutService(PayoutDeps{
		ShopRepo:         e.shopRepo,
		UserRepo:         e.userRepo,
		TxnRepo:          e.txnRepo,
		PayoutRepo:       e.payoutRepo,
		NotificationRepo: e.notifyRepo,
		Balances:         e.balances,
		Transferer:       transferer,
		Locker:           e.locker,
	}, config.PayoutConfig{Currency: "usd", MaxConcurrency: 2, TransferTimeoutSeconds: 5})
}

// addBarber 创建门店理发师，account 为空表示未绑定收款账户
func (e *testEnv) addBarber(t *testing.T, account string) int64 {
	t.Helper()
	ctx := context.Background()

	barber := &models.User{Name: "barber", Type: models.UserTypeBarber}
	if account != "" {
		barber.PayoutAccountEncrypted = &account
	}
	require.NoError(t, e.userRepo.Create(ctx, barber))
	require.NoError(t, e.shopRepo.AddBarber(ctx, e.shop.ID, barber.ID))
	return barber.ID
}

// commission 为理发师设置纯佣金方案
func (e *testEnv) commission(t *testing.T, barberID int64, servicePct string) {
	t.Helper()
	_, err := e.arrangements.Upsert(context.Background(), e.owner, &UpsertArrangementRequest{
		BarberID:             barberID,
		ShopID:               e.shop.ID,
		Type:                 models.ArrangementTypeCommission,
		ServiceCommissionPct: dec(servicePct),
		ProductCommissionPct: dec("10"),
	})
	require.NoError(t, err)
}

// sale 记录一笔服务销售
func (e *testEnv) sale(t *testing.T, barberID int64, gross string) *models.CommissionTransaction {
	t.Helper()
	txn, err := e.balances.PostSale(context.Background(), e.owner, &PostSaleRequest{
		ShopID:      e.shop.ID,
		BarberID:    barberID,
		Kind:        models.TransactionKindService,
		GrossAmount: dec(gross),
	})
	require.NoError(t, err)
	return txn
}

func (e *testEnv) pending(t *testing.T, barberID int64) decimal.Decimal {
	t.Helper()
	b, err := e.balanceRepo.Get(context.Background(), barberID, e.shop.ID)
	require.NoError(t, err)
	return b.PendingAmount
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
