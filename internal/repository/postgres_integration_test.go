//go:build integration

package repository

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcPostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/dumeirei/barbershop-backend/internal/common/database"
	"github.com/dumeirei/barbershop-backend/internal/models"
)

// setupPostgres 启动 Postgres 容器并完成迁移
func setupPostgres(t *testing.T) *gorm.DB {
	t.Helper()
	ctx := context.Background()

	container, err := tcPostgres.RunContainer(ctx,
		testcontainers.WithImage("postgres:15-alpine"),
		tcPostgres.WithDatabase("test_barbershop"),
		tcPostgres.WithUsername("test_user"),
		tcPostgres.WithPassword("test_password"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5432")
	require.NoError(t, err)

	dsn := fmt.Sprintf("host=%s port=%s user=test_user password=test_password dbname=test_barbershop sslmode=disable",
		host, port.Port())
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)

	require.NoError(t, database.Migrate(db))
	require.NoError(t, database.Migrate(db), "迁移应幂等")
	return db
}

func TestPostgres_Repositories(t *testing.T) {
	db := setupPostgres(t)
	ctx := context.Background()

	t.Run("部分唯一索引保证单一生效方案", func(t *testing.T) {
		repo := NewArrangementRepository(db)
		require.NoError(t, repo.Replace(ctx, &models.FinancialArrangement{BarberID: 1, ShopID: 1, Type: models.ArrangementTypeCommission, CreatedBy: 1}))
		require.NoError(t, repo.Replace(ctx, &models.FinancialArrangement{BarberID: 1, ShopID: 1, Type: models.ArrangementTypeHybrid, CreatedBy: 1}))

		var active int64
		db.Model(&models.FinancialArrangement{}).Where("barber_id = 1 AND shop_id = 1 AND is_active").Count(&active)
		assert.Equal(t, int64(1), active)

		err := db.Create(&models.FinancialArrangement{BarberID: 1, ShopID: 1, Type: models.ArrangementTypeCommission, IsActive: true, CreatedBy: 1}).Error
		assert.Error(t, err)
	})

	t.Run("打款成功事务", func(t *testing.T) {
		txRepo := NewTransactionRepository(db)
		balRepo := NewBalanceRepository(db)
		payoutRepo := NewPayoutRepository(db)

		txn := &models.CommissionTransaction{
			BarberID: 2, ShopID: 1, ArrangementID: 1, Kind: models.TransactionKindService,
			GrossAmount: dec("80"), Rate: dec("0.5"), Amount: dec("40"),
			Status: models.TransactionStatusPending, OccurredAt: time.Now(),
		}
		require.NoError(t, txRepo.Create(ctx, txn))
		require.NoError(t, balRepo.Upsert(ctx, &models.CommissionBalance{BarberID: 2, ShopID: 1, PendingAmount: dec("40"), TotalEarned: dec("40")}))

		payout := &models.Payout{PayoutNo: "PG001", BarberID: 2, ShopID: 1, Amount: dec("40"), Currency: "usd",
			Status: models.PayoutStatusPending, Trigger: models.PayoutTriggerSingle, RequestedBy: 1}
		require.NoError(t, payoutRepo.Create(ctx, payout))
		require.NoError(t, payoutRepo.CompleteSuccess(ctx, payout, []int64{txn.ID}, nil, "tr_pg", time.Now()))

		b, err := balRepo.Get(ctx, 2, 1)
		require.NoError(t, err)
		assert.True(t, b.PendingAmount.IsZero())
		assert.True(t, b.TotalEarned.Equal(dec("40")))
	})
}
