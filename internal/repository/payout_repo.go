package repository

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/models"
)

// ErrTransactionsChanged 待结算流水在打款期间被修改
var ErrTransactionsChanged = errors.New("pending transactions changed during payout")

// PayoutRepository 打款记录仓储
type PayoutRepository struct {
	db *gorm.DB
}

// NewPayoutRepository 创建打款记录仓储
func NewPayoutRepository(db *gorm.DB) *PayoutRepository {
	return &PayoutRepository{db: db}
}

// Create 创建打款记录
func (r *PayoutRepository) Create(ctx context.Context, payout *models.Payout) error {
	return r.db.WithContext(ctx).Create(payout).Error
}

// GetByID 根据 ID 获取打款记录
func (r *PayoutRepository) GetByID(ctx context.Context, id int64) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).First(&payout, id).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// GetByPayoutNo 根据打款单号获取打款记录
func (r *PayoutRepository) GetByPayoutNo(ctx context.Context, payoutNo string) (*models.Payout, error) {
	var payout models.Payout
	err := r.db.WithContext(ctx).Where("payout_no = ?", payoutNo).First(&payout).Error
	if err != nil {
		return nil, err
	}
	return &payout, nil
}

// CompleteSuccess 打款成功：标记打款单、结清流水、写入结转余数并重置待打款余额，全部在一个事务内
func (r *PayoutRepository) CompleteSuccess(ctx context.Context, payout *models.Payout, txnIDs []int64, carry *models.CommissionTransaction, transferRef string, at time.Time) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Payout{}).
			Where("id = ? AND status = ?", payout.ID, models.PayoutStatusPending).
			Updates(map[string]interface{}{
				"status":       models.PayoutStatusSuccess,
				"transfer_ref": transferRef,
				"processed_at": at,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}

		if len(txnIDs) > 0 {
			result = tx.Model(&models.CommissionTransaction{}).
				Where("id IN ? AND status = ?", txnIDs, models.TransactionStatusPending).
				Updates(map[string]interface{}{
					"status":    models.TransactionStatusPaid,
					"payout_id": payout.ID,
					"paid_at":   at,
				})
			if result.Error != nil {
				return result.Error
			}
			if result.RowsAffected != int64(len(txnIDs)) {
				return ErrTransactionsChanged
			}
		}

		pending := decimal.Zero
		if carry != nil {
			if err := tx.Create(carry).Error; err != nil {
				return err
			}
			pending = carry.Amount
		}

		return tx.Model(&models.CommissionBalance{}).
			Where("barber_id = ? AND shop_id = ?", payout.BarberID, payout.ShopID).
			Updates(map[string]interface{}{
				"pending_amount": pending,
				"last_payout_at": at,
			}).Error
	})
}

// HasPending 理发师在门店是否有未结束的打款单
func (r *PayoutRepository) HasPending(ctx context.Context, barberID, shopID int64) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("barber_id = ? AND shop_id = ? AND status = ?", barberID, shopID, models.PayoutStatusPending).
		Count(&count).Error
	return count > 0, err
}

// MarkFailure 打款失败，余额保持不变
func (r *PayoutRepository) MarkFailure(ctx context.Context, id int64, reason string, at time.Time) error {
	result := r.db.WithContext(ctx).Model(&models.Payout{}).
		Where("id = ? AND status = ?", id, models.PayoutStatusPending).
		Updates(map[string]interface{}{
			"status":         models.PayoutStatusFailure,
			"failure_reason": reason,
			"processed_at":   at,
		})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// ListByShop 分页获取门店打款记录，barberID 为 nil 时不过滤
func (r *PayoutRepository) ListByShop(ctx context.Context, shopID int64, barberID *int64, offset, limit int) ([]*models.Payout, int64, error) {
	var payouts []*models.Payout
	var total int64

	query := r.db.WithContext(ctx).Model(&models.Payout{}).Where("shop_id = ?", shopID)
	if barberID != nil {
		query = query.Where("barber_id = ?", *barberID)
	}
	if err := query.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	if err := query.Order("id DESC").Offset(offset).Limit(limit).Find(&payouts).Error; err != nil {
		return nil, 0, err
	}
	return payouts, total, nil
}
