package scheduler

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/barbershop-backend/internal/common/config"
)

// 任务名称
const (
	TaskPostBoothRent     = "post_booth_rent"
	TaskDispatchCampaigns = "dispatch_scheduled_campaigns"
	TaskReconcileBalances = "reconcile_balances"
)

// RentPoster 摊位租金记账
type RentPoster interface {
	PostDueRent(ctx context.Context, now time.Time) (int, error)
	Reconcile(ctx context.Context) (int, error)
}

// CampaignDispatcher 定时活动发送
type CampaignDispatcher interface {
	DispatchScheduled(ctx context.Context, now time.Time) (int, error)
}

// TaskHandler 任务处理器
type TaskHandler struct {
	balances  RentPoster
	campaigns CampaignDispatcher
	now       func() time.Time
	logger    *zap.Logger
}

// NewTaskHandler 创建任务处理器
func NewTaskHandler(balances RentPoster, campaigns CampaignDispatcher, log *zap.Logger) *TaskHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &TaskHandler{
		balances:  balances,
		campaigns: campaigns,
		now:       time.Now,
		logger:    log.Named("task"),
	}
}

// PostBoothRent 为到期的摊位租金安排记账
func (h *TaskHandler) PostBoothRent(ctx context.Context) error {
	posted, err := h.balances.PostDueRent(ctx, h.now())
	if posted > 0 {
		h.logger.Info("booth rent posted", zap.Int("periods", posted))
	}
	return err
}

// DispatchCampaigns 发送到期的定时活动
func (h *TaskHandler) DispatchCampaigns(ctx context.Context) error {
	sent, err := h.campaigns.DispatchScheduled(ctx, h.now())
	if sent > 0 {
		h.logger.Info("scheduled campaigns sent", zap.Int("campaigns", sent))
	}
	return err
}

// ReconcileBalances 按交易流水重算所有佣金余额
func (h *TaskHandler) ReconcileBalances(ctx context.Context) error {
	n, err := h.balances.Reconcile(ctx)
	if err != nil {
		return err
	}
	h.logger.Info("balances reconciled", zap.Int("balances", n))
	return nil
}

// SetupTasks 设置所有任务
func SetupTasks(scheduler *Scheduler, handler *TaskHandler, cfg config.SchedulerConfig) {
	seconds := func(n int) time.Duration { return time.Duration(n) * time.Second }

	// 摊位租金按周期补记
	scheduler.AddTask(TaskPostBoothRent, seconds(cfg.BoothRentInterval), handler.PostBoothRent)

	// 定时活动
	scheduler.AddTask(TaskDispatchCampaigns, seconds(cfg.CampaignDispatchInterval), handler.DispatchCampaigns)

	scheduler.AddTask(TaskReconcileBalances, seconds(cfg.ReconcileInterval), handler.ReconcileBalances)
}
