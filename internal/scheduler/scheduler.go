// Package scheduler 提供定时任务调度
package scheduler

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/dumeirei/barbershop-backend/internal/common/cache"
)

// defaultTaskTimeout 单次任务执行超时
const defaultTaskTimeout = 5 * time.Minute

// Locker 任务级互斥锁，多实例部署时同一任务同一时刻只在一个实例上执行
type Locker interface {
	Lock(ctx context.Context, key string) (func(), error)
}

// Scheduler 定时任务调度器
type Scheduler struct {
	tasks   []*Task
	locker  Locker
	logger  *zap.Logger
	timeout time.Duration
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// Task 定时任务
type Task struct {
	Name     string
	Interval time.Duration
	Handler  func(ctx context.Context) error
}

// NewScheduler 创建调度器，locker 为空时不做跨实例互斥
func NewScheduler(locker Locker, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		tasks:   make([]*Task, 0),
		locker:  locker,
		logger:  log.Named("scheduler"),
		timeout: defaultTaskTimeout,
		ctx:     ctx,
		cancel:  cancel,
	}
}

// AddTask 添加任务，interval 不大于 0 的任务不会注册
func (s *Scheduler) AddTask(name string, interval time.Duration, handler func(ctx context.Context) error) {
	if interval <= 0 {
		s.logger.Info("task disabled", zap.String("task", name))
		return
	}
	s.tasks = append(s.tasks, &Task{
		Name:     name,
		Interval: interval,
		Handler:  handler,
	})
}

// Tasks 已注册的任务
func (s *Scheduler) Tasks() []*Task {
	return s.tasks
}

// Start 启动调度器
func (s *Scheduler) Start() {
	s.logger.Info("starting scheduler", zap.Int("tasks", len(s.tasks)))

	for _, task := range s.tasks {
		s.wg.Add(1)
		go s.runTask(task)
	}
}

// Stop 停止调度器，等待正在执行的任务结束
func (s *Scheduler) Stop() {
	s.logger.Info("stopping scheduler")
	s.cancel()
	s.wg.Wait()
	s.logger.Info("scheduler stopped")
}

// runTask 运行单个任务
func (s *Scheduler) runTask(task *Task) {
	defer s.wg.Done()

	s.logger.Info("task started", zap.String("task", task.Name), zap.Duration("interval", task.Interval))

	ticker := time.NewTicker(task.Interval)
	defer ticker.Stop()

	// 立即执行一次
	s.executeTask(s.ctx, task)

	for {
		select {
		case <-s.ctx.Done():
			s.logger.Info("task stopped", zap.String("task", task.Name))
			return
		case <-ticker.C:
			s.executeTask(s.ctx, task)
		}
	}
}

// executeTask 执行任务；其他实例持有任务锁时跳过本轮
func (s *Scheduler) executeTask(parent context.Context, task *Task) {
	ctx, cancel := context.WithTimeout(parent, s.timeout)
	defer cancel()

	if s.locker != nil {
		unlock, err := s.locker.Lock(ctx, cache.BuildKey("scheduler:", task.Name))
		if err != nil {
			if stderrors.Is(err, cache.ErrLockHeld) {
				s.logger.Debug("task running elsewhere, skipped", zap.String("task", task.Name))
				return
			}
			s.logger.Warn("acquire task lock failed", zap.String("task", task.Name), zap.Error(err))
			return
		}
		defer unlock()
	}

	start := time.Now()
	if err := task.Handler(ctx); err != nil {
		s.logger.Error("task failed", zap.String("task", task.Name), zap.Error(err))
		return
	}
	s.logger.Debug("task completed", zap.String("task", task.Name), zap.Duration("latency", time.Since(start)))
}
