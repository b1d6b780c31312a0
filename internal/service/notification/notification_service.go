// Package notification 提供打款与群发审计通知的查询
package notification

import (
	"context"
	stderrors "errors"

	"gorm.io/gorm"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/models"
	"github.com/dumeirei/barbershop-backend/internal/repository"
)

// Service 通知服务
type Service struct {
	notificationRepo *repository.NotificationRepository
}

// NewService 创建通知服务
func NewService(notificationRepo *repository.NotificationRepository) *Service {
	return &Service{notificationRepo: notificationRepo}
}

// ListResult 通知分页结果
type ListResult struct {
	List   []*models.Notification `json:"list"`
	Total  int64                  `json:"total"`
	Unread int64                  `json:"unread"`
}

// List 当前用户的通知，最新的在前
func (s *Service) List(ctx context.Context, caller models.Caller, p *utils.Pagination) (*ListResult, error) {
	p.Normalize()
	list, total, err := s.notificationRepo.ListByUser(ctx, caller.UserID, p.GetOffset(), p.GetLimit())
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	unread, err := s.notificationRepo.CountUnread(ctx, caller.UserID)
	if err != nil {
		return nil, errors.ErrDatabaseError.WithError(err)
	}
	return &ListResult{List: list, Total: total, Unread: unread}, nil
}

// MarkRead 标记已读，只能操作自己的通知
func (s *Service) MarkRead(ctx context.Context, caller models.Caller, id int64) error {
	if err := s.notificationRepo.MarkAsRead(ctx, id, caller.UserID); err != nil {
		if stderrors.Is(err, gorm.ErrRecordNotFound) {
			return errors.ErrNotFound.WithMessage("notification not found")
		}
		return errors.ErrDatabaseError.WithError(err)
	}
	return nil
}
