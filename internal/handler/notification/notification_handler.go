// Package notification 提供通知查询的 HTTP Handler
package notification

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/barbershop-backend/internal/common/handler"
	notificationService "github.com/dumeirei/barbershop-backend/internal/service/notification"
)

// Handler 通知处理器
type Handler struct {
	notificationService *notificationService.Service
}

// NewHandler 创建通知处理器
func NewHandler(svc *notificationService.Service) *Handler {
	return &Handler{notificationService: svc}
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("/notifications", h.List)
	r.POST("/notifications/:id/read", h.MarkRead)
}

// List 我的通知
// @Summary 我的通知
// @Tags 通知
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=notification.ListResult}
// @Router /api/v1/notifications [get]
func (h *Handler) List(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	result, err := h.notificationService.List(c.Request.Context(), caller, &p)
	handler.MustSucceed(c, err, result)
}

// MarkRead 标记已读
// @Summary 标记通知已读
// @Tags 通知
// @Produce json
// @Security Bearer
// @Param id path int true "通知ID"
// @Success 200 {object} response.Response
// @Router /api/v1/notifications/{id}/read [post]
func (h *Handler) MarkRead(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "notification")
	if !ok {
		return
	}

	err := h.notificationService.MarkRead(c.Request.Context(), caller, id)
	handler.MustSucceedWithMessage(c, err, "notification marked as read", nil)
}
