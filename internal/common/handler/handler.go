// Package handler 提供 API Handler 的通用辅助函数
// 统一错误处理、认证检查、参数解析
package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/response"
	"github.com/dumeirei/barbershop-backend/internal/common/utils"
	"github.com/dumeirei/barbershop-backend/internal/middleware"
	"github.com/dumeirei/barbershop-backend/internal/models"
)

// HandleError 处理错误并发送适当的响应
// 如果 err 为 nil，返回 false；否则发送错误响应并返回 true，调用方应该 return
//
// 参数校验类错误返回 400，鉴权类错误返回 403，其余业务错误沿用 200 + 业务码
//
//	result, err := service.DoSomething()
//	if HandleError(c, err) {
//	    return
//	}
func HandleError(c *gin.Context, err error) bool {
	if err == nil {
		return false
	}
	if !errors.IsAppError(err) {
		_ = c.Error(err)
		response.InternalError(c, err.Error())
		return true
	}

	appErr := errors.GetAppError(err)
	// 外部支付与消息通道错误交给访问日志和链路追踪记录
	if errors.IsExternal(appErr) {
		_ = c.Error(err)
	}
	switch {
	case errors.IsValidation(appErr):
		response.ErrorWithStatus(c, http.StatusBadRequest, appErr.Code, appErr.Message)
	case errors.IsAuthorization(appErr):
		response.ErrorWithStatus(c, http.StatusForbidden, appErr.Code, appErr.Message)
	default:
		response.Error(c, appErr.Code, appErr.Message)
	}
	return true
}

// MustSucceed 如果有错误则返回错误响应，否则返回成功响应
// 调用 MustSucceed 后必须 return
func MustSucceed(c *gin.Context, err error, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.Success(c, data)
}

// MustSucceedWithMessage 带自定义成功消息
func MustSucceedWithMessage(c *gin.Context, err error, message string, data interface{}) {
	if HandleError(c, err) {
		return
	}
	response.SuccessWithMessage(c, message, data)
}

// MustSucceedPage 分页响应版本
func MustSucceedPage(c *gin.Context, err error, list interface{}, total int64, page, pageSize int) {
	if HandleError(c, err) {
		return
	}
	response.SuccessPage(c, list, total, page, pageSize)
}

// RequireUserID 获取当前用户ID，如果未登录则返回401响应
//
//	userID, ok := handler.RequireUserID(c)
//	if !ok {
//	    return
//	}
func RequireUserID(c *gin.Context) (int64, bool) {
	userID := middleware.GetUserID(c)
	if userID == 0 {
		response.Unauthorized(c, "login required")
		return 0, false
	}
	return userID, true
}

// RequireCaller 获取当前调用者身份，未登录时返回401响应
func RequireCaller(c *gin.Context) (models.Caller, bool) {
	userID, ok := RequireUserID(c)
	if !ok {
		return models.Caller{}, false
	}
	return models.Caller{UserID: userID, UserType: middleware.GetUserType(c)}, true
}

// ParseParamID 解析指定路径参数为 int64
// 解析失败时已发送400响应
func ParseParamID(c *gin.Context, paramName, resourceName string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(paramName), 10, 64)
	if err != nil || id <= 0 {
		response.BadRequest(c, "invalid "+resourceName+" id")
		return 0, false
	}
	return id, true
}

// ParseID 解析路径参数 "id"
func ParseID(c *gin.Context, resourceName string) (int64, bool) {
	return ParseParamID(c, "id", resourceName)
}

// ParseQueryID 解析查询参数中的可选 ID
// 参数为空返回 (nil, true)；解析失败返回 (nil, false) 且已发送400响应
func ParseQueryID(c *gin.Context, paramName, resourceName string) (*int64, bool) {
	idStr := c.Query(paramName)
	if idStr == "" {
		return nil, true
	}
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		response.BadRequest(c, "invalid "+resourceName+" id")
		return nil, false
	}
	return &id, true
}

// BindPagination 从查询参数绑定并规范化分页参数
func BindPagination(c *gin.Context) utils.Pagination {
	var p utils.Pagination
	p.Page, _ = strconv.Atoi(c.DefaultQuery("page", "1"))
	p.PageSize, _ = strconv.Atoi(c.DefaultQuery("page_size", "10"))
	p.Normalize()
	return p
}
