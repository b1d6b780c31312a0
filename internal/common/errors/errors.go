// Package errors 定义业务错误码和错误处理
package errors

import (
	stderrors "errors"
	"fmt"
)

// AppError 应用错误
type AppError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Err     error  `json:"-"`
}

// Error 实现 error 接口
func (e *AppError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%d] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%d] %s", e.Code, e.Message)
}

// Unwrap 实现 errors.Unwrap
func (e *AppError) Unwrap() error {
	return e.Err
}

// Is 按错误码比较，使 errors.Is(err, ErrXxx) 对派生错误同样成立
func (e *AppError) Is(target error) bool {
	t, ok := target.(*AppError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// New 创建新的应用错误
func New(code int, message string) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
	}
}

// WithMessage 修改错误消息
func (e *AppError) WithMessage(message string) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: message,
		Err:     e.Err,
	}
}

// WithError 添加原始错误
func (e *AppError) WithError(err error) *AppError {
	return &AppError{
		Code:    e.Code,
		Message: e.Message,
		Err:     err,
	}
}

// 通用错误码 (1000-1999)
var (
	ErrUnknown         = New(1000, "unknown error")
	ErrInvalidParams   = New(1001, "invalid parameters")
	ErrNotFound        = New(1002, "resource not found")
	ErrAlreadyExists   = New(1003, "resource already exists")
	ErrDatabaseError   = New(1004, "database error")
	ErrCacheError      = New(1005, "cache error")
	ErrInternalError   = New(1006, "internal error")
	ErrExternalService = New(1007, "external service error")
	ErrRateLimitExceed = New(1008, "too many requests")
	ErrOperationFailed = New(1009, "operation failed")
)

// 认证与授权错误码 (2000-2999)
var (
	ErrUnauthorized     = New(2000, "not logged in")
	ErrTokenExpired     = New(2001, "token expired")
	ErrTokenInvalid     = New(2002, "invalid token")
	ErrPermissionDenied = New(2004, "permission denied")
	ErrNotShopOwner     = New(2010, "caller does not manage this shop")
	ErrNotCampaignOwner = New(2011, "caller does not own this campaign")
	ErrCallerMismatch   = New(2012, "user_id does not match the authenticated user")
)

// 佣金方案错误码 (3000-3999)
var (
	ErrArrangementNotConfigured = New(3000, "no arrangement configured")
	ErrInvalidArrangementType   = New(3001, "invalid arrangement type")
	ErrPercentageOutOfRange     = New(3002, "commission percentage must be within [0, 100]")
	ErrNegativeBoothRent        = New(3003, "booth rent amount must be non-negative")
	ErrInvalidFrequency         = New(3004, "invalid booth rent frequency")
	ErrShopNotFound             = New(3005, "shop not found")
	ErrBarberNotInShop          = New(3006, "barber is not a member of this shop")
	ErrInvalidSaleKind          = New(3007, "invalid sale kind")
	ErrInvalidGrossAmount       = New(3008, "gross amount must be positive")
)

// 余额与打款错误码 (4000-4999)
var (
	ErrNothingToPay         = New(4000, "nothing to pay")
	ErrPayoutInProgress     = New(4001, "a payout for this barber is already in progress")
	ErrPayoutTransferFail   = New(4002, "payout transfer failed")
	ErrPayoutAccountAbsent  = New(4003, "barber has no payout account")
	ErrInvalidPayoutAction  = New(4004, "invalid payout action")
	ErrInvalidPayoutAccount = New(4006, "payout account must be a connected account id")
	ErrPayoutNotFound       = New(4007, "payout not found")
	ErrTransactionSettled   = New(4008, "only pending transactions can be voided")
	ErrPayoutUnreconciled   = New(4009, "a previous payout for this barber is awaiting reconciliation")
)

// 营销活动错误码 (5000-5999)
var (
	ErrCampaignNotFound      = New(5000, "campaign not found")
	ErrCampaignStatusInvalid = New(5001, "campaign status does not allow this operation")
	ErrZeroRecipients        = New(5002, "campaign has no recipients")
	ErrInvalidChannel        = New(5003, "invalid campaign channel")
	ErrInvalidOwnerType      = New(5004, "invalid billing owner type")
	ErrInvalidSegment        = New(5005, "invalid recipient segment")
	ErrScheduleInPast        = New(5006, "scheduled time must be in the future")
	ErrNoTestContact         = New(5007, "caller has no contact for this channel")
)

// 计费与支付错误码 (6000-6999)
var (
	ErrBillingAccountNotFound = New(6000, "billing account not found")
	ErrNoPaymentMethod        = New(6001, "no active payment method on billing account")
	ErrNoCustomerRef          = New(6002, "no payment customer reference on billing account")
	ErrChargeFailed           = New(6003, "payment charge did not succeed")
)

// 消息发送错误码 (7000-7999)
var (
	ErrMessageSendFailed = New(7000, "message transport failed")
	ErrTransportMissing  = New(7001, "no transport configured for channel")
)

// IsAppError 判断是否为应用错误
func IsAppError(err error) bool {
	var appErr *AppError
	return stderrors.As(err, &appErr)
}

// GetAppError 获取应用错误
func GetAppError(err error) *AppError {
	var appErr *AppError
	if stderrors.As(err, &appErr) {
		return appErr
	}
	return ErrUnknown.WithError(err)
}

// IsValidation 是否为参数校验类错误（在任何外部调用之前拒绝）
func IsValidation(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch {
	case appErr.Code == ErrInvalidParams.Code:
		return true
	case appErr.Code >= 3000 && appErr.Code < 4000:
		return appErr.Code != ErrArrangementNotConfigured.Code && appErr.Code != ErrShopNotFound.Code
	case appErr.Code == ErrInvalidPayoutAction.Code, appErr.Code == ErrInvalidPayoutAccount.Code:
		return true
	case appErr.Code >= 5002 && appErr.Code <= 5007:
		return true
	}
	return false
}

// IsAuthorization 是否为鉴权类错误
func IsAuthorization(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	return appErr.Code >= 2004 && appErr.Code < 3000
}

// IsExternal 是否为外部服务错误（支付或消息通道）
func IsExternal(err error) bool {
	var appErr *AppError
	if !stderrors.As(err, &appErr) {
		return false
	}
	switch appErr.Code {
	case ErrExternalService.Code, ErrPayoutTransferFail.Code, ErrChargeFailed.Code, ErrMessageSendFailed.Code:
		return true
	}
	return false
}

