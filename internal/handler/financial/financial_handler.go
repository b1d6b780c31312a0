// Package financial 提供佣金方案、余额与打款的 HTTP Handler
package financial

import (
	"fmt"

	"github.com/gin-gonic/gin"

	"github.com/dumeirei/barbershop-backend/internal/common/handler"
	"github.com/dumeirei/barbershop-backend/internal/common/response"
	financialService "github.com/dumeirei/barbershop-backend/internal/service/financial"
)

// Handler 佣金与打款处理器
type Handler struct {
	arrangementService *financialService.ArrangementService
	balanceService     *financialService.BalanceService
	payoutService      *financialService.PayoutService
}

// NewHandler 创建佣金与打款处理器
func NewHandler(
	arrangementSvc *financialService.ArrangementService,
	balanceSvc *financialService.BalanceService,
	payoutSvc *financialService.PayoutService,
) *Handler {
	return &Handler{
		arrangementService: arrangementSvc,
		balanceService:     balanceSvc,
		payoutService:      payoutSvc,
	}
}

// PayoutDetails 打款统计
type PayoutDetails struct {
	Processed int    `json:"processed"`
	Errors    int    `json:"errors"`
	Skipped   int    `json:"skipped"`
	TotalPaid string `json:"total_paid"`
}

// PayoutResponse 打款响应
type PayoutResponse struct {
	Success bool                          `json:"success"`
	Message string                        `json:"message"`
	Details PayoutDetails                 `json:"details"`
	Items   []financialService.PayoutItem `json:"items"`
}

// RegisterRoutes 注册路由
func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	shops := r.Group("/shops/:shop_id")
	{
		shops.GET("/barbers", h.ListBarbers)
		shops.POST("/barbers", h.AddBarber)
		shops.GET("/barbers/:barber_id/arrangement", h.GetArrangement)
		shops.PUT("/barbers/:barber_id/arrangement", h.UpsertArrangement)
		shops.DELETE("/barbers/:barber_id/arrangement", h.DeactivateArrangement)
		shops.GET("/barbers/:barber_id/transactions", h.ListTransactions)
		shops.POST("/transactions/:transaction_id/void", h.VoidTransaction)

		shops.POST("/sales", h.PostSale)
		shops.GET("/balances", h.ListBalances)

		shops.POST("/payouts/preview", h.PreviewPayout)
		shops.POST("/payouts", h.ProcessPayout)
		shops.GET("/payouts", h.ListPayouts)
		shops.GET("/payouts/:payout_no", h.GetPayout)
	}

	r.PUT("/barbers/me/payout-account", h.SetPayoutAccount)
}

// SetPayoutAccountRequest 绑定收款账户请求
type SetPayoutAccountRequest struct {
	Account string `json:"account" binding:"required"`
}

// AddBarberRequest 添加门店理发师请求
type AddBarberRequest struct {
	BarberID int64 `json:"barber_id" binding:"required"`
}

// ListBarbers 门店在职理发师
// @Summary 门店理发师
// @Tags 佣金-门店
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Success 200 {object} response.Response{data=[]int64}
// @Router /api/v1/shops/{shop_id}/barbers [get]
func (h *Handler) ListBarbers(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}

	ids, err := h.arrangementService.ListBarbers(c.Request.Context(), caller, shopID)
	handler.MustSucceed(c, err, ids)
}

// AddBarber 添加门店理发师
// @Summary 添加门店理发师
// @Tags 佣金-门店
// @Accept json
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param request body AddBarberRequest true "理发师"
// @Success 200 {object} response.Response
// @Router /api/v1/shops/{shop_id}/barbers [post]
func (h *Handler) AddBarber(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}

	var req AddBarberRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid barber: "+err.Error())
		return
	}

	err := h.arrangementService.AddBarber(c.Request.Context(), caller, shopID, req.BarberID)
	handler.MustSucceedWithMessage(c, err, "barber added", nil)
}

// GetArrangement 获取理发师的佣金方案
// @Summary 获取理发师的佣金方案
// @Tags 佣金-方案
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param barber_id path int true "理发师ID"
// @Success 200 {object} response.Response{data=models.FinancialArrangement}
// @Router /api/v1/shops/{shop_id}/barbers/{barber_id}/arrangement [get]
func (h *Handler) GetArrangement(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, barberID, ok := parseShopBarber(c)
	if !ok {
		return
	}

	arrangement, err := h.arrangementService.Get(c.Request.Context(), caller, barberID, shopID)
	handler.MustSucceed(c, err, arrangement)
}

// UpsertArrangement 设置理发师的佣金方案，替换原有生效方案
// @Summary 设置佣金方案
// @Tags 佣金-方案
// @Accept json
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param barber_id path int true "理发师ID"
// @Param request body financial.UpsertArrangementRequest true "方案"
// @Success 200 {object} response.Response{data=models.FinancialArrangement}
// @Router /api/v1/shops/{shop_id}/barbers/{barber_id}/arrangement [put]
func (h *Handler) UpsertArrangement(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, barberID, ok := parseShopBarber(c)
	if !ok {
		return
	}

	var req financialService.UpsertArrangementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid arrangement: "+err.Error())
		return
	}
	req.ShopID = shopID
	req.BarberID = barberID

	arrangement, err := h.arrangementService.Upsert(c.Request.Context(), caller, &req)
	handler.MustSucceed(c, err, arrangement)
}

// DeactivateArrangement 停用理发师的佣金方案
// @Summary 停用佣金方案
// @Tags 佣金-方案
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param barber_id path int true "理发师ID"
// @Success 200 {object} response.Response
// @Router /api/v1/shops/{shop_id}/barbers/{barber_id}/arrangement [delete]
func (h *Handler) DeactivateArrangement(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, barberID, ok := parseShopBarber(c)
	if !ok {
		return
	}

	err := h.arrangementService.Deactivate(c.Request.Context(), caller, barberID, shopID)
	handler.MustSucceedWithMessage(c, err, "arrangement deactivated", nil)
}

// PostSale 记录一笔销售并计提佣金
// @Summary 记录销售
// @Tags 佣金-流水
// @Accept json
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param request body financial.PostSaleRequest true "销售"
// @Success 200 {object} response.Response{data=models.CommissionTransaction}
// @Router /api/v1/shops/{shop_id}/sales [post]
func (h *Handler) PostSale(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}

	var req financialService.PostSaleRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid sale: "+err.Error())
		return
	}
	req.ShopID = shopID

	txn, err := h.balanceService.PostSale(c.Request.Context(), caller, &req)
	handler.MustSucceed(c, err, txn)
}

// ListBalances 门店所有理发师的佣金余额
// @Summary 门店佣金余额
// @Tags 佣金-余额
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Success 200 {object} response.Response{data=[]models.CommissionBalance}
// @Router /api/v1/shops/{shop_id}/balances [get]
func (h *Handler) ListBalances(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}

	balances, err := h.balanceService.ListBalances(c.Request.Context(), caller, shopID)
	handler.MustSucceed(c, err, balances)
}

// ListTransactions 理发师佣金流水
func (h *Handler) ListTransactions(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, barberID, ok := parseShopBarber(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	txns, total, err := h.balanceService.ListTransactions(c.Request.Context(), caller, shopID, barberID, &p)
	handler.MustSucceedPage(c, err, txns, total, p.Page, p.PageSize)
}

// PreviewPayout 预览打款金额，不产生任何副作用
// @Summary 打款预览
// @Tags 佣金-打款
// @Accept json
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param request body financial.PayoutRequest true "打款请求"
// @Success 200 {object} response.Response{data=financial.PayoutPreview}
// @Router /api/v1/shops/{shop_id}/payouts/preview [post]
func (h *Handler) PreviewPayout(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	req, ok := bindPayoutRequest(c)
	if !ok {
		return
	}

	preview, err := h.payoutService.Preview(c.Request.Context(), caller, req)
	handler.MustSucceed(c, err, preview)
}

// ProcessPayout 执行打款
// @Summary 执行打款
// @Tags 佣金-打款
// @Accept json
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param request body financial.PayoutRequest true "打款请求"
// @Success 200 {object} response.Response{data=PayoutResponse}
// @Router /api/v1/shops/{shop_id}/payouts [post]
func (h *Handler) ProcessPayout(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	req, ok := bindPayoutRequest(c)
	if !ok {
		return
	}

	result, err := h.payoutService.Execute(c.Request.Context(), caller, req)
	if handler.HandleError(c, err) {
		return
	}
	response.Success(c, toPayoutResponse(result))
}

// ListPayouts 打款记录
// @Summary 打款记录
// @Tags 佣金-打款
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param barber_id query int false "理发师ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/shops/{shop_id}/payouts [get]
func (h *Handler) ListPayouts(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}
	barberID, ok := handler.ParseQueryID(c, "barber_id", "barber")
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	payouts, total, err := h.payoutService.History(c.Request.Context(), caller, shopID, barberID, &p)
	handler.MustSucceedPage(c, err, payouts, total, p.Page, p.PageSize)
}

// GetPayout 按打款单号查询
// @Summary 打款详情
// @Tags 佣金-打款
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param payout_no path string true "打款单号"
// @Success 200 {object} response.Response{data=models.Payout}
// @Router /api/v1/shops/{shop_id}/payouts/{payout_no} [get]
func (h *Handler) GetPayout(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}

	payout, err := h.payoutService.Get(c.Request.Context(), caller, shopID, c.Param("payout_no"))
	handler.MustSucceed(c, err, payout)
}

// VoidTransaction 作废待打款流水
// @Summary 作废流水
// @Tags 佣金-流水
// @Produce json
// @Security Bearer
// @Param shop_id path int true "门店ID"
// @Param transaction_id path int true "流水ID"
// @Success 200 {object} response.Response{data=models.CommissionBalance}
// @Router /api/v1/shops/{shop_id}/transactions/{transaction_id}/void [post]
func (h *Handler) VoidTransaction(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return
	}
	txnID, ok := handler.ParseParamID(c, "transaction_id", "transaction")
	if !ok {
		return
	}

	balance, err := h.payoutService.VoidTransaction(c.Request.Context(), caller, shopID, txnID)
	handler.MustSucceed(c, err, balance)
}

// SetPayoutAccount 理发师绑定收款账户
// @Summary 绑定收款账户
// @Tags 佣金-打款
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body SetPayoutAccountRequest true "收款账户"
// @Success 200 {object} response.Response
// @Router /api/v1/barbers/me/payout-account [put]
func (h *Handler) SetPayoutAccount(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	var req SetPayoutAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payout account: "+err.Error())
		return
	}

	err := h.payoutService.SetPayoutAccount(c.Request.Context(), caller, req.Account)
	handler.MustSucceedWithMessage(c, err, "payout account updated", nil)
}

func parseShopBarber(c *gin.Context) (shopID, barberID int64, ok bool) {
	shopID, ok = handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return 0, 0, false
	}
	barberID, ok = handler.ParseParamID(c, "barber_id", "barber")
	if !ok {
		return 0, 0, false
	}
	return shopID, barberID, true
}

func bindPayoutRequest(c *gin.Context) (*financialService.PayoutRequest, bool) {
	shopID, ok := handler.ParseParamID(c, "shop_id", "shop")
	if !ok {
		return nil, false
	}
	var req financialService.PayoutRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid payout request: "+err.Error())
		return nil, false
	}
	req.ShopID = shopID
	return &req, true
}

func toPayoutResponse(result *financialService.PayoutResult) PayoutResponse {
	resp := PayoutResponse{
		Success: result.Errors == 0,
		Details: PayoutDetails{
			Processed: result.Processed,
			Errors:    result.Errors,
			Skipped:   result.Skipped,
			TotalPaid: result.TotalPaid.StringFixed(2),
		},
		Items: result.Items,
	}
	switch {
	case result.Errors == 0:
		resp.Message = fmt.Sprintf("processed %d payouts", result.Processed)
	case result.Processed == 0:
		resp.Message = fmt.Sprintf("all %d payouts failed", result.Errors)
	default:
		resp.Message = fmt.Sprintf("processed %d payouts, %d failed", result.Processed, result.Errors)
	}
	return resp
}
