// Package marketing 提供营销活动与计费的 HTTP Handler
package marketing

import (
	"github.com/gin-gonic/gin"

	"github.com/dumeirei/barbershop-backend/internal/common/errors"
	"github.com/dumeirei/barbershop-backend/internal/common/handler"
	"github.com/dumeirei/barbershop-backend/internal/common/response"
	"github.com/dumeirei/barbershop-backend/internal/models"
	marketingService "github.com/dumeirei/barbershop-backend/internal/service/marketing"
)

// CampaignHandler 营销活动处理器
type CampaignHandler struct {
	campaignService *marketingService.CampaignService
	billingService  *marketingService.BillingService
}

// NewCampaignHandler 创建营销活动处理器
func NewCampaignHandler(campaignSvc *marketingService.CampaignService, billingSvc *marketingService.BillingService) *CampaignHandler {
	return &CampaignHandler{
		campaignService: campaignSvc,
		billingService:  billingSvc,
	}
}

// RegisterRoutes 注册路由
func (h *CampaignHandler) RegisterRoutes(r *gin.RouterGroup) {
	campaigns := r.Group("/campaigns")
	{
		campaigns.POST("", h.Create)
		campaigns.GET("", h.List)
		campaigns.POST("/send", h.Send)
		campaigns.POST("/cost-estimate", h.EstimateCost)
		campaigns.GET("/:id", h.Get)
		campaigns.POST("/:id/approve", h.Approve)
		campaigns.POST("/:id/schedule", h.Schedule)
		campaigns.GET("/:id/cost", h.PreviewCost)
		campaigns.GET("/:id/billing", h.CampaignBilling)
	}

	r.POST("/billing/accounts", h.CreateBillingAccount)
	r.GET("/billing/accounts/:id/records", h.BillingRecords)
}

// Create 创建营销活动
// @Summary 创建营销活动
// @Tags 营销-活动
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body marketing.CreateCampaignRequest true "活动"
// @Success 200 {object} response.Response{data=models.MarketingCampaign}
// @Router /api/v1/campaigns [post]
func (h *CampaignHandler) Create(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	var req marketingService.CreateCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid campaign: "+err.Error())
		return
	}

	campaign, err := h.campaignService.Create(c.Request.Context(), caller, &req)
	handler.MustSucceed(c, err, campaign)
}

// List 我的营销活动
// @Summary 营销活动列表
// @Tags 营销-活动
// @Produce json
// @Security Bearer
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/campaigns [get]
func (h *CampaignHandler) List(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	campaigns, total, err := h.campaignService.List(c.Request.Context(), caller, &p)
	handler.MustSucceedPage(c, err, campaigns, total, p.Page, p.PageSize)
}

// Get 活动详情
func (h *CampaignHandler) Get(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}
	id, ok := handler.ParseID(c, "campaign")
	if !ok {
		return
	}

	campaign, err := h.campaignService.Get(c.Request.Context(), caller, id)
	handler.MustSucceed(c, err, campaign)
}

// Approve 审批活动
// @Summary 审批活动
// @Tags 营销-活动
// @Produce json
// @Security Bearer
// @Param id path int true "活动ID"
// @Success 200 {object} response.Response{data=models.MarketingCampaign}
// @Router /api/v1/campaigns/{id}/approve [post]
func (h *CampaignHandler) Approve(c *gin.Context) {
	caller, id, ok := requireCallerAndID(c, "campaign")
	if !ok {
		return
	}

	campaign, err := h.campaignService.Approve(c.Request.Context(), caller, id)
	handler.MustSucceed(c, err, campaign)
}

// Schedule 定时发送
// @Summary 定时发送
// @Tags 营销-活动
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "活动ID"
// @Param request body marketing.ScheduleCampaignRequest true "发送时间"
// @Success 200 {object} response.Response{data=models.MarketingCampaign}
// @Router /api/v1/campaigns/{id}/schedule [post]
func (h *CampaignHandler) Schedule(c *gin.Context) {
	caller, id, ok := requireCallerAndID(c, "campaign")
	if !ok {
		return
	}

	var req marketingService.ScheduleCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid schedule: "+err.Error())
		return
	}

	campaign, err := h.campaignService.Schedule(c.Request.Context(), caller, id, req.ScheduledAt)
	handler.MustSucceed(c, err, campaign)
}

// PreviewCost 按当前收件人预估活动费用
// @Summary 活动费用预览
// @Tags 营销-计费
// @Produce json
// @Security Bearer
// @Param id path int true "活动ID"
// @Success 200 {object} response.Response{data=marketing.CostPreview}
// @Router /api/v1/campaigns/{id}/cost [get]
func (h *CampaignHandler) PreviewCost(c *gin.Context) {
	caller, id, ok := requireCallerAndID(c, "campaign")
	if !ok {
		return
	}

	preview, err := h.campaignService.PreviewCost(c.Request.Context(), caller, id)
	handler.MustSucceed(c, err, preview)
}

// EstimateCost 按收件人数估算费用
// @Summary 费用估算
// @Tags 营销-计费
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body marketing.EstimateCostRequest true "估算参数"
// @Success 200 {object} response.Response{data=marketing.CostPreview}
// @Router /api/v1/campaigns/cost-estimate [post]
func (h *CampaignHandler) EstimateCost(c *gin.Context) {
	if _, ok := handler.RequireUserID(c); !ok {
		return
	}

	var req marketingService.EstimateCostRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid estimate: "+err.Error())
		return
	}

	preview, err := h.campaignService.EstimateCost(&req)
	handler.MustSucceed(c, err, preview)
}

// Send 扣费并发送活动，send_test 为真时只发给本人
// @Summary 发送活动
// @Tags 营销-活动
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body marketing.SendCampaignRequest true "发送请求"
// @Success 200 {object} response.Response{data=marketing.SendCampaignResponse}
// @Router /api/v1/campaigns/send [post]
func (h *CampaignHandler) Send(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	var req marketingService.SendCampaignRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid send request: "+err.Error())
		return
	}

	resp, err := h.campaignService.Send(c.Request.Context(), caller, &req)
	if handler.HandleError(c, err) {
		return
	}
	// 已扣费但未送达，业务码提示失败，同时带回计费与统计
	if !resp.Success {
		response.ErrorWithData(c, errors.ErrMessageSendFailed.Code, "campaign failed: no message was delivered", resp)
		return
	}
	response.Success(c, resp)
}

// CampaignBilling 活动的扣费记录
// @Summary 活动计费记录
// @Tags 营销-计费
// @Produce json
// @Security Bearer
// @Param id path int true "活动ID"
// @Success 200 {object} response.Response{data=[]models.BillingRecord}
// @Router /api/v1/campaigns/{id}/billing [get]
func (h *CampaignHandler) CampaignBilling(c *gin.Context) {
	caller, id, ok := requireCallerAndID(c, "campaign")
	if !ok {
		return
	}

	records, err := h.campaignService.BillingRecords(c.Request.Context(), caller, id)
	handler.MustSucceed(c, err, records)
}

// CreateBillingAccount 开通计费账户
// @Summary 开通计费账户
// @Tags 营销-计费
// @Accept json
// @Produce json
// @Security Bearer
// @Param request body marketing.CreateAccountRequest true "Stripe 客户与支付方式"
// @Success 200 {object} response.Response{data=models.BillingAccount}
// @Router /api/v1/billing/accounts [post]
func (h *CampaignHandler) CreateBillingAccount(c *gin.Context) {
	caller, ok := handler.RequireCaller(c)
	if !ok {
		return
	}

	var req marketingService.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid billing account: "+err.Error())
		return
	}

	account, err := h.billingService.CreateAccount(c.Request.Context(), caller, &req)
	handler.MustSucceed(c, err, account)
}

// BillingRecords 计费账户的扣费记录
// @Summary 计费记录
// @Tags 营销-计费
// @Produce json
// @Security Bearer
// @Param id path int true "计费账户ID"
// @Param page query int false "页码" default(1)
// @Param page_size query int false "每页数量" default(10)
// @Success 200 {object} response.Response{data=response.PageData}
// @Router /api/v1/billing/accounts/{id}/records [get]
func (h *CampaignHandler) BillingRecords(c *gin.Context) {
	caller, id, ok := requireCallerAndID(c, "billing account")
	if !ok {
		return
	}

	p := handler.BindPagination(c)
	records, total, err := h.billingService.History(c.Request.Context(), caller, id, &p)
	handler.MustSucceedPage(c, err, records, total, p.Page, p.PageSize)
}

func requireCallerAndID(c *gin.Context, resource string) (caller models.Caller, id int64, ok bool) {
	caller, ok = handler.RequireCaller(c)
	if !ok {
		return caller, 0, false
	}
	id, ok = handler.ParseID(c, resource)
	return caller, id, ok
}
