package admin

import (
	"errors"
	"strconv"
	"strings"

	"github.com/syncbridge/internal/batch"
	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/http/response"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/provider"
	"github.com/syncbridge/internal/repository"

	"github.com/gin-gonic/gin"
)

var errQueueDisabled = errors.New("queue disabled")

// Handler 运维后台处理器
type Handler struct {
	*provider.Container
}

// New 创建运维后台处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// ListOrders 订单列表
func (h *Handler) ListOrders(c *gin.Context) {
	filter := repository.OrderListFilter{
		ClientID:         parseUintQuery(c, "client_id"),
		ChannelID:        parseUintQuery(c, "channel_id"),
		Status:           strings.TrimSpace(c.Query("status")),
		FulfillmentState: strings.TrimSpace(c.Query("fulfillment_state")),
		Page:             parseIntQuery(c, "page", 1),
		PageSize:         parseIntQuery(c, "page_size", 20),
	}
	if onHold := strings.TrimSpace(c.Query("on_hold")); onHold != "" {
		value := onHold == "true" || onHold == "1"
		filter.OnHold = &value
	}

	orders, total, err := h.OrderRepo.ListAdmin(filter)
	if err != nil {
		response.Internal(c, "list orders failed")
		return
	}
	response.SuccessWithPage(c, orders, response.NewPagination(filter.Page, filter.PageSize, total))
}

// GetOrder 订单详情
func (h *Handler) GetOrder(c *gin.Context) {
	id := parseUintParam(c, "id")
	if id == 0 {
		response.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.OrderRepo.GetByID(id)
	if err != nil {
		response.Internal(c, "get order failed")
		return
	}
	if order == nil {
		response.NotFound(c, "order not found")
		return
	}
	response.Success(c, order)
}

// ReleaseOrderHold 放行挂起订单
func (h *Handler) ReleaseOrderHold(c *gin.Context) {
	id := parseUintParam(c, "id")
	if id == 0 {
		response.BadRequest(c, "invalid order id")
		return
	}
	order, err := h.OrderRepo.GetByID(id)
	if err != nil {
		response.Internal(c, "get order failed")
		return
	}
	if order == nil {
		response.NotFound(c, "order not found")
		return
	}
	if !order.OnHold {
		response.Success(c, gin.H{"released": false, "reason": "order not on hold"})
		return
	}

	if err := h.OrderRepo.Updates(order.ID, map[string]interface{}{
		"on_hold":     false,
		"hold_reason": "",
	}); err != nil {
		response.Internal(c, "release hold failed")
		return
	}
	if err := h.SyncLogRepo.Append(&models.SyncLogEntry{
		EntityType:    constants.EntityOrder,
		EntityID:      order.ID,
		Origin:        constants.OriginPlatform,
		Action:        constants.SyncActionHold,
		ChangedFields: models.StringArray{"on_hold"},
		Before:        models.JSON{"on_hold": true, "hold_reason": order.HoldReason},
		After:         models.JSON{"on_hold": false},
	}); err != nil {
		logger.Warnw("admin_release_hold_log_failed", "order_id", order.ID, "error", err)
	}
	if err := h.Orchestrator.KickFulfillment(order.ID); err != nil {
		logger.Warnw("admin_release_hold_kick_failed", "order_id", order.ID, "error", err)
	}
	logger.Infow("admin_order_hold_released", "order_id", order.ID)
	response.Success(c, gin.H{"released": true})
}

// CancelOrder 请求取消订单履约
func (h *Handler) CancelOrder(c *gin.Context) {
	id := parseUintParam(c, "id")
	if id == 0 {
		response.BadRequest(c, "invalid order id")
		return
	}
	if h.Adapter == nil {
		response.Internal(c, "fulfillment adapter unavailable")
		return
	}
	if err := h.Adapter.RequestCancel(id); err != nil {
		response.Internal(c, err.Error())
		return
	}
	if err := h.SyncLogRepo.Append(&models.SyncLogEntry{
		EntityType: constants.EntityOrder,
		EntityID:   id,
		Origin:     constants.OriginPlatform,
		Action:     constants.SyncActionCancel,
	}); err != nil {
		logger.Warnw("admin_cancel_log_failed", "order_id", id, "error", err)
	}
	response.Success(c, gin.H{"cancel_requested": true})
}

// ListMismatches 运输方式失配列表
func (h *Handler) ListMismatches(c *gin.Context) {
	filter := repository.MismatchListFilter{
		ClientID: parseUintQuery(c, "client_id"),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
	}
	if resolved := strings.TrimSpace(c.Query("resolved")); resolved != "" {
		value := resolved == "true" || resolved == "1"
		filter.Resolved = &value
	}

	mismatches, total, err := h.ShippingRepo.ListMismatches(filter)
	if err != nil {
		response.Internal(c, "list mismatches failed")
		return
	}
	response.SuccessWithPage(c, mismatches, response.NewPagination(filter.Page, filter.PageSize, total))
}

// ResolveMismatchRequest 失配解决请求
type ResolveMismatchRequest struct {
	ShippingMethodID uint   `json:"shipping_method_id" binding:"required"`
	ResolvedBy       string `json:"resolved_by" binding:"required"`
	CreateMapping    bool   `json:"create_mapping"`                        // 同时创建渠道级映射
}

// ResolveMismatch 人工解决运输方式失配
//
// 可选地沉淀为渠道级映射，使后续同样的运输选择自动命中；
// 触发订单（若有）补写解析结果并放行因失配而挂起的订单。
func (h *Handler) ResolveMismatch(c *gin.Context) {
	id := parseUintParam(c, "id")
	if id == 0 {
		response.BadRequest(c, "invalid mismatch id")
		return
	}
	var req ResolveMismatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}

	mismatch, err := h.ShippingRepo.GetMismatchByID(id)
	if err != nil {
		response.Internal(c, "get mismatch failed")
		return
	}
	if mismatch == nil {
		response.NotFound(c, "mismatch not found")
		return
	}
	if mismatch.Resolved {
		response.Error(c, response.CodeConflict, "mismatch already resolved")
		return
	}
	method, err := h.ShippingRepo.GetMethodByID(req.ShippingMethodID)
	if err != nil {
		response.Internal(c, "get shipping method failed")
		return
	}
	if method == nil || !method.IsActive {
		response.BadRequest(c, "shipping method not found or inactive")
		return
	}

	if err := h.ShippingRepo.ResolveMismatch(mismatch.ID, method.ID, strings.TrimSpace(req.ResolvedBy)); err != nil {
		response.Internal(c, "resolve mismatch failed")
		return
	}
	if req.CreateMapping {
		channelID := mismatch.ChannelID
		clientID := mismatch.ClientID
		if err := h.ShippingRepo.CreateMapping(&models.ShippingMethodMapping{
			ChannelType:      mismatch.ChannelType,
			ClientID:         &clientID,
			ChannelID:        &channelID,
			ShippingCode:     mismatch.ShippingCode,
			ShippingTitle:    mismatch.ShippingTitle,
			ShippingMethodID: method.ID,
		}); err != nil {
			logger.Warnw("admin_mismatch_mapping_create_failed", "mismatch_id", mismatch.ID, "error", err)
		}
	}

	if mismatch.OrderID != nil {
		h.applyResolutionToOrder(*mismatch.OrderID, method.ID)
	}
	logger.Infow("admin_mismatch_resolved",
		"mismatch_id", mismatch.ID,
		"shipping_method_id", method.ID,
		"resolved_by", req.ResolvedBy)
	response.Success(c, gin.H{"resolved": true})
}

func (h *Handler) applyResolutionToOrder(orderID, methodID uint) {
	order, err := h.OrderRepo.GetByID(orderID)
	if err != nil || order == nil {
		return
	}
	updates := map[string]interface{}{
		"shipping_method_id": methodID,
		"used_fallback":      false,
	}
	if order.OnHold && order.HoldReason == "shipping method unresolved" {
		updates["on_hold"] = false
		updates["hold_reason"] = ""
	}
	if err := h.OrderRepo.Updates(order.ID, updates); err != nil {
		logger.Warnw("admin_mismatch_order_update_failed", "order_id", order.ID, "error", err)
		return
	}
	if err := h.Orchestrator.KickFulfillment(order.ID); err != nil {
		logger.Warnw("admin_mismatch_kick_failed", "order_id", order.ID, "error", err)
	}
}

// ListJobFailures 终态失败任务列表
func (h *Handler) ListJobFailures(c *gin.Context) {
	filter := repository.JobFailureListFilter{
		Queue:    strings.TrimSpace(c.Query("queue")),
		TaskType: strings.TrimSpace(c.Query("task_type")),
		Page:     parseIntQuery(c, "page", 1),
		PageSize: parseIntQuery(c, "page_size", 20),
	}
	if requeued := strings.TrimSpace(c.Query("requeued")); requeued != "" {
		value := requeued == "true" || requeued == "1"
		filter.Requeued = &value
	}

	failures, total, err := h.JobFailureRepo.List(filter)
	if err != nil {
		response.Internal(c, "list job failures failed")
		return
	}
	response.SuccessWithPage(c, failures, response.NewPagination(filter.Page, filter.PageSize, total))
}

// RequeueJobFailure 人工重投失败任务
func (h *Handler) RequeueJobFailure(c *gin.Context) {
	id := parseUintParam(c, "id")
	if id == 0 {
		response.BadRequest(c, "invalid failure id")
		return
	}
	failure, err := h.JobFailureRepo.GetByID(id)
	if err != nil {
		response.Internal(c, "get job failure failed")
		return
	}
	if failure == nil {
		response.NotFound(c, "job failure not found")
		return
	}
	if failure.Requeued {
		response.Error(c, response.CodeConflict, "job already requeued")
		return
	}

	if err := h.requeueTask(failure); err != nil {
		response.Internal(c, err.Error())
		return
	}
	if err := h.JobFailureRepo.MarkRequeued(failure.ID); err != nil {
		response.Internal(c, "mark requeued failed")
		return
	}
	logger.Infow("admin_job_requeued",
		"failure_id", failure.ID,
		"task_type", failure.TaskType,
		"task_id", failure.TaskID)
	response.Success(c, gin.H{"requeued": true})
}

// ListSyncLogs 同步审计日志
func (h *Handler) ListSyncLogs(c *gin.Context) {
	filter := repository.SyncLogListFilter{
		EntityType: strings.TrimSpace(c.Query("entity_type")),
		EntityID:   parseUintQuery(c, "entity_id"),
		Origin:     strings.TrimSpace(c.Query("origin")),
		Page:       parseIntQuery(c, "page", 1),
		PageSize:   parseIntQuery(c, "page_size", 20),
	}
	entries, total, err := h.SyncLogRepo.List(filter)
	if err != nil {
		response.Internal(c, "list sync logs failed")
		return
	}
	response.SuccessWithPage(c, entries, response.NewPagination(filter.Page, filter.PageSize, total))
}

func (h *Handler) requeueTask(failure *models.SyncJobFailure) error {
	if h.QueueClient == nil || !h.QueueClient.Enabled() {
		return errQueueDisabled
	}
	return h.QueueClient.Requeue(failure.Queue, failure.TaskType, failure.Payload)
}

// ImportProductsRequest 商品批量导入请求
type ImportProductsRequest struct {
	ClientID  uint                 `json:"client_id" binding:"required"`
	ChannelID uint                 `json:"channel_id"`
	Products  []batch.ProductInput `json:"products" binding:"required"`
}

// ImportProducts 商品批量导入
func (h *Handler) ImportProducts(c *gin.Context) {
	var req ImportProductsRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if len(req.Products) == 0 {
		response.BadRequest(c, "products empty")
		return
	}

	summary, err := h.BatchEngine.UpsertProducts(
		c.Request.Context(),
		req.ClientID,
		req.ChannelID,
		req.Products,
		cache.NewSKUCache(req.ClientID),
	)
	if err != nil {
		response.Internal(c, "import products failed")
		return
	}
	logger.Infow("admin_products_imported",
		"client_id", req.ClientID,
		"channel_id", req.ChannelID,
		"total", summary.Total,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"failed", summary.Failed)
	response.Success(c, summary)
}

// ImportOrdersRequest 订单批量导入请求
type ImportOrdersRequest struct {
	ChannelID uint               `json:"channel_id" binding:"required"`
	Orders    []batch.OrderInput `json:"orders" binding:"required"`
}

// ImportOrders 历史订单批量导入
func (h *Handler) ImportOrders(c *gin.Context) {
	var req ImportOrdersRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.BadRequest(c, "invalid request body")
		return
	}
	if len(req.Orders) == 0 {
		response.BadRequest(c, "orders empty")
		return
	}
	channel, err := h.ChannelRepo.GetByID(req.ChannelID)
	if err != nil {
		response.Internal(c, "get channel failed")
		return
	}
	if channel == nil {
		response.NotFound(c, "channel not found")
		return
	}

	summary, err := h.BatchEngine.UpsertOrders(
		c.Request.Context(),
		channel,
		req.Orders,
		cache.NewSKUCache(channel.ClientID),
	)
	if err != nil {
		response.Internal(c, "import orders failed")
		return
	}
	logger.Infow("admin_orders_imported",
		"client_id", channel.ClientID,
		"channel_id", channel.ID,
		"total", summary.Total,
		"inserted", summary.Inserted,
		"updated", summary.Updated,
		"failed", summary.Failed)
	response.Success(c, summary)
}

func parseUintParam(c *gin.Context, name string) uint {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Param(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

func parseUintQuery(c *gin.Context, name string) uint {
	value, err := strconv.ParseUint(strings.TrimSpace(c.Query(name)), 10, 64)
	if err != nil {
		return 0
	}
	return uint(value)
}

func parseIntQuery(c *gin.Context, name string, fallback int) int {
	value, err := strconv.Atoi(strings.TrimSpace(c.Query(name)))
	if err != nil || value <= 0 {
		return fallback
	}
	return value
}
