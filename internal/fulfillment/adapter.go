package fulfillment

import (
	"context"
	"errors"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/ownership"
	"github.com/syncbridge/internal/queue"
	"github.com/syncbridge/internal/repository"

	"gorm.io/gorm"
)

var (
	// ErrOrderNotFound 订单不存在
	ErrOrderNotFound = errors.New("fulfillment: order not found")
	// ErrStateInvalid 订单履约状态与请求不符
	ErrStateInvalid = errors.New("fulfillment: state transition invalid")
)

// 同步结果常量
const (
	ResultSynced         = "synced"          // 本次创建了出库单
	ResultAlreadySynced  = "already_synced"  // 幂等短路，未发生网络调用
	ResultCanceled       = "canceled"        // 取消成功
	ResultCancelRejected = "cancel_rejected" // 取消被拒（已发货），状态回到 synced
	ResultSkipped        = "skipped"         // 守卫拦截，未同步
)

// SyncResult 履约同步结果
//
// 守卫拦截（挂起、未支付、运输方式未解析）是预期业务状态，
// 用结果而非错误表达，避免触发队列重试。
type SyncResult struct {
	Outcome    string `json:"outcome"`
	Reason     string `json:"reason,omitempty"`
	OutboundID string `json:"outbound_id,omitempty"`
}

// Adapter 履约网络同步适配器
//
// 驱动订单履约状态机 unsynced → synced → cancel_requested →
// canceled。出库单号至多设置一次；重复同步请求在任何一步
// 都幂等短路。
type Adapter struct {
	db           *gorm.DB
	network      Network
	orderRepo    repository.OrderRepository
	shippingRepo repository.ShippingRepository
	syncLogRepo  repository.SyncLogRepository
	queueClient  *queue.Client
}

// NewAdapter 创建履约同步适配器
func NewAdapter(db *gorm.DB, network Network, orderRepo repository.OrderRepository, shippingRepo repository.ShippingRepository, syncLogRepo repository.SyncLogRepository, queueClient *queue.Client) *Adapter {
	return &Adapter{
		db:           db,
		network:      network,
		orderRepo:    orderRepo,
		shippingRepo: shippingRepo,
		syncLogRepo:  syncLogRepo,
		queueClient:  queueClient,
	}
}

// SyncOrder 将订单同步至履约网络
func (a *Adapter) SyncOrder(ctx context.Context, orderID uint) (*SyncResult, error) {
	order, err := a.orderRepo.GetByID(orderID)
	if err != nil {
		return nil, err
	}
	if order == nil {
		return nil, ErrOrderNotFound
	}

	switch order.FulfillmentState {
	case constants.FulfillmentStateSynced:
		return &SyncResult{Outcome: ResultAlreadySynced, OutboundID: order.OutboundID}, nil
	case constants.FulfillmentStateCancelRequested:
		return a.cancelOutbound(ctx, order)
	case constants.FulfillmentStateCanceled:
		return &SyncResult{Outcome: ResultSkipped, Reason: "fulfillment canceled"}, nil
	}

	if skip := syncGuard(order); skip != "" {
		logger.Debugw("fulfillment_sync_skipped",
			"order_id", order.ID,
			"reason", skip)
		return &SyncResult{Outcome: ResultSkipped, Reason: skip}, nil
	}

	method, err := a.shippingRepo.GetMethodByID(*order.ShippingMethodID)
	if err != nil {
		return nil, err
	}
	if method == nil {
		return &SyncResult{Outcome: ResultSkipped, Reason: "shipping method missing"}, nil
	}

	lines := make([]OutboundLine, 0, len(order.Items))
	for _, item := range order.Items {
		lines = append(lines, OutboundLine{
			SKU:      item.SKU,
			Title:    item.Title,
			Quantity: item.Quantity,
		})
	}

	created, err := a.network.CreateOutbound(ctx, CreateOutboundInput{
		IdempotencyKey:   order.IdempotencyKey,
		Reference:        order.ExternalOrderNo,
		ShippingMethodID: method.ExternalID,
		Priority:         order.Priority,
		Address:          order.EffectiveAddress(),
		Lines:            lines,
	})
	if err != nil {
		return nil, err
	}

	assigned, err := a.orderRepo.SetOutboundID(order.ID, created.OutboundID)
	if err != nil {
		return nil, err
	}
	if !assigned {
		// 并发重放撞上了已设置的不同出库单号：网络侧按幂等键
		// 去重，同一幂等键不应产生两个出库单，记录后按已同步处理
		logger.Warnw("fulfillment_outbound_id_conflict",
			"order_id", order.ID,
			"existing_outbound_id", order.OutboundID,
			"returned_outbound_id", created.OutboundID)
		return &SyncResult{Outcome: ResultAlreadySynced, OutboundID: order.OutboundID}, nil
	}

	now := time.Now()
	if err := a.orderRepo.Updates(order.ID, map[string]interface{}{
		"fulfillment_state": constants.FulfillmentStateSynced,
		"status":            constants.OrderStatusProcessing,
		"synced_at":         now,
	}); err != nil {
		return nil, err
	}
	logger.Infow("fulfillment_outbound_created",
		"order_id", order.ID,
		"outbound_id", created.OutboundID,
		"shipping_method", method.ExternalID)
	return &SyncResult{Outcome: ResultSynced, OutboundID: created.OutboundID}, nil
}

// RequestCancel 请求取消订单的履约
//
// unsynced 订单直接本地取消；synced 订单进入 cancel_requested
// 并由队列任务驱动网络侧取消。
func (a *Adapter) RequestCancel(orderID uint) error {
	order, err := a.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return ErrOrderNotFound
	}

	switch order.FulfillmentState {
	case constants.FulfillmentStateUnsynced:
		now := time.Now()
		return a.orderRepo.Updates(order.ID, map[string]interface{}{
			"fulfillment_state": constants.FulfillmentStateCanceled,
			"status":            constants.OrderStatusCanceled,
			"canceled_at":       now,
		})
	case constants.FulfillmentStateSynced:
		if err := a.orderRepo.Updates(order.ID, map[string]interface{}{
			"fulfillment_state": constants.FulfillmentStateCancelRequested,
		}); err != nil {
			return err
		}
		if a.queueClient != nil {
			return a.queueClient.EnqueueOrderFulfillmentSync(queue.OrderFulfillmentSyncPayload{
				OrderID: order.ID,
				Action:  "cancel",
			})
		}
		return nil
	case constants.FulfillmentStateCancelRequested, constants.FulfillmentStateCanceled:
		return nil
	}
	return ErrStateInvalid
}

func (a *Adapter) cancelOutbound(ctx context.Context, order *models.Order) (*SyncResult, error) {
	err := a.network.CancelOutbound(ctx, order.OutboundID)
	switch {
	case err == nil, errors.Is(err, ErrOutboundNotFound):
		now := time.Now()
		if updateErr := a.orderRepo.Updates(order.ID, map[string]interface{}{
			"fulfillment_state": constants.FulfillmentStateCanceled,
			"status":            constants.OrderStatusCanceled,
			"canceled_at":       now,
		}); updateErr != nil {
			return nil, updateErr
		}
		logger.Infow("fulfillment_outbound_canceled",
			"order_id", order.ID,
			"outbound_id", order.OutboundID)
		return &SyncResult{Outcome: ResultCanceled, OutboundID: order.OutboundID}, nil
	case errors.Is(err, ErrCancelRejected):
		// 已发货，取消不再可能，回到 synced 等待追踪状态推进
		if updateErr := a.orderRepo.Updates(order.ID, map[string]interface{}{
			"fulfillment_state": constants.FulfillmentStateSynced,
		}); updateErr != nil {
			return nil, updateErr
		}
		logger.Warnw("fulfillment_cancel_rejected",
			"order_id", order.ID,
			"outbound_id", order.OutboundID)
		return &SyncResult{Outcome: ResultCancelRejected, OutboundID: order.OutboundID}, nil
	}
	return nil, err
}

// PollOutbounds 轮询已同步订单的出库单状态并回写运营字段
//
// 返回实际检查的订单数。单个订单的查询失败只记录日志，
// 不中断整批轮询。
func (a *Adapter) PollOutbounds(ctx context.Context, batchSize int) (int, error) {
	orders, err := a.orderRepo.ListSyncedForPoll(batchSize)
	if err != nil {
		return 0, err
	}

	polled := 0
	for i := range orders {
		order := &orders[i]
		if order.OutboundID == "" {
			continue
		}
		if ctx.Err() != nil {
			return polled, ctx.Err()
		}
		status, err := a.network.GetOutboundStatus(ctx, order.OutboundID)
		if err != nil {
			logger.Warnw("fulfillment_poll_status_failed",
				"order_id", order.ID,
				"outbound_id", order.OutboundID,
				"error", err)
			continue
		}
		polled++
		if err := a.applyOutboundStatus(ctx, order, status); err != nil {
			logger.Warnw("fulfillment_poll_apply_failed",
				"order_id", order.ID,
				"outbound_id", order.OutboundID,
				"error", err)
		}
	}
	return polled, nil
}

// applyOutboundStatus 轮询结果走与 Webhook 相同的属主差分与审计路径：
// 履约来源只允许写运营字段，字段落库与审计日志在同一事务提交。
func (a *Adapter) applyOutboundStatus(ctx context.Context, order *models.Order, status *OutboundStatus) error {
	ev := &events.OrderEvent{}
	if status.Carrier != "" {
		ev.Carrier = events.String(status.Carrier)
	}
	if status.TrackingNumber != "" {
		ev.TrackingNumber = events.String(status.TrackingNumber)
	}
	if status.TrackingURL != "" {
		ev.TrackingURL = events.String(status.TrackingURL)
	}
	if mapped := mapOutboundState(status.State); mapped != "" {
		ev.Status = events.String(mapped)
	}

	diff := ownership.DiffOrder(order, ev, constants.OriginFulfillment)
	if len(diff.Changes) == 0 {
		return nil
	}

	updates := diff.Updates()
	if mapped, ok := updates["status"].(string); ok && mapped == constants.OrderStatusCanceled {
		updates["fulfillment_state"] = constants.FulfillmentStateCanceled
	}
	fields := diff.FieldNames()

	err := a.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := a.orderRepo.WithTx(tx).Updates(order.ID, updates); err != nil {
			return err
		}
		return a.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
			EntityType:    constants.EntityOrder,
			EntityID:      order.ID,
			Origin:        constants.OriginFulfillment,
			Action:        constants.SyncActionUpdate,
			ChangedFields: models.StringArray(fields),
			Before:        diff.BeforeSnapshot(),
			After:         diff.AfterSnapshot(),
			EventID:       "outbound:" + order.OutboundID,
		})
	})
	if err != nil {
		return err
	}

	logger.Infow("fulfillment_tracking_updated",
		"order_id", order.ID,
		"outbound_id", order.OutboundID,
		"fields", fields)
	if a.queueClient != nil {
		return a.queueClient.EnqueueCommerceSyncBack(queue.CommerceSyncBackPayload{
			OrderID: order.ID,
			Fields:  fields,
		})
	}
	return nil
}

// syncGuard 同步前守卫，返回非空字符串表示拦截原因
func syncGuard(order *models.Order) string {
	switch {
	case order.OnHold:
		return "order on hold"
	case order.IsTerminal():
		return "order in terminal status"
	case !constants.ApprovedPaymentStatuses[order.PaymentStatus]:
		return "payment not approved"
	case order.ShippingMethodID == nil || *order.ShippingMethodID == 0:
		return "shipping method unresolved"
	case len(order.Items) == 0:
		return "order has no items"
	}
	return ""
}

// mapOutboundState 履约网络出库状态映射为平台运营状态
func mapOutboundState(state string) string {
	switch state {
	case OutboundStateCreated, OutboundStatePicking:
		return constants.OrderStatusProcessing
	case OutboundStateShipped:
		return constants.OrderStatusShipped
	case OutboundStateDelivered:
		return constants.OrderStatusDelivered
	case OutboundStateCanceled:
		return constants.OrderStatusCanceled
	case OutboundStateReturned:
		return constants.OrderStatusReturnedToSender
	}
	return ""
}
