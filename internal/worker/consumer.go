package worker

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/fulfillment"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/provider"
	"github.com/syncbridge/internal/queue"

	"github.com/hibiken/asynq"
)

// Consumer 异步任务消费者
type Consumer struct {
	*provider.Container
}

// NewConsumer 创建消费者
func NewConsumer(c *provider.Container) *Consumer {
	return &Consumer{
		Container: c,
	}
}

// Register 注册消费者
func (c *Consumer) Register(mux *asynq.ServeMux) {
	if c == nil || mux == nil {
		logger.Debugw("worker_register_skip_nil", "consumer_nil", c == nil, "mux_nil", mux == nil)
		return
	}
	mux.HandleFunc(queue.TaskOrderFulfillmentSync, c.handleOrderFulfillmentSync)
	mux.HandleFunc(queue.TaskCommerceSyncBack, c.handleCommerceSyncBack)
	mux.HandleFunc(queue.TaskReturnRestock, c.handleReturnRestock)
}

func (c *Consumer) handleOrderFulfillmentSync(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_fulfillment_sync_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.OrderFulfillmentSyncPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_fulfillment_sync_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 {
		logger.Debugw("worker_fulfillment_sync_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.Adapter == nil {
		logger.Warnw("worker_fulfillment_sync_skip_adapter_nil", "order_id", payload.OrderID)
		return nil
	}

	result, err := c.Adapter.SyncOrder(ctx, payload.OrderID)
	if err != nil {
		switch {
		case errors.Is(err, fulfillment.ErrOrderNotFound):
			logger.Debugw("worker_fulfillment_sync_skip_order_not_found", "order_id", payload.OrderID)
			return nil
		default:
			logger.Warnw("worker_fulfillment_sync_failed",
				"order_id", payload.OrderID,
				"action", payload.Action,
				"error", err)
			return err
		}
	}
	logger.Infow("worker_fulfillment_sync_done",
		"order_id", payload.OrderID,
		"action", payload.Action,
		"outcome", result.Outcome,
		"outbound_id", result.OutboundID,
		"reason", result.Reason)
	return nil
}

func (c *Consumer) handleCommerceSyncBack(ctx context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_commerce_sync_back_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.CommerceSyncBackPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_commerce_sync_back_unmarshal_failed", "error", err)
		return err
	}
	if payload.OrderID == 0 || len(payload.Fields) == 0 {
		logger.Debugw("worker_commerce_sync_back_skip_invalid_payload", "order_id", payload.OrderID)
		return nil
	}
	if c.Pusher == nil {
		logger.Warnw("worker_commerce_sync_back_skip_pusher_nil", "order_id", payload.OrderID)
		return nil
	}

	order, err := c.OrderRepo.GetByID(payload.OrderID)
	if err != nil {
		logger.Warnw("worker_commerce_sync_back_fetch_order_failed", "order_id", payload.OrderID, "error", err)
		return err
	}
	if order == nil {
		logger.Debugw("worker_commerce_sync_back_skip_order_not_found", "order_id", payload.OrderID)
		return nil
	}
	// 平台生成的替换单在商城侧不存在，无处可回写
	if order.IsReplacement {
		logger.Debugw("worker_commerce_sync_back_skip_replacement", "order_id", order.ID)
		return nil
	}
	channel, err := c.ChannelRepo.GetByID(order.ChannelID)
	if err != nil {
		logger.Warnw("worker_commerce_sync_back_fetch_channel_failed", "order_id", order.ID, "error", err)
		return err
	}
	if channel == nil || !channel.IsActive {
		logger.Debugw("worker_commerce_sync_back_skip_channel_inactive", "order_id", order.ID, "channel_id", order.ChannelID)
		return nil
	}

	if err := c.Pusher.PushOrderUpdate(ctx, channel, order, payload.Fields); err != nil {
		logger.Warnw("worker_commerce_sync_back_push_failed",
			"order_id", order.ID,
			"channel_id", channel.ID,
			"fields", payload.Fields,
			"error", err)
		return err
	}
	return nil
}

func (c *Consumer) handleReturnRestock(_ context.Context, task *asynq.Task) error {
	if c == nil || task == nil {
		logger.Debugw("worker_return_restock_skip_nil", "consumer_nil", c == nil, "task_nil", task == nil)
		return nil
	}
	var payload queue.ReturnRestockPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		logger.Warnw("worker_return_restock_unmarshal_failed", "error", err)
		return err
	}
	if payload.ReturnID == 0 {
		logger.Debugw("worker_return_restock_skip_invalid_payload", "return_id", payload.ReturnID)
		return nil
	}

	ret, err := c.ReturnRepo.GetByID(payload.ReturnID)
	if err != nil {
		logger.Warnw("worker_return_restock_fetch_failed", "return_id", payload.ReturnID, "error", err)
		return err
	}
	if ret == nil {
		logger.Debugw("worker_return_restock_skip_not_found", "return_id", payload.ReturnID)
		return nil
	}
	if ret.RestockedAt != nil {
		logger.Debugw("worker_return_restock_skip_already_restocked", "return_id", ret.ID)
		return nil
	}
	if !ret.RestockEligible || ret.InspectionResult != constants.InspectionAccepted {
		logger.Debugw("worker_return_restock_skip_not_eligible",
			"return_id", ret.ID,
			"restock_eligible", ret.RestockEligible,
			"inspection_result", ret.InspectionResult)
		return nil
	}

	now := time.Now()
	if err := c.ReturnRepo.Updates(ret.ID, map[string]interface{}{
		"restocked_at": now,
	}); err != nil {
		logger.Warnw("worker_return_restock_update_failed", "return_id", ret.ID, "error", err)
		return err
	}
	if err := c.SyncLogRepo.Append(&models.SyncLogEntry{
		EntityType:    constants.EntityReturn,
		EntityID:      ret.ID,
		Origin:        constants.OriginPlatform,
		Action:        constants.SyncActionUpdate,
		ChangedFields: models.StringArray{"restocked_at"},
		After:         models.JSON{"restocked_at": now},
	}); err != nil {
		logger.Warnw("worker_return_restock_log_failed", "return_id", ret.ID, "error", err)
	}
	logger.Infow("worker_return_restocked",
		"return_id", ret.ID,
		"order_id", ret.OrderID)
	return nil
}
