package queue

import (
	"encoding/json"
	"fmt"

	"github.com/syncbridge/internal/constants"

	"github.com/hibiken/asynq"
)

const (
	// TaskOrderFulfillmentSync 订单履约同步任务
	TaskOrderFulfillmentSync = constants.TaskOrderFulfillmentSync
	// TaskCommerceSyncBack 运营变更回写商城任务
	TaskCommerceSyncBack = constants.TaskCommerceSyncBack
	// TaskReturnRestock 退货回库任务
	TaskReturnRestock = constants.TaskReturnRestock
)

// OrderFulfillmentSyncPayload 履约同步任务载荷
type OrderFulfillmentSyncPayload struct {
	OrderID uint   `json:"order_id"`
	Action  string `json:"action"`   // sync / cancel
}

// CommerceSyncBackPayload 商城回写任务载荷
type CommerceSyncBackPayload struct {
	OrderID uint     `json:"order_id"`
	Fields  []string `json:"fields"`   // 待回写的运营字段
}

// ReturnRestockPayload 退货回库任务载荷
type ReturnRestockPayload struct {
	ReturnID uint `json:"return_id"`
}

// OrderFulfillmentSyncTaskID 履约同步去重键：同一订单在队列中至多一个待处理任务
func OrderFulfillmentSyncTaskID(orderID uint) string {
	return fmt.Sprintf("order_fulfillment_sync:%d", orderID)
}

// CommerceSyncBackTaskID 商城回写去重键
func CommerceSyncBackTaskID(orderID uint) string {
	return fmt.Sprintf("commerce_sync_back:%d", orderID)
}

// ReturnRestockTaskID 退货回库去重键
func ReturnRestockTaskID(returnID uint) string {
	return fmt.Sprintf("return_restock:%d", returnID)
}

// NewOrderFulfillmentSyncTask 创建履约同步任务
func NewOrderFulfillmentSyncTask(payload OrderFulfillmentSyncPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskOrderFulfillmentSync, body), nil
}

// NewCommerceSyncBackTask 创建商城回写任务
func NewCommerceSyncBackTask(payload CommerceSyncBackPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskCommerceSyncBack, body), nil
}

// NewReturnRestockTask 创建退货回库任务
func NewReturnRestockTask(payload ReturnRestockPayload) (*asynq.Task, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskReturnRestock, body), nil
}
