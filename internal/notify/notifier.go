package notify

import (
	"github.com/syncbridge/internal/logger"
)

// Notifier 运维告警通知接口
type Notifier interface {
	JobExhausted(queueName, taskType, taskID string, retries int, lastError string)
	ShippingMismatch(channelID uint, shippingCode, shippingTitle string)
	OrderHeld(orderID uint, reason string)
}

// LogNotifier 基于结构化日志的默认实现
//
// 告警采集侧（日志平台）按事件键订阅 warn 级别日志。
type LogNotifier struct{}

// NewLogNotifier 创建日志通知器
func NewLogNotifier() *LogNotifier {
	return &LogNotifier{}
}

// JobExhausted 任务重试耗尽告警
func (n *LogNotifier) JobExhausted(queueName, taskType, taskID string, retries int, lastError string) {
	logger.Warnw("notify_job_exhausted",
		"queue", queueName,
		"task_type", taskType,
		"task_id", taskID,
		"retries", retries,
		"last_error", lastError)
}

// ShippingMismatch 运输方式失配告警
func (n *LogNotifier) ShippingMismatch(channelID uint, shippingCode, shippingTitle string) {
	logger.Warnw("notify_shipping_mismatch",
		"channel_id", channelID,
		"shipping_code", shippingCode,
		"shipping_title", shippingTitle)
}

// OrderHeld 订单挂起告警
func (n *LogNotifier) OrderHeld(orderID uint, reason string) {
	logger.Warnw("notify_order_held",
		"order_id", orderID,
		"reason", reason)
}
