package constants

// 变更来源常量（字段属主判定依据）
const (
	OriginCommerce    = "commerce"    // 商城平台（商业主数据）
	OriginPlatform    = "platform"    // 平台自身（运营主数据）
	OriginFulfillment = "fulfillment" // 履约网络（仓配主数据）
	OriginWarehouse   = "warehouse"   // 仓库终端
)

// 同步实体类型常量
const (
	EntityOrder   = "order"
	EntityReturn  = "return"
	EntityProduct = "product"
)

// 同步结果常量
const (
	SyncOutcomeCreated     = "created"
	SyncOutcomeUpdated     = "updated"
	SyncOutcomeSkippedEcho = "skipped_echo"
	SyncOutcomeFailed      = "failed"
)

// 订单运营状态常量
const (
	OrderStatusNew              = "new"
	OrderStatusProcessing       = "processing"
	OrderStatusShipped          = "shipped"
	OrderStatusDelivered        = "delivered"
	OrderStatusCanceled         = "canceled"
	OrderStatusReturnedToSender = "returned_to_sender"
)

// 履约同步状态机常量
const (
	FulfillmentStateUnsynced        = "unsynced"
	FulfillmentStateSynced          = "synced"
	FulfillmentStateCancelRequested = "cancel_requested"
	FulfillmentStateCanceled        = "canceled"
)

// 支付状态常量（只读镜像自商城平台）
const (
	PaymentStatusPending    = "pending"
	PaymentStatusAuthorized = "authorized"
	PaymentStatusPaid       = "paid"
	PaymentStatusRefunded   = "refunded"
	PaymentStatusFailed     = "failed"
)

// ApprovedPaymentStatuses 允许发起履约同步的支付状态集合
var ApprovedPaymentStatuses = map[string]bool{
	PaymentStatusPaid:       true,
	PaymentStatusAuthorized: true,
}

// 退货状态常量
const (
	ReturnStatusAnnounced = "announced"
	ReturnStatusReceived  = "received"
	ReturnStatusInspected = "inspected"
	ReturnStatusFinalized = "finalized"
)

// 退货验收结果常量
const (
	InspectionPending  = "pending"
	InspectionAccepted = "accepted"
	InspectionDamaged  = "damaged"
	InspectionRejected = "rejected"
)

// 渠道类型常量
const (
	ChannelTypeShopify     = "shopify"
	ChannelTypeWooCommerce = "woocommerce"
	ChannelTypeMagento     = "magento"
)

// 队列名称常量
const (
	QueueSync     = "sync"
	QueueCritical = "critical"
)

// 队列任务类型常量
const (
	TaskOrderFulfillmentSync = "order:fulfillment_sync"
	TaskCommerceSyncBack     = "order:commerce_sync_back"
	TaskReturnRestock        = "return:restock"
)

// 同步日志动作常量
const (
	SyncActionCreate = "create"
	SyncActionUpdate = "update"
	SyncActionHold   = "hold"
	SyncActionCancel = "cancel"
)
