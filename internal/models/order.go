package models

import (
	"time"

	"gorm.io/gorm"
)

// Order 订单表
//
// 商业字段（客户、金额、行项目内容）只接受商城来源的写入；
// 运营字段（履约状态、承运商、追踪号、地址修正、挂起、优先级）
// 只接受平台或履约网络来源的写入。Origin 创建后不可变。
type Order struct {
	ID              uint   `gorm:"primarykey" json:"id"`                                                      // 主键
	ClientID        uint   `gorm:"not null;index" json:"client_id"`                                           // 租户ID
	ChannelID       uint   `gorm:"not null;uniqueIndex:idx_orders_channel_external" json:"channel_id"`        // 渠道ID
	ExternalOrderNo string `gorm:"not null;uniqueIndex:idx_orders_channel_external" json:"external_order_no"` // 渠道订单号（替换单为平台生成）
	Origin          string `gorm:"type:varchar(20);not null" json:"origin"`                                   // 创建来源，创建后不可变
	IsReplacement   bool   `gorm:"default:false;index" json:"is_replacement"`                                 // 是否替换单
	ReplacementOfID *uint  `gorm:"index" json:"replacement_of_id,omitempty"`                                  // 原订单ID（替换单）

	// 商业字段（商城主数据）
	CustomerName    string  `gorm:"type:varchar(200)" json:"customer_name"`                                  // 客户姓名
	CustomerEmail   string  `gorm:"type:varchar(200);index" json:"customer_email"`                           // 客户邮箱
	Currency        string  `gorm:"type:varchar(10);not null;default:'EUR'" json:"currency"`                 // 币种
	ItemsAmount     Money   `gorm:"type:decimal(20,2);not null;default:0" json:"items_amount"`               // 商品金额
	ShippingAmount  Money   `gorm:"type:decimal(20,2);not null;default:0" json:"shipping_amount"`            // 运费金额
	TotalAmount     Money   `gorm:"type:decimal(20,2);not null;default:0" json:"total_amount"`               // 订单总额
	PaymentStatus   string  `gorm:"type:varchar(20);not null;default:'pending';index" json:"payment_status"` // 支付状态（商城只读镜像）
	ShippingCode    string  `gorm:"type:varchar(100)" json:"shipping_code"`                                  // 渠道运输方式编码
	ShippingTitle   string  `gorm:"type:varchar(200)" json:"shipping_title"`                                 // 渠道运输方式名称
	ShippingAddress Address `gorm:"type:json" json:"shipping_address"`                                       // 下单收货地址

	// 运营字段（平台/履约网络主数据）
	Status           string     `gorm:"type:varchar(30);not null;default:'new';index" json:"status"`                 // 运营状态
	FulfillmentState string     `gorm:"type:varchar(30);not null;default:'unsynced';index" json:"fulfillment_state"` // 履约同步状态机
	OutboundID       string     `gorm:"type:varchar(100);index" json:"outbound_id,omitempty"`                        // 履约网络出库单号（至多设置一次）
	IdempotencyKey   string     `gorm:"type:varchar(64);uniqueIndex" json:"-"`                                       // 外呼幂等键
	ShippingMethodID *uint      `gorm:"index" json:"shipping_method_id,omitempty"`                                   // 解析后的运输方式
	UsedFallback     bool       `gorm:"default:false" json:"used_fallback"`                                          // 运输方式经默认值兜底
	Carrier          string     `gorm:"type:varchar(100)" json:"carrier,omitempty"`                                  // 承运商
	TrackingNumber   string     `gorm:"type:varchar(100);index" json:"tracking_number,omitempty"`                    // 追踪号
	TrackingURL      string     `gorm:"type:varchar(500)" json:"tracking_url,omitempty"`                             // 追踪链接
	CorrectedAddress *Address   `gorm:"type:json" json:"corrected_address,omitempty"`                                // 平台修正后的地址
	OnHold           bool       `gorm:"default:false;index" json:"on_hold"`                                          // 是否挂起
	HoldReason       string     `gorm:"type:varchar(200)" json:"hold_reason,omitempty"`                              // 挂起原因
	Priority         int        `gorm:"default:0;index" json:"priority"`                                             // 履约优先级
	SyncedAt         *time.Time `gorm:"index" json:"synced_at,omitempty"`                                            // 首次同步至履约网络时间
	CanceledAt       *time.Time `gorm:"index" json:"canceled_at,omitempty"`                                          // 取消时间

	CreatedAt time.Time      `gorm:"index" json:"created_at"` // 创建时间
	UpdatedAt time.Time      `gorm:"index" json:"updated_at"` // 更新时间
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`          // 软删除时间

	// 关联
	Items   []OrderItem `gorm:"foreignKey:OrderID" json:"items,omitempty"`     // 订单项
	Channel *Channel    `gorm:"foreignKey:ChannelID" json:"channel,omitempty"` // 渠道信息
	Returns []Return    `gorm:"foreignKey:OrderID" json:"returns,omitempty"`   // 退货记录
}

// TableName 指定表名
func (Order) TableName() string {
	return "orders"
}

// IsTerminal 判断订单是否处于终态（此后仅保留审计日志）
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case OrderTerminalCanceled, OrderTerminalDelivered, OrderTerminalReturned:
		return true
	}
	return false
}

// 订单终态常量（与 constants 包保持一致，模型层自用避免循环引用）
const (
	OrderTerminalCanceled  = "canceled"
	OrderTerminalDelivered = "delivered"
	OrderTerminalReturned  = "returned_to_sender"

	FulfillmentSynced = "synced"
)

// EffectiveAddress 返回履约应使用的地址（优先平台修正地址）
func (o *Order) EffectiveAddress() Address {
	if o.CorrectedAddress != nil && !o.CorrectedAddress.IsZero() {
		return *o.CorrectedAddress
	}
	return o.ShippingAddress
}
