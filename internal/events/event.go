package events

import (
	"errors"
	"strings"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/models"
)

var (
	// ErrEventInvalid 事件缺少必要字段
	ErrEventInvalid = errors.New("event: missing kind, origin or external id")
	// ErrEventKindUnknown 未知实体类型
	ErrEventKindUnknown = errors.New("event: unknown kind")
)

// Event 规范化变更事件（带标签的联合体）
//
// 接入层负责把各渠道的私有报文形状归一化为本结构，
// 编排器不感知任何渠道私有结构。Kind 决定哪个载荷字段非空。
type Event struct {
	ID         string    `json:"id"`          // 事件ID（渠道事件ID或平台生成）
	Kind       string    `json:"kind"`        // order / return / product
	Origin     string    `json:"origin"`      // 变更来源
	ClientID   uint      `json:"client_id"`   // 租户ID（接入层解析）
	ChannelID  uint      `json:"channel_id"`  // 渠道ID（接入层解析）
	ExternalID string    `json:"external_id"` // 渠道侧自然键（订单号/退货单号/SKU）
	OccurredAt time.Time `json:"occurred_at"` // 事件发生时间

	Order   *OrderEvent   `json:"order,omitempty"`
	Return  *ReturnEvent  `json:"return,omitempty"`
	Product *ProductEvent `json:"product,omitempty"`
}

// Validate 校验事件基础结构
func (e *Event) Validate() error {
	if e == nil || strings.TrimSpace(e.Origin) == "" || strings.TrimSpace(e.ExternalID) == "" {
		return ErrEventInvalid
	}
	switch e.Kind {
	case constants.EntityOrder:
		if e.Order == nil {
			return ErrEventInvalid
		}
	case constants.EntityReturn:
		if e.Return == nil {
			return ErrEventInvalid
		}
	case constants.EntityProduct:
		if e.Product == nil {
			return ErrEventInvalid
		}
	default:
		return ErrEventKindUnknown
	}
	return nil
}

// OrderEvent 订单变更载荷，指针字段表达"报文是否携带该字段"
type OrderEvent struct {
	// 商业字段（商城主数据）
	CustomerName    *string          `json:"customer_name,omitempty"`
	CustomerEmail   *string          `json:"customer_email,omitempty"`
	Currency        *string          `json:"currency,omitempty"`
	ItemsAmount     *models.Money    `json:"items_amount,omitempty"`
	ShippingAmount  *models.Money    `json:"shipping_amount,omitempty"`
	TotalAmount     *models.Money    `json:"total_amount,omitempty"`
	PaymentStatus   *string          `json:"payment_status,omitempty"`
	ShippingCode    *string          `json:"shipping_code,omitempty"`
	ShippingTitle   *string          `json:"shipping_title,omitempty"`
	ShippingAddress *models.Address  `json:"shipping_address,omitempty"`
	Items           []OrderItemInput `json:"items,omitempty"`            // 仅创建时使用

	// 运营字段（平台/履约网络主数据）
	Status           *string         `json:"status,omitempty"`
	Carrier          *string         `json:"carrier,omitempty"`
	TrackingNumber   *string         `json:"tracking_number,omitempty"`
	TrackingURL      *string         `json:"tracking_url,omitempty"`
	CorrectedAddress *models.Address `json:"corrected_address,omitempty"`
	OnHold           *bool           `json:"on_hold,omitempty"`
	HoldReason       *string         `json:"hold_reason,omitempty"`
	Priority         *int            `json:"priority,omitempty"`

	// CancelRequested 取消请求，按操作处理而非字段写入
	CancelRequested *bool `json:"cancel_requested,omitempty"`
}

// OrderItemInput 订单项输入
type OrderItemInput struct {
	SKU            string       `json:"sku"`
	Title          string       `json:"title"`
	Quantity       int          `json:"quantity"`
	UnitAmount     models.Money `json:"unit_amount"`
	ExternalItemID string       `json:"external_item_id,omitempty"`
}

// ReturnEvent 退货变更载荷
type ReturnEvent struct {
	OrderExternalNo  string  `json:"order_external_no"`           // 所属订单渠道单号
	Status           *string `json:"status,omitempty"`
	Reason           *string `json:"reason,omitempty"`
	InspectionResult *string `json:"inspection_result,omitempty"`
	InspectionNote   *string `json:"inspection_note,omitempty"`
	RestockEligible  *bool   `json:"restock_eligible,omitempty"`
	Finalized        *bool   `json:"finalized,omitempty"`

	// ReplacementRequested 替换发货请求，按操作处理而非字段写入
	ReplacementRequested *bool `json:"replacement_requested,omitempty"`
}

// ProductEvent 商品变更载荷
type ProductEvent struct {
	Title             *string       `json:"title,omitempty"`
	Description       *string       `json:"description,omitempty"`
	Barcode           *string       `json:"barcode,omitempty"`
	WeightGrams       *int          `json:"weight_grams,omitempty"`
	PriceAmount       *models.Money `json:"price_amount,omitempty"`
	IsActive          *bool         `json:"is_active,omitempty"`
	ExternalProductID *string       `json:"external_product_id,omitempty"` // 渠道商品ID关联
}

// String 便捷构造字符串指针
func String(s string) *string { return &s }

// Bool 便捷构造布尔指针
func Bool(b bool) *bool { return &b }

// Int 便捷构造整型指针
func Int(i int) *int { return &i }

// MoneyPtr 便捷构造金额指针
func MoneyPtr(m models.Money) *models.Money { return &m }
