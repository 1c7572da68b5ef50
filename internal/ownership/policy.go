package ownership

import (
	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/models"
)

// Change 单个字段的变更记录
type Change struct {
	Field  string      // 列名（同时用于审计日志）
	Before interface{} // 变更前取值
	After  interface{} // 变更后取值
}

// Diff 一次事件经属主过滤后的变更集合
//
// Carried 统计事件实际携带的字段数（含被过滤与值未变的字段）。
// 携带了字段但无任何变更即为回声（echo）：商城 Webhook 经常
// 原样报告平台刚刚推送过去的变更，不拦截会造成两系统互相循环。
type Diff struct {
	Changes []Change
	Carried int
}

// IsEcho 判断是否回声事件
func (d Diff) IsEcho() bool {
	return d.Carried > 0 && len(d.Changes) == 0
}

// Empty 判断事件是否未携带任何可识别字段
func (d Diff) Empty() bool {
	return d.Carried == 0 && len(d.Changes) == 0
}

// Updates 转换为按列更新的映射
func (d Diff) Updates() map[string]interface{} {
	updates := make(map[string]interface{}, len(d.Changes))
	for _, change := range d.Changes {
		updates[change.Field] = change.After
	}
	return updates
}

// FieldNames 返回变更字段名列表
func (d Diff) FieldNames() []string {
	names := make([]string, 0, len(d.Changes))
	for _, change := range d.Changes {
		names = append(names, change.Field)
	}
	return names
}

// BeforeSnapshot 变更前快照
func (d Diff) BeforeSnapshot() models.JSON {
	snapshot := make(models.JSON, len(d.Changes))
	for _, change := range d.Changes {
		snapshot[change.Field] = change.Before
	}
	return snapshot
}

// AfterSnapshot 变更后快照
func (d Diff) AfterSnapshot() models.JSON {
	snapshot := make(models.JSON, len(d.Changes))
	for _, change := range d.Changes {
		snapshot[change.Field] = change.After
	}
	return snapshot
}

// 字段属主集合。商业字段只接受商城来源；运营字段只接受平台侧来源。
var (
	commerceOrigins = map[string]bool{
		constants.OriginCommerce: true,
	}
	operationalOrigins = map[string]bool{
		constants.OriginPlatform:    true,
		constants.OriginFulfillment: true,
		constants.OriginWarehouse:   true,
	}
	catalogOrigins = map[string]bool{
		constants.OriginCommerce: true,
		constants.OriginPlatform: true,
	}
)

// OwnsOrderField 判断来源是否拥有订单字段的写权
func OwnsOrderField(origin, field string) bool {
	if owners, ok := commercialOrderFields[field]; ok {
		return owners[origin]
	}
	if owners, ok := operationalOrderFields[field]; ok {
		return owners[origin]
	}
	return false
}

var commercialOrderFields = map[string]map[string]bool{
	"customer_name":    commerceOrigins,
	"customer_email":   commerceOrigins,
	"currency":         commerceOrigins,
	"items_amount":     commerceOrigins,
	"shipping_amount":  commerceOrigins,
	"total_amount":     commerceOrigins,
	"payment_status":   commerceOrigins,
	"shipping_code":    commerceOrigins,
	"shipping_title":   commerceOrigins,
	"shipping_address": commerceOrigins,
}

var operationalOrderFields = map[string]map[string]bool{
	"status":            operationalOrigins,
	"carrier":           operationalOrigins,
	"tracking_number":   operationalOrigins,
	"tracking_url":      operationalOrigins,
	"corrected_address": operationalOrigins,
	"on_hold":           operationalOrigins,
	"hold_reason":       operationalOrigins,
	"priority":          operationalOrigins,
}

// DiffOrder 计算订单事件经属主过滤后的变更集
//
// 不属于来源的字段静默过滤而非拒绝，以容忍残缺或遗留报文。
// 订单到达终态后仅剩审计，所有写入均被过滤。
func DiffOrder(order *models.Order, ev *events.OrderEvent, origin string) Diff {
	var d Diff
	if order == nil || ev == nil {
		return d
	}
	terminal := order.IsTerminal()

	collect := func(field string, carried bool, before, after interface{}, equal bool) {
		if !carried {
			return
		}
		d.Carried++
		if terminal || !OwnsOrderField(origin, field) || equal {
			return
		}
		d.Changes = append(d.Changes, Change{Field: field, Before: before, After: after})
	}

	collect("customer_name", ev.CustomerName != nil, order.CustomerName, deref(ev.CustomerName),
		ev.CustomerName == nil || order.CustomerName == *ev.CustomerName)
	collect("customer_email", ev.CustomerEmail != nil, order.CustomerEmail, deref(ev.CustomerEmail),
		ev.CustomerEmail == nil || order.CustomerEmail == *ev.CustomerEmail)
	collect("currency", ev.Currency != nil, order.Currency, deref(ev.Currency),
		ev.Currency == nil || order.Currency == *ev.Currency)
	collect("items_amount", ev.ItemsAmount != nil, order.ItemsAmount.String(), moneyString(ev.ItemsAmount),
		ev.ItemsAmount == nil || order.ItemsAmount.Equal(ev.ItemsAmount.Decimal))
	collect("shipping_amount", ev.ShippingAmount != nil, order.ShippingAmount.String(), moneyString(ev.ShippingAmount),
		ev.ShippingAmount == nil || order.ShippingAmount.Equal(ev.ShippingAmount.Decimal))
	collect("total_amount", ev.TotalAmount != nil, order.TotalAmount.String(), moneyString(ev.TotalAmount),
		ev.TotalAmount == nil || order.TotalAmount.Equal(ev.TotalAmount.Decimal))
	collect("payment_status", ev.PaymentStatus != nil, order.PaymentStatus, deref(ev.PaymentStatus),
		ev.PaymentStatus == nil || order.PaymentStatus == *ev.PaymentStatus)
	collect("shipping_code", ev.ShippingCode != nil, order.ShippingCode, deref(ev.ShippingCode),
		ev.ShippingCode == nil || order.ShippingCode == *ev.ShippingCode)
	collect("shipping_title", ev.ShippingTitle != nil, order.ShippingTitle, deref(ev.ShippingTitle),
		ev.ShippingTitle == nil || order.ShippingTitle == *ev.ShippingTitle)
	if ev.ShippingAddress != nil {
		collect("shipping_address", true, order.ShippingAddress, *ev.ShippingAddress,
			order.ShippingAddress.Equal(*ev.ShippingAddress))
	}

	collect("status", ev.Status != nil, order.Status, deref(ev.Status),
		ev.Status == nil || order.Status == *ev.Status)
	collect("carrier", ev.Carrier != nil, order.Carrier, deref(ev.Carrier),
		ev.Carrier == nil || order.Carrier == *ev.Carrier)
	collect("tracking_number", ev.TrackingNumber != nil, order.TrackingNumber, deref(ev.TrackingNumber),
		ev.TrackingNumber == nil || order.TrackingNumber == *ev.TrackingNumber)
	collect("tracking_url", ev.TrackingURL != nil, order.TrackingURL, deref(ev.TrackingURL),
		ev.TrackingURL == nil || order.TrackingURL == *ev.TrackingURL)
	if ev.CorrectedAddress != nil {
		current := models.Address{}
		if order.CorrectedAddress != nil {
			current = *order.CorrectedAddress
		}
		collect("corrected_address", true, current, *ev.CorrectedAddress,
			current.Equal(*ev.CorrectedAddress))
	}
	collect("on_hold", ev.OnHold != nil, order.OnHold, derefBool(ev.OnHold),
		ev.OnHold == nil || order.OnHold == *ev.OnHold)
	collect("hold_reason", ev.HoldReason != nil, order.HoldReason, deref(ev.HoldReason),
		ev.HoldReason == nil || order.HoldReason == *ev.HoldReason)
	collect("priority", ev.Priority != nil, order.Priority, derefInt(ev.Priority),
		ev.Priority == nil || order.Priority == *ev.Priority)

	return d
}

// DiffReturn 计算退货事件的变更集
//
// 平台永远是退货的权威主数据：已存在的退货只接受平台侧来源的
// 更新，商城来源的后续事件全部过滤。定稿后的退货不可变。
func DiffReturn(ret *models.Return, ev *events.ReturnEvent, origin string) Diff {
	var d Diff
	if ret == nil || ev == nil {
		return d
	}
	writable := operationalOrigins[origin] && !ret.Finalized

	collect := func(field string, carried bool, before, after interface{}, equal bool) {
		if !carried {
			return
		}
		d.Carried++
		if !writable || equal {
			return
		}
		d.Changes = append(d.Changes, Change{Field: field, Before: before, After: after})
	}

	collect("status", ev.Status != nil, ret.Status, deref(ev.Status),
		ev.Status == nil || ret.Status == *ev.Status)
	collect("reason", ev.Reason != nil, ret.Reason, deref(ev.Reason),
		ev.Reason == nil || ret.Reason == *ev.Reason)
	collect("inspection_result", ev.InspectionResult != nil, ret.InspectionResult, deref(ev.InspectionResult),
		ev.InspectionResult == nil || ret.InspectionResult == *ev.InspectionResult)
	collect("inspection_note", ev.InspectionNote != nil, ret.InspectionNote, deref(ev.InspectionNote),
		ev.InspectionNote == nil || ret.InspectionNote == *ev.InspectionNote)
	collect("restock_eligible", ev.RestockEligible != nil, ret.RestockEligible, derefBool(ev.RestockEligible),
		ev.RestockEligible == nil || ret.RestockEligible == *ev.RestockEligible)
	collect("finalized", ev.Finalized != nil, ret.Finalized, derefBool(ev.Finalized),
		ev.Finalized == nil || ret.Finalized == *ev.Finalized)

	return d
}

// DiffProduct 计算商品事件的变更集
//
// 商品目录由商城与平台共同维护，履约网络来源的写入被过滤。
func DiffProduct(product *models.Product, ev *events.ProductEvent, origin string) Diff {
	var d Diff
	if product == nil || ev == nil {
		return d
	}
	writable := catalogOrigins[origin]

	collect := func(field string, carried bool, before, after interface{}, equal bool) {
		if !carried {
			return
		}
		d.Carried++
		if !writable || equal {
			return
		}
		d.Changes = append(d.Changes, Change{Field: field, Before: before, After: after})
	}

	collect("title", ev.Title != nil, product.Title, deref(ev.Title),
		ev.Title == nil || product.Title == *ev.Title)
	collect("description", ev.Description != nil, product.Description, deref(ev.Description),
		ev.Description == nil || product.Description == *ev.Description)
	collect("barcode", ev.Barcode != nil, product.Barcode, deref(ev.Barcode),
		ev.Barcode == nil || product.Barcode == *ev.Barcode)
	collect("weight_grams", ev.WeightGrams != nil, product.WeightGrams, derefInt(ev.WeightGrams),
		ev.WeightGrams == nil || product.WeightGrams == *ev.WeightGrams)
	collect("price_amount", ev.PriceAmount != nil, product.PriceAmount.String(), moneyString(ev.PriceAmount),
		ev.PriceAmount == nil || product.PriceAmount.Equal(ev.PriceAmount.Decimal))
	collect("is_active", ev.IsActive != nil, product.IsActive, derefBool(ev.IsActive),
		ev.IsActive == nil || product.IsActive == *ev.IsActive)

	return d
}

func deref(s *string) interface{} {
	if s == nil {
		return nil
	}
	return *s
}

func derefBool(b *bool) interface{} {
	if b == nil {
		return nil
	}
	return *b
}

func derefInt(i *int) interface{} {
	if i == nil {
		return nil
	}
	return *i
}

func moneyString(m *models.Money) interface{} {
	if m == nil {
		return nil
	}
	return m.String()
}
