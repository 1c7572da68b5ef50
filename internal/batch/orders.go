package batch

import (
	"context"
	"errors"
	"strings"

	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// ErrChannelRequired 订单批量导入必须绑定渠道
var ErrChannelRequired = errors.New("order import requires a channel")

// OrderInput 订单批量导入输入（历史订单回填）
type OrderInput struct {
	ExternalOrderNo string           `json:"external_order_no"`
	CustomerName    string           `json:"customer_name,omitempty"`
	CustomerEmail   string           `json:"customer_email,omitempty"`
	Currency        string           `json:"currency,omitempty"`
	ItemsAmount     models.Money     `json:"items_amount"`
	ShippingAmount  models.Money     `json:"shipping_amount"`
	TotalAmount     models.Money     `json:"total_amount"`
	PaymentStatus   string           `json:"payment_status,omitempty"`
	ShippingCode    string           `json:"shipping_code,omitempty"`
	ShippingTitle   string           `json:"shipping_title,omitempty"`
	ShippingAddress *models.Address  `json:"shipping_address,omitempty"`
	Items           []OrderItemInput `json:"items,omitempty"`
}

// OrderItemInput 订单项导入输入
type OrderItemInput struct {
	SKU            string       `json:"sku"`
	Title          string       `json:"title,omitempty"`
	Quantity       int          `json:"quantity"`
	UnitAmount     models.Money `json:"unit_amount"`
	ExternalItemID string       `json:"external_item_id,omitempty"`
}

// UpsertOrders 批量写入订单
//
// 只承接商城来源的商业字段：新订单按商城来源创建并预解析运输
// 方式（完全失配则挂起），已有订单只更新有变化的商业字段，
// 终态订单一律跳过。skuCache 可为 nil；传入时订单项会按 SKU
// 关联商品，未预热的缓存先整体预热一次。导入不触发履约入队，
// 回填订单由运维侧按需推送履约。
func (e *Engine) UpsertOrders(ctx context.Context, channel *models.Channel, inputs []OrderInput, skuCache *cache.SKUCache) (*Summary, error) {
	summary := &Summary{}
	if channel == nil {
		return summary, ErrChannelRequired
	}
	if len(inputs) == 0 {
		return summary, nil
	}

	if skuCache != nil && !skuCache.Loaded() {
		if err := skuCache.Warm(e.productRepo); err != nil {
			logger.Warnw("batch_sku_cache_warm_failed",
				"client_id", channel.ClientID,
				"error", err)
		}
	}

	for start := 0; start < len(inputs); start += e.orderChunkSize {
		end := start + e.orderChunkSize
		if end > len(inputs) {
			end = len(inputs)
		}
		if err := e.upsertOrderChunk(ctx, channel, inputs[start:end], start, skuCache, summary); err != nil {
			// 整块回滚：块内每条都标记失败，继续处理后续块
			for i := start; i < end; i++ {
				summary.add(ItemResult{
					Index:   i,
					Key:     strings.TrimSpace(inputs[i].ExternalOrderNo),
					Outcome: ItemFailed,
					Reason:  err.Error(),
				})
			}
			logger.Errorw("batch_order_chunk_failed",
				"channel_id", channel.ID,
				"chunk_start", start,
				"chunk_size", end-start,
				"error", err)
		}
	}
	return summary, nil
}

func (e *Engine) upsertOrderChunk(ctx context.Context, channel *models.Channel, chunk []OrderInput, offset int, skuCache *cache.SKUCache, summary *Summary) error {
	chunkCtx, cancel := context.WithTimeout(ctx, e.chunkTimeout)
	defer cancel()

	nos := make([]string, 0, len(chunk))
	for _, input := range chunk {
		if no := strings.TrimSpace(input.ExternalOrderNo); no != "" {
			nos = append(nos, no)
		}
	}

	// 预取与运输方式解析在事务外完成，事务内只做写入
	existing, err := e.orderRepo.ListByChannelAndExternalNos(channel.ID, nos)
	if err != nil {
		return err
	}
	byNo := make(map[string]*models.Order, len(existing))
	for i := range existing {
		byNo[existing[i].ExternalOrderNo] = &existing[i]
	}

	type orderInsert struct {
		order *models.Order
		items []models.OrderItem
	}
	type orderUpdate struct {
		id      uint
		updates map[string]interface{}
	}
	var inserts []orderInsert
	var updates []orderUpdate
	results := make([]ItemResult, 0, len(chunk))
	planned := make(map[string]bool, len(chunk))

	for i, input := range chunk {
		index := offset + i
		no := strings.TrimSpace(input.ExternalOrderNo)
		if no == "" {
			results = append(results, ItemResult{Index: index, Outcome: ItemFailed, Reason: "external order no is empty"})
			continue
		}

		current := byNo[no]
		if current == nil {
			if planned[no] {
				results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemFailed, Reason: "duplicate external order no in batch"})
				continue
			}
			order, items, reason := e.buildImportOrder(channel, no, input, skuCache)
			if reason != "" {
				results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemFailed, Reason: reason})
				continue
			}
			if e.resolver != nil {
				resolution, err := e.resolver.Resolve(channel, 0, order.ShippingCode, order.ShippingTitle)
				if err != nil {
					return err
				}
				if resolution.Resolved() {
					methodID := resolution.ShippingMethodID
					order.ShippingMethodID = &methodID
					order.UsedFallback = resolution.UsedFallback()
				} else if resolution.ShouldHoldOrder() {
					order.OnHold = true
					order.HoldReason = "shipping method unresolved"
				}
			}
			planned[no] = true
			inserts = append(inserts, orderInsert{order: order, items: items})
			results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemInserted})
			continue
		}

		if current.IsTerminal() {
			results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemSkipped, Reason: "order is terminal"})
			continue
		}
		changed := orderUpdates(current, input)
		if len(changed) == 0 {
			results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemSkipped})
			continue
		}
		updates = append(updates, orderUpdate{id: current.ID, updates: changed})
		results = append(results, ItemResult{Index: index, Key: no, Outcome: ItemUpdated})
	}

	err = e.db.WithContext(chunkCtx).Transaction(func(tx *gorm.DB) error {
		txRepo := e.orderRepo.WithTx(tx)
		for _, insert := range inserts {
			if err := txRepo.Create(insert.order, insert.items); err != nil {
				return err
			}
		}
		for _, update := range updates {
			if err := txRepo.Updates(update.id, update.updates); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}
	for _, result := range results {
		summary.add(result)
	}
	// 提交成功后才对挂起的新订单告警
	if e.notifier != nil {
		for _, insert := range inserts {
			if insert.order.OnHold {
				e.notifier.OrderHeld(insert.order.ID, insert.order.HoldReason)
			}
		}
	}
	return nil
}

func (e *Engine) buildImportOrder(channel *models.Channel, externalOrderNo string, input OrderInput, skuCache *cache.SKUCache) (*models.Order, []models.OrderItem, string) {
	items := make([]models.OrderItem, 0, len(input.Items))
	for _, line := range input.Items {
		sku := strings.TrimSpace(line.SKU)
		if sku == "" {
			return nil, nil, "item sku is empty"
		}
		if line.Quantity <= 0 {
			return nil, nil, "item quantity invalid"
		}
		item := models.OrderItem{
			SKU:            sku,
			Title:          line.Title,
			Quantity:       line.Quantity,
			UnitAmount:     line.UnitAmount,
			ExternalItemID: line.ExternalItemID,
		}
		if skuCache != nil {
			if productID, ok := skuCache.Lookup(sku); ok {
				item.ProductID = &productID
			}
		}
		items = append(items, item)
	}

	currency := strings.ToUpper(strings.TrimSpace(input.Currency))
	if currency == "" {
		currency = "EUR"
	}
	paymentStatus := strings.TrimSpace(input.PaymentStatus)
	if paymentStatus == "" {
		paymentStatus = constants.PaymentStatusPending
	}

	order := &models.Order{
		ClientID:         channel.ClientID,
		ChannelID:        channel.ID,
		ExternalOrderNo:  externalOrderNo,
		Origin:           constants.OriginCommerce,
		CustomerName:     strings.TrimSpace(input.CustomerName),
		CustomerEmail:    strings.TrimSpace(input.CustomerEmail),
		Currency:         currency,
		ItemsAmount:      input.ItemsAmount,
		ShippingAmount:   input.ShippingAmount,
		TotalAmount:      input.TotalAmount,
		PaymentStatus:    paymentStatus,
		ShippingCode:     strings.TrimSpace(input.ShippingCode),
		ShippingTitle:    strings.TrimSpace(input.ShippingTitle),
		Status:           constants.OrderStatusNew,
		FulfillmentState: constants.FulfillmentStateUnsynced,
		IdempotencyKey:   uuid.NewString(),
	}
	if input.ShippingAddress != nil {
		order.ShippingAddress = *input.ShippingAddress
	}
	return order, items, ""
}

func orderUpdates(current *models.Order, input OrderInput) map[string]interface{} {
	updates := make(map[string]interface{})
	if name := strings.TrimSpace(input.CustomerName); name != "" && name != current.CustomerName {
		updates["customer_name"] = name
	}
	if email := strings.TrimSpace(input.CustomerEmail); email != "" && email != current.CustomerEmail {
		updates["customer_email"] = email
	}
	if currency := strings.ToUpper(strings.TrimSpace(input.Currency)); currency != "" && currency != current.Currency {
		updates["currency"] = currency
	}
	if !input.ItemsAmount.IsZero() && !current.ItemsAmount.Equal(input.ItemsAmount.Decimal) {
		updates["items_amount"] = input.ItemsAmount
	}
	if !input.ShippingAmount.IsZero() && !current.ShippingAmount.Equal(input.ShippingAmount.Decimal) {
		updates["shipping_amount"] = input.ShippingAmount
	}
	if !input.TotalAmount.IsZero() && !current.TotalAmount.Equal(input.TotalAmount.Decimal) {
		updates["total_amount"] = input.TotalAmount
	}
	if status := strings.TrimSpace(input.PaymentStatus); status != "" && status != current.PaymentStatus {
		updates["payment_status"] = status
	}
	if code := strings.TrimSpace(input.ShippingCode); code != "" && code != current.ShippingCode {
		updates["shipping_code"] = code
	}
	if title := strings.TrimSpace(input.ShippingTitle); title != "" && title != current.ShippingTitle {
		updates["shipping_title"] = title
	}
	if input.ShippingAddress != nil && !input.ShippingAddress.IsZero() && !input.ShippingAddress.Equal(current.ShippingAddress) {
		updates["shipping_address"] = *input.ShippingAddress
	}
	return updates
}
