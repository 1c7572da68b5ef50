package syncer

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/notify"
	"github.com/syncbridge/internal/ownership"
	"github.com/syncbridge/internal/queue"
	"github.com/syncbridge/internal/repository"
	"github.com/syncbridge/internal/shipping"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	// ErrChannelUnknown 渠道不存在或未启用
	ErrChannelUnknown = errors.New("syncer: channel unknown or inactive")
	// ErrOrderUnknown 退货所属订单不存在
	ErrOrderUnknown = errors.New("syncer: order not found for return")
	// ErrProductInvalid 商品事件缺少必要字段
	ErrProductInvalid = errors.New("syncer: product event invalid")
)

// Result 单个事件的同步结果
type Result struct {
	Outcome    string `json:"outcome"`             // created / updated / skipped_echo / failed
	EntityType string `json:"entity_type"`
	EntityID   uint   `json:"entity_id,omitempty"`
	Message    string `json:"message,omitempty"`
}

// CancelRequester 订单取消请求接口，由履约适配器实现
type CancelRequester interface {
	RequestCancel(orderID uint) error
}

// Orchestrator 同步编排器
//
// 所有入站变更事件的唯一写入口。每个事件独立处理：字段属主
// 过滤、回声拦截、落库与审计日志在一个事务内完成，下游任务
// 在事务提交后入队。
type Orchestrator struct {
	db          *gorm.DB
	orderRepo   repository.OrderRepository
	returnRepo  repository.ReturnRepository
	productRepo repository.ProductRepository
	channelRepo repository.ChannelRepository
	syncLogRepo repository.SyncLogRepository
	resolver    *shipping.Resolver
	queueClient *queue.Client
	canceler    CancelRequester
	notifier    notify.Notifier
}

// NewOrchestrator 创建同步编排器
func NewOrchestrator(
	db *gorm.DB,
	orderRepo repository.OrderRepository,
	returnRepo repository.ReturnRepository,
	productRepo repository.ProductRepository,
	channelRepo repository.ChannelRepository,
	syncLogRepo repository.SyncLogRepository,
	resolver *shipping.Resolver,
	queueClient *queue.Client,
) *Orchestrator {
	return &Orchestrator{
		db:          db,
		orderRepo:   orderRepo,
		returnRepo:  returnRepo,
		productRepo: productRepo,
		channelRepo: channelRepo,
		syncLogRepo: syncLogRepo,
		resolver:    resolver,
		queueClient: queueClient,
	}
}

// SetCanceler 注入取消请求实现（构造后装配，打破与适配器的构造环）
func (o *Orchestrator) SetCanceler(canceler CancelRequester) {
	o.canceler = canceler
}

// SetNotifier 注入告警通知器（构造后装配，可选）
func (o *Orchestrator) SetNotifier(notifier notify.Notifier) {
	o.notifier = notifier
}

// notifyOrderHeld 订单挂起告警，未配置通知器时静默
func (o *Orchestrator) notifyOrderHeld(orderID uint, reason string) {
	if o.notifier != nil {
		o.notifier.OrderHeld(orderID, reason)
	}
}

// SyncEvent 处理单个规范化事件
func (o *Orchestrator) SyncEvent(ctx context.Context, ev *events.Event) (*Result, error) {
	if err := ev.Validate(); err != nil {
		return &Result{Outcome: constants.SyncOutcomeFailed, Message: err.Error()}, err
	}
	switch ev.Kind {
	case constants.EntityOrder:
		return o.syncOrderEvent(ctx, ev)
	case constants.EntityReturn:
		return o.syncReturnEvent(ctx, ev)
	case constants.EntityProduct:
		return o.syncProductEvent(ctx, ev)
	}
	return &Result{Outcome: constants.SyncOutcomeFailed, Message: "unknown kind"}, events.ErrEventKindUnknown
}

// SyncBatch 批量处理事件
//
// 事件之间互相隔离：单个事件的失败（包括 panic）只影响自身
// 结果，绝不中断批次中的其余事件。
func (o *Orchestrator) SyncBatch(ctx context.Context, batch []*events.Event) []Result {
	results := make([]Result, 0, len(batch))
	for _, ev := range batch {
		results = append(results, o.syncOne(ctx, ev))
	}
	return results
}

func (o *Orchestrator) syncOne(ctx context.Context, ev *events.Event) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			logger.Errorw("syncer_event_panic",
				"event_id", eventID(ev),
				"panic", fmt.Sprintf("%v", r))
			result = Result{
				Outcome: constants.SyncOutcomeFailed,
				Message: fmt.Sprintf("panic: %v", r),
			}
		}
	}()
	res, err := o.SyncEvent(ctx, ev)
	if res != nil {
		return *res
	}
	message := "unknown failure"
	if err != nil {
		message = err.Error()
	}
	return Result{Outcome: constants.SyncOutcomeFailed, Message: message}
}

func (o *Orchestrator) syncOrderEvent(ctx context.Context, ev *events.Event) (*Result, error) {
	channel, err := o.activeChannel(ev.ChannelID)
	if err != nil {
		return failed(constants.EntityOrder, err), err
	}

	order, err := o.orderRepo.GetByChannelAndExternalNo(ev.ChannelID, ev.ExternalID)
	if err != nil {
		return failed(constants.EntityOrder, err), err
	}
	if order == nil {
		return o.createOrder(ctx, channel, ev)
	}
	return o.updateOrder(ctx, channel, order, ev)
}

func (o *Orchestrator) createOrder(ctx context.Context, channel *models.Channel, ev *events.Event) (*Result, error) {
	payload := ev.Order
	order := &models.Order{
		ClientID:         channel.ClientID,
		ChannelID:        channel.ID,
		ExternalOrderNo:  ev.ExternalID,
		Origin:           ev.Origin,
		Currency:         "EUR",
		Status:           constants.OrderStatusNew,
		FulfillmentState: constants.FulfillmentStateUnsynced,
		PaymentStatus:    constants.PaymentStatusPending,
		IdempotencyKey:   uuid.NewString(),
	}
	applyOrderCreate(order, payload, ev.Origin)

	items := make([]models.OrderItem, 0, len(payload.Items))
	for _, input := range payload.Items {
		items = append(items, models.OrderItem{
			SKU:            strings.TrimSpace(input.SKU),
			Title:          input.Title,
			Quantity:       input.Quantity,
			UnitAmount:     input.UnitAmount,
			ExternalItemID: input.ExternalItemID,
		})
	}

	// 创建前预解析运输方式；完全失配则挂起而不是拒收
	resolution, err := o.resolver.Resolve(channel, 0, order.ShippingCode, order.ShippingTitle)
	if err != nil {
		return failed(constants.EntityOrder, err), err
	}
	if resolution.Resolved() {
		methodID := resolution.ShippingMethodID
		order.ShippingMethodID = &methodID
		order.UsedFallback = resolution.UsedFallback()
	} else if resolution.ShouldHoldOrder() {
		order.OnHold = true
		order.HoldReason = "shipping method unresolved"
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.orderRepo.WithTx(tx).Create(order, items); err != nil {
			return err
		}
		return o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
			EntityType: constants.EntityOrder,
			EntityID:   order.ID,
			Origin:     ev.Origin,
			Action:     constants.SyncActionCreate,
			After: models.JSON{
				"external_order_no": order.ExternalOrderNo,
				"origin":            order.Origin,
				"status":            order.Status,
				"payment_status":    order.PaymentStatus,
				"total_amount":      order.TotalAmount.String(),
				"on_hold":           order.OnHold,
			},
			EventID: eventID(ev),
		})
	})
	if err != nil {
		return failed(constants.EntityOrder, err), err
	}

	logger.Infow("syncer_order_created",
		"order_id", order.ID,
		"channel_id", channel.ID,
		"external_order_no", order.ExternalOrderNo,
		"origin", ev.Origin,
		"on_hold", order.OnHold)
	if order.OnHold {
		o.notifyOrderHeld(order.ID, order.HoldReason)
	}
	o.maybeEnqueueFulfillment(order)

	return &Result{
		Outcome:    constants.SyncOutcomeCreated,
		EntityType: constants.EntityOrder,
		EntityID:   order.ID,
	}, nil
}

func (o *Orchestrator) updateOrder(ctx context.Context, channel *models.Channel, order *models.Order, ev *events.Event) (*Result, error) {
	payload := ev.Order

	// 取消是操作不是字段写入，优先于字段差分处理
	if payload.CancelRequested != nil && *payload.CancelRequested {
		return o.cancelOrder(ctx, order, ev)
	}

	diff := ownership.DiffOrder(order, payload, ev.Origin)
	if diff.IsEcho() || diff.Empty() {
		logger.Debugw("syncer_order_echo_skipped",
			"order_id", order.ID,
			"origin", ev.Origin,
			"carried", diff.Carried)
		return &Result{
			Outcome:    constants.SyncOutcomeSkippedEcho,
			EntityType: constants.EntityOrder,
			EntityID:   order.ID,
		}, nil
	}

	updates := diff.Updates()
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.orderRepo.WithTx(tx).Updates(order.ID, updates); err != nil {
			return err
		}
		return o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
			EntityType:    constants.EntityOrder,
			EntityID:      order.ID,
			Origin:        ev.Origin,
			Action:        constants.SyncActionUpdate,
			ChangedFields: models.StringArray(diff.FieldNames()),
			Before:        diff.BeforeSnapshot(),
			After:         diff.AfterSnapshot(),
			EventID:       eventID(ev),
		})
	})
	if err != nil {
		return failed(constants.EntityOrder, err), err
	}

	logger.Infow("syncer_order_updated",
		"order_id", order.ID,
		"origin", ev.Origin,
		"changed_fields", diff.FieldNames())
	o.afterOrderUpdate(channel, order, ev.Origin, updates)

	return &Result{
		Outcome:    constants.SyncOutcomeUpdated,
		EntityType: constants.EntityOrder,
		EntityID:   order.ID,
	}, nil
}

// afterOrderUpdate 提交后的派生动作：运输方式重解析、履约入队、商城回写
func (o *Orchestrator) afterOrderUpdate(channel *models.Channel, order *models.Order, origin string, updates map[string]interface{}) {
	_, shippingCodeChanged := updates["shipping_code"]
	_, shippingTitleChanged := updates["shipping_title"]
	if shippingCodeChanged || shippingTitleChanged {
		o.reresolveShipping(channel, order, updates)
	}

	if status, ok := updates["payment_status"].(string); ok &&
		constants.ApprovedPaymentStatuses[status] &&
		order.FulfillmentState == constants.FulfillmentStateUnsynced {
		refreshed, err := o.orderRepo.GetByID(order.ID)
		if err == nil && refreshed != nil {
			o.maybeEnqueueFulfillment(refreshed)
		}
	}

	// 平台侧写入的运营字段回写商城
	if origin != constants.OriginCommerce && o.queueClient != nil {
		fields := make([]string, 0, len(updates))
		for field := range updates {
			fields = append(fields, field)
		}
		if err := o.queueClient.EnqueueCommerceSyncBack(queue.CommerceSyncBackPayload{
			OrderID: order.ID,
			Fields:  fields,
		}); err != nil {
			logger.Warnw("syncer_commerce_sync_back_enqueue_failed",
				"order_id", order.ID, "error", err)
		}
	}
}

func (o *Orchestrator) reresolveShipping(channel *models.Channel, order *models.Order, updates map[string]interface{}) {
	code := order.ShippingCode
	title := order.ShippingTitle
	if v, ok := updates["shipping_code"].(string); ok {
		code = v
	}
	if v, ok := updates["shipping_title"].(string); ok {
		title = v
	}

	resolution, err := o.resolver.Resolve(channel, order.ID, code, title)
	if err != nil {
		logger.Warnw("syncer_shipping_reresolve_failed", "order_id", order.ID, "error", err)
		return
	}
	shippingUpdates := map[string]interface{}{}
	if resolution.Resolved() {
		shippingUpdates["shipping_method_id"] = resolution.ShippingMethodID
		shippingUpdates["used_fallback"] = resolution.UsedFallback()
		// 之前因失配挂起的订单在解析成功后自动放行
		if order.OnHold && order.HoldReason == "shipping method unresolved" {
			shippingUpdates["on_hold"] = false
			shippingUpdates["hold_reason"] = ""
		}
	} else {
		shippingUpdates["shipping_method_id"] = nil
		shippingUpdates["used_fallback"] = false
		shippingUpdates["on_hold"] = true
		shippingUpdates["hold_reason"] = "shipping method unresolved"
	}
	if err := o.orderRepo.Updates(order.ID, shippingUpdates); err != nil {
		logger.Warnw("syncer_shipping_update_failed", "order_id", order.ID, "error", err)
		return
	}
	if held, ok := shippingUpdates["on_hold"].(bool); ok && held && !order.OnHold {
		o.notifyOrderHeld(order.ID, "shipping method unresolved")
	}
}

func (o *Orchestrator) cancelOrder(ctx context.Context, order *models.Order, ev *events.Event) (*Result, error) {
	if order.FulfillmentState == constants.FulfillmentStateCanceled ||
		order.Status == constants.OrderStatusCanceled {
		return &Result{
			Outcome:    constants.SyncOutcomeSkippedEcho,
			EntityType: constants.EntityOrder,
			EntityID:   order.ID,
		}, nil
	}
	if o.canceler == nil {
		err := errors.New("syncer: canceler not configured")
		return failed(constants.EntityOrder, err), err
	}
	if err := o.canceler.RequestCancel(order.ID); err != nil {
		return failed(constants.EntityOrder, err), err
	}
	if err := o.syncLogRepo.Append(&models.SyncLogEntry{
		EntityType: constants.EntityOrder,
		EntityID:   order.ID,
		Origin:     ev.Origin,
		Action:     constants.SyncActionCancel,
		EventID:    eventID(ev),
	}); err != nil {
		logger.Warnw("syncer_cancel_log_failed", "order_id", order.ID, "error", err)
	}
	logger.Infow("syncer_order_cancel_requested",
		"order_id", order.ID,
		"origin", ev.Origin)
	return &Result{
		Outcome:    constants.SyncOutcomeUpdated,
		EntityType: constants.EntityOrder,
		EntityID:   order.ID,
	}, nil
}

func (o *Orchestrator) syncReturnEvent(ctx context.Context, ev *events.Event) (*Result, error) {
	channel, err := o.activeChannel(ev.ChannelID)
	if err != nil {
		return failed(constants.EntityReturn, err), err
	}
	payload := ev.Return

	order, err := o.orderRepo.GetByChannelAndExternalNo(channel.ID, payload.OrderExternalNo)
	if err != nil {
		return failed(constants.EntityReturn, err), err
	}
	if order == nil {
		return failed(constants.EntityReturn, ErrOrderUnknown), ErrOrderUnknown
	}

	ret, err := o.returnRepo.GetByChannelAndExternalNo(channel.ID, ev.ExternalID)
	if err != nil {
		return failed(constants.EntityReturn, err), err
	}
	if ret == nil {
		return o.createReturn(ctx, channel, order, ev)
	}
	return o.updateReturn(ctx, channel, order, ret, ev)
}

func (o *Orchestrator) createReturn(ctx context.Context, channel *models.Channel, order *models.Order, ev *events.Event) (*Result, error) {
	payload := ev.Return
	ret := &models.Return{
		ClientID:         channel.ClientID,
		ChannelID:        channel.ID,
		ExternalReturnNo: ev.ExternalID,
		OrderID:          order.ID,
		Origin:           ev.Origin,
		Status:           constants.ReturnStatusAnnounced,
		InspectionResult: constants.InspectionPending,
	}
	if payload.Status != nil {
		ret.Status = *payload.Status
	}
	if payload.Reason != nil {
		ret.Reason = *payload.Reason
	}

	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := o.returnRepo.WithTx(tx).Create(ret); err != nil {
			return err
		}
		return o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
			EntityType: constants.EntityReturn,
			EntityID:   ret.ID,
			Origin:     ev.Origin,
			Action:     constants.SyncActionCreate,
			After: models.JSON{
				"external_return_no": ret.ExternalReturnNo,
				"order_id":           ret.OrderID,
				"origin":             ret.Origin,
				"status":             ret.Status,
				"reason":             ret.Reason,
			},
			EventID: eventID(ev),
		})
	})
	if err != nil {
		return failed(constants.EntityReturn, err), err
	}

	logger.Infow("syncer_return_created",
		"return_id", ret.ID,
		"order_id", order.ID,
		"origin", ev.Origin)
	return &Result{
		Outcome:    constants.SyncOutcomeCreated,
		EntityType: constants.EntityReturn,
		EntityID:   ret.ID,
	}, nil
}

func (o *Orchestrator) updateReturn(ctx context.Context, channel *models.Channel, order *models.Order, ret *models.Return, ev *events.Event) (*Result, error) {
	payload := ev.Return

	diff := ownership.DiffReturn(ret, payload, ev.Origin)
	replacementWanted := payload.ReplacementRequested != nil && *payload.ReplacementRequested &&
		ret.ReplacementOrderID == nil && ownershipAllowsReturnOps(ev.Origin)

	if (diff.IsEcho() || diff.Empty()) && !replacementWanted {
		logger.Debugw("syncer_return_echo_skipped",
			"return_id", ret.ID,
			"origin", ev.Origin,
			"carried", diff.Carried)
		return &Result{
			Outcome:    constants.SyncOutcomeSkippedEcho,
			EntityType: constants.EntityReturn,
			EntityID:   ret.ID,
		}, nil
	}

	updates := diff.Updates()
	if finalized, ok := updates["finalized"].(bool); ok && finalized {
		now := time.Now()
		updates["finalized_at"] = now
	}

	var replacement *models.Order
	err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if len(updates) > 0 {
			if err := o.returnRepo.WithTx(tx).Updates(ret.ID, updates); err != nil {
				return err
			}
			if err := o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
				EntityType:    constants.EntityReturn,
				EntityID:      ret.ID,
				Origin:        ev.Origin,
				Action:        constants.SyncActionUpdate,
				ChangedFields: models.StringArray(diff.FieldNames()),
				Before:        diff.BeforeSnapshot(),
				After:         diff.AfterSnapshot(),
				EventID:       eventID(ev),
			}); err != nil {
				return err
			}
		}
		if replacementWanted {
			created, err := o.createReplacementOrder(tx, channel, order, ret, eventID(ev))
			if err != nil {
				return err
			}
			replacement = created
		}
		return nil
	})
	if err != nil {
		return failed(constants.EntityReturn, err), err
	}

	logger.Infow("syncer_return_updated",
		"return_id", ret.ID,
		"origin", ev.Origin,
		"changed_fields", diff.FieldNames())
	o.afterReturnUpdate(ret, updates, replacement)

	return &Result{
		Outcome:    constants.SyncOutcomeUpdated,
		EntityType: constants.EntityReturn,
		EntityID:   ret.ID,
	}, nil
}

// createReplacementOrder 替换单：行项目克隆自原订单，金额为零，
// 渠道单号由平台生成以维持 (channel, external_order_no) 唯一约束
func (o *Orchestrator) createReplacementOrder(tx *gorm.DB, channel *models.Channel, original *models.Order, ret *models.Return, evID string) (*models.Order, error) {
	replacement := &models.Order{
		ClientID:         channel.ClientID,
		ChannelID:        channel.ID,
		ExternalOrderNo:  replacementOrderNo(),
		Origin:           constants.OriginPlatform,
		IsReplacement:    true,
		ReplacementOfID:  &original.ID,
		CustomerName:     original.CustomerName,
		CustomerEmail:    original.CustomerEmail,
		Currency:         original.Currency,
		PaymentStatus:    constants.PaymentStatusPaid, // 零金额替换单视同已支付
		ShippingCode:     original.ShippingCode,
		ShippingTitle:    original.ShippingTitle,
		ShippingAddress:  original.ShippingAddress,
		CorrectedAddress: original.CorrectedAddress,
		Status:           constants.OrderStatusNew,
		FulfillmentState: constants.FulfillmentStateUnsynced,
		ShippingMethodID: original.ShippingMethodID,
		UsedFallback:     original.UsedFallback,
		Priority:         original.Priority,
		IdempotencyKey:   uuid.NewString(),
	}

	items := make([]models.OrderItem, 0, len(original.Items))
	for _, item := range original.Items {
		items = append(items, models.OrderItem{
			ProductID:  item.ProductID,
			SKU:        item.SKU,
			Title:      item.Title,
			Quantity:   item.Quantity,
			UnitAmount: models.Money{},
		})
	}

	txOrderRepo := o.orderRepo.WithTx(tx)
	if err := txOrderRepo.Create(replacement, items); err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Return{}).
		Where("id = ?", ret.ID).
		Update("replacement_order_id", replacement.ID).Error; err != nil {
		return nil, err
	}
	if err := o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
		EntityType: constants.EntityOrder,
		EntityID:   replacement.ID,
		Origin:     constants.OriginPlatform,
		Action:     constants.SyncActionCreate,
		After: models.JSON{
			"external_order_no": replacement.ExternalOrderNo,
			"is_replacement":    true,
			"replacement_of_id": original.ID,
			"return_id":         ret.ID,
		},
		EventID: evID,
	}); err != nil {
		return nil, err
	}
	return replacement, nil
}

func (o *Orchestrator) afterReturnUpdate(ret *models.Return, updates map[string]interface{}, replacement *models.Order) {
	if o.queueClient == nil {
		if replacement != nil {
			logger.Infow("syncer_replacement_order_created",
				"return_id", ret.ID, "order_id", replacement.ID)
		}
		return
	}

	// 验收通过且可回库 → 回库任务
	eligible, eligibleChanged := updates["restock_eligible"].(bool)
	result, resultChanged := updates["inspection_result"].(string)
	restockEligible := ret.RestockEligible
	if eligibleChanged {
		restockEligible = eligible
	}
	inspection := ret.InspectionResult
	if resultChanged {
		inspection = result
	}
	if restockEligible && inspection == constants.InspectionAccepted && ret.RestockedAt == nil {
		if err := o.queueClient.EnqueueReturnRestock(queue.ReturnRestockPayload{ReturnID: ret.ID}); err != nil {
			logger.Warnw("syncer_return_restock_enqueue_failed",
				"return_id", ret.ID, "error", err)
		}
	}

	if replacement != nil {
		logger.Infow("syncer_replacement_order_created",
			"return_id", ret.ID,
			"order_id", replacement.ID,
			"external_order_no", replacement.ExternalOrderNo)
		o.maybeEnqueueFulfillment(replacement)
	}
}

func (o *Orchestrator) syncProductEvent(ctx context.Context, ev *events.Event) (*Result, error) {
	channel, err := o.activeChannel(ev.ChannelID)
	if err != nil {
		return failed(constants.EntityProduct, err), err
	}
	payload := ev.Product
	sku := strings.TrimSpace(ev.ExternalID)

	product, err := o.productRepo.GetByClientAndSKU(channel.ClientID, sku)
	if err != nil {
		return failed(constants.EntityProduct, err), err
	}
	if product == nil {
		if payload.Title == nil || strings.TrimSpace(*payload.Title) == "" {
			return failed(constants.EntityProduct, ErrProductInvalid), ErrProductInvalid
		}
		product = &models.Product{
			ClientID: channel.ClientID,
			SKU:      sku,
			Title:    strings.TrimSpace(*payload.Title),
			IsActive: payload.IsActive == nil || *payload.IsActive,
		}
		if payload.Description != nil {
			product.Description = *payload.Description
		}
		if payload.Barcode != nil {
			product.Barcode = *payload.Barcode
		}
		if payload.WeightGrams != nil {
			product.WeightGrams = *payload.WeightGrams
		}
		if payload.PriceAmount != nil {
			product.PriceAmount = *payload.PriceAmount
		}

		err := o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			txRepo := o.productRepo.WithTx(tx)
			if err := txRepo.Create(product); err != nil {
				return err
			}
			if err := o.linkProductChannel(txRepo, product.ID, channel.ID, payload.ExternalProductID); err != nil {
				return err
			}
			return o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
				EntityType: constants.EntityProduct,
				EntityID:   product.ID,
				Origin:     ev.Origin,
				Action:     constants.SyncActionCreate,
				After: models.JSON{
					"sku":   product.SKU,
					"title": product.Title,
				},
				EventID: eventID(ev),
			})
		})
		if err != nil {
			return failed(constants.EntityProduct, err), err
		}

		logger.Infow("syncer_product_created",
			"product_id", product.ID,
			"client_id", channel.ClientID,
			"sku", product.SKU)
		return &Result{
			Outcome:    constants.SyncOutcomeCreated,
			EntityType: constants.EntityProduct,
			EntityID:   product.ID,
		}, nil
	}

	diff := ownership.DiffProduct(product, payload, ev.Origin)
	linkWanted := payload.ExternalProductID != nil && strings.TrimSpace(*payload.ExternalProductID) != ""
	if (diff.IsEcho() || diff.Empty()) && !linkWanted {
		return &Result{
			Outcome:    constants.SyncOutcomeSkippedEcho,
			EntityType: constants.EntityProduct,
			EntityID:   product.ID,
		}, nil
	}

	err = o.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		txRepo := o.productRepo.WithTx(tx)
		if len(diff.Changes) > 0 {
			if err := txRepo.Updates(product.ID, diff.Updates()); err != nil {
				return err
			}
			if err := o.syncLogRepo.WithTx(tx).Append(&models.SyncLogEntry{
				EntityType:    constants.EntityProduct,
				EntityID:      product.ID,
				Origin:        ev.Origin,
				Action:        constants.SyncActionUpdate,
				ChangedFields: models.StringArray(diff.FieldNames()),
				Before:        diff.BeforeSnapshot(),
				After:         diff.AfterSnapshot(),
				EventID:       eventID(ev),
			}); err != nil {
				return err
			}
		}
		return o.linkProductChannel(txRepo, product.ID, channel.ID, payload.ExternalProductID)
	})
	if err != nil {
		return failed(constants.EntityProduct, err), err
	}

	if len(diff.Changes) == 0 {
		return &Result{
			Outcome:    constants.SyncOutcomeSkippedEcho,
			EntityType: constants.EntityProduct,
			EntityID:   product.ID,
		}, nil
	}
	logger.Infow("syncer_product_updated",
		"product_id", product.ID,
		"origin", ev.Origin,
		"changed_fields", diff.FieldNames())
	return &Result{
		Outcome:    constants.SyncOutcomeUpdated,
		EntityType: constants.EntityProduct,
		EntityID:   product.ID,
	}, nil
}

func (o *Orchestrator) linkProductChannel(txRepo *repository.GormProductRepository, productID, channelID uint, externalProductID *string) error {
	if externalProductID == nil || strings.TrimSpace(*externalProductID) == "" {
		return nil
	}
	return txRepo.UpsertChannelLink(&models.ProductChannelLink{
		ProductID:         productID,
		ChannelID:         channelID,
		ExternalProductID: strings.TrimSpace(*externalProductID),
	})
}

func (o *Orchestrator) activeChannel(channelID uint) (*models.Channel, error) {
	channel, err := o.channelRepo.GetByID(channelID)
	if err != nil {
		return nil, err
	}
	if channel == nil || !channel.IsActive {
		return nil, ErrChannelUnknown
	}
	return channel, nil
}

// KickFulfillment 重新评估订单并在满足守卫条件时推送履约同步任务
//
// 供运维操作（放行挂单、失配解决）在状态变更后调用。
func (o *Orchestrator) KickFulfillment(orderID uint) error {
	order, err := o.orderRepo.GetByID(orderID)
	if err != nil {
		return err
	}
	if order == nil {
		return nil
	}
	o.maybeEnqueueFulfillment(order)
	return nil
}

// maybeEnqueueFulfillment 满足守卫条件时推送履约同步任务
func (o *Orchestrator) maybeEnqueueFulfillment(order *models.Order) {
	if o.queueClient == nil {
		return
	}
	if order.OnHold || order.IsTerminal() {
		return
	}
	if !constants.ApprovedPaymentStatuses[order.PaymentStatus] {
		return
	}
	if order.FulfillmentState != constants.FulfillmentStateUnsynced {
		return
	}
	if order.ShippingMethodID == nil || *order.ShippingMethodID == 0 {
		return
	}
	if err := o.queueClient.EnqueueOrderFulfillmentSync(queue.OrderFulfillmentSyncPayload{
		OrderID: order.ID,
		Action:  "sync",
	}); err != nil {
		logger.Warnw("syncer_fulfillment_enqueue_failed",
			"order_id", order.ID, "error", err)
	}
}

// applyOrderCreate 创建时只采纳来源拥有的字段
func applyOrderCreate(order *models.Order, payload *events.OrderEvent, origin string) {
	assign := func(field string, apply func()) {
		if ownership.OwnsOrderField(origin, field) {
			apply()
		}
	}
	if payload.CustomerName != nil {
		assign("customer_name", func() { order.CustomerName = *payload.CustomerName })
	}
	if payload.CustomerEmail != nil {
		assign("customer_email", func() { order.CustomerEmail = *payload.CustomerEmail })
	}
	if payload.Currency != nil && strings.TrimSpace(*payload.Currency) != "" {
		assign("currency", func() { order.Currency = strings.ToUpper(strings.TrimSpace(*payload.Currency)) })
	}
	if payload.ItemsAmount != nil {
		assign("items_amount", func() { order.ItemsAmount = *payload.ItemsAmount })
	}
	if payload.ShippingAmount != nil {
		assign("shipping_amount", func() { order.ShippingAmount = *payload.ShippingAmount })
	}
	if payload.TotalAmount != nil {
		assign("total_amount", func() { order.TotalAmount = *payload.TotalAmount })
	}
	if payload.PaymentStatus != nil {
		assign("payment_status", func() { order.PaymentStatus = *payload.PaymentStatus })
	}
	if payload.ShippingCode != nil {
		assign("shipping_code", func() { order.ShippingCode = *payload.ShippingCode })
	}
	if payload.ShippingTitle != nil {
		assign("shipping_title", func() { order.ShippingTitle = *payload.ShippingTitle })
	}
	if payload.ShippingAddress != nil {
		assign("shipping_address", func() { order.ShippingAddress = *payload.ShippingAddress })
	}
	if payload.Status != nil {
		assign("status", func() { order.Status = *payload.Status })
	}
	if payload.CorrectedAddress != nil {
		assign("corrected_address", func() { order.CorrectedAddress = payload.CorrectedAddress })
	}
	if payload.OnHold != nil {
		assign("on_hold", func() { order.OnHold = *payload.OnHold })
	}
	if payload.HoldReason != nil {
		assign("hold_reason", func() { order.HoldReason = *payload.HoldReason })
	}
	if payload.Priority != nil {
		assign("priority", func() { order.Priority = *payload.Priority })
	}
}

// ownershipAllowsReturnOps 退货侧操作（替换发货）仅平台侧来源可触发
func ownershipAllowsReturnOps(origin string) bool {
	switch origin {
	case constants.OriginPlatform, constants.OriginFulfillment, constants.OriginWarehouse:
		return true
	}
	return false
}

func replacementOrderNo() string {
	return "RPL-" + strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:16])
}

func failed(entityType string, err error) *Result {
	return &Result{
		Outcome:    constants.SyncOutcomeFailed,
		EntityType: entityType,
		Message:    err.Error(),
	}
}

func eventID(ev *events.Event) string {
	if ev == nil {
		return ""
	}
	return ev.ID
}
