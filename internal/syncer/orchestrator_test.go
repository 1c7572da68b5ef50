package syncer

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/repository"
	"github.com/syncbridge/internal/shipping"

	"github.com/glebarez/sqlite"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

type fakeCanceler struct {
	requested []uint
	db        *gorm.DB
}

func (f *fakeCanceler) RequestCancel(orderID uint) error {
	f.requested = append(f.requested, orderID)
	return f.db.Model(&models.Order{}).Where("id = ?", orderID).Updates(map[string]interface{}{
		"fulfillment_state": constants.FulfillmentStateCanceled,
		"status":            constants.OrderStatusCanceled,
		"canceled_at":       time.Now(),
	}).Error
}

type fakeNotifier struct {
	exhausted  int
	mismatches []string
	held       map[uint]string
}

func (f *fakeNotifier) JobExhausted(_, _, _ string, _ int, _ string) {
	f.exhausted++
}

func (f *fakeNotifier) ShippingMismatch(_ uint, shippingCode, _ string) {
	f.mismatches = append(f.mismatches, shippingCode)
}

func (f *fakeNotifier) OrderHeld(orderID uint, reason string) {
	if f.held == nil {
		f.held = make(map[uint]string)
	}
	f.held[orderID] = reason
}

type orchestratorFixture struct {
	orchestrator *Orchestrator
	canceler     *fakeCanceler
	notifier     *fakeNotifier
	orderRepo    *repository.GormOrderRepository
	db           *gorm.DB
}

func setupOrchestratorTest(t *testing.T) *orchestratorFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(
		&models.Client{},
		&models.Channel{},
		&models.Order{},
		&models.OrderItem{},
		&models.Return{},
		&models.Product{},
		&models.ProductChannelLink{},
		&models.ShippingMethod{},
		&models.ShippingMethodMapping{},
		&models.ShippingMethodMismatch{},
		&models.SyncLogEntry{},
	); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}

	orderRepo := repository.NewOrderRepository(db)
	shippingRepo := repository.NewShippingRepository(db)
	channelRepo := repository.NewChannelRepository(db)
	orchestrator := NewOrchestrator(
		db,
		orderRepo,
		repository.NewReturnRepository(db),
		repository.NewProductRepository(db),
		channelRepo,
		repository.NewSyncLogRepository(db),
		shipping.NewResolver(shippingRepo, channelRepo),
		nil,
	)
	canceler := &fakeCanceler{db: db}
	orchestrator.SetCanceler(canceler)
	notifier := &fakeNotifier{}
	orchestrator.SetNotifier(notifier)
	return &orchestratorFixture{
		orchestrator: orchestrator,
		canceler:     canceler,
		notifier:     notifier,
		orderRepo:    orderRepo,
		db:           db,
	}
}

// seedChannel 建渠道并配一条渠道级运输方式映射（编码 dhl_std）
func (f *orchestratorFixture) seedChannel(t *testing.T, code string) *models.Channel {
	t.Helper()
	client := &models.Client{Code: code + "-client", Name: "client", IsActive: true}
	if err := f.db.Create(client).Error; err != nil {
		t.Fatalf("create client failed: %v", err)
	}
	channel := &models.Channel{
		ClientID: client.ID,
		Code:     code,
		Type:     constants.ChannelTypeShopify,
		Name:     "shop",
		IsActive: true,
	}
	if err := f.db.Create(channel).Error; err != nil {
		t.Fatalf("create channel failed: %v", err)
	}
	method := &models.ShippingMethod{ExternalID: "orc-" + code, Name: "DHL Standard", IsActive: true}
	if err := f.db.Create(method).Error; err != nil {
		t.Fatalf("create method failed: %v", err)
	}
	if err := f.db.Create(&models.ShippingMethodMapping{
		ChannelType:      channel.Type,
		ClientID:         &channel.ClientID,
		ChannelID:        &channel.ID,
		ShippingCode:     "dhl_std",
		ShippingMethodID: method.ID,
	}).Error; err != nil {
		t.Fatalf("create mapping failed: %v", err)
	}
	return channel
}

func orderEvent(channelID uint, externalNo, origin string, payload *events.OrderEvent) *events.Event {
	return &events.Event{
		ID:         fmt.Sprintf("evt-%s-%s", origin, externalNo),
		Kind:       constants.EntityOrder,
		Origin:     origin,
		ChannelID:  channelID,
		ExternalID: externalNo,
		OccurredAt: time.Now(),
		Order:      payload,
	}
}

func TestSyncEventCreatesOrder(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-create")

	result, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-1", constants.OriginCommerce, &events.OrderEvent{
		CustomerName:  events.String("Anna Nowak"),
		CustomerEmail: events.String("anna@example.com"),
		Currency:      events.String("eur"),
		TotalAmount:   events.MoneyPtr(models.NewMoneyFromDecimal(decimal.NewFromInt(80))),
		PaymentStatus: events.String(constants.PaymentStatusPaid),
		ShippingCode:  events.String("dhl_std"),
		Items: []events.OrderItemInput{
			{SKU: "ORC-SKU-1", Title: "Widget", Quantity: 2, UnitAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(40))},
		},
	}))
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeCreated {
		t.Fatalf("expected created, got %+v", result)
	}

	order, err := f.orderRepo.GetByID(result.EntityID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if order.Origin != constants.OriginCommerce {
		t.Fatalf("origin not recorded: %s", order.Origin)
	}
	if order.Currency != "EUR" {
		t.Fatalf("currency not normalized: %s", order.Currency)
	}
	if order.Status != constants.OrderStatusNew || order.FulfillmentState != constants.FulfillmentStateUnsynced {
		t.Fatalf("defaults not applied: %+v", order)
	}
	if order.ShippingMethodID == nil || order.UsedFallback {
		t.Fatalf("shipping not pre-resolved via mapping: %+v", order)
	}
	if order.IdempotencyKey == "" {
		t.Fatalf("idempotency key not generated")
	}
	if len(order.Items) != 1 || order.Items[0].SKU != "ORC-SKU-1" {
		t.Fatalf("items not created: %+v", order.Items)
	}

	var logCount int64
	if err := f.db.Model(&models.SyncLogEntry{}).
		Where("entity_type = ? AND entity_id = ? AND action = ?", constants.EntityOrder, order.ID, constants.SyncActionCreate).
		Count(&logCount).Error; err != nil {
		t.Fatalf("count logs failed: %v", err)
	}
	if logCount != 1 {
		t.Fatalf("create audit log missing, got %d", logCount)
	}
}

func TestSyncEventHoldsOrderOnUnresolvedShipping(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-hold")

	result, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-HOLD-1", constants.OriginCommerce, &events.OrderEvent{
		PaymentStatus: events.String(constants.PaymentStatusPaid),
		ShippingCode:  events.String("carrier_pigeon"),
		Items: []events.OrderItemInput{
			{SKU: "ORC-SKU-2", Title: "Widget", Quantity: 1, UnitAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(10))},
		},
	}))
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeCreated {
		t.Fatalf("unresolved shipping must not reject the order, got %+v", result)
	}

	order, err := f.orderRepo.GetByID(result.EntityID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !order.OnHold || order.HoldReason != "shipping method unresolved" {
		t.Fatalf("order not held: %+v", order)
	}
	if order.ShippingMethodID != nil {
		t.Fatalf("unresolved order must not carry a shipping method")
	}
	if reason, ok := f.notifier.held[order.ID]; !ok || reason != "shipping method unresolved" {
		t.Fatalf("hold must raise an operator notification, got %+v", f.notifier.held)
	}
}

func TestSyncEventEchoSkipped(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-echo")

	create := orderEvent(channel.ID, "ORC-ECHO-1", constants.OriginCommerce, &events.OrderEvent{
		CustomerEmail: events.String("echo@example.com"),
		PaymentStatus: events.String(constants.PaymentStatusPaid),
		ShippingCode:  events.String("dhl_std"),
	})
	if _, err := f.orchestrator.SyncEvent(context.Background(), create); err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 同值重放：不得产生第二次写入与审计日志
	replay := orderEvent(channel.ID, "ORC-ECHO-1", constants.OriginCommerce, &events.OrderEvent{
		CustomerEmail: events.String("echo@example.com"),
		PaymentStatus: events.String(constants.PaymentStatusPaid),
	})
	result, err := f.orchestrator.SyncEvent(context.Background(), replay)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeSkippedEcho {
		t.Fatalf("expected echo skip, got %+v", result)
	}

	var updateLogs int64
	if err := f.db.Model(&models.SyncLogEntry{}).
		Where("entity_type = ? AND entity_id = ? AND action = ?", constants.EntityOrder, result.EntityID, constants.SyncActionUpdate).
		Count(&updateLogs).Error; err != nil {
		t.Fatalf("count logs failed: %v", err)
	}
	if updateLogs != 0 {
		t.Fatalf("echo must not append update logs, got %d", updateLogs)
	}
}

func TestSyncEventOriginOwnershipOnUpdate(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-own")

	created, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-OWN-1", constants.OriginCommerce, &events.OrderEvent{
		CustomerEmail: events.String("owner@example.com"),
		PaymentStatus: events.String(constants.PaymentStatusPaid),
	}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	// 履约网络试图覆写商业字段：被过滤为回声
	result, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-OWN-1", constants.OriginFulfillment, &events.OrderEvent{
		CustomerEmail: events.String("spoofed@example.com"),
	}))
	if err != nil {
		t.Fatalf("fulfillment event failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeSkippedEcho {
		t.Fatalf("foreign-field write should be filtered, got %+v", result)
	}

	// 履约网络写运营字段正常生效
	result, err = f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-OWN-1", constants.OriginFulfillment, &events.OrderEvent{
		Carrier:        events.String("GLS"),
		TrackingNumber: events.String("TRK-OWN-1"),
	}))
	if err != nil {
		t.Fatalf("fulfillment update failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeUpdated {
		t.Fatalf("operational update rejected: %+v", result)
	}

	order, err := f.orderRepo.GetByID(created.EntityID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if order.CustomerEmail != "owner@example.com" {
		t.Fatalf("commercial field overwritten by fulfillment: %s", order.CustomerEmail)
	}
	if order.TrackingNumber != "TRK-OWN-1" || order.Origin != constants.OriginCommerce {
		t.Fatalf("operational update or origin immutability broken: %+v", order)
	}
}

func TestSyncEventCancelRequest(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-cancel")

	created, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-CXL-1", constants.OriginCommerce, &events.OrderEvent{
		PaymentStatus: events.String(constants.PaymentStatusPaid),
	}))
	if err != nil {
		t.Fatalf("create failed: %v", err)
	}

	cancel := orderEvent(channel.ID, "ORC-CXL-1", constants.OriginCommerce, &events.OrderEvent{
		CancelRequested: events.Bool(true),
	})
	result, err := f.orchestrator.SyncEvent(context.Background(), cancel)
	if err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeUpdated {
		t.Fatalf("expected cancel handled, got %+v", result)
	}
	if len(f.canceler.requested) != 1 || f.canceler.requested[0] != created.EntityID {
		t.Fatalf("canceler not invoked: %+v", f.canceler.requested)
	}

	// 已取消订单的重复取消按回声处理
	result, err = f.orchestrator.SyncEvent(context.Background(), cancel)
	if err != nil {
		t.Fatalf("repeat cancel failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeSkippedEcho {
		t.Fatalf("repeat cancel should be an echo, got %+v", result)
	}
	if len(f.canceler.requested) != 1 {
		t.Fatalf("canceler invoked twice")
	}
}

func TestSyncEventReturnLifecycleAndReplacement(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-return")

	created, err := f.orchestrator.SyncEvent(context.Background(), orderEvent(channel.ID, "ORC-RET-ORDER", constants.OriginCommerce, &events.OrderEvent{
		CustomerName:  events.String("Piotr Zieliński"),
		PaymentStatus: events.String(constants.PaymentStatusPaid),
		ShippingCode:  events.String("dhl_std"),
		Items: []events.OrderItemInput{
			{SKU: "RET-SKU-1", Title: "Jacket", Quantity: 1, UnitAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(120))},
		},
	}))
	if err != nil {
		t.Fatalf("order create failed: %v", err)
	}

	returnEvent := func(origin string, payload *events.ReturnEvent) *events.Event {
		payload.OrderExternalNo = "ORC-RET-ORDER"
		return &events.Event{
			ID:         "evt-ret-" + origin,
			Kind:       constants.EntityReturn,
			Origin:     origin,
			ChannelID:  channel.ID,
			ExternalID: "RET-1",
			Return:     payload,
		}
	}

	result, err := f.orchestrator.SyncEvent(context.Background(), returnEvent(constants.OriginCommerce, &events.ReturnEvent{
		Reason: events.String("wrong size"),
	}))
	if err != nil {
		t.Fatalf("return create failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeCreated {
		t.Fatalf("expected return created, got %+v", result)
	}
	returnID := result.EntityID

	// 仓库验收通过并请求替换发货
	result, err = f.orchestrator.SyncEvent(context.Background(), returnEvent(constants.OriginWarehouse, &events.ReturnEvent{
		Status:               events.String(constants.ReturnStatusInspected),
		InspectionResult:     events.String(constants.InspectionAccepted),
		RestockEligible:      events.Bool(true),
		ReplacementRequested: events.Bool(true),
	}))
	if err != nil {
		t.Fatalf("return update failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeUpdated {
		t.Fatalf("expected return updated, got %+v", result)
	}

	var ret models.Return
	if err := f.db.First(&ret, returnID).Error; err != nil {
		t.Fatalf("reload return failed: %v", err)
	}
	if ret.Status != constants.ReturnStatusInspected || !ret.RestockEligible {
		t.Fatalf("return fields not applied: %+v", ret)
	}
	if ret.ReplacementOrderID == nil {
		t.Fatalf("replacement order not created")
	}

	replacement, err := f.orderRepo.GetByID(*ret.ReplacementOrderID)
	if err != nil {
		t.Fatalf("reload replacement failed: %v", err)
	}
	if !replacement.IsReplacement || replacement.ReplacementOfID == nil || *replacement.ReplacementOfID != created.EntityID {
		t.Fatalf("replacement linkage broken: %+v", replacement)
	}
	if !strings.HasPrefix(replacement.ExternalOrderNo, "RPL-") {
		t.Fatalf("replacement order no must be platform-generated: %s", replacement.ExternalOrderNo)
	}
	if replacement.Origin != constants.OriginPlatform {
		t.Fatalf("replacement origin wrong: %s", replacement.Origin)
	}
	if len(replacement.Items) != 1 || !replacement.Items[0].UnitAmount.IsZero() {
		t.Fatalf("replacement items must be zero-amount clones: %+v", replacement.Items)
	}

	// 商城试图更新既有退货：平台为权威，写入被过滤
	result, err = f.orchestrator.SyncEvent(context.Background(), returnEvent(constants.OriginCommerce, &events.ReturnEvent{
		Status: events.String(constants.ReturnStatusFinalized),
	}))
	if err != nil {
		t.Fatalf("commerce return update failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeSkippedEcho {
		t.Fatalf("commerce must not drive return state, got %+v", result)
	}
}

func TestSyncEventProductCreateAndUpdate(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-product")

	productEvent := func(payload *events.ProductEvent) *events.Event {
		return &events.Event{
			ID:         "evt-prod-1",
			Kind:       constants.EntityProduct,
			Origin:     constants.OriginCommerce,
			ChannelID:  channel.ID,
			ExternalID: "ORC-PROD-1",
			Product:    payload,
		}
	}

	result, err := f.orchestrator.SyncEvent(context.Background(), productEvent(&events.ProductEvent{
		Title:             events.String("Hoodie"),
		PriceAmount:       events.MoneyPtr(models.NewMoneyFromDecimal(decimal.NewFromInt(45))),
		ExternalProductID: events.String("gid://product/1"),
	}))
	if err != nil {
		t.Fatalf("product create failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeCreated {
		t.Fatalf("expected product created, got %+v", result)
	}
	productID := result.EntityID

	var link models.ProductChannelLink
	if err := f.db.Where("product_id = ? AND channel_id = ?", productID, channel.ID).First(&link).Error; err != nil {
		t.Fatalf("channel link missing: %v", err)
	}

	// 价格变更生效
	result, err = f.orchestrator.SyncEvent(context.Background(), productEvent(&events.ProductEvent{
		PriceAmount: events.MoneyPtr(models.NewMoneyFromDecimal(decimal.NewFromInt(39))),
	}))
	if err != nil {
		t.Fatalf("product update failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeUpdated {
		t.Fatalf("expected product updated, got %+v", result)
	}

	// 同值重放为回声
	result, err = f.orchestrator.SyncEvent(context.Background(), productEvent(&events.ProductEvent{
		PriceAmount: events.MoneyPtr(models.NewMoneyFromDecimal(decimal.NewFromInt(39))),
	}))
	if err != nil {
		t.Fatalf("product replay failed: %v", err)
	}
	if result.Outcome != constants.SyncOutcomeSkippedEcho {
		t.Fatalf("expected echo skip, got %+v", result)
	}

	// 缺少标题的新 SKU 被拒绝
	_, err = f.orchestrator.SyncEvent(context.Background(), &events.Event{
		ID:         "evt-prod-bad",
		Kind:       constants.EntityProduct,
		Origin:     constants.OriginCommerce,
		ChannelID:  channel.ID,
		ExternalID: "ORC-PROD-MISSING",
		Product:    &events.ProductEvent{},
	})
	if err != ErrProductInvalid {
		t.Fatalf("expected ErrProductInvalid, got %v", err)
	}
}

func TestSyncBatchIsolatesFailures(t *testing.T) {
	f := setupOrchestratorTest(t)
	channel := f.seedChannel(t, "orc-batch")

	batch := []*events.Event{
		orderEvent(channel.ID, "ORC-BATCH-1", constants.OriginCommerce, &events.OrderEvent{
			PaymentStatus: events.String(constants.PaymentStatusPaid),
		}),
		// 未知渠道：失败但不中断批次
		orderEvent(999999, "ORC-BATCH-2", constants.OriginCommerce, &events.OrderEvent{}),
		orderEvent(channel.ID, "ORC-BATCH-3", constants.OriginCommerce, &events.OrderEvent{
			PaymentStatus: events.String(constants.PaymentStatusPaid),
		}),
	}
	results := f.orchestrator.SyncBatch(context.Background(), batch)
	if len(results) != 3 {
		t.Fatalf("expected 3 results, got %d", len(results))
	}
	if results[0].Outcome != constants.SyncOutcomeCreated || results[2].Outcome != constants.SyncOutcomeCreated {
		t.Fatalf("valid events should succeed: %+v", results)
	}
	if results[1].Outcome != constants.SyncOutcomeFailed {
		t.Fatalf("unknown channel should fail: %+v", results[1])
	}
}
