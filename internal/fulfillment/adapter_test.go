package fulfillment

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/repository"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fakeNetwork 履约网络测试替身，按幂等键去重
type fakeNetwork struct {
	createCalls int
	cancelCalls int
	cancelErr   error
	statusByID  map[string]*OutboundStatus
	outbounds   map[string]string // 幂等键 -> 出库单号
}

func newFakeNetwork() *fakeNetwork {
	return &fakeNetwork{
		statusByID: make(map[string]*OutboundStatus),
		outbounds:  make(map[string]string),
	}
}

func (f *fakeNetwork) CreateOutbound(_ context.Context, input CreateOutboundInput) (*CreateOutboundResult, error) {
	f.createCalls++
	if id, ok := f.outbounds[input.IdempotencyKey]; ok {
		return &CreateOutboundResult{OutboundID: id, State: OutboundStateCreated}, nil
	}
	id := fmt.Sprintf("OB-%d", len(f.outbounds)+1)
	f.outbounds[input.IdempotencyKey] = id
	return &CreateOutboundResult{OutboundID: id, State: OutboundStateCreated}, nil
}

func (f *fakeNetwork) CancelOutbound(_ context.Context, _ string) error {
	f.cancelCalls++
	return f.cancelErr
}

func (f *fakeNetwork) GetOutboundStatus(_ context.Context, outboundID string) (*OutboundStatus, error) {
	if status, ok := f.statusByID[outboundID]; ok {
		return status, nil
	}
	return nil, ErrOutboundNotFound
}

func setupAdapterTest(t *testing.T) (*Adapter, *fakeNetwork, *repository.GormOrderRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}, &models.ShippingMethod{}, &models.SyncLogEntry{}); err != nil {
		t.Fatalf("migrate failed: %v", err)
	}
	network := newFakeNetwork()
	orderRepo := repository.NewOrderRepository(db)
	adapter := NewAdapter(db, network, orderRepo, repository.NewShippingRepository(db), repository.NewSyncLogRepository(db), nil)
	return adapter, network, orderRepo, db
}

func createSyncableOrder(t *testing.T, repo *repository.GormOrderRepository, db *gorm.DB, externalNo string) *models.Order {
	t.Helper()
	method := &models.ShippingMethod{ExternalID: "adapter-" + externalNo, Name: "Standard", IsActive: true}
	if err := db.Create(method).Error; err != nil {
		t.Fatalf("create method failed: %v", err)
	}
	order := &models.Order{
		ClientID:         1,
		ChannelID:        711,
		ExternalOrderNo:  externalNo,
		Origin:           constants.OriginCommerce,
		Currency:         "EUR",
		TotalAmount:      models.NewMoneyFromDecimal(decimal.NewFromInt(30)),
		PaymentStatus:    constants.PaymentStatusPaid,
		Status:           constants.OrderStatusNew,
		FulfillmentState: constants.FulfillmentStateUnsynced,
		ShippingMethodID: &method.ID,
		IdempotencyKey:   uuid.NewString(),
	}
	if err := repo.Create(order, []models.OrderItem{
		{SKU: "ADP-SKU", Title: "Adapter item", Quantity: 1, UnitAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(30))},
	}); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestSyncOrderCreatesOutbound(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-1")

	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Outcome != ResultSynced || result.OutboundID == "" {
		t.Fatalf("unexpected result: %+v", result)
	}
	if network.createCalls != 1 {
		t.Fatalf("expected one network call, got %d", network.createCalls)
	}

	synced, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if synced.FulfillmentState != constants.FulfillmentStateSynced {
		t.Fatalf("state not advanced: %s", synced.FulfillmentState)
	}
	if synced.Status != constants.OrderStatusProcessing {
		t.Fatalf("status not advanced: %s", synced.Status)
	}
	if synced.SyncedAt == nil {
		t.Fatalf("synced_at not stamped")
	}
}

func TestSyncOrderIdempotentShortCircuit(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-2")

	first, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	second, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("replay failed: %v", err)
	}
	if second.Outcome != ResultAlreadySynced {
		t.Fatalf("replay should short-circuit, got %+v", second)
	}
	if second.OutboundID != first.OutboundID {
		t.Fatalf("replay returned different outbound id: %s vs %s", second.OutboundID, first.OutboundID)
	}
	if network.createCalls != 1 {
		t.Fatalf("replay must not hit the network, calls=%d", network.createCalls)
	}
}

func TestSyncOrderGuards(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)

	cases := []struct {
		name   string
		mutate map[string]interface{}
		reason string
	}{
		{"on_hold", map[string]interface{}{"on_hold": true}, "order on hold"},
		{"terminal", map[string]interface{}{"status": constants.OrderStatusDelivered}, "order in terminal status"},
		{"unpaid", map[string]interface{}{"payment_status": constants.PaymentStatusPending}, "payment not approved"},
		{"no_shipping", map[string]interface{}{"shipping_method_id": nil}, "shipping method unresolved"},
	}
	for i, tc := range cases {
		order := createSyncableOrder(t, repo, db, fmt.Sprintf("ADP-GUARD-%d", i))
		if err := db.Model(&models.Order{}).Where("id = ?", order.ID).Updates(tc.mutate).Error; err != nil {
			t.Fatalf("%s: mutate failed: %v", tc.name, err)
		}
		result, err := adapter.SyncOrder(context.Background(), order.ID)
		if err != nil {
			t.Fatalf("%s: sync failed: %v", tc.name, err)
		}
		if result.Outcome != ResultSkipped || result.Reason != tc.reason {
			t.Fatalf("%s: expected skip %q, got %+v", tc.name, tc.reason, result)
		}
	}
	if network.createCalls != 0 {
		t.Fatalf("guarded orders must not reach the network, calls=%d", network.createCalls)
	}
}

func TestSyncOrderOutboundIDConflict(t *testing.T) {
	adapter, _, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-CONFLICT")

	// 并发重放先占住了另一个出库单号，但状态尚未推进
	if _, err := repo.SetOutboundID(order.ID, "OB-EXISTING"); err != nil {
		t.Fatalf("preset outbound failed: %v", err)
	}

	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if result.Outcome != ResultAlreadySynced {
		t.Fatalf("conflict should resolve as already synced, got %+v", result)
	}
	current, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if current.OutboundID != "OB-EXISTING" {
		t.Fatalf("existing outbound id was overwritten: %s", current.OutboundID)
	}
}

func TestRequestCancelUnsyncedOrder(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-CANCEL-LOCAL")

	if err := adapter.RequestCancel(order.ID); err != nil {
		t.Fatalf("cancel failed: %v", err)
	}
	canceled, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if canceled.FulfillmentState != constants.FulfillmentStateCanceled {
		t.Fatalf("unsynced order should cancel locally, state=%s", canceled.FulfillmentState)
	}
	if canceled.Status != constants.OrderStatusCanceled || canceled.CanceledAt == nil {
		t.Fatalf("cancel bookkeeping missing: %+v", canceled)
	}
	if network.cancelCalls != 0 {
		t.Fatalf("local cancel must not hit the network")
	}
}

func TestRequestCancelSyncedOrder(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-CANCEL-REMOTE")

	if _, err := adapter.SyncOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if err := adapter.RequestCancel(order.ID); err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}
	pending, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if pending.FulfillmentState != constants.FulfillmentStateCancelRequested {
		t.Fatalf("synced order should enter cancel_requested, state=%s", pending.FulfillmentState)
	}

	// 队列任务驱动网络侧取消
	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("cancel drive failed: %v", err)
	}
	if result.Outcome != ResultCanceled {
		t.Fatalf("expected canceled, got %+v", result)
	}
	if network.cancelCalls != 1 {
		t.Fatalf("expected one cancel call, got %d", network.cancelCalls)
	}
	final, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if final.FulfillmentState != constants.FulfillmentStateCanceled || final.Status != constants.OrderStatusCanceled {
		t.Fatalf("cancel not applied: %+v", final)
	}
}

func TestCancelRejectedReturnsToSynced(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-CANCEL-REJECT")

	if _, err := adapter.SyncOrder(context.Background(), order.ID); err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	if err := adapter.RequestCancel(order.ID); err != nil {
		t.Fatalf("cancel request failed: %v", err)
	}

	network.cancelErr = ErrCancelRejected
	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("cancel drive failed: %v", err)
	}
	if result.Outcome != ResultCancelRejected {
		t.Fatalf("expected cancel_rejected, got %+v", result)
	}
	back, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if back.FulfillmentState != constants.FulfillmentStateSynced {
		t.Fatalf("rejected cancel should return to synced, state=%s", back.FulfillmentState)
	}
}

func TestPollOutboundsUpdatesTracking(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-POLL")

	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	network.statusByID[result.OutboundID] = &OutboundStatus{
		OutboundID:     result.OutboundID,
		State:          OutboundStateShipped,
		Carrier:        "DHL",
		TrackingNumber: "JD014600003",
		TrackingURL:    "https://track.example/JD014600003",
	}

	polled, err := adapter.PollOutbounds(context.Background(), 10)
	if err != nil {
		t.Fatalf("poll failed: %v", err)
	}
	if polled < 1 {
		t.Fatalf("expected at least one polled order, got %d", polled)
	}
	shipped, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if shipped.Status != constants.OrderStatusShipped {
		t.Fatalf("status not updated from outbound state: %s", shipped.Status)
	}
	if shipped.Carrier != "DHL" || shipped.TrackingNumber != "JD014600003" {
		t.Fatalf("tracking not applied: %+v", shipped)
	}
}

func TestPollOutboundsWritesAuditLog(t *testing.T) {
	adapter, network, repo, db := setupAdapterTest(t)
	order := createSyncableOrder(t, repo, db, "ADP-POLL-LOG")

	result, err := adapter.SyncOrder(context.Background(), order.ID)
	if err != nil {
		t.Fatalf("sync failed: %v", err)
	}
	network.statusByID[result.OutboundID] = &OutboundStatus{
		OutboundID:     result.OutboundID,
		State:          OutboundStateShipped,
		Carrier:        "DPD",
		TrackingNumber: "DPD0600124",
	}

	if _, err := adapter.PollOutbounds(context.Background(), 10); err != nil {
		t.Fatalf("poll failed: %v", err)
	}

	var entries []models.SyncLogEntry
	if err := db.Where("entity_type = ? AND entity_id = ? AND origin = ?",
		constants.EntityOrder, order.ID, constants.OriginFulfillment).Find(&entries).Error; err != nil {
		t.Fatalf("load sync log failed: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("poll write must append exactly one audit entry, got %d", len(entries))
	}
	entry := entries[0]
	if entry.Action != constants.SyncActionUpdate {
		t.Fatalf("unexpected action: %s", entry.Action)
	}
	if entry.EventID != "outbound:"+result.OutboundID {
		t.Fatalf("audit entry must reference the outbound: %s", entry.EventID)
	}
	changed := map[string]bool{}
	for _, field := range entry.ChangedFields {
		changed[field] = true
	}
	if !changed["carrier"] || !changed["tracking_number"] || !changed["status"] {
		t.Fatalf("changed fields incomplete: %v", entry.ChangedFields)
	}
	if entry.After == nil || entry.After["carrier"] != "DPD" {
		t.Fatalf("after snapshot missing: %+v", entry.After)
	}

	// 重复轮询同一状态不得再写字段或审计
	if _, err := adapter.PollOutbounds(context.Background(), 10); err != nil {
		t.Fatalf("repoll failed: %v", err)
	}
	var count int64
	if err := db.Model(&models.SyncLogEntry{}).Where("entity_id = ? AND origin = ?",
		order.ID, constants.OriginFulfillment).Count(&count).Error; err != nil {
		t.Fatalf("count sync log failed: %v", err)
	}
	if count != 1 {
		t.Fatalf("unchanged repoll must not append audit entries, got %d", count)
	}
}

func TestSyncOrderNotFound(t *testing.T) {
	adapter, _, _, _ := setupAdapterTest(t)
	if _, err := adapter.SyncOrder(context.Background(), 987654); !errors.Is(err, ErrOrderNotFound) {
		t.Fatalf("expected ErrOrderNotFound, got %v", err)
	}
}
