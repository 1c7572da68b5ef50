package repository

import (
	"fmt"
	"testing"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/models"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

func setupOrderRepoTest(t *testing.T) (*GormOrderRepository, *gorm.DB) {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		t.Fatalf("open sqlite failed: %v", err)
	}
	if err := db.AutoMigrate(&models.Order{}, &models.OrderItem{}); err != nil {
		t.Fatalf("migrate orders failed: %v", err)
	}
	return NewOrderRepository(db), db
}

func createTestOrder(t *testing.T, repo *GormOrderRepository, channelID uint, externalNo string) *models.Order {
	t.Helper()
	order := &models.Order{
		ClientID:         1,
		ChannelID:        channelID,
		ExternalOrderNo:  externalNo,
		Origin:           constants.OriginCommerce,
		Currency:         "EUR",
		TotalAmount:      models.NewMoneyFromDecimal(decimal.NewFromInt(50)),
		PaymentStatus:    constants.PaymentStatusPaid,
		Status:           constants.OrderStatusNew,
		FulfillmentState: constants.FulfillmentStateUnsynced,
		IdempotencyKey:   uuid.NewString(),
	}
	if err := repo.Create(order, []models.OrderItem{
		{SKU: "REPO-SKU", Title: "Repo item", Quantity: 2, UnitAmount: models.NewMoneyFromDecimal(decimal.NewFromInt(25))},
	}); err != nil {
		t.Fatalf("create order failed: %v", err)
	}
	return order
}

func TestOrderRepositoryNaturalKeyLookup(t *testing.T) {
	repo, _ := setupOrderRepoTest(t)
	created := createTestOrder(t, repo, 601, "ORD-NK-1")

	found, err := repo.GetByChannelAndExternalNo(601, "ORD-NK-1")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if found == nil || found.ID != created.ID {
		t.Fatalf("natural key lookup returned wrong order: %+v", found)
	}
	if len(found.Items) != 1 || found.Items[0].SKU != "REPO-SKU" {
		t.Fatalf("items not preloaded: %+v", found.Items)
	}

	missing, err := repo.GetByChannelAndExternalNo(601, "ORD-MISSING")
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if missing != nil {
		t.Fatalf("missing order should be nil, got %+v", missing)
	}
}

func TestOrderRepositoryGetByIDNotFound(t *testing.T) {
	repo, _ := setupOrderRepoTest(t)
	order, err := repo.GetByID(999999)
	if err != nil {
		t.Fatalf("lookup failed: %v", err)
	}
	if order != nil {
		t.Fatalf("missing order should be nil, got %+v", order)
	}
}

func TestOrderRepositorySetOutboundIDSetOnce(t *testing.T) {
	repo, _ := setupOrderRepoTest(t)
	order := createTestOrder(t, repo, 602, "ORD-OB-1")

	ok, err := repo.SetOutboundID(order.ID, "WMS-100")
	if err != nil {
		t.Fatalf("set outbound failed: %v", err)
	}
	if !ok {
		t.Fatalf("first set should succeed")
	}

	// 同值重复设置视为幂等成功
	ok, err = repo.SetOutboundID(order.ID, "WMS-100")
	if err != nil {
		t.Fatalf("set outbound failed: %v", err)
	}
	if !ok {
		t.Fatalf("same value should be idempotent success")
	}

	// 不同值被拒绝且不覆盖
	ok, err = repo.SetOutboundID(order.ID, "WMS-200")
	if err != nil {
		t.Fatalf("set outbound failed: %v", err)
	}
	if ok {
		t.Fatalf("conflicting outbound id must not be accepted")
	}
	current, err := repo.GetByID(order.ID)
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if current.OutboundID != "WMS-100" {
		t.Fatalf("outbound id was overwritten: %q", current.OutboundID)
	}
}

func TestOrderRepositoryListAdminFilters(t *testing.T) {
	repo, db := setupOrderRepoTest(t)
	for i := 0; i < 3; i++ {
		createTestOrder(t, repo, 603, fmt.Sprintf("ORD-LIST-%d", i))
	}
	held := createTestOrder(t, repo, 603, "ORD-LIST-HELD")
	if err := db.Model(&models.Order{}).Where("id = ?", held.ID).
		Updates(map[string]interface{}{"on_hold": true, "hold_reason": "shipping method unresolved"}).Error; err != nil {
		t.Fatalf("hold order failed: %v", err)
	}

	onHold := true
	orders, total, err := repo.ListAdmin(OrderListFilter{ChannelID: 603, OnHold: &onHold})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 1 || len(orders) != 1 || orders[0].ID != held.ID {
		t.Fatalf("on_hold filter broken: total=%d orders=%+v", total, orders)
	}

	orders, total, err = repo.ListAdmin(OrderListFilter{ChannelID: 603, Page: 1, PageSize: 2})
	if err != nil {
		t.Fatalf("list failed: %v", err)
	}
	if total != 4 || len(orders) != 2 {
		t.Fatalf("pagination broken: total=%d page_len=%d", total, len(orders))
	}
}
