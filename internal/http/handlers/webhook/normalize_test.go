package webhook

import (
	"errors"
	"testing"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/models"
)

func testChannel(channelType string) *models.Channel {
	return &models.Channel{
		ID:       31,
		ClientID: 21,
		Code:     "test-shop",
		Type:     channelType,
		IsActive: true,
	}
}

func TestNormalizeShopifyOrder(t *testing.T) {
	body := []byte(`{
		"id": 820982911946154508,
		"name": "#1001",
		"email": "jon@example.com",
		"currency": "EUR",
		"subtotal_price": "398.00",
		"total_price": "403.00",
		"financial_status": "paid",
		"customer": {"first_name": "Jon", "last_name": "Snow"},
		"shipping_lines": [{"code": "dhl_standard", "title": "DHL Standard", "price": "5.00"}],
		"shipping_address": {
			"name": "Jon Snow",
			"address1": "Wall Street 1",
			"city": "Winterfell",
			"zip": "00-001",
			"country_code": "PL"
		},
		"line_items": [
			{"id": 866550311766439020, "sku": "SWORD-1", "title": "Longclaw", "quantity": 1, "price": "398.00"}
		]
	}`)

	ev, err := normalize(testChannel(constants.ChannelTypeShopify), constants.EntityOrder, "evt-shopify-1", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.ExternalID != "820982911946154508" {
		t.Fatalf("numeric id not stringified: %s", ev.ExternalID)
	}
	if ev.Origin != constants.OriginCommerce || ev.ClientID != 21 || ev.ChannelID != 31 {
		t.Fatalf("envelope fields wrong: %+v", ev)
	}

	payload := ev.Order
	if payload == nil {
		t.Fatalf("order payload missing")
	}
	if payload.CustomerName == nil || *payload.CustomerName != "Jon Snow" {
		t.Fatalf("customer name wrong: %+v", payload.CustomerName)
	}
	if payload.PaymentStatus == nil || *payload.PaymentStatus != constants.PaymentStatusPaid {
		t.Fatalf("financial_status not mapped: %+v", payload.PaymentStatus)
	}
	if payload.ShippingCode == nil || *payload.ShippingCode != "dhl_standard" {
		t.Fatalf("shipping line not extracted: %+v", payload.ShippingCode)
	}
	if payload.TotalAmount == nil || payload.TotalAmount.String() != "403.00" {
		t.Fatalf("total amount wrong: %+v", payload.TotalAmount)
	}
	if payload.ShippingAddress == nil || payload.ShippingAddress.Country != "PL" {
		t.Fatalf("address not mapped: %+v", payload.ShippingAddress)
	}
	if len(payload.Items) != 1 || payload.Items[0].SKU != "SWORD-1" || payload.Items[0].Quantity != 1 {
		t.Fatalf("line items wrong: %+v", payload.Items)
	}
	if payload.CancelRequested != nil {
		t.Fatalf("cancel must not be requested")
	}
}

func TestNormalizeShopifyCancellation(t *testing.T) {
	body := []byte(`{"id": 42, "financial_status": "refunded", "cancelled_at": "2026-08-30T12:00:00Z"}`)
	ev, err := normalize(testChannel(constants.ChannelTypeShopify), constants.EntityOrder, "evt-shopify-2", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.Order.CancelRequested == nil || !*ev.Order.CancelRequested {
		t.Fatalf("cancelled_at should request cancel")
	}
	if *ev.Order.PaymentStatus != constants.PaymentStatusRefunded {
		t.Fatalf("refunded not mapped: %+v", ev.Order.PaymentStatus)
	}
}

func TestNormalizeWooOrder(t *testing.T) {
	body := []byte(`{
		"id": 727,
		"number": "727",
		"status": "processing",
		"currency": "EUR",
		"total": "59.90",
		"shipping_total": "9.90",
		"billing": {"first_name": "Maja", "last_name": "Lewandowska", "email": "maja@example.com"},
		"shipping": {"first_name": "Maja", "last_name": "Lewandowska", "address_1": "Polna 5", "city": "Warszawa", "postcode": "00-625", "country": "PL"},
		"shipping_lines": [{"method_id": "flat_rate", "method_title": "Flat rate"}],
		"line_items": [
			{"id": 315, "sku": "MUG-1", "name": "Mug", "quantity": 2, "price": 25, "subtotal": "50.00"}
		]
	}`)

	ev, err := normalize(testChannel(constants.ChannelTypeWooCommerce), constants.EntityOrder, "evt-woo-1", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.ExternalID != "727" {
		t.Fatalf("external id wrong: %s", ev.ExternalID)
	}
	payload := ev.Order
	if payload.PaymentStatus == nil || *payload.PaymentStatus != constants.PaymentStatusPaid {
		t.Fatalf("processing should map to paid: %+v", payload.PaymentStatus)
	}
	if payload.ShippingCode == nil || *payload.ShippingCode != "flat_rate" {
		t.Fatalf("shipping method not extracted: %+v", payload.ShippingCode)
	}
	// price 以 json.Number 形式出现也要能解析
	if len(payload.Items) != 1 || payload.Items[0].UnitAmount.String() != "25.00" {
		t.Fatalf("numeric price not parsed: %+v", payload.Items)
	}
	if payload.CancelRequested != nil {
		t.Fatalf("cancel must not be requested")
	}
}

func TestNormalizeWooCancelledOrder(t *testing.T) {
	body := []byte(`{"id": 728, "status": "cancelled"}`)
	ev, err := normalize(testChannel(constants.ChannelTypeWooCommerce), constants.EntityOrder, "evt-woo-2", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.Order.CancelRequested == nil || !*ev.Order.CancelRequested {
		t.Fatalf("cancelled status should request cancel")
	}
}

func TestNormalizeGenericEnvelope(t *testing.T) {
	body := []byte(`{
		"external_id": "RET-100",
		"origin": "warehouse",
		"return": {"order_external_no": "727", "status": "received"}
	}`)
	ev, err := normalize(testChannel(constants.ChannelTypeMagento), constants.EntityReturn, "evt-gen-1", body)
	if err != nil {
		t.Fatalf("normalize failed: %v", err)
	}
	if ev.ExternalID != "RET-100" || ev.Origin != constants.OriginWarehouse {
		t.Fatalf("envelope not applied: %+v", ev)
	}
	if ev.Return == nil || *ev.Return.Status != constants.ReturnStatusReceived {
		t.Fatalf("return payload missing: %+v", ev.Return)
	}
}

func TestNormalizeRejectsInvalidPayloads(t *testing.T) {
	channel := testChannel(constants.ChannelTypeShopify)

	if _, err := normalize(channel, constants.EntityOrder, "evt-bad-1", []byte(`not json`)); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid for malformed json, got %v", err)
	}
	if _, err := normalize(channel, constants.EntityOrder, "evt-bad-2", []byte(`{"name": "#1001"}`)); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid for missing id, got %v", err)
	}

	generic := testChannel(constants.ChannelTypeMagento)
	if _, err := normalize(generic, constants.EntityReturn, "evt-bad-3", []byte(`{"return": {}}`)); !errors.Is(err, ErrPayloadInvalid) {
		t.Fatalf("expected ErrPayloadInvalid for missing external_id, got %v", err)
	}
	if _, err := normalize(generic, constants.EntityReturn, "evt-bad-4", []byte(`{"external_id": "X"}`)); err == nil {
		t.Fatalf("missing payload must fail validation")
	}
}
