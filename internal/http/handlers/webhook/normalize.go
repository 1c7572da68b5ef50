package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/models"
)

// ErrPayloadInvalid 报文缺少必要字段或无法解析
var ErrPayloadInvalid = errors.New("webhook: payload invalid")

// normalize 把渠道私有报文归一化为规范事件
//
// 订单报文按渠道类型有专用归一化；退货与商品报文统一使用
// 规范形状（各商城的退货/商品流通常经由中间件转换后投递）。
func normalize(channel *models.Channel, kind, eventID string, body []byte) (*events.Event, error) {
	ev := &events.Event{
		ID:         eventID,
		Kind:       kind,
		Origin:     constants.OriginCommerce,
		ClientID:   channel.ClientID,
		ChannelID:  channel.ID,
		OccurredAt: time.Now().UTC(),
	}

	if kind == constants.EntityOrder {
		switch channel.Type {
		case constants.ChannelTypeShopify:
			return normalizeShopifyOrder(ev, body)
		case constants.ChannelTypeWooCommerce:
			return normalizeWooOrder(ev, body)
		}
	}
	return normalizeGeneric(ev, kind, body)
}

// normalizeGeneric 规范形状：顶层 external_id + 对应实体载荷
func normalizeGeneric(ev *events.Event, kind string, body []byte) (*events.Event, error) {
	var envelope struct {
		ExternalID string               `json:"external_id"`
		Origin     string               `json:"origin"`
		Order      *events.OrderEvent   `json:"order"`
		Return     *events.ReturnEvent  `json:"return"`
		Product    *events.ProductEvent `json:"product"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if strings.TrimSpace(envelope.ExternalID) == "" {
		return nil, fmt.Errorf("%w: external_id missing", ErrPayloadInvalid)
	}
	ev.ExternalID = strings.TrimSpace(envelope.ExternalID)
	// 规范报文可声明来源（如仓配中间件回调），默认商城
	if origin := strings.TrimSpace(envelope.Origin); origin != "" {
		ev.Origin = origin
	}
	switch kind {
	case constants.EntityOrder:
		ev.Order = envelope.Order
	case constants.EntityReturn:
		ev.Return = envelope.Return
	case constants.EntityProduct:
		ev.Product = envelope.Product
	}
	if err := ev.Validate(); err != nil {
		return nil, err
	}
	return ev, nil
}

// shopifyOrder Shopify 订单 Webhook 的报文子集
type shopifyOrder struct {
	Name            string  `json:"name"`             // 人读订单号（#1001）
	ID              int64   `json:"id"`
	Email           string  `json:"email"`
	Currency        string  `json:"currency"`
	SubtotalPrice   string  `json:"subtotal_price"`
	TotalPrice      string  `json:"total_price"`
	FinancialStatus string  `json:"financial_status"`
	CancelledAt     *string `json:"cancelled_at"`
	Customer        struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	} `json:"customer"`
	ShippingLines []struct {
		Code  string `json:"code"`
		Title string `json:"title"`
		Price string `json:"price"`
	} `json:"shipping_lines"`
	ShippingAddress *shopifyAddress `json:"shipping_address"`
	LineItems       []struct {
		ID       int64  `json:"id"`
		SKU      string `json:"sku"`
		Title    string `json:"title"`
		Quantity int    `json:"quantity"`
		Price    string `json:"price"`
	} `json:"line_items"`
}

type shopifyAddress struct {
	Name     string `json:"name"`
	Company  string `json:"company"`
	Address1 string `json:"address1"`
	Address2 string `json:"address2"`
	City     string `json:"city"`
	Province string `json:"province"`
	Zip      string `json:"zip"`
	Country  string `json:"country_code"`
	Phone    string `json:"phone"`
}

func normalizeShopifyOrder(ev *events.Event, body []byte) (*events.Event, error) {
	var raw shopifyOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if raw.ID == 0 {
		return nil, fmt.Errorf("%w: order id missing", ErrPayloadInvalid)
	}
	ev.ExternalID = strconv.FormatInt(raw.ID, 10)

	payload := &events.OrderEvent{}
	if name := strings.TrimSpace(raw.Customer.FirstName + " " + raw.Customer.LastName); name != "" {
		payload.CustomerName = events.String(name)
	}
	if raw.Email != "" {
		payload.CustomerEmail = events.String(raw.Email)
	}
	if raw.Currency != "" {
		payload.Currency = events.String(raw.Currency)
	}
	if money, ok := parseMoney(raw.SubtotalPrice); ok {
		payload.ItemsAmount = events.MoneyPtr(money)
	}
	if money, ok := parseMoney(raw.TotalPrice); ok {
		payload.TotalAmount = events.MoneyPtr(money)
	}
	if status := mapShopifyPayment(raw.FinancialStatus); status != "" {
		payload.PaymentStatus = events.String(status)
	}
	if len(raw.ShippingLines) > 0 {
		line := raw.ShippingLines[0]
		payload.ShippingCode = events.String(line.Code)
		payload.ShippingTitle = events.String(line.Title)
		if money, ok := parseMoney(line.Price); ok {
			payload.ShippingAmount = events.MoneyPtr(money)
		}
	}
	if raw.ShippingAddress != nil {
		payload.ShippingAddress = &models.Address{
			Name:       raw.ShippingAddress.Name,
			Company:    raw.ShippingAddress.Company,
			Line1:      raw.ShippingAddress.Address1,
			Line2:      raw.ShippingAddress.Address2,
			City:       raw.ShippingAddress.City,
			Region:     raw.ShippingAddress.Province,
			PostalCode: raw.ShippingAddress.Zip,
			Country:    raw.ShippingAddress.Country,
			Phone:      raw.ShippingAddress.Phone,
		}
	}
	for _, item := range raw.LineItems {
		unit, _ := parseMoney(item.Price)
		payload.Items = append(payload.Items, events.OrderItemInput{
			SKU:            item.SKU,
			Title:          item.Title,
			Quantity:       item.Quantity,
			UnitAmount:     unit,
			ExternalItemID: strconv.FormatInt(item.ID, 10),
		})
	}
	if raw.CancelledAt != nil && strings.TrimSpace(*raw.CancelledAt) != "" {
		payload.CancelRequested = events.Bool(true)
	}

	ev.Order = payload
	return ev, nil
}

// wooOrder WooCommerce 订单 Webhook 的报文子集
type wooOrder struct {
	ID       int64  `json:"id"`
	Number   string `json:"number"`
	Status   string `json:"status"`
	Currency string `json:"currency"`
	Total    string `json:"total"`
	Billing  struct {
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Email     string `json:"email"`
	} `json:"billing"`
	Shipping      *wooAddress `json:"shipping"`
	ShippingTotal string      `json:"shipping_total"`
	ShippingLines []struct {
		MethodID    string `json:"method_id"`
		MethodTitle string `json:"method_title"`
	} `json:"shipping_lines"`
	LineItems []struct {
		ID       int64       `json:"id"`
		SKU      string      `json:"sku"`
		Name     string      `json:"name"`
		Quantity int         `json:"quantity"`
		Price    json.Number `json:"price"`
		Subtotal string      `json:"subtotal"`
	} `json:"line_items"`
}

type wooAddress struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
	Address1  string `json:"address_1"`
	Address2  string `json:"address_2"`
	City      string `json:"city"`
	State     string `json:"state"`
	Postcode  string `json:"postcode"`
	Country   string `json:"country"`
	Phone     string `json:"phone"`
}

func normalizeWooOrder(ev *events.Event, body []byte) (*events.Event, error) {
	var raw wooOrder
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrPayloadInvalid, err)
	}
	if raw.ID == 0 {
		return nil, fmt.Errorf("%w: order id missing", ErrPayloadInvalid)
	}
	ev.ExternalID = strconv.FormatInt(raw.ID, 10)

	payload := &events.OrderEvent{}
	if name := strings.TrimSpace(raw.Billing.FirstName + " " + raw.Billing.LastName); name != "" {
		payload.CustomerName = events.String(name)
	}
	if raw.Billing.Email != "" {
		payload.CustomerEmail = events.String(raw.Billing.Email)
	}
	if raw.Currency != "" {
		payload.Currency = events.String(raw.Currency)
	}
	if money, ok := parseMoney(raw.Total); ok {
		payload.TotalAmount = events.MoneyPtr(money)
	}
	if money, ok := parseMoney(raw.ShippingTotal); ok {
		payload.ShippingAmount = events.MoneyPtr(money)
	}
	if status := mapWooPayment(raw.Status); status != "" {
		payload.PaymentStatus = events.String(status)
	}
	if raw.Status == "cancelled" {
		payload.CancelRequested = events.Bool(true)
	}
	if len(raw.ShippingLines) > 0 {
		line := raw.ShippingLines[0]
		payload.ShippingCode = events.String(line.MethodID)
		payload.ShippingTitle = events.String(line.MethodTitle)
	}
	if raw.Shipping != nil {
		payload.ShippingAddress = &models.Address{
			Name:       strings.TrimSpace(raw.Shipping.FirstName + " " + raw.Shipping.LastName),
			Company:    raw.Shipping.Company,
			Line1:      raw.Shipping.Address1,
			Line2:      raw.Shipping.Address2,
			City:       raw.Shipping.City,
			Region:     raw.Shipping.State,
			PostalCode: raw.Shipping.Postcode,
			Country:    raw.Shipping.Country,
			Phone:      raw.Shipping.Phone,
		}
	}
	for _, item := range raw.LineItems {
		unit, _ := parseMoney(item.Price.String())
		payload.Items = append(payload.Items, events.OrderItemInput{
			SKU:            item.SKU,
			Title:          item.Name,
			Quantity:       item.Quantity,
			UnitAmount:     unit,
			ExternalItemID: strconv.FormatInt(item.ID, 10),
		})
	}

	ev.Order = payload
	return ev, nil
}

// mapShopifyPayment Shopify financial_status → 平台支付状态
func mapShopifyPayment(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "paid", "partially_paid":
		return constants.PaymentStatusPaid
	case "authorized":
		return constants.PaymentStatusAuthorized
	case "pending":
		return constants.PaymentStatusPending
	case "refunded", "partially_refunded":
		return constants.PaymentStatusRefunded
	case "voided":
		return constants.PaymentStatusFailed
	}
	return ""
}

// mapWooPayment WooCommerce 订单状态 → 平台支付状态
func mapWooPayment(status string) string {
	switch strings.ToLower(strings.TrimSpace(status)) {
	case "processing", "completed":
		return constants.PaymentStatusPaid
	case "pending", "on-hold":
		return constants.PaymentStatusPending
	case "refunded":
		return constants.PaymentStatusRefunded
	case "failed":
		return constants.PaymentStatusFailed
	}
	return ""
}

func parseMoney(value string) (models.Money, bool) {
	value = strings.TrimSpace(value)
	if value == "" {
		return models.Money{}, false
	}
	money, err := models.NewMoneyFromString(value)
	if err != nil {
		return models.Money{}, false
	}
	return money, true
}
