package fulfillment

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/syncbridge/internal/models"
)

var (
	// ErrConfigInvalid 履约网络配置缺失
	ErrConfigInvalid = errors.New("fulfillment config invalid")
	// ErrRequestFailed 履约网络请求失败
	ErrRequestFailed = errors.New("fulfillment request failed")
	// ErrResponseInvalid 履约网络响应非法
	ErrResponseInvalid = errors.New("fulfillment response invalid")
	// ErrOutboundNotFound 出库单不存在
	ErrOutboundNotFound = errors.New("fulfillment outbound not found")
	// ErrCancelRejected 取消被拒绝（出库单已发货）
	ErrCancelRejected = errors.New("fulfillment cancel rejected")
)

// 履约网络出库单状态常量
const (
	OutboundStateCreated   = "created"
	OutboundStatePicking   = "picking"
	OutboundStateShipped   = "shipped"
	OutboundStateDelivered = "delivered"
	OutboundStateCanceled  = "canceled"
	OutboundStateReturned  = "returned"
)

// OutboundLine 出库单行项目
type OutboundLine struct {
	SKU      string `json:"sku"`
	Title    string `json:"title,omitempty"`
	Quantity int    `json:"quantity"`
}

// CreateOutboundInput 创建出库单输入
type CreateOutboundInput struct {
	IdempotencyKey   string         `json:"-"`                  // 通过请求头传递
	Reference        string         `json:"reference"`          // 渠道订单号
	ShippingMethodID string         `json:"shipping_method"`    // 履约网络运输方式ID
	Priority         int            `json:"priority,omitempty"`
	Address          models.Address `json:"address"`
	Lines            []OutboundLine `json:"lines"`
}

// CreateOutboundResult 创建出库单结果
type CreateOutboundResult struct {
	OutboundID string `json:"outbound_id"`
	State      string `json:"state"`
}

// OutboundStatus 出库单状态查询结果
type OutboundStatus struct {
	OutboundID     string `json:"outbound_id"`
	State          string `json:"state"`
	Carrier        string `json:"carrier,omitempty"`
	TrackingNumber string `json:"tracking_number,omitempty"`
	TrackingURL    string `json:"tracking_url,omitempty"`
}

// Network 履约网络接口
//
// 实现必须保证 CreateOutbound 对同一幂等键可安全重放：
// 网络侧按幂等键去重，重放返回首次创建的出库单。
type Network interface {
	CreateOutbound(ctx context.Context, input CreateOutboundInput) (*CreateOutboundResult, error)
	CancelOutbound(ctx context.Context, outboundID string) error
	GetOutboundStatus(ctx context.Context, outboundID string) (*OutboundStatus, error)
}

// HTTPNetwork 履约网络 HTTP 客户端
type HTTPNetwork struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewHTTPNetwork 创建履约网络客户端
func NewHTTPNetwork(baseURL, apiKey string, timeout time.Duration) (*HTTPNetwork, error) {
	baseURL = strings.TrimRight(strings.TrimSpace(baseURL), "/")
	apiKey = strings.TrimSpace(apiKey)
	if baseURL == "" || apiKey == "" {
		return nil, ErrConfigInvalid
	}
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPNetwork{
		baseURL:    baseURL,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
	}, nil
}

// CreateOutbound 创建出库单，幂等键通过 Idempotency-Key 请求头传递
func (n *HTTPNetwork) CreateOutbound(ctx context.Context, input CreateOutboundInput) (*CreateOutboundResult, error) {
	if strings.TrimSpace(input.IdempotencyKey) == "" || strings.TrimSpace(input.Reference) == "" {
		return nil, fmt.Errorf("%w: idempotency key and reference are required", ErrRequestFailed)
	}
	headers := map[string]string{"Idempotency-Key": input.IdempotencyKey}
	respBytes, status, err := n.do(ctx, http.MethodPost, "/api/v1/outbounds", input, headers)
	if err != nil {
		return nil, err
	}
	if status != http.StatusOK && status != http.StatusCreated {
		return nil, fmt.Errorf("%w: unexpected status %d", ErrResponseInvalid, status)
	}
	var result CreateOutboundResult
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	if strings.TrimSpace(result.OutboundID) == "" {
		return nil, fmt.Errorf("%w: empty outbound id", ErrResponseInvalid)
	}
	return &result, nil
}

// CancelOutbound 取消出库单；已发货的出库单返回 ErrCancelRejected
func (n *HTTPNetwork) CancelOutbound(ctx context.Context, outboundID string) error {
	outboundID = strings.TrimSpace(outboundID)
	if outboundID == "" {
		return fmt.Errorf("%w: outbound id is required", ErrRequestFailed)
	}
	path := fmt.Sprintf("/api/v1/outbounds/%s/cancel", outboundID)
	_, status, err := n.do(ctx, http.MethodPost, path, nil, nil)
	if err != nil {
		return err
	}
	switch status {
	case http.StatusOK, http.StatusNoContent:
		return nil
	case http.StatusNotFound:
		return ErrOutboundNotFound
	case http.StatusConflict:
		return ErrCancelRejected
	}
	return fmt.Errorf("%w: unexpected status %d", ErrResponseInvalid, status)
}

// GetOutboundStatus 查询出库单状态
func (n *HTTPNetwork) GetOutboundStatus(ctx context.Context, outboundID string) (*OutboundStatus, error) {
	outboundID = strings.TrimSpace(outboundID)
	if outboundID == "" {
		return nil, fmt.Errorf("%w: outbound id is required", ErrRequestFailed)
	}
	path := fmt.Sprintf("/api/v1/outbounds/%s", outboundID)
	respBytes, status, err := n.do(ctx, http.MethodGet, path, nil, nil)
	if err != nil {
		return nil, err
	}
	switch status {
	case http.StatusOK:
	case http.StatusNotFound:
		return nil, ErrOutboundNotFound
	default:
		return nil, fmt.Errorf("%w: unexpected status %d", ErrResponseInvalid, status)
	}
	var result OutboundStatus
	if err := json.Unmarshal(respBytes, &result); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrResponseInvalid, err)
	}
	return &result, nil
}

func (n *HTTPNetwork) do(ctx context.Context, method, path string, body interface{}, headers map[string]string) ([]byte, int, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
		}
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, n.baseURL+path, reader)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+n.apiKey)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	resp, err := n.httpClient.Do(req)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	defer resp.Body.Close()

	respBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRequestFailed, err)
	}
	return respBytes, resp.StatusCode, nil
}
