package commerce

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/vault"
)

var (
	// ErrPushFailed 回写请求失败
	ErrPushFailed = errors.New("commerce: push failed")
	// ErrPushRejected 商城拒绝回写（非 2xx 响应）
	ErrPushRejected = errors.New("commerce: push rejected")
)

// OrderUpdatePush 回写商城的订单运营变更报文
type OrderUpdatePush struct {
	ExternalOrderNo string                 `json:"external_order_no"`
	Fields          []string               `json:"fields"`
	Values          map[string]interface{} `json:"values"`
	PushedAt        time.Time              `json:"pushed_at"`
}

// Pusher 商城回写接口
type Pusher interface {
	PushOrderUpdate(ctx context.Context, channel *models.Channel, order *models.Order, fields []string) error
}

// HTTPPusher 商城回写 HTTP 实现
//
// 报文用渠道密钥做 HMAC-SHA256 签名（hex），与入站 Webhook
// 校验同一套密钥。未配置回写地址的渠道静默跳过。
type HTTPPusher struct {
	vault      *vault.Vault
	httpClient *http.Client
}

// NewHTTPPusher 创建商城回写客户端
func NewHTTPPusher(v *vault.Vault, timeout time.Duration) *HTTPPusher {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &HTTPPusher{
		vault:      v,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// PushOrderUpdate 回写订单运营字段变更
func (p *HTTPPusher) PushOrderUpdate(ctx context.Context, channel *models.Channel, order *models.Order, fields []string) error {
	callbackURL := strings.TrimSpace(channel.CallbackURL)
	if callbackURL == "" {
		logger.Debugw("commerce_push_skipped_no_callback",
			"channel_id", channel.ID,
			"order_id", order.ID)
		return nil
	}

	push := OrderUpdatePush{
		ExternalOrderNo: order.ExternalOrderNo,
		Fields:          fields,
		Values:          orderFieldValues(order, fields),
		PushedAt:        time.Now().UTC(),
	}
	body, err := json.Marshal(push)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, callbackURL, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if signature, err := p.sign(channel, body); err != nil {
		logger.Warnw("commerce_push_sign_failed",
			"channel_id", channel.ID, "error", err)
	} else if signature != "" {
		req.Header.Set("X-Syncbridge-Signature", signature)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrPushFailed, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<16))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("%w: status %d", ErrPushRejected, resp.StatusCode)
	}
	logger.Infow("commerce_push_succeeded",
		"channel_id", channel.ID,
		"order_id", order.ID,
		"fields", fields)
	return nil
}

func (p *HTTPPusher) sign(channel *models.Channel, body []byte) (string, error) {
	if p.vault == nil || strings.TrimSpace(channel.SecretCiphertext) == "" {
		return "", nil
	}
	secret, err := p.vault.Decrypt(channel.SecretCiphertext)
	if err != nil {
		return "", err
	}
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil)), nil
}

// orderFieldValues 提取回写字段的当前值，只导出运营字段
func orderFieldValues(order *models.Order, fields []string) map[string]interface{} {
	values := make(map[string]interface{}, len(fields))
	for _, field := range fields {
		switch field {
		case "status":
			values[field] = order.Status
		case "carrier":
			values[field] = order.Carrier
		case "tracking_number":
			values[field] = order.TrackingNumber
		case "tracking_url":
			values[field] = order.TrackingURL
		case "corrected_address":
			if order.CorrectedAddress != nil {
				values[field] = *order.CorrectedAddress
			}
		case "on_hold":
			values[field] = order.OnHold
		case "hold_reason":
			values[field] = order.HoldReason
		case "priority":
			values[field] = order.Priority
		}
	}
	return values
}
