package webhook

import (
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/syncbridge/internal/cache"
	"github.com/syncbridge/internal/constants"
	"github.com/syncbridge/internal/events"
	"github.com/syncbridge/internal/logger"
	"github.com/syncbridge/internal/models"
	"github.com/syncbridge/internal/provider"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const maxWebhookBody = 1 << 20 // 1 MiB

// Handler 商城 Webhook 接入处理器
//
// 签名校验在任何业务处理之前进行；校验失败是永久性拒绝，
// 返回 401 且商城不应重试。重复投递经 Redis 重放闸门在
// 入口拦截，闸门不可用时放行，由编排器的回声检测兜底。
type Handler struct {
	*provider.Container
}

// New 创建 Webhook 处理器
func New(c *provider.Container) *Handler {
	return &Handler{Container: c}
}

// IngestOrder 接收订单变更 Webhook
func (h *Handler) IngestOrder(c *gin.Context) {
	h.ingest(c, constants.EntityOrder)
}

// IngestReturn 接收退货变更 Webhook
func (h *Handler) IngestReturn(c *gin.Context) {
	h.ingest(c, constants.EntityReturn)
}

// IngestProduct 接收商品变更 Webhook
func (h *Handler) IngestProduct(c *gin.Context) {
	h.ingest(c, constants.EntityProduct)
}

func (h *Handler) ingest(c *gin.Context, kind string) {
	channelCode := strings.TrimSpace(c.Param("channel"))
	channel, err := h.ChannelRepo.GetByCode(channelCode)
	if err != nil {
		logger.Errorw("webhook_channel_lookup_failed", "channel_code", channelCode, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	if channel == nil || !channel.IsActive {
		c.JSON(http.StatusNotFound, gin.H{"error": "unknown channel"})
		return
	}

	body, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "read body failed"})
		return
	}

	if !h.verifySignature(c, channel, body) {
		logger.Warnw("webhook_signature_rejected",
			"channel_id", channel.ID,
			"channel_type", channel.Type,
			"kind", kind,
			"client_ip", c.ClientIP())
		c.JSON(http.StatusUnauthorized, gin.H{"error": "signature invalid"})
		return
	}

	eventID := extractEventID(c, channel.Type)

	// 重放闸门：同一事件ID只处理一次
	ttl := 10 * time.Minute
	if h.Config != nil && h.Config.Sync.ReplayTTLSeconds > 0 {
		ttl = time.Duration(h.Config.Sync.ReplayTTLSeconds) * time.Second
	}
	firstSeen, err := cache.MarkEventSeen(c.Request.Context(), eventID, ttl)
	if err != nil {
		logger.Warnw("webhook_replay_guard_unavailable", "event_id", eventID, "error", err)
	}
	if !firstSeen {
		logger.Debugw("webhook_replay_dropped",
			"channel_id", channel.ID,
			"event_id", eventID)
		c.JSON(http.StatusOK, gin.H{"status": "duplicate", "event_id": eventID})
		return
	}

	ev, err := normalize(channel, kind, eventID, body)
	if err != nil {
		logger.Warnw("webhook_normalize_failed",
			"channel_id", channel.ID,
			"channel_type", channel.Type,
			"kind", kind,
			"error", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	result, err := h.Orchestrator.SyncEvent(c.Request.Context(), ev)
	if err != nil || result == nil {
		message := "sync failed"
		if result != nil && result.Message != "" {
			message = result.Message
		}
		// 处理失败要释放重放标记，否则商城在 TTL 内的重试会被
		// 当作重复投递直接吞掉
		if unmarkErr := cache.UnmarkEventSeen(c.Request.Context(), eventID); unmarkErr != nil {
			logger.Warnw("webhook_replay_unmark_failed", "event_id", eventID, "error", unmarkErr)
		}
		// 5xx 让商城按自身策略重试
		c.JSON(http.StatusInternalServerError, gin.H{
			"status":   constants.SyncOutcomeFailed,
			"event_id": eventID,
			"error":    message,
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":    result.Outcome,
		"event_id":  eventID,
		"entity_id": result.EntityID,
	})
}

func (h *Handler) verifySignature(c *gin.Context, channel *models.Channel, body []byte) bool {
	if h.Vault == nil || strings.TrimSpace(channel.SecretCiphertext) == "" {
		logger.Warnw("webhook_signature_unverifiable",
			"channel_id", channel.ID,
			"vault_nil", h.Vault == nil)
		return false
	}
	secret, err := h.Vault.Decrypt(channel.SecretCiphertext)
	if err != nil {
		logger.Errorw("webhook_secret_decrypt_failed", "channel_id", channel.ID, "error", err)
		return false
	}
	return events.VerifySignature(channel.Type, secret, body, extractSignature(c, channel.Type))
}

func extractSignature(c *gin.Context, channelType string) string {
	switch channelType {
	case constants.ChannelTypeShopify:
		return c.GetHeader("X-Shopify-Hmac-Sha256")
	case constants.ChannelTypeWooCommerce:
		return c.GetHeader("X-WC-Webhook-Signature")
	}
	return c.GetHeader("X-Signature")
}

func extractEventID(c *gin.Context, channelType string) string {
	var id string
	switch channelType {
	case constants.ChannelTypeShopify:
		id = c.GetHeader("X-Shopify-Webhook-Id")
	case constants.ChannelTypeWooCommerce:
		id = c.GetHeader("X-WC-Webhook-Delivery-ID")
	default:
		id = c.GetHeader("X-Event-ID")
	}
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}
	return id
}
