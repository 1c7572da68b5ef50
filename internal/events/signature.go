package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"strings"

	"github.com/syncbridge/internal/constants"
)

// VerifySignature 用渠道密钥校验原始报文签名
//
// 校验在任何业务处理之前进行，失败属于永久性拒绝，不得重试。
// shopify / woocommerce 使用 base64 编码的 HMAC-SHA256，
// 其余渠道按 hex 编码处理。
func VerifySignature(channelType, secret string, payload []byte, signature string) bool {
	signature = strings.TrimSpace(signature)
	if secret == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	digest := mac.Sum(nil)

	var expected string
	switch channelType {
	case constants.ChannelTypeShopify, constants.ChannelTypeWooCommerce:
		expected = base64.StdEncoding.EncodeToString(digest)
	default:
		expected = hex.EncodeToString(digest)
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}
