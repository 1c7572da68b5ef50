package events

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"testing"

	"github.com/syncbridge/internal/constants"
)

func signBase64(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

func signHex(secret string, payload []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(payload)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignatureShopifyBase64(t *testing.T) {
	payload := []byte(`{"id":123}`)
	secret := "shpss_secret"
	if !VerifySignature(constants.ChannelTypeShopify, secret, payload, signBase64(secret, payload)) {
		t.Fatalf("valid shopify signature rejected")
	}
	if VerifySignature(constants.ChannelTypeShopify, secret, payload, signHex(secret, payload)) {
		t.Fatalf("hex signature must not pass for shopify")
	}
}

func TestVerifySignatureGenericHex(t *testing.T) {
	payload := []byte(`{"external_id":"R-1"}`)
	secret := "generic_secret"
	if !VerifySignature(constants.ChannelTypeMagento, secret, payload, signHex(secret, payload)) {
		t.Fatalf("valid hex signature rejected")
	}
}

func TestVerifySignatureRejections(t *testing.T) {
	payload := []byte(`{}`)
	if VerifySignature(constants.ChannelTypeShopify, "", payload, signBase64("", payload)) {
		t.Fatalf("empty secret must reject")
	}
	if VerifySignature(constants.ChannelTypeShopify, "secret", payload, "") {
		t.Fatalf("empty signature must reject")
	}
	if VerifySignature(constants.ChannelTypeShopify, "secret", payload, signBase64("other", payload)) {
		t.Fatalf("signature from wrong secret must reject")
	}
	tampered := append([]byte{}, payload...)
	tampered = append(tampered, ' ')
	if VerifySignature(constants.ChannelTypeShopify, "secret", tampered, signBase64("secret", payload)) {
		t.Fatalf("tampered payload must reject")
	}
}

func TestEventValidate(t *testing.T) {
	valid := &Event{
		Kind:       constants.EntityOrder,
		Origin:     constants.OriginCommerce,
		ExternalID: "1001",
		Order:      &OrderEvent{},
	}
	if err := valid.Validate(); err != nil {
		t.Fatalf("valid event rejected: %v", err)
	}

	missingPayload := &Event{Kind: constants.EntityReturn, Origin: constants.OriginCommerce, ExternalID: "R-1"}
	if err := missingPayload.Validate(); err == nil {
		t.Fatalf("return event without payload must be invalid")
	}

	missingExternal := &Event{Kind: constants.EntityOrder, Origin: constants.OriginCommerce, Order: &OrderEvent{}}
	if err := missingExternal.Validate(); err == nil {
		t.Fatalf("event without external id must be invalid")
	}

	unknownKind := &Event{Kind: "invoice", Origin: constants.OriginCommerce, ExternalID: "X"}
	if err := unknownKind.Validate(); err != ErrEventKindUnknown {
		t.Fatalf("expected ErrEventKindUnknown, got %v", err)
	}
}
