package vault

import (
	"crypto/rand"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/chacha20poly1305"
)

var (
	// ErrMasterKeyInvalid 主密钥缺失或长度非法
	ErrMasterKeyInvalid = errors.New("vault: master key must be 32 bytes hex")
	// ErrCiphertextInvalid 密文格式非法或校验失败
	ErrCiphertextInvalid = errors.New("vault: ciphertext invalid")
)

// Vault 渠道密钥保管器
//
// 渠道 Webhook 签名密钥落库前加密，调用时按需解密，
// 明文不在单次调用之外缓存。
type Vault struct {
	key []byte
}

// New 从 hex 编码的 32 字节主密钥创建保管器
func New(masterKeyHex string) (*Vault, error) {
	key, err := hex.DecodeString(strings.TrimSpace(masterKeyHex))
	if err != nil || len(key) != chacha20poly1305.KeySize {
		return nil, ErrMasterKeyInvalid
	}
	return &Vault{key: key}, nil
}

// Encrypt 加密明文密钥，返回 base64(nonce || ciphertext)
func (v *Vault) Encrypt(plaintext string) (string, error) {
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	nonce := make([]byte, aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt 按需解密密文
func (v *Vault) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(ciphertext))
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	aead, err := chacha20poly1305.NewX(v.key)
	if err != nil {
		return "", err
	}
	if len(raw) < aead.NonceSize() {
		return "", ErrCiphertextInvalid
	}
	nonce, sealed := raw[:aead.NonceSize()], raw[aead.NonceSize():]
	plaintext, err := aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrCiphertextInvalid
	}
	return string(plaintext), nil
}
