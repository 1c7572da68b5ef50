package vault

import (
	"encoding/base64"
	"strings"
	"testing"
)

const testMasterKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func TestVaultRoundtrip(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatalf("new vault failed: %v", err)
	}
	ciphertext, err := v.Encrypt("whsec_channel_secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if ciphertext == "whsec_channel_secret" {
		t.Fatalf("ciphertext equals plaintext")
	}
	plaintext, err := v.Decrypt(ciphertext)
	if err != nil {
		t.Fatalf("decrypt failed: %v", err)
	}
	if plaintext != "whsec_channel_secret" {
		t.Fatalf("roundtrip mismatch: %q", plaintext)
	}
}

func TestVaultEncryptUsesFreshNonce(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatalf("new vault failed: %v", err)
	}
	first, err := v.Encrypt("same")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	second, err := v.Encrypt("same")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if first == second {
		t.Fatalf("two encryptions of the same plaintext must differ")
	}
}

func TestVaultDecryptWrongKey(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatalf("new vault failed: %v", err)
	}
	other, err := New(strings.Repeat("ff", 32))
	if err != nil {
		t.Fatalf("new vault failed: %v", err)
	}
	ciphertext, err := v.Encrypt("secret")
	if err != nil {
		t.Fatalf("encrypt failed: %v", err)
	}
	if _, err := other.Decrypt(ciphertext); err != ErrCiphertextInvalid {
		t.Fatalf("expected ErrCiphertextInvalid, got %v", err)
	}
}

func TestVaultDecryptInvalidInput(t *testing.T) {
	v, err := New(testMasterKey)
	if err != nil {
		t.Fatalf("new vault failed: %v", err)
	}
	if _, err := v.Decrypt("not base64 !!!"); err != ErrCiphertextInvalid {
		t.Fatalf("expected ErrCiphertextInvalid for bad base64, got %v", err)
	}
	short := base64.StdEncoding.EncodeToString([]byte("short"))
	if _, err := v.Decrypt(short); err != ErrCiphertextInvalid {
		t.Fatalf("expected ErrCiphertextInvalid for short input, got %v", err)
	}
}

func TestVaultMasterKeyValidation(t *testing.T) {
	if _, err := New(""); err != ErrMasterKeyInvalid {
		t.Fatalf("empty key should be invalid, got %v", err)
	}
	if _, err := New("abcd"); err != ErrMasterKeyInvalid {
		t.Fatalf("short key should be invalid, got %v", err)
	}
	if _, err := New(strings.Repeat("zz", 32)); err != ErrMasterKeyInvalid {
		t.Fatalf("non-hex key should be invalid, got %v", err)
	}
}
