package crypto

import (
	"os"
	"path/filepath"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testPrivateKey {
		t.Fatalf("expected round-trip to recover %s, got %s", testPrivateKey, got)
	}
}

func TestDecryptKeyWrongPassword(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := DecryptKey(blob, "wrong-password"); err == nil {
		t.Fatal("expected decryption to fail with the wrong password")
	}
}

func TestEncryptKeyRejectsEmptyPassword(t *testing.T) {
	if _, err := EncryptKey(testPrivateKey, ""); err == nil {
		t.Fatal("expected error for empty password")
	}
}

func TestEncryptKeyRejectsWrongLength(t *testing.T) {
	if _, err := EncryptKey("abcd", "password"); err == nil {
		t.Fatal("expected error for a key that isn't 32 bytes")
	}
}

func TestEncryptKeyAcceptsHexPrefix(t *testing.T) {
	blob, err := EncryptKey("0x"+testPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	got, err := DecryptKey(blob, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testPrivateKey {
		t.Fatalf("expected %s, got %s", testPrivateKey, got)
	}
}

func TestLoadKeyPrefersRawPrivateKey(t *testing.T) {
	got, err := LoadKey(KeyConfig{RawPrivateKey: "0x" + testPrivateKey})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testPrivateKey {
		t.Fatalf("expected %s, got %s", testPrivateKey, got)
	}
}

func TestLoadKeyRejectsInvalidRawHex(t *testing.T) {
	if _, err := LoadKey(KeyConfig{RawPrivateKey: "not-hex"}); err == nil {
		t.Fatal("expected error for invalid raw hex key")
	}
}

func TestLoadKeyFromEncryptedFile(t *testing.T) {
	blob, err := EncryptKey(testPrivateKey, "hunter2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "key.json")
	if err := os.WriteFile(path, blob, 0o600); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	got, err := LoadKey(KeyConfig{EncryptedKeyPath: path, KeyPassword: "hunter2"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != testPrivateKey {
		t.Fatalf("expected %s, got %s", testPrivateKey, got)
	}
}

func TestLoadKeyRequiresASource(t *testing.T) {
	if _, err := LoadKey(KeyConfig{}); err == nil {
		t.Fatal("expected error when neither RawPrivateKey nor EncryptedKeyPath is set")
	}
}
