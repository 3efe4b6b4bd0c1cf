package crypto

import (
	"bytes"
	"errors"
	"path/filepath"
	"testing"
)

func TestAddressRoundTrip(t *testing.T) {
	raw := bytes.Repeat([]byte{0x42}, AddressLength)
	addr := NewAddress(StakePrefix, raw)

	decoded, err := DecodeAddress(addr.String())
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !decoded.Equal(addr) {
		t.Fatalf("expected %s, got %s", addr, decoded)
	}
	if decoded.Prefix() != StakePrefix {
		t.Fatalf("unexpected prefix %q", decoded.Prefix())
	}
}

func TestDecodeAddressRejectsGarbage(t *testing.T) {
	for _, input := range []string{"", "   ", "stk1notbech32", "hello"} {
		if _, err := DecodeAddress(input); !errors.Is(err, ErrInvalidAddress) {
			t.Fatalf("%q: expected ErrInvalidAddress, got %v", input, err)
		}
	}
}

func TestAddressTextMarshalling(t *testing.T) {
	addr := NewAddress(StakePrefix, bytes.Repeat([]byte{0x07}, AddressLength))
	text, err := addr.MarshalText()
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var out Address
	if err := out.UnmarshalText(text); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if out.Array() != addr.Array() {
		t.Fatalf("array mismatch")
	}
}

func TestKeystoreRoundTrip(t *testing.T) {
	key, err := GeneratePrivateKey()
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	path := filepath.Join(t.TempDir(), "admin.json")
	if err := SaveToKeystore(path, key, "secret", false); err != nil {
		t.Fatalf("save: %v", err)
	}
	if err := SaveToKeystore(path, key, "secret", false); !errors.Is(err, ErrKeystoreExists) {
		t.Fatalf("expected ErrKeystoreExists, got %v", err)
	}

	addr, err := KeystoreAddress(path)
	if err != nil {
		t.Fatalf("keystore address: %v", err)
	}
	if !addr.Equal(key.PubKey().Address()) {
		t.Fatalf("address mismatch: %s vs %s", addr, key.PubKey().Address())
	}

	loaded, err := LoadFromKeystore(path, "secret")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !bytes.Equal(loaded.Bytes(), key.Bytes()) {
		t.Fatalf("loaded key differs")
	}
	if _, err := LoadFromKeystore(path, "wrong"); err == nil {
		t.Fatalf("expected wrong passphrase to fail")
	}
}
