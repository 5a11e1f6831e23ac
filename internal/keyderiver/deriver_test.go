package keyderiver

import (
	"bytes"
	"context"
	"crypto/sha256"
	"testing"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

func testProtocol() wdk.Protocol {
	return wdk.Protocol{SecurityLevel: 1, Name: "test protocol"}
}

func fixedRootKey() []byte {
	key := make([]byte, 32)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func TestDeriver_DerivePublicKey_Deterministic(t *testing.T) {
	d, err := New(fixedRootKey())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}

	ctx := context.Background()
	counterparty := wdk.Counterparty{Kind: wdk.CounterpartyAnyone}

	first, err := d.DerivePublicKey(ctx, testProtocol(), "key-1", counterparty, false)
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	second, err := d.DerivePublicKey(ctx, testProtocol(), "key-1", counterparty, false)
	if err != nil {
		t.Fatalf("derive public key (again): %v", err)
	}
	if !bytes.Equal(first, second) {
		t.Error("expected deterministic derivation for the same protocol/keyID/counterparty")
	}

	other, err := d.DerivePublicKey(ctx, testProtocol(), "key-2", counterparty, false)
	if err != nil {
		t.Fatalf("derive public key for key-2: %v", err)
	}
	if bytes.Equal(first, other) {
		t.Error("expected distinct keys for distinct key IDs")
	}
}

func TestDeriver_SignVerify_RoundTrip(t *testing.T) {
	d, err := New(fixedRootKey())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}

	ctx := context.Background()
	counterparty := wdk.Counterparty{Kind: wdk.CounterpartySelf}
	hash := sha256.Sum256([]byte("spend this output"))

	sig, err := d.Sign(ctx, testProtocol(), "key-1", counterparty, hash[:])
	if err != nil {
		t.Fatalf("sign: %v", err)
	}

	ok, err := d.Verify(ctx, testProtocol(), "key-1", counterparty, hash[:], sig)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if !ok {
		t.Error("expected signature to verify")
	}

	tamperedHash := sha256.Sum256([]byte("spend a different output"))
	ok, err = d.Verify(ctx, testProtocol(), "key-1", counterparty, tamperedHash[:], sig)
	if err != nil {
		t.Fatalf("verify tampered: %v", err)
	}
	if ok {
		t.Error("expected signature over a different hash not to verify")
	}
}

func TestDeriver_HMAC_RoundTrip(t *testing.T) {
	d, err := New(fixedRootKey())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}

	ctx := context.Background()
	counterparty := wdk.Counterparty{Kind: wdk.CounterpartySelf}
	data := []byte("authenticate this payload")

	mac, err := d.HMAC(ctx, testProtocol(), "key-1", counterparty, data)
	if err != nil {
		t.Fatalf("hmac: %v", err)
	}

	ok, err := d.VerifyHMAC(ctx, testProtocol(), "key-1", counterparty, data, mac)
	if err != nil {
		t.Fatalf("verify hmac: %v", err)
	}
	if !ok {
		t.Error("expected hmac to verify")
	}

	ok, err = d.VerifyHMAC(ctx, testProtocol(), "key-1", counterparty, []byte("different payload"), mac)
	if err != nil {
		t.Fatalf("verify hmac (tampered): %v", err)
	}
	if ok {
		t.Error("expected hmac over different data not to verify")
	}
}

func TestDeriver_EncryptDecrypt_RoundTrip(t *testing.T) {
	d, err := New(fixedRootKey())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}
	other, err := New(bytes.Repeat([]byte{0x09}, 32))
	if err != nil {
		t.Fatalf("new deriver (other): %v", err)
	}

	ctx := context.Background()
	otherRoot, err := other.RootPublicKey(ctx)
	if err != nil {
		t.Fatalf("other root public key: %v", err)
	}
	counterparty := wdk.Counterparty{Kind: wdk.CounterpartyOther, PubKey: otherRoot}

	plaintext := []byte("a secret payment memo")
	ciphertext, err := d.Encrypt(ctx, testProtocol(), "key-1", counterparty, plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(ciphertext, plaintext) {
		t.Fatal("ciphertext must not equal plaintext")
	}

	decrypted, err := d.Decrypt(ctx, testProtocol(), "key-1", counterparty, ciphertext)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("expected %q, got %q", plaintext, decrypted)
	}
}

func TestDeriver_EncryptDecrypt_SelfCounterparty(t *testing.T) {
	d, err := New(fixedRootKey())
	if err != nil {
		t.Fatalf("new deriver: %v", err)
	}

	ctx := context.Background()
	counterparty := wdk.Counterparty{Kind: wdk.CounterpartySelf}
	plaintext := []byte("admin metadata")

	ciphertext, err := d.Encrypt(ctx, testProtocol(), "key-1", counterparty, plaintext)
	if err != nil {
		t.Fatalf("encrypt to self: %v", err)
	}
	decrypted, err := d.Decrypt(ctx, testProtocol(), "key-1", counterparty, ciphertext)
	if err != nil {
		t.Fatalf("decrypt from self: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Errorf("expected %q, got %q", plaintext, decrypted)
	}
}
