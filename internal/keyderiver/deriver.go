// Package keyderiver is the concrete stand-in for the external Key Deriver
// collaborator (spec.md §2's Key Deriver row): BRC-42/43-style
// protocol/key-ID/counterparty key derivation on secp256k1, ECDH shared
// secrets, AES-GCM symmetric encrypt/decrypt, and HMAC-SHA256 tagging.
package keyderiver

import (
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
	"golang.org/x/crypto/hkdf"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Deriver implements wdk.KeyDeriver over a single root private key, the way
// a CWI-style wallet holds one identity key and derives everything else
// from it per BRC-42 (protocol/key-ID/counterparty invoice numbers).
type Deriver struct {
	rootPriv *btcec.PrivateKey
}

// New constructs a Deriver from a 32-byte root private key.
func New(rootPrivateKey []byte) (*Deriver, error) {
	if len(rootPrivateKey) != 32 {
		return nil, fmt.Errorf("root private key must be 32 bytes, got %d", len(rootPrivateKey))
	}
	priv, _ := btcec.PrivKeyFromBytes(rootPrivateKey)
	return &Deriver{rootPriv: priv}, nil
}

// invoiceNumber builds the BRC-42 "invoice number" string an offset is
// derived from: securityLevel-protocolName-keyID. The counterparty is mixed
// into the HMAC message alongside it (see childOffset).
func invoiceNumber(protocol wdk.Protocol, keyID string) string {
	return fmt.Sprintf("%d-%s-%s", protocol.SecurityLevel, protocol.Name, keyID)
}

// childOffset derives the scalar offset for a given protocol/keyID/
// counterparty triple via HMAC-SHA256 keyed by the root private key over
// the counterparty kind, the counterparty public key and the invoice
// number, reduced modulo the curve order.
func (d *Deriver) childOffset(counterparty wdk.Counterparty, protocol wdk.Protocol, keyID string) *secp256k1.ModNScalar {
	mac := hmac.New(sha256.New, d.rootPriv.Serialize())
	mac.Write([]byte(counterparty.Kind))
	mac.Write(counterparty.PubKey)
	mac.Write([]byte(invoiceNumber(protocol, keyID)))
	sum := mac.Sum(nil)

	var scalar secp256k1.ModNScalar
	scalar.SetByteSlice(sum)
	return &scalar
}

// childPrivateKey computes root + offset (mod N), the BRC-42 child key.
func (d *Deriver) childPrivateKey(counterparty wdk.Counterparty, protocol wdk.Protocol, keyID string) *btcec.PrivateKey {
	offset := d.childOffset(counterparty, protocol, keyID)

	var rootScalar secp256k1.ModNScalar
	rootScalar.SetByteSlice(d.rootPriv.Serialize())

	childScalar := new(secp256k1.ModNScalar).Add2(&rootScalar, offset)
	childBytes := childScalar.Bytes()
	priv, _ := btcec.PrivKeyFromBytes(childBytes[:])
	return priv
}

// DerivePublicKey returns the derived public key for a protocol/keyID/
// counterparty triple (spec.md §6.1 get_public_key), compressed form.
func (d *Deriver) DerivePublicKey(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, forSelf bool) ([]byte, error) {
	if forSelf {
		return d.rootPriv.PubKey().SerializeCompressed(), nil
	}
	child := d.childPrivateKey(counterparty, protocol, keyID)
	return child.PubKey().SerializeCompressed(), nil
}

// Sign produces an ECDSA signature over a 32-byte hash with the derived
// child key (spec.md §6.1 create_signature).
func (d *Deriver) Sign(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, hash []byte) ([]byte, error) {
	if len(hash) != 32 {
		return nil, fmt.Errorf("sign: hash must be 32 bytes, got %d", len(hash))
	}
	child := d.childPrivateKey(counterparty, protocol, keyID)
	sig := ecdsa.Sign(child, hash)
	return sig.Serialize(), nil
}

// Verify checks an ECDSA signature against the derived child public key
// (spec.md §6.1 verify_signature).
func (d *Deriver) Verify(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, hash, sig []byte) (bool, error) {
	parsed, err := ecdsa.ParseDERSignature(sig)
	if err != nil {
		return false, fmt.Errorf("verify: parse signature: %w", err)
	}
	child := d.childPrivateKey(counterparty, protocol, keyID)
	return parsed.Verify(hash, child.PubKey()), nil
}

// sharedSecretKey derives a 32-byte AES key via ECDH between the child
// private key and the counterparty's public key, then HKDF-expands it.
func (d *Deriver) sharedSecretKey(protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty) ([]byte, error) {
	counterpartyPubBytes := counterparty.PubKey
	if counterparty.Kind == wdk.CounterpartySelf {
		counterpartyPubBytes = d.rootPriv.PubKey().SerializeCompressed()
	}
	if len(counterpartyPubBytes) == 0 {
		return nil, fmt.Errorf("shared secret: counterparty public key required")
	}
	counterpartyPub, err := btcec.ParsePubKey(counterpartyPubBytes)
	if err != nil {
		return nil, fmt.Errorf("shared secret: parse counterparty key: %w", err)
	}

	child := d.childPrivateKey(counterparty, protocol, keyID)
	var sharedX btcec.JacobianPoint
	pubJacobian := &btcec.JacobianPoint{}
	counterpartyPub.AsJacobian(pubJacobian)
	btcec.ScalarMultNonConst(&child.Key, pubJacobian, &sharedX)
	sharedX.ToAffine()

	ikm := sharedX.X.Bytes()

	kdf := hkdf.New(sha256.New, ikm[:], nil, []byte(invoiceNumber(protocol, keyID)))
	key := make([]byte, 32)
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("shared secret: hkdf expand: %w", err)
	}
	return key, nil
}

// Encrypt AES-GCM encrypts plaintext under an ECDH shared secret with the
// counterparty (spec.md §6.1 encrypt).
func (d *Deriver) Encrypt(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, plaintext []byte) ([]byte, error) {
	key, err := d.sharedSecretKey(protocol, keyID, counterparty)
	if err != nil {
		return nil, err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("encrypt: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("encrypt: new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("encrypt: read nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt reverses Encrypt. Returns a wdk decryption-kind error on any
// failure so the façade can classify it per spec.md §7.
func (d *Deriver) Decrypt(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, ciphertext []byte) ([]byte, error) {
	key, err := d.sharedSecretKey(protocol, keyID, counterparty)
	if err != nil {
		return nil, wdk.Decryption(err.Error())
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, wdk.Decryption("cipher initialization failed")
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, wdk.Decryption("gcm initialization failed")
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, wdk.Decryption("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, wdk.Decryption("authentication failed")
	}
	return plaintext, nil
}

// HMAC computes an HMAC-SHA256 tag over data keyed by the derived child
// private key (spec.md §6.1 create_hmac).
func (d *Deriver) HMAC(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, data []byte) ([]byte, error) {
	child := d.childPrivateKey(counterparty, protocol, keyID)
	mac := hmac.New(sha256.New, child.Serialize())
	mac.Write(data)
	return mac.Sum(nil), nil
}

// VerifyHMAC recomputes and compares in constant time (spec.md §6.1
// verify_hmac).
func (d *Deriver) VerifyHMAC(ctx context.Context, protocol wdk.Protocol, keyID string, counterparty wdk.Counterparty, data, mac []byte) (bool, error) {
	expected, err := d.HMAC(ctx, protocol, keyID, counterparty, data)
	if err != nil {
		return false, err
	}
	return hmac.Equal(expected, mac), nil
}

// RootPublicKey returns the wallet's top-level identity public key (spec.md
// §6.1 get_public_key with identityKey=true).
func (d *Deriver) RootPublicKey(ctx context.Context) ([]byte, error) {
	return d.rootPriv.PubKey().SerializeCompressed(), nil
}

var _ wdk.KeyDeriver = (*Deriver)(nil)
