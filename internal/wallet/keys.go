package wallet

import (
	"context"
	"crypto/sha256"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// signingHash resolves the hash a signature operation actually covers:
// hashToDirectlySign/hashToDirectlyVerify when the caller supplies one
// directly, otherwise SHA-256 of data (spec.md §6.1's get_public_key /
// create_signature / verify_signature argument shapes).
func signingHash(data, direct wdk.ByteSlice) ([]byte, error) {
	if len(direct) > 0 {
		return direct, nil
	}
	if len(data) == 0 {
		return nil, wdk.InvalidParameter("data", "must supply data or an explicit hash")
	}
	sum := sha256.Sum256(data)
	return sum[:], nil
}

// GetPublicKey returns either the wallet's root identity key or a
// protocol/key-id/counterparty-derived key (spec.md §6.1).
func (w *Wallet) GetPublicKey(ctx context.Context, userID int64, originator string, args wdk.GetPublicKeyArgs) (wdk.ByteSlice, error) {
	if err := validateOriginator(originator); err != nil {
		return nil, err
	}
	if args.IdentityKey {
		key, err := w.keys.RootPublicKey(ctx)
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "get identity key: %v", err)
		}
		return wdk.ByteSlice(key), nil
	}
	if args.KeyID == "" {
		return nil, wdk.InvalidParameter("keyID", "must be non-empty when identityKey is false")
	}
	key, err := w.keys.DerivePublicKey(ctx, args.ProtocolID, args.KeyID, args.Counterparty, args.ForSelf)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "derive public key: %v", err)
	}
	return wdk.ByteSlice(key), nil
}

// CreateSignature signs a hash under a derived key (spec.md §6.1).
func (w *Wallet) CreateSignature(ctx context.Context, userID int64, originator string, args wdk.CreateSignatureArgs) (wdk.ByteSlice, error) {
	if err := validateOriginator(originator); err != nil {
		return nil, err
	}
	hash, err := signingHash(args.Data, args.HashToDirectlySign)
	if err != nil {
		return nil, err
	}
	sig, err := w.keys.Sign(ctx, args.ProtocolID, args.KeyID, args.Counterparty, hash)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "create signature: %v", err)
	}
	return wdk.ByteSlice(sig), nil
}

// VerifySignature verifies a signature under a derived key (spec.md §6.1).
func (w *Wallet) VerifySignature(ctx context.Context, userID int64, originator string, args wdk.VerifySignatureArgs) (bool, error) {
	if err := validateOriginator(originator); err != nil {
		return false, err
	}
	hash, err := signingHash(args.Data, args.HashToDirectlyVerify)
	if err != nil {
		return false, err
	}
	ok, err := w.keys.Verify(ctx, args.ProtocolID, args.KeyID, args.Counterparty, hash, args.Signature)
	if err != nil {
		return false, wdk.NewError(wdk.KindRuntime, "verify signature: %v", err)
	}
	return ok, nil
}

// Encrypt encrypts plaintext under a derived shared key (spec.md §6.1).
func (w *Wallet) Encrypt(ctx context.Context, userID int64, originator string, args wdk.EncryptArgs) (wdk.ByteSlice, error) {
	if err := validateOriginator(originator); err != nil {
		return nil, err
	}
	ct, err := w.keys.Encrypt(ctx, args.ProtocolID, args.KeyID, args.Counterparty, args.Plaintext)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "encrypt: %v", err)
	}
	return wdk.ByteSlice(ct), nil
}

// Decrypt reverses Encrypt (spec.md §6.1).
func (w *Wallet) Decrypt(ctx context.Context, userID int64, originator string, args wdk.DecryptArgs) (wdk.ByteSlice, error) {
	if err := validateOriginator(originator); err != nil {
		return nil, err
	}
	pt, err := w.keys.Decrypt(ctx, args.ProtocolID, args.KeyID, args.Counterparty, args.Ciphertext)
	if err != nil {
		return nil, wdk.Decryption(fmt.Sprintf("decrypt: %v", err))
	}
	return wdk.ByteSlice(pt), nil
}

// CreateHmac computes an HMAC under a derived key (spec.md §6.1).
func (w *Wallet) CreateHmac(ctx context.Context, userID int64, originator string, args wdk.CreateHmacArgs) (wdk.ByteSlice, error) {
	if err := validateOriginator(originator); err != nil {
		return nil, err
	}
	mac, err := w.keys.HMAC(ctx, args.ProtocolID, args.KeyID, args.Counterparty, args.Data)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "create hmac: %v", err)
	}
	return wdk.ByteSlice(mac), nil
}

// VerifyHmac verifies an HMAC under a derived key (spec.md §6.1).
func (w *Wallet) VerifyHmac(ctx context.Context, userID int64, originator string, args wdk.VerifyHmacArgs) (bool, error) {
	if err := validateOriginator(originator); err != nil {
		return false, err
	}
	ok, err := w.keys.VerifyHMAC(ctx, args.ProtocolID, args.KeyID, args.Counterparty, args.Data, args.HMAC)
	if err != nil {
		return false, wdk.NewError(wdk.KindRuntime, "verify hmac: %v", err)
	}
	return ok, nil
}
