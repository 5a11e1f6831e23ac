package permissions

import (
	"context"
	"encoding/base64"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// adminMetadataProtocol is the fixed protocol under which wallet metadata
// is encrypted when EncryptWalletMetadata is enabled (spec.md §4.4: "a
// fixed admin protocol (security-level=2, 'admin metadata encryption')").
var adminMetadataProtocol = wdk.Protocol{SecurityLevel: 2, Name: "admin metadata encryption"}

const adminMetadataKeyID = "1"

// encryptMetadata encrypts a plaintext metadata field via the underlying
// wallet's encrypt method and base64-encodes the result for storage. A
// disabled EncryptWalletMetadata or an empty string passes through.
func (m *Manager) encryptMetadata(ctx context.Context, userID int64, plaintext string) (string, error) {
	if !m.encryptMD || plaintext == "" {
		return plaintext, nil
	}
	ciphertext, err := m.wallet.Encrypt(ctx, userID, m.adminOrig, wdk.EncryptArgs{
		Plaintext:    wdk.ByteSlice(plaintext),
		ProtocolID:   adminMetadataProtocol,
		KeyID:        adminMetadataKeyID,
		Counterparty: wdk.Counterparty{Kind: wdk.CounterpartySelf},
	})
	if err != nil {
		return "", wdk.NewError(wdk.KindRuntime, "encrypt wallet metadata: %v", err)
	}
	return base64.StdEncoding.EncodeToString(ciphertext), nil
}

// decryptMetadata reverses encryptMetadata on list operations.
func (m *Manager) decryptMetadata(ctx context.Context, userID int64, encoded string) (string, error) {
	if !m.encryptMD || encoded == "" {
		return encoded, nil
	}
	ciphertext, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", wdk.Decryption("malformed base64 wallet metadata: " + err.Error())
	}
	plaintext, err := m.wallet.Decrypt(ctx, userID, m.adminOrig, wdk.DecryptArgs{
		Ciphertext:   wdk.ByteSlice(ciphertext),
		ProtocolID:   adminMetadataProtocol,
		KeyID:        adminMetadataKeyID,
		Counterparty: wdk.Counterparty{Kind: wdk.CounterpartySelf},
	})
	if err != nil {
		return "", wdk.Decryption("decrypt wallet metadata: " + err.Error())
	}
	return string(plaintext), nil
}
