package identity

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

// passwordKeyRounds and passwordKeyLength match spec.md §4.5:
// PBKDF2-HMAC-SHA-512(password, passwordSalt, 100_000 rounds, 32 bytes).
const (
	passwordKeyRounds = 100_000
	passwordKeyLength = 32
)

// derivePasswordKey implements the passwordKey derivation spec.md §4.5
// names explicitly.
func derivePasswordKey(password string, salt []byte) []byte {
	return pbkdf2.Key([]byte(password), salt, passwordKeyRounds, passwordKeyLength, sha512.New)
}

// xorBytes XORs two equal-length byte strings (spec.md §8 property 7's
// round-trip invariant: xor(xor(a,b),a) == b).
func xorBytes(a, b []byte) ([]byte, error) {
	if len(a) != len(b) {
		return nil, fmt.Errorf("xor: mismatched lengths %d and %d", len(a), len(b))
	}
	out := make([]byte, len(a))
	for i := range a {
		out[i] = a[i] ^ b[i]
	}
	return out, nil
}

// encryptSymmetric AES-GCM encrypts plaintext under a raw 32-byte key,
// prefixing the nonce the way internal/keyderiver's Encrypt does.
func encryptSymmetric(key, plaintext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("read nonce: %w", err)
	}
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// decryptSymmetric reverses encryptSymmetric.
func decryptSymmetric(key, ciphertext []byte) ([]byte, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("new gcm: %w", err)
	}
	if len(ciphertext) < gcm.NonceSize() {
		return nil, fmt.Errorf("ciphertext shorter than nonce")
	}
	nonce, sealed := ciphertext[:gcm.NonceSize()], ciphertext[gcm.NonceSize():]
	return gcm.Open(nil, nonce, sealed, nil)
}

// mustEncryptPivot XORs the two authentication factors into a symmetric key
// and encrypts the guarded secret under it (spec.md §4.5's pivot scheme). It
// panics on a length mismatch between the two factors, a programmer error
// since every factor in this package is a fixed 32-byte key.
func mustEncryptPivot(factorA, factorB, secret []byte) []byte {
	symKey, err := xorBytes(factorA, factorB)
	if err != nil {
		panic("identity: " + err.Error())
	}
	ciphertext, err := encryptSymmetric(symKey, secret)
	if err != nil {
		panic("identity: " + err.Error())
	}
	return ciphertext
}

// decryptPivot is mustEncryptPivot's non-panicking counterpart, used on the
// read path where a bad factor is an expected Decryption error rather than a
// programmer bug.
func decryptPivot(factorA, factorB, ciphertext []byte) ([]byte, error) {
	symKey, err := xorBytes(factorA, factorB)
	if err != nil {
		return nil, err
	}
	return decryptSymmetric(symKey, ciphertext)
}

// mustEncryptAdmin wraps a raw authentication key under the admin key for
// audit/recovery (spec.md §4.5's "three admin-key-wrapped copies"). A nil
// admin key (no audit backup configured) encrypts under an all-zero key
// rather than skipping the field, keeping the token's field count stable.
func mustEncryptAdmin(adminKey, secret []byte) []byte {
	key := adminKey
	if len(key) != 32 {
		key = make([]byte, 32)
	}
	ciphertext, err := encryptSymmetric(key, secret)
	if err != nil {
		panic("identity: " + err.Error())
	}
	return ciphertext
}
