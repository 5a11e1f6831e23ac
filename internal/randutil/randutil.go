// Package randutil provides the concrete wdk.Randomizer implementation used
// throughout the wallet toolbox: references, salts, and serial numbers all
// come from crypto/rand rather than math/rand.
package randutil

import (
	"crypto/rand"
	"encoding/base64"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Crypto is a wdk.Randomizer backed by crypto/rand.
type Crypto struct{}

// New constructs a Crypto randomizer.
func New() Crypto {
	return Crypto{}
}

// Bytes returns n cryptographically random bytes.
func (Crypto) Bytes(n int) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// Base64URL returns n random bytes, base64url-encoded without padding, a
// convenient shape for create_action references and certificate serials.
func (Crypto) Base64URL(n int) (string, error) {
	buf, err := Crypto{}.Bytes(n)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

var _ wdk.Randomizer = Crypto{}
