package identity

import (
	"context"
	"sync"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// PrivilegedKeyManager holds the in-memory privileged key behind a retention
// window (spec.md §4.5, §5: "reads and renewals are mutually exclusive").
// Any privileged operation after the window expires re-derives the key via
// the configured PasswordRetriever.
type PrivilegedKeyManager struct {
	mu        sync.Mutex
	key       []byte
	expiresAt time.Time
	retention time.Duration
	retriever PasswordRetriever
	rederive  func(ctx context.Context, password string) ([]byte, error)
}

func newPrivilegedKeyManager(retention time.Duration, retriever PasswordRetriever) *PrivilegedKeyManager {
	return &PrivilegedKeyManager{retention: retention, retriever: retriever}
}

// bindRederive wires the closure that re-decrypts the privileged key's
// pivot once a fresh password is supplied; Manager sets this once its own
// state (presentation key, primary key, token) is available, after New.
func (p *PrivilegedKeyManager) bindRederive(fn func(ctx context.Context, password string) ([]byte, error)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.rederive = fn
}

// setKey installs a freshly resolved privileged key and resets the
// retention timer, called once on initial authentication or rotation.
func (p *PrivilegedKeyManager) setKey(key []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.key = append([]byte(nil), key...)
	p.expiresAt = time.Now().Add(p.retention)
}

// get returns the privileged key, transparently renewing it via the
// password retriever if the retention window has expired (spec.md §4.5).
func (p *PrivilegedKeyManager) get(ctx context.Context, reason string) ([]byte, error) {
	p.mu.Lock()
	if p.key != nil && time.Now().Before(p.expiresAt) {
		key := p.key
		p.mu.Unlock()
		return key, nil
	}
	retriever, rederive := p.retriever, p.rederive
	p.mu.Unlock()

	if retriever == nil || rederive == nil {
		return nil, wdk.NewError(wdk.KindAuthentication, "privileged key expired and no password retriever configured")
	}
	password, err := retriever(ctx, reason)
	if err != nil {
		return nil, wdk.NewError(wdk.KindAuthentication, "retrieve password for privileged key renewal: %v", err)
	}
	key, err := rederive(ctx, password)
	if err != nil {
		return nil, wdk.Decryption("failed to re-derive privileged key: " + err.Error())
	}
	p.setKey(key)
	return key, nil
}

// Get is the exported form of get, used by wallet-level callers that need
// the raw privileged key directly (e.g. a privileged create_signature).
func (p *PrivilegedKeyManager) Get(ctx context.Context, reason string) ([]byte, error) {
	return p.get(ctx, reason)
}

// Destroy purges the in-memory privileged key immediately (spec.md §4.5's
// destroy_key).
func (p *PrivilegedKeyManager) Destroy() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i := range p.key {
		p.key[i] = 0
	}
	p.key = nil
	p.expiresAt = time.Time{}
}
