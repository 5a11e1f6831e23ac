// Package permissions implements the DPACP/DBAP/DCAP/DSAP gatekeeper that
// sits in front of a wdk.Wallet (spec.md §4.4): every sensitive method call
// from a non-admin originator is checked against a token-cached grant,
// falling back to a request/grant/deny round trip when the cache misses.
package permissions

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Category is one of the four permission categories (spec.md §4.4).
type Category string

const (
	CategoryProtocol    Category = "DPACP"
	CategoryBasket      Category = "DBAP"
	CategoryCertificate Category = "DCAP"
	CategorySpending    Category = "DSAP"
)

// Default grant lifetimes per spec.md §4.4 ("granted tokens default to
// 1-year expiry, spending 30 days").
const (
	defaultGrantTTL    = 365 * 24 * time.Hour
	defaultSpendingTTL = 30 * 24 * time.Hour
)

// Grant is one resolved permission, the in-memory projection of an on-chain
// PushDrop token (spec.md §4.4: "a set of on-chain PushDrop tokens indexed
// in-memory by (originator, resource-key)").
type Grant struct {
	Category         Category
	Originator       string
	UserID           int64
	ResourceKey      string
	ExpiresAt        time.Time
	AuthorizedAmount int64 // DSAP only: remaining spendable satoshis
}

// Expired reports whether the grant has outlived its expiry.
func (g Grant) Expired(now time.Time) bool {
	return now.After(g.ExpiresAt)
}

func cacheKeyFor(category Category, userID int64, originator, resourceKey string) string {
	return string(category) + "\x00" + originator + "\x00" + resourceKey
}

// TokenStore is the external collaborator that persists permission grants
// as on-chain PushDrop tokens. The script templates themselves are out of
// scope per spec.md §1 ("the specific PushDrop script templates used by the
// permission manager"); this interface is the contract a concrete on-chain
// implementation fulfills.
type TokenStore interface {
	Find(ctx context.Context, category Category, userID int64, originator, resourceKey string) (*Grant, error)
	Save(ctx context.Context, grant Grant) error
}

// RequestID identifies one pending permission request (spec.md §4.4:
// "requestID (monotonic counter)").
type RequestID int64

// PermissionRequest describes a permission cache miss awaiting resolution.
type PermissionRequest struct {
	ID          RequestID
	Category    Category
	UserID      int64
	Originator  string
	ResourceKey string
	Amount      int64 // DSAP only
	Reason      string
}

// RequestCallback is invoked once per pending request; the bound handler is
// expected to eventually call GrantPermission or DenyPermission with the
// same request ID.
type RequestCallback func(ctx context.Context, req PermissionRequest)

type pendingRequest struct {
	req      PermissionRequest
	resultCh chan requestOutcome
}

type requestOutcome struct {
	granted   bool
	expiresAt time.Time
	amount    int64
}

// Config configures a Manager.
type Config struct {
	Wallet                wdk.Wallet
	Store                 TokenStore
	Rand                  wdk.Randomizer
	AdminOriginator       string
	EncryptWalletMetadata bool
	Callbacks             map[Category]RequestCallback
	RequestTimeout        time.Duration // default 5 minutes
}

// Manager is the DPACP/DBAP/DCAP/DSAP gatekeeper. It implements wdk.Wallet
// itself, proxying every call to the wrapped Wallet (spec.md §4.4's
// "wallet proxy").
type Manager struct {
	wallet     wdk.Wallet
	store      TokenStore
	rand       wdk.Randomizer
	adminOrig  string
	encryptMD  bool
	callbacks  map[Category]RequestCallback
	reqTimeout time.Duration

	mu      sync.Mutex
	cache   map[string]Grant
	pending map[RequestID]*pendingRequest
	nextID  int64
}

// New builds a Manager wrapping cfg.Wallet.
func New(cfg Config) *Manager {
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Manager{
		wallet:     cfg.Wallet,
		store:      cfg.Store,
		rand:       cfg.Rand,
		adminOrig:  cfg.AdminOriginator,
		encryptMD:  cfg.EncryptWalletMetadata,
		callbacks:  cfg.Callbacks,
		reqTimeout: timeout,
		cache:      make(map[string]Grant),
		pending:    make(map[RequestID]*pendingRequest),
	}
}

// isAdmin reports whether originator bypasses every permission check
// (spec.md §4.4: "Admin originator bypasses checks"). An empty originator
// is treated as an internal call (monitor, CLI) and bypasses too.
func (m *Manager) isAdmin(originator string) bool {
	return originator == "" || (m.adminOrig != "" && originator == m.adminOrig)
}

// ensure resolves a (category, resourceKey) permission for userID/originator,
// consulting the cache, the durable store, and finally a request/grant/deny
// round trip. amount is only meaningful for CategorySpending.
func (m *Manager) ensure(ctx context.Context, userID int64, originator string, category Category, resourceKey string, amount int64) error {
	if m.isAdmin(originator) {
		return nil
	}

	key := cacheKeyFor(category, userID, originator, resourceKey)
	now := time.Now()

	m.mu.Lock()
	grant, ok := m.cache[key]
	m.mu.Unlock()

	if !ok && m.store != nil {
		stored, err := m.store.Find(ctx, category, userID, originator, resourceKey)
		if err != nil {
			return wdk.NewError(wdk.KindRuntime, "look up %s grant: %v", category, err)
		}
		if stored != nil {
			grant = *stored
			ok = true
			m.mu.Lock()
			m.cache[key] = grant
			m.mu.Unlock()
		}
	}

	if ok && !grant.Expired(now) {
		if category != CategorySpending || grant.AuthorizedAmount >= amount {
			return nil
		}
	}

	return m.requestAndWait(ctx, userID, originator, category, resourceKey, amount)
}

// requestAndWait registers a pending request, invokes the bound callback
// (if any), and blocks for a resolution via GrantPermission/DenyPermission
// or the context/timeout, whichever comes first.
func (m *Manager) requestAndWait(ctx context.Context, userID int64, originator string, category Category, resourceKey string, amount int64) error {
	id := RequestID(atomic.AddInt64(&m.nextID, 1))
	req := PermissionRequest{
		ID:          id,
		Category:    category,
		UserID:      userID,
		Originator:  originator,
		ResourceKey: resourceKey,
		Amount:      amount,
	}
	pr := &pendingRequest{req: req, resultCh: make(chan requestOutcome, 1)}

	m.mu.Lock()
	m.pending[id] = pr
	callback := m.callbacks[category]
	m.mu.Unlock()

	if callback == nil {
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return wdk.NewError(wdk.KindAuthentication, "no %s permission and no request handler bound for originator %q", category, originator)
	}

	go callback(ctx, req)

	timer := time.NewTimer(m.reqTimeout)
	defer timer.Stop()

	select {
	case outcome := <-pr.resultCh:
		if !outcome.granted {
			return wdk.NewError(wdk.KindAuthentication, "%s permission denied for originator %q", category, originator)
		}
		grant := Grant{
			Category: category, Originator: originator, UserID: userID,
			ResourceKey: resourceKey, ExpiresAt: outcome.expiresAt, AuthorizedAmount: outcome.amount,
		}
		m.mu.Lock()
		m.cache[cacheKeyFor(category, userID, originator, resourceKey)] = grant
		m.mu.Unlock()
		if m.store != nil {
			if err := m.store.Save(ctx, grant); err != nil {
				return wdk.NewError(wdk.KindRuntime, "persist %s grant: %v", category, err)
			}
		}
		return nil
	case <-ctx.Done():
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return wdk.Timeout("permission request")
	case <-timer.C:
		m.mu.Lock()
		delete(m.pending, id)
		m.mu.Unlock()
		return wdk.Timeout("permission request")
	}
}

// GrantPermission resolves a pending request affirmatively. expiresAt zero
// defaults per category (spec.md §4.4); amount is the authorized spending
// ceiling for CategorySpending requests.
func (m *Manager) GrantPermission(ctx context.Context, id RequestID, expiresAt time.Time, amount int64) error {
	m.mu.Lock()
	pr, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return wdk.InvalidParameter("requestId", "no such pending permission request")
	}

	if expiresAt.IsZero() {
		if pr.req.Category == CategorySpending {
			expiresAt = time.Now().Add(defaultSpendingTTL)
		} else {
			expiresAt = time.Now().Add(defaultGrantTTL)
		}
	}
	if amount == 0 {
		amount = pr.req.Amount
	}

	select {
	case pr.resultCh <- requestOutcome{granted: true, expiresAt: expiresAt, amount: amount}:
	default:
	}
	return nil
}

// DenyPermission resolves a pending request negatively. Per spec.md §4.4,
// a denied create_action that already produced a reference must be
// aborted via the underlying wallet; CreateAction (wallet_proxy.go) handles
// that using the same error this produces.
func (m *Manager) DenyPermission(ctx context.Context, id RequestID) error {
	m.mu.Lock()
	pr, ok := m.pending[id]
	if ok {
		delete(m.pending, id)
	}
	m.mu.Unlock()
	if !ok {
		return wdk.InvalidParameter("requestId", "no such pending permission request")
	}
	select {
	case pr.resultCh <- requestOutcome{granted: false}:
	default:
	}
	return nil
}

// trackSpending decrements a DSAP grant's remaining authorized amount after
// a successful spend (spec.md §4.4: "track_spending decrements an
// authorized amount").
func (m *Manager) trackSpending(ctx context.Context, userID int64, originator string, amount int64) {
	if m.isAdmin(originator) {
		return
	}
	key := cacheKeyFor(CategorySpending, userID, originator, "")
	m.mu.Lock()
	grant, ok := m.cache[key]
	if ok {
		grant.AuthorizedAmount -= amount
		m.cache[key] = grant
	}
	m.mu.Unlock()
	if ok && m.store != nil {
		_ = m.store.Save(ctx, grant)
	}
}

// spendAmount sums the satoshis a create_action request moves out of the
// wallet's custody (spec.md §4.4's spending-authorization resource).
func spendAmount(args wdk.CreateActionArgs) int64 {
	var total int64
	for _, out := range args.Outputs {
		total += out.Satoshis
	}
	return total
}

// nonDefaultBaskets returns the distinct non-default basket names an
// outputs list references, the DBAP resource key set for create_action.
func nonDefaultBaskets(outputs []wdk.CreateActionOutput) []string {
	seen := map[string]bool{}
	var out []string
	for _, o := range outputs {
		if o.Basket == "" || o.Basket == wdk.BasketNameForChange {
			continue
		}
		if !seen[o.Basket] {
			seen[o.Basket] = true
			out = append(out, o.Basket)
		}
	}
	return out
}

func protocolResourceKey(p wdk.Protocol) string {
	return p.Name
}
