// Package identity implements the CWI-style authentication manager from
// spec.md §4.5: a three-factor (presentation key / password / recovery key)
// scheme backed by an on-chain UMP token, XOR-keyed pivots, a
// retention-windowed privileged key, profile switching, and versioned
// encrypted snapshots. None of it talks to a chain directly; publishing and
// locating the UMP token's PushDrop output is delegated to a TokenInteractor
// collaborator the same way internal/signer delegates certificate issuance
// to a wdk.Certifier.
package identity

import (
	"context"
	"crypto/sha256"
	"sync"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// AuthenticationMode selects which two of the three factors authenticate a
// session (spec.md §4.5).
type AuthenticationMode string

const (
	ModePresentationPassword AuthenticationMode = "presentation-key-and-password"
	ModePresentationRecovery AuthenticationMode = "presentation-key-and-recovery-key"
	ModeRecoveryPassword     AuthenticationMode = "recovery-key-and-password"
)

// UMPToken is the on-chain record of spec.md §6.4, field order canonical for
// the PushDrop output it is published as.
type UMPToken struct {
	PasswordSalt                   []byte
	PasswordPresentationPrimary    []byte
	PasswordRecoveryPrimary        []byte
	PresentationRecoveryPrimary    []byte
	PasswordPrimaryPrivileged      []byte
	PresentationRecoveryPrivileged []byte
	PresentationHash               []byte
	RecoveryHash                   []byte
	PresentationKeyEncrypted       []byte
	PasswordKeyEncrypted           []byte
	RecoveryKeyEncrypted           []byte
	ProfilesEncrypted              []byte `json:",omitempty"`
}

// TokenInteractor publishes and locates UMP tokens on-chain. The concrete
// implementation (a PushDrop-script builder plus a Storage-backed output
// lookup) lives outside this package; spec.md §1 keeps transaction
// construction out of scope here.
type TokenInteractor interface {
	BuildAndSend(ctx context.Context, token UMPToken) (outpoint string, err error)
	FindByPresentationKeyHash(ctx context.Context, hash []byte) (*UMPToken, string, error)
	FindByRecoveryKeyHash(ctx context.Context, hash []byte) (*UMPToken, string, error)
	UpdateToken(ctx context.Context, outpoint string, token UMPToken) (newOutpoint string, err error)
}

// RecoveryKeySaver persists a freshly generated recovery key on the
// new-user path (spec.md §4.5: "generate recoveryKey, persist via a user
// callback").
type RecoveryKeySaver func(ctx context.Context, recoveryKey []byte) error

// PasswordRetriever re-prompts for the password when the privileged key's
// retention window has expired.
type PasswordRetriever func(ctx context.Context, reason string) (string, error)

// WalletBuilder constructs the underlying wallet once a session
// authenticates or switches profile. It returns `any` because the concrete
// wallet type (internal/wallet.Wallet) would otherwise import this package,
// inverting the dependency.
type WalletBuilder func(primaryKey []byte, privileged *PrivilegedKeyManager, profileID [16]byte) (any, error)

// Config bundles a Manager's collaborators.
type Config struct {
	Mode              AuthenticationMode
	Interactor        TokenInteractor
	RecoverySaver     RecoveryKeySaver
	PasswordRetriever PasswordRetriever
	WalletBuilder     WalletBuilder
	Rand              wdk.Randomizer
	AdminKey          []byte // 32 bytes; wraps the three raw-key audit copies
	PrivilegedTTL     time.Duration
}

// Manager drives the authentication state machine for one session. It
// accumulates whichever two factors its Mode requires and, once both are
// present, resolves the UMP token and builds the underlying wallet.
type Manager struct {
	mu sync.Mutex

	mode              AuthenticationMode
	interactor        TokenInteractor
	recoverySaver     RecoveryKeySaver
	passwordRetriever PasswordRetriever
	walletBuilder     WalletBuilder
	rand              wdk.Randomizer
	adminKey          []byte

	presentationKey []byte
	password        string
	havePassword    bool
	recoveryKey     []byte

	authenticated   bool
	rootPrimaryKey  []byte
	token           *UMPToken
	currentOutpoint string
	activeProfileID [16]byte
	profiles        []Profile

	privileged *PrivilegedKeyManager
	authCh     chan struct{}

	wallet any
}

// New constructs a Manager in its unauthenticated state.
func New(cfg Config) *Manager {
	ttl := cfg.PrivilegedTTL
	if ttl <= 0 {
		ttl = 2 * time.Minute
	}
	return &Manager{
		mode:              cfg.Mode,
		interactor:        cfg.Interactor,
		recoverySaver:     cfg.RecoverySaver,
		passwordRetriever: cfg.PasswordRetriever,
		walletBuilder:     cfg.WalletBuilder,
		rand:              cfg.Rand,
		adminKey:          cfg.AdminKey,
		privileged:        newPrivilegedKeyManager(ttl, cfg.PasswordRetriever),
		authCh:            make(chan struct{}),
	}
}

// Authenticated reports whether the manager has resolved a root primary key.
func (m *Manager) Authenticated() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.authenticated
}

// Wallet returns the underlying wallet built on successful authentication,
// or nil if not yet authenticated.
func (m *Manager) Wallet() any {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.wallet
}

// ProvidePresentationKey supplies the presentation-key factor.
func (m *Manager) ProvidePresentationKey(ctx context.Context, key []byte) error {
	m.mu.Lock()
	m.presentationKey = append([]byte(nil), key...)
	m.mu.Unlock()
	return m.tryAuthenticate(ctx)
}

// ProvidePassword supplies the password factor.
func (m *Manager) ProvidePassword(ctx context.Context, password string) error {
	m.mu.Lock()
	m.password = password
	m.havePassword = true
	m.mu.Unlock()
	return m.tryAuthenticate(ctx)
}

// ProvideRecoveryKey supplies the recovery-key factor.
func (m *Manager) ProvideRecoveryKey(ctx context.Context, key []byte) error {
	m.mu.Lock()
	m.recoveryKey = append([]byte(nil), key...)
	m.mu.Unlock()
	return m.tryAuthenticate(ctx)
}

// ready reports whether the two factors Mode requires have been supplied.
func (m *Manager) ready() bool {
	switch m.mode {
	case ModePresentationPassword:
		return len(m.presentationKey) > 0 && m.havePassword
	case ModePresentationRecovery:
		return len(m.presentationKey) > 0 && len(m.recoveryKey) > 0
	case ModeRecoveryPassword:
		return len(m.recoveryKey) > 0 && m.havePassword
	default:
		return false
	}
}

// tryAuthenticate resolves the UMP token once enough factors are present,
// dispatching to the new-user or existing-user flow (spec.md §4.5).
func (m *Manager) tryAuthenticate(ctx context.Context) error {
	m.mu.Lock()
	if m.authenticated || !m.ready() {
		m.mu.Unlock()
		return nil
	}
	presentationKey := append([]byte(nil), m.presentationKey...)
	recoveryKey := append([]byte(nil), m.recoveryKey...)
	password := m.password
	mode := m.mode
	m.mu.Unlock()

	var lookupHash []byte
	var lookup func(context.Context, []byte) (*UMPToken, string, error)
	switch mode {
	case ModePresentationPassword, ModePresentationRecovery:
		lookupHash = hashKey(presentationKey)
		lookup = m.interactor.FindByPresentationKeyHash
	case ModeRecoveryPassword:
		lookupHash = hashKey(recoveryKey)
		lookup = m.interactor.FindByRecoveryKeyHash
	}

	token, outpoint, err := lookup(ctx, lookupHash)
	if err != nil || token == nil {
		if mode == ModePresentationPassword {
			return m.newUserFlow(ctx, presentationKey, password)
		}
		return wdk.NewError(wdk.KindAuthentication, "no UMP token found for this authentication mode")
	}
	return m.existingUserFlow(ctx, token, outpoint, presentationKey, recoveryKey, password, mode)
}

// newUserFlow mints a fresh UMP token and authenticates immediately (spec.md
// §4.5, "presentation+password only").
func (m *Manager) newUserFlow(ctx context.Context, presentationKey []byte, password string) error {
	recoveryKey, err := m.rand.Bytes(32)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "generate recovery key: %v", err)
	}
	if m.recoverySaver != nil {
		if err := m.recoverySaver(ctx, recoveryKey); err != nil {
			return wdk.NewError(wdk.KindRuntime, "persist recovery key: %v", err)
		}
	}

	passwordSalt, err := m.rand.Bytes(32)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "generate password salt: %v", err)
	}
	passwordKey := derivePasswordKey(password, passwordSalt)

	primaryKey, err := m.rand.Bytes(32)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "generate primary key: %v", err)
	}
	privilegedKey, err := m.rand.Bytes(32)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "generate privileged key: %v", err)
	}

	token := UMPToken{
		PasswordSalt:                   passwordSalt,
		PasswordPresentationPrimary:    mustEncryptPivot(passwordKey, presentationKey, primaryKey),
		PasswordRecoveryPrimary:        mustEncryptPivot(passwordKey, recoveryKey, primaryKey),
		PresentationRecoveryPrimary:    mustEncryptPivot(presentationKey, recoveryKey, primaryKey),
		PasswordPrimaryPrivileged:      mustEncryptPivot(passwordKey, primaryKey, privilegedKey),
		PresentationRecoveryPrivileged: mustEncryptPivot(presentationKey, recoveryKey, privilegedKey),
		PresentationHash:               hashKey(presentationKey),
		RecoveryHash:                   hashKey(recoveryKey),
		PresentationKeyEncrypted:       mustEncryptAdmin(m.adminKey, presentationKey),
		PasswordKeyEncrypted:           mustEncryptAdmin(m.adminKey, passwordKey),
		RecoveryKeyEncrypted:           mustEncryptAdmin(m.adminKey, recoveryKey),
	}

	outpoint, err := m.interactor.BuildAndSend(ctx, token)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "publish UMP token: %v", err)
	}

	m.commit(&token, outpoint, primaryKey, privilegedKey)
	return m.build(ctx)
}

// existingUserFlow decrypts the primary key and, where the mode's factors
// allow it, the privileged key, from an already-published token.
func (m *Manager) existingUserFlow(ctx context.Context, token *UMPToken, outpoint string, presentationKey, recoveryKey []byte, password string, mode AuthenticationMode) error {
	var passwordKey []byte
	if password != "" {
		passwordKey = derivePasswordKey(password, token.PasswordSalt)
	}

	var primaryKey []byte
	var err error
	switch mode {
	case ModePresentationPassword:
		primaryKey, err = decryptPivot(passwordKey, presentationKey, token.PasswordPresentationPrimary)
	case ModeRecoveryPassword:
		primaryKey, err = decryptPivot(passwordKey, recoveryKey, token.PasswordRecoveryPrimary)
	case ModePresentationRecovery:
		primaryKey, err = decryptPivot(presentationKey, recoveryKey, token.PresentationRecoveryPrimary)
	}
	if err != nil {
		return wdk.Decryption("failed to decrypt primary key: " + err.Error())
	}

	var privilegedKey []byte
	if password != "" {
		privilegedKey, err = decryptPivot(passwordKey, primaryKey, token.PasswordPrimaryPrivileged)
	} else {
		privilegedKey, err = decryptPivot(presentationKey, recoveryKey, token.PresentationRecoveryPrivileged)
	}
	if err != nil {
		return wdk.Decryption("failed to decrypt privileged key: " + err.Error())
	}

	m.commit(token, outpoint, primaryKey, privilegedKey)
	return m.build(ctx)
}

// commit records successful authentication state under lock.
func (m *Manager) commit(token *UMPToken, outpoint string, primaryKey, privilegedKey []byte) {
	m.mu.Lock()
	m.token = token
	m.currentOutpoint = outpoint
	m.rootPrimaryKey = primaryKey
	m.authenticated = true
	m.mu.Unlock()

	m.privileged.bindRederive(m.rederivePrivileged)
	m.privileged.setKey(privilegedKey)
	close(m.authCh)
}

// rederivePrivileged recomputes the privileged key from a freshly supplied
// password once the retention window has lapsed, using the primary key and
// token already resolved at initial authentication (spec.md §4.5).
func (m *Manager) rederivePrivileged(ctx context.Context, password string) ([]byte, error) {
	m.mu.Lock()
	token := m.token
	primaryKey := append([]byte(nil), m.rootPrimaryKey...)
	m.mu.Unlock()

	if token == nil {
		return nil, wdk.NewError(wdk.KindAuthentication, "no UMP token resolved for this session")
	}
	passwordKey := derivePasswordKey(password, token.PasswordSalt)
	return decryptPivot(passwordKey, primaryKey, token.PasswordPrimaryPrivileged)
}

// build invokes the configured WalletBuilder for the default (all-zero)
// profile.
func (m *Manager) build(ctx context.Context) error {
	if m.walletBuilder == nil {
		return nil
	}
	m.mu.Lock()
	primaryKey := m.rootPrimaryKey
	m.mu.Unlock()

	wallet, err := m.walletBuilder(primaryKey, m.privileged, [16]byte{})
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "build wallet: %v", err)
	}
	m.mu.Lock()
	m.wallet = wallet
	m.mu.Unlock()
	return nil
}

// WaitForAuthentication blocks until authenticated or the default 5-minute
// deadline elapses (spec.md §6's wait_for_authentication).
func (m *Manager) WaitForAuthentication(ctx context.Context, maxWait time.Duration) error {
	if maxWait <= 0 {
		maxWait = 5 * time.Minute
	}
	timer := time.NewTimer(maxWait)
	defer timer.Stop()

	select {
	case <-m.authCh:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return wdk.Timeout("wait_for_authentication")
	}
}

// CurrentOutpoint returns the UMP token's on-chain anchor, for snapshot
// saving (spec.md §4.5: "save_snapshot requires ... a currentOutpoint on its
// current token").
func (m *Manager) CurrentOutpoint() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.currentOutpoint
}

// ChangePassword re-derives passwordKey from newPassword and rewrites both
// password-involving pivots atomically in one UpdateToken call (spec.md §9:
// a correct implementation must not leave stale password-derived pivots).
func (m *Manager) ChangePassword(ctx context.Context, newPassword string) error {
	m.mu.Lock()
	if !m.authenticated || m.token == nil {
		m.mu.Unlock()
		return wdk.NewError(wdk.KindAuthentication, "change_password requires an authenticated session")
	}
	presentationKey := append([]byte(nil), m.presentationKey...)
	primaryKey := append([]byte(nil), m.rootPrimaryKey...)
	outpoint := m.currentOutpoint
	token := *m.token
	m.mu.Unlock()

	privilegedKey, err := m.privileged.get(ctx, "change_password")
	if err != nil {
		return err
	}

	newSalt, err := m.rand.Bytes(32)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "generate password salt: %v", err)
	}
	newPasswordKey := derivePasswordKey(newPassword, newSalt)

	token.PasswordSalt = newSalt
	token.PasswordPresentationPrimary = mustEncryptPivot(newPasswordKey, presentationKey, primaryKey)
	token.PasswordPrimaryPrivileged = mustEncryptPivot(newPasswordKey, primaryKey, privilegedKey)

	newOutpoint, err := m.interactor.UpdateToken(ctx, outpoint, token)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "update UMP token: %v", err)
	}

	m.mu.Lock()
	m.token = &token
	m.currentOutpoint = newOutpoint
	m.password = newPassword
	m.havePassword = true
	m.mu.Unlock()
	return nil
}

func hashKey(key []byte) []byte {
	sum := sha256.Sum256(key)
	return sum[:]
}
