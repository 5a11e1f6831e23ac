package identity

import (
	"context"
	"testing"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/randutil"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// fakeInteractor is an in-memory TokenInteractor standing in for on-chain
// PushDrop publication and lookup.
type fakeInteractor struct {
	byOutpoint          map[string]UMPToken
	presentationHashHex map[string]string // hash hex -> outpoint
	recoveryHashHex     map[string]string
	nextOutpoint        int
	buildCalls          int
}

func newFakeInteractor() *fakeInteractor {
	return &fakeInteractor{
		byOutpoint:          map[string]UMPToken{},
		presentationHashHex: map[string]string{},
		recoveryHashHex:     map[string]string{},
	}
}

func (f *fakeInteractor) alloc() string {
	f.nextOutpoint++
	return time.Now().String() + "#" + string(rune('0'+f.nextOutpoint))
}

func (f *fakeInteractor) BuildAndSend(ctx context.Context, token UMPToken) (string, error) {
	f.buildCalls++
	outpoint := f.alloc()
	f.byOutpoint[outpoint] = token
	f.presentationHashHex[string(token.PresentationHash)] = outpoint
	f.recoveryHashHex[string(token.RecoveryHash)] = outpoint
	return outpoint, nil
}

func (f *fakeInteractor) FindByPresentationKeyHash(ctx context.Context, hash []byte) (*UMPToken, string, error) {
	outpoint, ok := f.presentationHashHex[string(hash)]
	if !ok {
		return nil, "", nil
	}
	token := f.byOutpoint[outpoint]
	return &token, outpoint, nil
}

func (f *fakeInteractor) FindByRecoveryKeyHash(ctx context.Context, hash []byte) (*UMPToken, string, error) {
	outpoint, ok := f.recoveryHashHex[string(hash)]
	if !ok {
		return nil, "", nil
	}
	token := f.byOutpoint[outpoint]
	return &token, outpoint, nil
}

func (f *fakeInteractor) UpdateToken(ctx context.Context, outpoint string, token UMPToken) (string, error) {
	delete(f.byOutpoint, outpoint)
	newOutpoint := f.alloc()
	f.byOutpoint[newOutpoint] = token
	f.presentationHashHex[string(token.PresentationHash)] = newOutpoint
	f.recoveryHashHex[string(token.RecoveryHash)] = newOutpoint
	return newOutpoint, nil
}

func TestManager_NewUserFlow_Authenticates(t *testing.T) {
	interactor := newFakeInteractor()
	var savedRecoveryKey []byte

	m := New(Config{
		Mode:       ModePresentationPassword,
		Interactor: interactor,
		Rand:       randutil.New(),
		RecoverySaver: func(ctx context.Context, key []byte) error {
			savedRecoveryKey = key
			return nil
		},
	})

	ctx := context.Background()
	presentationKey := make([]byte, 32)
	for i := range presentationKey {
		presentationKey[i] = 0xA1
	}

	if err := m.ProvidePresentationKey(ctx, presentationKey); err != nil {
		t.Fatalf("provide presentation key: %v", err)
	}
	if m.Authenticated() {
		t.Fatal("should not authenticate on one factor alone")
	}
	if err := m.ProvidePassword(ctx, "test-password"); err != nil {
		t.Fatalf("provide password: %v", err)
	}

	if !m.Authenticated() {
		t.Fatal("expected authentication to succeed")
	}
	if interactor.buildCalls != 1 {
		t.Errorf("expected BuildAndSend called exactly once, got %d", interactor.buildCalls)
	}
	if len(savedRecoveryKey) != 32 {
		t.Errorf("expected a 32-byte recovery key to be persisted")
	}
	if m.CurrentOutpoint() == "" {
		t.Error("expected a non-empty current outpoint")
	}
}

func TestManager_ExistingUserFlow_ReauthenticatesSameRootKey(t *testing.T) {
	interactor := newFakeInteractor()
	ctx := context.Background()
	presentationKey := make([]byte, 32)
	for i := range presentationKey {
		presentationKey[i] = 0x42
	}

	first := New(Config{
		Mode:          ModePresentationPassword,
		Interactor:    interactor,
		Rand:          randutil.New(),
		RecoverySaver: func(ctx context.Context, key []byte) error { return nil },
	})
	if err := first.ProvidePresentationKey(ctx, presentationKey); err != nil {
		t.Fatalf("provide presentation key: %v", err)
	}
	if err := first.ProvidePassword(ctx, "hunter2"); err != nil {
		t.Fatalf("provide password: %v", err)
	}

	second := New(Config{
		Mode:       ModePresentationPassword,
		Interactor: interactor,
		Rand:       randutil.New(),
	})
	if err := second.ProvidePresentationKey(ctx, presentationKey); err != nil {
		t.Fatalf("provide presentation key: %v", err)
	}
	if err := second.ProvidePassword(ctx, "hunter2"); err != nil {
		t.Fatalf("provide password: %v", err)
	}

	if !second.Authenticated() {
		t.Fatal("expected second manager to authenticate against the published token")
	}
	if interactor.buildCalls != 1 {
		t.Errorf("expected no additional token to be minted, got %d builds", interactor.buildCalls)
	}

	first.mu.Lock()
	wantKey := first.rootPrimaryKey
	first.mu.Unlock()
	second.mu.Lock()
	gotKey := second.rootPrimaryKey
	second.mu.Unlock()
	if string(wantKey) != string(gotKey) {
		t.Error("expected the second manager to resolve the same root primary key")
	}
}

func newAuthenticatedManager(t *testing.T) (*Manager, *fakeInteractor) {
	t.Helper()
	interactor := newFakeInteractor()
	m := New(Config{
		Mode:          ModePresentationPassword,
		Interactor:    interactor,
		Rand:          randutil.New(),
		RecoverySaver: func(ctx context.Context, key []byte) error { return nil },
	})
	ctx := context.Background()
	presentationKey := make([]byte, 32)
	for i := range presentationKey {
		presentationKey[i] = 0x11
	}
	if err := m.ProvidePresentationKey(ctx, presentationKey); err != nil {
		t.Fatalf("provide presentation key: %v", err)
	}
	if err := m.ProvidePassword(ctx, "snapshot-pass"); err != nil {
		t.Fatalf("provide password: %v", err)
	}
	return m, interactor
}

func TestManager_SnapshotRoundTrip(t *testing.T) {
	m, _ := newAuthenticatedManager(t)

	snapshot, err := m.SaveSnapshot(SnapshotVersion2)
	if err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	fresh := New(Config{Rand: randutil.New()})
	if err := fresh.LoadSnapshot(snapshot); err != nil {
		t.Fatalf("load snapshot: %v", err)
	}
	if !fresh.Authenticated() {
		t.Fatal("expected loaded manager to be authenticated")
	}

	m.mu.Lock()
	wantKey := m.rootPrimaryKey
	m.mu.Unlock()
	fresh.mu.Lock()
	gotKey := fresh.rootPrimaryKey
	fresh.mu.Unlock()

	if string(wantKey) != string(gotKey) {
		t.Error("expected loaded root primary key to match saved one")
	}
}

func TestManager_LoadSnapshot_RejectsTruncatedData(t *testing.T) {
	m, _ := newAuthenticatedManager(t)
	snapshot, err := m.SaveSnapshot(SnapshotVersion2)
	if err != nil {
		t.Fatalf("save snapshot: %v", err)
	}

	truncated := snapshot[:len(snapshot)-10]
	fresh := New(Config{Rand: randutil.New()})
	err = fresh.LoadSnapshot(truncated)
	if err == nil {
		t.Fatal("expected an error loading a truncated snapshot")
	}
	werr, ok := err.(*wdk.Error)
	if !ok || werr.Kind != wdk.KindDecryption {
		t.Fatalf("expected a Decryption error, got %v", err)
	}
	if fresh.Authenticated() {
		t.Error("a failed load must leave the manager unauthenticated")
	}
}

func TestManager_ChangePassword_AllowsReauthenticationWithNewPassword(t *testing.T) {
	m, interactor := newAuthenticatedManager(t)

	if err := m.ChangePassword(context.Background(), "new-password"); err != nil {
		t.Fatalf("change password: %v", err)
	}

	second := New(Config{Mode: ModePresentationPassword, Interactor: interactor, Rand: randutil.New()})
	presentationKey := make([]byte, 32)
	for i := range presentationKey {
		presentationKey[i] = 0x11
	}
	ctx := context.Background()
	if err := second.ProvidePresentationKey(ctx, presentationKey); err != nil {
		t.Fatalf("provide presentation key: %v", err)
	}
	if err := second.ProvidePassword(ctx, "new-password"); err != nil {
		t.Fatalf("provide new password: %v", err)
	}
	if !second.Authenticated() {
		t.Fatal("expected re-authentication with the new password to succeed")
	}
}

func TestXorBytes_RoundTrip(t *testing.T) {
	a := []byte{0x01, 0x02, 0x03, 0xFF}
	b := []byte{0xAA, 0xBB, 0xCC, 0x00}

	xored, err := xorBytes(a, b)
	if err != nil {
		t.Fatalf("xor: %v", err)
	}
	back, err := xorBytes(xored, a)
	if err != nil {
		t.Fatalf("xor: %v", err)
	}
	if string(back) != string(b) {
		t.Errorf("expected xor round trip to recover b, got %x want %x", back, b)
	}
}
