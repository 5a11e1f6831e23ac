package permissions

import (
	"context"
	"testing"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// fakeWallet is a minimal wdk.Wallet double. Encrypt/Decrypt XOR with a
// fixed byte so metadata round-trips without a real key deriver.
type fakeWallet struct {
	createActionCalls int
	abortedReferences []string
	nextReference     int
}

const fakeXorByte = 0x5A

func (f *fakeWallet) GetVersion(ctx context.Context, userID int64, originator string) (wdk.VersionResult, error) {
	return wdk.VersionResult{Version: "1.0.0"}, nil
}
func (f *fakeWallet) GetNetwork(ctx context.Context, userID int64, originator string) (wdk.NetworkResult, error) {
	return wdk.NetworkResult{Network: "mainnet"}, nil
}
func (f *fakeWallet) GetPublicKey(ctx context.Context, userID int64, originator string, args wdk.GetPublicKeyArgs) (wdk.ByteSlice, error) {
	return wdk.ByteSlice{0x02}, nil
}
func (f *fakeWallet) CreateSignature(ctx context.Context, userID int64, originator string, args wdk.CreateSignatureArgs) (wdk.ByteSlice, error) {
	return wdk.ByteSlice{0x30}, nil
}
func (f *fakeWallet) VerifySignature(ctx context.Context, userID int64, originator string, args wdk.VerifySignatureArgs) (bool, error) {
	return true, nil
}
func (f *fakeWallet) Encrypt(ctx context.Context, userID int64, originator string, args wdk.EncryptArgs) (wdk.ByteSlice, error) {
	out := make(wdk.ByteSlice, len(args.Plaintext))
	for i, b := range args.Plaintext {
		out[i] = b ^ fakeXorByte
	}
	return out, nil
}
func (f *fakeWallet) Decrypt(ctx context.Context, userID int64, originator string, args wdk.DecryptArgs) (wdk.ByteSlice, error) {
	out := make(wdk.ByteSlice, len(args.Ciphertext))
	for i, b := range args.Ciphertext {
		out[i] = b ^ fakeXorByte
	}
	return out, nil
}
func (f *fakeWallet) CreateHmac(ctx context.Context, userID int64, originator string, args wdk.CreateHmacArgs) (wdk.ByteSlice, error) {
	return wdk.ByteSlice{0x01}, nil
}
func (f *fakeWallet) VerifyHmac(ctx context.Context, userID int64, originator string, args wdk.VerifyHmacArgs) (bool, error) {
	return true, nil
}
func (f *fakeWallet) CreateAction(ctx context.Context, userID int64, originator string, args wdk.CreateActionArgs) (wdk.CreateActionResult, error) {
	f.createActionCalls++
	f.nextReference++
	return wdk.CreateActionResult{Reference: "ref-" + itoaTest(f.nextReference)}, nil
}
func (f *fakeWallet) SignAction(ctx context.Context, userID int64, originator string, args wdk.SignActionArgs) (wdk.SignActionResult, error) {
	return wdk.SignActionResult{}, nil
}
func (f *fakeWallet) AbortAction(ctx context.Context, userID int64, originator string, args wdk.AbortActionArgs) (wdk.AbortActionResult, error) {
	f.abortedReferences = append(f.abortedReferences, args.Reference)
	return wdk.AbortActionResult{Aborted: true}, nil
}
func (f *fakeWallet) InternalizeAction(ctx context.Context, userID int64, originator string, args wdk.InternalizeActionArgs) (wdk.InternalizeActionResult, error) {
	return wdk.InternalizeActionResult{}, nil
}
func (f *fakeWallet) ListActions(ctx context.Context, userID int64, originator string, args wdk.ListActionsArgs) (wdk.ListActionsResult, error) {
	return wdk.ListActionsResult{}, nil
}
func (f *fakeWallet) ListOutputs(ctx context.Context, userID int64, originator string, args wdk.ListOutputsArgs) (wdk.ListOutputsResult, error) {
	return wdk.ListOutputsResult{}, nil
}
func (f *fakeWallet) RelinquishOutput(ctx context.Context, userID int64, originator string, args wdk.RelinquishOutputArgs) error {
	return nil
}
func (f *fakeWallet) AcquireCertificate(ctx context.Context, userID int64, originator string, args wdk.AcquireCertificateArgs) (wdk.CertificateResult, error) {
	return wdk.CertificateResult{}, nil
}
func (f *fakeWallet) ProveCertificate(ctx context.Context, userID int64, originator string, args wdk.ProveCertificateArgs) (wdk.ProveCertificateResult, error) {
	return wdk.ProveCertificateResult{}, nil
}
func (f *fakeWallet) ListCertificates(ctx context.Context, userID int64, originator string, args wdk.ListCertificatesArgs) (wdk.ListCertificatesResult, error) {
	return wdk.ListCertificatesResult{}, nil
}
func (f *fakeWallet) RelinquishCertificate(ctx context.Context, userID int64, originator string, args wdk.RelinquishCertificateArgs) error {
	return nil
}
func (f *fakeWallet) DiscoverByIdentityKey(ctx context.Context, userID int64, originator string, args wdk.DiscoverByIdentityKeyArgs) (wdk.DiscoverCertificatesResult, error) {
	return wdk.DiscoverCertificatesResult{}, nil
}
func (f *fakeWallet) DiscoverByAttributes(ctx context.Context, userID int64, originator string, args wdk.DiscoverByAttributesArgs) (wdk.DiscoverCertificatesResult, error) {
	return wdk.DiscoverCertificatesResult{}, nil
}

func itoaTest(n int) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}

func TestManager_AdminOriginatorBypassesChecks(t *testing.T) {
	fw := &fakeWallet{}
	m := New(Config{Wallet: fw, AdminOriginator: "admin.example"})
	ctx := context.Background()

	_, err := m.GetPublicKey(ctx, 1, "admin.example", wdk.GetPublicKeyArgs{ProtocolID: wdk.Protocol{Name: "test"}})
	if err != nil {
		t.Fatalf("admin originator should bypass DPACP: %v", err)
	}
}

func TestManager_NonAdminRequiresGrant(t *testing.T) {
	fw := &fakeWallet{}
	granted := make(chan RequestID, 1)
	m := New(Config{
		Wallet:          fw,
		AdminOriginator: "admin.example",
		RequestTimeout:  time.Second,
		Callbacks: map[Category]RequestCallback{
			CategoryProtocol: func(ctx context.Context, req PermissionRequest) {
				granted <- req.ID
			},
		},
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.GetPublicKey(ctx, 1, "app.example", wdk.GetPublicKeyArgs{ProtocolID: wdk.Protocol{Name: "test-proto"}})
		done <- err
	}()

	id := <-granted
	if err := m.GrantPermission(ctx, id, time.Time{}, 0); err != nil {
		t.Fatalf("grant: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("expected call to succeed after grant, got %v", err)
	}

	// Second call should hit the cache, no further callback invocation needed.
	if _, err := m.GetPublicKey(ctx, 1, "app.example", wdk.GetPublicKeyArgs{ProtocolID: wdk.Protocol{Name: "test-proto"}}); err != nil {
		t.Fatalf("expected cached grant to allow second call: %v", err)
	}
}

func TestManager_DeniedPermissionRejectsCall(t *testing.T) {
	fw := &fakeWallet{}
	denied := make(chan RequestID, 1)
	m := New(Config{
		Wallet:         fw,
		RequestTimeout: time.Second,
		Callbacks: map[Category]RequestCallback{
			CategoryProtocol: func(ctx context.Context, req PermissionRequest) {
				denied <- req.ID
			},
		},
	})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() {
		_, err := m.GetPublicKey(ctx, 1, "app.example", wdk.GetPublicKeyArgs{ProtocolID: wdk.Protocol{Name: "test-proto"}})
		done <- err
	}()

	id := <-denied
	if err := m.DenyPermission(ctx, id); err != nil {
		t.Fatalf("deny: %v", err)
	}
	err := <-done
	if err == nil {
		t.Fatal("expected denial to produce an error")
	}
	werr, ok := err.(*wdk.Error)
	if !ok || werr.Kind != wdk.KindAuthentication {
		t.Fatalf("expected Authentication error, got %v", err)
	}
}

func TestManager_CreateAction_DeniedSpendingAbortsReference(t *testing.T) {
	fw := &fakeWallet{}
	var m *Manager
	m = New(Config{
		Wallet:         fw,
		RequestTimeout: time.Second,
		Callbacks: map[Category]RequestCallback{
			CategorySpending: func(ctx context.Context, req PermissionRequest) {
				_ = m.DenyPermission(ctx, req.ID)
			},
		},
	})
	ctx := context.Background()

	_, err := m.CreateAction(ctx, 1, "app.example", wdk.CreateActionArgs{
		Outputs: []wdk.CreateActionOutput{{Satoshis: 5000}},
	})
	if err == nil {
		t.Fatal("expected spending denial to fail create_action")
	}
	if len(fw.abortedReferences) != 1 {
		t.Fatalf("expected exactly one aborted reference, got %v", fw.abortedReferences)
	}
}

func TestManager_MetadataEncryptionRoundTrip(t *testing.T) {
	fw := &fakeWallet{}
	m := New(Config{Wallet: fw, AdminOriginator: "admin.example", EncryptWalletMetadata: true})
	ctx := context.Background()

	encoded, err := m.encryptMetadata(ctx, 1, "a secret description")
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if encoded == "a secret description" {
		t.Fatal("expected metadata to be transformed when encryption is enabled")
	}
	decoded, err := m.decryptMetadata(ctx, 1, encoded)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if decoded != "a secret description" {
		t.Fatalf("expected round trip, got %q", decoded)
	}
}

func TestManager_CreateAction_InjectsAuditLabelForNonAdmin(t *testing.T) {
	fw := &fakeWallet{}
	m := New(Config{Wallet: fw, AdminOriginator: "admin.example"})
	ctx := context.Background()

	prepared, err := m.prepareCreateActionArgs(ctx, 1, "app.example", wdk.CreateActionArgs{Description: "buy coffee"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	found := false
	for _, l := range prepared.Labels {
		if l == "admin originator app.example" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected audit label injected, got %v", prepared.Labels)
	}

	adminPrepared, err := m.prepareCreateActionArgs(ctx, 1, "admin.example", wdk.CreateActionArgs{Description: "internal"})
	if err != nil {
		t.Fatalf("prepare: %v", err)
	}
	if len(adminPrepared.Labels) != 0 {
		t.Fatalf("expected no audit label for admin originator, got %v", adminPrepared.Labels)
	}
}
