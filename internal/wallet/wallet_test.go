package wallet

import (
	"bytes"
	"context"
	"os"
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/keyderiver"
	"github.com/certen/bsv-wallet-toolbox/internal/randutil"
	"github.com/certen/bsv-wallet-toolbox/internal/services"
	"github.com/certen/bsv-wallet-toolbox/internal/signer"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

var testClient *database.Client

func TestMain(m *testing.M) {
	connStr := os.Getenv("WALLET_TEST_DATABASE_URL")
	if connStr == "" {
		os.Exit(0)
	}

	var err error
	testClient, err = database.NewClient(database.Config{DatabaseURL: connStr})
	if err != nil {
		panic("failed to connect to test database: " + err.Error())
	}
	if err := testClient.MigrateUp(context.Background()); err != nil {
		panic("failed to migrate test database: " + err.Error())
	}

	code := m.Run()
	testClient.Close()
	os.Exit(code)
}

func newTestWallet(t *testing.T) (*Wallet, int64) {
	t.Helper()
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	rootKey := bytes.Repeat([]byte{0x22}, 32)
	keys, err := keyderiver.New(rootKey)
	if err != nil {
		t.Fatalf("new key deriver: %v", err)
	}
	s := signer.New(signer.Config{
		Repos: repos,
		Keys:  keys,
		Chain: services.NewFake(),
		Rand:  randutil.New(),
	})

	w := New(Config{
		Repos:      repos,
		Keys:       keys,
		Chain:      services.NewFake(),
		Rand:       randutil.New(),
		Signer:     s,
		PendingTTL: 50 * time.Millisecond,
	})

	user, err := repos.Users.FindOrCreateByIdentityKey(context.Background(), "02wallet-test")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return w, user.UserID
}

func TestWallet_GetVersionAndNetwork_DefaultToConfiguredValues(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	version, err := w.GetVersion(ctx, userID, "")
	if err != nil {
		t.Fatalf("get version: %v", err)
	}
	if version.Version != "1.0.0" {
		t.Errorf("expected default version 1.0.0, got %q", version.Version)
	}

	network, err := w.GetNetwork(ctx, userID, "")
	if err != nil {
		t.Fatalf("get network: %v", err)
	}
	if network.Network != "mainnet" {
		t.Errorf("expected default network mainnet, got %q", network.Network)
	}
}

func TestWallet_GetVersion_RejectsOversizedOriginator(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	_, err := w.GetVersion(ctx, userID, string(bytes.Repeat([]byte{'a'}, 300)))
	if err == nil {
		t.Fatal("expected an error for an oversized originator")
	}
	werr, ok := err.(*wdk.Error)
	if !ok {
		t.Fatalf("expected a *wdk.Error, got %T", err)
	}
	if werr.Kind != wdk.KindInvalidParameter {
		t.Errorf("expected InvalidParameter, got %s", werr.Kind)
	}
}

func TestWallet_GetPublicKey_IdentityKeyVsDerived(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	identity, err := w.GetPublicKey(ctx, userID, "", wdk.GetPublicKeyArgs{IdentityKey: true})
	if err != nil {
		t.Fatalf("get identity key: %v", err)
	}
	if len(identity) == 0 {
		t.Fatal("expected a non-empty identity key")
	}

	derived, err := w.GetPublicKey(ctx, userID, "", wdk.GetPublicKeyArgs{
		ProtocolID: wdk.Protocol{SecurityLevel: 1, Name: "tests"},
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	if bytes.Equal(identity, derived) {
		t.Error("expected derived key to differ from identity key")
	}
}

func TestWallet_GetPublicKey_RequiresKeyIDWhenNotIdentity(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	_, err := w.GetPublicKey(ctx, userID, "", wdk.GetPublicKeyArgs{})
	if err == nil {
		t.Fatal("expected an error for a missing key id")
	}
}

func TestWallet_CreateSignatureThenVerify_RoundTrips(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	protocol := wdk.Protocol{SecurityLevel: 1, Name: "tests"}
	sig, err := w.CreateSignature(ctx, userID, "", wdk.CreateSignatureArgs{
		Data:       []byte("message to sign"),
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("create signature: %v", err)
	}

	ok, err := w.VerifySignature(ctx, userID, "", wdk.VerifySignatureArgs{
		Data:       []byte("message to sign"),
		Signature:  sig,
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("verify signature: %v", err)
	}
	if !ok {
		t.Error("expected the signature to verify")
	}
}

func TestWallet_EncryptThenDecrypt_RoundTrips(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	protocol := wdk.Protocol{SecurityLevel: 1, Name: "tests"}
	ct, err := w.Encrypt(ctx, userID, "", wdk.EncryptArgs{
		Plaintext:  []byte("a secret"),
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	pt, err := w.Decrypt(ctx, userID, "", wdk.DecryptArgs{
		Ciphertext: ct,
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if string(pt) != "a secret" {
		t.Errorf("expected round-tripped plaintext, got %q", pt)
	}
}

func TestWallet_CreateHmacThenVerify_RoundTrips(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	protocol := wdk.Protocol{SecurityLevel: 1, Name: "tests"}
	mac, err := w.CreateHmac(ctx, userID, "", wdk.CreateHmacArgs{
		Data:       []byte("a payload"),
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("create hmac: %v", err)
	}

	ok, err := w.VerifyHmac(ctx, userID, "", wdk.VerifyHmacArgs{
		Data:       []byte("a payload"),
		HMAC:       mac,
		ProtocolID: protocol,
		KeyID:      "1",
	})
	if err != nil {
		t.Fatalf("verify hmac: %v", err)
	}
	if !ok {
		t.Error("expected the hmac to verify")
	}
}

func TestWallet_CreateThenSignAction_ClearsPendingEntry(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	accept := true
	created, err := w.CreateAction(ctx, userID, "", wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 1000, LockingScript: []byte{0x76, 0xa9}},
		},
		Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if created.SignableTransaction == nil {
		t.Fatal("expected a signable transaction for a new tx")
	}

	signed, err := w.SignAction(ctx, userID, "", wdk.SignActionArgs{
		Reference: created.Reference,
		RawTx:     []byte("a fully signed raw transaction"),
	})
	if err != nil {
		t.Fatalf("sign action: %v", err)
	}
	if signed.Txid == "" {
		t.Fatal("expected a non-empty txid")
	}

	if _, err := w.SignAction(ctx, userID, "", wdk.SignActionArgs{
		Reference: created.Reference,
		RawTx:     []byte("a fully signed raw transaction"),
	}); err == nil {
		t.Fatal("expected the pending entry to have been consumed by the first sign_action")
	}
}

func TestWallet_SignAction_RejectsExpiredReference(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	accept := true
	created, err := w.CreateAction(ctx, userID, "", wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 1000, LockingScript: []byte{0x76, 0xa9}},
		},
		Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	time.Sleep(100 * time.Millisecond) // outlives the 50ms test TTL

	_, err = w.SignAction(ctx, userID, "", wdk.SignActionArgs{
		Reference: created.Reference,
		RawTx:     []byte("a fully signed raw transaction"),
	})
	if err == nil {
		t.Fatal("expected an error for an expired reference")
	}
}

func TestWallet_AbortAction_RejectsAlreadyTerminalAction(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	accept := true
	created, err := w.CreateAction(ctx, userID, "", wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 1000, LockingScript: []byte{0x76, 0xa9}},
		},
		Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	if _, err := w.AbortAction(ctx, userID, "", wdk.AbortActionArgs{Reference: created.Reference}); err != nil {
		t.Fatalf("abort action: %v", err)
	}
	if _, err := w.AbortAction(ctx, userID, "", wdk.AbortActionArgs{Reference: created.Reference}); err == nil {
		t.Fatal("expected an error aborting an already-terminal action")
	}
}

func TestWallet_ListOutputs_ReflectsInternalizedAction(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, []byte{0x00}, nil))
	tx.AddTxOut(wire.NewTxOut(1000, []byte{0x76, 0xa9, 0x14}))
	var rawTx bytes.Buffer
	if err := tx.Serialize(&rawTx); err != nil {
		t.Fatalf("serialize test tx: %v", err)
	}

	if _, err := w.InternalizeAction(ctx, userID, "", wdk.InternalizeActionArgs{
		Tx:          rawTx.Bytes(),
		Description: "incoming payment",
		Outputs: []wdk.InternalizeOutput{
			{
				OutputIndex:         0,
				Protocol:            wdk.BasketInsertionProtocol,
				InsertionRemittance: &wdk.InsertionRemittance{Basket: "incoming"},
			},
		},
	}); err != nil {
		t.Fatalf("internalize action: %v", err)
	}

	result, err := w.ListOutputs(ctx, userID, "", wdk.ListOutputsArgs{Limit: 10})
	if err != nil {
		t.Fatalf("list outputs: %v", err)
	}
	if result.TotalOutputs == 0 {
		t.Fatal("expected at least one output after internalizing an action")
	}
}

func TestWallet_RelinquishOutput_RejectsUnknownOutpoint(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	err := w.RelinquishOutput(ctx, userID, "", wdk.RelinquishOutputArgs{
		Outpoint: wdk.OutPoint{TxID: "0000000000000000000000000000000000000000000000000000000000dead", Vout: 0},
	})
	if err == nil {
		t.Fatal("expected an error relinquishing a non-existent output")
	}
}

func TestWallet_ListActions_ReturnsCreatedAction(t *testing.T) {
	w, userID := newTestWallet(t)
	ctx := context.Background()

	accept := true
	_, err := w.CreateAction(ctx, userID, "", wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Labels:      []string{"coffee"},
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 1000, LockingScript: []byte{0x76, 0xa9}},
		},
		Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	result, err := w.ListActions(ctx, userID, "", wdk.ListActionsArgs{
		Labels:        []string{"coffee"},
		IncludeLabels: true,
		Limit:         10,
	})
	if err != nil {
		t.Fatalf("list actions: %v", err)
	}
	if result.TotalActions == 0 {
		t.Fatal("expected at least one action matching the label")
	}
}

func TestBeefParty_Merge_FullerRecordWins(t *testing.T) {
	p := NewBeefParty()
	p.Merge(Fragment{Txid: "tx1", RawTx: []byte("raw")})
	p.Merge(Fragment{Txid: "tx1", RawTx: []byte("raw"), MerklePath: []byte("bump")})

	f, ok := p.Get("tx1")
	if !ok {
		t.Fatal("expected tx1 to be present")
	}
	if len(f.MerklePath) == 0 {
		t.Error("expected the fuller (merkle-path-carrying) fragment to win")
	}

	// A thinner record arriving after must not evict the fuller one.
	p.Merge(Fragment{Txid: "tx1", RawTx: []byte("raw")})
	f, _ = p.Get("tx1")
	if len(f.MerklePath) == 0 {
		t.Error("expected the fuller fragment to remain after a thinner merge")
	}
}

type fakeParentLookup map[string][]string

func (f fakeParentLookup) ParentTxids(ctx context.Context, txid string) ([]string, error) {
	return f[txid], nil
}

func TestBeefParty_Build_CapsAncestorDepthAndDedupes(t *testing.T) {
	p := NewBeefParty()
	// A chain six deep: tx0 -> tx1 -> ... -> tx5, only the first
	// maxParentDepth hops should be walked from tx0.
	lookup := fakeParentLookup{
		"tx0": {"tx1"},
		"tx1": {"tx2"},
		"tx2": {"tx3"},
		"tx3": {"tx4"},
		"tx4": {"tx5"},
	}
	for i := 0; i <= 5; i++ {
		txid := "tx" + string(rune('0'+i))
		p.Merge(Fragment{Txid: txid, RawTx: []byte(txid)})
	}

	beef, err := p.Build(context.Background(), lookup, []string{"tx0"}, nil)
	if err != nil {
		t.Fatalf("build beef: %v", err)
	}
	frags, err := decodeFragments(beef)
	if err != nil {
		t.Fatalf("decode beef: %v", err)
	}
	if len(frags) > maxParentDepth+1 {
		t.Errorf("expected at most %d fragments (depth cap), got %d", maxParentDepth+1, len(frags))
	}

	seen := make(map[string]bool)
	for _, f := range frags {
		if seen[f.Txid] {
			t.Errorf("duplicate fragment for txid %s", f.Txid)
		}
		seen[f.Txid] = true
	}
}

func TestBeefParty_Build_SkipsKnownTxids(t *testing.T) {
	p := NewBeefParty()
	p.Merge(Fragment{Txid: "tx0", RawTx: []byte("tx0")})
	p.Merge(Fragment{Txid: "tx1", RawTx: []byte("tx1")})
	lookup := fakeParentLookup{"tx0": {"tx1"}}

	beef, err := p.Build(context.Background(), lookup, []string{"tx0"}, []string{"tx1"})
	if err != nil {
		t.Fatalf("build beef: %v", err)
	}
	frags, err := decodeFragments(beef)
	if err != nil {
		t.Fatalf("decode beef: %v", err)
	}
	for _, f := range frags {
		if f.Txid == "tx1" {
			t.Error("expected tx1 to be skipped as already-known")
		}
	}
}
