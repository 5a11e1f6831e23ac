package signer

import (
	"bytes"
	"context"
	"os"
	"testing"

	"github.com/btcsuite/btcd/wire"
	_ "github.com/lib/pq" // PostgreSQL driver

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/keyderiver"
	"github.com/certen/bsv-wallet-toolbox/internal/randutil"
	"github.com/certen/bsv-wallet-toolbox/internal/services"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// mustSerializeTx builds a minimal legacy transaction with one output per
// declared value, for internalize_action tests that need real bytes at
// args.Tx to parse satoshis out of.
func mustSerializeTx(t *testing.T, values ...int64) []byte {
	t.Helper()
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.AddTxIn(wire.NewTxIn(&wire.OutPoint{Index: 0xffffffff}, []byte{0x00}, nil))
	for _, v := range values {
		tx.AddTxOut(wire.NewTxOut(v, []byte{0x76, 0xa9, 0x14}))
	}
	var buf bytes.Buffer
	if err := tx.Serialize(&buf); err != nil {
		t.Fatalf("serialize test tx: %v", err)
	}
	return buf.Bytes()
}

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

func newTestSigner(t *testing.T) (*Signer, int64) {
	t.Helper()
	if testClient == nil {
		t.Skip("test database not configured")
	}

	repos := database.NewRepositories(testClient)
	rootKey := bytes.Repeat([]byte{0x11}, 32)
	keys, err := keyderiver.New(rootKey)
	if err != nil {
		t.Fatalf("new key deriver: %v", err)
	}

	s := New(Config{
		Repos: repos,
		Keys:  keys,
		Chain: services.NewFake(),
		Rand:  randutil.New(),
	})

	user, err := repos.Users.FindOrCreateByIdentityKey(context.Background(), "02signer-test")
	if err != nil {
		t.Fatalf("create test user: %v", err)
	}
	return s, user.UserID
}

func TestSigner_CreateAction_NewTxProducesSignableTransaction(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	result, err := s.CreateAction(ctx, userID, wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 1000, LockingScript: []byte{0x76, 0xa9}},
		},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}
	if result.Reference == "" {
		t.Fatal("expected a non-empty reference")
	}
	if result.SignableTransaction == nil {
		t.Fatal("expected a signable transaction for a new tx")
	}
	if result.SignableTransaction.Reference != result.Reference {
		t.Errorf("expected signable tx reference to match result reference")
	}
}

func TestSigner_CreateAction_RequiresDescription(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	_, err := s.CreateAction(ctx, userID, wdk.CreateActionArgs{})
	if err == nil {
		t.Fatal("expected an error for a missing description")
	}
	werr, ok := err.(*wdk.Error)
	if !ok {
		t.Fatalf("expected a *wdk.Error, got %T", err)
	}
	if werr.Kind != wdk.KindInvalidParameter {
		t.Errorf("expected InvalidParameter, got %s", werr.Kind)
	}
}

func TestSigner_CreateAndSignAction_UndelayedBroadcastSucceeds(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	accept := false
	created, err := s.CreateAction(ctx, userID, wdk.CreateActionArgs{
		Description: "pay the coffee shop",
		Outputs: []wdk.CreateActionOutput{
			{Satoshis: 500, LockingScript: []byte{0x76, 0xa9}},
		},
		Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
	})
	if err != nil {
		t.Fatalf("create action: %v", err)
	}

	pending := wdk.PendingSignAction{
		Reference: created.Reference,
		UserID:    userID,
		Args: wdk.CreateActionArgs{
			Options: wdk.CreateActionOptions{AcceptDelayedBroadcast: &accept},
		},
	}

	signed, err := s.SignAction(ctx, pending, wdk.SignActionArgs{
		Reference: created.Reference,
		RawTx:     []byte("a fully signed raw transaction"),
	})
	if err != nil {
		t.Fatalf("sign action: %v", err)
	}
	if signed.Txid == "" {
		t.Fatal("expected a non-empty txid")
	}
}

func TestSigner_SignAction_RejectsMismatchedReference(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	pending := wdk.PendingSignAction{Reference: "ref-a", UserID: userID}
	_, err := s.SignAction(ctx, pending, wdk.SignActionArgs{Reference: "ref-b", RawTx: []byte("x")})
	if err == nil {
		t.Fatal("expected an error for a mismatched reference")
	}
}

func TestSigner_InternalizeAction_BasketInsertionIsNewTx(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	result, err := s.InternalizeAction(ctx, userID, wdk.InternalizeActionArgs{
		Tx:          mustSerializeTx(t, 250),
		Description: "incoming custom token",
		Outputs: []wdk.InternalizeOutput{
			{
				OutputIndex: 0,
				Protocol:    wdk.BasketInsertionProtocol,
				InsertionRemittance: &wdk.InsertionRemittance{
					Basket: "tokens",
					Tags:   []string{"erc-like"},
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("internalize action: %v", err)
	}
	if result.IsMerge {
		t.Error("expected a fresh transaction, not a merge")
	}
	if result.TxID == "" {
		t.Fatal("expected a non-empty txid")
	}
	// basket insertion impacts satoshis only when displacing an existing
	// change output; a fresh insertion leaves the delta at zero.
	if result.Satoshis != 0 {
		t.Errorf("expected satoshis delta 0 for a new basket insertion, got %d", result.Satoshis)
	}
}

func TestSigner_InternalizeAction_WalletPaymentNewTxAddsSatoshis(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	result, err := s.InternalizeAction(ctx, userID, wdk.InternalizeActionArgs{
		Tx:          mustSerializeTx(t, 7000),
		Description: "incoming payment",
		Outputs: []wdk.InternalizeOutput{
			{
				OutputIndex: 0,
				Protocol:    wdk.WalletPaymentProtocol,
				PaymentRemittance: &wdk.PaymentRemittance{
					SenderIdentityKey: "02sender",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("internalize action: %v", err)
	}
	if result.IsMerge {
		t.Error("expected a fresh transaction, not a merge")
	}
	if result.Satoshis != 7000 {
		t.Errorf("expected satoshis delta 7000 for a new-tx wallet payment, got %d", result.Satoshis)
	}
}

func TestSigner_InternalizeAction_WalletPaymentMergeWithPreviouslyUntrackedAddsSatoshis(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	rawTx := mustSerializeTx(t, 100, 5000)

	first, err := s.InternalizeAction(ctx, userID, wdk.InternalizeActionArgs{
		Tx:          rawTx,
		Description: "incoming custom token",
		Outputs: []wdk.InternalizeOutput{
			{
				OutputIndex: 0,
				Protocol:    wdk.BasketInsertionProtocol,
				InsertionRemittance: &wdk.InsertionRemittance{
					Basket: "tokens",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("first internalize action: %v", err)
	}
	if first.IsMerge {
		t.Fatal("expected the first call to create a fresh transaction")
	}

	second, err := s.InternalizeAction(ctx, userID, wdk.InternalizeActionArgs{
		Tx:          rawTx,
		Description: "incoming custom token",
		Outputs: []wdk.InternalizeOutput{
			{
				OutputIndex: 1,
				Protocol:    wdk.WalletPaymentProtocol,
				PaymentRemittance: &wdk.PaymentRemittance{
					SenderIdentityKey: "02sender",
				},
			},
		},
	})
	if err != nil {
		t.Fatalf("second internalize action: %v", err)
	}
	if !second.IsMerge {
		t.Fatal("expected the second call to merge into the existing transaction")
	}
	if second.Satoshis != 5000 {
		t.Errorf("expected satoshis delta 5000 for a previously-untracked wallet payment merge, got %d", second.Satoshis)
	}
}

func TestSigner_AcquireDirectCertificate_MintsAndSigns(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	cert, err := s.AcquireDirectCertificate(ctx, userID, wdk.AcquireCertificateArgs{
		Type:      "age-over-18",
		Certifier: "02certifier",
		Subject:   "02subject",
		Fields: []wdk.CertificateFieldInput{
			{Name: "dateOfBirth", Value: "2000-01-01"},
		},
	})
	if err != nil {
		t.Fatalf("acquire certificate: %v", err)
	}
	if cert.CertificateID == "" {
		t.Fatal("expected a non-empty certificate id")
	}
	if len(cert.Signature) == 0 {
		t.Error("expected a non-empty signature")
	}
}

func TestSigner_ProveCertificate_DisclosesOnlyRequestedFields(t *testing.T) {
	s, userID := newTestSigner(t)
	ctx := context.Background()

	cert, err := s.AcquireDirectCertificate(ctx, userID, wdk.AcquireCertificateArgs{
		Type:      "kyc",
		Certifier: "02certifier",
		Subject:   "02subject",
		Fields: []wdk.CertificateFieldInput{
			{Name: "name", Value: "Ada"},
			{Name: "country", Value: "NZ"},
		},
	})
	if err != nil {
		t.Fatalf("acquire certificate: %v", err)
	}

	proof, err := s.ProveCertificate(ctx, wdk.ProveCertificateArgs{
		CertificateID:  cert.CertificateID,
		FieldsToReveal: []string{"country"},
		Verifier:       "02verifier",
	})
	if err != nil {
		t.Fatalf("prove certificate: %v", err)
	}
	if _, ok := proof.Certificate.Fields["country"]; !ok {
		t.Error("expected country field to be disclosed")
	}
	if _, ok := proof.Certificate.Fields["name"]; ok {
		t.Error("expected name field not to be disclosed")
	}
}
