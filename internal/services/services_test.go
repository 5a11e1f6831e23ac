package services

import (
	"context"
	"log"
	"testing"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

func TestFake_ChainHeaderByHeight(t *testing.T) {
	f := NewFake()
	f.SeedHeader(wdk.HeaderInfo{Height: 100, Hash: "h100", MerkleRoot: "r100"})

	h, err := f.ChainHeaderByHeight(context.Background(), 100)
	if err != nil {
		t.Fatalf("chain header by height: %v", err)
	}
	if h.Hash != "h100" {
		t.Errorf("expected hash h100, got %s", h.Hash)
	}

	if _, err := f.ChainHeaderByHeight(context.Background(), 200); err == nil {
		t.Error("expected error for unseeded height")
	}
}

func TestFake_IsValidRootForHeight(t *testing.T) {
	f := NewFake()
	f.SeedHeader(wdk.HeaderInfo{Height: 42, MerkleRoot: "correct-root"})

	ctx := context.Background()
	ok, err := f.IsValidRootForHeight(ctx, "correct-root", 42)
	if err != nil {
		t.Fatalf("is valid root: %v", err)
	}
	if !ok {
		t.Error("expected root to validate")
	}

	ok, err = f.IsValidRootForHeight(ctx, "wrong-root", 42)
	if err != nil {
		t.Fatalf("is valid root (wrong): %v", err)
	}
	if ok {
		t.Error("expected wrong root not to validate")
	}
}

func TestFake_UTXOStatus(t *testing.T) {
	f := NewFake()
	outpoint := wdk.OutPoint{TxID: "abc123", Vout: 0}
	f.SeedUTXOStatus(outpoint, wdk.UTXOStatusUnspent)

	ctx := context.Background()
	isUTXO, err := f.IsUTXO(ctx, outpoint)
	if err != nil {
		t.Fatalf("is utxo: %v", err)
	}
	if !isUTXO {
		t.Error("expected outpoint to be a live utxo")
	}

	unseeded := wdk.OutPoint{TxID: "def456", Vout: 1}
	status, err := f.GetUTXOStatus(ctx, unseeded)
	if err != nil {
		t.Fatalf("get utxo status (unseeded): %v", err)
	}
	if status != wdk.UTXOStatusUnknown {
		t.Errorf("expected unknown status for unseeded outpoint, got %s", status)
	}
}

type stubLogger struct{}

func (stubLogger) Printf(format string, args ...any) {}

func TestMultiplexer_FallsBackOnFailure(t *testing.T) {
	failing := NewFake() // no headers seeded -> every call fails
	healthy := NewFake()
	healthy.SeedHeader(wdk.HeaderInfo{Height: 10, Hash: "healthy-hash", MerkleRoot: "healthy-root"})

	mux := NewMultiplexer(log.Default(), failing, healthy)

	h, err := mux.ChainHeaderByHeight(context.Background(), 10)
	if err != nil {
		t.Fatalf("chain header by height: %v", err)
	}
	if h.Hash != "healthy-hash" {
		t.Errorf("expected fallback provider's header, got %s", h.Hash)
	}
}

func TestMultiplexer_PostBeef_MergesAcrossProviders(t *testing.T) {
	a := NewFake()
	b := NewFake()
	mux := NewMultiplexer(stubLogger{}, a, b)

	results, err := mux.PostBeef(context.Background(), []byte{0x01, 0x02})
	if err != nil {
		t.Fatalf("post beef: %v", err)
	}
	if len(results) == 0 {
		t.Fatal("expected at least one merged broadcast result")
	}
	for _, r := range results {
		if r.Status != wdk.BroadcastAccepted {
			t.Errorf("expected accepted status, got %s", r.Status)
		}
	}
}
