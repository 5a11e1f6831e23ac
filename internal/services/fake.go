package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Fake is an in-memory wdk.ChainServices implementation for tests and local
// development: headers, raw transactions, and UTXO liveness are all seeded
// directly rather than fetched from a real chain-data provider (out of
// scope per spec.md §1).
type Fake struct {
	mu         sync.RWMutex
	headers    map[uint32]wdk.HeaderInfo
	tipHeight  uint32
	rawTxs     map[string][]byte
	merklePaths map[string]wdk.MerkleProof
	utxos      map[string]wdk.UTXOStatus
	broadcasts []wdk.BroadcastResult
}

// NewFake constructs an empty Fake.
func NewFake() *Fake {
	return &Fake{
		headers:     make(map[uint32]wdk.HeaderInfo),
		rawTxs:      make(map[string][]byte),
		merklePaths: make(map[string]wdk.MerkleProof),
		utxos:       make(map[string]wdk.UTXOStatus),
	}
}

// SeedHeader installs a header at a given height and advances the tip if
// this height is now the highest seeded.
func (f *Fake) SeedHeader(h wdk.HeaderInfo) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.headers[h.Height] = h
	if h.Height > f.tipHeight {
		f.tipHeight = h.Height
	}
}

// SeedRawTx installs a transaction's raw bytes, retrievable by GetRawTx.
func (f *Fake) SeedRawTx(txid string, raw []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rawTxs[txid] = raw
}

// SeedMerklePath installs a merkle proof, retrievable by
// GetMerklePathForTransaction.
func (f *Fake) SeedMerklePath(txid string, proof wdk.MerkleProof) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.merklePaths[txid] = proof
}

// SeedUTXOStatus installs a liveness classification for an outpoint.
func (f *Fake) SeedUTXOStatus(outpoint wdk.OutPoint, status wdk.UTXOStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.utxos[outpoint.String()] = status
}

// ChainHeaderByHeight returns a seeded header.
func (f *Fake) ChainHeaderByHeight(ctx context.Context, height uint32) (*wdk.HeaderInfo, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	h, ok := f.headers[height]
	if !ok {
		return nil, fmt.Errorf("no header seeded at height %d", height)
	}
	return &h, nil
}

// ChainTipHeight returns the highest seeded header height.
func (f *Fake) ChainTipHeight(ctx context.Context) (uint32, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.tipHeight, nil
}

// GetRawTx returns a seeded raw transaction.
func (f *Fake) GetRawTx(ctx context.Context, txid string) ([]byte, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	raw, ok := f.rawTxs[txid]
	if !ok {
		return nil, fmt.Errorf("no raw tx seeded for %s", txid)
	}
	return raw, nil
}

// GetMerklePathForTransaction returns a seeded merkle proof.
func (f *Fake) GetMerklePathForTransaction(ctx context.Context, txid string) (*wdk.MerkleProof, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	proof, ok := f.merklePaths[txid]
	if !ok {
		return nil, fmt.Errorf("no merkle path seeded for %s", txid)
	}
	return &proof, nil
}

// IsValidRootForHeight compares against the seeded header's merkle root.
func (f *Fake) IsValidRootForHeight(ctx context.Context, root string, height uint32) (bool, error) {
	h, err := f.ChainHeaderByHeight(ctx, height)
	if err != nil {
		return false, err
	}
	return h.MerkleRoot == root, nil
}

// GetUTXOStatus returns a seeded status, defaulting to unknown.
func (f *Fake) GetUTXOStatus(ctx context.Context, outpoint wdk.OutPoint) (wdk.UTXOStatus, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	status, ok := f.utxos[outpoint.String()]
	if !ok {
		return wdk.UTXOStatusUnknown, nil
	}
	return status, nil
}

// IsUTXO reports whether the outpoint is seeded as unspent.
func (f *Fake) IsUTXO(ctx context.Context, outpoint wdk.OutPoint) (bool, error) {
	status, err := f.GetUTXOStatus(ctx, outpoint)
	if err != nil {
		return false, err
	}
	return status == wdk.UTXOStatusUnspent, nil
}

// PostBeef always accepts, recording the call for test assertions.
func (f *Fake) PostBeef(ctx context.Context, beef []byte) ([]wdk.BroadcastResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	result := wdk.BroadcastResult{Status: wdk.BroadcastAccepted}
	f.broadcasts = append(f.broadcasts, result)
	return []wdk.BroadcastResult{result}, nil
}

// Broadcasts returns every PostBeef call made so far, for test assertions.
func (f *Fake) Broadcasts() []wdk.BroadcastResult {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]wdk.BroadcastResult, len(f.broadcasts))
	copy(out, f.broadcasts)
	return out
}

var _ wdk.ChainServices = (*Fake)(nil)
