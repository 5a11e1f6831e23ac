// Package services provides the concrete stand-in for the external chain
// data collaborator (spec.md §6.6's ChainServices contract): an in-memory
// fake for tests and a priority-ordered multiplexer fanning calls out to
// several registered providers, the way a wallet would juggle WhatsOnChain,
// ARC, and Bitails without any one of them being load-bearing.
package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Logger is the minimal logging surface this package depends on, matching
// the rest of the module's stdlib *log.Logger usage.
type Logger interface {
	Printf(format string, args ...any)
}

// Multiplexer fans ChainServices calls out to a priority-ordered list of
// providers, returning the first success and logging the rest as
// attempted-and-failed. No single provider failing brings the wallet down.
type Multiplexer struct {
	providers []wdk.ChainServices
	logger    Logger

	mu         sync.RWMutex
	lastHealthy int // index into providers of the most recently successful one
}

// NewMultiplexer constructs a Multiplexer over providers in priority order
// (first is tried first).
func NewMultiplexer(logger Logger, providers ...wdk.ChainServices) *Multiplexer {
	return &Multiplexer{providers: providers, logger: logger}
}

func (m *Multiplexer) order() []int {
	m.mu.RLock()
	start := m.lastHealthy
	m.mu.RUnlock()

	order := make([]int, 0, len(m.providers))
	for i := 0; i < len(m.providers); i++ {
		order = append(order, (start+i)%len(m.providers))
	}
	return order
}

func (m *Multiplexer) markHealthy(idx int) {
	m.mu.Lock()
	m.lastHealthy = idx
	m.mu.Unlock()
}

// ChainHeaderByHeight tries each provider in turn until one succeeds.
func (m *Multiplexer) ChainHeaderByHeight(ctx context.Context, height uint32) (*wdk.HeaderInfo, error) {
	var lastErr error
	for _, idx := range m.order() {
		h, err := m.providers[idx].ChainHeaderByHeight(ctx, height)
		if err == nil {
			m.markHealthy(idx)
			return h, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed ChainHeaderByHeight(%d): %v", idx, height, err)
	}
	return nil, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// ChainTipHeight tries each provider in turn until one succeeds.
func (m *Multiplexer) ChainTipHeight(ctx context.Context) (uint32, error) {
	var lastErr error
	for _, idx := range m.order() {
		h, err := m.providers[idx].ChainTipHeight(ctx)
		if err == nil {
			m.markHealthy(idx)
			return h, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed ChainTipHeight: %v", idx, err)
	}
	return 0, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// GetRawTx tries each provider in turn until one succeeds.
func (m *Multiplexer) GetRawTx(ctx context.Context, txid string) ([]byte, error) {
	var lastErr error
	for _, idx := range m.order() {
		tx, err := m.providers[idx].GetRawTx(ctx, txid)
		if err == nil {
			m.markHealthy(idx)
			return tx, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed GetRawTx(%s): %v", idx, txid, err)
	}
	return nil, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// GetMerklePathForTransaction tries each provider in turn until one succeeds.
func (m *Multiplexer) GetMerklePathForTransaction(ctx context.Context, txid string) (*wdk.MerkleProof, error) {
	var lastErr error
	for _, idx := range m.order() {
		proof, err := m.providers[idx].GetMerklePathForTransaction(ctx, txid)
		if err == nil {
			m.markHealthy(idx)
			return proof, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed GetMerklePathForTransaction(%s): %v", idx, txid, err)
	}
	return nil, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// IsValidRootForHeight tries each provider in turn until one succeeds.
func (m *Multiplexer) IsValidRootForHeight(ctx context.Context, root string, height uint32) (bool, error) {
	var lastErr error
	for _, idx := range m.order() {
		ok, err := m.providers[idx].IsValidRootForHeight(ctx, root, height)
		if err == nil {
			m.markHealthy(idx)
			return ok, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed IsValidRootForHeight(%s, %d): %v", idx, root, height, err)
	}
	return false, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// GetUTXOStatus tries each provider in turn until one succeeds.
func (m *Multiplexer) GetUTXOStatus(ctx context.Context, outpoint wdk.OutPoint) (wdk.UTXOStatus, error) {
	var lastErr error
	for _, idx := range m.order() {
		status, err := m.providers[idx].GetUTXOStatus(ctx, outpoint)
		if err == nil {
			m.markHealthy(idx)
			return status, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed GetUTXOStatus(%s): %v", idx, outpoint, err)
	}
	return wdk.UTXOStatusUnknown, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// IsUTXO tries each provider in turn until one succeeds.
func (m *Multiplexer) IsUTXO(ctx context.Context, outpoint wdk.OutPoint) (bool, error) {
	var lastErr error
	for _, idx := range m.order() {
		ok, err := m.providers[idx].IsUTXO(ctx, outpoint)
		if err == nil {
			m.markHealthy(idx)
			return ok, nil
		}
		lastErr = err
		m.logger.Printf("chain services: provider %d failed IsUTXO(%s): %v", idx, outpoint, err)
	}
	return false, fmt.Errorf("all chain services providers failed: %w", lastErr)
}

// PostBeef broadcasts to every provider (not just the first healthy one) so
// a transaction reaches the network even if the "healthy" provider is
// selectively dropping it, and merges their per-txid verdicts.
func (m *Multiplexer) PostBeef(ctx context.Context, beef []byte) ([]wdk.BroadcastResult, error) {
	merged := map[string]wdk.BroadcastResult{}
	var anySucceeded bool
	var lastErr error

	for idx, p := range m.providers {
		results, err := p.PostBeef(ctx, beef)
		if err != nil {
			lastErr = err
			m.logger.Printf("chain services: provider %d failed PostBeef: %v", idx, err)
			continue
		}
		anySucceeded = true
		for _, r := range results {
			existing, ok := merged[r.Txid]
			if !ok || (existing.Status != wdk.BroadcastAccepted && r.Status == wdk.BroadcastAccepted) {
				merged[r.Txid] = r
			}
		}
	}

	if !anySucceeded {
		return nil, fmt.Errorf("all chain services providers failed to post beef: %w", lastErr)
	}

	out := make([]wdk.BroadcastResult, 0, len(merged))
	for _, r := range merged {
		out = append(out, r)
	}
	return out, nil
}

var _ wdk.ChainServices = (*Multiplexer)(nil)
