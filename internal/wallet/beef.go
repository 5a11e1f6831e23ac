package wallet

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/binary"
	"sync"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// maxParentDepth caps BeefParty.Build's ancestor walk, guarding against
// cyclic source-txid data (spec.md REDESIGN FLAGS: "MUST cap recursion
// depth (≈4) and deduplicate by fragment hash").
const maxParentDepth = 4

// Fragment is one constituent of an Atomic BEEF: a raw transaction, plus
// its BUMP merkle path once mined (spec.md GLOSSARY "BEEF"/"BUMP").
type Fragment struct {
	Txid       string
	RawTx      []byte
	MerklePath []byte
}

func (f Fragment) fuller() bool { return len(f.MerklePath) > 0 }

func (f Fragment) hash() [32]byte {
	h := sha256.New()
	h.Write([]byte(f.Txid))
	h.Write(f.RawTx)
	h.Write(f.MerklePath)
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// ParentLookup resolves the ancestor txids a given txid's inputs declare,
// the collaborator BeefParty.Build walks to assemble a multi-txid bundle.
type ParentLookup interface {
	ParentTxids(ctx context.Context, txid string) ([]string, error)
}

// BeefParty is the per-wallet BEEF accumulator (spec.md §4.1): every
// fragment create_action, sign_action, or internalize_action has produced
// or consumed is merged here, so later calls can elide anything the
// caller's knownTxids already names. Merges are commutative for distinct
// txids; for duplicates the fuller record (carrying a merkle path) wins
// (spec.md §7's BEEF-accumulator invariant).
type BeefParty struct {
	mu        sync.Mutex
	fragments map[string]Fragment
}

// NewBeefParty constructs an empty accumulator.
func NewBeefParty() *BeefParty {
	return &BeefParty{fragments: make(map[string]Fragment)}
}

// Merge folds a fragment into the accumulator.
func (p *BeefParty) Merge(f Fragment) {
	if f.Txid == "" {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	existing, ok := p.fragments[f.Txid]
	if !ok || (!existing.fuller() && f.fuller()) {
		p.fragments[f.Txid] = f
	}
}

// Get returns the fragment held for a txid, if any.
func (p *BeefParty) Get(txid string) (Fragment, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	f, ok := p.fragments[txid]
	return f, ok
}

// Build assembles a BEEF-shaped byte stream for the given subject txids:
// each selected txid plus every ancestor fragment resolvable through the
// accumulator or lookup, skipping anything named in knownTxids and
// deduplicating identical fragments by content hash (spec.md §4.2 step 6,
// §7 "txid-only completion").
func (p *BeefParty) Build(ctx context.Context, lookup ParentLookup, subjectTxids, knownTxids []string) (wdk.ByteSlice, error) {
	known := make(map[string]bool, len(knownTxids))
	for _, t := range knownTxids {
		known[t] = true
	}
	visited := make(map[string]bool)
	var ordered []Fragment

	var walk func(txid string, depth int) error
	walk = func(txid string, depth int) error {
		if known[txid] || visited[txid] {
			return nil
		}
		visited[txid] = true
		if frag, ok := p.Get(txid); ok {
			ordered = append(ordered, frag)
		}
		if depth >= maxParentDepth || lookup == nil {
			return nil
		}
		parents, err := lookup.ParentTxids(ctx, txid)
		if err != nil {
			return err
		}
		for _, parent := range parents {
			if err := walk(parent, depth+1); err != nil {
				return err
			}
		}
		return nil
	}

	for _, txid := range subjectTxids {
		if err := walk(txid, 0); err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "assemble beef: %v", err)
		}
	}
	return encodeFragments(ordered), nil
}

// encodeFragments serializes fragments into this toolbox's own
// length-prefixed wire form. A real BRC-62 BEEF/BUMP binary codec depends
// on full transaction parsing, which is the underlying BSV SDK's job and
// out of scope here (mirrors internal/signer's assembleUnsigned placeholder
// for the same reason); this only needs to round-trip enough structure for
// ParentLookup and the pending-action cache to resolve against.
func encodeFragments(frags []Fragment) wdk.ByteSlice {
	seen := make(map[[32]byte]bool, len(frags))
	var buf bytes.Buffer
	buf.Write(make([]byte, 4)) // count placeholder, patched below
	var count uint32
	for _, f := range frags {
		h := f.hash()
		if seen[h] {
			continue
		}
		seen[h] = true
		count++
		writeLP(&buf, []byte(f.Txid))
		writeLP(&buf, f.RawTx)
		writeLP(&buf, f.MerklePath)
	}
	out := buf.Bytes()
	binary.LittleEndian.PutUint32(out[0:4], count)
	return out
}

func writeLP(buf *bytes.Buffer, b []byte) {
	var lenBuf [4]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(b)))
	buf.Write(lenBuf[:])
	buf.Write(b)
}

// decodeFragments reverses encodeFragments, used by dbParentLookup to mine
// ancestor txids out of a transaction's stored input BEEF.
func decodeFragments(data []byte) ([]Fragment, error) {
	if len(data) < 4 {
		return nil, wdk.NewError(wdk.KindRuntime, "truncated beef: missing fragment count")
	}
	count := binary.LittleEndian.Uint32(data[0:4])
	rest := data[4:]
	frags := make([]Fragment, 0, count)
	for i := uint32(0); i < count; i++ {
		txid, rest2, err := readLP(rest)
		if err != nil {
			return nil, err
		}
		rawTx, rest3, err := readLP(rest2)
		if err != nil {
			return nil, err
		}
		merklePath, rest4, err := readLP(rest3)
		if err != nil {
			return nil, err
		}
		frags = append(frags, Fragment{Txid: string(txid), RawTx: rawTx, MerklePath: merklePath})
		rest = rest4
	}
	return frags, nil
}

func readLP(data []byte) (value, rest []byte, err error) {
	if len(data) < 4 {
		return nil, nil, wdk.NewError(wdk.KindRuntime, "truncated beef: missing length prefix")
	}
	n := binary.LittleEndian.Uint32(data[0:4])
	data = data[4:]
	if uint64(len(data)) < uint64(n) {
		return nil, nil, wdk.NewError(wdk.KindRuntime, "truncated beef: short fragment body")
	}
	return data[:n], data[n:], nil
}
