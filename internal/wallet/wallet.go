// Package wallet implements the BRC-100 Wallet façade (spec.md §4.1): the
// entry point that validates originators and arguments, routes to the
// Signer/Storage/Services collaborators, and holds the per-wallet BEEF
// accumulator and pending-sign-action cache.
package wallet

import (
	"log"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/signer"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// defaultPendingTTL is the window a create_action reference stays
// resolvable by sign_action (spec.md §4.1).
const defaultPendingTTL = 300 * time.Second

// maxOriginatorBytes is the BRC-100 originator length ceiling (spec.md
// §4.1: "validates the originator (≤250 UTF-8 bytes or null)").
const maxOriginatorBytes = 250

// Config bundles Wallet's collaborators.
type Config struct {
	Repos      *database.Repositories
	Keys       wdk.KeyDeriver
	Chain      wdk.ChainServices
	Rand       wdk.Randomizer
	Signer     *signer.Signer
	Network    string
	Version    string
	PendingTTL time.Duration
	Logger     *log.Logger
}

// Wallet is the BRC-100 façade for one underlying storage/signer/services
// stack. It is stateless with respect to which user a call concerns (every
// method takes userID explicitly, matching wdk.Wallet), but holds process
// state shared across all of that stack's users: the BEEF accumulator and
// the pending-sign-action cache (spec.md §4.1, §7: "per-Wallet, per-process;
// writes are serialized by the façade").
type Wallet struct {
	repos   *database.Repositories
	keys    wdk.KeyDeriver
	chain   wdk.ChainServices
	rand    wdk.Randomizer
	signer  *signer.Signer
	network string
	version string
	pending *pendingCache
	beef    *BeefParty
	logger  *log.Logger
}

// New constructs a Wallet.
func New(cfg Config) *Wallet {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Wallet] ", log.LstdFlags)
	}
	network := cfg.Network
	if network == "" {
		network = "mainnet"
	}
	version := cfg.Version
	if version == "" {
		version = "1.0.0"
	}
	ttl := cfg.PendingTTL
	if ttl <= 0 {
		ttl = defaultPendingTTL
	}
	return &Wallet{
		repos:   cfg.Repos,
		keys:    cfg.Keys,
		chain:   cfg.Chain,
		rand:    cfg.Rand,
		signer:  cfg.Signer,
		network: network,
		version: version,
		pending: newPendingCache(ttl),
		beef:    NewBeefParty(),
		logger:  logger,
	}
}

// validateOriginator enforces spec.md §4.1's originator constraint. An
// empty string is the documented "null" case and always passes.
func validateOriginator(originator string) error {
	if originator == "" {
		return nil
	}
	if len(originator) > maxOriginatorBytes {
		return wdk.InvalidParameter("originator", "must be at most 250 UTF-8 bytes or null")
	}
	return nil
}

var _ wdk.Wallet = (*Wallet)(nil)
