// Package signer implements the pure algorithms behind create_action,
// sign_action, internalize_action, acquire_direct_certificate, and
// prove_certificate (spec.md §4.3), orchestrating the Storage Provider, the
// Key Deriver, and chain services without exposing any HTTP surface itself.
package signer

import (
	"log"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Signer orchestrates the action pipeline for one wallet instance.
type Signer struct {
	repos     *database.Repositories
	keys      wdk.KeyDeriver
	chain     wdk.ChainServices
	rand      wdk.Randomizer
	certifier wdk.Certifier
	logger    *log.Logger
}

// Config bundles Signer's collaborators. Certifier is optional: it is only
// consulted by acquire_direct_certificate's issuance path, and a nil value
// simply makes that path unavailable.
type Config struct {
	Repos     *database.Repositories
	Keys      wdk.KeyDeriver
	Chain     wdk.ChainServices
	Rand      wdk.Randomizer
	Certifier wdk.Certifier
	Logger    *log.Logger
}

// New constructs a Signer.
func New(cfg Config) *Signer {
	logger := cfg.Logger
	if logger == nil {
		logger = log.New(log.Writer(), "[Signer] ", log.LstdFlags)
	}
	return &Signer{
		repos:     cfg.Repos,
		keys:      cfg.Keys,
		chain:     cfg.Chain,
		rand:      cfg.Rand,
		certifier: cfg.Certifier,
		logger:    logger,
	}
}

// defaultPendingTTL is the window a create_action reference stays resolvable
// by a matching sign_action call (spec.md §4.1).
const defaultPendingTTL = 300 * time.Second
