package wallet

import (
	"context"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// GetVersion returns the façade's own version string (spec.md §6.1).
func (w *Wallet) GetVersion(ctx context.Context, userID int64, originator string) (wdk.VersionResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.VersionResult{}, err
	}
	return wdk.VersionResult{Version: w.version}, nil
}

// GetNetwork reports which BSV network this wallet's keys and chain
// services are configured for (spec.md §6.1).
func (w *Wallet) GetNetwork(ctx context.Context, userID int64, originator string) (wdk.NetworkResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.NetworkResult{}, err
	}
	return wdk.NetworkResult{Network: w.network}, nil
}
