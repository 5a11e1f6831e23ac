package wallet

import (
	"context"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
)

// dbParentLookup resolves a txid's declared ancestors by decoding the
// owning transaction's stored input BEEF, implementing ParentLookup over
// the Storage Provider (spec.md §4.2 step 6's parent-traversal source).
type dbParentLookup struct {
	repos *database.Repositories
}

func (l dbParentLookup) ParentTxids(ctx context.Context, txid string) ([]string, error) {
	tx, err := l.repos.Transactions.GetByTxid(ctx, txid)
	if err != nil {
		return nil, nil
	}
	if len(tx.InputBeef) == 0 {
		return nil, nil
	}
	frags, err := decodeFragments(tx.InputBeef)
	if err != nil {
		// Input BEEF sourced from an external caller may not be in this
		// toolbox's own wire form; a non-decodable ancestry simply yields
		// no further parents rather than a hard failure, since the subject
		// txid's own fragment has already been resolved.
		return nil, nil
	}
	txids := make([]string, 0, len(frags))
	for _, f := range frags {
		if f.Txid != txid {
			txids = append(txids, f.Txid)
		}
	}
	return txids, nil
}

func (w *Wallet) parentLookup() ParentLookup {
	return dbParentLookup{repos: w.repos}
}
