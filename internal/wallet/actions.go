package wallet

import (
	"context"
	"time"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// CreateAction runs create_action (spec.md §4.3, §6.1): delegates to the
// Signer, caches a signable-transaction result against its reference for a
// later sign_action call, and folds any returned fragment into the BEEF
// accumulator.
func (w *Wallet) CreateAction(ctx context.Context, userID int64, originator string, args wdk.CreateActionArgs) (wdk.CreateActionResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.CreateActionResult{}, err
	}

	result, err := w.signer.CreateAction(ctx, userID, args)
	if err != nil {
		return wdk.CreateActionResult{}, err
	}

	if result.SignableTransaction != nil {
		w.pending.put(wdk.PendingSignAction{
			Reference:  result.SignableTransaction.Reference,
			UserID:     userID,
			Args:       args,
			KnownTxids: args.Options.KnownTxids,
			CreatedAt:  time.Now(),
		})
	}
	if result.Txid != "" && len(result.Tx) > 0 {
		w.beef.Merge(Fragment{Txid: result.Txid, RawTx: result.Tx})
	}
	return *result, nil
}

// SignAction runs sign_action (spec.md §4.3, §6.1): resolves the pending
// entry create_action left, delegates to the Signer, and on success drops
// the pending entry and folds the resulting fragment into the BEEF
// accumulator. Undelayed-broadcast failures propagate as the Signer's
// ReviewActions error; the pending entry is left in place so a caller can
// retry sign_action within the TTL.
func (w *Wallet) SignAction(ctx context.Context, userID int64, originator string, args wdk.SignActionArgs) (wdk.SignActionResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.SignActionResult{}, err
	}

	pending, ok := w.pending.get(args.Reference, time.Now())
	if !ok {
		return wdk.SignActionResult{}, wdk.InvalidParameter("reference", "no pending create_action found, or it expired")
	}

	result, err := w.signer.SignAction(ctx, pending, args)
	if err != nil {
		return wdk.SignActionResult{}, err
	}

	w.pending.delete(args.Reference)
	if result.Txid != "" {
		w.beef.Merge(Fragment{Txid: result.Txid, RawTx: result.Tx})
	}
	return *result, nil
}

// AbortAction cancels a pending action that has not yet broadcast
// (spec.md §6.1). Used directly by callers and by the Permissions Manager
// to roll back a denied spend.
func (w *Wallet) AbortAction(ctx context.Context, userID int64, originator string, args wdk.AbortActionArgs) (wdk.AbortActionResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.AbortActionResult{}, err
	}

	tx, err := w.repos.Transactions.GetByReference(ctx, userID, args.Reference)
	if err != nil {
		return wdk.AbortActionResult{}, wdk.InvalidParameter("reference", "no matching action found")
	}
	if tx.Status.IsTerminal() {
		return wdk.AbortActionResult{}, wdk.NewError(wdk.KindInvalidParameter, "action %q is already in a terminal state %q", args.Reference, tx.Status)
	}
	if err := w.repos.Transactions.UpdateStatus(ctx, tx.TransactionID, wdk.TxStatusAborted); err != nil {
		return wdk.AbortActionResult{}, wdk.NewError(wdk.KindRuntime, "abort action: %v", err)
	}
	w.pending.delete(args.Reference)
	return wdk.AbortActionResult{Aborted: true}, nil
}

// InternalizeAction runs internalize_action (spec.md §4.3, §6.1),
// delegating the transaction parsing and merge/new-action classification entirely
// to the Signer, then folding the subject fragment into the accumulator.
func (w *Wallet) InternalizeAction(ctx context.Context, userID int64, originator string, args wdk.InternalizeActionArgs) (wdk.InternalizeActionResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.InternalizeActionResult{}, err
	}

	result, err := w.signer.InternalizeAction(ctx, userID, args)
	if err != nil {
		return wdk.InternalizeActionResult{}, err
	}
	if result.TxID != "" {
		w.beef.Merge(Fragment{Txid: result.TxID, RawTx: args.Tx})
	}
	return *result, nil
}
