package signer

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// SignAction runs the sign_action pipeline (spec.md §4.3): persists the
// application-signed raw transaction and, unless delayed broadcast is in
// effect, hands off to ProcessAction. pending is the TTL-cached entry the
// Wallet façade looked up by reference; the caller is responsible for the
// TTL/expiry check before calling in (spec.md §4.1).
func (s *Signer) SignAction(ctx context.Context, pending wdk.PendingSignAction, args wdk.SignActionArgs) (*wdk.SignActionResult, error) {
	if args.Reference == "" || args.Reference != pending.Reference {
		return nil, wdk.InvalidParameter("reference", "must match an active create_action reference")
	}
	if len(args.RawTx) == 0 {
		return nil, wdk.InvalidParameter("rawTx", "must be non-empty")
	}

	tx, err := s.repos.Transactions.GetByReference(ctx, pending.UserID, args.Reference)
	if err != nil {
		return nil, wdk.InvalidParameter("reference", "no pending action found")
	}

	txid := deriveTxid(args.RawTx)
	if err := s.repos.Transactions.AttachRawTx(ctx, tx.TransactionID, txid, args.RawTx, wdk.TxStatusSigned); err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "persist signed transaction: %v", err)
	}

	req, err := s.repos.ProvenTxReqs.GetByTxid(ctx, pending.Reference)
	if err == nil {
		if updateErr := s.repos.ProvenTxReqs.UpdateStatus(ctx, req.ProvenTxReqID, wdk.ReqStatusUnmined, false); updateErr != nil {
			s.logger.Printf("sign_action: update proven tx req for %s: %v", args.Reference, updateErr)
		}
	}

	derived := pending.Args.Derive()
	if derived.IsDelayed {
		return &wdk.SignActionResult{Txid: txid, Tx: args.RawTx}, nil
	}

	return s.ProcessAction(ctx, tx.TransactionID, txid, args.RawTx)
}

// ProcessAction broadcasts a signed transaction and resolves its terminal
// status. It is invoked synchronously by sign_action for undelayed
// broadcasts, and by the Monitor's SendWaiting task for delayed ones.
func (s *Signer) ProcessAction(ctx context.Context, transactionID int64, txid string, rawTx []byte) (*wdk.SignActionResult, error) {
	if err := s.repos.Transactions.UpdateStatus(ctx, transactionID, wdk.TxStatusSending); err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "mark transaction sending: %v", err)
	}

	results, err := s.chain.PostBeef(ctx, rawTx)
	if err != nil {
		if markErr := s.repos.Transactions.UpdateStatus(ctx, transactionID, wdk.TxStatusFailed); markErr != nil {
			s.logger.Printf("process_action: mark transaction failed for %s: %v", txid, markErr)
		}
		return nil, wdk.NewError(wdk.KindTransactionBroadcast, "broadcast %s: %v", txid, err)
	}

	var reviewResults []wdk.ReviewActionResult
	for _, r := range results {
		switch r.Status {
		case wdk.BroadcastAccepted:
			continue
		case wdk.BroadcastDoubleSpend:
			reviewResults = append(reviewResults, wdk.ReviewActionResult{
				TxID: r.Txid, Status: wdk.ActionStatusDoubleSpend, CompetingTxs: r.CompetingTxs,
			})
		case wdk.BroadcastInvalidTx:
			reviewResults = append(reviewResults, wdk.ReviewActionResult{TxID: r.Txid, Status: wdk.ActionStatusInvalidTx})
		default:
			reviewResults = append(reviewResults, wdk.ReviewActionResult{TxID: r.Txid, Status: wdk.ActionStatusServiceError})
		}
	}

	if len(reviewResults) > 0 {
		if markErr := s.repos.Transactions.UpdateStatus(ctx, transactionID, wdk.TxStatusFailed); markErr != nil {
			s.logger.Printf("process_action: mark transaction failed for %s: %v", txid, markErr)
		}
		return nil, wdk.NewError(wdk.KindReviewActions, "broadcast of %s was rejected", txid).
			WithData(map[string]any{"reviewActionResults": reviewResults})
	}

	if err := s.repos.Transactions.UpdateStatus(ctx, transactionID, wdk.TxStatusUnproven); err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "mark transaction unproven: %v", err)
	}
	return &wdk.SignActionResult{Txid: txid, Tx: rawTx}, nil
}

// deriveTxid is a placeholder for the real double-SHA256 transaction
// identifier, computed by the underlying BSV SDK (out of scope per
// spec.md §1).
func deriveTxid(rawTx []byte) string {
	return fmt.Sprintf("%x", hashBytes(rawTx))
}
