package signer

import (
	"bytes"
	"context"

	"github.com/btcsuite/btcd/wire"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// internalizeContext is the stateful object spec.md §4.2 describes driving
// internalize_action's three phases: setup, satoshi delta calculation,
// write.
type internalizeContext struct {
	s            *Signer
	userID       int64
	args         wdk.InternalizeActionArgs
	txid         string
	txOutputs    []*wire.TxOut
	existingTx   *entity.Transaction
	isMerge      bool
	defaultBkt   *entity.OutputBasket
	satoshiDelta int64
}

// parseDeclaredOutputs decodes the legacy transaction wire format carried
// in internalize_action's tx argument. Despite the "atomic BEEF" naming
// (spec.md §6.1), the Storage Provider's own internalize_action treats this
// field as a single raw transaction rather than a full BEEF bundle, and
// each declared output's satoshi value and locking script only exist once
// parsed out of it at its declared index — they are never carried on the
// wire args themselves.
func parseDeclaredOutputs(rawTx []byte) ([]*wire.TxOut, error) {
	var tx wire.MsgTx
	if err := tx.Deserialize(bytes.NewReader(rawTx)); err != nil {
		return nil, wdk.InvalidParameter("tx", "could not decode transaction: "+err.Error())
	}
	return tx.TxOut, nil
}

// allowedMergeStatuses are the prior Transaction statuses internalize_action
// is permitted to merge into (spec.md §4.2).
var allowedMergeStatuses = map[wdk.TxStatus]bool{
	wdk.TxStatusCompleted: true,
	wdk.TxStatusUnproven:  true,
	wdk.TxStatusNoSend:    true,
}

// InternalizeAction runs the internalize_action pipeline (spec.md §4.2,
// §4.3): decodes args.Tx as a single raw transaction (parseDeclaredOutputs;
// a BEEF bundle is not decoded), classifies declared outputs, detects a
// merge against an existing Transaction, computes the satoshi delta, and
// persists the result.
func (s *Signer) InternalizeAction(ctx context.Context, userID int64, args wdk.InternalizeActionArgs) (*wdk.InternalizeActionResult, error) {
	ic := &internalizeContext{s: s, userID: userID, args: args}
	if err := ic.setup(ctx); err != nil {
		return nil, err
	}
	if err := ic.write(ctx); err != nil {
		return nil, err
	}

	return &wdk.InternalizeActionResult{
		Accepted: true,
		IsMerge:  ic.isMerge,
		TxID:     ic.txid,
		Satoshis: ic.satoshiDelta,
	}, nil
}

// setup parses the declared transaction's outputs, validates each declared
// output's protocol classification and index, and probes for an existing
// transaction to merge into.
func (ic *internalizeContext) setup(ctx context.Context) error {
	if len(ic.args.Tx) == 0 {
		return wdk.InvalidParameter("tx", "must be a non-empty atomic BEEF")
	}
	ic.txid = deriveTxid(ic.args.Tx)

	outputs, err := parseDeclaredOutputs(ic.args.Tx)
	if err != nil {
		return err
	}
	ic.txOutputs = outputs

	for _, out := range ic.args.Outputs {
		if int(out.OutputIndex) >= len(ic.txOutputs) {
			return wdk.InvalidParameter("outputs[].outputIndex", "exceeds the transaction's output count")
		}
		switch out.Protocol {
		case wdk.WalletPaymentProtocol:
			if out.PaymentRemittance == nil || out.InsertionRemittance != nil {
				return wdk.InvalidParameter("outputs", "wallet payment requires paymentRemittance and forbids insertionRemittance")
			}
		case wdk.BasketInsertionProtocol:
			if out.InsertionRemittance == nil || out.PaymentRemittance != nil {
				return wdk.InvalidParameter("outputs", "basket insertion requires insertionRemittance and forbids paymentRemittance")
			}
		default:
			return wdk.InvalidParameter("outputs[].protocol", "must be \"wallet payment\" or \"basket insertion\"")
		}
	}

	basket, err := ic.s.repos.Baskets.EnsureDefaultChangeBasket(ctx, ic.userID)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "load default basket: %v", err)
	}
	ic.defaultBkt = basket

	existing, err := ic.s.repos.Transactions.GetByTxid(ctx, ic.txid)
	if err == nil {
		if !allowedMergeStatuses[existing.Status] {
			return wdk.InvalidParameter("tx", "existing transaction is not in a mergeable status")
		}
		ic.existingTx = existing
		ic.isMerge = true
	}
	return nil
}

// write persists the Transaction (new or merged) and its Output rows,
// applying spec.md §4.2's per-output satoshi delta rules as each output is
// resolved. Every rule reads the declared output's value from the parsed
// transaction (ic.txOutputs), not from any previously-stored row, since
// that is the only value spec.md §4.2 ever defines as ground truth.
func (ic *internalizeContext) write(ctx context.Context) error {
	var txRow *entity.Transaction
	var err error

	if ic.isMerge {
		txRow = ic.existingTx
	} else {
		txRow, err = ic.s.repos.Transactions.Create(ctx, &entity.Transaction{
			UserID:      ic.userID,
			Status:      wdk.TxStatusCompleted,
			Reference:   ic.txid,
			IsOutgoing:  false,
			Description: ic.args.Description,
			Txid:        sqlNullString(ic.txid),
		})
		if err != nil {
			return wdk.NewError(wdk.KindRuntime, "create internalized transaction: %v", err)
		}
	}

	for _, labelName := range ic.args.Labels {
		label, err := ic.s.repos.Labels.FindOrCreate(ctx, ic.userID, labelName)
		if err != nil {
			return wdk.NewError(wdk.KindRuntime, "resolve label %q: %v", labelName, err)
		}
		if err := ic.s.repos.Labels.Attach(ctx, label.TxLabelID, txRow.TransactionID); err != nil {
			return wdk.NewError(wdk.KindRuntime, "attach label %q: %v", labelName, err)
		}
	}

	for _, out := range ic.args.Outputs {
		txo := ic.txOutputs[out.OutputIndex]
		existingOut, lookupErr := ic.s.repos.Outputs.GetByOutpoint(ctx, ic.userID, txRow.TransactionID, out.OutputIndex)
		hasExisting := lookupErr == nil

		switch out.Protocol {
		case wdk.BasketInsertionProtocol:
			if hasExisting && existingOut.Change {
				ic.satoshiDelta -= txo.Value
				if err := ic.demoteToCustom(ctx, existingOut, out); err != nil {
					return err
				}
				continue
			}
			if err := ic.insertBasketOutput(ctx, txRow, out, txo); err != nil {
				return err
			}

		case wdk.WalletPaymentProtocol:
			switch {
			case !ic.isMerge:
				ic.satoshiDelta += txo.Value
				if err := ic.insertPaymentOutput(ctx, txRow, out, txo); err != nil {
					return err
				}
			case hasExisting && existingOut.Change:
				// already counted; nothing to do
			case hasExisting && !existingOut.Change:
				ic.satoshiDelta += txo.Value
				if err := ic.promoteToChange(ctx, existingOut, out); err != nil {
					return err
				}
			default:
				// previously untracked: add as change, same as a fresh insertion
				ic.satoshiDelta += txo.Value
				if err := ic.insertPaymentOutput(ctx, txRow, out, txo); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (ic *internalizeContext) demoteToCustom(ctx context.Context, existing *entity.Output, decl wdk.InternalizeOutput) error {
	basket, err := ic.s.repos.Baskets.FindOrCreate(ctx, ic.userID, decl.InsertionRemittance.Basket)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "resolve insertion basket: %v", err)
	}
	existing.BasketID = sqlNullInt64(basket.BasketID)
	existing.Change = false
	return ic.attachTagsAndCustomInstructions(ctx, existing.OutputID, decl)
}

func (ic *internalizeContext) promoteToChange(ctx context.Context, existing *entity.Output, decl wdk.InternalizeOutput) error {
	existing.BasketID = sqlNullInt64(ic.defaultBkt.BasketID)
	existing.Change = true
	return nil
}

func (ic *internalizeContext) insertBasketOutput(ctx context.Context, tx *entity.Transaction, decl wdk.InternalizeOutput, txo *wire.TxOut) error {
	basket, err := ic.s.repos.Baskets.FindOrCreate(ctx, ic.userID, decl.InsertionRemittance.Basket)
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "resolve insertion basket: %v", err)
	}
	created, err := ic.s.repos.Outputs.Create(ctx, &entity.Output{
		UserID:             ic.userID,
		TransactionID:      tx.TransactionID,
		BasketID:           sqlNullInt64(basket.BasketID),
		Satoshis:           txo.Value,
		LockingScript:      txo.PkScript,
		Spendable:          true,
		Change:             false,
		Vout:               decl.OutputIndex,
		ProvidedBy:         wdk.ProvidedByYou,
		Purpose:            "",
		Type:               wdk.OutputTypeCustom,
		CustomInstructions: sqlNullString(decl.InsertionRemittance.CustomInstructions),
		Txid:               sqlNullString(ic.txid),
	})
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "insert basket output %d: %v", decl.OutputIndex, err)
	}
	return ic.attachTagsAndCustomInstructions(ctx, created.OutputID, decl)
}

func (ic *internalizeContext) insertPaymentOutput(ctx context.Context, tx *entity.Transaction, decl wdk.InternalizeOutput, txo *wire.TxOut) error {
	_, err := ic.s.repos.Outputs.Create(ctx, &entity.Output{
		UserID:            ic.userID,
		TransactionID:     tx.TransactionID,
		BasketID:          sqlNullInt64(ic.defaultBkt.BasketID),
		Satoshis:          txo.Value,
		LockingScript:     txo.PkScript,
		Spendable:         true,
		Change:            true,
		Vout:              decl.OutputIndex,
		ProvidedBy:        wdk.ProvidedByYou,
		Purpose:           wdk.ChangePurpose,
		Type:              wdk.OutputTypeCustom,
		SenderIdentityKey: sqlNullString(decl.PaymentRemittance.SenderIdentityKey),
		DerivationPrefix:  sqlNullString(decl.PaymentRemittance.DerivationPrefix),
		DerivationSuffix:  sqlNullString(decl.PaymentRemittance.DerivationSuffix),
		Txid:              sqlNullString(ic.txid),
	})
	if err != nil {
		return wdk.NewError(wdk.KindRuntime, "insert payment output %d: %v", decl.OutputIndex, err)
	}
	return nil
}

func (ic *internalizeContext) attachTagsAndCustomInstructions(ctx context.Context, outputID int64, decl wdk.InternalizeOutput) error {
	if decl.InsertionRemittance == nil {
		return nil
	}
	for _, tagName := range decl.InsertionRemittance.Tags {
		tag, err := ic.s.repos.Tags.FindOrCreate(ctx, ic.userID, tagName)
		if err != nil {
			return wdk.NewError(wdk.KindRuntime, "resolve tag %q: %v", tagName, err)
		}
		if err := ic.s.repos.Tags.Attach(ctx, tag.OutputTagID, outputID); err != nil {
			return wdk.NewError(wdk.KindRuntime, "attach tag %q: %v", tagName, err)
		}
	}
	return nil
}
