package signer

import (
	"context"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// CreateAction runs the create_action pipeline (spec.md §4.3): validates and
// normalizes args, persists the pending Transaction/ProvenTxReq/Output rows,
// and assembles the signable transaction the caller must countersign.
func (s *Signer) CreateAction(ctx context.Context, userID int64, args wdk.CreateActionArgs) (*wdk.CreateActionResult, error) {
	if args.Description == "" {
		return nil, wdk.InvalidParameter("description", "must be non-empty")
	}
	derived := args.Derive()

	reference, err := s.rand.Base64URL(16)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "generate reference: %v", err)
	}

	var totalOut int64
	for _, o := range args.Outputs {
		totalOut += o.Satoshis
	}

	tx, err := s.repos.Transactions.Create(ctx, &entity.Transaction{
		UserID:      userID,
		Status:      wdk.TxStatusUnsigned,
		Reference:   reference,
		IsOutgoing:  true,
		Satoshis:    totalOut,
		Description: args.Description,
		InputBeef:   args.InputBEEF,
	})
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "storage create_action: %v", err)
	}

	if _, err := s.repos.ProvenTxReqs.Create(ctx, &entity.ProvenTxReq{
		Status:  wdk.ReqStatusUnmined,
		Txid:    reference, // placeholder until a real txid exists post-signing
		RawTx:   []byte{},
		History: "{}",
		Notify:  "{}",
	}); err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "storage create_action req: %v", err)
	}

	for _, labelName := range args.Labels {
		label, err := s.repos.Labels.FindOrCreate(ctx, userID, labelName)
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "resolve label %q: %v", labelName, err)
		}
		if err := s.repos.Labels.Attach(ctx, label.TxLabelID, tx.TransactionID); err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "attach label %q: %v", labelName, err)
		}
	}

	var changeVouts []wdk.OutPoint
	for vout, out := range args.Outputs {
		basketName := out.Basket
		if basketName == "" {
			basketName = wdk.BasketNameForChange
		}
		basket, err := s.repos.Baskets.FindOrCreate(ctx, userID, basketName)
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "resolve basket %q: %v", basketName, err)
		}

		isChange := out.Basket == "" || out.Basket == wdk.BasketNameForChange
		row := &entity.Output{
			UserID:             userID,
			TransactionID:      tx.TransactionID,
			BasketID:           sqlNullInt64(basket.BasketID),
			Spendable:          true,
			Change:             isChange,
			Vout:               uint32(vout),
			Satoshis:           out.Satoshis,
			ProvidedBy:         wdk.ProvidedByStorage,
			Purpose:            purposeFor(isChange),
			Type:               wdk.OutputTypeCustom,
			OutputDescription:  sqlNullString(out.OutputDescription),
			CustomInstructions: sqlNullString(out.CustomInstructions),
			LockingScript:      out.LockingScript,
		}
		created, err := s.repos.Outputs.Create(ctx, row)
		if err != nil {
			return nil, wdk.NewError(wdk.KindRuntime, "create output %d: %v", vout, err)
		}

		for _, tagName := range out.Tags {
			tag, err := s.repos.Tags.FindOrCreate(ctx, userID, tagName)
			if err != nil {
				return nil, wdk.NewError(wdk.KindRuntime, "resolve tag %q: %v", tagName, err)
			}
			if err := s.repos.Tags.Attach(ctx, tag.OutputTagID, created.OutputID); err != nil {
				return nil, wdk.NewError(wdk.KindRuntime, "attach tag %q: %v", tagName, err)
			}
		}

		if isChange && derived.IsNoSend {
			// The real txid isn't known until sign_action; storage tracks the
			// outpoint by reference until then.
			changeVouts = append(changeVouts, wdk.OutPoint{TxID: reference, Vout: uint32(vout)})
		}
	}

	unsigned := assembleUnsigned(args)
	result := &wdk.CreateActionResult{
		Reference:    reference,
		NoSendChange: changeVouts,
	}
	if derived.IsNewTx {
		result.SignableTransaction = &wdk.SignableTransaction{
			Reference: reference,
			Tx:        unsigned,
		}
	} else {
		result.Tx = unsigned
	}
	return result, nil
}

func purposeFor(isChange bool) string {
	if isChange {
		return wdk.ChangePurpose
	}
	return ""
}
