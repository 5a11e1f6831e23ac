package wallet

import (
	"context"

	"github.com/certen/bsv-wallet-toolbox/internal/database"
	"github.com/certen/bsv-wallet-toolbox/internal/entity"
	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// ListOutputs runs list_outputs (spec.md §4.2, §6.1): basket/tag filters
// resolved to ids, paginated, with each projection field populated only
// when the matching Include flag is set.
func (w *Wallet) ListOutputs(ctx context.Context, userID int64, originator string, args wdk.ListOutputsArgs) (wdk.ListOutputsResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.ListOutputsResult{}, err
	}

	q := database.ListOutputsQuery{
		UserID:       userID,
		TagQueryMode: args.TagQueryMode,
		IncludeSpent: args.IncludeSpent,
		Limit:        args.Limit,
		Offset:       args.Offset,
	}
	if args.Basket != "" {
		basket, err := w.repos.Baskets.GetByName(ctx, userID, args.Basket)
		if err != nil {
			if err == database.ErrBasketNotFound {
				return wdk.ListOutputsResult{}, nil
			}
			return wdk.ListOutputsResult{}, wdk.NewError(wdk.KindRuntime, "resolve basket: %v", err)
		}
		q.BasketID = &basket.BasketID
	}
	if len(args.Tags) > 0 {
		ids, err := w.repos.Tags.ResolveNames(ctx, userID, args.Tags)
		if err != nil {
			return wdk.ListOutputsResult{}, wdk.NewError(wdk.KindRuntime, "resolve tags: %v", err)
		}
		q.TagIDs = ids
	}

	rows, total, err := w.repos.Outputs.List(ctx, q)
	if err != nil {
		return wdk.ListOutputsResult{}, wdk.NewError(wdk.KindRuntime, "list outputs: %v", err)
	}

	views := make([]wdk.OutputView, len(rows))
	var subjectTxids []string
	for i, o := range rows {
		view, err := w.projectOutput(ctx, o, args)
		if err != nil {
			return wdk.ListOutputsResult{}, err
		}
		views[i] = view
		if args.IncludeTransactions && o.Txid.Valid {
			subjectTxids = append(subjectTxids, o.Txid.String)
		}
	}

	result := wdk.ListOutputsResult{TotalOutputs: total, Outputs: views}
	if len(subjectTxids) > 0 {
		beef, err := w.beef.Build(ctx, w.parentLookup(), subjectTxids, args.KnownTxids)
		if err != nil {
			return wdk.ListOutputsResult{}, err
		}
		result.BEEF = beef
	}
	return result, nil
}

func (w *Wallet) projectOutput(ctx context.Context, o *entity.Output, args wdk.ListOutputsArgs) (wdk.OutputView, error) {
	view := wdk.OutputView{
		Outpoint:  wdk.OutPoint{TxID: o.Txid.String, Vout: o.Vout},
		Satoshis:  o.Satoshis,
		Spendable: o.Spendable,
		Change:    o.Change,
	}
	if args.IncludeLockingScripts {
		view.LockingScript = o.LockingScript
	}
	if args.IncludeCustomInstructions {
		view.CustomInstructions = o.CustomInstructions.String
	}
	if args.IncludeTags {
		tags, err := w.repos.Outputs.TagsForOutput(ctx, o.OutputID)
		if err != nil {
			return wdk.OutputView{}, wdk.NewError(wdk.KindRuntime, "load output tags: %v", err)
		}
		view.Tags = tags
	}
	if args.IncludeLabels {
		labels, err := w.repos.Transactions.ListLabelsForTransaction(ctx, o.TransactionID)
		if err != nil {
			return wdk.OutputView{}, wdk.NewError(wdk.KindRuntime, "load output labels: %v", err)
		}
		view.Labels = labels
	}
	if o.BasketID.Valid {
		if basket, err := w.repos.Baskets.GetByID(ctx, o.BasketID.Int64); err == nil {
			view.Basket = basket.Name
		}
	}
	return view, nil
}

// RelinquishOutput runs relinquish_output (spec.md §6.1): a soft revoke
// that stops the output from being offered as spendable, without touching
// its spent/spent_by history.
func (w *Wallet) RelinquishOutput(ctx context.Context, userID int64, originator string, args wdk.RelinquishOutputArgs) error {
	if err := validateOriginator(originator); err != nil {
		return err
	}
	if err := w.repos.Outputs.Relinquish(ctx, userID, args.Outpoint); err != nil {
		if err == database.ErrOutputNotFound {
			return wdk.InvalidParameter("outpoint", "no matching spendable output found")
		}
		return wdk.NewError(wdk.KindRuntime, "relinquish output: %v", err)
	}
	return nil
}

// ListActions runs list_actions (spec.md §6.1), supplemented with the same
// filter/pagination shape as list_outputs, over Transactions instead of
// Outputs (label/labelQueryMode analogous to tag/tagQueryMode).
func (w *Wallet) ListActions(ctx context.Context, userID int64, originator string, args wdk.ListActionsArgs) (wdk.ListActionsResult, error) {
	if err := validateOriginator(originator); err != nil {
		return wdk.ListActionsResult{}, err
	}

	q := database.ListActionsQuery{
		UserID:         userID,
		LabelQueryMode: args.LabelQueryMode,
		Limit:          args.Limit,
		Offset:         args.Offset,
	}
	if len(args.Labels) > 0 {
		ids, err := w.repos.Labels.ResolveNames(ctx, userID, args.Labels)
		if err != nil {
			return wdk.ListActionsResult{}, wdk.NewError(wdk.KindRuntime, "resolve labels: %v", err)
		}
		q.LabelIDs = ids
	}

	rows, total, err := w.repos.Transactions.ListForUser(ctx, q)
	if err != nil {
		return wdk.ListActionsResult{}, wdk.NewError(wdk.KindRuntime, "list actions: %v", err)
	}

	views := make([]wdk.ActionView, len(rows))
	for i, t := range rows {
		view := wdk.ActionView{
			Txid:        t.Txid.String,
			Satoshis:    t.Satoshis,
			Status:      t.Status,
			IsOutgoing:  t.IsOutgoing,
			Description: t.Description,
		}
		if args.IncludeLabels {
			labels, err := w.repos.Transactions.ListLabelsForTransaction(ctx, t.TransactionID)
			if err != nil {
				return wdk.ListActionsResult{}, wdk.NewError(wdk.KindRuntime, "load action labels: %v", err)
			}
			view.Labels = labels
		}
		if args.IncludeOutputs {
			outs, err := w.repos.Outputs.ListByTransaction(ctx, t.TransactionID)
			if err != nil {
				return wdk.ListActionsResult{}, wdk.NewError(wdk.KindRuntime, "load action outputs: %v", err)
			}
			view.Outputs = make([]wdk.ActionOutputView, len(outs))
			for j, o := range outs {
				basketName := ""
				if o.BasketID.Valid {
					if basket, err := w.repos.Baskets.GetByID(ctx, o.BasketID.Int64); err == nil {
						basketName = basket.Name
					}
				}
				view.Outputs[j] = wdk.ActionOutputView{
					Outpoint: wdk.OutPoint{TxID: t.Txid.String, Vout: o.Vout},
					Satoshis: o.Satoshis,
					Basket:   basketName,
				}
			}
		}
		if args.IncludeInputs {
			spent, err := w.repos.Outputs.ListSpentByTransaction(ctx, t.TransactionID)
			if err != nil {
				return wdk.ListActionsResult{}, wdk.NewError(wdk.KindRuntime, "load action inputs: %v", err)
			}
			view.Inputs = make([]wdk.ActionInputView, len(spent))
			for j, o := range spent {
				view.Inputs[j] = wdk.ActionInputView{
					Outpoint: wdk.OutPoint{TxID: o.Txid.String, Vout: o.Vout},
					Satoshis: o.Satoshis,
				}
			}
		}
		views[i] = view
	}
	return wdk.ListActionsResult{TotalActions: total, Actions: views}, nil
}
