package wdk

// CreateActionInput is one input the caller wants spent (spec.md §4.3).
type CreateActionInput struct {
	OutPoint          OutPoint
	UnlockingScript   ByteSlice
	UnlockingScriptLength uint32
	InputDescription  string
	SequenceNumber    *uint32
}

// CreateActionOutput is one output the caller wants created (spec.md §4.3).
type CreateActionOutput struct {
	LockingScript      ByteSlice
	Satoshis           int64
	OutputDescription  string
	Basket             string
	CustomInstructions string
	Tags               []string
}

// CreateActionOptions carries the broadcast/selection knobs from spec.md
// §4.1/§4.3.
type CreateActionOptions struct {
	AcceptDelayedBroadcast *bool
	NoSend                 bool
	SendWith               []string
	KnownTxids             []string
}

// AcceptDelayed reports whether delayed broadcast is in effect, defaulting
// to true per spec.md §4.3.
func (o CreateActionOptions) AcceptDelayed() bool {
	if o.AcceptDelayedBroadcast == nil {
		return true
	}
	return *o.AcceptDelayedBroadcast
}

// CreateActionArgs is the create_action request (spec.md §6.1).
type CreateActionArgs struct {
	Description string
	Inputs      []CreateActionInput
	Outputs     []CreateActionOutput
	LockTime    *uint32
	Version     *uint32
	Labels      []string
	InputBEEF   ByteSlice
	Options     CreateActionOptions
}

// Derived booleans computed from CreateActionArgs per spec.md §4.3 step 1.
type CreateActionDerived struct {
	IsSendWith    bool
	IsRemixChange bool
	IsNewTx       bool
	IsDelayed     bool
	IsNoSend      bool
}

// Derive computes the booleans spec.md §4.3 step 1 names.
func (a CreateActionArgs) Derive() CreateActionDerived {
	isSendWith := len(a.Options.SendWith) > 0
	isRemixChange := len(a.Inputs) == 0 && len(a.Outputs) == 0 && !isSendWith
	isNewTx := isRemixChange || len(a.Inputs) > 0 || len(a.Outputs) > 0
	return CreateActionDerived{
		IsSendWith:    isSendWith,
		IsRemixChange: isRemixChange,
		IsNewTx:       isNewTx,
		IsDelayed:     a.Options.AcceptDelayed(),
		IsNoSend:      a.Options.NoSend,
	}
}

// SignableTransaction is returned by create_action when further client-side
// signing is required (spec.md §4.3 step 4).
type SignableTransaction struct {
	Reference string
	Tx        ByteSlice
}

// CreateActionResult is the create_action response (spec.md §6.1).
type CreateActionResult struct {
	Txid                 string
	Tx                   ByteSlice
	NoSendChange         []OutPoint
	SignableTransaction  *SignableTransaction
	Reference            string
}

// SignActionArgs is the sign_action request (spec.md §6.1).
type SignActionArgs struct {
	Reference string
	RawTx     ByteSlice
	Options   CreateActionOptions
}

// SignActionResult is the sign_action response.
type SignActionResult struct {
	Txid string
	Tx   ByteSlice
}

// InternalizeProtocol distinguishes the two output classifications from
// spec.md §4.2.
type InternalizeProtocol string

const (
	WalletPaymentProtocol   InternalizeProtocol = "wallet payment"
	BasketInsertionProtocol InternalizeProtocol = "basket insertion"
)

// PaymentRemittance accompanies a WalletPaymentProtocol declaration.
type PaymentRemittance struct {
	SenderIdentityKey string
	DerivationPrefix  string
	DerivationSuffix  string
}

// InsertionRemittance accompanies a BasketInsertionProtocol declaration.
type InsertionRemittance struct {
	Basket             string
	Tags               []string
	CustomInstructions string
}

// InternalizeOutput is one declared output of internalize_action.
type InternalizeOutput struct {
	OutputIndex         uint32
	Protocol            InternalizeProtocol
	PaymentRemittance   *PaymentRemittance
	InsertionRemittance *InsertionRemittance
}

// InternalizeActionArgs is the internalize_action request (spec.md §6.1).
type InternalizeActionArgs struct {
	Tx          ByteSlice
	Outputs     []InternalizeOutput
	Labels      []string
	Description string
}

// InternalizeActionResult is the internalize_action response.
type InternalizeActionResult struct {
	Accepted bool
	IsMerge  bool
	TxID     string
	Satoshis int64
}

// ListOutputsArgs is the list_outputs request (spec.md §4.2).
type ListOutputsArgs struct {
	Basket                    string
	Tags                      []string
	TagQueryMode              TagQueryMode
	Limit                     int
	Offset                    int
	IncludeLockingScripts     bool
	IncludeTags               bool
	IncludeLabels             bool
	IncludeCustomInstructions bool
	IncludeTransactions       bool
	IncludeSpent              bool
	KnownTxids                []string
}

// ListOutputsResult is the list_outputs response.
type ListOutputsResult struct {
	TotalOutputs int64
	Outputs      []OutputView
	BEEF         ByteSlice
}

// ActionInputView is one input of an action returned by list_actions when
// IncludeInputs is set.
type ActionInputView struct {
	Outpoint OutPoint
	Satoshis int64
}

// ActionOutputView is one output of an action returned by list_actions when
// IncludeOutputs is set.
type ActionOutputView struct {
	Outpoint OutPoint
	Satoshis int64
	Basket   string
}

// OutputView is the projection of an Output returned by list_outputs.
type OutputView struct {
	Outpoint           OutPoint
	Satoshis           int64
	Spendable          bool
	Change             bool
	LockingScript      ByteSlice
	Tags               []string
	Labels             []string
	CustomInstructions string
	Basket             string
}
