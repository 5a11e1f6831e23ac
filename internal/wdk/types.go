package wdk

import "time"

// TxStatus is the Transaction lifecycle status from spec.md §3.1.
type TxStatus string

const (
	TxStatusUnprocessed TxStatus = "unprocessed"
	TxStatusUnsigned    TxStatus = "unsigned"
	TxStatusSigned      TxStatus = "signed"
	TxStatusSending     TxStatus = "sending"
	TxStatusUnproven    TxStatus = "unproven"
	TxStatusNoSend      TxStatus = "nosend"
	TxStatusCompleted   TxStatus = "completed"
	TxStatusFailed      TxStatus = "failed"
	TxStatusAborted     TxStatus = "aborted"
)

// IsTerminal reports whether status is one of the terminal states named in
// spec.md §3.1.
func (s TxStatus) IsTerminal() bool {
	switch s {
	case TxStatusCompleted, TxStatusFailed, TxStatusAborted:
		return true
	default:
		return false
	}
}

// ProvenTxReqStatus is the ProvenTxReq lifecycle status from spec.md §3.1.
type ProvenTxReqStatus string

const (
	ReqStatusUnknown    ProvenTxReqStatus = "unknown"
	ReqStatusCallback   ProvenTxReqStatus = "callback"
	ReqStatusUnmined    ProvenTxReqStatus = "unmined"
	ReqStatusSending    ProvenTxReqStatus = "sending"
	ReqStatusUnconfirmed ProvenTxReqStatus = "unconfirmed"
	ReqStatusNoSend     ProvenTxReqStatus = "nosend"
	ReqStatusNotifying  ProvenTxReqStatus = "notifying"
	ReqStatusCompleted  ProvenTxReqStatus = "completed"
	ReqStatusInvalid    ProvenTxReqStatus = "invalid"
	ReqStatusAborted    ProvenTxReqStatus = "aborted"
)

// IsTerminal reports whether status is a terminal ProvenTxReq state.
func (s ProvenTxReqStatus) IsTerminal() bool {
	switch s {
	case ReqStatusCompleted, ReqStatusInvalid, ReqStatusAborted:
		return true
	default:
		return false
	}
}

// OutputType distinguishes how an Output's locking script should be
// interpreted by callers that care (the storage layer treats it opaquely).
type OutputType string

const (
	OutputTypeP2PKH   OutputType = "P2PKH"
	OutputTypeCustom  OutputType = "custom"
)

// ProvidedBy records who supplied an Output.
type ProvidedBy string

const (
	ProvidedByStorage ProvidedBy = "storage"
	ProvidedByYou     ProvidedBy = "you"
	ProvidedByYouAndStorage ProvidedBy = "you-and-storage"
)

// Purpose is a free-form classification of why an Output exists; "change"
// is the one purpose the spec treats specially (spec.md §3.2).
const ChangePurpose = "change"

// BasketNameForChange is the well-known default basket name (spec.md §3.2,
// GLOSSARY "Change output").
const BasketNameForChange = "default"

// TagQueryMode controls how list_outputs combines multiple requested tags.
type TagQueryMode string

const (
	TagQueryAny TagQueryMode = "any"
	TagQueryAll TagQueryMode = "all"
)

// Protocol identifies a BRC-100 key-derivation protocol: a security level
// and a human name (spec.md §9's closed Protocol variant).
type Protocol struct {
	SecurityLevel uint8  `json:"securityLevel"`
	Name          string `json:"name"`
}

// CounterpartyKind closes the otherwise-stringly-typed Counterparty field
// from the BRC-100 wire format (spec.md §9).
type CounterpartyKind string

const (
	CounterpartySelf   CounterpartyKind = "self"
	CounterpartyAnyone CounterpartyKind = "anyone"
	CounterpartyOther  CounterpartyKind = "other"
)

// Counterparty is the closed internal representation of the wire-level
// counterparty string ("self" | "anyone" | hex pubkey).
type Counterparty struct {
	Kind   CounterpartyKind
	PubKey []byte // compressed, 33 bytes; only set when Kind == CounterpartyOther
}

// OutPoint identifies a single transaction output. Storage uses "." as the
// separator (GLOSSARY "Outpoint"), not ":".
type OutPoint struct {
	TxID string
	Vout uint32
}

func (o OutPoint) String() string {
	return o.TxID + "." + itoa(o.Vout)
}

func itoa(v uint32) string {
	if v == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for v > 0 {
		i--
		buf[i] = byte('0' + v%10)
		v /= 10
	}
	return string(buf[i:])
}

// ActionStatus is the per-txid broadcast status from spec.md §4.1 /
// ReviewActions.
type ActionStatus string

const (
	ActionStatusSuccess      ActionStatus = "success"
	ActionStatusDoubleSpend  ActionStatus = "doubleSpend"
	ActionStatusServiceError ActionStatus = "serviceError"
	ActionStatusInvalidTx    ActionStatus = "invalidTx"
)

// ReviewActionResult is one entry of the ReviewActions error's
// reviewActionResults array (spec.md §7).
type ReviewActionResult struct {
	TxID         string       `json:"txid"`
	Status       ActionStatus `json:"status"`
	CompetingTxs []string     `json:"competingTxs,omitempty"`
}

// PendingSignAction is the TTL entry the façade keeps between create_action
// and sign_action (spec.md §4.1).
type PendingSignAction struct {
	Reference  string
	UserID     int64
	Args       CreateActionArgs
	KnownTxids []string
	CreatedAt  time.Time
}

// Expired reports whether the pending entry has outlived its TTL (default
// 300s, spec.md §4.1).
func (p PendingSignAction) Expired(now time.Time, ttl time.Duration) bool {
	return now.Sub(p.CreatedAt) > ttl
}
