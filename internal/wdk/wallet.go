package wdk

import "context"

// GetPublicKeyArgs is the get_public_key request (spec.md §6.1).
type GetPublicKeyArgs struct {
	IdentityKey  bool
	ProtocolID   Protocol
	KeyID        string
	Counterparty Counterparty
	ForSelf      bool
	Privileged   bool
}

// CreateSignatureArgs is the create_signature request. Exactly one of Data
// or HashToDirectlySign is set (spec.md §4.1).
type CreateSignatureArgs struct {
	Data                ByteSlice
	HashToDirectlySign  ByteSlice
	ProtocolID          Protocol
	KeyID               string
	Counterparty        Counterparty
	Privileged          bool
}

// VerifySignatureArgs is the verify_signature request. Exactly one of Data
// or HashToDirectlyVerify is set.
type VerifySignatureArgs struct {
	Data                  ByteSlice
	HashToDirectlyVerify  ByteSlice
	Signature             ByteSlice
	ProtocolID            Protocol
	KeyID                 string
	Counterparty          Counterparty
	PublicKey             ByteSlice
}

// EncryptArgs / DecryptArgs are the encrypt/decrypt requests; both are
// bound to a derived counterparty key (spec.md §4.1).
type EncryptArgs struct {
	Plaintext    ByteSlice
	ProtocolID   Protocol
	KeyID        string
	Counterparty Counterparty
	Privileged   bool
}

type DecryptArgs struct {
	Ciphertext   ByteSlice
	ProtocolID   Protocol
	KeyID        string
	Counterparty Counterparty
	Privileged   bool
}

// CreateHmacArgs / VerifyHmacArgs mirror Encrypt/Decrypt but over HMAC-SHA256.
type CreateHmacArgs struct {
	Data         ByteSlice
	ProtocolID   Protocol
	KeyID        string
	Counterparty Counterparty
	Privileged   bool
}

type VerifyHmacArgs struct {
	Data         ByteSlice
	HMAC         ByteSlice
	ProtocolID   Protocol
	KeyID        string
	Counterparty Counterparty
	Privileged   bool
}

// ListActionsArgs / ListActionsResult are list_actions request/response.
type ListActionsArgs struct {
	Labels                   []string
	LabelQueryMode           TagQueryMode
	IncludeLabels            bool
	IncludeInputs            bool
	IncludeOutputs           bool
	Limit                    int
	Offset                   int
}

type ActionView struct {
	Txid        string
	Satoshis    int64
	Status      TxStatus
	IsOutgoing  bool
	Description string
	Labels      []string
	Inputs      []ActionInputView
	Outputs     []ActionOutputView
}

type ListActionsResult struct {
	TotalActions int64
	Actions      []ActionView
}

// ListCertificatesArgs / ListCertificatesResult is list_certificates.
type ListCertificatesArgs struct {
	Certifiers []string
	Types      []string
	Limit      int
	Offset     int
}

type ListCertificatesResult struct {
	TotalCertificates int64
	Certificates      []CertificateResult
}

// RelinquishOutputArgs / RelinquishCertificateArgs retract a previously
// held output or certificate from the wallet's bookkeeping (spec.md §4.1).
type RelinquishOutputArgs struct {
	Basket   string
	Outpoint OutPoint
}

type RelinquishCertificateArgs struct {
	CertificateID string
}

// DiscoverByIdentityKeyArgs / DiscoverByAttributesArgs query counterparties'
// published certificates (spec.md §4.1's discover_by_* pair).
type DiscoverByIdentityKeyArgs struct {
	IdentityKey string
	Limit       int
	Offset      int
}

type DiscoverByAttributesArgs struct {
	Attributes map[string]string
	Limit      int
	Offset     int
}

type DiscoverCertificatesResult struct {
	TotalCertificates int64
	Certificates      []CertificateResult
}

// AbortActionArgs / AbortActionResult is abort_action.
type AbortActionArgs struct {
	Reference string
}

type AbortActionResult struct {
	Aborted bool
}

// VersionResult / NetworkResult are get_version / get_network.
type VersionResult struct {
	Version string
}

type NetworkResult struct {
	Network string
}

// Wallet is the full BRC-100 method surface (spec.md §6.1's method list).
// internal/wallet provides the concrete façade; internal/permissions wraps
// one Wallet to produce another, enforcing DPACP/DBAP/DCAP/DSAP before
// delegating (spec.md §4.4 "wallet proxy").
type Wallet interface {
	GetVersion(ctx context.Context, userID int64, originator string) (VersionResult, error)
	GetNetwork(ctx context.Context, userID int64, originator string) (NetworkResult, error)
	GetPublicKey(ctx context.Context, userID int64, originator string, args GetPublicKeyArgs) (ByteSlice, error)
	CreateSignature(ctx context.Context, userID int64, originator string, args CreateSignatureArgs) (ByteSlice, error)
	VerifySignature(ctx context.Context, userID int64, originator string, args VerifySignatureArgs) (bool, error)
	Encrypt(ctx context.Context, userID int64, originator string, args EncryptArgs) (ByteSlice, error)
	Decrypt(ctx context.Context, userID int64, originator string, args DecryptArgs) (ByteSlice, error)
	CreateHmac(ctx context.Context, userID int64, originator string, args CreateHmacArgs) (ByteSlice, error)
	VerifyHmac(ctx context.Context, userID int64, originator string, args VerifyHmacArgs) (bool, error)
	CreateAction(ctx context.Context, userID int64, originator string, args CreateActionArgs) (CreateActionResult, error)
	SignAction(ctx context.Context, userID int64, originator string, args SignActionArgs) (SignActionResult, error)
	AbortAction(ctx context.Context, userID int64, originator string, args AbortActionArgs) (AbortActionResult, error)
	InternalizeAction(ctx context.Context, userID int64, originator string, args InternalizeActionArgs) (InternalizeActionResult, error)
	ListActions(ctx context.Context, userID int64, originator string, args ListActionsArgs) (ListActionsResult, error)
	ListOutputs(ctx context.Context, userID int64, originator string, args ListOutputsArgs) (ListOutputsResult, error)
	RelinquishOutput(ctx context.Context, userID int64, originator string, args RelinquishOutputArgs) error
	AcquireCertificate(ctx context.Context, userID int64, originator string, args AcquireCertificateArgs) (CertificateResult, error)
	ProveCertificate(ctx context.Context, userID int64, originator string, args ProveCertificateArgs) (ProveCertificateResult, error)
	ListCertificates(ctx context.Context, userID int64, originator string, args ListCertificatesArgs) (ListCertificatesResult, error)
	RelinquishCertificate(ctx context.Context, userID int64, originator string, args RelinquishCertificateArgs) error
	DiscoverByIdentityKey(ctx context.Context, userID int64, originator string, args DiscoverByIdentityKeyArgs) (DiscoverCertificatesResult, error)
	DiscoverByAttributes(ctx context.Context, userID int64, originator string, args DiscoverByAttributesArgs) (DiscoverCertificatesResult, error)
}
