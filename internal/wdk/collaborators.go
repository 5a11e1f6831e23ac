package wdk

import "context"

// KeyDeriver is the external collaborator contract from spec.md §2's Key
// Deriver row: derive protocol/key-id/counterparty keys and perform the
// signature/encryption primitives the wallet façade exposes at the BRC-100
// boundary. internal/keyderiver provides the concrete implementation.
type KeyDeriver interface {
	DerivePublicKey(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, forSelf bool) ([]byte, error)
	Sign(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, hash []byte) ([]byte, error)
	Verify(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, hash, sig []byte) (bool, error)
	Encrypt(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, ciphertext []byte) ([]byte, error)
	HMAC(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, data []byte) ([]byte, error)
	VerifyHMAC(ctx context.Context, protocol Protocol, keyID string, counterparty Counterparty, data, mac []byte) (bool, error)
	RootPublicKey(ctx context.Context) ([]byte, error)
}

// Randomizer supplies cryptographically random bytes for references,
// salts, and keys. Kept as an interface so tests can inject determinism.
type Randomizer interface {
	Bytes(n int) ([]byte, error)
	Base64URL(n int) (string, error)
}

// HeaderInfo is the subset of a block header the monitor and signer need.
type HeaderInfo struct {
	Height     uint32
	Hash       string
	MerkleRoot string
}

// BlockHeaderLoader is the subset of spec.md §6.6's chain-services contract
// needed to validate merkle paths.
type BlockHeaderLoader interface {
	ChainHeaderByHeight(ctx context.Context, height uint32) (*HeaderInfo, error)
	ChainTipHeight(ctx context.Context) (uint32, error)
}

// BeefVerifier validates an Atomic BEEF payload (spec.md GLOSSARY "BEEF").
type BeefVerifier interface {
	VerifyBeef(ctx context.Context, beef []byte, allowTxidOnly bool) (bool, error)
}

// BroadcastStatus is the result of posting a transaction per spec.md §6.6.
type BroadcastStatus string

const (
	BroadcastAccepted    BroadcastStatus = "accepted"
	BroadcastDoubleSpend BroadcastStatus = "doubleSpend"
	BroadcastServiceError BroadcastStatus = "serviceError"
	BroadcastInvalidTx   BroadcastStatus = "invalidTx"
)

// BroadcastResult is what a chain-services provider returns for one posted
// transaction.
type BroadcastResult struct {
	Txid         string
	Status       BroadcastStatus
	CompetingTxs []string
	Error        string
}

// MerkleProof bundles a BUMP merkle path with the block it resolves against
// (spec.md §6.6 get_merkle_path_for_transaction).
type MerkleProof struct {
	Header     HeaderInfo
	MerklePath []byte
}

// UTXOStatus is the liveness classification from spec.md §6.6's
// get_utxo_status.
type UTXOStatus string

const (
	UTXOStatusUnknown UTXOStatus = "unknown"
	UTXOStatusSpent   UTXOStatus = "spent"
	UTXOStatusUnspent UTXOStatus = "unspent"
)

// ChainServices is the unified contract from spec.md §6.6. A single
// implementation multiplexes several concrete providers (WhatsOnChain, ARC,
// Bitails); none of those HTTP clients are implemented here, per spec.md §1
// ("HTTP transports to third-party chain-data providers" is out of scope).
type ChainServices interface {
	BlockHeaderLoader
	GetRawTx(ctx context.Context, txid string) ([]byte, error)
	GetMerklePathForTransaction(ctx context.Context, txid string) (*MerkleProof, error)
	IsValidRootForHeight(ctx context.Context, root string, height uint32) (bool, error)
	GetUTXOStatus(ctx context.Context, outpoint OutPoint) (UTXOStatus, error)
	PostBeef(ctx context.Context, beef []byte) ([]BroadcastResult, error)
	IsUTXO(ctx context.Context, outpoint OutPoint) (bool, error)
}
