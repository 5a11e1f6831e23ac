// Package entity holds the relational row types for the Storage Provider
// (spec.md §3, §6.2). Field shapes mirror the teacher's
// pkg/database/types.go: db+json double-tagged structs, sql.Null* for
// optional columns, uuid.UUID where the domain needs a global identifier.
package entity

import (
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// User maps to the users table (spec.md §3.1).
type User struct {
	UserID        int64     `db:"user_id" json:"userId"`
	IdentityKey   string    `db:"identity_key" json:"identityKey"`
	ActiveStorage sql.NullString `db:"active_storage" json:"activeStorage,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time `db:"updated_at" json:"updatedAt"`
}

// Transaction maps to the transactions table (spec.md §3.1).
type Transaction struct {
	TransactionID int64          `db:"transaction_id" json:"transactionId"`
	UserID        int64          `db:"user_id" json:"userId"`
	ProvenTxID    sql.NullInt64  `db:"proven_tx_id" json:"provenTxId,omitempty"`
	Status        wdk.TxStatus   `db:"status" json:"status"`
	Reference     string         `db:"reference" json:"reference"`
	IsOutgoing    bool           `db:"is_outgoing" json:"isOutgoing"`
	Satoshis      int64          `db:"satoshis" json:"satoshis"`
	Version       sql.NullInt64  `db:"version" json:"version,omitempty"`
	LockTime      sql.NullInt64  `db:"lock_time" json:"lockTime,omitempty"`
	Description   string         `db:"description" json:"description"`
	Txid          sql.NullString `db:"txid" json:"txid,omitempty"`
	InputBeef     []byte         `db:"input_beef" json:"inputBeef,omitempty"`
	RawTx         []byte         `db:"raw_tx" json:"rawTx,omitempty"`
	CreatedAt     time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time      `db:"updated_at" json:"updatedAt"`
}

// Output maps to the outputs table (spec.md §3.1).
type Output struct {
	OutputID           int64          `db:"output_id" json:"outputId"`
	UserID             int64          `db:"user_id" json:"userId"`
	TransactionID      int64          `db:"transaction_id" json:"transactionId"`
	BasketID           sql.NullInt64  `db:"basket_id" json:"basketId,omitempty"`
	Spendable          bool           `db:"spendable" json:"spendable"`
	Change             bool           `db:"change" json:"change"`
	Vout               uint32         `db:"vout" json:"vout"`
	Satoshis           int64          `db:"satoshis" json:"satoshis"`
	ProvidedBy         wdk.ProvidedBy `db:"provided_by" json:"providedBy"`
	Purpose            string         `db:"purpose" json:"purpose"`
	Type               wdk.OutputType `db:"type" json:"type"`
	OutputDescription  sql.NullString `db:"output_description" json:"outputDescription,omitempty"`
	Txid               sql.NullString `db:"txid" json:"txid,omitempty"`
	SenderIdentityKey  sql.NullString `db:"sender_identity_key" json:"senderIdentityKey,omitempty"`
	DerivationPrefix   sql.NullString `db:"derivation_prefix" json:"derivationPrefix,omitempty"`
	DerivationSuffix   sql.NullString `db:"derivation_suffix" json:"derivationSuffix,omitempty"`
	CustomInstructions sql.NullString `db:"custom_instructions" json:"customInstructions,omitempty"`
	SpentBy            sql.NullInt64  `db:"spent_by" json:"spentBy,omitempty"`
	SequenceNumber     sql.NullInt64  `db:"sequence_number" json:"sequenceNumber,omitempty"`
	SpendingDescription sql.NullString `db:"spending_description" json:"spendingDescription,omitempty"`
	ScriptLength       sql.NullInt64  `db:"script_length" json:"scriptLength,omitempty"`
	ScriptOffset       sql.NullInt64  `db:"script_offset" json:"scriptOffset,omitempty"`
	LockingScript      []byte         `db:"locking_script" json:"lockingScript,omitempty"`
	Spent              bool           `db:"spent" json:"spent"`
	CreatedAt          time.Time      `db:"created_at" json:"createdAt"`
	UpdatedAt          time.Time      `db:"updated_at" json:"updatedAt"`
}

// OutputBasket maps to the output_baskets table (spec.md §3.1).
type OutputBasket struct {
	BasketID               int64 `db:"basket_id" json:"basketId"`
	UserID                 int64 `db:"user_id" json:"userId"`
	Name                   string `db:"name" json:"name"`
	NumberOfDesiredUTXOs   int64 `db:"number_of_desired_utxos" json:"numberOfDesiredUTXOs"`
	MinimumDesiredUTXOValue int64 `db:"minimum_desired_utxo_value" json:"minimumDesiredUTXOValue"`
	IsDeleted              bool  `db:"is_deleted" json:"isDeleted"`
	CreatedAt              time.Time `db:"created_at" json:"createdAt"`
	UpdatedAt              time.Time `db:"updated_at" json:"updatedAt"`
}

// OutputTag maps to the output_tags table.
type OutputTag struct {
	OutputTagID int64     `db:"output_tag_id" json:"outputTagId"`
	UserID      int64     `db:"user_id" json:"userId"`
	Tag         string    `db:"tag" json:"tag"`
	IsDeleted   bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// OutputTagMap maps to the output_tags_map table (many-to-many, soft
// delete per spec.md §5 locking discipline).
type OutputTagMap struct {
	OutputTagID int64     `db:"output_tag_id" json:"outputTagId"`
	OutputID    int64     `db:"output_id" json:"outputId"`
	IsDeleted   bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt   time.Time `db:"created_at" json:"createdAt"`
}

// TxLabel maps to the tx_labels table.
type TxLabel struct {
	TxLabelID int64     `db:"tx_label_id" json:"txLabelId"`
	UserID    int64     `db:"user_id" json:"userId"`
	Label     string    `db:"label" json:"label"`
	IsDeleted bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt time.Time `db:"created_at" json:"createdAt"`
}

// TxLabelMap maps to the tx_labels_map table.
type TxLabelMap struct {
	TxLabelID     int64     `db:"tx_label_id" json:"txLabelId"`
	TransactionID int64     `db:"transaction_id" json:"transactionId"`
	IsDeleted     bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// ProvenTx maps to the proven_txs table (spec.md §3.1). Immutable once
// written.
type ProvenTx struct {
	ProvenTxID int64  `db:"proven_tx_id" json:"provenTxId"`
	Txid       string `db:"txid" json:"txid"`
	Height     uint32 `db:"height" json:"height"`
	Index      uint64 `db:"tx_index" json:"index"`
	MerklePath []byte `db:"merkle_path" json:"merklePath"`
	RawTx      []byte `db:"raw_tx" json:"rawTx"`
	BlockHash  string `db:"block_hash" json:"blockHash"`
	MerkleRoot string `db:"merkle_root" json:"merkleRoot"`
	CreatedAt  time.Time `db:"created_at" json:"createdAt"`
}

// ProvenTxReq maps to the proven_tx_reqs table (spec.md §3.1).
type ProvenTxReq struct {
	ProvenTxReqID int64                 `db:"proven_tx_req_id" json:"provenTxReqId"`
	ProvenTxID    sql.NullInt64         `db:"proven_tx_id" json:"provenTxId,omitempty"`
	Status        wdk.ProvenTxReqStatus `db:"status" json:"status"`
	Attempts      int                   `db:"attempts" json:"attempts"`
	Notified      bool                  `db:"notified" json:"notified"`
	Txid          string                `db:"txid" json:"txid"`
	Batch         sql.NullString        `db:"batch" json:"batch,omitempty"`
	History       string                `db:"history" json:"history"`
	Notify        string                `db:"notify" json:"notify"`
	RawTx         []byte                `db:"raw_tx" json:"rawTx"`
	InputBeef     []byte                `db:"input_beef" json:"inputBeef,omitempty"`
	CreatedAt     time.Time             `db:"created_at" json:"createdAt"`
	UpdatedAt     time.Time             `db:"updated_at" json:"updatedAt"`
}

// CertificateField maps to the certificate_fields table.
type CertificateField struct {
	CertificateID uuid.UUID `db:"certificate_id" json:"certificateId"`
	FieldName     string    `db:"field_name" json:"fieldName"`
	FieldValue    string    `db:"field_value" json:"fieldValue"`
}

// Certificate maps to the certificates table.
type Certificate struct {
	CertificateID uuid.UUID `db:"certificate_id" json:"certificateId"`
	UserID        int64     `db:"user_id" json:"userId"`
	Type          string    `db:"type" json:"type"`
	SerialNumber  string    `db:"serial_number" json:"serialNumber"`
	Subject       string    `db:"subject" json:"subject"`
	Certifier     string    `db:"certifier" json:"certifier"`
	RevocationOutpoint sql.NullString `db:"revocation_outpoint" json:"revocationOutpoint,omitempty"`
	Signature     []byte    `db:"signature" json:"signature"`
	Fields        []CertificateField `db:"-" json:"fields,omitempty"`
	IsDeleted     bool      `db:"is_deleted" json:"isDeleted"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// Commission maps to the commissions table.
type Commission struct {
	CommissionID  int64  `db:"commission_id" json:"commissionId"`
	UserID        int64  `db:"user_id" json:"userId"`
	TransactionID int64  `db:"transaction_id" json:"transactionId"`
	Satoshis      int64  `db:"satoshis" json:"satoshis"`
	KeyOffset     string `db:"key_offset" json:"keyOffset"`
	IsRedeemed    bool   `db:"is_redeemed" json:"isRedeemed"`
	LockingScript []byte `db:"locking_script" json:"lockingScript,omitempty"`
	CreatedAt     time.Time `db:"created_at" json:"createdAt"`
}

// MonitorEvent maps to the monitor_events table (operational audit per
// spec.md §3.1).
type MonitorEvent struct {
	MonitorEventID int64     `db:"monitor_event_id" json:"monitorEventId"`
	TaskName       string    `db:"task_name" json:"taskName"`
	Event          string    `db:"event" json:"event"`
	Details        string    `db:"details" json:"details,omitempty"`
	CreatedAt      time.Time `db:"created_at" json:"createdAt"`
}

// SyncState maps to the sync_states table.
type SyncState struct {
	SyncStateID         int64     `db:"sync_state_id" json:"syncStateId"`
	UserID              int64     `db:"user_id" json:"userId"`
	StorageIdentityKey  string    `db:"storage_identity_key" json:"storageIdentityKey"`
	Status              string    `db:"status" json:"status"`
	When                time.Time `db:"when_msecs" json:"when"`
}

// Settings maps to the singleton settings table (spec.md §3.1, invariant:
// exactly one row per storage identity).
type Settings struct {
	StorageIdentityKey string `db:"storage_identity_key" json:"storageIdentityKey"`
	StorageName        string `db:"storage_name" json:"storageName"`
	Chain              string `db:"chain" json:"chain"`
	DBType             string `db:"dbtype" json:"dbType"`
	MaxOutputScript    int64  `db:"max_output_script" json:"maxOutputScript"`
}
