package signer

import (
	"crypto/sha256"
	"database/sql"
	"encoding/binary"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// hashBytes computes the double-SHA256 digest used for transaction ids,
// reversed to little-endian byte order per Bitcoin convention.
func hashBytes(data []byte) []byte {
	first := sha256.Sum256(data)
	second := sha256.Sum256(first[:])
	reversed := make([]byte, len(second))
	for i := range second {
		reversed[i] = second[len(second)-1-i]
	}
	return reversed
}

func sqlNullInt64(v int64) sql.NullInt64 {
	return sql.NullInt64{Int64: v, Valid: v != 0}
}

func sqlNullString(v string) sql.NullString {
	return sql.NullString{String: v, Valid: v != ""}
}

// assembleUnsigned serializes a create_action request into the placeholder
// byte form the Wallet façade holds until sign_action supplies a real,
// application-signed raw transaction. Actual transaction encoding and script
// evaluation are the underlying BSV SDK's job (spec.md §1); this only needs
// to round-trip enough structure for the pending-action TTL cache to
// validate against on sign_action.
func assembleUnsigned(args wdk.CreateActionArgs) wdk.ByteSlice {
	buf := make([]byte, 0, 16+len(args.Inputs)*8+len(args.Outputs)*8)

	header := make([]byte, 8)
	binary.LittleEndian.PutUint32(header[0:4], uint32(len(args.Inputs)))
	binary.LittleEndian.PutUint32(header[4:8], uint32(len(args.Outputs)))
	buf = append(buf, header...)

	for _, in := range args.Inputs {
		voutBytes := make([]byte, 4)
		binary.LittleEndian.PutUint32(voutBytes, in.OutPoint.Vout)
		buf = append(buf, []byte(in.OutPoint.TxID)...)
		buf = append(buf, voutBytes...)
	}
	for _, out := range args.Outputs {
		satBytes := make([]byte, 8)
		binary.LittleEndian.PutUint64(satBytes, uint64(out.Satoshis))
		buf = append(buf, satBytes...)
		buf = append(buf, out.LockingScript...)
	}
	return buf
}
