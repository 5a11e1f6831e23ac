package identity

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/certen/bsv-wallet-toolbox/internal/wdk"
)

// Snapshot format versions (spec.md §4.5 / §6.3).
const (
	SnapshotVersion1 byte = 1
	SnapshotVersion2 byte = 2
)

// SaveSnapshot serializes the authenticated session's root primary key,
// active profile (version 2 only), and UMP token under a freshly generated
// symmetric snapshot_key (spec.md §4.5's exact binary layout).
func (m *Manager) SaveSnapshot(version byte) ([]byte, error) {
	m.mu.Lock()
	authenticated := m.authenticated
	outpoint := m.currentOutpoint
	primaryKey := append([]byte(nil), m.rootPrimaryKey...)
	profileID := m.activeProfileID
	token := m.token
	m.mu.Unlock()

	if !authenticated || outpoint == "" {
		return nil, wdk.NewError(wdk.KindAuthentication, "save_snapshot requires an authenticated manager with a current UMP token outpoint")
	}
	if version != SnapshotVersion1 && version != SnapshotVersion2 {
		return nil, wdk.InvalidParameter("version", "must be 1 or 2")
	}

	serializedToken, err := json.Marshal(token)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "serialize UMP token: %v", err)
	}

	snapshotKey, err := m.rand.Bytes(32)
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "generate snapshot key: %v", err)
	}

	var plaintext bytes.Buffer
	plaintext.Write(primaryKey)
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(serializedToken)))
	plaintext.Write(lenBuf[:])
	plaintext.Write(serializedToken)

	ciphertext, err := encryptSymmetric(snapshotKey, plaintext.Bytes())
	if err != nil {
		return nil, wdk.NewError(wdk.KindRuntime, "encrypt snapshot: %v", err)
	}

	var out bytes.Buffer
	out.WriteByte(version)
	out.Write(snapshotKey)
	if version == SnapshotVersion2 {
		out.Write(profileID[:])
	}
	out.Write(ciphertext)
	return out.Bytes(), nil
}

// LoadSnapshot reverses SaveSnapshot into a fresh (unauthenticated) Manager,
// arming its in-memory state to match the saved session. Any parse or
// decryption failure returns a Decryption error and leaves the manager
// untouched (spec.md §8 property 3).
func (m *Manager) LoadSnapshot(data []byte) error {
	if len(data) < 1+32 {
		return wdk.Decryption("snapshot too short")
	}
	version := data[0]
	rest := data[1:]

	var profileID [16]byte
	switch version {
	case SnapshotVersion1:
		// no profile id field
	case SnapshotVersion2:
		if len(rest) < 32+16 {
			return wdk.Decryption("snapshot too short for version 2")
		}
		copy(profileID[:], rest[32:32+16])
		joined := make([]byte, 0, len(rest)-16)
		joined = append(joined, rest[:32]...)
		joined = append(joined, rest[32+16:]...)
		rest = joined
	default:
		return wdk.Decryption(fmt.Sprintf("unsupported snapshot version %d", version))
	}

	if len(rest) < 32 {
		return wdk.Decryption("snapshot missing snapshot_key")
	}
	snapshotKey := rest[:32]
	ciphertext := rest[32:]

	plaintext, err := decryptSymmetric(snapshotKey, ciphertext)
	if err != nil {
		return wdk.Decryption("snapshot decryption failed: " + err.Error())
	}
	if len(plaintext) < 32+4 {
		return wdk.Decryption("decrypted snapshot too short")
	}

	primaryKey := append([]byte(nil), plaintext[:32]...)
	tokenLen := binary.BigEndian.Uint32(plaintext[32:36])
	if uint32(len(plaintext)-36) < tokenLen {
		return wdk.Decryption("decrypted snapshot token length mismatch")
	}
	tokenBytes := plaintext[36 : 36+tokenLen]

	var token UMPToken
	if err := json.Unmarshal(tokenBytes, &token); err != nil {
		return wdk.Decryption("deserialize UMP token: " + err.Error())
	}

	m.mu.Lock()
	m.rootPrimaryKey = primaryKey
	m.token = &token
	m.activeProfileID = profileID
	m.authenticated = true
	m.mu.Unlock()

	select {
	case <-m.authCh:
	default:
		close(m.authCh)
	}
	return nil
}
