package persistence

import (
	"encoding/json"
	"fmt"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
)

// MarshalSnapshot serializes a snapshot to its ledger JSON document.
func MarshalSnapshot(snap *ledger.Snapshot) ([]byte, error) {
	if snap == nil {
		return nil, fmt.Errorf("cannot marshal nil Snapshot")
	}
	if snap.ID == "" {
		return nil, fmt.Errorf("cannot marshal Snapshot without an ID")
	}

	data, err := json.Marshal(snap)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal Snapshot to JSON: %w", err)
	}

	return data, nil
}

// UnmarshalSnapshot decodes a ledger JSON document. The tree is rebuilt and
// checked against the stored root; a mismatch wraps ledger.ErrMalformed.
func UnmarshalSnapshot(data []byte) (*ledger.Snapshot, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	snap, err := ledger.Decode(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to Snapshot: %w", err)
	}

	return snap, nil
}

// MarshalSnapshotMeta serializes SnapshotMeta to JSON bytes.
func MarshalSnapshotMeta(meta *SnapshotMeta) ([]byte, error) {
	if meta == nil {
		return nil, fmt.Errorf("cannot marshal nil SnapshotMeta")
	}

	return json.Marshal(meta)
}

// UnmarshalSnapshotMeta deserializes SnapshotMeta from JSON bytes.
func UnmarshalSnapshotMeta(data []byte) (*SnapshotMeta, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("cannot unmarshal empty data")
	}

	var meta SnapshotMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("failed to unmarshal JSON to SnapshotMeta: %w", err)
	}

	return &meta, nil
}
