package ledger

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/pkg/errors"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/util"
)

type treeEntryJSON struct {
	Amount string `json:"amount"`
	Hash   string `json:"hash"`
}

type snapshotHeaderJSON struct {
	ID             string          `json:"id,omitempty"`
	MerkleRoot     string          `json:"merkleRoot"`
	TotalAmount    string          `json:"totalAmount,omitempty"`
	SnapshotParams SnapshotParams  `json:"snapshotParams"`
	TreeData       json.RawMessage `json:"treeData"`
}

// MarshalJSON writes the ledger document. treeData keys are emitted in leaf
// order so that a reader rebuilding the tree from it gets the same root.
func (s *Snapshot) MarshalJSON() ([]byte, error) {
	var tree bytes.Buffer
	tree.WriteByte('{')
	for i, leaf := range s.leaves {
		if i > 0 {
			tree.WriteByte(',')
		}
		key, err := json.Marshal(util.AddressKey(leaf.Address))
		if err != nil {
			return nil, err
		}
		value, err := json.Marshal(treeEntryJSON{
			Amount: leaf.Amount.String(),
			Hash:   hexutil.Encode(leaf.Hash[:]),
		})
		if err != nil {
			return nil, err
		}
		tree.Write(key)
		tree.WriteByte(':')
		tree.Write(value)
	}
	tree.WriteByte('}')

	return json.Marshal(snapshotHeaderJSON{
		ID:             s.ID,
		MerkleRoot:     s.RootHex(),
		TotalAmount:    s.TotalAmount().String(),
		SnapshotParams: s.Params,
		TreeData:       tree.Bytes(),
	})
}

// Decode parses a ledger document, recomputes every leaf hash from its
// address and amount, rebuilds the tree in treeData order and checks the
// result against merkleRoot. Any mismatch returns ErrMalformed.
func Decode(data []byte) (*Snapshot, error) {
	var header snapshotHeaderJSON
	if err := json.Unmarshal(data, &header); err != nil {
		return nil, errors.Wrapf(ErrMalformed, "invalid ledger document: %v", err)
	}

	storedRoot, err := parseHash(header.MerkleRoot)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "merkleRoot: %v", err)
	}

	leaves, err := decodeTreeData(header.TreeData)
	if err != nil {
		return nil, err
	}
	if len(leaves) == 0 {
		return nil, errors.Wrap(ErrMalformed, "treeData is empty")
	}

	snap, err := newSnapshot(header.ID, leaves, header.SnapshotParams)
	if err != nil {
		if errors.Is(err, ErrMalformed) {
			return nil, err
		}
		return nil, errors.Wrap(ErrMalformed, err.Error())
	}
	if snap.Root != storedRoot {
		return nil, errors.Wrapf(ErrMalformed, "recomputed root %s does not match stored root %s", snap.RootHex(), header.MerkleRoot)
	}
	if header.TotalAmount != "" && header.TotalAmount != snap.TotalAmount().String() {
		return nil, errors.Wrapf(ErrMalformed, "totalAmount %s does not match leaves sum %s", header.TotalAmount, snap.TotalAmount().String())
	}
	return snap, nil
}

// UnmarshalJSON decodes through Decode so the same integrity checks apply.
func (s *Snapshot) UnmarshalJSON(data []byte) error {
	snap, err := Decode(data)
	if err != nil {
		return err
	}
	*s = *snap
	return nil
}

// decodeTreeData walks the treeData object token by token to keep key order.
func decodeTreeData(raw json.RawMessage) ([]Leaf, error) {
	if len(raw) == 0 {
		return nil, errors.Wrap(ErrMalformed, "treeData is missing")
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	tok, err := dec.Token()
	if err != nil {
		return nil, errors.Wrapf(ErrMalformed, "treeData: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return nil, errors.Wrap(ErrMalformed, "treeData must be an object")
	}

	var leaves []Leaf
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, errors.Wrapf(ErrMalformed, "treeData: %v", err)
		}
		key, ok := tok.(string)
		if !ok {
			return nil, errors.Wrap(ErrMalformed, "treeData key is not a string")
		}

		var entry treeEntryJSON
		if err := dec.Decode(&entry); err != nil {
			return nil, errors.Wrapf(ErrMalformed, "treeData[%s]: %v", key, err)
		}

		leaf, err := decodeLeaf(key, entry)
		if err != nil {
			return nil, err
		}
		leaves = append(leaves, leaf)
	}

	if _, err := dec.Token(); err != nil && err != io.EOF {
		return nil, errors.Wrapf(ErrMalformed, "treeData: %v", err)
	}
	return leaves, nil
}

func decodeLeaf(key string, entry treeEntryJSON) (Leaf, error) {
	if _, err := util.NormalizeAddress(key); err != nil {
		return Leaf{}, errors.Wrapf(ErrMalformed, "treeData key: %v", err)
	}
	addr := common.HexToAddress(key)

	amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
	if !ok {
		return Leaf{}, errors.Wrapf(ErrMalformed, "treeData[%s]: invalid amount %q", key, entry.Amount)
	}

	stored, err := parseHash(entry.Hash)
	if err != nil {
		return Leaf{}, errors.Wrapf(ErrMalformed, "treeData[%s].hash: %v", key, err)
	}

	computed, err := HashLeaf(addr, amount)
	if err != nil {
		return Leaf{}, errors.Wrapf(ErrMalformed, "treeData[%s]: %v", key, err)
	}
	if computed != stored {
		return Leaf{}, errors.Wrapf(ErrMalformed, "treeData[%s]: hash does not match address and amount", key)
	}

	return Leaf{Address: addr, Amount: amount, Hash: computed}, nil
}

func parseHash(s string) ([32]byte, error) {
	var out [32]byte
	b, err := hexutil.Decode(strings.TrimSpace(s))
	if err != nil {
		return out, err
	}
	if len(b) != 32 {
		return out, errors.Errorf("expected 32 bytes, got %d", len(b))
	}
	copy(out[:], b)
	return out, nil
}
