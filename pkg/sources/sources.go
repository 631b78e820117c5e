// Package sources loads per-source partial balance files.
//
// Each file describes what one data source (a chain, a staking contract, a
// claims index) observed. Fields absent from a file stay nil in the resulting
// PartialRecord so the aggregator can tell "not observed" from zero.
package sources

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"io"
	"math/big"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/util"
)

var (
	ErrDuplicateAddress = errors.New("duplicate address")
	ErrInvalidRecord    = errors.New("invalid record")
)

const (
	colAddress       = "address"
	colBalance       = "balance"
	colClaims        = "claims"
	colStake         = "stake"
	colIsNotContract = "isnotcontract"
)

// LoadFile reads a partial balance file, picking the format from the extension
func LoadFile(path string) (map[string]*types.PartialRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open source %s", path)
	}
	defer f.Close()

	var records map[string]*types.PartialRecord
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		records, err = ReadCSV(f)
	default:
		records, err = ReadJSON(f)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load source %s", path)
	}
	return records, nil
}

// jsonRecord is one address entry of a JSON source file
type jsonRecord struct {
	Balance       *amount `json:"balance"`
	Claims        *amount `json:"claims"`
	Stake         *amount `json:"stake"`
	IsNotContract *bool   `json:"isNotContract"`
}

// amount accepts a JSON number or a decimal string
type amount struct {
	v *big.Int
}

func (a *amount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	s := string(data)
	if len(data) > 0 && data[0] == '"' {
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
	}
	v, err := parseAmount(s)
	if err != nil {
		return err
	}
	a.v = v
	return nil
}

// ReadJSON decodes an object keyed by address:
//
//	{"0xabc...": {"balance": "1000", "claims": 3, "stake": 0, "isNotContract": true}}
func ReadJSON(r io.Reader) (map[string]*types.PartialRecord, error) {
	dec := json.NewDecoder(r)

	var raw map[string]jsonRecord
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrap(err, "failed to decode json source")
	}

	out := make(map[string]*types.PartialRecord, len(raw))
	for addr, rec := range raw {
		key, err := util.NormalizeAddress(addr)
		if err != nil {
			return nil, errors.Wrap(ErrInvalidRecord, err.Error())
		}
		if _, dup := out[key]; dup {
			return nil, errors.Wrapf(ErrDuplicateAddress, "%s", key)
		}

		p := &types.PartialRecord{IsNotContract: rec.IsNotContract}
		if rec.Balance != nil {
			p.Balance = rec.Balance.v
		}
		if rec.Stake != nil {
			p.Stake = rec.Stake.v
		}
		if rec.Claims != nil && rec.Claims.v != nil {
			if !rec.Claims.v.IsUint64() {
				return nil, errors.Wrapf(ErrInvalidRecord, "%s: claims out of range", key)
			}
			c := rec.Claims.v.Uint64()
			p.Claims = &c
		}
		out[key] = p
	}
	return out, nil
}

// ReadCSV decodes a CSV file whose header names the columns. Only the address
// column is required; empty cells leave the field unobserved.
func ReadCSV(r io.Reader) (map[string]*types.PartialRecord, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read csv header")
	}
	cols := make(map[string]int, len(header))
	for i, h := range header {
		cols[strings.ToLower(strings.TrimSpace(h))] = i
	}
	if _, ok := cols[colAddress]; !ok {
		return nil, errors.Wrap(ErrInvalidRecord, "csv header has no address column")
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	out := make(map[string]*types.PartialRecord)
	line := 1
	for {
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.Wrapf(err, "failed to read csv line %d", line)
		}

		key, err := util.NormalizeAddress(cell(row, colAddress))
		if err != nil {
			return nil, errors.Wrapf(ErrInvalidRecord, "line %d: %s", line, err)
		}
		if _, dup := out[key]; dup {
			return nil, errors.Wrapf(ErrDuplicateAddress, "line %d: %s", line, key)
		}

		p := &types.PartialRecord{}
		if s := cell(row, colBalance); s != "" {
			if p.Balance, err = parseAmount(s); err != nil {
				return nil, errors.Wrapf(ErrInvalidRecord, "line %d: balance: %s", line, err)
			}
		}
		if s := cell(row, colStake); s != "" {
			if p.Stake, err = parseAmount(s); err != nil {
				return nil, errors.Wrapf(ErrInvalidRecord, "line %d: stake: %s", line, err)
			}
		}
		if s := cell(row, colClaims); s != "" {
			c, err := strconv.ParseUint(s, 10, 64)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidRecord, "line %d: claims: %s", line, err)
			}
			p.Claims = &c
		}
		if s := cell(row, colIsNotContract); s != "" {
			b, err := strconv.ParseBool(s)
			if err != nil {
				return nil, errors.Wrapf(ErrInvalidRecord, "line %d: isNotContract: %s", line, err)
			}
			p.IsNotContract = &b
		}
		out[key] = p
	}
	return out, nil
}

func parseAmount(s string) (*big.Int, error) {
	v, ok := new(big.Int).SetString(strings.TrimSpace(s), 10)
	if !ok {
		return nil, errors.Errorf("invalid integer %q", s)
	}
	if v.Sign() < 0 {
		return nil, errors.Errorf("negative amount %q", s)
	}
	return v, nil
}
