package ledger

import "github.com/pkg/errors"

var (
	// ErrEmptySnapshot is returned when a snapshot is committed without entries.
	ErrEmptySnapshot = errors.New("snapshot has no entries")

	// ErrNotFound is returned when a proof is requested for an address outside the snapshot.
	ErrNotFound = errors.New("address not found in snapshot")

	// ErrMalformed is returned when a ledger cannot be parsed or does not match its stored root.
	ErrMalformed = errors.New("malformed ledger")
)
