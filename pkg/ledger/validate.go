package ledger

import (
	"context"
	"fmt"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/merkle"
)

// ValidationResult summarizes a full proof sweep over a snapshot.
type ValidationResult struct {
	Total          int               `json:"total"`
	Valid          int               `json:"valid"`
	Invalid        int               `json:"invalid"`
	Failures       []ValidationError `json:"failures"`
	ValidationTime time.Duration     `json:"validationTime"`
}

// ValidationError describes one leaf whose proof did not verify.
type ValidationError struct {
	Index   int    `json:"index"`
	Address string `json:"address"`
	Error   string `json:"error"`
}

// OK reports whether every proof verified.
func (r *ValidationResult) OK() bool {
	return r.Invalid == 0 && r.Valid == r.Total
}

// ValidateAll regenerates the proof of every leaf and verifies it against the
// snapshot root, with and without the leaf count, using a pool of workers.
// workers <= 0 uses GOMAXPROCS. Failures are reported in leaf order.
func ValidateAll(ctx context.Context, snap *Snapshot, workers int) (*ValidationResult, error) {
	if snap == nil || snap.Len() == 0 {
		return nil, ErrEmptySnapshot
	}
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > snap.Len() {
		workers = snap.Len()
	}

	start := time.Now()
	indices := make(chan int, workers)
	failures := make(chan ValidationError, snap.Len())

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range indices {
				if err := validateLeaf(snap, index); err != nil {
					failures <- ValidationError{
						Index:   index,
						Address: snap.leaves[index-1].Address.Hex(),
						Error:   err.Error(),
					}
				}
			}
		}()
	}

	var ctxErr error
feed:
	for i := 1; i <= snap.Len(); i++ {
		if ctxErr = ctx.Err(); ctxErr != nil {
			break
		}
		select {
		case <-ctx.Done():
			ctxErr = ctx.Err()
			break feed
		case indices <- i:
		}
	}
	close(indices)
	wg.Wait()
	close(failures)

	if ctxErr != nil {
		return nil, ctxErr
	}

	result := &ValidationResult{
		Total:    snap.Len(),
		Failures: make([]ValidationError, 0),
	}
	for f := range failures {
		result.Failures = append(result.Failures, f)
	}
	sortFailures(result.Failures)
	result.Invalid = len(result.Failures)
	result.Valid = result.Total - result.Invalid
	result.ValidationTime = time.Since(start)

	return result, nil
}

func validateLeaf(snap *Snapshot, index int) error {
	proof, err := snap.ProofAt(index)
	if err != nil {
		return err
	}

	leaf, err := HashLeaf(proof.Address, proof.Amount)
	if err != nil {
		return err
	}
	if leaf != snap.leaves[index-1].Hash {
		return fmt.Errorf("leaf hash mismatch")
	}

	siblings := proof.siblings()
	if !merkle.VerifyOrdered(siblings, snap.Root, leaf, index) {
		return fmt.Errorf("proof does not verify")
	}
	if !merkle.VerifyOrderedWithCount(siblings, snap.Root, leaf, index, snap.Len()) {
		return fmt.Errorf("proof does not verify against leaf count %d", snap.Len())
	}
	return nil
}

func sortFailures(failures []ValidationError) {
	sort.Slice(failures, func(i, j int) bool {
		return failures[i].Index < failures[j].Index
	})
}
