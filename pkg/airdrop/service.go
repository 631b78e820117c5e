// Package airdrop runs the snapshot pipeline end to end and serves proofs
// from committed snapshots.
package airdrop

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/aggregator"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

var (
	// ErrNoActiveSnapshot is returned when proofs are requested before any snapshot was activated.
	ErrNoActiveSnapshot = errors.New("no active snapshot")

	// ErrEmptyPools is returned when a snapshot is built with nothing to distribute.
	ErrEmptyPools = errors.New("pools are empty")

	// ErrValidationFailed is returned when a freshly committed snapshot produces a proof that does not verify.
	ErrValidationFailed = errors.New("snapshot proof validation failed")
)

// Config holds the parameters of one airdrop run.
type Config struct {
	Round             uint64
	Blocks            map[string]uint64
	Pools             shares.Pools
	ExcludedAddresses []string
	Rules             []shares.RedistributionRule

	// Workers sizes the post-commit validation sweep; 0 uses GOMAXPROCS
	Workers int

	Logger *zap.Logger
}

// Service builds snapshots and serves proofs.
type Service struct {
	cfg        Config
	aggregator *aggregator.Aggregator
	calculator *shares.Calculator
	store      persistence.ISnapshotPersistence
	logger     *zap.Logger

	// snapshot cache keyed by ID; snapshots are immutable once stored
	mu    sync.RWMutex
	cache map[string]*ledger.Snapshot
}

// NewService wires the pipeline over the given store. Pools are only needed
// by BuildSnapshot; a proof-serving service may leave them empty.
func NewService(cfg Config, store persistence.ISnapshotPersistence) (*Service, error) {
	if store == nil {
		return nil, errors.New("snapshot store cannot be nil")
	}
	for _, rule := range cfg.Rules {
		if v, ok := rule.(interface{ Validate() error }); ok {
			if err := v.Validate(); err != nil {
				return nil, errors.Wrapf(err, "invalid redistribution rule %s", rule.Name())
			}
		}
	}

	l := cfg.Logger
	if l == nil {
		l = zap.NewNop()
	}

	return &Service{
		cfg:        cfg,
		aggregator: aggregator.NewAggregator(&aggregator.Config{ExcludedAddresses: cfg.ExcludedAddresses}),
		calculator: shares.NewCalculator(cfg.Pools, l, cfg.Rules...),
		store:      store,
		logger:     l,
		cache:      make(map[string]*ledger.Snapshot),
	}, nil
}

// BuildSnapshot merges the partial sources, computes allocations, commits
// them into a snapshot, verifies every proof and stores the result.
//
// The new snapshot becomes active unless the active snapshot belongs to a
// later round.
func (s *Service) BuildSnapshot(ctx context.Context, partials ...map[string]*types.PartialRecord) (*ledger.Snapshot, error) {
	if s.cfg.Pools.Total().Sign() == 0 {
		return nil, ErrEmptyPools
	}

	start := time.Now()
	sugar := s.logger.Sugar()

	merged := s.aggregator.Merge(partials...)
	sugar.Infow("Merged balance sources", "sources", len(partials), "addresses", len(merged))

	result := shares.CalcShares(merged)
	sugar.Debugw("Computed shares",
		"total_balance", result.TotalBalance.String(),
		"total_claims", result.TotalClaims.String(),
		"total_stake", result.TotalStake.String())

	entries, err := s.calculator.Allocate(result)
	if err != nil {
		return nil, errors.Wrap(err, "failed to allocate pools")
	}

	snap, err := ledger.Commit(entries, ledger.SnapshotParams{
		Round:  s.cfg.Round,
		Blocks: s.cfg.Blocks,
		Pools:  s.cfg.Pools,
	})
	if err != nil {
		return nil, errors.Wrap(err, "failed to commit snapshot")
	}

	validation, err := ledger.ValidateAll(ctx, snap, s.cfg.Workers)
	if err != nil {
		return nil, errors.Wrap(err, "failed to validate snapshot")
	}
	if !validation.OK() {
		sugar.Errorw("Snapshot validation failed",
			"snapshot_id", snap.ID,
			"invalid", validation.Invalid,
			"first_failure", validation.Failures[0].Error)
		return nil, errors.Wrapf(ErrValidationFailed, "%d of %d proofs invalid", validation.Invalid, validation.Total)
	}

	if err := s.store.SaveSnapshot(snap); err != nil {
		return nil, errors.Wrap(err, "failed to store snapshot")
	}
	s.remember(snap)

	activated, err := s.activateIfNewer(snap)
	if err != nil {
		return nil, err
	}

	s.logSummary(snap, entries, activated, time.Since(start))
	return snap, nil
}

// activateIfNewer makes snap the active snapshot unless a later round is active
func (s *Service) activateIfNewer(snap *ledger.Snapshot) (bool, error) {
	activeID, err := s.store.GetActiveSnapshotID()
	if err != nil {
		return false, errors.Wrap(err, "failed to read active snapshot")
	}
	if activeID != "" {
		active, err := s.Snapshot(activeID)
		if err != nil && !errors.Is(err, persistence.ErrSnapshotNotFound) {
			return false, err
		}
		if active != nil && active.Params.Round > snap.Params.Round {
			s.logger.Sugar().Warnw("Keeping active snapshot from a later round",
				"active_id", activeID,
				"active_round", active.Params.Round,
				"snapshot_id", snap.ID,
				"round", snap.Params.Round)
			return false, nil
		}
	}

	if err := s.store.SetActiveSnapshotID(snap.ID); err != nil {
		return false, errors.Wrap(err, "failed to activate snapshot")
	}
	return true, nil
}

func (s *Service) logSummary(snap *ledger.Snapshot, entries []*types.AllocationEntry, activated bool, elapsed time.Duration) {
	fields := []interface{}{
		"snapshot_id", snap.ID,
		"round", snap.Params.Round,
		"merkle_root", snap.RootHex(),
		"entries", snap.Len(),
		"total_amount", snap.TotalAmount().String(),
		"pools_total", s.cfg.Pools.Total().String(),
		"active", activated,
		"duration", elapsed.String(),
	}
	if len(entries) > 0 {
		top := entries[0]
		fields = append(fields,
			"top_address", top.Address.Hex(),
			"top_amount", top.AllocatedAmount.String())
	}
	s.logger.Sugar().Infow("Snapshot committed", fields...)
}

// Activate marks a stored snapshot as the one proofs are served from.
func (s *Service) Activate(id string) error {
	if err := s.store.SetActiveSnapshotID(id); err != nil {
		return errors.Wrapf(err, "failed to activate snapshot %s", id)
	}
	s.logger.Sugar().Infow("Activated snapshot", "snapshot_id", id)
	return nil
}

// ActiveSnapshot returns the snapshot proofs are currently served from.
func (s *Service) ActiveSnapshot() (*ledger.Snapshot, error) {
	id, err := s.store.GetActiveSnapshotID()
	if err != nil {
		return nil, errors.Wrap(err, "failed to read active snapshot")
	}
	if id == "" {
		return nil, ErrNoActiveSnapshot
	}
	return s.Snapshot(id)
}

// Snapshot returns a stored snapshot by ID, or persistence.ErrSnapshotNotFound.
func (s *Service) Snapshot(id string) (*ledger.Snapshot, error) {
	s.mu.RLock()
	snap, ok := s.cache[id]
	s.mu.RUnlock()
	if ok {
		return snap, nil
	}

	snap, err := s.store.LoadSnapshot(id)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to load snapshot %s", id)
	}
	if snap == nil {
		return nil, errors.Wrapf(persistence.ErrSnapshotNotFound, "%s", id)
	}
	s.remember(snap)
	return snap, nil
}

// ProofFor returns addr's proof from the active snapshot. Balances are never re-read.
func (s *Service) ProofFor(addr common.Address) (*ledger.Proof, error) {
	snap, err := s.ActiveSnapshot()
	if err != nil {
		return nil, err
	}
	return snap.ProofFor(addr)
}

// ProofFromSnapshot returns addr's proof from the named snapshot.
func (s *Service) ProofFromSnapshot(id string, addr common.Address) (*ledger.Proof, error) {
	snap, err := s.Snapshot(id)
	if err != nil {
		return nil, err
	}
	return snap.ProofFor(addr)
}

// ListSnapshots returns the stored snapshot summaries in round order.
func (s *Service) ListSnapshots() ([]*persistence.SnapshotMeta, error) {
	return s.store.ListSnapshots()
}

// Undistributed returns how much of the pools the snapshot leaves unallocated
// because of floor rounding.
func Undistributed(snap *ledger.Snapshot) *big.Int {
	return new(big.Int).Sub(snap.Params.Pools.Total(), snap.TotalAmount())
}

func (s *Service) remember(snap *ledger.Snapshot) {
	s.mu.Lock()
	s.cache[snap.ID] = snap
	s.mu.Unlock()
}

// HealthCheck reports whether the snapshot store is reachable.
func (s *Service) HealthCheck() error {
	return s.store.HealthCheck()
}
