package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/airdrop"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/config"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/logger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/server"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/sources"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/types"
)

func calculateCommand(c *cli.Context) error {
	cfg, err := config.LoadConfigFile(c.String("config"))
	if err != nil {
		return err
	}
	if c.IsSet("round") {
		cfg.Round = c.Uint64("round")
	}
	if c.IsSet("workers") {
		cfg.Workers = c.Int("workers")
	}
	cfg.Persistence = overridePersistence(c, cfg.Persistence)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: cfg.Debug || c.Bool("verbose")})
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer func() { _ = l.Sync() }()

	pools, err := cfg.Pools.ToPools()
	if err != nil {
		return fmt.Errorf("invalid pools: %w", err)
	}

	var rules []shares.RedistributionRule
	if cfg.Redistribution != nil {
		rule, err := cfg.Redistribution.ToRule()
		if err != nil {
			return fmt.Errorf("invalid redistribution: %w", err)
		}
		rules = append(rules, rule)
	}

	partials := make([]map[string]*types.PartialRecord, 0, len(c.StringSlice("source")))
	for _, path := range c.StringSlice("source") {
		records, err := sources.LoadFile(path)
		if err != nil {
			return err
		}
		l.Sugar().Infow("Loaded balance source", "path", path, "addresses", len(records))
		partials = append(partials, records)
	}

	store, err := airdrop.OpenStore(cfg.Persistence, l)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	svc, err := airdrop.NewService(airdrop.Config{
		Round:             cfg.Round,
		Blocks:            cfg.BlocksByName(),
		Pools:             pools,
		ExcludedAddresses: cfg.ExcludedAddresses,
		Rules:             rules,
		Workers:           cfg.Workers,
		Logger:            l,
	}, store)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snap, err := svc.BuildSnapshot(ctx, partials...)
	if err != nil {
		return err
	}

	if out := c.String("out"); out != "" {
		data, err := json.MarshalIndent(snap, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode ledger: %w", err)
		}
		if err := os.WriteFile(out, data, 0o644); err != nil {
			return fmt.Errorf("failed to write ledger: %w", err)
		}
		l.Sugar().Infow("Wrote ledger", "path", out)
	}

	return printJSON(persistence.MetaFromSnapshot(snap))
}

func proofCommand(c *cli.Context) error {
	addrHex := c.String("address")
	if !common.IsHexAddress(addrHex) {
		return fmt.Errorf("invalid address: %s", addrHex)
	}
	addr := common.HexToAddress(addrHex)

	snap, cleanup, err := resolveSnapshot(c)
	if err != nil {
		return err
	}
	defer cleanup()

	proof, err := snap.ProofFor(addr)
	if err != nil {
		return fmt.Errorf("no proof for %s in snapshot %s: %w", addr.Hex(), snap.ID, err)
	}
	return printJSON(proof)
}

func verifyCommand(c *cli.Context) error {
	snap, cleanup, err := resolveSnapshot(c)
	if err != nil {
		return err
	}
	defer cleanup()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	result, err := ledger.ValidateAll(ctx, snap, c.Int("workers"))
	if err != nil {
		return fmt.Errorf("failed to validate snapshot: %w", err)
	}
	if err := printJSON(result); err != nil {
		return err
	}
	if !result.OK() {
		return cli.Exit(fmt.Sprintf("%d of %d proofs failed verification", result.Invalid, result.Total), 1)
	}
	return nil
}

func listCommand(c *cli.Context) error {
	svc, l, cleanup, err := openService(c)
	if err != nil {
		return err
	}
	defer cleanup()

	metas, err := svc.ListSnapshots()
	if err != nil {
		return err
	}
	if active, err := svc.ActiveSnapshot(); err == nil {
		l.Sugar().Infow("Active snapshot", "snapshot_id", active.ID, "round", active.Params.Round)
	}
	return printJSON(metas)
}

func activateCommand(c *cli.Context) error {
	id := c.Args().First()
	if id == "" {
		return fmt.Errorf("snapshot id is required")
	}

	svc, _, cleanup, err := openService(c)
	if err != nil {
		return err
	}
	defer cleanup()

	return svc.Activate(id)
}

func serveCommand(c *cli.Context) error {
	svc, l, cleanup, err := openService(c)
	if err != nil {
		return err
	}
	defer cleanup()

	rps := c.Float64("rate-limit")
	srv := server.NewServer(server.Config{
		Port:              c.Int("port"),
		RequestsPerSecond: rps,
		Burst:             int(rps) + 1,
	}, svc, l)
	if err := srv.Start(); err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}
	l.Sugar().Infow("Proof server running", "port", c.Int("port"), "rate_limit", rps)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	l.Sugar().Info("Shutting down proof server")
	return srv.Stop(shutdownCtx)
}

// resolveSnapshot reads a ledger file when --ledger is given, otherwise the
// requested or active snapshot from the store
func resolveSnapshot(c *cli.Context) (*ledger.Snapshot, func(), error) {
	if path := c.String("ledger"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to read ledger: %w", err)
		}
		snap, err := ledger.Decode(data)
		if err != nil {
			return nil, nil, fmt.Errorf("failed to decode ledger %s: %w", path, err)
		}
		return snap, func() {}, nil
	}

	svc, _, cleanup, err := openService(c)
	if err != nil {
		return nil, nil, err
	}

	var snap *ledger.Snapshot
	if id := c.String("snapshot-id"); id != "" {
		snap, err = svc.Snapshot(id)
	} else {
		snap, err = svc.ActiveSnapshot()
	}
	if err != nil {
		cleanup()
		return nil, nil, err
	}
	return snap, cleanup, nil
}

// openService opens the store from the global flags for read-only commands
func openService(c *cli.Context) (*airdrop.Service, *zap.Logger, func(), error) {
	l, err := logger.NewLogger(&logger.LoggerConfig{Debug: c.Bool("verbose")})
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to create logger: %w", err)
	}

	store, err := airdrop.OpenStore(overridePersistence(c, config.PersistenceConfig{}), l)
	if err != nil {
		return nil, nil, nil, err
	}

	svc, err := airdrop.NewService(airdrop.Config{Logger: l}, store)
	if err != nil {
		_ = store.Close()
		return nil, nil, nil, err
	}

	cleanup := func() {
		_ = store.Close()
		_ = l.Sync()
	}
	return svc, l, cleanup, nil
}

// overridePersistence applies the persistence flags on top of base. A flag
// wins when it was set explicitly or base leaves the field empty.
func overridePersistence(c *cli.Context, base config.PersistenceConfig) config.PersistenceConfig {
	pick := func(name, current string) string {
		if c.IsSet(name) || current == "" {
			return c.String(name)
		}
		return current
	}

	base.Type = config.PersistenceType(pick("persistence-type", string(base.Type)))
	base.DataPath = pick("data-path", base.DataPath)
	base.Redis.Address = pick("redis-address", base.Redis.Address)
	base.Redis.Password = pick("redis-password", base.Redis.Password)
	base.Redis.KeyPrefix = pick("redis-key-prefix", base.Redis.KeyPrefix)
	base.Postgres.DSN = pick("postgres-dsn", base.Postgres.DSN)
	base.Postgres.Schema = pick("postgres-schema", base.Postgres.Schema)
	if c.IsSet("redis-db") {
		base.Redis.DB = c.Int("redis-db")
	}
	return base
}

func printJSON(v interface{}) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
