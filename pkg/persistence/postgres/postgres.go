package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/ledger"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/persistence"
)

const (
	defaultSchema  = "airdrop"
	defaultTimeout = 5 * time.Second

	metadataSchemaVersion = "schema_version"
)

// PostgresConfig holds the configuration for connecting to PostgreSQL
type PostgresConfig struct {
	// DSN is a libpq style connection string or postgres:// URL
	DSN string
	// Schema is the PostgreSQL schema holding the airdrop tables. Defaults to "airdrop".
	Schema string
	// MaxConns caps the pool size; 0 keeps the pgxpool default
	MaxConns int32
}

// PostgresPersistence stores snapshots in PostgreSQL.
//
// Ledger documents are kept as BYTEA, not JSONB: JSONB does not preserve
// object key order and treeData order is the tree order.
type PostgresPersistence struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
	tables tableNames
	mu     sync.RWMutex
	closed bool
}

type tableNames struct {
	schema    string
	snapshots string
	active    string
	metadata  string
}

func newTableNames(schema string) tableNames {
	return tableNames{
		schema:    pgx.Identifier{schema}.Sanitize(),
		snapshots: pgx.Identifier{schema, "snapshots"}.Sanitize(),
		active:    pgx.Identifier{schema, "active_snapshot"}.Sanitize(),
		metadata:  pgx.Identifier{schema, "metadata"}.Sanitize(),
	}
}

// NewPostgresPersistence connects, creates the schema if needed and validates its version.
func NewPostgresPersistence(cfg *PostgresConfig, logger *zap.Logger) (*PostgresPersistence, error) {
	if cfg == nil {
		return nil, fmt.Errorf("postgres config cannot be nil")
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("postgres dsn cannot be empty")
	}

	schema := cfg.Schema
	if schema == "" {
		schema = defaultSchema
	}

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("invalid postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	pp := &PostgresPersistence{
		pool:   pool,
		logger: logger,
		tables: newTableNames(schema),
	}

	if err := pp.initSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Sugar().Infow("Postgres persistence initialized", "schema", schema)

	return pp, nil
}

// initSchema creates the tables and initializes or validates the schema version
func (p *PostgresPersistence) initSchema(ctx context.Context) error {
	statements := []string{
		fmt.Sprintf(`CREATE SCHEMA IF NOT EXISTS %s`, p.tables.schema),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			key   TEXT PRIMARY KEY,
			value TEXT NOT NULL
		)`, p.tables.metadata),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			id           TEXT PRIMARY KEY,
			round        BIGINT NOT NULL,
			merkle_root  TEXT NOT NULL,
			leaf_count   INTEGER NOT NULL,
			total_amount TEXT NOT NULL,
			created_at   TIMESTAMPTZ NOT NULL,
			document     BYTEA NOT NULL
		)`, p.tables.snapshots),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
			slot        SMALLINT PRIMARY KEY CHECK (slot = 1),
			snapshot_id TEXT NOT NULL REFERENCES %s (id)
		)`, p.tables.active, p.tables.snapshots),
	}
	for _, stmt := range statements {
		if _, err := p.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create tables: %w", err)
		}
	}

	_, err := p.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (key, value) VALUES ($1, $2) ON CONFLICT (key) DO NOTHING`, p.tables.metadata),
		metadataSchemaVersion, persistence.CurrentSchemaVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to write schema version: %w", err)
	}

	var existingVersion string
	err = p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.tables.metadata),
		metadataSchemaVersion,
	).Scan(&existingVersion)
	if err != nil {
		return fmt.Errorf("failed to read schema version: %w", err)
	}
	if existingVersion != persistence.CurrentSchemaVersion {
		return fmt.Errorf("unsupported schema version: %s (expected: %s)", existingVersion, persistence.CurrentSchemaVersion)
	}

	return nil
}

// SaveSnapshot inserts the snapshot row; an existing ID leaves the row untouched
func (p *PostgresPersistence) SaveSnapshot(snap *ledger.Snapshot) error {
	if snap == nil {
		return fmt.Errorf("cannot save nil Snapshot")
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	data, err := persistence.MarshalSnapshot(snap)
	if err != nil {
		return err
	}
	meta := persistence.MetaFromSnapshot(snap)

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, round, merkle_root, leaf_count, total_amount, created_at, document)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (id) DO NOTHING`, p.tables.snapshots),
		meta.ID, int64(meta.Round), meta.MerkleRoot, meta.LeafCount, meta.TotalAmount, meta.CreatedAt, data,
	)
	if err != nil {
		return fmt.Errorf("failed to save Snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotExists, snap.ID)
	}

	return nil
}

// LoadSnapshot retrieves and re-verifies a snapshot
func (p *PostgresPersistence) LoadSnapshot(id string) (*ledger.Snapshot, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var data []byte
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT document FROM %s WHERE id = $1`, p.tables.snapshots),
		id,
	).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil // Not found is not an error
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load Snapshot: %w", err)
	}

	return persistence.UnmarshalSnapshot(data)
}

// ListSnapshots returns every snapshot summary ordered by round, creation time and ID
func (p *PostgresPersistence) ListSnapshots() ([]*persistence.SnapshotMeta, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return nil, persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	rows, err := p.pool.Query(ctx,
		fmt.Sprintf(`SELECT id, round, merkle_root, leaf_count, total_amount, created_at
			FROM %s ORDER BY round ASC, created_at ASC, id ASC`, p.tables.snapshots),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	metas := make([]*persistence.SnapshotMeta, 0)
	for rows.Next() {
		var (
			meta  persistence.SnapshotMeta
			round int64
		)
		if err := rows.Scan(&meta.ID, &round, &meta.MerkleRoot, &meta.LeafCount, &meta.TotalAmount, &meta.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot row: %w", err)
		}
		meta.Round = uint64(round)
		meta.CreatedAt = meta.CreatedAt.UTC()
		metas = append(metas, &meta)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}

	return metas, nil
}

// SetActiveSnapshotID points proof serving at a stored snapshot
func (p *PostgresPersistence) SetActiveSnapshotID(id string) error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	// Selecting from the snapshots table makes an unknown id insert nothing
	tag, err := p.pool.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (slot, snapshot_id)
			SELECT 1, id FROM %s WHERE id = $1
			ON CONFLICT (slot) DO UPDATE SET snapshot_id = EXCLUDED.snapshot_id`, p.tables.active, p.tables.snapshots),
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to set active snapshot: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", persistence.ErrSnapshotNotFound, id)
	}

	return nil
}

// GetActiveSnapshotID returns the active snapshot ID, "" when unset
func (p *PostgresPersistence) GetActiveSnapshotID() (string, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return "", persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	var id string
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT snapshot_id FROM %s WHERE slot = 1`, p.tables.active),
	).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil // No active snapshot yet
	}
	if err != nil {
		return "", fmt.Errorf("failed to get active snapshot: %w", err)
	}

	return id, nil
}

// Close shuts down the connection pool
func (p *PostgresPersistence) Close() error {
	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return nil // Already closed, idempotent
	}
	p.closed = true
	p.mu.Unlock()

	p.pool.Close()

	p.logger.Sugar().Info("Postgres persistence closed")
	return nil
}

// HealthCheck verifies the database is reachable and initialized
func (p *PostgresPersistence) HealthCheck() error {
	p.mu.RLock()
	defer p.mu.RUnlock()

	if p.closed {
		return persistence.ErrClosed
	}

	ctx, cancel := context.WithTimeout(context.Background(), defaultTimeout)
	defer cancel()

	if err := p.pool.Ping(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}

	var version string
	err := p.pool.QueryRow(ctx,
		fmt.Sprintf(`SELECT value FROM %s WHERE key = $1`, p.tables.metadata),
		metadataSchemaVersion,
	).Scan(&version)
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("schema version not found - database may not be properly initialized")
	}
	if err != nil {
		return fmt.Errorf("failed to verify schema version: %w", err)
	}

	return nil
}
