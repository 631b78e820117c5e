package config

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"gopkg.in/yaml.v3"
	"k8s.io/apimachinery/pkg/util/validation/field"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/shares"
	"github.com/GoodDollar/reputation-airdrop-go/pkg/util"
)

// Environment variable names for airdrop configuration
const (
	EnvAirdropConfigFile       = "AIRDROP_CONFIG"
	EnvAirdropRound            = "AIRDROP_ROUND"
	EnvAirdropWorkers          = "AIRDROP_WORKERS"
	EnvAirdropVerbose          = "AIRDROP_VERBOSE"
	EnvAirdropPersistenceType  = "AIRDROP_PERSISTENCE_TYPE"
	EnvAirdropDataPath         = "AIRDROP_DATA_PATH"
	EnvAirdropRedisAddress     = "AIRDROP_REDIS_ADDRESS"
	EnvAirdropRedisPassword    = "AIRDROP_REDIS_PASSWORD"
	EnvAirdropRedisDB          = "AIRDROP_REDIS_DB"
	EnvAirdropRedisKeyPrefix   = "AIRDROP_REDIS_KEY_PREFIX"
	EnvAirdropPostgresDSN      = "AIRDROP_POSTGRES_DSN"
	EnvAirdropPostgresSchema   = "AIRDROP_POSTGRES_SCHEMA"
	EnvAirdropSnapshotID       = "AIRDROP_SNAPSHOT_ID"
	EnvAirdropLedgerOutputPath = "AIRDROP_LEDGER_OUT"
	EnvAirdropPort             = "AIRDROP_PORT"
	EnvAirdropRateLimit        = "AIRDROP_RATE_LIMIT"
)

type ChainId uint

const (
	ChainId_EthereumMainnet ChainId = 1
	ChainId_EthereumSepolia ChainId = 11155111
	ChainId_EthereumAnvil   ChainId = 31337
	ChainId_Fuse            ChainId = 122
	ChainId_Celo            ChainId = 42220
)

type ChainName string

const (
	ChainName_EthereumMainnet ChainName = "mainnet"
	ChainName_EthereumSepolia ChainName = "sepolia"
	ChainName_EthereumAnvil   ChainName = "devnet"
	ChainName_Fuse            ChainName = "fuse"
	ChainName_Celo            ChainName = "celo"
)

var ChainIdToName = map[ChainId]ChainName{
	ChainId_EthereumMainnet: ChainName_EthereumMainnet,
	ChainId_EthereumSepolia: ChainName_EthereumSepolia,
	ChainId_EthereumAnvil:   ChainName_EthereumAnvil,
	ChainId_Fuse:            ChainName_Fuse,
	ChainId_Celo:            ChainName_Celo,
}
var ChainNameToId = map[ChainName]ChainId{
	ChainName_EthereumMainnet: ChainId_EthereumMainnet,
	ChainName_EthereumSepolia: ChainId_EthereumSepolia,
	ChainName_EthereumAnvil:   ChainId_EthereumAnvil,
	ChainName_Fuse:            ChainId_Fuse,
	ChainName_Celo:            ChainId_Celo,
}

// GetSupportedChainNames returns the chain names a snapshot may record blocks for
func GetSupportedChainNames() []ChainName {
	return []ChainName{
		ChainName_Fuse,
		ChainName_Celo,
		ChainName_EthereumMainnet,
		ChainName_EthereumSepolia,
		ChainName_EthereumAnvil,
	}
}

type PersistenceType string

const (
	PersistenceTypeMemory   PersistenceType = "memory"
	PersistenceTypeBadger   PersistenceType = "badger"
	PersistenceTypeRedis    PersistenceType = "redis"
	PersistenceTypePostgres PersistenceType = "postgres"
)

// PoolsConfig holds the pool sizes as decimal strings in smallest token units
type PoolsConfig struct {
	ClaimPool string `json:"claimPool" yaml:"claimPool"`
	HoldPool  string `json:"holdPool" yaml:"holdPool"`
	StakePool string `json:"stakePool" yaml:"stakePool"`
}

// ToPools parses the pool amounts. Empty values are zero.
func (p PoolsConfig) ToPools() (shares.Pools, error) {
	claim, err := parseAmount(p.ClaimPool)
	if err != nil {
		return shares.Pools{}, fmt.Errorf("claimPool: %w", err)
	}
	hold, err := parseAmount(p.HoldPool)
	if err != nil {
		return shares.Pools{}, fmt.Errorf("holdPool: %w", err)
	}
	stake, err := parseAmount(p.StakePool)
	if err != nil {
		return shares.Pools{}, fmt.Errorf("stakePool: %w", err)
	}
	return shares.Pools{ClaimPool: claim, HoldPool: hold, StakePool: stake}, nil
}

// RedistributionConfig configures the custodial redistribution rule
type RedistributionConfig struct {
	Excluded        []string `json:"excluded" yaml:"excluded"`
	Foundation      string   `json:"foundation" yaml:"foundation"`
	FoundationTopUp string   `json:"foundationTopUp" yaml:"foundationTopUp"`
	Team            []string `json:"team" yaml:"team"`
}

// ToRule builds the redistribution rule, rejecting malformed addresses.
func (r *RedistributionConfig) ToRule() (*shares.CustodialRedistribution, error) {
	topUp, err := parseAmount(r.FoundationTopUp)
	if err != nil {
		return nil, fmt.Errorf("foundationTopUp: %w", err)
	}
	excluded, err := util.ParseAddresses(r.Excluded)
	if err != nil {
		return nil, fmt.Errorf("excluded: %w", err)
	}
	foundation, err := util.ParseAddresses([]string{r.Foundation})
	if err != nil {
		return nil, fmt.Errorf("foundation: %w", err)
	}
	team, err := util.ParseAddresses(r.Team)
	if err != nil {
		return nil, fmt.Errorf("team: %w", err)
	}
	return &shares.CustodialRedistribution{
		Excluded:        excluded,
		Foundation:      foundation[0],
		FoundationTopUp: topUp,
		Team:            team,
	}, nil
}

type RedisConfig struct {
	Address   string `json:"address" yaml:"address"`
	Password  string `json:"password" yaml:"password"`
	DB        int    `json:"db" yaml:"db"`
	KeyPrefix string `json:"keyPrefix" yaml:"keyPrefix"`
}

type PostgresConfig struct {
	DSN    string `json:"dsn" yaml:"dsn"`
	Schema string `json:"schema" yaml:"schema"`
}

// PersistenceConfig selects and configures the snapshot store
type PersistenceConfig struct {
	Type     PersistenceType `json:"type" yaml:"type"`
	DataPath string          `json:"dataPath" yaml:"dataPath"`
	Redis    RedisConfig     `json:"redis" yaml:"redis"`
	Postgres PostgresConfig  `json:"postgres" yaml:"postgres"`
}

// AirdropConfig represents the complete configuration of a snapshot run
type AirdropConfig struct {
	// Round identifies the airdrop round; later rounds supersede earlier ones
	Round uint64 `json:"round" yaml:"round"`

	// Blocks records the block number per chain the input balances were read at
	Blocks map[ChainName]uint64 `json:"blocks" yaml:"blocks"`

	Pools PoolsConfig `json:"pools" yaml:"pools"`

	// ExcludedAddresses are protocol-internal contracts dropped during aggregation
	ExcludedAddresses []string `json:"excludedAddresses" yaml:"excludedAddresses"`

	// Redistribution is optional; nil disables the custodial rule
	Redistribution *RedistributionConfig `json:"redistribution,omitempty" yaml:"redistribution,omitempty"`

	Persistence PersistenceConfig `json:"persistence" yaml:"persistence"`

	// Workers sizes the proof validation pool; 0 uses GOMAXPROCS
	Workers int `json:"workers" yaml:"workers"`

	Debug bool `json:"debug" yaml:"debug"`
}

// DefaultConfig returns a config with empty pools. Persistence.Type stays
// empty so the caller's flag default picks the store; OpenStore treats an
// empty type as memory.
func DefaultConfig() *AirdropConfig {
	return &AirdropConfig{
		Blocks: make(map[ChainName]uint64),
	}
}

// LoadConfigFile reads a JSON or YAML config file on top of DefaultConfig.
// The format is chosen by extension; .yaml and .yml are YAML, anything else JSON.
func LoadConfigFile(path string) (*AirdropConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if cfg.Blocks == nil {
		cfg.Blocks = make(map[ChainName]uint64)
	}

	return cfg, nil
}

// BlocksByName returns Blocks keyed by plain string, as stored in snapshot params
func (c *AirdropConfig) BlocksByName() map[string]uint64 {
	out := make(map[string]uint64, len(c.Blocks))
	for name, block := range c.Blocks {
		out[string(name)] = block
	}
	return out
}

// Validate checks the whole config and reports every problem at once
func (c *AirdropConfig) Validate() error {
	var allErrors field.ErrorList

	allErrors = append(allErrors, c.validatePools(field.NewPath("pools"))...)
	allErrors = append(allErrors, validateAddressList(field.NewPath("excludedAddresses"), c.ExcludedAddresses)...)

	blocksPath := field.NewPath("blocks")
	for name := range c.Blocks {
		if _, ok := ChainNameToId[name]; !ok {
			allErrors = append(allErrors, field.NotSupported(blocksPath.Key(string(name)), name, chainNameStrings()))
		}
	}

	if c.Redistribution != nil {
		allErrors = append(allErrors, c.Redistribution.validate(field.NewPath("redistribution"))...)
	}

	allErrors = append(allErrors, c.Persistence.validate(field.NewPath("persistence"))...)

	if c.Workers < 0 {
		allErrors = append(allErrors, field.Invalid(field.NewPath("workers"), c.Workers, "must not be negative"))
	}

	if len(allErrors) > 0 {
		return allErrors.ToAggregate()
	}
	return nil
}

func (c *AirdropConfig) validatePools(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	total := new(big.Int)
	for name, value := range map[string]string{
		"claimPool": c.Pools.ClaimPool,
		"holdPool":  c.Pools.HoldPool,
		"stakePool": c.Pools.StakePool,
	} {
		amount, err := parseAmount(value)
		if err != nil {
			allErrors = append(allErrors, field.Invalid(path.Child(name), value, err.Error()))
			continue
		}
		total.Add(total, amount)
	}
	if len(allErrors) == 0 && total.Sign() == 0 {
		allErrors = append(allErrors, field.Required(path, "at least one pool must be positive"))
	}
	return allErrors
}

func (r *RedistributionConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	if len(r.Excluded) == 0 {
		allErrors = append(allErrors, field.Required(path.Child("excluded"), "at least one custodial address is required"))
	}
	allErrors = append(allErrors, validateAddressList(path.Child("excluded"), r.Excluded)...)

	if r.Foundation == "" {
		allErrors = append(allErrors, field.Required(path.Child("foundation"), "foundation is required"))
	} else if !common.IsHexAddress(r.Foundation) {
		allErrors = append(allErrors, field.Invalid(path.Child("foundation"), r.Foundation, "not a hex address"))
	}

	if _, err := parseAmount(r.FoundationTopUp); err != nil {
		allErrors = append(allErrors, field.Invalid(path.Child("foundationTopUp"), r.FoundationTopUp, err.Error()))
	}

	allErrors = append(allErrors, validateAddressList(path.Child("team"), r.Team)...)

	excluded := make(map[string]struct{}, len(r.Excluded))
	for _, a := range r.Excluded {
		excluded[strings.ToLower(a)] = struct{}{}
	}
	if _, ok := excluded[strings.ToLower(r.Foundation)]; ok && r.Foundation != "" {
		allErrors = append(allErrors, field.Invalid(path.Child("foundation"), r.Foundation, "foundation must not be excluded"))
	}
	for i, a := range r.Team {
		if _, ok := excluded[strings.ToLower(a)]; ok {
			allErrors = append(allErrors, field.Invalid(path.Child("team").Index(i), a, "team member must not be excluded"))
		}
	}

	return allErrors
}

func (p *PersistenceConfig) validate(path *field.Path) field.ErrorList {
	var allErrors field.ErrorList

	switch p.Type {
	case PersistenceTypeMemory, "":
	case PersistenceTypeBadger:
		if p.DataPath == "" {
			allErrors = append(allErrors, field.Required(path.Child("dataPath"), "dataPath is required for badger persistence"))
		}
	case PersistenceTypeRedis:
		if p.Redis.Address == "" {
			allErrors = append(allErrors, field.Required(path.Child("redis", "address"), "address is required for redis persistence"))
		}
		if p.Redis.DB < 0 || p.Redis.DB > 15 {
			allErrors = append(allErrors, field.Invalid(path.Child("redis", "db"), p.Redis.DB, "must be between 0-15"))
		}
	case PersistenceTypePostgres:
		if p.Postgres.DSN == "" {
			allErrors = append(allErrors, field.Required(path.Child("postgres", "dsn"), "dsn is required for postgres persistence"))
		}
	default:
		allErrors = append(allErrors, field.NotSupported(path.Child("type"), p.Type, []string{
			string(PersistenceTypeMemory),
			string(PersistenceTypeBadger),
			string(PersistenceTypeRedis),
			string(PersistenceTypePostgres),
		}))
	}

	return allErrors
}

func validateAddressList(path *field.Path, addrs []string) field.ErrorList {
	var allErrors field.ErrorList
	for i, a := range addrs {
		if !common.IsHexAddress(strings.TrimSpace(a)) {
			allErrors = append(allErrors, field.Invalid(path.Index(i), a, "not a hex address"))
		}
	}
	return allErrors
}

// parseAmount parses a non-negative decimal integer; "" is zero
func parseAmount(s string) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(s, 10)
	if !ok {
		return nil, fmt.Errorf("invalid decimal amount %q", s)
	}
	if v.Sign() < 0 {
		return nil, fmt.Errorf("amount must not be negative")
	}
	return v, nil
}

func chainNameStrings() []string {
	names := GetSupportedChainNames()
	out := make([]string, len(names))
	for i, n := range names {
		out[i] = string(n)
	}
	return out
}
