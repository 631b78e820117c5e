package main

import (
	"log"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/GoodDollar/reputation-airdrop-go/pkg/config"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "airdrop",
		Usage: "Reputation airdrop snapshot builder",
		Description: `Builds reputation airdrop snapshots and serves merkle proofs from them.

This tool can:
- Merge per-chain balance, claim and stake files into allocations
- Commit allocations into an ordered merkle ledger and store it
- Produce and re-verify inclusion proofs for any address`,
		Version: "1.0.0",
		Flags:   persistenceFlags(),
		Commands: []*cli.Command{
			{
				Name:  "calculate",
				Usage: "Build a snapshot from balance source files",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "config",
						Aliases:  []string{"c"},
						Usage:    "Path to the airdrop config file (JSON or YAML)",
						EnvVars:  []string{config.EnvAirdropConfigFile},
						Required: true,
					},
					&cli.StringSliceFlag{
						Name:     "source",
						Aliases:  []string{"s"},
						Usage:    "Partial balance file (JSON or CSV); repeat for every source",
						Required: true,
					},
					&cli.Uint64Flag{
						Name:    "round",
						Usage:   "Override the round from the config file",
						EnvVars: []string{config.EnvAirdropRound},
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Proof validation workers (0 uses all CPUs)",
						EnvVars: []string{config.EnvAirdropWorkers},
					},
					&cli.StringFlag{
						Name:    "out",
						Aliases: []string{"o"},
						Usage:   "Write the ledger JSON to this file",
						EnvVars: []string{config.EnvAirdropLedgerOutputPath},
					},
				},
				Action: calculateCommand,
			},
			{
				Name:  "proof",
				Usage: "Print the merkle proof of an address",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:     "address",
						Aliases:  []string{"a"},
						Usage:    "Recipient address",
						Required: true,
					},
					&cli.StringFlag{
						Name:    "snapshot-id",
						Usage:   "Snapshot to read from (default: the active snapshot)",
						EnvVars: []string{config.EnvAirdropSnapshotID},
					},
					&cli.StringFlag{
						Name:  "ledger",
						Usage: "Read a ledger JSON file instead of the snapshot store",
					},
				},
				Action: proofCommand,
			},
			{
				Name:  "verify",
				Usage: "Re-verify every proof of a snapshot",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "snapshot-id",
						Usage:   "Snapshot to verify (default: the active snapshot)",
						EnvVars: []string{config.EnvAirdropSnapshotID},
					},
					&cli.StringFlag{
						Name:  "ledger",
						Usage: "Verify a ledger JSON file instead of a stored snapshot",
					},
					&cli.IntFlag{
						Name:    "workers",
						Usage:   "Validation workers (0 uses all CPUs)",
						EnvVars: []string{config.EnvAirdropWorkers},
					},
				},
				Action: verifyCommand,
			},
			{
				Name:   "list",
				Usage:  "List stored snapshots",
				Action: listCommand,
			},
			{
				Name:  "serve",
				Usage: "Serve proofs over HTTP from the snapshot store",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:    "port",
						Aliases: []string{"p"},
						Value:   8080,
						Usage:   "HTTP server port",
						EnvVars: []string{config.EnvAirdropPort},
					},
					&cli.Float64Flag{
						Name:    "rate-limit",
						Usage:   "Requests per second across all clients (0 disables)",
						Value:   100,
						EnvVars: []string{config.EnvAirdropRateLimit},
					},
				},
				Action: serveCommand,
			},
			{
				Name:      "activate",
				Usage:     "Serve proofs from a stored snapshot",
				ArgsUsage: "<snapshot-id>",
				Action:    activateCommand,
			},
		},
	}
}

func persistenceFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:    "verbose",
			Usage:   "Enable verbose logging",
			EnvVars: []string{config.EnvAirdropVerbose},
		},
		&cli.StringFlag{
			Name:    "persistence-type",
			Usage:   "Snapshot store: memory, badger, redis or postgres",
			Value:   string(config.PersistenceTypeBadger),
			EnvVars: []string{config.EnvAirdropPersistenceType},
		},
		&cli.StringFlag{
			Name:    "data-path",
			Usage:   "Badger data directory",
			Value:   "./data/airdrop",
			EnvVars: []string{config.EnvAirdropDataPath},
		},
		&cli.StringFlag{
			Name:    "redis-address",
			Usage:   "Redis server address (host:port)",
			EnvVars: []string{config.EnvAirdropRedisAddress},
		},
		&cli.StringFlag{
			Name:    "redis-password",
			Usage:   "Redis password",
			EnvVars: []string{config.EnvAirdropRedisPassword},
		},
		&cli.IntFlag{
			Name:    "redis-db",
			Usage:   "Redis database number",
			EnvVars: []string{config.EnvAirdropRedisDB},
		},
		&cli.StringFlag{
			Name:    "redis-key-prefix",
			Usage:   "Prefix for every Redis key",
			EnvVars: []string{config.EnvAirdropRedisKeyPrefix},
		},
		&cli.StringFlag{
			Name:    "postgres-dsn",
			Usage:   "PostgreSQL connection string",
			EnvVars: []string{config.EnvAirdropPostgresDSN},
		},
		&cli.StringFlag{
			Name:    "postgres-schema",
			Usage:   "PostgreSQL schema holding the snapshot tables",
			EnvVars: []string{config.EnvAirdropPostgresSchema},
		},
	}
}
