// Command kimpgated runs the kimchi-premium listing-detection daemon:
// it loads configuration, wires every component via internal/app, and
// blocks until interrupted.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/kimgate/kimpgate/configs"
	"github.com/kimgate/kimpgate/internal/app"
	"github.com/kimgate/kimpgate/internal/storage"
)

// chainRPCEnvVars maps a chain name (as used in configs/networks.yaml
// and internal/hotwallet.Wallet.Chain) to the .env/environment variable
// holding its JSON-RPC endpoint. A chain with no set variable is simply
// skipped, matching hot_wallet_tracker's "no API key => disabled" degrade.
var chainRPCEnvVars = map[string]string{
	"ethereum": "ETHEREUM_RPC_URL",
	"bsc":      "BSC_RPC_URL",
	"polygon":  "POLYGON_RPC_URL",
	"arbitrum": "ARBITRUM_RPC_URL",
}

func dialChainClients(log zerolog.Logger) map[string]*ethclient.Client {
	clients := make(map[string]*ethclient.Client)
	for chain, envVar := range chainRPCEnvVars {
		url := os.Getenv(envVar)
		if url == "" {
			continue
		}
		client, err := ethclient.Dial(url)
		if err != nil {
			log.Warn().Err(err).Str("chain", chain).Msg("failed to dial chain RPC, hot-wallet balances disabled for this chain")
			continue
		}
		clients[chain] = client
	}
	return clients
}

func main() {
	// .env is optional: the secrets this daemon reads (hot-wallet RPC
	// URLs, CHAT_BOT_TOKEN/CHAT_BOT_CHANNEL, METADATA_API_KEY) all come
	// from the environment, and each feature degrades without them
	// (hot-wallet tracking disabled, alerts in dry-run, symbol-only
	// registry rows), so a missing file is never an error.
	_ = godotenv.Load()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "kimpgated",
	Short: "kimpgated detects new domestic listings and evaluates them for kimchi-premium arbitrage",
}

func init() {
	rootCmd.PersistentFlags().String("config-dir", "./configs", "directory containing fees/networks/exchanges/vasp/features/thresholds.yaml")
	rootCmd.PersistentFlags().String("log-level", "info", "zerolog level: debug, info, warn, error")
	rootCmd.PersistentFlags().Bool("log-pretty", false, "use a human-readable console writer instead of JSON logs")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(migrateCmd)
}

func newLogger(cmd *cobra.Command) (zerolog.Logger, error) {
	levelStr, _ := cmd.Flags().GetString("log-level")
	level, err := zerolog.ParseLevel(levelStr)
	if err != nil {
		return zerolog.Logger{}, fmt.Errorf("invalid --log-level %q: %w", levelStr, err)
	}
	pretty, _ := cmd.Flags().GetBool("log-pretty")

	var log zerolog.Logger
	if pretty {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	} else {
		log = zerolog.New(os.Stderr).Level(level).With().Timestamp().Logger()
	}
	return log, nil
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the listing-detection daemon",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		configDir, _ := cmd.Flags().GetString("config-dir")
		dbPath, _ := cmd.Flags().GetString("db")
		healthPath, _ := cmd.Flags().GetString("health")

		cfg, err := configs.Load(configDir, log)
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}

		opts := app.Options{
			DBPath:       dbPath,
			HealthPath:   healthPath,
			ChainClients: dialChainClients(log),
		}
		pipeline, err := app.New(cfg, opts, log)
		if err != nil {
			return fmt.Errorf("build pipeline: %w", err)
		}

		ctx, cancel := context.WithCancel(context.Background())
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
		go func() {
			<-sigCh
			log.Info().Msg("shutdown signal received")
			pipeline.Stop()
			cancel()
		}()

		log.Info().Str("config_dir", configDir).Str("db", dbPath).Msg("kimpgated starting")
		return pipeline.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().String("db", "kimpgate.db", "sqlite database path")
	serveCmd.Flags().String("health", "health.json", "health snapshot output path")
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Apply pending database migrations and exit",
	RunE: func(cmd *cobra.Command, args []string) error {
		log, err := newLogger(cmd)
		if err != nil {
			return err
		}
		dbPath, _ := cmd.Flags().GetString("db")

		db, err := storage.Open(dbPath)
		if err != nil {
			return fmt.Errorf("open %s: %w", dbPath, err)
		}
		defer db.Close()

		if err := storage.ApplyMigrations(db); err != nil {
			return fmt.Errorf("apply migrations: %w", err)
		}
		log.Info().Str("db", dbPath).Msg("migrations applied")
		return nil
	},
}

func init() {
	migrateCmd.Flags().String("db", "kimpgate.db", "sqlite database path")
}
