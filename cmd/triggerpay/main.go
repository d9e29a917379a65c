package main

import (
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"triggerpay/internal/config"
)

func main() {
	// .env is optional; real environment variables win.
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:          "triggerpay",
		Short:        "Conditional cross-chain payout agent",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the monitor and the HTTP API",
		RunE:  runServe,
	}

	serveCmd.Flags().String("listen-addr", ":3001", "HTTP listen address")
	serveCmd.Flags().Duration("poll-interval", 60*time.Second, "monitoring cycle interval")
	serveCmd.Flags().Int("cycle-concurrency", 4, "triggers processed in parallel per cycle")
	serveCmd.Flags().String("contract-id", "", "account id used for key derivation")
	serveCmd.Flags().String("signing-seed", "", "hex ed25519 seed for attestations")
	serveCmd.Flags().Bool("allow-ephemeral-key", false, "generate a throwaway attestation key when no seed is set")
	serveCmd.Flags().String("mpc-url", "", "MPC signer gateway URL")
	serveCmd.Flags().String("mpc-root-public-key", "", "MPC root public key (secp256k1:<base58> or hex)")
	serveCmd.Flags().String("mpc-dev-root-key", "", "hex root private key for the in-process dev signer")
	serveCmd.Flags().Duration("mpc-timeout", 90*time.Second, "MPC sign request timeout")
	serveCmd.Flags().String("flight-api-url", "", "flight status API base URL")
	serveCmd.Flags().Duration("source-timeout", 15*time.Second, "condition source timeout")
	serveCmd.Flags().Int("source-max-retries", 2, "condition source retry attempts")
	serveCmd.Flags().Duration("source-retry-backoff", 500*time.Millisecond, "initial condition source backoff")
	serveCmd.Flags().Bool("flightsim", false, "serve the mock flight API and read flights from it")
	serveCmd.Flags().Duration("payout-timeout", 2*time.Minute, "per-trigger payout timeout")
	serveCmd.Flags().String("rpc-ethereum", "", "Ethereum RPC URL override")
	serveCmd.Flags().String("rpc-base", "", "Base RPC URL override")
	serveCmd.Flags().String("rpc-arbitrum", "", "Arbitrum RPC URL override")
	serveCmd.Flags().String("journal", config.JournalFile, "payout journal (memory, file, postgres)")
	serveCmd.Flags().String("journal-path", "./data/payout_journal.jsonl", "file journal path")
	serveCmd.Flags().String("attestations-out", "", "optional JSONL mirror of attestations")
	serveCmd.Flags().String("pg-dsn", "", "Postgres DSN")
	serveCmd.Flags().String("redis-addr", "", "redis address for shared trigger locks")
	serveCmd.Flags().String("redis-password", "", "redis password")
	serveCmd.Flags().Int("redis-db", 0, "redis database")
	serveCmd.Flags().Duration("lock-ttl", 30*time.Second, "redis lock lease")
	serveCmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")

	root.AddCommand(serveCmd)

	keygenCmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an attestation signing seed",
		Args:  cobra.NoArgs,
		RunE:  runKeygen,
	}

	root.AddCommand(keygenCmd)

	addressCmd := &cobra.Command{
		Use:   "address",
		Short: "Print the derived payout address per chain",
		Args:  cobra.NoArgs,
		RunE:  runAddress,
	}

	addressCmd.Flags().String("contract-id", "", "account id used for key derivation")
	addressCmd.Flags().String("mpc-root-public-key", "", "MPC root public key (secp256k1:<base58> or hex)")
	addressCmd.Flags().String("mpc-dev-root-key", "", "hex root private key for the in-process dev signer")

	root.AddCommand(addressCmd)

	verifyCmd := &cobra.Command{
		Use:   "verify <attestation.json>",
		Short: "Verify an attestation against a public key",
		Args:  cobra.ExactArgs(1),
		RunE:  runVerify,
	}

	verifyCmd.Flags().String("public-key", "", "hex ed25519 public key (default: derived from signing-seed)")
	verifyCmd.Flags().String("signing-seed", "", "hex ed25519 seed")

	root.AddCommand(verifyCmd)

	return root
}

func loadConfig(cmd *cobra.Command) (config.Config, error) {
	cfgFile, _ := cmd.Flags().GetString("config")
	return config.Load(cfgFile, cmd.Flags())
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
