package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"triggerpay/internal/model"
)

// Journal backends.
const (
	JournalMemory   = "memory"
	JournalFile     = "file"
	JournalPostgres = "postgres"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	ListenAddr       string
	LogLevel         string
	PollInterval     time.Duration
	CycleConcurrency int

	ContractID        string
	SigningSeed       string
	AllowEphemeralKey bool

	MPCURL           string
	MPCRootPublicKey string
	MPCDevRootKey    string
	MPCTimeout       time.Duration

	FlightAPIURL       string
	SourceTimeout      time.Duration
	SourceMaxRetries   int
	SourceRetryBackoff time.Duration
	FlightSim          bool

	PayoutTimeout time.Duration
	RPC           map[model.Chain]string

	Journal         string
	JournalPath     string
	AttestationsOut string
	PGDSN           string

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	LockTTL       time.Duration
}

// Load merges config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("TRIGGERPAY")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("listen-addr", ":3001")
	v.SetDefault("log-level", "info")
	v.SetDefault("poll-interval", 60*time.Second)
	v.SetDefault("cycle-concurrency", 4)
	v.SetDefault("mpc-timeout", 90*time.Second)
	v.SetDefault("source-timeout", 15*time.Second)
	v.SetDefault("source-max-retries", 2)
	v.SetDefault("source-retry-backoff", 500*time.Millisecond)
	v.SetDefault("payout-timeout", 2*time.Minute)
	v.SetDefault("journal", JournalFile)
	v.SetDefault("journal-path", "./data/payout_journal.jsonl")
	v.SetDefault("lock-ttl", 30*time.Second)

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		ListenAddr:         v.GetString("listen-addr"),
		LogLevel:           v.GetString("log-level"),
		PollInterval:       v.GetDuration("poll-interval"),
		CycleConcurrency:   v.GetInt("cycle-concurrency"),
		ContractID:         v.GetString("contract-id"),
		SigningSeed:        v.GetString("signing-seed"),
		AllowEphemeralKey:  v.GetBool("allow-ephemeral-key"),
		MPCURL:             v.GetString("mpc-url"),
		MPCRootPublicKey:   v.GetString("mpc-root-public-key"),
		MPCDevRootKey:      v.GetString("mpc-dev-root-key"),
		MPCTimeout:         v.GetDuration("mpc-timeout"),
		FlightAPIURL:       v.GetString("flight-api-url"),
		SourceTimeout:      v.GetDuration("source-timeout"),
		SourceMaxRetries:   v.GetInt("source-max-retries"),
		SourceRetryBackoff: v.GetDuration("source-retry-backoff"),
		FlightSim:          v.GetBool("flightsim"),
		PayoutTimeout:      v.GetDuration("payout-timeout"),
		RPC: map[model.Chain]string{
			model.ChainEthereum: v.GetString("rpc-ethereum"),
			model.ChainBase:     v.GetString("rpc-base"),
			model.ChainArbitrum: v.GetString("rpc-arbitrum"),
		},
		Journal:         strings.ToLower(v.GetString("journal")),
		JournalPath:     v.GetString("journal-path"),
		AttestationsOut: v.GetString("attestations-out"),
		PGDSN:           v.GetString("pg-dsn"),
		RedisAddr:       v.GetString("redis-addr"),
		RedisPassword:   v.GetString("redis-password"),
		RedisDB:         v.GetInt("redis-db"),
		LockTTL:         v.GetDuration("lock-ttl"),
	}

	return cfg, nil
}

// ValidateServe checks the settings the serve command depends on.
func (c Config) ValidateServe() error {
	var errs []error
	if c.SigningSeed == "" && !c.AllowEphemeralKey {
		errs = append(errs, errors.New("signing-seed is required (set allow-ephemeral-key for local development)"))
	}
	if c.ContractID == "" {
		errs = append(errs, errors.New("contract-id is required"))
	}
	if c.MPCDevRootKey == "" {
		if c.MPCURL == "" {
			errs = append(errs, errors.New("mpc-url is required"))
		}
		if c.MPCRootPublicKey == "" {
			errs = append(errs, errors.New("mpc-root-public-key is required"))
		}
	}
	if c.FlightAPIURL == "" && !c.FlightSim {
		errs = append(errs, errors.New("flight-api-url is required unless flightsim is enabled"))
	}
	switch c.Journal {
	case JournalMemory:
	case JournalFile:
		if c.JournalPath == "" {
			errs = append(errs, errors.New("journal-path is required for the file journal"))
		}
	case JournalPostgres:
		if c.PGDSN == "" {
			errs = append(errs, errors.New("pg-dsn is required for the postgres journal"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown journal %q (memory, file, postgres)", c.Journal))
	}
	if c.PollInterval <= 0 {
		errs = append(errs, errors.New("poll-interval must be positive"))
	}
	if c.LockTTL > 0 && c.RedisAddr != "" && c.LockTTL < 3*time.Second {
		errs = append(errs, errors.New("lock-ttl must be at least 3s"))
	}
	return errors.Join(errs...)
}
