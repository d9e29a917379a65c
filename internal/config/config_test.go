package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	"triggerpay/internal/model"
)

func TestLoadDefaults(t *testing.T) {
	chdir(t, t.TempDir())
	cfg, err := Load("", nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ListenAddr != ":3001" || cfg.PollInterval != time.Minute || cfg.Journal != JournalFile {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
	if cfg.SourceMaxRetries != 2 || cfg.LockTTL != 30*time.Second {
		t.Fatalf("unexpected defaults: %+v", cfg)
	}
}

func TestLoadPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "triggerpay.yaml")
	content := "poll-interval: 30s\ncontract-id: file.testnet\nrpc-base: http://file:8545\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("TRIGGERPAY_CONTRACT_ID", "env.testnet")
	t.Setenv("TRIGGERPAY_SOURCE_TIMEOUT", "3s")

	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	flags.String("log-level", "info", "")
	if err := flags.Parse([]string{"--log-level=debug"}); err != nil {
		t.Fatalf("parse flags: %v", err)
	}

	cfg, err := Load(path, flags)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.PollInterval != 30*time.Second {
		t.Fatalf("poll interval = %s", cfg.PollInterval)
	}
	if cfg.ContractID != "env.testnet" {
		t.Fatalf("env did not override file: %s", cfg.ContractID)
	}
	if cfg.SourceTimeout != 3*time.Second {
		t.Fatalf("source timeout = %s", cfg.SourceTimeout)
	}
	if cfg.LogLevel != "debug" {
		t.Fatalf("log level = %s", cfg.LogLevel)
	}
	if cfg.RPC[model.ChainBase] != "http://file:8545" || cfg.RPC[model.ChainEthereum] != "" {
		t.Fatalf("rpc overrides = %v", cfg.RPC)
	}
}

func TestLoadMissingExplicitFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml"), nil); err == nil {
		t.Fatalf("expected error for missing config file")
	}
}

func validServe() Config {
	return Config{
		SigningSeed:      strings.Repeat("ab", 32),
		ContractID:       "triggerpay.testnet",
		MPCURL:           "http://mpc",
		MPCRootPublicKey: "secp256k1:abc",
		FlightAPIURL:     "http://localhost:3000",
		Journal:          JournalMemory,
		PollInterval:     time.Minute,
	}
}

func TestValidateServe(t *testing.T) {
	if err := validServe().ValidateServe(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	cases := map[string]func(*Config){
		"missing seed":         func(c *Config) { c.SigningSeed = "" },
		"missing contract":     func(c *Config) { c.ContractID = "" },
		"missing mpc url":      func(c *Config) { c.MPCURL = "" },
		"unknown journal":      func(c *Config) { c.Journal = "sqlite" },
		"postgres without dsn": func(c *Config) { c.Journal = JournalPostgres },
		"zero interval":        func(c *Config) { c.PollInterval = 0 },
		"no flight source":     func(c *Config) { c.FlightAPIURL = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			cfg := validServe()
			mutate(&cfg)
			if err := cfg.ValidateServe(); err == nil {
				t.Fatalf("expected validation error")
			}
		})
	}
}

func TestValidateServeDevModes(t *testing.T) {
	cfg := validServe()
	cfg.SigningSeed = ""
	cfg.AllowEphemeralKey = true
	cfg.MPCURL = ""
	cfg.MPCRootPublicKey = ""
	cfg.MPCDevRootKey = strings.Repeat("11", 32)
	cfg.FlightAPIURL = ""
	cfg.FlightSim = true
	if err := cfg.ValidateServe(); err != nil {
		t.Fatalf("dev config rejected: %v", err)
	}
}

// chdir changes the working directory for the duration of the test,
// restoring it on cleanup (stand-in for testing.T.Chdir, added in Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatalf("getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("chdir: %v", err)
	}
	t.Cleanup(func() {
		if err := os.Chdir(prev); err != nil {
			t.Fatalf("restore working directory: %v", err)
		}
	})
}
