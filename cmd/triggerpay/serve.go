package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"triggerpay/internal/api"
	"triggerpay/internal/attest"
	"triggerpay/internal/chain"
	"triggerpay/internal/condition"
	"triggerpay/internal/config"
	"triggerpay/internal/flightsim"
	"triggerpay/internal/lock"
	"triggerpay/internal/model"
	"triggerpay/internal/monitor"
	"triggerpay/internal/mpc"
	"triggerpay/internal/payout"
	"triggerpay/internal/storage"
	"triggerpay/internal/storage/postgres"
	"triggerpay/internal/trigger"
)

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.close()

	logger.Info("triggerpay start",
		zap.String("listen_addr", cfg.ListenAddr),
		zap.Duration("poll_interval", cfg.PollInterval),
		zap.String("contract_id", cfg.ContractID),
		zap.String("journal", cfg.Journal),
		zap.Bool("flightsim", cfg.FlightSim),
		zap.Bool("redis_locks", cfg.RedisAddr != ""),
		zap.Bool("dev_signer", cfg.MPCDevRootKey != ""),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return a.scheduler.Run(gctx) })
	g.Go(func() error { return a.server.Run(gctx, cfg.ListenAddr) })
	return g.Wait()
}

type app struct {
	scheduler *monitor.Scheduler
	server    *api.Server
	closers   []func()
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, logger *zap.Logger) (_ *app, err error) {
	a := &app{}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	signer := attest.NewSigner(time.Now)
	if cfg.SigningSeed != "" {
		if err := signer.Init(cfg.SigningSeed); err != nil {
			return nil, fmt.Errorf("init attestation signer: %w", err)
		}
	} else {
		if err := signer.InitEphemeral(); err != nil {
			return nil, fmt.Errorf("init attestation signer: %w", err)
		}
		logger.Warn("using an ephemeral attestation key; attestations will not verify after restart")
	}

	var pg *postgres.Store
	if cfg.PGDSN != "" {
		pg, err = postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return nil, err
		}
	}

	journal, err := newJournal(cfg, pg)
	if err != nil {
		return nil, err
	}
	archive := newArchive(cfg, pg)

	locker, err := newLocker(cfg, logger)
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, func() {
		if err := locker.Close(); err != nil {
			logger.Warn("close locker failed", zap.Error(err))
		}
	})

	rootKey := cfg.MPCRootPublicKey
	var mpcSigner mpc.Signer
	if cfg.MPCDevRootKey != "" {
		local, err := mpc.NewLocalSigner(cfg.MPCDevRootKey, cfg.ContractID)
		if err != nil {
			return nil, err
		}
		rootKey = local.RootPublicKey()
		mpcSigner = local
		logger.Warn("using the in-process dev signer; do not use with real funds")
	} else {
		client, err := mpc.NewClient(mpc.ClientConfig{URL: cfg.MPCURL, Timeout: cfg.MPCTimeout}, logger.Named("mpc"))
		if err != nil {
			return nil, err
		}
		mpcSigner = client
	}
	deriver, err := mpc.NewDeriver(rootKey, cfg.ContractID)
	if err != nil {
		return nil, fmt.Errorf("init key deriver: %w", err)
	}

	networks, err := chain.Networks(cfg.RPC)
	if err != nil {
		return nil, err
	}
	registry := chain.NewRegistry(networks, logger.Named("chain"))
	a.closers = append(a.closers, registry.Close)

	orchestrator, err := payout.New(payout.Config{
		Networks: networks,
		Backends: payout.RegistryResolver(registry),
		Deriver:  deriver,
		Signer:   mpcSigner,
		Journal:  journal,
	}, logger.Named("payout"))
	if err != nil {
		return nil, err
	}

	var sim *flightsim.Sim
	if cfg.FlightSim {
		sim = flightsim.New(time.Now)
	}
	source, err := newFlightSource(cfg, sim, logger)
	if err != nil {
		return nil, err
	}

	store := trigger.NewStore()

	a.scheduler, err = monitor.New(monitor.Deps{
		Store:    store,
		Sources:  condition.Sources{model.ConditionFlightCancellation: source},
		Attester: signer,
		Archive:  archive,
		Payer:    orchestrator,
		Locker:   locker,
	}, monitor.Config{
		Interval:      cfg.PollInterval,
		Concurrency:   cfg.CycleConcurrency,
		SourceTimeout: cfg.SourceTimeout,
		PayoutTimeout: cfg.PayoutTimeout,
	}, logger.Named("monitor"))
	if err != nil {
		return nil, err
	}

	a.server = api.NewServer(api.Deps{
		Store:     store,
		Locker:    locker,
		Archive:   archive,
		Monitor:   a.scheduler,
		Activity:  a.scheduler.Activity(),
		Accounts:  orchestrator,
		Keys:      signer,
		FlightSim: sim,
	}, logger.Named("api"))

	return a, nil
}

func newJournal(cfg config.Config, pg *postgres.Store) (storage.PayoutJournal, error) {
	switch cfg.Journal {
	case config.JournalMemory:
		return storage.NewMemoryJournal(), nil
	case config.JournalFile:
		return storage.OpenFileJournal(cfg.JournalPath)
	case config.JournalPostgres:
		if pg == nil {
			return nil, errors.New("postgres journal requires pg-dsn")
		}
		return pg, nil
	default:
		return nil, fmt.Errorf("unknown journal %q", cfg.Journal)
	}
}

func newArchive(cfg config.Config, pg *postgres.Store) storage.Archive {
	var primary storage.Archive = storage.NewMemoryArchive()
	if pg != nil {
		primary = pg
	}
	if cfg.AttestationsOut == "" {
		return primary
	}
	return &storage.TeeArchive{
		Primary: primary,
		Mirrors: []storage.AttestationSink{storage.NewJsonlStorage(cfg.AttestationsOut)},
	}
}

func newLocker(cfg config.Config, logger *zap.Logger) (lock.Locker, error) {
	if cfg.RedisAddr == "" {
		return lock.NewMemoryLocker(), nil
	}
	return lock.NewRedisLocker(lock.RedisConfig{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
		TTL:      cfg.LockTTL,
	}, logger.Named("lock"))
}

// newFlightSource reads from the in-process simulator when it is enabled and
// no flight API URL is configured.
func newFlightSource(cfg config.Config, sim *flightsim.Sim, logger *zap.Logger) (condition.Source, error) {
	if sim != nil && cfg.FlightAPIURL == "" {
		return sim, nil
	}
	return condition.NewFlightAPI(condition.FlightAPIConfig{
		BaseURL:      cfg.FlightAPIURL,
		Timeout:      cfg.SourceTimeout,
		MaxRetries:   cfg.SourceMaxRetries,
		RetryBackoff: cfg.SourceRetryBackoff,
	}, logger.Named("flightapi"))
}
