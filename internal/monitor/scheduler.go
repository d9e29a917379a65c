// Package monitor drives periodic checks of active triggers and pays out the
// ones whose condition is met.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"triggerpay/internal/attest"
	"triggerpay/internal/condition"
	"triggerpay/internal/lock"
	"triggerpay/internal/model"
	"triggerpay/internal/storage"
	"triggerpay/internal/trigger"
)

var meter = otel.Meter("triggerpay/monitor")

// Attester signs observation records.
type Attester interface {
	Ready() bool
	Sign(triggerID, observedStatus string, rawBody []byte, conditionMet bool) (model.Attestation, error)
}

// Payer executes payouts for met triggers.
type Payer interface {
	Execute(ctx context.Context, trig model.Trigger) (string, error)
	Confirm(ctx context.Context, triggerID string) error
}

// Config tunes the scheduler.
type Config struct {
	Interval         time.Duration
	Concurrency      int
	SourceTimeout    time.Duration
	PayoutTimeout    time.Duration
	ActivityCapacity int
}

// Deps are the scheduler's collaborators. Archive and Locker are optional.
type Deps struct {
	Store    *trigger.Store
	Sources  condition.Sources
	Attester Attester
	Archive  storage.AttestationSink
	Payer    Payer
	Locker   lock.Locker
	Now      func() time.Time
}

// Scheduler runs monitoring cycles. Cycles may overlap (timer and manual
// runs); a trigger is only ever processed by one of them at a time.
type Scheduler struct {
	deps     Deps
	cfg      Config
	activity *Activity
	logger   *zap.Logger

	checks  otelmetric.Int64Counter
	payouts otelmetric.Int64Counter
}

// New validates deps and fills config defaults.
func New(deps Deps, cfg Config, logger *zap.Logger) (*Scheduler, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case deps.Store == nil:
		return nil, errors.New("monitor store is required")
	case deps.Attester == nil:
		return nil, errors.New("monitor attester is required")
	case deps.Payer == nil:
		return nil, errors.New("monitor payer is required")
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	if cfg.Interval <= 0 {
		cfg.Interval = 60 * time.Second
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	if cfg.SourceTimeout <= 0 {
		cfg.SourceTimeout = 15 * time.Second
	}
	if cfg.PayoutTimeout <= 0 {
		cfg.PayoutTimeout = 2 * time.Minute
	}

	checks, err := meter.Int64Counter("triggerpay.monitor.checks")
	if err != nil {
		return nil, err
	}
	payouts, err := meter.Int64Counter("triggerpay.monitor.payouts")
	if err != nil {
		return nil, err
	}

	return &Scheduler{
		deps:     deps,
		cfg:      cfg,
		activity: NewActivity(cfg.ActivityCapacity),
		logger:   logger,
		checks:   checks,
		payouts:  payouts,
	}, nil
}

// Activity returns the recent-activity log.
func (s *Scheduler) Activity() *Activity {
	return s.activity
}

// Run executes a cycle immediately and then on every interval until ctx ends.
func (s *Scheduler) Run(ctx context.Context) error {
	s.logger.Info("monitor started", zap.Duration("interval", s.cfg.Interval))
	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		if _, err := s.RunCycle(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			s.logger.Error("monitor cycle failed", zap.Error(err))
		}
		select {
		case <-ctx.Done():
			s.logger.Info("monitor stopped")
			return nil
		case <-ticker.C:
		}
	}
}

// RunCycle checks every active trigger once and reports the outcomes. It
// fails as a whole only when no attestation can be signed; per-trigger
// failures are reported in the results.
func (s *Scheduler) RunCycle(ctx context.Context) (model.CycleReport, error) {
	started := s.deps.Now()
	report := model.CycleReport{
		Results:   []model.CycleResult{},
		StartedAt: started.UTC().Format(time.RFC3339Nano),
	}
	if !s.deps.Attester.Ready() {
		report.FinishedAt = report.StartedAt
		return report, attest.ErrNotInitialized
	}

	active := s.deps.Store.ListActive()
	results := make([]*model.CycleResult, len(active))

	var g errgroup.Group
	g.SetLimit(s.cfg.Concurrency)
	for i := range active {
		i, id := i, active[i].ID
		g.Go(func() error {
			results[i] = s.processTrigger(ctx, id)
			return nil
		})
	}
	_ = g.Wait()

	for _, r := range results {
		if r == nil {
			report.Skipped++
			continue
		}
		report.Checked++
		report.Results = append(report.Results, *r)
	}
	finished := s.deps.Now()
	report.FinishedAt = finished.UTC().Format(time.RFC3339Nano)

	s.logger.Info("monitor cycle complete",
		zap.Int("active", len(active)),
		zap.Int("checked", report.Checked),
		zap.Int("skipped", report.Skipped),
		zap.Duration("elapsed", finished.Sub(started)),
	)
	return report, ctx.Err()
}

// processTrigger returns nil when the trigger was skipped.
func (s *Scheduler) processTrigger(ctx context.Context, id string) *model.CycleResult {
	logger := s.logger.With(zap.String("trigger_id", id))

	held, unlock, err := s.deps.Locker.Lock(ctx, id)
	if err != nil {
		logger.Warn("acquire trigger lock failed", zap.Error(err))
		return s.record(ctx, model.CycleResult{TriggerID: id, Action: model.ActionError("lock: " + err.Error())})
	}
	defer unlock()

	// Re-read under the lock: an overlapping cycle may have paid it already.
	trig, ok := s.deps.Store.Get(id)
	if !ok || trig.Status != model.StatusActive {
		return nil
	}
	if trig.Expired(s.deps.Now()) {
		logger.Debug("skipping expired trigger")
		return nil
	}

	key := ""
	if trig.Condition != nil {
		key = trig.Condition.SourceKey()
	}
	result := model.CycleResult{TriggerID: id, SourceKey: key}

	src, err := s.deps.Sources.For(trig.Condition)
	if err != nil {
		logger.Warn("no condition source", zap.Error(err))
		result.Action = model.ActionError(err.Error())
		return s.record(ctx, result)
	}

	fetchCtx, cancel := context.WithTimeout(held, s.cfg.SourceTimeout)
	obs, err := src.Fetch(fetchCtx, key)
	cancel()
	if err != nil {
		logger.Warn("fetch observation failed", zap.String("source_key", key), zap.Error(err))
		result.Action = model.ActionError(err.Error())
		return s.record(ctx, result)
	}

	met := condition.Evaluate(trig.Condition, obs)
	result.ObservedStatus = obs.Status
	result.ConditionMet = met
	s.deps.Store.IncrementAttestationCount(id)

	att, err := s.deps.Attester.Sign(id, obs.Status, obs.Raw, met)
	if err != nil {
		logger.Error("sign attestation failed", zap.Error(err))
		result.Action = model.ActionError("attest: " + err.Error())
		return s.record(ctx, result)
	}
	if s.deps.Archive != nil {
		if err := s.deps.Archive.PutAttestations(ctx, []model.Attestation{att}); err != nil {
			logger.Warn("archive attestation failed", zap.Error(err))
		}
	}

	if !met {
		result.Action = model.ActionNone
		return s.record(ctx, result)
	}

	logger.Info("condition met, executing payout",
		zap.String("source_key", key),
		zap.String("observed_status", obs.Status),
		zap.String("chain", string(trig.Payout.Chain)),
	)
	// Losing the lock cancels held, which abandons the payout before broadcast.
	payCtx, cancel := context.WithTimeout(held, s.cfg.PayoutTimeout)
	txHash, err := s.deps.Payer.Execute(payCtx, trig)
	cancel()
	if err != nil {
		if cause := context.Cause(held); errors.Is(cause, lock.ErrLeaseLost) {
			err = fmt.Errorf("%w: %v", cause, err)
		}
		logger.Error("payout failed", zap.Error(err))
		result.Action = model.ActionPayoutFailed(err.Error())
		return s.record(ctx, result)
	}

	if !s.deps.Store.MarkExecuted(id, txHash) {
		logger.Error("payout sent but trigger no longer active", zap.String("tx_hash", txHash))
	}
	if err := s.deps.Payer.Confirm(ctx, id); err != nil {
		logger.Warn("confirm payout journal failed", zap.Error(err))
	}
	logger.Info("payout executed", zap.String("tx_hash", txHash))

	result.Action = model.ActionPayoutSigned
	result.TxHash = txHash
	return s.record(ctx, result)
}

func (s *Scheduler) record(ctx context.Context, r model.CycleResult) *model.CycleResult {
	s.activity.Add(model.ActivityEntry{
		Timestamp:      s.deps.Now().UTC().Format(time.RFC3339Nano),
		TriggerID:      r.TriggerID,
		SourceKey:      r.SourceKey,
		ObservedStatus: r.ObservedStatus,
		ConditionMet:   r.ConditionMet,
		Action:         r.Action,
		TxHash:         r.TxHash,
	})

	outcome := "none"
	switch {
	case r.Action == model.ActionPayoutSigned:
		outcome = "payout_signed"
	case model.IsPayoutFailed(r.Action):
		outcome = "payout_failed"
	case model.IsError(r.Action):
		outcome = "error"
	}
	attrs := otelmetric.WithAttributes(attribute.String("outcome", outcome))
	s.checks.Add(ctx, 1, attrs)
	if r.ConditionMet && outcome != "error" {
		s.payouts.Add(ctx, 1, attrs)
	}
	return &r
}
