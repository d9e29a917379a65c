// Package payout turns a met trigger into a signed, broadcast native transfer
// using an MPC-derived sender key.
package payout

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"

	"triggerpay/internal/chain"
	"triggerpay/internal/model"
	"triggerpay/internal/mpc"
	"triggerpay/internal/storage"
)

const fallbackTransferGas = 21000

// Backend is the subset of chain RPC the pipeline uses.
type Backend interface {
	PendingNonceAt(ctx context.Context, account common.Address) (uint64, error)
	SuggestGasTipCap(ctx context.Context) (*big.Int, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
	EstimateGas(ctx context.Context, msg ethereum.CallMsg) (uint64, error)
	SendTransaction(ctx context.Context, tx *types.Transaction) error
	TransactionByHash(ctx context.Context, hash common.Hash) (*types.Transaction, bool, error)
	BalanceAt(ctx context.Context, account common.Address) (*big.Int, error)
}

// BackendResolver returns the RPC backend for a chain.
type BackendResolver func(ctx context.Context, c model.Chain) (Backend, error)

// RegistryResolver adapts a chain registry.
func RegistryResolver(r *chain.Registry) BackendResolver {
	return func(ctx context.Context, c model.Chain) (Backend, error) {
		client, err := r.Client(ctx, c)
		if err != nil {
			return nil, err
		}
		return client, nil
	}
}

// Config wires the orchestrator's collaborators.
type Config struct {
	Networks map[model.Chain]chain.Network
	Backends BackendResolver
	Deriver  *mpc.Deriver
	Signer   mpc.Signer
	Journal  storage.PayoutJournal
	Now      func() time.Time
}

// Orchestrator runs the derive, build, sign, assemble and broadcast stages.
// It never retries internally: a failed trigger stays Active and the next
// monitoring cycle calls Execute again. Callers must hold the trigger's lock.
type Orchestrator struct {
	networks map[model.Chain]chain.Network
	backends BackendResolver
	deriver  *mpc.Deriver
	signer   mpc.Signer
	journal  storage.PayoutJournal
	now      func() time.Time
	logger   *zap.Logger
}

// New validates cfg and builds an Orchestrator.
func New(cfg Config, logger *zap.Logger) (*Orchestrator, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	switch {
	case len(cfg.Networks) == 0:
		return nil, errors.New("payout networks are required")
	case cfg.Backends == nil:
		return nil, errors.New("payout backend resolver is required")
	case cfg.Deriver == nil:
		return nil, errors.New("payout key deriver is required")
	case cfg.Signer == nil:
		return nil, errors.New("payout signer is required")
	}
	if cfg.Journal == nil {
		cfg.Journal = storage.NewMemoryJournal()
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Orchestrator{
		networks: cfg.Networks,
		backends: cfg.Backends,
		deriver:  cfg.Deriver,
		signer:   cfg.Signer,
		journal:  cfg.Journal,
		now:      cfg.Now,
		logger:   logger,
	}, nil
}

// Execute pays out trig and returns the transaction hash. When a signed
// transfer for trig is already journaled, it is reconciled instead of building
// a new one.
func (o *Orchestrator) Execute(ctx context.Context, trig model.Trigger) (string, error) {
	network, ok := o.networks[trig.Payout.Chain]
	if !ok {
		return "", stageErr(StageDerive, fmt.Errorf("%w: %q", ErrUnsupportedChain, trig.Payout.Chain))
	}
	backend, err := o.backends(ctx, network.Chain)
	if err != nil {
		return "", stageErr(StageBuild, fmt.Errorf("connect %s: %w", network.Chain, err))
	}

	pending, found, err := o.journal.Pending(ctx, trig.ID)
	if err != nil {
		return "", stageErr(StageJournal, fmt.Errorf("read journal: %w", err))
	}
	if found {
		if submissionMatches(pending, trig) {
			return o.reconcile(ctx, backend, pending)
		}
		// A journal that outlived the trigger store can hold an entry for a
		// different payout under the same id. It never settles this trigger.
		o.logger.Warn("discarding journaled payout for a different transfer",
			zap.String("trigger_id", trig.ID),
			zap.String("journaled_to", pending.To),
			zap.String("journaled_amount", pending.Amount),
			zap.String("journaled_chain", string(pending.Chain)),
			zap.String("tx_hash", pending.TxHash),
		)
		if err := o.journal.Resolve(ctx, trig.ID, model.JournalDiscarded); err != nil {
			return "", stageErr(StageJournal, fmt.Errorf("discard mismatched submission: %w", err))
		}
	}

	_, from, err := o.deriver.Derive(network.DerivationPath)
	if err != nil {
		return "", stageErr(StageDerive, err)
	}

	unsigned, err := o.build(ctx, backend, network, from, trig.Payout)
	if err != nil {
		return "", stageErr(StageBuild, err)
	}

	txSigner := types.LatestSignerForChainID(network.ChainID)
	payload := txSigner.Hash(unsigned)
	sig, err := o.signer.Sign(ctx, mpc.SignRequest{
		Path:    network.DerivationPath,
		Payload: payload,
		KeyType: mpc.KeyTypeEcdsa,
	})
	if err != nil {
		return "", stageErr(StageSign, err)
	}

	signed, err := unsigned.WithSignature(txSigner, sig.Bytes())
	if err != nil {
		return "", stageErr(StageAssemble, fmt.Errorf("attach signature: %w", err))
	}
	sender, err := types.Sender(txSigner, signed)
	if err != nil {
		return "", stageErr(StageAssemble, fmt.Errorf("recover sender: %w", err))
	}
	if sender != from {
		return "", stageErr(StageAssemble, fmt.Errorf("signature recovers to %s, expected %s", sender.Hex(), from.Hex()))
	}

	raw, err := signed.MarshalBinary()
	if err != nil {
		return "", stageErr(StageAssemble, fmt.Errorf("encode transaction: %w", err))
	}
	sub := model.PayoutSubmission{
		TriggerID:   trig.ID,
		Chain:       network.Chain,
		From:        from.Hex(),
		To:          trig.Payout.Address,
		Amount:      trig.Payout.Amount,
		Nonce:       signed.Nonce(),
		TxHash:      signed.Hash().Hex(),
		RawTx:       hexutil.Encode(raw),
		SubmittedAt: o.now().UnixNano(),
	}
	if err := o.journal.RecordSubmitted(ctx, sub); err != nil {
		return "", stageErr(StageJournal, fmt.Errorf("record submission: %w", err))
	}

	if err := o.broadcast(ctx, backend, signed, sub); err != nil {
		return "", err
	}

	o.logger.Info("payout broadcast",
		zap.String("trigger_id", trig.ID),
		zap.String("chain", string(network.Chain)),
		zap.String("from", sub.From),
		zap.String("to", sub.To),
		zap.String("amount", sub.Amount),
		zap.Uint64("nonce", sub.Nonce),
		zap.String("tx_hash", sub.TxHash),
	)
	return sub.TxHash, nil
}

// Confirm resolves the journal entry once the trigger is marked executed.
func (o *Orchestrator) Confirm(ctx context.Context, triggerID string) error {
	return o.journal.Resolve(ctx, triggerID, model.JournalConfirmed)
}

func (o *Orchestrator) build(
	ctx context.Context,
	backend Backend,
	network chain.Network,
	from common.Address,
	p model.Payout,
) (*types.Transaction, error) {
	value, ok := new(big.Int).SetString(p.Amount, 10)
	if !ok || value.Sign() <= 0 {
		return nil, fmt.Errorf("invalid payout amount %q", p.Amount)
	}
	if !common.IsHexAddress(p.Address) {
		return nil, fmt.Errorf("invalid payout address %q", p.Address)
	}
	to := common.HexToAddress(p.Address)

	nonce, err := backend.PendingNonceAt(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("get nonce: %w", err)
	}
	tip, err := backend.SuggestGasTipCap(ctx)
	if err != nil {
		return nil, fmt.Errorf("suggest tip: %w", err)
	}
	head, err := backend.HeaderByNumber(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("get head: %w", err)
	}
	baseFee := head.BaseFee
	if baseFee == nil {
		baseFee = new(big.Int)
	}
	feeCap := new(big.Int).Add(tip, new(big.Int).Mul(baseFee, big.NewInt(2)))

	gas, err := backend.EstimateGas(ctx, ethereum.CallMsg{From: from, To: &to, Value: value})
	if err != nil {
		o.logger.Warn("estimate gas failed, using transfer default",
			zap.String("chain", string(network.Chain)),
			zap.Error(err),
		)
		gas = fallbackTransferGas
	}

	return types.NewTx(&types.DynamicFeeTx{
		ChainID:   network.ChainID,
		Nonce:     nonce,
		GasTipCap: tip,
		GasFeeCap: feeCap,
		Gas:       gas,
		To:        &to,
		Value:     value,
	}), nil
}

func (o *Orchestrator) broadcast(ctx context.Context, backend Backend, tx *types.Transaction, sub model.PayoutSubmission) error {
	err := backend.SendTransaction(ctx, tx)
	switch {
	case err == nil, isAlreadyKnown(err):
		return nil
	case isNonceTooLow(err):
		o.discard(ctx, sub)
		return stageErr(StageBroadcast, fmt.Errorf("stale nonce %d: %w", sub.Nonce, err))
	case isRejected(err):
		// The node refused these exact bytes; the next attempt rebuilds with
		// fresh fees under the same nonce.
		o.discard(ctx, sub)
		return stageErr(StageBroadcast, fmt.Errorf("rejected tx %s: %w", sub.TxHash, err))
	default:
		// The node may still have accepted it; the journal entry stays pending.
		return stageErr(StageBroadcast, err)
	}
}

// reconcile settles a previously signed transfer: known to the chain means it
// already went out, unknown means rebroadcast the identical bytes.
func (o *Orchestrator) reconcile(ctx context.Context, backend Backend, sub model.PayoutSubmission) (string, error) {
	hash := common.HexToHash(sub.TxHash)
	_, _, err := backend.TransactionByHash(ctx, hash)
	if err == nil {
		o.logger.Info("journaled payout found on chain",
			zap.String("trigger_id", sub.TriggerID),
			zap.String("tx_hash", sub.TxHash),
		)
		return sub.TxHash, nil
	}
	if !errors.Is(err, ethereum.NotFound) {
		return "", stageErr(StageBroadcast, fmt.Errorf("look up journaled tx %s: %w", sub.TxHash, err))
	}

	raw, err := hexutil.Decode(sub.RawTx)
	if err != nil {
		return "", stageErr(StageJournal, fmt.Errorf("decode journaled tx: %w", err))
	}
	tx := new(types.Transaction)
	if err := tx.UnmarshalBinary(raw); err != nil {
		return "", stageErr(StageJournal, fmt.Errorf("decode journaled tx: %w", err))
	}

	o.logger.Warn("rebroadcasting journaled payout",
		zap.String("trigger_id", sub.TriggerID),
		zap.String("tx_hash", sub.TxHash),
	)
	if err := o.broadcast(ctx, backend, tx, sub); err != nil {
		return "", err
	}
	return sub.TxHash, nil
}

func (o *Orchestrator) discard(ctx context.Context, sub model.PayoutSubmission) {
	if err := o.journal.Resolve(ctx, sub.TriggerID, model.JournalDiscarded); err != nil {
		o.logger.Warn("discard submission failed", zap.String("trigger_id", sub.TriggerID), zap.Error(err))
	}
}

// submissionMatches reports whether sub transfers exactly what trig pays out.
func submissionMatches(sub model.PayoutSubmission, trig model.Trigger) bool {
	if sub.Chain != trig.Payout.Chain || !strings.EqualFold(sub.To, trig.Payout.Address) {
		return false
	}
	journaled, ok := new(big.Int).SetString(sub.Amount, 10)
	if !ok {
		return false
	}
	want, ok := new(big.Int).SetString(trig.Payout.Amount, 10)
	return ok && journaled.Cmp(want) == 0
}

// rejectionReasons are node answers that mean the transaction was not accepted
// and never will be as signed.
var rejectionReasons = []string{
	"underpriced",
	"fee cap less than block base fee",
	"max fee per gas less than block base fee",
	"intrinsic gas too low",
	"exceeds block gas limit",
}

func isRejected(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, reason := range rejectionReasons {
		if strings.Contains(msg, reason) {
			return true
		}
	}
	return false
}

func isAlreadyKnown(err error) bool {
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "already known") || strings.Contains(msg, "known transaction")
}

func isNonceTooLow(err error) bool {
	return strings.Contains(strings.ToLower(err.Error()), "nonce too low")
}
