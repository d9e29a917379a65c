package monitor

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"

	"triggerpay/internal/attest"
	"triggerpay/internal/chain"
	"triggerpay/internal/condition"
	"triggerpay/internal/model"
	"triggerpay/internal/mpc"
	"triggerpay/internal/payout"
	"triggerpay/internal/storage"
	"triggerpay/internal/trigger"
)

const (
	testRootKey     = "0b3a2b1c4d5e6f708192a3b4c5d6e7f8091a2b3c4d5e6f708192a3b4c5d6e7f8"
	testPredecessor = "triggerpay.testnet"
)

type memChain struct {
	mu   sync.Mutex
	sent map[common.Hash]*types.Transaction
}

func (m *memChain) PendingNonceAt(context.Context, common.Address) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return uint64(len(m.sent)), nil
}

func (m *memChain) SuggestGasTipCap(context.Context) (*big.Int, error) {
	return big.NewInt(1), nil
}

func (m *memChain) HeaderByNumber(context.Context, *big.Int) (*types.Header, error) {
	return &types.Header{BaseFee: big.NewInt(1)}, nil
}

func (m *memChain) EstimateGas(context.Context, ethereum.CallMsg) (uint64, error) {
	return 21000, nil
}

func (m *memChain) SendTransaction(_ context.Context, tx *types.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent[tx.Hash()] = tx
	return nil
}

func (m *memChain) TransactionByHash(_ context.Context, hash common.Hash) (*types.Transaction, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if tx, ok := m.sent[hash]; ok {
		return tx, false, nil
	}
	return nil, false, ethereum.NotFound
}

func (m *memChain) BalanceAt(context.Context, common.Address) (*big.Int, error) {
	return big.NewInt(0), nil
}

type failingSigner struct{}

func (failingSigner) Sign(context.Context, mpc.SignRequest) (mpc.Signature, error) {
	return mpc.Signature{}, errors.New("mpc signer returned status 503")
}

func newPipeline(t *testing.T, signer mpc.Signer) (*Scheduler, *trigger.Store, *fakeFlights, *memChain) {
	t.Helper()
	local, err := mpc.NewLocalSigner(testRootKey, testPredecessor)
	if err != nil {
		t.Fatalf("local signer: %v", err)
	}
	if signer == nil {
		signer = local
	}
	deriver, err := mpc.NewDeriver(local.RootPublicKey(), testPredecessor)
	if err != nil {
		t.Fatalf("deriver: %v", err)
	}
	backend := &memChain{sent: make(map[common.Hash]*types.Transaction)}
	orch, err := payout.New(payout.Config{
		Networks: chain.DefaultNetworks(),
		Backends: func(context.Context, model.Chain) (payout.Backend, error) { return backend, nil },
		Deriver:  deriver,
		Signer:   signer,
		Journal:  storage.NewMemoryJournal(),
	}, nil)
	if err != nil {
		t.Fatalf("orchestrator: %v", err)
	}

	att := attest.NewSigner(nil)
	if err := att.Init(testSeed); err != nil {
		t.Fatalf("attest signer: %v", err)
	}
	store := trigger.NewStore()
	flights := newFakeFlights()
	sched, err := New(Deps{
		Store:    store,
		Sources:  condition.Sources{model.ConditionFlightCancellation: flights},
		Attester: att,
		Payer:    orch,
	}, Config{}, nil)
	if err != nil {
		t.Fatalf("scheduler: %v", err)
	}
	return sched, store, flights, backend
}

func createT1(t *testing.T, store *trigger.Store) model.Trigger {
	t.Helper()
	params, err := trigger.CreateRequest{
		Owner:     "alice.testnet",
		Condition: []byte(`{"condition_type":"FlightCancellation","flight_number":"AA1234","flight_date":"2026-03-01"}`),
		Payout: model.Payout{
			Amount:  "500000000000000000",
			Address: "0x" + strings.Repeat("ab", 20),
			Chain:   model.ChainBase,
		},
	}.Validate()
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	return store.Create(params)
}

func TestEndToEndFlightCancellationPays(t *testing.T) {
	sched, store, flights, backend := newPipeline(t, nil)
	t1 := createT1(t, store)

	flights.set("AA1234", "scheduled")
	report, err := sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	if r := resultFor(t, report, t1.ID); r.ConditionMet || r.Action != model.ActionNone {
		t.Fatalf("unexpected result: %+v", r)
	}

	flights.set("AA1234", "cancelled")
	report, err = sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	r := resultFor(t, report, t1.ID)
	if !r.ConditionMet || r.Action != model.ActionPayoutSigned || r.TxHash == "" {
		t.Fatalf("unexpected result: %+v", r)
	}
	got, _ := store.Get(t1.ID)
	if got.Status != model.StatusExecuted || got.ExecutedTx == nil || *got.ExecutedTx != r.TxHash {
		t.Fatalf("trigger not executed: %+v", got)
	}

	tx, ok := backend.sent[common.HexToHash(r.TxHash)]
	if !ok {
		t.Fatalf("reported hash %s was never broadcast", r.TxHash)
	}
	if tx.Value().String() != "500000000000000000" || tx.ChainId().Int64() != 84532 {
		t.Fatalf("unexpected transfer: value=%s chain=%s", tx.Value(), tx.ChainId())
	}
}

func TestEndToEndSignerFailureKeepsActive(t *testing.T) {
	sched, store, flights, backend := newPipeline(t, failingSigner{})
	t1 := createT1(t, store)
	flights.set("AA1234", "cancelled")

	report, err := sched.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("cycle: %v", err)
	}
	r := resultFor(t, report, t1.ID)
	if !r.ConditionMet || !strings.HasPrefix(r.Action, "payout_failed:") || r.TxHash != "" {
		t.Fatalf("unexpected result: %+v", r)
	}
	if !strings.Contains(r.Action, "sign") {
		t.Fatalf("failed stage not named: %s", r.Action)
	}
	got, _ := store.Get(t1.ID)
	if got.Status != model.StatusActive || got.ExecutedTx != nil || got.AttestationCount != 1 {
		t.Fatalf("unexpected trigger: %+v", got)
	}
	if len(backend.sent) != 0 {
		t.Fatalf("transaction broadcast despite signer failure")
	}
}
