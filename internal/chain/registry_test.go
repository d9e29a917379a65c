package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"triggerpay/internal/model"
)

func chainIDServer(t *testing.T, chainID int64, hold <-chan struct{}) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hold != nil {
			select {
			case <-hold:
			case <-r.Context().Done():
				return
			}
		}
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"result":"0x%x"}`, req.ID, chainID)
	}))
}

func TestRegistrySlowChainDoesNotBlockOthers(t *testing.T) {
	hold := make(chan struct{})
	slow := chainIDServer(t, 11155111, hold)
	defer slow.Close()
	fast := chainIDServer(t, 84532, nil)
	defer fast.Close()
	defer close(hold)

	registry := NewRegistry(map[model.Chain]Network{
		model.ChainEthereum: {Chain: model.ChainEthereum, ChainID: big.NewInt(11155111), RPCURL: slow.URL},
		model.ChainBase:     {Chain: model.ChainBase, ChainID: big.NewInt(84532), RPCURL: fast.URL},
	}, nil)
	defer registry.Close()

	slowCtx, cancelSlow := context.WithCancel(context.Background())
	defer cancelSlow()
	slowDone := make(chan error, 1)
	go func() {
		_, err := registry.Client(slowCtx, model.ChainEthereum)
		slowDone <- err
	}()
	// Let the slow dial take its slot first.
	time.Sleep(50 * time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	client, err := registry.Client(ctx, model.ChainBase)
	if err != nil {
		t.Fatalf("base client blocked behind ethereum dial: %v", err)
	}
	again, err := registry.Client(ctx, model.ChainBase)
	if err != nil || again != client {
		t.Fatalf("client not reused: %v", err)
	}

	cancelSlow()
	if err := <-slowDone; err == nil {
		t.Fatalf("expected cancelled ethereum dial to fail")
	}
}

func TestRegistryRejectsWrongChainID(t *testing.T) {
	srv := chainIDServer(t, 1, nil)
	defer srv.Close()

	registry := NewRegistry(map[model.Chain]Network{
		model.ChainBase: {Chain: model.ChainBase, ChainID: big.NewInt(84532), RPCURL: srv.URL},
	}, nil)
	defer registry.Close()

	if _, err := registry.Client(context.Background(), model.ChainBase); err == nil {
		t.Fatalf("expected chain id mismatch error")
	}
	if _, err := registry.Client(context.Background(), model.ChainArbitrum); err == nil {
		t.Fatalf("expected error for unconfigured chain")
	}
}
