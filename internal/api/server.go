// Package api is the HTTP shell over the trigger store, monitor and payout
// account queries.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"triggerpay/internal/flightsim"
	"triggerpay/internal/lock"
	"triggerpay/internal/model"
	"triggerpay/internal/payout"
	"triggerpay/internal/storage"
	"triggerpay/internal/trigger"
)

// CycleRunner runs one monitoring cycle on demand.
type CycleRunner interface {
	RunCycle(ctx context.Context) (model.CycleReport, error)
}

// ActivityReader reads the recent-activity log.
type ActivityReader interface {
	Recent(limit int) []model.ActivityEntry
}

// Accounts reports the payout sender account per chain.
type Accounts interface {
	Account(ctx context.Context, c model.Chain) (payout.Account, error)
}

// KeySource exposes the attestation public key.
type KeySource interface {
	Ready() bool
	PublicKeyHex() (string, error)
}

// Deps wires the server. Archive, Accounts and FlightSim are optional.
type Deps struct {
	Store     *trigger.Store
	Locker    lock.Locker
	Archive   storage.Archive
	Monitor   CycleRunner
	Activity  ActivityReader
	Accounts  Accounts
	Keys      KeySource
	FlightSim *flightsim.Sim
	Now       func() time.Time
}

type Server struct {
	r      *gin.Engine
	deps   Deps
	logger *zap.Logger
}

func NewServer(deps Deps, logger *zap.Logger) *Server {
	if logger == nil {
		logger = zap.NewNop()
	}
	if deps.Locker == nil {
		deps.Locker = lock.NewMemoryLocker()
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}

	r := gin.New()
	r.Use(gin.Recovery(), requestID(), accessLog(logger))

	s := &Server{r: r, deps: deps, logger: logger}
	s.routes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.r
}

// Run serves on addr until ctx ends, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	if addr == "" {
		addr = ":3001"
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return <-errCh
}

func (s *Server) routes() {
	api := s.r.Group("/api")

	api.GET("/health", s.handleHealth)

	api.GET("/triggers", s.handleListTriggers)
	api.POST("/triggers", s.handleCreateTrigger)
	api.GET("/triggers/stats", s.handleStats)
	api.GET("/triggers/:id", s.handleGetTrigger)
	api.DELETE("/triggers/:id", s.handleDeleteTrigger)
	api.POST("/triggers/:id/refund", s.handleRefund)
	api.GET("/triggers/:id/attestations", s.handleAttestations)

	api.GET("/monitor", s.handleRunCycle)
	api.POST("/monitor", s.handleRunCycle)
	api.GET("/monitor/activity", s.handleActivity)

	api.GET("/agent/public-key", s.handlePublicKey)
	api.GET("/eth-account", s.handleEthAccount)

	if s.deps.FlightSim != nil {
		flightsim.NewHandler(s.deps.FlightSim).Register(api)
	}
}
