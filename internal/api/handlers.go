package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"triggerpay/internal/attest"
	"triggerpay/internal/model"
	"triggerpay/internal/payout"
	"triggerpay/internal/trigger"
)

// view renders a trigger with its read-time status.
func (s *Server) view(t model.Trigger) model.Trigger {
	t.Status = t.EffectiveStatus(s.deps.Now())
	return t
}

func (s *Server) handleHealth(c *gin.Context) {
	ready := s.deps.Keys != nil && s.deps.Keys.Ready()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "signer_ready": ready})
}

func (s *Server) handleListTriggers(c *gin.Context) {
	owner := strings.TrimSpace(c.Query("owner"))
	triggers := s.deps.Store.List(owner)
	out := make([]model.Trigger, 0, len(triggers))
	for _, t := range triggers {
		out = append(out, s.view(t))
	}
	c.JSON(http.StatusOK, out)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Store.Stats())
}

func (s *Server) handleGetTrigger(c *gin.Context) {
	t, ok := s.deps.Store.Get(c.Param("id"))
	if !ok {
		WriteError(c, trigger.ErrNotFound)
		return
	}
	c.JSON(http.StatusOK, s.view(t))
}

func (s *Server) handleCreateTrigger(c *gin.Context) {
	var req trigger.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		WriteErrorCode(c, http.StatusBadRequest, "INVALID_JSON", "invalid request body")
		return
	}
	params, err := req.Validate()
	if err != nil {
		WriteError(c, err)
		return
	}
	t := s.deps.Store.Create(params)
	s.logger.Info("trigger created",
		zap.String("trigger_id", t.ID),
		zap.String("owner", t.Owner),
		zap.String("source_key", t.Condition.SourceKey()),
		zap.String("chain", string(t.Payout.Chain)),
	)
	c.JSON(http.StatusCreated, s.view(t))
}

func (s *Server) handleDeleteTrigger(c *gin.Context) {
	id := c.Param("id")
	_, unlock, err := s.deps.Locker.Lock(c.Request.Context(), id)
	if err != nil {
		WriteError(c, fmt.Errorf("%w: %v", errUnavailable, err))
		return
	}
	defer unlock()

	if !s.deps.Store.Delete(id) {
		WriteError(c, trigger.ErrNotFound)
		return
	}
	s.logger.Info("trigger deleted", zap.String("trigger_id", id))
	c.JSON(http.StatusOK, gin.H{"success": true, "id": id})
}

func (s *Server) handleRefund(c *gin.Context) {
	var req struct {
		Caller string `json:"caller"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || strings.TrimSpace(req.Caller) == "" {
		WriteErrorCode(c, http.StatusBadRequest, "INVALID_ARGUMENT", "caller is required")
		return
	}

	id := c.Param("id")
	// Serialise with any in-flight payout for the same trigger.
	_, unlock, err := s.deps.Locker.Lock(c.Request.Context(), id)
	if err != nil {
		WriteError(c, fmt.Errorf("%w: %v", errUnavailable, err))
		return
	}
	defer unlock()

	t, err := s.deps.Store.ClaimRefund(id, strings.TrimSpace(req.Caller))
	if err != nil {
		WriteError(c, err)
		return
	}
	s.logger.Info("trigger refunded",
		zap.String("trigger_id", id),
		zap.String("owner", t.Owner),
		zap.String("funded_amount", t.FundedAmount),
	)
	c.JSON(http.StatusOK, s.view(t))
}

func (s *Server) handleAttestations(c *gin.Context) {
	id := c.Param("id")
	if _, ok := s.deps.Store.Get(id); !ok {
		WriteError(c, trigger.ErrNotFound)
		return
	}
	if s.deps.Archive == nil {
		c.JSON(http.StatusOK, []model.Attestation{})
		return
	}
	atts, err := s.deps.Archive.ListAttestations(c.Request.Context(), id)
	if err != nil {
		s.logger.Error("list attestations failed", zap.String("trigger_id", id), zap.Error(err))
		WriteError(c, err)
		return
	}
	if atts == nil {
		atts = []model.Attestation{}
	}
	c.JSON(http.StatusOK, atts)
}

func (s *Server) handleRunCycle(c *gin.Context) {
	if s.deps.Monitor == nil {
		WriteError(c, fmt.Errorf("%w: monitor not configured", errUnavailable))
		return
	}
	// A disconnecting client must not abort signing or broadcast midway;
	// the per-stage timeouts bound the cycle instead.
	report, err := s.deps.Monitor.RunCycle(context.WithoutCancel(c.Request.Context()))
	if err != nil {
		if errors.Is(err, attest.ErrNotInitialized) || len(report.Results) == 0 {
			WriteError(c, err)
			return
		}
		s.logger.Warn("monitor cycle incomplete", zap.Error(err), zap.Int("checked", report.Checked))
	}
	c.JSON(http.StatusOK, report)
}

func (s *Server) handleActivity(c *gin.Context) {
	if s.deps.Activity == nil {
		c.JSON(http.StatusOK, []model.ActivityEntry{})
		return
	}
	limit := 0
	if raw := strings.TrimSpace(c.Query("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 {
			limit = n
		}
	}
	c.JSON(http.StatusOK, s.deps.Activity.Recent(limit))
}

func (s *Server) handlePublicKey(c *gin.Context) {
	if s.deps.Keys == nil {
		WriteError(c, fmt.Errorf("%w: signer not configured", errUnavailable))
		return
	}
	key, err := s.deps.Keys.PublicKeyHex()
	if err != nil {
		WriteError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"public_key": key})
}

func (s *Server) handleEthAccount(c *gin.Context) {
	name := strings.TrimSpace(c.Query("chain"))
	if name == "" {
		name = string(model.ChainEthereum)
	}
	chain, err := model.ParseChain(name)
	if err != nil {
		WriteError(c, fmt.Errorf("%w: %q", payout.ErrUnsupportedChain, name))
		return
	}
	if s.deps.Accounts == nil {
		WriteError(c, fmt.Errorf("%w: payout signer not configured", errUnavailable))
		return
	}
	acct, err := s.deps.Accounts.Account(c.Request.Context(), chain)
	if err != nil {
		s.logger.Warn("derived account lookup failed", zap.String("chain", name), zap.Error(err))
		if errors.Is(err, payout.ErrUnsupportedChain) {
			WriteError(c, err)
			return
		}
		WriteError(c, fmt.Errorf("%w: %v", errUnavailable, err))
		return
	}
	c.JSON(http.StatusOK, acct)
}
