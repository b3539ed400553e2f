package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/adjudicate"
	"github.com/kamilpajak/commentguard/internal/auth"
	"github.com/kamilpajak/commentguard/internal/batching"
	"github.com/kamilpajak/commentguard/internal/billing"
	"github.com/kamilpajak/commentguard/internal/database"
	"github.com/kamilpajak/commentguard/internal/llm"
	"github.com/kamilpajak/commentguard/internal/scan"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// ledgerLimit is how many ledger entries GET /api/credits returns.
const ledgerLimit = 20

// AdjudicateRequest is the body of POST /api/adjudicate.
type AdjudicateRequest struct {
	Comments          []models.Comment          `json:"comments"`
	AdjudicatorConfig *models.AdjudicatorConfig `json:"adjudicatorConfig,omitempty"`
}

// PostProcessRequest is the body of POST /api/post-process.
type PostProcessRequest struct {
	Comments    []models.Comment          `json:"comments"`
	ScanConfig  *models.PostProcessConfig `json:"scanConfig,omitempty"`
	DefaultMode models.Mode               `json:"defaultMode,omitempty"`
}

// CreditsResponse is the body of GET /api/credits.
type CreditsResponse struct {
	Credits int           `json:"credits"`
	Ledger  []LedgerEntry `json:"ledger"`
}

// LedgerEntry is one credit balance change.
type LedgerEntry struct {
	Delta     int       `json:"delta"`
	Reason    string    `json:"reason"`
	ScanRunID string    `json:"scanRunId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// AIConfiguration is the JSON form of the active provider/model/prompt set.
type AIConfiguration struct {
	ID          string                   `json:"id,omitempty"`
	Name        string                   `json:"name"`
	ScanA       models.ScannerConfig     `json:"scanA"`
	ScanB       models.ScannerConfig     `json:"scanB"`
	Adjudicator models.AdjudicatorConfig `json:"adjudicator"`
	PostProcess models.PostProcessConfig `json:"postProcess"`
	DefaultMode models.Mode              `json:"defaultMode"`
	CreatedAt   *time.Time               `json:"createdAt,omitempty"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.store != nil {
		if err := s.store.Ping(r.Context()); err != nil {
			s.logger.Warn("health check failed", zap.Error(err))
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded"})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleScanComments(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.Claims(ctx)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req models.ScanPayload
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Comments) == 0 {
		writeError(w, http.StatusBadRequest, "comments are required")
		return
	}

	if req.ScanA.Provider == "" || req.ScanB.Provider == "" {
		active, err := s.activeConfig(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if active != nil {
			if req.ScanA.Provider == "" {
				req.ScanA = active.ScanA
			}
			if req.ScanB.Provider == "" {
				req.ScanB = active.ScanB
			}
		}
	}

	charge, status, err := s.chargeScan(ctx, claims, &req)
	if err != nil {
		if status == http.StatusInternalServerError {
			s.logger.Error("credit charge failed", zap.String("subject", claims.Subject), zap.Error(err))
			writeError(w, status, "billing error")
			return
		}
		writeError(w, status, err.Error())
		return
	}

	resp, err := s.scanner.Scan(ctx, req)
	if err != nil {
		s.refund(ctx, charge)
		s.logger.Warn("scan failed", zap.String("subject", claims.Subject), zap.Error(err))
		writeJSON(w, statusFor(err), &models.ScanResponse{
			Success:  false,
			Comments: req.Comments,
			Summary:  models.Summarize(req.Comments),
			Error:    err.Error(),
		})
		return
	}
	if charge != nil {
		resp.ScanRunID = charge.ScanRunID.String()
	} else {
		resp.ScanRunID = req.ScanRunID
	}
	writeJSON(w, http.StatusOK, resp)
}

// chargeScan bills a scan call. Unrestricted calls pay per comment and open
// a scan run. Restricted calls are free when they re-fetch a paid run of
// the same comments, otherwise they pay per targeted comment.
func (s *Server) chargeScan(ctx context.Context, claims *auth.KindeClaims, req *models.ScanPayload) (*billing.Charge, int, error) {
	if s.credits == nil {
		return nil, http.StatusOK, nil
	}

	count := len(req.Comments)
	if len(req.RestrictIndices) > 0 {
		targets, err := scan.Targets(len(req.Comments), req.RestrictIndices)
		if err != nil {
			return nil, http.StatusBadRequest, err
		}
		if req.ScanRunID != "" {
			covered, err := s.credits.RetryCovered(ctx, claims.Subject, claims.Email, req.ScanRunID, req.Comments)
			if err != nil {
				return nil, http.StatusInternalServerError, err
			}
			if covered {
				return nil, http.StatusOK, nil
			}
		}
		count = len(targets)
	}

	charge, err := s.credits.ChargeScanRun(ctx, claims.Subject, claims.Email, req.Comments, count)
	if err != nil {
		if billing.IsInsufficientCredits(err) {
			return nil, http.StatusPaymentRequired, err
		}
		return nil, http.StatusInternalServerError, err
	}
	return charge, http.StatusOK, nil
}

func (s *Server) refund(ctx context.Context, charge *billing.Charge) {
	if charge == nil || s.credits == nil {
		return
	}
	if err := s.credits.Refund(context.WithoutCancel(ctx), charge); err != nil {
		s.logger.Error("credit refund failed",
			zap.String("scan_run_id", charge.ScanRunID.String()),
			zap.Int("amount", charge.Amount),
			zap.Error(err))
	}
}

func (s *Server) handleAdjudicate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if auth.Claims(ctx) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req AdjudicateRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var cfg models.AdjudicatorConfig
	if req.AdjudicatorConfig != nil {
		cfg = *req.AdjudicatorConfig
	} else {
		active, err := s.activeConfig(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if active != nil {
			cfg = active.Adjudicator
		}
	}

	resp, err := s.adjudicator.Adjudicate(ctx, req.Comments, cfg)
	if err != nil {
		s.logger.Warn("adjudication failed", zap.Int("comments", len(req.Comments)), zap.Error(err))
		writeJSON(w, statusFor(err), adjudicate.ErrorResponse(req.Comments, err))
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePostProcess(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if auth.Claims(ctx) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	var req PostProcessRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	mode := req.DefaultMode
	var cfg models.PostProcessConfig
	if req.ScanConfig != nil {
		cfg = *req.ScanConfig
	}
	if req.ScanConfig == nil || mode == "" {
		active, err := s.activeConfig(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if active != nil {
			if req.ScanConfig == nil {
				cfg = active.PostProcess
			}
			if mode == "" {
				mode = active.DefaultMode
			}
		}
	}
	if mode == "" {
		mode = s.defaultMode
	}

	resp, err := s.processor.Process(ctx, req.Comments, cfg, mode)
	if err != nil {
		writeJSON(w, statusFor(err), &models.PostProcessResponse{
			Success:           false,
			ProcessedComments: req.Comments,
			Summary:           models.PostProcessSummary{Total: len(req.Comments), Original: len(req.Comments)},
			Error:             err.Error(),
		})
		return
	}
	if resp.FallbackUsed {
		s.logger.Warn("post-process used fallback text", zap.String("error", resp.Error))
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetCredits(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.Claims(ctx)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if s.credits == nil {
		writeError(w, http.StatusNotFound, "billing disabled")
		return
	}

	user, err := s.credits.Account(ctx, claims.Subject, claims.Email)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}

	resp := CreditsResponse{Credits: user.Credits, Ledger: []LedgerEntry{}}
	if s.store != nil {
		entries, err := s.store.ListLedger(ctx, user.ID, ledgerLimit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		for _, e := range entries {
			entry := LedgerEntry{Delta: e.Delta, Reason: e.Reason, CreatedAt: e.CreatedAt}
			if e.ScanRunID != nil {
				entry.ScanRunID = e.ScanRunID.String()
			}
			resp.Ledger = append(resp.Ledger, entry)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleGetAIConfiguration(w http.ResponseWriter, r *http.Request) {
	if auth.Claims(r.Context()) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}

	active, err := s.activeConfig(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	if active == nil {
		writeError(w, http.StatusNotFound, "no active AI configuration")
		return
	}
	writeJSON(w, http.StatusOK, toAIConfiguration(active))
}

func (s *Server) handlePutAIConfiguration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if auth.Claims(ctx) == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if !auth.HasPermission(ctx, ManageConfigPermission) {
		writeError(w, http.StatusForbidden, "missing permission "+ManageConfigPermission)
		return
	}
	if s.store == nil {
		writeError(w, http.StatusNotFound, "storage disabled")
		return
	}

	var req AIConfiguration
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.DefaultMode != "" && !req.DefaultMode.Valid() {
		writeError(w, http.StatusBadRequest, "invalid defaultMode")
		return
	}
	if req.Name == "" {
		req.Name = "default"
	}

	created, err := s.store.CreateAIConfiguration(ctx, database.AIConfiguration{
		Name:        req.Name,
		Active:      true,
		ScanA:       req.ScanA,
		ScanB:       req.ScanB,
		Adjudicator: req.Adjudicator,
		PostProcess: req.PostProcess,
		DefaultMode: req.DefaultMode,
	})
	if err != nil {
		s.logger.Error("failed to store AI configuration", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "database error")
		return
	}
	writeJSON(w, http.StatusOK, toAIConfiguration(created))
}

// activeConfig returns the active AI configuration, or nil when there is
// none or no store is configured.
func (s *Server) activeConfig(ctx context.Context) (*database.AIConfiguration, error) {
	if s.store == nil {
		return nil, nil
	}
	active, err := s.store.GetActiveAIConfiguration(ctx)
	if err != nil {
		s.logger.Error("failed to load active AI configuration", zap.Error(err))
	}
	return active, err
}

func toAIConfiguration(c *database.AIConfiguration) AIConfiguration {
	created := c.CreatedAt
	return AIConfiguration{
		ID:          c.ID.String(),
		Name:        c.Name,
		ScanA:       c.ScanA,
		ScanB:       c.ScanB,
		Adjudicator: c.Adjudicator,
		PostProcess: c.PostProcess,
		DefaultMode: c.DefaultMode,
		CreatedAt:   &created,
	}
}

// statusFor maps pipeline errors to HTTP status codes.
func statusFor(err error) int {
	var cfgErr *batching.ConfigurationError
	var parseErr *adjudicate.ParseError
	var apiErr *llm.APIError
	switch {
	case errors.As(err, &cfgErr):
		return http.StatusBadRequest
	case billing.IsInsufficientCredits(err):
		return http.StatusPaymentRequired
	case errors.As(err, &parseErr), errors.As(err, &apiErr):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	}
	return http.StatusInternalServerError
}
