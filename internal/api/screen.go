package api

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/kamilpajak/commentguard/internal/auth"
	"github.com/kamilpajak/commentguard/internal/billing"
	"github.com/kamilpajak/commentguard/internal/pipeline"
	"github.com/kamilpajak/commentguard/internal/scan"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// ScreenRequest is the body of POST /api/screen. Settings default to the
// active AI configuration.
type ScreenRequest struct {
	Comments []models.Comment `json:"comments"`
	Settings *AIConfiguration `json:"settings,omitempty"`
}

// ScreenResult is the final event of a screen stream.
type ScreenResult struct {
	Type         string                     `json:"type"`
	Comments     []models.Comment           `json:"comments"`
	Scan         models.ScanSummary         `json:"scan"`
	Adjudication models.AdjudicationSummary `json:"adjudication"`
	PostProcess  models.PostProcessSummary  `json:"postProcess"`
	FallbackUsed bool                       `json:"fallbackUsed,omitempty"`
	Unscanned    int                        `json:"unscanned"`
	DurationMS   int64                      `json:"durationMs"`
}

// handleScreen runs the whole pipeline server-side and streams orchestrator
// progress as Server-Sent Events, ending with a "result" or "error" event.
func (s *Server) handleScreen(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	claims := auth.Claims(ctx)
	if claims == nil {
		writeError(w, http.StatusUnauthorized, "not authenticated")
		return
	}
	if s.screener == nil {
		writeError(w, http.StatusNotFound, "screening disabled")
		return
	}

	var req ScreenRequest
	if err := readJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Comments) == 0 {
		writeError(w, http.StatusBadRequest, "comments are required")
		return
	}

	settings := req.Settings
	if settings == nil {
		active, err := s.activeConfig(ctx)
		if err != nil {
			writeError(w, http.StatusInternalServerError, "database error")
			return
		}
		if active == nil {
			writeError(w, http.StatusBadRequest, "no settings and no active AI configuration")
			return
		}
		cfg := toAIConfiguration(active)
		settings = &cfg
	}
	mode := settings.DefaultMode
	if mode == "" {
		mode = s.defaultMode
	}

	var charge *billing.Charge
	if s.credits != nil {
		var err error
		charge, err = s.credits.ChargeScan(ctx, claims.Subject, claims.Email, len(req.Comments))
		if err != nil {
			if billing.IsInsufficientCredits(err) {
				writeError(w, http.StatusPaymentRequired, err.Error())
				return
			}
			s.logger.Error("credit charge failed", zap.String("subject", claims.Subject), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "billing error")
			return
		}
	}

	// Set SSE headers
	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	emitter := NewSSEEmitter(w)
	if emitter == nil {
		s.refund(ctx, charge)
		writeError(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	res, err := s.screener.Runner(emitter).Run(ctx, req.Comments, pipeline.Config{
		ScanA:       settings.ScanA,
		ScanB:       settings.ScanB,
		Adjudicator: settings.Adjudicator,
		PostProcess: settings.PostProcess,
		DefaultMode: mode,
	})
	if err != nil {
		s.refund(ctx, charge)
		s.logger.Warn("screening failed", zap.String("subject", claims.Subject), zap.Error(err))
		emitter.Emit(scan.ProgressEvent{Type: scan.EventError, Message: err.Error()})
		return
	}

	emitter.send(ScreenResult{
		Type:         "result",
		Comments:     res.Comments,
		Scan:         res.Scan,
		Adjudication: res.Adjudication,
		PostProcess:  res.PostProcess,
		FallbackUsed: res.FallbackUsed,
		Unscanned:    res.Unscanned,
		DurationMS:   res.Duration.Milliseconds(),
	})
}
