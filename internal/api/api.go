// Package api provides the comment screening HTTP server.
package api

import (
	"context"
	"encoding/json"
	"net/http"
	"slices"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/kamilpajak/commentguard/internal/auth"
	"github.com/kamilpajak/commentguard/internal/billing"
	"github.com/kamilpajak/commentguard/internal/database"
	"github.com/kamilpajak/commentguard/internal/metrics"
	"github.com/kamilpajak/commentguard/internal/pipeline"
	"github.com/kamilpajak/commentguard/internal/scan"
	"github.com/kamilpajak/commentguard/pkg/models"
)

// maxBodyBytes caps request bodies.
const maxBodyBytes = 10 << 20

// ManageConfigPermission is the Kinde permission needed to change the
// active AI configuration.
const ManageConfigPermission = "manage:ai-config"

// Store is the persistence the handlers need.
type Store interface {
	Ping(ctx context.Context) error
	GetActiveAIConfiguration(ctx context.Context) (*database.AIConfiguration, error)
	CreateAIConfiguration(ctx context.Context, cfg database.AIConfiguration) (*database.AIConfiguration, error)
	ListLedger(ctx context.Context, userID uuid.UUID, limit int) ([]database.LedgerEntry, error)
}

// ScanService classifies comments with both scanners.
type ScanService interface {
	Scan(ctx context.Context, p models.ScanPayload) (*models.ScanResponse, error)
}

// AdjudicationService resolves scanner disagreements.
type AdjudicationService interface {
	Adjudicate(ctx context.Context, comments []models.Comment, cfg models.AdjudicatorConfig) (*models.AdjudicationResponse, error)
}

// PostProcessService rewrites flagged comments.
type PostProcessService interface {
	Process(ctx context.Context, comments []models.Comment, cfg models.PostProcessConfig, defaultMode models.Mode) (*models.PostProcessResponse, error)
}

// Screener builds an end-to-end runner that reports scan progress to
// emitter.
type Screener interface {
	Runner(emitter scan.ProgressEmitter) *pipeline.Runner
}

// Server is the API server.
type Server struct {
	store        Store
	authVerifier auth.TokenVerifier
	credits      *billing.CreditChecker
	scanner      ScanService
	adjudicator  AdjudicationService
	processor    PostProcessService
	screener     Screener
	defaultMode  models.Mode
	origins      []string
	limiter      *subjectLimiter
	logger       *zap.Logger
	mux          *http.ServeMux
}

// Config holds API server configuration.
type Config struct {
	Store          Store
	AuthVerifier   auth.TokenVerifier
	Credits        *billing.CreditChecker
	Scanner        ScanService
	Adjudicator    AdjudicationService
	Processor      PostProcessService
	Screener       Screener
	DefaultMode    models.Mode
	AllowedOrigins []string
	// RateLimitRPS limits requests per authenticated subject; zero disables it.
	RateLimitRPS   float64
	RateLimitBurst int
	Logger         *zap.Logger
}

// NewServer creates a new API server.
func NewServer(cfg Config) *Server {
	s := &Server{
		store:        cfg.Store,
		authVerifier: cfg.AuthVerifier,
		credits:      cfg.Credits,
		scanner:      cfg.Scanner,
		adjudicator:  cfg.Adjudicator,
		processor:    cfg.Processor,
		screener:     cfg.Screener,
		defaultMode:  cfg.DefaultMode,
		origins:      cfg.AllowedOrigins,
		logger:       cfg.Logger,
		mux:          http.NewServeMux(),
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if cfg.RateLimitRPS > 0 {
		s.limiter = newSubjectLimiter(rate.Limit(cfg.RateLimitRPS), max(cfg.RateLimitBurst, 1))
	}

	s.registerRoutes()
	return s
}

func (s *Server) registerRoutes() {
	authMiddleware := auth.Middleware(s.authVerifier)

	// Public endpoints
	s.mux.HandleFunc("GET /health", s.handleHealth)
	s.mux.Handle("GET /metrics", metrics.Handler())

	// Pipeline endpoints
	s.mux.HandleFunc("POST /api/scan-comments", s.withAuth(authMiddleware, s.handleScanComments))
	s.mux.HandleFunc("POST /api/adjudicate", s.withAuth(authMiddleware, s.handleAdjudicate))
	s.mux.HandleFunc("POST /api/post-process", s.withAuth(authMiddleware, s.handlePostProcess))
	s.mux.HandleFunc("POST /api/screen", s.withAuth(authMiddleware, s.handleScreen))

	// Account endpoints
	s.mux.HandleFunc("GET /api/credits", s.withAuth(authMiddleware, s.handleGetCredits))
	s.mux.HandleFunc("GET /api/ai-configuration", s.withAuth(authMiddleware, s.handleGetAIConfiguration))
	s.mux.HandleFunc("PUT /api/ai-configuration", s.withAuth(authMiddleware, s.handlePutAIConfiguration))
}

func (s *Server) withAuth(middleware func(http.Handler) http.Handler, handler http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		middleware(s.throttle(handler)).ServeHTTP(w, r)
	}
}

// throttle rejects callers that exceed their per-subject request rate.
func (s *Server) throttle(next http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.limiter != nil && !s.limiter.allow(auth.UserID(r.Context())) {
			writeError(w, http.StatusTooManyRequests, "rate limit exceeded")
			return
		}
		next(w, r)
	})
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	if origin := s.allowOrigin(r.Header.Get("Origin")); origin != "" {
		w.Header().Set("Access-Control-Allow-Origin", origin)
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	}

	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusOK)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
	s.mux.ServeHTTP(rec, r)

	s.logger.Debug("request",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Int("status", rec.status),
		zap.Duration("duration", time.Since(start)))
}

// allowOrigin returns the value for Access-Control-Allow-Origin, or "" when
// the origin is not allowed. No configured origins means any origin.
func (s *Server) allowOrigin(origin string) string {
	if len(s.origins) == 0 || slices.Contains(s.origins, "*") {
		return "*"
	}
	if origin != "" && slices.Contains(s.origins, origin) {
		return origin
	}
	return ""
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func readJSON(r *http.Request, v any) error {
	return json.NewDecoder(r.Body).Decode(v)
}
