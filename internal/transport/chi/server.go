package chi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/aim3/internal/domain"
	"github.com/kailas-cloud/aim3/internal/domain/outcome"
	"github.com/kailas-cloud/aim3/internal/domain/usage"
	logpkg "github.com/kailas-cloud/aim3/internal/logger"
	artifactuc "github.com/kailas-cloud/aim3/internal/usecase/artifact"
	healthuc "github.com/kailas-cloud/aim3/internal/usecase/health"
	searchuc "github.com/kailas-cloud/aim3/internal/usecase/search"
)

const (
	maxBodyBytes = 1 << 20
	// retryAfterSec is advertised on retryable 503 responses.
	retryAfterSec = 5
)

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server holds the HTTP handlers.
type Server struct {
	search        *searchuc.Service
	artifacts     *artifactuc.Service
	health        *healthuc.Service
	strategy      StrategyReader
	outcomes      OutcomeAppender
	evolver       Evolver
	usage         UsageReporter
	storeName     string
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server. outcomes and evolver may be nil;
// their endpoints then answer 501.
func NewServer(
	search *searchuc.Service,
	artifacts *artifactuc.Service,
	health *healthuc.Service,
	strategy StrategyReader,
) *Server {
	s := &Server{
		search:    search,
		artifacts: artifacts,
		health:    health,
		strategy:  strategy,
	}
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrInvalidInput, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrVectorDimMismatch, http.StatusBadRequest, CodeValidationFailed),
		retryableHandler(domain.ErrStoreUnavailable, CodeStoreUnavailable),
		retryableHandler(domain.ErrPersistenceFailure, CodePersistenceFailure),
		retryableHandler(domain.ErrOutcomeSourceUnavailable, CodeOutcomeSourceUnavailable),
		sentinelHandler(domain.ErrAppendNotSupported, http.StatusNotImplemented, CodeNotImplemented),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
	}
	return s
}

// WithOutcomes enables POST /v1/outcomes.
func (s *Server) WithOutcomes(o OutcomeAppender) *Server {
	s.outcomes = o
	return s
}

// WithEvolver enables POST /v1/strategy/evolve.
func (s *Server) WithEvolver(e Evolver) *Server {
	s.evolver = e
	return s
}

// WithUsage enables GET /v1/usage.
func (s *Server) WithUsage(u UsageReporter) *Server {
	s.usage = u
	return s
}

// WithStoreName sets the store name reported by POST /v1/artifacts.
func (s *Server) WithStoreName(name string) *Server {
	s.storeName = name
	return s
}

// Search handles POST /v1/search.
func (s *Server) Search(w http.ResponseWriter, r *http.Request) {
	var req searchRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	searchReq, err := searchRequestFromDTO(&req)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	resp, err := s.search.Search(ctx, &searchReq)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusOK, searchResponseToDTO(resp))
}

// IndexArtifact handles POST /v1/artifacts.
func (s *Server) IndexArtifact(w http.ResponseWriter, r *http.Request) {
	var req indexRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	qctx, err := contextFromDTO(req.Context)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	ctx, usage := domain.NewContextWithUsage(r.Context())
	res, err := s.artifacts.Index(ctx, req.Content, qctx, req.Tags, req.ArtifactType)
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	setEmbeddingHeaders(w, usage)
	writeJSON(w, http.StatusCreated, indexResponseDTO{
		ArtifactID:        res.ID,
		VectorDimensions:  res.Dimensions,
		Store:             s.storeName,
		EmbeddingFallback: res.Fallback,
	})
}

// GetStrategy handles GET /v1/strategy.
func (s *Server) GetStrategy(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.strategy.Snapshot())
}

// AppendOutcome handles POST /v1/outcomes.
func (s *Server) AppendOutcome(w http.ResponseWriter, r *http.Request) {
	if s.outcomes == nil {
		s.handleDomainError(w, r, domain.ErrAppendNotSupported)
		return
	}

	var req outcomeRequestDTO
	if !decodeBody(w, r, &req) {
		return
	}

	rec := outcome.Record{Gain: req.Gain, TrustGain: req.TrustGain, Cost: req.Cost, Timestamp: time.Now().UTC()}
	if req.Timestamp != nil {
		rec.Timestamp = req.Timestamp.UTC()
	}
	if err := rec.Validate(); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	if err := s.outcomes.Append(r.Context(), rec); err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Evolve handles POST /v1/strategy/evolve.
func (s *Server) Evolve(w http.ResponseWriter, r *http.Request) {
	if s.evolver == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "evolution is disabled")
		return
	}

	c, err := s.evolver.RunOnce(r.Context())
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, evolveResponseDTO{
		Transition:     string(c.Transition),
		Reward:         c.Reward,
		PreviousReward: c.PrevReward,
		Outcomes:       c.Outcomes,
		Strategy:       c.State,
	})
}

// GetUsage handles GET /v1/usage?period=day|month.
func (s *Server) GetUsage(w http.ResponseWriter, r *http.Request) {
	if s.usage == nil {
		writeError(w, http.StatusNotImplemented, CodeNotImplemented, "usage reporting is disabled")
		return
	}

	period, err := usage.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		s.handleDomainError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, usageResponseToDTO(s.usage.GetReport(r.Context(), period)))
}

// HealthCheck handles GET /health.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	checks := make(map[string]string, len(report.Checks))
	for k, v := range report.Checks {
		checks[k] = string(v)
	}

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, healthResponseDTO{
		Status:            string(report.Status),
		Checks:            checks,
		EmbeddingProvider: report.Provider,
		VectorStore:       report.Store,
		ArtifactCount:     report.Artifacts,
	})
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return false
	}
	return true
}

func setEmbeddingHeaders(w http.ResponseWriter, usage *domain.EmbeddingUsage) {
	if usage == nil || !usage.Used {
		return
	}
	w.Header().Set("X-Embedding-Tokens", strconv.Itoa(usage.TotalTokens))
	if usage.Fallback {
		w.Header().Set("X-Embedding-Fallback", "true")
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code ErrorCode, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a client-safe message. Field-level validation
// errors are passed through; everything else collapses to its sentinel.
func safeDomainMessage(err error) string {
	var iie *domain.InvalidInputError
	if errors.As(err, &iie) {
		return iie.Error()
	}
	sentinels := []error{
		domain.ErrInvalidInput,
		domain.ErrVectorDimMismatch,
		domain.ErrStoreUnavailable,
		domain.ErrPersistenceFailure,
		domain.ErrOutcomeSourceUnavailable,
		domain.ErrAppendNotSupported,
		domain.ErrNotFound,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

// retryableHandler maps a sentinel to 503 with a Retry-After hint.
func retryableHandler(sentinel error, code ErrorCode) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		w.Header().Set("Retry-After", strconv.Itoa(retryAfterSec))
		writeError(w, http.StatusServiceUnavailable, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := logpkg.FromContext(r.Context())
	log.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	log.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
