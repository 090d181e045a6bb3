package chi

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/kailas-cloud/trialfit/internal/domain"
	"github.com/kailas-cloud/trialfit/internal/domain/schema"
	"github.com/kailas-cloud/trialfit/internal/domain/trial"
	corpusuc "github.com/kailas-cloud/trialfit/internal/usecase/corpus"
	healthuc "github.com/kailas-cloud/trialfit/internal/usecase/health"
	"github.com/kailas-cloud/trialfit/internal/usecase/resilience"
)

const (
	maxK         = 100
	maxBodyBytes = 8 << 20
)

// Error codes returned in ErrorResponse.Code.
const (
	CodeBadRequest       = "bad_request"
	CodeValidationFailed = "validation_failed"
	CodeUnauthorized     = "unauthorized"
	CodeEmptyDocument    = "empty_document"
	CodeExtractionFailed = "extraction_failed"
	CodeTimeout          = "timeout"
	CodeProviderError    = "provider_error"
	CodeProviderOpen     = "provider_unavailable"
	CodeBudgetExceeded   = "budget_exceeded"
	CodeNotFound         = "not_found"
	CodeIndexError       = "index_error"
	CodeEstimationFailed = "estimation_failed"
	CodeInternalError    = "internal_error"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// FeasibilityRequest is the body of POST /v1/feasibility and POST /v1/extract.
type FeasibilityRequest struct {
	Text    string `json:"text"`
	TrialID string `json:"trial_id,omitempty"`
	Source  string `json:"source,omitempty"`
	K       int    `json:"k,omitempty"`
}

// AddTrialRequest is the body of POST /v1/index/trials.
type AddTrialRequest struct {
	ID       string             `json:"id"`
	Record   map[string]any     `json:"record"`
	Outcomes map[string]float64 `json:"outcomes"`
}

// AddTrialResponse reports an indexed trial and the record fields that were
// coerced to unknown.
type AddTrialResponse struct {
	ID         string             `json:"id"`
	Violations []schema.Violation `json:"violations"`
	Trial      trial.Historical   `json:"trial"`
}

// SimilarResponse lists the neighbours of an indexed trial.
type SimilarResponse struct {
	TrialID     string             `json:"trial_id"`
	Comparators []trial.Comparator `json:"comparators"`
}

// errorHandler tries to handle a domain error. Returns true if handled.
type errorHandler func(w http.ResponseWriter, err error, msg string) bool

// Server serves the feasibility API.
type Server struct {
	pipeline      Pipeline
	extractor     Extractor
	corpus        Corpus
	similar       SimilarFinder
	registry      *schema.Registry
	health        HealthChecker
	usage         UsageReporter
	logger        *zap.Logger
	errorHandlers []errorHandler
}

// NewServer creates an HTTP API server.
func NewServer(
	pipeline Pipeline,
	extractor Extractor,
	corpus Corpus,
	similar SimilarFinder,
	registry *schema.Registry,
	health HealthChecker,
	usage UsageReporter,
	logger *zap.Logger,
) *Server {
	if registry == nil {
		registry = schema.Default()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Server{
		pipeline:  pipeline,
		extractor: extractor,
		corpus:    corpus,
		similar:   similar,
		registry:  registry,
		health:    health,
		usage:     usage,
		logger:    logger,
	}
	// order matters: a timeout or provider failure inside extraction is
	// reported as such, not as a generic extraction failure
	s.errorHandlers = []errorHandler{
		sentinelHandler(domain.ErrEmptyDocument, http.StatusBadRequest, CodeEmptyDocument),
		sentinelHandler(corpusuc.ErrEmptyRecord, http.StatusBadRequest, CodeValidationFailed),
		sentinelHandler(domain.ErrTimeout, http.StatusGatewayTimeout, CodeTimeout),
		sentinelHandler(domain.ErrLLMBudgetExceeded, http.StatusTooManyRequests, CodeBudgetExceeded),
		sentinelHandler(resilience.ErrCircuitOpen, http.StatusServiceUnavailable, CodeProviderOpen),
		sentinelHandler(domain.ErrLLMProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrEmbeddingProviderError, http.StatusBadGateway, CodeProviderError),
		sentinelHandler(domain.ErrExtraction, http.StatusUnprocessableEntity, CodeExtractionFailed),
		sentinelHandler(domain.ErrNotFound, http.StatusNotFound, CodeNotFound),
		sentinelHandler(domain.ErrIndex, http.StatusInternalServerError, CodeIndexError),
		sentinelHandler(domain.ErrEstimation, http.StatusInternalServerError, CodeEstimationFailed),
		sentinelHandler(domain.ErrRetrieval, http.StatusBadGateway, CodeProviderError),
	}
	return s
}

// Mount registers the API routes on r.
func (s *Server) Mount(r chi.Router) {
	r.Get("/healthz", s.HealthCheck)
	r.Get("/metrics", s.Metrics)
	r.Route("/v1", func(r chi.Router) {
		r.Post("/feasibility", s.Feasibility)
		r.Post("/extract", s.Extract)
		r.Get("/index", s.IndexStats)
		r.Post("/index/trials", s.AddTrial)
		r.Get("/trials/{id}", s.GetTrial)
		r.Get("/trials/{id}/similar", s.SimilarTrials)
		r.Get("/usage", s.GetUsage)
	})
}

// Feasibility handles POST /v1/feasibility.
func (s *Server) Feasibility(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProtocol(w, r)
	if !ok {
		return
	}

	report, err := s.pipeline.Run(r.Context(), req.document(), req.K)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, report)
}

// Extract handles POST /v1/extract.
func (s *Server) Extract(w http.ResponseWriter, r *http.Request) {
	req, ok := s.decodeProtocol(w, r)
	if !ok {
		return
	}

	res, err := s.extractor.ExtractDetailed(r.Context(), req.document())
	if err != nil {
		s.handleDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, res)
}

// IndexStats handles GET /v1/index.
func (s *Server) IndexStats(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.corpus.Stats())
}

// AddTrial handles POST /v1/index/trials.
func (s *Server) AddTrial(w http.ResponseWriter, r *http.Request) {
	var req AddTrialRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return
	}
	req.ID = strings.TrimSpace(req.ID)
	if req.ID == "" {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Trial id is required")
		return
	}
	if len(req.Record) == 0 {
		writeError(w, http.StatusBadRequest, CodeValidationFailed, "Trial record is required")
		return
	}

	outcomes := make(trial.Outcomes, len(req.Outcomes))
	for name, v := range req.Outcomes {
		m, err := trial.ParseMetric(name)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeValidationFailed, err.Error())
			return
		}
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			writeError(w, http.StatusBadRequest, CodeValidationFailed,
				fmt.Sprintf("outcome %s must be a non-negative number", name))
			return
		}
		outcomes[m] = v
	}

	rec, violations := s.registry.Validate(req.Record)
	t := trial.Historical{ID: req.ID, Record: rec, Outcomes: outcomes}
	if err := s.corpus.Add(r.Context(), t); err != nil {
		s.handleDomainError(w, err)
		return
	}

	if violations == nil {
		violations = []schema.Violation{}
	}
	writeJSON(w, http.StatusCreated, AddTrialResponse{ID: t.ID, Violations: violations, Trial: t})
}

// GetTrial handles GET /v1/trials/{id}.
func (s *Server) GetTrial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	t, ok := s.corpus.Trial(id)
	if !ok {
		writeError(w, http.StatusNotFound, CodeNotFound, "trial not found")
		return
	}
	writeJSON(w, http.StatusOK, t)
}

// SimilarTrials handles GET /v1/trials/{id}/similar.
func (s *Server) SimilarTrials(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	k := 0
	if raw := r.URL.Query().Get("k"); raw != "" {
		v, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, CodeBadRequest, "k must be an integer")
			return
		}
		k = v
	}
	if k == 0 {
		k = 10
	}
	if k < 0 || k > maxK {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("k must be between 1 and %d", maxK))
		return
	}

	comps, err := s.similar.SimilarTo(id, k)
	if err != nil {
		s.handleDomainError(w, err)
		return
	}
	if comps == nil {
		comps = []trial.Comparator{}
	}

	writeJSON(w, http.StatusOK, SimilarResponse{TrialID: id, Comparators: comps})
}

// HealthCheck handles GET /healthz.
func (s *Server) HealthCheck(w http.ResponseWriter, r *http.Request) {
	report := s.health.Check(r.Context())

	httpStatus := http.StatusOK
	if report.Status != healthuc.Healthy {
		httpStatus = http.StatusServiceUnavailable
	}

	writeJSON(w, httpStatus, report)
}

// Metrics handles GET /metrics.
func (s *Server) Metrics(w http.ResponseWriter, r *http.Request) {
	promhttp.Handler().ServeHTTP(w, r)
}

func (req FeasibilityRequest) document() domain.ProtocolDocument {
	return domain.ProtocolDocument{Text: req.Text, TrialID: req.TrialID, Source: req.Source}
}

func (s *Server) decodeProtocol(w http.ResponseWriter, r *http.Request) (FeasibilityRequest, bool) {
	var req FeasibilityRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, CodeBadRequest, "Invalid request body: "+err.Error())
		return req, false
	}
	if req.K < 0 || req.K > maxK {
		writeError(w, http.StatusBadRequest, CodeValidationFailed,
			fmt.Sprintf("k must be between 0 and %d", maxK))
		return req, false
	}
	return req, true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, message string) {
	writeJSON(w, status, ErrorResponse{
		Code:    code,
		Message: message,
	})
}

// safeDomainMessage returns a sentinel error message for the client without exposing internals.
func safeDomainMessage(err error) string {
	sentinels := []error{
		domain.ErrEmptyDocument,
		corpusuc.ErrEmptyRecord,
		domain.ErrTimeout,
		domain.ErrLLMBudgetExceeded,
		resilience.ErrCircuitOpen,
		domain.ErrRetriesExhausted,
		domain.ErrLLMProviderError,
		domain.ErrEmbeddingProviderError,
		domain.ErrExtraction,
		domain.ErrNotFound,
		domain.ErrDimensionMismatch,
		domain.ErrIndex,
		domain.ErrEstimation,
		domain.ErrRetrieval,
	}
	for _, s := range sentinels {
		if errors.Is(err, s) {
			return s.Error()
		}
	}
	return "internal error"
}

// sentinelHandler returns an errorHandler that matches a single sentinel error.
func sentinelHandler(sentinel error, status int, code string) errorHandler {
	return func(w http.ResponseWriter, err error, msg string) bool {
		if !errors.Is(err, sentinel) {
			return false
		}
		writeError(w, status, code, msg)
		return true
	}
}

func (s *Server) handleDomainError(w http.ResponseWriter, err error) {
	s.logger.Warn("domain error", zap.Error(err))
	msg := safeDomainMessage(err)
	var se *domain.StageError
	if errors.As(err, &se) {
		msg = string(se.Stage) + ": " + msg
	}
	for _, h := range s.errorHandlers {
		if h(w, err, msg) {
			return
		}
	}
	s.logger.Error("internal error", zap.Error(err))
	writeError(w, http.StatusInternalServerError, CodeInternalError, "internal error")
}
