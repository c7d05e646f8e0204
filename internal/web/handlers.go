package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rootcauseai/rootcause-go/internal/ai"
	"github.com/rootcauseai/rootcause-go/internal/cache"
	"github.com/rootcauseai/rootcause-go/internal/chunk"
	"github.com/rootcauseai/rootcause-go/internal/cost"
	"github.com/rootcauseai/rootcause-go/internal/pipeline"
	"github.com/rootcauseai/rootcause-go/internal/ratelimit"
	"github.com/rootcauseai/rootcause-go/internal/storage"
)

// defaultRunDays bounds the /runs query when no ?days= is given.
const defaultRunDays = 7

// RunStore is the subset of the storage layer the handlers read from.
type RunStore interface {
	GetRecentRuns(days int) ([]*storage.Run, error)
	GetStatistics() (*storage.Statistics, error)
}

// Handler holds the dependencies for the HTTP endpoints. Store may be
// nil when the database is disabled.
type Handler struct {
	analyzer   Analyzer
	cache      *cache.Cache
	limiter    *ratelimit.Limiter
	accountant *cost.Accountant
	store      RunStore
	maxBytes   int64
	version    string
	log        zerolog.Logger

	// onReport, when set, receives every successful report. Used to
	// persist runs and deliver notifications without blocking the
	// response.
	onReport func(*pipeline.Report)
}

// HandlerConfig collects the handler dependencies.
type HandlerConfig struct {
	Analyzer   Analyzer
	Cache      *cache.Cache
	Limiter    *ratelimit.Limiter
	Accountant *cost.Accountant
	Store      RunStore
	MaxBytes   int64
	Version    string
	Logger     zerolog.Logger
	OnReport   func(*pipeline.Report)
}

// NewHandler creates the endpoint handler set.
func NewHandler(cfg HandlerConfig) *Handler {
	return &Handler{
		analyzer:   cfg.Analyzer,
		cache:      cfg.Cache,
		limiter:    cfg.Limiter,
		accountant: cfg.Accountant,
		store:      cfg.Store,
		maxBytes:   cfg.MaxBytes,
		version:    cfg.Version,
		log:        cfg.Logger,
		onReport:   cfg.OnReport,
	}
}

// errorResponse is the JSON body for all error replies.
type errorResponse struct {
	Error string `json:"error"`
}

// analyzeResponse wraps the pipeline report for the API.
type analyzeResponse struct {
	*pipeline.Report
	DurationSeconds float64 `json:"duration_seconds"`
}

// Analyze handles POST /api/v1/analyze. The log is read either from a
// multipart "file" field or from a plain-text request body.
func (h *Handler) Analyze(w http.ResponseWriter, r *http.Request) {
	document, err := h.readDocument(w, r)
	if err != nil {
		h.writeError(w, http.StatusBadRequest, err)
		return
	}

	report, err := h.analyzer.Analyze(r.Context(), document)
	if err != nil {
		h.writeAnalyzeError(w, err)
		return
	}

	if h.onReport != nil {
		h.onReport(report)
	}

	h.writeJSON(w, http.StatusOK, analyzeResponse{
		Report:          report,
		DurationSeconds: report.Duration.Seconds(),
	})
}

// readDocument extracts the log text from the request, enforcing the
// upload size cap.
func (h *Handler) readDocument(w http.ResponseWriter, r *http.Request) (string, error) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)

	contentType := r.Header.Get("Content-Type")
	if strings.HasPrefix(contentType, "multipart/form-data") {
		file, header, err := r.FormFile("file")
		if err != nil {
			return "", fmt.Errorf("missing 'file' upload field: %w", err)
		}
		defer func() { _ = file.Close() }()

		if err := checkUploadName(header); err != nil {
			return "", err
		}
		return readAll(file, h.maxBytes)
	}

	return readAll(r.Body, h.maxBytes)
}

// checkUploadName rejects uploads that are clearly not log files.
func checkUploadName(header *multipart.FileHeader) error {
	ext := strings.ToLower(filepath.Ext(header.Filename))
	switch ext {
	case "", ".txt", ".log", ".out":
		return nil
	default:
		return fmt.Errorf("unsupported file type %q, expected .txt or .log", ext)
	}
}

func readAll(r io.Reader, limit int64) (string, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return "", fmt.Errorf("failed to read log data: %w", err)
	}
	if int64(len(data)) > limit {
		return "", fmt.Errorf("log exceeds the %d byte upload limit", limit)
	}
	// Invalid UTF-8 sequences would otherwise break JSON encoding of
	// the analysis downstream.
	return strings.ToValidUTF8(string(data), "�"), nil
}

// writeAnalyzeError maps pipeline failures to HTTP status codes.
func (h *Handler) writeAnalyzeError(w http.ResponseWriter, err error) {
	var limitErr *ratelimit.LimitExceededError
	var backendErr *ai.BackendError

	switch {
	case errors.Is(err, chunk.ErrEmptyInput):
		h.writeError(w, http.StatusBadRequest, err)
	case errors.As(err, &limitErr):
		w.Header().Set("Retry-After", strconv.Itoa(int(limitErr.RetryAfter.Seconds()+0.5)))
		h.writeError(w, http.StatusTooManyRequests, err)
	case errors.As(err, &backendErr):
		h.writeError(w, http.StatusBadGateway, err)
	default:
		h.writeError(w, http.StatusInternalServerError, err)
	}
}

// healthResponse is the GET /healthz body.
type healthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
}

// Health handles GET /healthz.
func (h *Handler) Health(w http.ResponseWriter, _ *http.Request) {
	h.writeJSON(w, http.StatusOK, healthResponse{Status: "ok", Version: h.version})
}

// statusResponse is the GET /api/v1/status body.
type statusResponse struct {
	Time      time.Time               `json:"time"`
	Cache     cache.Stats             `json:"cache"`
	RateLimit map[ratelimit.Scope]int `json:"rate_limit_remaining"`
	Cost      cost.Summary            `json:"cost"`
	History   *storage.Statistics     `json:"history,omitempty"`
}

// Status handles GET /api/v1/status with a snapshot of the runtime
// counters.
func (h *Handler) Status(w http.ResponseWriter, _ *http.Request) {
	resp := statusResponse{
		Time:  time.Now().UTC(),
		Cache: h.cache.Snapshot(),
	}
	if h.limiter != nil {
		resp.RateLimit = h.limiter.Remaining()
	}
	if h.accountant != nil {
		resp.Cost = h.accountant.Snapshot()
	}
	if h.store != nil {
		stats, err := h.store.GetStatistics()
		if err != nil {
			h.log.Warn().Err(err).Msg("failed to read run statistics")
		} else {
			resp.History = stats
		}
	}

	h.writeJSON(w, http.StatusOK, resp)
}

// RecentRuns handles GET /api/v1/runs?days=N.
func (h *Handler) RecentRuns(w http.ResponseWriter, r *http.Request) {
	if h.store == nil {
		h.writeError(w, http.StatusNotFound, errors.New("run history is disabled"))
		return
	}

	days := defaultRunDays
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 || n > 365 {
			h.writeError(w, http.StatusBadRequest, errors.New("days must be between 1 and 365"))
			return
		}
		days = n
	}

	runs, err := h.store.GetRecentRuns(days)
	if err != nil {
		h.writeError(w, http.StatusInternalServerError, err)
		return
	}
	if runs == nil {
		runs = []*storage.Run{}
	}
	h.writeJSON(w, http.StatusOK, runs)
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		h.log.Error().Err(err).Msg("failed to encode response")
	}
}

func (h *Handler) writeError(w http.ResponseWriter, status int, err error) {
	if status >= http.StatusInternalServerError {
		h.log.Error().Err(err).Int("status", status).Msg("request failed")
	}
	h.writeJSON(w, status, errorResponse{Error: err.Error()})
}
