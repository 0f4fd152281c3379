// Package api serves comment risk analysis over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/denizumutdereli/npsrisk/pkg/api/apierr"
	"github.com/denizumutdereli/npsrisk/pkg/api/ratelimit"
	"github.com/denizumutdereli/npsrisk/pkg/batch"
	"github.com/denizumutdereli/npsrisk/pkg/classifier"
	"github.com/denizumutdereli/npsrisk/pkg/core"
	"github.com/denizumutdereli/npsrisk/pkg/lexicon"
	mcpapi "github.com/denizumutdereli/npsrisk/pkg/mcp"
	"github.com/denizumutdereli/npsrisk/pkg/metrics"
	"github.com/denizumutdereli/npsrisk/pkg/risk"
	"github.com/denizumutdereli/npsrisk/pkg/textnorm"
)

// Server is the HTTP/REST API server.
type Server struct {
	config    *core.Config
	analyzer  *risk.Analyzer
	processor *batch.Processor
	metrics   *metrics.Collector
	limiter   *ratelimit.Store

	httpServer *http.Server
	addr       string
	mcpPath    string
	routes     map[string]bool
}

// NewServer creates a new API server. collector may be nil, in which case
// nothing is recorded and no metrics route is mounted.
func NewServer(
	cfg *core.Config,
	analyzer *risk.Analyzer,
	processor *batch.Processor,
	collector *metrics.Collector,
) *Server {
	if analyzer == nil {
		analyzer = risk.NewAnalyzer(nil)
	}
	if processor == nil {
		processor = batch.NewProcessor(analyzer, batch.WithWorkers(cfg.Batch.Workers), batch.WithSanitize(cfg.Batch.StripMarkup))
	}
	s := &Server{
		config:    cfg,
		analyzer:  analyzer,
		processor: processor,
		metrics:   collector,
		limiter:   ratelimit.New(cfg.Security.RateLimitRPS, cfg.Security.RateLimitBurst),
		addr:      cfg.Server.HTTPAddr,
		routes:    make(map[string]bool),
	}
	if err := core.SetMaxCommentBytes(cfg.Security.MaxCommentBytes); err != nil {
		log.Printf("⚠ invalid security.maxCommentBytes=%d, using runtime default: %v", cfg.Security.MaxCommentBytes, err)
	}

	mux := http.NewServeMux()

	s.handle(mux, "/health", http.HandlerFunc(s.handleHealth))
	s.handle(mux, "/v1/analyze", http.HandlerFunc(s.handleAnalyze))
	s.handle(mux, "/v1/analyze/batch", http.HandlerFunc(s.handleAnalyzeBatch))
	s.handle(mux, "/v1/lexicon", http.HandlerFunc(s.handleLexicon))
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		apierr.NotFound(w, apierr.CodeNotFound, "no route for "+r.URL.Path)
	})

	if cfg.Metrics.Enabled && collector != nil {
		s.handle(mux, cfg.Metrics.Path, collector.Handler())
	}

	if cfg.MCP.Enabled {
		path := cfg.MCP.Path
		if strings.TrimSpace(path) == "" {
			path = "/mcp"
		}
		if len(path) > 1 {
			path = strings.TrimRight(path, "/")
		}

		mcpHandler, err := mcpapi.NewHandler(mcpapi.Config{
			APIKey:         cfg.MCP.APIKey,
			Stateless:      cfg.MCP.Stateless,
			RateLimitRPS:   cfg.MCP.RateLimitRPS,
			RateLimitBurst: cfg.MCP.RateLimitBurst,
			EnablePrompts:  cfg.MCP.EnablePrompts,
			Version:        core.Version,
		}, newMCPBackend(s))
		if err != nil {
			log.Printf("⚠ MCP endpoint disabled: %v", err)
		} else {
			s.mcpPath = path
			s.handle(mux, path, mcpHandler)
			log.Printf("MCP endpoint enabled at %s (stateless=%v)", path, cfg.MCP.Stateless)
		}
	}

	s.httpServer = &http.Server{
		Addr:         s.addr,
		Handler:      s.withMiddleware(mux),
		ReadTimeout:  cfg.Security.ReadTimeout,
		WriteTimeout: cfg.Security.WriteTimeout,
	}

	return s
}

func (s *Server) handle(mux *http.ServeMux, path string, h http.Handler) {
	s.routes[path] = true
	mux.Handle(path, h)
}

// routeLabel keeps metric label cardinality bounded to registered routes.
func (s *Server) routeLabel(path string) string {
	if s.routes[path] {
		return path
	}
	if s.isMCPPath(path) {
		return s.mcpPath
	}
	return "other"
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Flush keeps streaming MCP responses working through the recorder.
func (r *statusRecorder) Flush() {
	if f, ok := r.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (r *statusRecorder) Unwrap() http.ResponseWriter { return r.ResponseWriter }

// withMiddleware adds common middleware (request id, CORS, rate limit,
// request body limit, metrics, logging).
func (s *Server) withMiddleware(next http.Handler) http.Handler {
	limited := s.limiter.Middleware(apierr.TooManyRequests, next)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		defer func() {
			elapsed := time.Since(start)
			s.metrics.RecordHTTPRequest(r.Method, s.routeLabel(r.URL.Path), rec.status, elapsed)
			log.Printf("%s %s %d %v", r.Method, r.URL.Path, rec.status, elapsed)
		}()

		// The MCP handler carries its own auth and rate limit.
		if s.isMCPPath(r.URL.Path) {
			next.ServeHTTP(rec, r)
			return
		}

		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if _, err := uuid.Parse(requestID); err != nil {
			requestID = uuid.NewString()
		}
		rec.Header().Set("X-Request-ID", requestID)

		// AllowedOrigins may be comma-separated; match against the request Origin header.
		if requestOrigin := r.Header.Get("Origin"); requestOrigin != "" && s.originAllowed(requestOrigin) {
			rec.Header().Set("Access-Control-Allow-Origin", requestOrigin)
			rec.Header().Add("Vary", "Origin")
		}
		rec.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		rec.Header().Set("Access-Control-Allow-Headers", "Content-Type, Accept, Authorization, X-Request-ID")
		rec.Header().Set("Access-Control-Expose-Headers", "X-Request-ID, X-Run-ID, Retry-After")

		if r.Method == http.MethodOptions {
			rec.WriteHeader(http.StatusOK)
			return
		}

		if s.config.Security.MaxRequestBody > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(rec, r.Body, s.config.Security.MaxRequestBody)
		}

		limited.ServeHTTP(rec, r)
	})
}

func (s *Server) originAllowed(origin string) bool {
	if s.config.Security.AllowedOrigins == "*" {
		return true
	}
	for _, o := range strings.Split(s.config.Security.AllowedOrigins, ",") {
		if strings.TrimSpace(o) == origin {
			return true
		}
	}
	return false
}

func (s *Server) isMCPPath(path string) bool {
	if s.mcpPath == "" {
		return false
	}
	if path == s.mcpPath {
		return true
	}
	return strings.HasPrefix(path, s.mcpPath+"/")
}

// Handler returns the server's root handler, middleware included.
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start starts the API server.
func (s *Server) Start() error {
	if s.config.Security.TLSCert != "" && s.config.Security.TLSKey != "" {
		log.Printf("🚀 npsrisk API server starting on %s (TLS)", s.addr)
		return s.httpServer.ListenAndServeTLS(s.config.Security.TLSCert, s.config.Security.TLSKey)
	}
	log.Printf("🚀 npsrisk API server starting on %s", s.addr)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	s.limiter.Stop()
	return s.httpServer.Shutdown(ctx)
}

// ---------------------------------------------------------------------------
// Wire types
// ---------------------------------------------------------------------------

type analyzeRequest struct {
	Description string `json:"description" msgpack:"description"`
	Comment     string `json:"comment" msgpack:"comment"`
	Explain     bool   `json:"explain" msgpack:"explain"`
}

type batchRow struct {
	Description string `json:"description" msgpack:"description"`
	Comment     string `json:"comment" msgpack:"comment"`
}

type batchRequest struct {
	Rows    []batchRow `json:"rows" msgpack:"rows"`
	Explain bool       `json:"explain" msgpack:"explain"`
}

// resultView is the wire form of risk.Result. Score and Breakdown always
// describe the lexicon heuristic, also when an external classifier graded.
type resultView struct {
	Grade       string          `json:"grade" msgpack:"grade"`
	Explanation string          `json:"explanation" msgpack:"explanation"`
	Source      string          `json:"source" msgpack:"source"`
	Score       *float64        `json:"score,omitempty" msgpack:"score,omitempty"`
	Breakdown   *risk.Breakdown `json:"breakdown,omitempty" msgpack:"breakdown,omitempty"`
}

type analyzeResponse struct {
	OK bool `json:"ok" msgpack:"ok"`
	resultView
}

type batchResponse struct {
	OK      bool               `json:"ok" msgpack:"ok"`
	RunID   string             `json:"runId" msgpack:"runId"`
	Rows    int                `json:"rows" msgpack:"rows"`
	Unique  int                `json:"unique" msgpack:"unique"`
	Summary []batch.GradeCount `json:"summary" msgpack:"summary"`
	Results []resultView       `json:"results" msgpack:"results"`
}

type healthResponse struct {
	Status     string    `json:"status" msgpack:"status"`
	Timestamp  time.Time `json:"timestamp" msgpack:"timestamp"`
	Version    string    `json:"version" msgpack:"version"`
	Classifier string    `json:"classifier" msgpack:"classifier"`
	Lexicon    string    `json:"lexicon" msgpack:"lexicon"`
}

type lexiconResponse struct {
	OK      bool          `json:"ok" msgpack:"ok"`
	Overlap string        `json:"overlap" msgpack:"overlap"`
	Stats   lexicon.Stats `json:"stats" msgpack:"stats"`
}

func newResultView(r risk.Result) resultView {
	v := resultView{
		Grade:       r.Grade.String(),
		Explanation: r.Explanation,
		Source:      string(r.Source),
	}
	if r.Assessment != nil {
		score := r.Assessment.Score
		breakdown := r.Assessment.Breakdown
		v.Score = &score
		v.Breakdown = &breakdown
	}
	return v
}

// ---------------------------------------------------------------------------
// Analysis shared by the HTTP handlers and the MCP backend
// ---------------------------------------------------------------------------

// validateInputs checks a description/comment pair against the content
// limits, naming the offending field.
func validateInputs(description, comment string) error {
	if err := core.ValidateComment(description); err != nil {
		return fmt.Errorf("description: %w", err)
	}
	if err := core.ValidateComment(comment); err != nil {
		return fmt.Errorf("comment: %w", err)
	}
	return nil
}

// withDetail attaches the heuristic assessment to r when it is missing.
func (s *Server) withDetail(r risk.Result, description, comment string) risk.Result {
	if r.Assessment != nil || r.Source == risk.SourceNoInput {
		return r
	}
	as := s.analyzer.Engine().Assess(description, comment)
	r.Assessment = &as
	return r
}

func (s *Server) analyze(ctx context.Context, description, comment string, explain bool) risk.Result {
	res := s.analyzer.Analyze(ctx, description, comment)
	s.metrics.RecordResult(res)
	if explain {
		return s.withDetail(res, description, comment)
	}
	res.Assessment = nil
	return res
}

func (s *Server) analyzeRows(ctx context.Context, rows []batch.Row, explain bool) (*batchResponse, error) {
	if len(rows) == 0 {
		return nil, batch.ErrEmptyDataset
	}
	if limit := s.config.Batch.MaxRows; limit > 0 && len(rows) > limit {
		return nil, fmt.Errorf("%w: %d rows > %d", batch.ErrTooManyRows, len(rows), limit)
	}
	for i, row := range rows {
		if err := validateInputs(row.Description, row.Comment); err != nil {
			return nil, fmt.Errorf("rows[%d].%w", i, err)
		}
	}

	report, err := s.processor.Analyze(ctx, rows)
	if err != nil {
		return nil, err
	}

	resp := &batchResponse{
		OK:      true,
		RunID:   report.RunID,
		Rows:    report.Rows,
		Unique:  report.Unique,
		Summary: report.Summary(),
		Results: make([]resultView, len(report.Results)),
	}
	for i, res := range report.Results {
		if explain {
			description, comment := rows[i].Description, rows[i].Comment
			if s.config.Batch.StripMarkup {
				description, comment = textnorm.Sanitize(description), textnorm.Sanitize(comment)
			}
			res = s.withDetail(res, description, comment)
		} else {
			res.Assessment = nil
		}
		resp.Results[i] = newResultView(res)
	}
	return resp, nil
}

// writeAnalysisError maps validation and batch errors to HTTP API errors.
func (s *Server) writeAnalysisError(w http.ResponseWriter, err error) {
	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		apierr.PayloadTooLarge(w, err.Error())
	case errors.Is(err, core.ErrCommentTooLarge):
		apierr.PayloadTooLarge(w, err.Error())
	case errors.Is(err, core.ErrInvalidComment):
		apierr.BadRequest(w, apierr.CodeInvalidContent, err.Error())
	case errors.Is(err, batch.ErrTooManyRows):
		apierr.Write(w, http.StatusRequestEntityTooLarge, apierr.CodeBatchTooLarge, err.Error())
	case errors.Is(err, batch.ErrEmptyDataset):
		apierr.RowsRequired(w)
	case errors.Is(err, batch.ErrColumnNotFound):
		apierr.Unprocessable(w, apierr.CodeColumnNotFound, err.Error())
	case errors.Is(err, batch.ErrColumnExists):
		apierr.Unprocessable(w, apierr.CodeColumnExists, err.Error())
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		apierr.Write(w, http.StatusServiceUnavailable, apierr.CodeCancelled, err.Error())
	default:
		apierr.Internal(w, err.Error())
	}
}

// ---------------------------------------------------------------------------
// Handlers
// ---------------------------------------------------------------------------

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	provider := classifier.ProviderNone
	if s.analyzer.HasClassifier() {
		provider = s.config.Classifier.Provider
		if provider == "" || provider == classifier.ProviderNone {
			provider = "custom"
		}
	}
	s.writeResponse(w, r, http.StatusOK, healthResponse{
		Status:     "healthy",
		Timestamp:  time.Now().UTC(),
		Version:    core.Version,
		Classifier: provider,
		Lexicon:    s.analyzer.Engine().Lexicon().Name,
	})
}

func (s *Server) handleLexicon(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		apierr.MethodNotAllowed(w)
		return
	}
	engine := s.analyzer.Engine()
	s.writeResponse(w, r, http.StatusOK, lexiconResponse{
		OK:      true,
		Overlap: string(engine.OverlapPolicy()),
		Stats:   engine.Lexicon().Stats(),
	})
}

func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}

	var req analyzeRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	if err := validateInputs(req.Description, req.Comment); err != nil {
		s.writeAnalysisError(w, err)
		return
	}

	res := s.analyze(r.Context(), req.Description, req.Comment, req.Explain)
	s.writeResponse(w, r, http.StatusOK, analyzeResponse{OK: true, resultView: newResultView(res)})
}

// handleAnalyzeBatch grades a JSON/msgpack row list, or a CSV dataset that
// is returned with the two result columns appended.
func (s *Server) handleAnalyzeBatch(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		apierr.MethodNotAllowed(w)
		return
	}

	if requestMediaType(r) == mediaCSV {
		s.handleAnalyzeCSV(w, r)
		return
	}

	var req batchRequest
	if !s.decodeRequest(w, r, &req) {
		return
	}
	rows := make([]batch.Row, len(req.Rows))
	for i, row := range req.Rows {
		rows[i] = batch.Row{Description: row.Description, Comment: row.Comment}
	}

	resp, err := s.analyzeRows(r.Context(), rows, req.Explain)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	s.writeResponse(w, r, http.StatusOK, resp)
}

func (s *Server) handleAnalyzeCSV(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := s.config.ReadOptions()
	if raw := q.Get("headerRow"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			apierr.BadRequest(w, apierr.CodeBadRequest, "headerRow must be a positive integer")
			return
		}
		opts.HeaderRow = n
	}
	if raw := q.Get("delimiter"); raw != "" {
		d, size := utf8.DecodeRuneInString(raw)
		if d == utf8.RuneError || size != len(raw) {
			apierr.BadRequest(w, apierr.CodeBadRequest, "delimiter must be a single character")
			return
		}
		opts.Delimiter = d
	}

	cols := s.config.Columns()
	for param, dst := range map[string]*string{
		"descriptionColumn": &cols.Description,
		"commentColumn":     &cols.Comment,
		"gradeColumn":       &cols.Grade,
		"explanationColumn": &cols.Explanation,
	} {
		if v := strings.TrimSpace(q.Get(param)); v != "" {
			*dst = v
		}
	}

	ds, err := batch.ReadCSV(r.Body, opts)
	if err != nil {
		var maxErr *http.MaxBytesError
		switch {
		case errors.As(err, &maxErr), errors.Is(err, batch.ErrTooManyRows), errors.Is(err, batch.ErrEmptyDataset):
			s.writeAnalysisError(w, err)
		default:
			apierr.BadRequest(w, apierr.CodeInvalidCSV, err.Error())
		}
		return
	}

	rows, err := batch.ResolveRows(ds, cols)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}
	for i, row := range rows {
		if err := validateInputs(row.Description, row.Comment); err != nil {
			s.writeAnalysisError(w, fmt.Errorf("row %d: %w", i+1, err))
			return
		}
	}

	report, err := s.processor.Run(r.Context(), ds, cols)
	if err != nil {
		s.writeAnalysisError(w, err)
		return
	}

	w.Header().Set("Content-Type", mediaCSV+"; charset=utf-8")
	w.Header().Set("X-Run-ID", report.RunID)
	w.WriteHeader(http.StatusOK)
	if err := batch.WriteCSV(w, ds, opts.Delimiter); err != nil {
		log.Printf("⚠ batch %s: writing csv response: %v", report.RunID, err)
	}
}
