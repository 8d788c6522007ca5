package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strings"
	"time"

	"github.com/example/go-bpe-tokenizer/internal/bytecodec"
	"github.com/example/go-bpe-tokenizer/internal/config"
	"github.com/example/go-bpe-tokenizer/internal/vocab"
)

// ParseLogLevel converts a case-insensitive level string to slog.Level.
// An empty string returns slog.LevelInfo. Unknown strings return an error.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(s) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (want debug|info|warn|error)", s)
	}
}

// Tokenizer is the subset of *tokenizer.Tokenizer the handler needs.
type Tokenizer interface {
	Tokenize(text string) []string
	TokensToIDs(tokens []string) []int
	Decode(ids []int) (string, error)
	EncodeBatch(ctx context.Context, texts []string, workers int) ([][]int, error)
	VocabSize() int
}

// ---------------------------------------------------------------------------
// Functional options
// ---------------------------------------------------------------------------

type options struct {
	maxTextBytes   int
	maxBatch       int
	workers        int
	requestTimeout time.Duration
	logger         *slog.Logger
}

func defaultOptions() options {
	return options{
		maxTextBytes:   65536,
		maxBatch:       256,
		workers:        4,
		requestTimeout: 30 * time.Second,
		logger:         slog.Default(),
	}
}

// Option configures the HTTP handler.
type Option func(*options)

// WithMaxTextBytes sets the maximum allowed size of any single text in bytes.
func WithMaxTextBytes(n int) Option {
	return func(o *options) { o.maxTextBytes = n }
}

// WithMaxBatch sets the maximum number of texts accepted by POST /tokenize/batch.
func WithMaxBatch(n int) Option {
	return func(o *options) { o.maxBatch = n }
}

// WithWorkers sets the maximum number of requests tokenized concurrently.
// Zero disables throttling.
func WithWorkers(n int) Option {
	return func(o *options) { o.workers = n }
}

// WithRequestTimeout sets the per-request deadline.
func WithRequestTimeout(d time.Duration) Option {
	return func(o *options) { o.requestTimeout = d }
}

// WithLogger sets the slog.Logger used for request logging.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) { o.logger = l }
}

// ---------------------------------------------------------------------------
// handler
// ---------------------------------------------------------------------------

type handler struct {
	tok  Tokenizer
	opts options
	sem  chan struct{} // nil when unthrottled
	log  *slog.Logger
}

// NewHandler returns an http.Handler that serves /health, /vocab,
// POST /tokenize, POST /tokenize/batch and POST /detokenize.
func NewHandler(tok Tokenizer, optFns ...Option) http.Handler {
	opts := defaultOptions()
	for _, fn := range optFns {
		fn(&opts)
	}

	h := &handler{
		tok:  tok,
		opts: opts,
		log:  opts.logger,
	}
	if opts.workers > 0 {
		h.sem = make(chan struct{}, opts.workers)
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.handleHealth)
	mux.HandleFunc("/vocab", h.handleVocab)
	mux.HandleFunc("/tokenize", h.handleTokenize)
	mux.HandleFunc("/tokenize/batch", h.handleBatch)
	mux.HandleFunc("/detokenize", h.handleDetokenize)
	return mux
}

func buildVersion() string {
	if info, ok := debug.ReadBuildInfo(); ok && info.Main.Version != "" {
		return info.Main.Version
	}
	return "dev"
}

func (h *handler) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"status":  "ok",
		"version": buildVersion(),
	})
}

type vocabResponse struct {
	Size int `json:"size"`
}

func (h *handler) handleVocab(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	writeJSON(w, http.StatusOK, vocabResponse{Size: h.tok.VocabSize()})
}

type tokenizeRequest struct {
	Text string `json:"text"`
}

type tokenizeResponse struct {
	Tokens []string `json:"tokens"`
	IDs    []int    `json:"ids"`
}

func (h *handler) handleTokenize(w http.ResponseWriter, r *http.Request) {
	var req tokenizeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	if len(req.Text) > h.opts.maxTextBytes {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("text exceeds maximum size of %d bytes", h.opts.maxTextBytes))
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	start := time.Now()
	tokens := h.tok.Tokenize(req.Text)
	ids := h.tok.TokensToIDs(tokens)
	if tokens == nil {
		tokens = []string{}
	}

	h.log.InfoContext(r.Context(), "tokenize complete",
		slog.Int("text_len", len(req.Text)),
		slog.Int("tokens", len(ids)),
		slog.Int64("duration_ms", time.Since(start).Milliseconds()),
	)

	writeJSON(w, http.StatusOK, tokenizeResponse{Tokens: tokens, IDs: ids})
}

type batchRequest struct {
	Texts []string `json:"texts"`
}

type batchResponse struct {
	IDs [][]int `json:"ids"`
}

func (h *handler) handleBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	if len(req.Texts) > h.opts.maxBatch {
		writeError(w, http.StatusRequestEntityTooLarge,
			fmt.Sprintf("batch exceeds maximum of %d texts", h.opts.maxBatch))
		return
	}
	for i, text := range req.Texts {
		if len(text) > h.opts.maxTextBytes {
			writeError(w, http.StatusRequestEntityTooLarge,
				fmt.Sprintf("text %d exceeds maximum size of %d bytes", i, h.opts.maxTextBytes))
			return
		}
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	ctx := r.Context()
	if h.opts.requestTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, h.opts.requestTimeout)
		defer cancel()
	}

	start := time.Now()
	ids, err := h.tok.EncodeBatch(ctx, req.Texts, h.opts.workers)
	durationMS := time.Since(start).Milliseconds()
	if err != nil {
		h.log.WarnContext(r.Context(), "batch tokenize aborted",
			slog.Int("texts", len(req.Texts)),
			slog.Int64("duration_ms", durationMS),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusGatewayTimeout, "batch tokenize timed out")
		return
	}

	h.log.InfoContext(r.Context(), "batch tokenize complete",
		slog.Int("texts", len(req.Texts)),
		slog.Int64("duration_ms", durationMS),
	)

	writeJSON(w, http.StatusOK, batchResponse{IDs: ids})
}

type detokenizeRequest struct {
	IDs []int `json:"ids"`
}

type detokenizeResponse struct {
	Text string `json:"text"`
}

func (h *handler) handleDetokenize(w http.ResponseWriter, r *http.Request) {
	var req detokenizeRequest
	if !h.decodeRequest(w, r, &req) {
		return
	}

	release, ok := h.acquire(w, r)
	if !ok {
		return
	}
	defer release()

	text, err := h.tok.Decode(req.IDs)
	if err != nil {
		status := http.StatusInternalServerError
		if isDecodeError(err) {
			status = http.StatusUnprocessableEntity
		}
		h.log.WarnContext(r.Context(), "detokenize failed",
			slog.Int("ids", len(req.IDs)),
			slog.Int("status", status),
			slog.String("error", err.Error()),
		)
		writeError(w, status, err.Error())
		return
	}

	h.log.InfoContext(r.Context(), "detokenize complete",
		slog.Int("ids", len(req.IDs)),
		slog.Int("text_len", len(text)),
	)

	writeJSON(w, http.StatusOK, detokenizeResponse{Text: text})
}

// isDecodeError reports whether err is caused by the ids themselves.
func isDecodeError(err error) bool {
	var sym *bytecodec.UnknownSymbolError
	return errors.Is(err, vocab.ErrUnknownID) ||
		errors.Is(err, bytecodec.ErrInvalidUTF8) ||
		errors.As(err, &sym)
}

// decodeRequest enforces POST, caps the body and decodes JSON into v. It
// writes the error response itself and reports whether decoding succeeded.
func (h *handler) decodeRequest(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return false
	}

	if r.Body == nil || r.Body == http.NoBody {
		writeError(w, http.StatusBadRequest, "request body is required")
		return false
	}

	// JSON escaping can inflate text up to six bytes per input byte.
	limit := int64(h.opts.maxTextBytes)*6*int64(max(h.opts.maxBatch, 1)) + 1024
	body := http.MaxBytesReader(w, r.Body, limit)

	if err := json.NewDecoder(body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

// acquire takes a worker slot, honouring cancellation while waiting.
func (h *handler) acquire(w http.ResponseWriter, r *http.Request) (release func(), ok bool) {
	if h.sem == nil {
		return func() {}, true
	}
	select {
	case h.sem <- struct{}{}:
		return func() { <-h.sem }, true
	case <-r.Context().Done():
		writeError(w, http.StatusServiceUnavailable, "request cancelled while waiting for worker")
		return nil, false
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// ---------------------------------------------------------------------------
// Server
// ---------------------------------------------------------------------------

// Server wires the HTTP handler into a net/http.Server with graceful shutdown.
type Server struct {
	cfg             config.Config
	tok             Tokenizer
	logger          *slog.Logger
	shutdownTimeout time.Duration
	extra           []Option
}

func New(cfg config.Config, tok Tokenizer) *Server {
	timeout := time.Duration(cfg.Server.ShutdownTimeout) * time.Second
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Server{
		cfg:             cfg,
		tok:             tok,
		logger:          slog.Default(),
		shutdownTimeout: timeout,
	}
}

// WithShutdownTimeout overrides the graceful-shutdown drain period.
func (s *Server) WithShutdownTimeout(d time.Duration) *Server {
	s.shutdownTimeout = d
	return s
}

// WithLogger overrides the request logger.
func (s *Server) WithLogger(l *slog.Logger) *Server {
	s.logger = l
	return s
}

// WithHandlerOptions appends handler options applied after those derived
// from the config.
func (s *Server) WithHandlerOptions(opts ...Option) *Server {
	s.extra = append(s.extra, opts...)
	return s
}

func (s *Server) Start(ctx context.Context) error {
	if s.tok == nil {
		return errors.New("server: tokenizer is required")
	}

	handlerOpts := []Option{
		WithWorkers(s.cfg.Server.Workers),
		WithMaxTextBytes(s.cfg.Server.MaxTextBytes),
		WithRequestTimeout(time.Duration(s.cfg.Server.RequestTimeout) * time.Second),
		WithLogger(s.logger),
	}
	handlerOpts = append(handlerOpts, s.extra...)

	httpServer := &http.Server{
		Addr:              s.cfg.Server.ListenAddr,
		Handler:           NewHandler(s.tok, handlerOpts...),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- httpServer.ListenAndServe()
	}()

	s.logger.InfoContext(ctx, "http server listening", slog.String("addr", s.cfg.Server.ListenAddr))

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("http shutdown: %w", err)
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http listen: %w", err)
	}
}

// ProbeHTTP checks that the server at addr answers /health with 200.
func ProbeHTTP(addr string) error {
	return ProbeHTTPContext(context.Background(), addr)
}

func ProbeHTTPContext(ctx context.Context, addr string) error {
	resp, err := get(ctx, addr, "/health")
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected health status: %s", resp.Status)
	}
	return nil
}

// ProbeVocab returns the vocabulary size reported by the server at addr.
func ProbeVocab(ctx context.Context, addr string) (int, error) {
	resp, err := get(ctx, addr, "/vocab")
	if err != nil {
		return 0, err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("unexpected vocab status: %s", resp.Status)
	}

	var body vocabResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return 0, fmt.Errorf("decode vocab response: %w", err)
	}
	return body.Size, nil
}

func get(ctx context.Context, addr, path string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+path, nil)
	if err != nil {
		return nil, err
	}
	return http.DefaultClient.Do(req)
}
