// Package server exposes the orchestrator over HTTP.
//
// Routes:
//
//	POST   /v1/requests          run a request; with "async" return its run ID at once
//	DELETE /v1/runs/{id}         cancel an in-flight run
//	GET    /v1/runs              list recent runs (when history is configured)
//	GET    /v1/runs/{id}         fetch a stored run (when history is configured)
//	GET    /v1/events            live orchestrator events as server-sent events
//	POST   /api/train-delay      delay scenario
//	POST   /api/passenger-query  passenger scenario
//	POST   /api/send-alert       broadcast scenario
//	GET    /api/agents/status    registered capabilities
//	GET    /api/demo/scenarios   example payloads for the scenario routes
//	POST   /webhook/whatsapp     run an inbound WhatsApp message and reply to the sender
//	POST   /webhook/status       provider delivery callbacks
//	GET    /v1/deliveries/{sid}  latest delivery status (when a delivery store is configured)
//	GET    /healthz              liveness and pool occupancy
//	GET    /metrics              Prometheus metrics
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ShayCichocki/railmind/internal/notify"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/state"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// maxRequestBodySize limits POST body sizes.
const maxRequestBodySize = 1 << 20 // 1 MB

// ChannelWhatsApp is the notify channel used for webhook replies.
const ChannelWhatsApp = "whatsapp"

// Runner executes one request. *orchestrator.Pool satisfies it.
type Runner interface {
	Run(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (*models.Response, error)
	Count() int
}

// AsyncRunner starts runs in the background and cancels them by ID.
// *orchestrator.Pool satisfies it.
type AsyncRunner interface {
	Submit(ctx context.Context, request string, runCtx map[string]any, maxIterations int) (string, <-chan *models.Response, error)
	Cancel(runID string) bool
}

// History looks up stored runs.
type History interface {
	GetRun(ctx context.Context, id string) (*models.Response, error)
	ListRuns(ctx context.Context, limit int) ([]state.RunSummary, error)
}

// Gate reports whether new runs are currently refused.
type Gate interface {
	Paused() bool
}

// Server routes HTTP callers into the orchestrator.
type Server struct {
	runner       Runner
	async        AsyncRunner
	history      History
	deliveries   state.DeliveryStore
	gate         Gate
	replier      notify.Notifier
	gatherer     prometheus.Gatherer
	capabilities []string
	events       *eventHub
	mux          *http.ServeMux
	started      time.Time
}

// Option configures a Server.
type Option func(*Server)

// WithHistory enables the /v1/runs routes.
func WithHistory(h History) Option {
	return func(s *Server) { s.history = h }
}

// WithGate makes the server refuse runs while the gate is paused.
func WithGate(g Gate) Option {
	return func(s *Server) { s.gate = g }
}

// WithReplier sends webhook replies through n.
func WithReplier(n notify.Notifier) Option {
	return func(s *Server) { s.replier = n }
}

// WithGatherer serves /metrics from g instead of the default registry.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(s *Server) { s.gatherer = g }
}

// WithDeliveries stores /webhook/status callbacks in d and enables
// /v1/deliveries/{sid}.
func WithDeliveries(d state.DeliveryStore) Option {
	return func(s *Server) { s.deliveries = d }
}

// WithCapabilities lists the registered capabilities on /api/agents/status.
func WithCapabilities(tags []string) Option {
	return func(s *Server) { s.capabilities = append([]string(nil), tags...) }
}

// WithEvents streams events from src on /v1/events. The server is the
// only reader of src.
func WithEvents(src <-chan orchestrator.OrchestratorEvent) Option {
	return func(s *Server) {
		if src != nil {
			s.events = newEventHub(src)
		}
	}
}

// New creates a Server around runner. Runners that also implement
// AsyncRunner enable background runs and cancellation.
func New(runner Runner, opts ...Option) *Server {
	s := &Server{
		runner:   runner,
		gatherer: prometheus.DefaultGatherer,
		mux:      http.NewServeMux(),
		started:  time.Now(),
	}
	if a, ok := runner.(AsyncRunner); ok {
		s.async = a
	}
	for _, opt := range opts {
		opt(s)
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.mux.HandleFunc("POST /v1/requests", s.handleRequest)
	s.mux.HandleFunc("POST /api/train-delay", s.handleTrainDelay)
	s.mux.HandleFunc("POST /api/passenger-query", s.handlePassengerQuery)
	s.mux.HandleFunc("POST /api/send-alert", s.handleSendAlert)
	s.mux.HandleFunc("GET /api/agents/status", s.handleAgentsStatus)
	s.mux.HandleFunc("GET /api/demo/scenarios", s.handleScenarios)
	s.mux.HandleFunc("POST /webhook/whatsapp", s.handleWhatsApp)
	s.mux.HandleFunc("POST /webhook/status", s.handleDeliveryStatus)
	s.mux.HandleFunc("GET /healthz", s.handleHealth)
	s.mux.Handle("GET /metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	if s.async != nil {
		s.mux.HandleFunc("DELETE /v1/runs/{id}", s.handleCancelRun)
	}
	if s.history != nil {
		s.mux.HandleFunc("GET /v1/runs", s.handleListRuns)
		s.mux.HandleFunc("GET /v1/runs/{id}", s.handleGetRun)
	}
	if s.deliveries != nil {
		s.mux.HandleFunc("GET /v1/deliveries/{sid}", s.handleGetDelivery)
	}
	if s.events != nil {
		s.mux.HandleFunc("GET /v1/events", s.handleEvents)
	}
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// RunRequest is the body of POST /v1/requests.
type RunRequest struct {
	Request       string         `json:"request"`
	Context       map[string]any `json:"context,omitempty"`
	MaxIterations int            `json:"max_iterations,omitempty"`
	UserID        string         `json:"user_id,omitempty"`
	// Async returns 202 with the run ID instead of waiting for the response.
	Async bool `json:"async,omitempty"`
}

func (s *Server) handleRequest(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	var req RunRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Request) == "" {
		writeError(w, http.StatusBadRequest, "request is required")
		return
	}
	if req.MaxIterations < 0 {
		writeError(w, http.StatusBadRequest, "max_iterations must not be negative")
		return
	}

	runCtx := make(map[string]any, len(req.Context)+2)
	for k, v := range req.Context {
		runCtx[k] = v
	}
	if req.UserID != "" {
		runCtx["user_id"] = req.UserID
	}

	if req.Async {
		s.submit(w, r, req.Request, runCtx, req.MaxIterations)
		return
	}
	s.respond(w, r, req.Request, runCtx, req.MaxIterations)
}

// respond runs request for an API caller and writes the Response.
func (s *Server) respond(w http.ResponseWriter, r *http.Request, request string, runCtx map[string]any, maxIter int) {
	if _, ok := runCtx["channel"]; !ok {
		runCtx["channel"] = "api"
	}
	resp, status := s.run(r.Context(), request, runCtx, maxIter)
	if resp == nil {
		writeError(w, status, http.StatusText(status))
		return
	}
	writeJSON(w, status, resp)
}

// submit starts request in the background and writes its run ID. The run
// outlives the HTTP request.
func (s *Server) submit(w http.ResponseWriter, r *http.Request, request string, runCtx map[string]any, maxIter int) {
	if s.async == nil {
		writeError(w, http.StatusNotImplemented, "background runs are not supported")
		return
	}
	if s.gate != nil && s.gate.Paused() {
		writeError(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
		return
	}
	if _, ok := runCtx["channel"]; !ok {
		runCtx["channel"] = "api"
	}
	runID, _, err := s.async.Submit(context.WithoutCancel(r.Context()), request, runCtx, maxIter)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, err.Error())
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"run_id": runID, "status": "accepted"})
}

func (s *Server) handleCancelRun(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.async.Cancel(id) {
		writeError(w, http.StatusNotFound, "run not active")
		return
	}
	log.Printf("[server] cancelled run %s", id)
	writeJSON(w, http.StatusAccepted, map[string]any{"run_id": id, "cancelled": true})
}

func (s *Server) handleWhatsApp(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}
	from := strings.TrimPrefix(r.PostForm.Get("From"), "whatsapp:")
	body := strings.TrimSpace(r.PostForm.Get("Body"))
	if from == "" || body == "" {
		writeError(w, http.StatusBadRequest, "From and Body are required")
		return
	}
	log.Printf("[server] whatsapp message from %s", from)

	runCtx := map[string]any{
		"user_id": from,
		"channel": ChannelWhatsApp,
	}
	if sid := r.PostForm.Get("MessageSid"); sid != "" {
		runCtx["message_sid"] = sid
	}

	resp, status := s.run(r.Context(), body, runCtx, 0)
	if resp == nil {
		s.reply(r.Context(), from, "Sorry, we cannot take requests right now. Please try again shortly.")
		writeError(w, status, http.StatusText(status))
		return
	}
	s.reply(r.Context(), from, ReplyText(resp))
	writeJSON(w, status, resp)
}

// run maps pool outcomes onto HTTP status codes. A nil response means no
// run took place.
func (s *Server) run(ctx context.Context, request string, runCtx map[string]any, maxIter int) (*models.Response, int) {
	if s.gate != nil && s.gate.Paused() {
		return nil, http.StatusServiceUnavailable
	}
	resp, err := s.runner.Run(ctx, request, runCtx, maxIter)
	if err != nil {
		if errors.Is(err, orchestrator.ErrPoolStopped) {
			return nil, http.StatusServiceUnavailable
		}
		// Caller went away while waiting for a slot.
		return nil, http.StatusRequestTimeout
	}
	return resp, http.StatusOK
}

// handleDeliveryStatus accepts provider delivery callbacks (MessageSid,
// MessageStatus, To, ErrorCode). Without a delivery store they are only logged.
func (s *Server) handleDeliveryStatus(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := r.ParseForm(); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid form: %v", err))
		return
	}
	d := state.Delivery{
		MessageSID: r.PostForm.Get("MessageSid"),
		Status:     strings.ToLower(r.PostForm.Get("MessageStatus")),
		Recipient:  strings.TrimPrefix(r.PostForm.Get("To"), "whatsapp:"),
		ErrorCode:  r.PostForm.Get("ErrorCode"),
	}
	if d.MessageSID == "" || d.Status == "" {
		writeError(w, http.StatusBadRequest, "MessageSid and MessageStatus are required")
		return
	}
	log.Printf("[server] message %s status %s", d.MessageSID, d.Status)

	if s.deliveries != nil {
		if err := s.deliveries.RecordDelivery(r.Context(), d); err != nil {
			log.Printf("[server] record delivery %s: %v", d.MessageSID, err)
			writeError(w, http.StatusInternalServerError, "could not record delivery status")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "received"})
}

func (s *Server) handleGetDelivery(w http.ResponseWriter, r *http.Request) {
	d, err := s.deliveries.Delivery(r.Context(), r.PathValue("sid"))
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, "delivery not found")
		return
	}
	if err != nil {
		log.Printf("[server] get delivery: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load delivery")
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) reply(ctx context.Context, to, text string) {
	if s.replier == nil {
		return
	}
	err := s.replier.Notify(ctx, notify.Alert{
		Channel:    ChannelWhatsApp,
		Priority:   "normal",
		Recipients: []string{to},
		Body:       text,
		CreatedAt:  time.Now(),
	})
	if err != nil {
		log.Printf("[server] reply to %s failed: %v", to, err)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	paused := s.gate != nil && s.gate.Paused()
	status := "ok"
	if paused {
		status = "paused"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":      status,
		"active_runs": s.runner.Count(),
		"uptime":      time.Since(s.started).Round(time.Second).String(),
	})
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	limit := 20
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer")
			return
		}
		limit = n
	}
	runs, err := s.history.ListRuns(r.Context(), limit)
	if err != nil {
		log.Printf("[server] list runs: %v", err)
		writeError(w, http.StatusInternalServerError, "could not list runs")
		return
	}
	out := make([]map[string]any, 0, len(runs))
	for _, run := range runs {
		out = append(out, map[string]any{
			"run_id":     run.ID,
			"request":    run.Request,
			"status":     run.Status,
			"iteration":  run.Iteration,
			"tasks":      run.Tasks,
			"created_at": run.CreatedAt,
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{"runs": out})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	resp, err := s.history.GetRun(r.Context(), r.PathValue("id"))
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, "run not found")
		return
	}
	if err != nil {
		log.Printf("[server] get run: %v", err)
		writeError(w, http.StatusInternalServerError, "could not load run")
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Printf("[server] encode response: %v", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
