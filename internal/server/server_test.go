package server

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/ShayCichocki/railmind/internal/executors"
	"github.com/ShayCichocki/railmind/internal/notify"
	"github.com/ShayCichocki/railmind/internal/orchestrator"
	"github.com/ShayCichocki/railmind/internal/planner"
	"github.com/ShayCichocki/railmind/internal/state"
	"github.com/ShayCichocki/railmind/pkg/models"
)

// fakeRunner records the last call and returns a canned response.
type fakeRunner struct {
	request string
	runCtx  map[string]any
	maxIter int
	resp    *models.Response
	err     error
}

func (f *fakeRunner) Run(_ context.Context, request string, runCtx map[string]any, maxIter int) (*models.Response, error) {
	f.request, f.runCtx, f.maxIter = request, runCtx, maxIter
	if f.err != nil {
		return nil, f.err
	}
	resp := f.resp
	if resp == nil {
		resp = &models.Response{RunID: "r1", Request: request, Status: models.ResponseCompleted, Results: map[string][]models.ExecutionResult{}}
	}
	return resp, nil
}

func (f *fakeRunner) Count() int { return 0 }

type fakeGate struct{ paused bool }

func (g fakeGate) Paused() bool { return g.paused }

type fakeHistory struct {
	runs map[string]*models.Response
}

func (h fakeHistory) GetRun(_ context.Context, id string) (*models.Response, error) {
	if r, ok := h.runs[id]; ok {
		return r, nil
	}
	return nil, fmt.Errorf("run %s: %w", id, state.ErrNotFound)
}

func (h fakeHistory) ListRuns(_ context.Context, limit int) ([]state.RunSummary, error) {
	var out []state.RunSummary
	for id, r := range h.runs {
		out = append(out, state.RunSummary{ID: id, Request: r.Request, Status: r.Status})
	}
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func postJSON(t *testing.T, h http.Handler, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func postForm(t *testing.T, h http.Handler, path string, form url.Values) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHandleRequest(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		runner     *fakeRunner
		gate       Gate
		wantStatus int
	}{
		{"ok", `{"request":"train 12627 late","user_id":"u1","max_iterations":2,"context":{"pnr":"4521678901"}}`, &fakeRunner{}, nil, http.StatusOK},
		{"bad json", `{`, &fakeRunner{}, nil, http.StatusBadRequest},
		{"empty request", `{"request":"  "}`, &fakeRunner{}, nil, http.StatusBadRequest},
		{"negative iterations", `{"request":"x","max_iterations":-1}`, &fakeRunner{}, nil, http.StatusBadRequest},
		{"paused", `{"request":"x"}`, &fakeRunner{}, fakeGate{paused: true}, http.StatusServiceUnavailable},
		{"pool stopped", `{"request":"x"}`, &fakeRunner{err: orchestrator.ErrPoolStopped}, nil, http.StatusServiceUnavailable},
		{"caller gone", `{"request":"x"}`, &fakeRunner{err: context.Canceled}, nil, http.StatusRequestTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var opts []Option
			if tt.gate != nil {
				opts = append(opts, WithGate(tt.gate))
			}
			srv := New(tt.runner, opts...)
			rec := postJSON(t, srv, "/v1/requests", tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if rec.Header().Get("Content-Type") != "application/json" {
				t.Errorf("Content-Type = %q", rec.Header().Get("Content-Type"))
			}
		})
	}
}

func TestHandleRequest_PassesContext(t *testing.T) {
	runner := &fakeRunner{}
	srv := New(runner)
	rec := postJSON(t, srv, "/v1/requests", `{"request":"refund","user_id":"u1","max_iterations":2,"context":{"pnr":"4521678901"}}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if runner.request != "refund" || runner.maxIter != 2 {
		t.Errorf("runner got %q / %d", runner.request, runner.maxIter)
	}
	if runner.runCtx["user_id"] != "u1" || runner.runCtx["pnr"] != "4521678901" || runner.runCtx["channel"] != "api" {
		t.Errorf("runCtx = %v", runner.runCtx)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	srv := New(&fakeRunner{})
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/requests", nil))
	if rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("GET /v1/requests = %d, want 405", rec.Code)
	}
}

func TestHandleWhatsApp(t *testing.T) {
	runner := &fakeRunner{resp: &models.Response{
		RunID:     "r1",
		Status:    models.ResponseError,
		Questions: []string{"Which train?", "Which station?"},
	}}
	replies := notify.NewLogNotifier(true)
	srv := New(runner, WithReplier(replies))

	rec := postForm(t, srv, "/webhook/whatsapp", url.Values{
		"From":       {"whatsapp:+919800000001"},
		"Body":       {"my train is late"},
		"MessageSid": {"SM1"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	if runner.runCtx["user_id"] != "+919800000001" || runner.runCtx["channel"] != ChannelWhatsApp || runner.runCtx["message_sid"] != "SM1" {
		t.Errorf("runCtx = %v", runner.runCtx)
	}

	sent := replies.Sent()
	if len(sent) != 1 {
		t.Fatalf("replies = %d, want 1", len(sent))
	}
	if sent[0].Recipients[0] != "+919800000001" || sent[0].Channel != ChannelWhatsApp {
		t.Errorf("reply = %+v", sent[0])
	}
	want := "I need some clarification:\n1. Which train?\n2. Which station?"
	if sent[0].Body != want {
		t.Errorf("reply body = %q, want %q", sent[0].Body, want)
	}
}

func TestHandleWhatsApp_Invalid(t *testing.T) {
	srv := New(&fakeRunner{})
	rec := postForm(t, srv, "/webhook/whatsapp", url.Values{"From": {"whatsapp:+91"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing Body = %d, want 400", rec.Code)
	}
}

func TestHandleWhatsApp_PausedStillReplies(t *testing.T) {
	replies := notify.NewLogNotifier(true)
	srv := New(&fakeRunner{}, WithGate(fakeGate{paused: true}), WithReplier(replies))
	rec := postForm(t, srv, "/webhook/whatsapp", url.Values{"From": {"+91"}, "Body": {"hi"}})
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", rec.Code)
	}
	if len(replies.Sent()) != 1 {
		t.Errorf("replies = %d, want 1", len(replies.Sent()))
	}
}

func TestHealthAndMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	orchestrator.NewMetrics(reg)
	srv := New(&fakeRunner{}, WithGatherer(reg), WithGate(fakeGate{}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("healthz = %d", rec.Code)
	}
	var health map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&health); err != nil {
		t.Fatal(err)
	}
	if health["status"] != "ok" {
		t.Errorf("health status = %v", health["status"])
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "railmind_replans_total") {
		t.Error("metrics output missing railmind_replans_total")
	}
}

func TestRunsRoutes(t *testing.T) {
	hist := fakeHistory{runs: map[string]*models.Response{
		"r1": {RunID: "r1", Request: "a", Status: models.ResponseCompleted},
	}}

	// Without history the routes are not registered.
	rec := httptest.NewRecorder()
	New(&fakeRunner{}).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/runs", nil))
	if rec.Code != http.StatusNotFound {
		t.Errorf("runs without history = %d, want 404", rec.Code)
	}

	srv := New(&fakeRunner{}, WithHistory(hist))
	tests := []struct {
		path string
		want int
	}{
		{"/v1/runs", http.StatusOK},
		{"/v1/runs?limit=0", http.StatusBadRequest},
		{"/v1/runs/r1", http.StatusOK},
		{"/v1/runs/missing", http.StatusNotFound},
	}
	for _, tt := range tests {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		if rec.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rec.Code, tt.want)
		}
	}
}

func TestEndToEndThroughPool(t *testing.T) {
	reg := orchestrator.NewExecutorRegistry(time.Second)
	alerts := notify.NewLogNotifier(true)
	if err := executors.RegisterDefaults(reg, executors.Deps{Notifier: alerts}); err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(orchestrator.RequiredConfig{Planner: planner.KeywordPlanner{}, Registry: reg})
	defer orch.Close()
	pool := orchestrator.NewPool(orch, 2)
	defer pool.Stop()

	srv := httptest.NewServer(New(pool))
	defer srv.Close()

	res, err := http.Post(srv.URL+"/v1/requests", "application/json",
		strings.NewReader(`{"request":"Train 12627 is delayed by 45 minutes at Katpadi"}`))
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("status = %d", res.StatusCode)
	}
	var resp models.Response
	if err := json.NewDecoder(res.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.ResponseCompleted {
		t.Errorf("status = %s (error %q)", resp.Status, resp.Error)
	}
	if resp.ResultCount() != 3 {
		t.Errorf("results = %d, want 3", resp.ResultCount())
	}
	if len(alerts.Sent()) == 0 {
		t.Error("no alerts were sent")
	}
}

func TestScenarioRoutes(t *testing.T) {
	tests := []struct {
		name        string
		path        string
		body        string
		wantStatus  int
		wantRequest string
		wantCtx     map[string]any
	}{
		{
			name:        "train delay",
			path:        "/api/train-delay",
			body:        `{"train_number":"12627","delay_minutes":45,"current_location":"Katpadi"}`,
			wantStatus:  http.StatusOK,
			wantRequest: "Train 12627 is delayed by 45 minutes at Katpadi",
			wantCtx:     map[string]any{"train_number": "12627", "delay_minutes": 45, "location": "Katpadi", "channel": "api"},
		},
		{name: "train delay without train", path: "/api/train-delay", body: `{"delay_minutes":45,"current_location":"Katpadi"}`, wantStatus: http.StatusBadRequest},
		{name: "train delay negative", path: "/api/train-delay", body: `{"train_number":"12627","delay_minutes":-5,"current_location":"Katpadi"}`, wantStatus: http.StatusBadRequest},
		{
			name:        "passenger query",
			path:        "/api/passenger-query",
			body:        `{"query":"What is the refund policy?","passenger_id":"+919800000001"}`,
			wantStatus:  http.StatusOK,
			wantRequest: "What is the refund policy?",
			wantCtx:     map[string]any{"passenger_id": "+919800000001", "user_id": "+919800000001"},
		},
		{name: "passenger query empty", path: "/api/passenger-query", body: `{"query":" "}`, wantStatus: http.StatusBadRequest},
		{
			name:        "send alert",
			path:        "/api/send-alert",
			body:        `{"message":"Track maintenance on Platform 3","channels":["sms","push"]}`,
			wantStatus:  http.StatusOK,
			wantRequest: "Send alert: Track maintenance on Platform 3",
			wantCtx:     map[string]any{"message": "Track maintenance on Platform 3"},
		},
		{name: "send alert without message", path: "/api/send-alert", body: `{"channels":["sms"]}`, wantStatus: http.StatusBadRequest},
		{name: "bad json", path: "/api/send-alert", body: `{`, wantStatus: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			rec := postJSON(t, New(runner), tt.path, tt.body)
			if rec.Code != tt.wantStatus {
				t.Fatalf("status = %d, want %d (body %s)", rec.Code, tt.wantStatus, rec.Body.String())
			}
			if tt.wantStatus != http.StatusOK {
				if runner.request != "" {
					t.Errorf("runner called with %q on a rejected request", runner.request)
				}
				return
			}
			if runner.request != tt.wantRequest {
				t.Errorf("request = %q, want %q", runner.request, tt.wantRequest)
			}
			for k, want := range tt.wantCtx {
				if got := runner.runCtx[k]; got != want {
					t.Errorf("runCtx[%s] = %v, want %v", k, got, want)
				}
			}
		})
	}
}

func TestSendAlertThroughPool(t *testing.T) {
	reg := orchestrator.NewExecutorRegistry(time.Second)
	alerts := notify.NewLogNotifier(true)
	if err := executors.RegisterDefaults(reg, executors.Deps{Notifier: alerts}); err != nil {
		t.Fatal(err)
	}
	orch := orchestrator.New(orchestrator.RequiredConfig{Planner: planner.KeywordPlanner{}, Registry: reg})
	defer orch.Close()
	pool := orchestrator.NewPool(orch, 1)
	defer pool.Stop()

	rec := postJSON(t, New(pool), "/api/send-alert",
		`{"message":"Track maintenance on Platform 3","recipients":["+919800000001"],"channels":["sms","push"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body.String())
	}
	var resp models.Response
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatal(err)
	}
	if resp.Status != models.ResponseCompleted {
		t.Fatalf("status = %s (error %q)", resp.Status, resp.Error)
	}

	sent := alerts.Sent()
	if len(sent) != 2 {
		t.Fatalf("alerts sent = %d, want 2", len(sent))
	}
	channels := map[string]bool{}
	for _, a := range sent {
		channels[a.Channel] = true
		if a.Body != "Track maintenance on Platform 3" {
			t.Errorf("%s body = %q", a.Channel, a.Body)
		}
	}
	if !channels[executors.ChannelSMS] || !channels[executors.ChannelApp] {
		t.Errorf("channels = %v, want sms and app", channels)
	}
}

func TestAgentsStatusAndScenarios(t *testing.T) {
	srv := New(&fakeRunner{}, WithCapabilities([]string{models.CapabilityAlert, "weather"}), WithGate(fakeGate{paused: true}))

	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/agents/status", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("agents status = %d", rec.Code)
	}
	var status struct {
		Agents map[string]map[string]string `json:"agents"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&status); err != nil {
		t.Fatal(err)
	}
	if len(status.Agents) != 2 {
		t.Fatalf("agents = %v", status.Agents)
	}
	if status.Agents["alert"]["status"] != "paused" || status.Agents["weather"]["description"] != "Custom capability" {
		t.Errorf("agents = %v", status.Agents)
	}

	rec = httptest.NewRecorder()
	srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/demo/scenarios", nil))
	var scenarios struct {
		Scenarios []Scenario `json:"scenarios"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&scenarios); err != nil {
		t.Fatal(err)
	}
	if len(scenarios.Scenarios) != 3 {
		t.Fatalf("scenarios = %d, want 3", len(scenarios.Scenarios))
	}
	for _, sc := range scenarios.Scenarios {
		if !strings.HasPrefix(sc.Endpoint, "/api/") || len(sc.Example) == 0 {
			t.Errorf("scenario %s = %+v", sc.ID, sc)
		}
	}
}

type fakeDeliveries struct {
	saved map[string]state.Delivery
}

func (f *fakeDeliveries) RecordDelivery(_ context.Context, d state.Delivery) error {
	f.saved[d.MessageSID] = d
	return nil
}

func (f *fakeDeliveries) Delivery(_ context.Context, sid string) (*state.Delivery, error) {
	d, ok := f.saved[sid]
	if !ok {
		return nil, fmt.Errorf("delivery %s: %w", sid, state.ErrNotFound)
	}
	return &d, nil
}

func TestDeliveryStatusWebhook(t *testing.T) {
	// Without a store the callback is accepted and only logged.
	rec := postForm(t, New(&fakeRunner{}), "/webhook/status", url.Values{"MessageSid": {"SM1"}, "MessageStatus": {"sent"}})
	if rec.Code != http.StatusOK {
		t.Errorf("status without store = %d", rec.Code)
	}

	store := &fakeDeliveries{saved: map[string]state.Delivery{}}
	srv := New(&fakeRunner{}, WithDeliveries(store))

	rec = postForm(t, srv, "/webhook/status", url.Values{"MessageSid": {"SM1"}})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("missing MessageStatus = %d, want 400", rec.Code)
	}

	rec = postForm(t, srv, "/webhook/status", url.Values{
		"MessageSid":    {"SM1"},
		"MessageStatus": {"Undelivered"},
		"To":            {"whatsapp:+919800000001"},
		"ErrorCode":     {"63016"},
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("callback = %d, body %s", rec.Code, rec.Body.String())
	}
	got := store.saved["SM1"]
	if got.Status != "undelivered" || got.Recipient != "+919800000001" || got.ErrorCode != "63016" {
		t.Errorf("stored = %+v", got)
	}

	for path, want := range map[string]int{"/v1/deliveries/SM1": http.StatusOK, "/v1/deliveries/SM9": http.StatusNotFound} {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		if rec.Code != want {
			t.Errorf("GET %s = %d, want %d", path, rec.Code, want)
		}
	}
}

func TestAsyncRequestAndCancel(t *testing.T) {
	started := make(chan struct{})
	reg := orchestrator.NewExecutorRegistry(0)
	reg.Register(models.CapabilityOperations, orchestrator.ExecutorFunc(func(ctx context.Context, _ map[string]any, _ orchestrator.RunContext) (map[string]any, error) {
		close(started)
		<-ctx.Done()
		return nil, ctx.Err()
	}))
	orch := orchestrator.New(orchestrator.RequiredConfig{Planner: planner.KeywordPlanner{}, Registry: reg},
		orchestrator.WithRunIDFunc(func() string { return "run-1" }))
	defer orch.Close()
	pool := orchestrator.NewPool(orch, 1)
	defer pool.Stop()
	srv := New(pool)

	rec := postJSON(t, srv, "/v1/requests", `{"request":"What is the weather like","async":true}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("async status = %d, body %s", rec.Code, rec.Body.String())
	}
	var accepted map[string]string
	if err := json.NewDecoder(rec.Body).Decode(&accepted); err != nil {
		t.Fatal(err)
	}
	if accepted["run_id"] != "run-1" {
		t.Fatalf("accepted = %v", accepted)
	}
	<-started

	del := func(id string) int {
		rec := httptest.NewRecorder()
		srv.ServeHTTP(rec, httptest.NewRequest(http.MethodDelete, "/v1/runs/"+id, nil))
		return rec.Code
	}
	if code := del("run-1"); code != http.StatusAccepted {
		t.Errorf("DELETE run-1 = %d, want 202", code)
	}
	deadline := time.Now().Add(2 * time.Second)
	for pool.Count() != 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if code := del("run-1"); code != http.StatusNotFound {
		t.Errorf("DELETE finished run = %d, want 404", code)
	}

	// Runners without background support reject async requests.
	rec = postJSON(t, New(&fakeRunner{}), "/v1/requests", `{"request":"x","async":true}`)
	if rec.Code != http.StatusNotImplemented {
		t.Errorf("async on plain runner = %d, want 501", rec.Code)
	}
}

func TestEventStream(t *testing.T) {
	src := make(chan orchestrator.OrchestratorEvent, 4)
	ts := httptest.NewServer(New(&fakeRunner{}, WithEvents(src)))
	defer ts.Close()

	res, err := http.Get(ts.URL + "/v1/events?run_id=r1")
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	if ct := res.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("Content-Type = %q", ct)
	}

	lines := make(chan string)
	go func() {
		sc := bufio.NewScanner(res.Body)
		for sc.Scan() {
			lines <- sc.Text()
		}
		close(lines)
	}()
	next := func() string {
		select {
		case l, ok := <-lines:
			if !ok {
				t.Fatal("stream ended")
			}
			return l
		case <-time.After(2 * time.Second):
			t.Fatal("timed out reading stream")
		}
		return ""
	}

	if l := next(); l != "event: connected" {
		t.Fatalf("first line = %q", l)
	}
	next() // data
	next() // blank

	src <- orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskStarted, RunID: "other", TaskID: "x"}
	src <- orchestrator.OrchestratorEvent{Type: orchestrator.EventTaskFailed, RunID: "r1", TaskID: "task_2", Agent: "alert", Error: errors.New("no channel")}

	if l := next(); l != "event: task_failed" {
		t.Fatalf("event line = %q, want the r1 event only", l)
	}
	if l := next(); l != "id: 1" {
		t.Errorf("id line = %q", l)
	}
	data := strings.TrimPrefix(next(), "data: ")
	var ev map[string]any
	if err := json.Unmarshal([]byte(data), &ev); err != nil {
		t.Fatalf("decode %q: %v", data, err)
	}
	if ev["run_id"] != "r1" || ev["task_id"] != "task_2" || ev["error"] != "no channel" {
		t.Errorf("event = %v", ev)
	}

	close(src)
	for range lines {
	}
}
