package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ShayCichocki/railmind/pkg/models"
)

// TrainDelayRequest is the body of POST /api/train-delay.
type TrainDelayRequest struct {
	TrainNumber        string `json:"train_number"`
	DelayMinutes       int    `json:"delay_minutes"`
	CurrentLocation    string `json:"current_location"`
	AffectedPassengers int    `json:"affected_passengers,omitempty"`
}

// PassengerQueryRequest is the body of POST /api/passenger-query.
type PassengerQueryRequest struct {
	Query       string `json:"query"`
	PassengerID string `json:"passenger_id,omitempty"`
	PNR         string `json:"pnr,omitempty"`
}

// AlertRequest is the body of POST /api/send-alert.
type AlertRequest struct {
	Message    string   `json:"message"`
	Recipients []string `json:"recipients,omitempty"`
	Channels   []string `json:"channels,omitempty"`
	Priority   string   `json:"priority,omitempty"`
}

// decodeBody reads a JSON body into v, writing a 400 on failure.
func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

func (s *Server) handleTrainDelay(w http.ResponseWriter, r *http.Request) {
	var req TrainDelayRequest
	if !decodeBody(w, r, &req) {
		return
	}
	req.TrainNumber = strings.TrimSpace(req.TrainNumber)
	req.CurrentLocation = strings.TrimSpace(req.CurrentLocation)
	switch {
	case req.TrainNumber == "":
		writeError(w, http.StatusBadRequest, "train_number is required")
		return
	case req.CurrentLocation == "":
		writeError(w, http.StatusBadRequest, "current_location is required")
		return
	case req.DelayMinutes < 0:
		writeError(w, http.StatusBadRequest, "delay_minutes must not be negative")
		return
	}

	request := fmt.Sprintf("Train %s is delayed by %d minutes at %s", req.TrainNumber, req.DelayMinutes, req.CurrentLocation)
	runCtx := map[string]any{
		"train_number":        req.TrainNumber,
		"delay_minutes":       req.DelayMinutes,
		"location":            req.CurrentLocation,
		"current_location":    req.CurrentLocation,
		"affected_passengers": req.AffectedPassengers,
	}
	s.respond(w, r, request, runCtx, 0)
}

func (s *Server) handlePassengerQuery(w http.ResponseWriter, r *http.Request) {
	var req PassengerQueryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	query := strings.TrimSpace(req.Query)
	if query == "" {
		writeError(w, http.StatusBadRequest, "query is required")
		return
	}

	runCtx := map[string]any{}
	if req.PassengerID != "" {
		runCtx["passenger_id"] = req.PassengerID
		runCtx["user_id"] = req.PassengerID
	}
	if req.PNR != "" {
		runCtx["pnr"] = req.PNR
	}
	s.respond(w, r, query, runCtx, 0)
}

func (s *Server) handleSendAlert(w http.ResponseWriter, r *http.Request) {
	var req AlertRequest
	if !decodeBody(w, r, &req) {
		return
	}
	msg := strings.TrimSpace(req.Message)
	if msg == "" {
		writeError(w, http.StatusBadRequest, "message is required")
		return
	}

	runCtx := map[string]any{"message": msg}
	if len(req.Recipients) > 0 {
		runCtx["recipients"] = req.Recipients
	}
	if len(req.Channels) > 0 {
		runCtx["channels"] = req.Channels
	}
	if req.Priority != "" {
		runCtx["priority"] = req.Priority
	}
	s.respond(w, r, "Send alert: "+msg, runCtx, 0)
}

var capabilityDescriptions = map[string]string{
	models.CapabilityOperations: "Train delays, schedules and platform operations",
	models.CapabilityPassenger:  "Bookings, refunds and alternative trains",
	models.CapabilityCrowd:      "Occupancy and crowding forecasts",
	models.CapabilityAlert:      "Multi-channel passenger alerts",
	models.CapabilityExtraction: "Field extraction from documents",
	models.CapabilityValidation: "Bill, email and general document checks",
}

func (s *Server) handleAgentsStatus(w http.ResponseWriter, _ *http.Request) {
	status := "active"
	if s.gate != nil && s.gate.Paused() {
		status = "paused"
	}
	agents := make(map[string]any, len(s.capabilities))
	for _, tag := range s.capabilities {
		desc := capabilityDescriptions[tag]
		if desc == "" {
			desc = "Custom capability"
		}
		agents[tag] = map[string]string{"status": status, "description": desc}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"agents":    agents,
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// Scenario is an example payload for one of the /api scenario routes.
type Scenario struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Endpoint    string         `json:"endpoint"`
	Example     map[string]any `json:"example"`
}

// DemoScenarios returns the example payloads served on /api/demo/scenarios.
func DemoScenarios() []Scenario {
	return []Scenario{
		{
			ID:          "delay",
			Name:        "Train Delay",
			Description: "Assess a delay, offer alternatives and notify passengers",
			Endpoint:    "/api/train-delay",
			Example:     map[string]any{"train_number": "12627", "delay_minutes": 45, "current_location": "Katpadi"},
		},
		{
			ID:          "passenger",
			Name:        "Passenger Query",
			Description: "Answer a booking or refund question",
			Endpoint:    "/api/passenger-query",
			Example:     map[string]any{"query": "What is the refund policy for cancelled trains?"},
		},
		{
			ID:          "emergency",
			Name:        "Emergency Alert",
			Description: "Broadcast a notice on several channels",
			Endpoint:    "/api/send-alert",
			Example:     map[string]any{"message": "Track maintenance on Platform 3", "channels": []string{"sms", "email", "push"}},
		},
	}
}

func (s *Server) handleScenarios(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"scenarios": DemoScenarios()})
}
