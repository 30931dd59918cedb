package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"golang.org/x/net/websocket"

	"github.com/quietloop/attune/internal/milestone"
	"github.com/quietloop/attune/internal/session"
	"github.com/quietloop/attune/internal/storage/sqlite"
	"github.com/quietloop/attune/internal/stream"
)

type testEnv struct {
	server   *httptest.Server
	registry *session.Registry
	hub      *stream.Hub
	now      time.Time
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	store, err := sqlite.Open(filepath.Join(t.TempDir(), "attune.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close store: %v", err)
		}
	})

	catalog, err := milestone.LoadCatalog()
	if err != nil {
		t.Fatalf("load catalog: %v", err)
	}

	env := &testEnv{now: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	clock := func() time.Time { return env.now }

	hub := stream.NewHub(stream.Config{Clock: clock})
	t.Cleanup(hub.Close)

	counter := 0
	newID := func() (string, error) {
		counter++
		return fmt.Sprintf("id-%d", counter), nil
	}

	registry, err := session.NewRegistry(session.Options{
		Store:   store,
		Hub:     hub,
		Catalog: catalog,
		Clock:   clock,
		NewID:   newID,
	})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	t.Cleanup(registry.Close)

	handler := NewHandler(Deps{
		Registry: registry,
		Store:    store,
		Hub:      hub,
		Catalog:  catalog,
		Clock:    clock,
		NewID:    newID,
	})
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	env.server = server
	env.registry = registry
	env.hub = hub
	return env
}

func (e *testEnv) request(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()

	var reader *bytes.Reader
	if body == nil {
		reader = bytes.NewReader(nil)
	} else {
		encoded, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		reader = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, e.server.URL+path, reader)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.server.Client().Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() {
		_ = resp.Body.Close()
	})
	return resp
}

func decodeResponse(t *testing.T, resp *http.Response, target any) {
	t.Helper()
	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) createChild(t *testing.T) string {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/v1/children", map[string]any{
		"name":          "Noa",
		"age":           6,
		"support_level": 2,
		"sensitivity": map[string]int{
			"auditory":       85,
			"visual":         50,
			"tactile":        20,
			"vestibular":     50,
			"proprioceptive": 50,
		},
		"interests":          []string{"trains", "dinosaurs"},
		"triggers":           []string{"loud-noise"},
		"calming_strategies": []string{"deep-breathing"},
	})
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var view struct {
		ID string `json:"id"`
	}
	decodeResponse(t, resp, &view)
	if view.ID == "" {
		t.Fatal("expected a child id")
	}
	return view.ID
}

func (e *testEnv) startSession(t *testing.T, childID string) string {
	t.Helper()

	resp := e.request(t, http.MethodPost, "/v1/children/"+childID+"/sessions", nil)
	if resp.StatusCode != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.StatusCode)
	}

	var view struct {
		SessionID string `json:"session_id"`
		Config    struct {
			SensoryAdjustments map[string]string `json:"sensory_adjustments"`
			BreakInterval      float64           `json:"break_interval_seconds"`
		} `json:"config"`
	}
	decodeResponse(t, resp, &view)
	if view.SessionID == "" {
		t.Fatal("expected a session id")
	}
	if view.Config.SensoryAdjustments["auditory"] != "reduce" {
		t.Fatalf("expected auditory reduce, got %q", view.Config.SensoryAdjustments["auditory"])
	}
	return view.SessionID
}

func TestProfileLifecycle(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)

	resp := env.request(t, http.MethodGet, "/v1/children/"+childID, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view struct {
		Name         string `json:"name"`
		Age          int    `json:"age"`
		SupportLevel int    `json:"support_level"`
	}
	decodeResponse(t, resp, &view)
	if view.Name != "Noa" || view.Age != 6 || view.SupportLevel != 2 {
		t.Fatalf("unexpected profile: %+v", view)
	}

	resp = env.request(t, http.MethodPut, "/v1/children/"+childID, map[string]any{
		"age":           7,
		"support_level": 1,
		"sensitivity": map[string]int{
			"auditory":       60,
			"visual":         50,
			"tactile":        50,
			"vestibular":     50,
			"proprioceptive": 50,
		},
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeResponse(t, resp, &view)
	if view.Age != 7 || view.SupportLevel != 1 {
		t.Fatalf("unexpected updated profile: %+v", view)
	}

	resp = env.request(t, http.MethodGet, "/v1/children", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var listed []json.RawMessage
	decodeResponse(t, resp, &listed)
	if len(listed) != 1 {
		t.Fatalf("expected 1 profile, got %d", len(listed))
	}
}

func TestCreateProfileValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodPost, "/v1/children", map[string]any{
		"name":          "Noa",
		"age":           25,
		"support_level": 2,
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}
	var body struct {
		Code string `json:"code"`
	}
	decodeResponse(t, resp, &body)
	if body.Code != "PROFILE_INVALID_AGE" {
		t.Fatalf("expected PROFILE_INVALID_AGE, got %s", body.Code)
	}
}

func TestGetProfileNotFound(t *testing.T) {
	env := newTestEnv(t)

	resp := env.request(t, http.MethodGet, "/v1/children/missing", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.StatusCode)
	}
}

func TestSessionFlow(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	sessionID := env.startSession(t, childID)

	// A second concurrent session for the same child conflicts.
	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/sessions", nil)
	if resp.StatusCode != http.StatusConflict {
		t.Fatalf("expected 409, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPut, "/v1/sessions/"+sessionID+"/metrics", map[string]any{
		"actions_per_minute": 150,
		"error_rate":         0.6,
		"pause_frequency":    0.5,
		"avg_response_time":  4,
		"progress_rate":      0.1,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var score struct {
		Score          float64  `json:"score"`
		Overstimulated bool     `json:"overstimulated"`
		Indicators     []string `json:"indicators"`
		Intervention   string   `json:"intervention"`
	}
	decodeResponse(t, resp, &score)
	if !score.Overstimulated {
		t.Fatalf("expected overstimulation, got %+v", score)
	}
	if score.Intervention == "" {
		t.Fatal("expected an intervention recommendation")
	}

	resp = env.request(t, http.MethodGet, "/v1/sessions/"+sessionID+"/dashboard", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var dashboard struct {
		SessionID         string  `json:"session_id"`
		TotalInteractions int     `json:"total_interactions"`
		PeakRisk          float64 `json:"peak_risk"`
		ActiveAlerts      []struct {
			ID       string `json:"id"`
			Severity string `json:"severity"`
		} `json:"active_alerts"`
	}
	decodeResponse(t, resp, &dashboard)
	if dashboard.TotalInteractions != 1 {
		t.Fatalf("expected 1 interaction, got %d", dashboard.TotalInteractions)
	}
	if len(dashboard.ActiveAlerts) != 1 {
		t.Fatalf("expected 1 active alert, got %d", len(dashboard.ActiveAlerts))
	}
	if dashboard.ActiveAlerts[0].Severity != "critical" {
		t.Fatalf("expected critical severity, got %s", dashboard.ActiveAlerts[0].Severity)
	}

	resp = env.request(t, http.MethodGet, "/v1/sessions/"+sessionID+"/alerts", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	alertID := dashboard.ActiveAlerts[0].ID
	resp = env.request(t, http.MethodPost, "/v1/sessions/"+sessionID+"/alerts/"+alertID+"/resolve", nil)
	if resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}

	env.now = env.now.Add(20 * time.Minute)
	resp = env.request(t, http.MethodPost, "/v1/sessions/"+sessionID+"/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var report struct {
		SessionID       string  `json:"session_id"`
		DurationSeconds float64 `json:"duration_seconds"`
		AlertCount      int     `json:"alert_count"`
	}
	decodeResponse(t, resp, &report)
	if report.DurationSeconds != 1200 {
		t.Fatalf("expected 1200s duration, got %f", report.DurationSeconds)
	}
	if report.AlertCount != 1 {
		t.Fatalf("expected 1 alert, got %d", report.AlertCount)
	}

	resp = env.request(t, http.MethodPost, "/v1/sessions/"+sessionID+"/end", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Fatalf("expected 404 for double end, got %d", resp.StatusCode)
	}
}

func TestIngestObservationsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	env.startSession(t, childID)

	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/behavioral-observations", []map[string]any{
		{"category": "not-a-category", "intensity": 0.5},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	observations := make([]map[string]any, 5)
	for i := range observations {
		observations[i] = map[string]any{
			"timestamp": env.now.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"category":  "sensory_processing",
			"intensity": 0.9,
		}
	}
	resp = env.request(t, http.MethodPost, "/v1/children/"+childID+"/behavioral-observations", observations)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	var accepted struct {
		Achievements []struct {
			MilestoneID string `json:"milestone_id"`
		} `json:"achievements"`
	}
	decodeResponse(t, resp, &accepted)
	if len(accepted.Achievements) != 1 || accepted.Achievements[0].MilestoneID != "sensory-tolerance-1" {
		t.Fatalf("expected sensory-tolerance-1 award, got %+v", accepted.Achievements)
	}
}

func TestListObservationsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)

	observations := make([]map[string]any, 5)
	for i := range observations {
		category := "sensory_processing"
		if i >= 3 {
			category = "communication"
		}
		observations[i] = map[string]any{
			"timestamp": env.now.Add(time.Duration(i) * time.Minute).Format(time.RFC3339),
			"category":  category,
			"intensity": 0.5,
		}
	}
	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/behavioral-observations", observations)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	base := "/v1/children/" + childID + "/behavioral-observations"
	var page struct {
		Observations []struct {
			Category  string  `json:"category"`
			Intensity float64 `json:"intensity"`
		} `json:"observations"`
		NextPageToken string `json:"next_page_token"`
	}

	resp = env.request(t, http.MethodGet, base+"?page_size=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	decodeResponse(t, resp, &page)
	if len(page.Observations) != 2 || page.NextPageToken == "" {
		t.Fatalf("expected first page of 2 with token, got %d items, token %q", len(page.Observations), page.NextPageToken)
	}
	firstToken := page.NextPageToken

	resp = env.request(t, http.MethodGet, base+"?page_size=2&page_token="+firstToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page.NextPageToken = ""
	decodeResponse(t, resp, &page)
	if len(page.Observations) != 2 || page.NextPageToken == "" {
		t.Fatalf("expected second page of 2 with token, got %d items, token %q", len(page.Observations), page.NextPageToken)
	}

	resp = env.request(t, http.MethodGet, base+"?page_size=2&page_token="+page.NextPageToken, nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page.NextPageToken = ""
	decodeResponse(t, resp, &page)
	if len(page.Observations) != 1 || page.NextPageToken != "" {
		t.Fatalf("expected final page of 1 without token, got %d items, token %q", len(page.Observations), page.NextPageToken)
	}
	if page.Observations[0].Category != "communication" {
		t.Fatalf("expected communication observation last, got %q", page.Observations[0].Category)
	}

	resp = env.request(t, http.MethodGet, base+"?category=communication", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	page.NextPageToken = ""
	decodeResponse(t, resp, &page)
	if len(page.Observations) != 2 || page.NextPageToken != "" {
		t.Fatalf("expected 2 communication observations without token, got %d items, token %q", len(page.Observations), page.NextPageToken)
	}

	resp = env.request(t, http.MethodGet, base+"?category=communication&page_token="+firstToken, nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for token minted under a different filter, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, base+"?page_token=!!bogus!!", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for malformed token, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, base+"?page_size=zero", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad page size, got %d", resp.StatusCode)
	}
}

func TestIngestTransitionsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	env.startSession(t, childID)

	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/emotional-transitions", []map[string]any{
		{"from": "calm", "to": "sideways"},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPost, "/v1/children/"+childID+"/emotional-transitions", []map[string]any{
		{
			"from":             "frustrated",
			"to":               "calm",
			"trigger_event":    "loud-noise",
			"duration_seconds": 120,
			"strategy":         "deep-breathing",
		},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestIngestAssessmentsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)

	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/skill-assessments", []map[string]any{
		{"skill": "", "current": 0.4, "target": 0.8},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodPost, "/v1/children/"+childID+"/skill-assessments", []map[string]any{
		{"skill": "turn_taking", "baseline": 0.2, "current": 0.5, "target": 0.8, "method": "observation"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
}

func TestMilestonesEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)

	resp := env.request(t, http.MethodGet, "/v1/children/"+childID+"/milestones", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view struct {
		Achieved []json.RawMessage `json:"achieved"`
		Next     []struct {
			ID string `json:"id"`
		} `json:"next"`
	}
	decodeResponse(t, resp, &view)
	if len(view.Achieved) != 0 {
		t.Fatalf("expected no achievements yet, got %d", len(view.Achieved))
	}
	if len(view.Next) == 0 {
		t.Fatal("expected candidate milestones for age 6")
	}
	for _, next := range view.Next {
		if next.ID == "task-persistence-1" {
			t.Fatal("task-persistence-1 should be gated behind prerequisites")
		}
	}
}

func TestTrendsEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	env.startSession(t, childID)

	observations := make([]map[string]any, 6)
	for i := range observations {
		observations[i] = map[string]any{
			"timestamp": env.now.Add(time.Duration(i) * time.Hour).Format(time.RFC3339),
			"category":  "attention_regulation",
			"intensity": 0.4 + float64(i)*0.1,
		}
	}
	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/behavioral-observations", observations)
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	env.now = env.now.Add(6 * time.Hour)
	resp = env.request(t, http.MethodGet, "/v1/children/"+childID+"/trends", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view struct {
		Behavior []struct {
			Category            string  `json:"category"`
			Trend               string  `json:"trend"`
			FrequencyPerSession float64 `json:"frequency_per_session"`
		} `json:"behavior"`
	}
	decodeResponse(t, resp, &view)
	if len(view.Behavior) != 1 {
		t.Fatalf("expected 1 analyzed category, got %d", len(view.Behavior))
	}
	if view.Behavior[0].Category != "attention_regulation" {
		t.Fatalf("expected attention_regulation, got %s", view.Behavior[0].Category)
	}
	if view.Behavior[0].FrequencyPerSession != 6 {
		t.Fatalf("expected frequency 6 over one session, got %v", view.Behavior[0].FrequencyPerSession)
	}

	resp = env.request(t, http.MethodGet, "/v1/children/"+childID+"/trends?from=bogus", nil)
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad range, got %d", resp.StatusCode)
	}
}

func TestExportEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	sessionID := env.startSession(t, childID)

	resp := env.request(t, http.MethodPost, "/v1/children/"+childID+"/behavioral-observations", []map[string]any{
		{"category": "social_interaction", "intensity": 0.6, "trigger": "group-activity"},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}
	resp = env.request(t, http.MethodPost, "/v1/children/"+childID+"/emotional-transitions", []map[string]any{
		{"from": "anxious", "to": "calm", "duration_seconds": 90},
	})
	if resp.StatusCode != http.StatusAccepted {
		t.Fatalf("expected 202, got %d", resp.StatusCode)
	}

	env.now = env.now.Add(10 * time.Minute)
	resp = env.request(t, http.MethodPost, "/v1/sessions/"+sessionID+"/end", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	resp = env.request(t, http.MethodGet, "/v1/children/"+childID+"/export", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var view struct {
		Sessions     []json.RawMessage `json:"sessions"`
		Observations []struct {
			Category string `json:"category"`
		} `json:"observations"`
		Transitions []json.RawMessage `json:"transitions"`
	}
	decodeResponse(t, resp, &view)
	if len(view.Sessions) != 1 {
		t.Fatalf("expected 1 session, got %d", len(view.Sessions))
	}
	if len(view.Observations) != 1 || view.Observations[0].Category != "social_interaction" {
		t.Fatalf("unexpected observations: %+v", view.Observations)
	}
	if len(view.Transitions) != 1 {
		t.Fatalf("expected 1 transition, got %d", len(view.Transitions))
	}
}

func TestStreamEndpoint(t *testing.T) {
	env := newTestEnv(t)
	childID := env.createChild(t)
	sessionID := env.startSession(t, childID)

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/v1/sessions/" + sessionID + "/stream"
	conn, err := websocket.Dial(wsURL, "", env.server.URL)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	t.Cleanup(func() {
		_ = conn.Close()
	})

	var greeting struct {
		Type      string `json:"type"`
		SessionID string `json:"session_id"`
	}
	if err := json.NewDecoder(conn).Decode(&greeting); err != nil {
		t.Fatalf("decode greeting: %v", err)
	}
	if greeting.Type != "connection_established" {
		t.Fatalf("expected connection_established, got %s", greeting.Type)
	}
	if greeting.SessionID != sessionID {
		t.Fatalf("expected session %s, got %s", sessionID, greeting.SessionID)
	}

	resp := env.request(t, http.MethodPut, "/v1/sessions/"+sessionID+"/metrics", map[string]any{
		"actions_per_minute": 60,
		"error_rate":         0.1,
		"pause_frequency":    0.1,
		"avg_response_time":  1.5,
		"progress_rate":      0.8,
	})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}

	var frame struct {
		Type    string `json:"type"`
		Payload struct {
			OverstimulationRisk float64 `json:"overstimulation_risk"`
			Engagement          float64 `json:"engagement"`
		} `json:"payload"`
	}
	if err := json.NewDecoder(conn).Decode(&frame); err != nil {
		t.Fatalf("decode analysis frame: %v", err)
	}
	if frame.Type != "streaming_analysis" {
		t.Fatalf("expected streaming_analysis, got %s", frame.Type)
	}
	if frame.Payload.Engagement != 0.8 {
		t.Fatalf("expected engagement 0.8, got %f", frame.Payload.Engagement)
	}
}
