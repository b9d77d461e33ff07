package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"dealer-crm/internal/audit"
	"dealer-crm/internal/auth"
	"dealer-crm/internal/calllogs"
	"dealer-crm/internal/config"
	"dealer-crm/internal/httpapi"
	"dealer-crm/internal/ingest"
	"dealer-crm/internal/knowledge"
	"dealer-crm/internal/metrics"
	"dealer-crm/internal/reporting"
	"dealer-crm/internal/seed"
	"dealer-crm/internal/tenancy"
	"dealer-crm/internal/users"
	"dealer-crm/internal/vapi"
	"dealer-crm/pkg/logger"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVersionCmd(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--env-file", "", "version"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("version command failed: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "crm dev") || !strings.Contains(out, "commit: none") {
		t.Errorf("unexpected version output: %s", out)
	}
}

func TestRootCmdHelp(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("help failed: %v", err)
	}
	out := buf.String()
	for _, sub := range []string{"serve", "migrate", "seed", "provider", "version"} {
		if !strings.Contains(out, sub) {
			t.Errorf("expected help to list %q, got: %s", sub, out)
		}
	}
}

func TestProviderCmdHasSubcommands(t *testing.T) {
	cmd := newProviderCmd()
	names := map[string]bool{}
	for _, c := range cmd.Commands() {
		names[c.Name()] = true
	}
	for _, want := range []string{"calls", "assistants", "backfill"} {
		if !names[want] {
			t.Errorf("missing provider subcommand %q", want)
		}
	}
}

func TestExecuteReportsFailure(t *testing.T) {
	cmd := newRootCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetErr(buf)
	cmd.SetArgs([]string{"--env-file", "", "no-such-command"})

	if code := execute(cmd); code != 1 {
		t.Fatalf("expected exit code 1, got %d", code)
	}
}

type stack struct {
	router  *gin.Engine
	logs    *calllogs.MemoryRepo
	audit   *audit.MemoryRepo
	ingest  *ingest.Service
	seeded  seed.Result
	dealers *tenancy.MemoryRepo
}

func newStack(t *testing.T) *stack {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctx := context.Background()

	logs := calllogs.NewMemoryRepo()
	dealers := tenancy.NewMemoryRepo(logs)
	userRepo := users.NewMemoryRepo()
	res, err := (&seed.Seeder{Tenancy: dealers, Users: userRepo, CallLogs: logs}).Run(ctx, seed.Options{Customers: 1, FakerSeed: 7})
	require.NoError(t, err)

	am, err := auth.NewManager(config.AuthConfig{JWTSecret: "secret", AccessTokenTTL: time.Hour, RefreshTokenTTL: 2 * time.Hour})
	require.NoError(t, err)
	m := metrics.New(prometheus.NewRegistry())
	reportingSvc := reporting.NewService(logs, nil, m)
	auditRepo := audit.NewMemoryRepo()

	cfg := config.Config{Ingest: config.IngestConfig{DepartmentClassifier: config.ClassifierHeuristic, DefaultRegion: "US"}}
	svc := newIngestService(cfg, logs, dealers, audit.NewService(auditRepo), reportingSvc, nil, m)

	api := &httpapi.Handlers{
		Auth:      am,
		Users:     userRepo,
		CallLogs:  logs,
		Reporting: reportingSvc,
		Knowledge: knowledge.NewService(knowledge.NewMemoryRepo(), knowledge.NewMemoryStore()),
		Metrics:   m,
		Health:    func(context.Context) error { return nil },
	}
	log := logger.NewWithWriter("test", new(bytes.Buffer))
	return &stack{
		router:  newRouter(log, api, ingest.NewHandler(svc), m),
		logs:    logs,
		audit:   auditRepo,
		ingest:  svc,
		seeded:  res,
		dealers: dealers,
	}
}

func (s *stack) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.router.ServeHTTP(w, req)
	return w
}

func (s *stack) login(t *testing.T) string {
	t.Helper()
	w := s.do(t, http.MethodPost, "/v1/auth/login", "", map[string]string{"email": seed.AdminEmail, "password": seed.DefaultPassword})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var out struct {
		AccessToken string `json:"access_token"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	require.NotEmpty(t, out.AccessToken)
	return out.AccessToken
}

func TestRouter_WebhookFeedsDashboard(t *testing.T) {
	s := newStack(t)
	token := s.login(t)

	delivery := map[string]any{
		"message": map[string]any{
			"type":            "end-of-call-report",
			"durationSeconds": 120,
			"transcript":      "I need an oil change and a tire rotation",
			"call": map[string]any{
				"id":          "call-e2e-1",
				"type":        "inboundPhoneCall",
				"customer":    map[string]any{"number": "+15550001111"},
				"phoneNumber": map[string]any{"number": "(555) 123-4567"},
			},
		},
	}
	w := s.do(t, http.MethodPost, "/api/webhooks/vapi", "", delivery)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Webhook received via API endpoint")

	row, err := s.logs.GetByCallID(context.Background(), "call-e2e-1")
	require.NoError(t, err)
	require.NotNil(t, row.DealershipID)
	assert.Equal(t, s.seeded.Dealership.ID, *row.DealershipID)
	require.NotNil(t, row.Department)
	assert.Equal(t, calllogs.DepartmentService, *row.Department)

	w = s.do(t, http.MethodGet, "/v1/dashboard", token, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var dash struct {
		Stats reporting.DashboardStats `json:"stats"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &dash))
	assert.Equal(t, 5, dash.Stats.TotalCalls)
	assert.Equal(t, 2, dash.Stats.ServiceCalls)
	assert.Equal(t, 1, dash.Stats.OtherCalls)
}

func TestRouter_PublicAndCatchAll(t *testing.T) {
	s := newStack(t)

	w := s.do(t, http.MethodGet, "/healthz", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = s.do(t, http.MethodPost, "/some/forgotten/path", "", map[string]any{"message": map[string]any{"call_id": "stray-1"}})
	assert.Equal(t, http.StatusOK, w.Code)
	_, err := s.logs.GetByCallID(context.Background(), "stray-1")
	assert.NoError(t, err)

	w = s.do(t, http.MethodGet, "/some/forgotten/path", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = s.do(t, http.MethodGet, "/v1/dashboard", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRouter_TrailingSlashIsStillADelivery(t *testing.T) {
	s := newStack(t)

	for path, callID := range map[string]string{"/webhook/": "slash-1", "/api/webhooks/vapi/": "slash-2"} {
		w := s.do(t, http.MethodPost, path, "", map[string]any{"message": map[string]any{"call_id": callID}})
		assert.Equal(t, http.StatusOK, w.Code, path)
		_, err := s.logs.GetByCallID(context.Background(), callID)
		assert.NoError(t, err, path)
	}
}

func TestBackfill_ReplaysProviderCalls(t *testing.T) {
	s := newStack(t)
	ctx := context.Background()

	started := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)
	ended := started.Add(90 * time.Second)
	cost := 0.31
	calls := []vapi.Call{
		{
			ID:          "bf-1",
			Type:        "inboundPhoneCall",
			Status:      "ended",
			StartedAt:   &started,
			EndedAt:     &ended,
			Cost:        &cost,
			Customer:    &vapi.PhoneParty{Number: "+15550002222"},
			PhoneNumber: &vapi.PhoneParty{Number: "+15551234567"},
			Summary:     "Caller asked about financing a new sedan.",
		},
		{ID: "test-sales-call-001", Status: "ended"},
		{Status: "ended"},
	}

	sum, err := backfill(ctx, s.ingest, calls)
	require.NoError(t, err)
	assert.Equal(t, backfillSummary{created: 1, updated: 1, skipped: 1}, sum)

	row, err := s.logs.GetByCallID(ctx, "bf-1")
	require.NoError(t, err)
	assert.Equal(t, calllogs.StatusCompleted, row.Status)
	assert.Equal(t, 90, row.Duration)
	require.NotNil(t, row.VapiCost)
	assert.InDelta(t, 0.31, *row.VapiCost, 1e-9)
	require.NotNil(t, row.DealershipID)
	assert.Equal(t, s.seeded.Dealership.ID, *row.DealershipID)

	events := s.audit.ByCallID("bf-1")
	require.Len(t, events, 1)
	assert.Equal(t, audit.EventTypeWebhookOutcome, events[0].Type)
	assert.Equal(t, string(ingest.OutcomeProcessed), events[0].Outcome)
	require.NotNil(t, events[0].DealershipID)
	assert.Equal(t, s.seeded.Dealership.ID, *events[0].DealershipID)
}

type failingIngester struct{}

func (failingIngester) Ingest(ctx context.Context, d ingest.Delivery) ingest.Result {
	return ingest.Result{Outcome: ingest.OutcomeWriteFailed, CallID: "x", Err: errors.New("db down")}
}

func TestBackfill_StopsOnWriteFailure(t *testing.T) {
	_, err := backfill(context.Background(), failingIngester{}, []vapi.Call{{ID: "x"}, {ID: "y"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestReportBody_DerivesDuration(t *testing.T) {
	started := time.Date(2025, 8, 20, 14, 0, 0, 0, time.UTC)
	ended := started.Add(61600 * time.Millisecond)
	body, err := reportBody(vapi.Call{ID: "c1", StartedAt: &started, EndedAt: &ended, Transcript: "hi"})
	require.NoError(t, err)

	p := ingest.Decode(body)
	assert.Equal(t, "c1", p.CallID())
	patch := p.Patch("US")
	require.NotNil(t, patch.Duration)
	assert.Equal(t, 62, *patch.Duration)
	require.NotNil(t, patch.Transcript)
	assert.Equal(t, "hi", *patch.Transcript)

	body, err = reportBody(vapi.Call{ID: "c2", StartedAt: &ended, EndedAt: &started})
	require.NoError(t, err)
	assert.Nil(t, ingest.Decode(body).Patch("US").Duration)
}
