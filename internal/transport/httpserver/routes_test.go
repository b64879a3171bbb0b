package httpserver

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"partner-sync-go/internal/config"
	"partner-sync-go/internal/db"
	syncdomain "partner-sync-go/internal/domain/sync"
	"partner-sync-go/internal/merge"
	"partner-sync-go/internal/notify"
	"partner-sync-go/internal/repository/inmemory"
	syncrepo "partner-sync-go/internal/repository/postgres/sync"
	"partner-sync-go/internal/transport/httpserver/handler"
	commonhandler "partner-sync-go/internal/transport/httpserver/handler/common"
	synchandler "partner-sync-go/internal/transport/httpserver/handler/sync"
	authmw "partner-sync-go/internal/transport/httpserver/middleware"
	"partner-sync-go/pkg/logger"
)

type testServer struct {
	router http.Handler
	hub    *notify.Hub
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	log := logger.New(io.Discard, slog.LevelError, "text")
	cfg := config.Default()
	cfg.DB = config.DBConfig{Driver: config.DriverSQLite, SQLitePath: ":memory:"}
	cfg.Identity.SkipAuth = true
	cfg.Identity.MockPartnerID = "partner-1"
	cfg.Identity.MockDeviceID = ""
	cfg.Identity.MockSubject = "operator-1"

	gormDB, err := db.Open(cfg.DB, log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close(gormDB) })
	require.NoError(t, db.Migrate(context.Background(), gormDB, cfg.DB.Driver, log))

	sqlDB, err := gormDB.DB()
	require.NoError(t, err)

	hub := notify.NewHub(8, log)
	service := syncdomain.NewService(syncrepo.NewPostgres(gormDB), syncdomain.Config{}, merge.NewShallow(), hub)
	handlers := handler.New(
		commonhandler.New(sqlDB, log),
		synchandler.New(service, hub, cfg.HTTP.CORSOrigins, log),
	)
	auth := authmw.NewIdentityAuth(cfg.Identity, inmemory.NewInMemoryPrincipalCache(), log)

	return &testServer{
		router: NewRouter(cfg, handlers, auth, log),
		hub:    hub,
	}
}

func (s *testServer) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()

	var reader io.Reader
	if body != "" {
		reader = bytes.NewBufferString(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(authmw.DeviceIDHeader, "device-a")

	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, dst interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), dst), rec.Body.String())
}

type pushOutcome struct {
	OperationID    string `json:"operationId"`
	SequenceNumber int    `json:"sequenceNumber"`
	Status         string `json:"status"`
	Error          string `json:"error"`
}

type pushBody struct {
	BatchID    string        `json:"batchId"`
	Processed  int           `json:"processed"`
	Conflicts  int           `json:"conflicts"`
	Errors     int           `json:"errors"`
	Operations []pushOutcome `json:"operations"`
}

type operationBody struct {
	OperationID string          `json:"operationId"`
	DeviceID    string          `json:"deviceId"`
	Status      string          `json:"status"`
	Data        json.RawMessage `json:"data"`
	Conflict    struct {
		HasConflict  bool            `json:"hasConflict"`
		ConflictType string          `json:"conflictType"`
		ServerData   json.RawMessage `json:"serverData"`
		LocalData    json.RawMessage `json:"localData"`
		Resolution   string          `json:"resolution"`
		ResolvedBy   string          `json:"resolvedBy"`
		ResolvedAt   string          `json:"resolvedAt"`
	} `json:"conflict"`
	Sync struct {
		BatchID          string `json:"batchId"`
		SequenceNumber   int    `json:"sequenceNumber"`
		IsBatchOperation bool   `json:"isBatchOperation"`
	} `json:"sync"`
	Retry struct {
		CanRetry    bool `json:"canRetry"`
		Attempts    int  `json:"attempts"`
		MaxAttempts int  `json:"maxAttempts"`
	} `json:"retry"`
}

func pushInventory(t *testing.T, s *testServer, qty string) pushOutcome {
	t.Helper()

	rec := s.do(t, http.MethodPost, "/api/partners/partner-1/sync",
		`{"operations":[{"operationType":"update","entityType":"inventory","entityId":"sku-1","data":{"qty":`+qty+`}}]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body pushBody
	decodeBody(t, rec, &body)
	require.Len(t, body.Operations, 1)
	return body.Operations[0]
}

func TestConflictScenarioOverHTTP(t *testing.T) {
	s := newTestServer(t)

	first := pushInventory(t, s, "5")
	assert.Equal(t, "completed", first.Status)
	assert.Equal(t, 1, first.SequenceNumber)

	second := pushInventory(t, s, "3")
	assert.Equal(t, "conflict", second.Status)

	rec := s.do(t, http.MethodGet, "/api/partners/partner-1/sync/operations/"+second.OperationID, "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var conflicted operationBody
	decodeBody(t, rec, &conflicted)
	assert.True(t, conflicted.Conflict.HasConflict)
	assert.Equal(t, "data_mismatch", conflicted.Conflict.ConflictType)
	assert.JSONEq(t, `{"qty":5}`, string(conflicted.Conflict.ServerData))
	assert.JSONEq(t, `{"qty":3}`, string(conflicted.Conflict.LocalData))
	assert.Equal(t, "device-a", conflicted.DeviceID)
	assert.False(t, conflicted.Sync.IsBatchOperation)

	rec = s.do(t, http.MethodPost, "/api/partners/partner-1/sync/resolve-conflict",
		`{"operationId":"`+second.OperationID+`","resolution":"server_wins"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resolved operationBody
	decodeBody(t, rec, &resolved)
	assert.Equal(t, "completed", resolved.Status)
	assert.Equal(t, "server_wins", resolved.Conflict.Resolution)
	assert.Equal(t, "operator-1", resolved.Conflict.ResolvedBy)
	assert.NotEmpty(t, resolved.Conflict.ResolvedAt)

	rec = s.do(t, http.MethodPost, "/api/partners/partner-1/sync/resolve-conflict",
		`{"operationId":"`+second.OperationID+`","resolution":"local_wins"}`)
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, rec.Body.String(), "operation_not_in_conflict")

	third := pushInventory(t, s, "5")
	assert.Equal(t, "completed", third.Status, "server state stays at qty 5")
}

func TestPushBatchNumbering(t *testing.T) {
	s := newTestServer(t)
	batchID := "6f1c1d3e-8a4b-4c55-9d7e-0f1a2b3c4d5e"

	rec := s.do(t, http.MethodPost, "/api/partners/partner-1/sync", `{"batchId":"`+batchID+`","operations":[
		{"operationType":"create","entityType":"order","entityId":"order-1","data":{"total":10}},
		{"operationType":"create","entityType":"order","entityId":"order-2","data":{"total":20}}
	]}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var body pushBody
	decodeBody(t, rec, &body)
	assert.Equal(t, batchID, body.BatchID)
	assert.Equal(t, 2, body.Processed)
	require.Len(t, body.Operations, 2)
	assert.Equal(t, 1, body.Operations[0].SequenceNumber)
	assert.Equal(t, 2, body.Operations[1].SequenceNumber)

	rec = s.do(t, http.MethodGet, "/api/partners/partner-1/sync/operations/"+body.Operations[1].OperationID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var stored operationBody
	decodeBody(t, rec, &stored)
	assert.True(t, stored.Sync.IsBatchOperation)
	assert.Equal(t, batchID, stored.Sync.BatchID)
}

func TestPushRejectsOversizedBatch(t *testing.T) {
	s := newTestServer(t)

	ops := make([]map[string]interface{}, 0, syncdomain.DefaultMaxBatchOperations+1)
	for i := 0; i <= syncdomain.DefaultMaxBatchOperations; i++ {
		ops = append(ops, map[string]interface{}{
			"operationType": "create",
			"entityType":    "order",
			"entityId":      "order",
			"data":          map[string]int{"n": i},
		})
	}
	payload, err := json.Marshal(map[string]interface{}{"operations": ops})
	require.NoError(t, err)

	rec := s.do(t, http.MethodPost, "/api/partners/partner-1/sync", string(payload))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
	assert.Contains(t, rec.Body.String(), "sync_batch_too_large")
}

func TestPullAndStatus(t *testing.T) {
	s := newTestServer(t)

	pushInventory(t, s, "5")
	pushInventory(t, s, "3")

	rec := s.do(t, http.MethodGet, "/api/partners/partner-1/sync?limit=10", "")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var pulled struct {
		Operations []operationBody `json:"operations"`
		LastSync   string          `json:"lastSync"`
		Count      int             `json:"count"`
		HasMore    bool            `json:"hasMore"`
	}
	decodeBody(t, rec, &pulled)
	assert.Equal(t, 2, pulled.Count)
	assert.False(t, pulled.HasMore)
	require.Len(t, pulled.Operations, 2)
	assert.Equal(t, "conflict", pulled.Operations[0].Status, "newest first")

	rec = s.do(t, http.MethodGet, "/api/partners/partner-1/sync?since="+pulled.LastSync, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var empty struct {
		Count    int    `json:"count"`
		LastSync string `json:"lastSync"`
	}
	decodeBody(t, rec, &empty)
	assert.Equal(t, 0, empty.Count)
	assert.Equal(t, pulled.LastSync, empty.LastSync)

	rec = s.do(t, http.MethodGet, "/api/partners/partner-1/sync?since=yesterday", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/api/partners/partner-1/sync/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var status struct {
		TotalOperations     int64           `json:"totalOperations"`
		CompletedOperations int64           `json:"completedOperations"`
		ConflictOperations  int64           `json:"conflictOperations"`
		ExhaustedOperations int64           `json:"exhaustedOperations"`
		Pending             []operationBody `json:"pending"`
		Conflicts           []operationBody `json:"conflicts"`
	}
	decodeBody(t, rec, &status)
	assert.Equal(t, int64(2), status.TotalOperations)
	assert.Equal(t, int64(1), status.CompletedOperations)
	assert.Equal(t, int64(1), status.ConflictOperations)
	assert.Empty(t, status.Pending)
	assert.Len(t, status.Conflicts, 1)

	rec = s.do(t, http.MethodGet, "/api/partners/partner-1/sync/conflicts?page=1&limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var conflicts struct {
		Operations []operationBody `json:"operations"`
		Page       int             `json:"page"`
		Limit      int             `json:"limit"`
		Total      int64           `json:"total"`
	}
	decodeBody(t, rec, &conflicts)
	assert.Equal(t, int64(1), conflicts.Total)
	assert.Equal(t, 5, conflicts.Limit)
	assert.Len(t, conflicts.Operations, 1)
}

func TestServiceErrorsMapToStatusCodes(t *testing.T) {
	s := newTestServer(t)
	first := pushInventory(t, s, "5")

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
		code   string
	}{
		{
			name:   "invalid json",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync",
			body:   `{"operations":`,
			status: http.StatusBadRequest,
			code:   "invalid_json",
		},
		{
			name:   "unknown operation",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync/retry",
			body:   `{"operationId":"00000000-0000-4000-8000-000000000000"}`,
			status: http.StatusNotFound,
			code:   "operation_not_found",
		},
		{
			name:   "retry completed operation",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync/retry",
			body:   `{"operationId":"` + first.OperationID + `"}`,
			status: http.StatusBadRequest,
			code:   "operation_not_retryable",
		},
		{
			name:   "resolve completed operation",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync/resolve-conflict",
			body:   `{"operationId":"` + first.OperationID + `","resolution":"local_wins"}`,
			status: http.StatusConflict,
			code:   "operation_not_in_conflict",
		},
		{
			name:   "unknown resolution",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync/resolve-conflict",
			body:   `{"operationId":"` + first.OperationID + `","resolution":"coin_flip"}`,
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
		{
			name:   "missing operation id",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync/retry",
			body:   `{}`,
			status: http.StatusBadRequest,
			code:   "validation_failed",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code, rec.Body.String())

			var envelope struct {
				Error struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			decodeBody(t, rec, &envelope)
			assert.Equal(t, tt.code, envelope.Error.Code)
		})
	}
}

func TestPushPublishesChangeEvents(t *testing.T) {
	s := newTestServer(t)

	events, cancel := s.hub.Subscribe("partner-1")
	defer cancel()

	outcome := pushInventory(t, s, "5")

	select {
	case event := <-events:
		assert.Equal(t, outcome.OperationID, event.OperationID)
		assert.Equal(t, syncdomain.StatusCompleted, event.Status)
	default:
		t.Fatal("expected a change event")
	}
}

func TestErrorResponsesGolden(t *testing.T) {
	s := newTestServer(t)
	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{
			name:   "push_validation_failed",
			method: http.MethodPost,
			path:   "/api/partners/partner-1/sync",
			body: `{"batchId":"not-a-uuid","operations":[
				{"operationType":"teleport","entityType":"inventory","entityId":"","data":null},
				{"operationType":"update","entityType":"spaceship","entityId":"x","data":{}}
			]}`,
			status: http.StatusBadRequest,
		},
		{
			name:   "partner_forbidden",
			method: http.MethodGet,
			path:   "/api/partners/partner-2/sync",
			status: http.StatusForbidden,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := s.do(t, tt.method, tt.path, tt.body)
			assert.Equal(t, tt.status, rec.Code)
			g.Assert(t, tt.name, rec.Body.Bytes())
		})
	}
}

func TestHealthAndAuthMe(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/api/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)

	rec = s.do(t, http.MethodGet, "/api/auth/me", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"partnerId":"partner-1","deviceId":"device-a","subject":"operator-1"}`, rec.Body.String())
}

func TestStreamDeliversChangeEvents(t *testing.T) {
	s := newTestServer(t)
	server := httptest.NewServer(s.router)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/partners/partner-1/sync/stream"
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool {
		return s.hub.Subscribers("partner-1") == 1
	}, time.Second, 10*time.Millisecond)

	outcome := pushInventory(t, s, "5")

	var event syncdomain.ChangeEvent
	require.NoError(t, wsjson.Read(ctx, conn, &event))
	assert.Equal(t, outcome.OperationID, event.OperationID)
	assert.Equal(t, syncdomain.EntityTypeInventory, event.EntityType)
	assert.Equal(t, "sku-1", event.EntityID)

	require.NoError(t, conn.Close(websocket.StatusNormalClosure, ""))
	require.Eventually(t, func() bool {
		return s.hub.Subscribers("partner-1") == 0
	}, time.Second, 10*time.Millisecond)
}
