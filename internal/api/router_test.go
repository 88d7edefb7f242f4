package api

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"dingbot/internal/api/handlers"
	"dingbot/internal/api/middleware"
	"dingbot/internal/engine/notify"
	"dingbot/internal/pkg/metrics"
	"dingbot/internal/platform/audit"
	"dingbot/internal/platform/auth"
	"dingbot/internal/platform/config"
	"dingbot/internal/platform/database"
	"dingbot/internal/platform/repositories"
	"dingbot/migrations"
)

type testEnv struct {
	router    http.Handler
	queue     *notify.MemoryQueue
	tokens    *auth.TokenService
	robotHits *int32
}

func setupRouter(t *testing.T, robotResponse string) *testEnv {
	t.Helper()

	var hits int32
	robot := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		io.WriteString(w, robotResponse)
	}))
	t.Cleanup(robot.Close)

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	if err := database.Migrate(db, migrations.FS, "global"); err != nil {
		t.Fatalf("Failed to migrate: %v", err)
	}

	cfg := &config.Config{
		DefaultRobot: "ops",
		Robots:       []config.RobotConfig{{Name: "ops", Webhook: robot.URL + "/robot/send?access_token=abc", Secret: "SEC123"}},
		Database:     config.DatabaseConfig{RobotCacheTTL: time.Minute},
		JWT:          config.JWTConfig{Secret: "test-secret", AccessTokenTTL: time.Hour},
	}

	repo := repositories.NewRobotRepository(db)
	auditLog := audit.NewLogger(db)
	m := metrics.New()
	queue := notify.NewMemoryQueue(8)
	resolver := notify.NewResolver(cfg, repo)
	dispatcher := notify.NewDispatcher(resolver, queue, m)
	tokens := auth.NewTokenService(cfg.JWT)

	router := NewRouter(&Dependencies{
		NotifyHandler:  handlers.NewNotifyHandler(dispatcher),
		RobotHandler:   handlers.NewRobotHandler(repo, auditLog, resolver),
		AuditHandler:   handlers.NewAuditHandler(auditLog),
		HealthHandler:  handlers.NewHealthHandler(db, queue),
		MetricsHandler: handlers.NewMetricsHandler(m),
		AuthMiddleware: middleware.NewAuthMiddleware(tokens),
	})

	return &testEnv{router: router, queue: queue, tokens: tokens, robotHits: &hits}
}

func (e *testEnv) do(t *testing.T, method, path, body string, scopes ...string) *httptest.ResponseRecorder {
	t.Helper()

	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if scopes != nil {
		token, err := e.tokens.GenerateToken("test", scopes, 0)
		if err != nil {
			t.Fatalf("GenerateToken() error: %v", err)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	rr := httptest.NewRecorder()
	e.router.ServeHTTP(rr, req)
	return rr
}

func decodeBody(t *testing.T, rr *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var body map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("invalid JSON response %q: %v", rr.Body.String(), err)
	}
	return body
}

func TestNotify_Sync(t *testing.T) {
	env := setupRouter(t, `{"errcode":0,"errmsg":"ok"}`)

	rr := env.do(t, "POST", "/api/v1/notify/ops?sync=true", `{"message":"M","title":"T"}`, auth.ScopeNotify)
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v (%s)", rr.Code, http.StatusOK, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["status"] != "sent" {
		t.Errorf("unexpected body %v", body)
	}
	if atomic.LoadInt32(env.robotHits) != 1 {
		t.Errorf("Expected one robot request, got %d", *env.robotHits)
	}
}

func TestNotify_SyncRemoteError(t *testing.T) {
	env := setupRouter(t, `{"errcode":310000,"errmsg":"sign not match"}`)

	rr := env.do(t, "POST", "/api/v1/notify?sync=true", `{"message":"M"}`, auth.ScopeNotify)
	if rr.Code != http.StatusBadGateway {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusBadGateway)
	}

	body := decodeBody(t, rr)
	details, _ := body["details"].(map[string]interface{})
	if details["errcode"] != float64(310000) || details["errmsg"] != "sign not match" {
		t.Errorf("unexpected details %v", body)
	}
}

func TestNotify_Async(t *testing.T) {
	env := setupRouter(t, `{"errcode":0}`)

	rr := env.do(t, "POST", "/api/v1/notify/ops", `{"message":"M","data":{"type":"markdown"}}`, auth.ScopeNotify)
	if rr.Code != http.StatusAccepted {
		t.Fatalf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusAccepted)
	}

	body := decodeBody(t, rr)
	id, _ := body["id"].(string)
	if !strings.HasPrefix(id, "ntf_") {
		t.Errorf("Expected notification id, got %v", body)
	}

	job, err := env.queue.Dequeue(context.Background())
	if err != nil || job.ID != id || job.Robot != "ops" {
		t.Errorf("Expected queued job %s, got %#v (%v)", id, job, err)
	}
	if atomic.LoadInt32(env.robotHits) != 0 {
		t.Error("async notify must not post inline")
	}
}

func TestNotify_Rejections(t *testing.T) {
	env := setupRouter(t, `{"errcode":0}`)

	tests := []struct {
		name   string
		path   string
		body   string
		scopes []string
		status int
		code   string
	}{
		{
			name:   "Unsupported Type",
			path:   "/api/v1/notify/ops",
			body:   `{"message":"M","data":{"type":"bogus"}}`,
			scopes: []string{auth.ScopeNotify},
			status: http.StatusBadRequest,
			code:   "UNSUPPORTED_MESSAGE_TYPE",
		},
		{
			name:   "Unknown Robot",
			path:   "/api/v1/notify/ghost",
			body:   `{"message":"M"}`,
			scopes: []string{auth.ScopeNotify},
			status: http.StatusNotFound,
			code:   "NOT_FOUND",
		},
		{
			name:   "Invalid Mobile",
			path:   "/api/v1/notify/ops",
			body:   `{"message":"M","target":["138abc"]}`,
			scopes: []string{auth.ScopeNotify},
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "Invalid JSON",
			path:   "/api/v1/notify/ops",
			body:   `{`,
			scopes: []string{auth.ScopeNotify},
			status: http.StatusBadRequest,
			code:   "INVALID_INPUT",
		},
		{
			name:   "Missing Token",
			path:   "/api/v1/notify/ops",
			body:   `{"message":"M"}`,
			status: http.StatusUnauthorized,
			code:   "UNAUTHORIZED",
		},
		{
			name:   "Wrong Scope",
			path:   "/api/v1/notify/ops",
			body:   `{"message":"M"}`,
			scopes: []string{auth.ScopeAdmin},
			status: http.StatusForbidden,
			code:   "FORBIDDEN",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := env.do(t, "POST", tt.path, tt.body, tt.scopes...)
			if rr.Code != tt.status {
				t.Fatalf("handler returned wrong status code: got %v want %v (%s)", rr.Code, tt.status, rr.Body.String())
			}
			if body := decodeBody(t, rr); body["code"] != tt.code {
				t.Errorf("Expected code %s, got %v", tt.code, body["code"])
			}
		})
	}

	if env.queue.Len() != 0 || atomic.LoadInt32(env.robotHits) != 0 {
		t.Error("rejected requests must not be queued or sent")
	}
}

func TestNotify_QueueFull(t *testing.T) {
	env := setupRouter(t, `{"errcode":0}`)

	for i := 0; i < 8; i++ {
		if rr := env.do(t, "POST", "/api/v1/notify/ops", `{"message":"M"}`, auth.ScopeNotify); rr.Code != http.StatusAccepted {
			t.Fatalf("request %d: got %v", i, rr.Code)
		}
	}

	rr := env.do(t, "POST", "/api/v1/notify/ops", `{"message":"M"}`, auth.ScopeNotify)
	if rr.Code != http.StatusServiceUnavailable {
		t.Errorf("handler returned wrong status code: got %v want %v", rr.Code, http.StatusServiceUnavailable)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("Expected Retry-After header")
	}
}

func TestRobots_CRUD(t *testing.T) {
	env := setupRouter(t, `{"errcode":0}`)
	admin := auth.ScopeAdmin

	rr := env.do(t, "POST", "/api/v1/robots", `{"name":"alerts","webhook_url":"https://oapi.dingtalk.com/robot/send?access_token=x","secret":"SECx"}`, admin)
	if rr.Code != http.StatusCreated {
		t.Fatalf("create: got %v (%s)", rr.Code, rr.Body.String())
	}
	created := decodeBody(t, rr)
	id, _ := created["id"].(string)
	if _, leaked := created["secret"]; leaked {
		t.Error("secret must not be returned")
	}

	if rr := env.do(t, "POST", "/api/v1/robots", `{"name":"alerts","webhook_url":"https://a.example"}`, admin); rr.Code != http.StatusConflict {
		t.Errorf("duplicate: got %v want %v", rr.Code, http.StatusConflict)
	}
	if rr := env.do(t, "POST", "/api/v1/robots", `{"name":"bad","webhook_url":"ftp://x"}`, admin); rr.Code != http.StatusBadRequest {
		t.Errorf("bad url: got %v want %v", rr.Code, http.StatusBadRequest)
	}

	if rr := env.do(t, "GET", "/api/v1/robots/"+id, "", admin); rr.Code != http.StatusOK {
		t.Errorf("get: got %v", rr.Code)
	}

	// Queued, which also puts the robot in the resolver cache.
	if rr := env.do(t, "POST", "/api/v1/notify/alerts", `{"message":"M"}`, auth.ScopeNotify); rr.Code != http.StatusAccepted {
		t.Errorf("notify active: got %v want %v", rr.Code, http.StatusAccepted)
	}

	rr = env.do(t, "PATCH", "/api/v1/robots/"+id, `{"status":"disabled"}`, admin)
	if rr.Code != http.StatusOK || decodeBody(t, rr)["status"] != "disabled" {
		t.Errorf("update: got %v (%s)", rr.Code, rr.Body.String())
	}

	// Disabled registry robots cannot be notified.
	if rr := env.do(t, "POST", "/api/v1/notify/alerts", `{"message":"M"}`, auth.ScopeNotify); rr.Code != http.StatusConflict {
		t.Errorf("notify disabled: got %v want %v", rr.Code, http.StatusConflict)
	}
	if rr := env.do(t, "PATCH", "/api/v1/robots/"+id, `{"status":"active"}`, admin); rr.Code != http.StatusOK {
		t.Errorf("re-enable: got %v", rr.Code)
	}
	if rr := env.do(t, "POST", "/api/v1/notify/alerts", `{"message":"M"}`, auth.ScopeNotify); rr.Code != http.StatusAccepted {
		t.Errorf("notify re-enabled: got %v want %v", rr.Code, http.StatusAccepted)
	}

	rr = env.do(t, "GET", "/api/v1/robots", "", admin)
	var list []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &list); err != nil || len(list) != 1 {
		t.Errorf("list: %s (%v)", rr.Body.String(), err)
	}

	if rr := env.do(t, "DELETE", "/api/v1/robots/"+id, "", admin); rr.Code != http.StatusNoContent {
		t.Errorf("delete: got %v", rr.Code)
	}
	if rr := env.do(t, "GET", "/api/v1/robots/"+id, "", admin); rr.Code != http.StatusNotFound {
		t.Errorf("get after delete: got %v", rr.Code)
	}
	if rr := env.do(t, "POST", "/api/v1/notify/alerts", `{"message":"M"}`, auth.ScopeNotify); rr.Code != http.StatusNotFound {
		t.Errorf("notify deleted: got %v want %v", rr.Code, http.StatusNotFound)
	}
	if rr := env.do(t, "DELETE", "/api/v1/robots/"+id, "", admin); rr.Code != http.StatusNotFound {
		t.Errorf("second delete: got %v", rr.Code)
	}

	rr = env.do(t, "GET", "/api/v1/audit", "", admin)
	if rr.Code != http.StatusOK {
		t.Fatalf("audit: got %v (%s)", rr.Code, rr.Body.String())
	}
	var entries []map[string]interface{}
	if err := json.Unmarshal(rr.Body.Bytes(), &entries); err != nil {
		t.Fatalf("audit: %v", err)
	}
	actions := map[string]bool{}
	for _, e := range entries {
		actions[e["action"].(string)] = true
		if e["actor"] != "test" || e["resource_id"] != id {
			t.Errorf("unexpected audit entry %v", e)
		}
	}
	for _, want := range []string{"robot.create", "robot.update", "robot.delete"} {
		if !actions[want] {
			t.Errorf("missing audit action %s in %v", want, actions)
		}
	}
	if strings.Contains(rr.Body.String(), "SECx") {
		t.Error("audit log leaked the robot secret")
	}

	if rr := env.do(t, "GET", "/api/v1/audit", "", auth.ScopeNotify); rr.Code != http.StatusForbidden {
		t.Errorf("audit without admin scope: got %v", rr.Code)
	}
}

func TestHealthAndMetrics(t *testing.T) {
	env := setupRouter(t, `{"errcode":0}`)

	rr := env.do(t, "GET", "/health", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("health: got %v (%s)", rr.Code, rr.Body.String())
	}
	if body := decodeBody(t, rr); body["status"] != "healthy" {
		t.Errorf("unexpected health %v", body)
	}

	env.do(t, "POST", "/api/v1/notify/ops?sync=true", `{"message":"M"}`, auth.ScopeNotify)

	rr = env.do(t, "GET", "/metrics", "")
	if !strings.Contains(rr.Body.String(), `dingbot_notifications_total{msgtype="text",outcome="ok",robot="ops"} 1`) {
		t.Errorf("metrics missing notification counter:\n%s", rr.Body.String())
	}
}
