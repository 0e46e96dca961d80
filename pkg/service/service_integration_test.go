package service

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcmongodb "github.com/testcontainers/testcontainers-go/modules/mongodb"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/nimburion/listquery/pkg/middleware/testutil"
	"github.com/nimburion/listquery/pkg/server"
	integration "github.com/nimburion/listquery/pkg/testutil"
)

func TestService_Integration(t *testing.T) {
	integration.RequireIntegration(t)

	ctx := context.Background()
	mongoContainer, err := tcmongodb.Run(ctx, "mongo:7")
	if err != nil {
		t.Fatalf("failed to start MongoDB container: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(mongoContainer) }()
	redisContainer, err := tcredis.Run(ctx, "redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("Ready to accept connections").WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Fatalf("failed to start Redis container: %v", err)
	}
	defer func() { _ = testcontainers.TerminateContainer(redisContainer) }()

	mongoURI, err := mongoContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("mongo connection string: %v", err)
	}
	redisURI, err := redisContainer.ConnectionString(ctx)
	if err != nil {
		t.Fatalf("redis connection string: %v", err)
	}

	cfg := testConfig()
	cfg.Database.URL = mongoURI
	cfg.Database.DatabaseName = "listquery_service_it"
	cfg.Cache.Enabled = true
	cfg.Cache.URL = redisURI
	cfg.Management.Enabled = false
	log := testutil.NewMockLogger()

	if err := CheckDependencies(ctx, cfg, log); err != nil {
		t.Fatalf("CheckDependencies: %v", err)
	}

	svc, err := Connect(cfg, log)
	if err != nil {
		t.Fatalf("Connect: %v", err)
	}
	defer svc.Close(ctx)
	opts, err := svc.ServerOptions()
	if err != nil {
		t.Fatalf("ServerOptions: %v", err)
	}
	servers, err := server.BuildHTTPServers(opts)
	if err != nil {
		t.Fatalf("BuildHTTPServers: %v", err)
	}
	handler := servers.Public.Router()

	do := func(method, path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, path, strings.NewReader(body))
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		return rec
	}
	itemCount := func() float64 {
		rec := do(http.MethodGet, "/users?limit=10", "")
		if rec.Code != http.StatusOK {
			t.Fatalf("list: %d %s", rec.Code, rec.Body.String())
		}
		var body struct {
			PageInfo map[string]interface{} `json:"pageInfo"`
		}
		if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
			t.Fatalf("decode: %v", err)
		}
		return body.PageInfo["itemCount"].(float64)
	}

	if rec := do(http.MethodPost, "/users", `{"name":"Ada","active":true}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if got := itemCount(); got != 1 {
		t.Fatalf("expected 1 user, got %v", got)
	}
	// Served from the cache; the write below must invalidate it.
	if got := itemCount(); got != 1 {
		t.Fatalf("expected cached count 1, got %v", got)
	}
	if rec := do(http.MethodPost, "/users", `{"name":"Bob","active":true}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d %s", rec.Code, rec.Body.String())
	}
	if got := itemCount(); got != 2 {
		t.Fatalf("expected invalidated count 2, got %v", got)
	}
	if rec := do(http.MethodPost, "/users", `{"name":"Hidden","active":false}`); rec.Code != http.StatusCreated {
		t.Fatalf("create: %d", rec.Code)
	}
	if got := itemCount(); got != 2 {
		t.Fatalf("expected base filter to hide inactive users, got %v", got)
	}

	if err := CleanCache(ctx, cfg, log, nil); err != nil {
		t.Fatalf("CleanCache: %v", err)
	}
	if rec := do(http.MethodGet, "/ready", ""); rec.Code != http.StatusOK {
		t.Fatalf("ready: %d %s", rec.Code, rec.Body.String())
	}
}
