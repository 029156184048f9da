package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskflow-hq/taskflow/internal/platform/cache"
	"github.com/taskflow-hq/taskflow/internal/platform/config"
	"github.com/taskflow-hq/taskflow/internal/platform/logger"
	"github.com/taskflow-hq/taskflow/internal/platform/metrics"
	"github.com/taskflow-hq/taskflow/internal/search/adapters/repository/memory"
	"github.com/taskflow-hq/taskflow/internal/search/app/service"
	"github.com/taskflow-hq/taskflow/internal/search/domain/model"
	"github.com/taskflow-hq/taskflow/internal/shared/events"
)

const testSecret = "server-test-secret"

type memorySink struct {
	mu          sync.Mutex
	published   []*events.IndexEvent
	deadLetters []*events.IndexEvent
}

func (s *memorySink) Publish(ctx context.Context, event *events.IndexEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published = append(s.published, event)
	return nil
}

func (s *memorySink) PublishDeadLetter(ctx context.Context, event *events.IndexEvent, cause error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.deadLetters = append(s.deadLetters, event)
	return nil
}

func testConfig() *config.Config {
	cfg := &config.Config{}
	cfg.Service.Name = "search"
	cfg.Version = "test"
	cfg.Auth.JWTSecret = testSecret
	cfg.Search = config.SearchConfig{
		DefaultPageSize:  20,
		MaxPageSize:      100,
		AutocompleteSize: 10,
		QuickSearchSize:  5,
		QueryTimeout:     time.Second,
		HistoryMaxSize:   50,
		HistoryTTL:       720 * time.Hour,
		PopularTTL:       168 * time.Hour,
	}
	return cfg
}

func newTestServer(t *testing.T) (*Server, *memorySink) {
	t.Helper()

	engine := memory.NewEngine()
	indexer := service.NewIndexingService(engine, metrics.NewMetrics("test", prometheus.NewRegistry()), logger.NewNop())
	require.NoError(t, indexer.IndexTask(context.Background(), &model.Task{
		ID: 1, Title: "Quarterly budget", Creator: &model.UserRef{ID: 7, Name: "Ann"}, CreatedAt: time.Now(),
	}))

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	sink := &memorySink{}
	srv, err := New(
		WithConfig(testConfig()),
		WithSearchEngine(engine),
		WithStore(cache.NewFromClient(client, "taskflow")),
		WithEventSink(sink),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = srv.Shutdown(context.Background()) })
	return srv, sink
}

func bearer(t *testing.T, userID int64, roles ...string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"user_id": userID,
		"roles":   roles,
		"exp":     time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	return "Bearer " + signed
}

func TestNewRequiresConfig(t *testing.T) {
	_, err := New()
	assert.Error(t, err)
}

func TestNewRejectsMissingOrPlaceholderSecret(t *testing.T) {
	for _, secret := range []string{"", "super-secret-key"} {
		cfg := testConfig()
		cfg.Auth.JWTSecret = secret
		_, err := New(
			WithConfig(cfg),
			WithSearchEngine(memory.NewEngine()),
			WithEventSink(&memorySink{}),
		)
		assert.Error(t, err, "secret %q", secret)
	}
}

func TestServerRoutes(t *testing.T) {
	srv, sink := newTestServer(t)

	tests := []struct {
		name       string
		method     string
		path       string
		auth       string
		wantStatus int
	}{
		{name: "liveness", method: http.MethodGet, path: "/health/live", wantStatus: http.StatusOK},
		{name: "readiness", method: http.MethodGet, path: "/ready", wantStatus: http.StatusOK},
		{name: "metrics", method: http.MethodGet, path: "/metrics", wantStatus: http.StatusOK},
		{name: "search without token", method: http.MethodGet, path: "/api/v1/search/tasks?q=budget", wantStatus: http.StatusUnauthorized},
		{name: "search", method: http.MethodGet, path: "/api/v1/search/tasks?q=budget", auth: bearer(t, 7), wantStatus: http.StatusOK},
		{name: "reindex as member", method: http.MethodPost, path: "/api/v1/search/reindex/task", auth: bearer(t, 7, "member"), wantStatus: http.StatusForbidden},
		{name: "reindex as admin", method: http.MethodPost, path: "/api/v1/search/reindex/task", auth: bearer(t, 1, "admin"), wantStatus: http.StatusAccepted},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(tt.method, tt.path, nil)
			if tt.auth != "" {
				req.Header.Set("Authorization", tt.auth)
			}
			rec := httptest.NewRecorder()
			srv.Handler().ServeHTTP(rec, req)
			assert.Equal(t, tt.wantStatus, rec.Code)
		})
	}

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Len(t, sink.published, 1)
	assert.Equal(t, events.EventBulkReindex, sink.published[0].EventType)
}

func TestSecurityHeaders(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/search/tasks?q=budget", nil)
	req.Header.Set("Authorization", bearer(t, 7))
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)

	assert.Equal(t, "no-store, private", rec.Header().Get("Cache-Control"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}
