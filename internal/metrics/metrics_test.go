package metrics

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
)

type fakePool struct{ running, waiting int }

func (p fakePool) Running() int { return p.running }
func (p fakePool) Waiting() int { return p.waiting }

func scrape(t *testing.T, m *Metrics) string {
	t.Helper()
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	return string(body)
}

func TestPoolGauges(t *testing.T) {
	m := New(fakePool{running: 3, waiting: 2})
	out := scrape(t, m)
	require.Contains(t, out, "rosterql_pool_running 3")
	require.Contains(t, out, "rosterql_pool_waiting 2")
	require.Contains(t, out, "go_goroutines")
}

func TestSubscribe(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	m := New(nil)
	unsubscribe := m.Subscribe()
	defer unsubscribe()

	ctx := context.Background()
	req := httptest.NewRequest(http.MethodPost, "/graphql", nil)
	req.Pattern = "POST /graphql"
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 200, Duration: 5 * time.Millisecond})
	eventbus.Publish(ctx, events.HTTPFinish{Request: httptest.NewRequest(http.MethodGet, "/nope", nil), Status: 404})
	eventbus.Publish(ctx, events.GraphQLFinish{Valid: true, OperationType: "query"})
	eventbus.Publish(ctx, events.GraphQLFinish{Valid: true, OperationType: "mutation", Errors: []string{"x"}})
	eventbus.Publish(ctx, events.GraphQLFinish{Valid: false, Errors: []string{"bad"}})
	eventbus.Publish(ctx, events.PoolRejected{})
	eventbus.Publish(ctx, events.PoolRejected{})
	eventbus.Publish(ctx, events.PoolPanic{Value: "x"})
	eventbus.Publish(ctx, events.StoreQuery{Name: "teams_by_id"})
	eventbus.Publish(ctx, events.StoreQuery{Name: "teams_by_id"})
	eventbus.Publish(ctx, events.StoreQuery{Name: "members", Err: errors.New("locked")})

	out := scrape(t, m)
	require.Contains(t, out, `rosterql_http_requests_total{method="POST",path="POST /graphql",status="200"} 1`)
	require.Contains(t, out, `rosterql_http_requests_total{method="GET",path="unmatched",status="404"} 1`)
	require.Contains(t, out, `rosterql_http_request_duration_seconds_count{method="POST",path="POST /graphql"} 1`)
	require.Contains(t, out, `rosterql_graphql_operations_total{status="ok",type="query"} 1`)
	require.Contains(t, out, `rosterql_graphql_operations_total{status="error",type="mutation"} 1`)
	require.Contains(t, out, `rosterql_graphql_operations_total{status="error",type="invalid"} 1`)
	require.Contains(t, out, "rosterql_pool_rejections_total 2")
	require.Contains(t, out, "rosterql_pool_panics_total 1")
	require.Contains(t, out, `rosterql_store_queries_total{query="teams_by_id",status="ok"} 2`)
	require.Contains(t, out, `rosterql_store_queries_total{query="members",status="error"} 1`)
	require.NotContains(t, out, "rosterql_pool_running")
}
