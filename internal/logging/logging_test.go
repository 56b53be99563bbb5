package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	reqid "github.com/hanpama/rosterql/internal/reqid"
)

func TestNew(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "warn", "json")
	require.NoError(t, err)
	l.Info("hidden")
	l.Warn("shown", "k", 1)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	require.Equal(t, "shown", rec["msg"])
	require.Equal(t, float64(1), rec["k"])

	_, err = New(&buf, "loud", "json")
	require.Error(t, err)
	_, err = New(&buf, "info", "xml")
	require.Error(t, err)
}

func TestParseLevel(t *testing.T) {
	l, err := ParseLevel("DEBUG")
	require.NoError(t, err)
	require.Equal(t, slog.LevelDebug, l)
}

func TestSubscribe(t *testing.T) {
	eventbus.Use(eventbus.New())
	t.Cleanup(func() { eventbus.Use(nil) })

	var buf bytes.Buffer
	l, err := New(&buf, "info", "json")
	require.NoError(t, err)
	unsubscribe := Subscribe(l)

	ctx, rid := reqid.NewContext(context.Background())
	req := httptest.NewRequest("POST", "/graphql", nil)
	eventbus.Publish(ctx, events.HTTPFinish{Request: req, Status: 500, Bytes: 12, Duration: time.Millisecond})
	eventbus.Publish(ctx, events.PoolRejected{Running: 2, Waiting: 1, Cap: 2})
	eventbus.Publish(ctx, events.PoolPanic{Value: "boom", Stack: []byte("stack")})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)

	var access map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &access))
	require.Equal(t, "http request", access["msg"])
	require.Equal(t, "WARN", access["level"])
	require.Equal(t, rid, access["request_id"])
	require.Equal(t, "/graphql", access["path"])
	require.Equal(t, float64(500), access["status"])

	require.Contains(t, lines[1], "worker pool saturated")
	require.Contains(t, lines[2], "boom")

	unsubscribe()
	buf.Reset()
	eventbus.Publish(ctx, events.PoolRejected{})
	require.Empty(t, buf.String())
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l, err := New(&buf, "info", "text")
	require.NoError(t, err)
	prev := slog.Default()
	slog.SetDefault(l)
	t.Cleanup(func() { slog.SetDefault(prev) })

	ctx, rid := reqid.NewContext(context.Background())
	FromContext(ctx).Info("hello")
	require.Contains(t, buf.String(), "request_id="+rid)
}
