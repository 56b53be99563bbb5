package server

import (
	"bytes"
	"html/template"
	"net/http"
	"time"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	reqid "github.com/hanpama/rosterql/internal/reqid"
)

// Routes lists what NewMux mounts.
type Routes struct {
	// GraphQL serves POST /graphql.
	GraphQL http.Handler
	// Endpoint is the absolute URL the GraphiQL page sends queries to.
	Endpoint string
	// Metrics serves GET /metrics when set.
	Metrics http.Handler
}

// NewMux builds the acceptor's routing table. Every route is instrumented
// with a request ID and HTTP events.
func NewMux(rt Routes) (*http.ServeMux, error) {
	page, err := renderGraphiQL(rt.Endpoint)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("POST /graphql", instrument(rt.GraphQL))
	mux.Handle("OPTIONS /graphql", instrument(rt.GraphQL))
	mux.Handle("GET /graphiql", instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write(page)
	})))
	mux.Handle("GET /{$}", instrument(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("Hello world!"))
	})))
	if rt.Metrics != nil {
		mux.Handle("GET /metrics", rt.Metrics)
	}
	return mux, nil
}

// statusRecorder remembers what the wrapped handler wrote.
type statusRecorder struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (s *statusRecorder) WriteHeader(code int) {
	if s.status == 0 {
		s.status = code
	}
	s.ResponseWriter.WriteHeader(code)
}

func (s *statusRecorder) Write(b []byte) (int, error) {
	if s.status == 0 {
		s.status = http.StatusOK
	}
	n, err := s.ResponseWriter.Write(b)
	s.bytes += n
	return n, err
}

func (s *statusRecorder) Unwrap() http.ResponseWriter { return s.ResponseWriter }

// instrument assigns the request ID, echoes it in the response and publishes
// HTTPStart/HTTPFinish around next. A well-formed X-Request-ID from the
// client is kept.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx, rid := reqid.WithID(r.Context(), r.Header.Get(reqid.Header))
		r = r.WithContext(ctx)
		w.Header().Set(reqid.Header, rid)

		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w}
		eventbus.Publish(ctx, events.HTTPStart{Request: r})
		defer func() {
			status := rec.status
			if status == 0 {
				status = http.StatusOK
			}
			eventbus.Publish(ctx, events.HTTPFinish{Request: r, Status: status, Bytes: rec.bytes, Duration: time.Since(start)})
		}()
		next.ServeHTTP(rec, r)
	})
}

var graphiqlTemplate = template.Must(template.New("graphiql").Parse(`<!DOCTYPE html>
<html lang="en">
<head>
  <meta charset="utf-8">
  <title>GraphiQL</title>
  <style>body { margin: 0; height: 100vh; } #graphiql { height: 100vh; }</style>
  <link rel="stylesheet" href="https://unpkg.com/graphiql@3/graphiql.min.css">
  <script crossorigin src="https://unpkg.com/react@18/umd/react.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/react-dom@18/umd/react-dom.production.min.js"></script>
  <script crossorigin src="https://unpkg.com/graphiql@3/graphiql.min.js"></script>
</head>
<body>
  <div id="graphiql" data-endpoint="{{.}}">Loading...</div>
  <script>
    var endpoint = {{.}};
    var fetcher = GraphiQL.createFetcher({ url: endpoint });
    ReactDOM.createRoot(document.getElementById('graphiql')).render(
      React.createElement(GraphiQL, { fetcher: fetcher })
    );
  </script>
</body>
</html>
`))

func renderGraphiQL(endpoint string) ([]byte, error) {
	var b bytes.Buffer
	if err := graphiqlTemplate.Execute(&b, endpoint); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}
