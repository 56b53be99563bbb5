package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	executor "github.com/hanpama/rosterql/internal/executor"
	graph "github.com/hanpama/rosterql/internal/graph"
	logging "github.com/hanpama/rosterql/internal/logging"
	workerpool "github.com/hanpama/rosterql/internal/workerpool"
)

// Handler is the GraphQL request dispatcher. It decodes a request on the
// connection goroutine, runs the execution on the worker pool and writes
// the outcome. Schema and Context are shared by every request and never
// modified.
type Handler struct {
	schema  *graph.Schema
	gctx    graph.Context
	pool    *workerpool.Pool
	limiter *rate.Limiter
	opt     Options
}

// Options tune a Handler. The zero value serves without limits except a
// 1 MiB body cap.
type Options struct {
	// ExecTimeout bounds the wait for an execution, queueing included. A
	// queued request is dropped; a running one keeps going. 0 waits until
	// the client goes away.
	ExecTimeout time.Duration
	// Pretty indents response bodies.
	Pretty bool
	// MaxBodyBytes caps the request body; larger bodies get 413.
	MaxBodyBytes int64
	// CORSOrigins lists the origins allowed to call the endpoint from a
	// browser. "*" allows any. Empty sends no CORS headers.
	CORSOrigins []string
	// RateLimit admits this many requests per second on average, with
	// bursts of RateBurst. 0 admits everything.
	RateLimit float64
	RateBurst int
}

type Option func(*Options)

func WithExecTimeout(d time.Duration) Option { return func(o *Options) { o.ExecTimeout = d } }
func WithPretty() Option                     { return func(o *Options) { o.Pretty = true } }
func WithMaxBodyBytes(n int64) Option        { return func(o *Options) { o.MaxBodyBytes = n } }
func WithCORS(origins ...string) Option      { return func(o *Options) { o.CORSOrigins = origins } }
func WithRateLimit(perSecond float64, burst int) Option {
	return func(o *Options) { o.RateLimit, o.RateBurst = perSecond, burst }
}

// New creates a dispatcher executing against s with gctx on pool.
func New(s *graph.Schema, gctx graph.Context, pool *workerpool.Pool, opts ...Option) (*Handler, error) {
	if s == nil {
		return nil, errors.New("server: nil schema")
	}
	if pool == nil {
		return nil, errors.New("server: nil worker pool")
	}
	h := &Handler{schema: s, gctx: gctx, pool: pool, opt: Options{MaxBodyBytes: 1 << 20}}
	for _, apply := range opts {
		apply(&h.opt)
	}
	if h.opt.RateLimit > 0 {
		h.limiter = rate.NewLimiter(rate.Limit(h.opt.RateLimit), max(h.opt.RateBurst, 1))
	}
	return h, nil
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	allowCORS(w, r, h.opt.CORSOrigins)
	if r.Method == http.MethodOptions {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", "POST, OPTIONS")
		writeError(w, http.StatusMethodNotAllowed, "method not allowed", h.opt.Pretty)
		return
	}
	if h.limiter != nil && !h.limiter.Allow() {
		writeError(w, http.StatusTooManyRequests, "rate limit exceeded", h.opt.Pretty)
		return
	}

	req, rerr := parseRequest(r, h.opt.MaxBodyBytes)
	if rerr != nil {
		writeError(w, rerr.status, rerr.message, h.opt.Pretty)
		return
	}

	// The deadline covers the queue wait as well as the execution.
	waitCtx := ctx
	if h.opt.ExecTimeout > 0 {
		var cancel context.CancelFunc
		waitCtx, cancel = context.WithTimeout(ctx, h.opt.ExecTimeout)
		defer cancel()
	}

	gctx := h.gctx
	future, err := workerpool.Submit(waitCtx, h.pool, func() *executor.ExecutionResult {
		return h.schema.Execute(ctx, gctx, graph.Request{
			Query:         req.Query,
			OperationName: req.OperationName,
			Variables:     req.Variables,
		})
	})
	if err != nil {
		h.fail(ctx, w, "submit", err)
		return
	}
	res, err := future.Await(waitCtx)
	if err != nil {
		h.fail(ctx, w, "await", err)
		return
	}

	body, err := marshal(res, h.opt.Pretty)
	if err != nil {
		h.fail(ctx, w, "encode", err)
		return
	}
	writeJSON(w, http.StatusOK, body)
}

// fail answers 500 with an opaque body. The cause is only logged.
func (h *Handler) fail(ctx context.Context, w http.ResponseWriter, stage string, err error) {
	logging.FromContext(ctx).ErrorContext(ctx, "graphql request failed", "stage", stage, "error", err)
	writeJSON(w, http.StatusInternalServerError, internalErrorBody)
}
