// Package reqid carries a per-request identifier on the context.
package reqid

import (
	"context"
	"sync/atomic"

	"github.com/google/uuid"
)

// Header carries request IDs in both directions.
const Header = "X-Request-ID"

type (
	ctxKey   struct{}
	tokenKey struct{}
)

var tokens atomic.Uint64

// NewContext stores a fresh random ID on parent.
func NewContext(parent context.Context) (context.Context, string) {
	return WithID(parent, uuid.NewString())
}

// WithID stores id on parent and returns it. An id that does not parse as a
// UUID is replaced with a fresh one. The context also gets a new Token.
func WithID(parent context.Context, id string) (context.Context, string) {
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.NewString()
	}
	ctx := context.WithValue(parent, ctxKey{}, id)
	return context.WithValue(ctx, tokenKey{}, tokens.Add(1)), id
}

// Token returns the number minted for the request on ctx. IDs may come from
// clients and repeat across requests; tokens are unique within the process.
func Token(ctx context.Context) (uint64, bool) {
	t, ok := ctx.Value(tokenKey{}).(uint64)
	return t, ok
}

// FromContext returns the ID stored on ctx, if any.
func FromContext(ctx context.Context) (string, bool) {
	id, ok := ctx.Value(ctxKey{}).(string)
	return id, ok
}
