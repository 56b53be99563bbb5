package executor

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ResolverFunc resolves one field for a StubRuntime.
type ResolverFunc func(ctx context.Context, source any, args map[string]any) (any, error)

// Returns is a ResolverFunc that always yields v.
func Returns(v any) ResolverFunc {
	return func(context.Context, any, map[string]any) (any, error) { return v, nil }
}

// Fails is a ResolverFunc that always yields err.
func Fails(err error) ResolverFunc {
	return func(context.Context, any, map[string]any) (any, error) { return nil, err }
}

// StubRuntime is a Runtime for tests. Resolvers are keyed by "Type.field";
// a field without one reads the same key from a map[string]any source.
// Abstract types resolve through the source's "__typename" entry unless
// TypeOf is set. Leaf values pass through unless Serialize is set.
//
// Fields with an entry in Batches are batched; their calls are recorded as
// "Type.field*n" for a batch of n tasks.
//
// Set the exported fields before executing.
type StubRuntime struct {
	Resolvers map[string]ResolverFunc
	Batches   map[string]func(ctx context.Context, tasks []ResolveTask) []ResolveResult
	TypeOf    func(value any) (string, error)
	Serialize func(typeName string, value any) (any, error)

	mu    sync.Mutex
	calls []string
}

// NewStubRuntime returns a StubRuntime using resolvers.
func NewStubRuntime(resolvers map[string]ResolverFunc) *StubRuntime {
	if resolvers == nil {
		resolvers = map[string]ResolverFunc{}
	}
	return &StubRuntime{Resolvers: resolvers}
}

// Calls returns the "Type.field" coordinates resolved so far and forgets them.
func (s *StubRuntime) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.calls
	s.calls = nil
	return out
}

func (s *StubRuntime) ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error) {
	coord := objectType + "." + field
	s.mu.Lock()
	s.calls = append(s.calls, coord)
	s.mu.Unlock()

	if fn, ok := s.Resolvers[coord]; ok {
		return fn(ctx, source, args)
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}
	return nil, nil
}

func (s *StubRuntime) Batched(objectType, field string) bool {
	_, ok := s.Batches[objectType+"."+field]
	return ok
}

func (s *StubRuntime) BatchResolve(ctx context.Context, tasks []ResolveTask) []ResolveResult {
	coord := tasks[0].ObjectType + "." + tasks[0].Field
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf("%s*%d", coord, len(tasks)))
	s.mu.Unlock()
	return s.Batches[coord](ctx, tasks)
}

func (s *StubRuntime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if s.TypeOf != nil {
		return s.TypeOf(value)
	}
	if m, ok := value.(map[string]any); ok {
		if name, ok := m["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", errors.New("value carries no __typename")
}

func (s *StubRuntime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	if s.Serialize != nil {
		return s.Serialize(typeName, value)
	}
	return value, nil
}
