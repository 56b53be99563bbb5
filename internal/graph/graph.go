// Package graph binds a GraphQL schema to resolvers and executes requests
// against it.
//
// A *Schema is built once at startup with Build and is immutable afterwards;
// any number of goroutines may call Execute concurrently. Per-request state
// travels in the context.Context handed to Execute and in the Context value,
// which resolvers read with ContextFrom.
package graph

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/formatter"

	eventbus "github.com/hanpama/rosterql/internal/eventbus"
	events "github.com/hanpama/rosterql/internal/events"
	executor "github.com/hanpama/rosterql/internal/executor"
	introspection "github.com/hanpama/rosterql/internal/introspection"
	language "github.com/hanpama/rosterql/internal/language"
	schema "github.com/hanpama/rosterql/internal/schema"
	store "github.com/hanpama/rosterql/internal/store"
)

// Context is the process-wide resource handle made available to resolvers.
// It is copied into every execution; the Store it points to is a connection
// pool and must not be retained by resolvers beyond the execution.
type Context struct {
	Store *store.Store
}

type contextKey struct{}

// WithContext returns a copy of ctx carrying gctx.
func WithContext(ctx context.Context, gctx Context) context.Context {
	return context.WithValue(ctx, contextKey{}, gctx)
}

// ContextFrom returns the Context of the current execution.
func ContextFrom(ctx context.Context) (Context, bool) {
	gctx, ok := ctx.Value(contextKey{}).(Context)
	return gctx, ok
}

// Request is a decoded GraphQL request.
type Request struct {
	Query         string
	OperationName string
	Variables     map[string]any
}

// Schema is a compiled, immutable GraphQL schema with its resolver bindings.
type Schema struct {
	def   *language.SchemaDefinition
	types *schema.Schema
	exec  *executor.Executor
}

type options struct {
	name          string
	introspection bool
	batches       map[string]BatchResolver
	typeResolvers map[string]TypeResolver
}

type Option func(*options)

// WithIntrospection toggles the __schema and __type root fields. Enabled by default.
func WithIntrospection(enable bool) Option { return func(o *options) { o.introspection = enable } }

// WithSourceName sets the name reported in SDL error locations.
func WithSourceName(name string) Option { return func(o *options) { o.name = name } }

// WithBatchResolver binds "Type.field" to fn. Inside a list of Type the field
// is resolved for every item with one call; elsewhere fn sees a single entry.
// A key must not also appear in the Resolvers passed to Build.
func WithBatchResolver(key string, fn BatchResolver) Option {
	return func(o *options) { o.batches[key] = fn }
}

// WithTypeResolver registers how values of an interface or union are mapped
// to their concrete object type.
func WithTypeResolver(abstractType string, fn TypeResolver) Option {
	return func(o *options) { o.typeResolvers[abstractType] = fn }
}

// Build compiles sdl and binds resolvers to it. Every resolver key must name
// an existing "Type.field"; fields without a resolver use the default property
// resolver.
func Build(sdl string, resolvers Resolvers, opts ...Option) (*Schema, error) {
	o := options{
		name:          "schema.graphql",
		introspection: true,
		batches:       map[string]BatchResolver{},
		typeResolvers: map[string]TypeResolver{},
	}
	for _, f := range opts {
		f(&o)
	}

	types, def, err := schema.BuildFromSDL(o.name, sdl)
	if err != nil {
		return nil, fmt.Errorf("build schema: %w", err)
	}
	if err := checkBindings(types, resolvers, o.batches, o.typeResolvers); err != nil {
		return nil, err
	}

	var rt executor.Runtime = &runtime{
		resolvers:     resolvers.clone(),
		batches:       o.batches,
		typeResolvers: o.typeResolvers,
		types:         types,
	}
	execTypes := types
	if o.introspection {
		w := introspection.Wrap(rt, types)
		rt, execTypes = w.Runtime, w.Schema
	}

	return &Schema{
		def:   def,
		types: types,
		exec:  executor.NewExecutor(rt, execTypes),
	}, nil
}

// MustBuild is like Build but panics on error.
func MustBuild(sdl string, resolvers Resolvers, opts ...Option) *Schema {
	s, err := Build(sdl, resolvers, opts...)
	if err != nil {
		panic(err)
	}
	return s
}

// Types returns the executable type graph.
func (s *Schema) Types() *schema.Schema { return s.types }

// SDL renders the schema without builtin definitions.
func (s *Schema) SDL() string {
	def := *s.def
	if def.Query != nil {
		// gqlparser attaches the introspection meta fields to the query root.
		q := *def.Query
		q.Fields = nil
		for _, f := range def.Query.Fields {
			if !strings.HasPrefix(f.Name, "__") {
				q.Fields = append(q.Fields, f)
			}
		}
		def.Types = make(map[string]*ast.Definition, len(s.def.Types))
		for name, t := range s.def.Types {
			def.Types[name] = t
		}
		def.Types[q.Name] = &q
		def.Query = &q
	}

	var b strings.Builder
	formatter.NewFormatter(&b).FormatSchema(&def)
	return b.String()
}

// Execute parses, validates and runs req. Query-level problems (syntax,
// validation, resolver errors) are reported inside the result; Execute never
// returns a transport error. A panicking resolver is not recovered here.
func (s *Schema) Execute(ctx context.Context, gctx Context, req Request) *executor.ExecutionResult {
	start := time.Now()
	ctx = WithContext(ctx, gctx)

	doc, errs := language.LoadQuery(s.def, req.Query)
	if len(errs) > 0 {
		res := &executor.ExecutionResult{Errors: fromGQLErrors(errs)}
		eventbus.Publish(ctx, events.GraphQLFinish{
			Query:         req.Query,
			OperationName: req.OperationName,
			Errors:        messages(res.Errors),
			Duration:      time.Since(start),
		})
		return res
	}

	opType := ""
	if op := selectOperation(doc, req.OperationName); op != nil {
		opType = string(op.Operation)
	}
	eventbus.Publish(ctx, events.GraphQLStart{Query: req.Query, OperationName: req.OperationName, OperationType: opType})

	vars := req.Variables
	if vars == nil {
		vars = map[string]any{}
	}
	res := s.exec.ExecuteRequest(ctx, doc, req.OperationName, vars, nil)

	eventbus.Publish(ctx, events.GraphQLFinish{
		Query:         req.Query,
		OperationName: req.OperationName,
		OperationType: opType,
		Valid:         true,
		Errors:        messages(res.Errors),
		Duration:      time.Since(start),
	})
	return res
}

func selectOperation(doc *language.QueryDocument, name string) *language.OperationDefinition {
	if name != "" {
		return doc.Operations.ForName(name)
	}
	if len(doc.Operations) == 1 {
		return doc.Operations[0]
	}
	return nil
}

// checkBindings rejects resolvers for fields or types the schema lacks.
func checkBindings(types *schema.Schema, resolvers Resolvers, batches map[string]BatchResolver, typeResolvers map[string]TypeResolver) error {
	var unknown []string
	exists := func(key string) bool {
		typeName, fieldName, ok := strings.Cut(key, ".")
		t := types.Types[typeName]
		return ok && t != nil && t.FieldByName(fieldName) != nil
	}
	for key := range resolvers {
		if !exists(key) {
			unknown = append(unknown, key)
		}
	}
	for key := range batches {
		if !exists(key) {
			unknown = append(unknown, key)
		}
		if resolvers[key] != nil {
			return fmt.Errorf("%s is bound both as a resolver and as a batch resolver", key)
		}
	}
	for name := range typeResolvers {
		t := types.Types[name]
		if t == nil || (t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion) {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return fmt.Errorf("resolvers bound to unknown schema members: %s", strings.Join(unknown, ", "))
	}
	return nil
}

func fromGQLErrors(list language.ErrorList) []executor.GraphQLError {
	out := make([]executor.GraphQLError, len(list))
	for i, e := range list {
		ge := executor.GraphQLError{Message: e.Message, Extensions: e.Extensions}
		for _, loc := range e.Locations {
			ge.Locations = append(ge.Locations, executor.Location{Line: loc.Line, Column: loc.Column})
		}
		out[i] = ge
	}
	return out
}

func messages(errs []executor.GraphQLError) []string {
	if len(errs) == 0 {
		return nil
	}
	out := make([]string, len(errs))
	for i, e := range errs {
		out[i] = e.Error()
	}
	return out
}
