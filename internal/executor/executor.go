package executor

import (
	"context"
	"errors"
	"fmt"
	"reflect"

	language "github.com/hanpama/rosterql/internal/language"
	schema "github.com/hanpama/rosterql/internal/schema"
)

// Executor executes validated GraphQL documents against a Schema, delegating
// field resolution to a Runtime. An Executor holds no per-request state and
// may be shared by any number of goroutines.
type Executor struct {
	runtime Runtime
	schema  *schema.Schema
}

func NewExecutor(runtime Runtime, schema *schema.Schema) *Executor {
	return &Executor{runtime: runtime, schema: schema}
}

// executionState is everything one ExecuteRequest call accumulates.
type executionState struct {
	ctx            context.Context
	runtime        Runtime
	schema         *schema.Schema
	document       *language.QueryDocument
	variableValues map[string]any

	errors     []GraphQLError
	errored    map[string]bool          // paths that already carry an error
	prefetched map[string]ResolveResult // batched field values by path
}

// ExecuteRequest runs the selected operation of document. The document is
// expected to have been validated against the schema already.
func (e *Executor) ExecuteRequest(
	ctx context.Context,
	document *language.QueryDocument,
	operationName string,
	variableValues map[string]any,
	initialValue any,
) *ExecutionResult {
	fail := func(format string, args ...any) *ExecutionResult {
		return &ExecutionResult{Errors: []GraphQLError{{Message: fmt.Sprintf(format, args...)}}}
	}

	operation, err := selectOperation(document, operationName)
	if err != nil {
		return fail("%s", err)
	}
	vars, err := coerceVariableValues(e.schema, operation, variableValues)
	if err != nil {
		return fail("%s", err)
	}

	var root *schema.Type
	switch operation.Operation {
	case language.Query:
		root = e.schema.RootQuery()
	case language.Mutation:
		root = e.schema.RootMutation()
	case language.Subscription:
		return fail("subscriptions are not supported over this transport")
	default:
		return fail("unsupported operation type: %s", operation.Operation)
	}
	if root == nil {
		return fail("schema has no root type for %s operations", operation.Operation)
	}

	s := &executionState{
		ctx:            ctx,
		runtime:        e.runtime,
		schema:         e.schema,
		document:       document,
		variableValues: vars,
		errored:        map[string]bool{},
		prefetched:     map[string]ResolveResult{},
	}
	data, ok := s.selectionSet(root, operation.SelectionSet, initialValue, Path{})
	res := &ExecutionResult{Errors: s.errors}
	if ok {
		res.Data = data
	}
	return res
}

// selectionSet executes every collected field of set against source, in
// document order. ok is false when a Non-Null field came back null; the
// caller then nulls this whole object.
func (s *executionState) selectionSet(objectType *schema.Type, set language.SelectionSet, source any, path Path) (map[string]any, bool) {
	groups := collectFields(s, objectType, set)
	out := make(map[string]any, len(groups))

	for _, g := range groups {
		fieldPath := appendPath(path, g.key)
		name := g.nodes[0].Name

		if name == "__typename" {
			out[g.key] = objectType.Name
			continue
		}
		def := objectType.FieldByName(name)
		if def == nil {
			s.addError(g.nodes, fieldPath, "Cannot query field %q on type %q.", name, objectType.Name)
			continue
		}

		v, ok := s.field(objectType, source, def, g.nodes, fieldPath)
		if !ok {
			return nil, false
		}
		out[g.key] = v
	}
	return out, true
}

func (s *executionState) field(objectType *schema.Type, source any, def *schema.Field, nodes []*language.Field, path Path) (any, bool) {
	args, err := s.arguments(def, nodes[0].Arguments)
	if err != nil {
		s.addError(nodes, path, "%s", err)
		return nil, !schema.IsNonNull(def.Type)
	}

	var raw any
	if r, ok := s.prefetched[path.String()]; ok {
		delete(s.prefetched, path.String())
		raw, err = r.Value, r.Error
	} else {
		raw, err = s.runtime.ResolveField(s.ctx, objectType.Name, def.Name, source, args)
	}
	if err != nil {
		s.addResolverError(err, nodes, path)
		return nil, !schema.IsNonNull(def.Type)
	}
	return s.complete(def.Type, nodes, raw, path)
}

// complete shapes a resolved value to t. ok is false when the position is
// null in violation of a Non-Null type; the null then moves up to the
// nearest nullable parent. The error is recorded here.
func (s *executionState) complete(t *schema.TypeRef, nodes []*language.Field, raw any, path Path) (any, bool) {
	nonNull := schema.IsNonNull(t)
	if nonNull {
		t = schema.Unwrap(t)
	}

	var v any
	ok := true
	if !isNullish(raw) {
		v, ok = s.completeInner(t, nodes, raw, path)
	}

	switch {
	case !nonNull:
		// nullable positions absorb a propagated null
		return v, true
	case !ok:
		return nil, false
	case v == nil:
		if !s.errored[path.String()] {
			s.addError(nodes, path, "Cannot return null for non-nullable field %s.", path)
		}
		return nil, false
	}
	return v, true
}

// completeInner completes a non-null value against a type without the
// outer Non-Null wrapper.
func (s *executionState) completeInner(t *schema.TypeRef, nodes []*language.Field, raw any, path Path) (any, bool) {
	if schema.IsList(t) {
		return s.completeList(schema.Unwrap(t), nodes, raw, path)
	}

	name := schema.NamedTypeOf(t)
	typ := s.schema.Types[name]
	if typ == nil {
		s.addError(nodes, path, "Unknown type: %s", name)
		return nil, false
	}

	switch typ.Kind {
	case schema.TypeKindScalar, schema.TypeKindEnum:
		v, err := s.runtime.SerializeLeafValue(s.ctx, name, raw)
		if err != nil {
			s.addError(nodes, path, "%s", err)
			return nil, false
		}
		return v, true
	case schema.TypeKindObject:
		return s.completeObject(typ, nodes, raw, path)
	case schema.TypeKindInterface, schema.TypeKindUnion:
		concrete, err := s.runtime.ResolveType(s.ctx, name, raw)
		if err != nil {
			s.addError(nodes, path, "%s", err)
			return nil, false
		}
		obj := s.schema.Types[concrete]
		if obj == nil || obj.Kind != schema.TypeKindObject || !s.schema.IsPossibleType(name, concrete) {
			s.addError(nodes, path, "Abstract type %s must resolve to an Object type at runtime. Got: %s", name, concrete)
			return nil, false
		}
		return s.completeObject(obj, nodes, raw, path)
	}
	s.addError(nodes, path, "Cannot complete value of unexpected type: %s", typ.Kind)
	return nil, false
}

func (s *executionState) completeList(item *schema.TypeRef, nodes []*language.Field, raw any, path Path) (any, bool) {
	items, ok := raw.([]any)
	if !ok {
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			s.addError(nodes, path, "Expected list value, got %T", raw)
			return nil, false
		}
		items = make([]any, rv.Len())
		for i := range items {
			items[i] = rv.Index(i).Interface()
		}
	}

	s.prefetch(item, nodes, items, path)

	out := make([]any, len(items))
	for i, it := range items {
		v, ok := s.complete(item, nodes, it, appendPath(path, i))
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// prefetch resolves the batched fields of a list of objects, one
// BatchResolve call per field, and parks the results for field to pick up.
func (s *executionState) prefetch(item *schema.TypeRef, nodes []*language.Field, items []any, path Path) {
	br, ok := s.runtime.(BatchRuntime)
	if !ok || len(items) == 0 {
		return
	}
	if schema.IsNonNull(item) {
		item = schema.Unwrap(item)
	}
	if schema.IsList(item) {
		return
	}
	obj := s.schema.Types[schema.NamedTypeOf(item)]
	if obj == nil || obj.Kind != schema.TypeKindObject {
		return
	}

	for _, g := range collectFields(s, obj, mergedSelections(nodes)) {
		def := obj.FieldByName(g.nodes[0].Name)
		if def == nil || !br.Batched(obj.Name, def.Name) {
			continue
		}
		args, err := s.arguments(def, g.nodes[0].Arguments)
		if err != nil {
			// reported when the field itself runs
			continue
		}

		var (
			tasks []ResolveTask
			at    []string
		)
		for i, it := range items {
			if isNullish(it) {
				continue
			}
			tasks = append(tasks, ResolveTask{ObjectType: obj.Name, Field: def.Name, Source: it, Args: args})
			at = append(at, appendPath(appendPath(path, i), g.key).String())
		}
		if len(tasks) == 0 {
			continue
		}
		results := br.BatchResolve(s.ctx, tasks)
		for i, key := range at {
			if i >= len(results) {
				s.prefetched[key] = ResolveResult{Error: fmt.Errorf("batch for %s.%s returned %d results for %d sources", obj.Name, def.Name, len(results), len(tasks))}
				continue
			}
			s.prefetched[key] = results[i]
		}
	}
}

func mergedSelections(nodes []*language.Field) language.SelectionSet {
	var sub language.SelectionSet
	for _, f := range nodes {
		sub = append(sub, f.SelectionSet...)
	}
	return sub
}

// completeObject executes the merged sub-selections of every node.
func (s *executionState) completeObject(objectType *schema.Type, nodes []*language.Field, raw any, path Path) (any, bool) {
	m, ok := s.selectionSet(objectType, mergedSelections(nodes), raw, path)
	if !ok {
		return nil, false
	}
	return m, true
}

func (s *executionState) addError(nodes []*language.Field, path Path, format string, args ...any) {
	s.record(GraphQLError{Message: fmt.Sprintf(format, args...)}, nodes, path)
}

// addResolverError records err, keeping the extensions it carries.
func (s *executionState) addResolverError(err error, nodes []*language.Field, path Path) {
	e := GraphQLError{Message: err.Error()}
	var ext extensionsError
	if errors.As(err, &ext) {
		e.Extensions = ext.Extensions()
	}
	s.record(e, nodes, path)
}

func (s *executionState) record(e GraphQLError, nodes []*language.Field, path Path) {
	if len(nodes) > 0 && nodes[0].Position != nil {
		e.Locations = []Location{{Line: nodes[0].Position.Line, Column: nodes[0].Position.Column}}
	}
	e.Path = path
	s.errors = append(s.errors, e)
	s.errored[path.String()] = true
}

// selectOperation picks the operation named operationName, or the only one
// when no name is given.
func selectOperation(document *language.QueryDocument, operationName string) (*language.OperationDefinition, error) {
	if operationName != "" {
		if op := document.Operations.ForName(operationName); op != nil {
			return op, nil
		}
		return nil, fmt.Errorf("unknown operation named %q", operationName)
	}
	switch len(document.Operations) {
	case 0:
		return nil, errors.New("document contains no operations")
	case 1:
		return document.Operations[0], nil
	}
	return nil, errors.New("operationName is required when the document contains multiple operations")
}

func appendPath(path Path, elem PathElement) Path {
	out := make(Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, elem)
}

// isNullish reports nil and typed nil values.
func isNullish(v any) bool {
	if v == nil {
		return true
	}
	switch rv := reflect.ValueOf(v); rv.Kind() {
	case reflect.Interface, reflect.Ptr, reflect.Slice, reflect.Map, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
