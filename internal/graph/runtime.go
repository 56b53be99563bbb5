package graph

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"

	executor "github.com/hanpama/rosterql/internal/executor"
	schema "github.com/hanpama/rosterql/internal/schema"
)

// ResolveParams is what a Resolver receives for one field instance.
type ResolveParams struct {
	ObjectType string
	Field      string
	Source     any
	Args       map[string]any
	Context    Context
}

// Resolver produces the value of one field.
type Resolver func(ctx context.Context, p ResolveParams) (any, error)

// BatchResolver produces one field for many sources at once, returning one
// value per params entry in the same order. A returned error fails every
// entry; a value that is itself an error fails only its entry.
type BatchResolver func(ctx context.Context, ps []ResolveParams) ([]any, error)

// TypeResolver names the concrete object type of an abstract value.
type TypeResolver func(ctx context.Context, value any) (string, error)

// Resolvers is the dispatch table keyed by "Type.field".
type Resolvers map[string]Resolver

func (r Resolvers) clone() Resolvers {
	out := make(Resolvers, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// Typed is implemented by values that know their GraphQL object type.
type Typed interface {
	GraphQLType() string
}

type runtime struct {
	resolvers     Resolvers
	batches       map[string]BatchResolver
	typeResolvers map[string]TypeResolver
	types         *schema.Schema
}

func (r *runtime) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	key := objectType + "." + field
	gctx, _ := ContextFrom(ctx)
	p := ResolveParams{ObjectType: objectType, Field: field, Source: source, Args: args, Context: gctx}
	if fn := r.resolvers[key]; fn != nil {
		return fn(ctx, p)
	}
	if fn := r.batches[key]; fn != nil {
		// a lone instance is a batch of one
		res := r.runBatch(ctx, fn, []ResolveParams{p})
		return res[0].Value, res[0].Error
	}
	return DefaultResolve(source, field)
}

func (r *runtime) Batched(objectType, field string) bool {
	return r.batches[objectType+"."+field] != nil
}

func (r *runtime) BatchResolve(ctx context.Context, tasks []executor.ResolveTask) []executor.ResolveResult {
	gctx, _ := ContextFrom(ctx)
	ps := make([]ResolveParams, len(tasks))
	for i, task := range tasks {
		ps[i] = ResolveParams{ObjectType: task.ObjectType, Field: task.Field, Source: task.Source, Args: task.Args, Context: gctx}
	}
	return r.runBatch(ctx, r.batches[tasks[0].ObjectType+"."+tasks[0].Field], ps)
}

func (r *runtime) runBatch(ctx context.Context, fn BatchResolver, ps []ResolveParams) []executor.ResolveResult {
	out := make([]executor.ResolveResult, len(ps))
	values, err := fn(ctx, ps)
	if err == nil && len(values) != len(ps) {
		err = fmt.Errorf("%s.%s: batch resolver returned %d values for %d sources", ps[0].ObjectType, ps[0].Field, len(values), len(ps))
	}
	for i := range out {
		switch {
		case err != nil:
			out[i].Error = err
		default:
			if e, ok := values[i].(error); ok {
				out[i].Error = e
			} else {
				out[i].Value = values[i]
			}
		}
	}
	return out
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	if fn := r.typeResolvers[abstractType]; fn != nil {
		return fn(ctx, value)
	}
	switch v := value.(type) {
	case Typed:
		return v.GraphQLType(), nil
	case map[string]any:
		if name, ok := v["__typename"].(string); ok {
			return name, nil
		}
	}
	return "", fmt.Errorf("cannot determine the concrete type of %T for %s", value, abstractType)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typeName string, value any) (any, error) {
	value = deref(value)
	if value == nil {
		return nil, nil
	}
	switch typeName {
	case "Int":
		return serializeInt(value)
	case "Float":
		return serializeFloat(value)
	case "String":
		return serializeString(value)
	case "Boolean":
		if b, ok := value.(bool); ok {
			return b, nil
		}
		if rv := reflect.ValueOf(value); rv.Kind() == reflect.Bool {
			return rv.Bool(), nil
		}
		return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", value)
	case "ID":
		return serializeID(value)
	}

	t := r.types.Types[typeName]
	if t != nil && t.Kind == schema.TypeKindEnum {
		name, err := serializeString(value)
		if err != nil {
			return nil, fmt.Errorf("Enum %q cannot represent value: %v", typeName, value)
		}
		for _, ev := range t.EnumValues {
			if ev.Name == name {
				return name, nil
			}
		}
		return nil, fmt.Errorf("Enum %q cannot represent value: %q", typeName, name)
	}
	// custom scalar
	return value, nil
}

// DefaultResolve reads field from source: a map key, or an exported struct
// field matched by its json tag or case-insensitively by name. Missing
// properties resolve to null.
func DefaultResolve(source any, field string) (any, error) {
	if source == nil {
		return nil, nil
	}
	if m, ok := source.(map[string]any); ok {
		return m[field], nil
	}

	rv := reflect.ValueOf(source)
	for rv.Kind() == reflect.Pointer || rv.Kind() == reflect.Interface {
		if rv.IsNil() {
			return nil, nil
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, nil
		}
		v := rv.MapIndex(reflect.ValueOf(field).Convert(rv.Type().Key()))
		if !v.IsValid() {
			return nil, nil
		}
		return v.Interface(), nil
	case reflect.Struct:
		rt := rv.Type()
		for i := 0; i < rt.NumField(); i++ {
			sf := rt.Field(i)
			if !sf.IsExported() {
				continue
			}
			if tag, _, _ := strings.Cut(sf.Tag.Get("json"), ","); tag == field || (tag == "" && strings.EqualFold(sf.Name, field)) {
				return rv.Field(i).Interface(), nil
			}
		}
	}
	return nil, nil
}

func deref(v any) any {
	rv := reflect.ValueOf(v)
	for rv.IsValid() && rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil
		}
		rv = rv.Elem()
	}
	if !rv.IsValid() {
		return nil
	}
	return rv.Interface()
}

func serializeInt(v any) (any, error) {
	rv := reflect.ValueOf(v)
	var n int64
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n = rv.Int()
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		u := rv.Uint()
		if u > math.MaxInt32 {
			return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", u)
		}
		n = int64(u)
	case reflect.Float32, reflect.Float64:
		f := rv.Float()
		if f != math.Trunc(f) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", f)
		}
		n = int64(f)
	default:
		return nil, fmt.Errorf("Int cannot represent value: %v", v)
	}
	if n > math.MaxInt32 || n < math.MinInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
	}
	return int(n), nil
}

func serializeFloat(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return rv.Float(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), nil
	}
	return nil, fmt.Errorf("Float cannot represent value: %v", v)
}

func serializeString(v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case fmt.Stringer:
		return s.String(), nil
	case []byte:
		return string(s), nil
	}
	if rv := reflect.ValueOf(v); rv.Kind() == reflect.String {
		return rv.String(), nil
	}
	return "", fmt.Errorf("String cannot represent value: %v", v)
}

func serializeID(v any) (any, error) {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.String:
		return rv.String(), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return strconv.FormatInt(rv.Int(), 10), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return strconv.FormatUint(rv.Uint(), 10), nil
	}
	if s, ok := v.(fmt.Stringer); ok {
		return s.String(), nil
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", v)
}
