package introspection

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"

	executor "github.com/hanpama/rosterql/internal/executor"
	schema "github.com/hanpama/rosterql/internal/schema"
)

// Wrapped pairs an introspecting Runtime with the schema it executes against.
type Wrapped struct {
	Runtime executor.Runtime
	Schema  *schema.Schema
}

// Wrap returns a Runtime that answers the __schema and __type root fields and
// every field of the introspection types, delegating the rest to base. The
// returned schema is a copy of sch whose query type carries the two meta
// fields; sch itself is not modified.
func Wrap(base executor.Runtime, sch *schema.Schema) *Wrapped {
	return &Wrapped{
		Runtime: &runtime{base: base, schema: sch},
		Schema:  extendSchema(sch),
	}
}

func extendSchema(sch *schema.Schema) *schema.Schema {
	ext := *sch
	ext.Types = make(map[string]*schema.Type, len(sch.Types))
	for name, t := range sch.Types {
		ext.Types[name] = t
	}
	query := sch.RootQuery()
	if query == nil {
		return &ext
	}
	q := *query
	q.Fields = append(append([]*schema.Field(nil), query.Fields...),
		&schema.Field{
			Name:        "__schema",
			Description: "Access the current type schema of this server.",
			Type:        schema.NonNullType(schema.NamedType("__Schema")),
		},
		&schema.Field{
			Name:        "__type",
			Description: "Request the type information of a single type.",
			Type:        schema.NamedType("__Type"),
			Arguments: []*schema.InputValue{
				{Name: "name", Type: schema.NonNullType(schema.NamedType("String"))},
			},
		},
	)
	ext.Types[q.Name] = &q
	return &ext
}

type runtime struct {
	base   executor.Runtime
	schema *schema.Schema // the schema being described, without meta fields
}

func (r *runtime) ResolveField(ctx context.Context, objectType, field string, source any, args map[string]any) (any, error) {
	if strings.HasPrefix(objectType, "__") {
		return r.resolveMeta(source, field, args)
	}
	if objectType == r.schema.QueryType {
		switch field {
		case "__schema":
			return r.schema, nil
		case "__type":
			name, _ := args["name"].(string)
			if t := r.schema.Types[name]; t != nil {
				return t, nil
			}
			return nil, nil
		}
	}
	return r.base.ResolveField(ctx, objectType, field, source, args)
}

// Batched defers to base for every non-meta field.
func (r *runtime) Batched(objectType, field string) bool {
	b, ok := r.base.(executor.BatchRuntime)
	return ok && !strings.HasPrefix(objectType, "__") && b.Batched(objectType, field)
}

func (r *runtime) BatchResolve(ctx context.Context, tasks []executor.ResolveTask) []executor.ResolveResult {
	return r.base.(executor.BatchRuntime).BatchResolve(ctx, tasks)
}

func (r *runtime) ResolveType(ctx context.Context, abstractType string, value any) (string, error) {
	return r.base.ResolveType(ctx, abstractType, value)
}

func (r *runtime) SerializeLeafValue(ctx context.Context, typ string, value any) (any, error) {
	switch v := value.(type) {
	case schema.TypeKind:
		return string(v), nil
	case schema.TypeRefKind:
		return string(v), nil
	}
	return r.base.SerializeLeafValue(ctx, typ, value)
}

func (r *runtime) resolveMeta(source any, field string, args map[string]any) (any, error) {
	includeDeprecated := boolArg(args, "includeDeprecated")
	switch src := source.(type) {
	case *schema.Schema:
		return r.schemaField(src, field)
	case *schema.Type:
		return r.typeField(src, field, includeDeprecated)
	case *schema.TypeRef:
		return r.wrapperField(src, field)
	case *schema.Field:
		return r.fieldField(src, field, includeDeprecated)
	case *schema.InputValue:
		return r.inputValueField(src, field)
	case *schema.EnumValue:
		switch field {
		case "name":
			return src.Name, nil
		case "description":
			return optional(src.Description), nil
		case "isDeprecated":
			return src.IsDeprecated, nil
		case "deprecationReason":
			return deprecationReason(src.IsDeprecated, src.DeprecationReason), nil
		}
	case *schema.Directive:
		switch field {
		case "name":
			return src.Name, nil
		case "description":
			return optional(src.Description), nil
		case "isRepeatable":
			return src.IsRepeatable, nil
		case "locations":
			return append([]string(nil), src.Locations...), nil
		case "args":
			return filterInputValues(src.Arguments, includeDeprecated), nil
		}
	}
	return nil, fmt.Errorf("unsupported introspection field %q on %T", field, source)
}

func (r *runtime) schemaField(sch *schema.Schema, field string) (any, error) {
	switch field {
	case "description":
		return optional(sch.Description), nil
	case "types":
		return slices.SortedFunc(maps.Values(sch.Types), func(a, b *schema.Type) int {
			return strings.Compare(a.Name, b.Name)
		}), nil
	case "queryType":
		return sch.RootQuery(), nil
	case "mutationType":
		return sch.RootMutation(), nil
	case "subscriptionType":
		return sch.RootSubscription(), nil
	case "directives":
		return slices.SortedFunc(maps.Values(sch.Directives), func(a, b *schema.Directive) int {
			return strings.Compare(a.Name, b.Name)
		}), nil
	}
	return nil, fmt.Errorf("unsupported introspection field %q on __Schema", field)
}

func (r *runtime) typeField(t *schema.Type, field string, includeDeprecated bool) (any, error) {
	switch field {
	case "kind":
		return t.Kind, nil
	case "name":
		return t.Name, nil
	case "description":
		return optional(t.Description), nil
	case "specifiedByURL":
		if t.SpecifiedByURL == nil {
			return nil, nil
		}
		return *t.SpecifiedByURL, nil
	case "fields":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		out := make([]*schema.Field, 0, len(t.Fields))
		for _, f := range t.Fields {
			if includeDeprecated || !f.IsDeprecated {
				out = append(out, f)
			}
		}
		return out, nil
	case "interfaces":
		if t.Kind != schema.TypeKindObject && t.Kind != schema.TypeKindInterface {
			return nil, nil
		}
		return r.namedTypes(t.Interfaces), nil
	case "possibleTypes":
		if t.Kind != schema.TypeKindInterface && t.Kind != schema.TypeKindUnion {
			return nil, nil
		}
		return r.namedTypes(t.PossibleTypes), nil
	case "enumValues":
		if t.Kind != schema.TypeKindEnum {
			return nil, nil
		}
		out := make([]*schema.EnumValue, 0, len(t.EnumValues))
		for _, ev := range t.EnumValues {
			if includeDeprecated || !ev.IsDeprecated {
				out = append(out, ev)
			}
		}
		return out, nil
	case "inputFields":
		if t.Kind != schema.TypeKindInputObject {
			return nil, nil
		}
		return filterInputValues(t.InputFields, includeDeprecated), nil
	case "ofType":
		return nil, nil
	case "isOneOf":
		return t.OneOf, nil
	}
	return nil, fmt.Errorf("unsupported introspection field %q on __Type", field)
}

// wrapperField answers __Type fields for LIST and NON_NULL wrappers.
func (r *runtime) wrapperField(tr *schema.TypeRef, field string) (any, error) {
	switch field {
	case "kind":
		return tr.Kind, nil
	case "ofType":
		return r.typeOf(tr.OfType), nil
	case "name", "description", "specifiedByURL", "fields", "interfaces",
		"possibleTypes", "enumValues", "inputFields", "isOneOf":
		return nil, nil
	}
	return nil, fmt.Errorf("unsupported introspection field %q on __Type", field)
}

func (r *runtime) fieldField(f *schema.Field, field string, includeDeprecated bool) (any, error) {
	switch field {
	case "name":
		return f.Name, nil
	case "description":
		return optional(f.Description), nil
	case "args":
		return filterInputValues(f.Arguments, includeDeprecated), nil
	case "type":
		return r.typeOf(f.Type), nil
	case "isDeprecated":
		return f.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(f.IsDeprecated, f.DeprecationReason), nil
	}
	return nil, fmt.Errorf("unsupported introspection field %q on __Field", field)
}

func (r *runtime) inputValueField(a *schema.InputValue, field string) (any, error) {
	switch field {
	case "name":
		return a.Name, nil
	case "description":
		return optional(a.Description), nil
	case "type":
		return r.typeOf(a.Type), nil
	case "defaultValue":
		if a.DefaultValue == nil {
			return nil, nil
		}
		return r.literal(a.DefaultValue, a.Type), nil
	case "isDeprecated":
		return a.IsDeprecated, nil
	case "deprecationReason":
		return deprecationReason(a.IsDeprecated, a.DeprecationReason), nil
	}
	return nil, fmt.Errorf("unsupported introspection field %q on __InputValue", field)
}

// typeOf maps a type reference to the value describing it: the named type
// itself, or the wrapper reference for lists and non-nulls.
func (r *runtime) typeOf(tr *schema.TypeRef) any {
	if tr == nil {
		return nil
	}
	if tr.Kind == schema.TypeRefKindNamed {
		if t := r.schema.Types[tr.Named]; t != nil {
			return t
		}
		return nil
	}
	return tr
}

func (r *runtime) namedTypes(names []string) []*schema.Type {
	out := make([]*schema.Type, 0, len(names))
	for _, name := range names {
		if t := r.schema.Types[name]; t != nil {
			out = append(out, t)
		}
	}
	return out
}

// literal renders a default value in GraphQL input syntax.
func (r *runtime) literal(v any, tr *schema.TypeRef) string {
	if v == nil {
		return "null"
	}
	switch x := v.(type) {
	case string:
		if t := r.schema.Types[schema.NamedTypeOf(tr)]; t != nil && t.Kind == schema.TypeKindEnum {
			return x
		}
		return strconv.Quote(x)
	case []any:
		inner := tr
		for inner != nil && inner.Kind != schema.TypeRefKindList {
			inner = inner.OfType
		}
		if inner != nil {
			inner = inner.OfType
		}
		parts := make([]string, len(x))
		for i, item := range x {
			parts[i] = r.literal(item, inner)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]any:
		var fields []*schema.InputValue
		if t := r.schema.Types[schema.NamedTypeOf(tr)]; t != nil {
			fields = t.InputFields
		}
		keys := slices.Sorted(maps.Keys(x))
		parts := make([]string, len(keys))
		for i, k := range keys {
			var ft *schema.TypeRef
			for _, f := range fields {
				if f.Name == k {
					ft = f.Type
				}
			}
			parts[i] = k + ": " + r.literal(x[k], ft)
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprint(x)
	}
}

func filterInputValues(in []*schema.InputValue, includeDeprecated bool) []*schema.InputValue {
	out := make([]*schema.InputValue, 0, len(in))
	for _, a := range in {
		if includeDeprecated || !a.IsDeprecated {
			out = append(out, a)
		}
	}
	return out
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func deprecationReason(deprecated bool, reason string) any {
	if !deprecated {
		return nil
	}
	return reason
}

func boolArg(args map[string]any, name string) bool {
	b, _ := args[name].(bool)
	return b
}
