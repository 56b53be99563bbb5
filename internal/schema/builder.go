package schema

import (
	"sort"

	language "github.com/hanpama/rosterql/internal/language"
)

const defaultDeprecationReason = "No longer supported"

// BuildFromSDL parses and validates SDL and returns the executable Schema
// together with the validated definition used for query validation.
func BuildFromSDL(name, sdl string) (*Schema, *language.SchemaDefinition, error) {
	def, err := language.LoadSchema(name, sdl)
	if err != nil {
		return nil, nil, err
	}
	return BuildFromDefinition(def), def, nil
}

// BuildFromDefinition converts a validated gqlparser schema into a Schema.
// Builtin prelude types (scalars and introspection types) are included so that
// the executor can complete them like any other type.
func BuildFromDefinition(def *language.SchemaDefinition) *Schema {
	s := &Schema{
		Types:       make(map[string]*Type, len(def.Types)),
		Directives:  make(map[string]*Directive, len(def.Directives)),
		Description: def.Description,
	}
	if def.Query != nil {
		s.QueryType = def.Query.Name
	}
	if def.Mutation != nil {
		s.MutationType = def.Mutation.Name
	}
	if def.Subscription != nil {
		s.SubscriptionType = def.Subscription.Name
	}

	for name, d := range def.Types {
		t := buildType(d)
		if t.Kind == TypeKindInterface {
			for _, pt := range def.PossibleTypes[name] {
				t.PossibleTypes = append(t.PossibleTypes, pt.Name)
			}
			sort.Strings(t.PossibleTypes)
		}
		s.Types[name] = t
	}
	for name, d := range def.Directives {
		s.Directives[name] = buildDirective(d)
	}
	return s
}

func buildType(d *language.Definition) *Type {
	t := &Type{
		Name:        d.Name,
		Kind:        TypeKind(d.Kind),
		Description: d.Description,
	}
	switch d.Kind {
	case language.Object, language.Interface:
		t.Interfaces = append(t.Interfaces, d.Interfaces...)
		for _, f := range d.Fields {
			// gqlparser lists __schema/__type on the query root; they are
			// attached by the introspection wrapper instead.
			if len(f.Name) > 1 && f.Name[:2] == "__" {
				continue
			}
			t.Fields = append(t.Fields, buildField(f))
		}
	case language.Union:
		t.PossibleTypes = append(t.PossibleTypes, d.Types...)
	case language.Enum:
		for _, v := range d.EnumValues {
			ev := &EnumValue{Name: v.Name, Description: v.Description}
			ev.IsDeprecated, ev.DeprecationReason = deprecation(v.Directives)
			t.EnumValues = append(t.EnumValues, ev)
		}
	case language.InputObject:
		for _, f := range d.Fields {
			t.InputFields = append(t.InputFields, buildInputValue(f.Name, f.Description, f.Type, f.DefaultValue, f.Directives))
		}
		t.OneOf = d.Directives.ForName("oneOf") != nil
	case language.Scalar:
		if sb := d.Directives.ForName("specifiedBy"); sb != nil {
			if arg := sb.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				url := arg.Value.Raw
				t.SpecifiedByURL = &url
			}
		}
	}
	return t
}

func buildField(f *language.FieldDefinition) *Field {
	field := &Field{
		Name:        f.Name,
		Description: f.Description,
		Type:        TypeRefFromAST(f.Type),
	}
	for _, a := range f.Arguments {
		field.Arguments = append(field.Arguments, buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
	}
	field.IsDeprecated, field.DeprecationReason = deprecation(f.Directives)
	return field
}

func buildInputValue(name, desc string, typ *language.Type, def *language.Value, dirs language.DirectiveList) *InputValue {
	in := &InputValue{Name: name, Description: desc, Type: TypeRefFromAST(typ)}
	if def != nil {
		if v, err := def.Value(nil); err == nil {
			in.DefaultValue = v
		}
	}
	in.IsDeprecated, in.DeprecationReason = deprecation(dirs)
	return in
}

func buildDirective(d *language.DirectiveDefinition) *Directive {
	dir := &Directive{
		Name:         d.Name,
		Description:  d.Description,
		IsRepeatable: d.IsRepeatable,
	}
	for _, loc := range d.Locations {
		dir.Locations = append(dir.Locations, string(loc))
	}
	for _, a := range d.Arguments {
		dir.Arguments = append(dir.Arguments, buildInputValue(a.Name, a.Description, a.Type, a.DefaultValue, a.Directives))
	}
	return dir
}

func deprecation(dirs language.DirectiveList) (bool, string) {
	d := dirs.ForName("deprecated")
	if d == nil {
		return false, ""
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return true, arg.Value.Raw
	}
	return true, defaultDeprecationReason
}

// TypeRefFromAST converts a gqlparser type expression into a TypeRef.
func TypeRefFromAST(t *language.Type) *TypeRef {
	if t == nil {
		return nil
	}
	var ref *TypeRef
	if t.Elem != nil {
		ref = ListType(TypeRefFromAST(t.Elem))
	} else {
		ref = NamedType(t.NamedType)
	}
	if t.NonNull {
		return NonNullType(ref)
	}
	return ref
}
