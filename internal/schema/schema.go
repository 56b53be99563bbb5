// Package schema is the executable type graph built from validated SDL.
// Values are read-only after construction and shared by all executions.
package schema

// Schema holds every named type and directive, plus the names of the root
// operation types. An empty root name means the operation is not supported.
type Schema struct {
	QueryType        string
	MutationType     string
	SubscriptionType string
	Types            map[string]*Type
	Directives       map[string]*Directive
	Description      string
}

func (s *Schema) RootQuery() *Type        { return s.Types[s.QueryType] }
func (s *Schema) RootMutation() *Type     { return s.Types[s.MutationType] }
func (s *Schema) RootSubscription() *Type { return s.Types[s.SubscriptionType] }

// IsPossibleType reports whether objectType may appear where abstractType is
// expected. An object type is a possible type of itself.
func (s *Schema) IsPossibleType(abstractType, objectType string) bool {
	if abstractType == objectType {
		return true
	}
	if t := s.Types[abstractType]; t != nil {
		for _, name := range t.PossibleTypes {
			if name == objectType {
				return true
			}
		}
	}
	return false
}

type TypeKind string

const (
	TypeKindScalar      TypeKind = "SCALAR"
	TypeKindObject      TypeKind = "OBJECT"
	TypeKindInterface   TypeKind = "INTERFACE"
	TypeKindUnion       TypeKind = "UNION"
	TypeKindEnum        TypeKind = "ENUM"
	TypeKindInputObject TypeKind = "INPUT_OBJECT"
)

// Type is a named type. Which slices are populated depends on Kind:
// Fields and Interfaces for objects and interfaces, PossibleTypes for
// interfaces and unions, EnumValues for enums, InputFields for input objects.
type Type struct {
	Name           string
	Kind           TypeKind
	Description    string
	Fields         []*Field
	Interfaces     []string
	PossibleTypes  []string
	EnumValues     []*EnumValue
	InputFields    []*InputValue
	SpecifiedByURL *string
	OneOf          bool
}

// FieldByName returns the field with the given name, or nil.
func (t *Type) FieldByName(name string) *Field {
	for _, f := range t.Fields {
		if f.Name == name {
			return f
		}
	}
	return nil
}

type Field struct {
	Name              string
	Description       string
	Type              *TypeRef
	Arguments         []*InputValue
	IsDeprecated      bool
	DeprecationReason string
}

// InputValue is an argument or an input object field.
type InputValue struct {
	Name              string
	Description       string
	Type              *TypeRef
	DefaultValue      any
	IsDeprecated      bool
	DeprecationReason string
}

type EnumValue struct {
	Name              string
	Description       string
	IsDeprecated      bool
	DeprecationReason string
}

type Directive struct {
	Name         string
	Description  string
	Locations    []string
	Arguments    []*InputValue
	IsRepeatable bool
}

type TypeRefKind string

const (
	TypeRefKindNamed   TypeRefKind = "NAMED"
	TypeRefKindList    TypeRefKind = "LIST"
	TypeRefKindNonNull TypeRefKind = "NON_NULL"
)

// TypeRef is a possibly wrapped reference to a named type. [Int!]! is
// NON_NULL(LIST(NON_NULL(NAMED Int))).
type TypeRef struct {
	Kind   TypeRefKind
	OfType *TypeRef
	Named  string
}

func NamedType(name string) *TypeRef  { return &TypeRef{Kind: TypeRefKindNamed, Named: name} }
func ListType(t *TypeRef) *TypeRef    { return &TypeRef{Kind: TypeRefKindList, OfType: t} }
func NonNullType(t *TypeRef) *TypeRef { return &TypeRef{Kind: TypeRefKindNonNull, OfType: t} }

// IsNonNull reports whether the outermost wrapper is Non-Null.
func IsNonNull(t *TypeRef) bool { return t != nil && t.Kind == TypeRefKindNonNull }

// IsList reports whether t is a list, ignoring one Non-Null wrapper.
func IsList(t *TypeRef) bool {
	if IsNonNull(t) {
		t = t.OfType
	}
	return t != nil && t.Kind == TypeRefKindList
}

// Unwrap strips one List or Non-Null wrapper. Named references are returned
// unchanged.
func Unwrap(t *TypeRef) *TypeRef {
	if t.Kind == TypeRefKindNamed {
		return t
	}
	return t.OfType
}

// NamedTypeOf returns the name at the core of t.
func NamedTypeOf(t *TypeRef) string {
	for ; t != nil; t = t.OfType {
		if t.Kind == TypeRefKindNamed {
			return t.Named
		}
	}
	return ""
}
