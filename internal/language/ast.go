package language

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

// Documents.
type (
	QueryDocument       = ast.QueryDocument
	OperationDefinition = ast.OperationDefinition
	SelectionSet        = ast.SelectionSet
	Field               = ast.Field
	InlineFragment      = ast.InlineFragment
	FragmentSpread      = ast.FragmentSpread
	DirectiveList       = ast.DirectiveList
	ArgumentList        = ast.ArgumentList
	Value               = ast.Value
)

// Schema definitions as validated by gqlparser.
type (
	SchemaDefinition    = ast.Schema
	Definition          = ast.Definition
	FieldDefinition     = ast.FieldDefinition
	DirectiveDefinition = ast.DirectiveDefinition
	Type                = ast.Type
	Directive           = ast.Directive
)

// ErrorList holds located parse and validation errors.
type ErrorList = gqlerror.List

const (
	Query        = ast.Query
	Mutation     = ast.Mutation
	Subscription = ast.Subscription
)

const (
	Object      = ast.Object
	Interface   = ast.Interface
	Union       = ast.Union
	Scalar      = ast.Scalar
	Enum        = ast.Enum
	InputObject = ast.InputObject
)

const (
	Variable     = ast.Variable
	IntValue     = ast.IntValue
	FloatValue   = ast.FloatValue
	StringValue  = ast.StringValue
	BlockValue   = ast.BlockValue
	BooleanValue = ast.BooleanValue
	EnumValue    = ast.EnumValue
	ListValue    = ast.ListValue
	ObjectValue  = ast.ObjectValue
)
