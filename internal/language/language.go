// Package language wraps gqlparser so the rest of the module depends on a
// single set of AST names.
package language

import (
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// ParseQuery parses source without validating it.
func ParseQuery(source string) (*QueryDocument, error) {
	doc, err := parser.ParseQuery(&ast.Source{Input: source})
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// LoadSchema parses SDL and validates it together with the builtin prelude
// (scalars, @skip/@include/@deprecated and the introspection types).
func LoadSchema(name, source string) (*SchemaDefinition, error) {
	sch, err := gqlparser.LoadSchema(&ast.Source{Name: name, Input: source})
	if err != nil {
		return nil, err
	}
	return sch, nil
}

// LoadQuery parses source and validates it against sch. The returned list is
// empty when the document is valid; each entry carries its source locations.
func LoadQuery(sch *SchemaDefinition, source string) (*QueryDocument, ErrorList) {
	return gqlparser.LoadQuery(sch, source)
}
