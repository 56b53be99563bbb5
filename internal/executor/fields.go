package executor

import (
	language "github.com/hanpama/rosterql/internal/language"
	schema "github.com/hanpama/rosterql/internal/schema"
)

// fieldGroup is every field node sharing one response key. The nodes are
// merged into a single result entry.
type fieldGroup struct {
	key   string
	nodes []*language.Field
}

// fieldCollector groups the selections that apply to one object type, in
// the order their response keys first appear.
type fieldCollector struct {
	state      *executionState
	objectType *schema.Type
	groups     []fieldGroup
	byKey      map[string]int
	visited    map[string]bool
}

func collectFields(state *executionState, objectType *schema.Type, selectionSet language.SelectionSet) []fieldGroup {
	c := &fieldCollector{
		state:      state,
		objectType: objectType,
		byKey:      map[string]int{},
		visited:    map[string]bool{},
	}
	c.collect(selectionSet)
	return c.groups
}

func (c *fieldCollector) collect(selectionSet language.SelectionSet) {
	for _, selection := range selectionSet {
		switch sel := selection.(type) {
		case *language.Field:
			if c.included(sel.Directives) {
				c.add(sel)
			}
		case *language.InlineFragment:
			if c.included(sel.Directives) && c.applies(sel.TypeCondition) {
				c.collect(sel.SelectionSet)
			}
		case *language.FragmentSpread:
			if !c.included(sel.Directives) || c.visited[sel.Name] {
				continue
			}
			c.visited[sel.Name] = true
			def := c.state.document.Fragments.ForName(sel.Name)
			if def != nil && c.applies(def.TypeCondition) {
				c.collect(def.SelectionSet)
			}
		}
	}
}

func (c *fieldCollector) add(f *language.Field) {
	key := f.Alias
	if key == "" {
		key = f.Name
	}
	if i, ok := c.byKey[key]; ok {
		c.groups[i].nodes = append(c.groups[i].nodes, f)
		return
	}
	c.byKey[key] = len(c.groups)
	c.groups = append(c.groups, fieldGroup{key: key, nodes: []*language.Field{f}})
}

// applies reports whether a fragment on typeCondition matches the object
// type directly or through an interface or union.
func (c *fieldCollector) applies(typeCondition string) bool {
	return typeCondition == "" || c.state.schema.IsPossibleType(typeCondition, c.objectType.Name)
}

// included evaluates @skip and @include.
func (c *fieldCollector) included(directives language.DirectiveList) bool {
	if d := directives.ForName("skip"); d != nil && c.condition(d) == true {
		return false
	}
	if d := directives.ForName("include"); d != nil && c.condition(d) == false {
		return false
	}
	return true
}

func (c *fieldCollector) condition(d *language.Directive) any {
	arg := d.Arguments.ForName("if")
	if arg == nil {
		return nil
	}
	return valueFromAST(arg.Value, c.state.variableValues)
}
