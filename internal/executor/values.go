package executor

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"strconv"

	language "github.com/hanpama/rosterql/internal/language"
	schema "github.com/hanpama/rosterql/internal/schema"
)

// coerceVariableValues coerces the request's variables according to the
// operation's variable definitions.
func coerceVariableValues(sch *schema.Schema, op *language.OperationDefinition, given map[string]any) (map[string]any, error) {
	out := make(map[string]any, len(op.VariableDefinitions))
	for _, def := range op.VariableDefinitions {
		name, t := def.Variable, def.Type
		v, ok := given[name]
		switch {
		case ok:
		case def.DefaultValue != nil:
			v = valueFromAST(def.DefaultValue, nil)
		case t.NonNull:
			return nil, fmt.Errorf("Variable \"$%s\" of required type \"%s\" was not provided.", name, t)
		default:
			continue
		}
		if v == nil && t.NonNull {
			return nil, fmt.Errorf("Variable \"$%s\" of non-null type \"%s\" must not be null.", name, t)
		}
		cv, err := coerceInputValue(sch, v, schema.TypeRefFromAST(t))
		if err != nil {
			return nil, fmt.Errorf("Variable \"$%s\" got invalid value: %v", name, err)
		}
		out[name] = cv
	}
	return out, nil
}

// arguments coerces the arguments given to a field against its definition.
// Omitted arguments take their default; a variable that was not supplied
// counts as omitted.
func (s *executionState) arguments(def *schema.Field, given language.ArgumentList) (map[string]any, error) {
	out := make(map[string]any, len(def.Arguments))
	for _, argDef := range def.Arguments {
		var (
			v   any
			set bool
		)
		if arg := given.ForName(argDef.Name); arg != nil {
			if arg.Value.Kind == language.Variable {
				v, set = s.variableValues[arg.Value.Raw]
			} else {
				v, set = valueFromAST(arg.Value, s.variableValues), true
			}
		}
		switch {
		case set:
		case argDef.DefaultValue != nil:
			v = argDef.DefaultValue
		case schema.IsNonNull(argDef.Type):
			return nil, fmt.Errorf("Argument %q of required type was not provided.", argDef.Name)
		default:
			continue
		}

		cv, err := coerceInputValue(s.schema, v, argDef.Type)
		if err != nil {
			return nil, fmt.Errorf("Argument %q has invalid value: %v", argDef.Name, err)
		}
		out[argDef.Name] = cv
	}
	return out, nil
}

// valueFromAST converts a literal to a Go value, substituting variables.
func valueFromAST(value *language.Value, variableValues map[string]any) any {
	if value == nil {
		return nil
	}
	switch value.Kind {
	case language.Variable:
		return variableValues[value.Raw]
	case language.IntValue:
		iv, err := strconv.ParseInt(value.Raw, 10, 64)
		if err != nil {
			return value.Raw
		}
		return iv
	case language.FloatValue:
		fv, _ := strconv.ParseFloat(value.Raw, 64)
		return fv
	case language.StringValue, language.BlockValue, language.EnumValue:
		return value.Raw
	case language.BooleanValue:
		return value.Raw == "true"
	case language.ListValue:
		out := make([]any, len(value.Children))
		for i, c := range value.Children {
			out[i] = valueFromAST(c.Value, variableValues)
		}
		return out
	case language.ObjectValue:
		m := make(map[string]any, len(value.Children))
		for _, f := range value.Children {
			m[f.Name] = valueFromAST(f.Value, variableValues)
		}
		return m
	default:
		return nil
	}
}

// builtinScalars coerce input values of the specified scalar types.
var builtinScalars = map[string]func(any) (any, error){
	"Int":     inputInt,
	"Float":   inputFloat,
	"String":  inputString,
	"Boolean": inputBoolean,
	"ID":      inputID,
}

// coerceInputValue coerces value to an input type.
func coerceInputValue(sch *schema.Schema, value any, t *schema.TypeRef) (any, error) {
	if schema.IsNonNull(t) {
		if value == nil {
			return nil, errors.New("expected non-null value")
		}
		t = schema.Unwrap(t)
	} else if value == nil {
		return nil, nil
	}

	if schema.IsList(t) {
		return coerceInputList(sch, value, schema.Unwrap(t))
	}

	name := schema.NamedTypeOf(t)
	if fn, ok := builtinScalars[name]; ok {
		return fn(value)
	}
	named := sch.Types[name]
	if named == nil {
		return nil, fmt.Errorf("unknown type %s", name)
	}
	switch named.Kind {
	case schema.TypeKindEnum:
		return inputEnum(named, value)
	case schema.TypeKindInputObject:
		return coerceInputObject(sch, named, value)
	}
	// custom scalars pass through unchanged
	return value, nil
}

// coerceInputList accepts a single value as a list of one.
func coerceInputList(sch *schema.Schema, value any, item *schema.TypeRef) (any, error) {
	items, ok := value.([]any)
	if !ok {
		v, err := coerceInputValue(sch, value, item)
		if err != nil {
			return nil, err
		}
		return []any{v}, nil
	}
	out := make([]any, 0, len(items))
	for i, it := range items {
		v, err := coerceInputValue(sch, it, item)
		if err != nil {
			return nil, fmt.Errorf("at index %d: %w", i, err)
		}
		out = append(out, v)
	}
	return out, nil
}

func inputEnum(t *schema.Type, value any) (any, error) {
	name, ok := value.(string)
	if !ok {
		return nil, fmt.Errorf("enum %s expects a name, got %T", t.Name, value)
	}
	if !slices.ContainsFunc(t.EnumValues, func(ev *schema.EnumValue) bool { return ev.Name == name }) {
		return nil, fmt.Errorf("value %q does not exist in enum %s", name, t.Name)
	}
	return name, nil
}

func coerceInputObject(sch *schema.Schema, t *schema.Type, value any) (map[string]any, error) {
	in, ok := value.(map[string]any)
	if !ok {
		return nil, fmt.Errorf("input object %s expects an object, got %T", t.Name, value)
	}
	for k := range in {
		if !slices.ContainsFunc(t.InputFields, func(f *schema.InputValue) bool { return f.Name == k }) {
			return nil, fmt.Errorf("field %q is not defined by type %s", k, t.Name)
		}
	}

	out := make(map[string]any, len(t.InputFields))
	for _, f := range t.InputFields {
		v, present := in[f.Name]
		switch {
		case present:
		case f.DefaultValue != nil:
			v = f.DefaultValue
		case schema.IsNonNull(f.Type):
			return nil, fmt.Errorf("field %s.%s of required type was not provided", t.Name, f.Name)
		default:
			continue
		}
		cv, err := coerceInputValue(sch, v, f.Type)
		if err != nil {
			return nil, fmt.Errorf("field %s.%s: %w", t.Name, f.Name, err)
		}
		out[f.Name] = cv
	}
	return out, nil
}

// inputInt accepts integral numbers in the signed 32-bit range. JSON
// variables arrive as float64.
func inputInt(value any) (any, error) {
	var n int64
	switch v := value.(type) {
	case int:
		n = int64(v)
	case int32:
		n = int64(v)
	case int64:
		n = v
	case float64:
		if v != math.Trunc(v) {
			return nil, fmt.Errorf("Int cannot represent non-integer value: %v", v)
		}
		n = int64(v)
	default:
		return nil, fmt.Errorf("Int cannot represent value: %v", value)
	}
	if n < math.MinInt32 || n > math.MaxInt32 {
		return nil, fmt.Errorf("Int cannot represent non 32-bit signed integer value: %d", n)
	}
	return int(n), nil
}

func inputFloat(value any) (any, error) {
	switch v := value.(type) {
	case float64:
		return v, nil
	case float32:
		return float64(v), nil
	case int:
		return float64(v), nil
	case int32:
		return float64(v), nil
	case int64:
		return float64(v), nil
	}
	return nil, fmt.Errorf("Float cannot represent value: %v", value)
}

func inputString(value any) (any, error) {
	if v, ok := value.(string); ok {
		return v, nil
	}
	return nil, fmt.Errorf("String cannot represent a non string value: %v", value)
}

func inputBoolean(value any) (any, error) {
	if v, ok := value.(bool); ok {
		return v, nil
	}
	return nil, fmt.Errorf("Boolean cannot represent a non boolean value: %v", value)
}

// inputID accepts strings and integral numbers and always yields a string.
func inputID(value any) (any, error) {
	switch v := value.(type) {
	case string:
		return v, nil
	case int:
		return strconv.Itoa(v), nil
	case int64:
		return strconv.FormatInt(v, 10), nil
	case float64:
		if v == math.Trunc(v) {
			return strconv.FormatInt(int64(v), 10), nil
		}
	}
	return nil, fmt.Errorf("ID cannot represent value: %v", value)
}
