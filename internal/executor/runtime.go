package executor

import (
	"context"
)

// Runtime defines the host integration surface for field resolution,
// abstract type resolution, and leaf-value serialization used by the Executor.
//
// General contract
//   - The Executor walks the selection set depth-first and calls ResolveField
//     once per field instance, in document order. Mutation root fields are
//     therefore executed serially.
//   - Errors returned from any method are converted into located GraphQL errors.
//     If the field's return type is Non-Null, the Executor propagates the null
//     up to the nearest nullable ancestor.
//   - Implementations must be safe for concurrent use: one Runtime serves every
//     in-flight operation.
//   - Implementations must not mutate source or args values.
//   - A panic is not recovered by the Executor; the caller decides how to
//     isolate it.
//
// Object/field identifiers
//   - objectType is the GraphQL type name (e.g. "Team").
//   - field is the GraphQL field name on that type (e.g. "members").
//   - For root fields, objectType is the root type name (e.g. "Query") and
//     source is the initial value passed to ExecuteRequest.
//   - args is the map of argument names to already-coerced Go values.
type Runtime interface {
	// ResolveField returns the raw value of a field, to be completed by the
	// Executor (including nested selection sets). Return (nil, nil) to
	// produce a GraphQL null for nullable fields.
	ResolveField(ctx context.Context, objectType string, field string, source any, args map[string]any) (any, error)

	// ResolveType determines the concrete object type name for a value of an
	// abstract GraphQL type (interface or union).
	ResolveType(ctx context.Context, abstractType string, value any) (string, error)

	// SerializeLeafValue serializes a scalar or enum value to a JSON-safe Go
	// value. For enums, return the symbolic name as string.
	SerializeLeafValue(ctx context.Context, scalarOrEnumTypeName string, value any) (any, error)
}

// BatchRuntime is a Runtime that resolves some fields for many sources in a
// single call.
//
// When the Executor completes a list of objects, every field of that object
// type for which Batched reports true is resolved for all list items with one
// BatchResolve call, before the items are completed one by one. Instances of
// the same field outside such a list still go through ResolveField.
type BatchRuntime interface {
	Runtime

	// Batched reports whether objectType.field goes through BatchResolve.
	Batched(objectType, field string) bool

	// BatchResolve resolves tasks, which all name the same field. It must
	// return one result per task, results[i] belonging to tasks[i]. A failed
	// element does not affect the others.
	BatchResolve(ctx context.Context, tasks []ResolveTask) []ResolveResult
}

// ResolveTask is one field instance handed to BatchResolve.
type ResolveTask struct {
	ObjectType string
	Field      string
	// Source is the list item the field is read from.
	Source any
	// Args are already coerced; they are shared by every task of a batch.
	Args map[string]any
}

// ResolveResult is the raw value, or the error, of one ResolveTask.
type ResolveResult struct {
	Value any
	Error error
}
