// Package executor implements a depth-first GraphQL executor with explicit
// runtime hooks for field resolution, abstract-type resolution and leaf
// serialization.
//
// # Execution Model
//
// Before execution the executor selects the operation (by name, or the only
// one when unnamed) and coerces the request variables against the operation's
// variable definitions. Errors here stop execution and are returned without
// data.
//
// Fields are then collected per selection set, honoring fragments, type
// conditions on interfaces and unions, and the @skip/@include directives.
// Each collected field is resolved through Runtime.ResolveField and completed
// in document order:
//
//   - Non-Null: complete the inner type; a null result records a located error
//     and propagates null to the nearest nullable ancestor.
//   - List: complete each element with an index-aware path.
//   - Leaf (Scalar/Enum): Runtime.SerializeLeafValue.
//   - Abstract (Interface/Union): Runtime.ResolveType, checked against the
//     schema's possible types, then completed as an object.
//   - Object: recurse into the merged sub-selection.
//
// # Batched Fields
//
// A Runtime that also implements BatchRuntime can claim fields with
// Batched. When a list of objects is completed, each claimed field in the
// list's selection is resolved for every item with a single BatchResolve
// call before the items are walked; the results are then consumed in place
// of per-item ResolveField calls. Outside a list, claimed fields go through
// ResolveField as usual.
//
// # Errors and Partial Success
//
// Errors carry a message, the locations of the field in the document and the
// response path. A failing nullable field becomes null and execution continues
// with its siblings, so Data and Errors may both be present in one result.
//
// The executor does not recover panics raised by a Runtime. Callers that need
// isolation run ExecuteRequest on a goroutine that recovers them.
package executor
