// Package executor shapes the response of a GraphQL operation once its
// callables have been dispatched.
//
// # Overview
//
// By the time the executor runs, every backend call of the request has
// already happened: the dispatcher left one outcome per callable path. The
// executor walks the operation's selection set depth first and asks its
// Runtime for each field value, then completes the value against the schema:
//   - Non-Null: a null or failed value is reported once and the null
//     propagates to the nearest nullable ancestor.
//   - List: items complete with index-aware response paths. A null item for
//     a Non-Null item type nullifies the whole list.
//   - Leaf (Scalar/Enum): Runtime.SerializeLeafValue produces a JSON-safe
//     value.
//   - Abstract (Interface/Union): Runtime.ResolveType names the concrete
//     object type, which must be a possible type of the abstract type.
//   - Object: subfields are collected (fragments applied to the concrete
//     type, @skip/@include honoured) and executed in document order.
//
// # Operation paths
//
// Next to the response path, the executor tracks the operation path each
// field was planned at. Fragments contribute path segments exactly where the
// planner put them, so the runtime can look up the outcome of the callable
// owning a field by its path.
//
// # Errors and partial success
//
// Errors are located by response path. Structured service errors keep their
// kind and tree under the error extensions.
package executor
