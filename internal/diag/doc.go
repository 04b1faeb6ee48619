// Package diag defines the diagnostic model shared by the graph loader, the
// binding layer and the CLI.
//
// Two shapes of findings exist:
//
//   - Diagnostic records collected in a Bag while a graph document is
//     checked. A document may produce many of them; Bag.Err folds the
//     error-level ones into a single error.
//   - UsageError values returned by the binding layer when a caller breaks
//     the bind/init/run contract. They carry the bindable's name and the
//     expected versus actual shape.
//
// Codes are stable numeric identifiers grouped by range (see codes.go) with
// a prefixed string form such as BND1001. Internal consistency violations
// are not diagnostics; they panic.
package diag
