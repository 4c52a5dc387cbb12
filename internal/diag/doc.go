// Package diag defines the diagnostic model shared by the checker, the
// worker transport and the aggregator.
//
// # Purpose
//
//   - Provide a flat, serialisable Diagnostic record that survives the trip
//     from a worker process to the coordinator unchanged.
//   - Define the canonical ordering and identity of diagnostics so that the
//     final report does not depend on how many workers produced it.
//   - Offer light-weight utilities (Bag, FileFilter) that let
//     producers emit diagnostics without coupling to storage or formatting.
//
// # Data model
//
// Diagnostic is the central record:
//
//   - File – project-relative, slash-separated path. Empty for diagnostics
//     that do not belong to a file (checker faults, lost workers, timeouts);
//     those carry the sentinel location 0:0.
//   - Line, Column – 1-based position, 0 when unknown.
//   - Severity – SevWarning or SevError.
//   - Source – which engine produced it (type checker or linter).
//   - Code – compact numeric identifier with a stable string form.
//   - Message – human oriented text.
//
// Two diagnostics are the same finding when their Key (file, line, column,
// message, source) is equal. Compare defines a total order over all fields,
// with the key fields first, and Bag.Sort/Bag.Dedup build on it.
//
// # Scope
//
// Package diag performs no IO and no rendering. Rendering lives in
// internal/diagfmt, merging of worker results in internal/aggregate.
package diag
