// Package extensions propagates extension data across a course's content documents.
//
// An extension type declares, per content type ("location"), a small JSON-schema-like tree
// describing the fields it adds. Enabling an extension on a course synthesizes the default
// object for each location and writes it under _extensions[targetAttribute] on every matching
// document, then records the extension in the course config's _enabledExtensions registry.
// Disabling reverses both. New content created under a course receives the defaults of every
// extension enabled there through a create hook.
//
// Stores (memory, Postgres) and manifest blob stores (memory, filesystem, S3) are provided
// under subpackages; the catalog subpackage installs extension types from manifests.
//
// # Consistency
//
// The store offers no transactions. Documents are changed through partial-field deltas, and a
// failed enable or disable may leave a course partially updated. Re-running the same action
// converges, so callers should re-query state after a failure and serialize changes per
// course.
package extensions
