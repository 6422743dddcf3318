// Package domain defines the core business types for the Phishly campaign
// engine.
//
// Types in this package are pure value objects with no behavior beyond
// validation and ordering rules, no database dependencies, and no HTTP
// concerns. They are the shared language between handlers, services,
// workers, and repositories.
//
// Rules for this package:
//   - No imports from other internal/ packages
//   - No *sql.DB, no http.Request, no context.Context in struct fields
//   - JSON/DB tags are allowed (they're metadata, not behavior)
//   - Pure methods on the types are allowed
//   - Constants and enums belong here
package domain
