// Package campaign implements campaign lifecycle management.
//
// The service layer owns the admin-facing operations: creating campaigns,
// launching, pausing and resuming them, and reading dispatch and tracking
// state for reporting. It depends on the repository interface defined in
// this package; the Postgres implementation lives in repository/postgres.
// Dispatch itself happens in the scheduler and worker packages, which
// react to the status changes made here.
package campaign
