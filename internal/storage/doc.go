// Package storage persists users, their alert preferences, watched nodes and
// triggered-alert records.
//
// Two drivers are available:
//   - "sqlite": SQLite database file with versioned migrations (default)
//   - "memory": process-local maps, used by tests and dry runs
//
// Triggered-alert records are boolean state keyed by (user, alert key):
// SetTriggeredAlert is insert-if-absent and ClearTriggeredAlert is
// delete-if-present, so concurrent checks never conflict.
package storage
