// Package store provides SQLite-backed storage for Simonini-isms.
//
// The store holds:
//   - Phases and their numbered rules, with a version history for rule text
//   - Per-user bookmarks, highlights and notes on rules
//   - Phase spec documents imported from PDFs: sections, items, figures
//   - Per-user bookmarks and notes on spec items
//   - The shared user and session tables used to authenticate requests
//
// # Conventions
//
//   - Rows are soft-deleted with is_active = FALSE; reads filter on it.
//   - List reads return empty slices, never nil.
//   - Single-row reads return ErrNotFound when nothing matches.
//   - Unique constraint violations surface as ErrConflict.
//   - Timestamps come from the store clock (see WithClock) and are UTC.
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
