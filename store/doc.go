// Package store persists job records in PostgreSQL.
//
// The job table is the sole source of truth for status queries. Updates are
// partial: only the fields present in a patch are written, and every write
// refreshes the record's updated_at timestamp.
package store
