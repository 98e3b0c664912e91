// Package sqlite provides a SQLite-backed experiment storage implementation.
package sqlite
