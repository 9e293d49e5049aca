// Package storage is the durable record of orders and fills, kept in
// SQLite through gorm. The in-memory books are the source of truth while
// the engine runs; this package is what they are rebuilt from.
package storage
