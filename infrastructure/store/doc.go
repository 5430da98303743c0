// Package store implements the append-only record stores: a delimited file
// with a single header row, and a PostgreSQL table.
package store
