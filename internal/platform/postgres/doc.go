// Package postgres implements the store interfaces on PostgreSQL: task rows
// with compare-and-swap status updates and the donated OAuth token table.
// Driver errors are translated into the store package's error vocabulary.
package postgres
