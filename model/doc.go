// Package model defines the shared value types of the engine: typed field
// values, rows, primary keys, and search results.
//
// It is imported by every other package and must stay dependency-free.
package model
