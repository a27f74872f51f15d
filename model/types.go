package model

import (
	"fmt"
)

// RowID is a dense, insertion-ordered identifier for a row within a
// collection. It is assigned by the segment store and never reused.
type RowID uint32

// SegmentID is the unique identifier for a segment within a collection.
type SegmentID uint64

// ConsistencyLevel controls how deletes interact with concurrent reads.
type ConsistencyLevel uint8

const (
	// ConsistencyStrong blocks new reads until a delete's tombstone write
	// is visible.
	ConsistencyStrong ConsistencyLevel = iota
	// ConsistencyBoundedStaleness behaves like Strong for a single node.
	ConsistencyBoundedStaleness
	// ConsistencyEventually allows reads to race ahead of in-flight deletes.
	ConsistencyEventually
)

// String returns the string representation of the ConsistencyLevel.
func (c ConsistencyLevel) String() string {
	switch c {
	case ConsistencyStrong:
		return "Strong"
	case ConsistencyBoundedStaleness:
		return "BoundedStaleness"
	case ConsistencyEventually:
		return "Eventually"
	default:
		return fmt.Sprintf("Unknown(%d)", uint8(c))
	}
}

// Kind is the runtime type tag of a Value.
type Kind uint8

const (
	KindNull Kind = iota
	KindBool
	KindInt64
	KindDouble
	KindVarChar
	KindFloatVector
	KindBinaryVector
)

// String returns the string representation of the Kind.
func (k Kind) String() string {
	switch k {
	case KindNull:
		return "Null"
	case KindBool:
		return "Bool"
	case KindInt64:
		return "Int64"
	case KindDouble:
		return "Double"
	case KindVarChar:
		return "VarChar"
	case KindFloatVector:
		return "FloatVector"
	case KindBinaryVector:
		return "BinaryVector"
	default:
		return "Unknown"
	}
}

// Value is a tagged union holding a single typed field value.
// Exactly one payload field is meaningful, selected by Kind.
type Value struct {
	Kind Kind
	B    bool
	I64  int64
	F64  float64
	S    string
	FV   []float32
	BV   []byte
}

// Bool wraps a bool into a Value.
func Bool(v bool) Value { return Value{Kind: KindBool, B: v} }

// Int64 wraps an int64 into a Value.
func Int64(v int64) Value { return Value{Kind: KindInt64, I64: v} }

// Double wraps a float64 into a Value.
func Double(v float64) Value { return Value{Kind: KindDouble, F64: v} }

// VarChar wraps a string into a Value.
func VarChar(v string) Value { return Value{Kind: KindVarChar, S: v} }

// FloatVector wraps a float32 slice into a Value.
func FloatVector(v []float32) Value { return Value{Kind: KindFloatVector, FV: v} }

// BinaryVector wraps a packed bit vector into a Value.
func BinaryVector(v []byte) Value { return Value{Kind: KindBinaryVector, BV: v} }

// String returns a human-readable representation of the value.
func (v Value) String() string {
	switch v.Kind {
	case KindBool:
		return fmt.Sprintf("%t", v.B)
	case KindInt64:
		return fmt.Sprintf("%d", v.I64)
	case KindDouble:
		return fmt.Sprintf("%g", v.F64)
	case KindVarChar:
		return v.S
	case KindFloatVector:
		return fmt.Sprintf("FloatVector(%d)", len(v.FV))
	case KindBinaryVector:
		return fmt.Sprintf("BinaryVector(%d)", len(v.BV)*8)
	default:
		return "null"
	}
}

// Row maps field names to typed values. A row must satisfy the schema of
// the collection it is inserted into.
type Row map[string]Value

// Clone returns a shallow copy of the row. Vector payloads are shared.
func (r Row) Clone() Row {
	out := make(Row, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}

// PrimaryKey is the user-facing stable row identifier. It is either an
// int64 or a string, depending on the schema's primary field type.
// The zero value is an int64 key of 0.
type PrimaryKey struct {
	Kind Kind // KindInt64 or KindVarChar
	I64  int64
	S    string
}

// IntKey builds an int64 primary key.
func IntKey(v int64) PrimaryKey { return PrimaryKey{Kind: KindInt64, I64: v} }

// StringKey builds a string primary key.
func StringKey(v string) PrimaryKey { return PrimaryKey{Kind: KindVarChar, S: v} }

// Value converts the primary key back into a field Value.
func (pk PrimaryKey) Value() Value {
	if pk.Kind == KindVarChar {
		return VarChar(pk.S)
	}
	return Int64(pk.I64)
}

// String returns a string representation of the PrimaryKey.
func (pk PrimaryKey) String() string {
	if pk.Kind == KindVarChar {
		return pk.S
	}
	return fmt.Sprintf("%d", pk.I64)
}

// SearchHit is a single scored row returned by a vector search.
type SearchHit struct {
	RowID RowID
	PK    PrimaryKey
	// Distance is ascending-better for every metric (L2: squared
	// Euclidean, IP: negative inner product, Hamming: differing bits).
	Distance float32
	// Fields holds the projected output fields, if any were requested.
	Fields Row
}

// SearchResult is the outcome for one query vector.
type SearchResult struct {
	Hits []SearchHit
	// Timeout is set when the search deadline expired before scoring
	// finished; Hits then holds partial results.
	Timeout bool
}
