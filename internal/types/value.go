// Package types defines the value model consumed by the storage core: typed
// scalars and the ordered tuples (records and keys) built from them. The
// storage engine treats this package as an external collaborator — it only
// needs a stable, total-ordered representation and a fixed/varlen byte
// encoding per Kind, not a full SQL type system.
package types

import (
	"bytes"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Kind identifies the primitive type of a Value.
type Kind uint8

const (
	KindInt Kind = iota
	KindBigInt
	KindBoolean
	KindDateTime
	KindDecimal
	KindVarchar
	KindUUID
)

// FixedWidth reports the on-disk width in bytes for fixed-width kinds, or
// 0 for varlen kinds (Varchar), which are instead prefixed by an i32 length.
func (k Kind) FixedWidth() int {
	switch k {
	case KindInt:
		return 4
	case KindBigInt:
		return 8
	case KindBoolean:
		return 1
	case KindDateTime:
		return 8
	case KindDecimal:
		return decimalWidth
	case KindUUID:
		return 16
	default:
		return 0
	}
}

// IsVarlen reports whether values of this kind are varlen-encoded.
func (k Kind) IsVarlen() bool { return k == KindVarchar }

// Value is a single typed scalar. Exactly one of the typed fields is
// meaningful, selected by Kind; Null, when true, overrides all of them.
type Value struct {
	Kind    Kind
	Null    bool
	Int     int32
	BigInt  int64
	Bool    bool
	Time    time.Time
	Decimal decimal.Decimal
	Text    string
	UUID    uuid.UUID
}

// NewInt builds a non-null Int value.
func NewInt(v int32) Value { return Value{Kind: KindInt, Int: v} }

// NewBigInt builds a non-null BigInt value.
func NewBigInt(v int64) Value { return Value{Kind: KindBigInt, BigInt: v} }

// NewBool builds a non-null Boolean value.
func NewBool(v bool) Value { return Value{Kind: KindBoolean, Bool: v} }

// NewDateTime builds a non-null DateTime value.
func NewDateTime(v time.Time) Value { return Value{Kind: KindDateTime, Time: v} }

// NewDecimal builds a non-null Decimal value.
func NewDecimal(v decimal.Decimal) Value { return Value{Kind: KindDecimal, Decimal: v} }

// NewVarchar builds a non-null Varchar value.
func NewVarchar(v string) Value { return Value{Kind: KindVarchar, Text: v} }

// NewUUID builds a non-null UUID value.
func NewUUID(v uuid.UUID) Value { return Value{Kind: KindUUID, UUID: v} }

// NewNull builds a null value of the given kind.
func NewNull(k Kind) Value { return Value{Kind: k, Null: true} }

// Equal reports whether two values of the same kind are identical.
func (v Value) Equal(other Value) bool {
	if v.Kind != other.Kind {
		return false
	}
	if v.Null || other.Null {
		return v.Null == other.Null
	}
	switch v.Kind {
	case KindInt:
		return v.Int == other.Int
	case KindBigInt:
		return v.BigInt == other.BigInt
	case KindBoolean:
		return v.Bool == other.Bool
	case KindDateTime:
		return v.Time.Equal(other.Time)
	case KindDecimal:
		return v.Decimal.Equal(other.Decimal)
	case KindVarchar:
		return v.Text == other.Text
	case KindUUID:
		return v.UUID == other.UUID
	default:
		return false
	}
}

// Compare orders two values of the same kind; null sorts before non-null.
func (v Value) Compare(other Value) int {
	if v.Null && other.Null {
		return 0
	}
	if v.Null {
		return -1
	}
	if other.Null {
		return 1
	}
	switch v.Kind {
	case KindInt:
		return cmpInt32(v.Int, other.Int)
	case KindBigInt:
		return cmpInt64(v.BigInt, other.BigInt)
	case KindBoolean:
		return cmpBool(v.Bool, other.Bool)
	case KindDateTime:
		return cmpInt64(v.Time.UnixNano(), other.Time.UnixNano())
	case KindDecimal:
		return v.Decimal.Cmp(other.Decimal)
	case KindVarchar:
		switch {
		case v.Text < other.Text:
			return -1
		case v.Text > other.Text:
			return 1
		default:
			return 0
		}
	case KindUUID:
		return bytes.Compare(v.UUID[:], other.UUID[:])
	default:
		panic(fmt.Sprintf("types: compare unsupported kind %v", v.Kind))
	}
}

func cmpInt32(a, b int32) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

func cmpBool(a, b bool) int {
	if a == b {
		return 0
	}
	if !a && b {
		return -1
	}
	return 1
}
