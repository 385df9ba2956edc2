// Package schema holds table and column definitions: the external
// collaborator that supplies column order, nullability, and primitive
// types to the storage core's RecordSerializer and B+Tree node views.
package schema

import "github.com/relstore/storagecore/internal/types"

// Column describes one column of a table.
type Column struct {
	Name     string
	Kind     types.Kind
	Nullable bool
	MaxLen   int // advisory only for Varchar; RecordSerializer trusts the length prefix
}

// Table describes a table's columns and which of them form the primary key,
// in PK-declaration order.
type Table struct {
	Name       string
	Columns    []Column
	PrimaryKey []int // indexes into Columns, in key order
}

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// KeyOf projects a record's primary-key columns into a Key.
func (t *Table) KeyOf(rec types.Record) types.Key {
	key := make(types.Key, len(t.PrimaryKey))
	for i, colIdx := range t.PrimaryKey {
		key[i] = rec[colIdx]
	}
	return key
}

// NullBitmapBytes returns ceil(len(Columns)/8).
func (t *Table) NullBitmapBytes() int {
	return (len(t.Columns) + 7) / 8
}
