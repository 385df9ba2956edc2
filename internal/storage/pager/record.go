package pager

import (
	"encoding/binary"
	"fmt"

	"github.com/google/uuid"
	"github.com/relstore/storagecore/internal/schema"
	"github.com/relstore/storagecore/internal/types"
)

// RecordSerializer encodes a (schema, tuple) pair to bytes and decodes the
// inverse. Wire format: a null bitmap of ceil(N/8) bytes, then fixed-width
// columns in declared order (little-endian, null columns occupy no bytes),
// then varlen columns each preceded by an i32 length.
type RecordSerializer struct{}

// Serialize encodes rec according to table's column order.
func (RecordSerializer) Serialize(table *schema.Table, rec types.Record) ([]byte, error) {
	kinds := make([]types.Kind, len(table.Columns))
	for i, c := range table.Columns {
		kinds[i] = c.Kind
	}
	return encodeValues(kinds, rec)
}

// Deserialize decodes bytes previously produced by Serialize.
func (RecordSerializer) Deserialize(table *schema.Table, data []byte) (types.Record, error) {
	kinds := make([]types.Kind, len(table.Columns))
	for i, c := range table.Columns {
		kinds[i] = c.Kind
	}
	values, err := decodeValues(kinds, data)
	if err != nil {
		return nil, err
	}
	return types.Record(values), nil
}

// KeyCodec encodes and decodes primary-key tuples using the same wire
// format as RecordSerializer, restricted to a table's PK column kinds.
type KeyCodec struct{}

func pkKinds(table *schema.Table) []types.Kind {
	kinds := make([]types.Kind, len(table.PrimaryKey))
	for i, colIdx := range table.PrimaryKey {
		kinds[i] = table.Columns[colIdx].Kind
	}
	return kinds
}

// Encode serializes a primary-key tuple.
func (KeyCodec) Encode(table *schema.Table, key types.Key) ([]byte, error) {
	return encodeValues(pkKinds(table), []types.Value(key))
}

// Decode parses a primary-key tuple.
func (KeyCodec) Decode(table *schema.Table, data []byte) (types.Key, error) {
	values, err := decodeValues(pkKinds(table), data)
	if err != nil {
		return nil, err
	}
	return types.Key(values), nil
}

func encodeValues(kinds []types.Kind, values []types.Value) ([]byte, error) {
	if len(values) != len(kinds) {
		return nil, fmt.Errorf("pager: encode: got %d values, schema has %d columns", len(values), len(kinds))
	}
	bitmapLen := (len(kinds) + 7) / 8
	bitmap := make([]byte, bitmapLen)
	for i, v := range values {
		if v.Null {
			bitmap[i/8] |= 1 << uint(i%8)
		}
	}

	fixed := make([]byte, 0, 32)
	var varlen []byte
	for i, v := range values {
		if v.Null {
			continue
		}
		switch kinds[i] {
		case types.KindInt:
			fixed = appendI32(fixed, v.Int)
		case types.KindBigInt:
			fixed = appendI64(fixed, v.BigInt)
		case types.KindBoolean:
			b := byte(0)
			if v.Bool {
				b = 1
			}
			fixed = append(fixed, b)
		case types.KindDateTime:
			fixed = appendI64(fixed, v.Time.UnixNano())
		case types.KindDecimal:
			coeff := v.Decimal.Coefficient()
			if !coeff.IsInt64() {
				return nil, fmt.Errorf("pager: encode: decimal %s does not fit in 64-bit mantissa", v.Decimal.String())
			}
			fixed = appendI64(fixed, coeff.Int64())
			fixed = appendI64(fixed, int64(v.Decimal.Exponent()))
		case types.KindUUID:
			fixed = append(fixed, v.UUID[:]...)
		case types.KindVarchar:
			b := []byte(v.Text)
			varlen = appendI32(varlen, int32(len(b)))
			varlen = append(varlen, b...)
		default:
			return nil, fmt.Errorf("pager: encode: unsupported kind %v", kinds[i])
		}
	}

	out := make([]byte, 0, bitmapLen+len(fixed)+len(varlen))
	out = append(out, bitmap...)
	out = append(out, fixed...)
	out = append(out, varlen...)
	return out, nil
}

func decodeValues(kinds []types.Kind, data []byte) ([]types.Value, error) {
	bitmapLen := (len(kinds) + 7) / 8
	if len(data) < bitmapLen {
		return nil, fmt.Errorf("pager: decode: truncated null bitmap")
	}
	bitmap := data[:bitmapLen]
	rest := data[bitmapLen:]

	values := make([]types.Value, len(kinds))
	var varlenStarts []int
	for i, k := range kinds {
		null := bitmap[i/8]&(1<<uint(i%8)) != 0
		if null {
			values[i] = types.NewNull(k)
			continue
		}
		if k.IsVarlen() {
			varlenStarts = append(varlenStarts, i)
			continue
		}
		width := k.FixedWidth()
		if len(rest) < width {
			return nil, fmt.Errorf("pager: decode: truncated fixed column %d", i)
		}
		field := rest[:width]
		rest = rest[width:]
		v, err := decodeFixed(k, field)
		if err != nil {
			return nil, err
		}
		values[i] = v
	}

	for _, i := range varlenStarts {
		if len(rest) < 4 {
			return nil, fmt.Errorf("pager: decode: truncated varlen length for column %d", i)
		}
		n := int32(binary.LittleEndian.Uint32(rest))
		rest = rest[4:]
		if n < 0 || int(n) > len(rest) {
			return nil, fmt.Errorf("pager: decode: varlen length %d exceeds remaining %d bytes", n, len(rest))
		}
		values[i] = types.NewVarchar(string(rest[:n]))
		rest = rest[n:]
	}
	return values, nil
}

func decodeFixed(k types.Kind, field []byte) (types.Value, error) {
	switch k {
	case types.KindInt:
		return types.NewInt(int32(binary.LittleEndian.Uint32(field))), nil
	case types.KindBigInt:
		return types.NewBigInt(int64(binary.LittleEndian.Uint64(field))), nil
	case types.KindBoolean:
		return types.NewBool(field[0] != 0), nil
	case types.KindDateTime:
		ns := int64(binary.LittleEndian.Uint64(field))
		return types.NewDateTime(unixNanoUTC(ns)), nil
	case types.KindDecimal:
		mantissa := int64(binary.LittleEndian.Uint64(field[0:8]))
		exp := int32(int64(binary.LittleEndian.Uint64(field[8:16])))
		return types.NewDecimal(decimalFromParts(mantissa, exp)), nil
	case types.KindUUID:
		var u uuid.UUID
		copy(u[:], field)
		return types.NewUUID(u), nil
	default:
		return types.Value{}, fmt.Errorf("pager: decode: unsupported fixed kind %v", k)
	}
}

func appendI32(dst []byte, v int32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return append(dst, b[:]...)
}

func appendI64(dst []byte, v int64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], uint64(v))
	return append(dst, b[:]...)
}
