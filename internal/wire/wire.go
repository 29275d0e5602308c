// Package wire implements the schema-free binary codec used by the Cursor
// Agent session protocol. The codec only uses varint and length-delimited
// wire types; default values (zero, empty string, empty bytes, false) are
// omitted on encode and treated as absent on decode. Unknown field numbers
// are skipped so silent server-side schema additions do not break parsing.
package wire

import (
	"errors"
	"fmt"
)

// Wire types used by the codec.
const (
	TypeVarint = 0
	TypeBytes  = 2
)

// MaxVarintLen is the longest accepted varint encoding in bytes.
const MaxVarintLen = 10

var (
	// ErrMalformedVarint is returned when a varint does not terminate
	// within MaxVarintLen bytes or the buffer ends mid-value.
	ErrMalformedVarint = errors.New("wire: malformed varint")

	// ErrTruncated is returned when a length-delimited payload extends
	// past the end of the buffer.
	ErrTruncated = errors.New("wire: truncated field payload")
)

// AppendVarint appends v in little-endian base-128 form. The encoder always
// emits at least one byte, so zero encodes as a single 0x00.
func AppendVarint(dst []byte, v uint64) []byte {
	for v >= 0x80 {
		dst = append(dst, byte(v)|0x80)
		v >>= 7
	}
	return append(dst, byte(v))
}

// ReadVarint decodes a varint from the start of data and returns the value
// and the number of bytes consumed.
func ReadVarint(data []byte) (uint64, int, error) {
	var v uint64
	for i := 0; i < len(data); i++ {
		if i >= MaxVarintLen {
			return 0, 0, ErrMalformedVarint
		}
		b := data[i]
		v |= uint64(b&0x7f) << (7 * uint(i))
		if b < 0x80 {
			return v, i + 1, nil
		}
	}
	return 0, 0, ErrMalformedVarint
}

// AppendTag appends the field tag (field_number << 3) | wire_type.
func AppendTag(dst []byte, field, wireType int) []byte {
	return AppendVarint(dst, uint64(field)<<3|uint64(wireType))
}

// AppendUint appends a varint field, omitting zero values.
func AppendUint(dst []byte, field int, v uint64) []byte {
	if v == 0 {
		return dst
	}
	dst = AppendTag(dst, field, TypeVarint)
	return AppendVarint(dst, v)
}

// AppendInt32 appends a signed 32-bit varint field, omitting zero. Negative
// values are carried as the unsigned two's-complement 32-bit form.
func AppendInt32(dst []byte, field int, v int32) []byte {
	return AppendUint(dst, field, uint64(uint32(v)))
}

// AppendInt64 appends a signed 64-bit varint field, omitting zero.
func AppendInt64(dst []byte, field int, v int64) []byte {
	return AppendUint(dst, field, uint64(v))
}

// AppendString appends a length-delimited string field, omitting empties.
func AppendString(dst []byte, field int, s string) []byte {
	if s == "" {
		return dst
	}
	dst = AppendTag(dst, field, TypeBytes)
	dst = AppendVarint(dst, uint64(len(s)))
	return append(dst, s...)
}

// AppendBytes appends a length-delimited bytes field, omitting empties.
func AppendBytes(dst []byte, field int, b []byte) []byte {
	if len(b) == 0 {
		return dst
	}
	dst = AppendTag(dst, field, TypeBytes)
	dst = AppendVarint(dst, uint64(len(b)))
	return append(dst, b...)
}

// AppendBool appends a varint bool field, omitting false.
func AppendBool(dst []byte, field int, v bool) []byte {
	if !v {
		return dst
	}
	dst = AppendTag(dst, field, TypeVarint)
	return append(dst, 1)
}

// AppendMessage appends a nested message field. Unlike scalar fields a
// present message is always emitted, even with an empty body.
func AppendMessage(dst []byte, field int, body []byte) []byte {
	dst = AppendTag(dst, field, TypeBytes)
	dst = AppendVarint(dst, uint64(len(body)))
	return append(dst, body...)
}

// Field is one decoded (field_number, wire_type, payload) triple. Varint
// holds the value for TypeVarint fields, Bytes the payload for TypeBytes.
type Field struct {
	Num    int
	Type   int
	Varint uint64
	Bytes  []byte
}

// ParseFields decodes every field in data. Fields with fixed-width wire
// types are skipped (the session schema never uses them); any other
// malformed input fails the whole message.
func ParseFields(data []byte) ([]Field, error) {
	var fields []Field
	for len(data) > 0 {
		tag, n, err := ReadVarint(data)
		if err != nil {
			return nil, err
		}
		data = data[n:]
		num := int(tag >> 3)
		wt := int(tag & 7)
		switch wt {
		case TypeVarint:
			v, n, err := ReadVarint(data)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			fields = append(fields, Field{Num: num, Type: wt, Varint: v})
		case TypeBytes:
			length, n, err := ReadVarint(data)
			if err != nil {
				return nil, err
			}
			data = data[n:]
			if uint64(len(data)) < length {
				return nil, ErrTruncated
			}
			fields = append(fields, Field{Num: num, Type: wt, Bytes: data[:length:length]})
			data = data[length:]
		case 1: // fixed64, tolerated but never produced by this codec
			if len(data) < 8 {
				return nil, ErrTruncated
			}
			data = data[8:]
		case 5: // fixed32
			if len(data) < 4 {
				return nil, ErrTruncated
			}
			data = data[4:]
		default:
			return nil, fmt.Errorf("wire: unsupported wire type %d for field %d", wt, num)
		}
	}
	return fields, nil
}

// FindField returns the first field with the given number, or nil.
func FindField(fields []Field, num int) *Field {
	for i := range fields {
		if fields[i].Num == num {
			return &fields[i]
		}
	}
	return nil
}
