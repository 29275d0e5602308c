package wire

import (
	"fmt"
	"math"

	"github.com/tidwall/gjson"
)

// Value message field numbers. Each JSON shape maps to one tagged variant;
// lists are repeated field 5, objects repeated (key, Value) pairs at 6.
const (
	valueNull   = 1
	valueBool   = 2
	valueNumber = 3
	valueString = 4
	valueList   = 5
	valueObject = 6

	objectPairKey   = 1
	objectPairValue = 2
)

// EncodeValue encodes an arbitrary JSON value into the generic Value
// message used for tool-schema passthrough. Variant tags are emitted even
// for default payloads so that presence survives the round trip; numbers
// are IEEE-754 doubles carried as a varint of their bit pattern, keeping
// the codec free of fixed-width wire types. Object key order follows the
// caller's document order.
func EncodeValue(v gjson.Result) []byte {
	var dst []byte
	switch v.Type {
	case gjson.Null:
		dst = AppendTag(dst, valueNull, TypeVarint)
		dst = append(dst, 0)
	case gjson.True, gjson.False:
		dst = AppendTag(dst, valueBool, TypeVarint)
		if v.Bool() {
			dst = append(dst, 1)
		} else {
			dst = append(dst, 0)
		}
	case gjson.Number:
		dst = AppendTag(dst, valueNumber, TypeVarint)
		dst = AppendVarint(dst, math.Float64bits(v.Float()))
	case gjson.String:
		dst = AppendTag(dst, valueString, TypeBytes)
		dst = AppendVarint(dst, uint64(len(v.Str)))
		dst = append(dst, v.Str...)
	case gjson.JSON:
		if v.IsArray() {
			v.ForEach(func(_, item gjson.Result) bool {
				dst = AppendMessage(dst, valueList, EncodeValue(item))
				return true
			})
		} else {
			v.ForEach(func(key, item gjson.Result) bool {
				var pair []byte
				pair = AppendString(pair, objectPairKey, key.String())
				pair = AppendMessage(pair, objectPairValue, EncodeValue(item))
				dst = AppendMessage(dst, valueObject, pair)
				return true
			})
		}
	}
	return dst
}

// DecodeValue is the inverse of EncodeValue. It exists so tests can verify
// numeric fidelity and shape preservation for unknown tool schemas.
func DecodeValue(data []byte) (any, error) {
	fields, err := ParseFields(data)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		// An empty Value body is an empty object: objects with no keys
		// emit no pair fields at all.
		return map[string]any{}, nil
	}
	switch fields[0].Num {
	case valueNull:
		return nil, nil
	case valueBool:
		return fields[0].Varint != 0, nil
	case valueNumber:
		return math.Float64frombits(fields[0].Varint), nil
	case valueString:
		return string(fields[0].Bytes), nil
	case valueList:
		list := make([]any, 0, len(fields))
		for _, f := range fields {
			if f.Num != valueList {
				continue
			}
			item, errItem := DecodeValue(f.Bytes)
			if errItem != nil {
				return nil, errItem
			}
			list = append(list, item)
		}
		return list, nil
	case valueObject:
		obj := make(map[string]any, len(fields))
		for _, f := range fields {
			if f.Num != valueObject {
				continue
			}
			pair, errPair := ParseFields(f.Bytes)
			if errPair != nil {
				return nil, errPair
			}
			key := FindField(pair, objectPairKey)
			val := FindField(pair, objectPairValue)
			if key == nil {
				continue
			}
			var decoded any
			if val != nil {
				if decoded, errPair = DecodeValue(val.Bytes); errPair != nil {
					return nil, errPair
				}
			}
			obj[string(key.Bytes)] = decoded
		}
		return obj, nil
	default:
		return nil, fmt.Errorf("wire: unknown value variant %d", fields[0].Num)
	}
}
