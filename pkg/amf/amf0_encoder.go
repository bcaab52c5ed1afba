package amf

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// EncodeAMF0Sequence encodes values back to back.
func EncodeAMF0Sequence(values ...any) ([]byte, error) {
	buf := make([]byte, 0, 128)
	var err error
	for _, val := range values {
		if buf, err = appendValue(buf, val); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendValue(buf []byte, value any) ([]byte, error) {
	switch v := value.(type) {
	case nil:
		return append(buf, nullMarker), nil
	case bool:
		b := byte(0)
		if v {
			b = 1
		}
		return append(buf, booleanMarker, b), nil
	case float64:
		return appendNumber(buf, v), nil
	case float32:
		return appendNumber(buf, float64(v)), nil
	case int:
		return appendNumber(buf, float64(v)), nil
	case int32:
		return appendNumber(buf, float64(v)), nil
	case int64:
		return appendNumber(buf, float64(v)), nil
	case uint32:
		return appendNumber(buf, float64(v)), nil
	case string:
		return appendString(buf, v), nil
	case Object:
		return appendObject(buf, v)
	case map[string]any:
		return appendMap(buf, v)
	case []any:
		return appendStrictArray(buf, v)
	case time.Time:
		return appendDate(buf, v), nil
	default:
		return nil, fmt.Errorf("%w: %T", ErrUnsupportedType, value)
	}
}

func appendNumber(buf []byte, v float64) []byte {
	buf = append(buf, numberMarker)
	return binary.BigEndian.AppendUint64(buf, math.Float64bits(v))
}

func appendString(buf []byte, s string) []byte {
	if len(s) <= math.MaxUint16 {
		buf = append(buf, stringMarker)
		buf = binary.BigEndian.AppendUint16(buf, uint16(len(s)))
		return append(buf, s...)
	}
	buf = append(buf, longStringMarker)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func appendKey(buf []byte, key string) ([]byte, error) {
	if len(key) > math.MaxUint16 {
		return nil, ErrKeyTooLong
	}
	buf = binary.BigEndian.AppendUint16(buf, uint16(len(key)))
	return append(buf, key...), nil
}

func appendObject(buf []byte, obj Object) ([]byte, error) {
	var err error
	buf = append(buf, objectMarker)
	for _, p := range obj {
		if buf, err = appendKey(buf, p.Key); err != nil {
			return nil, err
		}
		if buf, err = appendValue(buf, p.Value); err != nil {
			return nil, err
		}
	}
	return append(buf, 0x00, 0x00, objectEndMarker), nil
}

func appendMap(buf []byte, m map[string]any) ([]byte, error) {
	obj := make(Object, 0, len(m))
	for k, v := range m {
		obj = append(obj, Property{Key: k, Value: v})
	}
	return appendObject(buf, obj)
}

func appendStrictArray(buf []byte, arr []any) ([]byte, error) {
	var err error
	buf = append(buf, strictArrayMarker)
	buf = binary.BigEndian.AppendUint32(buf, uint32(len(arr)))
	for _, v := range arr {
		if buf, err = appendValue(buf, v); err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendDate(buf []byte, t time.Time) []byte {
	buf = append(buf, dateMarker)
	ms := float64(t.UnixNano()) / 1e6
	buf = binary.BigEndian.AppendUint64(buf, math.Float64bits(ms))
	return append(buf, 0x00, 0x00)
}
