package amf

import (
	"encoding/binary"
	"fmt"
	"math"
	"time"
)

// DecodeAMF0Sequence decodes every value in data. Objects and ECMA arrays
// decode to map[string]any, strict arrays to []any, null/undefined to nil.
func DecodeAMF0Sequence(data []byte) ([]any, error) {
	d := &decoder{buf: data}
	values := make([]any, 0, 5)

	for d.off < len(d.buf) {
		val, err := d.value()
		if err != nil {
			return values, fmt.Errorf("AMF0 decode failed at offset %d: %w", d.off, err)
		}
		values = append(values, val)
	}
	return values, nil
}

// DecodeAMF0 decodes the first value in data and reports how many bytes it used.
func DecodeAMF0(data []byte) (any, int, error) {
	d := &decoder{buf: data}
	val, err := d.value()
	if err != nil {
		return nil, d.off, err
	}
	return val, d.off, nil
}

// MaxNestingDepth bounds how deeply objects and arrays may nest.
const MaxNestingDepth = 32

type decoder struct {
	buf   []byte
	off   int
	depth int
}

// enter counts one more level of nesting; the caller defers leave.
func (d *decoder) enter() error {
	if d.depth >= MaxNestingDepth {
		return ErrNestingTooDeep
	}
	d.depth++
	return nil
}

func (d *decoder) leave() {
	d.depth--
}

func (d *decoder) next(n int) ([]byte, error) {
	if n < 0 || d.off+n > len(d.buf) {
		return nil, ErrShortBuffer
	}
	b := d.buf[d.off : d.off+n]
	d.off += n
	return b, nil
}

func (d *decoder) value() (any, error) {
	marker, err := d.next(1)
	if err != nil {
		return nil, err
	}

	switch marker[0] {
	case numberMarker:
		return d.number()
	case booleanMarker:
		b, err := d.next(1)
		if err != nil {
			return nil, err
		}
		return b[0] != 0, nil
	case stringMarker:
		return d.shortString()
	case longStringMarker:
		return d.longString()
	case objectMarker:
		return d.object()
	case nullMarker, undefinedMarker:
		return nil, nil
	case ecmaArrayMarker:
		// 길이 필드는 신뢰할 수 없으므로 end marker 까지 읽는다
		if _, err := d.next(4); err != nil {
			return nil, err
		}
		return d.object()
	case strictArrayMarker:
		return d.strictArray()
	case dateMarker:
		return d.date()
	default:
		return nil, fmt.Errorf("%w: 0x%x", ErrUnsupportedMarker, marker[0])
	}
}

func (d *decoder) number() (float64, error) {
	b, err := d.next(8)
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(binary.BigEndian.Uint64(b)), nil
}

func (d *decoder) shortString() (string, error) {
	l, err := d.next(2)
	if err != nil {
		return "", err
	}
	s, err := d.next(int(binary.BigEndian.Uint16(l)))
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (d *decoder) longString() (string, error) {
	l, err := d.next(4)
	if err != nil {
		return "", err
	}
	s, err := d.next(int(binary.BigEndian.Uint32(l)))
	if err != nil {
		return "", err
	}
	return string(s), nil
}

func (d *decoder) object() (map[string]any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	obj := make(map[string]any)
	for {
		key, err := d.shortString()
		if err != nil {
			return nil, err
		}
		if key == "" {
			end, err := d.next(1)
			if err != nil {
				return nil, err
			}
			if end[0] != objectEndMarker {
				return nil, ErrMissingObjectEnd
			}
			return obj, nil
		}
		val, err := d.value()
		if err != nil {
			return nil, err
		}
		obj[key] = val
	}
}

func (d *decoder) strictArray() ([]any, error) {
	if err := d.enter(); err != nil {
		return nil, err
	}
	defer d.leave()

	c, err := d.next(4)
	if err != nil {
		return nil, err
	}
	count := binary.BigEndian.Uint32(c)
	if int(count) > len(d.buf)-d.off {
		// every element takes at least one byte
		return nil, ErrShortBuffer
	}
	arr := make([]any, count)
	for i := range arr {
		if arr[i], err = d.value(); err != nil {
			return nil, err
		}
	}
	return arr, nil
}

func (d *decoder) date() (time.Time, error) {
	millis, err := d.number()
	if err != nil {
		return time.Time{}, err
	}
	// timezone offset, ignored by every client
	if _, err := d.next(2); err != nil {
		return time.Time{}, err
	}
	sec := int64(millis / 1000)
	nsec := int64(math.Mod(millis, 1000) * 1e6)
	return time.Unix(sec, nsec).UTC(), nil
}
