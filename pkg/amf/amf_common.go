package amf

import "errors"

const (
	numberMarker      = 0x00
	booleanMarker     = 0x01
	stringMarker      = 0x02
	objectMarker      = 0x03
	nullMarker        = 0x05
	undefinedMarker   = 0x06
	ecmaArrayMarker   = 0x08
	objectEndMarker   = 0x09
	strictArrayMarker = 0x0A
	dateMarker        = 0x0B
	longStringMarker  = 0x0C
)

var (
	ErrUnsupportedMarker = errors.New("unsupported AMF0 marker")
	ErrUnsupportedType   = errors.New("unsupported AMF0 type")
	ErrMissingObjectEnd  = errors.New("expected object end marker")
	ErrShortBuffer       = errors.New("AMF0 data truncated")
	ErrKeyTooLong        = errors.New("object key too long")
	ErrNestingTooDeep    = errors.New("AMF0 nesting too deep")
)

// Property is one key/value pair of an Object.
type Property struct {
	Key   string
	Value any
}

// Object is an AMF0 object that keeps its properties in insertion order.
// Flash clients do not care about the order, but logs and tests do.
type Object []Property

// Get returns the value stored under key.
func (o Object) Get(key string) (any, bool) {
	for _, p := range o {
		if p.Key == key {
			return p.Value, true
		}
	}
	return nil, false
}

// Map converts the object into a plain map.
func (o Object) Map() map[string]any {
	m := make(map[string]any, len(o))
	for _, p := range o {
		m[p.Key] = p.Value
	}
	return m
}
