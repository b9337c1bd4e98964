package export

import (
	"encoding/binary"
	"fmt"
	"math"
	"reflect"
	"sync"
)

// encodeFunc and decodeFunc are the codec pair RegisterCodec installs
// for a Go type. They operate on the concrete type via the any
// boundary; codecFor performs the type assertion back to T.
type encodeFunc func(v any) ([]byte, error)
type decodeFunc func(b []byte) (any, error)

type codecEntry struct {
	tag    byte
	encode encodeFunc
	decode decodeFunc
	rtype  reflect.Type
}

var (
	codecMu     sync.RWMutex
	codecByTag  = map[byte]*codecEntry{}
	codecByType = map[reflect.Type]*codecEntry{}
)

// Built-in type tags. 0 is reserved to flag "no codec" in diagnostics.
const (
	TagInt64   byte = 1
	TagFloat64 byte = 2
	TagBool    byte = 3
	TagString  byte = 4
	TagBytes   byte = 5
)

func init() {
	registerBuiltin(TagInt64, int64(0), encodeInt64, decodeInt64)
	registerBuiltin(TagFloat64, float64(0), encodeFloat64, decodeFloat64)
	registerBuiltin(TagBool, false, encodeBool, decodeBool)
	registerBuiltin(TagString, "", encodeString, decodeString)
	registerBuiltin(TagBytes, []byte(nil), encodeBytesVal, decodeBytesVal)
}

func registerBuiltin(tag byte, zero any, enc encodeFunc, dec decodeFunc) {
	rtype := reflect.TypeOf(zero)
	entry := &codecEntry{tag: tag, encode: enc, decode: dec, rtype: rtype}
	codecByTag[tag] = entry
	codecByType[rtype] = entry
}

// RegisterCodec installs an encoder/decoder pair for type T under a
// caller-chosen tag. Tags 1-5 are reserved for the built-in kinds
// (int64, float64, bool, string, []byte); programs registering their
// own aggregate value types pick a tag of 16 or above. RegisterCodec
// takes the registry's write lock, so it may run concurrently with
// Put/Get; aggregate programs typically call it from package init to
// declare their value types once at startup.
func RegisterCodec[T any](tag byte, encode func(T) ([]byte, error), decode func([]byte) (T, error)) {
	codecMu.Lock()
	defer codecMu.Unlock()

	var zero T
	rtype := reflect.TypeOf(&zero).Elem()
	entry := &codecEntry{
		tag: tag,
		encode: func(v any) ([]byte, error) {
			return encode(v.(T))
		},
		decode: func(b []byte) (any, error) {
			return decode(b)
		},
		rtype: rtype,
	}
	codecByTag[tag] = entry
	codecByType[rtype] = entry
}

func codecFor[T any]() (tag byte, encode func(T) ([]byte, error), decode func([]byte) (T, error), ok bool) {
	var zero T
	rtype := reflect.TypeOf(&zero).Elem()

	codecMu.RLock()
	entry, found := codecByType[rtype]
	codecMu.RUnlock()
	if !found {
		return 0, nil, nil, false
	}

	return entry.tag, func(v T) ([]byte, error) {
			return entry.encode(v)
		}, func(b []byte) (T, error) {
			var out T
			v, err := entry.decode(b)
			if err != nil {
				return out, err
			}
			typed, ok := v.(T)
			if !ok {
				return out, fmt.Errorf("export: codec for tag %d returned %T, want %T", entry.tag, v, out)
			}
			return typed, nil
		}, true
}

func encodeInt64(v any) ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, uint64(v.(int64)))
	return b, nil
}

func decodeInt64(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("export: int64 payload must be 8 bytes, got %d", len(b))
	}
	return int64(binary.LittleEndian.Uint64(b)), nil
}

func encodeFloat64(v any) ([]byte, error) {
	b := make([]byte, 8)
	binary.LittleEndian.PutUint64(b, math.Float64bits(v.(float64)))
	return b, nil
}

func decodeFloat64(b []byte) (any, error) {
	if len(b) != 8 {
		return nil, fmt.Errorf("export: float64 payload must be 8 bytes, got %d", len(b))
	}
	return math.Float64frombits(binary.LittleEndian.Uint64(b)), nil
}

func encodeBool(v any) ([]byte, error) {
	if v.(bool) {
		return []byte{1}, nil
	}
	return []byte{0}, nil
}

func decodeBool(b []byte) (any, error) {
	if len(b) != 1 {
		return nil, fmt.Errorf("export: bool payload must be 1 byte, got %d", len(b))
	}
	return b[0] != 0, nil
}

func encodeString(v any) ([]byte, error) {
	return []byte(v.(string)), nil
}

func decodeString(b []byte) (any, error) {
	return string(b), nil
}

func encodeBytesVal(v any) ([]byte, error) {
	return append([]byte(nil), v.([]byte)...), nil
}

func decodeBytesVal(b []byte) (any, error) {
	return append([]byte(nil), b...), nil
}
