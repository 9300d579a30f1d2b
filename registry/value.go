package registry

import (
	"math"

	bridge "github.com/wippyai/bridge-runtime"
	"github.com/wippyai/bridge-runtime/errors"
)

// Kind discriminates the closed set of value representations.
type Kind uint8

const (
	KindInt Kind = iota
	KindBytes
	KindText
	KindTuple
	KindRemote
	KindObject
)

func (k Kind) String() string {
	switch k {
	case KindInt:
		return "int"
	case KindBytes:
		return "bytes"
	case KindText:
		return "text"
	case KindTuple:
		return "tuple"
	case KindRemote:
		return "remote"
	case KindObject:
		return "object"
	}
	return "unknown"
}

// Value is one registry entry: a tagged variant over the primitive
// kinds the bridge can represent. Aliased handles (dup) share the
// underlying storage; values have reference semantics, not copy
// semantics.
type Value struct {
	Kind  Kind
	Int   int64
	Bytes []byte
	Str   string
	Tuple []Value
	Obj   any // KindObject payload, or the bridge.Remote for KindRemote
}

func IntValue(v int64) Value {
	return Value{Kind: KindInt, Int: v}
}

func BytesValue(b []byte) Value {
	return Value{Kind: KindBytes, Bytes: b}
}

func TextValue(s string) Value {
	return Value{Kind: KindText, Str: s}
}

func TupleValue(items []Value) Value {
	return Value{Kind: KindTuple, Tuple: items}
}

func RemoteValue(r bridge.Remote) Value {
	return Value{Kind: KindRemote, Obj: r}
}

func ObjectValue(v any) Value {
	return Value{Kind: KindObject, Obj: v}
}

// FromAny wraps an arbitrary Go value into the variant, normalizing
// integral kinds, text, byte buffers, slices, and remote proxies.
// Anything else is stored opaquely.
func FromAny(v any) Value {
	switch x := v.(type) {
	case Value:
		return x
	case bridge.Remote:
		return RemoteValue(x)
	case bool:
		if x {
			return IntValue(1)
		}
		return IntValue(0)
	case int:
		return IntValue(int64(x))
	case int8:
		return IntValue(int64(x))
	case int16:
		return IntValue(int64(x))
	case int32:
		return IntValue(int64(x))
	case int64:
		return IntValue(x)
	case uint:
		return IntValue(int64(x))
	case uint8:
		return IntValue(int64(x))
	case uint16:
		return IntValue(int64(x))
	case uint32:
		return IntValue(int64(x))
	case uint64:
		if x > math.MaxInt64 {
			return ObjectValue(x)
		}
		return IntValue(int64(x))
	case string:
		return TextValue(x)
	case []byte:
		return BytesValue(x)
	case []Value:
		return TupleValue(x)
	case []any:
		items := make([]Value, len(x))
		for i, item := range x {
			items[i] = FromAny(item)
		}
		return TupleValue(items)
	default:
		return ObjectValue(v)
	}
}

// Interface unwraps the value for local use: int64, []byte, string,
// []any, the remote proxy, or the opaque object.
func (v Value) Interface() any {
	switch v.Kind {
	case KindInt:
		return v.Int
	case KindBytes:
		return v.Bytes
	case KindText:
		return v.Str
	case KindTuple:
		items := make([]any, len(v.Tuple))
		for i, item := range v.Tuple {
			items[i] = item.Interface()
		}
		return items
	default:
		return v.Obj
	}
}

// AsInt requires the value to be integral.
func (v Value) AsInt() (int64, error) {
	if v.Kind != KindInt {
		return 0, errors.TypeMismatch(errors.PhaseDispatch, "integer", v.Kind.String())
	}
	return v.Int, nil
}

// AsBytes requires the value to be text or raw bytes; text is encoded
// to UTF-8.
func (v Value) AsBytes() ([]byte, error) {
	switch v.Kind {
	case KindText:
		return []byte(v.Str), nil
	case KindBytes:
		return v.Bytes, nil
	}
	return nil, errors.TypeMismatch(errors.PhaseDispatch, "text or bytes", v.Kind.String())
}

// Remote returns the remote proxy when the value wraps one.
func (v Value) Remote() (bridge.Remote, bool) {
	if v.Kind != KindRemote {
		return nil, false
	}
	r, ok := v.Obj.(bridge.Remote)
	return r, ok
}
