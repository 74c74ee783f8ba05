package entity

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"

	"github.com/l1jgo/entitysync/internal/spatial"
	"github.com/vmihailenco/msgpack/v5"
)

// Kind tags the payload held by a Value.
type Kind uint8

const (
	KindNil Kind = iota // only valid nested inside a list or map
	KindBool
	KindInt
	KindUint
	KindFloat
	KindString
	KindVector
	KindList
	KindMap
	KindBlob
)

var kindNames = [...]string{"nil", "bool", "int", "uint", "float", "string", "vector", "list", "map", "blob"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "Kind(" + strconv.Itoa(int(k)) + ")"
}

// Value is an immutable tagged variant stored under an entity data key.
// Constructors copy slices and maps so a Value never aliases caller memory.
type Value struct {
	kind Kind
	b    bool
	i    int64
	u    uint64
	f    float64
	s    string
	v    spatial.Vec3
	list []Value
	m    map[string]Value
	blob []byte
}

func Nil() Value                  { return Value{} }
func Bool(b bool) Value           { return Value{kind: KindBool, b: b} }
func Int(i int64) Value           { return Value{kind: KindInt, i: i} }
func Uint(u uint64) Value         { return Value{kind: KindUint, u: u} }
func Float(f float64) Value       { return Value{kind: KindFloat, f: f} }
func String(s string) Value       { return Value{kind: KindString, s: s} }
func Vector(v spatial.Vec3) Value { return Value{kind: KindVector, v: v} }

func List(items ...Value) Value {
	return Value{kind: KindList, list: append([]Value(nil), items...)}
}

func Map(m map[string]Value) Value {
	cp := make(map[string]Value, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return Value{kind: KindMap, m: cp}
}

func Blob(b []byte) Value {
	return Value{kind: KindBlob, blob: bytes.Clone(b)}
}

func (v Value) Kind() Kind  { return v.kind }
func (v Value) IsNil() bool { return v.kind == KindNil }

func (v Value) AsBool() (bool, bool)           { return v.b, v.kind == KindBool }
func (v Value) AsInt() (int64, bool)           { return v.i, v.kind == KindInt }
func (v Value) AsUint() (uint64, bool)         { return v.u, v.kind == KindUint }
func (v Value) AsString() (string, bool)       { return v.s, v.kind == KindString }
func (v Value) AsVector() (spatial.Vec3, bool) { return v.v, v.kind == KindVector }
func (v Value) AsBlob() ([]byte, bool)         { return bytes.Clone(v.blob), v.kind == KindBlob }
func (v Value) AsList() ([]Value, bool)        { return append([]Value(nil), v.list...), v.kind == KindList }

// AsFloat also widens integer kinds.
func (v Value) AsFloat() (float64, bool) {
	switch v.kind {
	case KindFloat:
		return v.f, true
	case KindInt:
		return float64(v.i), true
	case KindUint:
		return float64(v.u), true
	}
	return 0, false
}

func (v Value) AsMap() (map[string]Value, bool) {
	if v.kind != KindMap {
		return nil, false
	}
	cp := make(map[string]Value, len(v.m))
	for k, e := range v.m {
		cp[k] = e
	}
	return cp, true
}

// Equal reports deep equality of kind and payload.
func (v Value) Equal(o Value) bool {
	if v.kind != o.kind {
		return false
	}
	switch v.kind {
	case KindNil:
		return true
	case KindBool:
		return v.b == o.b
	case KindInt:
		return v.i == o.i
	case KindUint:
		return v.u == o.u
	case KindFloat:
		return v.f == o.f
	case KindString:
		return v.s == o.s
	case KindVector:
		return v.v.Equal(o.v)
	case KindBlob:
		return bytes.Equal(v.blob, o.blob)
	case KindList:
		if len(v.list) != len(o.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(o.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(o.m) {
			return false
		}
		for k, e := range v.m {
			oe, ok := o.m[k]
			if !ok || !e.Equal(oe) {
				return false
			}
		}
		return true
	}
	return false
}

// Interface converts v back to plain Go values.
func (v Value) Interface() any {
	switch v.kind {
	case KindBool:
		return v.b
	case KindInt:
		return v.i
	case KindUint:
		return v.u
	case KindFloat:
		return v.f
	case KindString:
		return v.s
	case KindVector:
		return v.v
	case KindBlob:
		return bytes.Clone(v.blob)
	case KindList:
		out := make([]any, len(v.list))
		for i, e := range v.list {
			out[i] = e.Interface()
		}
		return out
	case KindMap:
		out := make(map[string]any, len(v.m))
		for k, e := range v.m {
			out[k] = e.Interface()
		}
		return out
	}
	return nil
}

func (v Value) String() string {
	switch v.kind {
	case KindNil:
		return "nil"
	case KindString:
		return strconv.Quote(v.s)
	case KindBlob:
		return fmt.Sprintf("blob(%d)", len(v.blob))
	case KindVector:
		return fmt.Sprintf("(%g, %g, %g)", v.v.X, v.v.Y, v.v.Z)
	}
	return fmt.Sprint(v.Interface())
}

// FromAny converts a Go value at the call boundary. Unsupported kinds are
// rejected with ErrInvalidArgument rather than stored opaquely.
func FromAny(x any) (Value, error) {
	switch t := x.(type) {
	case nil:
		return Nil(), nil
	case Value:
		return t, nil
	case bool:
		return Bool(t), nil
	case int:
		return Int(int64(t)), nil
	case int8:
		return Int(int64(t)), nil
	case int16:
		return Int(int64(t)), nil
	case int32:
		return Int(int64(t)), nil
	case int64:
		return Int(t), nil
	case uint:
		return Uint(uint64(t)), nil
	case uint8:
		return Uint(uint64(t)), nil
	case uint16:
		return Uint(uint64(t)), nil
	case uint32:
		return Uint(uint64(t)), nil
	case uint64:
		return Uint(t), nil
	case float32:
		return Float(float64(t)), nil
	case float64:
		return Float(t), nil
	case string:
		return String(t), nil
	case []byte:
		return Blob(t), nil
	case spatial.Vec3:
		return Vector(t), nil
	case []Value:
		return List(t...), nil
	case []any:
		items := make([]Value, len(t))
		for i, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("list[%d]: %w", i, err)
			}
			items[i] = v
		}
		return Value{kind: KindList, list: items}, nil
	case map[string]Value:
		return Map(t), nil
	case map[string]any:
		m := make(map[string]Value, len(t))
		for k, e := range t {
			v, err := FromAny(e)
			if err != nil {
				return Value{}, fmt.Errorf("map[%q]: %w", k, err)
			}
			m[k] = v
		}
		return Value{kind: KindMap, m: m}, nil
	}
	return Value{}, fmt.Errorf("%w: unsupported data kind %T", ErrInvalidArgument, x)
}

var (
	_ msgpack.CustomEncoder = Value{}
	_ msgpack.CustomDecoder = (*Value)(nil)
)

// EncodedSize returns the msgpack size of v in bytes.
func (v Value) EncodedSize() int {
	b, err := msgpack.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}

// EncodeMsgpack writes v as a two element array [kind, payload].
func (v Value) EncodeMsgpack(enc *msgpack.Encoder) error {
	if err := enc.EncodeArrayLen(2); err != nil {
		return err
	}
	if err := enc.EncodeUint8(uint8(v.kind)); err != nil {
		return err
	}
	switch v.kind {
	case KindNil:
		return enc.EncodeNil()
	case KindBool:
		return enc.EncodeBool(v.b)
	case KindInt:
		return enc.EncodeInt(v.i)
	case KindUint:
		return enc.EncodeUint(v.u)
	case KindFloat:
		return enc.EncodeFloat64(v.f)
	case KindString:
		return enc.EncodeString(v.s)
	case KindVector:
		return enc.Encode(v.v)
	case KindBlob:
		return enc.EncodeBytes(v.blob)
	case KindList:
		if err := enc.EncodeArrayLen(len(v.list)); err != nil {
			return err
		}
		for _, e := range v.list {
			if err := e.EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	case KindMap:
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		if err := enc.EncodeMapLen(len(keys)); err != nil {
			return err
		}
		for _, k := range keys {
			if err := enc.EncodeString(k); err != nil {
				return err
			}
			if err := v.m[k].EncodeMsgpack(enc); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("encode value: unknown kind %d", v.kind)
}

func (v *Value) DecodeMsgpack(dec *msgpack.Decoder) error {
	n, err := dec.DecodeArrayLen()
	if err != nil {
		return err
	}
	if n != 2 {
		return fmt.Errorf("decode value: want 2 elements, got %d", n)
	}
	k, err := dec.DecodeUint8()
	if err != nil {
		return err
	}
	out := Value{kind: Kind(k)}
	switch out.kind {
	case KindNil:
		err = dec.DecodeNil()
	case KindBool:
		out.b, err = dec.DecodeBool()
	case KindInt:
		out.i, err = dec.DecodeInt64()
	case KindUint:
		out.u, err = dec.DecodeUint64()
	case KindFloat:
		out.f, err = dec.DecodeFloat64()
	case KindString:
		out.s, err = dec.DecodeString()
	case KindVector:
		err = dec.Decode(&out.v)
	case KindBlob:
		out.blob, err = dec.DecodeBytes()
	case KindList:
		var l int
		if l, err = dec.DecodeArrayLen(); err != nil {
			return err
		}
		out.list = make([]Value, max(l, 0))
		for i := range out.list {
			if err = out.list[i].DecodeMsgpack(dec); err != nil {
				return err
			}
		}
	case KindMap:
		var l int
		if l, err = dec.DecodeMapLen(); err != nil {
			return err
		}
		out.m = make(map[string]Value, max(l, 0))
		for i := 0; i < l; i++ {
			key, err := dec.DecodeString()
			if err != nil {
				return err
			}
			var e Value
			if err := e.DecodeMsgpack(dec); err != nil {
				return err
			}
			out.m[key] = e
		}
	default:
		return fmt.Errorf("decode value: unknown kind %d", k)
	}
	if err != nil {
		return err
	}
	*v = out
	return nil
}
