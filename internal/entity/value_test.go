package entity

import (
	"errors"
	"testing"

	"github.com/l1jgo/entitysync/internal/spatial"
	"github.com/vmihailenco/msgpack/v5"
)

func TestFromAnyRejectsUnsupported(t *testing.T) {
	type custom struct{ A int }
	tests := []any{
		custom{A: 1},
		make(chan int),
		[]any{1, struct{}{}},
		map[string]any{"bad": func() {}},
	}
	for _, in := range tests {
		if _, err := FromAny(in); !errors.Is(err, ErrInvalidArgument) {
			t.Fatalf("FromAny(%T) err = %v, want ErrInvalidArgument", in, err)
		}
	}
}

func TestFromAnyKinds(t *testing.T) {
	tests := []struct {
		in   any
		want Kind
	}{
		{nil, KindNil},
		{true, KindBool},
		{int32(-3), KindInt},
		{uint16(3), KindUint},
		{float32(1.5), KindFloat},
		{"x", KindString},
		{[]byte{1, 2}, KindBlob},
		{spatial.V(1, 2, 3), KindVector},
		{[]any{1, "a"}, KindList},
		{map[string]any{"k": 1.0}, KindMap},
		{Int(4), KindInt},
	}
	for _, tt := range tests {
		v, err := FromAny(tt.in)
		if err != nil {
			t.Fatalf("FromAny(%v): %v", tt.in, err)
		}
		if v.Kind() != tt.want {
			t.Fatalf("FromAny(%v).Kind() = %v, want %v", tt.in, v.Kind(), tt.want)
		}
	}
}

func TestConstructorsDoNotAlias(t *testing.T) {
	raw := []byte{1, 2, 3}
	b := Blob(raw)
	raw[0] = 9
	got, _ := b.AsBlob()
	if got[0] != 1 {
		t.Fatalf("blob aliases caller slice")
	}
	m := map[string]Value{"a": Int(1)}
	mv := Map(m)
	m["a"] = Int(2)
	inner, _ := mv.AsMap()
	if !inner["a"].Equal(Int(1)) {
		t.Fatalf("map aliases caller map")
	}
}

func TestAsFloatWidensIntegers(t *testing.T) {
	if f, ok := Int(3).AsFloat(); !ok || f != 3 {
		t.Fatalf("Int AsFloat = %v, %v", f, ok)
	}
	if _, ok := String("3").AsFloat(); ok {
		t.Fatalf("string widened to float")
	}
}

func TestEqual(t *testing.T) {
	a := List(Int(1), Map(map[string]Value{"x": Vector(spatial.V(1, 2, 3))}))
	b := List(Int(1), Map(map[string]Value{"x": Vector(spatial.V(1, 2, 3))}))
	c := List(Int(1), Map(map[string]Value{"x": Vector(spatial.V(1, 2, 4))}))
	if !a.Equal(b) {
		t.Fatalf("equal lists compared unequal")
	}
	if a.Equal(c) {
		t.Fatalf("different lists compared equal")
	}
	if Int(1).Equal(Uint(1)) {
		t.Fatalf("different kinds compared equal")
	}
}

func TestMsgpackPreservesKinds(t *testing.T) {
	in := map[string]Value{
		"flag":   Bool(true),
		"hp":     Int(-5),
		"owner":  Uint(1 << 60),
		"speed":  Float(2.5),
		"name":   String("cart"),
		"target": Vector(spatial.V(1, 2, 3)),
		"blob":   Blob([]byte{0xde, 0xad}),
		"tags":   List(String("a"), Nil(), Int(2)),
		"nested": Map(map[string]Value{"k": Float(0.5)}),
	}
	raw, err := msgpack.Marshal(in)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	var out map[string]Value
	if err := msgpack.Unmarshal(raw, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("decoded %d keys, want %d", len(out), len(in))
	}
	for k, v := range in {
		if !out[k].Equal(v) {
			t.Fatalf("key %q: got %v (%v), want %v (%v)", k, out[k], out[k].Kind(), v, v.Kind())
		}
	}
}

func TestKindString(t *testing.T) {
	if KindVector.String() != "vector" {
		t.Fatalf("KindVector.String() = %q", KindVector.String())
	}
	if Kind(200).String() != "Kind(200)" {
		t.Fatalf("unknown kind String() = %q", Kind(200).String())
	}
}
