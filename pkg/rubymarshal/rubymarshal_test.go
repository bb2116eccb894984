package rubymarshal

import (
	"bytes"
	"errors"
	"testing"
)

func TestDecodeScalars(t *testing.T) {
	tests := []struct {
		name string
		data []byte
		want any
	}{
		{"nil", []byte{0x04, 0x08, '0'}, nil},
		{"true", []byte{0x04, 0x08, 'T'}, true},
		{"false", []byte{0x04, 0x08, 'F'}, false},
		{"zero", []byte{0x04, 0x08, 'i', 0x00}, int64(0)},
		{"small positive", []byte{0x04, 0x08, 'i', 0x06}, int64(1)},
		{"small negative", []byte{0x04, 0x08, 'i', 0xfa}, int64(-1)},
		{"byte value", []byte{0x04, 0x08, 'i', 0x01, 0xff}, int64(255)},
		{"two bytes", []byte{0x04, 0x08, 'i', 0x02, 0x10, 0x27}, int64(10000)},
		{"string", []byte{0x04, 0x08, '"', 0x0a, 'r', 'a', 'i', 'l', 's'}, "rails"},
		{"symbol", []byte{0x04, 0x08, ':', 0x09, 'n', 'a', 'm', 'e'}, Symbol("name")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Decode(tt.data)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			if got != tt.want {
				t.Errorf("Decode() = %v (%T), want %v (%T)", got, got, tt.want, tt.want)
			}
		})
	}
}

func TestDecodeBadHeader(t *testing.T) {
	_, err := Decode([]byte{0x04, 0x07, '0'})
	if !errors.Is(err, ErrVersion) {
		t.Errorf("Decode() error = %v, want ErrVersion", err)
	}
}

func TestDecodeTruncated(t *testing.T) {
	_, err := Decode([]byte{0x04, 0x08, '"', 0x0a, 'r', 'a'})
	var syn *SyntaxError
	if !errors.As(err, &syn) {
		t.Fatalf("Decode() error = %v, want SyntaxError", err)
	}
}

func TestRoundTrip(t *testing.T) {
	h := &Hash{}
	h.Set(Symbol("name"), "rack")
	h.Set(Symbol("number"), "3.0.8")
	h.Set(Symbol("platform"), "ruby")
	h.Set(Symbol("dependencies"), []any{[]any{"webrick", ">= 1.8"}})

	tests := []struct {
		name  string
		value any
	}{
		{"nil", nil},
		{"bool", true},
		{"int", int64(42)},
		{"negative int", int64(-300)},
		{"large int", int64(1 << 30)},
		{"string", "nokogiri"},
		{"symbol", Symbol("runtime")},
		{"array", []any{"a", int64(1), nil}},
		{"nested array", []any{[]any{"rack", ">= 2.0, < 4"}}},
		{"dependency record", h},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := Encode(tt.value)
			if err != nil {
				t.Fatalf("Encode() error: %v", err)
			}
			got, err := Decode(data)
			if err != nil {
				t.Fatalf("Decode() error: %v", err)
			}
			assertEqualValue(t, got, tt.value)
		})
	}
}

func assertEqualValue(t *testing.T, got, want any) {
	t.Helper()
	switch w := want.(type) {
	case []any:
		g, ok := got.([]any)
		if !ok || len(g) != len(w) {
			t.Fatalf("got %#v, want %#v", got, want)
		}
		for i := range w {
			assertEqualValue(t, g[i], w[i])
		}
	case *Hash:
		g, ok := got.(*Hash)
		if !ok || g.Len() != w.Len() {
			t.Fatalf("got %#v, want %#v", got, want)
		}
		for i := range w.Keys {
			assertEqualValue(t, g.Keys[i], w.Keys[i])
			assertEqualValue(t, g.Values[i], w.Values[i])
		}
	default:
		if got != want {
			t.Fatalf("got %#v, want %#v", got, want)
		}
	}
}

func TestSymbolInterning(t *testing.T) {
	// Two identical symbols must encode the second as a symlink and
	// decode back to the same symbol.
	data, err := Encode([]any{Symbol("name"), Symbol("name")})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	if bytes.Count(data, []byte("name")) != 1 {
		t.Errorf("expected symbol to be interned once, got %q", data)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	arr, _ := AsArray(decoded)
	if len(arr) != 2 || arr[0] != Symbol("name") || arr[1] != Symbol("name") {
		t.Errorf("Decode() = %#v", arr)
	}
}

func TestDecodeIvarWrappedString(t *testing.T) {
	// I"<raw string> followed by one encoding ivar (:E => true), the form
	// Ruby emits for UTF-8 strings.
	data := []byte{0x04, 0x08, 'I', '"', 0x09, 'r', 'a', 'c', 'k',
		0x06, ':', 0x06, 'E', 'T'}
	got, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	if got != "rack" {
		t.Errorf("Decode() = %#v, want \"rack\"", got)
	}
}

func TestDecodeObject(t *testing.T) {
	obj := &Object{Class: "Gem::Dependency", Ivars: &Hash{}}
	obj.Ivars.Set(Symbol("@name"), "rake")
	obj.Ivars.Set(Symbol("@type"), Symbol("runtime"))

	data, err := Encode(obj)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	got, ok := decoded.(*Object)
	if !ok {
		t.Fatalf("Decode() = %T, want *Object", decoded)
	}
	if got.Class != "Gem::Dependency" {
		t.Errorf("Class = %q", got.Class)
	}
	if name, _ := got.Ivar("name"); name != "rake" {
		t.Errorf("Ivar(name) = %v", name)
	}
	if typ, _ := got.Ivar("type"); typ != Symbol("runtime") {
		t.Errorf("Ivar(type) = %v", typ)
	}
}

func TestDecodeUserMarshal(t *testing.T) {
	um := &UserMarshal{Class: "Gem::Version", Value: []any{"1.2.0"}}
	data, err := Encode(um)
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}

	got, ok := decoded.(*UserMarshal)
	if !ok {
		t.Fatalf("Decode() = %T, want *UserMarshal", decoded)
	}
	arr, _ := AsArray(got.Value)
	if got.Class != "Gem::Version" || len(arr) != 1 || arr[0] != "1.2.0" {
		t.Errorf("Decode() = %#v", got)
	}
}

func TestDecodeUserDefined(t *testing.T) {
	inner, err := Encode([]any{"field"})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}
	data, err := Encode(&UserDefined{Class: "Gem::Specification", Data: inner})
	if err != nil {
		t.Fatalf("Encode() error: %v", err)
	}

	decoded, err := Decode(data)
	if err != nil {
		t.Fatalf("Decode() error: %v", err)
	}
	ud, ok := decoded.(*UserDefined)
	if !ok {
		t.Fatalf("Decode() = %T, want *UserDefined", decoded)
	}
	nested, err := Decode(ud.Data)
	if err != nil {
		t.Fatalf("Decode(nested) error: %v", err)
	}
	arr, _ := AsArray(nested)
	if len(arr) != 1 || arr[0] != "field" {
		t.Errorf("nested = %#v", nested)
	}
}

func TestHashGet(t *testing.T) {
	h := &Hash{}
	h.Set(Symbol("name"), "puma")
	h.Set("plain", int64(1))

	if v, ok := h.Get("name"); !ok || v != "puma" {
		t.Errorf("Get(name) = %v, %v", v, ok)
	}
	if v, ok := h.Get("plain"); !ok || v != int64(1) {
		t.Errorf("Get(plain) = %v, %v", v, ok)
	}
	if _, ok := h.Get("absent"); ok {
		t.Error("Get(absent) should miss")
	}
}
