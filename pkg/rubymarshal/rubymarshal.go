// Package rubymarshal decodes the subset of Ruby's Marshal 4.8 format used
// by gem registries: the dependency API returns a marshaled array of hashes,
// the full index a marshaled array of [name, version, platform] triples, and
// the per-file specification endpoint a marshaled Gem::Specification.
//
// Decoded values map to Go types: NilClass→nil, booleans→bool,
// Fixnum→int64, String→string, Symbol→[Symbol], Array→[]any,
// Hash→[*Hash] (insertion-ordered), Float→float64. User-marshaled objects
// (type 'U', e.g. Gem::Version) decode to [UserMarshal]; user-defined
// dumps (type 'u', e.g. Gem::Specification) decode to [UserDefined] whose
// payload is itself Marshal data.
package rubymarshal

import (
	"errors"
	"fmt"
	"math"
	"strconv"
)

// Symbol is a Ruby symbol.
type Symbol string

// Hash preserves insertion order, which Ruby hashes guarantee.
type Hash struct {
	Keys   []any
	Values []any
}

// Get returns the value for a string or symbol key.
func (h *Hash) Get(key string) (any, bool) {
	for i, k := range h.Keys {
		switch kv := k.(type) {
		case string:
			if kv == key {
				return h.Values[i], true
			}
		case Symbol:
			if string(kv) == key {
				return h.Values[i], true
			}
		}
	}
	return nil, false
}

// Set appends or replaces a key/value pair.
func (h *Hash) Set(key, value any) {
	for i, k := range h.Keys {
		if k == key {
			h.Values[i] = value
			return
		}
	}
	h.Keys = append(h.Keys, key)
	h.Values = append(h.Values, value)
}

// Len returns the number of pairs.
func (h *Hash) Len() int { return len(h.Keys) }

// UserMarshal is an object serialized via marshal_dump (type tag 'U'),
// such as Gem::Version, which dumps as ["1.2.0"].
type UserMarshal struct {
	Class Symbol
	Value any
}

// UserDefined is an object serialized via _dump (type tag 'u'), such as
// Gem::Specification. Data is itself Marshal-encoded.
type UserDefined struct {
	Class Symbol
	Data  []byte
}

// Object is a plain Ruby object (type tag 'o') with its instance
// variables, such as Gem::Dependency.
type Object struct {
	Class Symbol
	Ivars *Hash
}

// Ivar returns the value of an instance variable, with or without the
// leading "@".
func (o *Object) Ivar(name string) (any, bool) {
	if v, ok := o.Ivars.Get("@" + name); ok {
		return v, true
	}
	return o.Ivars.Get(name)
}

// SyntaxError reports malformed Marshal data with the byte offset of the
// failure.
type SyntaxError struct {
	Offset int
	Msg    string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("marshal: %s at offset %d", e.Msg, e.Offset)
}

// ErrVersion is returned when the data does not start with the 4.8 header.
var ErrVersion = errors.New("marshal: unsupported format version")

type decoder struct {
	data    []byte
	pos     int
	symbols []Symbol
	objects []any
}

// Decode parses one Marshal 4.8 document.
func Decode(data []byte) (any, error) {
	if len(data) < 2 || data[0] != 0x04 || data[1] != 0x08 {
		return nil, ErrVersion
	}
	d := &decoder{data: data, pos: 2}
	return d.value()
}

func (d *decoder) fail(msg string) error {
	return &SyntaxError{Offset: d.pos, Msg: msg}
}

func (d *decoder) byte() (byte, error) {
	if d.pos >= len(d.data) {
		return 0, d.fail("unexpected end of data")
	}
	b := d.data[d.pos]
	d.pos++
	return b, nil
}

func (d *decoder) bytes(n int) ([]byte, error) {
	if n < 0 || d.pos+n > len(d.data) {
		return nil, d.fail("truncated data")
	}
	b := d.data[d.pos : d.pos+n]
	d.pos += n
	return b, nil
}

// long reads Marshal's variable-length integer encoding.
func (d *decoder) long() (int64, error) {
	b, err := d.byte()
	if err != nil {
		return 0, err
	}
	c := int8(b)
	switch {
	case c == 0:
		return 0, nil
	case c > 4:
		return int64(c) - 5, nil
	case c < -4:
		return int64(c) + 5, nil
	case c > 0:
		raw, err := d.bytes(int(c))
		if err != nil {
			return 0, err
		}
		var n int64
		for i := int(c) - 1; i >= 0; i-- {
			n = n<<8 | int64(raw[i])
		}
		return n, nil
	default: // -4 <= c < 0
		raw, err := d.bytes(int(-c))
		if err != nil {
			return 0, err
		}
		n := int64(-1)
		for i := int(-c) - 1; i >= 0; i-- {
			n = n&^(0xff<<(8*i)) | int64(raw[i])<<(8*i)
		}
		return n, nil
	}
}

func (d *decoder) rawString() (string, error) {
	n, err := d.long()
	if err != nil {
		return "", err
	}
	raw, err := d.bytes(int(n))
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func (d *decoder) symbol() (Symbol, error) {
	s, err := d.rawString()
	if err != nil {
		return "", err
	}
	sym := Symbol(s)
	d.symbols = append(d.symbols, sym)
	return sym, nil
}

func (d *decoder) symlink() (Symbol, error) {
	i, err := d.long()
	if err != nil {
		return "", err
	}
	if i < 0 || int(i) >= len(d.symbols) {
		return "", d.fail("symbol link out of range")
	}
	return d.symbols[i], nil
}

func (d *decoder) remember(v any) any {
	d.objects = append(d.objects, v)
	return v
}

func (d *decoder) value() (any, error) {
	tag, err := d.byte()
	if err != nil {
		return nil, err
	}

	switch tag {
	case '0':
		return nil, nil
	case 'T':
		return true, nil
	case 'F':
		return false, nil
	case 'i':
		return d.long()
	case ':':
		sym, err := d.symbol()
		return sym, err
	case ';':
		sym, err := d.symlink()
		return sym, err
	case '"':
		s, err := d.rawString()
		if err != nil {
			return nil, err
		}
		return d.remember(s), nil
	case 'f':
		s, err := d.rawString()
		if err != nil {
			return nil, err
		}
		f, err := parseRubyFloat(s)
		if err != nil {
			return nil, d.fail("bad float literal " + strconv.Quote(s))
		}
		return d.remember(f), nil
	case 'I':
		// Instance variables wrap the inner value; for strings this is
		// just the encoding marker, which we read and discard.
		inner, err := d.value()
		if err != nil {
			return nil, err
		}
		n, err := d.long()
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			if _, err := d.value(); err != nil { // ivar name
				return nil, err
			}
			if _, err := d.value(); err != nil { // ivar value
				return nil, err
			}
		}
		return inner, nil
	case '[':
		n, err := d.long()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, d.fail("negative array length")
		}
		arr := make([]any, 0, min(int(n), 4096))
		d.remember(arr)
		slot := len(d.objects) - 1
		for i := int64(0); i < n; i++ {
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		d.objects[slot] = arr
		return arr, nil
	case '{':
		n, err := d.long()
		if err != nil {
			return nil, err
		}
		if n < 0 {
			return nil, d.fail("negative hash length")
		}
		h := &Hash{}
		d.remember(h)
		for i := int64(0); i < n; i++ {
			k, err := d.value()
			if err != nil {
				return nil, err
			}
			v, err := d.value()
			if err != nil {
				return nil, err
			}
			h.Keys = append(h.Keys, k)
			h.Values = append(h.Values, v)
		}
		return h, nil
	case '@':
		i, err := d.long()
		if err != nil {
			return nil, err
		}
		if i < 0 || int(i) >= len(d.objects) {
			return nil, d.fail("object link out of range")
		}
		return d.objects[i], nil
	case 'U':
		cls, err := d.classSymbol()
		if err != nil {
			return nil, err
		}
		v, err := d.value()
		if err != nil {
			return nil, err
		}
		return d.remember(&UserMarshal{Class: cls, Value: v}), nil
	case 'o':
		cls, err := d.classSymbol()
		if err != nil {
			return nil, err
		}
		obj := &Object{Class: cls, Ivars: &Hash{}}
		d.remember(obj)
		n, err := d.long()
		if err != nil {
			return nil, err
		}
		for i := int64(0); i < n; i++ {
			name, err := d.value()
			if err != nil {
				return nil, err
			}
			val, err := d.value()
			if err != nil {
				return nil, err
			}
			obj.Ivars.Keys = append(obj.Ivars.Keys, name)
			obj.Ivars.Values = append(obj.Ivars.Values, val)
		}
		return obj, nil
	case 'u':
		cls, err := d.classSymbol()
		if err != nil {
			return nil, err
		}
		s, err := d.rawString()
		if err != nil {
			return nil, err
		}
		return d.remember(&UserDefined{Class: cls, Data: []byte(s)}), nil
	default:
		return nil, d.fail(fmt.Sprintf("unsupported type tag %q", tag))
	}
}

func (d *decoder) classSymbol() (Symbol, error) {
	tag, err := d.byte()
	if err != nil {
		return "", err
	}
	switch tag {
	case ':':
		return d.symbol()
	case ';':
		return d.symlink()
	default:
		return "", d.fail("expected class symbol")
	}
}

// parseRubyFloat handles Ruby's float literals, including the special
// "inf", "-inf", and "nan" spellings.
func parseRubyFloat(s string) (float64, error) {
	switch s {
	case "inf":
		return math.Inf(1), nil
	case "-inf":
		return math.Inf(-1), nil
	case "nan":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(s, 64)
}

// AsArray asserts v is an array.
func AsArray(v any) ([]any, bool) {
	arr, ok := v.([]any)
	return arr, ok
}

// AsHash asserts v is a hash.
func AsHash(v any) (*Hash, bool) {
	h, ok := v.(*Hash)
	return h, ok
}

// AsString asserts v is a string or symbol and returns its text.
func AsString(v any) (string, bool) {
	switch s := v.(type) {
	case string:
		return s, true
	case Symbol:
		return string(s), true
	}
	return "", false
}
