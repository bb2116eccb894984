package rubymarshal

import (
	"bytes"
	"fmt"
	"sort"
)

// Encode serializes a value to Marshal 4.8. It supports the types Decode
// produces for registry payloads: nil, bool, int/int64, string, Symbol,
// []any, *Hash, and map[string]any (encoded with sorted keys). Symbols are
// interned so repeated symbols emit symlinks, matching Ruby's writer.
func Encode(v any) ([]byte, error) {
	e := &encoder{symbols: make(map[Symbol]int)}
	e.buf.Write([]byte{0x04, 0x08})
	if err := e.value(v); err != nil {
		return nil, err
	}
	return e.buf.Bytes(), nil
}

type encoder struct {
	buf     bytes.Buffer
	symbols map[Symbol]int
}

func (e *encoder) value(v any) error {
	switch val := v.(type) {
	case nil:
		e.buf.WriteByte('0')
	case bool:
		if val {
			e.buf.WriteByte('T')
		} else {
			e.buf.WriteByte('F')
		}
	case int:
		e.buf.WriteByte('i')
		e.long(int64(val))
	case int64:
		e.buf.WriteByte('i')
		e.long(val)
	case string:
		e.buf.WriteByte('"')
		e.long(int64(len(val)))
		e.buf.WriteString(val)
	case Symbol:
		e.symbol(val)
	case []any:
		e.buf.WriteByte('[')
		e.long(int64(len(val)))
		for _, item := range val {
			if err := e.value(item); err != nil {
				return err
			}
		}
	case *Hash:
		e.buf.WriteByte('{')
		e.long(int64(val.Len()))
		for i := range val.Keys {
			if err := e.value(val.Keys[i]); err != nil {
				return err
			}
			if err := e.value(val.Values[i]); err != nil {
				return err
			}
		}
	case *Object:
		e.buf.WriteByte('o')
		e.symbol(val.Class)
		e.long(int64(val.Ivars.Len()))
		for i := range val.Ivars.Keys {
			if err := e.value(val.Ivars.Keys[i]); err != nil {
				return err
			}
			if err := e.value(val.Ivars.Values[i]); err != nil {
				return err
			}
		}
	case *UserMarshal:
		e.buf.WriteByte('U')
		e.symbol(val.Class)
		if err := e.value(val.Value); err != nil {
			return err
		}
	case *UserDefined:
		e.buf.WriteByte('u')
		e.symbol(val.Class)
		e.long(int64(len(val.Data)))
		e.buf.Write(val.Data)
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		e.buf.WriteByte('{')
		e.long(int64(len(val)))
		for _, k := range keys {
			if err := e.value(k); err != nil {
				return err
			}
			if err := e.value(val[k]); err != nil {
				return err
			}
		}
	default:
		return fmt.Errorf("marshal: cannot encode %T", v)
	}
	return nil
}

func (e *encoder) symbol(s Symbol) {
	if i, seen := e.symbols[s]; seen {
		e.buf.WriteByte(';')
		e.long(int64(i))
		return
	}
	e.symbols[s] = len(e.symbols)
	e.buf.WriteByte(':')
	e.long(int64(len(s)))
	e.buf.WriteString(string(s))
}

func (e *encoder) long(n int64) {
	switch {
	case n == 0:
		e.buf.WriteByte(0)
	case n > 0 && n < 123:
		e.buf.WriteByte(byte(n + 5))
	case n < 0 && n > -124:
		e.buf.WriteByte(byte(int8(n - 5)))
	default:
		var raw [8]byte
		size := 0
		v := n
		for i := 0; i < 8; i++ {
			raw[i] = byte(v & 0xff)
			v >>= 8
			if (n > 0 && v == 0) || (n < 0 && v == -1) {
				size = i + 1
				break
			}
		}
		if n < 0 {
			e.buf.WriteByte(byte(int8(-size)))
		} else {
			e.buf.WriteByte(byte(size))
		}
		e.buf.Write(raw[:size])
	}
}
