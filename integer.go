package asnrt

import (
	"math/big"
	"reflect"

	"github.com/gemalto/asnrt/tlv"
)

func inRange(r Range, i *big.Int) bool {
	return r.Extensible || r.ContainsBig(i)
}

// readIntContent reads and validates the content octets of an INTEGER.
func readIntContent(buf *Buffer, length int) ([]byte, error) {
	if length == 0 {
		return nil, errorf(ErrInvalidInteger, "empty integer content")
	}
	b, err := buf.ReadOctets(length)
	if err != nil {
		return nil, err
	}
	if buf.rules.Canonical() && !tlv.Minimal(b) {
		return nil, errorf(ErrInvalidInteger, "integer %#x is not minimally encoded", b)
	}
	return b, nil
}

// IntConverter converts INTEGER values held in integer types of 32 bits
// or less.
type IntConverter struct {
	Type reflect.Type
}

func (c IntConverter) Native() reflect.Type {
	return orDefault(c.Type, int32Type)
}

func (c IntConverter) get(v reflect.Value) int64 {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return int64(v.Uint())
	}
	return v.Int()
}

func (c IntConverter) set(v reflect.Value, n int64) error {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		if n < 0 || v.OverflowUint(uint64(n)) {
			return errorf(ErrInvalidInteger, "%d overflows %v", n, v.Type())
		}
		v.SetUint(uint64(n))
	default:
		if v.OverflowInt(n) {
			return errorf(ErrInvalidInteger, "%d overflows %v", n, v.Type())
		}
		v.SetInt(n)
	}
	return nil
}

func (c IntConverter) Int(v reflect.Value) *big.Int {
	return big.NewInt(c.get(v))
}

func (c IntConverter) SetInt(v reflect.Value, i *big.Int) error {
	if !i.IsInt64() {
		return errorf(ErrInvalidInteger, "%v overflows %v", i, v.Type())
	}
	return c.set(v, i.Int64())
}

func (c IntConverter) EncodeBER(buf *Buffer, v reflect.Value, t *Type) error {
	n := c.get(v)
	if !t.Value.Extensible && !t.Value.Contains(n) {
		return errorf(ErrInvalidInteger, "%d not in %v", n, t.Value)
	}
	var scratch [8]byte
	_, err := buf.Write(tlv.AppendInt64(scratch[:0], n))
	return err
}

func (c IntConverter) DecodeBER(buf *Buffer, v reflect.Value, t *Type, length int) error {
	b, err := readIntContent(buf, length)
	if err != nil {
		return err
	}
	n, ok := tlv.ParseInt64(b)
	if !ok {
		return errorf(ErrInvalidInteger, "%#x overflows %v", b, v.Type())
	}
	if !t.Value.Extensible && !t.Value.Contains(n) {
		return errorf(ErrInvalidInteger, "%d not in %v", n, t.Value)
	}
	return c.set(v, n)
}

func (c IntConverter) EncodePER(buf *Buffer, v reflect.Value, t *Type) error {
	return buf.writeInteger(big.NewInt(c.get(v)), t.Value)
}

func (c IntConverter) DecodePER(buf *Buffer, v reflect.Value, t *Type) error {
	i, err := buf.readInteger(t.Value)
	if err != nil {
		return err
	}
	return c.SetInt(v, i)
}

// LongConverter converts INTEGER values held in 64 bit integer types,
// including uint64 values above the int64 range.
type LongConverter struct {
	Type reflect.Type
}

func (c LongConverter) Native() reflect.Type {
	return orDefault(c.Type, int64Type)
}

func (c LongConverter) unsigned(v reflect.Value) bool {
	switch v.Kind() {
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return true
	}
	return false
}

func (c LongConverter) Int(v reflect.Value) *big.Int {
	if c.unsigned(v) {
		return new(big.Int).SetUint64(v.Uint())
	}
	return big.NewInt(v.Int())
}

func (c LongConverter) SetInt(v reflect.Value, i *big.Int) error {
	if c.unsigned(v) {
		if !i.IsUint64() || v.OverflowUint(i.Uint64()) {
			return errorf(ErrInvalidInteger, "%v overflows %v", i, v.Type())
		}
		v.SetUint(i.Uint64())
		return nil
	}
	if !i.IsInt64() || v.OverflowInt(i.Int64()) {
		return errorf(ErrInvalidInteger, "%v overflows %v", i, v.Type())
	}
	v.SetInt(i.Int64())
	return nil
}

func (c LongConverter) EncodeBER(buf *Buffer, v reflect.Value, t *Type) error {
	var scratch [9]byte
	var b []byte
	if c.unsigned(v) && v.Uint()>>63 != 0 {
		i := c.Int(v)
		if !inRange(t.Value, i) {
			return errorf(ErrInvalidInteger, "%v not in %v", i, t.Value)
		}
		b = tlv.AppendInt(scratch[:0], i)
	} else {
		var n int64
		if c.unsigned(v) {
			n = int64(v.Uint())
		} else {
			n = v.Int()
		}
		if !t.Value.Extensible && !t.Value.Contains(n) {
			return errorf(ErrInvalidInteger, "%d not in %v", n, t.Value)
		}
		b = tlv.AppendInt64(scratch[:0], n)
	}
	_, err := buf.Write(b)
	return err
}

func (c LongConverter) DecodeBER(buf *Buffer, v reflect.Value, t *Type, length int) error {
	b, err := readIntContent(buf, length)
	if err != nil {
		return err
	}
	if n, ok := tlv.ParseInt64(b); ok {
		if !t.Value.Extensible && !t.Value.Contains(n) {
			return errorf(ErrInvalidInteger, "%d not in %v", n, t.Value)
		}
		return c.SetInt(v, big.NewInt(n))
	}
	// only uint64 can hold more than an int64
	i := tlv.ParseInt(new(big.Int), b)
	if !inRange(t.Value, i) {
		return errorf(ErrInvalidInteger, "%v not in %v", i, t.Value)
	}
	return c.SetInt(v, i)
}

func (c LongConverter) EncodePER(buf *Buffer, v reflect.Value, t *Type) error {
	return buf.writeInteger(c.Int(v), t.Value)
}

func (c LongConverter) DecodePER(buf *Buffer, v reflect.Value, t *Type) error {
	i, err := buf.readInteger(t.Value)
	if err != nil {
		return err
	}
	return c.SetInt(v, i)
}

// BigIntConverter converts INTEGER values of any magnitude, held in a
// big.Int.
type BigIntConverter struct {
	Type reflect.Type
}

func (c BigIntConverter) Native() reflect.Type {
	return orDefault(c.Type, bigIntType)
}

func (c BigIntConverter) ptr(v reflect.Value) *big.Int {
	return v.Addr().Convert(reflect.PtrTo(bigIntType)).Interface().(*big.Int)
}

func (c BigIntConverter) Int(v reflect.Value) *big.Int {
	return new(big.Int).Set(c.ptr(v))
}

func (c BigIntConverter) SetInt(v reflect.Value, i *big.Int) error {
	c.ptr(v).Set(i)
	return nil
}

func (c BigIntConverter) EncodeBER(buf *Buffer, v reflect.Value, t *Type) error {
	i := c.ptr(v)
	if !inRange(t.Value, i) {
		return errorf(ErrInvalidInteger, "%v not in %v", i, t.Value)
	}
	_, err := buf.Write(tlv.AppendInt(nil, i))
	return err
}

func (c BigIntConverter) DecodeBER(buf *Buffer, v reflect.Value, t *Type, length int) error {
	b, err := readIntContent(buf, length)
	if err != nil {
		return err
	}
	i := tlv.ParseInt(new(big.Int), b)
	if !inRange(t.Value, i) {
		return errorf(ErrInvalidInteger, "%v not in %v", i, t.Value)
	}
	return c.SetInt(v, i)
}

func (c BigIntConverter) EncodePER(buf *Buffer, v reflect.Value, t *Type) error {
	return buf.writeInteger(c.ptr(v), t.Value)
}

func (c BigIntConverter) DecodePER(buf *Buffer, v reflect.Value, t *Type) error {
	i, err := buf.readInteger(t.Value)
	if err != nil {
		return err
	}
	return c.SetInt(v, i)
}
