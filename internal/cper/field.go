package cper

import "encoding/json"

// Field holds a value that is only meaningful when the matching validation
// bit was set. The zero Field is absent.
type Field[T any] struct {
	value T
	valid bool
}

// Some returns a present field.
func Some[T any](v T) Field[T] {
	return Field[T]{value: v, valid: true}
}

// Get returns the value and whether it is present.
func (f Field[T]) Get() (T, bool) {
	return f.value, f.valid
}

// Valid reports whether the field is present.
func (f Field[T]) Valid() bool {
	return f.valid
}

// MarshalJSON encodes an absent field as null.
func (f Field[T]) MarshalJSON() ([]byte, error) {
	if !f.valid {
		return []byte("null"), nil
	}
	return json.Marshal(f.value)
}

// payload reads fields out of a section body. A field is only loaded when
// its validation bit is set.
type payload struct {
	buf  []byte
	bits uint64
}

func (p payload) has(bit uint64) bool {
	return p.bits&bit != 0
}

func (p payload) u8(bit uint64, off int) Field[uint8] {
	if !p.has(bit) {
		return Field[uint8]{}
	}
	return Some(p.buf[off])
}

func (p payload) u16(bit uint64, off int) Field[uint16] {
	if !p.has(bit) {
		return Field[uint16]{}
	}
	return Some(le.Uint16(p.buf[off:]))
}

func (p payload) u32(bit uint64, off int) Field[uint32] {
	if !p.has(bit) {
		return Field[uint32]{}
	}
	return Some(le.Uint32(p.buf[off:]))
}

func (p payload) u64(bit uint64, off int) Field[uint64] {
	if !p.has(bit) {
		return Field[uint64]{}
	}
	return Some(le.Uint64(p.buf[off:]))
}
