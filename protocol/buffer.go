package protocol

import (
	"encoding/binary"
)

// reader walks a decoded packet body, little-endian, tracking how many
// bytes remain so the top-level Decode can enforce "no trailing bytes".
type reader struct {
	b   []byte
	pos int
}

func newReader(b []byte) *reader {
	return &reader{b: b}
}

func (r *reader) remaining() int {
	return len(r.b) - r.pos
}

func (r *reader) u8() (uint8, bool) {
	if r.remaining() < 1 {
		return 0, false
	}
	v := r.b[r.pos]
	r.pos++
	return v, true
}

func (r *reader) u16() (uint16, bool) {
	if r.remaining() < 2 {
		return 0, false
	}
	v := binary.LittleEndian.Uint16(r.b[r.pos:])
	r.pos += 2
	return v, true
}

func (r *reader) u32() (uint32, bool) {
	if r.remaining() < 4 {
		return 0, false
	}
	v := binary.LittleEndian.Uint32(r.b[r.pos:])
	r.pos += 4
	return v, true
}

func (r *reader) u64() (uint64, bool) {
	if r.remaining() < 8 {
		return 0, false
	}
	v := binary.LittleEndian.Uint64(r.b[r.pos:])
	r.pos += 8
	return v, true
}

func (r *reader) bytes(n int) ([]byte, bool) {
	if r.remaining() < n {
		return nil, false
	}
	v := r.b[r.pos : r.pos+n]
	r.pos += n
	return v, true
}

// cstring reads a NUL-terminated UTF-8 string.
func (r *reader) cstring() (string, bool) {
	start := r.pos
	for r.pos < len(r.b) {
		if r.b[r.pos] == 0 {
			s := string(r.b[start:r.pos])
			r.pos++
			return s, true
		}
		r.pos++
	}
	return "", false
}

// writer appends little-endian fields to a growable buffer; the 2-byte
// length prefix is reserved up front and rewritten by finish().
type writer struct {
	b []byte
}

func newWriter() *writer {
	return &writer{b: make([]byte, lengthPrefixSize)}
}

func (w *writer) u8(v uint8) {
	w.b = append(w.b, v)
}

func (w *writer) u16(v uint16) {
	var tmp [2]byte
	binary.LittleEndian.PutUint16(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *writer) u32(v uint32) {
	var tmp [4]byte
	binary.LittleEndian.PutUint32(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *writer) u64(v uint64) {
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], v)
	w.b = append(w.b, tmp[:]...)
}

func (w *writer) raw(v []byte) {
	w.b = append(w.b, v...)
}

func (w *writer) cstring(s string) {
	w.b = append(w.b, []byte(s)...)
	w.b = append(w.b, 0)
}

// finish rewrites the length prefix and returns the framed packet, failing
// with CodeTooBig if the result exceeds SafeMTU. The caller must have
// written the type tag as the first byte after newWriter() via u8().
func (w *writer) finish() ([]byte, error) {
	if len(w.b) > SafeMTU {
		return nil, CodeTooBig.Error()
	}

	binary.LittleEndian.PutUint16(w.b[0:2], uint16(len(w.b)))
	return w.b, nil
}
