// Package bitstream provides Annex-B NAL unit scanning and the
// bit-level Exp-Golomb reader used by the parameter set and slice
// header parsers. Inputs to Reader must already be RBSP: emulation
// prevention bytes are removed by RemoveEmulationPrevention before any
// bit-level parse.
package bitstream

import "errors"

var (
	// ErrEndOfData is returned when a read runs past the end of the
	// buffer. Truncated data is never treated as zero-fill.
	ErrEndOfData = errors.New("bitstream: end of data")
	// ErrMalformedExpGolomb is returned when an Exp-Golomb code has
	// more than 31 leading zero bits.
	ErrMalformedExpGolomb = errors.New("bitstream: malformed Exp-Golomb code")
)

// Reader is a bit-level cursor over a byte slice.
type Reader struct {
	data []byte
	pos  int
	bit  int
}

// NewReader creates a Reader over data. The Reader does not copy data.
func NewReader(data []byte) *Reader {
	return &Reader{data: data}
}

// ReadBit reads a single bit.
func (r *Reader) ReadBit() (uint32, error) {
	if r.pos >= len(r.data) {
		return 0, ErrEndOfData
	}
	bit := uint32((r.data[r.pos] >> (7 - r.bit)) & 1)
	r.bit++
	if r.bit == 8 {
		r.bit = 0
		r.pos++
	}
	return bit, nil
}

// ReadFlag reads a single bit as a bool.
func (r *Reader) ReadFlag() (bool, error) {
	b, err := r.ReadBit()
	return b != 0, err
}

// ReadBits reads n bits MSB-first as an unsigned value. n must be <= 32.
func (r *Reader) ReadBits(n int) (uint32, error) {
	var val uint32
	for i := 0; i < n; i++ {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		val = val<<1 | b
	}
	return val, nil
}

// ReadUE reads an unsigned Exp-Golomb coded value.
func (r *Reader) ReadUE() (uint32, error) {
	zeros := 0
	for {
		b, err := r.ReadBit()
		if err != nil {
			return 0, err
		}
		if b == 1 {
			break
		}
		zeros++
		if zeros > 31 {
			return 0, ErrMalformedExpGolomb
		}
	}
	if zeros == 0 {
		return 0, nil
	}
	suffix, err := r.ReadBits(zeros)
	if err != nil {
		return 0, err
	}
	return 1<<uint(zeros) - 1 + suffix, nil
}

// ReadSE reads a signed Exp-Golomb coded value. The unsigned code k
// maps to sign(k)*ceil(k/2) with the sign alternating starting
// positive for k=1.
func (r *Reader) ReadSE() (int32, error) {
	k, err := r.ReadUE()
	if err != nil {
		return 0, err
	}
	mag := int32((k + 1) / 2)
	if k%2 == 0 {
		return -mag, nil
	}
	return mag, nil
}

// SkipBits advances the cursor by n bits.
func (r *Reader) SkipBits(n int) error {
	for i := 0; i < n; i++ {
		if _, err := r.ReadBit(); err != nil {
			return err
		}
	}
	return nil
}

// Position returns the current cursor position in bits.
func (r *Reader) Position() int {
	return r.pos*8 + r.bit
}

// More reports whether unread bytes remain.
func (r *Reader) More() bool {
	return r.pos < len(r.data)
}
