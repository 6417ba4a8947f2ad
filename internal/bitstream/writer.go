package bitstream

// Writer builds bit-exact RBSP payloads. It is the counterpart of
// Reader used to construct parameter-set and slice-header fixtures;
// the client itself never encodes video.
type Writer struct {
	data []byte
	bit  int
}

// WriteBit appends a single bit.
func (w *Writer) WriteBit(b uint32) {
	if w.bit == 0 {
		w.data = append(w.data, 0)
	}
	if b != 0 {
		w.data[len(w.data)-1] |= 1 << (7 - w.bit)
	}
	w.bit = (w.bit + 1) % 8
}

// WriteBits appends the low n bits of v, MSB-first.
func (w *Writer) WriteBits(v uint32, n int) {
	for i := n - 1; i >= 0; i-- {
		w.WriteBit(v >> uint(i) & 1)
	}
}

// WriteFlag appends a single bit from a bool.
func (w *Writer) WriteFlag(b bool) {
	if b {
		w.WriteBit(1)
	} else {
		w.WriteBit(0)
	}
}

// WriteUE appends v in unsigned Exp-Golomb coding.
func (w *Writer) WriteUE(v uint32) {
	n := v + 1
	width := 0
	for t := n; t > 0; t >>= 1 {
		width++
	}
	for i := 0; i < width-1; i++ {
		w.WriteBit(0)
	}
	w.WriteBits(n, width)
}

// WriteSE appends v in signed Exp-Golomb coding.
func (w *Writer) WriteSE(v int32) {
	if v <= 0 {
		w.WriteUE(uint32(-2 * v))
	} else {
		w.WriteUE(uint32(2*v - 1))
	}
}

// Bytes returns the accumulated payload. Unfilled trailing bits are
// zero, mirroring rbsp_alignment_zero_bit padding.
func (w *Writer) Bytes() []byte {
	return w.data
}
