package session

import (
	"fmt"
	"io"

	"opennow/client/internal/domain"
)

// RawSink writes decoded planes to a writer as packed NV12 or P010,
// stride padding stripped. Piping to ffplay with the matching rawvideo
// arguments plays the stream.
type RawSink struct {
	w io.Writer
}

// NewRawSink creates a sink writing to w.
func NewRawSink(w io.Writer) *RawSink {
	return &RawSink{w: w}
}

// WriteFrame writes the luma plane then the interleaved chroma plane.
func (s *RawSink) WriteFrame(frame *domain.DecodedFrame) error {
	bps := 1
	if frame.Format == domain.PixelFormatP010 {
		bps = 2
	}

	if err := s.writePlane(frame.Luma, frame.LumaStride, frame.Width*bps, frame.Height); err != nil {
		return fmt.Errorf("write luma plane: %w", err)
	}
	if err := s.writePlane(frame.Chroma, frame.ChromaStride, frame.Width*bps, frame.Height/2); err != nil {
		return fmt.Errorf("write chroma plane: %w", err)
	}
	return nil
}

func (s *RawSink) writePlane(plane []byte, stride, rowBytes, rows int) error {
	if stride == rowBytes {
		_, err := s.w.Write(plane[:rowBytes*rows])
		return err
	}
	for row := 0; row < rows; row++ {
		start := row * stride
		if _, err := s.w.Write(plane[start : start+rowBytes]); err != nil {
			return err
		}
	}
	return nil
}
