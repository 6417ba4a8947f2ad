package domain

// Codec identifies a negotiated video codec.
type Codec int

const (
	CodecH264 Codec = iota
	CodecH265
)

// String returns the SDP rtpmap spelling of the codec.
func (c Codec) String() string {
	switch c {
	case CodecH264:
		return "H264"
	case CodecH265:
		return "H265"
	default:
		return "UNKNOWN"
	}
}

// PixelFormat is the semi-planar layout of a decoded frame.
type PixelFormat int

const (
	// PixelFormatNV12 is 8-bit 4:2:0 with interleaved chroma.
	PixelFormatNV12 PixelFormat = iota
	// PixelFormatP010 is 10-bit 4:2:0 in 16-bit containers (HDR).
	PixelFormatP010
)

// ColorRange distinguishes limited (16-235) from full (0-255) quantization.
type ColorRange int

const (
	ColorRangeLimited ColorRange = iota
	ColorRangeFull
)

// ColorSpace is the YUV->RGB matrix family for the downstream converter.
type ColorSpace int

const (
	ColorSpaceBT709 ColorSpace = iota
	ColorSpaceBT2020
)

// TransferFunction selects the electro-optical transfer curve.
type TransferFunction int

const (
	TransferSDR TransferFunction = iota
	TransferPQ
)

// DecodedFrame is one decoded picture handed to the presentation
// pipeline. Ownership of the plane buffers transfers to the receiver.
type DecodedFrame struct {
	Width  int
	Height int

	// Luma holds the Y plane; Chroma holds the interleaved UV (NV12)
	// or U16 UV (P010) plane at half vertical resolution.
	Luma   []byte
	Chroma []byte

	LumaStride   int
	ChromaStride int

	Format   PixelFormat
	Range    ColorRange
	Space    ColorSpace
	Transfer TransferFunction
}
