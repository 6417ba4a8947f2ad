// Package decode drives the hardware video decode session: DPB slot
// lifecycle, picture order derivation, reference list construction and
// per-frame submission against a vendor decode queue reached through
// the Device boundary.
package decode

import (
	"errors"
	"time"
)

// ErrDeviceLost reports that the hardware device stopped responding
// (an unsignaled fence past its deadline, or a failed submission at
// the driver level). Fatal for the decoder instance.
var ErrDeviceLost = errors.New("decode: device lost")

// ErrFrameSkipped reports a recoverable per-frame failure: the access
// unit was dropped and the session keeps running.
var ErrFrameSkipped = errors.New("decode: frame skipped")

// ErrResolutionChanged reports that the stream switched to a
// resolution or bit depth the current session's images cannot hold.
// The caller must Reconfigure before decoding continues.
var ErrResolutionChanged = errors.New("decode: resolution changed")

// Capabilities is the result of the startup probe, passed by value
// into the components that need it.
type Capabilities struct {
	MaxWidth  uint32
	MaxHeight uint32
	// BitstreamAlignment is the minimum size alignment of a decode
	// submission's byte range. Uploads are padded up, never truncated.
	BitstreamAlignment int
	Supports10Bit      bool
	DriverName         string
}

// SessionConfig sizes a hardware decode session. One session per
// (codec, resolution, bit depth) tuple.
type SessionConfig struct {
	Codec    CodecID
	Width    uint32
	Height   uint32
	BitDepth uint8
	// MaxDPBSlots is 17 for H.264/HEVC Level 5.1: 16 references plus
	// the in-flight picture.
	MaxDPBSlots         int
	MaxActiveReferences int
}

// CodecID selects the hardware decode profile.
type CodecID int32

const (
	CodecIDH264 CodecID = 0
	CodecIDH265 CodecID = 1
)

// ReferenceSlot identifies a DPB slot handed to the hardware as an
// active reference for one submission.
type ReferenceSlot struct {
	SlotIndex int
	FrameNum  uint32
	POC       int32
	LongTerm  bool
}

// Submission is one synchronous decode round-trip. Bitstream is
// already padded to the device's bitstream alignment.
type Submission struct {
	Bitstream  []byte
	TargetSlot int
	Setup      ReferenceSlot
	References []ReferenceSlot

	IDR       bool
	Reference bool
	FrameNum  uint32
	POC       int32

	// Deadline bounds the fence wait. An unsignaled fence past it is
	// treated as device loss.
	Deadline time.Time
}

// SubmitResult carries the readback of a completed submission.
// Complete mirrors the hardware status query; false means possible
// partial corruption but the planes are still delivered.
type SubmitResult struct {
	Complete     bool
	Luma         []byte
	Chroma       []byte
	LumaStride   int
	ChromaStride int
}

// Device is the probed hardware decode device.
type Device interface {
	Capabilities() Capabilities
	CreateSession(cfg SessionConfig) (Session, error)
	Close() error
}

// Session is one bound hardware decode session. Not safe for
// concurrent use; the decode loop owns it.
type Session interface {
	// PushParameters uploads the current SPS/PPS pair into the
	// session's parameter object. Called once per parameter change,
	// not per frame.
	PushParameters(sps, pps []byte) error

	// Decode submits one access unit and blocks until the fence
	// signals or the deadline passes.
	Decode(sub Submission) (SubmitResult, error)

	// BitstreamCapacity is the upload buffer size; submissions larger
	// than this are skipped by the caller.
	BitstreamCapacity() int

	// Export shares a decoded slot's surface as a DMA-BUF after
	// synchronizing it. Linux zero-copy path.
	Export(slot int) (*SurfaceExport, error)

	Destroy() error
}
