// Package avc parses the H.264 parameter sets and slice header fields
// the decode session needs. The field walk follows ITU-T H.264 §7.3;
// everything past the fields used for session setup, picture order,
// and reference handling is bit-skipped or left unread.
package avc

import (
	"errors"
	"fmt"
	"log"

	"opennow/client/internal/bitstream"
)

// ErrParameterSetNotFound reports a slice referencing a PPS or SPS
// that has not arrived yet. Recoverable: skip the access unit and wait
// for the next parameter set NAL.
var ErrParameterSetNotFound = errors.New("avc: parameter set not found")

// SPS is a parsed sequence parameter set. Only the fields needed for
// session setup and slice header sizing are retained.
type SPS struct {
	ID              uint8
	ProfileIDC      uint8
	LevelIDC        uint8
	ChromaFormatIDC uint8
	BitDepthLuma    uint8
	BitDepthChroma  uint8
	Log2MaxFrameNum uint8
	POCType         uint8
	Log2MaxPOCLSB   uint8
	MaxNumRefFrames uint8
	PicWidth        uint32
	PicHeight       uint32
	FrameMbsOnly    bool
	Raw             []byte
}

// IsHDR reports whether the sequence uses more than 8 bits per sample.
func (s *SPS) IsHDR() bool {
	return s.BitDepthLuma > 8 || s.BitDepthChroma > 8
}

// PPS is a parsed picture parameter set.
type PPS struct {
	ID                         uint8
	SPSID                      uint8
	EntropyCodingMode          bool
	BottomFieldPicOrderPresent bool
	NumRefIdxL0DefaultActive   uint8
	NumRefIdxL1DefaultActive   uint8
	WeightedPred               bool
	WeightedBipredIDC          uint8
	DeblockingControlPresent   bool
	Raw                        []byte
}

// Store caches parameter sets keyed by their wire-assigned ids.
// A reparsed id overwrites the previous set wholesale. Not safe for
// concurrent use; the decode loop owns it.
type Store struct {
	sps [32]*SPS
	pps [256]*PPS
}

func NewStore() *Store {
	return &Store{}
}

// rbsp wraps a bitstream.Reader with sticky-error reads, same
// discipline as the HEVC walk: the first failed read latches, callers
// check err at loop boundaries.
type rbsp struct {
	r   *bitstream.Reader
	err error
}

func newRBSP(payload []byte) *rbsp {
	return &rbsp{r: bitstream.NewReader(bitstream.RemoveEmulationPrevention(payload))}
}

func (b *rbsp) flag() bool {
	if b.err != nil {
		return false
	}
	v, err := b.r.ReadFlag()
	b.err = err
	return v
}

func (b *rbsp) bits(n int) uint32 {
	if b.err != nil {
		return 0
	}
	v, err := b.r.ReadBits(n)
	b.err = err
	return v
}

func (b *rbsp) ue() uint32 {
	if b.err != nil {
		return 0
	}
	v, err := b.r.ReadUE()
	b.err = err
	return v
}

func (b *rbsp) se() int32 {
	if b.err != nil {
		return 0
	}
	v, err := b.r.ReadSE()
	b.err = err
	return v
}

func (b *rbsp) skip(n int) {
	if b.err != nil {
		return
	}
	b.err = b.r.SkipBits(n)
}

// hasChromaInfo reports whether the profile carries the chroma format
// and bit depth block (High and friends; Baseline/Main imply 4:2:0
// 8-bit).
func hasChromaInfo(profile uint8) bool {
	switch profile {
	case 100, 110, 122, 244, 44, 83, 86, 118, 128, 138, 139, 134, 135:
		return true
	}
	return false
}

// ParseSPS parses an SPS NAL unit and stores it under its id.
func (s *Store) ParseSPS(nal *bitstream.NALUnit) (uint8, error) {
	b := newRBSP(nal.Payload[1:])

	profile := uint8(b.bits(8))
	b.skip(8) // constraint_set flags + reserved_zero_2bits
	level := uint8(b.bits(8))

	rawID := b.ue()
	if b.err == nil && rawID > 31 {
		return 0, fmt.Errorf("parse sps: id %d out of range", rawID)
	}
	id := uint8(rawID)

	chromaFormat := uint8(1)
	bitDepthLuma := uint8(8)
	bitDepthChroma := uint8(8)
	if hasChromaInfo(profile) {
		chromaFormat = uint8(b.ue())
		if chromaFormat == 3 {
			b.flag() // separate_colour_plane_flag
		}
		bitDepthLuma = uint8(b.ue()) + 8
		bitDepthChroma = uint8(b.ue()) + 8
		b.flag() // qpprime_y_zero_transform_bypass_flag
		if b.flag() { // seq_scaling_matrix_present_flag
			lists := 8
			if chromaFormat == 3 {
				lists = 12
			}
			for i := 0; i < lists; i++ {
				if b.flag() {
					size := 16
					if i >= 6 {
						size = 64
					}
					skipScalingList(b, size)
				}
			}
		}
	}

	log2MaxFrameNum := uint8(b.ue()) + 4
	pocType := uint8(b.ue())
	var log2MaxPOCLSB uint8
	switch pocType {
	case 0:
		log2MaxPOCLSB = uint8(b.ue()) + 4
	case 1:
		b.flag() // delta_pic_order_always_zero_flag
		b.se()   // offset_for_non_ref_pic
		b.se()   // offset_for_top_to_bottom_field
		n := b.ue()
		if b.err != nil {
			return 0, fmt.Errorf("parse sps: %w", b.err)
		}
		for i := uint32(0); i < n; i++ {
			b.se() // offset_for_ref_frame
		}
	}

	maxRefFrames := uint8(b.ue())
	b.flag() // gaps_in_frame_num_value_allowed_flag

	widthMbs := b.ue() + 1
	heightMapUnits := b.ue() + 1
	frameMbsOnly := b.flag()
	if !frameMbsOnly {
		b.flag() // mb_adaptive_frame_field_flag
	}
	b.flag() // direct_8x8_inference_flag

	width := widthMbs * 16
	height := heightMapUnits * 16
	if !frameMbsOnly {
		height *= 2
	}
	if b.flag() { // frame_cropping_flag
		left := b.ue()
		right := b.ue()
		top := b.ue()
		bottom := b.ue()
		cropX, cropY := cropUnits(chromaFormat, frameMbsOnly)
		width -= (left + right) * cropX
		height -= (top + bottom) * cropY
	}
	if b.err != nil {
		return 0, fmt.Errorf("parse sps: %w", b.err)
	}

	s.sps[id] = &SPS{
		ID:              id,
		ProfileIDC:      profile,
		LevelIDC:        level,
		ChromaFormatIDC: chromaFormat,
		BitDepthLuma:    bitDepthLuma,
		BitDepthChroma:  bitDepthChroma,
		Log2MaxFrameNum: log2MaxFrameNum,
		POCType:         pocType,
		Log2MaxPOCLSB:   log2MaxPOCLSB,
		MaxNumRefFrames: maxRefFrames,
		PicWidth:        width,
		PicHeight:       height,
		FrameMbsOnly:    frameMbsOnly,
		Raw:             append([]byte(nil), nal.Payload...),
	}
	log.Printf("[avc] parsed SPS %d: %dx%d profile=%d depth=%d poc_type=%d",
		id, width, height, profile, bitDepthLuma, pocType)
	return id, nil
}

// cropUnits returns the luma sample multipliers for the frame
// cropping offsets (H.264 Table 6-1).
func cropUnits(chromaFormat uint8, frameMbsOnly bool) (uint32, uint32) {
	fieldScale := uint32(2)
	if frameMbsOnly {
		fieldScale = 1
	}
	switch chromaFormat {
	case 0, 3:
		return 1, fieldScale
	case 2:
		return 2, fieldScale
	default:
		return 2, 2 * fieldScale
	}
}

func skipScalingList(b *rbsp, size int) {
	lastScale := int32(8)
	nextScale := int32(8)
	for i := 0; i < size; i++ {
		if nextScale != 0 {
			delta := b.se()
			nextScale = (lastScale + delta + 256) % 256
		}
		if nextScale != 0 {
			lastScale = nextScale
		}
	}
}

// ParsePPS parses a PPS NAL unit and stores it under its id.
func (s *Store) ParsePPS(nal *bitstream.NALUnit) (uint8, error) {
	b := newRBSP(nal.Payload[1:])

	rawID := b.ue()
	if b.err == nil && rawID > 255 {
		return 0, fmt.Errorf("parse pps: id %d out of range", rawID)
	}
	id := uint8(rawID)

	rawSPSID := b.ue()
	if b.err == nil && rawSPSID > 31 {
		return 0, fmt.Errorf("parse pps: sps id %d out of range", rawSPSID)
	}

	entropy := b.flag()
	bottomField := b.flag()
	numSliceGroups := b.ue() + 1
	if b.err == nil && numSliceGroups > 1 {
		return 0, fmt.Errorf("parse pps: %d slice groups unsupported", numSliceGroups)
	}
	l0 := uint8(b.ue()) + 1
	l1 := uint8(b.ue()) + 1
	weightedPred := b.flag()
	weightedBipred := uint8(b.bits(2))
	b.se() // pic_init_qp_minus26
	b.se() // pic_init_qs_minus26
	b.se() // chroma_qp_index_offset
	deblocking := b.flag()
	b.flag() // constrained_intra_pred_flag
	b.flag() // redundant_pic_cnt_present_flag
	if b.err != nil {
		return 0, fmt.Errorf("parse pps: %w", b.err)
	}

	s.pps[id] = &PPS{
		ID:                         id,
		SPSID:                      uint8(rawSPSID),
		EntropyCodingMode:          entropy,
		BottomFieldPicOrderPresent: bottomField,
		NumRefIdxL0DefaultActive:   l0,
		NumRefIdxL1DefaultActive:   l1,
		WeightedPred:               weightedPred,
		WeightedBipredIDC:          weightedBipred,
		DeblockingControlPresent:   deblocking,
		Raw:                        append([]byte(nil), nal.Payload...),
	}
	log.Printf("[avc] parsed PPS %d: sps=%d cabac=%v", id, rawSPSID, entropy)
	return id, nil
}

// SPS returns the stored SPS for id, or nil.
func (s *Store) SPS(id uint8) *SPS {
	if int(id) >= len(s.sps) {
		return nil
	}
	return s.sps[id]
}

// PPS returns the stored PPS for id, or nil.
func (s *Store) PPS(id uint8) *PPS {
	return s.pps[id]
}

// GetSPSForPPS resolves the SPS a PPS refers to, or nil.
func (s *Store) GetSPSForPPS(ppsID uint8) *SPS {
	pps := s.PPS(ppsID)
	if pps == nil {
		return nil
	}
	return s.SPS(pps.SPSID)
}
