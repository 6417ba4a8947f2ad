package avc

import (
	"fmt"

	"opennow/client/internal/bitstream"
)

// SliceHeader holds the leading slice header fields up to picture
// order count. frame_num width and POC LSB width come from the SPS the
// slice's PPS points at.
type SliceHeader struct {
	FirstMBInSlice uint32
	SliceType      uint32
	PPSID          uint8
	FrameNum       uint32
	FieldPic       bool
	BottomField    bool
	IdrPicID       uint32
	PicOrderCntLSB uint16
}

// FirstSliceInPic reports whether the slice starts a new picture.
func (h *SliceHeader) FirstSliceInPic() bool {
	return h.FirstMBInSlice == 0
}

// ParseSliceHeader decodes the slice header prefix of a VCL NAL unit.
// The referenced PPS and its SPS must already be stored.
func (s *Store) ParseSliceHeader(nal *bitstream.NALUnit) (*SliceHeader, error) {
	typ := NALType(nal.Type)
	b := newRBSP(nal.Payload[1:])

	firstMB := b.ue()
	sliceType := b.ue()
	rawPPSID := b.ue()
	if b.err != nil {
		return nil, fmt.Errorf("parse slice header: %w", b.err)
	}
	if rawPPSID > 255 {
		return nil, fmt.Errorf("parse slice header: pps id %d out of range", rawPPSID)
	}

	pps := s.PPS(uint8(rawPPSID))
	if pps == nil {
		return nil, fmt.Errorf("%w: pps %d", ErrParameterSetNotFound, rawPPSID)
	}
	sps := s.SPS(pps.SPSID)
	if sps == nil {
		return nil, fmt.Errorf("%w: sps %d (via pps %d)", ErrParameterSetNotFound, pps.SPSID, pps.ID)
	}

	h := &SliceHeader{
		FirstMBInSlice: firstMB,
		SliceType:      sliceType,
		PPSID:          uint8(rawPPSID),
	}

	h.FrameNum = b.bits(int(sps.Log2MaxFrameNum))

	if !sps.FrameMbsOnly {
		h.FieldPic = b.flag()
		if h.FieldPic {
			h.BottomField = b.flag()
		}
	}

	if typ.IsIDR() {
		h.IdrPicID = b.ue()
	}

	if sps.POCType == 0 {
		h.PicOrderCntLSB = uint16(b.bits(int(sps.Log2MaxPOCLSB)))
		if pps.BottomFieldPicOrderPresent && !h.FieldPic {
			b.se() // delta_pic_order_cnt_bottom
		}
	}

	if b.err != nil {
		return nil, fmt.Errorf("parse slice header: %w", b.err)
	}
	return h, nil
}
