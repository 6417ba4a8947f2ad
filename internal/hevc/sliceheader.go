package hevc

import (
	"fmt"

	"opennow/client/internal/bitstream"
)

// SliceHeader is the slice header prefix parsed from a VCL NAL. Enough
// to associate the coded picture with its parameter sets and picture
// order; the rest of the header is left to the hardware.
type SliceHeader struct {
	FirstSliceInPic       bool
	NoOutputOfPriorPics   bool
	PPSID                 uint8
	DependentSliceSegment bool
	SliceSegmentAddress   uint32
	SliceType             uint8
	PicOutput             bool
	ColourPlaneID         uint8
	PicOrderCntLSB        uint16
	ShortTermRPSFromSPS   bool
	NumRefIdxL0Active     uint8
	NumRefIdxL1Active     uint8
}

// ParseSliceHeader parses the slice header prefix of a VCL NAL unit.
// Returns ErrParameterSetNotFound when the referenced PPS or its SPS
// has not been parsed yet.
func (s *Store) ParseSliceHeader(nal *bitstream.NALUnit) (*SliceHeader, error) {
	nalType := NALType(nal.Type)
	b := newRBSP(nal.Payload[2:])

	firstSlice := b.flag()

	noOutput := false
	if nalType.IsRAP() {
		noOutput = b.flag()
	}

	ppsID := b.ue()
	if b.err != nil {
		return nil, fmt.Errorf("parse slice header: %w", b.err)
	}
	if ppsID > 63 {
		return nil, fmt.Errorf("parse slice header: pps id %d out of range", ppsID)
	}
	pps := s.PPS(uint8(ppsID))
	if pps == nil {
		return nil, fmt.Errorf("pps %d: %w", ppsID, ErrParameterSetNotFound)
	}
	sps := s.SPS(pps.SPSID)
	if sps == nil {
		return nil, fmt.Errorf("sps %d: %w", pps.SPSID, ErrParameterSetNotFound)
	}

	h := &SliceHeader{
		FirstSliceInPic:     firstSlice,
		NoOutputOfPriorPics: noOutput,
		PPSID:               uint8(ppsID),
	}

	if !firstSlice {
		if pps.DependentSliceSegments {
			h.DependentSliceSegment = b.flag()
		}
		ctb := sps.CTBSize()
		widthInCTBs := (sps.PicWidth + ctb - 1) / ctb
		heightInCTBs := (sps.PicHeight + ctb - 1) / ctb
		h.SliceSegmentAddress = b.bits(addressBits(widthInCTBs * heightInCTBs))
	}

	if !h.DependentSliceSegment {
		b.skip(int(pps.NumExtraSliceHeaderBits))

		h.SliceType = uint8(b.ue())

		h.PicOutput = true
		if pps.OutputFlagPresent {
			h.PicOutput = b.flag()
		}

		if sps.SeparateColourPlane {
			h.ColourPlaneID = uint8(b.bits(2))
		}

		// IDR pictures carry no POC LSB; ordering resets with the
		// session state.
		if !nalType.IsIDR() {
			h.PicOrderCntLSB = uint16(b.bits(int(sps.Log2MaxPOCLSB)))
			h.ShortTermRPSFromSPS = b.flag()
		}

		h.NumRefIdxL0Active = pps.NumRefIdxL0DefaultActive
		h.NumRefIdxL1Active = pps.NumRefIdxL1DefaultActive
	}

	if b.err != nil {
		return nil, fmt.Errorf("parse slice header: %w", b.err)
	}
	return h, nil
}

// addressBits returns the bit width of slice_segment_address:
// ceil(log2(number of CTBs)).
func addressBits(numCTBs uint32) int {
	bits := 0
	for v := numCTBs - 1; v > 0; v >>= 1 {
		bits++
	}
	return bits
}
