package hevc

import (
	"errors"
	"fmt"
	"log"

	"opennow/client/internal/bitstream"
)

// ErrParameterSetNotFound reports a slice referencing a PPS or SPS
// that has not arrived yet. Recoverable: skip the access unit and wait
// for the next parameter set NAL.
var ErrParameterSetNotFound = errors.New("hevc: parameter set not found")

// VPS is a parsed video parameter set.
type VPS struct {
	ID                uint8
	MaxLayers         uint8
	MaxSubLayers      uint8
	TemporalIDNesting bool
	// Raw holds the NAL payload including the 2-byte header, as
	// uploaded to the hardware session.
	Raw []byte
}

// SPS is a parsed sequence parameter set. Only the fields needed for
// session setup and slice header sizing are retained; everything else
// is bit-skipped.
type SPS struct {
	ID                    uint8
	VPSID                 uint8
	MaxSubLayers          uint8
	ChromaFormatIDC       uint8
	SeparateColourPlane   bool
	PicWidth              uint32
	PicHeight             uint32
	BitDepthLuma          uint8
	BitDepthChroma        uint8
	Log2MaxPOCLSB         uint8
	NumShortTermRPS       uint8
	LongTermRefPicsFlag   bool
	NumLongTermRefPics    uint8
	TemporalMVPEnabled    bool
	StrongIntraSmoothing  bool
	ScalingListEnabled    bool
	AMPEnabled            bool
	SAOEnabled            bool
	PCMEnabled            bool
	Log2MinCodingBlock    uint8
	Log2DiffMaxMinCoding  uint8
	Log2MinTransformBlock uint8
	Log2DiffMaxMinTrans   uint8
	MaxTransformDepthInt  uint8
	MaxTransformDepthIntr uint8
	Raw                   []byte
}

// IsHDR reports whether the sequence uses more than 8 bits per sample.
func (s *SPS) IsHDR() bool {
	return s.BitDepthLuma > 8 || s.BitDepthChroma > 8
}

// CTBSize returns the coding tree block size in luma samples.
func (s *SPS) CTBSize() uint32 {
	return 1 << (s.Log2MinCodingBlock + s.Log2DiffMaxMinCoding)
}

// PPS is a parsed picture parameter set.
type PPS struct {
	ID                       uint8
	SPSID                    uint8
	DependentSliceSegments   bool
	OutputFlagPresent        bool
	NumExtraSliceHeaderBits  uint8
	SignDataHiding           bool
	CabacInitPresent         bool
	NumRefIdxL0DefaultActive uint8
	NumRefIdxL1DefaultActive uint8
	InitQP                   int8
	ConstrainedIntraPred     bool
	TransformSkipEnabled     bool
	CUQPDeltaEnabled         bool
	DiffCUQPDeltaDepth       uint8
	CbQPOffset               int8
	CrQPOffset               int8
	SliceChromaQPOffsets     bool
	WeightedPred             bool
	WeightedBipred           bool
	TransquantBypass         bool
	TilesEnabled             bool
	EntropyCodingSync        bool
	NumTileColumns           uint16
	NumTileRows              uint16
	UniformSpacing           bool
	LoopFilterAcrossTiles    bool
	LoopFilterAcrossSlices   bool
	DeblockingControlPresent bool
	ListsModificationPresent bool
	Log2ParallelMergeLevel   uint8
	SliceHeaderExtension     bool
	Raw                      []byte
}

// Store caches parameter sets keyed by their wire-assigned ids.
// A reparsed id overwrites the previous set wholesale. Not safe for
// concurrent use; the decode loop owns it.
type Store struct {
	vps [16]*VPS
	sps [16]*SPS
	pps [64]*PPS
}

func NewStore() *Store {
	return &Store{}
}

// rbsp wraps a bitstream.Reader with sticky-error reads so the
// standard's field walks stay linear. The first failed read latches
// and every later read returns zero; callers check err at loop
// boundaries and before trusting loop counts.
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

// ParseVPS parses a VPS NAL unit and stores it under its id.
func (s *Store) ParseVPS(nal *bitstream.NALUnit) (uint8, error) {
	b := newRBSP(nal.Payload[2:])

	id := uint8(b.bits(4))
	b.skip(2) // vps_base_layer_internal_flag, vps_base_layer_available_flag
	maxLayers := uint8(b.bits(6)) + 1
	maxSubLayers := uint8(b.bits(3)) + 1
	nesting := b.flag()
	if b.err != nil {
		return 0, fmt.Errorf("parse vps: %w", b.err)
	}

	s.vps[id] = &VPS{
		ID:                id,
		MaxLayers:         maxLayers,
		MaxSubLayers:      maxSubLayers,
		TemporalIDNesting: nesting,
		Raw:               append([]byte(nil), nal.Payload...),
	}
	log.Printf("[hevc] parsed VPS %d: layers=%d sub_layers=%d", id, maxLayers, maxSubLayers)
	return id, nil
}

// ParseSPS parses an SPS NAL unit and stores it under its id.
func (s *Store) ParseSPS(nal *bitstream.NALUnit) (uint8, error) {
	b := newRBSP(nal.Payload[2:])

	vpsID := uint8(b.bits(4))
	maxSubLayers := uint8(b.bits(3)) + 1
	b.flag() // sps_temporal_id_nesting_flag

	skipProfileTierLevel(b, true, maxSubLayers)

	rawID := b.ue()
	if b.err == nil && rawID > 15 {
		return 0, fmt.Errorf("parse sps: id %d out of range", rawID)
	}
	id := uint8(rawID)
	chromaFormat := uint8(b.ue())

	separateColourPlane := false
	if chromaFormat == 3 {
		separateColourPlane = b.flag()
	}

	width := b.ue()
	height := b.ue()

	if b.flag() { // conformance_window_flag
		b.ue() // left
		b.ue() // right
		b.ue() // top
		b.ue() // bottom
	}

	bitDepthLuma := uint8(b.ue()) + 8
	bitDepthChroma := uint8(b.ue()) + 8
	log2MaxPOCLSB := uint8(b.ue()) + 4

	subLayerOrdering := b.flag()
	start := maxSubLayers - 1
	if subLayerOrdering {
		start = 0
	}
	for i := start; i < maxSubLayers; i++ {
		b.ue() // sps_max_dec_pic_buffering_minus1
		b.ue() // sps_max_num_reorder_pics
		b.ue() // sps_max_latency_increase_plus1
	}

	log2MinCoding := uint8(b.ue()) + 3
	log2DiffCoding := uint8(b.ue())
	log2MinTransform := uint8(b.ue()) + 2
	log2DiffTransform := uint8(b.ue())
	maxDepthInter := uint8(b.ue())
	maxDepthIntra := uint8(b.ue())

	scalingListEnabled := b.flag()
	if scalingListEnabled && b.flag() {
		skipScalingListData(b)
	}

	ampEnabled := b.flag()
	saoEnabled := b.flag()

	pcmEnabled := b.flag()
	if pcmEnabled {
		b.bits(4) // pcm_sample_bit_depth_luma_minus1
		b.bits(4) // pcm_sample_bit_depth_chroma_minus1
		b.ue()    // log2_min_pcm_luma_coding_block_size_minus3
		b.ue()    // log2_diff_max_min_pcm_luma_coding_block_size
		b.flag()  // pcm_loop_filter_disabled_flag
	}

	numShortTermRPS := uint8(b.ue())
	if b.err != nil {
		return 0, fmt.Errorf("parse sps: %w", b.err)
	}
	for i := uint8(0); i < numShortTermRPS; i++ {
		skipShortTermRefPicSet(b, i, numShortTermRPS)
		if b.err != nil {
			return 0, fmt.Errorf("parse sps: %w", b.err)
		}
	}

	longTermPresent := b.flag()
	numLongTerm := uint8(0)
	if longTermPresent {
		numLongTerm = uint8(b.ue())
		if b.err != nil {
			return 0, fmt.Errorf("parse sps: %w", b.err)
		}
		for i := uint8(0); i < numLongTerm; i++ {
			b.skip(int(log2MaxPOCLSB)) // lt_ref_pic_poc_lsb_sps
			b.flag()                   // used_by_curr_pic_lt_sps_flag
		}
	}

	temporalMVP := b.flag()
	strongIntraSmoothing := b.flag()
	if b.err != nil {
		return 0, fmt.Errorf("parse sps: %w", b.err)
	}

	s.sps[id] = &SPS{
		ID:                    id,
		VPSID:                 vpsID,
		MaxSubLayers:          maxSubLayers,
		ChromaFormatIDC:       chromaFormat,
		SeparateColourPlane:   separateColourPlane,
		PicWidth:              width,
		PicHeight:             height,
		BitDepthLuma:          bitDepthLuma,
		BitDepthChroma:        bitDepthChroma,
		Log2MaxPOCLSB:         log2MaxPOCLSB,
		NumShortTermRPS:       numShortTermRPS,
		LongTermRefPicsFlag:   longTermPresent,
		NumLongTermRefPics:    numLongTerm,
		TemporalMVPEnabled:    temporalMVP,
		StrongIntraSmoothing:  strongIntraSmoothing,
		ScalingListEnabled:    scalingListEnabled,
		AMPEnabled:            ampEnabled,
		SAOEnabled:            saoEnabled,
		PCMEnabled:            pcmEnabled,
		Log2MinCodingBlock:    log2MinCoding,
		Log2DiffMaxMinCoding:  log2DiffCoding,
		Log2MinTransformBlock: log2MinTransform,
		Log2DiffMaxMinTrans:   log2DiffTransform,
		MaxTransformDepthInt:  maxDepthInter,
		MaxTransformDepthIntr: maxDepthIntra,
		Raw:                   append([]byte(nil), nal.Payload...),
	}
	log.Printf("[hevc] parsed SPS %d: %dx%d bit_depth=%d/%d", id, width, height, bitDepthLuma, bitDepthChroma)
	return id, nil
}

// ParsePPS parses a PPS NAL unit and stores it under its id.
func (s *Store) ParsePPS(nal *bitstream.NALUnit) (uint8, error) {
	b := newRBSP(nal.Payload[2:])

	id := b.ue()
	spsID := b.ue()
	if b.err == nil && (id > 63 || spsID > 15) {
		return 0, fmt.Errorf("parse pps: id %d/sps %d out of range", id, spsID)
	}

	pps := &PPS{
		ID:    uint8(id),
		SPSID: uint8(spsID),
		Raw:   append([]byte(nil), nal.Payload...),
	}

	pps.DependentSliceSegments = b.flag()
	pps.OutputFlagPresent = b.flag()
	pps.NumExtraSliceHeaderBits = uint8(b.bits(3))
	pps.SignDataHiding = b.flag()
	pps.CabacInitPresent = b.flag()

	pps.NumRefIdxL0DefaultActive = uint8(b.ue()) + 1
	pps.NumRefIdxL1DefaultActive = uint8(b.ue()) + 1
	pps.InitQP = int8(b.se()) + 26

	pps.ConstrainedIntraPred = b.flag()
	pps.TransformSkipEnabled = b.flag()

	pps.CUQPDeltaEnabled = b.flag()
	if pps.CUQPDeltaEnabled {
		pps.DiffCUQPDeltaDepth = uint8(b.ue())
	}

	pps.CbQPOffset = int8(b.se())
	pps.CrQPOffset = int8(b.se())

	pps.SliceChromaQPOffsets = b.flag()
	pps.WeightedPred = b.flag()
	pps.WeightedBipred = b.flag()
	pps.TransquantBypass = b.flag()
	pps.TilesEnabled = b.flag()
	pps.EntropyCodingSync = b.flag()

	pps.NumTileColumns, pps.NumTileRows, pps.UniformSpacing = 1, 1, true
	if pps.TilesEnabled {
		cols := b.ue() + 1
		rows := b.ue() + 1
		if b.err != nil {
			return 0, fmt.Errorf("parse pps: %w", b.err)
		}
		pps.NumTileColumns = uint16(cols)
		pps.NumTileRows = uint16(rows)
		pps.UniformSpacing = b.flag()
		if !pps.UniformSpacing {
			for i := uint32(0); i < cols-1; i++ {
				b.ue() // column_width_minus1
			}
			for i := uint32(0); i < rows-1; i++ {
				b.ue() // row_height_minus1
			}
		}
		pps.LoopFilterAcrossTiles = b.flag()
	}

	pps.LoopFilterAcrossSlices = b.flag()

	pps.DeblockingControlPresent = b.flag()
	if pps.DeblockingControlPresent {
		b.flag() // deblocking_filter_override_enabled_flag
		disabled := b.flag()
		if !disabled {
			b.se() // pps_beta_offset_div2
			b.se() // pps_tc_offset_div2
		}
	}

	if sps := s.sps[pps.SPSID]; sps != nil && sps.ScalingListEnabled {
		if b.flag() { // pps_scaling_list_data_present_flag
			skipScalingListData(b)
		}
	}

	pps.ListsModificationPresent = b.flag()
	pps.Log2ParallelMergeLevel = uint8(b.ue()) + 2
	pps.SliceHeaderExtension = b.flag()
	if b.err != nil {
		return 0, fmt.Errorf("parse pps: %w", b.err)
	}

	s.pps[pps.ID] = pps
	log.Printf("[hevc] parsed PPS %d: sps=%d tiles=%dx%d", pps.ID, pps.SPSID, pps.NumTileColumns, pps.NumTileRows)
	return pps.ID, nil
}

// profile_tier_level is 96 bits of general profile/level data plus
// optional per-sub-layer blocks. Values are unused; only the width
// matters for cursor alignment.
func skipProfileTierLevel(b *rbsp, profilePresent bool, maxSubLayers uint8) {
	if profilePresent {
		// profile_space(2) + tier(1) + profile_idc(5) +
		// compatibility flags(32) + constraint flags(48) + level_idc(8)
		b.skip(96)
	}

	var profilePresentFlags, levelPresentFlags [8]bool
	for i := uint8(0); i < maxSubLayers-1; i++ {
		profilePresentFlags[i] = b.flag()
		levelPresentFlags[i] = b.flag()
	}

	if maxSubLayers > 1 && maxSubLayers < 8 {
		for i := maxSubLayers - 1; i < 8; i++ {
			b.skip(2) // reserved_zero_2bits
		}
	}

	for i := uint8(0); i < maxSubLayers-1; i++ {
		if profilePresentFlags[i] {
			b.skip(88)
		}
		if levelPresentFlags[i] {
			b.skip(8) // sub_layer_level_idc
		}
	}
}

func skipScalingListData(b *rbsp) {
	for sizeID := 0; sizeID < 4; sizeID++ {
		numMatrix := 6
		if sizeID == 3 {
			numMatrix = 2
		}
		for matrixID := 0; matrixID < numMatrix; matrixID++ {
			if b.err != nil {
				return
			}
			predMode := b.flag()
			if !predMode {
				b.ue() // scaling_list_pred_matrix_id_delta
			} else {
				coefNum := 1 << (4 + (sizeID << 1))
				if coefNum > 64 {
					coefNum = 64
				}
				if sizeID > 1 {
					b.se() // scaling_list_dc_coef_minus8
				}
				for i := 0; i < coefNum; i++ {
					b.se()
				}
			}
		}
	}
}

func skipShortTermRefPicSet(b *rbsp, idx, numSets uint8) {
	interPrediction := false
	if idx > 0 {
		interPrediction = b.flag()
	}

	if interPrediction {
		if idx == numSets {
			b.ue() // delta_idx_minus1
		}
		b.flag() // delta_rps_sign
		b.ue()   // abs_delta_rps_minus1
		// Skipping the per-picture used/use_delta flags needs the
		// previous set's picture count, which is not retained.
		return
	}

	numNegative := b.ue()
	numPositive := b.ue()
	if b.err != nil {
		return
	}
	for i := uint32(0); i < numNegative; i++ {
		b.ue()   // delta_poc_s0_minus1
		b.flag() // used_by_curr_pic_s0_flag
		if b.err != nil {
			return
		}
	}
	for i := uint32(0); i < numPositive; i++ {
		b.ue()   // delta_poc_s1_minus1
		b.flag() // used_by_curr_pic_s1_flag
		if b.err != nil {
			return
		}
	}
}

// VPS returns the stored VPS with the given id, or nil.
func (s *Store) VPS(id uint8) *VPS {
	if int(id) >= len(s.vps) {
		return nil
	}
	return s.vps[id]
}

// SPS returns the stored SPS with the given id, or nil.
func (s *Store) SPS(id uint8) *SPS {
	if int(id) >= len(s.sps) {
		return nil
	}
	return s.sps[id]
}

// PPS returns the stored PPS with the given id, or nil.
func (s *Store) PPS(id uint8) *PPS {
	if int(id) >= len(s.pps) {
		return nil
	}
	return s.pps[id]
}

// GetSPSForPPS returns the SPS referenced by the PPS with the given id.
func (s *Store) GetSPSForPPS(ppsID uint8) *SPS {
	pps := s.PPS(ppsID)
	if pps == nil {
		return nil
	}
	return s.SPS(pps.SPSID)
}

// GetVPSForSPS returns the VPS referenced by the SPS with the given id.
func (s *Store) GetVPSForSPS(spsID uint8) *VPS {
	sps := s.SPS(spsID)
	if sps == nil {
		return nil
	}
	return s.VPS(sps.VPSID)
}

// GetDimensions returns picture dimensions and HDR status from the
// first stored SPS. ok is false before any SPS has been parsed.
func (s *Store) GetDimensions() (width, height uint32, isHDR bool, ok bool) {
	for _, sps := range s.sps {
		if sps != nil {
			return sps.PicWidth, sps.PicHeight, sps.IsHDR(), true
		}
	}
	return 0, 0, false, false
}
