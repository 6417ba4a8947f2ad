package decode

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opennow/client/internal/avc"
	"opennow/client/internal/bitstream"
	"opennow/client/internal/domain"
	"opennow/client/internal/hevc"
)

// Annex-B fixture builders. Parameter sets use log2_max_poc_lsb = 8
// and 64x64 CTBs throughout.

func emulate(rbsp []byte) []byte {
	out := make([]byte, 0, len(rbsp))
	zeros := 0
	for _, v := range rbsp {
		if zeros >= 2 && v <= 3 {
			out = append(out, 3)
			zeros = 0
		}
		out = append(out, v)
		if v == 0 {
			zeros++
		} else {
			zeros = 0
		}
	}
	return out
}

func nalBytes(typ hevc.NALType, rbsp []byte) []byte {
	out := []byte{0, 0, 0, 1, uint8(typ) << 1, 0x01}
	return append(out, emulate(rbsp)...)
}

func vpsRBSP() []byte {
	var w bitstream.Writer
	w.WriteBits(0, 4) // vps_id
	w.WriteBits(0, 2)
	w.WriteBits(0, 6) // max_layers_minus1
	w.WriteBits(0, 3) // max_sub_layers_minus1
	w.WriteFlag(true)
	return w.Bytes()
}

func spsRBSP(width, height uint32, bitDepth uint8) []byte {
	var w bitstream.Writer
	w.WriteBits(0, 4)  // vps_id
	w.WriteBits(0, 3)  // max_sub_layers_minus1
	w.WriteFlag(true)  // temporal_id_nesting
	w.WriteBits(0, 32) // profile_tier_level
	w.WriteBits(0, 32)
	w.WriteBits(0, 32)
	w.WriteUE(0) // sps_id
	w.WriteUE(1) // chroma_format_idc
	w.WriteUE(width)
	w.WriteUE(height)
	w.WriteFlag(false) // conformance_window
	w.WriteUE(uint32(bitDepth - 8))
	w.WriteUE(uint32(bitDepth - 8))
	w.WriteUE(4)      // log2_max_poc_lsb_minus4 -> 8
	w.WriteFlag(true) // sub_layer_ordering
	w.WriteUE(5)
	w.WriteUE(0)
	w.WriteUE(0)
	w.WriteUE(0) // log2_min_coding_minus3
	w.WriteUE(3) // diff -> 64x64 CTB
	w.WriteUE(0)
	w.WriteUE(0)
	w.WriteUE(0)
	w.WriteUE(0)
	w.WriteFlag(false) // scaling_list
	w.WriteFlag(true)  // amp
	w.WriteFlag(true)  // sao
	w.WriteFlag(false) // pcm
	w.WriteUE(0)       // num_short_term_ref_pic_sets
	w.WriteFlag(false) // long_term
	w.WriteFlag(true)  // temporal_mvp
	w.WriteFlag(true)  // strong_intra_smoothing
	return w.Bytes()
}

func ppsRBSP() []byte {
	var w bitstream.Writer
	w.WriteUE(0) // pps_id
	w.WriteUE(0) // sps_id
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteBits(0, 3)
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteUE(3) // num_ref_idx_l0_default_active_minus1
	w.WriteUE(0)
	w.WriteSE(0) // init_qp_minus26
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteFlag(false) // cu_qp_delta
	w.WriteSE(0)
	w.WriteSE(0)
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteFlag(false)
	w.WriteFlag(false) // tiles
	w.WriteFlag(false)
	w.WriteFlag(true)  // loop_filter_across_slices
	w.WriteFlag(false) // deblocking_control
	w.WriteFlag(false) // lists_modification
	w.WriteUE(0)
	w.WriteFlag(false)
	return w.Bytes()
}

func idrSliceRBSP() []byte {
	var w bitstream.Writer
	w.WriteFlag(true)  // first_slice
	w.WriteFlag(false) // no_output_of_prior_pics
	w.WriteUE(0)       // pps_id
	w.WriteUE(uint32(hevc.SliceI))
	return w.Bytes()
}

func trailSliceRBSP(pocLSB uint16) []byte {
	var w bitstream.Writer
	w.WriteFlag(true) // first_slice
	w.WriteUE(0)      // pps_id
	w.WriteUE(uint32(hevc.SliceP))
	w.WriteBits(uint32(pocLSB), 8)
	w.WriteFlag(false) // short_term_ref_pic_set_sps_flag
	return w.Bytes()
}

func paramsAU(width, height uint32, bitDepth uint8) []byte {
	var au []byte
	au = append(au, nalBytes(hevc.NALVPS, vpsRBSP())...)
	au = append(au, nalBytes(hevc.NALSPS, spsRBSP(width, height, bitDepth))...)
	au = append(au, nalBytes(hevc.NALPPS, ppsRBSP())...)
	return au
}

func idrAU() []byte {
	return nalBytes(hevc.NALIDRWRADL, idrSliceRBSP())
}

func trailAU(typ hevc.NALType, pocLSB uint16) []byte {
	return nalBytes(typ, trailSliceRBSP(pocLSB))
}

func newTestManager(t *testing.T) (*Manager, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	return NewManager(dev, domain.CodecH265, time.Second), dev
}

func lastSession(t *testing.T, dev *fakeDevice) *fakeSession {
	t.Helper()
	require.NotEmpty(t, dev.sessions)
	return dev.sessions[len(dev.sessions)-1]
}

func TestManagerSessionCreatedFromFirstSPS(t *testing.T) {
	m, dev := newTestManager(t)
	assert.Equal(t, StateUninitialized, m.State())

	frame, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, StateAwaitingParameters, m.State())

	sess := lastSession(t, dev)
	assert.Equal(t, uint32(1920), sess.cfg.Width)
	assert.Equal(t, uint32(1080), sess.cfg.Height)
	assert.Equal(t, CodecIDH265, sess.cfg.Codec)
	assert.Equal(t, 17, sess.cfg.MaxDPBSlots)
	assert.Equal(t, 16, sess.cfg.MaxActiveReferences)
}

func TestManagerDecodesIDRThenTrailing(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 1920, frame.Width)
	assert.Equal(t, 1080, frame.Height)
	assert.Equal(t, domain.PixelFormatNV12, frame.Format)
	assert.Equal(t, domain.ColorSpaceBT709, frame.Space)
	assert.Equal(t, StateReady, m.State())

	frame, err = m.DecodeAccessUnit(trailAU(hevc.NALTrailR, 1))
	require.NoError(t, err)
	require.NotNil(t, frame)

	sess := lastSession(t, dev)
	require.Len(t, sess.submissions, 2)

	idr := sess.submissions[0]
	assert.True(t, idr.IDR)
	assert.True(t, idr.Reference)
	assert.Equal(t, int32(0), idr.POC)
	assert.Empty(t, idr.References)
	assert.Equal(t, 0, idr.TargetSlot)

	trail := sess.submissions[1]
	assert.False(t, trail.IDR)
	assert.Equal(t, int32(1), trail.POC)
	assert.Equal(t, 1, trail.TargetSlot)
	require.Len(t, trail.References, 1)
	assert.Equal(t, 0, trail.References[0].SlotIndex)

	assert.Equal(t, uint64(2), m.FramesDecoded())
}

func TestManagerBitstreamPaddedToAlignment(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)

	sess := lastSession(t, dev)
	sub := sess.submissions[0]
	assert.Zero(t, len(sub.Bitstream)%dev.caps.BitstreamAlignment)
	assert.GreaterOrEqual(t, len(sub.Bitstream), len(idrAU()))
}

func TestManagerParamsPushedOncePerChange(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	for i := 0; i < 4; i++ {
		var au []byte
		if i == 0 {
			au = idrAU()
		} else {
			au = trailAU(hevc.NALTrailR, uint16(i))
		}
		_, err = m.DecodeAccessUnit(au)
		require.NoError(t, err)
	}
	sess := lastSession(t, dev)
	assert.Equal(t, 1, sess.pushes)

	// A repeated in-band parameter set dirties the session once more.
	_, err = m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(trailAU(hevc.NALTrailR, 5))
	require.NoError(t, err)
	assert.Equal(t, 2, sess.pushes)
}

func TestManagerIDRResetsDPBAndPOC(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	for i := 1; i <= 3; i++ {
		_, err = m.DecodeAccessUnit(trailAU(hevc.NALTrailR, uint16(i)))
		require.NoError(t, err)
	}
	assert.Equal(t, 4, m.dpb.activeCount())

	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	assert.Equal(t, 1, m.dpb.activeCount())

	sess := lastSession(t, dev)
	second := sess.submissions[len(sess.submissions)-1]
	assert.True(t, second.IDR)
	assert.Equal(t, 0, second.TargetSlot)
	assert.Empty(t, second.References)
}

func TestManagerNonReferenceFreesSlot(t *testing.T) {
	m, _ := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(trailAU(hevc.NALTrailN, 1))
	require.NoError(t, err)
	require.NotNil(t, frame)

	// The non-reference picture was delivered but does not occupy its
	// slot.
	assert.Equal(t, 1, m.dpb.activeCount())
	assert.False(t, m.dpb.slots[1].inUse)
}

func TestManagerSkipsSliceWithoutParameterSets(t *testing.T) {
	m, _ := newTestManager(t)

	frame, err := m.DecodeAccessUnit(idrAU())
	assert.Nil(t, frame)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrFrameSkipped)
	assert.NotEqual(t, StateFaulted, m.State())
}

func TestManagerSkipsOversizedAccessUnit(t *testing.T) {
	m, dev := newTestManager(t)
	dev.capacity = 4
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(idrAU())
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrFrameSkipped)
	assert.NotEqual(t, StateFaulted, m.State())

	// The session survives; a later unit that fits decodes fine.
	lastSession(t, dev).capacity = 1 << 20
	frame, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	assert.NotNil(t, frame)
}

func TestManagerFenceTimeoutFaults(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	lastSession(t, dev).decodeErr = fmt.Errorf("fence wait: %w", ErrDeviceLost)

	_, err = m.DecodeAccessUnit(idrAU())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrDeviceLost)
	assert.Equal(t, StateFaulted, m.State())

	// Faulted is terminal.
	_, err = m.DecodeAccessUnit(idrAU())
	assert.ErrorIs(t, err, ErrDeviceLost)
}

func TestManagerTransientDecodeErrorSkipsFrame(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	sess := lastSession(t, dev)
	sess.decodeErr = fmt.Errorf("queue busy")
	_, err = m.DecodeAccessUnit(idrAU())
	assert.ErrorIs(t, err, ErrFrameSkipped)
	assert.NotEqual(t, StateFaulted, m.State())

	sess.decodeErr = nil
	frame, err := m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	assert.NotNil(t, frame)
}

func TestManagerIncompleteStatusStillDelivers(t *testing.T) {
	m, dev := newTestManager(t)
	dev.incomplete = true
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	assert.NotNil(t, frame)
}

func TestManagerResolutionChangeIsCallerVisible(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1280, 720, 8))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	first := lastSession(t, dev)

	_, err = m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrResolutionChanged)

	require.NoError(t, m.Reconfigure())
	assert.True(t, first.destroyed)

	second := lastSession(t, dev)
	assert.NotSame(t, first, second)
	assert.Equal(t, uint32(1920), second.cfg.Width)

	frame, err := m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 1920, frame.Width)
}

func TestManagerHDRStream(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(3840, 2160, 10))
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, domain.PixelFormatP010, frame.Format)
	assert.Equal(t, domain.ColorSpaceBT2020, frame.Space)
	assert.Equal(t, domain.TransferPQ, frame.Transfer)
	assert.Equal(t, uint8(10), lastSession(t, dev).cfg.BitDepth)
}

func TestManagerExportSurface(t *testing.T) {
	m, dev := newTestManager(t)
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	_, err = m.ExportSurface()
	assert.Error(t, err, "nothing decoded yet")

	_, err = m.DecodeAccessUnit(idrAU())
	require.NoError(t, err)

	exp, err := m.ExportSurface()
	require.NoError(t, err)
	assert.Equal(t, FourCCNV12, exp.FourCC)
	assert.Equal(t, uint32(1920), exp.Width)
	require.Len(t, exp.Planes, 2)
	assert.Equal(t, 1, lastSession(t, dev).exports)
}

func TestPadBitstream(t *testing.T) {
	assert.Len(t, padBitstream(make([]byte, 100), 256), 256)
	assert.Len(t, padBitstream(make([]byte, 256), 256), 256)
	assert.Len(t, padBitstream(make([]byte, 257), 256), 512)
	assert.Len(t, padBitstream(make([]byte, 3), 1), 3)
}

// H.264 fixtures. Baseline profile, poc type 0, log2_max_frame_num
// and log2_max_pic_order_cnt_lsb both 8.

func nalBytesAVC(refIdc uint8, typ avc.NALType, rbsp []byte) []byte {
	out := []byte{0, 0, 0, 1, refIdc<<5 | uint8(typ)}
	return append(out, emulate(rbsp)...)
}

func avcSPSRBSP(widthMbs, mapUnits, cropBottom uint32) []byte {
	var w bitstream.Writer
	w.WriteBits(66, 8) // profile_idc
	w.WriteBits(0, 8)  // constraint flags
	w.WriteBits(31, 8) // level_idc
	w.WriteUE(0)       // sps_id
	w.WriteUE(4)       // log2_max_frame_num_minus4 -> 8
	w.WriteUE(0)       // pic_order_cnt_type
	w.WriteUE(4)       // log2_max_pic_order_cnt_lsb_minus4 -> 8
	w.WriteUE(4)       // max_num_ref_frames
	w.WriteFlag(false) // gaps_in_frame_num
	w.WriteUE(widthMbs - 1)
	w.WriteUE(mapUnits - 1)
	w.WriteFlag(true) // frame_mbs_only
	w.WriteFlag(true) // direct_8x8_inference
	if cropBottom > 0 {
		w.WriteFlag(true) // frame_cropping
		w.WriteUE(0)
		w.WriteUE(0)
		w.WriteUE(0)
		w.WriteUE(cropBottom)
	} else {
		w.WriteFlag(false)
	}
	w.WriteFlag(false) // vui
	return w.Bytes()
}

func avcPPSRBSP() []byte {
	var w bitstream.Writer
	w.WriteUE(0)       // pps_id
	w.WriteUE(0)       // sps_id
	w.WriteFlag(true)  // entropy_coding_mode
	w.WriteFlag(false) // bottom_field_pic_order_in_frame_present
	w.WriteUE(0)       // num_slice_groups_minus1
	w.WriteUE(3)       // num_ref_idx_l0_default_active_minus1
	w.WriteUE(0)
	w.WriteFlag(false) // weighted_pred
	w.WriteBits(0, 2)  // weighted_bipred_idc
	w.WriteSE(0)       // pic_init_qp_minus26
	w.WriteSE(0)
	w.WriteSE(0)
	w.WriteFlag(true) // deblocking_filter_control_present
	w.WriteFlag(false)
	w.WriteFlag(false)
	return w.Bytes()
}

func avcIDRSliceRBSP() []byte {
	var w bitstream.Writer
	w.WriteUE(0)      // first_mb_in_slice
	w.WriteUE(7)      // slice_type I
	w.WriteUE(0)      // pps_id
	w.WriteBits(0, 8) // frame_num
	w.WriteUE(0)      // idr_pic_id
	w.WriteBits(0, 8) // pic_order_cnt_lsb
	return w.Bytes()
}

func avcPSliceRBSP(frameNum uint32, pocLSB uint16) []byte {
	var w bitstream.Writer
	w.WriteUE(0) // first_mb_in_slice
	w.WriteUE(5) // slice_type P
	w.WriteUE(0) // pps_id
	w.WriteBits(frameNum, 8)
	w.WriteBits(uint32(pocLSB), 8)
	return w.Bytes()
}

func avcParamsAU(widthMbs, mapUnits, cropBottom uint32) []byte {
	var au []byte
	au = append(au, nalBytesAVC(3, avc.NALSPS, avcSPSRBSP(widthMbs, mapUnits, cropBottom))...)
	au = append(au, nalBytesAVC(3, avc.NALPPS, avcPPSRBSP())...)
	return au
}

func avcIDRAU() []byte {
	return nalBytesAVC(3, avc.NALIDRSlice, avcIDRSliceRBSP())
}

func newTestManagerAVC(t *testing.T) (*Manager, *fakeDevice) {
	t.Helper()
	dev := newFakeDevice()
	return NewManager(dev, domain.CodecH264, time.Second), dev
}

func TestManagerH264SessionAndDecode(t *testing.T) {
	m, dev := newTestManagerAVC(t)

	frame, err := m.DecodeAccessUnit(avcParamsAU(120, 68, 4))
	require.NoError(t, err)
	assert.Nil(t, frame)
	assert.Equal(t, StateAwaitingParameters, m.State())

	sess := lastSession(t, dev)
	assert.Equal(t, CodecIDH264, sess.cfg.Codec)
	assert.Equal(t, uint32(1920), sess.cfg.Width)
	assert.Equal(t, uint32(1080), sess.cfg.Height)

	frame, err = m.DecodeAccessUnit(avcIDRAU())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 1920, frame.Width)
	assert.Equal(t, 1080, frame.Height)
	assert.Equal(t, StateReady, m.State())

	frame, err = m.DecodeAccessUnit(nalBytesAVC(2, avc.NALNonIDRSlice, avcPSliceRBSP(1, 2)))
	require.NoError(t, err)
	require.NotNil(t, frame)

	require.Len(t, sess.submissions, 2)
	idr := sess.submissions[0]
	assert.True(t, idr.IDR)
	assert.True(t, idr.Reference)
	assert.Equal(t, int32(0), idr.POC)

	p := sess.submissions[1]
	assert.False(t, p.IDR)
	assert.True(t, p.Reference)
	assert.Equal(t, uint32(1), p.FrameNum)
	assert.Equal(t, int32(2), p.POC)
	require.Len(t, p.References, 1)

	assert.Equal(t, uint64(2), m.FramesDecoded())
}

func TestManagerH264DecodesSelfContainedAccessUnit(t *testing.T) {
	m, _ := newTestManagerAVC(t)

	// SPS, PPS and the IDR slice arrive in one access unit, as they do
	// at stream start.
	au := append(avcParamsAU(120, 68, 4), avcIDRAU()...)
	frame, err := m.DecodeAccessUnit(au)
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 1920, frame.Width)
	assert.Equal(t, StateReady, m.State())
	assert.Equal(t, uint64(1), m.FramesDecoded())
}

func TestManagerH264SkipsSliceWithoutParameterSets(t *testing.T) {
	m, dev := newTestManagerAVC(t)

	frame, err := m.DecodeAccessUnit(avcIDRAU())
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrFrameSkipped)
	assert.Empty(t, dev.sessions)
	assert.NotEqual(t, StateFaulted, m.State())
}

func TestManagerH264NonReferenceSlice(t *testing.T) {
	m, dev := newTestManagerAVC(t)
	_, err := m.DecodeAccessUnit(avcParamsAU(120, 68, 4))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(avcIDRAU())
	require.NoError(t, err)

	frame, err := m.DecodeAccessUnit(nalBytesAVC(0, avc.NALNonIDRSlice, avcPSliceRBSP(1, 2)))
	require.NoError(t, err)
	require.NotNil(t, frame)

	sess := lastSession(t, dev)
	assert.False(t, sess.submissions[1].Reference)
	assert.Equal(t, 1, m.dpb.activeCount())
}

func TestManagerH264ResolutionChange(t *testing.T) {
	m, dev := newTestManagerAVC(t)
	_, err := m.DecodeAccessUnit(avcParamsAU(80, 45, 0))
	require.NoError(t, err)
	_, err = m.DecodeAccessUnit(avcIDRAU())
	require.NoError(t, err)
	first := lastSession(t, dev)
	assert.Equal(t, uint32(1280), first.cfg.Width)

	_, err = m.DecodeAccessUnit(avcParamsAU(120, 68, 4))
	assert.ErrorIs(t, err, ErrResolutionChanged)

	require.NoError(t, m.Reconfigure())
	assert.True(t, first.destroyed)
	second := lastSession(t, dev)
	assert.Equal(t, uint32(1920), second.cfg.Width)
	assert.Equal(t, CodecIDH264, second.cfg.Codec)

	frame, err := m.DecodeAccessUnit(avcIDRAU())
	require.NoError(t, err)
	require.NotNil(t, frame)
	assert.Equal(t, 1920, frame.Width)
}

func TestManagerCapacityGateCountsPadding(t *testing.T) {
	m, dev := newTestManager(t)
	dev.capacity = 300 // not a multiple of the 256-byte alignment
	_, err := m.DecodeAccessUnit(paramsAU(1920, 1080, 8))
	require.NoError(t, err)

	// The raw unit fits the buffer, but padding it to the alignment
	// would not.
	au := idrAU()
	for len(au) < 290 {
		au = append(au, 0xFF)
	}
	frame, err := m.DecodeAccessUnit(au)
	assert.Nil(t, frame)
	assert.ErrorIs(t, err, ErrFrameSkipped)
	assert.Empty(t, lastSession(t, dev).submissions)
}
