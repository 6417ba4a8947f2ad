package hevc

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"opennow/client/internal/bitstream"
)

func storeWithParams(t *testing.T) *Store {
	t.Helper()
	store := NewStore()
	_, err := store.ParseVPS(buildVPS(0, 1, 1))
	require.NoError(t, err)
	_, err = store.ParseSPS(buildSPS(spsParams{
		id: 0, vpsID: 0, width: 1920, height: 1080, bitDepth: 8, log2MaxPOC: 8,
	}))
	require.NoError(t, err)
	_, err = store.ParsePPS(buildPPS(0, 0))
	require.NoError(t, err)
	return store
}

func buildTrailingSlice(ppsID uint8, sliceType uint8, pocLSB uint16) *bitstream.NALUnit {
	var w bitstream.Writer
	w.WriteFlag(true) // first_slice_segment_in_pic
	w.WriteUE(uint32(ppsID))
	w.WriteUE(uint32(sliceType))
	w.WriteBits(uint32(pocLSB), 8) // log2_max_poc_lsb = 8 in fixtures
	w.WriteFlag(false)             // short_term_ref_pic_set_sps_flag
	return nalUnit(NALTrailR, w.Bytes())
}

func buildIDRSlice(ppsID uint8, noOutput bool) *bitstream.NALUnit {
	var w bitstream.Writer
	w.WriteFlag(true) // first_slice_segment_in_pic
	w.WriteFlag(noOutput)
	w.WriteUE(uint32(ppsID))
	w.WriteUE(uint32(SliceI))
	return nalUnit(NALIDRWRADL, w.Bytes())
}

func TestParseSliceHeader_Trailing(t *testing.T) {
	store := storeWithParams(t)

	h, err := store.ParseSliceHeader(buildTrailingSlice(0, SliceP, 42))
	require.NoError(t, err)
	assert.True(t, h.FirstSliceInPic)
	assert.False(t, h.DependentSliceSegment)
	assert.Equal(t, uint8(0), h.PPSID)
	assert.Equal(t, uint8(SliceP), h.SliceType)
	assert.Equal(t, uint16(42), h.PicOrderCntLSB)
	assert.False(t, h.ShortTermRPSFromSPS)
	assert.True(t, h.PicOutput)
	assert.Equal(t, uint8(4), h.NumRefIdxL0Active)
}

func TestParseSliceHeader_IDRSkipsPOC(t *testing.T) {
	store := storeWithParams(t)

	h, err := store.ParseSliceHeader(buildIDRSlice(0, true))
	require.NoError(t, err)
	assert.True(t, h.FirstSliceInPic)
	assert.True(t, h.NoOutputOfPriorPics)
	assert.Equal(t, uint8(SliceI), h.SliceType)
	assert.Equal(t, uint16(0), h.PicOrderCntLSB)
}

func TestParseSliceHeader_SegmentAddress(t *testing.T) {
	store := storeWithParams(t)

	// 1920x1080 with 64x64 CTBs is 30x17 = 510 blocks, so the
	// address takes 9 bits.
	var w bitstream.Writer
	w.WriteFlag(false)     // not first slice
	w.WriteUE(0)           // pps_id
	w.WriteBits(300, 9)    // slice_segment_address
	w.WriteUE(uint32(SliceP))
	w.WriteBits(7, 8)      // pic_order_cnt_lsb
	w.WriteFlag(false)     // short_term_ref_pic_set_sps_flag
	nal := nalUnit(NALTrailR, w.Bytes())

	h, err := store.ParseSliceHeader(nal)
	require.NoError(t, err)
	assert.False(t, h.FirstSliceInPic)
	assert.Equal(t, uint32(300), h.SliceSegmentAddress)
	assert.Equal(t, uint16(7), h.PicOrderCntLSB)
}

func TestParseSliceHeader_Truncated(t *testing.T) {
	store := storeWithParams(t)

	var w bitstream.Writer
	w.WriteFlag(true)
	w.WriteUE(0)
	nal := nalUnit(NALTrailR, w.Bytes())

	// slice_type and POC are missing.
	_, err := store.ParseSliceHeader(nal)
	require.Error(t, err)
	assert.ErrorIs(t, err, bitstream.ErrEndOfData)
}

func TestAddressBits(t *testing.T) {
	assert.Equal(t, 9, addressBits(510))
	assert.Equal(t, 9, addressBits(512))
	assert.Equal(t, 1, addressBits(2))
	assert.Equal(t, 0, addressBits(1))
}
