// Package hevc parses the HEVC bitstream structures needed to drive a
// hardware decode session: VPS/SPS/PPS parameter sets and the slice
// header prefix. Field order follows ITU-T H.265; structures whose
// values are not needed are skipped with their exact bit width so the
// cursor stays aligned for the fields that are.
package hevc

// NALType is the 6-bit nal_unit_type from the HEVC NAL header
// (ITU-T H.265 Table 7-1).
type NALType uint8

const (
	NALTrailN NALType = 0
	NALTrailR NALType = 1
	NALTSAN   NALType = 2
	NALTSAR   NALType = 3
	NALSTSAN  NALType = 4
	NALSTSAR  NALType = 5
	NALRADLN  NALType = 6
	NALRADLR  NALType = 7
	NALRASLN  NALType = 8
	NALRASLR  NALType = 9

	NALBLAWLP   NALType = 16
	NALBLAWRADL NALType = 17
	NALBLANLP   NALType = 18
	NALIDRWRADL NALType = 19
	NALIDRNLP   NALType = 20
	NALCRA      NALType = 21

	NALVPS       NALType = 32
	NALSPS       NALType = 33
	NALPPS       NALType = 34
	NALAUD       NALType = 35
	NALEOS       NALType = 36
	NALEOB       NALType = 37
	NALFD        NALType = 38
	NALPrefixSEI NALType = 39
	NALSuffixSEI NALType = 40
)

// IsVCL reports whether the type carries coded picture data.
func (t NALType) IsVCL() bool {
	return t <= 31
}

// IsIDR reports whether the type is an instantaneous decoder refresh
// picture.
func (t NALType) IsIDR() bool {
	return t == NALIDRWRADL || t == NALIDRNLP
}

// IsBLA reports whether the type is a broken link access picture.
func (t NALType) IsBLA() bool {
	return t == NALBLAWLP || t == NALBLAWRADL || t == NALBLANLP
}

// IsCRA reports whether the type is a clean random access picture.
func (t NALType) IsCRA() bool {
	return t == NALCRA
}

// IsRAP reports whether the type is a random access point (IDR, BLA
// or CRA).
func (t NALType) IsRAP() bool {
	return t.IsIDR() || t.IsBLA() || t.IsCRA()
}

// IsReference reports whether a picture of this type stays in the DPB
// as a reference. The sub-layer non-reference types (TRAIL_N, TSA_N,
// STSA_N, RADL_N, RASL_N) have even values below 16.
func (t NALType) IsReference() bool {
	return t.IsVCL() && (t >= 16 || t&1 == 1)
}

// Slice types carried in slice_type (ITU-T H.265 Table 7-7).
const (
	SliceB = 0
	SliceP = 1
	SliceI = 2
)
