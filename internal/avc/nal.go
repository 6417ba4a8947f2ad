package avc

// NALType is the 5-bit H.264 NAL unit type.
type NALType uint8

const (
	NALNonIDRSlice NALType = 1
	NALPartitionA  NALType = 2
	NALPartitionB  NALType = 3
	NALPartitionC  NALType = 4
	NALIDRSlice    NALType = 5
	NALSEI         NALType = 6
	NALSPS         NALType = 7
	NALPPS         NALType = 8
	NALAUD         NALType = 9
)

// IsVCL reports whether the type carries coded slice data.
func (t NALType) IsVCL() bool {
	return t >= NALNonIDRSlice && t <= NALIDRSlice
}

// IsIDR reports whether the type is an instantaneous decoder refresh
// slice.
func (t NALType) IsIDR() bool {
	return t == NALIDRSlice
}
