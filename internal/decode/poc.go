package decode

// pocCounter derives picture order counts from slice-header LSB values
// using the ITU-T H.264 §8.2.1 MSB wrap rules, applied to HEVC as
// well.
type pocCounter struct {
	prevMsb int32
	prevLsb int32
}

// reset zeroes the counter state. Called on IDR; the IDR picture
// itself has POC 0.
func (p *pocCounter) reset() {
	p.prevMsb = 0
	p.prevLsb = 0
}

// derive computes the POC for a picture with the given LSB and
// updates the previous-picture state. Called for every picture,
// reference or not.
func (p *pocCounter) derive(lsb uint16, log2MaxLSB uint8) int32 {
	maxLsb := int32(1) << log2MaxLSB
	cur := int32(lsb)

	var msb int32
	switch {
	case cur < p.prevLsb && p.prevLsb-cur >= maxLsb/2:
		msb = p.prevMsb + maxLsb
	case cur > p.prevLsb && cur-p.prevLsb > maxLsb/2:
		msb = p.prevMsb - maxLsb
	default:
		msb = p.prevMsb
	}

	p.prevMsb = msb
	p.prevLsb = cur
	return msb + cur
}
