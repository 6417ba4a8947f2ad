package webrtc

// H264Depacketizer extracts NAL units from RTP H264 payloads.
// It maintains instance state for FU-A fragment reassembly,
// preventing corruption when multiple streams are active.
type H264Depacketizer struct {
	fuaBuf    []byte
	fuaActive bool
	expectSeq uint16
}

// NewH264Depacketizer creates a new depacketizer with its own reassembly buffer.
func NewH264Depacketizer() *H264Depacketizer {
	return &H264Depacketizer{}
}

// Depacketize extracts NAL units from an RTP H264 payload.
// Handles single NAL, STAP-A, and FU-A packet types. seq is the RTP
// sequence number; a gap inside a FU-A chain discards the whole
// fragment rather than deliver a NAL with a hole in it.
func (d *H264Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	if len(payload) < 1 {
		return nil
	}

	naluType := payload[0] & 0x1f

	switch {
	case naluType >= 1 && naluType <= 23:
		return [][]byte{payload}

	case naluType == 24:
		return depacketizeSTAPA(payload)

	case naluType == 28:
		return d.depacketizeFUA(seq, payload)

	default:
		return nil
	}
}

func depacketizeSTAPA(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 1 // skip STAP-A header byte

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H264Depacketizer) depacketizeFUA(seq uint16, payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	fnri := payload[0] & 0xe0 // F + NRI bits from FU indicator
	fuHeader := payload[1]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	naluType := fuHeader & 0x1f

	if start {
		// Reconstruct NAL header: F+NRI from FU indicator + type from FU header
		d.fuaBuf = []byte{fnri | naluType}
		d.fuaBuf = append(d.fuaBuf, payload[2:]...)
		d.fuaActive = true
	} else {
		if !d.fuaActive || seq != d.expectSeq {
			// Lost a fragment; the chain is unrecoverable.
			d.fuaBuf = nil
			d.fuaActive = false
			return nil
		}
		d.fuaBuf = append(d.fuaBuf, payload[2:]...)
	}
	d.expectSeq = seq + 1

	if end {
		nalu := d.fuaBuf
		d.fuaBuf = nil
		d.fuaActive = false
		return [][]byte{nalu}
	}

	return nil
}

// H265 payload structures from RFC 7798. Aggregation packets carry
// type 48, fragmentation units type 49; anything below 48 is a plain
// NAL unit with its two-byte header intact.
const (
	h265TypeAP = 48
	h265TypeFU = 49
)

// H265Depacketizer extracts NAL units from RTP H265 payloads.
type H265Depacketizer struct {
	fuBuf     []byte
	fuActive  bool
	expectSeq uint16
}

// NewH265Depacketizer creates a new depacketizer with its own reassembly buffer.
func NewH265Depacketizer() *H265Depacketizer {
	return &H265Depacketizer{}
}

// Depacketize extracts NAL units from an RTP H265 payload.
func (d *H265Depacketizer) Depacketize(seq uint16, payload []byte) [][]byte {
	if len(payload) < 2 {
		return nil
	}

	naluType := (payload[0] >> 1) & 0x3f

	switch naluType {
	case h265TypeAP:
		return depacketizeAP(payload)
	case h265TypeFU:
		return d.depacketizeFU(seq, payload)
	default:
		if naluType < h265TypeAP {
			return [][]byte{payload}
		}
		return nil
	}
}

func depacketizeAP(payload []byte) [][]byte {
	var nalus [][]byte
	offset := 2 // skip the AP payload header

	for offset+2 <= len(payload) {
		size := int(payload[offset])<<8 | int(payload[offset+1])
		offset += 2
		if size == 0 || offset+size > len(payload) {
			break
		}
		nalus = append(nalus, payload[offset:offset+size])
		offset += size
	}
	return nalus
}

func (d *H265Depacketizer) depacketizeFU(seq uint16, payload []byte) [][]byte {
	if len(payload) < 3 {
		return nil
	}

	fuHeader := payload[2]
	start := fuHeader&0x80 != 0
	end := fuHeader&0x40 != 0
	fuType := fuHeader & 0x3f

	if start {
		// Rebuild the two-byte NAL header: forbidden bit and layer id
		// bits come from the FU payload header, the type from the FU
		// header.
		d.fuBuf = []byte{payload[0]&0x81 | fuType<<1, payload[1]}
		d.fuBuf = append(d.fuBuf, payload[3:]...)
		d.fuActive = true
	} else {
		if !d.fuActive || seq != d.expectSeq {
			d.fuBuf = nil
			d.fuActive = false
			return nil
		}
		d.fuBuf = append(d.fuBuf, payload[3:]...)
	}
	d.expectSeq = seq + 1

	if end {
		nalu := d.fuBuf
		d.fuBuf = nil
		d.fuActive = false
		return [][]byte{nalu}
	}

	return nil
}
