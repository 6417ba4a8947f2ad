package bitstream

// NALUnit is one Network Abstraction Layer unit extracted from an
// Annex-B byte stream. Payload is a fresh copy owned by the caller and
// includes the NAL header byte(s) but not the start code.
type NALUnit struct {
	// Type is the codec-specific NAL unit type (6-bit for HEVC,
	// 5-bit for H.264).
	Type uint8
	// LayerID and TemporalID come from the 2-byte HEVC NAL header.
	// For H.264 units LayerID carries nal_ref_idc and TemporalID is
	// zero.
	LayerID    uint8
	TemporalID uint8
	Payload    []byte
	// ByteOffset is the offset of the unit's start code in the
	// scanned buffer.
	ByteOffset int
}

// FindNALUnits scans an Annex-B byte stream for 3-byte (00 00 01) and
// 4-byte (00 00 00 01) start codes and returns the HEVC NAL units
// between them. Units shorter than the 2-byte HEVC header are
// discarded. Each call re-scans from the beginning; the scanner keeps
// no state.
func FindNALUnits(data []byte) []NALUnit {
	return scan(data, 2, func(p []byte) (uint8, uint8, uint8) {
		// forbidden(1) | nal_unit_type(6) | nuh_layer_id(6) | nuh_temporal_id_plus1(3)
		typ := (p[0] >> 1) & 0x3F
		layer := (p[0]&1)<<5 | p[1]>>3
		temporal := p[1] & 0x07
		if temporal > 0 {
			temporal--
		}
		return typ, layer, temporal
	})
}

// FindNALUnitsAVC is the H.264 variant of FindNALUnits: a 1-byte NAL
// header with a 5-bit type. nal_ref_idc rides in LayerID so callers
// can tell reference pictures apart.
func FindNALUnitsAVC(data []byte) []NALUnit {
	return scan(data, 1, func(p []byte) (uint8, uint8, uint8) {
		return p[0] & 0x1F, (p[0] >> 5) & 0x3, 0
	})
}

func scan(data []byte, minLen int, header func([]byte) (uint8, uint8, uint8)) []NALUnit {
	var units []NALUnit
	i := 0
	for i < len(data) {
		if i+3 > len(data) || data[i] != 0 || data[i+1] != 0 {
			i++
			continue
		}

		var nalStart int
		if data[i+2] == 1 {
			nalStart = i + 3
		} else if i+4 <= len(data) && data[i+2] == 0 && data[i+3] == 1 {
			nalStart = i + 4
		} else {
			i++
			continue
		}

		nalEnd := nextStartCode(data, nalStart)

		if nalEnd-nalStart >= minLen {
			payload := make([]byte, nalEnd-nalStart)
			copy(payload, data[nalStart:nalEnd])

			typ, layer, temporal := header(payload)
			units = append(units, NALUnit{
				Type:       typ,
				LayerID:    layer,
				TemporalID: temporal,
				Payload:    payload,
				ByteOffset: i,
			})
		}

		i = nalEnd
	}
	return units
}

func nextStartCode(data []byte, from int) int {
	for j := from; j+2 < len(data); j++ {
		if data[j] == 0 && data[j+1] == 0 &&
			(data[j+2] == 1 || (j+3 < len(data) && data[j+2] == 0 && data[j+3] == 1)) {
			return j
		}
	}
	return len(data)
}

// RemoveEmulationPrevention rewrites every 00 00 03 triple to 00 00,
// dropping the anti-emulation byte, and returns the RBSP. Data free of
// such triples passes through unchanged.
func RemoveEmulationPrevention(data []byte) []byte {
	out := make([]byte, 0, len(data))
	for i := 0; i < len(data); {
		if i+2 < len(data) && data[i] == 0 && data[i+1] == 0 && data[i+2] == 3 {
			out = append(out, 0, 0)
			i += 3
		} else {
			out = append(out, data[i])
			i++
		}
	}
	return out
}
