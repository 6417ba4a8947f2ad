// Package sdp rewrites session descriptions before they reach the
// transport layer. The remote peer is fixed but non-conformant, so the
// transforms are deliberately textual: parse/serialize round-trips
// through a document model would not keep unknown lines byte-stable.
// All functions are pure and safe to call from any thread.
package sdp

import (
	"fmt"
	"log"
	"strconv"
	"strings"

	"opennow/client/internal/domain"
)

// cnameToken is the fixed CNAME the served client declares for
// provisional video sources.
const cnameToken = "odrerir"

// doc is an SDP split into lines with its original line ending
// convention retained.
type doc struct {
	lines    []string
	ending   string
	trailing bool
}

func parse(sdp string) doc {
	ending := "\n"
	if strings.Contains(sdp, "\r\n") {
		ending = "\r\n"
	}
	lines := strings.Split(sdp, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimSuffix(l, "\r")
	}
	trailing := false
	if n := len(lines); n > 0 && lines[n-1] == "" {
		lines = lines[:n-1]
		trailing = true
	}
	return doc{lines: lines, ending: ending, trailing: trailing}
}

func (d doc) String() string {
	s := strings.Join(d.lines, d.ending)
	if d.trailing {
		s += d.ending
	}
	return s
}

// FixServerIP replaces the placeholder connection address with the
// resolved server address. It must never synthesize ICE candidates:
// candidates belong to the remote offerer and arrive via trickle
// signaling.
func FixServerIP(sdp, serverIP string) string {
	fixed := strings.ReplaceAll(sdp, "c=IN IP4 0.0.0.0", "c=IN IP4 "+serverIP)
	log.Printf("[sdp] fixed connection IP to %s", serverIP)
	return fixed
}

// normalizeCodecName maps rtpmap spellings onto canonical names
// (HEVC and H265 are the same codec).
func normalizeCodecName(name string) string {
	upper := strings.ToUpper(name)
	if upper == "HEVC" {
		return "H265"
	}
	return upper
}

// PreferCodec keeps only the requested codec's payload types in the
// video media section: the m=video payload list is rewritten and
// rtpmap/fmtp/rtcp-fb lines for other payloads dropped. If the codec
// is absent the input is returned unchanged; absence is a signal to
// keep the original offer, not an error.
func PreferCodec(sdp string, codec domain.Codec) string {
	d := parse(sdp)

	// First pass: payload types per codec within the video section.
	preferred := map[string]bool{}
	inVideo := false
	for _, line := range d.lines {
		if strings.HasPrefix(line, "m=video") {
			inVideo = true
		} else if strings.HasPrefix(line, "m=") {
			inVideo = false
		}
		if !inVideo {
			continue
		}
		rest, ok := strings.CutPrefix(line, "a=rtpmap:")
		if !ok {
			continue
		}
		parts := strings.Fields(rest)
		if len(parts) < 2 {
			continue
		}
		name, _, _ := strings.Cut(parts[1], "/")
		if normalizeCodecName(name) == codec.String() {
			preferred[parts[0]] = true
		}
	}

	if len(preferred) == 0 {
		log.Printf("[sdp] codec %s not offered, keeping SDP unchanged", codec)
		return sdp
	}

	// Second pass: rewrite the media line and drop attribute lines of
	// unselected payloads.
	out := make([]string, 0, len(d.lines))
	inVideo = false
	for _, line := range d.lines {
		if strings.HasPrefix(line, "m=video") {
			inVideo = true
			if rewritten, ok := rewriteMediaLine(line, preferred); ok {
				out = append(out, rewritten)
				continue
			}
		} else if strings.HasPrefix(line, "m=") {
			inVideo = false
		}

		if inVideo && !keepAttribute(line, preferred) {
			continue
		}
		out = append(out, line)
	}

	d.lines = out
	log.Printf("[sdp] filtered video section to %s (%d payload types)", codec, len(preferred))
	return d.String()
}

// rewriteMediaLine trims an m=video line's payload list to the
// selected types. "m=video 9 UDP/TLS/RTP/SAVPF 96 98" keeps its first
// three fields.
func rewriteMediaLine(line string, preferred map[string]bool) (string, bool) {
	parts := strings.Fields(line)
	if len(parts) < 4 {
		return "", false
	}
	var kept []string
	for _, pt := range parts[3:] {
		if preferred[pt] {
			kept = append(kept, pt)
		}
	}
	if len(kept) == 0 {
		return "", false
	}
	return strings.Join(parts[:3], " ") + " " + strings.Join(kept, " "), true
}

// keepAttribute reports whether a video-section attribute line
// survives codec filtering.
func keepAttribute(line string, preferred map[string]bool) bool {
	for _, prefix := range []string{"a=rtpmap:", "a=fmtp:", "a=rtcp-fb:"} {
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			pt, _, _ := strings.Cut(rest, " ")
			return preferred[pt]
		}
	}
	return true
}

// ExtractVideoCodec returns the first rtpmap codec name in the video
// section.
func ExtractVideoCodec(sdp string) (string, bool) {
	inVideo := false
	for _, line := range parse(sdp).lines {
		if strings.HasPrefix(line, "m=video") {
			inVideo = true
			continue
		}
		if strings.HasPrefix(line, "m=") && inVideo {
			break
		}
		if !inVideo {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "a=rtpmap:"); ok {
			parts := strings.Fields(rest)
			if len(parts) >= 2 {
				name, _, _ := strings.Cut(parts[1], "/")
				return name, true
			}
		}
	}
	return "", false
}

// IsIceLite reports whether the offer declares a session-level
// ice-lite peer.
func IsIceLite(sdp string) bool {
	for _, line := range parse(sdp).lines {
		if strings.TrimSpace(line) == "a=ice-lite" {
			return true
		}
	}
	return false
}

// FixDTLSSetupForIceLite turns every setup:passive into setup:active.
// Against an ice-lite peer offering actpass, a passive answer leaves
// both sides waiting for the other to start the DTLS handshake.
func FixDTLSSetupForIceLite(answerSDP string) string {
	fixed := strings.ReplaceAll(answerSDP, "a=setup:passive", "a=setup:active")
	if fixed != answerSDP {
		log.Printf("[sdp] answer DTLS role changed passive -> active for ice-lite peer")
	}
	return fixed
}

// InjectProvisionalSSRCs declares SSRCs 2-4 in the video section. The
// server reuses sequential SSRCs across resolution changes, but the
// local transport drops packets whose SSRC the description does not
// declare. Idempotent: nothing is added when 2-4 are already present.
func InjectProvisionalSSRCs(sdp string) string {
	d := parse(sdp)

	inVideo := false
	videoStart := -1
	videoEnd := len(d.lines)
	lastSSRC := -1
	existing := map[uint32]bool{}
	streamID, trackID := cnameToken, "video"

	for i, line := range d.lines {
		if strings.HasPrefix(line, "m=video") {
			inVideo = true
			videoStart = i
			continue
		}
		if strings.HasPrefix(line, "m=") && inVideo {
			inVideo = false
			videoEnd = i
			continue
		}
		if !inVideo {
			continue
		}
		if rest, ok := strings.CutPrefix(line, "a=ssrc:"); ok {
			lastSSRC = i
			id, _, _ := strings.Cut(rest, " ")
			if v, err := strconv.ParseUint(id, 10, 32); err == nil {
				existing[uint32(v)] = true
			}
		}
		if rest, ok := strings.CutPrefix(line, "a=msid:"); ok {
			parts := strings.Fields(rest)
			if len(parts) >= 2 {
				streamID, trackID = parts[0], parts[1]
			}
		}
	}

	if videoStart < 0 {
		return sdp
	}

	var missing []uint32
	for ssrc := uint32(2); ssrc <= 4; ssrc++ {
		if !existing[ssrc] {
			missing = append(missing, ssrc)
		}
	}
	if len(missing) == 0 {
		return sdp
	}

	var inject []string
	for _, ssrc := range missing {
		inject = append(inject,
			fmt.Sprintf("a=ssrc:%d msid:%s %s", ssrc, streamID, trackID),
			fmt.Sprintf("a=ssrc:%d cname:%s", ssrc, cnameToken))
	}

	// After the last existing ssrc line, otherwise at the end of the
	// video section.
	at := videoEnd
	if lastSSRC >= 0 {
		at = lastSSRC + 1
	}
	out := make([]string, 0, len(d.lines)+len(inject))
	out = append(out, d.lines[:at]...)
	out = append(out, inject...)
	out = append(out, d.lines[at:]...)
	d.lines = out

	log.Printf("[sdp] injected provisional SSRCs %v into video section", missing)
	return d.String()
}
