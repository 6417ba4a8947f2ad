package webrtc

import (
	"errors"
	"fmt"
	"log"
	"sync"

	"opennow/client/internal/domain"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/nack"
	"github.com/pion/rtcp"
	"github.com/pion/rtp"
	pion "github.com/pion/webrtc/v4"
)

// accessUnitBacklog bounds the decode queue. The reader drops the
// freshest access unit when the decoder falls this far behind; the
// decoder requests a keyframe once it catches up.
const accessUnitBacklog = 32

// depacketizer turns RTP payloads back into NAL units.
type depacketizer interface {
	Depacketize(seq uint16, payload []byte) [][]byte
}

// rtpReader is the packet-pulling side of a pion.TrackRemote.
type rtpReader interface {
	ReadRTP() (*rtp.Packet, interceptor.Attributes, error)
}

// Peer wraps a Pion PeerConnection answering a server-initiated offer.
type Peer struct {
	pc            *pion.PeerConnection
	remoteDescSet chan struct{}
	accessUnits   chan []byte
	auClose       sync.Once
	descOnce      sync.Once

	mu        sync.Mutex
	videoSSRC uint32
	videoGen  int
}

// NewPeer creates a PeerConnection registering both video codecs the
// server may offer plus Opus audio. Codec selection happens in the SDP
// before it reaches the peer, not here.
func NewPeer(iceServers []domain.ICEServer) (*Peer, error) {
	m := &pion.MediaEngine{}

	videoFeedback := []pion.RTCPFeedback{
		{Type: "nack"},
		{Type: "nack", Parameter: "pli"},
	}

	h264Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:     pion.MimeTypeH264,
			ClockRate:    90000,
			SDPFmtpLine:  "level-asymmetry-allowed=1;packetization-mode=1;profile-level-id=42e01f",
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 96,
	}
	if err := m.RegisterCodec(h264Codec, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H264: %w", err)
	}

	h265Codec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:     pion.MimeTypeH265,
			ClockRate:    90000,
			RTCPFeedback: videoFeedback,
		},
		PayloadType: 98,
	}
	if err := m.RegisterCodec(h265Codec, pion.RTPCodecTypeVideo); err != nil {
		return nil, fmt.Errorf("register H265: %w", err)
	}

	opusCodec := pion.RTPCodecParameters{
		RTPCodecCapability: pion.RTPCodecCapability{
			MimeType:  pion.MimeTypeOpus,
			ClockRate: 48000,
			Channels:  2,
		},
		PayloadType: 111,
	}
	if err := m.RegisterCodec(opusCodec, pion.RTPCodecTypeAudio); err != nil {
		return nil, fmt.Errorf("register Opus: %w", err)
	}

	i := &interceptor.Registry{}
	generatorFactory, err := nack.NewGeneratorInterceptor()
	if err != nil {
		return nil, fmt.Errorf("create nack generator: %w", err)
	}
	i.Add(generatorFactory)

	api := pion.NewAPI(
		pion.WithMediaEngine(m),
		pion.WithInterceptorRegistry(i),
	)

	var servers []pion.ICEServer
	for _, s := range iceServers {
		servers = append(servers, pion.ICEServer{
			URLs:       []string{s.URL},
			Username:   s.Username,
			Credential: s.Credential,
		})
	}

	pc, err := api.NewPeerConnection(pion.Configuration{
		ICEServers:   servers,
		BundlePolicy: pion.BundlePolicyMaxBundle,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	p := &Peer{
		pc:            pc,
		remoteDescSet: make(chan struct{}),
		accessUnits:   make(chan []byte, accessUnitBacklog),
	}

	pc.OnICEConnectionStateChange(func(state pion.ICEConnectionState) {
		log.Printf("[webrtc] ICE connection state: %s", state.String())
	})
	pc.OnConnectionStateChange(func(state pion.PeerConnectionState) {
		log.Printf("[webrtc] peer connection state: %s", state.String())
	})
	pc.OnTrack(p.onTrack)

	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeVideo, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add video transceiver: %w", err)
	}
	if _, err := pc.AddTransceiverFromKind(pion.RTPCodecTypeAudio, pion.RTPTransceiverInit{
		Direction: pion.RTPTransceiverDirectionRecvonly,
	}); err != nil {
		pc.Close()
		return nil, fmt.Errorf("add audio transceiver: %w", err)
	}

	return p, nil
}

func (p *Peer) onTrack(track *pion.TrackRemote, receiver *pion.RTPReceiver) {
	codec := track.Codec()
	log.Printf("[webrtc] got track: kind=%s codec=%s pt=%d ssrc=%d",
		track.Kind(), codec.MimeType, codec.PayloadType, track.SSRC())

	if track.Kind() != pion.RTPCodecTypeVideo {
		go func() {
			buf := make([]byte, 1500)
			for {
				if _, _, err := track.Read(buf); err != nil {
					return
				}
			}
		}()
		return
	}

	// A renegotiated offer can fire OnTrack again for video. The newest
	// track takes over the access-unit channel; the previous reader
	// notices its generation is stale and exits.
	p.mu.Lock()
	p.videoSSRC = uint32(track.SSRC())
	p.videoGen++
	gen := p.videoGen
	p.mu.Unlock()

	var depack depacketizer
	if codec.MimeType == pion.MimeTypeH265 {
		depack = NewH265Depacketizer()
	} else {
		depack = NewH264Depacketizer()
	}
	go p.readVideoTrack(track, depack, gen)
}

// auAssembler collects depacketized NAL units into Annex-B access
// units. The RTP marker bit closes an access unit.
type auAssembler struct {
	depack depacketizer
	au     []byte
}

var annexBStartCode = []byte{0x00, 0x00, 0x00, 0x01}

// push feeds one RTP packet and returns a completed access unit, or
// nil while one is still accumulating.
func (a *auAssembler) push(pkt *rtp.Packet) []byte {
	for _, nalu := range a.depack.Depacketize(pkt.SequenceNumber, pkt.Payload) {
		if len(nalu) == 0 {
			continue
		}
		a.au = append(a.au, annexBStartCode...)
		a.au = append(a.au, nalu...)
	}

	if !pkt.Marker || len(a.au) == 0 {
		return nil
	}
	au := a.au
	a.au = nil
	return au
}

func (p *Peer) readVideoTrack(r rtpReader, depack depacketizer, gen int) {
	asm := &auAssembler{depack: depack}

	for {
		pkt, _, err := r.ReadRTP()
		if err != nil {
			if !p.currentVideoGen(gen) {
				return
			}
			log.Printf("[webrtc] video track read error: %v", err)
			p.auClose.Do(func() { close(p.accessUnits) })
			return
		}
		if !p.currentVideoGen(gen) {
			return
		}

		au := asm.push(pkt)
		if au == nil {
			continue
		}
		select {
		case p.accessUnits <- au:
		default:
			log.Printf("[webrtc] decode queue full, dropping access unit (%d bytes)", len(au))
		}
	}
}

func (p *Peer) currentVideoGen(gen int) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return gen == p.videoGen
}

// AccessUnits delivers Annex-B access units in arrival order. The
// channel closes when the video track ends.
func (p *Peer) AccessUnits() <-chan []byte {
	return p.accessUnits
}

// AcceptOffer applies the remote offer and returns the local answer.
// The answer is not applied yet: the caller may still patch it before
// SetLocalAnswer.
func (p *Peer) AcceptOffer(offerSDP string) (string, error) {
	offer := pion.SessionDescription{
		Type: pion.SDPTypeOffer,
		SDP:  offerSDP,
	}
	if err := p.pc.SetRemoteDescription(offer); err != nil {
		return "", fmt.Errorf("set remote description: %w", err)
	}
	// Renegotiation calls AcceptOffer again; the gate only opens once.
	p.descOnce.Do(func() { close(p.remoteDescSet) })

	answer, err := p.pc.CreateAnswer(nil)
	if err != nil {
		return "", fmt.Errorf("create answer: %w", err)
	}

	log.Printf("[webrtc] remote SDP offer accepted")
	return answer.SDP, nil
}

// SetLocalAnswer applies the answer locally and starts ICE gathering.
func (p *Peer) SetLocalAnswer(answerSDP string) error {
	answer := pion.SessionDescription{
		Type: pion.SDPTypeAnswer,
		SDP:  answerSDP,
	}
	if err := p.pc.SetLocalDescription(answer); err != nil {
		return fmt.Errorf("set local description: %w", err)
	}

	log.Printf("[webrtc] local SDP answer set")
	return nil
}

// AddRemoteICECandidate waits for the remote description to be set, then adds the candidate.
func (p *Peer) AddRemoteICECandidate(candidate domain.ICECandidatePayload) error {
	<-p.remoteDescSet

	sdpMLineIndex := uint16(candidate.SDPMLineIndex)
	init := pion.ICECandidateInit{
		Candidate:     candidate.Candidate,
		SDPMid:        &candidate.SDPMid,
		SDPMLineIndex: &sdpMLineIndex,
	}

	if err := p.pc.AddICECandidate(init); err != nil {
		return fmt.Errorf("add ice candidate: %w", err)
	}

	log.Printf("[webrtc] added remote ICE candidate")
	return nil
}

// SetOnICECandidate registers the callback for locally discovered ICE candidates.
func (p *Peer) SetOnICECandidate(send func(sdpMid string, sdpMLineIndex int, candidate string)) {
	p.pc.OnICECandidate(func(c *pion.ICECandidate) {
		if c == nil {
			log.Printf("[webrtc] ICE gathering complete")
			return
		}

		j := c.ToJSON()
		sdpMid := ""
		if j.SDPMid != nil {
			sdpMid = *j.SDPMid
		}
		sdpMLineIndex := 0
		if j.SDPMLineIndex != nil {
			sdpMLineIndex = int(*j.SDPMLineIndex)
		}

		log.Printf("[webrtc] local ICE candidate: %s", j.Candidate)
		send(sdpMid, sdpMLineIndex, j.Candidate)
	})
}

// RequestKeyframe sends a Picture Loss Indication for the video track.
func (p *Peer) RequestKeyframe() error {
	p.mu.Lock()
	ssrc := p.videoSSRC
	p.mu.Unlock()

	if ssrc == 0 {
		return errors.New("request keyframe: no video track yet")
	}

	pli := &rtcp.PictureLossIndication{MediaSSRC: ssrc}
	if err := p.pc.WriteRTCP([]rtcp.Packet{pli}); err != nil {
		return fmt.Errorf("send PLI: %w", err)
	}

	log.Printf("[webrtc] requested keyframe (PLI ssrc=%d)", ssrc)
	return nil
}

// Close shuts down the PeerConnection.
func (p *Peer) Close() {
	if p.pc != nil {
		p.pc.Close()
	}
}
