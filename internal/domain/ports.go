package domain

// SessionFetcher requests a streaming session from the service API.
type SessionFetcher interface {
	FetchSession(token, serverAddr string) (*StreamSession, error)
}

// Signaler manages the WebSocket signaling connection.
type Signaler interface {
	Connect() error
	SendSDPAnswer(sdp string)
	SendICECandidate(sdpMid string, sdpMLineIndex int, candidate string)
	Close()
}

// Handler receives signaling events.
type Handler interface {
	OnSessionReady()
	OnSDPOffer(sdp SDPPayload)
	OnRemoteICECandidate(candidate ICECandidatePayload)
	OnSessionEnd()
}

// Peer manages the WebRTC peer connection toward the media server.
type Peer interface {
	// AcceptOffer applies the (already patched) remote offer and
	// returns the local SDP answer, not yet applied.
	AcceptOffer(offerSDP string) (string, error)
	// SetLocalAnswer applies the (possibly patched) answer locally.
	SetLocalAnswer(answerSDP string) error
	AddRemoteICECandidate(candidate ICECandidatePayload) error
	SetOnICECandidate(send func(sdpMid string, sdpMLineIndex int, candidate string))
	// AccessUnits delivers Annex-B access units in arrival order.
	AccessUnits() <-chan []byte
	// RequestKeyframe asks the sender for a fresh IDR via RTCP PLI.
	RequestKeyframe() error
	Close()
}

// FrameSink receives decoded frames from the decode loop. The
// presentation pipeline (color conversion, display) sits behind it.
type FrameSink interface {
	WriteFrame(frame *DecodedFrame) error
}
