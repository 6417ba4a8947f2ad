package domain

// StreamSession holds the streaming session credentials and transport
// endpoints returned by the session API.
type StreamSession struct {
	SessionID    string      `json:"sessionId"`
	SignalServer string      `json:"signalServer"`
	// ServerIP is the resolved media server address substituted into
	// the SDP offer's placeholder connection line.
	ServerIP   string      `json:"serverIp"`
	ICEServers []ICEServer `json:"iceServers"`
	// PingInterval is the signaling keepalive period in seconds.
	PingInterval int `json:"pingInterval"`
}

// ICEServer holds STUN/TURN server configuration.
type ICEServer struct {
	URL        string `json:"url"`
	Username   string `json:"username"`
	Credential string `json:"credential"`
}
