package signal

import (
	"encoding/base64"
	"encoding/json"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"opennow/client/internal/domain"

	"github.com/gorilla/websocket"
)

// message is the generic WebSocket message envelope.
type message struct {
	Method         string `json:"method"`
	Code           *int   `json:"code,omitempty"`
	Message        string `json:"message,omitempty"`
	AccessToken    string `json:"accessToken,omitempty"`
	SessionID      string `json:"sessionId,omitempty"`
	MessageType    string `json:"messageType,omitempty"`
	MessagePayload string `json:"messagePayload,omitempty"`
	Version        string `json:"version,omitempty"`
	Timestamp      int64  `json:"timestamp,omitempty"`
	Reason         int    `json:"reason,omitempty"`
}

// Client manages the WebSocket connection to the signaling server.
// The server drives the session: it sends the SDP offer and trickles
// its candidates; the client answers.
type Client struct {
	conn     *websocket.Conn
	session  *domain.StreamSession
	token    string
	handler  domain.Handler
	pingEach time.Duration

	mu     sync.Mutex
	closed chan struct{}
}

// NewClient creates a new signaling client.
func NewClient(session *domain.StreamSession, token string, handler domain.Handler) *Client {
	pingEach := time.Duration(session.PingInterval) * time.Second
	if pingEach <= 0 {
		pingEach = 15 * time.Second
	}
	return &Client{
		session:  session,
		token:    token,
		handler:  handler,
		pingEach: pingEach,
		closed:   make(chan struct{}),
	}
}

// Connect dials the signaling WebSocket and starts the read loop.
func (c *Client) Connect() error {
	u, err := url.Parse(c.session.SignalServer)
	if err != nil {
		return fmt.Errorf("parse signal server: %w", err)
	}

	log.Printf("[signal] connecting to %s", u.String())

	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}
	c.conn = conn

	c.sendAuth()

	go c.readLoop()
	go c.pingLoop()

	return nil
}

// Close shuts down the WebSocket connection.
func (c *Client) Close() {
	select {
	case <-c.closed:
		return
	default:
		close(c.closed)
	}
	if c.conn != nil {
		c.conn.Close()
	}
}

func (c *Client) sendJSON(msg any) {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := json.Marshal(msg)
	if err != nil {
		log.Printf("[signal] marshal error: %v", err)
		return
	}
	log.Printf("[signal] >>> %s", string(data))
	if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
		log.Printf("[signal] write error: %v", err)
	}
}

func (c *Client) sendAuth() {
	c.sendJSON(message{
		Method:      "AUTH",
		AccessToken: c.token,
		SessionID:   c.session.SessionID,
		Version:     "0.1.0",
		Timestamp:   time.Now().UnixMilli(),
	})
}

// SendSDPAnswer sends the local SDP answer via TRANSMIT.
func (c *Client) SendSDPAnswer(sdp string) {
	payload := domain.SDPPayload{Type: "answer", SDP: sdp}
	payloadJSON, _ := json.Marshal(payload)
	encoded := base64.StdEncoding.EncodeToString(payloadJSON)

	c.sendJSON(message{
		Method:         "TRANSMIT",
		MessageType:    "SDP_ANSWER",
		MessagePayload: encoded,
		SessionID:      c.session.SessionID,
		Version:        "0.1.0",
	})
}

// SendICECandidate sends a local ICE candidate via TRANSMIT.
func (c *Client) SendICECandidate(sdpMid string, sdpMLineIndex int, candidate string) {
	payload := domain.ICECandidatePayload{
		SDPMid:        sdpMid,
		SDPMLineIndex: sdpMLineIndex,
		Candidate:     candidate,
	}
	payloadJSON, _ := json.Marshal(payload)
	encoded := base64.StdEncoding.EncodeToString(payloadJSON)

	c.sendJSON(message{
		Method:         "TRANSMIT",
		MessageType:    "ICE_CANDIDATE",
		MessagePayload: encoded,
		SessionID:      c.session.SessionID,
		Version:        "0.1.0",
	})
}

func (c *Client) readLoop() {
	defer c.Close()

	for {
		select {
		case <-c.closed:
			return
		default:
		}

		_, data, err := c.conn.ReadMessage()
		if err != nil {
			select {
			case <-c.closed:
				return
			default:
				log.Printf("[signal] read error: %v", err)
				c.handler.OnSessionEnd()
				return
			}
		}

		log.Printf("[signal] <<< %s", string(data))

		var msg message
		if err := json.Unmarshal(data, &msg); err != nil {
			log.Printf("[signal] unmarshal error: %v", err)
			continue
		}

		c.dispatch(msg)
	}
}

func (c *Client) dispatch(msg message) {
	switch msg.Method {
	case "AUTH_RESPONSE":
		if msg.Code != nil && *msg.Code == 0 {
			log.Printf("[signal] auth successful")
			c.handler.OnSessionReady()
		} else {
			code := -1
			if msg.Code != nil {
				code = *msg.Code
			}
			log.Printf("[signal] auth failed: code=%d msg=%s", code, msg.Message)
		}

	case "TRANSMIT":
		switch msg.MessageType {
		case "SDP_OFFER":
			decoded, err := base64.StdEncoding.DecodeString(msg.MessagePayload)
			if err != nil {
				log.Printf("[signal] decode SDP_OFFER: %v", err)
				return
			}
			var sdp domain.SDPPayload
			if err := json.Unmarshal(decoded, &sdp); err != nil {
				log.Printf("[signal] unmarshal SDP_OFFER: %v", err)
				return
			}
			log.Printf("[signal] received SDP offer")
			c.handler.OnSDPOffer(sdp)

		case "ICE_CANDIDATE":
			decoded, err := base64.StdEncoding.DecodeString(msg.MessagePayload)
			if err != nil {
				log.Printf("[signal] decode ICE_CANDIDATE: %v", err)
				return
			}
			var candidate domain.ICECandidatePayload
			if err := json.Unmarshal(decoded, &candidate); err != nil {
				log.Printf("[signal] unmarshal ICE_CANDIDATE: %v", err)
				return
			}
			log.Printf("[signal] received remote ICE candidate")
			c.handler.OnRemoteICECandidate(candidate)
		}

	case "SESSION_END":
		log.Printf("[signal] session ended by server (reason=%d)", msg.Reason)
		c.handler.OnSessionEnd()

	case "TRANSMIT_RESPONSE", "RESPONSE":
		// no-op

	default:
		log.Printf("[signal] unhandled method: %s", msg.Method)
	}
}

func (c *Client) pingLoop() {
	ticker := time.NewTicker(c.pingEach)
	defer ticker.Stop()

	for {
		select {
		case <-c.closed:
			return
		case <-ticker.C:
			c.mu.Lock()
			err := c.conn.WriteControl(
				websocket.PingMessage,
				[]byte{},
				time.Now().Add(5*time.Second),
			)
			c.mu.Unlock()
			if err != nil {
				select {
				case <-c.closed:
					return
				default:
					log.Printf("[signal] ping error: %v", err)
					return
				}
			}
		}
	}
}
