// Package session glues signaling, the peer connection, and the
// decoder together. It owns the single goroutine that feeds access
// units to the decode session.
package session

import (
	"context"
	"errors"
	"log"

	"golang.org/x/sync/errgroup"

	"opennow/client/internal/decode"
	"opennow/client/internal/domain"
	"opennow/client/internal/sdp"
)

// pliSkipStreak is how many consecutive skipped frames trigger a
// keyframe request. One skipped frame corrupts every frame that
// references it, so waiting longer only prolongs the artifacts.
const pliSkipStreak = 3

// decoder is the slice of decode.Manager the coordinator drives.
type decoder interface {
	DecodeAccessUnit(au []byte) (*domain.DecodedFrame, error)
	Reconfigure() error
}

// Coordinator implements domain.Handler and runs the decode loop.
type Coordinator struct {
	peer   domain.Peer
	signal domain.Signaler
	dec    decoder
	sink   domain.FrameSink
	stream *domain.StreamSession
	codec  domain.Codec
	cancel context.CancelFunc
}

// New creates a Coordinator. Call SetSignaler before connecting: the
// signaler needs the handler and the handler needs the signaler.
func New(peer domain.Peer, dec decoder, sink domain.FrameSink, stream *domain.StreamSession, codec domain.Codec, cancel context.CancelFunc) *Coordinator {
	return &Coordinator{
		peer:   peer,
		dec:    dec,
		sink:   sink,
		stream: stream,
		codec:  codec,
		cancel: cancel,
	}
}

// SetSignaler injects the signaler after construction.
func (c *Coordinator) SetSignaler(s domain.Signaler) {
	c.signal = s
}

func (c *Coordinator) OnSessionReady() {
	log.Printf("[session] authenticated, waiting for server offer")
}

// OnSDPOffer patches the server's offer, answers it, and sends the
// answer back. The server's SDP needs three repairs before pion will
// accept it; the answer needs one more when the server is ice-lite.
func (c *Coordinator) OnSDPOffer(payload domain.SDPPayload) {
	offer := sdp.FixServerIP(payload.SDP, c.stream.ServerIP)
	offer = sdp.PreferCodec(offer, c.codec)
	offer = sdp.InjectProvisionalSSRCs(offer)

	if name, ok := sdp.ExtractVideoCodec(offer); ok {
		log.Printf("[session] negotiated video codec: %s", name)
	}

	answer, err := c.peer.AcceptOffer(offer)
	if err != nil {
		log.Printf("[session] accept offer: %v", err)
		c.cancel()
		return
	}

	if sdp.IsIceLite(payload.SDP) {
		answer = sdp.FixDTLSSetupForIceLite(answer)
	}

	if err := c.peer.SetLocalAnswer(answer); err != nil {
		log.Printf("[session] set local answer: %v", err)
		c.cancel()
		return
	}
	c.signal.SendSDPAnswer(answer)
}

func (c *Coordinator) OnRemoteICECandidate(candidate domain.ICECandidatePayload) {
	go func() {
		if err := c.peer.AddRemoteICECandidate(candidate); err != nil {
			log.Printf("[session] add remote ICE candidate: %v", err)
		}
	}()
}

func (c *Coordinator) OnSessionEnd() {
	log.Printf("[session] server ended the session")
	c.cancel()
}

// Run blocks on the decode loop until the context is cancelled, the
// track ends, or the decoder faults.
func (c *Coordinator) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return c.decodeLoop(ctx)
	})
	return g.Wait()
}

func (c *Coordinator) decodeLoop(ctx context.Context) error {
	skipStreak := 0

	for {
		var au []byte
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case au, ok = <-c.peer.AccessUnits():
			if !ok {
				log.Printf("[session] video track ended")
				return nil
			}
		}

		frame, err := c.dec.DecodeAccessUnit(au)
		switch {
		case err == nil:
			// Parameter-only access units produce no frame.

		case errors.Is(err, decode.ErrResolutionChanged):
			log.Printf("[session] stream resolution changed, recreating decode session")
			if err := c.dec.Reconfigure(); err != nil {
				return err
			}
			c.requestKeyframe()
			continue

		case errors.Is(err, decode.ErrFrameSkipped):
			skipStreak++
			log.Printf("[session] frame skipped (%d in a row): %v", skipStreak, err)
			if skipStreak >= pliSkipStreak {
				c.requestKeyframe()
				skipStreak = 0
			}
			continue

		default:
			// Device loss and anything else unclassified ends the session.
			return err
		}

		if frame == nil {
			continue
		}
		skipStreak = 0
		if err := c.sink.WriteFrame(frame); err != nil {
			return err
		}
	}
}

func (c *Coordinator) requestKeyframe() {
	if err := c.peer.RequestKeyframe(); err != nil {
		log.Printf("[session] request keyframe: %v", err)
	}
}
