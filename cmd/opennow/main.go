package main

import (
	"context"
	"fmt"
	"log"
	"os"
	ossignal "os/signal"
	"syscall"

	"opennow/client/internal/api"
	"opennow/client/internal/config"
	"opennow/client/internal/decode"
	"opennow/client/internal/decode/vkbridge"
	"opennow/client/internal/session"
	sigclient "opennow/client/internal/signal"
	"opennow/client/internal/webrtc"
)

const helpText = `opennow - Stream and decode cloud-gaming video via WebRTC

Usage:
  opennow [options]

Decoded frames are written to stdout as packed NV12 (or P010 for HDR
streams). Pipe to ffplay for playback.

Environment Variables:
  OPENNOW_TOKEN              Authentication token (required)
  OPENNOW_SERVER             Service API host (required)
  OPENNOW_CODEC              h264 or h265 (default h265)
  OPENNOW_DECODE_TIMEOUT_MS  Decode fence deadline (default 2000)
  OPENNOW_VKDEC_LIB          Override path to the decode bridge library

Examples:
  # 1080p SDR playback
  opennow | ffplay -f rawvideo -pixel_format nv12 -video_size 1920x1080 -

Options:
  -h, --help  Show this help message
`

func main() {
	if len(os.Args) > 1 && (os.Args[1] == "-h" || os.Args[1] == "--help") {
		fmt.Print(helpText)
		os.Exit(0)
	}

	log.SetOutput(os.Stderr)
	log.SetFlags(log.Ltime | log.Lmicroseconds)

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("[main] %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	ossignal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		log.Printf("[main] received %s, shutting down", sig)
		cancel()
	}()

	// Probe the hardware before touching the network: no point
	// negotiating a stream this machine cannot decode.
	lib, err := vkbridge.Load("")
	if err != nil {
		log.Fatalf("[main] load decode bridge: %v", err)
	}
	dev, err := lib.NewDevice()
	if err != nil {
		log.Fatalf("[main] open decode device: %v", err)
	}
	caps := dev.Capabilities()
	log.Printf("[main] decode device: %s (max %dx%d, 10-bit=%v)",
		caps.DriverName, caps.MaxWidth, caps.MaxHeight, caps.Supports10Bit)

	apiClient := api.NewClient()
	log.Printf("[main] requesting session from %s", cfg.Server)
	stream, err := apiClient.FetchSession(cfg.Token, cfg.Server)
	if err != nil {
		log.Fatalf("[main] fetch session: %v", err)
	}
	log.Printf("[main] session obtained: id=%s signal=%s media=%s",
		stream.SessionID, stream.SignalServer, stream.ServerIP)

	peer, err := webrtc.NewPeer(stream.ICEServers)
	if err != nil {
		log.Fatalf("[main] create peer: %v", err)
	}

	mgr := decode.NewManager(dev, cfg.Codec, cfg.DecodeTimeout)
	sink := session.NewRawSink(os.Stdout)

	coord := session.New(peer, mgr, sink, stream, cfg.Codec, cancel)

	sc := sigclient.NewClient(stream, cfg.Token, coord)
	coord.SetSignaler(sc)

	peer.SetOnICECandidate(func(sdpMid string, sdpMLineIndex int, candidate string) {
		sc.SendICECandidate(sdpMid, sdpMLineIndex, candidate)
	})

	if err := sc.Connect(); err != nil {
		log.Fatalf("[main] signal connect: %v", err)
	}

	if err := coord.Run(ctx); err != nil && ctx.Err() == nil {
		log.Printf("[main] session error: %v", err)
	}

	log.Printf("[main] shutting down")

	peer.Close()
	sc.Close()
	mgr.Close()
	dev.Close()
	lib.Close()

	log.Printf("[main] done")
}
