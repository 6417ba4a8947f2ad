package decode

import (
	"errors"
	"fmt"
	"log"
	"time"

	"opennow/client/internal/avc"
	"opennow/client/internal/bitstream"
	"opennow/client/internal/domain"
	"opennow/client/internal/hevc"
)

// State is the decode session lifecycle.
type State int

const (
	StateUninitialized State = iota
	StateSessionCreated
	StateAwaitingParameters
	StateReady
	StateDecoding
	StateFaulted
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateSessionCreated:
		return "session-created"
	case StateAwaitingParameters:
		return "awaiting-parameters"
	case StateReady:
		return "ready"
	case StateDecoding:
		return "decoding"
	case StateFaulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// Manager owns one hardware decode session and its reference state.
// One goroutine owns a Manager; decode order is arrival order, and
// DPB/POC bookkeeping depends on it.
type Manager struct {
	dev     Device
	caps    Capabilities
	codec   domain.Codec
	timeout time.Duration

	store    *hevc.Store
	avcStore *avc.Store
	sess     Session
	cfg      SessionConfig
	state    State

	dpb         dpb
	poc         pocCounter
	paramsDirty bool
	activeSPS   uint8
	frameNum    uint32
	lastSlot    int

	framesDecoded uint64
	framesSkipped uint64
}

// NewManager wires a probed device to fresh parameter stores. The
// session itself is created lazily once the first SPS reveals the
// stream's dimensions. fenceTimeout bounds every hardware fence wait.
func NewManager(dev Device, codec domain.Codec, fenceTimeout time.Duration) *Manager {
	return &Manager{
		dev:      dev,
		caps:     dev.Capabilities(),
		codec:    codec,
		timeout:  fenceTimeout,
		store:    hevc.NewStore(),
		avcStore: avc.NewStore(),
		state:    StateUninitialized,
		lastSlot: -1,
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	return m.state
}

// FramesDecoded returns the number of frames delivered so far.
func (m *Manager) FramesDecoded() uint64 {
	return m.framesDecoded
}

// Store exposes the parameter set store for callers that share it with
// the manager's goroutine.
func (m *Manager) Store() *hevc.Store {
	return m.store
}

// picture is what submit needs to know about a coded picture, parsed
// out by the codec-specific scan.
type picture struct {
	idr       bool
	reference bool
	hdr       bool
	frameNum  uint32
	poc       int32
	width     uint32
	height    uint32
	spsRaw    []byte
	ppsRaw    []byte
}

// DecodeAccessUnit runs one synchronous decode round-trip for an
// Annex-B access unit. A nil frame with nil error means the unit
// carried no coded picture (parameter sets only). Recoverable drops
// wrap ErrFrameSkipped; ErrResolutionChanged requires Reconfigure;
// ErrDeviceLost is fatal for this manager.
func (m *Manager) DecodeAccessUnit(au []byte) (*domain.DecodedFrame, error) {
	if m.state == StateFaulted {
		return nil, ErrDeviceLost
	}
	if m.codec == domain.CodecH264 {
		return m.decodeAVC(au)
	}
	return m.decodeHEVC(au)
}

func (m *Manager) decodeHEVC(au []byte) (*domain.DecodedFrame, error) {
	nals := bitstream.FindNALUnits(au)
	if len(nals) == 0 {
		return nil, nil
	}

	var slice *hevc.SliceHeader
	var sliceType hevc.NALType
	for i := range nals {
		nal := &nals[i]
		typ := hevc.NALType(nal.Type)
		switch typ {
		case hevc.NALVPS:
			if _, err := m.store.ParseVPS(nal); err != nil {
				log.Printf("[decode] dropping malformed VPS: %v", err)
			}
		case hevc.NALSPS:
			id, err := m.store.ParseSPS(nal)
			if err != nil {
				log.Printf("[decode] dropping malformed SPS: %v", err)
				continue
			}
			m.paramsDirty = true
			m.activeSPS = id
			sps := m.store.SPS(id)
			if err := m.ensureSession(sps.PicWidth, sps.PicHeight, sps.BitDepthLuma); err != nil {
				return nil, err
			}
		case hevc.NALPPS:
			if _, err := m.store.ParsePPS(nal); err != nil {
				log.Printf("[decode] dropping malformed PPS: %v", err)
				continue
			}
			m.paramsDirty = true
		default:
			if typ.IsVCL() && slice == nil {
				h, err := m.store.ParseSliceHeader(nal)
				if err != nil {
					if errors.Is(err, hevc.ErrParameterSetNotFound) {
						m.framesSkipped++
						return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
					}
					log.Printf("[decode] dropping malformed slice: %v", err)
					m.framesSkipped++
					return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
				}
				slice = h
				sliceType = typ
			}
		}
	}

	// Session exists, parameter sets are landing: a decodable picture
	// is all that is missing.
	if m.sess != nil && m.state == StateSessionCreated {
		m.state = StateAwaitingParameters
	}

	if slice == nil {
		return nil, nil
	}
	if m.sess == nil {
		m.framesSkipped++
		return nil, fmt.Errorf("%w: no session yet (state %s)", ErrFrameSkipped, m.state)
	}

	pps := m.store.PPS(slice.PPSID)
	sps := m.store.GetSPSForPPS(slice.PPSID)
	pic := picture{
		idr:       sliceType.IsIDR(),
		reference: sliceType.IsReference(),
		hdr:       sps.IsHDR(),
		frameNum:  m.frameNum,
		width:     sps.PicWidth,
		height:    sps.PicHeight,
		spsRaw:    sps.Raw,
		ppsRaw:    pps.Raw,
	}
	if !pic.idr {
		pic.poc = m.poc.derive(slice.PicOrderCntLSB, sps.Log2MaxPOCLSB)
	}
	return m.submit(au, pic)
}

func (m *Manager) decodeAVC(au []byte) (*domain.DecodedFrame, error) {
	nals := bitstream.FindNALUnitsAVC(au)
	if len(nals) == 0 {
		return nil, nil
	}

	var slice *avc.SliceHeader
	var refIdc uint8
	var idr bool
	for i := range nals {
		nal := &nals[i]
		typ := avc.NALType(nal.Type)
		switch typ {
		case avc.NALSPS:
			id, err := m.avcStore.ParseSPS(nal)
			if err != nil {
				log.Printf("[decode] dropping malformed SPS: %v", err)
				continue
			}
			m.paramsDirty = true
			m.activeSPS = id
			sps := m.avcStore.SPS(id)
			if err := m.ensureSession(sps.PicWidth, sps.PicHeight, sps.BitDepthLuma); err != nil {
				return nil, err
			}
		case avc.NALPPS:
			if _, err := m.avcStore.ParsePPS(nal); err != nil {
				log.Printf("[decode] dropping malformed PPS: %v", err)
				continue
			}
			m.paramsDirty = true
		default:
			if typ.IsVCL() && slice == nil {
				h, err := m.avcStore.ParseSliceHeader(nal)
				if err != nil {
					m.framesSkipped++
					return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
				}
				slice = h
				refIdc = nal.LayerID
				idr = typ.IsIDR()
			}
		}
	}

	if m.sess != nil && m.state == StateSessionCreated {
		m.state = StateAwaitingParameters
	}

	if slice == nil {
		return nil, nil
	}
	if m.sess == nil {
		m.framesSkipped++
		return nil, fmt.Errorf("%w: no session yet (state %s)", ErrFrameSkipped, m.state)
	}

	pps := m.avcStore.PPS(slice.PPSID)
	sps := m.avcStore.GetSPSForPPS(slice.PPSID)
	pic := picture{
		idr:       idr,
		reference: refIdc > 0,
		hdr:       sps.IsHDR(),
		frameNum:  slice.FrameNum,
		width:     sps.PicWidth,
		height:    sps.PicHeight,
		spsRaw:    sps.Raw,
		ppsRaw:    pps.Raw,
	}
	if !idr {
		if sps.POCType == 0 {
			pic.poc = m.poc.derive(slice.PicOrderCntLSB, sps.Log2MaxPOCLSB)
		} else {
			// POC types 1 and 2 track coding order; twice frame_num
			// matches what type 2 would derive without gaps.
			pic.poc = int32(2 * slice.FrameNum)
		}
	}
	return m.submit(au, pic)
}

// ensureSession creates the hardware session the first time picture
// dimensions are known. A later SPS with different extents is a
// caller-visible resolution change, never absorbed silently.
func (m *Manager) ensureSession(width, height uint32, bitDepth uint8) error {
	if m.sess != nil {
		if width != m.cfg.Width || height != m.cfg.Height ||
			bitDepth != m.cfg.BitDepth {
			log.Printf("[decode] stream changed to %dx%d@%d-bit (session is %dx%d@%d-bit)",
				width, height, bitDepth,
				m.cfg.Width, m.cfg.Height, m.cfg.BitDepth)
			return ErrResolutionChanged
		}
		return nil
	}
	return m.createSession(width, height, bitDepth)
}

func (m *Manager) createSession(width, height uint32, bitDepth uint8) error {
	cfg := SessionConfig{
		Codec:               codecID(m.codec),
		Width:               width,
		Height:              height,
		BitDepth:            bitDepth,
		MaxDPBSlots:         maxDPBSlots,
		MaxActiveReferences: maxDPBSlots - 1,
	}
	sess, err := m.dev.CreateSession(cfg)
	if err != nil {
		m.state = StateFaulted
		return fmt.Errorf("create decode session: %w", err)
	}
	m.sess = sess
	m.cfg = cfg
	m.state = StateSessionCreated
	log.Printf("[decode] session created: %s %dx%d %d-bit, %d DPB slots",
		m.codec, cfg.Width, cfg.Height, cfg.BitDepth, cfg.MaxDPBSlots)
	return nil
}

// Reconfigure tears the session down and recreates it from the most
// recent SPS. The DPB and ordering state restart; the stream is
// expected to continue with an IDR.
func (m *Manager) Reconfigure() error {
	if m.state == StateFaulted {
		return ErrDeviceLost
	}
	if m.sess != nil {
		if err := m.sess.Destroy(); err != nil {
			log.Printf("[decode] destroy session: %v", err)
		}
		m.sess = nil
	}
	m.dpb.reset()
	m.poc.reset()
	m.frameNum = 0
	m.lastSlot = -1
	m.paramsDirty = true
	m.state = StateUninitialized

	if m.codec == domain.CodecH264 {
		sps := m.avcStore.SPS(m.activeSPS)
		if sps == nil {
			return nil
		}
		return m.createSession(sps.PicWidth, sps.PicHeight, sps.BitDepthLuma)
	}
	sps := m.store.SPS(m.activeSPS)
	if sps == nil {
		return nil
	}
	return m.createSession(sps.PicWidth, sps.PicHeight, sps.BitDepthLuma)
}

func (m *Manager) submit(au []byte, pic picture) (*domain.DecodedFrame, error) {
	if pic.idr {
		m.dpb.reset()
		m.poc.reset()
		pic.frameNum = 0
		pic.poc = 0
	}

	if m.paramsDirty {
		if err := m.sess.PushParameters(pic.spsRaw, pic.ppsRaw); err != nil {
			m.state = StateFaulted
			return nil, fmt.Errorf("push session parameters: %w", err)
		}
		m.paramsDirty = false
	}

	// Gate on the padded size; the buffer the session sees is what
	// has to fit.
	padded := padBitstream(au, m.caps.BitstreamAlignment)
	capacity := m.sess.BitstreamCapacity()
	if len(padded) > capacity {
		m.framesSkipped++
		log.Printf("[decode] access unit of %d bytes exceeds bitstream buffer (%d), skipping", len(padded), capacity)
		return nil, fmt.Errorf("%w: access unit %d bytes over %d capacity", ErrFrameSkipped, len(padded), capacity)
	}

	target := m.dpb.claim()
	refs := m.dpb.references(target)

	m.state = StateDecoding
	res, err := m.sess.Decode(Submission{
		Bitstream:  padded,
		TargetSlot: target,
		Setup:      ReferenceSlot{SlotIndex: target, FrameNum: pic.frameNum, POC: pic.poc},
		References: refs,
		IDR:        pic.idr,
		Reference:  pic.reference,
		FrameNum:   pic.frameNum,
		POC:        pic.poc,
		Deadline:   time.Now().Add(m.timeout),
	})
	if err != nil {
		if errors.Is(err, ErrDeviceLost) {
			m.state = StateFaulted
			return nil, fmt.Errorf("decode submission: %w", err)
		}
		m.state = StateReady
		m.framesSkipped++
		return nil, fmt.Errorf("%w: %v", ErrFrameSkipped, err)
	}

	m.dpb.commit(target, pic.frameNum, pic.poc, pic.reference)
	m.lastSlot = target
	m.frameNum = pic.frameNum + 1
	m.framesDecoded++
	m.state = StateReady

	if !res.Complete {
		log.Printf("[decode] status query incomplete for poc=%d, delivering frame anyway", pic.poc)
	}

	frame := &domain.DecodedFrame{
		Width:        int(pic.width),
		Height:       int(pic.height),
		Luma:         res.Luma,
		Chroma:       res.Chroma,
		LumaStride:   res.LumaStride,
		ChromaStride: res.ChromaStride,
	}
	if pic.hdr {
		frame.Format = domain.PixelFormatP010
		frame.Space = domain.ColorSpaceBT2020
		frame.Transfer = domain.TransferPQ
	} else {
		frame.Format = domain.PixelFormatNV12
		frame.Space = domain.ColorSpaceBT709
		frame.Transfer = domain.TransferSDR
	}
	frame.Range = domain.ColorRangeLimited
	return frame, nil
}

// ExportSurface shares the most recently decoded surface as a DMA-BUF
// descriptor for the zero-copy presentation path.
func (m *Manager) ExportSurface() (*SurfaceExport, error) {
	if m.sess == nil || m.lastSlot < 0 {
		return nil, fmt.Errorf("no decoded surface to export")
	}
	return m.sess.Export(m.lastSlot)
}

// Close destroys the hardware session. The device is owned by the
// caller that probed it.
func (m *Manager) Close() error {
	if m.sess == nil {
		return nil
	}
	err := m.sess.Destroy()
	m.sess = nil
	m.state = StateUninitialized
	return err
}

func codecID(c domain.Codec) CodecID {
	if c == domain.CodecH264 {
		return CodecIDH264
	}
	return CodecIDH265
}

// padBitstream copies the access unit into a buffer rounded up to the
// device's bitstream alignment. Pad, never truncate.
func padBitstream(au []byte, align int) []byte {
	if align <= 1 {
		return au
	}
	size := (len(au) + align - 1) / align * align
	if size == len(au) {
		return au
	}
	buf := make([]byte, size)
	copy(buf, au)
	return buf
}
