// Package vkbridge adapts the vendor Vulkan Video decode bridge
// (libopennow_vkdec) to the decode.Device boundary. The library
// exposes a flat C ABI; symbols are bound with purego, no cgo. Load
// it explicitly at startup and pass the handle down; availability is
// a probe result, not hidden global state.
package vkbridge

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
	"unsafe"

	"github.com/ebitengine/purego"

	"opennow/client/internal/decode"
)

// Bridge status codes from opennow_vkdec.h.
const (
	statusOK         = 0
	statusIncomplete = 1
	statusTimeout    = -2
	statusDeviceLost = -3
)

const libName = "libopennow_vkdec.so"

// Library is a loaded decode bridge.
type Library struct {
	handle uintptr

	deviceCreate  func() uint64
	deviceDestroy func(dev uint64)
	deviceCaps    func(dev uint64, caps uintptr) int32

	sessionCreate   func(dev uint64, codec, width, height, bitDepth, maxSlots, maxRefs int32) uint64
	sessionDestroy  func(sess uint64)
	sessionParams   func(sess uint64, sps uintptr, spsLen int32, pps uintptr, ppsLen int32) int32
	sessionDecode   func(sess uint64, info uintptr) int32
	sessionStatus   func(sess uint64) int32
	sessionReadback func(sess uint64, slot int32, y uintptr, yCap int32, uv uintptr, uvCap int32, strides uintptr) int32
	sessionCapacity func(sess uint64) int32
	sessionExport   func(sess uint64, slot int32, desc uintptr) int32
}

// Load opens the bridge library. An empty path searches
// OPENNOW_VKDEC_LIB, the executable's directory, then system paths.
func Load(path string) (*Library, error) {
	paths := []string{path}
	if path == "" {
		paths = searchPaths()
	}

	var lastErr error
	for _, p := range paths {
		handle, err := purego.Dlopen(p, purego.RTLD_NOW|purego.RTLD_GLOBAL)
		if err != nil {
			lastErr = err
			continue
		}
		lib := &Library{handle: handle}
		if err := lib.register(); err != nil {
			purego.Dlclose(handle)
			return nil, err
		}
		return lib, nil
	}
	if lastErr == nil {
		lastErr = errors.New("no candidate paths")
	}
	return nil, fmt.Errorf("load %s: %w", libName, lastErr)
}

func searchPaths() []string {
	var paths []string
	if p := os.Getenv("OPENNOW_VKDEC_LIB"); p != "" {
		paths = append(paths, p)
	}
	if exe, err := os.Executable(); err == nil {
		paths = append(paths, filepath.Join(filepath.Dir(exe), libName))
	}
	paths = append(paths,
		libName,
		filepath.Join("/usr/local/lib", libName),
		filepath.Join("/usr/lib", libName),
	)
	return paths
}

func (l *Library) register() (err error) {
	defer func() {
		// RegisterLibFunc panics on a missing symbol.
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: %v", libName, r)
		}
	}()
	purego.RegisterLibFunc(&l.deviceCreate, l.handle, "vkdec_device_create")
	purego.RegisterLibFunc(&l.deviceDestroy, l.handle, "vkdec_device_destroy")
	purego.RegisterLibFunc(&l.deviceCaps, l.handle, "vkdec_device_caps")
	purego.RegisterLibFunc(&l.sessionCreate, l.handle, "vkdec_session_create")
	purego.RegisterLibFunc(&l.sessionDestroy, l.handle, "vkdec_session_destroy")
	purego.RegisterLibFunc(&l.sessionParams, l.handle, "vkdec_session_push_params")
	purego.RegisterLibFunc(&l.sessionDecode, l.handle, "vkdec_session_decode")
	purego.RegisterLibFunc(&l.sessionStatus, l.handle, "vkdec_session_status")
	purego.RegisterLibFunc(&l.sessionReadback, l.handle, "vkdec_session_readback")
	purego.RegisterLibFunc(&l.sessionCapacity, l.handle, "vkdec_session_bitstream_capacity")
	purego.RegisterLibFunc(&l.sessionExport, l.handle, "vkdec_session_export_dmabuf")
	if l.sessionExport == nil {
		return fmt.Errorf("%s: missing symbols", libName)
	}
	return nil
}

// capsRecord mirrors vkdec_caps_t.
type capsRecord struct {
	maxWidth   uint32
	maxHeight  uint32
	alignment  int32
	tenBit     int32
	driverName [64]byte
}

// pictureRecord mirrors vkdec_picture_t: one decode submission with
// its reference slot table.
type pictureRecord struct {
	bitstream    uintptr
	bitstreamLen int32
	targetSlot   int32
	idr          int32
	reference    int32
	frameNum     uint32
	poc          int32
	refCount     int32
	refSlots     [16]int32
	refPOCs      [16]int32
	timeoutNs    int64
}

// exportRecord mirrors vkdec_dmabuf_t.
type exportRecord struct {
	fd         int32
	fourcc     uint32
	width      uint32
	height     uint32
	modifier   uint64
	planeCount int32
	offsets    [4]uint32
	pitches    [4]uint32
}

// NewDevice probes the hardware and returns it as a decode.Device.
func (l *Library) NewDevice() (decode.Device, error) {
	handle := l.deviceCreate()
	if handle == 0 {
		return nil, fmt.Errorf("vkdec: no video decode queue available")
	}

	var rec capsRecord
	if rc := l.deviceCaps(handle, uintptr(unsafe.Pointer(&rec))); rc != statusOK {
		l.deviceDestroy(handle)
		return nil, fmt.Errorf("vkdec: query caps: status %d", rc)
	}
	runtime.KeepAlive(&rec)

	name := rec.driverName[:]
	if i := indexZero(name); i >= 0 {
		name = name[:i]
	}
	return &device{
		lib:    l,
		handle: handle,
		caps: decode.Capabilities{
			MaxWidth:           rec.maxWidth,
			MaxHeight:          rec.maxHeight,
			BitstreamAlignment: int(rec.alignment),
			Supports10Bit:      rec.tenBit != 0,
			DriverName:         string(name),
		},
	}, nil
}

func indexZero(b []byte) int {
	for i, c := range b {
		if c == 0 {
			return i
		}
	}
	return -1
}

type device struct {
	lib    *Library
	handle uint64
	caps   decode.Capabilities
}

func (d *device) Capabilities() decode.Capabilities { return d.caps }

func (d *device) CreateSession(cfg decode.SessionConfig) (decode.Session, error) {
	handle := d.lib.sessionCreate(d.handle,
		int32(cfg.Codec), int32(cfg.Width), int32(cfg.Height),
		int32(cfg.BitDepth), int32(cfg.MaxDPBSlots), int32(cfg.MaxActiveReferences))
	if handle == 0 {
		return nil, fmt.Errorf("vkdec: create session %dx%d: allocation failed", cfg.Width, cfg.Height)
	}
	return &session{lib: d.lib, handle: handle, cfg: cfg}, nil
}

func (d *device) Close() error {
	if d.handle != 0 {
		d.lib.deviceDestroy(d.handle)
		d.handle = 0
	}
	return nil
}

type session struct {
	lib    *Library
	handle uint64
	cfg    decode.SessionConfig
}

func (s *session) PushParameters(sps, pps []byte) error {
	if len(sps) == 0 || len(pps) == 0 {
		return fmt.Errorf("vkdec: empty parameter set")
	}
	rc := s.lib.sessionParams(s.handle,
		uintptr(unsafe.Pointer(&sps[0])), int32(len(sps)),
		uintptr(unsafe.Pointer(&pps[0])), int32(len(pps)))
	runtime.KeepAlive(sps)
	runtime.KeepAlive(pps)
	if rc != statusOK {
		return fmt.Errorf("vkdec: push params: status %d", rc)
	}
	return nil
}

func (s *session) Decode(sub decode.Submission) (decode.SubmitResult, error) {
	var rec pictureRecord
	rec.bitstream = uintptr(unsafe.Pointer(&sub.Bitstream[0]))
	rec.bitstreamLen = int32(len(sub.Bitstream))
	rec.targetSlot = int32(sub.TargetSlot)
	if sub.IDR {
		rec.idr = 1
	}
	if sub.Reference {
		rec.reference = 1
	}
	rec.frameNum = sub.FrameNum
	rec.poc = sub.POC
	for i, ref := range sub.References {
		if i >= len(rec.refSlots) {
			break
		}
		rec.refSlots[i] = int32(ref.SlotIndex)
		rec.refPOCs[i] = ref.POC
		rec.refCount++
	}
	rec.timeoutNs = int64(time.Until(sub.Deadline))

	rc := s.lib.sessionDecode(s.handle, uintptr(unsafe.Pointer(&rec)))
	runtime.KeepAlive(sub.Bitstream)
	runtime.KeepAlive(&rec)
	switch rc {
	case statusOK, statusIncomplete:
	case statusTimeout, statusDeviceLost:
		return decode.SubmitResult{}, fmt.Errorf("vkdec: decode status %d: %w", rc, decode.ErrDeviceLost)
	default:
		return decode.SubmitResult{}, fmt.Errorf("vkdec: decode failed: status %d", rc)
	}

	bpp := 1
	if s.cfg.BitDepth > 8 {
		bpp = 2
	}
	lumaSize := int(s.cfg.Width) * int(s.cfg.Height) * bpp
	luma := make([]byte, lumaSize)
	chroma := make([]byte, lumaSize/2)
	var strides [2]int32
	rrc := s.lib.sessionReadback(s.handle, rec.targetSlot,
		uintptr(unsafe.Pointer(&luma[0])), int32(len(luma)),
		uintptr(unsafe.Pointer(&chroma[0])), int32(len(chroma)),
		uintptr(unsafe.Pointer(&strides[0])))
	runtime.KeepAlive(luma)
	runtime.KeepAlive(chroma)
	if rrc != statusOK {
		return decode.SubmitResult{}, fmt.Errorf("vkdec: readback: status %d", rrc)
	}

	complete := s.lib.sessionStatus(s.handle) == statusOK && rc == statusOK
	return decode.SubmitResult{
		Complete:     complete,
		Luma:         luma,
		Chroma:       chroma,
		LumaStride:   int(strides[0]),
		ChromaStride: int(strides[1]),
	}, nil
}

func (s *session) BitstreamCapacity() int {
	return int(s.lib.sessionCapacity(s.handle))
}

func (s *session) Export(slot int) (*decode.SurfaceExport, error) {
	var rec exportRecord
	rc := s.lib.sessionExport(s.handle, int32(slot), uintptr(unsafe.Pointer(&rec)))
	runtime.KeepAlive(&rec)
	if rc != statusOK {
		return nil, fmt.Errorf("vkdec: export slot %d: status %d", slot, rc)
	}
	exp := &decode.SurfaceExport{
		FD:       int(rec.fd),
		FourCC:   rec.fourcc,
		Width:    rec.width,
		Height:   rec.height,
		Modifier: rec.modifier,
	}
	for i := int32(0); i < rec.planeCount && i < 4; i++ {
		exp.Planes = append(exp.Planes, decode.PlaneLayout{
			Offset: rec.offsets[i],
			Pitch:  rec.pitches[i],
		})
	}
	return exp, nil
}

func (s *session) Destroy() error {
	if s.handle != 0 {
		s.lib.sessionDestroy(s.handle)
		s.handle = 0
	}
	return nil
}

// Close unloads the library. Devices and sessions must be destroyed
// first.
func (l *Library) Close() error {
	if l.handle != 0 {
		purego.Dlclose(l.handle)
		l.handle = 0
	}
	return nil
}
