package decode

// Scripted in-memory device for exercising the manager without
// hardware. Knobs select the failure being simulated; every
// interaction is recorded for assertions.

type fakeDevice struct {
	caps      Capabilities
	createErr error
	sessions  []*fakeSession
	closed    bool

	// session template
	capacity   int
	pushErr    error
	decodeErr  error
	incomplete bool
}

func newFakeDevice() *fakeDevice {
	return &fakeDevice{
		caps: Capabilities{
			MaxWidth:           4096,
			MaxHeight:          4096,
			BitstreamAlignment: 256,
			Supports10Bit:      true,
			DriverName:         "fake",
		},
		capacity: 4 * 1024 * 1024,
	}
}

func (d *fakeDevice) Capabilities() Capabilities { return d.caps }

func (d *fakeDevice) CreateSession(cfg SessionConfig) (Session, error) {
	if d.createErr != nil {
		return nil, d.createErr
	}
	s := &fakeSession{
		dev:        d,
		cfg:        cfg,
		capacity:   d.capacity,
		pushErr:    d.pushErr,
		decodeErr:  d.decodeErr,
		incomplete: d.incomplete,
	}
	d.sessions = append(d.sessions, s)
	return s, nil
}

func (d *fakeDevice) Close() error {
	d.closed = true
	return nil
}

type fakeSession struct {
	dev *fakeDevice
	cfg SessionConfig

	capacity   int
	pushErr    error
	decodeErr  error
	incomplete bool

	pushes      int
	submissions []Submission
	destroyed   bool
	exports     int
}

func (s *fakeSession) PushParameters(sps, pps []byte) error {
	if s.pushErr != nil {
		return s.pushErr
	}
	s.pushes++
	return nil
}

func (s *fakeSession) Decode(sub Submission) (SubmitResult, error) {
	// Keep a copy of the reference list; the manager may reuse slices.
	sub.References = append([]ReferenceSlot(nil), sub.References...)
	s.submissions = append(s.submissions, sub)
	if s.decodeErr != nil {
		return SubmitResult{}, s.decodeErr
	}
	w, h := int(s.cfg.Width), int(s.cfg.Height)
	bpp := 1
	if s.cfg.BitDepth > 8 {
		bpp = 2
	}
	return SubmitResult{
		Complete:     !s.incomplete,
		Luma:         make([]byte, w*h*bpp),
		Chroma:       make([]byte, w*h*bpp/2),
		LumaStride:   w * bpp,
		ChromaStride: w * bpp,
	}, nil
}

func (s *fakeSession) BitstreamCapacity() int { return s.capacity }

func (s *fakeSession) Export(slot int) (*SurfaceExport, error) {
	s.exports++
	fourcc := FourCCNV12
	if s.cfg.BitDepth > 8 {
		fourcc = FourCCP010
	}
	return &SurfaceExport{
		FD:     42,
		FourCC: fourcc,
		Width:  s.cfg.Width,
		Height: s.cfg.Height,
		Planes: []PlaneLayout{
			{Offset: 0, Pitch: s.cfg.Width},
			{Offset: s.cfg.Width * s.cfg.Height, Pitch: s.cfg.Width},
		},
	}, nil
}

func (s *fakeSession) Destroy() error {
	s.destroyed = true
	return nil
}
