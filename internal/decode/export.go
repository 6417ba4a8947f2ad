package decode

// DRM fourcc codes for the export boundary.
const (
	FourCCNV12 uint32 = 0x3231564E // 'NV12'
	FourCCP010 uint32 = 0x30313050 // 'P010'
)

// PlaneLayout describes one plane inside an exported buffer.
type PlaneLayout struct {
	Offset uint32
	Pitch  uint32
}

// SurfaceExport is a decoded surface shared as a DMA-BUF file
// descriptor. The exporting session synchronizes the surface before
// handing out the descriptor; the importer owns the fd.
type SurfaceExport struct {
	FD       int
	FourCC   uint32
	Width    uint32
	Height   uint32
	Planes   []PlaneLayout
	Modifier uint64
}
