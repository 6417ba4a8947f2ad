package decode

// maxDPBSlots is the Level 5.1 decoded picture buffer size: 16
// references plus the picture being decoded.
const maxDPBSlots = 17

type dpbSlot struct {
	inUse       bool
	frameNum    uint32
	poc         int32
	isReference bool
	isLongTerm  bool
}

// dpb is a circular index over the fixed slot array. Slots mutate only
// after a successful submission; an IDR clears everything.
type dpb struct {
	slots [maxDPBSlots]dpbSlot
	next  int
}

// reset clears all slots and rewinds the index. Called on IDR.
func (d *dpb) reset() {
	d.slots = [maxDPBSlots]dpbSlot{}
	d.next = 0
}

// claim returns the slot index the next picture decodes into. The slot
// is not marked until commit.
func (d *dpb) claim() int {
	return d.next
}

// commit records a successfully decoded picture. Non-reference
// pictures leave the slot free for immediate reuse.
func (d *dpb) commit(slot int, frameNum uint32, poc int32, isReference bool) {
	d.slots[slot] = dpbSlot{
		inUse:       isReference,
		frameNum:    frameNum,
		poc:         poc,
		isReference: isReference,
	}
	d.next = (slot + 1) % maxDPBSlots
}

// references returns every in-use slot except the decode target, in
// slot order. No per-picture list reordering or weighting is modeled.
func (d *dpb) references(target int) []ReferenceSlot {
	var refs []ReferenceSlot
	for i, s := range d.slots {
		if !s.inUse || i == target {
			continue
		}
		refs = append(refs, ReferenceSlot{
			SlotIndex: i,
			FrameNum:  s.frameNum,
			POC:       s.poc,
			LongTerm:  s.isLongTerm,
		})
	}
	return refs
}

// activeCount reports how many slots currently hold references.
func (d *dpb) activeCount() int {
	n := 0
	for _, s := range d.slots {
		if s.inUse {
			n++
		}
	}
	return n
}
