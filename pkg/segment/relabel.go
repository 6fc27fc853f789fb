package segment

import "sync/atomic"

// Relabeler hands out process-wide label ranges. Every region numbers its
// clumps and objects from 1 and adds the offsets it gets here, so labels
// are unique and contiguous over the whole image no matter in which order
// the regions finish.
type Relabeler struct {
	clumps  atomic.Int32
	objects atomic.Int32
}

// Reserve claims nclumps clump labels and nobjects object labels and
// returns the offsets to add to the region's local labels.
func (r *Relabeler) Reserve(nclumps, nobjects int) (clumpOffset, objectOffset int32) {
	c, o := int32(nclumps), int32(nobjects)
	return r.clumps.Add(c) - c, r.objects.Add(o) - o
}

// Totals returns the number of labels handed out so far.
func (r *Relabeler) Totals() (clumps, objects int) {
	return int(r.clumps.Load()), int(r.objects.Load())
}
