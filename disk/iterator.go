package disk

// sliceIterator adapts a precomputed, ascending-order CHS slice to the
// Iterator interface. Materializing the (tiny) list of addresses up front
// is not the same as materializing the image (spec.md §9): at most a few
// thousand three-int CHS structs, never whole sector payloads.
type sliceIterator struct {
	chs []CHS
	pos int
}

// NewSliceIterator returns a single-pass Iterator over chs, in the order
// given.
func NewSliceIterator(chs []CHS) Iterator {
	return &sliceIterator{chs: chs}
}

func (it *sliceIterator) Next() (CHS, bool) {
	if it.pos >= len(it.chs) {
		return CHS{}, false
	}
	c := it.chs[it.pos]
	it.pos++
	return c, true
}
