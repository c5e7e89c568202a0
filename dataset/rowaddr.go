package dataset

import "github.com/contextframe/contextframe/store"

// resolveRowAddress maps a dataset-wide row address back to the fragment
// and local row index it came from, using the same cumulative-offset
// scheme query.Scanner assigns addresses with (fragments in manifest
// order, each contributing its Rows count before the next starts).
func resolveRowAddress(fragments []store.FragmentRef, addr int64) (store.FragmentRef, int, bool) {
	var offset int64
	for _, f := range fragments {
		if addr < offset+f.Rows {
			return f, int(addr - offset), true
		}
		offset += f.Rows
	}
	return store.FragmentRef{}, 0, false
}

// maxFragmentID returns the highest fragment id in fragments, or -1 if
// empty, so a writer can mint the next id by adding 1.
func maxFragmentID(fragments []store.FragmentRef) int64 {
	max := int64(-1)
	for _, f := range fragments {
		if f.ID > max {
			max = f.ID
		}
	}
	return max
}
