package fs

import (
	"github.com/RoaringBitmap/roaring/v2"
)

// openSet records which files are open. It is a set, not a reference count:
// opening an open file changes nothing and one close closes it.
//
// Membership is keyed by entry id rather than chain head, because a write
// moves the chain head and would leave a stale member behind.
type openSet struct {
	ids *roaring.Bitmap
}

func newOpenSet() *openSet {
	return &openSet{ids: roaring.New()}
}

func (s *openSet) add(id EntryID) {
	s.ids.Add(uint32(id))
}

func (s *openSet) remove(id EntryID) {
	s.ids.Remove(uint32(id))
}

func (s *openSet) contains(id EntryID) bool {
	return s.ids.Contains(uint32(id))
}

func (s *openSet) clear() {
	s.ids.Clear()
}

func (s *openSet) len() int {
	return int(s.ids.GetCardinality())
}
