// Package segment implements append-only row storage for a collection:
// one mutable growing segment plus immutable sealed segments, with
// per-segment roaring tombstone bitmaps applied on every read path.
package segment

import (
	"sync/atomic"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/hupe1980/vecdb/model"
)

// Segment is an ordered, append-only run of rows plus a tombstone bitmap
// over segment-local offsets. Once sealed, its rows are immutable; only
// the tombstone bitmap still changes, via copy-on-write publication so
// lock-free readers always see a consistent bitmap.
type Segment struct {
	id    model.SegmentID
	start model.RowID

	// rows has fixed capacity; length is published through count so
	// lock-free readers never observe a partially written slot.
	rows  []model.Row
	count atomic.Int32

	tombs  atomic.Pointer[roaring.Bitmap]
	sealed atomic.Bool
}

func newSegment(id model.SegmentID, start model.RowID, capacity int) *Segment {
	s := &Segment{
		id:    id,
		start: start,
		rows:  make([]model.Row, capacity),
	}
	s.tombs.Store(roaring.New())
	return s
}

// ID returns the segment identifier.
func (s *Segment) ID() model.SegmentID { return s.id }

// Start returns the global row id of the segment's first row.
func (s *Segment) Start() model.RowID { return s.start }

// Len returns the number of rows appended so far, tombstoned or not.
func (s *Segment) Len() int { return int(s.count.Load()) }

// Sealed reports whether the segment is immutable.
func (s *Segment) Sealed() bool { return s.sealed.Load() }

// Row returns the row at a segment-local offset. The offset must be
// < Len(). Tombstoned rows are still returned; callers filter via Deleted.
func (s *Segment) Row(local int) model.Row { return s.rows[local] }

// Deleted reports whether the row at the local offset is tombstoned.
func (s *Segment) Deleted(local uint32) bool {
	return s.tombs.Load().Contains(local)
}

// Tombstones returns the current tombstone bitmap. The returned bitmap is
// shared and must not be mutated.
func (s *Segment) Tombstones() *roaring.Bitmap {
	return s.tombs.Load()
}

// full reports whether the segment reached its capacity.
func (s *Segment) full() bool { return s.Len() == len(s.rows) }

// append adds a row. Caller must hold the store's write lock.
func (s *Segment) append(row model.Row) {
	n := s.count.Load()
	s.rows[n] = row
	s.count.Store(n + 1)
}

// seal makes the segment immutable. Idempotent.
func (s *Segment) seal() { s.sealed.Store(true) }

// tombstone marks the given local offsets deleted and returns how many
// were newly tombstoned. The bitmap is cloned and republished so readers
// holding the old pointer keep a consistent view. Caller must hold the
// store's write lock; concurrent tombstone calls are not allowed.
func (s *Segment) tombstone(locals []uint32) int {
	if len(locals) == 0 {
		return 0
	}
	old := s.tombs.Load()
	next := old.Clone()

	newly := 0
	for _, l := range locals {
		if int(l) >= s.Len() {
			continue
		}
		if next.CheckedAdd(l) {
			newly++
		}
	}
	if newly > 0 {
		s.tombs.Store(next)
	}
	return newly
}

// restoreTombstones replaces the tombstone bitmap. Used by snapshot load.
func (s *Segment) restoreTombstones(bm *roaring.Bitmap) {
	s.tombs.Store(bm)
}

// liveCount returns the number of non-tombstoned rows.
func (s *Segment) liveCount() int {
	return s.Len() - int(s.tombs.Load().GetCardinality())
}
