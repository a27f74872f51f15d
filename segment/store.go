package segment

import (
	"iter"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/hupe1980/vecdb/filter"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/schema"
)

// DefaultSealThreshold is the growing-segment size at which it is sealed
// and a new mutable segment is opened.
const DefaultSealThreshold = 1024

// Options contains configuration options for the segment store.
type Options struct {
	// SealThreshold is the row count at which the growing segment is
	// sealed. Sealing is the trigger for index-build eligibility.
	SealThreshold int

	// Logger receives structured debug events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Store owns all segments of a collection. Writes (insert, delete, seal)
// are serialized by an internal mutex; reads work on atomically published
// snapshots and never block writers.
type Store struct {
	schema *schema.Schema
	opts   Options

	mu      sync.Mutex
	growing *Segment
	segs    atomic.Pointer[[]*Segment]
	nextSeg uint64
	nextRow uint32

	live atomic.Int64
}

// NewStore creates an empty segment store for the given schema.
func NewStore(s *schema.Schema, optFns ...func(o *Options)) *Store {
	opts := Options{
		SealThreshold: DefaultSealThreshold,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.SealThreshold <= 0 {
		opts.SealThreshold = DefaultSealThreshold
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	st := &Store{
		schema: s,
		opts:   opts,
	}
	empty := make([]*Segment, 0)
	st.segs.Store(&empty)
	return st
}

// Schema returns the schema rows are validated against.
func (st *Store) Schema() *schema.Schema { return st.schema }

// Insert validates and appends rows, returning their primary keys in
// input order. Validation stops at the first bad row; rows already
// appended by the same call remain applied (non-transactional bulk
// insert).
func (st *Store) Insert(rows []model.Row) ([]model.PrimaryKey, error) {
	st.mu.Lock()
	defer st.mu.Unlock()

	pks := make([]model.PrimaryKey, 0, len(rows))
	for _, row := range rows {
		if err := st.schema.ValidateRow(row); err != nil {
			return pks, err
		}
		pk, err := st.schema.PrimaryKeyOf(row)
		if err != nil {
			return pks, err
		}

		seg := st.growingLocked()
		seg.append(row.Clone())
		st.nextRow++
		st.live.Add(1)

		if seg.full() {
			st.sealLocked(seg)
		}
		pks = append(pks, pk)
	}
	return pks, nil
}

// growingLocked returns the mutable segment, opening one if needed.
func (st *Store) growingLocked() *Segment {
	if st.growing == nil {
		seg := newSegment(model.SegmentID(st.nextSeg), model.RowID(st.nextRow), st.opts.SealThreshold)
		st.nextSeg++
		st.growing = seg
		st.publishLocked(seg)
	}
	return st.growing
}

// publishLocked appends a segment to the published snapshot.
func (st *Store) publishLocked(seg *Segment) {
	old := *st.segs.Load()
	next := make([]*Segment, len(old)+1)
	copy(next, old)
	next[len(old)] = seg
	st.segs.Store(&next)
}

func (st *Store) sealLocked(seg *Segment) {
	seg.seal()
	if st.growing == seg {
		st.growing = nil
	}
	st.opts.Logger.Debug("segment sealed",
		"segment", uint64(seg.ID()),
		"rows", seg.Len(),
	)
}

// Flush seals the growing segment regardless of size, making its rows
// index-eligible. A no-op when there is no growing segment or it is empty.
func (st *Store) Flush() {
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.growing != nil && st.growing.Len() > 0 {
		st.sealLocked(st.growing)
	}
}

// Segments returns the current segment snapshot, oldest first.
func (st *Store) Segments() []*Segment {
	return *st.segs.Load()
}

// SealedSegments returns only the sealed (immutable) segments.
func (st *Store) SealedSegments() []*Segment {
	all := st.Segments()
	out := make([]*Segment, 0, len(all))
	for _, seg := range all {
		if seg.Sealed() {
			out = append(out, seg)
		}
	}
	return out
}

// NumEntities returns the number of live (non-tombstoned) rows. O(1) via a
// counter maintained on insert and delete.
func (st *Store) NumEntities() int64 {
	return st.live.Load()
}

// Scan yields surviving rows in insertion order as (global row id, row)
// pairs, applying pred when non-nil. Each call starts a fresh iteration
// over the snapshot taken at call time.
func (st *Store) Scan(pred filter.Predicate) iter.Seq2[model.RowID, model.Row] {
	segs := st.Segments()
	return func(yield func(model.RowID, model.Row) bool) {
		for _, seg := range segs {
			n := seg.Len()
			tombs := seg.Tombstones()
			for local := 0; local < n; local++ {
				if tombs.Contains(uint32(local)) {
					continue
				}
				row := seg.Row(local)
				if pred != nil && !pred(row) {
					continue
				}
				if !yield(seg.Start()+model.RowID(local), row) {
					return
				}
			}
		}
	}
}

// Get returns the row with the given global id, or false if it does not
// exist or is tombstoned.
func (st *Store) Get(id model.RowID) (model.Row, bool) {
	seg, local, ok := st.locate(id)
	if !ok {
		return nil, false
	}
	if seg.Deleted(local) {
		return nil, false
	}
	return seg.Row(int(local)), true
}

func (st *Store) locate(id model.RowID) (*Segment, uint32, bool) {
	for _, seg := range st.Segments() {
		if id < seg.Start() {
			continue
		}
		local := uint32(id - seg.Start())
		if int(local) < seg.Len() {
			return seg, local, true
		}
	}
	return nil, 0, false
}

// DeleteWhere tombstones every surviving row matching pred and returns the
// number deleted. Deleting rows that do not exist or are already deleted
// is a no-op, not an error.
func (st *Store) DeleteWhere(pred filter.Predicate) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	deleted := 0
	for _, seg := range st.Segments() {
		n := seg.Len()
		tombs := seg.Tombstones()

		var locals []uint32
		for local := 0; local < n; local++ {
			if tombs.Contains(uint32(local)) {
				continue
			}
			if pred != nil && !pred(seg.Row(local)) {
				continue
			}
			locals = append(locals, uint32(local))
		}
		deleted += seg.tombstone(locals)
	}

	if deleted > 0 {
		st.live.Add(int64(-deleted))
		st.opts.Logger.Debug("rows tombstoned", "count", deleted)
	}
	return deleted
}

// Delete tombstones the given global row ids and returns the number newly
// deleted.
func (st *Store) Delete(ids []model.RowID) int {
	st.mu.Lock()
	defer st.mu.Unlock()

	bySeg := make(map[*Segment][]uint32)
	for _, id := range ids {
		if seg, local, ok := st.locate(id); ok {
			bySeg[seg] = append(bySeg[seg], local)
		}
	}

	deleted := 0
	for seg, locals := range bySeg {
		deleted += seg.tombstone(locals)
	}
	if deleted > 0 {
		st.live.Add(int64(-deleted))
	}
	return deleted
}

// Dump returns every stored row in insertion order, tombstoned rows
// included, plus the global ids of the tombstoned rows. Segment boundaries
// are not part of the dump; a restore re-partitions by its own threshold.
func (st *Store) Dump() ([]model.Row, []model.RowID) {
	var (
		rows       []model.Row
		tombstoned []model.RowID
	)
	for _, seg := range st.Segments() {
		n := seg.Len()
		tombs := seg.Tombstones()
		for local := 0; local < n; local++ {
			rows = append(rows, seg.Row(local))
			if tombs.Contains(uint32(local)) {
				tombstoned = append(tombstoned, seg.Start()+model.RowID(local))
			}
		}
	}
	return rows, tombstoned
}

// Restore rebuilds store state from snapshot data: rows are re-inserted
// in order and tombstones replayed. Used by persistence only, before the
// store is shared.
func (st *Store) Restore(rows []model.Row, tombstoned []model.RowID) error {
	if _, err := st.Insert(rows); err != nil {
		return err
	}
	st.Delete(tombstoned)
	return nil
}
