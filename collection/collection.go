// Package collection ties schema, segment store, filter evaluation and the
// IVF index together into a single queryable collection.
//
// Concurrency follows a reader-writer discipline: inserts and deletes are
// serialized by the segment store, index build/load/release hold a writer
// lock that blocks searches, and any number of searches and queries run
// concurrently. At the Strong and BoundedStaleness consistency levels a
// delete additionally blocks new reads until its tombstones are visible;
// Eventually lets reads race ahead on the last published snapshot.
package collection

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/filter"
	"github.com/hupe1980/vecdb/ivf"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/queue"
	"github.com/hupe1980/vecdb/resource"
	"github.com/hupe1980/vecdb/schema"
	"github.com/hupe1980/vecdb/segment"
)

// ErrNoIndex is returned when an index-dependent operation runs before
// CreateIndex.
var ErrNoIndex = errors.New("no index built")

// UnknownFieldError is returned when a request names a field the schema
// does not define.
type UnknownFieldError struct {
	Collection string
	Field      string
}

func (e *UnknownFieldError) Error() string {
	return fmt.Sprintf("collection %q has no field %q", e.Collection, e.Field)
}

// Options contains configuration options for a collection.
type Options struct {
	// SealThreshold is passed through to the segment store.
	SealThreshold int

	// DefaultNProbe is used when a search does not set nprobe.
	DefaultNProbe int

	// Logger receives structured events. Defaults to slog.Default.
	Logger *slog.Logger

	// Controller gates index builds and loaded-vector memory. Nil means
	// unlimited.
	Controller *resource.Controller
}

// DefaultNProbe is the probe count used when a search leaves it unset.
const DefaultNProbe = 8

// IndexParams describes the index to build on a vector field.
type IndexParams struct {
	Metric distance.Metric

	// NList is the cluster count. Defaults to 128, clamped to the row
	// count at build time.
	NList int

	// MaxIterations and Seed tune the clustering pass.
	MaxIterations int
	Seed          int64
}

// SearchParams tunes a search call.
type SearchParams struct {
	// NProbe is the number of clusters probed per query vector.
	NProbe int

	// Timeout bounds the scoring of each query vector. On expiry the
	// candidates found so far are returned with the Timeout flag set.
	Timeout time.Duration
}

// DefaultNList is the cluster count used when IndexParams leaves it unset.
const DefaultNList = 128

// Collection owns a schema, its rows and at most one vector index.
type Collection struct {
	name  string
	sch   *schema.Schema
	level model.ConsistencyLevel
	opts  Options

	store *segment.Store

	// idxMu serializes index build/load/release against searches.
	idxMu       sync.RWMutex
	index       *ivf.Index
	loadedBytes int64

	// readMu serializes deletes against reads at Strong and
	// BoundedStaleness.
	readMu sync.RWMutex
}

// New creates an empty collection for the given schema.
func New(name string, sch *schema.Schema, level model.ConsistencyLevel, optFns ...func(o *Options)) *Collection {
	opts := Options{
		DefaultNProbe: DefaultNProbe,
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.DefaultNProbe <= 0 {
		opts.DefaultNProbe = DefaultNProbe
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	return &Collection{
		name:  name,
		sch:   sch,
		level: level,
		opts:  opts,
		store: segment.NewStore(sch, func(o *segment.Options) {
			o.SealThreshold = opts.SealThreshold
			o.Logger = opts.Logger
		}),
	}
}

// Name returns the collection name.
func (c *Collection) Name() string { return c.name }

// Schema returns the collection schema.
func (c *Collection) Schema() *schema.Schema { return c.sch }

// ConsistencyLevel returns the configured consistency level.
func (c *Collection) ConsistencyLevel() model.ConsistencyLevel { return c.level }

// NumEntities returns the number of live rows.
func (c *Collection) NumEntities() int64 { return c.store.NumEntities() }

// Flush seals the growing segment, making its rows index-eligible.
func (c *Collection) Flush() { c.store.Flush() }

// HasIndex reports whether an index has been built.
func (c *Collection) HasIndex() bool {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	return c.index != nil
}

// Loaded reports whether the index is resident and searchable.
func (c *Collection) Loaded() bool {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	return c.index != nil && c.index.Loaded()
}

// Insert validates and stores rows, returning their primary keys in input
// order. Rows become visible to Query immediately; they reach Search only
// after the next CreateIndex.
func (c *Collection) Insert(rows []model.Row) ([]model.PrimaryKey, error) {
	pks, err := c.store.Insert(rows)
	if err != nil {
		c.opts.Logger.Error("insert failed",
			"collection", c.name,
			"applied", len(pks),
			"error", err,
		)
		return pks, err
	}
	c.opts.Logger.Debug("insert completed", "collection", c.name, "count", len(pks))
	return pks, nil
}

// Delete tombstones every row matching expr and returns the count deleted.
// Deleting rows that do not exist is a no-op.
func (c *Collection) Delete(expr string) (int, error) {
	pred, err := filter.Compile(expr, c.sch)
	if err != nil {
		return 0, err
	}

	if c.level != model.ConsistencyEventually {
		c.readMu.Lock()
		defer c.readMu.Unlock()
	}

	n := c.store.DeleteWhere(pred)
	c.opts.Logger.Debug("delete completed", "collection", c.name, "count", n)
	return n, nil
}

// Query scans all live rows, applies expr and projects outputFields plus
// the primary key. Order is insertion order among surviving rows. Query
// does not require Load.
func (c *Collection) Query(ctx context.Context, expr string, outputFields []string) ([]model.Row, error) {
	pred, err := filter.Compile(expr, c.sch)
	if err != nil {
		return nil, err
	}
	if err := c.checkFields(outputFields); err != nil {
		return nil, err
	}

	unlock := c.readLock()
	defer unlock()

	var out []model.Row
	for _, row := range c.store.Scan(pred) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, c.project(row, outputFields))
	}
	return out, nil
}

// CreateIndex flushes the growing segment and builds an IVF_FLAT index on
// the named vector field from a snapshot of the sealed rows. The build
// holds the index writer lock, blocking searches until it completes, and
// occupies one build slot on the resource controller. A previous index is
// replaced; the new one must be loaded before searching.
func (c *Collection) CreateIndex(ctx context.Context, field string, params IndexParams) error {
	fd, ok := c.sch.Field(field)
	if !ok {
		return &UnknownFieldError{Collection: c.name, Field: field}
	}
	if params.NList <= 0 {
		params.NList = DefaultNList
	}

	if err := c.opts.Controller.AcquireBuild(ctx); err != nil {
		return err
	}
	defer c.opts.Controller.ReleaseBuild()

	c.Flush()

	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	start := time.Now()
	ix, err := ivf.Build(ctx, fd, params.Metric, ivf.BuildOptions{
		NList:         params.NList,
		MaxIterations: params.MaxIterations,
		Seed:          params.Seed,
	}, c.store.Scan(nil))
	if err != nil {
		c.opts.Logger.Error("index build failed",
			"collection", c.name,
			"field", field,
			"error", err,
		)
		return err
	}

	c.releaseLocked()
	c.index = ix
	c.opts.Logger.Info("index built",
		"collection", c.name,
		"field", field,
		"metric", params.Metric.String(),
		"nlist", ix.NList(),
		"rows", ix.IndexedRows(),
		"took", time.Since(start),
	)
	return nil
}

// Load materializes the index's raw vectors, reserving their memory on the
// resource controller. It must complete before Search is callable.
func (c *Collection) Load(ctx context.Context) error {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()

	if c.index == nil {
		return ErrNoIndex
	}
	if c.index.Loaded() {
		return nil
	}

	bytes := c.residentBytes()
	if err := c.opts.Controller.AcquireMemory(ctx, bytes); err != nil {
		return err
	}
	if err := c.index.Load(ctx, c.store); err != nil {
		c.opts.Controller.ReleaseMemory(bytes)
		return err
	}
	c.loadedBytes = bytes

	c.opts.Logger.Info("collection loaded", "collection", c.name, "bytes", bytes)
	return nil
}

// Release frees the resident vectors. Search fails until the next Load;
// Query is unaffected.
func (c *Collection) Release() {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	c.releaseLocked()
}

func (c *Collection) releaseLocked() {
	if c.index == nil {
		return
	}
	c.index.Release()
	c.opts.Controller.ReleaseMemory(c.loadedBytes)
	c.loadedBytes = 0
}

// residentBytes estimates the memory the loaded vectors will occupy.
func (c *Collection) residentBytes() int64 {
	fd, ok := c.sch.Field(c.index.Field())
	if !ok {
		return 0
	}
	per := int64(fd.Dim) * 4
	if fd.Type == schema.FieldTypeBinaryVector {
		per = int64(fd.Dim) / 8
	}
	return per * int64(c.index.IndexedRows())
}

// Search runs an approximate nearest-neighbor search for each query vector
// and returns one result list per vector, each ordered by ascending
// distance with at most limit entries. expr (optional) restricts
// candidates to rows matching the scalar filter; outputFields are
// projected onto each hit alongside the primary key and distance. Query
// vectors are scored in parallel.
func (c *Collection) Search(ctx context.Context, vectors [][]float32, field string, params SearchParams, limit int, expr string, outputFields []string) ([]model.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}
	return c.search(ctx, len(vectors), field, params, expr, outputFields, func(qctx context.Context, ix *ivf.Index, i, nprobe int, allow func(model.RowID) bool) ([]queue.Item, error) {
		return ix.Search(qctx, vectors[i], limit, nprobe, allow)
	})
}

// SearchBinary is Search for binary vector fields; queries are packed bit
// vectors scored by Hamming distance.
func (c *Collection) SearchBinary(ctx context.Context, vectors [][]byte, field string, params SearchParams, limit int, expr string, outputFields []string) ([]model.SearchResult, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("invalid limit %d", limit)
	}
	return c.search(ctx, len(vectors), field, params, expr, outputFields, func(qctx context.Context, ix *ivf.Index, i, nprobe int, allow func(model.RowID) bool) ([]queue.Item, error) {
		return ix.SearchBinary(qctx, vectors[i], limit, nprobe, allow)
	})
}

type searchFunc func(qctx context.Context, ix *ivf.Index, i, nprobe int, allow func(model.RowID) bool) ([]queue.Item, error)

func (c *Collection) search(ctx context.Context, nq int, field string, params SearchParams, expr string, outputFields []string, fn searchFunc) ([]model.SearchResult, error) {
	pred, err := filter.Compile(expr, c.sch)
	if err != nil {
		return nil, err
	}
	if err := c.checkFields(outputFields); err != nil {
		return nil, err
	}

	unlock := c.readLock()
	defer unlock()

	c.idxMu.RLock()
	defer c.idxMu.RUnlock()

	ix := c.index
	if ix == nil {
		return nil, ErrNoIndex
	}
	if field != ix.Field() {
		if _, ok := c.sch.Field(field); !ok {
			return nil, &UnknownFieldError{Collection: c.name, Field: field}
		}
		return nil, fmt.Errorf("field %q: %w", field, ErrNoIndex)
	}

	nprobe := params.NProbe
	if nprobe <= 0 {
		nprobe = c.opts.DefaultNProbe
	}

	// Tombstones and the scalar filter are applied before a candidate is
	// scored. Rows deleted after the index build resolve to not-found.
	allow := func(id model.RowID) bool {
		row, ok := c.store.Get(id)
		if !ok {
			return false
		}
		return pred == nil || pred(row)
	}

	results := make([]model.SearchResult, nq)
	g, gctx := errgroup.WithContext(ctx)
	for i := 0; i < nq; i++ {
		g.Go(func() error {
			qctx := gctx
			if params.Timeout > 0 {
				var cancel context.CancelFunc
				qctx, cancel = context.WithTimeout(gctx, params.Timeout)
				defer cancel()
			}

			items, err := fn(qctx, ix, i, nprobe, allow)
			timedOut := false
			if err != nil {
				if params.Timeout <= 0 || !errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				timedOut = true
			}

			results[i] = model.SearchResult{
				Hits:    c.hits(items, outputFields),
				Timeout: timedOut,
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		c.opts.Logger.Error("search failed", "collection", c.name, "error", err)
		return nil, err
	}

	c.opts.Logger.Debug("search completed",
		"collection", c.name,
		"queries", nq,
		"nprobe", nprobe,
	)
	return results, nil
}

// hits resolves scored candidates to rows and projects the output fields.
// Candidates whose row vanished between scoring and resolution are dropped.
func (c *Collection) hits(items []queue.Item, outputFields []string) []model.SearchHit {
	out := make([]model.SearchHit, 0, len(items))
	for _, it := range items {
		row, ok := c.store.Get(it.RowID)
		if !ok {
			continue
		}
		pk, err := c.sch.PrimaryKeyOf(row)
		if err != nil {
			continue
		}
		out = append(out, model.SearchHit{
			RowID:    it.RowID,
			PK:       pk,
			Distance: it.Distance,
			Fields:   c.project(row, outputFields),
		})
	}
	return out
}

// Dump returns every stored row in insertion order, tombstoned rows
// included, plus the tombstoned row ids. Used by snapshots.
func (c *Collection) Dump() ([]model.Row, []model.RowID) {
	unlock := c.readLock()
	defer unlock()
	return c.store.Dump()
}

// IndexState returns the serializable index structure, or false when no
// index has been built.
func (c *Collection) IndexState() (ivf.State, bool) {
	c.idxMu.RLock()
	defer c.idxMu.RUnlock()
	if c.index == nil {
		return ivf.State{}, false
	}
	return c.index.State(), true
}

// RestoreRows replays dumped rows and tombstones into an empty collection.
func (c *Collection) RestoreRows(rows []model.Row, tombstoned []model.RowID) error {
	return c.store.Restore(rows, tombstoned)
}

// RestoreIndex installs an index restored from a snapshot. The index is
// not loaded; Load must run before searching.
func (c *Collection) RestoreIndex(st ivf.State) {
	c.idxMu.Lock()
	defer c.idxMu.Unlock()
	c.releaseLocked()
	c.index = ivf.FromState(st)
}

// readLock takes the consistency read lock where the level requires reads
// to wait for in-flight deletes.
func (c *Collection) readLock() func() {
	if c.level == model.ConsistencyEventually {
		return func() {}
	}
	c.readMu.RLock()
	return c.readMu.RUnlock
}

// project copies the primary key and the requested fields out of a row.
func (c *Collection) project(row model.Row, outputFields []string) model.Row {
	out := make(model.Row, len(outputFields)+1)
	pk := c.sch.PrimaryField().Name
	out[pk] = row[pk]
	for _, f := range outputFields {
		out[f] = row[f]
	}
	return out
}

// checkFields verifies every requested output field exists in the schema.
func (c *Collection) checkFields(fields []string) error {
	for _, f := range fields {
		if _, ok := c.sch.Field(f); !ok {
			return &UnknownFieldError{Collection: c.name, Field: f}
		}
	}
	return nil
}
