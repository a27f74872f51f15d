package vecdb

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hupe1980/vecdb/blobstore"
	"github.com/hupe1980/vecdb/collection"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/persistence"
	"github.com/hupe1980/vecdb/resource"
	"github.com/hupe1980/vecdb/schema"
)

// IndexParams describes the index to build on a vector field.
type IndexParams = collection.IndexParams

// SearchParams tunes a search call.
type SearchParams = collection.SearchParams

// Client is a handle on an embedded vecdb instance. All operations are
// safe for concurrent use.
type Client struct {
	endpoint  string
	registry  *Registry
	cfg       configSnapshot
	logger    *Logger
	metrics   MetricsCollector
	ctrl      *resource.Controller
	snapshots *persistence.Manager
}

// configSnapshot holds the per-collection defaults derived from config.
type configSnapshot struct {
	sealThreshold int
	defaultNProbe int
	kmeansMaxIter int
}

// Connect opens an embedded instance. The endpoint selects where
// snapshots live:
//
//   - "mem://" keeps snapshots in memory
//   - a filesystem path stores them under that directory
//
// Network schemes are not served by this single-node build and fail with
// ConnectionError, as does an empty or unusable endpoint.
func Connect(endpoint string, optFns ...Option) (*Client, error) {
	o := applyOptions(optFns)

	store := o.snapshots
	if store == nil {
		switch {
		case endpoint == "":
			return nil, &ConnectionError{Endpoint: endpoint, cause: errors.New("empty endpoint")}
		case strings.HasPrefix(endpoint, "mem://"):
			store = blobstore.NewMemoryStore()
		case strings.Contains(endpoint, "://"):
			return nil, &ConnectionError{Endpoint: endpoint, cause: errors.New("network endpoints are not supported by the embedded build")}
		default:
			st, err := blobstore.NewLocalStore(endpoint)
			if err != nil {
				return nil, &ConnectionError{Endpoint: endpoint, cause: err}
			}
			store = st
		}
	}

	registry := o.registry
	if registry == nil {
		registry = NewRegistry()
	}

	ctrl := resource.NewController(resource.Config{
		LoadedMemoryBytes:   o.cfg.Resources.LoadedMemoryBytes,
		MaxIndexBuilds:      o.cfg.Resources.MaxIndexBuilds,
		SnapshotBytesPerSec: o.cfg.Resources.SnapshotBytesPerSec,
	})

	c := &Client{
		endpoint: endpoint,
		registry: registry,
		cfg: configSnapshot{
			sealThreshold: o.cfg.Storage.SealThreshold,
			defaultNProbe: o.cfg.Index.DefaultNProbe,
			kmeansMaxIter: o.cfg.Index.KMeansMaxIterations,
		},
		logger:  o.logger,
		metrics: o.metrics,
		ctrl:    ctrl,
		snapshots: persistence.NewManager(store, func(po *persistence.Options) {
			po.Controller = ctrl
			po.Logger = o.logger.Logger
		}),
	}

	c.logger.Info("connected", "endpoint", endpoint)
	return c, nil
}

// Close releases every loaded collection. The registry and its data stay
// usable by other clients sharing it.
func (c *Client) Close() error {
	for _, name := range c.registry.Names() {
		if coll, err := c.registry.Get(name); err == nil {
			coll.Release()
		}
	}
	return nil
}

// CreateCollection registers a new collection with the given fields and
// consistency level. Bad field definitions surface as schema errors;
// a taken name fails with ErrAlreadyExists.
func (c *Client) CreateCollection(name string, fields []schema.FieldDef, level model.ConsistencyLevel) error {
	sch, err := schema.New(fields...)
	if err != nil {
		return err
	}

	coll := collection.New(name, sch, level, func(o *collection.Options) {
		o.SealThreshold = c.cfg.sealThreshold
		o.DefaultNProbe = c.cfg.defaultNProbe
		o.Logger = c.logger.Logger
		o.Controller = c.ctrl
	})
	if err := c.registry.Add(coll); err != nil {
		return err
	}

	c.logger.Info("collection created", "collection", name, "consistency", level.String())
	return nil
}

// HasCollection reports whether the named collection exists.
func (c *Client) HasCollection(name string) bool {
	return c.registry.Has(name)
}

// DropCollection removes a collection and all its data. Idempotent.
func (c *Client) DropCollection(name string) {
	c.registry.Drop(name)
	c.logger.Info("collection dropped", "collection", name)
}

// ListCollections returns all collection names, sorted.
func (c *Client) ListCollections() []string {
	return c.registry.Names()
}

// Insert validates and stores rows, returning their primary keys in input
// order. On a validation failure the keys of the rows applied before the
// bad row are still returned.
func (c *Client) Insert(ctx context.Context, coll string, rows []model.Row) ([]model.PrimaryKey, error) {
	start := time.Now()

	col, err := c.registry.Get(coll)
	if err != nil {
		c.metrics.RecordInsert(0, time.Since(start), err)
		return nil, err
	}

	pks, err := col.Insert(rows)
	err = translateError(err)
	c.metrics.RecordInsert(len(pks), time.Since(start), err)
	c.logger.LogInsert(ctx, coll, len(pks), err)
	return pks, err
}

// CreateIndex builds an IVF_FLAT index on a vector field of the
// collection. The growing segment is flushed first so every stored row is
// covered by the build snapshot.
func (c *Client) CreateIndex(ctx context.Context, coll, field string, params IndexParams) error {
	col, err := c.registry.Get(coll)
	if err != nil {
		return err
	}
	if params.MaxIterations <= 0 {
		params.MaxIterations = c.cfg.kmeansMaxIter
	}
	return translateError(col.CreateIndex(ctx, field, params))
}

// Load makes the collection's index resident so Search is callable.
func (c *Client) Load(ctx context.Context, coll string) error {
	col, err := c.registry.Get(coll)
	if err != nil {
		return err
	}
	return translateError(col.Load(ctx))
}

// Release frees the collection's resident index. Query keeps working.
func (c *Client) Release(coll string) error {
	col, err := c.registry.Get(coll)
	if err != nil {
		return err
	}
	col.Release()
	return nil
}

// Flush seals the collection's growing segment.
func (c *Client) Flush(coll string) error {
	col, err := c.registry.Get(coll)
	if err != nil {
		return err
	}
	col.Flush()
	return nil
}

// NumEntities returns the collection's live row count.
func (c *Client) NumEntities(coll string) (int64, error) {
	col, err := c.registry.Get(coll)
	if err != nil {
		return 0, err
	}
	return col.NumEntities(), nil
}

// Search runs an approximate nearest-neighbor search over float query
// vectors, optionally restricted by the scalar filter expr, and returns
// one result list per query vector with at most limit hits each.
func (c *Client) Search(ctx context.Context, coll string, vectors [][]float32, field string, params SearchParams, limit int, expr string, outputFields []string) ([]model.SearchResult, error) {
	start := time.Now()

	col, err := c.registry.Get(coll)
	if err != nil {
		c.metrics.RecordSearch(len(vectors), limit, time.Since(start), err)
		return nil, err
	}

	res, err := col.Search(ctx, vectors, field, params, limit, expr, outputFields)
	err = translateError(err)
	c.metrics.RecordSearch(len(vectors), limit, time.Since(start), err)
	c.logger.LogSearch(ctx, coll, len(vectors), limit, err)
	return res, err
}

// SearchBinary is Search for binary vector fields; queries are packed bit
// vectors scored by Hamming distance.
func (c *Client) SearchBinary(ctx context.Context, coll string, vectors [][]byte, field string, params SearchParams, limit int, expr string, outputFields []string) ([]model.SearchResult, error) {
	start := time.Now()

	col, err := c.registry.Get(coll)
	if err != nil {
		c.metrics.RecordSearch(len(vectors), limit, time.Since(start), err)
		return nil, err
	}

	res, err := col.SearchBinary(ctx, vectors, field, params, limit, expr, outputFields)
	err = translateError(err)
	c.metrics.RecordSearch(len(vectors), limit, time.Since(start), err)
	c.logger.LogSearch(ctx, coll, len(vectors), limit, err)
	return res, err
}

// Query returns all live rows matching expr, projected onto outputFields
// plus the primary key. Query does not require Load.
func (c *Client) Query(ctx context.Context, coll, expr string, outputFields []string) ([]model.Row, error) {
	start := time.Now()

	col, err := c.registry.Get(coll)
	if err != nil {
		c.metrics.RecordQuery(0, time.Since(start), err)
		return nil, err
	}

	rows, err := col.Query(ctx, expr, outputFields)
	err = translateError(err)
	c.metrics.RecordQuery(len(rows), time.Since(start), err)
	return rows, err
}

// Delete tombstones all rows matching expr and returns the count deleted.
func (c *Client) Delete(ctx context.Context, coll, expr string) (int, error) {
	start := time.Now()

	col, err := c.registry.Get(coll)
	if err != nil {
		c.metrics.RecordDelete(0, time.Since(start), err)
		return 0, err
	}

	n, err := col.Delete(expr)
	err = translateError(err)
	c.metrics.RecordDelete(n, time.Since(start), err)
	c.logger.LogDelete(ctx, coll, n, err)
	return n, err
}

// SaveCollection writes a snapshot of the collection to the client's
// snapshot store.
func (c *Client) SaveCollection(ctx context.Context, coll string) error {
	col, err := c.registry.Get(coll)
	if err != nil {
		return err
	}

	err = c.snapshots.Save(ctx, col)
	c.logger.LogSnapshot(ctx, coll, err)
	return err
}

// RestoreCollection loads a collection from its snapshot and registers
// it. Fails with ErrAlreadyExists when the name is live and ErrNotFound
// when no snapshot exists. The restored index must be loaded before
// searching.
func (c *Client) RestoreCollection(ctx context.Context, coll string) error {
	if c.registry.Has(coll) {
		return fmt.Errorf("%q: %w", coll, ErrAlreadyExists)
	}

	col, err := c.snapshots.Load(ctx, coll, func(o *collection.Options) {
		o.SealThreshold = c.cfg.sealThreshold
		o.DefaultNProbe = c.cfg.defaultNProbe
		o.Logger = c.logger.Logger
		o.Controller = c.ctrl
	})
	if err != nil {
		err = translateError(err)
		c.logger.LogSnapshot(ctx, coll, err)
		return err
	}

	if err := c.registry.Add(col); err != nil {
		return err
	}
	c.logger.LogSnapshot(ctx, coll, nil)
	return nil
}
