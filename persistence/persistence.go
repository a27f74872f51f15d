// Package persistence saves and restores collection snapshots. A snapshot
// is a zstd-compressed gob stream holding the schema, all rows with their
// tombstones, and the index structure if one was built. Raw index vectors
// are not persisted; a restored collection must Load before searching.
package persistence

import (
	"context"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/zstd"

	"github.com/hupe1980/vecdb/blobstore"
	"github.com/hupe1980/vecdb/collection"
	"github.com/hupe1980/vecdb/ivf"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/resource"
	"github.com/hupe1980/vecdb/schema"
)

// ErrBadSnapshot is returned when a blob does not decode as a snapshot of
// a known format version.
var ErrBadSnapshot = errors.New("malformed snapshot")

const (
	formatVersion  = 1
	snapshotPrefix = "snapshots/"
	snapshotExt    = ".snap"
)

// snapshot is the gob payload. All member types are value types with
// exported fields.
type snapshot struct {
	Version int

	Name   string
	Fields []schema.FieldDef
	Level  model.ConsistencyLevel

	Rows       []model.Row
	Tombstoned []model.RowID

	HasIndex bool
	Index    ivf.State
}

// Options contains configuration options for the manager.
type Options struct {
	// Controller rate-limits snapshot IO. Nil means unlimited.
	Controller *resource.Controller

	// Logger receives structured events. Defaults to slog.Default.
	Logger *slog.Logger
}

// Manager reads and writes collection snapshots on a blob store.
type Manager struct {
	store blobstore.Store
	opts  Options
}

// NewManager creates a snapshot manager over the given blob store.
func NewManager(store blobstore.Store, optFns ...func(o *Options)) *Manager {
	opts := Options{}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return &Manager{store: store, opts: opts}
}

func key(name string) string {
	return snapshotPrefix + name + snapshotExt
}

// Save writes a snapshot of the collection, replacing any previous one of
// the same name.
func (m *Manager) Save(ctx context.Context, c *collection.Collection) error {
	rows, tombstoned := c.Dump()

	snap := snapshot{
		Version:    formatVersion,
		Name:       c.Name(),
		Fields:     c.Schema().Fields(),
		Level:      c.ConsistencyLevel(),
		Rows:       rows,
		Tombstoned: tombstoned,
	}
	if st, ok := c.IndexState(); ok {
		snap.HasIndex = true
		snap.Index = st
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(encode(ctx, pw, m.opts.Controller, &snap))
	}()

	if err := m.store.Put(ctx, key(c.Name()), pr); err != nil {
		pr.CloseWithError(err)
		return fmt.Errorf("save snapshot %q: %w", c.Name(), err)
	}

	m.opts.Logger.Info("snapshot saved",
		"collection", c.Name(),
		"rows", len(rows),
		"tombstoned", len(tombstoned),
		"indexed", snap.HasIndex,
	)
	return nil
}

// Load restores a collection from its snapshot. Returns
// blobstore.ErrNotFound when no snapshot of that name exists. The optFns
// configure the restored collection.
func (m *Manager) Load(ctx context.Context, name string, optFns ...func(o *collection.Options)) (*collection.Collection, error) {
	rc, err := m.store.Get(ctx, key(name))
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var snap snapshot
	if err := decode(ctx, rc, m.opts.Controller, &snap); err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, err)
	}
	if snap.Version != formatVersion {
		return nil, fmt.Errorf("snapshot %q: version %d: %w", name, snap.Version, ErrBadSnapshot)
	}

	sch, err := schema.New(snap.Fields...)
	if err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, err)
	}

	c := collection.New(snap.Name, sch, snap.Level, optFns...)
	if err := c.RestoreRows(snap.Rows, snap.Tombstoned); err != nil {
		return nil, fmt.Errorf("snapshot %q: %w", name, err)
	}
	if snap.HasIndex {
		c.RestoreIndex(snap.Index)
	}

	m.opts.Logger.Info("snapshot loaded", "collection", name, "rows", len(snap.Rows))
	return c, nil
}

// Delete removes a collection's snapshot. Idempotent.
func (m *Manager) Delete(ctx context.Context, name string) error {
	return m.store.Delete(ctx, key(name))
}

// List returns the names of all stored snapshots.
func (m *Manager) List(ctx context.Context) ([]string, error) {
	keys, err := m.store.List(ctx, snapshotPrefix)
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(keys))
	for _, k := range keys {
		name := k[len(snapshotPrefix):]
		if len(name) > len(snapshotExt) && name[len(name)-len(snapshotExt):] == snapshotExt {
			names = append(names, name[:len(name)-len(snapshotExt)])
		}
	}
	return names, nil
}

func encode(ctx context.Context, w io.Writer, ctrl *resource.Controller, snap *snapshot) error {
	zw, err := zstd.NewWriter(resource.NewLimitedWriter(ctx, ctrl, w))
	if err != nil {
		return err
	}
	if err := gob.NewEncoder(zw).Encode(snap); err != nil {
		zw.Close()
		return err
	}
	return zw.Close()
}

func decode(ctx context.Context, r io.Reader, ctrl *resource.Controller, snap *snapshot) error {
	zr, err := zstd.NewReader(resource.NewLimitedReader(ctx, ctrl, r))
	if err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err)
	}
	defer zr.Close()

	if err := gob.NewDecoder(zr).Decode(snap); err != nil {
		return fmt.Errorf("%w: %s", ErrBadSnapshot, err)
	}
	return nil
}
