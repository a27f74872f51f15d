// Package ivf implements an IVF_FLAT index: vectors are partitioned into
// nlist clusters by k-means, and a search probes only the nprobe nearest
// clusters, scoring their members exhaustively.
//
// The search is approximate; the true top-k is only guaranteed when
// nprobe == nlist. Rows inserted after a build are invisible to the index
// until the next build.
package ivf

import (
	"context"
	"errors"
	"fmt"
	"iter"
	"sync/atomic"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/kmeans"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/queue"
	"github.com/hupe1980/vecdb/schema"
)

// ErrNotLoaded is returned when search is attempted before Load completed.
var ErrNotLoaded = errors.New("index not loaded")

// UnsupportedFieldError is returned when an index is requested on a field
// that is not a vector type.
type UnsupportedFieldError struct {
	Field string
	Type  schema.FieldType
}

func (e *UnsupportedFieldError) Error() string {
	return fmt.Sprintf("cannot index field %q of type %s", e.Field, e.Type)
}

// MetricMismatchError is returned when the metric does not fit the field's
// vector type (L2/IP for float vectors, Hamming for binary vectors).
type MetricMismatchError struct {
	Field  string
	Metric distance.Metric
}

func (e *MetricMismatchError) Error() string {
	return fmt.Sprintf("metric %s not supported for field %q", e.Metric, e.Field)
}

// DefaultMaxIterations caps the k-means refinement loop.
const DefaultMaxIterations = 16

// BuildOptions configures an index build.
type BuildOptions struct {
	// NList is the number of clusters. Clamped to the snapshot size.
	NList int

	// MaxIterations caps k-means refinement. Defaults to
	// DefaultMaxIterations.
	MaxIterations int

	// Seed makes cluster initialization deterministic.
	Seed int64
}

// Source resolves rows by id during Load. Rows deleted since the build
// simply resolve to false and are skipped.
type Source interface {
	Get(id model.RowID) (model.Row, bool)
}

// Index is an immutable IVF_FLAT index built from a point-in-time row
// snapshot. Raw vectors become resident only after Load; Release frees
// them again.
type Index struct {
	field  string
	dim    int // bits for binary vectors
	binary bool
	metric distance.Metric
	nlist  int

	centroids []float32          // nlist * trainDim, bit-expanded for binary
	lists     [][]model.RowID    // member ids per cluster, insertion order

	loaded    atomic.Bool
	floatVecs map[model.RowID][]float32
	binVecs   map[model.RowID][]byte
}

// Build clusters the vectors of the given field over the supplied row
// snapshot. The rows sequence must yield ids in insertion order. Cancelling
// the context aborts the build between clustering iterations.
func Build(ctx context.Context, field schema.FieldDef, metric distance.Metric, opts BuildOptions, rows iter.Seq2[model.RowID, model.Row]) (*Index, error) {
	if !field.Type.IsVector() {
		return nil, &UnsupportedFieldError{Field: field.Name, Type: field.Type}
	}
	binary := field.Type == schema.FieldTypeBinaryVector
	if binary && metric != distance.MetricHamming {
		return nil, &MetricMismatchError{Field: field.Name, Metric: metric}
	}
	if !binary && metric != distance.MetricL2 && metric != distance.MetricIP {
		return nil, &MetricMismatchError{Field: field.Name, Metric: metric}
	}
	if opts.NList <= 0 {
		return nil, fmt.Errorf("invalid nlist %d", opts.NList)
	}
	maxIter := opts.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	// Snapshot vector data. For binary vectors the bits are expanded to
	// floats so centroids live in a continuous space; scoring still uses
	// the packed bytes.
	var (
		ids   []model.RowID
		train []float32
	)
	for id, row := range rows {
		v := row[field.Name]
		if binary {
			train = append(train, expandBits(v.BV)...)
		} else {
			train = append(train, v.FV...)
		}
		ids = append(ids, id)
	}

	ix := &Index{
		field:  field.Name,
		dim:    field.Dim,
		binary: binary,
		metric: metric,
		nlist:  opts.NList,
	}
	if len(ids) == 0 {
		ix.lists = make([][]model.RowID, 0)
		return ix, nil
	}

	trainMetric := metric
	if binary {
		// Centroid space is the bit expansion; rank clusters by L2 there.
		trainMetric = distance.MetricL2
	}

	centroids, assignments, err := kmeans.Train(ctx, train, field.Dim, opts.NList, trainMetric, maxIter, opts.Seed)
	if err != nil {
		return nil, err
	}

	k := len(centroids) / field.Dim
	ix.nlist = k
	ix.centroids = centroids
	ix.lists = make([][]model.RowID, k)
	for i, id := range ids {
		c := assignments[i]
		ix.lists[c] = append(ix.lists[c], id)
	}
	return ix, nil
}

// Field returns the indexed field name.
func (ix *Index) Field() string { return ix.field }

// Metric returns the scoring metric.
func (ix *Index) Metric() distance.Metric { return ix.metric }

// NList returns the number of clusters actually built.
func (ix *Index) NList() int { return ix.nlist }

// IndexedRows returns the number of row ids captured by the build snapshot.
func (ix *Index) IndexedRows() int {
	n := 0
	for _, list := range ix.lists {
		n += len(list)
	}
	return n
}

// Loaded reports whether raw vectors are resident and search is callable.
func (ix *Index) Loaded() bool { return ix.loaded.Load() }

// Load materializes the raw vectors of all indexed rows into memory.
// It must complete before Search is callable. Rows no longer resolvable
// through the source (deleted since the build) are skipped.
func (ix *Index) Load(ctx context.Context, src Source) error {
	if ix.loaded.Load() {
		return nil
	}

	floatVecs := make(map[model.RowID][]float32)
	binVecs := make(map[model.RowID][]byte)

	for _, list := range ix.lists {
		if err := ctx.Err(); err != nil {
			return err
		}
		for _, id := range list {
			row, ok := src.Get(id)
			if !ok {
				continue
			}
			v := row[ix.field]
			if ix.binary {
				binVecs[id] = v.BV
			} else {
				floatVecs[id] = v.FV
			}
		}
	}

	ix.floatVecs = floatVecs
	ix.binVecs = binVecs
	ix.loaded.Store(true)
	return nil
}

// Release frees the resident vectors. Search fails with ErrNotLoaded until
// the next Load.
func (ix *Index) Release() {
	ix.loaded.Store(false)
	ix.floatVecs = nil
	ix.binVecs = nil
}

// Search scores the query vector against the members of the nprobe nearest
// clusters and returns up to topK candidates ordered by ascending distance,
// ties broken by insertion order. The allow callback (non-nil) excludes
// rows, typically tombstoned rows and scalar-filter misses.
//
// When the context expires mid-scan, the candidates gathered so far are
// returned together with the context error.
func (ix *Index) Search(ctx context.Context, q []float32, topK, nprobe int, allow func(model.RowID) bool) ([]queue.Item, error) {
	if ix.binary {
		return nil, fmt.Errorf("field %q holds binary vectors, use SearchBinary", ix.field)
	}
	probe, err := ix.probeOrder(q, nprobe)
	if err != nil {
		return nil, err
	}
	distFunc, err := distance.Provider(ix.metric)
	if err != nil {
		return nil, err
	}

	tk := queue.NewTopK(topK)
	for _, c := range probe {
		if err := ctx.Err(); err != nil {
			return tk.Drain(), err
		}
		for _, id := range ix.lists[c] {
			if allow != nil && !allow(id) {
				continue
			}
			vec, ok := ix.floatVecs[id]
			if !ok {
				continue
			}
			tk.Push(queue.Item{RowID: id, Distance: distFunc(q, vec)})
		}
	}
	return tk.Drain(), nil
}

// SearchBinary is Search for binary vector fields; q is a packed bit
// vector and distances are Hamming.
func (ix *Index) SearchBinary(ctx context.Context, q []byte, topK, nprobe int, allow func(model.RowID) bool) ([]queue.Item, error) {
	if !ix.binary {
		return nil, fmt.Errorf("field %q holds float vectors, use Search", ix.field)
	}
	probe, err := ix.probeOrder(expandBits(q), nprobe)
	if err != nil {
		return nil, err
	}

	tk := queue.NewTopK(topK)
	for _, c := range probe {
		if err := ctx.Err(); err != nil {
			return tk.Drain(), err
		}
		for _, id := range ix.lists[c] {
			if allow != nil && !allow(id) {
				continue
			}
			vec, ok := ix.binVecs[id]
			if !ok {
				continue
			}
			tk.Push(queue.Item{RowID: id, Distance: distance.Hamming(q, vec)})
		}
	}
	return tk.Drain(), nil
}

// probeOrder ranks clusters by centroid distance and returns the nprobe
// nearest cluster indices.
func (ix *Index) probeOrder(q []float32, nprobe int) ([]int, error) {
	if !ix.loaded.Load() {
		return nil, ErrNotLoaded
	}
	if len(ix.centroids) == 0 {
		return nil, nil
	}
	if nprobe <= 0 {
		nprobe = 1
	}

	centroidMetric := ix.metric
	if ix.binary {
		centroidMetric = distance.MetricL2
	}
	return kmeans.NearestCentroids(q, ix.centroids, ix.dim, nprobe, centroidMetric)
}

// expandBits turns a packed bit vector into one float per bit.
func expandBits(b []byte) []float32 {
	out := make([]float32, 0, len(b)*8)
	for _, by := range b {
		for bit := 0; bit < 8; bit++ {
			out = append(out, float32((by>>bit)&1))
		}
	}
	return out
}

// State is the serializable form of an index, used by snapshots.
type State struct {
	Field  string
	Dim    int
	Binary bool
	Metric distance.Metric
	NList  int

	Centroids []float32
	Lists     [][]model.RowID
}

// State captures the index structure. Resident vectors are not part of the
// state; a restored index must be loaded again before searching.
func (ix *Index) State() State {
	return State{
		Field:     ix.field,
		Dim:       ix.dim,
		Binary:    ix.binary,
		Metric:    ix.metric,
		NList:     ix.nlist,
		Centroids: ix.centroids,
		Lists:     ix.lists,
	}
}

// FromState restores an index from its serialized form.
func FromState(st State) *Index {
	return &Index{
		field:     st.Field,
		dim:       st.Dim,
		binary:    st.Binary,
		metric:    st.Metric,
		nlist:     st.NList,
		centroids: st.Centroids,
		lists:     st.Lists,
	}
}
