package ivf

import (
	"context"
	"iter"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/schema"
)

type mapSource map[model.RowID]model.Row

func (m mapSource) Get(id model.RowID) (model.Row, bool) {
	row, ok := m[id]
	return row, ok
}

func floatRows(t *testing.T, vectors [][]float32) (mapSource, iter.Seq2[model.RowID, model.Row]) {
	t.Helper()
	src := make(mapSource, len(vectors))
	for i, v := range vectors {
		src[model.RowID(i)] = model.Row{"vec": model.FloatVector(v)}
	}
	seq := func(yield func(model.RowID, model.Row) bool) {
		for i := range vectors {
			if !yield(model.RowID(i), src[model.RowID(i)]) {
				return
			}
		}
	}
	return src, seq
}

func floatField(dim int) schema.FieldDef {
	return schema.FieldDef{Name: "vec", Type: schema.FieldTypeFloatVector, Dim: dim}
}

func randomVectors(rng *rand.Rand, n, dim int) [][]float32 {
	out := make([][]float32, n)
	for i := range out {
		v := make([]float32, dim)
		for d := range v {
			v[d] = rng.Float32()*2 - 1
		}
		out[i] = v
	}
	return out
}

func bruteForce(vectors [][]float32, q []float32, k int, metric distance.Metric) []model.RowID {
	distFunc, _ := distance.Provider(metric)
	type scored struct {
		id   model.RowID
		dist float32
	}
	all := make([]scored, len(vectors))
	for i, v := range vectors {
		all[i] = scored{id: model.RowID(i), dist: distFunc(q, v)}
	}
	sort.Slice(all, func(i, j int) bool {
		if all[i].dist != all[j].dist {
			return all[i].dist < all[j].dist
		}
		return all[i].id < all[j].id
	})
	if k > len(all) {
		k = len(all)
	}
	ids := make([]model.RowID, k)
	for i := 0; i < k; i++ {
		ids[i] = all[i].id
	}
	return ids
}

func TestBuildErrors(t *testing.T) {
	ctx := context.Background()
	_, seq := floatRows(t, [][]float32{{1, 2}})

	t.Run("non-vector field", func(t *testing.T) {
		_, err := Build(ctx, schema.FieldDef{Name: "id", Type: schema.FieldTypeInt64}, distance.MetricL2, BuildOptions{NList: 2}, seq)
		var ufe *UnsupportedFieldError
		require.ErrorAs(t, err, &ufe)
		assert.Equal(t, "id", ufe.Field)
	})

	t.Run("metric mismatch float", func(t *testing.T) {
		_, err := Build(ctx, floatField(2), distance.MetricHamming, BuildOptions{NList: 2}, seq)
		var mme *MetricMismatchError
		assert.ErrorAs(t, err, &mme)
	})

	t.Run("metric mismatch binary", func(t *testing.T) {
		bf := schema.FieldDef{Name: "vec", Type: schema.FieldTypeBinaryVector, Dim: 8}
		_, err := Build(ctx, bf, distance.MetricL2, BuildOptions{NList: 2}, seq)
		var mme *MetricMismatchError
		assert.ErrorAs(t, err, &mme)
	})

	t.Run("invalid nlist", func(t *testing.T) {
		_, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 0}, seq)
		assert.Error(t, err)
	})
}

func TestSearchRequiresLoad(t *testing.T) {
	ctx := context.Background()
	_, seq := floatRows(t, [][]float32{{0, 0}, {1, 1}})

	ix, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 1, Seed: 1}, seq)
	require.NoError(t, err)

	_, err = ix.Search(ctx, []float32{0, 0}, 1, 1, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)
}

func TestLoadSearchRelease(t *testing.T) {
	ctx := context.Background()
	vectors := [][]float32{{0, 0}, {10, 10}, {0.5, 0.5}, {9, 9}}
	src, seq := floatRows(t, vectors)

	ix, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 2, Seed: 1}, seq)
	require.NoError(t, err)
	require.NoError(t, ix.Load(ctx, src))
	assert.True(t, ix.Loaded())
	assert.Equal(t, 4, ix.IndexedRows())

	hits, err := ix.Search(ctx, []float32{0, 0}, 2, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, model.RowID(0), hits[0].RowID)
	assert.Equal(t, model.RowID(2), hits[1].RowID)
	assert.LessOrEqual(t, hits[0].Distance, hits[1].Distance)

	ix.Release()
	assert.False(t, ix.Loaded())
	_, err = ix.Search(ctx, []float32{0, 0}, 1, 1, nil)
	assert.ErrorIs(t, err, ErrNotLoaded)

	// Load again restores searchability.
	require.NoError(t, ix.Load(ctx, src))
	_, err = ix.Search(ctx, []float32{0, 0}, 1, 1, nil)
	assert.NoError(t, err)
}

func TestFullProbeMatchesBruteForce(t *testing.T) {
	for _, metric := range []distance.Metric{distance.MetricL2, distance.MetricIP} {
		t.Run(metric.String(), func(t *testing.T) {
			ctx := context.Background()
			rng := rand.New(rand.NewSource(7))

			const (
				n     = 200
				dim   = 8
				nlist = 10
				k     = 15
			)
			vectors := randomVectors(rng, n, dim)
			src, seq := floatRows(t, vectors)

			ix, err := Build(ctx, floatField(dim), metric, BuildOptions{NList: nlist, Seed: 3}, seq)
			require.NoError(t, err)
			require.NoError(t, ix.Load(ctx, src))

			for trial := 0; trial < 10; trial++ {
				q := randomVectors(rng, 1, dim)[0]

				hits, err := ix.Search(ctx, q, k, nlist, nil)
				require.NoError(t, err)
				require.Len(t, hits, k)

				want := bruteForce(vectors, q, k, metric)
				got := make([]model.RowID, len(hits))
				for i, h := range hits {
					got[i] = h.RowID
				}
				assert.Equal(t, want, got)

				for i := 1; i < len(hits); i++ {
					assert.GreaterOrEqual(t, hits[i].Distance, hits[i-1].Distance)
				}
			}
		})
	}
}

func TestSearchWithFilter(t *testing.T) {
	ctx := context.Background()
	vectors := [][]float32{{0, 0}, {0.1, 0.1}, {0.2, 0.2}, {5, 5}}
	src, seq := floatRows(t, vectors)

	ix, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 2, Seed: 1}, seq)
	require.NoError(t, err)
	require.NoError(t, ix.Load(ctx, src))

	allow := func(id model.RowID) bool { return id%2 == 0 }
	hits, err := ix.Search(ctx, []float32{0, 0}, 10, 2, allow)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, model.RowID(0), hits[0].RowID)
	assert.Equal(t, model.RowID(2), hits[1].RowID)
}

func TestSearchEmptyIndex(t *testing.T) {
	ctx := context.Background()
	empty := func(yield func(model.RowID, model.Row) bool) {}

	ix, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 4}, iter.Seq2[model.RowID, model.Row](empty))
	require.NoError(t, err)
	require.NoError(t, ix.Load(ctx, mapSource{}))

	hits, err := ix.Search(ctx, []float32{0, 0}, 3, 4, nil)
	require.NoError(t, err)
	assert.Empty(t, hits)
}

func TestBinarySearch(t *testing.T) {
	ctx := context.Background()
	field := schema.FieldDef{Name: "vec", Type: schema.FieldTypeBinaryVector, Dim: 16}

	data := [][]byte{
		{0x00, 0x00},
		{0xFF, 0xFF},
		{0x0F, 0x00},
		{0xFF, 0x0F},
	}
	src := make(mapSource, len(data))
	for i, b := range data {
		src[model.RowID(i)] = model.Row{"vec": model.BinaryVector(b)}
	}
	seq := func(yield func(model.RowID, model.Row) bool) {
		for i := range data {
			if !yield(model.RowID(i), src[model.RowID(i)]) {
				return
			}
		}
	}

	ix, err := Build(ctx, field, distance.MetricHamming, BuildOptions{NList: 2, Seed: 1}, iter.Seq2[model.RowID, model.Row](seq))
	require.NoError(t, err)
	require.NoError(t, ix.Load(ctx, src))

	hits, err := ix.SearchBinary(ctx, []byte{0x00, 0x00}, 2, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, model.RowID(0), hits[0].RowID)
	assert.Equal(t, float32(0), hits[0].Distance)
	assert.Equal(t, model.RowID(2), hits[1].RowID)

	_, err = ix.Search(ctx, []float32{0}, 1, 1, nil)
	assert.Error(t, err)
}

func TestStateRoundTrip(t *testing.T) {
	ctx := context.Background()
	vectors := [][]float32{{0, 0}, {10, 10}, {0.5, 0.5}}
	src, seq := floatRows(t, vectors)

	ix, err := Build(ctx, floatField(2), distance.MetricL2, BuildOptions{NList: 2, Seed: 1}, seq)
	require.NoError(t, err)

	restored := FromState(ix.State())
	assert.Equal(t, ix.NList(), restored.NList())
	assert.Equal(t, ix.IndexedRows(), restored.IndexedRows())
	assert.False(t, restored.Loaded())

	require.NoError(t, restored.Load(ctx, src))
	hits, err := restored.Search(ctx, []float32{0, 0}, 1, 2, nil)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Equal(t, model.RowID(0), hits[0].RowID)
}
