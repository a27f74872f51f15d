package vecdb

import (
	"context"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/distance"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/schema"
)

func bookFields(dim int) []schema.FieldDef {
	return []schema.FieldDef{
		{Name: "id", Type: schema.FieldTypeInt64, IsPrimary: true},
		{Name: "year", Type: schema.FieldTypeInt64},
		{Name: "embedding", Type: schema.FieldTypeFloatVector, Dim: dim},
	}
}

func bookRows(rng *rand.Rand, n, dim int) []model.Row {
	rows := make([]model.Row, n)
	for i := range rows {
		vec := make([]float32, dim)
		for d := range vec {
			vec[d] = rng.Float32()
		}
		rows[i] = model.Row{
			"id":        model.Int64(int64(i)),
			"year":      model.Int64(int64(1950 + i%75)),
			"embedding": model.FloatVector(vec),
		}
	}
	return rows
}

func TestConnectEndpoints(t *testing.T) {
	t.Run("memory", func(t *testing.T) {
		client, err := Connect("mem://")
		require.NoError(t, err)
		defer client.Close()
	})

	t.Run("local dir", func(t *testing.T) {
		client, err := Connect(t.TempDir())
		require.NoError(t, err)
		defer client.Close()
	})

	t.Run("empty", func(t *testing.T) {
		_, err := Connect("")
		var ce *ConnectionError
		require.ErrorAs(t, err, &ce)
	})

	t.Run("network scheme", func(t *testing.T) {
		_, err := Connect("http://localhost:19530")
		var ce *ConnectionError
		require.ErrorAs(t, err, &ce)
		assert.Equal(t, "http://localhost:19530", ce.Endpoint)
	})
}

func TestCreateCollection(t *testing.T) {
	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(8), model.ConsistencyStrong))
	assert.True(t, client.HasCollection("books"))
	assert.Equal(t, []string{"books"}, client.ListCollections())

	err = client.CreateCollection("books", bookFields(8), model.ConsistencyStrong)
	assert.ErrorIs(t, err, ErrAlreadyExists)

	// Two primary keys is a schema error.
	var se *schema.Error
	err = client.CreateCollection("bad", []schema.FieldDef{
		{Name: "a", Type: schema.FieldTypeInt64, IsPrimary: true},
		{Name: "b", Type: schema.FieldTypeInt64, IsPrimary: true},
	}, model.ConsistencyStrong)
	assert.ErrorAs(t, err, &se)
}

func TestRoundTrip(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(42))

	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	const (
		n   = 3000
		dim = 8
	)
	require.NoError(t, client.CreateCollection("books", bookFields(dim), model.ConsistencyStrong))

	pks, err := client.Insert(ctx, "books", bookRows(rng, n, dim))
	require.NoError(t, err)
	require.Len(t, pks, n)

	count, err := client.NumEntities("books")
	require.NoError(t, err)
	assert.Equal(t, int64(n), count)

	require.NoError(t, client.CreateIndex(ctx, "books", "embedding", IndexParams{
		Metric: distance.MetricL2,
		NList:  64,
		Seed:   1,
	}))
	require.NoError(t, client.Load(ctx, "books"))

	queries := [][]float32{
		{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8},
		{0.8, 0.7, 0.6, 0.5, 0.4, 0.3, 0.2, 0.1},
	}
	results, err := client.Search(ctx, "books", queries, "embedding", SearchParams{NProbe: 8}, 3, "", []string{"year"})
	require.NoError(t, err)
	require.Len(t, results, 2)

	for _, res := range results {
		require.Len(t, res.Hits, 3)
		assert.False(t, res.Timeout)
		for i, hit := range res.Hits {
			if i > 0 {
				assert.GreaterOrEqual(t, hit.Distance, res.Hits[i-1].Distance)
			}
			assert.Contains(t, hit.Fields, "year")
		}
	}
}

func TestHybridSearchAndQuery(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(7))

	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	_, err = client.Insert(ctx, "books", bookRows(rng, 200, 4))
	require.NoError(t, err)

	require.NoError(t, client.CreateIndex(ctx, "books", "embedding", IndexParams{Metric: distance.MetricL2, NList: 8, Seed: 1}))
	require.NoError(t, client.Load(ctx, "books"))

	results, err := client.Search(ctx, "books", [][]float32{{0.5, 0.5, 0.5, 0.5}}, "embedding", SearchParams{NProbe: 8}, 10, "year >= 2020", []string{"year"})
	require.NoError(t, err)
	require.Len(t, results, 1)
	require.NotEmpty(t, results[0].Hits)
	assert.LessOrEqual(t, len(results[0].Hits), 10)
	for _, hit := range results[0].Hits {
		assert.GreaterOrEqual(t, hit.Fields["year"].I64, int64(2020))
	}

	// Query needs neither an index nor Load.
	rows, err := client.Query(ctx, "books", "id < 5", []string{"year"})
	require.NoError(t, err)
	assert.Len(t, rows, 5)
}

func TestDeleteFlow(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(3))

	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	_, err = client.Insert(ctx, "books", bookRows(rng, 20, 4))
	require.NoError(t, err)

	n, err := client.Delete(ctx, "books", "id in [2, 4, 6]")
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	rows, err := client.Query(ctx, "books", "id == 2", nil)
	require.NoError(t, err)
	assert.Empty(t, rows)

	n, err = client.Delete(ctx, "books", "id == 12345")
	require.NoError(t, err)
	assert.Equal(t, 0, n)

	count, err := client.NumEntities("books")
	require.NoError(t, err)
	assert.Equal(t, int64(17), count)
}

func TestDropCollection(t *testing.T) {
	ctx := context.Background()

	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	client.DropCollection("books")
	assert.False(t, client.HasCollection("books"))

	// Dropping again is a no-op.
	client.DropCollection("books")

	_, err = client.Insert(ctx, "books", bookRows(rand.New(rand.NewSource(1)), 1, 4))
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUnknownFieldMapsToNotFound(t *testing.T) {
	ctx := context.Background()

	client, err := Connect("mem://")
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))

	_, err = client.Query(ctx, "books", "", []string{"publisher"})
	assert.ErrorIs(t, err, ErrNotFound)

	err = client.CreateIndex(ctx, "books", "publisher", IndexParams{Metric: distance.MetricL2})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSnapshotSaveAndRestore(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(11))

	client, err := Connect(t.TempDir())
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	_, err = client.Insert(ctx, "books", bookRows(rng, 50, 4))
	require.NoError(t, err)
	require.NoError(t, client.CreateIndex(ctx, "books", "embedding", IndexParams{Metric: distance.MetricL2, NList: 4, Seed: 1}))

	require.NoError(t, client.SaveCollection(ctx, "books"))

	// A live collection of the same name blocks a restore.
	assert.ErrorIs(t, client.RestoreCollection(ctx, "books"), ErrAlreadyExists)

	client.DropCollection("books")
	require.NoError(t, client.RestoreCollection(ctx, "books"))

	count, err := client.NumEntities("books")
	require.NoError(t, err)
	assert.Equal(t, int64(50), count)

	require.NoError(t, client.Load(ctx, "books"))
	results, err := client.Search(ctx, "books", [][]float32{{0, 0, 0, 0}}, "embedding", SearchParams{NProbe: 4}, 3, "", nil)
	require.NoError(t, err)
	assert.Len(t, results[0].Hits, 3)

	// Restoring a snapshot that never existed fails with not found.
	assert.ErrorIs(t, client.RestoreCollection(ctx, "films"), ErrNotFound)
}

func TestMetricsCollector(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(5))
	metrics := &BasicMetricsCollector{}

	client, err := Connect("mem://", WithMetricsCollector(metrics))
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	_, err = client.Insert(ctx, "books", bookRows(rng, 10, 4))
	require.NoError(t, err)

	_, err = client.Delete(ctx, "books", "id == 0")
	require.NoError(t, err)

	_, err = client.Query(ctx, "books", "", nil)
	require.NoError(t, err)

	assert.Equal(t, int64(1), metrics.InsertCount.Load())
	assert.Equal(t, int64(10), metrics.InsertRows.Load())
	assert.Equal(t, int64(1), metrics.DeleteCount.Load())
	assert.Equal(t, int64(1), metrics.DeleteRows.Load())
	assert.Equal(t, int64(1), metrics.QueryCount.Load())
}

func TestSharedRegistry(t *testing.T) {
	registry := NewRegistry()

	a, err := Connect("mem://", WithRegistry(registry))
	require.NoError(t, err)
	b, err := Connect("mem://", WithRegistry(registry))
	require.NoError(t, err)

	require.NoError(t, a.CreateCollection("books", bookFields(4), model.ConsistencyStrong))
	assert.True(t, b.HasCollection("books"))
}
