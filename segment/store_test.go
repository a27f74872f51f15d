package segment

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/filter"
	"github.com/hupe1980/vecdb/model"
	"github.com/hupe1980/vecdb/schema"
)

func testSchema(t *testing.T) *schema.Schema {
	t.Helper()
	s, err := schema.New(
		schema.FieldDef{Name: "id", Type: schema.FieldTypeInt64, IsPrimary: true},
		schema.FieldDef{Name: "score", Type: schema.FieldTypeDouble},
		schema.FieldDef{Name: "embedding", Type: schema.FieldTypeFloatVector, Dim: 2},
	)
	require.NoError(t, err)
	return s
}

func testRow(id int64) model.Row {
	return model.Row{
		"id":        model.Int64(id),
		"score":     model.Double(float64(id) / 10),
		"embedding": model.FloatVector([]float32{float32(id), float32(id)}),
	}
}

func testRows(n int) []model.Row {
	rows := make([]model.Row, n)
	for i := range rows {
		rows[i] = testRow(int64(i))
	}
	return rows
}

func TestInsertAndScan(t *testing.T) {
	st := NewStore(testSchema(t))

	pks, err := st.Insert(testRows(10))
	require.NoError(t, err)
	require.Len(t, pks, 10)
	assert.Equal(t, model.IntKey(0), pks[0])
	assert.Equal(t, model.IntKey(9), pks[9])
	assert.Equal(t, int64(10), st.NumEntities())

	var got []int64
	for id, row := range st.Scan(nil) {
		got = append(got, row["id"].I64)
		assert.Equal(t, model.RowID(len(got)-1), id)
	}
	assert.Equal(t, []int64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9}, got)
}

func TestInsertStopsAtFirstBadRow(t *testing.T) {
	st := NewStore(testSchema(t))

	rows := testRows(3)
	rows = append(rows, model.Row{"id": model.Int64(3)}) // missing fields
	rows = append(rows, testRow(4))

	pks, err := st.Insert(rows)
	require.Error(t, err)

	var ve *schema.ValidationError
	assert.ErrorAs(t, err, &ve)

	// Rows before the bad one stay applied.
	assert.Len(t, pks, 3)
	assert.Equal(t, int64(3), st.NumEntities())
}

func TestScanWithPredicate(t *testing.T) {
	st := NewStore(testSchema(t))
	_, err := st.Insert(testRows(10))
	require.NoError(t, err)

	pred, err := filter.Compile("id >= 7", st.Schema())
	require.NoError(t, err)

	var got []int64
	for _, row := range st.Scan(pred) {
		got = append(got, row["id"].I64)
	}
	assert.Equal(t, []int64{7, 8, 9}, got)
}

func TestScanRestartable(t *testing.T) {
	st := NewStore(testSchema(t))
	_, err := st.Insert(testRows(5))
	require.NoError(t, err)

	seq := st.Scan(nil)
	first := 0
	for range seq {
		first++
		if first == 2 {
			break
		}
	}
	second := 0
	for range seq {
		second++
	}
	assert.Equal(t, 5, second)
}

func TestSealThreshold(t *testing.T) {
	st := NewStore(testSchema(t), func(o *Options) { o.SealThreshold = 4 })

	_, err := st.Insert(testRows(10))
	require.NoError(t, err)

	segs := st.Segments()
	require.Len(t, segs, 3)
	assert.True(t, segs[0].Sealed())
	assert.True(t, segs[1].Sealed())
	assert.False(t, segs[2].Sealed())
	assert.Equal(t, 4, segs[0].Len())
	assert.Equal(t, 2, segs[2].Len())

	sealed := st.SealedSegments()
	assert.Len(t, sealed, 2)
}

func TestFlush(t *testing.T) {
	st := NewStore(testSchema(t))
	_, err := st.Insert(testRows(3))
	require.NoError(t, err)

	require.Empty(t, st.SealedSegments())
	st.Flush()
	assert.Len(t, st.SealedSegments(), 1)

	// Flushing with no growing segment is a no-op.
	st.Flush()
	assert.Len(t, st.Segments(), 1)
}

func TestDeleteWhere(t *testing.T) {
	st := NewStore(testSchema(t), func(o *Options) { o.SealThreshold = 4 })
	_, err := st.Insert(testRows(10))
	require.NoError(t, err)

	pred, err := filter.Compile("id in [2, 5, 8]", st.Schema())
	require.NoError(t, err)

	assert.Equal(t, 3, st.DeleteWhere(pred))
	assert.Equal(t, int64(7), st.NumEntities())

	// Deleting the same rows again is a no-op.
	assert.Equal(t, 0, st.DeleteWhere(pred))
	assert.Equal(t, int64(7), st.NumEntities())

	// Deleting a non-existent key changes nothing.
	missing, err := filter.Compile("id == 999", st.Schema())
	require.NoError(t, err)
	assert.Equal(t, 0, st.DeleteWhere(missing))

	var got []int64
	for _, row := range st.Scan(nil) {
		got = append(got, row["id"].I64)
	}
	assert.Equal(t, []int64{0, 1, 3, 4, 6, 7, 9}, got)
}

func TestNumEntitiesAfterInsertsAndDeletes(t *testing.T) {
	st := NewStore(testSchema(t), func(o *Options) { o.SealThreshold = 16 })

	const n = 100
	_, err := st.Insert(testRows(n))
	require.NoError(t, err)

	const d = 37
	expr := "id in ["
	for i := 0; i < d; i++ {
		if i > 0 {
			expr += ", "
		}
		expr += fmt.Sprintf("%d", i*2)
	}
	expr += "]"

	pred, err := filter.Compile(expr, st.Schema())
	require.NoError(t, err)
	require.Equal(t, d, st.DeleteWhere(pred))

	assert.Equal(t, int64(n-d), st.NumEntities())
}

func TestGet(t *testing.T) {
	st := NewStore(testSchema(t), func(o *Options) { o.SealThreshold = 4 })
	_, err := st.Insert(testRows(6))
	require.NoError(t, err)

	row, ok := st.Get(5)
	require.True(t, ok)
	assert.Equal(t, int64(5), row["id"].I64)

	_, ok = st.Get(42)
	assert.False(t, ok)

	require.Equal(t, 1, st.Delete([]model.RowID{5}))
	_, ok = st.Get(5)
	assert.False(t, ok)
}

func TestDeleteByRowIDs(t *testing.T) {
	st := NewStore(testSchema(t))
	_, err := st.Insert(testRows(5))
	require.NoError(t, err)

	assert.Equal(t, 2, st.Delete([]model.RowID{1, 3}))
	assert.Equal(t, 0, st.Delete([]model.RowID{1, 99}))
	assert.Equal(t, int64(3), st.NumEntities())
}

func TestRestore(t *testing.T) {
	st := NewStore(testSchema(t))
	require.NoError(t, st.Restore(testRows(4), []model.RowID{2}))

	assert.Equal(t, int64(3), st.NumEntities())
	_, ok := st.Get(2)
	assert.False(t, ok)
}
