package queue

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/vecdb/model"
)

func TestTopKOrdering(t *testing.T) {
	tk := NewTopK(3)
	for _, it := range []Item{
		{RowID: 1, Distance: 5},
		{RowID: 2, Distance: 1},
		{RowID: 3, Distance: 4},
		{RowID: 4, Distance: 2},
		{RowID: 5, Distance: 3},
	} {
		tk.Push(it)
	}

	got := tk.Drain()
	require.Len(t, got, 3)
	assert.Equal(t, []Item{
		{RowID: 2, Distance: 1},
		{RowID: 4, Distance: 2},
		{RowID: 5, Distance: 3},
	}, got)
}

func TestTopKTieBreakByInsertionOrder(t *testing.T) {
	tk := NewTopK(2)
	tk.Push(Item{RowID: 9, Distance: 1})
	tk.Push(Item{RowID: 3, Distance: 1})
	tk.Push(Item{RowID: 7, Distance: 1})

	got := tk.Drain()
	require.Len(t, got, 2)
	// Equal distances keep the earliest-inserted rows (lowest ids).
	assert.Equal(t, Item{RowID: 3, Distance: 1}, got[0])
	assert.Equal(t, Item{RowID: 7, Distance: 1}, got[1])
}

func TestTopKFewerThanK(t *testing.T) {
	tk := NewTopK(10)
	tk.Push(Item{RowID: 1, Distance: 2})
	tk.Push(Item{RowID: 2, Distance: 1})

	got := tk.Drain()
	require.Len(t, got, 2)
	assert.Equal(t, Item{RowID: 2, Distance: 1}, got[0])
}

func TestTopKZero(t *testing.T) {
	tk := NewTopK(0)
	tk.Push(Item{RowID: 1, Distance: 1})
	assert.Zero(t, tk.Len())
	assert.Empty(t, tk.Drain())
}

func TestTopKMatchesSort(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	items := make([]Item, 500)
	tk := NewTopK(25)
	for i := range items {
		items[i] = Item{RowID: model.RowID(i), Distance: rng.Float32()}
		tk.Push(items[i])
	}

	sort.Slice(items, func(i, j int) bool {
		if items[i].Distance != items[j].Distance {
			return items[i].Distance < items[j].Distance
		}
		return items[i].RowID < items[j].RowID
	})

	assert.Equal(t, items[:25], tk.Drain())
}
