// Package kmeans implements Lloyd's algorithm over flattened vector
// arrays. It backs IVF cluster training.
//
// Centroids and inputs are flat []float32 slices of n*dim values; cluster
// assignments are plain index slices. This keeps builds deterministic and
// restartable given the same seed.
package kmeans

import (
	"context"
	"math"
	"math/rand"
	"sort"

	"github.com/hupe1980/vecdb/distance"
)

// Train trains k centroids from the given vectors using Lloyd's algorithm.
// It returns the flattened centroids (k * dim) and the final assignment of
// each input vector to a centroid.
//
// Training stops on assignment stability or after maxIter iterations.
// The context is checked between iterations, so a running build can be
// cancelled without leaving partial state behind.
//
// If there are fewer vectors than k, every vector becomes its own centroid
// and k is effectively reduced.
func Train(ctx context.Context, vectors []float32, dim, k int, metric distance.Metric, maxIter int, seed int64) ([]float32, []int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, nil, err
	}

	n := len(vectors) / dim
	if n == 0 {
		return nil, nil, nil
	}
	if k > n {
		k = n
	}

	rng := rand.New(rand.NewSource(seed))

	centroids := make([]float32, k*dim)
	perm := rng.Perm(n)
	for i := 0; i < k; i++ {
		copy(centroids[i*dim:(i+1)*dim], vectors[perm[i]*dim:(perm[i]+1)*dim])
	}

	assignments := make([]int, n)
	counts := make([]int, k)
	sums := make([]float32, k*dim)

	for iter := 0; iter < maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			return nil, nil, err
		}

		changed := false
		for i := 0; i < n; i++ {
			vec := vectors[i*dim : (i+1)*dim]
			best := nearest(vec, centroids, dim, distFunc)
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}
		if !changed && iter > 0 {
			break
		}

		for i := range sums {
			sums[i] = 0
		}
		for i := range counts {
			counts[i] = 0
		}
		for i := 0; i < n; i++ {
			c := assignments[i]
			vec := vectors[i*dim : (i+1)*dim]
			for d := 0; d < dim; d++ {
				sums[c*dim+d] += vec[d]
			}
			counts[c]++
		}

		for j := 0; j < k; j++ {
			if counts[j] > 0 {
				scale := 1 / float32(counts[j])
				for d := 0; d < dim; d++ {
					centroids[j*dim+d] = sums[j*dim+d] * scale
				}
			} else {
				// Re-seed an empty cluster from a random point.
				idx := rng.Intn(n)
				copy(centroids[j*dim:(j+1)*dim], vectors[idx*dim:(idx+1)*dim])
			}
		}
	}

	// Final assignment against the last centroid update.
	for i := 0; i < n; i++ {
		assignments[i] = nearest(vectors[i*dim:(i+1)*dim], centroids, dim, distFunc)
	}

	return centroids, assignments, nil
}

func nearest(vec, centroids []float32, dim int, distFunc distance.Func) int {
	k := len(centroids) / dim
	best := 0
	minDist := float32(math.MaxFloat32)
	for j := 0; j < k; j++ {
		d := distFunc(vec, centroids[j*dim:(j+1)*dim])
		if d < minDist {
			minDist = d
			best = j
		}
	}
	return best
}

// Assign finds the closest centroid for a single vector.
func Assign(vec, centroids []float32, dim int, metric distance.Metric) (int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return -1, err
	}
	if len(centroids) == 0 {
		return -1, nil
	}
	return nearest(vec, centroids, dim, distFunc), nil
}

type centroidDist struct {
	id   int
	dist float32
}

// NearestCentroids returns the indices of the n closest centroids to the
// query vector, closest first.
func NearestCentroids(query, centroids []float32, dim, n int, metric distance.Metric) ([]int, error) {
	distFunc, err := distance.Provider(metric)
	if err != nil {
		return nil, err
	}

	k := len(centroids) / dim
	if n > k {
		n = k
	}

	dists := make([]centroidDist, k)
	for i := 0; i < k; i++ {
		dists[i] = centroidDist{id: i, dist: distFunc(query, centroids[i*dim:(i+1)*dim])}
	}
	sort.Slice(dists, func(i, j int) bool {
		if dists[i].dist != dists[j].dist {
			return dists[i].dist < dists[j].dist
		}
		return dists[i].id < dists[j].id
	})

	result := make([]int, n)
	for i := 0; i < n; i++ {
		result[i] = dists[i].id
	}
	return result, nil
}
