package vectorindex

import (
	"math/rand"

	"gonum.org/v1/gonum/floats"

	"github.com/contextframe/contextframe"
)

// SampleSize returns the recommended training-sample size for k
// centroids (spec §4.5: "sample size ≥ max(256·k, 50·k); cap at some
// memory budget").
func SampleSize(k, cap int) int {
	n := 256 * k
	if alt := 50 * k; alt > n {
		n = alt
	}
	if cap > 0 && n > cap {
		n = cap
	}
	return n
}

// TrainCentroids runs Lloyd's k-means to convergence (or maxIters) over
// vectors, returning k centroids under metric. Centroid means are
// accumulated in float64 via gonum/floats for numerical stability, then
// rounded back to float32 (the engine's on-disk vector precision).
func TrainCentroids(vectors [][]float32, k int, metric Metric, maxIters int) ([][]float32, error) {
	if len(vectors) == 0 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "cannot train centroids on an empty sample")
	}
	if k <= 0 || k > len(vectors) {
		return nil, contextframe.NewError(contextframe.ValidationErr, "k=%d is invalid for a sample of %d vectors", k, len(vectors))
	}
	dim := len(vectors[0])

	// k-means++ seeding for faster, more stable convergence than uniform
	// random initialization.
	centroids := seedPlusPlus(vectors, k, metric)

	assignments := make([]int, len(vectors))
	for iter := 0; iter < maxIters; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestDist := 0, float32(0)
			for c, centroid := range centroids {
				d := distance(v, centroid, metric)
				if c == 0 || d < bestDist {
					best, bestDist = c, d
				}
			}
			if assignments[i] != best {
				assignments[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, dim)
		}
		for i, v := range vectors {
			c := assignments[i]
			for d := 0; d < dim; d++ {
				sums[c][d] += float64(v[d])
			}
			counts[c]++
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue // keep previous centroid; empty cluster
			}
			floats.Scale(1/float64(counts[c]), sums[c])
			newCentroid := make([]float32, dim)
			for d := 0; d < dim; d++ {
				newCentroid[d] = float32(sums[c][d])
			}
			if metric == Cosine {
				newCentroid = normalize(newCentroid)
			}
			centroids[c] = newCentroid
		}

		if !changed {
			break
		}
	}
	return centroids, nil
}

func seedPlusPlus(vectors [][]float32, k int, metric Metric) [][]float32 {
	centroids := make([][]float32, 0, k)
	first := vectors[rand.Intn(len(vectors))]
	centroids = append(centroids, append([]float32(nil), first...))

	for len(centroids) < k {
		distSq := make([]float64, len(vectors))
		var total float64
		for i, v := range vectors {
			best := distance(v, centroids[0], metric)
			for _, c := range centroids[1:] {
				if d := distance(v, c, metric); d < best {
					best = d
				}
			}
			distSq[i] = float64(best) * float64(best)
			total += distSq[i]
		}
		if total == 0 {
			// all remaining points coincide with an existing centroid
			centroids = append(centroids, append([]float32(nil), vectors[rand.Intn(len(vectors))]...))
			continue
		}
		target := rand.Float64() * total
		var cum float64
		chosen := len(vectors) - 1
		for i, d := range distSq {
			cum += d
			if cum >= target {
				chosen = i
				break
			}
		}
		centroids = append(centroids, append([]float32(nil), vectors[chosen]...))
	}
	return centroids
}

// AssignPartition returns the index of the centroid nearest v.
func AssignPartition(v []float32, centroids [][]float32, metric Metric) int {
	best, bestDist := 0, float32(0)
	for i, c := range centroids {
		d := distance(v, c, metric)
		if i == 0 || d < bestDist {
			best, bestDist = i, d
		}
	}
	return best
}
