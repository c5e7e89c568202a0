package vectorindex

import (
	"github.com/contextframe/contextframe"
)

// ProductQuantizer splits a D-dim vector into M sub-vectors and encodes
// each against its own learned codebook of 2^bits centroids (spec §4.5,
// default bits=8). Codes are stored as one byte per sub-vector, so bits
// > 8 is not supported by this encoding.
type ProductQuantizer struct {
	M         int
	Bits      int
	SubDim    int
	Codebooks [][][]float32 // [subvector][code][subDim]
	Metric    Metric
}

// TrainPQ learns an M-way product quantizer over vectors.
func TrainPQ(vectors [][]float32, m int, bits int, metric Metric, maxIters int) (*ProductQuantizer, error) {
	if len(vectors) == 0 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "cannot train a product quantizer on an empty sample")
	}
	dim := len(vectors[0])
	if bits <= 0 || bits > 8 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "pq bits must be in (0,8], got %d", bits)
	}
	if dim%m != 0 {
		return nil, contextframe.NewError(contextframe.ValidationErr, "embed_dim %d is not divisible by m=%d", dim, m)
	}
	subDim := dim / m
	codesPerSub := 1 << bits

	pq := &ProductQuantizer{M: m, Bits: bits, SubDim: subDim, Metric: metric, Codebooks: make([][][]float32, m)}
	for sub := 0; sub < m; sub++ {
		subVectors := make([][]float32, len(vectors))
		for i, v := range vectors {
			subVectors[i] = v[sub*subDim : (sub+1)*subDim]
		}
		k := codesPerSub
		if k > len(subVectors) {
			k = len(subVectors)
		}
		centroids, err := TrainCentroids(subVectors, k, metric, maxIters)
		if err != nil {
			return nil, err
		}
		pq.Codebooks[sub] = centroids
	}
	return pq, nil
}

// Encode returns the PQ code (one byte per sub-vector) for v.
func (pq *ProductQuantizer) Encode(v []float32) []byte {
	code := make([]byte, pq.M)
	for sub := 0; sub < pq.M; sub++ {
		subVec := v[sub*pq.SubDim : (sub+1)*pq.SubDim]
		code[sub] = byte(AssignPartition(subVec, pq.Codebooks[sub], pq.Metric))
	}
	return code
}

// ApproxDistance computes the asymmetric distance between a raw query
// vector and a PQ-encoded database vector (query sub-vector against the
// codebook centroid each code selects), without reconstructing the full
// database vector.
func (pq *ProductQuantizer) ApproxDistance(query []float32, code []byte) float32 {
	var sum float32
	for sub := 0; sub < pq.M; sub++ {
		subQuery := query[sub*pq.SubDim : (sub+1)*pq.SubDim]
		centroid := pq.Codebooks[sub][code[sub]]
		d := distance(subQuery, centroid, L2)
		sum += d * d
	}
	switch pq.Metric {
	case Cosine, Dot:
		// approximate: treat accumulated sub-distances as a similarity
		// proxy; exact re-ranking (refine_factor) corrects this.
		return -sum
	default:
		return sum
	}
}
