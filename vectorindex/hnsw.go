package vectorindex

import (
	"math/rand"
)

// hnswGraph is a simplified multi-layer navigable small-world graph
// (spec §4.5's ivf_hnsw family): each partition gets its own graph over
// the entries assigned to it, built with the classic insert-by-greedy-
// search-then-connect procedure. It trades the full HNSW feature set
// (level-aware pruning heuristics, deletion, ef-search decay) for a
// smaller implementation that preserves the two properties the spec
// actually requires: logarithmic-ish search over large partitions, and
// a tunable ef knob trading recall for latency.
type hnswGraph struct {
	m          int // max neighbors per node per layer
	efConstruct int
	maxLevel   int
	metric     Metric

	nodes     []hnswNode
	entryPoint int
}

type hnswNode struct {
	entry     entry
	level     int
	neighbors [][]int // neighbors[layer] = node indices
}

func newHNSWGraph(m, efConstruct, maxLevel int, metric Metric) *hnswGraph {
	return &hnswGraph{m: m, efConstruct: efConstruct, maxLevel: maxLevel, metric: metric, entryPoint: -1}
}

func (g *hnswGraph) vectorOf(nodeIdx int) []float32 {
	return g.nodes[nodeIdx].entry.vector
}

func (g *hnswGraph) randomLevel() int {
	level := 0
	for rand.Float64() < 0.5 && level < g.maxLevel {
		level++
	}
	return level
}

// insert adds e to the graph. e.vector must be non-nil (HNSW variants
// store raw float32 vectors, with PQ codes alongside for ivf_hnsw_pq,
// never PQ-only codes, since the graph's distance comparisons need full
// vectors).
func (g *hnswGraph) insert(e entry) {
	level := g.randomLevel()
	idx := len(g.nodes)
	node := hnswNode{entry: e, level: level, neighbors: make([][]int, level+1)}
	g.nodes = append(g.nodes, node)

	if g.entryPoint == -1 {
		g.entryPoint = idx
		return
	}

	if e.vector == nil {
		return
	}

	cur := g.entryPoint
	curLevel := g.nodes[g.entryPoint].level
	for l := curLevel; l > level; l-- {
		cur = g.greedyStep(e.vector, cur, l)
	}

	for l := min(level, curLevel); l >= 0; l-- {
		candidates := g.searchLayer(e.vector, cur, g.efConstruct, l)
		neighbors := selectNeighbors(candidates, g.m)
		g.nodes[idx].neighbors[l] = neighbors
		for _, n := range neighbors {
			g.connect(n, idx, l)
		}
		if len(candidates) > 0 {
			cur = candidates[0].node
		}
	}

	if level > curLevel {
		g.entryPoint = idx
	}
}

func (g *hnswGraph) connect(nodeIdx, newIdx, layer int) {
	if layer >= len(g.nodes[nodeIdx].neighbors) {
		grown := make([][]int, layer+1)
		copy(grown, g.nodes[nodeIdx].neighbors)
		g.nodes[nodeIdx].neighbors = grown
	}
	g.nodes[nodeIdx].neighbors[layer] = append(g.nodes[nodeIdx].neighbors[layer], newIdx)
	if len(g.nodes[nodeIdx].neighbors[layer]) > g.m*2 {
		trimmed := selectNeighbors(g.scoreNeighbors(nodeIdx, layer), g.m)
		g.nodes[nodeIdx].neighbors[layer] = trimmed
	}
}

func (g *hnswGraph) scoreNeighbors(nodeIdx, layer int) []candidateHit {
	v := g.vectorOf(nodeIdx)
	out := make([]candidateHit, 0, len(g.nodes[nodeIdx].neighbors[layer]))
	for _, n := range g.nodes[nodeIdx].neighbors[layer] {
		out = append(out, candidateHit{node: n, Distance: distance(v, g.vectorOf(n), g.metric)})
	}
	return out
}

func (g *hnswGraph) greedyStep(query []float32, from, layer int) int {
	best := from
	bestDist := distance(query, g.vectorOf(from), g.metric)
	improved := true
	for improved {
		improved = false
		if layer >= len(g.nodes[best].neighbors) {
			break
		}
		for _, n := range g.nodes[best].neighbors[layer] {
			d := distance(query, g.vectorOf(n), g.metric)
			if d < bestDist {
				best, bestDist = n, d
				improved = true
			}
		}
	}
	return best
}

type candidateHit struct {
	node     int
	Distance float32
}

// searchLayer performs a bounded greedy best-first search over one
// layer starting at entry, returning up to ef candidates sorted
// ascending by distance.
func (g *hnswGraph) searchLayer(query []float32, entryNode, ef, layer int) []candidateHit {
	visited := map[int]bool{entryNode: true}
	candidates := []candidateHit{{node: entryNode, Distance: distance(query, g.vectorOf(entryNode), g.metric)}}
	result := append([]candidateHit(nil), candidates...)

	for len(candidates) > 0 {
		cur := popClosest(&candidates)
		if len(result) > 0 && cur.Distance > farthest(result).Distance && len(result) >= ef {
			break
		}
		if layer >= len(g.nodes[cur.node].neighbors) {
			continue
		}
		for _, n := range g.nodes[cur.node].neighbors[layer] {
			if visited[n] {
				continue
			}
			visited[n] = true
			d := distance(query, g.vectorOf(n), g.metric)
			if len(result) < ef || d < farthest(result).Distance {
				hit := candidateHit{node: n, Distance: d}
				candidates = append(candidates, hit)
				result = append(result, hit)
				if len(result) > ef {
					result = trimFarthest(result, ef)
				}
			}
		}
	}
	sortCandidates(result)
	return result
}

// search returns up to k SearchResults for query by greedy-descending
// from the entry point through upper layers then best-first searching
// the base layer with the given ef.
func (g *hnswGraph) search(query []float32, k, ef int) []SearchResult {
	if g.entryPoint == -1 {
		return nil
	}
	cur := g.entryPoint
	for l := g.nodes[g.entryPoint].level; l > 0; l-- {
		cur = g.greedyStep(query, cur, l)
	}
	hits := g.searchLayer(query, cur, ef, 0)
	out := make([]SearchResult, 0, len(hits))
	for _, h := range hits {
		out = append(out, SearchResult{RowAddr: g.nodes[h.node].entry.rowAddr, Distance: h.Distance})
	}
	sortResults(out)
	if len(out) > k {
		out = out[:k]
	}
	return out
}

func selectNeighbors(candidates []candidateHit, m int) []int {
	sortCandidates(candidates)
	if len(candidates) > m {
		candidates = candidates[:m]
	}
	out := make([]int, len(candidates))
	for i, c := range candidates {
		out[i] = c.node
	}
	return out
}

func sortCandidates(c []candidateHit) {
	for i := 1; i < len(c); i++ {
		for j := i; j > 0 && c[j].Distance < c[j-1].Distance; j-- {
			c[j], c[j-1] = c[j-1], c[j]
		}
	}
}

func popClosest(c *[]candidateHit) candidateHit {
	sortCandidates(*c)
	hit := (*c)[0]
	*c = (*c)[1:]
	return hit
}

func farthest(c []candidateHit) candidateHit {
	worst := c[0]
	for _, x := range c[1:] {
		if x.Distance > worst.Distance {
			worst = x
		}
	}
	return worst
}

func trimFarthest(c []candidateHit, n int) []candidateHit {
	sortCandidates(c)
	if len(c) > n {
		c = c[:n]
	}
	return c
}

