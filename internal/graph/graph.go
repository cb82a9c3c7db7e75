// Package graph implements the named-vertex weighted graph used to route a
// conversion between two assets through whatever markets and aliases connect
// them, plus the ordered snapshot index that a pair converter builds over
// time.
package graph

import (
	"container/heap"
	"time"

	"github.com/shopspring/decimal"
)

// aliasEdge is a fixed-rate conversion edge, e.g. a wrapped-token pair that
// trades 1:1 or at a hardcoded ratio rather than through market data.
type aliasEdge struct {
	rate     decimal.Decimal
	asOf     time.Time
	duration time.Duration
}

// MappedGraph is a directed graph indexed by asset name. Edge weights are an
// abstract, additive routing cost (lower is preferred): traversing an edge
// adds its weight to the path cost, it is not a conversion multiplier.
type MappedGraph struct {
	vertices        map[string]struct{}
	edges           map[string]map[string]decimal.Decimal
	aliases         map[string]map[string]aliasEdge
	fiats           map[string]struct{}
	optimizedAssets map[string]struct{}
}

// NewMappedGraph returns an empty graph.
func NewMappedGraph() *MappedGraph {
	return &MappedGraph{
		vertices:        make(map[string]struct{}),
		edges:           make(map[string]map[string]decimal.Decimal),
		aliases:         make(map[string]map[string]aliasEdge),
		fiats:           make(map[string]struct{}),
		optimizedAssets: make(map[string]struct{}),
	}
}

// GetOrSetVertex registers name as a vertex if it isn't already present.
func (g *MappedGraph) GetOrSetVertex(name string) {
	if _, ok := g.vertices[name]; ok {
		return
	}
	g.vertices[name] = struct{}{}
	g.edges[name] = make(map[string]decimal.Decimal)
}

// HasVertex reports whether name is a known vertex.
func (g *MappedGraph) HasVertex(name string) bool {
	_, ok := g.vertices[name]
	return ok
}

// AddNeighbor adds a directed market edge from -> to with the given routing
// weight. Both endpoints are registered as vertices if needed. The edge is
// added only if absent: re-adding an existing (from, to) pair never
// overwrites its weight. optimized marks from as having real volume-derived
// (or otherwise never-needs-optimizing) weight data, regardless of whether
// the edge itself was new.
func (g *MappedGraph) AddNeighbor(from, to string, weight decimal.Decimal, optimized bool) {
	g.GetOrSetVertex(from)
	g.GetOrSetVertex(to)
	if _, ok := g.edges[from][to]; !ok {
		g.edges[from][to] = weight
	}
	if optimized {
		g.optimizedAssets[from] = struct{}{}
	}
}

// HasEdge reports whether a direct market edge from -> to exists.
func (g *MappedGraph) HasEdge(from, to string) bool {
	neighbors, ok := g.edges[from]
	if !ok {
		return false
	}
	_, ok = neighbors[to]
	return ok
}

// AddAlias registers a fixed-rate alias edge from -> to, e.g. a wrapped token
// that always converts at a constant ratio rather than through market data.
// Aliases are always present as zero-weight edges marked optimized, since
// they never need volume-based optimization.
func (g *MappedGraph) AddAlias(from, to string, rate decimal.Decimal, asOf time.Time, duration time.Duration) {
	g.GetOrSetVertex(from)
	g.GetOrSetVertex(to)
	if g.aliases[from] == nil {
		g.aliases[from] = make(map[string]aliasEdge)
	}
	g.aliases[from][to] = aliasEdge{rate: rate, asOf: asOf, duration: duration}
	g.AddNeighbor(from, to, decimal.Zero, true)
}

// IsAlias reports whether from -> to is an alias edge.
func (g *MappedGraph) IsAlias(from, to string) bool {
	neighbors, ok := g.aliases[from]
	if !ok {
		return false
	}
	_, ok = neighbors[to]
	return ok
}

// AliasBar returns the rate, as-of time and duration stored on the from -> to
// alias edge, from which a constant-price bar can be built. It returns false
// if no such alias exists.
func (g *MappedGraph) AliasBar(from, to string) (decimal.Decimal, time.Time, time.Duration, bool) {
	neighbors, ok := g.aliases[from]
	if !ok {
		return decimal.Decimal{}, time.Time{}, 0, false
	}
	edge, ok := neighbors[to]
	if !ok {
		return decimal.Decimal{}, time.Time{}, 0, false
	}
	return edge.rate, edge.asOf, edge.duration, true
}

// AddFiatNeighbor adds a market edge and marks both endpoints as fiat
// vertices, so routing logic can prioritize or restrict fiat-only hops.
func (g *MappedGraph) AddFiatNeighbor(from, to string, weight decimal.Decimal, optimized bool) {
	g.AddNeighbor(from, to, weight, optimized)
	g.fiats[from] = struct{}{}
	g.fiats[to] = struct{}{}
}

// IsFiat reports whether name was registered as a fiat vertex.
func (g *MappedGraph) IsFiat(name string) bool {
	_, ok := g.fiats[name]
	return ok
}

// IsOptimized reports whether asset's outgoing weights were last set from
// real exchange volume data (or never need it, like fiat and alias
// vertices), as opposed to the seed heuristic weights an unoptimized graph
// starts with.
func (g *MappedGraph) IsOptimized(asset string) bool {
	_, ok := g.optimizedAssets[asset]
	return ok
}

// ChildrenOf returns the names of every vertex directly reachable from name
// via a market edge.
func (g *MappedGraph) ChildrenOf(name string) []string {
	neighbors, ok := g.edges[name]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(neighbors))
	for to := range neighbors {
		out = append(out, to)
	}
	return out
}

// dijkstraItem is a priority-queue entry: a candidate vertex with its best
// known cumulative path cost so far.
type dijkstraItem struct {
	name  string
	dist  decimal.Decimal
	index int
}

type dijkstraQueue []*dijkstraItem

func (q dijkstraQueue) Len() int { return len(q) }
func (q dijkstraQueue) Less(i, j int) bool {
	return q[i].dist.LessThan(q[j].dist)
}
func (q dijkstraQueue) Swap(i, j int) {
	q[i], q[j] = q[j], q[i]
	q[i].index = i
	q[j].index = j
}
func (q *dijkstraQueue) Push(x any) {
	item := x.(*dijkstraItem)
	item.index = len(*q)
	*q = append(*q, item)
}
func (q *dijkstraQueue) Pop() any {
	old := *q
	n := len(old)
	item := old[n-1]
	old[n-1] = nil
	*q = old[:n-1]
	return item
}

// edgeWeight returns the routing cost of from -> to, treating any pair not
// present in g.edges (should not happen for an edge allNeighbors reported)
// as zero cost.
func (g *MappedGraph) edgeWeight(from, to string) decimal.Decimal {
	if w, ok := g.edges[from][to]; ok {
		return w
	}
	return decimal.Zero
}

// Dijkstra finds the minimum-cost path from source to target over both
// market and alias edges, where cost is the sum of edge weights traversed.
// It returns the ordered list of vertex names from source to target
// inclusive, or false if no path exists.
func (g *MappedGraph) Dijkstra(source, target string) ([]string, bool) {
	if !g.HasVertex(source) || !g.HasVertex(target) {
		return nil, false
	}
	if source == target {
		return []string{source}, true
	}

	dist := map[string]decimal.Decimal{source: decimal.Zero}
	prev := map[string]string{}
	visited := map[string]bool{}

	pq := &dijkstraQueue{{name: source, dist: decimal.Zero}}
	heap.Init(pq)

	for pq.Len() > 0 {
		current := heap.Pop(pq).(*dijkstraItem)
		if visited[current.name] {
			continue
		}
		visited[current.name] = true

		if current.name == target {
			break
		}

		for _, neighbor := range g.allNeighbors(current.name) {
			if visited[neighbor] {
				continue
			}
			newDist := current.dist.Add(g.edgeWeight(current.name, neighbor))
			if existing, ok := dist[neighbor]; !ok || newDist.LessThan(existing) {
				dist[neighbor] = newDist
				prev[neighbor] = current.name
				heap.Push(pq, &dijkstraItem{name: neighbor, dist: newDist})
			}
		}
	}

	if !visited[target] {
		return nil, false
	}

	path := []string{target}
	for path[0] != source {
		p, ok := prev[path[0]]
		if !ok {
			return nil, false
		}
		path = append([]string{p}, path...)
	}
	return path, true
}

func (g *MappedGraph) allNeighbors(name string) []string {
	seen := map[string]struct{}{}
	var out []string
	for to := range g.edges[name] {
		if _, ok := seen[to]; !ok {
			seen[to] = struct{}{}
			out = append(out, to)
		}
	}
	for to := range g.aliases[name] {
		if _, ok := seen[to]; !ok {
			seen[to] = struct{}{}
			out = append(out, to)
		}
	}
	return out
}

// addClonedEdge applies weight/optimized to the from -> to edge of out,
// routing negative weights (the "market not yet live" sentinel) through
// AddFiatNeighbor so both endpoints stay reachable as fiat vertices instead
// of being dropped outright. It also carries forward fiat membership from g
// for edges that survive with a non-negative weight.
func addClonedEdge(out, g *MappedGraph, from, to string, weight decimal.Decimal, optimized bool) {
	if weight.IsNegative() {
		out.AddFiatNeighbor(from, to, weight, optimized)
		return
	}
	out.AddNeighbor(from, to, weight, optimized)
	if g.IsFiat(from) || g.IsFiat(to) {
		out.fiats[from] = struct{}{}
		out.fiats[to] = struct{}{}
	}
}

// CloneWithOptimization returns a new graph with the current optimization
// round's weights applied. For every existing edge (u, v) in g: if u appears
// in weights, its neighbors are overridden from the table (falling back to
// the original weight for any neighbor weights omits) and u is marked
// optimized; otherwise the edge is carried forward unchanged. Any (u, v)
// pair present in weights but absent from g's edges is added as a brand-new
// optimized edge. Per the Open Question decision recorded in DESIGN.md, an
// edge carried with a negative weight is retained as a fiat neighbor rather
// than dropped.
func (g *MappedGraph) CloneWithOptimization(weights map[string]map[string]decimal.Decimal) *MappedGraph {
	out := NewMappedGraph()
	for asset := range g.optimizedAssets {
		out.optimizedAssets[asset] = struct{}{}
	}

	consumed := make(map[string]map[string]bool)

	for from := range g.vertices {
		neighbors := g.edges[from]
		if len(neighbors) == 0 && !g.IsFiat(from) {
			out.GetOrSetVertex(from)
			continue
		}

		table, fromInTable := weights[from]
		for to, origWeight := range neighbors {
			weight := origWeight
			optimized := false
			if fromInTable {
				if w, ok := table[to]; ok {
					weight = w
				}
				optimized = true
			}

			if consumed[from] == nil {
				consumed[from] = make(map[string]bool)
			}
			consumed[from][to] = true

			addClonedEdge(out, g, from, to, weight, optimized)
		}
	}

	for from, neighbors := range weights {
		for to, weight := range neighbors {
			if consumed[from][to] {
				continue
			}
			addClonedEdge(out, g, from, to, weight, true)
		}
		// Every optimization-table key is optimized, even one whose weights
		// were all already carried forward above (or that has none at all).
		out.GetOrSetVertex(from)
		out.optimizedAssets[from] = struct{}{}
	}

	for from, neighbors := range g.aliases {
		if !out.HasVertex(from) {
			continue
		}
		for to, edge := range neighbors {
			if !out.HasVertex(to) {
				continue
			}
			out.AddAlias(from, to, edge.rate, edge.asOf, edge.duration)
		}
	}

	return out
}

// Prune returns a new graph containing only vertices reachable from the keys
// of firstWindow, restricted to the edges present in firstWindow. This
// collapses a snapshot down to the connected component actually used by the
// first optimization window, dropping markets that never participate in any
// route.
func (g *MappedGraph) Prune(firstWindow map[string]map[string]decimal.Decimal) *MappedGraph {
	out := NewMappedGraph()

	reachable := make(map[string]struct{})
	var queue []string
	for from := range firstWindow {
		if _, ok := reachable[from]; !ok {
			reachable[from] = struct{}{}
			queue = append(queue, from)
		}
	}
	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]
		for to := range firstWindow[current] {
			if _, ok := reachable[to]; !ok {
				reachable[to] = struct{}{}
				queue = append(queue, to)
			}
		}
	}

	for asset := range g.optimizedAssets {
		if _, ok := reachable[asset]; ok {
			out.optimizedAssets[asset] = struct{}{}
		}
	}

	for from := range reachable {
		out.GetOrSetVertex(from)
		if g.IsFiat(from) {
			out.fiats[from] = struct{}{}
		}
		for to, weight := range firstWindow[from] {
			if _, ok := reachable[to]; !ok {
				continue
			}
			out.edges[from][to] = weight
			if g.IsFiat(to) {
				out.fiats[to] = struct{}{}
			}
		}
	}

	for from, neighbors := range g.aliases {
		if _, ok := reachable[from]; !ok {
			continue
		}
		for to, edge := range neighbors {
			if _, ok := reachable[to]; !ok {
				continue
			}
			out.AddAlias(from, to, edge.rate, edge.asOf, edge.duration)
		}
	}

	return out
}
