// Package txgraph models a wallet's transaction history as a directed
// multigraph and answers the few structural questions fraud analysis asks:
// in-degree and clustering on the undirected projection.
package txgraph

import (
	"sort"

	"github.com/mbd888/walletrisk/internal/chain"
)

// Edge is a directed from→to pair weighted by how many transactions it carries.
type Edge struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Weight int    `json:"weight"`
}

// Graph is the read-only view fraud analysis needs.
type Graph interface {
	// InDegree counts distinct predecessors of node.
	InDegree(node string) int
	// AverageClustering is the mean local clustering coefficient over all
	// nodes of the undirected projection, self-loops ignored.
	AverageClustering() float64
	NodeCount() int
	// Edges returns aggregated edges sorted by (From, To).
	Edges() []Edge
}

type graph struct {
	nodes []string
	in    map[string]map[string]struct{}
	adj   map[string]map[string]struct{}
	edges []Edge
}

// Build aggregates edges into a graph. Duplicate (from,to) pairs sum their
// weights; a non-positive weight counts as one.
func Build(edges []Edge) Graph {
	g := &graph{
		in:  make(map[string]map[string]struct{}),
		adj: make(map[string]map[string]struct{}),
	}
	weights := make(map[[2]string]int)
	for _, e := range edges {
		if e.From == "" || e.To == "" {
			continue
		}
		w := e.Weight
		if w <= 0 {
			w = 1
		}
		weights[[2]string{e.From, e.To}] += w
		g.addNode(e.From)
		g.addNode(e.To)
		if e.From == e.To {
			continue
		}
		g.in[e.To][e.From] = struct{}{}
		g.adj[e.From][e.To] = struct{}{}
		g.adj[e.To][e.From] = struct{}{}
	}

	for pair, w := range weights {
		g.edges = append(g.edges, Edge{From: pair[0], To: pair[1], Weight: w})
	}
	sort.Slice(g.edges, func(i, j int) bool {
		if g.edges[i].From != g.edges[j].From {
			return g.edges[i].From < g.edges[j].From
		}
		return g.edges[i].To < g.edges[j].To
	})
	for n := range g.adj {
		g.nodes = append(g.nodes, n)
	}
	sort.Strings(g.nodes)
	return g
}

// FromTransactions builds the graph of from→to pairs in txs.
func FromTransactions(txs []chain.Transaction) Graph {
	edges := make([]Edge, 0, len(txs))
	for _, tx := range txs {
		edges = append(edges, Edge{From: tx.From, To: tx.To, Weight: 1})
	}
	return Build(edges)
}

func (g *graph) addNode(n string) {
	if _, ok := g.adj[n]; !ok {
		g.adj[n] = make(map[string]struct{})
		g.in[n] = make(map[string]struct{})
	}
}

func (g *graph) InDegree(node string) int {
	return len(g.in[node])
}

func (g *graph) NodeCount() int {
	return len(g.nodes)
}

func (g *graph) Edges() []Edge {
	return append([]Edge(nil), g.edges...)
}

func (g *graph) AverageClustering() float64 {
	if len(g.nodes) == 0 {
		return 0
	}
	var total float64
	for _, n := range g.nodes {
		total += g.clustering(n)
	}
	return total / float64(len(g.nodes))
}

func (g *graph) clustering(n string) float64 {
	neighbors := make([]string, 0, len(g.adj[n]))
	for m := range g.adj[n] {
		neighbors = append(neighbors, m)
	}
	k := len(neighbors)
	if k < 2 {
		return 0
	}
	links := 0
	for i := 0; i < k; i++ {
		for j := i + 1; j < k; j++ {
			if _, ok := g.adj[neighbors[i]][neighbors[j]]; ok {
				links++
			}
		}
	}
	return 2 * float64(links) / float64(k*(k-1))
}
