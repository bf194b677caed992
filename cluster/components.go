package cluster

import (
	"sort"

	"github.com/use-agent/logosim/models"
)

// unionFind is a disjoint-set forest with path halving and union by size.
type unionFind struct {
	parent []int
	size   []int
}

func newUnionFind(n int) *unionFind {
	uf := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range uf.parent {
		uf.parent[i] = i
		uf.size[i] = 1
	}
	return uf
}

func (uf *unionFind) find(x int) int {
	for uf.parent[x] != x {
		uf.parent[x] = uf.parent[uf.parent[x]]
		x = uf.parent[x]
	}
	return x
}

func (uf *unionFind) union(a, b int) {
	ra, rb := uf.find(a), uf.find(b)
	if ra == rb {
		return
	}
	if uf.size[ra] < uf.size[rb] {
		ra, rb = rb, ra
	}
	uf.parent[rb] = ra
	uf.size[ra] += uf.size[rb]
}

// Components returns the connected components of g. Every node is in
// exactly one component; isolated nodes are singletons.
//
// Domains inside a component are sorted. Components are ordered by size
// descending, then by their smallest domain, and numbered in that order.
// Callers should not depend on the numbering across different graphs.
func Components(g *Graph) []models.Cluster {
	index := make(map[string]int, len(g.Nodes))
	for i, d := range g.Nodes {
		index[d] = i
	}

	uf := newUnionFind(len(g.Nodes))
	for _, e := range g.Edges {
		a, okA := index[e.A]
		b, okB := index[e.B]
		if okA && okB {
			uf.union(a, b)
		}
	}

	groups := make(map[int][]string)
	for i, d := range g.Nodes {
		root := uf.find(i)
		groups[root] = append(groups[root], d)
	}

	clusters := make([]models.Cluster, 0, len(groups))
	for _, members := range groups {
		sort.Strings(members)
		clusters = append(clusters, models.Cluster{Domains: members, Size: len(members)})
	}
	sort.Slice(clusters, func(i, j int) bool {
		if clusters[i].Size != clusters[j].Size {
			return clusters[i].Size > clusters[j].Size
		}
		return clusters[i].Domains[0] < clusters[j].Domains[0]
	})
	for i := range clusters {
		clusters[i].ID = i
	}
	return clusters
}
