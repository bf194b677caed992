// Package cluster builds the near-duplicate similarity graph over logo
// fingerprints and splits it into connected components.
package cluster

import (
	"fmt"
	"log/slog"
	"sort"

	"github.com/use-agent/logosim/models"
	"github.com/use-agent/logosim/phash"
)

// Index selects how candidate pairs are found.
type Index string

const (
	// Pairwise compares every unordered pair. O(n^2), fine up to the low
	// tens of thousands of nodes.
	Pairwise Index = "pairwise"
	// BKTree answers a range query per node from a BK-tree. Same edges.
	BKTree Index = "bktree"
)

// Options configures BuildGraph.
type Options struct {
	// Threshold is the maximum Hamming distance that still forms an edge.
	Threshold int
	// CodeBits is the expected primary code length. Zero takes the
	// length of the first node in domain order.
	CodeBits int
	Index    Index
}

// Edge joins two domains; A sorts before B.
type Edge struct {
	A        string `json:"a"`
	B        string `json:"b"`
	Distance int    `json:"distance"`
}

// Rejection is a record left out of the graph because its primary code
// had the wrong length.
type Rejection struct {
	Domain string `json:"domain"`
	Bits   int    `json:"bits"`
	Want   int    `json:"want"`
}

// Graph is an undirected threshold graph over domains. Nodes are sorted.
type Graph struct {
	Nodes     []string    `json:"nodes"`
	Edges     []Edge      `json:"edges"`
	Threshold int         `json:"threshold"`
	Rejected  []Rejection `json:"rejected,omitempty"`

	codes []phash.Code
}

// BuildGraph creates the similarity graph over records. Records without a
// primary code are not nodes. Records whose primary code length differs
// from the expected length are a data error: they are logged, left out
// and listed in Graph.Rejected.
func BuildGraph(records map[string]*models.Fingerprint, opts Options) (*Graph, error) {
	if opts.Threshold < 0 {
		return nil, models.NewPipelineError(models.ErrCodeGraphData,
			fmt.Sprintf("negative threshold %d", opts.Threshold), nil)
	}

	domains := make([]string, 0, len(records))
	for d, fp := range records {
		if fp != nil && !fp.Hashes.Primary.Empty() {
			domains = append(domains, d)
		}
	}
	sort.Strings(domains)

	want := opts.CodeBits
	if want == 0 && len(domains) > 0 {
		want = records[domains[0]].Hashes.Primary.Bits()
	}

	g := &Graph{Threshold: opts.Threshold}
	for _, d := range domains {
		code := records[d].Hashes.Primary
		if code.Bits() != want {
			slog.Warn("skipping fingerprint with mismatched code length",
				"domain", d, "bits", code.Bits(), "want", want)
			g.Rejected = append(g.Rejected, Rejection{Domain: d, Bits: code.Bits(), Want: want})
			continue
		}
		g.Nodes = append(g.Nodes, d)
		g.codes = append(g.codes, code)
	}

	var err error
	switch opts.Index {
	case "", Pairwise:
		err = g.pairwiseEdges()
	case BKTree:
		err = g.bkTreeEdges()
	default:
		return nil, fmt.Errorf("cluster: unknown index %q", opts.Index)
	}
	if err != nil {
		return nil, err
	}
	return g, nil
}

func (g *Graph) pairwiseEdges() error {
	for i := 0; i < len(g.Nodes); i++ {
		for j := i + 1; j < len(g.Nodes); j++ {
			d, err := phash.Distance(g.codes[i], g.codes[j])
			if err != nil {
				return models.NewPipelineError(models.ErrCodeGraphData,
					fmt.Sprintf("compare %s and %s", g.Nodes[i], g.Nodes[j]), err)
			}
			if d <= g.Threshold {
				g.Edges = append(g.Edges, Edge{A: g.Nodes[i], B: g.Nodes[j], Distance: d})
			}
		}
	}
	return nil
}

func (g *Graph) bkTreeEdges() error {
	t := &bkTree{}
	for i, c := range g.codes {
		if err := t.insert(c, i); err != nil {
			return models.NewPipelineError(models.ErrCodeGraphData, "index "+g.Nodes[i], err)
		}
	}
	for i, c := range g.codes {
		matches, err := t.within(c, g.Threshold)
		if err != nil {
			return models.NewPipelineError(models.ErrCodeGraphData, "query "+g.Nodes[i], err)
		}
		for _, m := range matches {
			// Each unordered pair is reported from both ends; keep i<j.
			if m.id > i {
				g.Edges = append(g.Edges, Edge{A: g.Nodes[i], B: g.Nodes[m.id], Distance: m.distance})
			}
		}
	}
	sort.Slice(g.Edges, func(a, b int) bool {
		if g.Edges[a].A != g.Edges[b].A {
			return g.Edges[a].A < g.Edges[b].A
		}
		return g.Edges[a].B < g.Edges[b].B
	})
	return nil
}

// Degree returns the number of edges incident to each node.
func (g *Graph) Degree() map[string]int {
	deg := make(map[string]int, len(g.Nodes))
	for _, d := range g.Nodes {
		deg[d] = 0
	}
	for _, e := range g.Edges {
		deg[e.A]++
		deg[e.B]++
	}
	return deg
}
