package cluster

import "github.com/use-agent/logosim/phash"

// bkTree is a metric tree over Hamming distance. Each child edge is
// labeled with the distance between the child and its parent, which
// lets range queries prune subtrees by the triangle inequality.
type bkTree struct {
	root *bkNode
}

type bkNode struct {
	code     phash.Code
	ids      []int // equal codes share a node
	children map[int]*bkNode
}

type bkMatch struct {
	id       int
	distance int
}

func (t *bkTree) insert(code phash.Code, id int) error {
	if t.root == nil {
		t.root = &bkNode{code: code, ids: []int{id}}
		return nil
	}
	n := t.root
	for {
		d, err := phash.Distance(code, n.code)
		if err != nil {
			return err
		}
		if d == 0 {
			n.ids = append(n.ids, id)
			return nil
		}
		child, ok := n.children[d]
		if !ok {
			if n.children == nil {
				n.children = make(map[int]*bkNode)
			}
			n.children[d] = &bkNode{code: code, ids: []int{id}}
			return nil
		}
		n = child
	}
}

// within returns every stored id whose code is at most radius away.
func (t *bkTree) within(code phash.Code, radius int) ([]bkMatch, error) {
	if t.root == nil {
		return nil, nil
	}
	var out []bkMatch
	stack := []*bkNode{t.root}
	for len(stack) > 0 {
		n := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		d, err := phash.Distance(code, n.code)
		if err != nil {
			return nil, err
		}
		if d <= radius {
			for _, id := range n.ids {
				out = append(out, bkMatch{id: id, distance: d})
			}
		}
		for k, child := range n.children {
			if k >= d-radius && k <= d+radius {
				stack = append(stack, child)
			}
		}
	}
	return out, nil
}
