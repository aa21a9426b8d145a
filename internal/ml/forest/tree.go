package forest

import (
	"math/rand"
	"sort"
)

// leafFeature marks a node without a split.
const leafFeature = -1

// Node is one entry of a flattened decision tree. Internal nodes route a
// row left when row[Feature] <= Threshold.
type Node struct {
	Feature   int     `json:"f"`
	Threshold float64 `json:"t,omitempty"`
	Left      int32   `json:"l,omitempty"`
	Right     int32   `json:"r,omitempty"`

	// Value is the fraud fraction of the training rows that reached the node.
	Value float64 `json:"v"`
}

// IsLeaf reports whether the node is terminal.
func (n *Node) IsLeaf() bool {
	return n.Feature == leafFeature
}

// Tree is a CART classifier stored as a flat node slice; node 0 is the root.
type Tree struct {
	Nodes []Node `json:"nodes"`
}

// Proba returns the fraud fraction of the leaf the row lands in.
func (t *Tree) Proba(row []float64) float64 {
	i := int32(0)
	for {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return n.Value
		}
		if row[n.Feature] <= n.Threshold {
			i = n.Left
		} else {
			i = n.Right
		}
	}
}

// Depth returns the number of edges on the longest root-to-leaf path.
func (t *Tree) Depth() int {
	var walk func(i int32) int
	walk = func(i int32) int {
		n := &t.Nodes[i]
		if n.IsLeaf() {
			return 0
		}
		return 1 + max(walk(n.Left), walk(n.Right))
	}
	if len(t.Nodes) == 0 {
		return 0
	}
	return walk(0)
}

type sortEntry struct {
	value float64
	label int
}

// builder grows one tree. Not safe for concurrent use.
type builder struct {
	x           [][]float64
	y           []int
	hp          Hyperparams
	maxFeatures int
	rng         *rand.Rand

	nodes       []Node
	importances []float64
	features    []int
	buf         []sortEntry
}

func newBuilder(x [][]float64, y []int, hp Hyperparams, maxFeatures int, r *rand.Rand) *builder {
	width := len(x[0])
	features := make([]int, width)
	for j := range features {
		features[j] = j
	}
	return &builder{
		x:           x,
		y:           y,
		hp:          hp,
		maxFeatures: maxFeatures,
		rng:         r,
		importances: make([]float64, width),
		features:    features,
		buf:         make([]sortEntry, 0, len(x)),
	}
}

type split struct {
	feature   int
	threshold float64
	score     float64
	nLeft     int
	posLeft   int
}

// grow builds the subtree over rows idx and returns its node index.
// idx is partitioned in place.
func (b *builder) grow(idx []int, depth int) int32 {
	pos := 0
	for _, i := range idx {
		pos += b.y[i]
	}
	n := len(idx)

	self := int32(len(b.nodes))
	b.nodes = append(b.nodes, Node{Feature: leafFeature, Value: float64(pos) / float64(n)})

	if pos == 0 || pos == n {
		return self
	}
	if b.hp.MaxDepth > 0 && depth >= b.hp.MaxDepth {
		return self
	}
	if n < b.hp.MinSamplesSplit || n < 2*b.hp.MinSamplesLeaf {
		return self
	}

	best, ok := b.bestSplit(idx, pos)
	if !ok {
		return self
	}

	// Weighted Gini decrease, in row counts.
	nl, nr := best.nLeft, n-best.nLeft
	pl, pr := best.posLeft, pos-best.posLeft
	b.importances[best.feature] += float64(n)*gini(pos, n) -
		float64(nl)*gini(pl, nl) - float64(nr)*gini(pr, nr)

	// Partition rows: left side first.
	lo, hi := 0, n-1
	for lo <= hi {
		if b.x[idx[lo]][best.feature] <= best.threshold {
			lo++
		} else {
			idx[lo], idx[hi] = idx[hi], idx[lo]
			hi--
		}
	}

	left := b.grow(idx[:lo], depth+1)
	right := b.grow(idx[lo:], depth+1)

	node := &b.nodes[self]
	node.Feature = best.feature
	node.Threshold = best.threshold
	node.Left = left
	node.Right = right
	return self
}

// bestSplit draws features in random order and returns the split with the
// lowest weighted Gini impurity. It inspects at least maxFeatures
// non-constant features and keeps going until a valid split is found.
func (b *builder) bestSplit(idx []int, pos int) (split, bool) {
	var best split
	found := false
	visited := 0

	// Fisher-Yates, drawn lazily.
	for k := 0; k < len(b.features); k++ {
		if found && visited >= b.maxFeatures {
			break
		}
		r := k + b.rng.Intn(len(b.features)-k)
		b.features[k], b.features[r] = b.features[r], b.features[k]
		f := b.features[k]

		s, ok, constant := b.scanFeature(idx, pos, f)
		if constant {
			continue
		}
		visited++
		if ok && (!found || s.score > best.score) {
			best = s
			found = true
		}
	}
	return best, found
}

// scanFeature sorts the node rows on feature f and evaluates every
// threshold between distinct consecutive values. The score maximized is
// sum over children of (p1^2 + p0^2) / n, equivalent to minimizing the
// weighted Gini impurity.
func (b *builder) scanFeature(idx []int, pos int, f int) (split, bool, bool) {
	buf := b.buf[:0]
	for _, i := range idx {
		buf = append(buf, sortEntry{value: b.x[i][f], label: b.y[i]})
	}
	sort.Slice(buf, func(p, q int) bool { return buf[p].value < buf[q].value })
	b.buf = buf

	n := len(buf)
	if buf[0].value == buf[n-1].value {
		return split{}, false, true
	}

	minLeaf := b.hp.MinSamplesLeaf
	var best split
	found := false
	posLeft := 0
	for i := 0; i < n-1; i++ {
		posLeft += buf[i].label
		if buf[i].value == buf[i+1].value {
			continue
		}
		nl := i + 1
		nr := n - nl
		if nl < minLeaf || nr < minLeaf {
			continue
		}

		pl, pr := float64(posLeft), float64(pos-posLeft)
		ql, qr := float64(nl)-pl, float64(nr)-pr
		score := (pl*pl+ql*ql)/float64(nl) + (pr*pr+qr*qr)/float64(nr)
		if !found || score > best.score {
			threshold := buf[i].value + (buf[i+1].value-buf[i].value)/2
			if threshold >= buf[i+1].value {
				threshold = buf[i].value
			}
			best = split{feature: f, threshold: threshold, score: score, nLeft: nl, posLeft: posLeft}
			found = true
		}
	}
	return best, found, false
}

func gini(pos, n int) float64 {
	if n == 0 {
		return 0
	}
	p := float64(pos) / float64(n)
	return 1 - p*p - (1-p)*(1-p)
}
