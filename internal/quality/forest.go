package quality

import (
	"errors"
	"math"
	"math/rand/v2"
)

const eulerGamma = 0.5772156649015329

// Forest is an isolation forest trained on legitimate samples. Points that isolate in few
// splits score close to 1, points deep inside the training mass score around 0.5 or lower.
type Forest struct {
	trees      []*node
	sampleSize int
	norm       float64
}

type node struct {
	feature int
	split   float64
	left    *node
	right   *node
	size    int // populated on leaves only
}

func (n *node) leaf() bool { return n.left == nil }

// Train grows the forest. Each tree sees sampleSize points drawn without replacement.
func Train(samples [][]float64, trees, sampleSize int, seed uint64) (*Forest, error) {
	if len(samples) < 2 {
		return nil, errors.New("quality: need at least two training samples")
	}
	dims := len(samples[0])
	for _, s := range samples {
		if len(s) != dims {
			return nil, errors.New("quality: inconsistent sample dimensions")
		}
	}
	if trees <= 0 {
		trees = 100
	}
	if sampleSize <= 0 || sampleSize > len(samples) {
		sampleSize = len(samples)
	}

	rng := rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
	maxDepth := int(math.Ceil(math.Log2(float64(sampleSize))))

	f := &Forest{
		trees:      make([]*node, 0, trees),
		sampleSize: sampleSize,
		norm:       averagePath(sampleSize),
	}
	idx := make([]int, len(samples))
	for i := range idx {
		idx[i] = i
	}
	for t := 0; t < trees; t++ {
		rng.Shuffle(len(idx), func(i, j int) { idx[i], idx[j] = idx[j], idx[i] })
		sub := make([][]float64, sampleSize)
		for i := 0; i < sampleSize; i++ {
			sub[i] = samples[idx[i]]
		}
		f.trees = append(f.trees, grow(sub, 0, maxDepth, dims, rng))
	}
	return f, nil
}

func grow(points [][]float64, depth, maxDepth, dims int, rng *rand.Rand) *node {
	if depth >= maxDepth || len(points) <= 1 {
		return &node{size: len(points)}
	}

	// only features that still vary inside this partition can split it
	candidates := make([]int, 0, dims)
	lo := make([]float64, dims)
	hi := make([]float64, dims)
	for d := 0; d < dims; d++ {
		lo[d], hi[d] = points[0][d], points[0][d]
		for _, p := range points[1:] {
			lo[d] = math.Min(lo[d], p[d])
			hi[d] = math.Max(hi[d], p[d])
		}
		if hi[d] > lo[d] {
			candidates = append(candidates, d)
		}
	}
	if len(candidates) == 0 {
		return &node{size: len(points)}
	}

	feature := candidates[rng.IntN(len(candidates))]
	split := lo[feature] + rng.Float64()*(hi[feature]-lo[feature])

	var left, right [][]float64
	for _, p := range points {
		if p[feature] < split {
			left = append(left, p)
		} else {
			right = append(right, p)
		}
	}
	return &node{
		feature: feature,
		split:   split,
		left:    grow(left, depth+1, maxDepth, dims, rng),
		right:   grow(right, depth+1, maxDepth, dims, rng),
	}
}

// AnomalyScore returns 2^(-E[h(x)]/c(n)) in (0, 1].
func (f *Forest) AnomalyScore(x []float64) float64 {
	if len(f.trees) == 0 || f.norm == 0 {
		return 0.5
	}
	var total float64
	for _, t := range f.trees {
		total += pathLength(t, x, 0)
	}
	mean := total / float64(len(f.trees))
	return math.Pow(2, -mean/f.norm)
}

func pathLength(n *node, x []float64, depth int) float64 {
	for !n.leaf() {
		if x[n.feature] < n.split {
			n = n.left
		} else {
			n = n.right
		}
		depth++
	}
	return float64(depth) + averagePath(n.size)
}

// averagePath is c(n), the mean unsuccessful-search path length of a binary search tree.
func averagePath(n int) float64 {
	switch {
	case n <= 1:
		return 0
	case n == 2:
		return 1
	default:
		fn := float64(n)
		return 2*(math.Log(fn-1)+eulerGamma) - 2*(fn-1)/fn
	}
}
