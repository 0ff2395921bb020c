package optimizer

import (
	"context"
	"math/bits"
	"sort"

	"github.com/sushant-115/tuplelab/core/catalog"
)

// cancelCheckInterval is how many trees are costed between context polls.
const cancelCheckInterval = 4096

// candidate is one costed join tree over a relation subset. Join candidates
// point at their children in the memo lists of leftMask and its complement.
type candidate struct {
	card     int64
	cost     int64
	leftIdx  int32
	rightIdx int32
	leftMask uint32
}

// exhaustiveSearch enumerates every bushy tree. Trees for each proper subset
// are kept as compact candidate lists; trees over the full set are streamed
// and only the winner is rebuilt. Bits follow relation names in sorted
// order, which is also the order the cost model multiplies selectivities in.
type exhaustiveSearch struct {
	names     []string
	sizes     []int64
	sel       [][]float64
	memo      [][]candidate
	evaluated int64
	ctx       context.Context
}

func newExhaustiveSearch(ctx context.Context, dir catalog.Directory, relations []catalog.Relation) *exhaustiveSearch {
	sorted := make([]catalog.Relation, len(relations))
	copy(sorted, relations)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Name < sorted[j].Name })

	n := len(sorted)
	s := &exhaustiveSearch{
		names: make([]string, n),
		sizes: make([]int64, n),
		sel:   make([][]float64, n),
		memo:  make([][]candidate, 1<<n),
		ctx:   ctx,
	}
	for i, r := range sorted {
		s.names[i] = r.Name
		s.sizes[i] = r.Cardinality
	}
	for i := range sorted {
		s.sel[i] = make([]float64, n)
		for j := range sorted {
			if i != j {
				s.sel[i][j] = dir.Selectivity(s.names[i], s.names[j])
			}
		}
	}
	return s
}

// selectivity multiplies sel[l][r] over l in left, r in right, both ascending.
func (s *exhaustiveSearch) selectivity(left, right uint32) float64 {
	factor := 1.0
	for l := left; l != 0; l &= l - 1 {
		i := bits.TrailingZeros32(l)
		for r := right; r != 0; r &= r - 1 {
			factor *= s.sel[i][bits.TrailingZeros32(r)]
		}
	}
	return factor
}

// expand visits every tree over mask: left subsets in ascending order, then
// left trees, then right trees, each in the order they were generated. It
// stops at the first error returned by visit.
func (s *exhaustiveSearch) expand(mask uint32, visit func(c candidate) error) error {
	for sub := (0 - mask) & mask; sub != mask; sub = (sub - mask) & mask {
		rest := mask ^ sub
		lefts, err := s.candidates(sub)
		if err != nil {
			return err
		}
		rights, err := s.candidates(rest)
		if err != nil {
			return err
		}
		factor := s.selectivity(sub, rest)
		for li := range lefts {
			for ri := range rights {
				l, r := &lefts[li], &rights[ri]
				card, err := joinCardinality(factor, l.card, r.card)
				if err != nil {
					return err
				}
				cost, err := sumCost(card, l.cost, r.cost)
				if err != nil {
					return err
				}
				s.evaluated++
				if s.evaluated%cancelCheckInterval == 0 {
					if err := checkCanceled(s.ctx); err != nil {
						return err
					}
				}
				if err := visit(candidate{
					card:     card,
					cost:     cost,
					leftIdx:  int32(li),
					rightIdx: int32(ri),
					leftMask: sub,
				}); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// candidates returns the memoized trees over mask, generating them first.
func (s *exhaustiveSearch) candidates(mask uint32) ([]candidate, error) {
	if got := s.memo[mask]; got != nil {
		return got, nil
	}
	if bits.OnesCount32(mask) == 1 {
		i := bits.TrailingZeros32(mask)
		s.memo[mask] = []candidate{{card: s.sizes[i]}}
		return s.memo[mask], nil
	}
	var list []candidate
	err := s.expand(mask, func(c candidate) error {
		list = append(list, c)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.memo[mask] = list
	return list, nil
}

// build reconstructs the tree stored at memo[mask][idx].
func (s *exhaustiveSearch) build(mask uint32, idx int32) JoinTree {
	if bits.OnesCount32(mask) == 1 {
		return NewLeaf(s.names[bits.TrailingZeros32(mask)])
	}
	c := s.memo[mask][idx]
	return s.buildJoin(mask, c)
}

func (s *exhaustiveSearch) buildJoin(mask uint32, c candidate) JoinTree {
	return NewJoin(s.build(c.leftMask, c.leftIdx), s.build(mask^c.leftMask, c.rightIdx))
}

// exhaustiveBounds enumerates every tree over all relations once and returns
// the first cheapest and the first most expensive.
func (e *Enumerator) exhaustiveBounds(ctx context.Context, relations []catalog.Relation) (best, worst JoinTree, evaluated int64, err error) {
	if len(relations) > e.maxExhaustive {
		return nil, nil, 0, e.errTooMany(len(relations))
	}
	s := newExhaustiveSearch(ctx, e.dir, relations)
	full := uint32(1)<<len(relations) - 1
	if len(relations) == 1 {
		leaf := s.build(full, 0)
		return leaf, leaf, 0, nil
	}

	var (
		lo, hi candidate
		found  bool
	)
	err = s.expand(full, func(c candidate) error {
		if !found {
			lo, hi, found = c, c, true
			return nil
		}
		if c.cost < lo.cost {
			lo = c
		}
		if c.cost > hi.cost {
			hi = c
		}
		return nil
	})
	if err != nil {
		return nil, nil, s.evaluated, err
	}
	return s.buildJoin(full, lo), s.buildJoin(full, hi), s.evaluated, nil
}

// greedyMinCardinality extends a left-deep tree from the smallest relation,
// appending the unplaced relation whose join has the smallest cardinality.
func (e *Enumerator) greedyMinCardinality(ctx context.Context, relations []catalog.Relation) (JoinTree, int64, error) {
	return e.growLeftDeep(ctx, relations, smallestRelation(relations), func(tree JoinTree) (func(cand JoinTree) (int64, error), error) {
		return e.model.Cardinality, nil
	})
}

// greedyMinCost extends a left-deep tree from start, appending the unplaced
// relation that adds the least to the current cost.
func (e *Enumerator) greedyMinCost(ctx context.Context, relations []catalog.Relation, start string) (JoinTree, int64, error) {
	return e.growLeftDeep(ctx, relations, start, func(tree JoinTree) (func(cand JoinTree) (int64, error), error) {
		base, err := e.model.Cost(tree)
		if err != nil {
			return nil, err
		}
		return func(cand JoinTree) (int64, error) {
			cost, err := e.model.Cost(cand)
			if err != nil {
				return 0, err
			}
			return cost - base, nil
		}, nil
	})
}

// greedyBestStart runs greedyMinCost from every relation in directory order
// and keeps the first cheapest tree.
func (e *Enumerator) greedyBestStart(ctx context.Context, relations []catalog.Relation) (JoinTree, int64, error) {
	var (
		best      JoinTree
		bestCost  int64
		evaluated int64
	)
	for _, r := range relations {
		tree, n, err := e.greedyMinCost(ctx, relations, r.Name)
		evaluated += n
		if err != nil {
			return nil, evaluated, err
		}
		cost, err := e.model.Cost(tree)
		if err != nil {
			return nil, evaluated, err
		}
		if best == nil || cost < bestCost {
			best, bestCost = tree, cost
		}
	}
	return best, evaluated, nil
}

// growLeftDeep builds a left-deep tree one relation at a time. Before each
// step, score is asked for the key to minimize; ties keep the relation that
// comes first in directory order.
func (e *Enumerator) growLeftDeep(
	ctx context.Context,
	relations []catalog.Relation,
	start string,
	score func(tree JoinTree) (func(cand JoinTree) (int64, error), error),
) (JoinTree, int64, error) {
	placed := map[string]bool{start: true}
	var tree JoinTree = NewLeaf(start)
	var evaluated int64

	for len(placed) < len(relations) {
		if err := checkCanceled(ctx); err != nil {
			return nil, evaluated, err
		}
		key, err := score(tree)
		if err != nil {
			return nil, evaluated, err
		}
		var (
			next    JoinTree
			nextKey int64
			name    string
		)
		for _, r := range relations {
			if placed[r.Name] {
				continue
			}
			cand := NewJoin(tree, NewLeaf(r.Name))
			k, err := key(cand)
			if err != nil {
				return nil, evaluated, err
			}
			evaluated++
			if next == nil || k < nextKey {
				next, nextKey, name = cand, k, r.Name
			}
		}
		tree = next
		placed[name] = true
	}
	return tree, evaluated, nil
}
