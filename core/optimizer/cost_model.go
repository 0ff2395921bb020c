package optimizer

import (
	"fmt"
	"math"
	"sort"

	"github.com/sushant-115/tuplelab/core/catalog"
	"github.com/sushant-115/tuplelab/core/dberror"
)

// CostModel evaluates join trees with the C_out metric: the cost of a tree
// is the sum of the cardinalities of its intermediate results. Nothing is
// memoized; trees are small.
type CostModel struct {
	dir catalog.Directory
}

func NewCostModel(dir catalog.Directory) *CostModel {
	return &CostModel{dir: dir}
}

// SelectivityProduct multiplies the selectivity of every (l, r) pair with l
// on the left of the join and r on the right. Pairs are visited in name
// order so the product is reproducible bit for bit.
func (m *CostModel) SelectivityProduct(j *Join) float64 {
	left := sortedNames(j.Left)
	right := sortedNames(j.Right)
	factor := 1.0
	for _, l := range left {
		for _, r := range right {
			factor *= m.dir.Selectivity(l, r)
		}
	}
	return factor
}

func sortedNames(t JoinTree) []string {
	names := t.Relations()
	sort.Strings(names)
	return names
}

// Cardinality is the relation size at a leaf, and
// round(selectivity product x left cardinality x right cardinality) at a join.
func (m *CostModel) Cardinality(t JoinTree) (int64, error) {
	switch n := t.(type) {
	case *Leaf:
		return m.dir.Size(n.Name)
	case *Join:
		lc, err := m.Cardinality(n.Left)
		if err != nil {
			return 0, err
		}
		rc, err := m.Cardinality(n.Right)
		if err != nil {
			return 0, err
		}
		return joinCardinality(m.SelectivityProduct(n), lc, rc)
	default:
		return 0, fmt.Errorf("optimizer: unknown join tree node %T", t)
	}
}

// Cost is 0 at a leaf, and cardinality + left cost + right cost at a join.
func (m *CostModel) Cost(t JoinTree) (int64, error) {
	switch n := t.(type) {
	case *Leaf:
		if _, err := m.dir.Size(n.Name); err != nil {
			return 0, err
		}
		return 0, nil
	case *Join:
		card, err := m.Cardinality(n)
		if err != nil {
			return 0, err
		}
		lcost, err := m.Cost(n.Left)
		if err != nil {
			return 0, err
		}
		rcost, err := m.Cost(n.Right)
		if err != nil {
			return 0, err
		}
		return sumCost(card, lcost, rcost)
	default:
		return 0, fmt.Errorf("optimizer: unknown join tree node %T", t)
	}
}

// IsCrossProduct reports whether no predicate connects the two sides of j.
func (m *CostModel) IsCrossProduct(j *Join) bool {
	return m.SelectivityProduct(j) == 1
}

// HasCrossProduct reports whether any join in t is a cross product.
func (m *CostModel) HasCrossProduct(t JoinTree) bool {
	j, ok := t.(*Join)
	if !ok {
		return false
	}
	return m.IsCrossProduct(j) || m.HasCrossProduct(j.Left) || m.HasCrossProduct(j.Right)
}

func joinCardinality(selectivity float64, left, right int64) (int64, error) {
	est := math.Round(selectivity * float64(left) * float64(right))
	if est >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %v rows", dberror.ErrCardinalityOverflow, est)
	}
	return int64(est), nil
}

func sumCost(card, left, right int64) (int64, error) {
	total := card
	for _, c := range []int64{left, right} {
		if total > math.MaxInt64-c {
			return 0, fmt.Errorf("%w: cost sum", dberror.ErrCardinalityOverflow)
		}
		total += c
	}
	return total, nil
}
