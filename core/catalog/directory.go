// Package catalog holds relation cardinalities and pairwise join
// selectivities used by the cost model.
package catalog

import (
	"fmt"
	"math"

	"github.com/sushant-115/tuplelab/core/dberror"
)

// Relation is a named base relation and its row count.
type Relation struct {
	Name        string
	Cardinality int64
}

// Directory is the read-only metadata the optimizer consults.
type Directory interface {
	// Relations lists every relation in load order.
	Relations() []Relation
	// Size returns a relation's cardinality.
	Size(name string) (int64, error)
	// Selectivity returns the join selectivity of a and b, or 1 when no
	// predicate connects them (a cross product).
	Selectivity(a, b string) float64
}

type pairKey struct{ a, b string }

func newPairKey(a, b string) pairKey {
	if b < a {
		a, b = b, a
	}
	return pairKey{a, b}
}

// MemoryDirectory is a Directory backed by maps. It is immutable once built
// and safe for concurrent readers.
type MemoryDirectory struct {
	relations     []Relation
	sizes         map[string]int64
	selectivities map[pairKey]float64
}

// Builder assembles a MemoryDirectory.
type Builder struct {
	dir *MemoryDirectory
}

func NewBuilder() *Builder {
	return &Builder{dir: &MemoryDirectory{
		sizes:         make(map[string]int64),
		selectivities: make(map[pairKey]float64),
	}}
}

// AddRelation registers a relation. Names are unique.
func (b *Builder) AddRelation(name string, cardinality int64) error {
	if name == "" {
		return fmt.Errorf("relation name must not be empty")
	}
	if cardinality < 0 {
		return fmt.Errorf("relation %q: cardinality %d is negative", name, cardinality)
	}
	if _, dup := b.dir.sizes[name]; dup {
		return fmt.Errorf("relation %q registered twice", name)
	}
	b.dir.sizes[name] = cardinality
	b.dir.relations = append(b.dir.relations, Relation{Name: name, Cardinality: cardinality})
	return nil
}

// SetSelectivity records a symmetric selectivity in (0, 1].
func (b *Builder) SetSelectivity(a, c string, factor float64) error {
	if a == c {
		return fmt.Errorf("selectivity of %q with itself is not a join", a)
	}
	if math.IsNaN(factor) || factor <= 0 || factor > 1 {
		return fmt.Errorf("selectivity %v between %q and %q is outside (0, 1]", factor, a, c)
	}
	b.dir.selectivities[newPairKey(a, c)] = factor
	return nil
}

// Build validates that every selectivity names known relations and returns
// the directory. The builder must not be used afterwards.
func (b *Builder) Build() (*MemoryDirectory, error) {
	for key := range b.dir.selectivities {
		for _, name := range []string{key.a, key.b} {
			if _, ok := b.dir.sizes[name]; !ok {
				return nil, fmt.Errorf("%w: %q is used in a selectivity but never declared", dberror.ErrUnknownRelation, name)
			}
		}
	}
	dir := b.dir
	b.dir = nil
	return dir, nil
}

func (d *MemoryDirectory) Relations() []Relation {
	out := make([]Relation, len(d.relations))
	copy(out, d.relations)
	return out
}

func (d *MemoryDirectory) Size(name string) (int64, error) {
	size, ok := d.sizes[name]
	if !ok {
		return 0, fmt.Errorf("%w: %q", dberror.ErrUnknownRelation, name)
	}
	return size, nil
}

func (d *MemoryDirectory) Selectivity(a, b string) float64 {
	if f, ok := d.selectivities[newPairKey(a, b)]; ok {
		return f
	}
	return 1
}

// JoinSize estimates the row count of joining two base relations.
func JoinSize(d Directory, a, b string) (int64, error) {
	sa, err := d.Size(a)
	if err != nil {
		return 0, err
	}
	sb, err := d.Size(b)
	if err != nil {
		return 0, err
	}
	est := math.Round(float64(sa) * float64(sb) * d.Selectivity(a, b))
	if est >= math.MaxInt64 {
		return 0, fmt.Errorf("%w: %s x %s", dberror.ErrCardinalityOverflow, a, b)
	}
	return int64(est), nil
}
