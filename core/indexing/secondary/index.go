// Package secondary compares two shapes of in-memory secondary index over a
// string column: a plain scan and a hash from value to row positions.
package secondary

import (
	"sort"
	"strings"
)

// Tuple is a row with a unique id and one indexed string attribute.
type Tuple struct {
	ID    int
	Value string
}

// Index answers equality and ">=" predicates on Tuple.Value. Results are
// ordered by tuple id.
type Index interface {
	Kind() string
	Equal(value string) []Tuple
	GreaterEqual(value string) []Tuple
}

// LinearIndex scans every tuple for every query.
type LinearIndex struct {
	tuples []Tuple
}

func NewLinearIndex(tuples []Tuple) *LinearIndex {
	return &LinearIndex{tuples: tuples}
}

func (l *LinearIndex) Kind() string { return "linear" }

func (l *LinearIndex) Equal(value string) []Tuple {
	return l.filter(func(t Tuple) bool { return t.Value == value })
}

func (l *LinearIndex) GreaterEqual(value string) []Tuple {
	return l.filter(func(t Tuple) bool { return strings.Compare(t.Value, value) >= 0 })
}

func (l *LinearIndex) filter(match func(Tuple) bool) []Tuple {
	var out []Tuple
	for _, t := range l.tuples {
		if match(t) {
			out = append(out, t)
		}
	}
	sortByID(out)
	return out
}

// HashIndex buckets row positions by value. A hash carries no ordering, so
// GreaterEqual falls back to the linear scan.
type HashIndex struct {
	*LinearIndex
	buckets map[string][]int
}

func NewHashIndex(tuples []Tuple) *HashIndex {
	buckets := make(map[string][]int)
	for pos, t := range tuples {
		buckets[t.Value] = append(buckets[t.Value], pos)
	}
	return &HashIndex{LinearIndex: NewLinearIndex(tuples), buckets: buckets}
}

func (h *HashIndex) Kind() string { return "hash" }

func (h *HashIndex) Equal(value string) []Tuple {
	positions := h.buckets[value]
	if len(positions) == 0 {
		return nil
	}
	out := make([]Tuple, len(positions))
	for i, pos := range positions {
		out[i] = h.tuples[pos]
	}
	sortByID(out)
	return out
}

// DistinctValues is the number of hash buckets.
func (h *HashIndex) DistinctValues() int { return len(h.buckets) }

func sortByID(tuples []Tuple) {
	sort.Slice(tuples, func(i, j int) bool { return tuples[i].ID < tuples[j].ID })
}
