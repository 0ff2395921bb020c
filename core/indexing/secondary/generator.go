package secondary

import (
	"math/rand"
	"time"
)

const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789abcdefghijklmnopqrstuvwxyz"

// ValueLength is the length of every generated value.
const ValueLength = 10

// Generator produces numTuples rows drawing values uniformly from a pool of
// numTuples/10 random strings. Duplicates in the pool are kept and simply
// raise that value's frequency.
type Generator struct {
	rng    *rand.Rand
	pool   []string
	Tuples []Tuple
}

// NewGenerator fills a Generator from rng. The same seed yields the same
// tuples.
func NewGenerator(rng *rand.Rand, numTuples int) *Generator {
	g := &Generator{rng: rng}
	poolSize := numTuples / 10
	if poolSize == 0 && numTuples > 0 {
		poolSize = 1
	}
	g.pool = make([]string, poolSize)
	for i := range g.pool {
		g.pool[i] = g.randomString(ValueLength)
	}
	g.Tuples = make([]Tuple, numTuples)
	for i := range g.Tuples {
		g.Tuples[i] = Tuple{ID: i, Value: g.RandomValue()}
	}
	return g
}

// RandomValue picks one of the pooled values.
func (g *Generator) RandomValue() string {
	if len(g.pool) == 0 {
		return ""
	}
	return g.pool[g.rng.Intn(len(g.pool))]
}

func (g *Generator) randomString(n int) string {
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[g.rng.Intn(len(alphabet))]
	}
	return string(b)
}

// Measurement times building an index and running both predicates once.
type Measurement struct {
	Kind          string
	Build         time.Duration
	Equal         time.Duration
	GreaterEqual  time.Duration
	EqualRows     int
	GreaterEqRows int
}

// Measure builds an index over tuples with build and queries it for value.
func Measure(tuples []Tuple, value string, build func([]Tuple) Index) Measurement {
	start := time.Now()
	idx := build(tuples)
	m := Measurement{Kind: idx.Kind(), Build: time.Since(start)}

	start = time.Now()
	m.EqualRows = len(idx.Equal(value))
	m.Equal = time.Since(start)

	start = time.Now()
	m.GreaterEqRows = len(idx.GreaterEqual(value))
	m.GreaterEqual = time.Since(start)
	return m
}

// Builders lists the index shapes in reporting order.
var Builders = []func([]Tuple) Index{
	func(t []Tuple) Index { return NewLinearIndex(t) },
	func(t []Tuple) Index { return NewHashIndex(t) },
}
