package optimizer

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/sushant-115/tuplelab/core/catalog"
	"github.com/sushant-115/tuplelab/core/dberror"
	"go.uber.org/zap/zaptest"
)

func newTestEnumerator(t *testing.T, dir catalog.Directory, maxRel int) *Enumerator {
	t.Helper()
	e, err := NewEnumerator(dir, Options{MaxExhaustiveRelations: maxRel, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	return e
}

func TestEnumerator_ThreeRelations(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, threeRelations), 0)
	ctx := context.Background()

	tests := []struct {
		strategy Strategy
		tree     string
		cost     int64
	}{
		{StrategyGreedyMinCardinality, "((R3 ⨝ R2) ⨝ R1)", 5100},
		{StrategyGreedyMinCost, "((R3 ⨝ R2) ⨝ R1)", 5100},
		{StrategyGreedyBestStart, "((R2 ⨝ R3) ⨝ R1)", 5100},
		{StrategyExhaustiveBest, "(R1 ⨝ (R2 ⨝ R3))", 5100},
		{StrategyExhaustiveWorst, "((R1 ⨝ R2) ⨝ R3)", 15000},
	}
	for _, tc := range tests {
		t.Run(string(tc.strategy), func(t *testing.T) {
			plan, ok, err := e.Run(ctx, tc.strategy)
			require.NoError(t, err)
			require.True(t, ok)
			assert.Equal(t, tc.tree, plan.Tree.String())
			assert.Equal(t, tc.cost, plan.Cost)
			assert.Equal(t, int64(5000), plan.Cardinality)
		})
	}
}

func TestEnumerator_NamedMethods(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, threeRelations), 0)
	ctx := context.Background()

	for _, fn := range []func(context.Context) (*Plan, bool, error){
		e.GreedyMinCardinality, e.GreedyMinCost, e.GreedyBestStart, e.ExhaustiveBest, e.ExhaustiveWorst,
	} {
		plan, ok, err := fn(ctx)
		require.NoError(t, err)
		require.True(t, ok)
		require.NotNil(t, plan.Tree)
	}
}

func TestEnumerator_EmptyDirectory(t *testing.T) {
	dir, err := catalog.NewBuilder().Build()
	require.NoError(t, err)
	e := newTestEnumerator(t, dir, 0)

	for _, s := range AllStrategies {
		plan, ok, err := e.Run(context.Background(), s)
		require.NoError(t, err, s)
		require.False(t, ok, s)
		require.Nil(t, plan, s)
	}
}

func TestEnumerator_SingleRelation(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, "ONLY 42\n"), 0)

	for _, s := range AllStrategies {
		plan, ok, err := e.Run(context.Background(), s)
		require.NoError(t, err, s)
		require.True(t, ok, s)
		require.Equal(t, &Leaf{Name: "ONLY"}, plan.Tree, s)
		require.Zero(t, plan.Cost, s)
		require.Equal(t, int64(42), plan.Cardinality, s)
	}
}

func TestEnumerator_TooManyRelations(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, threeRelations), 2)
	ctx := context.Background()

	_, _, err := e.ExhaustiveBest(ctx)
	require.ErrorIs(t, err, dberror.ErrTooManyRelations)
	_, _, err = e.ExhaustiveWorst(ctx)
	require.ErrorIs(t, err, dberror.ErrTooManyRelations)

	_, ok, err := e.GreedyBestStart(ctx)
	require.NoError(t, err, "greedy search is not capped")
	require.True(t, ok)
}

func TestNewEnumerator_RejectsBadLimit(t *testing.T) {
	dir := mustDirectory(t, threeRelations)
	_, err := NewEnumerator(dir, Options{MaxExhaustiveRelations: 17})
	require.Error(t, err)
	_, err = NewEnumerator(dir, Options{MaxExhaustiveRelations: -1})
	require.Error(t, err)
}

func TestEnumerator_UnknownStrategy(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, threeRelations), 0)
	_, _, err := e.Run(context.Background(), Strategy("random"))
	require.Error(t, err)
}

func TestEnumerator_Canceled(t *testing.T) {
	e := newTestEnumerator(t, mustDirectory(t, threeRelations), 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := e.GreedyMinCost(ctx)
	require.ErrorIs(t, err, context.Canceled)
	_, _, err = e.GreedyBestStart(ctx)
	require.ErrorIs(t, err, context.Canceled)
}

// randomDirectory builds n relations with random sizes and a random subset
// of selectivities.
func randomDirectory(t *testing.T, rng *rand.Rand, n int) *catalog.MemoryDirectory {
	t.Helper()
	b := catalog.NewBuilder()
	for i := 0; i < n; i++ {
		require.NoError(t, b.AddRelation(fmt.Sprintf("T%d", i), int64(1+rng.Intn(500))))
	}
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if rng.Intn(3) == 0 {
				continue
			}
			sel := float64(1+rng.Intn(1000)) / 1000
			require.NoError(t, b.SetSelectivity(fmt.Sprintf("T%d", i), fmt.Sprintf("T%d", j), sel))
		}
	}
	dir, err := b.Build()
	require.NoError(t, err)
	return dir
}

// allTrees enumerates every bushy tree over names without memoization.
func allTrees(names []string) []JoinTree {
	if len(names) == 1 {
		return []JoinTree{NewLeaf(names[0])}
	}
	var out []JoinTree
	n := len(names)
	for mask := 1; mask < 1<<n-1; mask++ {
		var left, right []string
		for i, name := range names {
			if mask&(1<<i) != 0 {
				left = append(left, name)
			} else {
				right = append(right, name)
			}
		}
		for _, l := range allTrees(left) {
			for _, r := range allTrees(right) {
				out = append(out, NewJoin(l, r))
			}
		}
	}
	return out
}

func TestEnumerator_MatchesBruteForce(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	ctx := context.Background()

	for n := 2; n <= 5; n++ {
		for round := 0; round < 5; round++ {
			dir := randomDirectory(t, rng, n)
			e := newTestEnumerator(t, dir, 0)
			model := e.CostModel()

			names := make([]string, 0, n)
			for _, r := range dir.Relations() {
				names = append(names, r.Name)
			}
			trees := allTrees(names)
			minCost, maxCost := int64(-1), int64(-1)
			for _, tree := range trees {
				c, err := model.Cost(tree)
				require.NoError(t, err)
				if minCost < 0 || c < minCost {
					minCost = c
				}
				if c > maxCost {
					maxCost = c
				}
			}

			best, ok, err := e.ExhaustiveBest(ctx)
			require.NoError(t, err)
			require.True(t, ok)
			worst, _, err := e.ExhaustiveWorst(ctx)
			require.NoError(t, err)

			require.Equal(t, minCost, best.Cost, "n=%d round=%d", n, round)
			require.Equal(t, maxCost, worst.Cost, "n=%d round=%d", n, round)
		}
	}
}

func TestEnumerator_PlanInvariants(t *testing.T) {
	rng := rand.New(rand.NewSource(42))
	ctx := context.Background()

	for round := 0; round < 10; round++ {
		n := 2 + rng.Intn(5)
		dir := randomDirectory(t, rng, n)
		e := newTestEnumerator(t, dir, 0)
		model := e.CostModel()

		var want []string
		for _, r := range dir.Relations() {
			want = append(want, r.Name)
		}
		sort.Strings(want)

		plans := map[Strategy]*Plan{}
		for _, s := range AllStrategies {
			plan, ok, err := e.Run(ctx, s)
			require.NoError(t, err)
			require.True(t, ok)

			got := plan.Tree.Relations()
			sort.Strings(got)
			require.Equal(t, want, got, "%s covers every relation once", s)

			cost, err := model.Cost(plan.Tree)
			require.NoError(t, err)
			require.Equal(t, cost, plan.Cost, "%s reports the model cost", s)
			plans[s] = plan
		}

		for _, s := range []Strategy{StrategyGreedyMinCardinality, StrategyGreedyMinCost, StrategyGreedyBestStart} {
			require.True(t, IsLeftDeep(plans[s].Tree), s)
			require.LessOrEqual(t, plans[StrategyExhaustiveBest].Cost, plans[s].Cost, s)
			require.GreaterOrEqual(t, plans[StrategyExhaustiveWorst].Cost, plans[s].Cost, s)
		}
		require.LessOrEqual(t, plans[StrategyGreedyBestStart].Cost, plans[StrategyGreedyMinCost].Cost)
	}
}

func TestEnumerator_ConcurrentRuns(t *testing.T) {
	dir := randomDirectory(t, rand.New(rand.NewSource(3)), 6)
	e := newTestEnumerator(t, dir, 0)

	want, _, err := e.ExhaustiveBest(context.Background())
	require.NoError(t, err)

	errs := make(chan error, 4)
	for i := 0; i < 4; i++ {
		go func() {
			got, _, err := e.ExhaustiveBest(context.Background())
			if err == nil && got.Cost != want.Cost {
				err = fmt.Errorf("cost %d, want %d", got.Cost, want.Cost)
			}
			errs <- err
		}()
	}
	for i := 0; i < 4; i++ {
		require.NoError(t, <-errs)
	}
}

func TestEnumerator_ExhaustiveBoundsMatchesSeparateRuns(t *testing.T) {
	ctx := context.Background()
	rng := rand.New(rand.NewSource(17))

	for round := 0; round < 5; round++ {
		e := newTestEnumerator(t, randomDirectory(t, rng, 2+rng.Intn(4)), 0)

		best, worst, ok, err := e.ExhaustiveBounds(ctx)
		require.NoError(t, err)
		require.True(t, ok)

		wantBest, _, err := e.ExhaustiveBest(ctx)
		require.NoError(t, err)
		wantWorst, _, err := e.ExhaustiveWorst(ctx)
		require.NoError(t, err)

		require.Equal(t, wantBest.Tree.String(), best.Tree.String())
		require.Equal(t, wantBest.Cost, best.Cost)
		require.Equal(t, wantWorst.Tree.String(), worst.Tree.String())
		require.Equal(t, wantWorst.Cost, worst.Cost)
	}
}

func TestEnumerator_ExhaustiveBoundsEdgeCases(t *testing.T) {
	ctx := context.Background()

	dir, err := catalog.NewBuilder().Build()
	require.NoError(t, err)
	best, worst, ok, err := newTestEnumerator(t, dir, 0).ExhaustiveBounds(ctx)
	require.NoError(t, err)
	require.False(t, ok)
	require.Nil(t, best)
	require.Nil(t, worst)

	_, _, _, err = newTestEnumerator(t, mustDirectory(t, threeRelations), 2).ExhaustiveBounds(ctx)
	require.ErrorIs(t, err, dberror.ErrTooManyRelations)

	best, worst, ok, err = newTestEnumerator(t, mustDirectory(t, threeRelations), 0).ExhaustiveBounds(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, "(R1 ⨝ (R2 ⨝ R3))", best.Tree.String())
	require.Equal(t, "((R1 ⨝ R2) ⨝ R3)", worst.Tree.String())
}
