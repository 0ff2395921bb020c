package optimizer

import (
	"context"
	"fmt"
	"time"

	"github.com/sushant-115/tuplelab/core/catalog"
	"github.com/sushant-115/tuplelab/core/dberror"
	internaltelemetry "github.com/sushant-115/tuplelab/internal/telemetry"
	"github.com/sushant-115/tuplelab/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
)

// DefaultMaxExhaustiveRelations caps exhaustive search. The number of bushy
// trees over n relations is n! * Catalan(n-1): 17,297,280 for n = 8.
const DefaultMaxExhaustiveRelations = 8

// maxSupportedRelations bounds the bitmask width used by exhaustive search.
const maxSupportedRelations = 16

// Strategy names a plan search.
type Strategy string

const (
	StrategyGreedyMinCardinality Strategy = "greedy1"
	StrategyGreedyMinCost        Strategy = "greedy2"
	StrategyGreedyBestStart      Strategy = "greedy3"
	StrategyExhaustiveBest       Strategy = "best"
	StrategyExhaustiveWorst      Strategy = "worst"
)

// AllStrategies lists every strategy in reporting order.
var AllStrategies = []Strategy{
	StrategyGreedyMinCardinality,
	StrategyGreedyMinCost,
	StrategyGreedyBestStart,
	StrategyExhaustiveBest,
	StrategyExhaustiveWorst,
}

// Plan is a join tree with its evaluated cost and output cardinality.
type Plan struct {
	Tree        JoinTree
	Cost        int64
	Cardinality int64
}

// Options configures an Enumerator.
type Options struct {
	MaxExhaustiveRelations int
	Logger                 *zap.Logger
	Telemetry              *telemetry.Telemetry
}

// Enumerator searches join orders over every relation of a directory. It
// only reads the directory, so strategies may run concurrently.
type Enumerator struct {
	dir           catalog.Directory
	model         *CostModel
	maxExhaustive int
	logger        *zap.Logger
	metrics       *internaltelemetry.PlannerMetrics
}

func NewEnumerator(dir catalog.Directory, opts Options) (*Enumerator, error) {
	maxRel := opts.MaxExhaustiveRelations
	if maxRel == 0 {
		maxRel = DefaultMaxExhaustiveRelations
	}
	if maxRel < 1 || maxRel > maxSupportedRelations {
		return nil, fmt.Errorf("max exhaustive relations must be in [1, %d], got %d", maxSupportedRelations, maxRel)
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	metrics, err := internaltelemetry.NewPlannerMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create planner metrics: %w", err)
	}
	return &Enumerator{
		dir:           dir,
		model:         NewCostModel(dir),
		maxExhaustive: maxRel,
		logger:        logger.Named("enumerator"),
		metrics:       metrics,
	}, nil
}

// CostModel returns the model plans are evaluated with.
func (e *Enumerator) CostModel() *CostModel { return e.model }

// Run executes one strategy. ok is false when the directory has no
// relations, which is not an error.
func (e *Enumerator) Run(ctx context.Context, s Strategy) (plan *Plan, ok bool, err error) {
	start := time.Now()
	var evaluated int64
	defer func() {
		attrs := metric.WithAttributes(attribute.String("optimizer.strategy", string(s)))
		e.metrics.PlansEvaluatedCounter.Add(ctx, evaluated, attrs)
		e.metrics.SearchLatency.Record(ctx, time.Since(start).Milliseconds(), attrs)
		if err == nil && ok {
			e.logger.Debug("plan search finished",
				zap.String("strategy", string(s)),
				zap.Stringer("plan", plan.Tree),
				zap.Int64("cost", plan.Cost),
				zap.Int64("plans_evaluated", evaluated),
				zap.Duration("elapsed", time.Since(start)),
			)
		}
	}()

	relations := e.dir.Relations()
	if len(relations) == 0 {
		return nil, false, nil
	}

	var tree JoinTree
	switch s {
	case StrategyGreedyMinCardinality:
		tree, evaluated, err = e.greedyMinCardinality(ctx, relations)
	case StrategyGreedyMinCost:
		tree, evaluated, err = e.greedyMinCost(ctx, relations, smallestRelation(relations))
	case StrategyGreedyBestStart:
		tree, evaluated, err = e.greedyBestStart(ctx, relations)
	case StrategyExhaustiveBest:
		tree, _, evaluated, err = e.exhaustiveBounds(ctx, relations)
	case StrategyExhaustiveWorst:
		_, tree, evaluated, err = e.exhaustiveBounds(ctx, relations)
	default:
		return nil, false, fmt.Errorf("unknown plan strategy %q", s)
	}
	if err != nil {
		return nil, false, err
	}

	plan, err = e.evaluate(tree)
	if err != nil {
		return nil, false, err
	}
	return plan, true, nil
}

// ExhaustiveBest returns the cheapest bushy tree over all relations.
func (e *Enumerator) ExhaustiveBest(ctx context.Context) (*Plan, bool, error) {
	return e.Run(ctx, StrategyExhaustiveBest)
}

// ExhaustiveWorst returns the most expensive bushy tree over all relations.
func (e *Enumerator) ExhaustiveWorst(ctx context.Context) (*Plan, bool, error) {
	return e.Run(ctx, StrategyExhaustiveWorst)
}

// ExhaustiveBounds returns the cheapest and the most expensive bushy tree
// from a single enumeration, holding one memo instead of two.
func (e *Enumerator) ExhaustiveBounds(ctx context.Context) (best, worst *Plan, ok bool, err error) {
	start := time.Now()
	var evaluated int64
	defer func() {
		attrs := metric.WithAttributes(attribute.String("optimizer.strategy", "bounds"))
		e.metrics.PlansEvaluatedCounter.Add(ctx, evaluated, attrs)
		e.metrics.SearchLatency.Record(ctx, time.Since(start).Milliseconds(), attrs)
	}()

	relations := e.dir.Relations()
	if len(relations) == 0 {
		return nil, nil, false, nil
	}
	lo, hi, evaluated, err := e.exhaustiveBounds(ctx, relations)
	if err != nil {
		return nil, nil, false, err
	}
	if best, err = e.evaluate(lo); err != nil {
		return nil, nil, false, err
	}
	if worst, err = e.evaluate(hi); err != nil {
		return nil, nil, false, err
	}
	e.logger.Debug("exhaustive bounds finished",
		zap.Stringer("best", best.Tree),
		zap.Stringer("worst", worst.Tree),
		zap.Int64("plans_evaluated", evaluated),
		zap.Duration("elapsed", time.Since(start)),
	)
	return best, worst, true, nil
}

// GreedyMinCardinality grows a left-deep tree from the smallest relation,
// each step appending the relation that gives the smallest join result.
func (e *Enumerator) GreedyMinCardinality(ctx context.Context) (*Plan, bool, error) {
	return e.Run(ctx, StrategyGreedyMinCardinality)
}

// GreedyMinCost grows a left-deep tree from the smallest relation, each step
// appending the relation with the smallest incremental cost.
func (e *Enumerator) GreedyMinCost(ctx context.Context) (*Plan, bool, error) {
	return e.Run(ctx, StrategyGreedyMinCost)
}

// GreedyBestStart runs GreedyMinCost from every starting relation and keeps
// the cheapest result.
func (e *Enumerator) GreedyBestStart(ctx context.Context) (*Plan, bool, error) {
	return e.Run(ctx, StrategyGreedyBestStart)
}

func (e *Enumerator) evaluate(tree JoinTree) (*Plan, error) {
	cost, err := e.model.Cost(tree)
	if err != nil {
		return nil, err
	}
	card, err := e.model.Cardinality(tree)
	if err != nil {
		return nil, err
	}
	return &Plan{Tree: tree, Cost: cost, Cardinality: card}, nil
}

// smallestRelation returns the first relation of minimum cardinality.
func smallestRelation(relations []catalog.Relation) string {
	best := relations[0]
	for _, r := range relations[1:] {
		if r.Cardinality < best.Cardinality {
			best = r
		}
	}
	return best.Name
}

// checkCanceled is polled inside the search loops.
func checkCanceled(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// errTooMany builds the error returned when exhaustive search is refused.
func (e *Enumerator) errTooMany(n int) error {
	return fmt.Errorf("%w: %d relations, limit is %d", dberror.ErrTooManyRelations, n, e.maxExhaustive)
}
