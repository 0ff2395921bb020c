package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sushant-115/tuplelab/core/catalog"
	"github.com/sushant-115/tuplelab/core/indexing/secondary"
	"github.com/sushant-115/tuplelab/core/optimizer"
	"github.com/sushant-115/tuplelab/core/recordstore"
	"github.com/sushant-115/tuplelab/core/storage_engine/blockstorage"
	"github.com/sushant-115/tuplelab/core/storage_engine/ingest"
	"github.com/sushant-115/tuplelab/pkg/config"
	"github.com/sushant-115/tuplelab/pkg/telemetry"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const defaultIndexTuples = 500000

var errUsage = errors.New("usage")

func usageError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", errUsage, fmt.Sprintf(format, args...))
}

// app holds one session: a record store that lives until the process exits,
// plus the collaborators every command needs.
type app struct {
	cfg    config.Config
	logger *zap.Logger
	tel    *telemetry.Telemetry
	out    io.Writer

	blocks *blockstorage.MemoryStorage
	store  *recordstore.Store
}

func newApp(cfg config.Config, logger *zap.Logger, tel *telemetry.Telemetry, out io.Writer) *app {
	return &app{cfg: cfg, logger: logger, tel: tel, out: out}
}

func (a *app) close() {
	if a.store != nil {
		a.store.Close()
	}
}

// recordStore creates the session store on first use.
func (a *app) recordStore() (*recordstore.Store, error) {
	if a.store != nil {
		return a.store, nil
	}
	blocks, err := blockstorage.NewMemoryStorage(a.cfg.Storage.PageSize, a.logger)
	if err != nil {
		return nil, err
	}
	store, err := recordstore.New(blocks, a.cfg.Storage.NumPointers, recordstore.Options{
		Logger:       a.logger,
		Telemetry:    a.tel,
		CacheEntries: a.cfg.Storage.RecordCacheEntries,
	})
	if err != nil {
		return nil, err
	}
	a.blocks, a.store = blocks, store
	return store, nil
}

// dispatch runs one command line. args[0] is the command name.
func (a *app) dispatch(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return nil
	}
	switch strings.ToLower(args[0]) {
	case "load":
		if len(args) != 2 {
			return usageError("load <orders file>")
		}
		return a.load(ctx, args[1])
	case "get":
		if len(args) != 3 {
			return usageError("get <page> <slot>")
		}
		return a.get(ctx, args[1], args[2])
	case "stats":
		return a.stats(ctx)
	case "plan":
		if len(args) < 2 {
			return usageError("plan <metadata file> [strategy ...]")
		}
		return a.plan(ctx, args[1], args[2:])
	case "index":
		return a.index(args[1:])
	default:
		return usageError("unknown command %q", args[0])
	}
}

func (a *app) load(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open tuple source: %w", err)
	}
	defer f.Close()

	store, err := a.recordStore()
	if err != nil {
		return err
	}
	start := time.Now()
	report, err := ingest.NewLoader(store, a.cfg.Loader, a.logger).Load(ctx, f)
	if err != nil {
		return err
	}
	a.logger.Info("Load finished", zap.String("path", path), zap.Duration("elapsed", time.Since(start)))

	fmt.Fprintf(a.out, "inserted:    %s tuples\n", humanize.Comma(int64(report.Inserted)))
	if a.cfg.Loader.Verify {
		fmt.Fprintf(a.out, "mismatched:  %s\n", humanize.Comma(int64(report.Mismatched)))
	}
	if report.Inserted > 0 {
		fmt.Fprintf(a.out, "last tuple:  %s\n", report.Last)
	}
	fmt.Fprintf(a.out, "pages:       %s (%s)\n",
		humanize.Comma(int64(report.Pages)),
		humanize.IBytes(uint64(a.blocks.TotalBytesAllocated())))
	fmt.Fprintf(a.out, "utilization: %.2f%%\n", report.Utilization*100)
	if report.Mismatched > 0 {
		return fmt.Errorf("%d tuples read back differently than written", report.Mismatched)
	}
	return nil
}

func (a *app) get(ctx context.Context, pageArg, slotArg string) error {
	page, err := strconv.ParseUint(pageArg, 10, 64)
	if err != nil {
		return usageError("page id %q is not a number", pageArg)
	}
	slot, err := strconv.Atoi(slotArg)
	if err != nil {
		return usageError("slot %q is not a number", slotArg)
	}
	store, err := a.recordStore()
	if err != nil {
		return err
	}
	order, err := store.Retrieve(ctx, recordstore.TupleIdentifier{PageID: blockstorage.PageID(page), Slot: slot})
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, order)
	return nil
}

func (a *app) stats(ctx context.Context) error {
	store, err := a.recordStore()
	if err != nil {
		return err
	}
	pages, err := store.PageStats(ctx)
	if err != nil {
		return err
	}
	util, err := store.SpaceUtilization(ctx)
	if err != nil {
		return err
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "PAGE\tSLOTS\tFREE")
	for _, p := range pages {
		fmt.Fprintf(tw, "%d\t%d/%d\t%s\n", p.PageID, p.OccupiedSlots, store.Layout().NumPointers, humanize.IBytes(uint64(p.FreeBytes)))
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%s pages, utilization %.2f%%\n", humanize.Comma(int64(len(pages))), util*100)
	return nil
}

// plan runs the named strategies, or all of them, concurrently against one
// directory and prints the results in the order requested.
func (a *app) plan(ctx context.Context, path string, names []string) error {
	dir, err := catalog.LoadMetadataFile(path)
	if err != nil {
		return err
	}
	enumerator, err := optimizer.NewEnumerator(dir, optimizer.Options{
		MaxExhaustiveRelations: a.cfg.Optimizer.MaxExhaustiveRelations,
		Logger:                 a.logger,
		Telemetry:              a.tel,
	})
	if err != nil {
		return err
	}

	strategies := optimizer.AllStrategies
	if len(names) > 0 {
		strategies = make([]optimizer.Strategy, len(names))
		for i, n := range names {
			strategies[i] = optimizer.Strategy(strings.ToLower(n))
		}
	}

	type result struct {
		plan *optimizer.Plan
		ok   bool
		err  error
	}
	results := make([]result, len(strategies))
	g, gctx := errgroup.WithContext(ctx)

	// best and worst share one enumeration so only one memo is alive.
	bestAt, worstAt := -1, -1
	for i, s := range strategies {
		switch s {
		case optimizer.StrategyExhaustiveBest:
			bestAt = i
		case optimizer.StrategyExhaustiveWorst:
			worstAt = i
		}
	}
	shared := bestAt >= 0 && worstAt >= 0
	if shared {
		g.Go(func() error {
			best, worst, ok, err := enumerator.ExhaustiveBounds(gctx)
			results[bestAt] = result{plan: best, ok: ok, err: err}
			results[worstAt] = result{plan: worst, ok: ok, err: err}
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	for i, s := range strategies {
		if shared && (i == bestAt || i == worstAt) {
			continue
		}
		g.Go(func() error {
			plan, ok, err := enumerator.Run(gctx, s)
			results[i] = result{plan: plan, ok: ok, err: err}
			if errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	fmt.Fprintf(a.out, "%d relations\n", len(dir.Relations()))
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STRATEGY\tCOST\tROWS\tCROSS\tPLAN")
	for i, s := range strategies {
		r := results[i]
		switch {
		case r.err != nil:
			fmt.Fprintf(tw, "%s\t-\t-\t-\terror: %v\n", s, r.err)
		case !r.ok:
			fmt.Fprintf(tw, "%s\t-\t-\t-\tno relations\n", s)
		default:
			cross := "no"
			if enumerator.CostModel().HasCrossProduct(r.plan.Tree) {
				cross = "yes"
			}
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", s,
				humanize.Comma(r.plan.Cost), humanize.Comma(r.plan.Cardinality), cross, r.plan.Tree)
		}
	}
	return tw.Flush()
}

func (a *app) index(args []string) error {
	n, seed := defaultIndexTuples, time.Now().UnixNano()
	var err error
	if len(args) > 0 {
		if n, err = strconv.Atoi(args[0]); err != nil || n < 0 {
			return usageError("index [tuples] [seed]")
		}
	}
	if len(args) > 1 {
		if seed, err = strconv.ParseInt(args[1], 10, 64); err != nil {
			return usageError("index [tuples] [seed]")
		}
	}
	if len(args) > 2 {
		return usageError("index [tuples] [seed]")
	}

	gen := secondary.NewGenerator(rand.New(rand.NewSource(seed)), n)
	query := gen.RandomValue()
	a.logger.Debug("Generated index data", zap.Int("tuples", n), zap.Int64("seed", seed), zap.String("query", query))

	fmt.Fprintf(a.out, "%s tuples, query %q\n", humanize.Comma(int64(n)), query)
	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "INDEX\tBUILD\tEQUAL\tROWS\tGREATER-EQUAL\tROWS")
	for _, build := range secondary.Builders {
		m := secondary.Measure(gen.Tuples, query, build)
		fmt.Fprintf(tw, "%s\t%v\t%v\t%d\t%v\t%d\n", m.Kind, m.Build, m.Equal, m.EqualRows, m.GreaterEqual, m.GreaterEqRows)
	}
	return tw.Flush()
}
