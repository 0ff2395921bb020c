// Package ingest bulk loads a pipe-delimited orders source into a record
// store, optionally throttled and with read-back verification.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/sushant-115/tuplelab/core/recordstore"
	"github.com/sushant-115/tuplelab/core/tuple"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config controls a load.
type Config struct {
	// RatePerSecond caps inserted records per second. 0 means unlimited.
	RatePerSecond float64 `yaml:"rate_per_second"`
	// Burst is the limiter bucket size. Defaults to 1.
	Burst int `yaml:"burst"`
	// Verify reads back each previously inserted record after every insert
	// and compares it with what was written.
	Verify bool `yaml:"verify"`
}

// Report summarizes a finished load.
type Report struct {
	Inserted    int
	Mismatched  int
	Last        recordstore.TupleIdentifier
	Pages       int
	Utilization float64
}

// Loader feeds orders into a store.
type Loader struct {
	store   *recordstore.Store
	limiter *rate.Limiter
	verify  bool
	logger  *zap.Logger
}

func NewLoader(store *recordstore.Store, cfg Config, logger *zap.Logger) *Loader {
	if logger == nil {
		logger = zap.NewNop()
	}
	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}
	return &Loader{
		store:   store,
		limiter: limiter,
		verify:  cfg.Verify,
		logger:  logger.Named("ingest"),
	}
}

// Load inserts every order read from src. A parse or storage error stops the
// load; a verification mismatch is counted and the load continues.
func (l *Loader) Load(ctx context.Context, src io.Reader) (Report, error) {
	var (
		report    Report
		reader    = tuple.NewReader(src)
		prevTID   recordstore.TupleIdentifier
		prevOrder *tuple.Order
	)

	for {
		order, err := reader.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return report, err
		}
		if l.limiter != nil {
			if err := l.limiter.Wait(ctx); err != nil {
				return report, fmt.Errorf("throttle: %w", err)
			}
		}

		tid, err := l.store.Store(ctx, order)
		if err != nil {
			return report, fmt.Errorf("line %d: storing order %d: %w", reader.Line(), order.OrderKey, err)
		}
		report.Inserted++

		if l.verify && prevOrder != nil {
			if err := l.check(ctx, prevTID, prevOrder, &report); err != nil {
				return report, err
			}
		}
		prevTID, prevOrder = tid, order
		report.Last = tid
	}

	if l.verify && prevOrder != nil {
		if err := l.check(ctx, prevTID, prevOrder, &report); err != nil {
			return report, err
		}
	}

	stats, err := l.store.PageStats(ctx)
	if err != nil {
		return report, err
	}
	report.Pages = len(stats)
	if report.Utilization, err = l.store.SpaceUtilization(ctx); err != nil {
		return report, err
	}

	l.logger.Info("load finished",
		zap.Int("inserted", report.Inserted),
		zap.Int("mismatched", report.Mismatched),
		zap.Int("pages", report.Pages),
		zap.Float64("utilization", report.Utilization),
	)
	return report, nil
}

func (l *Loader) check(ctx context.Context, tid recordstore.TupleIdentifier, want *tuple.Order, report *Report) error {
	got, err := l.store.Retrieve(ctx, tid)
	if err != nil {
		return fmt.Errorf("verifying %s: %w", tid, err)
	}
	if !want.Equal(got) {
		report.Mismatched++
		l.logger.Warn("read-back mismatch",
			zap.Stringer("tid", tid),
			zap.String("wanted", want.String()),
			zap.String("got", got.String()),
		)
	}
	return nil
}
