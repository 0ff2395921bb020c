// Package recordstore places Order records on slotted pages and reads them
// back by tuple identifier.
package recordstore

import (
	"context"
	"fmt"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/sushant-115/tuplelab/core/dberror"
	"github.com/sushant-115/tuplelab/core/storage_engine/blockstorage"
	"github.com/sushant-115/tuplelab/core/tuple"
	pagemanager "github.com/sushant-115/tuplelab/core/write_engine/page_manager"
	internaltelemetry "github.com/sushant-115/tuplelab/internal/telemetry"
	"github.com/sushant-115/tuplelab/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
	otelcodes "go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// TupleIdentifier addresses one record: the page it lives on and its slot in
// that page's pointer directory.
type TupleIdentifier struct {
	PageID blockstorage.PageID
	Slot   int
}

func (t TupleIdentifier) String() string {
	return fmt.Sprintf("(%d,%d)", t.PageID, t.Slot)
}

// Options configures a Store. Zero values are usable.
type Options struct {
	Logger    *zap.Logger
	Telemetry *telemetry.Telemetry
	// CacheEntries bounds the decoded record cache. 0 disables it.
	CacheEntries int64
}

// Store is the record store. It is not safe for concurrent Store calls: page
// selection scans pages in id order and assumes nobody else is writing.
type Store struct {
	storage blockstorage.Storage
	layout  pagemanager.Layout
	cache   *ristretto.Cache[uint64, *tuple.Order]

	logger      *zap.Logger
	tracer      trace.Tracer
	metrics     *internaltelemetry.StoreMetrics
	serviceName string
}

// New creates a store over storage with numPointers slots per page.
func New(storage blockstorage.Storage, numPointers int, opts Options) (*Store, error) {
	layout, err := pagemanager.NewLayout(storage.PageSize(), numPointers)
	if err != nil {
		return nil, err
	}
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	tel := opts.Telemetry
	if tel == nil {
		tel = telemetry.Noop()
	}
	metrics, err := internaltelemetry.NewStoreMetrics(tel.Meter)
	if err != nil {
		return nil, fmt.Errorf("failed to create record store metrics: %w", err)
	}

	s := &Store{
		storage:     storage,
		layout:      layout,
		logger:      logger.Named("record_store"),
		tracer:      tel.Tracer,
		metrics:     metrics,
		serviceName: "recordstore",
	}
	if opts.CacheEntries > 0 {
		s.cache, err = ristretto.NewCache(&ristretto.Config[uint64, *tuple.Order]{
			NumCounters: opts.CacheEntries * 10,
			MaxCost:     opts.CacheEntries,
			BufferItems: 64,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to create record cache: %w", err)
		}
	}
	return s, nil
}

// Layout returns the page geometry the store writes with.
func (s *Store) Layout() pagemanager.Layout { return s.layout }

// Close releases the record cache.
func (s *Store) Close() {
	if s.cache != nil {
		s.cache.Close()
	}
}

// cacheKey packs a validated identifier; the slot must already be in range.
func (s *Store) cacheKey(tid TupleIdentifier) uint64 {
	return uint64(tid.PageID)<<32 | uint64(uint32(tid.Slot))
}

// Store serializes order and writes it to the first page, in ascending id
// order, that has both a free slot and room for the framed record. A new page
// is allocated when none does.
func (s *Store) Store(ctx context.Context, order *tuple.Order) (tid TupleIdentifier, err error) {
	ctx, span, start := s.startMetricsAndTrace(ctx, "Store")
	defer func() { s.endMetricsAndTrace(ctx, span, start, "Store", err) }()

	payload, err := order.Serialize()
	if err != nil {
		return TupleIdentifier{}, err
	}
	if len(payload) > s.layout.MaxPayloadSize() {
		return TupleIdentifier{}, fmt.Errorf("%w: %d byte record, page holds at most %d", dberror.ErrRecordTooLarge, len(payload), s.layout.MaxPayloadSize())
	}

	pageID, page, slot, err := s.findPage(ctx, len(payload))
	if err != nil {
		return TupleIdentifier{}, err
	}
	updated, err := s.layout.WriteRecord(page, slot, payload)
	if err != nil {
		return TupleIdentifier{}, fmt.Errorf("writing record to page %d: %w", pageID, err)
	}
	if err := s.storage.Write(pageID, updated); err != nil {
		return TupleIdentifier{}, err
	}

	tid = TupleIdentifier{PageID: pageID, Slot: slot}
	s.metrics.RecordsStoredCounter.Add(ctx, 1)
	s.logger.Debug("stored record",
		zap.Int32("order_key", order.OrderKey),
		zap.Uint64("page_id", uint64(pageID)),
		zap.Int("slot", slot),
		zap.Int("bytes", pagemanager.FramedSize(len(payload))),
	)
	return tid, nil
}

// findPage returns the first page able to take a payload of the given size,
// allocating one if needed.
func (s *Store) findPage(ctx context.Context, payloadLen int) (blockstorage.PageID, []byte, int, error) {
	for _, id := range s.storage.PageIDs() {
		page, err := s.storage.Read(id)
		if err != nil {
			return 0, nil, 0, err
		}
		slot, ok, err := s.layout.Fits(page, payloadLen)
		if err != nil {
			return 0, nil, 0, fmt.Errorf("inspecting page %d: %w", id, err)
		}
		if ok {
			return id, page, slot, nil
		}
	}

	id, err := s.storage.Allocate()
	if err != nil {
		return 0, nil, 0, err
	}
	s.metrics.PagesAllocatedCounter.Add(ctx, 1)
	s.logger.Debug("allocated page for record", zap.Uint64("page_id", uint64(id)))
	page, err := s.storage.Read(id)
	if err != nil {
		return 0, nil, 0, err
	}
	return id, page, 0, nil
}

// Retrieve reads the record tid addresses. Reading a slot that was never
// written returns ErrEmptySlot; that is a caller bug, not a transient state.
func (s *Store) Retrieve(ctx context.Context, tid TupleIdentifier) (order *tuple.Order, err error) {
	ctx, span, start := s.startMetricsAndTrace(ctx, "Retrieve")
	defer func() { s.endMetricsAndTrace(ctx, span, start, "Retrieve", err) }()

	if err := s.layout.CheckSlot(tid.Slot); err != nil {
		return nil, fmt.Errorf("reading %s: %w", tid, err)
	}
	if s.cache != nil {
		if cached, ok := s.cache.Get(s.cacheKey(tid)); ok {
			s.metrics.CacheHitsCounter.Add(ctx, 1)
			cp := *cached
			return &cp, nil
		}
	}

	page, err := s.storage.Read(tid.PageID)
	if err != nil {
		return nil, err
	}
	payload, err := s.layout.ReadRecord(page, tid.Slot)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", tid, err)
	}
	order, err = tuple.Deserialize(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding %s: %w", tid, err)
	}

	if s.cache != nil {
		cp := *order
		s.cache.Set(s.cacheKey(tid), &cp, 1)
	}
	return order, nil
}

// SpaceUtilization is the fraction of allocated bytes not reported free by
// the codec. The pointer directory counts as used. A store without pages has
// utilization 0.
func (s *Store) SpaceUtilization(ctx context.Context) (float64, error) {
	stats, err := s.PageStats(ctx)
	if err != nil {
		return 0, err
	}
	if len(stats) == 0 {
		return 0, nil
	}
	pageSize := s.layout.PageSize
	used := 0
	for _, st := range stats {
		used += pageSize - st.FreeBytes
	}
	return float64(used) / float64(len(stats)*pageSize), nil
}

// PageStat describes one page's occupancy.
type PageStat struct {
	PageID        blockstorage.PageID
	OccupiedSlots int
	FreeBytes     int
}

// PageStats reports occupancy for every allocated page in id order.
func (s *Store) PageStats(ctx context.Context) ([]PageStat, error) {
	ids := s.storage.PageIDs()
	stats := make([]PageStat, 0, len(ids))
	for _, id := range ids {
		page, err := s.storage.Read(id)
		if err != nil {
			return nil, err
		}
		free, err := s.layout.FreeSpace(page)
		if err != nil {
			return nil, fmt.Errorf("inspecting page %d: %w", id, err)
		}
		occupied, err := s.layout.OccupiedSlots(page)
		if err != nil {
			return nil, err
		}
		stats = append(stats, PageStat{PageID: id, OccupiedSlots: occupied, FreeBytes: free})
	}
	return stats, nil
}

// startMetricsAndTrace begins the telemetry recording for a store operation.
func (s *Store) startMetricsAndTrace(ctx context.Context, op string) (context.Context, trace.Span, time.Time) {
	ctx, span := s.tracer.Start(ctx, s.serviceName+"."+op, trace.WithAttributes(
		attribute.String("recordstore.operation", op),
	))
	return ctx, span, time.Now()
}

// endMetricsAndTrace completes the telemetry recording for a store operation.
func (s *Store) endMetricsAndTrace(ctx context.Context, span trace.Span, start time.Time, op string, err error) {
	statusCode := otelcodes.Ok
	if err != nil {
		statusCode = otelcodes.Error
		span.RecordError(err)
		span.SetStatus(otelcodes.Error, err.Error())
	} else {
		span.SetStatus(otelcodes.Ok, "Success")
	}
	span.End()

	attrs := attribute.NewSet(
		attribute.String("recordstore.operation", op),
		attribute.String("recordstore.code", statusCode.String()),
	)
	s.metrics.OperationLatency.Record(ctx, time.Since(start).Milliseconds(), metric.WithAttributeSet(attrs))
}
