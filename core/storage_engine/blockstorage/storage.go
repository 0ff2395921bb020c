// Package blockstorage hands out fixed-size pages by integer id. It knows
// nothing about what a page contains.
package blockstorage

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sushant-115/tuplelab/core/dberror"
	"go.uber.org/zap"
)

// DefaultPageSize is the page size used when none is configured.
const DefaultPageSize = 512

// PageID identifies a page. IDs start at 0 and are never reused.
type PageID uint64

// Storage is the contract the record store relies on.
type Storage interface {
	// Allocate creates a zeroed page and returns its id.
	Allocate() (PageID, error)
	// Read returns a copy of the page contents.
	Read(id PageID) ([]byte, error)
	// Write replaces the full page contents.
	Write(id PageID, data []byte) error
	// PageIDs returns every allocated id in ascending order.
	PageIDs() []PageID
	PageSize() int
}

// MemoryStorage keeps pages in a map. Each Read and Write is atomic at page
// granularity; there is no cross-page consistency.
type MemoryStorage struct {
	mu       sync.RWMutex
	pages    map[PageID][]byte
	nextID   PageID
	pageSize int
	logger   *zap.Logger
}

// NewMemoryStorage creates an empty storage with the given page size.
func NewMemoryStorage(pageSize int, logger *zap.Logger) (*MemoryStorage, error) {
	if pageSize <= 0 {
		return nil, fmt.Errorf("%w: page size must be positive, got %d", dberror.ErrInvalidPageSize, pageSize)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MemoryStorage{
		pages:    make(map[PageID][]byte),
		pageSize: pageSize,
		logger:   logger.Named("block_storage"),
	}, nil
}

func (s *MemoryStorage) Allocate() (PageID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.pages[id] = make([]byte, s.pageSize)
	s.nextID++
	s.logger.Debug("allocated page", zap.Uint64("page_id", uint64(id)))
	return id, nil
}

func (s *MemoryStorage) Read(id PageID) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.pages[id]
	if !ok {
		return nil, fmt.Errorf("%w: page %d", dberror.ErrPageNotFound, id)
	}
	// Callers mutate the buffer they get back; only Write publishes it.
	out := make([]byte, s.pageSize)
	copy(out, data)
	return out, nil
}

func (s *MemoryStorage) Write(id PageID, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.pages[id]; !ok {
		return fmt.Errorf("%w: page %d", dberror.ErrPageNotFound, id)
	}
	if len(data) != s.pageSize {
		return fmt.Errorf("%w: got %d bytes, page size is %d", dberror.ErrInvalidPageSize, len(data), s.pageSize)
	}
	dest := make([]byte, s.pageSize)
	copy(dest, data)
	s.pages[id] = dest
	return nil
}

func (s *MemoryStorage) PageIDs() []PageID {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := make([]PageID, 0, len(s.pages))
	for id := range s.pages {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func (s *MemoryStorage) PageSize() int { return s.pageSize }

// NumPages returns the number of allocated pages.
func (s *MemoryStorage) NumPages() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pages)
}

// TotalBytesAllocated is NumPages times the page size.
func (s *MemoryStorage) TotalBytesAllocated() int {
	return s.NumPages() * s.pageSize
}
