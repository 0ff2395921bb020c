// Package pagemanager encodes and decodes slotted pages.
//
// Page layout:
//
//	+-----------+-----------+-----+-----------------+------------------------+
//	| pointer 0 | pointer 1 | ... | free space      | records (grow <------) |
//	+-----------+-----------+-----+-----------------+------------------------+
//	  4 bytes each, big-endian       each record: 4-byte length + payload
//
// The pointer directory has a fixed number of entries. A pointer holds the
// byte offset of its record, or 0 when the slot is empty (offset 0 always
// falls inside the directory, so it never addresses a record). Records are
// packed against the end of the page: a new record starts at
// PageSize - occupied bytes - framed record size.
package pagemanager

import (
	"encoding/binary"
	"fmt"

	"github.com/sushant-115/tuplelab/core/dberror"
)

// --- Page Layout ---

const (
	PointerSize        = 4
	LengthPrefixSize   = 4
	DefaultNumPointers = 5
	EmptyPointer       = 0
)

// Layout describes the geometry shared by every page of a store. It holds no
// page state; all methods are pure functions of the buffer they are given.
type Layout struct {
	PageSize    int
	NumPointers int
}

// NewLayout validates the geometry. The pointer count is configuration, not
// derived from the page size.
func NewLayout(pageSize, numPointers int) (Layout, error) {
	l := Layout{PageSize: pageSize, NumPointers: numPointers}
	if numPointers <= 0 {
		return Layout{}, fmt.Errorf("%w: pointer directory needs at least one slot, got %d", dberror.ErrInvalidPageSize, numPointers)
	}
	if l.MaxPayloadSize() < 1 {
		return Layout{}, fmt.Errorf("%w: page size %d cannot hold %d pointers and a record", dberror.ErrInvalidPageSize, pageSize, numPointers)
	}
	return l, nil
}

// HeaderSize is the size of the pointer directory in bytes.
func (l Layout) HeaderSize() int { return l.NumPointers * PointerSize }

// MaxPayloadSize is the largest payload an empty page accepts.
func (l Layout) MaxPayloadSize() int { return l.PageSize - l.HeaderSize() - LengthPrefixSize }

// FramedSize is the number of bytes a payload occupies once length-prefixed.
func FramedSize(payloadLen int) int { return LengthPrefixSize + payloadLen }

func (l Layout) checkPage(page []byte) error {
	if len(page) != l.PageSize {
		return fmt.Errorf("%w: buffer is %d bytes, layout expects %d", dberror.ErrInvalidPageSize, len(page), l.PageSize)
	}
	return nil
}

// CheckSlot returns ErrSlotIndexOutOfRange unless slot is in [0, NumPointers).
func (l Layout) CheckSlot(slot int) error {
	if slot < 0 || slot >= l.NumPointers {
		return fmt.Errorf("%w: slot %d, directory has %d", dberror.ErrSlotIndexOutOfRange, slot, l.NumPointers)
	}
	return nil
}

func (l Layout) pointer(page []byte, slot int) int {
	return int(int32(binary.BigEndian.Uint32(page[slot*PointerSize:])))
}

func (l Layout) setPointer(page []byte, slot, offset int) {
	binary.BigEndian.PutUint32(page[slot*PointerSize:], uint32(int32(offset)))
}

// recordLength validates the record a non-empty pointer addresses and
// returns its payload length.
func (l Layout) recordLength(page []byte, slot, offset int) (int, error) {
	if offset < l.HeaderSize() || offset+LengthPrefixSize > l.PageSize {
		return 0, fmt.Errorf("%w: slot %d points at offset %d", dberror.ErrCorruptPage, slot, offset)
	}
	length := int(int32(binary.BigEndian.Uint32(page[offset:])))
	if length < 0 || offset+LengthPrefixSize+length > l.PageSize {
		return 0, fmt.Errorf("%w: slot %d record length %d at offset %d", dberror.ErrCorruptPage, slot, length, offset)
	}
	return length, nil
}

// usedBytes sums the framed size of every occupied slot. Empty slots count
// for nothing.
func (l Layout) usedBytes(page []byte) (int, error) {
	used := 0
	for slot := 0; slot < l.NumPointers; slot++ {
		offset := l.pointer(page, slot)
		if offset == EmptyPointer {
			continue
		}
		length, err := l.recordLength(page, slot, offset)
		if err != nil {
			return 0, err
		}
		used += FramedSize(length)
	}
	if used > l.PageSize-l.HeaderSize() {
		return 0, fmt.Errorf("%w: records occupy %d bytes, page holds %d", dberror.ErrCorruptPage, used, l.PageSize-l.HeaderSize())
	}
	return used, nil
}

// --- Codec Operations ---

// FreeSpace returns PageSize - HeaderSize - the framed size of every record.
func (l Layout) FreeSpace(page []byte) (int, error) {
	if err := l.checkPage(page); err != nil {
		return 0, err
	}
	used, err := l.usedBytes(page)
	if err != nil {
		return 0, err
	}
	return l.PageSize - l.HeaderSize() - used, nil
}

// FindFreeSlot returns the lowest empty slot. ok is false when every pointer
// is taken, however many bytes remain.
func (l Layout) FindFreeSlot(page []byte) (slot int, ok bool, err error) {
	if err := l.checkPage(page); err != nil {
		return 0, false, err
	}
	for slot := 0; slot < l.NumPointers; slot++ {
		if l.pointer(page, slot) == EmptyPointer {
			return slot, true, nil
		}
	}
	return 0, false, nil
}

// OccupiedSlots counts non-empty pointers.
func (l Layout) OccupiedSlots(page []byte) (int, error) {
	if err := l.checkPage(page); err != nil {
		return 0, err
	}
	n := 0
	for slot := 0; slot < l.NumPointers; slot++ {
		if l.pointer(page, slot) != EmptyPointer {
			n++
		}
	}
	return n, nil
}

// Fits reports the slot a payload of the given length would land in, and
// whether the page has both a free pointer and enough bytes for it.
func (l Layout) Fits(page []byte, payloadLen int) (slot int, ok bool, err error) {
	slot, hasSlot, err := l.FindFreeSlot(page)
	if err != nil || !hasSlot {
		return 0, false, err
	}
	free, err := l.FreeSpace(page)
	if err != nil {
		return 0, false, err
	}
	return slot, FramedSize(payloadLen) <= free, nil
}

// WriteRecord returns a copy of page with payload stored under slot. The
// input buffer is never modified, so a failed write leaves nothing behind.
func (l Layout) WriteRecord(page []byte, slot int, payload []byte) ([]byte, error) {
	if err := l.checkPage(page); err != nil {
		return nil, err
	}
	if err := l.CheckSlot(slot); err != nil {
		return nil, err
	}
	if l.pointer(page, slot) != EmptyPointer {
		return nil, fmt.Errorf("%w: slot %d", dberror.ErrSlotOccupied, slot)
	}
	used, err := l.usedBytes(page)
	if err != nil {
		return nil, err
	}
	framed := FramedSize(len(payload))
	free := l.PageSize - l.HeaderSize() - used
	if framed > free {
		return nil, fmt.Errorf("%w: record needs %d bytes, %d free", dberror.ErrPageFull, framed, free)
	}

	out := make([]byte, l.PageSize)
	copy(out, page)
	offset := l.PageSize - used - framed
	binary.BigEndian.PutUint32(out[offset:], uint32(len(payload)))
	copy(out[offset+LengthPrefixSize:], payload)
	l.setPointer(out, slot, offset)
	return out, nil
}

// ReadRecord returns a copy of the payload stored under slot.
func (l Layout) ReadRecord(page []byte, slot int) ([]byte, error) {
	if err := l.checkPage(page); err != nil {
		return nil, err
	}
	if err := l.CheckSlot(slot); err != nil {
		return nil, err
	}
	offset := l.pointer(page, slot)
	if offset == EmptyPointer {
		return nil, fmt.Errorf("%w: slot %d", dberror.ErrEmptySlot, slot)
	}
	length, err := l.recordLength(page, slot, offset)
	if err != nil {
		return nil, err
	}
	start := offset + LengthPrefixSize
	payload := make([]byte, length)
	copy(payload, page[start:start+length])
	return payload, nil
}
