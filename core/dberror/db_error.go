package dberror

import "errors"

// --- Error Definitions ---

var (
	// Block storage
	ErrPageNotFound    = errors.New("page not found in block storage")
	ErrInvalidPageSize = errors.New("page buffer size does not match storage page size")

	// Slotted page codec
	ErrPageFull            = errors.New("not enough free space in page for record")
	ErrSlotOccupied        = errors.New("slot pointer is already in use")
	ErrEmptySlot           = errors.New("slot pointer is empty")
	ErrSlotIndexOutOfRange = errors.New("slot index out of range for pointer directory")
	ErrCorruptPage         = errors.New("page layout is corrupt")
	ErrRecordTooLarge      = errors.New("record too large to fit in an empty page")

	// Tuple encoding
	ErrSerialization   = errors.New("error during serialization")
	ErrDeserialization = errors.New("error during deserialization")
	ErrParse           = errors.New("malformed tuple line")

	// Relation metadata and planning
	ErrUnknownRelation     = errors.New("unknown relation")
	ErrMetadataParse       = errors.New("malformed relation metadata")
	ErrTooManyRelations    = errors.New("too many relations for exhaustive enumeration")
	ErrCardinalityOverflow = errors.New("estimated cardinality overflows int64")
)
