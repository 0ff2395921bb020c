package catalog

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/sushant-115/tuplelab/core/dberror"
)

// MetadataParseError reports the line of a metadata file that failed.
type MetadataParseError struct {
	Line   int
	Text   string
	Reason string
}

func (e *MetadataParseError) Error() string {
	return fmt.Sprintf("metadata line %d %q: %s", e.Line, e.Text, e.Reason)
}

func (e *MetadataParseError) Unwrap() error { return dberror.ErrMetadataParse }

// ParseMetadata reads whitespace-separated metadata lines:
//
//	<relation> <cardinality>
//	<relationA> <relationB> <selectivity>
//
// Blank lines are skipped. Any other shape fails the load.
func ParseMetadata(r io.Reader) (*MemoryDirectory, error) {
	b := NewBuilder()
	scanner := bufio.NewScanner(r)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		text := scanner.Text()
		fields := strings.Fields(text)
		fail := func(reason string) error {
			return &MetadataParseError{Line: lineNo, Text: text, Reason: reason}
		}

		switch len(fields) {
		case 0:
			continue
		case 2:
			card, err := strconv.ParseInt(fields[1], 10, 64)
			if err != nil {
				return nil, fail(fmt.Sprintf("expected integer cardinality, got %q", fields[1]))
			}
			if err := b.AddRelation(fields[0], card); err != nil {
				return nil, fail(err.Error())
			}
		case 3:
			factor, err := strconv.ParseFloat(fields[2], 64)
			if err != nil {
				return nil, fail(fmt.Sprintf("expected numeric selectivity, got %q", fields[2]))
			}
			if err := b.SetSelectivity(fields[0], fields[1], factor); err != nil {
				return nil, fail(err.Error())
			}
		default:
			return nil, fail(fmt.Sprintf("expected 2 or 3 tokens, got %d", len(fields)))
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("reading metadata: %w", err)
	}
	dir, err := b.Build()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", dberror.ErrMetadataParse, err)
	}
	return dir, nil
}

// LoadMetadataFile parses the metadata file at path.
func LoadMetadataFile(path string) (*MemoryDirectory, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening metadata file: %w", err)
	}
	defer f.Close()
	return ParseMetadata(f)
}
