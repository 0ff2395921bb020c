package catalog

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/tuplelab/core/dberror"
)

const sampleMetadata = `
R1 100
R2 200
R3   50

R1 R2 0.5
R3 R2 0.01
`

func TestParseMetadata(t *testing.T) {
	dir, err := ParseMetadata(strings.NewReader(sampleMetadata))
	require.NoError(t, err)

	require.Equal(t, []Relation{{"R1", 100}, {"R2", 200}, {"R3", 50}}, dir.Relations())

	size, err := dir.Size("R2")
	require.NoError(t, err)
	require.Equal(t, int64(200), size)

	require.Equal(t, 0.5, dir.Selectivity("R1", "R2"))
	require.Equal(t, 0.5, dir.Selectivity("R2", "R1"), "selectivity is symmetric")
	require.Equal(t, 0.01, dir.Selectivity("R2", "R3"))
	require.Equal(t, 1.0, dir.Selectivity("R1", "R3"), "missing pair means cross product")
}

func TestSize_UnknownRelation(t *testing.T) {
	dir, err := ParseMetadata(strings.NewReader(sampleMetadata))
	require.NoError(t, err)
	_, err = dir.Size("R9")
	require.ErrorIs(t, err, dberror.ErrUnknownRelation)
}

func TestJoinSize(t *testing.T) {
	dir, err := ParseMetadata(strings.NewReader(sampleMetadata))
	require.NoError(t, err)

	n, err := JoinSize(dir, "R1", "R2")
	require.NoError(t, err)
	require.Equal(t, int64(10000), n)

	n, err = JoinSize(dir, "R1", "R3")
	require.NoError(t, err)
	require.Equal(t, int64(5000), n)

	_, err = JoinSize(dir, "R1", "nope")
	require.ErrorIs(t, err, dberror.ErrUnknownRelation)
}

func TestParseMetadata_Errors(t *testing.T) {
	cases := map[string]struct {
		input string
		line  int
	}{
		"non numeric size":        {"R1 100\nR2 lots\n", 2},
		"non numeric selectivity": {"R1 1\nR2 2\nR1 R2 half\n", 3},
		"too many tokens":         {"R1 1 2 3\n", 1},
		"single token":            {"R1\n", 1},
		"duplicate relation":      {"R1 1\nR1 2\n", 2},
		"selectivity above one":   {"R1 1\nR2 2\nR1 R2 1.5\n", 3},
		"zero selectivity":        {"R1 1\nR2 2\nR1 R2 0\n", 3},
		"negative cardinality":    {"R1 -4\n", 1},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseMetadata(strings.NewReader(tc.input))
			require.ErrorIs(t, err, dberror.ErrMetadataParse)
			var perr *MetadataParseError
			require.True(t, errors.As(err, &perr))
			require.Equal(t, tc.line, perr.Line)
		})
	}
}

func TestParseMetadata_UndeclaredRelationInSelectivity(t *testing.T) {
	_, err := ParseMetadata(strings.NewReader("R1 1\nR1 R2 0.5\n"))
	require.ErrorIs(t, err, dberror.ErrMetadataParse)
	require.ErrorIs(t, err, dberror.ErrUnknownRelation)
}

func TestLoadMetadataFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "data.txt")
	require.NoError(t, os.WriteFile(path, []byte(sampleMetadata), 0o600))

	dir, err := LoadMetadataFile(path)
	require.NoError(t, err)
	require.Len(t, dir.Relations(), 3)

	_, err = LoadMetadataFile(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestJoinSize_OverflowAtTwoToThe63(t *testing.T) {
	b := NewBuilder()
	require.NoError(t, b.AddRelation("A", 1<<32))
	require.NoError(t, b.AddRelation("B", 1<<31))
	dir, err := b.Build()
	require.NoError(t, err)

	_, err = JoinSize(dir, "A", "B")
	require.ErrorIs(t, err, dberror.ErrCardinalityOverflow)
}
