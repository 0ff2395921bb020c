package ingest

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/sushant-115/tuplelab/core/dberror"
	"github.com/sushant-115/tuplelab/core/recordstore"
	"github.com/sushant-115/tuplelab/core/storage_engine/blockstorage"
	"github.com/sushant-115/tuplelab/core/tuple"
	"go.uber.org/zap/zaptest"
)

const lastLine = "4000|69568|F|133466.83|1992-01-04|5-LOW|Clerk#000000339|0|le carefully closely even pinto beans. regular, ironic foxes against the|"

func setupLoader(t *testing.T, cfg Config) (*Loader, *recordstore.Store) {
	t.Helper()
	logger := zaptest.NewLogger(t)
	storage, err := blockstorage.NewMemoryStorage(blockstorage.DefaultPageSize, logger)
	require.NoError(t, err)
	store, err := recordstore.New(storage, 5, recordstore.Options{Logger: logger})
	require.NoError(t, err)
	return NewLoader(store, cfg, logger), store
}

func ordersSource(n int) string {
	var sb strings.Builder
	for i := 1; i < n; i++ {
		fmt.Fprintf(&sb, "%d|%d|O|%d.5|1996-01-02|1-URGENT|Clerk#%09d|0|comment number %d|\n", i, i*3, i*10, i, i)
	}
	sb.WriteString(lastLine + "\n")
	return sb.String()
}

func TestLoad_VerifiesEveryRecord(t *testing.T) {
	loader, store := setupLoader(t, Config{Verify: true})
	ctx := context.Background()

	report, err := loader.Load(ctx, strings.NewReader(ordersSource(50)))
	require.NoError(t, err)
	require.Equal(t, 50, report.Inserted)
	require.Zero(t, report.Mismatched)
	require.Greater(t, report.Pages, 1)
	require.Greater(t, report.Utilization, 0.0)
	require.LessOrEqual(t, report.Utilization, 1.0)

	got, err := store.Retrieve(ctx, report.Last)
	require.NoError(t, err)
	want, err := tuple.ParseOrderLine(lastLine)
	require.NoError(t, err)
	require.True(t, want.Equal(got))
}

func TestLoad_StopsOnParseError(t *testing.T) {
	loader, _ := setupLoader(t, Config{})
	report, err := loader.Load(context.Background(), strings.NewReader(lastLine+"\nnot an order\n"))
	require.ErrorIs(t, err, dberror.ErrParse)
	require.Equal(t, 1, report.Inserted)
}

func TestLoad_ThrottleHonorsContext(t *testing.T) {
	loader, _ := setupLoader(t, Config{RatePerSecond: 0.5, Burst: 1})
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	report, err := loader.Load(ctx, strings.NewReader(ordersSource(5)))
	require.Error(t, err)
	require.Contains(t, err.Error(), "throttle")
	require.Equal(t, 1, report.Inserted, "the first record uses the initial burst token")
}
