package aggregator

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestHistoryWindowExpiry(t *testing.T) {
	t.Parallel()

	current := time.Date(2026, 9, 1, 10, 0, 0, 0, time.UTC)
	h := NewHistory(10 * time.Minute).WithClock(func() time.Time { return current })

	h.Record("maersk")
	h.Record("maersk")
	require.Equal(t, 2, h.RecentCount("maersk"))

	current = current.Add(11 * time.Minute)
	require.Equal(t, 0, h.RecentCount("maersk"))
	require.Empty(t, h.Snapshot())
}

func TestHistoryClearOnSuccess(t *testing.T) {
	t.Parallel()

	h := NewHistory(10 * time.Minute)
	h.Record("msc")
	h.Record("msc")
	h.Clear("msc")
	require.Equal(t, 0, h.RecentCount("msc"))
}

func TestHistoryBoundsEntries(t *testing.T) {
	t.Parallel()

	h := NewHistory(time.Hour)
	for i := 0; i < maxFailureEntries*2; i++ {
		h.Record("cosco")
	}
	require.Equal(t, maxFailureEntries, h.RecentCount("cosco"))
}

func TestHistorySnapshotIsACopy(t *testing.T) {
	t.Parallel()

	h := NewHistory(time.Hour)
	h.Record("maersk")
	snap := h.Snapshot()
	snap["maersk"] = 99
	require.Equal(t, 1, h.RecentCount("maersk"))
}

func TestHistoryConcurrentAccess(t *testing.T) {
	t.Parallel()

	h := NewHistory(time.Hour)
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			name := fmt.Sprintf("provider-%d", i%4)
			for j := 0; j < 50; j++ {
				h.Record(name)
				h.RecentCount(name)
			}
		}(i)
	}
	wg.Wait()
	for name, count := range h.Snapshot() {
		require.LessOrEqual(t, count, maxFailureEntries, name)
	}
}
