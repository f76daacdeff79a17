package remote

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/gophjournal/internal/client/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeFetcher struct {
	calls   atomic.Int32
	release chan struct{}
	value   models.Limits
	err     error
}

func (f *fakeFetcher) GetLimits(ctx context.Context) (models.Limits, error) {
	f.calls.Add(1)
	if f.release != nil {
		<-f.release
	}
	return f.value, f.err
}

func TestLimitsCache_ConcurrentCallersShareOneFetch(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{}), value: models.Limits{MaxEntryBytes: 100, MaxSummaryHistory: 5}}
	c := NewLimitsCache(f, 0, nil)

	var wg sync.WaitGroup
	results := make([]models.Limits, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i] = c.Get(context.Background())
		}(i)
	}

	require.Eventually(t, func() bool { return f.calls.Load() == 1 }, time.Second, time.Millisecond)
	close(f.release)
	wg.Wait()

	for _, r := range results {
		assert.Equal(t, f.value, r)
	}

	assert.Equal(t, f.value, c.Get(context.Background()))
	assert.EqualValues(t, 1, f.calls.Load())
}

func TestLimitsCache_FallsBackToDefaults(t *testing.T) {
	f := &fakeFetcher{err: errors.New("offline")}
	c := NewLimitsCache(f, 0, nil)

	assert.Equal(t, models.DefaultLimits(), c.Get(context.Background()))
	assert.Equal(t, models.DefaultLimits(), c.Get(context.Background()))
	assert.EqualValues(t, 2, f.calls.Load(), "failures are not cached")
}

func TestLimitsCache_TTLAndLastKnownValue(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	f := &fakeFetcher{value: models.Limits{MaxEntryBytes: 1, MaxSummaryHistory: 1}}
	c := NewLimitsCache(f, time.Minute, nil)
	c.now = func() time.Time { return now }

	assert.Equal(t, f.value, c.Get(context.Background()))

	now = now.Add(2 * time.Minute)
	f.err = errors.New("offline")
	assert.Equal(t, models.Limits{MaxEntryBytes: 1, MaxSummaryHistory: 1}, c.Get(context.Background()))
	assert.EqualValues(t, 2, f.calls.Load())

	c.Invalidate()
	assert.Equal(t, models.DefaultLimits(), c.Get(context.Background()))
}

func TestLimitsCache_CallerMayStopWaiting(t *testing.T) {
	f := &fakeFetcher{release: make(chan struct{}), value: models.Limits{MaxEntryBytes: 7, MaxSummaryHistory: 7}}
	c := NewLimitsCache(f, 0, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.Equal(t, models.DefaultLimits(), c.Get(ctx))

	close(f.release)
	require.Eventually(t, func() bool {
		v, fresh := c.cached()
		return fresh && v == f.value
	}, time.Second, time.Millisecond, "the detached fetch still completes")
}
