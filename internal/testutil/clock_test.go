package testutil

import (
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_StartsAtEpoch(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Equal(t, Epoch, c.Now())

	start := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, start, NewManualClock(start).Now())
}

func TestManualClock_Advance(t *testing.T) {
	c := NewManualClock(time.Time{})
	assert.Equal(t, Epoch.Add(time.Second), c.Advance(time.Second))
	assert.Equal(t, Epoch.Add(time.Minute+time.Second), c.Advance(time.Minute))
	assert.Equal(t, time.Minute+time.Second, c.Elapsed(Epoch))

	// Never backwards.
	c.Advance(-time.Hour)
	assert.Equal(t, Epoch.Add(time.Minute+time.Second), c.Now())
}

func TestManualClock_Set(t *testing.T) {
	c := NewManualClock(time.Time{})
	c.Set(Epoch.Add(time.Hour))
	assert.Equal(t, Epoch.Add(time.Hour), c.Now())

	c.Set(Epoch)
	assert.Equal(t, Epoch.Add(time.Hour), c.Now())
}

func TestManualClock_ConcurrentAdvance(t *testing.T) {
	c := NewManualClock(time.Time{})
	const goroutines = 50
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for range goroutines {
		go func() {
			defer wg.Done()
			c.Advance(time.Millisecond)
		}()
	}
	wg.Wait()
	assert.Equal(t, Epoch.Add(goroutines*time.Millisecond), c.Now())
}

func TestNewTestLogger(t *testing.T) {
	logger, buf := NewTestLogger(t)
	logger.Debug("block pushed", slog.String("block_key", "blk-1"))
	assert.Contains(t, buf.String(), "block_key=blk-1")

	DiscardLogger().Info("dropped")
}
