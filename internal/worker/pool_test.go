package worker

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var modes = []Mode{ModeShared, ModeIsolated}

func TestParseMode(t *testing.T) {
	tests := []struct {
		input    string
		expected Mode
	}{
		{"shared", ModeShared},
		{"thread", ModeShared},
		{"ISOLATED", ModeIsolated},
		{" process ", ModeIsolated},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			mode, err := ParseMode(tt.input)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, mode)
		})
	}

	_, err := ParseMode("fork")
	assert.Error(t, err)

	var m Mode
	require.NoError(t, m.UnmarshalText([]byte("process")))
	assert.Equal(t, ModeIsolated, m)
}

func TestNewRejectsInvalidArguments(t *testing.T) {
	_, err := New(ModeShared, 0, nil)
	assert.Error(t, err)

	_, err = New(Mode("fork"), 1, nil)
	assert.Error(t, err)
}

func TestPoolBound(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			const max = 3
			pool, err := New(mode, max, nil)
			require.NoError(t, err)
			assert.Equal(t, mode, pool.Mode())

			var running, peak atomic.Int32
			release := make(chan struct{})
			started := make(chan struct{}, max)

			for i := 0; i < max; i++ {
				slot, err := pool.Reserve(context.Background())
				require.NoError(t, err)
				slot.Run(func() {
					n := running.Add(1)
					for {
						p := peak.Load()
						if n <= p || peak.CompareAndSwap(p, n) {
							break
						}
					}
					started <- struct{}{}
					<-release
					running.Add(-1)
				})
			}
			for i := 0; i < max; i++ {
				<-started
			}

			ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
			defer cancel()
			_, err = pool.Reserve(ctx)
			assert.ErrorIs(t, err, context.DeadlineExceeded)

			close(release)
			pool.Wait()
			assert.Equal(t, int32(max), peak.Load())
			assert.Equal(t, int32(0), running.Load())
		})
	}
}

func TestPoolRecoversFromPanic(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			pool, err := New(mode, 1, nil)
			require.NoError(t, err)

			slot, err := pool.Reserve(context.Background())
			require.NoError(t, err)
			slot.Run(func() { panic("boom") })

			// The slot is released after the panic, so a second job can run.
			ctx, cancel := context.WithTimeout(context.Background(), time.Second)
			defer cancel()
			slot, err = pool.Reserve(ctx)
			require.NoError(t, err)

			done := make(chan struct{})
			slot.Run(func() { close(done) })

			select {
			case <-done:
			case <-time.After(time.Second):
				t.Fatal("job did not run after a panic")
			}
			pool.Wait()
		})
	}
}

func TestSlotRelease(t *testing.T) {
	pool, err := New(ModeShared, 1, nil)
	require.NoError(t, err)

	slot, err := pool.Reserve(context.Background())
	require.NoError(t, err)
	slot.Release()
	slot.Release()

	// A released slot no longer runs jobs.
	ran := false
	slot.Run(func() { ran = true })

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	slot, err = pool.Reserve(ctx)
	require.NoError(t, err)
	slot.Release()

	pool.Wait()
	assert.False(t, ran)
}

func TestPoolWaitBlocksUntilJobsFinish(t *testing.T) {
	for _, mode := range modes {
		t.Run(string(mode), func(t *testing.T) {
			pool, err := New(mode, 4, nil)
			require.NoError(t, err)

			var mu sync.Mutex
			finished := 0
			for i := 0; i < 4; i++ {
				slot, err := pool.Reserve(context.Background())
				require.NoError(t, err)
				slot.Run(func() {
					time.Sleep(20 * time.Millisecond)
					mu.Lock()
					finished++
					mu.Unlock()
				})
			}

			pool.Wait()
			mu.Lock()
			defer mu.Unlock()
			assert.Equal(t, 4, finished)
		})
	}
}
