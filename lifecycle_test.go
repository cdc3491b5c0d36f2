package graphid_test

import (
	"context"
	"path/filepath"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/graphid"
	"github.com/hupe1980/graphid/authority"
	"github.com/hupe1980/graphid/authority/blob"
	"github.com/hupe1980/graphid/authority/local"
	"github.com/hupe1980/graphid/authority/memory"
	"github.com/hupe1980/graphid/blobstore"
)

// TestNoGoroutineLeaks verifies that renewals, including prefetches still in
// flight, are stopped when Close() is called.
func TestNoGoroutineLeaks(t *testing.T) {
	tests := []struct {
		name      string
		authority func(t *testing.T) authority.Authority
		maxLeaks  int // Allow small variance (runtime background goroutines)
	}{
		{
			name:      "Memory",
			authority: func(*testing.T) authority.Authority { return memory.New() },
			maxLeaks:  2,
		},
		{
			name: "LocalFile",
			authority: func(t *testing.T) authority.Authority {
				a, err := local.New(t.TempDir())
				require.NoError(t, err)
				return a
			},
			maxLeaks: 2,
		},
		{
			name: "BlobClaims",
			authority: func(t *testing.T) authority.Authority {
				store := blobstore.NewLocalStore(filepath.Join(t.TempDir(), "claims"))
				return blob.New(store)
			},
			maxLeaks: 2,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			// Force GC to clean up any lingering goroutines from previous tests
			runtime.GC()
			time.Sleep(50 * time.Millisecond)

			initial := runtime.NumGoroutine()

			m, err := graphid.New(tt.authority(t),
				graphid.WithPartitionBits(2),
				graphid.WithBlockSize(16),
				graphid.WithRenewBuffer(0.5, 8),
				graphid.WithCloseAuthority(),
			)
			require.NoError(t, err)

			// Exercise every pool so prefetches are running.
			var wg sync.WaitGroup
			for g := range 8 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					for i := range 100 {
						_, err := m.NewID(context.Background(), graphid.Vertex, uint64((g+i)%4))
						assert.NoError(t, err)
					}
				}()
			}
			wg.Wait()

			require.NoError(t, m.Close())

			deadline := time.Now().Add(2 * time.Second)
			var final, leaked int
			for {
				runtime.GC()
				time.Sleep(50 * time.Millisecond)

				final = runtime.NumGoroutine()
				leaked = final - initial
				if leaked <= tt.maxLeaks || time.Now().After(deadline) {
					break
				}
			}

			if leaked > tt.maxLeaks {
				t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, max allowed: %d)",
					initial, final, leaked, tt.maxLeaks)

				buf := make([]byte, 1<<20)
				stackSize := runtime.Stack(buf, true)
				t.Logf("Goroutine stacks:\n%s", buf[:stackSize])
			}
		})
	}
}

// TestIDsSurviveRestart verifies that a restarted manager never reissues ids
// handed out before the restart, even though the old blocks were abandoned.
func TestIDsSurviveRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	open := func() *graphid.Manager {
		a, err := local.New(dir)
		require.NoError(t, err)
		m, err := graphid.New(a, graphid.WithBlockSize(10), graphid.WithCloseAuthority())
		require.NoError(t, err)
		return m
	}

	m := open()
	first, err := m.NewVertexID(ctx, 0)
	require.NoError(t, err)
	require.NoError(t, m.Close())

	m = open()
	defer m.Close()
	second, err := m.NewVertexID(ctx, 0)
	require.NoError(t, err)

	c1, err := m.Counter(first)
	require.NoError(t, err)
	c2, err := m.Counter(second)
	require.NoError(t, err)
	assert.Greater(t, c2, c1)
}
