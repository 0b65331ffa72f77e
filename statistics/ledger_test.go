// Copyright (C) 2026, Lux Partners Limited. All rights reserved.
// See the file LICENSE for licensing terms.

package statistics

import (
	"math/rand/v2"
	"sync"
	"testing"
	"time"

	"github.com/luxfi/metric"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/luxfi/blockcache"
)

type testBlock struct {
	size uint64
	took time.Duration
}

func (b testBlock) Size() uint64                { return b.size }
func (b testBlock) LoadDuration() time.Duration { return b.took }

func mb(n uint64) testBlock { return testBlock{size: n * blockcache.MB} }

func TestNewRejectsZeroCapacity(t *testing.T) {
	require := require.New(t)

	for _, capacity := range []int{0, -1} {
		l, err := New("stats", capacity)
		require.ErrorIs(err, blockcache.ErrInvalidConfig)
		require.Nil(l)
	}
}

func TestLoadsAndEviction(t *testing.T) {
	require := require.New(t)

	l, err := New("stats", 3)
	require.NoError(err)

	l.OnLoaded(mb(1))
	l.OnLoaded(mb(2))
	l.OnLoaded(mb(3))

	s := l.Stats()
	require.Equal(3, s.BlockCount)
	require.InDelta(6.0, s.MemoryUsedMB, 1e-9)
	require.Equal(3, s.HistoryLen)

	l.OnLoaded(mb(4))

	s = l.Stats()
	require.Equal(4, s.BlockCount)
	require.InDelta(10.0, s.MemoryUsedMB, 1e-9)
	require.Equal(3, s.HistoryLen)

	history := l.History()
	require.Len(history, 3)
	require.Equal([]uint64{2 * blockcache.MB, 3 * blockcache.MB, 4 * blockcache.MB},
		[]uint64{history[0].Size, history[1].Size, history[2].Size})
	require.Equal(uint64(10*blockcache.MB), history[2].CumulativeSize)
	require.Equal(4, history[2].CumulativeBlocks)

	require.NoError(l.OnPreUnload(mb(2)))

	s = l.Stats()
	require.Equal(3, s.BlockCount)
	require.InDelta(8.0, s.MemoryUsedMB, 1e-9)
	require.Equal(3, s.HistoryLen)

	last, ok := l.Last()
	require.True(ok)
	require.Equal(OpUnload, last.Op)
	require.Equal(uint64(8*blockcache.MB), last.CumulativeSize)
	require.Equal(3, last.CumulativeBlocks)
	require.Zero(last.LoadDuration)
}

func TestBaselineRecord(t *testing.T) {
	require := require.New(t)

	l, err := New("stats", 10)
	require.NoError(err)

	_, ok := l.Last()
	require.False(ok)

	l.OnLoaded(testBlock{size: 512, took: time.Millisecond})

	history := l.History()
	require.Len(history, 2)
	require.Zero(history[0].CumulativeSize)
	require.Zero(history[0].CumulativeBlocks)
	require.Equal(OpLoad, history[1].Op)
	require.Equal(uint64(512), history[1].CumulativeSize)
	require.Equal(time.Millisecond, history[1].LoadDuration)
	require.GreaterOrEqual(history[1].Time, history[0].Time)
}

func TestCapacityOne(t *testing.T) {
	require := require.New(t)

	l, err := New("stats", 1)
	require.NoError(err)

	l.OnLoaded(mb(1))
	l.OnLoaded(mb(2))
	require.NoError(l.OnPreUnload(mb(1)))

	history := l.History()
	require.Len(history, 1)
	require.Equal(uint64(2*blockcache.MB), history[0].CumulativeSize)
	require.Equal(1, history[0].CumulativeBlocks)
}

func TestUnloadWithoutLoad(t *testing.T) {
	require := require.New(t)

	reg := metric.NewRegistry()
	l, err := New("stats", 4, WithMetrics("ledger", reg))
	require.NoError(err)

	err = l.OnPreUnload(mb(1))
	require.ErrorIs(err, blockcache.ErrConsistency)
	require.Zero(l.Stats().BlockCount)
	require.Empty(l.History())

	l.OnLoaded(mb(1))
	err = l.OnPreUnload(mb(2))
	require.ErrorIs(err, blockcache.ErrConsistency)

	s := l.Stats()
	require.Equal(1, s.BlockCount)
	require.InDelta(1.0, s.MemoryUsedMB, 1e-9)
	require.Equal(2.0, testutil.ToFloat64(metric.AsCollector(l.metrics.violations)))

	require.NoError(l.OnPreUnload(mb(1)))
	require.ErrorIs(l.OnPreUnload(mb(1)), blockcache.ErrConsistency)
	require.Zero(l.Stats().BlockCount)
}

// Every prefix of a random valid sequence must match the fold of the
// operations applied so far.
func TestCumulativeFold(t *testing.T) {
	require := require.New(t)

	const capacity = 16
	l, err := New("stats", capacity)
	require.NoError(err)

	rng := rand.New(rand.NewPCG(1, 2))
	var (
		resident []uint64
		count    int
		bytes    uint64
	)
	for i := 0; i < 2000; i++ {
		if len(resident) > 0 && rng.IntN(3) == 0 {
			idx := rng.IntN(len(resident))
			size := resident[idx]
			resident = append(resident[:idx], resident[idx+1:]...)
			require.NoError(l.OnPreUnload(testBlock{size: size}))
			count--
			bytes -= size
		} else {
			size := uint64(rng.IntN(4*blockcache.MB) + 1)
			resident = append(resident, size)
			l.OnLoaded(testBlock{size: size})
			count++
			bytes += size
		}

		s := l.Stats()
		require.Equal(count, s.BlockCount)
		require.InDelta(float64(bytes)/blockcache.MB, s.MemoryUsedMB, 1e-6)
		require.LessOrEqual(s.HistoryLen, capacity)

		last, ok := l.Last()
		require.True(ok)
		require.Equal(count, last.CumulativeBlocks)
		require.Equal(bytes, last.CumulativeSize)
	}
}

func TestHistoryKeepsNewest(t *testing.T) {
	require := require.New(t)

	const capacity = 5
	l, err := New("stats", capacity)
	require.NoError(err)

	for i := uint64(1); i <= 20; i++ {
		l.OnLoaded(testBlock{size: i})
	}

	history := l.History()
	require.Len(history, capacity)
	for i, e := range history {
		require.Equal(uint64(16+i), e.Size)
		require.Equal(16+i, e.CumulativeBlocks)
	}
}

func TestReport(t *testing.T) {
	require := require.New(t)

	l, err := New("Data Cache", 8, WithMaxMemory(1024))
	require.NoError(err)

	require.Equal("Data Cache\n"+
		"  Total Used Memory: 0/1024MB\n"+
		"  Total Block Count: 0\n"+
		"  Cache hits: 0\n"+
		"  Cache misses: 0\n", l.Report())

	l.OnLoaded(mb(1))
	l.OnLoaded(testBlock{size: blockcache.MB / 2})
	l.RecordHit()
	l.RecordHit()
	l.RecordMiss()
	l.SetMaxMemory(2048)

	require.Equal("Data Cache\n"+
		"  Total Used Memory: 1.5/2048MB\n"+
		"  Total Block Count: 2\n"+
		"  Cache hits: 2\n"+
		"  Cache misses: 1\n", l.String())
}

func TestConcurrentEvents(t *testing.T) {
	require := require.New(t)

	const (
		writers   = 8
		perWriter = 250
	)

	l, err := New("stats", 64)
	require.NoError(err)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.OnLoaded(mb(2))
				l.RecordMiss()
				_ = l.Report()
				require.NoError(l.OnPreUnload(mb(1)))
				l.RecordHit()
			}
		}()
	}
	wg.Wait()

	s := l.Stats()
	require.Equal(0, s.BlockCount)
	require.InDelta(float64(writers*perWriter), s.MemoryUsedMB, 1e-6)
	require.Equal(uint64(writers*perWriter), s.Hits)
	require.Equal(uint64(writers*perWriter), s.Misses)
	require.Equal(64, s.HistoryLen)

	last, ok := l.Last()
	require.True(ok)
	require.Equal(uint64(writers*perWriter*blockcache.MB), last.CumulativeSize)
}

func TestMetrics(t *testing.T) {
	require := require.New(t)

	reg := metric.NewRegistry()
	l, err := New("stats", 4, WithMetrics("ledger", reg))
	require.NoError(err)

	l.OnLoaded(mb(3))
	l.OnLoaded(mb(1))
	require.NoError(l.OnPreUnload(mb(3)))
	l.RecordHit()
	l.RecordMiss()
	l.RecordMiss()

	require.Equal(2.0, testutil.ToFloat64(metric.AsCollector(l.metrics.loads)))
	require.Equal(1.0, testutil.ToFloat64(metric.AsCollector(l.metrics.unloads)))
	require.Equal(1.0, testutil.ToFloat64(metric.AsCollector(l.metrics.blocks)))
	require.Equal(float64(blockcache.MB), testutil.ToFloat64(metric.AsCollector(l.metrics.memoryBytes)))
	require.Equal(1.0, testutil.ToFloat64(metric.AsCollector(l.metrics.hits)))
	require.Equal(2.0, testutil.ToFloat64(metric.AsCollector(l.metrics.misses)))

	_, err = New("again", 4, WithMetrics("ledger", reg))
	require.ErrorIs(err, metric.ErrFailedRegistering)
}

func TestResidentGaugesFollowLastEvent(t *testing.T) {
	require := require.New(t)

	const (
		writers   = 8
		perWriter = 200
	)

	l, err := New("stats", 16, WithMetrics("ledger", metric.NewRegistry()))
	require.NoError(err)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				l.OnLoaded(mb(1))
				if i%2 == 1 {
					_ = l.OnPreUnload(mb(1))
				}
			}
		}()
	}
	wg.Wait()

	last, ok := l.Last()
	require.True(ok)
	require.Equal(writers*perWriter/2, last.CumulativeBlocks)
	require.Equal(float64(last.CumulativeBlocks), testutil.ToFloat64(metric.AsCollector(l.metrics.blocks)))
	require.Equal(float64(last.CumulativeSize), testutil.ToFloat64(metric.AsCollector(l.metrics.memoryBytes)))
}

func TestEventString(t *testing.T) {
	e := LoadEvent{Time: 2 * time.Second, CumulativeBlocks: 3, CumulativeSize: 42}
	require.Equal(t, "Time: 2s Cumulative Nodes: 3 Cumulative Size: 42", e.String())
	require.Equal(t, "load", OpLoad.String())
	require.Equal(t, "unload", OpUnload.String())
}
