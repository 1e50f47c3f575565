package data

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"quant-engine/internal/model"
)

func collect(t *testing.T, bars <-chan model.KLine, errc <-chan error) ([]model.KLine, error) {
	t.Helper()
	var out []model.KLine
	for k := range bars {
		out = append(out, k)
	}
	return out, <-errc
}

func newTestLoader(fake *fakeAdapter, cfg LoaderConfig) *StreamLoader {
	cfg.Symbol = "BTC/USDT"
	cfg.Interval = "1m"
	cfg.Exchange = "fake"
	cfg.MarketType = MarketSpot
	return NewStreamLoader(testCenter(fake), cfg, zap.NewNop())
}

func TestLoaderStreamsRangeInOrder(t *testing.T) {
	fake := &fakeAdapter{bars: genBars(10)}
	l := newTestLoader(fake, LoaderConfig{Start: 0, End: 10 * 60_000, BatchSize: 4})

	lBars, lErrs := l.barsFor(t)
	out, err := collect(t, lBars, lErrs)
	require.NoError(t, err)
	require.Len(t, out, 10)
	for i, k := range out {
		assert.Equal(t, int64(i)*60_000, k.OpenTime)
		assert.True(t, model.IsAligned(k.OpenTime, "1m"))
	}
}

// barsFor keeps the call sites short.
func (l *StreamLoader) barsFor(t *testing.T) (<-chan model.KLine, <-chan error) {
	t.Helper()
	return l.Bars(context.Background())
}

func TestLoaderHonorsEndBound(t *testing.T) {
	fake := &fakeAdapter{bars: genBars(10)}
	l := newTestLoader(fake, LoaderConfig{Start: 2 * 60_000, End: 7 * 60_000, BatchSize: 3})

	lBars, lErrs := l.barsFor(t)
	out, err := collect(t, lBars, lErrs)
	require.NoError(t, err)
	require.Len(t, out, 5)
	assert.Equal(t, int64(2*60_000), out[0].OpenTime)
	assert.Equal(t, int64(6*60_000), out[len(out)-1].OpenTime)
}

func TestLoaderDropsDuplicateBars(t *testing.T) {
	bars := genBars(6)
	// splice a duplicate of bar 2 into the feed
	withDup := append(bars[:3:3], bars[2])
	withDup = append(withDup, bars[3:]...)

	fake := &fakeAdapter{bars: withDup}
	l := newTestLoader(fake, LoaderConfig{Start: 0, End: 6 * 60_000, BatchSize: 10})

	lBars, lErrs := l.barsFor(t)
	out, err := collect(t, lBars, lErrs)
	require.NoError(t, err)
	require.Len(t, out, 6)
	for i := 1; i < len(out); i++ {
		assert.Greater(t, out[i].OpenTime, out[i-1].OpenTime)
	}
}

func TestLoaderRejectsMisalignedBars(t *testing.T) {
	bars := genBars(3)
	bars[1].OpenTime = 90_000 // not on a 1m boundary

	fake := &fakeAdapter{bars: bars}
	l := newTestLoader(fake, LoaderConfig{Start: 0, End: 3 * 60_000, BatchSize: 10})

	lBars, lErrs := l.barsFor(t)
	out, err := collect(t, lBars, lErrs)
	assert.ErrorIs(t, err, ErrAdapter)
	assert.LessOrEqual(t, len(out), 1)
}

func TestLoaderPreloadMatchesSequential(t *testing.T) {
	sequential := newTestLoader(&fakeAdapter{bars: genBars(12)},
		LoaderConfig{Start: 0, End: 12 * 60_000, BatchSize: 5, Preload: false})
	preloaded := newTestLoader(&fakeAdapter{bars: genBars(12)},
		LoaderConfig{Start: 0, End: 12 * 60_000, BatchSize: 5, Preload: true})

	sequentialBars, sequentialErrs := sequential.barsFor(t)
	seqOut, err := collect(t, sequentialBars, sequentialErrs)
	require.NoError(t, err)
	preloadedBars, preloadedErrs := preloaded.barsFor(t)
	preOut, err := collect(t, preloadedBars, preloadedErrs)
	require.NoError(t, err)

	assert.Equal(t, seqOut, preOut)
}

func TestLoaderCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	fake := &fakeAdapter{bars: genBars(100)}
	l := newTestLoader(fake, LoaderConfig{Start: 0, End: 100 * 60_000, BatchSize: 10})

	bars, errc := l.Bars(ctx)
	<-bars // one bar through, then cancel and stop consuming
	cancel()

	assert.ErrorIs(t, <-errc, context.Canceled)
}

func TestLoaderEmptyRangeTerminatesCleanly(t *testing.T) {
	fake := &fakeAdapter{bars: nil}
	l := newTestLoader(fake, LoaderConfig{Start: 0, End: 10 * 60_000, BatchSize: 5})

	lBars, lErrs := l.barsFor(t)
	out, err := collect(t, lBars, lErrs)
	require.NoError(t, err)
	assert.Empty(t, out)
}
