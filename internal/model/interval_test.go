package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidInterval(t *testing.T) {
	for _, iv := range []string{"1m", "5m", "1h", "4h", "1d", "1w", "1M"} {
		assert.True(t, IsValidInterval(iv), iv)
	}
	for _, iv := range []string{"2m", "1y", "60", "", "1H"} {
		assert.False(t, IsValidInterval(iv), iv)
	}
}

func TestIntervalSeconds(t *testing.T) {
	s, err := IntervalSeconds("1h")
	require.NoError(t, err)
	assert.Equal(t, int64(3600), s)

	ms, err := IntervalMillis("1m")
	require.NoError(t, err)
	assert.Equal(t, int64(60_000), ms)

	// months are calendar-based, not fixed-width
	_, err = IntervalSeconds("1M")
	assert.Error(t, err)
	_, err = IntervalMillis("1M")
	assert.Error(t, err)
}

func TestNextOpenTimeFixedWidth(t *testing.T) {
	next, err := NextOpenTime(0, "15m")
	require.NoError(t, err)
	assert.Equal(t, int64(900_000), next)
}

func TestNextOpenTimeCalendarMonth(t *testing.T) {
	jan := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	feb := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	mar := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	next, err := NextOpenTime(jan, "1M")
	require.NoError(t, err)
	assert.Equal(t, feb, next)

	// leap-year February still lands on March 1st
	next, err = NextOpenTime(feb, "1M")
	require.NoError(t, err)
	assert.Equal(t, mar, next)
}

func TestIsAligned(t *testing.T) {
	assert.True(t, IsAligned(0, "1m"))
	assert.True(t, IsAligned(3_600_000, "1h"))
	assert.False(t, IsAligned(90_000, "1m"))
	assert.False(t, IsAligned(1_800_000, "1h"))

	firstOfMonth := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	assert.True(t, IsAligned(firstOfMonth, "1M"))
	assert.False(t, IsAligned(firstOfMonth+1000, "1M"))
}
