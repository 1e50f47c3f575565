package model

import (
	"fmt"
	"time"
)

// Supported bar intervals. Months are calendar-based and handled separately
// from the fixed-width units.
var intervalSeconds = map[string]int64{
	"1m": 60, "3m": 180, "5m": 300, "15m": 900, "30m": 1800,
	"1h": 3600, "2h": 7200, "4h": 14400, "6h": 21600, "8h": 28800, "12h": 43200,
	"1d": 86400, "3d": 259200,
	"1w": 604800,
}

// IsValidInterval reports whether interval is part of the supported grammar.
func IsValidInterval(interval string) bool {
	if interval == "1M" {
		return true
	}
	_, ok := intervalSeconds[interval]
	return ok
}

// IntervalSeconds returns the width of a fixed-length interval in seconds.
// Calendar months have no fixed width and return an error.
func IntervalSeconds(interval string) (int64, error) {
	if s, ok := intervalSeconds[interval]; ok {
		return s, nil
	}
	return 0, fmt.Errorf("unsupported interval: %q", interval)
}

// IntervalMillis returns the width of a fixed-length interval in milliseconds.
func IntervalMillis(interval string) (int64, error) {
	s, err := IntervalSeconds(interval)
	if err != nil {
		return 0, err
	}
	return s * 1000, nil
}

// NextOpenTime returns the open time of the bar following the one opening at
// openMs. Months advance by calendar arithmetic.
func NextOpenTime(openMs int64, interval string) (int64, error) {
	if interval == "1M" {
		t := time.UnixMilli(openMs).UTC()
		return t.AddDate(0, 1, 0).UnixMilli(), nil
	}
	ms, err := IntervalMillis(interval)
	if err != nil {
		return 0, err
	}
	return openMs + ms, nil
}

// IsAligned reports whether openMs sits on an interval boundary. Calendar
// months are checked against the first instant of a UTC month.
func IsAligned(openMs int64, interval string) bool {
	if interval == "1M" {
		t := time.UnixMilli(openMs).UTC()
		return t.Day() == 1 && t.Hour() == 0 && t.Minute() == 0 && t.Second() == 0 && t.Nanosecond() == 0
	}
	ms, err := IntervalMillis(interval)
	if err != nil {
		return false
	}
	return openMs%ms == 0
}
