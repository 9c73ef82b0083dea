// Package utils provides small parsing helpers for request parameters.
// They are independent of domain or business logic.
package utils

import (
	"errors"
	"strconv"
	"strings"
	"time"
)

// DayLayout is the calendar-day format accepted by date filters.
const DayLayout = "2006-01-02"

// ErrBadDay is returned when a date filter is not a YYYY-MM-DD calendar day.
var ErrBadDay = errors.New("date must be YYYY-MM-DD")

// AtoiDefault converts a string to an int using strconv.Atoi.
// If the string is empty or cannot be parsed as an integer,
// it returns the provided default value instead.
func AtoiDefault(s string, def int) int {
	if s == "" {
		return def
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return def
}

// ClampInt bounds n to [lo, hi].
func ClampInt(n, lo, hi int) int {
	if n < lo {
		return lo
	}
	if n > hi {
		return hi
	}
	return n
}

// BoolDefault parses common truthy/falsy strings, falling back to def.
func BoolDefault(s string, def bool) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "1", "true", "yes", "y", "on":
		return true
	case "0", "false", "no", "n", "off":
		return false
	}
	return def
}

// ParseDay parses an optional YYYY-MM-DD value as midnight UTC. Only the
// calendar date is meaningful: searches resolve it in their own zone.
// Empty input yields nil.
func ParseDay(s string) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	d, err := time.ParseInLocation(DayLayout, s, time.UTC)
	if err != nil {
		return nil, ErrBadDay
	}
	return &d, nil
}
