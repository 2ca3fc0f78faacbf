package repository

import (
	"strconv"
	"strings"
)

const (
	// DefaultHorizonHours is used when a horizon cannot be parsed.
	DefaultHorizonHours = 24
	// MaxHorizonHours is the longest horizon a forecast may cover (90 days).
	MaxHorizonHours = 90 * 24
)

// ParseHorizon converts "12H" or "7D" into hours. Anything else, including
// non-positive counts and horizons over MaxHorizonHours, yields
// DefaultHorizonHours.
func ParseHorizon(s string) int {
	if hours, ok := parseHorizon(s); ok {
		return hours
	}
	return DefaultHorizonHours
}

// IsValidHorizon reports whether s parses without falling back to the default.
func IsValidHorizon(s string) bool {
	_, ok := parseHorizon(s)
	return ok
}

// ExceedsMaxHorizon reports whether s is well formed but longer than
// MaxHorizonHours.
func ExceedsMaxHorizon(s string) bool {
	hours, ok := horizonHours(s)
	return ok && hours > MaxHorizonHours
}

func parseHorizon(s string) (int, bool) {
	hours, ok := horizonHours(s)
	if !ok || hours > MaxHorizonHours {
		return 0, false
	}
	return hours, true
}

func horizonHours(s string) (int, bool) {
	h := strings.ToUpper(strings.TrimSpace(s))
	if len(h) < 2 {
		return 0, false
	}
	mult := 0
	switch h[len(h)-1] {
	case 'H':
		mult = 1
	case 'D':
		mult = 24
	default:
		return 0, false
	}
	n, err := strconv.Atoi(h[:len(h)-1])
	if err != nil || n <= 0 {
		return 0, false
	}
	if n > MaxHorizonHours {
		return MaxHorizonHours + 1, true
	}
	return n * mult, true
}

// NormalizeHorizon upper-cases a horizon string, returning "24H" when empty.
func NormalizeHorizon(s string) string {
	h := strings.ToUpper(strings.TrimSpace(s))
	if h == "" {
		return "24H"
	}
	return h
}
