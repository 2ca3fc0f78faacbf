package repository

import (
	"testing"
)

func TestParseHorizon(t *testing.T) {
	cases := map[string]int{
		"1H":    1,
		"24H":   24,
		"7D":    168,
		"48h":   48,
		"2d":    48,
		"bogus": 24,
		"":      24,
		"H":     24,
		"0H":    24,
		"-3D":   24,
		"12X":   24,
		"90D":   2160,
		"2160H": 2160,
		"91D":   24,
		"2161H": 24,
	}
	for in, want := range cases {
		if got := ParseHorizon(in); got != want {
			t.Fatalf("ParseHorizon(%q) = %d, want %d", in, got, want)
		}
	}
}

func TestNormalizeHorizon(t *testing.T) {
	if got := NormalizeHorizon(" 7d "); got != "7D" {
		t.Fatalf("unexpected %q", got)
	}
	if got := NormalizeHorizon(""); got != "24H" {
		t.Fatalf("unexpected %q", got)
	}
}

func TestIsValidHorizon(t *testing.T) {
	for _, s := range []string{"1H", "24h", "7D"} {
		if !IsValidHorizon(s) {
			t.Fatalf("expected %q to be valid", s)
		}
	}
	for _, s := range []string{"", "bogus", "0D", "24", "91D", "9999999D"} {
		if IsValidHorizon(s) {
			t.Fatalf("expected %q to be invalid", s)
		}
	}
}

func TestExceedsMaxHorizon(t *testing.T) {
	for _, s := range []string{"91D", "2161H", "5000D", "9999999D"} {
		if !ExceedsMaxHorizon(s) {
			t.Fatalf("expected %q to exceed the limit", s)
		}
		if got := ParseHorizon(s); got != DefaultHorizonHours {
			t.Fatalf("ParseHorizon(%q) = %d, want fallback", s, got)
		}
	}
	if got := ParseHorizon("99999999999999999999D"); got != DefaultHorizonHours {
		t.Fatalf("overflowing count parsed to %d", got)
	}
	for _, s := range []string{"90D", "24H", "bogus", ""} {
		if ExceedsMaxHorizon(s) {
			t.Fatalf("expected %q within the limit", s)
		}
	}
}
