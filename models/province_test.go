package models

import (
	"strings"
	"testing"
)

func TestNormalizeProvince(t *testing.T) {
	cases := []struct {
		name  string
		input string
		want  string
	}{
		{"plain name unchanged", "Yangon", "Yangon"},
		{"whitespace trimmed", "  Yangon  ", "Yangon"},
		{"empty", "", ""},
		{"whitespace only", "   ", ""},
		{"strips sheng suffix", "广东省", "广东"},
		{"strips shi suffix", "上海市", "上海"},
		{"strips autonomous region suffix", "内蒙古自治区", "内蒙古"},
		{"strips SAR suffix", "香港特别行政区", "香港"},
		{"bare suffix stays", "省", "省"},
		{"already normalized", "广东", "广东"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeProvince(tc.input); got != tc.want {
				t.Fatalf("NormalizeProvince(%q) = %q; want %q", tc.input, got, tc.want)
			}
		})
	}
}

// A route configured with the suffixed form and an order destination using
// the bare form must land on the same stored value, and normalizing twice
// must not change it again.
func TestNormalizeProvinceWriteReadSymmetry(t *testing.T) {
	pairs := [][2]string{
		{"广东省", "广东"},
		{"上海市", "上海"},
		{"内蒙古自治区", "内蒙古"},
		{"香港特别行政区", "香港"},
		{"  Yangon ", "Yangon"},
	}
	for _, pair := range pairs {
		stored := NormalizeProvince(pair[0])
		looked := NormalizeProvince(pair[1])
		if stored != looked {
			t.Fatalf("stored %q and lookup %q diverge: %q vs %q", pair[0], pair[1], stored, looked)
		}
		if again := NormalizeProvince(stored); again != stored {
			t.Fatalf("NormalizeProvince is not idempotent on %q: got %q", stored, again)
		}
	}
}

func TestNormalizeProvinceCapsLength(t *testing.T) {
	long := strings.Repeat("a", 100)
	got := NormalizeProvince(long)
	if len([]rune(got)) != 32 {
		t.Fatalf("expected 32 runes after cap, got %d", len([]rune(got)))
	}
}
