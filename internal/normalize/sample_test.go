package normalize

import (
	"fmt"
	"math"
	"reflect"
	"testing"
)

func makeLines(prefix string, n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("%s-%d", prefix, i)
	}
	return out
}

func TestPresetCount(t *testing.T) {
	tests := []struct {
		name          string
		primary, pool int
		ratio         float64
		want          int
	}{
		{"pool smaller than request", 10, 3, 0.5, 3},
		{"zero ratio", 10, 100, 0, 0},
		{"negative ratio", 10, 100, -1, 0},
		{"empty pool", 10, 0, 1, 0},
		{"empty primary", 0, 10, 1, 0},
		{"full ratio", 4, 10, 1, 4},
		{"half rounds to even down", 5, 10, 0.5, 2},
		{"half rounds to even up", 7, 10, 0.5, 4},
		{"ratio above one", 3, 10, 2, 6},
		{"NaN ratio", 10, 100, math.NaN(), 0},
		{"infinite ratio", 3, 10, math.Inf(1), 10},
		{"negative infinite ratio", 3, 10, math.Inf(-1), 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PresetCount(tt.primary, tt.pool, tt.ratio); got != tt.want {
				t.Errorf("PresetCount(%d, %d, %v) = %d, want %d", tt.primary, tt.pool, tt.ratio, got, tt.want)
			}
		})
	}
}

func TestSamplePresetPoolSmallerThanRequest(t *testing.T) {
	primary := makeLines("p", 10)
	pool := makeLines("x", 3)

	out := SamplePreset(primary, pool, 0.5, NewRand(1))

	if len(out) != 13 {
		t.Fatalf("Expected 13 lines, got %d", len(out))
	}
	if !reflect.DeepEqual(out[:10], primary) {
		t.Error("Primary lines must come first and in order")
	}
	seen := map[string]bool{}
	for _, line := range out[10:] {
		if seen[line] {
			t.Errorf("Line %q drawn twice", line)
		}
		seen[line] = true
	}
	for _, line := range pool {
		if !seen[line] {
			t.Errorf("Expected whole pool to be used once, missing %q", line)
		}
	}
}

func TestSamplePresetZeroRatio(t *testing.T) {
	primary := makeLines("p", 10)
	out := SamplePreset(primary, makeLines("x", 5), 0.0, NewRand(1))

	if !reflect.DeepEqual(out, primary) {
		t.Errorf("Expected primary unchanged, got %v", out)
	}
}

func TestSamplePresetDeterministic(t *testing.T) {
	primary := makeLines("p", 20)
	pool := makeLines("x", 50)

	a := SamplePreset(primary, pool, 0.5, NewRand(42))
	b := SamplePreset(primary, pool, 0.5, NewRand(42))
	if !reflect.DeepEqual(a, b) {
		t.Error("Same seed must draw the same lines")
	}
	if len(a) != 30 {
		t.Errorf("Expected 30 lines, got %d", len(a))
	}

	seen := map[string]bool{}
	for _, line := range a[20:] {
		if seen[line] {
			t.Errorf("Line %q drawn twice", line)
		}
		seen[line] = true
	}
}

func TestSamplePresetDoesNotAliasPrimary(t *testing.T) {
	primary := make([]string, 2, 10)
	primary[0], primary[1] = "a", "b"

	out := SamplePreset(primary, []string{"x"}, 1, NewRand(3))
	out[0] = "changed"
	if primary[0] != "a" {
		t.Error("SamplePreset must not write into the primary slice")
	}
}

func TestSamplePresetNaNRatio(t *testing.T) {
	primary := makeLines("p", 2)

	out := SamplePreset(primary, makeLines("x", 2), math.NaN(), NewRand(1))

	if !reflect.DeepEqual(out, primary) {
		t.Errorf("Expected only primary lines, got %v", out)
	}
}
