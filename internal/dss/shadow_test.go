package dss

import (
	"math"
	"testing"
)

func TestOpenNormalisationRoundTrip(t *testing.T) {
	for raw := 0; raw <= rawReadMax; raw++ {
		back := openToRaw(openFromRaw(raw))
		if diff := back - raw; diff < -1 || diff > 1 {
			t.Fatalf("raw %d round-tripped to %d", raw, back)
		}
	}

	if got := openFromRaw(0); got != 1.0 {
		t.Errorf("openFromRaw(0) = %v, want 1.0", got)
	}
	if got := openFromRaw(rawReadMax); got != 0.0 {
		t.Errorf("openFromRaw(%d) = %v, want 0.0", rawReadMax, got)
	}
}

func TestShadowRawConversions(t *testing.T) {
	tests := []struct {
		name string
		got  int
		want int
	}{
		{"open 0 is fully raised", openToRaw(0), 65535},
		{"open 1 is fully lowered", openToRaw(1), 0},
		{"open below range clamps", openToRaw(-0.5), 65535},
		{"open above range clamps", openToRaw(7), 0},
		{"open NaN clamps", openToRaw(math.NaN()), 65535},
		{"angle 0", angleToRaw(0), 0},
		{"angle 1", angleToRaw(1), 255},
		{"angle half", angleToRaw(0.5), 128},
		{"angle above range clamps", angleToRaw(2), 255},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.got != tt.want {
				t.Errorf("got %d, want %d", tt.got, tt.want)
			}
		})
	}
}

func TestAngleFromRaw(t *testing.T) {
	if got := angleFromRaw(rawReadMax); got != 1.0 {
		t.Errorf("angleFromRaw(max) = %v, want 1.0", got)
	}
	if got := angleFromRaw(0); got != 0.0 {
		t.Errorf("angleFromRaw(0) = %v, want 0.0", got)
	}
	if got := angleFromRaw(rawReadMax * 2); got != 1.0 {
		t.Errorf("angleFromRaw(out of range) = %v, want 1.0", got)
	}
}
