package canon

import (
	"math"
	"testing"
)

func TestCanonicalizeIdempotent(t *testing.T) {
	cases := []struct{ lat, lng float64 }{
		{48.8584123, 2.2944812},
		{-33.865143, 151.209900},
		{0, 0},
		{89.99995, -179.99995},
	}
	for _, c := range cases {
		k1, err := Canonicalize(c.lat, c.lng, 500)
		if err != nil {
			t.Fatalf("Canonicalize(%v,%v): %v", c.lat, c.lng, err)
		}
		k2, err := Canonicalize(k1.Lat, k1.Lng, 500)
		if err != nil {
			t.Fatalf("Canonicalize(canon): %v", err)
		}
		if k1 != k2 {
			t.Fatalf("canon(canon(x)) = %+v; want %+v", k2, k1)
		}
	}
}

func TestCanonicalizeRounding(t *testing.T) {
	k, err := Canonicalize(48.8584123, 2.2944812, 500)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if k.Lat != 48.8584 || k.Lng != 2.2945 {
		t.Fatalf("Canonicalize rounding = %v,%v; want 48.8584,2.2945", k.Lat, k.Lng)
	}
}

func TestCanonicalizeOutOfRange(t *testing.T) {
	if _, err := Canonicalize(123, 2, 500); err == nil {
		t.Fatalf("expected error for lat out of range")
	}
	if _, err := Canonicalize(1, 200, 500); err == nil {
		t.Fatalf("expected error for lng out of range")
	}
	if _, err := Canonicalize(math.NaN(), 2, 500); err == nil {
		t.Fatalf("expected error for NaN lat")
	}
}

func TestCanonicalizeAttachesRadius(t *testing.T) {
	k, err := Canonicalize(1, 1, 750)
	if err != nil {
		t.Fatalf("Canonicalize: %v", err)
	}
	if k.Radius != 750 {
		t.Fatalf("Radius = %d; want 750", k.Radius)
	}
}
