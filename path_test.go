package myriadusb

import "testing"

func TestEncodePath(t *testing.T) {
	tests := []struct {
		bus   int
		ports []int
		want  string
	}{
		{1, nil, "1"},
		{1, []int{}, "1"},
		{3, []int{2}, "3.2"},
		{1, []int{2, 4, 1}, "1.2.4.1"},
		{255, []int{255}, "255.255"},
		{0, []int{0}, "0.0"},
		{2, []int{1, 2, 3, 4, 5, 6, 7}, "2.1.2.3.4.5.6.7"},
		{2, []int{1, 2, 3, 4, 5, 6, 7, 8}, pathOverflow},
	}
	for _, tt := range tests {
		if got := encodePath(tt.bus, tt.ports); got != tt.want {
			t.Errorf("encodePath(%d, %v) = %q, want %q", tt.bus, tt.ports, got, tt.want)
		}
	}
}

func TestEncodePathRoundTrip(t *testing.T) {
	// The same topology must always render the same path; the enumerator
	// relies on this to key the cache and to re-find devices for boot.
	a := encodePath(1, []int{2, 3})
	b := encodePath(1, []int{2, 3})
	if a != b {
		t.Fatalf("path not stable: %q vs %q", a, b)
	}
}
