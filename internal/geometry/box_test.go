package geometry

import (
	"encoding/json"
	"math"
	"testing"
)

func TestBoxValid(t *testing.T) {
	cases := []struct {
		name string
		box  Box
		want bool
	}{
		{"ok", Box{0.1, 0.2, 0.3, 0.4}, true},
		{"full image", Box{0, 0, 1, 1}, true},
		{"x0 == x1", Box{0.5, 0.2, 0.5, 0.4}, false},
		{"inverted y", Box{0.1, 0.8, 0.3, 0.4}, false},
		{"negative", Box{-0.1, 0.2, 0.3, 0.4}, false},
		{"out of range", Box{0.1, 0.2, 1.3, 0.4}, false},
		{"zero", Box{}, false},
		{"nan", Box{math.NaN(), 0.2, 0.3, 0.4}, false},
	}
	for _, c := range cases {
		if got := c.box.Valid(); got != c.want {
			t.Fatalf("%s: Valid() = %v, want %v", c.name, got, c.want)
		}
	}
}

func TestFromReceiptSpace_RoundTrip(t *testing.T) {
	// A receipt-relative (0,0,1,1) composed with any valid receipt box must
	// yield exactly the receipt box.
	receipts := []Box{
		{0.1, 0.05, 0.9, 0.95},
		{0, 0, 1, 1},
		{0.25, 0.3, 0.5, 0.6},
	}
	for _, r := range receipts {
		got := FromReceiptSpace(r, Box{0, 0, 1, 1})
		if got == nil {
			t.Fatalf("receipt %+v: got nil", r)
		}
		if *got != r {
			t.Fatalf("receipt %+v: got %+v", r, *got)
		}
	}
}

func TestFromReceiptSpace_Interpolation(t *testing.T) {
	got := FromReceiptSpace(Box{0.2, 0.2, 0.8, 0.8}, Box{0.5, 0.5, 1, 1})
	want := Box{0.5, 0.5, 0.8, 0.8}
	if got == nil {
		t.Fatal("got nil")
	}
	for i, pair := range [][2]float64{{got.X0, want.X0}, {got.Y0, want.Y0}, {got.X1, want.X1}, {got.Y1, want.Y1}} {
		if math.Abs(pair[0]-pair[1]) > 1e-9 {
			t.Fatalf("coord %d = %v, want %v", i, pair[0], pair[1])
		}
	}
}

func TestFromReceiptSpace_InvalidResult(t *testing.T) {
	// Degenerate receipt region collapses the result; must reject, not clamp.
	if got := FromReceiptSpace(Box{0.5, 0.5, 0.5, 0.5}, Box{0, 0, 1, 1}); got != nil {
		t.Fatalf("got %+v, want nil", got)
	}
}

func TestUnion(t *testing.T) {
	got := Union(Box{0.1, 0.1, 0.3, 0.2}, Box{0.2, 0.05, 0.6, 0.25})
	want := Box{0.1, 0.05, 0.6, 0.25}
	if got != want {
		t.Fatalf("Union = %+v, want %+v", got, want)
	}
}

func TestBoxJSON(t *testing.T) {
	b := Box{0.1, 0.2, 0.3, 0.4}
	data, err := json.Marshal(b)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "[0.1,0.2,0.3,0.4]" {
		t.Fatalf("marshal = %s", data)
	}

	var back Box
	if err := json.Unmarshal(data, &back); err != nil {
		t.Fatal(err)
	}
	if back != b {
		t.Fatalf("round-trip = %+v", back)
	}

	// Lenient decode: junk becomes the zero (invalid) box.
	for _, junk := range []string{`null`, `"none"`, `[0.1,0.2]`, `{"x":1}`} {
		var z Box
		if err := json.Unmarshal([]byte(junk), &z); err != nil {
			t.Fatalf("decode %s: %v", junk, err)
		}
		if z.Valid() {
			t.Fatalf("decode %s: box unexpectedly valid", junk)
		}
	}
}
