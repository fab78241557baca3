package quantity

import (
	"math"
	"testing"
)

func TestInferFromLine_QtyUnitTotalRow(t *testing.T) {
	inf := InferFromLine("2 Milk 4.00 8.00", 8.00)
	if inf == nil {
		t.Fatal("expected an inference")
	}
	if inf.Qty != 2 {
		t.Fatalf("qty = %d, want 2", inf.Qty)
	}
	if inf.Unit == nil || math.Abs(*inf.Unit-4.00) > 1e-9 {
		t.Fatalf("unit = %v, want 4.00", inf.Unit)
	}
	if inf.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %q, want high", inf.Confidence)
	}
}

func TestInferFromLine_QtyUnitTotalRow_ArithmeticGate(t *testing.T) {
	// Total far from item price: the row pattern must not apply; the line
	// falls through to the leading-integer heuristic instead.
	inf := InferFromLine("2 Milk 4.00 8.00", 12.00)
	if inf == nil {
		t.Fatal("expected medium-confidence fallback")
	}
	if inf.Confidence != ConfidenceMedium {
		t.Fatalf("confidence = %q, want medium", inf.Confidence)
	}
	if inf.Qty != 2 {
		t.Fatalf("qty = %d, want 2", inf.Qty)
	}
	if inf.Unit == nil || math.Abs(*inf.Unit-6.00) > 1e-9 {
		t.Fatalf("unit = %v, want 6.00", inf.Unit)
	}
}

func TestInferFromLine_AtPattern(t *testing.T) {
	inf := InferFromLine("APPLES 3 @ 1.50", 4.50)
	if inf == nil {
		t.Fatal("expected an inference")
	}
	if inf.Qty != 3 || inf.Unit == nil || math.Abs(*inf.Unit-1.50) > 1e-9 {
		t.Fatalf("got qty=%d unit=%v", inf.Qty, inf.Unit)
	}
	if inf.Confidence != ConfidenceHigh {
		t.Fatalf("confidence = %q, want high", inf.Confidence)
	}
}

func TestInferFromLine_AtPattern_PriceMismatch(t *testing.T) {
	if inf := InferFromLine("APPLES 3 @ 1.50", 9.99); inf != nil {
		t.Fatalf("expected nil, got %+v", inf)
	}
}

func TestInferFromLine_SizeTokenGuard(t *testing.T) {
	for _, line := range []string{
		"2 % milk",
		"12 oz Cola",
		"3 pack Gum",
		"20 pc Nuggets",
		"12 ct Eggs",
	} {
		if inf := InferFromLine(line, 8.00); inf != nil {
			t.Fatalf("%q: expected nil, got %+v", line, inf)
		}
	}
}

func TestInferFromLine_LeadingInteger(t *testing.T) {
	inf := InferFromLine("2 Chicken Breast", 8.00)
	if inf == nil {
		t.Fatal("expected an inference")
	}
	if inf.Qty != 2 || inf.Unit == nil || math.Abs(*inf.Unit-4.00) > 1e-9 {
		t.Fatalf("got qty=%d unit=%v", inf.Qty, inf.Unit)
	}
	if inf.Confidence != ConfidenceMedium {
		t.Fatalf("confidence = %q, want medium", inf.Confidence)
	}
}

func TestInferFromLine_NoMatch(t *testing.T) {
	for _, line := range []string{"", "SUBTOTAL 14.00", "Chicken Breast 8.00"} {
		if inf := InferFromLine(line, 8.00); inf != nil {
			t.Fatalf("%q: expected nil, got %+v", line, inf)
		}
	}
}

func TestQtyFromLine(t *testing.T) {
	cases := []struct {
		in   string
		want int
	}{
		{"2 Chicken Breast", 2},
		{"3 x Soda", 3},
		{"2 % milk", 0},
		{"12 oz Cola", 0},
		{"Chicken Breast", 0},
		{"1234 Main St", 0},
	}
	for _, c := range cases {
		if got := QtyFromLine(c.in); got != c.want {
			t.Fatalf("QtyFromLine(%q) = %d, want %d", c.in, got, c.want)
		}
	}
}
