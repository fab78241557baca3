package address

import "testing"

func TestInferFromRawText_StreetCityZip(t *testing.T) {
	raw := "TRADER JOE'S\n123 Main St\nSpringfield IL 62704\nCASHIER #4\nTOTAL 14.99\n"
	got := InferFromRawText(raw, "Trader Joe's")
	want := "123 Main St, Springfield IL 62704"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInferFromRawText_MerchantLineSkipped(t *testing.T) {
	// The merchant dupe must not be mistaken for the address start even when
	// it carries a number.
	raw := "7-ELEVEN STORE\n456 Oak Ave\nAustin TX 78701"
	got := InferFromRawText(raw, "7-Eleven Store")
	want := "456 Oak Ave, Austin TX 78701"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInferFromRawText_POBox(t *testing.T) {
	got := InferFromRawText("P.O. Box 981\nDenver CO 80201", "")
	want := "P.O. Box 981, Denver CO 80201"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInferFromRawText_FiltersNoise(t *testing.T) {
	raw := "------------\nTel: (555) 123-4567\nwww.example.com\n789 Pine Rd\nPortland OR 97201"
	got := InferFromRawText(raw, "")
	want := "789 Pine Rd, Portland OR 97201"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}

func TestInferFromRawText_NoStreet(t *testing.T) {
	if got := InferFromRawText("THANK YOU\nHAVE A NICE DAY", ""); got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}

func TestInferFromRawText_CapsAtThreeLines(t *testing.T) {
	raw := "10 Downing Street\nFloor Two\nWest Wing\nExtra Line\nMore"
	got := InferFromRawText(raw, "")
	want := "10 Downing Street, Floor Two, West Wing"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
