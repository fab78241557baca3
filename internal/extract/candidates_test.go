package extract

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestTryCandidates_FirstSuccessWins(t *testing.T) {
	calls := []string{}
	got, used, err := tryCandidates([]string{"a", "b", "c"}, func(c string) (int, error) {
		calls = append(calls, c)
		if c == "b" {
			return 42, nil
		}
		return 0, fmt.Errorf("%s failed", c)
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != 42 || used != "b" {
		t.Fatalf("got %d from %q", got, used)
	}
	if len(calls) != 2 {
		t.Fatalf("calls = %v, want a then b only", calls)
	}
}

func TestTryCandidates_AggregatesFailures(t *testing.T) {
	sentinel := errors.New("boom")
	_, _, err := tryCandidates([]string{"a", "b"}, func(c string) (int, error) {
		return 0, fmt.Errorf("%s: %w", c, sentinel)
	})
	if err == nil {
		t.Fatal("want error")
	}
	var cerr *CandidateError
	if !errors.As(err, &cerr) {
		t.Fatalf("err = %T, want *CandidateError", err)
	}
	if len(cerr.Attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(cerr.Attempts))
	}
	if !errors.Is(err, sentinel) {
		t.Fatal("CandidateError must unwrap to the last attempt's error")
	}
	if !strings.Contains(err.Error(), "all 2 candidates failed") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestDedupCandidates(t *testing.T) {
	got := dedupCandidates([]string{"", "a", "b", "a", "  ", "c", "b"})
	want := []string{"a", "b", "c"}
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}
