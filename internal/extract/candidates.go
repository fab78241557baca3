package extract

import (
	"fmt"
	"strings"
)

// CandidateAttempt records one failed model attempt.
type CandidateAttempt struct {
	Candidate string
	Err       error
}

// CandidateError aggregates the failures of every candidate tried. It
// unwraps to the last attempt's error so sentinel checks still work.
type CandidateError struct {
	Attempts []CandidateAttempt
}

func (e *CandidateError) Error() string {
	if len(e.Attempts) == 0 {
		return "no candidates to try"
	}
	parts := make([]string, 0, len(e.Attempts))
	for _, a := range e.Attempts {
		parts = append(parts, fmt.Sprintf("%s: %v", a.Candidate, a.Err))
	}
	return fmt.Sprintf("all %d candidates failed: %s", len(e.Attempts), strings.Join(parts, "; "))
}

func (e *CandidateError) Unwrap() error {
	if len(e.Attempts) == 0 {
		return nil
	}
	return e.Attempts[len(e.Attempts)-1].Err
}

// tryCandidates runs attempt against each candidate in order and returns the
// first success along with the candidate that produced it. When every
// candidate fails, the zero value is returned with a CandidateError carrying
// each failure.
func tryCandidates[T any](candidates []string, attempt func(candidate string) (T, error)) (T, string, error) {
	var zero T
	cerr := &CandidateError{}
	for _, candidate := range candidates {
		v, err := attempt(candidate)
		if err == nil {
			return v, candidate, nil
		}
		cerr.Attempts = append(cerr.Attempts, CandidateAttempt{Candidate: candidate, Err: err})
	}
	return zero, "", cerr
}

// dedupCandidates drops empty entries and duplicates, preserving order.
func dedupCandidates(candidates []string) []string {
	seen := make(map[string]bool, len(candidates))
	out := make([]string, 0, len(candidates))
	for _, c := range candidates {
		c = strings.TrimSpace(c)
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}
