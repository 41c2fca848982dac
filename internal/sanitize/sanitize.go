// Package sanitize masks personal data in text before it leaves the process.
// The remote classification client runs every query, page excerpt and image
// context through a Scrubber, so the service sees «EMAIL» instead of an
// address while the keywords it classifies on stay intact.
package sanitize

import (
	"log/slog"
	"slices"
)

// Scrubber replaces detected spans with their label placeholder.
type Scrubber struct {
	detectors []Detector
}

// New returns a Scrubber using the built-in rule detectors.
func New() *Scrubber {
	return NewWithDetectors(Rules())
}

// NewWithDetectors creates a Scrubber with an explicit detector list.
func NewWithDetectors(detectors []Detector) *Scrubber {
	return &Scrubber{detectors: detectors}
}

// Scrub returns text with every detected span replaced. A nil Scrubber
// returns text unchanged.
func (s *Scrubber) Scrub(text string) string {
	if s == nil || text == "" {
		return text
	}
	var spans []Span
	for _, d := range s.detectors {
		spans = append(spans, d.Detect(text)...)
	}
	if len(spans) == 0 {
		return text
	}

	spans = validSpans(text, spans)
	sortSpansDesc(spans)
	spans = deduplicateSpans(spans)

	out := text
	for _, sp := range spans {
		out = out[:sp.Start] + placeholder(sp.Label) + out[sp.End:]
	}
	slog.Debug("sanitize: scrubbed", "spans", len(spans))
	return out
}

func placeholder(label string) string { return "«" + label + "»" }

// wordBoundaryBytes are bytes that delimit tokens/words.
var wordBoundaryBytes = func() [256]bool {
	var t [256]bool
	for _, b := range []byte(" \t\n\r<>(),;:[]{}\"'`.!?") {
		t[b] = true
	}
	return t
}()

func isWordBoundaryByte(b byte) bool { return wordBoundaryBytes[b] }

// validSpans filters out spans with invalid offsets or spans that land in
// the middle of a larger word.
func validSpans(text string, spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	for _, sp := range spans {
		if sp.Start < 0 || sp.End > len(text) || sp.Start >= sp.End {
			continue
		}
		if !isRuneBoundary(text, sp.Start) || !isRuneBoundary(text, sp.End) {
			continue
		}
		if sp.Start > 0 && !isWordBoundaryByte(text[sp.Start-1]) {
			continue
		}
		if sp.End < len(text) && !isWordBoundaryByte(text[sp.End]) {
			continue
		}
		out = append(out, sp)
	}
	return out
}

// deduplicateSpans removes overlapping spans (assumes sorted descending by
// Start, longest first on ties).
func deduplicateSpans(spans []Span) []Span {
	out := make([]Span, 0, len(spans))
	lastStart := -1
	for _, sp := range spans {
		if lastStart == -1 || sp.End <= lastStart {
			out = append(out, sp)
			lastStart = sp.Start
		}
	}
	return out
}

func isRuneBoundary(s string, i int) bool {
	if i == 0 || i == len(s) {
		return true
	}
	return s[i]&0xC0 != 0x80
}

func sortSpansDesc(spans []Span) {
	slices.SortFunc(spans, func(a, b Span) int {
		if a.Start != b.Start {
			return b.Start - a.Start
		}
		return (b.End - b.Start) - (a.End - a.Start)
	})
}
