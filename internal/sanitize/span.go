package sanitize

// Span describes a sensitive substring detected within a text.
type Span struct {
	Start int    // byte offset of the first character (UTF-8)
	End   int    // byte offset one past the last character
	Label string // e.g. "EMAIL", "PHONE", "CARD", "IP"
}

// Detector finds sensitive spans in a text string.
// Implementations must be safe for concurrent use.
type Detector interface {
	Detect(text string) []Span
}
