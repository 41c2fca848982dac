// Package activity keeps the recent-activity logs and usage counters shown in
// the extension popup.
package activity

import (
	"sync"
	"time"

	"github.com/gonkalabs/safeguard-go/internal/metrics"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// Capacity is the number of entries kept per log.
const Capacity = 100

// Kind tags an entry.
type Kind string

const (
	SiteBlocked   Kind = "site_blocked"
	SearchBlocked Kind = "search_blocked"
	PageBlocked   Kind = "page_blocked"
	ImageFiltered Kind = "image_filtered"
	ImageUnblur   Kind = "image_unblur"
)

// Entry is one logged event.
type Entry struct {
	Kind      Kind              `json:"type"`
	Timestamp time.Time         `json:"timestamp"`
	URL       string            `json:"url,omitempty"`
	Domain    string            `json:"domain,omitempty"`
	Query     string            `json:"query,omitempty"`
	Category  taxonomy.Category `json:"category,omitempty"`
	Keywords  []string          `json:"keywords,omitempty"`
	ImageID   string            `json:"imageId,omitempty"`
}

// Stats are the running counters.
type Stats struct {
	SitesBlocked    int `json:"sitesBlocked"`
	SearchesBlocked int `json:"searchesBlocked"`
	ImagesFiltered  int `json:"imagesFiltered"`
	ImagesUnblurred int `json:"imagesUnblurred"`
}

// Log is safe for concurrent use.
type Log struct {
	now func() time.Time

	mu      sync.Mutex
	entries []Entry // oldest first; reversed on read
	stats   Stats
}

// New returns an empty Log.
func New() *Log {
	return &Log{now: time.Now}
}

// Record appends e, stamping it if it carries no time. The oldest entry is
// dropped once the log is full.
func (l *Log) Record(e Entry) {
	if e.Timestamp.IsZero() {
		e.Timestamp = l.now()
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	if n := len(l.entries); n > Capacity {
		l.entries = append(l.entries[:0], l.entries[n-Capacity:]...)
	}
	switch e.Kind {
	case SiteBlocked, PageBlocked:
		l.stats.SitesBlocked++
	case SearchBlocked:
		l.stats.SearchesBlocked++
	case ImageFiltered:
		l.stats.ImagesFiltered++
	case ImageUnblur:
		l.stats.ImagesUnblurred++
	}
	l.mu.Unlock()

	metrics.Activity.WithLabelValues(string(e.Kind)).Inc()
}

// Entries returns the log newest first. With kinds given, only entries of
// those kinds are returned.
func (l *Log) Entries(kinds ...Kind) []Entry {
	l.mu.Lock()
	defer l.mu.Unlock()

	out := make([]Entry, 0, len(l.entries))
	for i := len(l.entries) - 1; i >= 0; i-- {
		e := l.entries[i]
		if len(kinds) > 0 && !contains(kinds, e.Kind) {
			continue
		}
		out = append(out, e)
	}
	return out
}

// Stats returns a snapshot of the counters.
func (l *Log) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.stats
}

// Clear empties the log. Counters are kept.
func (l *Log) Clear() {
	l.mu.Lock()
	l.entries = nil
	l.mu.Unlock()
}

func contains(kinds []Kind, k Kind) bool {
	for _, x := range kinds {
		if x == k {
			return true
		}
	}
	return false
}
