// Package blockpage encodes and decodes the block-page target URL the
// extension redirects to when it stops a navigation or a page.
package blockpage

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// Reasons carried in the reason parameter.
const (
	ReasonDomain  = "domain"
	ReasonQuery   = "search"
	ReasonContent = "content"
)

// Target is everything the block page shows. Exactly one of URL, Domain and
// Query is normally set.
type Target struct {
	Reason   string            `json:"reason"`
	Keywords []string          `json:"keywords,omitempty"`
	URL      string            `json:"url,omitempty"`
	Domain   string            `json:"domain,omitempty"`
	Query    string            `json:"query,omitempty"`
	Category taxonomy.Category `json:"category,omitempty"`
}

// Encode appends the target parameters to base.
func (t Target) Encode(base string) string {
	v := url.Values{}
	v.Set("reason", t.Reason)
	if len(t.Keywords) > 0 {
		v.Set("keywords", strings.Join(t.Keywords, ","))
	}
	switch {
	case t.URL != "":
		v.Set("url", t.URL)
	case t.Domain != "":
		v.Set("domain", t.Domain)
	case t.Query != "":
		v.Set("query", t.Query)
	}
	if t.Category != "" {
		v.Set("category", string(t.Category))
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + v.Encode()
}

// Parse reads a target back out of a block-page URL.
func Parse(raw string) (Target, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("blockpage: parse: %w", err)
	}
	q := u.Query()
	t := Target{
		Reason: q.Get("reason"),
		URL:    q.Get("url"),
		Domain: q.Get("domain"),
		Query:  q.Get("query"),
	}
	if kw := q.Get("keywords"); kw != "" {
		t.Keywords = strings.Split(kw, ",")
	}
	if c := q.Get("category"); c != "" {
		t.Category = taxonomy.ParseCategory(c)
	}
	return t, nil
}

// Label is the human-readable category name shown on the block page.
func Label(c taxonomy.Category) string {
	switch c {
	case taxonomy.NSFW:
		return "Adult Content"
	case taxonomy.Violence:
		return "Violent Content"
	case taxonomy.Suicide:
		return "Self-Harm Content"
	default:
		return "Potentially Harmful Content"
	}
}
