// Package classifier decides whether a piece of text is harmful. It scores
// text locally against the keyword taxonomy, applies the educational-context
// override and, when nothing matches, asks an optional remote backend.
package classifier

import (
	"context"
	"log/slog"
	"strings"
	"unicode/utf8"

	"github.com/gonkalabs/safeguard-go/internal/metrics"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// Sensitivity is forwarded to the remote backend.
type Sensitivity string

const (
	Low    Sensitivity = "low"
	Medium Sensitivity = "medium"
	High   Sensitivity = "high"
)

// ParseSensitivity returns Medium for anything it does not recognise.
func ParseSensitivity(s string) Sensitivity {
	switch Sensitivity(strings.ToLower(strings.TrimSpace(s))) {
	case Low:
		return Low
	case High:
		return High
	default:
		return Medium
	}
}

// FilterConfig is the per-call filter configuration.
type FilterConfig struct {
	Categories  taxonomy.Set
	Sensitivity Sensitivity
	Educational bool
}

// Filters lists the enabled category names, in priority order.
func (c FilterConfig) Filters() []string {
	cats := c.Categories.Slice()
	out := make([]string, len(cats))
	for i, cat := range cats {
		out[i] = string(cat)
	}
	return out
}

// Source records which layer produced a Verdict.
type Source string

const (
	Local  Source = "local"
	Remote Source = "remote"
)

// Verdict is the outcome of one classification. Category is set if and only
// if Harmful is true.
type Verdict struct {
	Harmful      bool              `json:"harmful"`
	Category     taxonomy.Category `json:"category,omitempty"`
	MatchedTerms []string          `json:"matchedTerms,omitempty"`
	Source       Source            `json:"source"`
	Reason       string            `json:"reason,omitempty"`
}

// Safe is the verdict for text with no findings.
func Safe(src Source) Verdict { return Verdict{Source: src} }

// Page is content together with the page it came from.
type Page struct {
	URL   string
	Title string
	Text  string
}

// Image is what the remote backend gets to see of an image.
type Image struct {
	URL     string
	Alt     string
	Context string // nearby page text
}

// RemoteBackend is the escalation layer. Implementations return an error when
// they cannot produce a verdict; the classifier then keeps its local result.
type RemoteBackend interface {
	AnalyzeQuery(ctx context.Context, query string, cfg FilterConfig) (Verdict, error)
	AnalyzeContent(ctx context.Context, page Page, cfg FilterConfig) (Verdict, error)
}

// MaxRemoteContent is the byte budget for content sent to the remote backend.
const MaxRemoteContent = 5000

// Classifier is safe for concurrent use.
type Classifier struct {
	tax    *taxonomy.Taxonomy
	remote RemoteBackend // nil when remote escalation is off
}

// New creates a Classifier. remote may be nil.
func New(tax *taxonomy.Taxonomy, remote RemoteBackend) *Classifier {
	if tax == nil {
		tax = taxonomy.Default()
	}
	return &Classifier{tax: tax, remote: remote}
}

// Taxonomy returns the keyword lists in use.
func (c *Classifier) Taxonomy() *taxonomy.Taxonomy { return c.tax }

// Classify classifies free-standing content.
func (c *Classifier) Classify(ctx context.Context, text string, cfg FilterConfig) Verdict {
	return c.ClassifyPage(ctx, Page{Text: text}, cfg)
}

// ClassifyPage classifies page content, passing the page URL and title along
// to the remote backend.
func (c *Classifier) ClassifyPage(ctx context.Context, page Page, cfg FilterConfig) Verdict {
	return c.run(ctx, "content", page.Text, cfg, func(ctx context.Context) (Verdict, error) {
		page.Text = Truncate(page.Text, MaxRemoteContent)
		return c.remote.AnalyzeContent(ctx, page, cfg)
	})
}

// ClassifyQuery classifies a search query.
func (c *Classifier) ClassifyQuery(ctx context.Context, query string, cfg FilterConfig) Verdict {
	return c.run(ctx, "query", query, cfg, func(ctx context.Context) (Verdict, error) {
		return c.remote.AnalyzeQuery(ctx, query, cfg)
	})
}

func (c *Classifier) run(ctx context.Context, kind, text string, cfg FilterConfig, escalate func(context.Context) (Verdict, error)) (v Verdict) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("classifier: recovered from panic", "kind", kind, "panic", r)
			v = Safe(Local)
		}
		metrics.Verdicts.WithLabelValues(kind, string(v.Source), verdictLabel(v)).Inc()
	}()

	if strings.TrimSpace(text) == "" {
		return Safe(Local)
	}

	local := c.local(text, cfg)
	if local.Harmful || c.remote == nil {
		return local
	}

	rv, err := escalate(ctx)
	if err != nil {
		slog.Warn("classifier: remote unavailable, using local verdict", "kind", kind, "err", err)
		return local
	}
	return normalise(rv)
}

// local is the keyword pass. It never touches the network.
func (c *Classifier) local(text string, cfg FilterConfig) Verdict {
	lower := strings.ToLower(text)
	eduScore := -1 // computed on first need

	for _, cat := range cfg.Categories.Slice() {
		matched := c.tax.Match(cat, lower)
		if len(matched) == 0 {
			continue
		}
		if cfg.Educational {
			if eduScore < 0 {
				eduScore = c.tax.EducationalScore(lower)
			}
			if eduScore >= educationalThreshold {
				slog.Debug("classifier: educational context suppressed match",
					"category", cat, "terms", matched, "score", eduScore)
				continue
			}
		}
		return Verdict{
			Harmful:      true,
			Category:     cat,
			MatchedTerms: matched,
			Source:       Local,
		}
	}
	return Safe(Local)
}

const educationalThreshold = 2

// normalise enforces the Verdict invariants on a remote answer.
func normalise(v Verdict) Verdict {
	v.Source = Remote
	if !v.Harmful {
		v.Category = ""
		return v
	}
	if v.Category == "" {
		v.Category = taxonomy.Inappropriate
	}
	return v
}

func verdictLabel(v Verdict) string {
	if !v.Harmful {
		return "safe"
	}
	return string(v.Category)
}

// Truncate cuts s to at most n bytes without splitting a rune.
func Truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
