// Package gate decides whether a navigation should be blocked before the
// page loads, from the hostname alone or from a search-engine query.
package gate

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"github.com/gonkalabs/safeguard-go/internal/blockpage"
	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/metrics"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// QueryClassifier classifies search queries. *classifier.Classifier
// satisfies it.
type QueryClassifier interface {
	ClassifyQuery(ctx context.Context, query string, cfg classifier.FilterConfig) classifier.Verdict
}

// DomainChecker is the optional remote hostname check.
type DomainChecker interface {
	CheckDomain(ctx context.Context, domain string, cfg classifier.FilterConfig) (classifier.Verdict, error)
}

// Navigation is the result of checking one navigation target.
type Navigation struct {
	URL       string              `json:"url"`
	Host      string              `json:"host,omitempty"`
	Domain    classifier.Verdict  `json:"domain"`
	Query     *classifier.Verdict `json:"query,omitempty"`
	QueryText string              `json:"queryText,omitempty"`
}

// Blocked reports whether either the domain or the query verdict is harmful.
func (n Navigation) Blocked() bool {
	return n.Domain.Harmful || (n.Query != nil && n.Query.Harmful)
}

// Target describes the block page for a blocked navigation.
func (n Navigation) Target() blockpage.Target {
	if n.Domain.Harmful {
		return blockpage.Target{
			Reason:   blockpage.ReasonDomain,
			Keywords: n.Domain.MatchedTerms,
			Domain:   n.Host,
			Category: n.Domain.Category,
		}
	}
	if n.Query != nil && n.Query.Harmful {
		return blockpage.Target{
			Reason:   blockpage.ReasonQuery,
			Keywords: n.Query.MatchedTerms,
			Query:    n.QueryText,
			Category: n.Query.Category,
		}
	}
	return blockpage.Target{}
}

// Gate is safe for concurrent use.
type Gate struct {
	queries QueryClassifier
	domains DomainChecker // nil when the remote check is off
}

// New creates a Gate. domains may be nil.
func New(queries QueryClassifier, domains DomainChecker) *Gate {
	return &Gate{queries: queries, domains: domains}
}

// EvaluateNavigation checks rawURL. The first positive check wins: the
// curated block-list, then host heuristics, then the remote domain check,
// then the search query.
func (g *Gate) EvaluateNavigation(ctx context.Context, rawURL string, cfg classifier.FilterConfig) Navigation {
	nav := Navigation{URL: rawURL, Domain: classifier.Safe(classifier.Local)}

	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		// extension pages, about:, file: and garbage are never gated
		return nav
	}
	host := strings.TrimSuffix(strings.ToLower(u.Hostname()), ".")
	if host == "" {
		return nav
	}
	nav.Host = host

	defer func() {
		outcome := "allowed"
		if nav.Blocked() {
			outcome = "blocked"
			slog.Info("gate: navigation blocked", "host", host, "category", nav.Target().Category)
		}
		metrics.Navigations.WithLabelValues(outcome).Inc()
	}()

	if d, ok := matchDomain(host, blocklist); ok {
		nav.Domain = classifier.Verdict{
			Harmful:      true,
			Category:     taxonomy.NSFW,
			MatchedTerms: []string{d},
			Source:       classifier.Local,
		}
		return nav
	}

	if v := matchHost(host, cfg.Categories); v.Harmful {
		nav.Domain = v
		return nav
	}

	if g.domains != nil {
		v, err := g.domains.CheckDomain(ctx, host, cfg)
		if err != nil {
			slog.Warn("gate: remote domain check failed", "host", host, "err", err)
		} else if v.Harmful {
			nav.Domain = v
			return nav
		}
	}

	if _, ok := matchDomain(host, searchEngines); ok && g.queries != nil {
		if q := searchQuery(u.Query()); q != "" {
			v := g.queries.ClassifyQuery(ctx, q, cfg)
			nav.Query = &v
			nav.QueryText = q
		}
	}
	return nav
}

// matchDomain reports the list entry that host equals or is a subdomain of.
func matchDomain(host string, list []string) (string, bool) {
	for _, d := range list {
		if host == d || strings.HasSuffix(host, "."+d) {
			return d, true
		}
	}
	return "", false
}

func matchHost(host string, enabled taxonomy.Set) classifier.Verdict {
	for _, cat := range enabled.Slice() {
		for _, p := range hostPatterns[cat] {
			if strings.Contains(host, p) {
				return classifier.Verdict{
					Harmful:      true,
					Category:     cat,
					MatchedTerms: []string{p},
					Source:       classifier.Local,
				}
			}
		}
	}
	return classifier.Safe(classifier.Local)
}

func searchQuery(values url.Values) string {
	for _, p := range queryParams {
		if q := strings.TrimSpace(values.Get(p)); q != "" {
			return q
		}
	}
	return ""
}
