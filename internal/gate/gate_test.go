package gate

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/blockpage"
	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

type stubDomains struct {
	verdict classifier.Verdict
	err     error
	hosts   []string
}

func (s *stubDomains) CheckDomain(_ context.Context, domain string, _ classifier.FilterConfig) (classifier.Verdict, error) {
	s.hosts = append(s.hosts, domain)
	return s.verdict, s.err
}

func config(s classifier.Sensitivity, cats taxonomy.Set) classifier.FilterConfig {
	return classifier.FilterConfig{Categories: cats, Sensitivity: s, Educational: true}
}

func TestBlocklistIgnoresSensitivityAndFilters(t *testing.T) {
	g := New(classifier.New(nil, nil), nil)
	for _, s := range []classifier.Sensitivity{classifier.Low, classifier.Medium, classifier.High} {
		for _, cats := range []taxonomy.Set{taxonomy.All(), 0} {
			nav := g.EvaluateNavigation(context.Background(), "https://xhamster.com/videos", config(s, cats))
			require.True(t, nav.Blocked())
			assert.Equal(t, taxonomy.NSFW, nav.Domain.Category)
			assert.Equal(t, "xhamster.com", nav.Host)
		}
	}
}

func TestBlocklistSuffixMatch(t *testing.T) {
	g := New(nil, nil)
	cfg := config(classifier.Medium, taxonomy.All())

	assert.True(t, g.EvaluateNavigation(context.Background(), "https://www.pornhub.com/", cfg).Blocked())
	assert.True(t, g.EvaluateNavigation(context.Background(), "http://de.xvideos.com.", cfg).Blocked())
	// a lookalike that only ends with the same letters is not a subdomain
	assert.False(t, g.EvaluateNavigation(context.Background(), "https://notxnxx.org", config(classifier.Medium, 0)).Blocked())
}

func TestHostHeuristics(t *testing.T) {
	g := New(nil, nil)

	nav := g.EvaluateNavigation(context.Background(), "https://bestgore.example", config(classifier.Medium, taxonomy.All()))
	require.True(t, nav.Blocked())
	assert.Equal(t, taxonomy.Violence, nav.Domain.Category)
	assert.Equal(t, []string{"gore"}, nav.Domain.MatchedTerms)

	nav = g.EvaluateNavigation(context.Background(), "https://suicide-forum.example", config(classifier.Medium, taxonomy.All()))
	assert.Equal(t, taxonomy.Suicide, nav.Domain.Category)

	// disabled category
	nav = g.EvaluateNavigation(context.Background(), "https://bestgore.example", config(classifier.Medium, taxonomy.NewSet(taxonomy.NSFW)))
	assert.False(t, nav.Blocked())
}

func TestSearchQuery(t *testing.T) {
	g := New(classifier.New(nil, nil), nil)
	cfg := config(classifier.Medium, taxonomy.All())

	nav := g.EvaluateNavigation(context.Background(), "https://www.google.com/search?q=how+to+commit+suicide", cfg)
	require.True(t, nav.Blocked())
	require.NotNil(t, nav.Query)
	assert.Equal(t, taxonomy.Suicide, nav.Query.Category)
	assert.Equal(t, "how to commit suicide", nav.QueryText)
	assert.False(t, nav.Domain.Harmful)

	target := nav.Target()
	assert.Equal(t, blockpage.ReasonQuery, target.Reason)
	assert.Equal(t, "how to commit suicide", target.Query)

	nav = g.EvaluateNavigation(context.Background(), "https://search.yahoo.com/search?p=effects+of+suicide+prevention+research+study", cfg)
	assert.False(t, nav.Blocked())
	require.NotNil(t, nav.Query)
}

func TestQueryParamOrder(t *testing.T) {
	g := New(classifier.New(nil, nil), nil)
	cfg := config(classifier.Medium, taxonomy.All())

	// q is empty, so query is used
	nav := g.EvaluateNavigation(context.Background(), "https://duckduckgo.com/?q=&query=porn&text=kittens", cfg)
	assert.Equal(t, "porn", nav.QueryText)

	nav = g.EvaluateNavigation(context.Background(), "https://yandex.com/search/?text=kittens&search=xxx", cfg)
	assert.Equal(t, "xxx", nav.QueryText)
}

func TestQueryOnlyOnSearchEngines(t *testing.T) {
	g := New(classifier.New(nil, nil), nil)
	nav := g.EvaluateNavigation(context.Background(), "https://example.com/?q=porn", config(classifier.Medium, taxonomy.All()))
	assert.False(t, nav.Blocked())
	assert.Nil(t, nav.Query)
}

func TestNonWebSchemesAreAllowed(t *testing.T) {
	g := New(classifier.New(nil, nil), nil)
	cfg := config(classifier.High, taxonomy.All())
	for _, raw := range []string{
		"chrome-extension://abcdef/blocked.html?domain=pornhub.com",
		"moz-extension://x/popup.html",
		"about:blank",
		"::not a url",
	} {
		assert.False(t, g.EvaluateNavigation(context.Background(), raw, cfg).Blocked(), raw)
	}
}

func TestRemoteDomainCheck(t *testing.T) {
	remote := &stubDomains{verdict: classifier.Verdict{Harmful: true, Category: taxonomy.Violence, Source: classifier.Remote}}
	g := New(classifier.New(nil, nil), remote)
	cfg := config(classifier.Medium, taxonomy.All())

	nav := g.EvaluateNavigation(context.Background(), "https://quiet.example/", cfg)
	assert.True(t, nav.Blocked())
	assert.Equal(t, classifier.Remote, nav.Domain.Source)
	assert.Equal(t, []string{"quiet.example"}, remote.hosts)

	// local hits never reach the remote
	g.EvaluateNavigation(context.Background(), "https://pornhub.com/", cfg)
	assert.Len(t, remote.hosts, 1)
}

func TestRemoteDomainFailureIsIgnored(t *testing.T) {
	g := New(classifier.New(nil, nil), &stubDomains{err: errors.New("down")})
	nav := g.EvaluateNavigation(context.Background(), "https://www.bing.com/search?q=nude", config(classifier.Medium, taxonomy.All()))
	require.True(t, nav.Blocked())
	assert.Equal(t, taxonomy.NSFW, nav.Query.Category)
}

func TestDomainTarget(t *testing.T) {
	g := New(nil, nil)
	nav := g.EvaluateNavigation(context.Background(), "https://xhamster.com/", config(classifier.Low, taxonomy.All()))
	target := nav.Target()
	assert.Equal(t, blockpage.ReasonDomain, target.Reason)
	assert.Equal(t, "xhamster.com", target.Domain)
	assert.Equal(t, taxonomy.NSFW, target.Category)
}
