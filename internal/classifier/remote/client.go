// Package remote talks to the classification backend over HTTP. Every call
// is bounded by a timeout and guarded by a circuit breaker; callers treat any
// returned error as "no verdict" and keep their local result.
package remote

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/sony/gobreaker"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/metrics"
	"github.com/gonkalabs/safeguard-go/internal/sanitize"
	"github.com/gonkalabs/safeguard-go/internal/signer"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// Backend paths.
const (
	PathAnalyzeQuery   = "/analyze_query"
	PathAnalyzeContent = "/analyze_content"
	PathCheckDomain    = "/check_domain"
	PathAnalyzeImage   = "/analyze_image"
)

const (
	maxResponseBytes = 1 << 20
	maxAttempts      = 3
)

// Options tunes a Client. Zero values pick the defaults.
type Options struct {
	Timeout  time.Duration  // per request, default 5s
	CacheTTL time.Duration  // verdict cache, default 5m; negative disables
	Signer   *signer.Signer // optional request signing

	// Scrubber masks personal data in outgoing text; nil sends text as is.
	Scrubber *sanitize.Scrubber
}

// Client implements classifier.RemoteBackend plus the domain and image checks.
// It is safe for concurrent use.
type Client struct {
	pool    *Pool
	http    *http.Client
	timeout time.Duration
	breaker *gobreaker.CircuitBreaker
	cache   *ttlcache.Cache // nil when caching is off
	signer  *signer.Signer
	scrub   *sanitize.Scrubber
}

// New creates a Client for the given backend base URLs
// (e.g. "http://localhost:8000").
func New(endpoints []string, opts Options) (*Client, error) {
	pool, err := NewPool(endpoints)
	if err != nil {
		return nil, err
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 5 * time.Second
	}
	if opts.CacheTTL == 0 {
		opts.CacheTTL = 5 * time.Minute
	}

	c := &Client{
		pool:    pool,
		http:    &http.Client{Timeout: opts.Timeout},
		timeout: opts.Timeout,
		signer:  opts.Signer,
		scrub:   opts.Scrubber,
	}
	c.breaker = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        "safeguard-remote",
		MaxRequests: 3,
		Interval:    60 * time.Second,
		Timeout:     30 * time.Second,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures > 5
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			slog.Warn("remote: circuit breaker state change", "name", name, "from", from.String(), "to", to.String())
		},
	})
	if opts.CacheTTL > 0 {
		c.cache = ttlcache.NewCache()
		c.cache.SetTTL(opts.CacheTTL)
	}
	return c, nil
}

// Close releases the verdict cache.
func (c *Client) Close() {
	if c.cache != nil {
		c.cache.Close()
	}
}

type queryRequest struct {
	Query           string   `json:"query"`
	Sensitivity     string   `json:"sensitivity"`
	EducationalMode bool     `json:"educational_mode"`
	Filters         []string `json:"filters"`
}

type queryResponse struct {
	IsHarmful       bool     `json:"is_harmful"`
	HarmfulKeywords []string `json:"harmful_keywords"`
	Category        string   `json:"category"`
}

// AnalyzeQuery asks the backend about a search query.
func (c *Client) AnalyzeQuery(ctx context.Context, query string, cfg classifier.FilterConfig) (classifier.Verdict, error) {
	var resp queryResponse
	err := c.call(ctx, PathAnalyzeQuery, queryRequest{
		Query:           c.scrub.Scrub(query),
		Sensitivity:     string(cfg.Sensitivity),
		EducationalMode: cfg.Educational,
		Filters:         cfg.Filters(),
	}, &resp)
	if err != nil {
		return classifier.Verdict{}, err
	}
	return verdict(resp.IsHarmful, resp.Category, resp.HarmfulKeywords, ""), nil
}

type contentRequest struct {
	Content         string   `json:"content"`
	URL             string   `json:"url"`
	Title           string   `json:"title"`
	Sensitivity     string   `json:"sensitivity"`
	EducationalMode bool     `json:"educational_mode"`
	Filters         []string `json:"filters"`
}

type contentResponse struct {
	IsHarmful       bool     `json:"is_harmful"`
	Reason          string   `json:"reason"`
	Category        string   `json:"category"`
	HarmfulKeywords []string `json:"harmful_keywords"`
}

// AnalyzeContent asks the backend about page content. The scrubbed content is
// cut to classifier.MaxRemoteContent bytes.
func (c *Client) AnalyzeContent(ctx context.Context, page classifier.Page, cfg classifier.FilterConfig) (classifier.Verdict, error) {
	var resp contentResponse
	err := c.call(ctx, PathAnalyzeContent, contentRequest{
		Content:         classifier.Truncate(c.scrub.Scrub(page.Text), classifier.MaxRemoteContent),
		URL:             page.URL,
		Title:           c.scrub.Scrub(page.Title),
		Sensitivity:     string(cfg.Sensitivity),
		EducationalMode: cfg.Educational,
		Filters:         cfg.Filters(),
	}, &resp)
	if err != nil {
		return classifier.Verdict{}, err
	}
	return verdict(resp.IsHarmful, resp.Category, resp.HarmfulKeywords, resp.Reason), nil
}

type domainRequest struct {
	Domain      string   `json:"domain"`
	Sensitivity string   `json:"sensitivity"`
	Filters     []string `json:"filters"`
}

type domainResponse struct {
	IsHarmful       bool     `json:"is_harmful"`
	Category        string   `json:"category"`
	MatchedPatterns []string `json:"matched_patterns"`
}

// CheckDomain asks the backend about a hostname.
func (c *Client) CheckDomain(ctx context.Context, domain string, cfg classifier.FilterConfig) (classifier.Verdict, error) {
	var resp domainResponse
	err := c.call(ctx, PathCheckDomain, domainRequest{
		Domain:      domain,
		Sensitivity: string(cfg.Sensitivity),
		Filters:     cfg.Filters(),
	}, &resp)
	if err != nil {
		return classifier.Verdict{}, err
	}
	return verdict(resp.IsHarmful, resp.Category, resp.MatchedPatterns, ""), nil
}

type imageRequest struct {
	ImageURL        string `json:"image_url"`
	Sensitivity     string `json:"sensitivity"`
	SurroundingText string `json:"surrounding_text"`
	ImageAlt        string `json:"image_alt"`
}

type imageResponse struct {
	IsHarmful       bool     `json:"is_harmful"`
	NSFWProbability float64  `json:"nsfw_probability"`
	DetectedObjects []string `json:"detected_objects"`
	Category        string   `json:"category"`
}

// AnalyzeImage asks the backend about a single image. A probability above the
// sensitivity threshold counts as harmful even when the backend's own flag is
// false.
func (c *Client) AnalyzeImage(ctx context.Context, img classifier.Image, cfg classifier.FilterConfig) (classifier.Verdict, error) {
	var resp imageResponse
	err := c.call(ctx, PathAnalyzeImage, imageRequest{
		ImageURL:        img.URL,
		Sensitivity:     string(cfg.Sensitivity),
		SurroundingText: c.scrub.Scrub(img.Context),
		ImageAlt:        c.scrub.Scrub(img.Alt),
	}, &resp)
	if err != nil {
		return classifier.Verdict{}, err
	}
	harmful := resp.IsHarmful
	category := resp.Category
	if !harmful && resp.NSFWProbability >= ImageThreshold(cfg.Sensitivity) {
		harmful = true
		category = string(taxonomy.NSFW)
	}
	return verdict(harmful, category, resp.DetectedObjects, ""), nil
}

// ImageThreshold is the nsfw probability at which an image is blurred.
func ImageThreshold(s classifier.Sensitivity) float64 {
	switch s {
	case classifier.Low:
		return 0.8
	case classifier.High:
		return 0.4
	default:
		return 0.6
	}
}

func verdict(harmful bool, category string, terms []string, reason string) classifier.Verdict {
	v := classifier.Verdict{Harmful: harmful, Source: classifier.Remote, Reason: reason}
	if harmful {
		v.Category = taxonomy.ParseCategory(category)
		v.MatchedTerms = terms
	}
	return v
}

// call posts payload to path and decodes the JSON answer into out, going
// through the cache and the circuit breaker.
func (c *Client) call(ctx context.Context, path string, payload, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("remote: marshal: %w", err)
	}

	key := cacheKey(path, body)
	if c.cache != nil {
		if cached, ok := c.cache.Get(key); ok {
			metrics.RemoteRequests.WithLabelValues(path, "cached").Inc()
			return json.Unmarshal(cached.([]byte), out)
		}
	}

	raw, err := c.breaker.Execute(func() (interface{}, error) {
		return c.post(ctx, path, body)
	})
	if err != nil {
		metrics.RemoteRequests.WithLabelValues(path, "error").Inc()
		return err
	}
	data := raw.([]byte)
	if err := json.Unmarshal(data, out); err != nil {
		metrics.RemoteRequests.WithLabelValues(path, "malformed").Inc()
		return fmt.Errorf("remote: %s: decode: %w", path, err)
	}
	metrics.RemoteRequests.WithLabelValues(path, "ok").Inc()
	if c.cache != nil {
		c.cache.Set(key, data)
	}
	return nil
}

// post sends body to path, retrying on a different endpoint when a request
// fails outright or the backend answers 5xx.
func (c *Client) post(ctx context.Context, path string, body []byte) ([]byte, error) {
	attempts := min(maxAttempts, c.pool.Len())
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		data, err := c.postTo(ctx, c.pool.Next(), path, body)
		if err == nil {
			return data, nil
		}
		lastErr = err
		var se *statusError
		if ctx.Err() != nil || (errors.As(err, &se) && se.code < 500) {
			break
		}
		if attempt+1 < attempts {
			slog.Warn("remote: request failed, retrying with different endpoint", "attempt", attempt+1, "err", err)
		}
	}
	return nil, lastErr
}

func (c *Client) postTo(ctx context.Context, base, path string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	endpoint, err := url.JoinPath(base, path)
	if err != nil {
		return nil, fmt.Errorf("remote: %s: url: %w", path, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("remote: %s: request: %w", path, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.signer != nil {
		c.signer.Apply(req, body)
	}

	start := time.Now()
	resp, err := c.http.Do(req)
	metrics.RemoteLatency.WithLabelValues(path).Observe(time.Since(start).Seconds())
	if err != nil {
		return nil, fmt.Errorf("remote: %s: %w", path, err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("remote: %s: read: %w", path, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &statusError{path: path, code: resp.StatusCode, body: strings.TrimSpace(string(data))}
	}
	return data, nil
}

// statusError is a non-2xx answer from the backend.
type statusError struct {
	path string
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("remote: %s: status %d: %s", e.path, e.code, e.body)
}

func cacheKey(path string, body []byte) string {
	sum := sha256.Sum256(body)
	return path + ":" + hex.EncodeToString(sum[:])
}
