package redact

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// MaxPageText bounds the text returned by Page.Text.
const MaxPageText = 10000

// ErrNoTarget is returned by Insert when the selector matches nothing.
var ErrNoTarget = errors.New("redact: insert target not found")

// Mutation carries the images added to a page by one Insert.
type Mutation struct {
	Images []*Image
}

// Page is a parsed HTML document. All document access goes through its
// mutex; the Redactor bound to a page shares it.
type Page struct {
	ID  string
	URL string

	mu  sync.Mutex
	doc *goquery.Document

	subsMu sync.Mutex
	subs   map[*subscription]struct{}
}

type subscription struct {
	ctx context.Context
	ch  chan Mutation
}

// NewPage parses r as an HTML document.
func NewPage(id, url string, r io.Reader) (*Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("redact: parse page: %w", err)
	}
	return &Page{ID: id, URL: url, doc: doc, subs: map[*subscription]struct{}{}}, nil
}

// HTML renders the current document.
func (p *Page) HTML() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.doc.Html()
}

// Title returns the document title.
func (p *Page) Title() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return strings.TrimSpace(p.doc.Find("title").First().Text())
}

// Text returns the title, the description and keywords meta tags and the
// visible body text, whitespace-collapsed and cut to MaxPageText runes.
func (p *Page) Text() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var parts []string
	parts = append(parts, p.doc.Find("title").First().Text())
	for _, name := range []string{"description", "keywords"} {
		if c, ok := p.doc.Find(`meta[name="` + name + `"]`).First().Attr("content"); ok {
			parts = append(parts, c)
		}
	}
	body := p.doc.Find("body").Clone()
	body.Find("script, style, noscript, template").Remove()
	parts = append(parts, body.Text())

	return truncateRunes(collapse(strings.Join(parts, " ")), MaxPageText)
}

// Images returns every img element currently in the document.
func (p *Page) Images() []*Image {
	p.mu.Lock()
	defer p.mu.Unlock()
	return images(p.doc.Find("img"))
}

// Insert parses fragment and appends it to the first element matching
// selector, then notifies subscribers of the images it added.
func (p *Page) Insert(selector, fragment string) ([]*Image, error) {
	p.mu.Lock()
	target := p.doc.Find(selector).First()
	if target.Length() == 0 {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w: %q", ErrNoTarget, selector)
	}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), target.Nodes[0])
	if err != nil {
		p.mu.Unlock()
		return nil, fmt.Errorf("redact: insert: %w", err)
	}
	target.AppendNodes(nodes...)
	added := p.doc.FindNodes(nodes...)
	imgs := images(added.Filter("img").AddSelection(added.Find("img")))
	p.mu.Unlock()

	if len(imgs) > 0 {
		p.publish(Mutation{Images: imgs})
	}
	return imgs, nil
}

// Mutations subscribes to Insert events. Each call starts a fresh
// subscription; the channel closes when ctx is done.
func (p *Page) Mutations(ctx context.Context) <-chan Mutation {
	sub := &subscription{ctx: ctx, ch: make(chan Mutation, 16)}
	p.subsMu.Lock()
	p.subs[sub] = struct{}{}
	p.subsMu.Unlock()

	go func() {
		<-ctx.Done()
		p.subsMu.Lock()
		delete(p.subs, sub)
		close(sub.ch)
		p.subsMu.Unlock()
	}()
	return sub.ch
}

func (p *Page) publish(m Mutation) {
	p.subsMu.Lock()
	defer p.subsMu.Unlock()
	for sub := range p.subs {
		select {
		case sub.ch <- m:
		case <-sub.ctx.Done():
		}
	}
}

// Image is one img element. Its accessors read the live document and must
// not race with Insert or a scan of the same page.
type Image struct {
	sel *goquery.Selection
}

func images(sel *goquery.Selection) []*Image {
	out := make([]*Image, 0, sel.Length())
	sel.Each(func(_ int, s *goquery.Selection) {
		out = append(out, &Image{sel: s})
	})
	return out
}

// Src falls back to data-src for lazy-loaded images.
func (i *Image) Src() string {
	if src := strings.TrimSpace(i.sel.AttrOr("src", "")); src != "" {
		return src
	}
	return strings.TrimSpace(i.sel.AttrOr("data-src", ""))
}

func (i *Image) Alt() string { return i.sel.AttrOr("alt", "") }

// Width is the declared width, 0 when unknown.
func (i *Image) Width() int { return dimension(i.sel.AttrOr("width", "")) }

// Height is the declared height, 0 when unknown.
func (i *Image) Height() int { return dimension(i.sel.AttrOr("height", "")) }

// NearbyText is the text of the parent and both neighbouring elements,
// lower-cased and cut to limit runes.
func (i *Image) NearbyText(limit int) string {
	parts := []string{
		i.sel.Parent().Text(),
		i.sel.Prev().Text(),
		i.sel.Next().Text(),
	}
	return truncateRunes(strings.ToLower(collapse(strings.Join(parts, " "))), limit)
}

func (i *Image) processed() bool {
	_, ok := i.sel.Attr(attrProcessed)
	return ok
}

func dimension(raw string) int {
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "px")
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		return 0
	}
	return n
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n])
}
