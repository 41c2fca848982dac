// Package redact blurs images that look harmful and reveals them again once
// the user passes a credential check.
//
// A Redactor is bound to one Page. It keeps a registry of BlurRecords: a
// record exists exactly while its image is blurred. Blurring, revealing and
// registry changes happen under the page lock, so a reveal never sees a
// half-wrapped image.
package redact

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/metrics"
)

const (
	attrProcessed = "data-safeguard-processed"
	attrBlurred   = "data-safeguard-blurred"
	attrID        = "data-safeguard-id"
	attrStyle     = "data-safeguard-style"

	classWrapper = "safeguard-blur-wrapper"
	classOverlay = "safeguard-blur-overlay"
	classButton  = "safeguard-view-button"

	blurStyle = "filter: blur(20px);"
)

var (
	ErrNotFound            = errors.New("redact: no blurred image with that id")
	ErrIncorrectCredential = errors.New("incorrect credential")
	ErrClosed              = errors.New("redact: page closed")
)

// BlurRecord captures what is needed to restore a blurred image.
type BlurRecord struct {
	ID             string `json:"id"`
	OriginalSource string `json:"originalSrc"`
	AltText        string `json:"altText"`
	Width          int    `json:"width"`
	Height         int    `json:"height"`
}

// Authenticator gates reveals. *credential.Gate satisfies it.
type Authenticator interface {
	Verify(candidate string) bool
	CheckSession() bool
}

// ImageClassifier is the optional per-image remote check.
type ImageClassifier interface {
	AnalyzeImage(ctx context.Context, img classifier.Image, cfg classifier.FilterConfig) (classifier.Verdict, error)
}

// Options tunes a Redactor. Zero values pick the defaults.
type Options struct {
	MinDimension int // images smaller than this on a known side are icons, default 100
	NearbyChars  int // default 200
	BatchSize    int // images per batch, default 20
	Parallelism  int // concurrent remote image checks, default 4

	Images ImageClassifier // nil disables the remote check
	Config classifier.FilterConfig

	OnBlur   func(pageID string, rec BlurRecord)
	OnReveal func(pageID string, rec BlurRecord)
}

func (o *Options) defaults() {
	if o.MinDimension <= 0 {
		o.MinDimension = 100
	}
	if o.NearbyChars <= 0 {
		o.NearbyChars = 200
	}
	if o.BatchSize <= 0 {
		o.BatchSize = 20
	}
	if o.Parallelism <= 0 {
		o.Parallelism = 4
	}
}

// entry is a registry slot. attrs holds the original attribute values
// (absent ones are missing from the map) so a reveal can restore them
// verbatim.
type entry struct {
	record BlurRecord
	attrs  map[string]string
}

var restoredAttrs = []string{"src", "alt", "width", "height", "style"}

// Redactor owns the blur state of one page.
type Redactor struct {
	page *Page
	auth Authenticator
	opts Options

	// guarded by page.mu
	records map[string]*entry
	order   []string
	closed  bool
	done    chan struct{}
}

// New binds a Redactor to page. Images the page already carries blurred
// (a document rendered by an earlier Redactor) are registered again so they
// can still be revealed.
func New(page *Page, auth Authenticator, opts Options) *Redactor {
	opts.defaults()
	r := &Redactor{
		page:    page,
		auth:    auth,
		opts:    opts,
		records: map[string]*entry{},
		done:    make(chan struct{}),
	}
	page.mu.Lock()
	r.adopt()
	page.mu.Unlock()
	return r
}

// adopt rebuilds registry entries from blur wrappers found in the document.
// The caller holds page.mu.
func (r *Redactor) adopt() {
	r.page.doc.Find("div." + classWrapper).Each(func(_ int, w *goquery.Selection) {
		id := w.AttrOr(attrID, "")
		sel := w.ChildrenFiltered("img[" + attrBlurred + "]").First()
		if id == "" || sel.Length() == 0 {
			return
		}
		if _, dup := r.records[id]; dup {
			return
		}
		img := &Image{sel: sel}
		e := &entry{
			record: BlurRecord{
				ID:             id,
				OriginalSource: img.Src(),
				AltText:        img.Alt(),
				Width:          img.Width(),
				Height:         img.Height(),
			},
			attrs: map[string]string{},
		}
		for _, name := range restoredAttrs {
			if v, ok := sel.Attr(name); ok {
				e.attrs[name] = v
			}
		}
		if v, ok := sel.Attr(attrStyle); ok {
			e.attrs["style"] = v
		} else {
			delete(e.attrs, "style")
		}
		r.records[id] = e
		r.order = append(r.order, id)
	})
}

// Page returns the page the Redactor is bound to.
func (r *Redactor) Page() *Page { return r.page }

// ScanPage scans every image currently on the page.
func (r *Redactor) ScanPage(ctx context.Context, keywords []string) ([]BlurRecord, error) {
	return r.Scan(ctx, r.page.Images(), keywords)
}

// candidate is an image that passed triage and still needs a decision.
type candidate struct {
	img     *Image
	info    classifier.Image
	flagged bool
	decided bool // false while a remote verdict is still owed
}

// Scan decides for each image whether to blur it and returns the records of
// the images it blurred. Images already seen are skipped, so scanning is
// idempotent. Work is split into batches; the lock is released and the
// goroutine yields between batches.
func (r *Redactor) Scan(ctx context.Context, images []*Image, keywords []string) ([]BlurRecord, error) {
	kws := lowerAll(keywords)
	var blurred []BlurRecord

	for start := 0; start < len(images); start += r.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return blurred, err
		}
		end := min(start+r.opts.BatchSize, len(images))

		cands, err := r.triage(images[start:end], kws)
		if err != nil {
			return blurred, err
		}
		r.classifyRemote(ctx, cands)
		cerr := ctx.Err()
		if cerr != nil {
			r.release(cands)
		}

		recs, err := r.apply(cands)
		blurred = append(blurred, recs...)
		if err != nil {
			return blurred, err
		}
		for _, rec := range recs {
			if r.opts.OnBlur != nil {
				r.opts.OnBlur(r.page.ID, rec)
			}
		}
		if cerr != nil {
			return blurred, cerr
		}

		if end < len(images) {
			runtime.Gosched()
		}
	}
	return blurred, nil
}

// triage claims unprocessed images and applies the local rules.
func (r *Redactor) triage(batch []*Image, kws []string) ([]*candidate, error) {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	var out []*candidate
	for _, img := range batch {
		if img.processed() {
			continue
		}
		img.sel.SetAttr(attrProcessed, "true")
		if r.skip(img) {
			continue
		}
		c := &candidate{
			img: img,
			info: classifier.Image{
				URL:     img.Src(),
				Alt:     img.Alt(),
				Context: img.NearbyText(r.opts.NearbyChars),
			},
		}
		c.flagged = containsAny(strings.ToLower(c.info.Alt), kws) || containsAny(c.info.Context, kws)
		c.decided = c.flagged || r.opts.Images == nil
		if c.flagged || r.opts.Images != nil {
			out = append(out, c)
		}
	}
	return out, nil
}

// skip reports icons and inline images. Unknown dimensions are scanned.
func (r *Redactor) skip(img *Image) bool {
	if w := img.Width(); w > 0 && w < r.opts.MinDimension {
		return true
	}
	if h := img.Height(); h > 0 && h < r.opts.MinDimension {
		return true
	}
	src := strings.ToLower(img.Src())
	return strings.HasPrefix(src, "data:") || strings.HasPrefix(src, "blob:")
}

// classifyRemote asks the image backend about every candidate the keyword
// rules did not already flag. It runs without the page lock.
func (r *Redactor) classifyRemote(ctx context.Context, cands []*candidate) {
	if r.opts.Images == nil {
		return
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for _, c := range cands {
		if c.flagged || c.info.URL == "" {
			c.decided = true
			continue
		}
		g.Go(func() error {
			v, err := r.opts.Images.AnalyzeImage(gctx, c.info, r.opts.Config)
			if err != nil {
				if gctx.Err() != nil {
					return nil
				}
				slog.Warn("redact: image check failed, keeping image", "src", c.info.URL, "err", err)
				c.decided = true
				return nil
			}
			c.flagged = v.Harmful
			c.decided = true
			return nil
		})
	}
	_ = g.Wait()
}

// release clears the processed marker of candidates still owed a verdict,
// so a later scan decides them again.
func (r *Redactor) release(cands []*candidate) {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	for _, c := range cands {
		if !c.decided {
			c.img.sel.RemoveAttr(attrProcessed)
		}
	}
}

func (r *Redactor) apply(cands []*candidate) ([]BlurRecord, error) {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	if r.closed {
		return nil, ErrClosed
	}

	var out []BlurRecord
	for _, c := range cands {
		if !c.flagged {
			continue
		}
		rec := r.blur(c.img)
		out = append(out, rec)
	}
	return out, nil
}

// blur wraps img and registers its record. The caller holds page.mu.
func (r *Redactor) blur(img *Image) BlurRecord {
	id := "safeguard-" + uuid.NewString()
	e := &entry{
		record: BlurRecord{
			ID:             id,
			OriginalSource: img.Src(),
			AltText:        img.Alt(),
			Width:          img.Width(),
			Height:         img.Height(),
		},
		attrs: map[string]string{},
	}
	for _, name := range restoredAttrs {
		if v, ok := img.sel.Attr(name); ok {
			e.attrs[name] = v
		}
	}

	style := strings.TrimSpace(e.attrs["style"])
	if orig, ok := e.attrs["style"]; ok {
		img.sel.SetAttr(attrStyle, orig)
	}
	if style != "" && !strings.HasSuffix(style, ";") {
		style += ";"
	}
	img.sel.SetAttr("style", strings.TrimSpace(style+" "+blurStyle))
	img.sel.SetAttr(attrBlurred, "true")
	img.sel.WrapHtml(fmt.Sprintf(`<div class=%q %s=%q style="position: relative; display: inline-block; overflow: hidden;"></div>`,
		classWrapper, attrID, id))
	img.sel.Parent().AppendHtml(fmt.Sprintf(
		`<div class=%q><p>Sensitive content hidden</p><button class=%q data-image-id=%q>Show image</button></div>`,
		classOverlay, classButton, id))

	r.records[id] = e
	r.order = append(r.order, id)
	metrics.ImagesBlurred.Inc()
	return e.record
}

// Reveal restores a blurred image after a credential check. An open session
// stands in for the credential.
func (r *Redactor) Reveal(id, credential string) (BlurRecord, error) {
	if !r.auth.CheckSession() && !r.auth.Verify(credential) {
		return BlurRecord{}, ErrIncorrectCredential
	}

	r.page.mu.Lock()
	if r.closed {
		r.page.mu.Unlock()
		return BlurRecord{}, ErrClosed
	}
	e, ok := r.records[id]
	if !ok {
		r.page.mu.Unlock()
		return BlurRecord{}, ErrNotFound
	}
	wrapper := r.page.doc.Find(fmt.Sprintf(`div.%s[%s=%q]`, classWrapper, attrID, id))
	img := wrapper.ChildrenFiltered("img").First()
	for _, name := range restoredAttrs {
		if v, ok := e.attrs[name]; ok {
			img.SetAttr(name, v)
		} else {
			img.RemoveAttr(name)
		}
	}
	img.RemoveAttr(attrBlurred)
	img.RemoveAttr(attrStyle)
	wrapper.ChildrenFiltered("." + classOverlay).Remove()
	img.Unwrap()

	r.forget(id)
	r.page.mu.Unlock()

	metrics.ImagesRevealed.Inc()
	if r.opts.OnReveal != nil {
		r.opts.OnReveal(r.page.ID, e.record)
	}
	return e.record, nil
}

// forget drops id from the registry. The caller holds page.mu.
func (r *Redactor) forget(id string) {
	delete(r.records, id)
	for i, x := range r.order {
		if x == id {
			r.order = append(r.order[:i], r.order[i+1:]...)
			break
		}
	}
}

// Records lists the blurred images in blur order.
func (r *Redactor) Records() []BlurRecord {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	out := make([]BlurRecord, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id].record)
	}
	return out
}

// Watch scans the images of every mutation until ctx is done or the
// Redactor is closed.
func (r *Redactor) Watch(ctx context.Context, keywords []string) error {
	wctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go func() {
		select {
		case <-r.done:
			cancel()
		case <-wctx.Done():
		}
	}()

	for m := range r.page.Mutations(wctx) {
		if _, err := r.Scan(wctx, m.Images, keywords); err != nil && wctx.Err() == nil {
			slog.Warn("redact: mutation scan failed", "page", r.page.ID, "err", err)
		}
	}
	return ctx.Err()
}

// Close drops every record and stops Watch. Later calls fail with ErrClosed.
func (r *Redactor) Close() {
	r.page.mu.Lock()
	defer r.page.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.records = map[string]*entry{}
	r.order = nil
	close(r.done)
}

func lowerAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.ToLower(strings.TrimSpace(s)); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func containsAny(s string, kws []string) bool {
	if s == "" {
		return false
	}
	for _, k := range kws {
		if strings.Contains(s, k) {
			return true
		}
	}
	return false
}
