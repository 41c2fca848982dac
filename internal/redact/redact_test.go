package redact

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

type stubAuth struct {
	password string
	session  bool
}

func (a *stubAuth) Verify(c string) bool {
	if c == a.password {
		a.session = true
		return true
	}
	return false
}

func (a *stubAuth) CheckSession() bool { return a.session }

type stubImages struct {
	harmful map[string]bool
	err     error
	calls   atomic.Int32
}

func (s *stubImages) AnalyzeImage(_ context.Context, img classifier.Image, _ classifier.FilterConfig) (classifier.Verdict, error) {
	s.calls.Add(1)
	if s.err != nil {
		return classifier.Verdict{}, s.err
	}
	if s.harmful[img.URL] {
		return classifier.Verdict{Harmful: true, Category: taxonomy.NSFW, Source: classifier.Remote}, nil
	}
	return classifier.Safe(classifier.Remote), nil
}

const fixture = `<html><head><title>Gallery</title>
<meta name="description" content="photos of the week">
</head><body>
<div id="a"><p>holiday pictures</p><img src="/beach.jpg" alt="beach" width="400" height="300"></div>
<div id="b"><img src="/x.jpg" alt="xxx scene" width="400" height="300" style="border: 1px"></div>
<div id="c"><p>graphic gore below</p><img src="/war.jpg"></div>
<div id="d"><img src="/icon.png" alt="porn" width="16" height="16"></div>
<div id="e"><img src="data:image/png;base64,AAAA" alt="porn"></div>
<script>var hidden = "porn";</script>
</body></html>`

func newPage(t *testing.T, doc string) *Page {
	t.Helper()
	p, err := NewPage("tab-1", "https://example.com/gallery", strings.NewReader(doc))
	require.NoError(t, err)
	return p
}

var keywords = []string{"xxx", "porn", "gore"}

func TestScanBlursFlaggedImages(t *testing.T) {
	p := newPage(t, fixture)
	var blurredIDs []string
	r := New(p, &stubAuth{password: "pw"}, Options{
		OnBlur: func(pageID string, rec BlurRecord) {
			assert.Equal(t, "tab-1", pageID)
			blurredIDs = append(blurredIDs, rec.ID)
		},
	})

	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, "/x.jpg", recs[0].OriginalSource)
	assert.Equal(t, "xxx scene", recs[0].AltText)
	assert.Equal(t, 400, recs[0].Width)
	assert.Equal(t, 300, recs[0].Height)
	assert.True(t, strings.HasPrefix(recs[0].ID, "safeguard-"))

	// nearby text match, unknown dimensions still scanned
	assert.Equal(t, "/war.jpg", recs[1].OriginalSource)
	assert.Equal(t, 0, recs[1].Width)

	assert.Equal(t, []string{recs[0].ID, recs[1].ID}, blurredIDs)
	assert.Equal(t, recs, r.Records())

	out, err := p.HTML()
	require.NoError(t, err)
	assert.Contains(t, out, `class="safeguard-blur-wrapper"`)
	assert.Contains(t, out, fmt.Sprintf(`data-image-id="%s"`, recs[0].ID))
	assert.Contains(t, out, `style="border: 1px; filter: blur(20px);"`)
	assert.Equal(t, 2, strings.Count(out, `data-safeguard-blurred="true"`))
}

func TestScanIsIdempotent(t *testing.T) {
	p := newPage(t, fixture)
	r := New(p, &stubAuth{}, Options{})

	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	before, _ := p.HTML()

	recs, err = r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	assert.Empty(t, recs)
	after, _ := p.HTML()
	assert.Equal(t, before, after)
	assert.Len(t, r.Records(), 2)
}

func TestRevealRestoresExactly(t *testing.T) {
	p := newPage(t, fixture)
	original, err := p.HTML()
	require.NoError(t, err)

	var revealed []BlurRecord
	auth := &stubAuth{password: "pw"}
	r := New(p, auth, Options{OnReveal: func(_ string, rec BlurRecord) { revealed = append(revealed, rec) }})
	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	_, err = r.Reveal(recs[0].ID, "wrong")
	assert.ErrorIs(t, err, ErrIncorrectCredential)
	assert.Len(t, r.Records(), 2)
	assert.Empty(t, revealed)

	rec, err := r.Reveal(recs[0].ID, "pw")
	require.NoError(t, err)
	assert.Equal(t, recs[0], rec)
	assert.Equal(t, []BlurRecord{recs[0]}, revealed)

	// the session opened above covers the second reveal
	_, err = r.Reveal(recs[1].ID, "")
	require.NoError(t, err)
	assert.Empty(t, r.Records())

	_, err = r.Reveal(recs[1].ID, "pw")
	assert.ErrorIs(t, err, ErrNotFound)

	restored, err := p.HTML()
	require.NoError(t, err)
	assert.NotContains(t, restored, "safeguard-blur")
	assert.NotContains(t, restored, attrBlurred)
	// apart from the processed markers the document is back to where it started
	assert.Equal(t, original, strings.ReplaceAll(restored, ` data-safeguard-processed="true"`, ""))
}

func TestRevealedImagesStayRevealed(t *testing.T) {
	p := newPage(t, fixture)
	auth := &stubAuth{password: "pw"}
	r := New(p, auth, Options{})
	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	_, err = r.Reveal(recs[0].ID, "pw")
	require.NoError(t, err)

	again, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	assert.Empty(t, again)
	assert.Len(t, r.Records(), 1)
}

func TestReloadedPageKeepsBlurRecords(t *testing.T) {
	p := newPage(t, fixture)
	recs, err := New(p, &stubAuth{}, Options{}).ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	rendered, err := p.HTML()
	require.NoError(t, err)

	// the same document sent back for a fresh session
	again := newPage(t, rendered)
	r := New(again, &stubAuth{password: "pw"}, Options{})
	assert.Equal(t, recs, r.Records())

	more, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	assert.Empty(t, more)

	for _, rec := range recs {
		_, err := r.Reveal(rec.ID, "pw")
		require.NoError(t, err)
	}
	assert.Empty(t, r.Records())

	out, err := again.HTML()
	require.NoError(t, err)
	assert.NotContains(t, out, "safeguard-blur")
	assert.NotContains(t, out, attrStyle)
	assert.Contains(t, out, `style="border: 1px" data-safeguard-processed="true"`)
	assert.NotContains(t, out, `src="/war.jpg" style=`)
}

type stallingImages struct {
	once    sync.Once
	started chan struct{}
}

func (s *stallingImages) AnalyzeImage(ctx context.Context, _ classifier.Image, _ classifier.FilterConfig) (classifier.Verdict, error) {
	s.once.Do(func() { close(s.started) })
	<-ctx.Done()
	return classifier.Verdict{}, ctx.Err()
}

func TestCancelledImageCheckIsRetried(t *testing.T) {
	p := newPage(t, fixture)
	stall := &stallingImages{started: make(chan struct{})}
	r := New(p, &stubAuth{}, Options{Images: stall})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-stall.started
		cancel()
	}()
	recs, err := r.ScanPage(ctx, keywords)
	assert.ErrorIs(t, err, context.Canceled)
	// keyword hits were decided before the remote check and stay blurred
	assert.Len(t, recs, 2)

	images := &stubImages{harmful: map[string]bool{"/beach.jpg": true}}
	r.opts.Images = images
	recs, err = r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, "/beach.jpg", recs[0].OriginalSource)
	assert.Equal(t, int32(1), images.calls.Load())
	assert.Len(t, r.Records(), 3)
}

func TestRemoteImageCheck(t *testing.T) {
	p := newPage(t, fixture)
	images := &stubImages{harmful: map[string]bool{"/beach.jpg": true}}
	r := New(p, &stubAuth{}, Options{Images: images})

	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "/beach.jpg", recs[0].OriginalSource)
	// keyword hits never reach the backend, icons and data URIs are skipped
	assert.Equal(t, int32(1), images.calls.Load())
}

func TestRemoteImageFailureKeepsImage(t *testing.T) {
	p := newPage(t, fixture)
	r := New(p, &stubAuth{}, Options{Images: &stubImages{err: errors.New("down")}})

	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	assert.Len(t, recs, 2)
}

func TestBatching(t *testing.T) {
	var b strings.Builder
	b.WriteString("<html><body>")
	for i := 0; i < 45; i++ {
		fmt.Fprintf(&b, `<div><img src="/%d.jpg" alt="porn %d"></div>`, i, i)
	}
	b.WriteString("</body></html>")

	p := newPage(t, b.String())
	r := New(p, &stubAuth{}, Options{BatchSize: 10})
	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	assert.Len(t, recs, 45)
}

func TestScanHonoursCancellation(t *testing.T) {
	p := newPage(t, fixture)
	r := New(p, &stubAuth{}, Options{})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	recs, err := r.ScanPage(ctx, keywords)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, recs)
}

func TestCloseDropsRecords(t *testing.T) {
	p := newPage(t, fixture)
	r := New(p, &stubAuth{password: "pw"}, Options{})
	recs, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)
	require.NotEmpty(t, recs)

	r.Close()
	r.Close()
	assert.Empty(t, r.Records())
	_, err = r.Reveal(recs[0].ID, "pw")
	assert.ErrorIs(t, err, ErrClosed)
	_, err = r.ScanPage(context.Background(), keywords)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestInsertAndWatch(t *testing.T) {
	p := newPage(t, fixture)
	r := New(p, &stubAuth{}, Options{})
	_, err := r.ScanPage(context.Background(), keywords)
	require.NoError(t, err)

	var mu sync.Mutex
	var late []BlurRecord
	r.opts.OnBlur = func(_ string, rec BlurRecord) {
		mu.Lock()
		late = append(late, rec)
		mu.Unlock()
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- r.Watch(ctx, keywords) }()

	// wait until the watcher has subscribed
	require.Eventually(t, func() bool {
		p.subsMu.Lock()
		defer p.subsMu.Unlock()
		return len(p.subs) == 1
	}, time.Second, 5*time.Millisecond)

	imgs, err := p.Insert("#a", `<span>more</span><img src="/new.jpg" alt="gore clip">`)
	require.NoError(t, err)
	require.Len(t, imgs, 1)
	assert.Equal(t, "/new.jpg", imgs[0].Src())

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(late) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Len(t, r.Records(), 3)

	r.Close()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("watch did not stop on close")
	}
}

func TestInsertUnknownSelector(t *testing.T) {
	p := newPage(t, fixture)
	_, err := p.Insert("#nope", "<img>")
	require.Error(t, err)
}

func TestMutationsIsRestartable(t *testing.T) {
	p := newPage(t, fixture)

	ctx1, cancel1 := context.WithCancel(context.Background())
	ch1 := p.Mutations(ctx1)
	cancel1()
	for range ch1 {
	}

	ctx2, cancel2 := context.WithCancel(context.Background())
	defer cancel2()
	ch2 := p.Mutations(ctx2)
	_, err := p.Insert("body", `<div><img src="/y.jpg"></div>`)
	require.NoError(t, err)

	select {
	case m := <-ch2:
		require.Len(t, m.Images, 1)
	case <-time.After(time.Second):
		t.Fatal("no mutation delivered")
	}
}

func TestPageText(t *testing.T) {
	p := newPage(t, fixture)
	text := p.Text()
	assert.True(t, strings.HasPrefix(text, "Gallery photos of the week holiday pictures"))
	assert.Contains(t, text, "graphic gore below")
	assert.NotContains(t, text, "hidden")
	assert.Equal(t, "Gallery", p.Title())
}

func TestNearbyText(t *testing.T) {
	p := newPage(t, `<html><body><div><p>Before THIS</p> <img src="/a.jpg"> <p>after</p></div></body></html>`)
	img := p.Images()[0]
	assert.Equal(t, "before this after before this after", img.NearbyText(200))
	assert.Equal(t, "before", img.NearbyText(6))
}
