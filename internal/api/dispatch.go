package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ReneKroon/ttlcache"
	"github.com/google/uuid"

	"github.com/gonkalabs/safeguard-go/internal/activity"
	"github.com/gonkalabs/safeguard-go/internal/blockpage"
	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/credential"
	"github.com/gonkalabs/safeguard-go/internal/gate"
	"github.com/gonkalabs/safeguard-go/internal/metrics"
	"github.com/gonkalabs/safeguard-go/internal/redact"
	"github.com/gonkalabs/safeguard-go/internal/settings"
	"github.com/gonkalabs/safeguard-go/internal/state"
)

var (
	ErrAuthRequired = errors.New("authentication required")
	ErrPageNotFound = errors.New("page not found")
)

// Deps are the collaborators of a Dispatcher.
type Deps struct {
	State      *state.State
	Credential *credential.Gate
	Classifier *classifier.Classifier
	Navigation *gate.Gate
	Activity   *activity.Log

	Images        redact.ImageClassifier // optional remote image check
	BlockPageBase string                 // e.g. "chrome-extension://<id>/blocked.html"
	PageTTL       time.Duration          // idle page sessions are dropped after this
	Redact        redact.Options         // tuning; callbacks and config are set per page
}

// pageSession is one tracked page.
type pageSession struct {
	red      *redact.Redactor
	keywords []string
}

// Dispatcher runs one handler per request variant. It is safe for
// concurrent use.
type Dispatcher struct {
	deps  Deps
	pages *ttlcache.Cache
}

// NewDispatcher creates a Dispatcher. Close releases its page sessions.
func NewDispatcher(deps Deps) *Dispatcher {
	if deps.PageTTL <= 0 {
		deps.PageTTL = 30 * time.Minute
	}
	if deps.BlockPageBase == "" {
		deps.BlockPageBase = "/blocked.html"
	}
	d := &Dispatcher{deps: deps, pages: ttlcache.NewCache()}
	d.pages.SetTTL(deps.PageTTL)
	d.pages.SetExpirationCallback(func(key string, value interface{}) {
		value.(*pageSession).red.Close()
		slog.Debug("api: page session expired", "page", key)
	})
	return d
}

// Close drops every page session.
func (d *Dispatcher) Close() {
	d.pages.Close()
}

// Dispatch routes req to its handler.
func (d *Dispatcher) Dispatch(ctx context.Context, req Request) (any, error) {
	switch r := req.(type) {
	case *GetSettings:
		return d.getSettings()
	case *UpdateSettings:
		return d.updateSettings(ctx, r)
	case *SetPassword:
		return d.setPassword(ctx, r)
	case *Authenticate:
		return d.authenticate(r)
	case *CheckAuth:
		return d.checkAuth()
	case *Logout:
		d.deps.Credential.Logout()
		return successResponse{Success: true}, nil
	case *ToggleExtension:
		return d.toggle(r)
	case *AnalyzeNavigation:
		return d.analyzeNavigation(ctx, r)
	case *AnalyzePage:
		return d.analyzePage(ctx, r)
	case *PageMutation:
		return d.pageMutation(ctx, r)
	case *RevealImage:
		return d.revealImage(r)
	case *UnloadPage:
		d.dropPage(r.PageID)
		return successResponse{Success: true}, nil
	case *GetActivity:
		return activityResponse{Entries: d.deps.Activity.Entries(r.Kinds...), Stats: d.deps.Activity.Stats()}, nil
	case *ClearActivity:
		return d.clearActivity()
	case *ExportSettings:
		return d.exportSettings(r)
	case *ImportSettings:
		return d.importSettings(ctx, r)
	default:
		return nil, ErrUnknownRequest
	}
}

type successResponse struct {
	Success bool `json:"success"`
}

type settingsResponse struct {
	Settings      settings.Settings `json:"settings"`
	HasPassword   bool              `json:"hasPassword"`
	Active        bool              `json:"active"`
	Authenticated bool              `json:"authenticated"`
}

type authResponse struct {
	Authenticated bool       `json:"authenticated"`
	HasPassword   bool       `json:"hasPassword"`
	ExpiresAt     *time.Time `json:"expiresAt,omitempty"`
}

type navigationResponse struct {
	Blocked  bool           `json:"blocked"`
	Redirect string         `json:"redirect,omitempty"`
	Result   gate.Navigation `json:"result"`
}

type pageResponse struct {
	PageID   string              `json:"pageId"`
	Verdict  classifier.Verdict  `json:"verdict"`
	Redirect string              `json:"redirect,omitempty"`
	HTML     string              `json:"html,omitempty"`
	Blurred  []redact.BlurRecord `json:"blurred"`
}

type mutationResponse struct {
	Blurred []redact.BlurRecord `json:"blurred"`
	HTML    string              `json:"html"`
}

type revealResponse struct {
	Success bool              `json:"success"`
	Image   redact.BlurRecord `json:"image"`
	HTML    string            `json:"html"`
}

type activityResponse struct {
	Entries []activity.Entry `json:"entries"`
	Stats   activity.Stats   `json:"stats"`
}

type exportResponse struct {
	Data string `json:"data"`
}

// requireSession guards protected actions once a credential exists.
func (d *Dispatcher) requireSession() error {
	if d.deps.Credential.HasCredential() && !d.deps.Credential.CheckSession() {
		return ErrAuthRequired
	}
	return nil
}

func (d *Dispatcher) getSettings() (any, error) {
	return settingsResponse{
		Settings:      d.deps.State.Settings().Public(),
		HasPassword:   d.deps.Credential.HasCredential(),
		Active:        d.deps.State.Active(),
		Authenticated: d.deps.Credential.CheckSession(),
	}, nil
}

func (d *Dispatcher) updateSettings(ctx context.Context, r *UpdateSettings) (any, error) {
	if err := d.requireSession(); err != nil {
		return nil, err
	}
	next, err := d.deps.State.Update(ctx, func(cur settings.Settings) settings.Settings {
		return cur.Apply(r.Settings)
	})
	if err != nil {
		return nil, err
	}
	return settingsResponse{
		Settings:      next.Public(),
		HasPassword:   d.deps.Credential.HasCredential(),
		Active:        d.deps.State.Active(),
		Authenticated: d.deps.Credential.CheckSession(),
	}, nil
}

func (d *Dispatcher) setPassword(ctx context.Context, r *SetPassword) (any, error) {
	if err := d.deps.Credential.SetCredential(ctx, r.CurrentPassword, r.NewPassword); err != nil {
		return nil, err
	}
	return successResponse{Success: true}, nil
}

func (d *Dispatcher) authenticate(r *Authenticate) (any, error) {
	if !d.deps.Credential.Verify(r.Password) {
		return nil, credential.ErrIncorrectCredential
	}
	return d.checkAuth()
}

func (d *Dispatcher) checkAuth() (any, error) {
	resp := authResponse{
		Authenticated: d.deps.Credential.CheckSession(),
		HasPassword:   d.deps.Credential.HasCredential(),
	}
	if resp.Authenticated {
		exp := d.deps.Credential.Session().ExpiresAt
		resp.ExpiresAt = &exp
	}
	return resp, nil
}

func (d *Dispatcher) toggle(r *ToggleExtension) (any, error) {
	if err := d.requireSession(); err != nil {
		return nil, err
	}
	d.deps.State.SetActive(r.Enabled)
	return struct {
		Active bool `json:"active"`
	}{d.deps.State.Active()}, nil
}

func (d *Dispatcher) analyzeNavigation(ctx context.Context, r *AnalyzeNavigation) (any, error) {
	if !d.deps.State.Filtering() {
		return navigationResponse{Result: gate.Navigation{URL: r.URL, Domain: classifier.Safe(classifier.Local)}}, nil
	}
	nav := d.deps.Navigation.EvaluateNavigation(ctx, r.URL, d.deps.State.Settings().FilterConfig())
	resp := navigationResponse{Blocked: nav.Blocked(), Result: nav}
	if !resp.Blocked {
		return resp, nil
	}

	target := nav.Target()
	resp.Redirect = target.Encode(d.deps.BlockPageBase)
	entry := activity.Entry{Kind: activity.SiteBlocked, URL: r.URL, Domain: nav.Host, Category: target.Category, Keywords: target.Keywords}
	if target.Reason == blockpage.ReasonQuery {
		entry.Kind = activity.SearchBlocked
		entry.Query = nav.QueryText
	}
	d.deps.Activity.Record(entry)
	return resp, nil
}

func (d *Dispatcher) analyzePage(ctx context.Context, r *AnalyzePage) (any, error) {
	pageID := r.PageID
	if pageID == "" {
		pageID = uuid.NewString()
	}
	if !d.deps.State.Filtering() {
		return pageResponse{PageID: pageID, Verdict: classifier.Safe(classifier.Local), HTML: r.HTML}, nil
	}

	page, err := redact.NewPage(pageID, r.URL, strings.NewReader(r.HTML))
	if err != nil {
		return nil, err
	}
	// a new page for the tab ends the previous one
	d.dropPage(pageID)

	cfg := d.deps.State.Settings().FilterConfig()
	text := page.Text()
	verdict := d.deps.Classifier.ClassifyPage(ctx, classifier.Page{URL: r.URL, Title: page.Title(), Text: text}, cfg)
	if verdict.Harmful {
		target := blockpage.Target{
			Reason:   blockpage.ReasonContent,
			Keywords: verdict.MatchedTerms,
			URL:      r.URL,
			Category: verdict.Category,
		}
		d.deps.Activity.Record(activity.Entry{
			Kind:     activity.PageBlocked,
			URL:      r.URL,
			Category: verdict.Category,
			Keywords: verdict.MatchedTerms,
		})
		return pageResponse{PageID: pageID, Verdict: verdict, Redirect: target.Encode(d.deps.BlockPageBase)}, nil
	}

	keywords := union(verdict.MatchedTerms, d.deps.Classifier.Taxonomy().Keywords(text, cfg.Categories))
	opts := d.deps.Redact
	opts.Images = d.deps.Images
	opts.Config = cfg
	opts.OnBlur = func(_ string, rec redact.BlurRecord) {
		d.deps.Activity.Record(activity.Entry{Kind: activity.ImageFiltered, URL: r.URL, ImageID: rec.ID})
	}
	opts.OnReveal = func(_ string, rec redact.BlurRecord) {
		d.deps.Activity.Record(activity.Entry{Kind: activity.ImageUnblur, URL: r.URL, ImageID: rec.ID})
	}
	// a re-sent document may already carry blurred images; New registers them
	red := redact.New(page, d.deps.Credential, opts)

	if _, err := red.ScanPage(ctx, keywords); err != nil {
		red.Close()
		return nil, err
	}
	html, err := page.HTML()
	if err != nil {
		red.Close()
		return nil, fmt.Errorf("api: render page: %w", err)
	}

	d.pages.Set(pageID, &pageSession{red: red, keywords: keywords})
	metrics.PageSessions.Set(float64(d.pages.Count()))
	return pageResponse{PageID: pageID, Verdict: verdict, HTML: html, Blurred: red.Records()}, nil
}

func (d *Dispatcher) pageMutation(ctx context.Context, r *PageMutation) (any, error) {
	if !d.deps.State.Filtering() {
		return mutationResponse{Blurred: []redact.BlurRecord{}}, nil
	}
	sess, err := d.page(r.PageID)
	if err != nil {
		return nil, err
	}
	imgs, err := sess.red.Page().Insert(r.Selector, r.HTML)
	if err != nil {
		return nil, err
	}
	// inserted text can add keywords of its own
	cfg := d.deps.State.Settings().FilterConfig()
	keywords := union(sess.keywords, d.deps.Classifier.Taxonomy().Keywords(sess.red.Page().Text(), cfg.Categories))
	blurred, err := sess.red.Scan(ctx, imgs, keywords)
	if err != nil {
		return nil, err
	}
	html, err := sess.red.Page().HTML()
	if err != nil {
		return nil, fmt.Errorf("api: render page: %w", err)
	}
	return mutationResponse{Blurred: nonNil(blurred), HTML: html}, nil
}

func (d *Dispatcher) revealImage(r *RevealImage) (any, error) {
	sess, err := d.page(r.PageID)
	if err != nil {
		return nil, err
	}
	rec, err := sess.red.Reveal(r.ImageID, r.Password)
	if err != nil {
		return nil, err
	}
	html, err := sess.red.Page().HTML()
	if err != nil {
		return nil, fmt.Errorf("api: render page: %w", err)
	}
	return revealResponse{Success: true, Image: rec, HTML: html}, nil
}

func (d *Dispatcher) clearActivity() (any, error) {
	if err := d.requireSession(); err != nil {
		return nil, err
	}
	d.deps.Activity.Clear()
	return successResponse{Success: true}, nil
}

func (d *Dispatcher) exportSettings(r *ExportSettings) (any, error) {
	if err := d.requireSession(); err != nil {
		return nil, err
	}
	raw, err := json.Marshal(d.deps.State.Settings().Public())
	if err != nil {
		return nil, fmt.Errorf("api: export: %w", err)
	}
	sealed, err := credential.Seal(raw, r.Password)
	if err != nil {
		return nil, err
	}
	return exportResponse{Data: sealed}, nil
}

func (d *Dispatcher) importSettings(ctx context.Context, r *ImportSettings) (any, error) {
	if err := d.requireSession(); err != nil {
		return nil, err
	}
	raw, err := credential.Open(r.Data, r.Password)
	if err != nil {
		return nil, err
	}
	imported, err := settings.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("api: import: %w", err)
	}
	next, err := d.deps.State.Update(ctx, func(cur settings.Settings) settings.Settings {
		// the credential is never part of an export
		imported.Password = cur.Password
		imported.IsSetup = true
		return imported
	})
	if err != nil {
		return nil, err
	}
	return settingsResponse{
		Settings:      next.Public(),
		HasPassword:   d.deps.Credential.HasCredential(),
		Active:        d.deps.State.Active(),
		Authenticated: d.deps.Credential.CheckSession(),
	}, nil
}

func (d *Dispatcher) page(id string) (*pageSession, error) {
	v, ok := d.pages.Get(id)
	if !ok {
		return nil, fmt.Errorf("api: %q: %w", id, ErrPageNotFound)
	}
	return v.(*pageSession), nil
}

func (d *Dispatcher) dropPage(id string) {
	if v, ok := d.pages.Get(id); ok {
		v.(*pageSession).red.Close()
		d.pages.Remove(id)
	}
	metrics.PageSessions.Set(float64(d.pages.Count()))
}

func union(a, b []string) []string {
	seen := make(map[string]bool, len(a)+len(b))
	var out []string
	for _, s := range append(append([]string{}, a...), b...) {
		if !seen[s] {
			seen[s] = true
			out = append(out, s)
		}
	}
	return out
}

func nonNil(recs []redact.BlurRecord) []redact.BlurRecord {
	if recs == nil {
		return []redact.BlurRecord{}
	}
	return recs
}
