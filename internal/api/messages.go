package api

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gonkalabs/safeguard-go/internal/activity"
	"github.com/gonkalabs/safeguard-go/internal/settings"
)

// ErrUnknownRequest is returned for a message whose type is not one of the
// known variants.
var ErrUnknownRequest = errors.New("unknown request type")

// Request is the closed set of messages the extension can send. The
// unexported method keeps other packages from adding variants.
type Request interface {
	requestType() string
}

type GetSettings struct{}

type UpdateSettings struct {
	Settings settings.Patch `json:"settings"`
}

type SetPassword struct {
	CurrentPassword string `json:"currentPassword"`
	NewPassword     string `json:"newPassword"`
}

type Authenticate struct {
	Password string `json:"password"`
}

type CheckAuth struct{}

type Logout struct{}

type ToggleExtension struct {
	Enabled bool `json:"enabled"`
}

type AnalyzeNavigation struct {
	URL string `json:"url"`
}

// AnalyzePage carries a rendered page. PageID identifies the tab; a new
// page for the same ID replaces the previous one.
type AnalyzePage struct {
	PageID string `json:"pageId"`
	URL    string `json:"url"`
	HTML   string `json:"html"`
}

// PageMutation appends HTML to the first element matching Selector.
type PageMutation struct {
	PageID   string `json:"pageId"`
	Selector string `json:"selector"`
	HTML     string `json:"html"`
}

type RevealImage struct {
	PageID   string `json:"pageId"`
	ImageID  string `json:"imageId"`
	Password string `json:"password"`
}

type UnloadPage struct {
	PageID string `json:"pageId"`
}

type GetActivity struct {
	Kinds []activity.Kind `json:"kinds,omitempty"`
}

type ClearActivity struct{}

type ExportSettings struct {
	Password string `json:"password"`
}

type ImportSettings struct {
	Password string `json:"password"`
	Data     string `json:"data"`
}

func (GetSettings) requestType() string       { return "GET_SETTINGS" }
func (UpdateSettings) requestType() string    { return "UPDATE_SETTINGS" }
func (SetPassword) requestType() string       { return "SET_PASSWORD" }
func (Authenticate) requestType() string      { return "AUTHENTICATE" }
func (CheckAuth) requestType() string         { return "CHECK_AUTH" }
func (Logout) requestType() string            { return "LOGOUT" }
func (ToggleExtension) requestType() string   { return "TOGGLE_EXTENSION" }
func (AnalyzeNavigation) requestType() string { return "ANALYZE_NAVIGATION" }
func (AnalyzePage) requestType() string       { return "ANALYZE_PAGE" }
func (PageMutation) requestType() string      { return "PAGE_MUTATION" }
func (RevealImage) requestType() string       { return "REVEAL_IMAGE" }
func (UnloadPage) requestType() string        { return "UNLOAD_PAGE" }
func (GetActivity) requestType() string       { return "GET_ACTIVITY" }
func (ClearActivity) requestType() string     { return "CLEAR_ACTIVITY" }
func (ExportSettings) requestType() string    { return "EXPORT_SETTINGS" }
func (ImportSettings) requestType() string    { return "IMPORT_SETTINGS" }

var variants = map[string]func() Request{}

func init() {
	for _, mk := range []func() Request{
		func() Request { return &GetSettings{} },
		func() Request { return &UpdateSettings{} },
		func() Request { return &SetPassword{} },
		func() Request { return &Authenticate{} },
		func() Request { return &CheckAuth{} },
		func() Request { return &Logout{} },
		func() Request { return &ToggleExtension{} },
		func() Request { return &AnalyzeNavigation{} },
		func() Request { return &AnalyzePage{} },
		func() Request { return &PageMutation{} },
		func() Request { return &RevealImage{} },
		func() Request { return &UnloadPage{} },
		func() Request { return &GetActivity{} },
		func() Request { return &ClearActivity{} },
		func() Request { return &ExportSettings{} },
		func() Request { return &ImportSettings{} },
	} {
		variants[mk().requestType()] = mk
	}
}

// Decode reads a flat JSON message tagged by its "type" field.
func Decode(raw []byte) (Request, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(raw, &head); err != nil {
		return nil, fmt.Errorf("api: decode: %w", err)
	}
	mk, ok := variants[head.Type]
	if !ok {
		return nil, fmt.Errorf("api: %q: %w", head.Type, ErrUnknownRequest)
	}
	req := mk()
	if err := json.Unmarshal(raw, req); err != nil {
		return nil, fmt.Errorf("api: decode %s: %w", head.Type, err)
	}
	return req, nil
}
