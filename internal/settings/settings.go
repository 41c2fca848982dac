// Package settings defines the persisted user settings and the Store
// interface that backs them.
package settings

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

// Settings is the persisted settings object. Password holds the credential
// digest, never the password itself.
type Settings struct {
	FilterNSFW       bool                   `json:"filterNSFW"`
	FilterViolence   bool                   `json:"filterViolence"`
	FilterSuicide    bool                   `json:"filterSuicide"`
	SensitivityLevel classifier.Sensitivity `json:"sensitivityLevel"`
	EducationalMode  bool                   `json:"educationalMode"`
	Password         string                 `json:"password,omitempty"`
	IsSetup          bool                   `json:"isSetup"`
}

// Default returns the settings of a fresh install.
func Default() Settings {
	return Settings{
		FilterNSFW:       true,
		FilterViolence:   true,
		FilterSuicide:    true,
		SensitivityLevel: classifier.Medium,
		EducationalMode:  true,
	}
}

// FilterConfig derives the classifier configuration.
func (s Settings) FilterConfig() classifier.FilterConfig {
	var cats taxonomy.Set
	if s.FilterNSFW {
		cats = cats.With(taxonomy.NSFW)
	}
	if s.FilterViolence {
		cats = cats.With(taxonomy.Violence)
	}
	if s.FilterSuicide {
		cats = cats.With(taxonomy.Suicide)
	}
	return classifier.FilterConfig{
		Categories:  cats,
		Sensitivity: classifier.ParseSensitivity(string(s.SensitivityLevel)),
		Educational: s.EducationalMode,
	}
}

// Public returns a copy safe to hand to clients: the digest is dropped.
func (s Settings) Public() Settings {
	s.Password = ""
	return s
}

// Decode reads a settings object, filling fields missing from raw with
// their defaults.
func Decode(raw []byte) (Settings, error) {
	s := Default()
	if err := json.Unmarshal(raw, &s); err != nil {
		return Settings{}, err
	}
	s.SensitivityLevel = classifier.ParseSensitivity(string(s.SensitivityLevel))
	return s, nil
}

// Patch is a partial update. Nil fields are left unchanged.
type Patch struct {
	FilterNSFW       *bool   `json:"filterNSFW,omitempty"`
	FilterViolence   *bool   `json:"filterViolence,omitempty"`
	FilterSuicide    *bool   `json:"filterSuicide,omitempty"`
	SensitivityLevel *string `json:"sensitivityLevel,omitempty"`
	EducationalMode  *bool   `json:"educationalMode,omitempty"`
}

// Apply returns s with p merged in. Applying any patch marks setup done.
func (s Settings) Apply(p Patch) Settings {
	if p.FilterNSFW != nil {
		s.FilterNSFW = *p.FilterNSFW
	}
	if p.FilterViolence != nil {
		s.FilterViolence = *p.FilterViolence
	}
	if p.FilterSuicide != nil {
		s.FilterSuicide = *p.FilterSuicide
	}
	if p.SensitivityLevel != nil {
		s.SensitivityLevel = classifier.ParseSensitivity(*p.SensitivityLevel)
	}
	if p.EducationalMode != nil {
		s.EducationalMode = *p.EducationalMode
	}
	s.IsSetup = true
	return s
}

// ErrNotFound is returned by stores that hold nothing yet. Callers usually
// want Load, which maps it to Default.
var ErrNotFound = errors.New("settings: not found")

// Store persists Settings.
type Store interface {
	Get(ctx context.Context) (Settings, error)
	Put(ctx context.Context, s Settings) error
}

// Load returns the stored settings, or the defaults when nothing is stored.
func Load(ctx context.Context, store Store) (Settings, error) {
	s, err := store.Get(ctx)
	if errors.Is(err, ErrNotFound) {
		return Default(), nil
	}
	return s, err
}
