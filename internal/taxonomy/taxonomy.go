// Package taxonomy holds the keyword lists that drive local classification:
// the harmful-term lists per category, the educational-context allow-list and
// its strong subset. The built-in lists can be replaced from a YAML file.
package taxonomy

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Category names a class of harmful content.
type Category string

const (
	NSFW     Category = "nsfw"
	Violence Category = "violence"
	Suicide  Category = "suicide"

	// Inappropriate is used when a remote verdict is harmful but carries no
	// category we recognise.
	Inappropriate Category = "inappropriate"
)

// Priority is the fixed evaluation order. The first unsuppressed match wins.
var Priority = []Category{Suicide, NSFW, Violence}

// ParseCategory maps a free-form category string onto a Category. Unknown
// values map to Inappropriate.
func ParseCategory(s string) Category {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nsfw", "adult", "sexual":
		return NSFW
	case "violence", "violent", "gore":
		return Violence
	case "suicide", "self-harm", "selfharm", "self_harm":
		return Suicide
	default:
		return Inappropriate
	}
}

// Set is a bitmask of enabled categories. The zero value enables nothing.
type Set uint8

func bit(c Category) Set {
	switch c {
	case NSFW:
		return 1 << 0
	case Violence:
		return 1 << 1
	case Suicide:
		return 1 << 2
	}
	return 0
}

// NewSet returns a Set with the given categories enabled.
func NewSet(cats ...Category) Set {
	var s Set
	for _, c := range cats {
		s |= bit(c)
	}
	return s
}

// All enables every filterable category.
func All() Set { return NewSet(NSFW, Violence, Suicide) }

// Has reports whether c is enabled.
func (s Set) Has(c Category) bool {
	b := bit(c)
	return b != 0 && s&b == b
}

// With returns s with c enabled.
func (s Set) With(c Category) Set { return s | bit(c) }

// Slice lists the enabled categories in priority order.
func (s Set) Slice() []Category {
	out := make([]Category, 0, len(Priority))
	for _, c := range Priority {
		if s.Has(c) {
			out = append(out, c)
		}
	}
	return out
}

// Taxonomy is an immutable set of keyword lists. All terms are lower-case.
type Taxonomy struct {
	terms       map[Category][]string
	educational []string
	strong      map[string]bool
}

// Default returns the built-in taxonomy.
func Default() *Taxonomy {
	return build(defaultTerms, defaultEducational, defaultStrong)
}

func build(terms map[Category][]string, educational, strong []string) *Taxonomy {
	t := &Taxonomy{
		terms:  make(map[Category][]string, len(terms)),
		strong: make(map[string]bool, len(strong)),
	}
	for c, list := range terms {
		t.terms[c] = normalise(list)
	}
	t.educational = normalise(educational)
	for _, s := range normalise(strong) {
		t.strong[s] = true
	}
	return t
}

// normalise lower-cases and de-duplicates while keeping the first position.
func normalise(in []string) []string {
	seen := make(map[string]bool, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.ToLower(strings.TrimSpace(s))
		if s == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}

// Terms returns the harmful terms for c.
func (t *Taxonomy) Terms(c Category) []string { return t.terms[c] }

// Educational returns the educational-context allow-list.
func (t *Taxonomy) Educational() []string { return t.educational }

// Strong reports whether term carries double weight in the educational score.
func (t *Taxonomy) Strong(term string) bool { return t.strong[term] }

// Match returns every term of c contained in lower, which must already be
// lower-cased. Matching is plain substring containment.
func (t *Taxonomy) Match(c Category, lower string) []string {
	var out []string
	for _, term := range t.terms[c] {
		if strings.Contains(lower, term) {
			out = append(out, term)
		}
	}
	return out
}

// EducationalScore counts each distinct educational term present in lower:
// two points for a strong term, one for the rest.
func (t *Taxonomy) EducationalScore(lower string) int {
	score := 0
	for _, term := range t.educational {
		if !strings.Contains(lower, term) {
			continue
		}
		if t.strong[term] {
			score += 2
		} else {
			score++
		}
	}
	return score
}

// Keywords returns the terms of every enabled category found in text, in
// priority order and without duplicates.
func (t *Taxonomy) Keywords(text string, enabled Set) []string {
	lower := strings.ToLower(text)
	seen := map[string]bool{}
	var out []string
	for _, c := range enabled.Slice() {
		for _, term := range t.Match(c, lower) {
			if !seen[term] {
				seen[term] = true
				out = append(out, term)
			}
		}
	}
	return out
}

type fileFormat struct {
	Categories  map[string][]string `yaml:"categories"`
	Educational []string            `yaml:"educational"`
	Strong      []string            `yaml:"strong_educational"`
}

// Load reads a YAML override file. Sections left out of the file keep their
// built-in values.
//
//	categories:
//	  nsfw: [porn, xxx]
//	educational: [research, study]
//	strong_educational: [research]
func Load(path string) (*Taxonomy, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("taxonomy: read %s: %w", path, err)
	}
	return Parse(raw)
}

// Parse is Load without the file read.
func Parse(raw []byte) (*Taxonomy, error) {
	var f fileFormat
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("taxonomy: decode: %w", err)
	}

	terms := make(map[Category][]string, len(defaultTerms))
	for c, list := range defaultTerms {
		terms[c] = list
	}
	for name, list := range f.Categories {
		c := ParseCategory(name)
		if c == Inappropriate {
			return nil, fmt.Errorf("taxonomy: unknown category %q", name)
		}
		terms[c] = list
	}

	educational := defaultEducational
	if len(f.Educational) > 0 {
		educational = f.Educational
	}
	strong := defaultStrong
	if len(f.Strong) > 0 {
		strong = f.Strong
	}
	return build(terms, educational, strong), nil
}
