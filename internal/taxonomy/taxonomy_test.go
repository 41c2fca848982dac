package taxonomy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSet(t *testing.T) {
	s := NewSet(Suicide, Violence)
	assert.True(t, s.Has(Suicide))
	assert.True(t, s.Has(Violence))
	assert.False(t, s.Has(NSFW))
	assert.False(t, s.Has(Inappropriate))
	assert.Equal(t, []Category{Suicide, Violence}, s.Slice())
	assert.Equal(t, []Category{Suicide, NSFW, Violence}, All().Slice())
	assert.True(t, Set(0).With(NSFW).Has(NSFW))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, NSFW, ParseCategory("NSFW"))
	assert.Equal(t, Suicide, ParseCategory(" self-harm "))
	assert.Equal(t, Violence, ParseCategory("violence"))
	assert.Equal(t, Inappropriate, ParseCategory("none"))
	assert.Equal(t, Inappropriate, ParseCategory(""))
}

func TestMatchIsSubstring(t *testing.T) {
	tx := Default()
	assert.Equal(t, []string{"suicide", "how to commit suicide"}, tx.Match(Suicide, "how to commit suicide"))
	// no word boundaries: "blood" inside a longer word still matches
	assert.Contains(t, tx.Match(Violence, "bloodstream infection"), "blood")
	assert.Empty(t, tx.Match(NSFW, "a perfectly ordinary sentence"))
}

func TestEducationalScore(t *testing.T) {
	tx := Default()
	assert.Equal(t, 0, tx.EducationalScore("how to commit suicide"))
	// one strong term is enough on its own
	assert.Equal(t, 2, tx.EducationalScore("prevention"))
	assert.Equal(t, 1, tx.EducationalScore("hotline"))
	assert.GreaterOrEqual(t, tx.EducationalScore("effects of suicide prevention research study"), 8)
}

func TestKeywordsRespectsEnabledSet(t *testing.T) {
	tx := Default()
	text := "Gore and PORN everywhere"
	assert.Equal(t, []string{"porn", "gore"}, tx.Keywords(text, All()))
	assert.Equal(t, []string{"gore"}, tx.Keywords(text, NewSet(Violence)))
	assert.Empty(t, tx.Keywords(text, 0))
}

func TestParseOverride(t *testing.T) {
	tx, err := Parse([]byte(`
categories:
  nsfw: [Lewd, lewd, " smut "]
strong_educational: [lecture]
`))
	require.NoError(t, err)

	assert.Equal(t, []string{"lewd", "smut"}, tx.Terms(NSFW))
	assert.Equal(t, Default().Terms(Violence), tx.Terms(Violence))
	assert.True(t, tx.Strong("lecture"))
	assert.False(t, tx.Strong("research"))
	assert.Equal(t, Default().Educational(), tx.Educational())
}

func TestParseRejectsUnknownCategory(t *testing.T) {
	_, err := Parse([]byte("categories:\n  gambling: [casino]\n"))
	require.Error(t, err)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "taxonomy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("educational: [seminar]\n"), 0o600))

	tx, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, []string{"seminar"}, tx.Educational())

	_, err = Load(filepath.Join(t.TempDir(), "missing.yaml"))
	require.Error(t, err)
}
