package settings

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/taxonomy"
)

func TestDefaultFilterConfig(t *testing.T) {
	cfg := Default().FilterConfig()
	assert.Equal(t, taxonomy.All(), cfg.Categories)
	assert.Equal(t, classifier.Medium, cfg.Sensitivity)
	assert.True(t, cfg.Educational)
	assert.False(t, Default().IsSetup)
}

func TestApplyPatch(t *testing.T) {
	off := false
	high := "HIGH"
	s := Default().Apply(Patch{FilterNSFW: &off, SensitivityLevel: &high})

	assert.False(t, s.FilterNSFW)
	assert.True(t, s.FilterViolence)
	assert.Equal(t, classifier.High, s.SensitivityLevel)
	assert.True(t, s.IsSetup)
	assert.False(t, s.FilterConfig().Categories.Has(taxonomy.NSFW))
}

func TestPublicDropsDigest(t *testing.T) {
	s := Default()
	s.Password = "pbkdf2-sha256$1$a$b"
	assert.Empty(t, s.Public().Password)
	assert.NotEmpty(t, s.Password)
}

func TestDecode(t *testing.T) {
	s, err := Decode([]byte(`{"filterSuicide":false}`))
	require.NoError(t, err)
	assert.False(t, s.FilterSuicide)
	assert.True(t, s.FilterNSFW)

	_, err = Decode([]byte(`nope`))
	require.Error(t, err)
}
