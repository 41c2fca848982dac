package file

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/settings/tests"
)

func TestSettings_FileStore(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "settings.json")
	testStore := New(path)
	teardown := func() {
		_ = os.Remove(path)
	}
	tests.RunStoreTests(t, testStore, teardown)
}

func TestFileStore_MissingFieldsTakeDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"filterNSFW":false,"sensitivityLevel":"extreme"}`), 0o600))

	got, err := New(path).Get(context.Background())
	require.NoError(t, err)
	require.False(t, got.FilterNSFW)
	require.True(t, got.FilterViolence)
	require.True(t, got.EducationalMode)
	require.Equal(t, classifier.Medium, got.SensitivityLevel)
}

func TestFileStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "settings.json")
	require.NoError(t, os.WriteFile(path, []byte(`{`), 0o600))

	_, err := New(path).Get(context.Background())
	require.Error(t, err)
}
