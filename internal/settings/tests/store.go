package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/classifier"
	"github.com/gonkalabs/safeguard-go/internal/settings"
)

func RunStoreTests(t *testing.T, s settings.Store, teardown func()) {
	for _, tf := range []func(t *testing.T, s settings.Store){
		testSettingsStore_Empty,
		testSettingsStore_RoundTrip,
	} {
		tf(t, s)
		teardown()
	}
}

func testSettingsStore_Empty(t *testing.T, s settings.Store) {
	ctx := context.Background()

	_, err := s.Get(ctx)
	require.ErrorIs(t, err, settings.ErrNotFound)

	loaded, err := settings.Load(ctx, s)
	require.NoError(t, err)
	require.Equal(t, settings.Default(), loaded)
}

func testSettingsStore_RoundTrip(t *testing.T, s settings.Store) {
	ctx := context.Background()

	want := settings.Default()
	want.FilterViolence = false
	want.SensitivityLevel = classifier.High
	want.IsSetup = true
	require.NoError(t, s.Put(ctx, want))

	got, err := s.Get(ctx)
	require.NoError(t, err)
	require.Equal(t, want, got)

	want.EducationalMode = false
	require.NoError(t, s.Put(ctx, want))
	got, err = s.Get(ctx)
	require.NoError(t, err)
	require.False(t, got.EducationalMode)
}
