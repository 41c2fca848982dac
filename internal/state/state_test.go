package state

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gonkalabs/safeguard-go/internal/settings"
	"github.com/gonkalabs/safeguard-go/internal/settings/memory"
)

type failingStore struct{ settings.Store }

func (failingStore) Put(context.Context, settings.Settings) error { return errors.New("read-only") }

func TestFreshInstall(t *testing.T) {
	s, err := New(context.Background(), memory.NewInMemory())
	require.NoError(t, err)

	assert.Equal(t, settings.Default(), s.Settings())
	assert.True(t, s.Active())
	assert.False(t, s.Filtering())
}

func TestUpdatePersists(t *testing.T) {
	ctx := context.Background()
	store := memory.NewInMemory()
	s, err := New(ctx, store)
	require.NoError(t, err)

	off := false
	_, err = s.Update(ctx, func(cur settings.Settings) settings.Settings {
		return cur.Apply(settings.Patch{FilterViolence: &off})
	})
	require.NoError(t, err)
	assert.True(t, s.Filtering())

	stored, err := store.Get(ctx)
	require.NoError(t, err)
	assert.False(t, stored.FilterViolence)
	assert.True(t, stored.IsSetup)

	s.SetActive(false)
	assert.False(t, s.Filtering())
}

func TestFailedUpdateKeepsSettings(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, failingStore{memory.NewInMemory()})
	require.NoError(t, err)

	_, err = s.Update(ctx, func(cur settings.Settings) settings.Settings {
		cur.EducationalMode = false
		return cur
	})
	require.Error(t, err)
	assert.True(t, s.Settings().EducationalMode)
}

func TestDigestLivesInSettings(t *testing.T) {
	ctx := context.Background()
	s, err := New(ctx, memory.NewInMemory())
	require.NoError(t, err)

	require.NoError(t, s.SaveDigest(ctx, "pbkdf2-sha256$1$AA$AA"))
	d, err := s.LoadDigest(ctx)
	require.NoError(t, err)
	assert.Equal(t, "pbkdf2-sha256$1$AA$AA", d)
	assert.True(t, s.Settings().IsSetup)
	assert.Empty(t, s.Settings().Public().Password)
}
