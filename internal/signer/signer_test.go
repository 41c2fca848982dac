package signer

import (
	"net/http"
	"strconv"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "0x4c0883a69102937d6231471b5dbb6204fe5129617082792ae468d01a3f362318"

func TestNewRejectsBadKeys(t *testing.T) {
	_, err := New("zz")
	require.Error(t, err)

	_, err = New("abcd")
	require.Error(t, err)
}

func TestSignRecover(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1700000000, 42) }

	body := []byte(`{"query":"hello"}`)
	sig, ts := s.Sign(body)
	assert.Equal(t, int64(1700000000000000042), ts)

	got, err := Recover(body, ts, s.Install(), sig)
	require.NoError(t, err)
	assert.Equal(t, s.Install(), got)

	// tampered body never recovers the signing install
	got, err = Recover([]byte(`{"query":"bye"}`), ts, s.Install(), sig)
	if err == nil {
		assert.NotEqual(t, s.Install(), got)
	}
}

func TestSignIsDeterministic(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)
	s.now = func() time.Time { return time.Unix(1, 0) }

	a, _ := s.Sign([]byte("x"))
	b, _ := s.Sign([]byte("x"))
	assert.Equal(t, a, b)
}

func TestApplySetsHeaders(t *testing.T) {
	s, err := New(testKey)
	require.NoError(t, err)

	req, err := http.NewRequest(http.MethodPost, "http://backend/analyze_query", nil)
	require.NoError(t, err)
	body := []byte("payload")
	s.Apply(req, body)

	ts, err := strconv.ParseInt(req.Header.Get(HeaderTimestamp), 10, 64)
	require.NoError(t, err)
	assert.Equal(t, s.Install(), req.Header.Get(HeaderInstall))

	got, err := Recover(body, ts, req.Header.Get(HeaderInstall), req.Header.Get(HeaderSignature))
	require.NoError(t, err)
	assert.Equal(t, s.Install(), got)
}

func TestRecoverRejectsGarbage(t *testing.T) {
	_, err := Recover([]byte("x"), 1, "install", "%%%")
	require.Error(t, err)

	_, err = Recover([]byte("x"), 1, "install", "AAAA")
	require.Error(t, err)
}
