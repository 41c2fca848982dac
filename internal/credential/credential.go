// Package credential guards protected actions (revealing blurred images,
// changing settings, pausing the filter) behind a password.
//
// Only a salted one-way digest of the password is ever stored. A successful
// Verify opens a session that lasts SessionTTL; the session is checked lazily
// and reset on first use after expiry.
package credential

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/crypto/pbkdf2"

	"github.com/gonkalabs/safeguard-go/internal/metrics"
)

// SessionTTL is how long a successful verification stays valid.
const SessionTTL = 30 * time.Minute

const (
	digestScheme = "pbkdf2-sha256"
	iterations   = 100_000
	saltLen      = 16
	keyLen       = 32
)

var (
	// ErrIncorrectCredential is returned for any failed check. It never says
	// whether a credential exists.
	ErrIncorrectCredential = errors.New("incorrect credential")
	ErrEmptyCredential     = errors.New("credential must not be empty")
)

// Store persists the digest.
type Store interface {
	LoadDigest(ctx context.Context) (string, error)
	SaveDigest(ctx context.Context, digest string) error
}

// Session is the authenticated state.
type Session struct {
	Authenticated bool
	ExpiresAt     time.Time
}

// Gate is safe for concurrent use.
type Gate struct {
	store Store
	now   func() time.Time

	mu      sync.Mutex
	digest  string
	session Session
}

// Option configures a Gate.
type Option func(*Gate)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(g *Gate) { g.now = now }
}

// New loads the stored digest and returns an unauthenticated Gate.
func New(ctx context.Context, store Store, opts ...Option) (*Gate, error) {
	g := &Gate{store: store, now: time.Now}
	for _, o := range opts {
		o(g)
	}
	digest, err := store.LoadDigest(ctx)
	if err != nil {
		return nil, fmt.Errorf("credential: load: %w", err)
	}
	g.digest = digest
	return g, nil
}

// HasCredential reports whether a credential has been set.
func (g *Gate) HasCredential() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.digest != ""
}

// SetCredential replaces the credential. When one is already set, current
// must verify against it.
func (g *Gate) SetCredential(ctx context.Context, current, next string) error {
	if next == "" {
		return ErrEmptyCredential
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if g.digest != "" && !matches(g.digest, current) {
		metrics.CredentialChecks.WithLabelValues("rejected").Inc()
		return ErrIncorrectCredential
	}
	digest, err := Hash(next)
	if err != nil {
		return err
	}
	if err := g.store.SaveDigest(ctx, digest); err != nil {
		return fmt.Errorf("credential: save: %w", err)
	}
	g.digest = digest
	slog.Info("credential: credential updated")
	return nil
}

// Verify checks candidate against the stored digest and opens a session on
// success. With no credential set every candidate is accepted.
func (g *Gate) Verify(candidate string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.digest != "" && !matches(g.digest, candidate) {
		metrics.CredentialChecks.WithLabelValues("rejected").Inc()
		return false
	}
	if g.digest != "" && isLegacy(g.digest) {
		g.upgrade(candidate)
	}
	g.session = Session{Authenticated: true, ExpiresAt: g.now().Add(SessionTTL)}
	metrics.CredentialChecks.WithLabelValues("accepted").Inc()
	return true
}

// CheckSession reports whether a session is open. An expired session is
// reset as a side effect.
func (g *Gate) CheckSession() bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	if !g.session.Authenticated {
		return false
	}
	if !g.now().Before(g.session.ExpiresAt) {
		g.session = Session{}
		return false
	}
	return true
}

// Session returns a snapshot of the session without expiring it.
func (g *Gate) Session() Session {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.session
}

// Logout closes the session.
func (g *Gate) Logout() {
	g.mu.Lock()
	g.session = Session{}
	g.mu.Unlock()
}

// upgrade rehashes a legacy digest. The caller holds g.mu and has already
// verified candidate. Failures keep the legacy digest in place.
func (g *Gate) upgrade(candidate string) {
	digest, err := Hash(candidate)
	if err != nil {
		slog.Warn("credential: legacy upgrade failed", "err", err)
		return
	}
	if err := g.store.SaveDigest(context.Background(), digest); err != nil {
		slog.Warn("credential: legacy upgrade failed", "err", err)
		return
	}
	g.digest = digest
	slog.Info("credential: upgraded legacy digest")
}

// Hash returns a new salted digest for password.
func Hash(password string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("credential: salt: %w", err)
	}
	return encode(iterations, salt, derive(password, salt, iterations)), nil
}

func derive(password string, salt []byte, iter int) []byte {
	return pbkdf2.Key([]byte(password), salt, iter, keyLen, sha256.New)
}

func encode(iter int, salt, key []byte) string {
	return strings.Join([]string{
		digestScheme,
		strconv.Itoa(iter),
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	}, "$")
}

// matches compares candidate with digest in constant time. Malformed digests
// never match.
func matches(digest, candidate string) bool {
	if isLegacy(digest) {
		want, _ := hex.DecodeString(digest)
		got := sha256.Sum256([]byte(candidate))
		return subtle.ConstantTimeCompare(want, got[:]) == 1
	}

	parts := strings.Split(digest, "$")
	if len(parts) != 4 || parts[0] != digestScheme {
		return false
	}
	iter, err := strconv.Atoi(parts[1])
	if err != nil || iter <= 0 {
		return false
	}
	salt, err := base64.RawStdEncoding.DecodeString(parts[2])
	if err != nil {
		return false
	}
	want, err := base64.RawStdEncoding.DecodeString(parts[3])
	if err != nil || len(want) == 0 {
		return false
	}
	got := pbkdf2.Key([]byte(candidate), salt, iter, len(want), sha256.New)
	return subtle.ConstantTimeCompare(want, got) == 1
}

// isLegacy matches the unsalted hex SHA-256 digests of older installs.
func isLegacy(digest string) bool {
	if len(digest) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(digest)
	return err == nil
}
