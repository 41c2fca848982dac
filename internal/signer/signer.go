// Package signer authenticates outgoing classification requests with a
// secp256k1 install key, so the backend can tell genuine filter installs
// apart from anonymous callers and rate-limit per install.
package signer

import (
	"crypto/ecdsa"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// Request headers set by Apply.
const (
	HeaderSignature = "X-Safeguard-Signature"
	HeaderTimestamp = "X-Safeguard-Timestamp"
	HeaderInstall   = "X-Safeguard-Install"
)

// Signer produces recoverable secp256k1 signatures over request bodies.
type Signer struct {
	key     *ecdsa.PrivateKey
	address common.Address
	now     func() time.Time
}

// New creates a Signer from a hex-encoded private key (0x prefix optional).
func New(hexKey string) (*Signer, error) {
	hexKey = strings.TrimPrefix(strings.TrimSpace(hexKey), "0x")
	raw, err := hex.DecodeString(hexKey)
	if err != nil {
		return nil, fmt.Errorf("signer: invalid hex key: %w", err)
	}
	if len(raw) != 32 {
		return nil, fmt.Errorf("signer: key must be 32 bytes, got %d", len(raw))
	}
	key, err := crypto.ToECDSA(raw)
	if err != nil {
		return nil, fmt.Errorf("signer: %w", err)
	}
	return &Signer{
		key:     key,
		address: crypto.PubkeyToAddress(key.PublicKey),
		now:     time.Now,
	}, nil
}

// Install returns the install identifier derived from the public key.
func (s *Signer) Install() string { return s.address.Hex() }

// Sign returns (base64-encoded signature, timestamp in nanoseconds).
//
// Signing scheme:
//  1. body_hash = hex(SHA256(body))
//  2. input = body_hash + str(timestamp_ns) + install
//  3. sign Keccak256(input), 65-byte [R || S || V] recoverable form
func (s *Signer) Sign(body []byte) (sig string, tsNano int64) {
	ts := s.now().UnixNano()
	raw, err := crypto.Sign(digest(body, ts, s.Install()), s.key)
	if err != nil {
		// crypto.Sign only fails on a malformed hash length
		panic(fmt.Sprintf("signer: sign: %v", err))
	}
	return base64.StdEncoding.EncodeToString(raw), ts
}

// Apply signs body and sets the signature headers on req.
func (s *Signer) Apply(req *http.Request, body []byte) {
	sig, ts := s.Sign(body)
	req.Header.Set(HeaderSignature, sig)
	req.Header.Set(HeaderTimestamp, strconv.FormatInt(ts, 10))
	req.Header.Set(HeaderInstall, s.Install())
}

// Recover returns the install that produced sig over body at tsNano. It is
// the check a backend performs; callers compare the result with the claimed
// install header.
func Recover(body []byte, tsNano int64, install, sig string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(sig)
	if err != nil {
		return "", fmt.Errorf("signer: decode signature: %w", err)
	}
	pub, err := crypto.SigToPub(digest(body, tsNano, install), raw)
	if err != nil {
		return "", fmt.Errorf("signer: recover: %w", err)
	}
	return crypto.PubkeyToAddress(*pub).Hex(), nil
}

func digest(body []byte, tsNano int64, install string) []byte {
	bodyHash := sha256.Sum256(body)
	input := hex.EncodeToString(bodyHash[:]) + strconv.FormatInt(tsNano, 10) + install
	return crypto.Keccak256([]byte(input))
}
