package identity

import (
	"crypto/ed25519"
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// SessionToken is the short-lived credential a CLI client presents to the
// daemon's mux socket on every call after the initial handshake.
type SessionToken struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Nonce     string
}

// IsExpired reports whether the token is no longer valid at now.
func (t *SessionToken) IsExpired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}

func encodeToken(subject string, issuedAt, expiresAt time.Time, nonce string) string {
	fields := []string{subject, strconv.FormatInt(issuedAt.Unix(), 10), strconv.FormatInt(expiresAt.Unix(), 10), nonce}
	return base64.RawURLEncoding.EncodeToString([]byte(strings.Join(fields, "|")))
}

func decodeToken(payload string) (*SessionToken, error) {
	raw, err := base64.RawURLEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("decoding token payload: %w", err)
	}
	fields := strings.Split(string(raw), "|")
	if len(fields) != 4 {
		return nil, fmt.Errorf("malformed token payload")
	}
	issuedUnix, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed issued-at: %w", err)
	}
	expiresUnix, err := strconv.ParseInt(fields[2], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("malformed expires-at: %w", err)
	}
	return &SessionToken{
		Subject:   fields[0],
		IssuedAt:  time.Unix(issuedUnix, 0).UTC(),
		ExpiresAt: time.Unix(expiresUnix, 0).UTC(),
		Nonce:     fields[3],
	}, nil
}

// SignSessionToken issues a token for subject, valid for ttl, signed with
// the host key's private half. The wire form is `payload.signature`, both
// base64url, so it can travel as a single header value over the mux.
func SignSessionToken(key *HostKey, subject string, issuedAt time.Time, ttl time.Duration, nonce string) string {
	payload := encodeToken(subject, issuedAt, issuedAt.Add(ttl), nonce)
	sig := ed25519.Sign(key.Private, []byte(payload))
	return payload + "." + base64.RawURLEncoding.EncodeToString(sig)
}

// VerifySessionToken checks the token's signature against the host key's
// public half and that it has not expired as of now.
func VerifySessionToken(key *HostKey, token string, now time.Time) (*SessionToken, error) {
	parts := strings.SplitN(token, ".", 2)
	if len(parts) != 2 {
		return nil, fmt.Errorf("malformed session token")
	}
	payload, sigPart := parts[0], parts[1]
	sig, err := base64.RawURLEncoding.DecodeString(sigPart)
	if err != nil {
		return nil, fmt.Errorf("decoding token signature: %w", err)
	}
	if !ed25519.Verify(key.Public, []byte(payload), sig) {
		return nil, fmt.Errorf("session token signature invalid")
	}
	tok, err := decodeToken(payload)
	if err != nil {
		return nil, err
	}
	if tok.IsExpired(now) {
		return nil, fmt.Errorf("session token expired at %s", tok.ExpiresAt)
	}
	return tok, nil
}
