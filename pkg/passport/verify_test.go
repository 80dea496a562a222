package passport

import (
	"bytes"
	"encoding/base64"
	"testing"
	"time"

	"github.com/rustyonions/kernel/pkg/kerrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freshClaims(now time.Time, caveats ...Caveat) Claims {
	return Claims{
		Kid:       "k1",
		Subject:   "svc-a",
		Scope:     "read",
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(time.Hour).Unix(),
		Caveats:   caveats,
	}
}

func TestVerifyAllowsValidToken(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	tok, err := Seal(freshClaims(now), key)
	require.NoError(t, err)

	d := Verify(Config{}, dir, tok, now, RequestContext{}, "")
	assert.True(t, d.Allow)
}

func TestVerifyEnvelopeFormAccepted(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	env, err := SealEnvelope(freshClaims(now), key)
	require.NoError(t, err)

	d := Verify(Config{}, dir, []byte(env), now, RequestContext{}, "")
	assert.True(t, d.Allow)
}

func TestVerifyUnknownKid(t *testing.T) {
	dir := NewMemDirectory()
	now := time.Now()
	tok, err := Seal(freshClaims(now), []byte("whatever"))
	require.NoError(t, err)

	d := Verify(Config{}, dir, tok, now, RequestContext{}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(kerrors.UnknownKid), d.Reason)
}

func TestVerifyMacMismatchOnTamperedClaims(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	tok, err := Seal(freshClaims(now), key)
	require.NoError(t, err)
	// Alter a claim value while keeping the JSON msg well-formed.
	tok = bytes.Replace(tok, []byte(`"svc-a"`), []byte(`"svc-b"`), 1)

	d := Verify(Config{}, dir, tok, now, RequestContext{}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(kerrors.MacMismatch), d.Reason)
}

func TestVerifyExpiredToken(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	claims := freshClaims(now)
	claims.ExpiresAt = now.Add(-time.Hour).Unix()
	tok, err := Seal(claims, key)
	require.NoError(t, err)

	d := Verify(Config{}, dir, tok, now, RequestContext{}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(kerrors.Expired), d.Reason)
}

func TestVerifyBoundsRejectsOversizeToken(t *testing.T) {
	dir := NewMemDirectory()
	d := Verify(Config{MaxTokenBytes: 4}, dir, make([]byte, 100), time.Now(), RequestContext{}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(kerrors.Bounds), d.Reason)
}

func TestVerifyCaveatDeniesByIPAllowlist(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	claims := freshClaims(now, Caveat{Kind: CaveatIPAllowlist, CIDRs: []string{"10.0.0.0/8"}})
	tok, err := Seal(claims, key)
	require.NoError(t, err)

	d := Verify(Config{}, dir, tok, now, RequestContext{PeerAddr: "192.168.1.1"}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(DenyIPNotAllowed), d.Reason)

	d2 := Verify(Config{}, dir, tok, now, RequestContext{PeerAddr: "10.1.2.3"}, "")
	assert.True(t, d2.Allow)
}

func TestVerifyCaveatMethodAllowlist(t *testing.T) {
	dir := NewMemDirectory()
	key := []byte("super-secret-key")
	dir.Put("k1", key)

	now := time.Now()
	claims := freshClaims(now, Caveat{Kind: CaveatMethodAllowlist, Methods: []string{"GET", "HEAD"}})
	tok, err := Seal(claims, key)
	require.NoError(t, err)

	d := Verify(Config{}, dir, tok, now, RequestContext{Method: "POST"}, "")
	require.False(t, d.Allow)
	assert.Equal(t, string(DenyMethodNotAllowed), d.Reason)
}

func TestParseAcceptsRawBinaryAndEnvelope(t *testing.T) {
	msg := []byte(`{"kid":"k1"}`)
	mac := computeMAC([]byte("key"), msg)
	raw := append(append([]byte{}, msg...), mac...)

	gotMsg, gotMac, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, msg, gotMsg)
	assert.Equal(t, mac, gotMac)

	env := base64.RawURLEncoding.EncodeToString(msg) + "." + base64.RawURLEncoding.EncodeToString(mac)
	gotMsg2, gotMac2, err := Parse([]byte(env))
	require.NoError(t, err)
	assert.Equal(t, msg, gotMsg2)
	assert.Equal(t, mac, gotMac2)
}
