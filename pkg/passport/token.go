// Package passport implements the capability token ("macaroon") verifier:
// a fail-fast Bounds -> Parse -> TimeWindow -> KeyLookup -> MAC -> Caveats
// pipeline deciding Allow or Deny(reason) for a presented token.
package passport

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"

	"github.com/rustyonions/kernel/pkg/kerrors"
)

const macSize = sha256.Size

// Claims is the signed claim set carried by a token, independent of the
// keyed MAC that authenticates it.
type Claims struct {
	Kid       string   `json:"kid"`
	Subject   string   `json:"sub"`
	Scope     string   `json:"scope"`
	IssuedAt  int64    `json:"iat"`
	NotBefore int64    `json:"nbf,omitempty"`
	ExpiresAt int64    `json:"exp"`
	Caveats   []Caveat `json:"caveats,omitempty"`
}

// Encode renders claims to the canonical bytes that get MACed as msg.
func (c Claims) Encode() ([]byte, error) {
	return json.Marshal(c)
}

// DecodeClaims parses msg back into a Claims value.
func DecodeClaims(msg []byte) (Claims, error) {
	var c Claims
	if err := json.Unmarshal(msg, &c); err != nil {
		return Claims{}, kerrors.New(kerrors.Malformed, "claims decode failed", nil)
	}
	return c, nil
}

// Seal builds token bytes as msg||mac using key for the HMAC-SHA256 MAC.
func Seal(claims Claims, key []byte) ([]byte, error) {
	msg, err := claims.Encode()
	if err != nil {
		return nil, err
	}
	mac := computeMAC(key, msg)
	return append(append([]byte{}, msg...), mac...), nil
}

// SealEnvelope builds the textual base64url(msg) + "." + base64url(mac)
// envelope form.
func SealEnvelope(claims Claims, key []byte) (string, error) {
	msg, err := claims.Encode()
	if err != nil {
		return "", err
	}
	mac := computeMAC(key, msg)
	return base64.RawURLEncoding.EncodeToString(msg) + "." + base64.RawURLEncoding.EncodeToString(mac), nil
}

// Parse splits a presented token into msg and mac, accepting both the
// base64url(msg) + "." + base64url(mac) textual envelope and raw binary
// msg||mac concatenation.
func Parse(token []byte) (msg, mac []byte, err error) {
	if idx := bytes.IndexByte(token, '.'); idx >= 0 {
		left, right := token[:idx], token[idx+1:]
		if !bytes.ContainsRune(right, '.') {
			lm, err1 := base64.RawURLEncoding.DecodeString(string(left))
			rm, err2 := base64.RawURLEncoding.DecodeString(string(right))
			if err1 == nil && err2 == nil && len(rm) == macSize {
				return lm, rm, nil
			}
		}
	}
	if len(token) < macSize {
		return nil, nil, kerrors.New(kerrors.Malformed, "token shorter than mac size", nil)
	}
	split := len(token) - macSize
	return token[:split], token[split:], nil
}
