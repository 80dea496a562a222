package passport

import (
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"time"

	"github.com/rustyonions/kernel/pkg/kerrors"
)

// KeyDirectory resolves a capability signing key by its versioned kid. A
// miss is reported via ok=false, never an error, keeping the pipeline's
// UnknownKid classification in one place (see Verify).
type KeyDirectory interface {
	Lookup(kid string) (key []byte, ok bool)
}

// Config bounds the verifier's Bounds step and clock skew tolerance.
type Config struct {
	MaxTokenBytes int
	MaxCaveats    int
	Skew          time.Duration
}

func (c Config) withDefaults() Config {
	if c.MaxTokenBytes <= 0 {
		c.MaxTokenBytes = 4096
	}
	if c.MaxCaveats <= 0 {
		c.MaxCaveats = 32
	}
	if c.Skew <= 0 {
		c.Skew = 30 * time.Second
	}
	return c
}

// Decision is the outcome of Verify: Allow, or Deny with a stable reason
// drawn from either the structural kerrors.Kind taxonomy or the caveat
// DenyReason set.
type Decision struct {
	Allow  bool
	Reason string
}

func allow() Decision   { return Decision{Allow: true, Reason: "ok"} }
func deny(r string) Decision { return Decision{Allow: false, Reason: r} }

func computeMAC(key, msg []byte) []byte {
	h := hmac.New(sha256.New, key)
	h.Write(msg)
	return h.Sum(nil)
}

// Verify runs the fail-fast Bounds -> Parse -> TimeWindow -> KeyLookup ->
// MAC -> Caveats pipeline against a presented token. now is the verifier's
// wall-clock reading (injected for determinism in tests). contentID is
// the content identifier the request targets, consulted only by
// ContentPrefix caveats; pass "" when not applicable.
func Verify(cfg Config, keys KeyDirectory, token []byte, now time.Time, reqCtx RequestContext, contentID string) Decision {
	cfg = cfg.withDefaults()

	// 1. Bounds
	if len(token) > cfg.MaxTokenBytes {
		return deny(string(kerrors.Bounds))
	}

	// 2. Parse
	msg, mac, err := Parse(token)
	if err != nil {
		return deny(string(kerrors.Malformed))
	}
	claims, err := DecodeClaims(msg)
	if err != nil {
		return deny(string(kerrors.Malformed))
	}
	if len(claims.Caveats) > cfg.MaxCaveats {
		return deny(string(kerrors.Bounds))
	}

	// 3. Time window
	nbf := claims.NotBefore
	if nbf == 0 {
		nbf = claims.IssuedAt
	}
	nowUnix := now.Unix()
	skewSec := int64(cfg.Skew / time.Second)
	if nowUnix+skewSec < nbf {
		return deny(string(kerrors.NotYetValid))
	}
	if nowUnix-skewSec > claims.ExpiresAt {
		return deny(string(kerrors.Expired))
	}

	// 4. Key lookup
	key, ok := keys.Lookup(claims.Kid)
	if !ok {
		return deny(string(kerrors.UnknownKid))
	}

	// 5. MAC, constant-time
	want := computeMAC(key, msg)
	if subtle.ConstantTimeCompare(want, mac) != 1 {
		return deny(string(kerrors.MacMismatch))
	}

	// 6. Caveats
	for _, c := range claims.Caveats {
		if ok, reason := c.Evaluate(reqCtx, contentID); !ok {
			return deny(string(reason))
		}
	}

	return allow()
}

// VerifyBatch verifies N tokens presumed to share a kid by running Verify
// on each token in turn, so each token short-circuits on its own first
// failure and does its own key lookup. The result vector preserves
// per-token outcomes in input order.
func VerifyBatch(cfg Config, keys KeyDirectory, tokens [][]byte, now time.Time, reqCtx RequestContext, contentID string) []Decision {
	out := make([]Decision, len(tokens))
	for i, tok := range tokens {
		out[i] = Verify(cfg, keys, tok, now, reqCtx, contentID)
	}
	return out
}
