package hawk

import (
	"crypto/hmac"
	"encoding/base64"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"
)

const DefaultSkew = 60 * time.Second

// CredentialLookup resolves a credential ID to its shared secret
type CredentialLookup interface {
	Lookup(id string) (*Credential, error)
}

// Verifier authenticates incoming requests carrying a Hawk header
type Verifier struct {
	Credentials CredentialLookup
	// Skew is the accepted distance between the request ts and Now
	Skew   time.Duration
	Now    func() time.Time
	Nonces *NonceCache
}

// Verify checks the Authorization header of r and returns the matching
// credential
func (v *Verifier) Verify(r *http.Request) (*Credential, error) {
	h, err := ParseHeader(r.Header.Get("Authorization"))
	if err != nil {
		return nil, err
	}

	cred, err := v.Credentials.Lookup(h.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrUnknownCredential, h.ID, err)
	}

	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	u := &url.URL{
		Scheme:   scheme,
		Host:     r.Host,
		Path:     r.URL.Path,
		RawPath:  r.URL.RawPath,
		RawQuery: r.URL.RawQuery,
	}
	a, err := NewArtifacts(r.Method, u, h.Timestamp, h.Nonce)
	if err != nil {
		return nil, err
	}

	got, err := base64.StdEncoding.DecodeString(h.MAC)
	if err != nil || !hmac.Equal(got, rawMAC(cred.Key, a)) {
		return nil, ErrBadMAC
	}

	now := time.Now()
	if v.Now != nil {
		now = v.Now()
	}
	skew := v.Skew
	if skew <= 0 {
		skew = DefaultSkew
	}
	if d := now.Sub(time.Unix(h.Timestamp, 0)); d > skew || d < -skew {
		return nil, fmt.Errorf("%w: off by %s", ErrStaleTimestamp, d.Truncate(time.Second))
	}

	if v.Nonces != nil && v.Nonces.Seen(h.ID+":"+h.Nonce+":"+strconv.FormatInt(h.Timestamp, 10), now) {
		return nil, ErrReplayedNonce
	}

	return cred, nil
}

// NonceCache remembers nonces for a TTL window
type NonceCache struct {
	ttl       time.Duration
	seen      map[string]time.Time
	lastPrune time.Time
	mu        sync.Mutex
}

func NewNonceCache(ttl time.Duration) *NonceCache {
	return &NonceCache{
		ttl:  ttl,
		seen: make(map[string]time.Time),
	}
}

// Seen records key and reports whether it was already present and unexpired
func (c *NonceCache) Seen(key string, now time.Time) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	if now.Sub(c.lastPrune) > c.ttl {
		for k, exp := range c.seen {
			if now.After(exp) {
				delete(c.seen, k)
			}
		}
		c.lastPrune = now
	}

	if exp, ok := c.seen[key]; ok && !now.After(exp) {
		return true
	}
	c.seen[key] = now.Add(c.ttl)
	return false
}
