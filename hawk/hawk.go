// Package hawk computes and verifies the "Authorization: Hawk" header used by
// the supplier API. Only the header scheme is covered: no payload hash, no ext
// data and no bewits.
package hawk

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

const headerVersion = "hawk.1.header"

var (
	ErrMalformedTarget   = fmt.Errorf("target URI has no host")
	ErrInvalidHeader     = fmt.Errorf("invalid hawk header")
	ErrUnknownCredential = fmt.Errorf("unknown credential")
	ErrBadMAC            = fmt.Errorf("bad mac")
	ErrStaleTimestamp    = fmt.Errorf("stale timestamp")
	ErrReplayedNonce     = fmt.Errorf("replayed nonce")
)

// Credential is a shared secret identified by ID
type Credential struct {
	ID  string `yaml:"id"`
	Key string `yaml:"key"`
}

// String redacts the key so a credential can be logged safely
func (c Credential) String() string {
	return fmt.Sprintf("hawk credential %q", c.ID)
}

// Artifacts are the request attributes covered by the MAC
type Artifacts struct {
	Method    string
	Resource  string
	Host      string
	Port      int
	Timestamp int64
	Nonce     string
}

func defaultPort(scheme string) int {
	if strings.EqualFold(scheme, "https") {
		return 443
	}
	return 80
}

func effectivePort(u *url.URL) (int, error) {
	p := u.Port()
	if p == "" {
		return defaultPort(u.Scheme), nil
	}
	port, err := strconv.Atoi(p)
	if err != nil {
		return 0, fmt.Errorf("%w: bad port %q", ErrMalformedTarget, p)
	}
	return port, nil
}

// DisplayHost returns the host as it appears in logs: the hostname plus
// ":port" unless the port is 80.
func DisplayHost(u *url.URL) (string, error) {
	if u == nil || u.Hostname() == "" {
		return "", ErrMalformedTarget
	}
	port, err := effectivePort(u)
	if err != nil {
		return "", err
	}
	if port == 80 {
		return u.Hostname(), nil
	}
	return u.Hostname() + ":" + strconv.Itoa(port), nil
}

// NewArtifacts resolves the signed attributes of a request to u
func NewArtifacts(method string, u *url.URL, ts int64, nonce string) (*Artifacts, error) {
	if u == nil || u.Hostname() == "" {
		return nil, ErrMalformedTarget
	}
	port, err := effectivePort(u)
	if err != nil {
		return nil, err
	}

	return &Artifacts{
		Method:    method,
		Resource:  resource(u),
		Host:      strings.ToLower(u.Hostname()),
		Port:      port,
		Timestamp: ts,
		Nonce:     nonce,
	}, nil
}

func resource(u *url.URL) string {
	r := u.EscapedPath()
	if r == "" {
		r = "/"
	}
	if u.RawQuery != "" {
		r += "?" + u.RawQuery
	}
	return r
}
