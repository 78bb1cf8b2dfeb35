package hawk

import (
	"net/url"
)

type Signer struct {
	nonces NonceSource
}

// NewSigner returns a signer drawing nonces from src, or from
// DefaultNonceSource when src is nil
func NewSigner(src NonceSource) *Signer {
	if src == nil {
		src = DefaultNonceSource
	}
	return &Signer{nonces: src}
}

// Header computes the Authorization header for one request attempt. ts must
// already be skew corrected. A nonce is generated when none is given.
func (s *Signer) Header(method string, u *url.URL, cred Credential, ts int64, nonce string) (string, error) {
	if nonce == "" {
		src := s.nonces
		if src == nil {
			src = DefaultNonceSource
		}
		n, err := src.Nonce()
		if err != nil {
			return "", err
		}
		nonce = n
	}

	a, err := NewArtifacts(method, u, ts, nonce)
	if err != nil {
		return "", err
	}

	return FormatHeader(cred.ID, a, MAC(cred.Key, a)), nil
}
