package hawk

import (
	"crypto/rand"
	"fmt"
	"math/big"
)

const (
	alphanumeric = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	NonceLength  = 6
)

// NonceSource produces a fresh nonce per signed request
type NonceSource interface {
	Nonce() (string, error)
}

// NonceFunc adapts a function to a NonceSource
type NonceFunc func() (string, error)

func (f NonceFunc) Nonce() (string, error) {
	return f()
}

// DefaultNonceSource draws NonceLength characters from crypto/rand
var DefaultNonceSource NonceSource = NonceFunc(func() (string, error) {
	return RandomString(NonceLength)
})

// RandomString returns n characters drawn uniformly from [a-zA-Z0-9]
func RandomString(n int) (string, error) {
	limit := big.NewInt(int64(len(alphanumeric)))
	nonce := make([]byte, n)
	for i := range nonce {
		r, err := rand.Int(rand.Reader, limit)
		if err != nil {
			return "", fmt.Errorf("failed to generate random string: %w", err)
		}
		nonce[i] = alphanumeric[r.Int64()]
	}
	return string(nonce), nil
}
