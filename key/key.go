package key

import (
	"errors"
	"fmt"

	"github.com/google/uuid"

	"github.com/tinfoilsh/hawkcall/hawk"
	"github.com/tinfoilsh/hawkcall/key/offline"
	"github.com/tinfoilsh/hawkcall/key/online"
)

var ErrCredentialRequired = errors.New("credential id required")

// Store resolves Hawk credential IDs to their shared secrets
type Store interface {
	Lookup(id string) (*hawk.Credential, error)
}

var (
	_ Store                 = &offline.Store{}
	_ Store                 = &online.Store{}
	_ hawk.CredentialLookup = Store(nil)
)

const DefaultKeyLength = 43

// Generate creates a credential with a random UUID and an alphanumeric key of
// keyLength characters
func Generate(keyLength int) (hawk.Credential, error) {
	if keyLength < 16 {
		return hawk.Credential{}, fmt.Errorf("key length %d is too short", keyLength)
	}
	k, err := hawk.RandomString(keyLength)
	if err != nil {
		return hawk.Credential{}, err
	}
	return hawk.Credential{ID: uuid.NewString(), Key: k}, nil
}
