package online

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/tinfoilsh/hawkcall/hawk"
)

var ErrNotFound = fmt.Errorf("credential not found")

type credentialResponse struct {
	ID  string `json:"id"`
	Key string `json:"key"`
}

type cached struct {
	cred    hawk.Credential
	expires time.Time
}

// Store resolves credentials against a remote key service at
// GET {server}/{id}, caching answers for ttl
type Store struct {
	server string
	ttl    time.Duration
	client *http.Client

	cache map[string]cached
	mu    sync.Mutex
}

func NewStore(server string, ttl time.Duration) (*Store, error) {
	if _, err := url.Parse(server); err != nil {
		return nil, fmt.Errorf("invalid key server url: %w", err)
	}
	return &Store{
		server: strings.TrimRight(server, "/"),
		ttl:    ttl,
		client: &http.Client{Timeout: 10 * time.Second},
		cache:  make(map[string]cached),
	}, nil
}

func (s *Store) Lookup(id string) (*hawk.Credential, error) {
	s.mu.Lock()
	if c, ok := s.cache[id]; ok && time.Now().Before(c.expires) {
		s.mu.Unlock()
		cred := c.cred
		return &cred, nil
	}
	s.mu.Unlock()

	resp, err := s.client.Get(s.server + "/" + url.PathEscape(id))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("failed to read response body: %w", err)
		}
		return nil, fmt.Errorf("failed to look up credential: %s", string(body))
	}

	var r credentialResponse
	if err := json.NewDecoder(resp.Body).Decode(&r); err != nil {
		return nil, fmt.Errorf("failed to decode credential: %w", err)
	}
	cred := hawk.Credential{ID: r.ID, Key: r.Key}
	if cred.ID != id || cred.Key == "" {
		return nil, fmt.Errorf("key server returned a mismatched credential for %s", id)
	}

	log.Debugf("Caching credential %s for %s", id, s.ttl)
	s.mu.Lock()
	s.cache[id] = cached{cred: cred, expires: time.Now().Add(s.ttl)}
	s.mu.Unlock()

	return &cred, nil
}
