package offline

import (
	"fmt"
	"os"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/tinfoilsh/hawkcall/hawk"
)

var (
	ErrNotFound    = fmt.Errorf("credential not found")
	ErrDuplicateID = fmt.Errorf("duplicate credential id")
	ErrEmptyKey    = fmt.Errorf("credential key is empty")
)

type storeFile struct {
	Credentials []hawk.Credential `yaml:"credentials"`
}

// Store holds credentials in memory, optionally backed by a YAML file
type Store struct {
	creds map[string]hawk.Credential
	mu    sync.RWMutex
}

func NewStore(creds ...hawk.Credential) (*Store, error) {
	s := &Store{creds: make(map[string]hawk.Credential)}
	for _, c := range creds {
		if err := s.Add(c); err != nil {
			return nil, err
		}
	}
	return s, nil
}

// Load reads a store written by Save
func Load(filename string) (*Store, error) {
	b, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read credential file: %w", err)
	}

	var f storeFile
	if err := yaml.Unmarshal(b, &f); err != nil {
		return nil, fmt.Errorf("failed to decode credential file: %w", err)
	}
	return NewStore(f.Credentials...)
}

func (s *Store) Add(c hawk.Credential) error {
	if c.Key == "" {
		return fmt.Errorf("%w: %s", ErrEmptyKey, c.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.creds[c.ID]; ok {
		return fmt.Errorf("%w: %s", ErrDuplicateID, c.ID)
	}
	s.creds[c.ID] = c
	return nil
}

func (s *Store) Lookup(id string) (*hawk.Credential, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.creds[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.creds)
}

// Save writes the store as YAML with owner-only permissions
func (s *Store) Save(filename string) error {
	s.mu.RLock()
	f := storeFile{Credentials: make([]hawk.Credential, 0, len(s.creds))}
	for _, c := range s.creds {
		f.Credentials = append(f.Credentials, c)
	}
	s.mu.RUnlock()
	sort.Slice(f.Credentials, func(i, j int) bool {
		return f.Credentials[i].ID < f.Credentials[j].ID
	})

	b, err := yaml.Marshal(&f)
	if err != nil {
		return fmt.Errorf("failed to encode credentials: %w", err)
	}
	if err := os.WriteFile(filename, b, 0600); err != nil {
		return fmt.Errorf("failed to write credential file: %w", err)
	}
	return nil
}
