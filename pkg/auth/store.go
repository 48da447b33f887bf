package auth

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/99designs/keyring"
	"golang.org/x/oauth2"
)

// ErrNoToken is returned by a TokenStore that holds no token yet
var ErrNoToken = errors.New("no stored token; run with --login")

// TokenStore persists the OAuth2 token between runs
type TokenStore interface {
	Load() (*oauth2.Token, error)
	Save(token *oauth2.Token) error
	Delete() error
}

// FileTokenStore keeps the token as JSON in a 0600 file
type FileTokenStore struct {
	Path string
}

// NewFileTokenStore creates a file-backed token store
func NewFileTokenStore(path string) *FileTokenStore {
	return &FileTokenStore{Path: path}
}

// Load reads the cached token
func (s *FileTokenStore) Load() (*oauth2.Token, error) {
	f, err := os.Open(s.Path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, err
	}
	defer f.Close()

	token := &oauth2.Token{}
	if err := json.NewDecoder(f).Decode(token); err != nil {
		return nil, fmt.Errorf("could not parse token file: %w", err)
	}
	return token, nil
}

// Save writes the token
func (s *FileTokenStore) Save(token *oauth2.Token) error {
	if err := os.MkdirAll(filepath.Dir(s.Path), 0o700); err != nil {
		return err
	}

	f, err := os.OpenFile(s.Path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return fmt.Errorf("could not save OAuth token: %w", err)
	}
	defer f.Close()

	return json.NewEncoder(f).Encode(token)
}

// Delete removes the token file
func (s *FileTokenStore) Delete() error {
	if err := os.Remove(s.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

const keyringService = "crm-mailbox"

// KeyringTokenStore keeps the token in the system keyring
type KeyringTokenStore struct {
	ring keyring.Keyring
	key  string
}

// OpenKeyringTokenStore opens the system keyring for account. fileDir backs
// the encrypted-file fallback used when no native keyring is available.
func OpenKeyringTokenStore(account, fileDir string) (*KeyringTokenStore, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  fileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(keyringService + "-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return NewKeyringTokenStore(ring, account), nil
}

// NewKeyringTokenStore wraps an open keyring
func NewKeyringTokenStore(ring keyring.Keyring, account string) *KeyringTokenStore {
	if account == "" {
		account = "default"
	}
	return &KeyringTokenStore{ring: ring, key: "token:" + account}
}

// Load reads the token from the keyring
func (s *KeyringTokenStore) Load() (*oauth2.Token, error) {
	item, err := s.ring.Get(s.key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return nil, ErrNoToken
	}
	if err != nil {
		return nil, fmt.Errorf("getting credential %q: %w", s.key, err)
	}

	token := &oauth2.Token{}
	if err := json.Unmarshal(item.Data, token); err != nil {
		return nil, fmt.Errorf("could not parse stored token: %w", err)
	}
	return token, nil
}

// Save writes the token to the keyring
func (s *KeyringTokenStore) Save(token *oauth2.Token) error {
	data, err := json.Marshal(token)
	if err != nil {
		return err
	}
	if err := s.ring.Set(keyring.Item{Key: s.key, Data: data, Label: "CRM Mailbox token"}); err != nil {
		return fmt.Errorf("setting credential %q: %w", s.key, err)
	}
	return nil
}

// Delete removes the token from the keyring
func (s *KeyringTokenStore) Delete() error {
	if err := s.ring.Remove(s.key); err != nil && !errors.Is(err, keyring.ErrKeyNotFound) {
		return fmt.Errorf("deleting credential %q: %w", s.key, err)
	}
	return nil
}
