package oauthprovider

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/giantswarm/mcphub/pkg/logging"
)

// DefaultStateDir is where per-server OAuth state lives, relative to the
// user's home directory, mirroring the XDG layout of other hub-owned state.
const DefaultStateDir = ".config/mcphub/oauth"

// record is the on-disk shape for one server's persisted OAuth state:
// its registered client and its most recent token, if any.
type record struct {
	Issuer       string    `json:"issuer,omitempty"`
	Client       *ClientCredentials `json:"client,omitempty"`
	AccessToken  string    `json:"access_token,omitempty"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	Expiry       time.Time `json:"expiry,omitempty"`
}

// Store persists dynamic client registrations and tokens in one JSON file
// per server name under a single directory, each file owner-read/write
// only. It is the
// single point of serialization for a given server's OAuth state (§4.4:
// "OAuth token storage is serialized per server name").
type Store struct {
	dir string

	mu      sync.Mutex
	locks   map[string]*sync.Mutex
	locksMu sync.Mutex
}

// NewStore creates a Store rooted at dir. If dir is empty, it defaults to
// ~/.config/mcphub/oauth.
func NewStore(dir string) (*Store, error) {
	if dir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("resolve oauth state directory: %w", err)
		}
		dir = filepath.Join(home, DefaultStateDir)
	}
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("create oauth state directory: %w", err)
	}
	return &Store{dir: dir, locks: make(map[string]*sync.Mutex)}, nil
}

func (s *Store) serverLock(server string) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[server]
	if !ok {
		l = &sync.Mutex{}
		s.locks[server] = l
	}
	return l
}

func (s *Store) path(server string) string {
	return filepath.Join(s.dir, server+".json")
}

func (s *Store) load(server string) (*record, error) {
	data, err := os.ReadFile(s.path(server))
	if os.IsNotExist(err) {
		return &record{}, nil
	}
	if err != nil {
		return nil, err
	}
	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("decode oauth record for %s: %w", server, err)
	}
	return &rec, nil
}

func (s *Store) save(server string, rec *record) error {
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(s.path(server), data, 0600)
}

// SaveClient persists the dynamically registered client for server.
func (s *Store) SaveClient(server, issuer string, creds *ClientCredentials) error {
	lock := s.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(server)
	if err != nil {
		return err
	}
	rec.Issuer = issuer
	rec.Client = creds
	if err := s.save(server, rec); err != nil {
		return err
	}
	logging.Info("OAuthProvider", "registered client for server %s at %s", server, issuer)
	return nil
}

// LoadClient returns the previously registered client for server, or nil if
// none has been registered yet.
func (s *Store) LoadClient(server string) (*ClientCredentials, string, error) {
	lock := s.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(server)
	if err != nil {
		return nil, "", err
	}
	return rec.Client, rec.Issuer, nil
}

// SaveToken persists a token for server. Token values never appear in logs.
func (s *Store) SaveToken(server string, tok Token) error {
	lock := s.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(server)
	if err != nil {
		return err
	}
	rec.AccessToken = tok.AccessToken
	rec.RefreshToken = tok.RefreshToken
	rec.TokenType = tok.TokenType
	rec.Expiry = tok.Expiry
	if err := s.save(server, rec); err != nil {
		return err
	}
	logging.Info("OAuthProvider", "stored token for server %s, expires %s", server, tok.Expiry.Format(time.RFC3339))
	return nil
}

// LoadToken returns the stored token for server, or the zero Token if none
// exists.
func (s *Store) LoadToken(server string) (Token, error) {
	lock := s.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(server)
	if err != nil {
		return Token{}, err
	}
	if rec.AccessToken == "" {
		return Token{}, nil
	}
	return Token{
		AccessToken:  rec.AccessToken,
		RefreshToken: rec.RefreshToken,
		TokenType:    rec.TokenType,
		Expiry:       rec.Expiry,
	}, nil
}

// DeleteToken removes the stored token for server, leaving any registered
// client in place.
func (s *Store) DeleteToken(server string) error {
	lock := s.serverLock(server)
	lock.Lock()
	defer lock.Unlock()

	rec, err := s.load(server)
	if err != nil {
		return err
	}
	rec.AccessToken = ""
	rec.RefreshToken = ""
	rec.Expiry = time.Time{}
	return s.save(server, rec)
}
