package hubconfig

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"

	"github.com/tidwall/jsonc"

	"github.com/giantswarm/mcphub/internal/huberrors"
	"github.com/giantswarm/mcphub/pkg/logging"
)

// rawDocument is the top-level shape of the configuration file/record.
type rawDocument struct {
	MCPServers map[string]rawServer `json:"mcpServers"`
}

type rawServer struct {
	Command     []string           `json:"-"`
	CommandRaw  json.RawMessage    `json:"command,omitempty"`
	Args        []string           `json:"args,omitempty"`
	Env         map[string]*string `json:"env,omitempty"`
	URL         string             `json:"url,omitempty"`
	Headers     map[string]string  `json:"headers,omitempty"`
	Disabled    bool               `json:"disabled,omitempty"`
	Dev         *DevConfig         `json:"dev,omitempty"`
	Description string             `json:"description,omitempty"`
}

// Store loads, validates, and diffs the declarative server map, from
// either an in-memory record or a file on disk.
type Store struct {
	mu       sync.Mutex
	path     string // empty when the store is memory-backed
	snapshot map[string]ServerConfig
}

// NewFileStore creates a Store backed by the file at path.
func NewFileStore(path string) *Store {
	return &Store{path: path}
}

// NewMemoryStore creates a Store backed by an in-memory record. Records are
// supplied through LoadBytes, which validates and diffs each one; Load
// re-reports the last accepted record.
func NewMemoryStore() *Store {
	return &Store{}
}

// LoadResult is what Load returns: the accepted configuration and its diff
// against the previous snapshot.
type LoadResult struct {
	Config map[string]ServerConfig
	Diff   Diff
}

// Load reads and parses the source, validates every entry, computes the
// diff against the last accepted snapshot, and — if there are no
// validation errors — adopts the new snapshot.
func (s *Store) Load() (*LoadResult, error) {
	if s.path == "" {
		// Memory-backed: there is no source to re-read, so the last record
		// accepted by LoadBytes is returned, diffed against itself.
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.snapshot == nil {
			return nil, huberrors.New(huberrors.ConfigInvalid, "load", "").WithData("reason", "no record loaded into memory-backed store")
		}
		return &LoadResult{Config: s.snapshot, Diff: ComputeDiff(s.snapshot, s.snapshot)}, nil
	}
	data, err := s.read()
	if err != nil {
		return nil, huberrors.Wrap(huberrors.ConfigInvalid, "load", "", err)
	}
	return s.LoadBytes(data)
}

// LoadBytes parses raw config bytes (JSON, or JSON-with-comments per §6)
// directly; used by memory-backed stores and by tests.
func (s *Store) LoadBytes(data []byte) (*LoadResult, error) {
	stripped := jsonc.ToJSON(data)

	var doc rawDocument
	if err := json.Unmarshal(stripped, &doc); err != nil {
		return nil, huberrors.Wrap(huberrors.ConfigInvalid, "load", "", err)
	}
	if doc.MCPServers == nil {
		return nil, huberrors.New(huberrors.ConfigInvalid, "load", "").WithData("reason", "mcpServers must be a mapping")
	}

	cfg := make(map[string]ServerConfig, len(doc.MCPServers))
	var verrs ValidationErrors
	for name, raw := range doc.MCPServers {
		sc, err := toServerConfig(name, raw)
		if err != nil {
			if ve, ok := err.(ValidationErrors); ok {
				verrs = append(verrs, ve...)
				continue
			}
			return nil, err
		}
		cfg[name] = sc
	}
	if verrs.HasErrors() {
		return nil, huberrors.Wrap(huberrors.ConfigInvalid, "load", "", verrs)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	diff := ComputeDiff(s.snapshot, cfg)
	s.snapshot = cfg

	return &LoadResult{Config: cfg, Diff: diff}, nil
}

func toServerConfig(name string, raw rawServer) (ServerConfig, error) {
	sc := ServerConfig{
		Name:        name,
		Args:        raw.Args,
		Env:         raw.Env,
		URL:         raw.URL,
		Headers:     raw.Headers,
		Disabled:    raw.Disabled,
		Dev:         raw.Dev,
		Description: raw.Description,
	}

	if len(raw.CommandRaw) > 0 {
		var single string
		if err := json.Unmarshal(raw.CommandRaw, &single); err == nil {
			sc.Command = single
		} else {
			var multi []string
			if err := json.Unmarshal(raw.CommandRaw, &multi); err != nil {
				return ServerConfig{}, ValidationErrors{{Server: name, Field: "command", Message: "must be a string or an array of strings"}}
			}
			if len(multi) > 0 {
				sc.Command = multi[0]
				sc.Args = append(multi[1:], sc.Args...)
			}
		}
	}

	if errs := validate(name, &sc); errs.HasErrors() {
		return ServerConfig{}, errs
	}
	return sc, nil
}

func (s *Store) read() ([]byte, error) {
	if s.path == "" {
		return nil, fmt.Errorf("store is memory-backed, use LoadBytes")
	}
	data, err := os.ReadFile(s.path)
	if err != nil {
		return nil, err
	}
	return data, nil
}

// Path returns the file path backing this store, or "" if memory-backed.
func (s *Store) Path() string { return s.path }

// LogUnhandledError is a small helper the watcher uses so a broken parse
// on one poll doesn't take down the watch loop.
func LogUnhandledError(subsystem string, err error) {
	logging.Warn(subsystem, "configuration error: %v", err)
}
