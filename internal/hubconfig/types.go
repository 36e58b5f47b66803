// Package hubconfig owns the declarative server map: loading it from disk
// or memory, validating its shape, diffing successive snapshots, and
// watching the backing file for changes.
package hubconfig

import "gopkg.in/yaml.v3"

// Kind distinguishes the two transport flavors a server config can select.
type Kind string

const (
	KindStdio  Kind = "stdio"
	KindRemote Kind = "remote"
)

// DevConfig enables dev-mode file-watch restarts for a stdio server.
type DevConfig struct {
	Enabled bool     `json:"enabled"`
	Watch   []string `json:"watch"`
	Cwd     string   `json:"cwd"`
}

// ServerConfig is one entry of the mcpServers map, before placeholder
// resolution.
type ServerConfig struct {
	Name        string             `json:"-"`
	Kind        Kind               `json:"-"`
	Command     string             `json:"command,omitempty"`
	Args        []string           `json:"args,omitempty"`
	Env         map[string]*string `json:"env,omitempty"`
	URL         string             `json:"url,omitempty"`
	Headers     map[string]string  `json:"headers,omitempty"`
	Disabled    bool               `json:"disabled,omitempty"`
	Dev         *DevConfig         `json:"dev,omitempty"`
	Description string             `json:"description,omitempty"`
}

// ResolvedServerConfig is a ServerConfig with every string value expanded
// by the placeholder resolver. Produced fresh on every connect attempt.
type ResolvedServerConfig struct {
	Name    string
	Kind    Kind
	Command string
	Args    []string
	Env     map[string]string
	URL     string
	Headers map[string]string
}

// DumpYAML renders the resolved config as YAML, for diagnostic logging and
// connect-failure troubleshooting: on-disk config is JSON, but a YAML dump
// reads better in a log line or a bug report than an escaped JSON blob.
func (r ResolvedServerConfig) DumpYAML() (string, error) {
	b, err := yaml.Marshal(r)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Diff describes the minimum set of changes between two configuration
// snapshots.
type Diff struct {
	Added     []string
	Removed   []string
	Modified  []string
	Unchanged []string
	Details   map[string]FieldDiff
}

// FieldDiff records which significant fields changed for one modified
// server, and their old/new values.
type FieldDiff struct {
	ModifiedFields []string
	OldValues      map[string]any
	NewValues      map[string]any
}

// IsSignificant reports whether the diff carries any add/remove/modify —
// an empty modified/added/removed set (only unchanged entries) means the
// change was insignificant.
func (d Diff) IsSignificant() bool {
	return len(d.Added) > 0 || len(d.Removed) > 0 || len(d.Modified) > 0
}
