// Package discovery locates AI-host configuration files that declare MCP
// servers and turns them into source descriptors the interceptor can spawn.
// The core pipeline never scans the filesystem itself; it only consumes the
// descriptors produced here.
package discovery

import (
	"encoding/json"
	"os"
	"path/filepath"

	"go.uber.org/zap"
)

// ServerSpec describes one spawnable MCP server from a host config.
type ServerSpec struct {
	Command string            `json:"command"`
	Args    []string          `json:"args,omitempty"`
	Env     map[string]string `json:"env,omitempty"`
}

// HostConfig is one discovered AI-host configuration file.
type HostConfig struct {
	Name       string                `json:"name"`
	Type       string                `json:"type"`
	ConfigPath string                `json:"config_path"`
	Exists     bool                  `json:"exists"`
	Enabled    bool                  `json:"enabled"`
	Servers    map[string]ServerSpec `json:"servers,omitempty"`
}

// knownHost is one well-known config location, relative to the home dir.
type knownHost struct {
	name string
	typ  string
	path []string
}

// Well-known AI-host config locations. Each is a JSON file with an
// mcpServers map.
var knownHosts = []knownHost{
	{"claude-desktop", "desktop", []string{"Library", "Application Support", "Claude", "claude_desktop_config.json"}},
	{"claude-code", "cli", []string{".claude.json"}},
	{"cursor", "editor", []string{".cursor", "mcp.json"}},
	{"windsurf", "editor", []string{".codeium", "windsurf", "mcp_config.json"}},
	{"vscode", "editor", []string{".vscode", "mcp.json"}},
}

// hostConfigFile is the on-disk shape shared by the known hosts.
type hostConfigFile struct {
	MCPServers map[string]struct {
		Command  string            `json:"command"`
		Args     []string          `json:"args"`
		Env      map[string]string `json:"env"`
		Disabled bool              `json:"disabled"`
	} `json:"mcpServers"`
}

// Scanner discovers host configurations under a home directory.
type Scanner struct {
	home string
	log  *zap.Logger
}

// NewScanner creates a scanner rooted at home. An empty home uses the
// current user's home directory.
func NewScanner(home string, log *zap.Logger) *Scanner {
	if log == nil {
		log = zap.NewNop()
	}
	if home == "" {
		home, _ = os.UserHomeDir()
	}
	return &Scanner{home: home, log: log}
}

// Scan reads every known host config location. Every known host appears in
// the result; hosts whose file is missing or unreadable come back with
// Exists false and no servers. Scan itself never fails.
func (s *Scanner) Scan() []HostConfig {
	hosts := make([]HostConfig, 0, len(knownHosts))
	for _, kh := range knownHosts {
		path := filepath.Join(append([]string{s.home}, kh.path...)...)
		host := HostConfig{
			Name:       kh.name,
			Type:       kh.typ,
			ConfigPath: path,
		}

		data, err := os.ReadFile(path)
		if err != nil {
			hosts = append(hosts, host)
			continue
		}
		host.Exists = true

		var file hostConfigFile
		if err := json.Unmarshal(data, &file); err != nil {
			s.log.Warn("Unparseable host config",
				zap.String("host", kh.name),
				zap.String("path", path),
				zap.Error(err))
			hosts = append(hosts, host)
			continue
		}

		host.Enabled = true
		host.Servers = make(map[string]ServerSpec, len(file.MCPServers))
		for name, srv := range file.MCPServers {
			if srv.Disabled {
				continue
			}
			host.Servers[name] = ServerSpec{
				Command: srv.Command,
				Args:    srv.Args,
				Env:     srv.Env,
			}
		}
		hosts = append(hosts, host)
	}
	return hosts
}

// Runnable filters the scan result down to hosts the interceptor can act
// on: existing, enabled, with at least one server carrying a command.
func Runnable(hosts []HostConfig) []HostConfig {
	out := make([]HostConfig, 0, len(hosts))
	for _, h := range hosts {
		if !h.Exists || !h.Enabled {
			continue
		}
		for _, srv := range h.Servers {
			if srv.Command != "" {
				out = append(out, h)
				break
			}
		}
	}
	return out
}
