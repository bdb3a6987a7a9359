package discovery

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, home string, parts []string, content string) {
	t.Helper()
	path := filepath.Join(append([]string{home}, parts...)...)
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func TestScanFindsKnownHosts(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, []string{".cursor", "mcp.json"}, `{
		"mcpServers": {
			"weather": {"command": "weather-mcp", "args": ["--unit", "c"], "env": {"API_KEY": "x"}},
			"disabled-one": {"command": "nope", "disabled": true}
		}
	}`)

	s := NewScanner(home, nil)
	hosts := s.Scan()

	if len(hosts) != len(knownHosts) {
		t.Fatalf("got %d hosts, want %d (every known host reported)", len(hosts), len(knownHosts))
	}

	var cursor *HostConfig
	for i := range hosts {
		if hosts[i].Name == "cursor" {
			cursor = &hosts[i]
		} else if hosts[i].Exists {
			t.Fatalf("host %s reported as existing without a config", hosts[i].Name)
		}
	}
	if cursor == nil || !cursor.Exists || !cursor.Enabled {
		t.Fatalf("cursor host = %+v", cursor)
	}
	if len(cursor.Servers) != 1 {
		t.Fatalf("servers = %+v, disabled entry should be dropped", cursor.Servers)
	}
	srv := cursor.Servers["weather"]
	if srv.Command != "weather-mcp" || len(srv.Args) != 2 || srv.Env["API_KEY"] != "x" {
		t.Fatalf("server spec = %+v", srv)
	}
}

func TestScanToleratesBrokenConfig(t *testing.T) {
	home := t.TempDir()
	writeConfig(t, home, []string{".cursor", "mcp.json"}, `{not json at all`)

	hosts := NewScanner(home, nil).Scan()
	for _, h := range hosts {
		if h.Name == "cursor" {
			if !h.Exists {
				t.Fatal("broken config should still report Exists")
			}
			if h.Enabled || len(h.Servers) != 0 {
				t.Fatalf("broken config produced servers: %+v", h)
			}
		}
	}
}

func TestRunnableFilter(t *testing.T) {
	hosts := []HostConfig{
		{Name: "a", Exists: true, Enabled: true, Servers: map[string]ServerSpec{"s": {Command: "run-me"}}},
		{Name: "b", Exists: true, Enabled: true, Servers: map[string]ServerSpec{"s": {}}},
		{Name: "c", Exists: false, Enabled: true, Servers: map[string]ServerSpec{"s": {Command: "x"}}},
		{Name: "d", Exists: true, Enabled: false},
	}

	got := Runnable(hosts)
	if len(got) != 1 || got[0].Name != "a" {
		t.Fatalf("Runnable = %+v, want only host a", got)
	}
}
