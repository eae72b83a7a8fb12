package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/KaramelBytes/dataloom-agent/internal/scrape"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PORT", "")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.Provider != "openai" || c.Model != "gpt-4o-mini" {
		t.Fatalf("unexpected provider/model: %s %s", c.Provider, c.Model)
	}
	if c.ListenAddr != ":8000" {
		t.Fatalf("listen_addr = %q", c.ListenAddr)
	}
	if c.ImageMaxBytes != 100000 || c.MaxRows != 100000 {
		t.Fatalf("unexpected data defaults: %+v", c)
	}
	if c.ScrapeUserAgent != scrape.DefaultUserAgent || c.Temperature != 0.3 {
		t.Fatalf("scrape_user_agent=%q temperature=%v", c.ScrapeUserAgent, c.Temperature)
	}
}

func TestLoadEnvFallbacks(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-test")
	t.Setenv("PORT", "9090")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.APIKey != "sk-test" {
		t.Fatalf("api key fallback not applied: %q", c.APIKey)
	}
	if c.ListenAddr != ":9090" {
		t.Fatalf("PORT override not applied: %q", c.ListenAddr)
	}
}

func TestPrefixedEnvWins(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("OPENAI_API_KEY", "sk-fallback")
	t.Setenv("DATALOOM_API_KEY", "sk-primary")
	t.Setenv("DATALOOM_MODEL", "gpt-4o")

	c, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if c.APIKey != "sk-primary" || c.Model != "gpt-4o" {
		t.Fatalf("env precedence wrong: %+v", c)
	}
}

func TestSaveAndReloadYAMLAndTOML(t *testing.T) {
	t.Setenv("HOME", t.TempDir())
	t.Setenv("PORT", "")
	dir := t.TempDir()
	for _, name := range []string{"config.yaml", "config.toml"} {
		path := filepath.Join(dir, name)
		c := &Global{Provider: "ollama", Model: "llama3:latest", MaxRows: 42, ListenAddr: ":7000"}
		if err := Save(c, path); err != nil {
			t.Fatalf("Save %s: %v", name, err)
		}
		b, err := os.ReadFile(path)
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		if strings.HasSuffix(name, ".toml") && !strings.Contains(string(b), "model = 'llama3:latest'") && !strings.Contains(string(b), `model = "llama3:latest"`) {
			t.Fatalf("expected toml output, got:\n%s", b)
		}
		got, err := Load(path)
		if err != nil {
			t.Fatalf("Load %s: %v", name, err)
		}
		if got.Provider != "ollama" || got.Model != "llama3:latest" || got.MaxRows != 42 {
			t.Fatalf("%s: round trip mismatch: %+v", name, got)
		}
	}
}
