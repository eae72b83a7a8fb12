package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	cfgpkg "github.com/KaramelBytes/dataloom-agent/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// resetFlags restores every flag to its default so state does not leak
// between invocations of the shared rootCmd.
func resetFlags(c *cobra.Command) {
	reset := func(f *pflag.Flag) {
		_ = f.Value.Set(f.DefValue)
		f.Changed = false
	}
	c.Flags().VisitAll(reset)
	c.PersistentFlags().VisitAll(reset)
	for _, sub := range c.Commands() {
		resetFlags(sub)
	}
}

// runCmd executes the root command with args and returns its stdout.
func runCmd(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execCmd(t, args...)
	if err != nil {
		t.Fatalf("command %v failed: %v", args, err)
	}
	return out
}

func execCmd(t *testing.T, args ...string) (string, error) {
	t.Helper()
	resetFlags(rootCmd)
	cfg = nil
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&bytes.Buffer{})
	rootCmd.SetArgs(args)
	defer func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
	}()
	err := rootCmd.Execute()
	return buf.String(), err
}

// isolate points HOME, the log dir and provider keys at test-local values.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("DATALOOM_LOG_DIR", filepath.Join(home, "logs"))
	t.Setenv("DATALOOM_API_KEY", "")
	t.Setenv("OPENAI_API_KEY", "")
	t.Setenv("PORT", "")
	return home
}

func writeTemp(t *testing.T, dir, name, content string) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return p
}

func TestCLI_ConfigSetAndShow(t *testing.T) {
	home := isolate(t)

	runCmd(t, "config", "set", "model", "gpt-4o")
	runCmd(t, "config", "set", "api_key", "sk-abcdef123456")
	runCmd(t, "config", "set", "provider", "OpenRouter")

	b, err := os.ReadFile(filepath.Join(home, ".dataloom", "config.yaml"))
	if err != nil {
		t.Fatalf("config not saved: %v", err)
	}
	if !strings.Contains(string(b), "model: gpt-4o") || !strings.Contains(string(b), "provider: openrouter") {
		t.Fatalf("unexpected config file:\n%s", b)
	}

	out := runCmd(t, "config", "show")
	for _, want := range []string{"provider: openrouter", "model: gpt-4o", "api_key: sk-****456"} {
		if !strings.Contains(out, want) {
			t.Fatalf("config show missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "sk-abcdef123456") {
		t.Fatalf("api key not masked:\n%s", out)
	}
}

func TestCLI_ConfigSetRejectsBadInput(t *testing.T) {
	isolate(t)
	cases := [][]string{
		{"config", "set", "no_such_key", "1"},
		{"config", "set", "provider", "skynet"},
		{"config", "set", "max_rows", "-5"},
		{"config", "set", "debug", "maybe"},
	}
	for _, args := range cases {
		if _, err := execCmd(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestCLI_ProfileGlob(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	writeTemp(t, dir, "a.csv", "x,y\n1,2\n2,4\n3,6\n")
	writeTemp(t, dir, "b.csv", "city,pop\nOslo,700\nBergen,290\n")

	out := runCmd(t, "profile", filepath.Join(dir, "*.csv"))
	if n := strings.Count(out, "[DATASET SUMMARY]"); n != 2 {
		t.Fatalf("expected 2 summaries, got %d:\n%s", n, out)
	}
	if !strings.Contains(out, "File: a.csv") || !strings.Contains(out, "File: b.csv") {
		t.Fatalf("missing file headers:\n%s", out)
	}

	dest := filepath.Join(dir, "summary.md")
	out = runCmd(t, "profile", filepath.Join(dir, "a.csv"), "--output", dest)
	if !strings.Contains(out, "Wrote 1 summaries") {
		t.Fatalf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(dest)
	if err != nil || !strings.Contains(string(b), "[SCHEMA]") {
		t.Fatalf("summary file: %v\n%s", err, b)
	}

	if _, err := execCmd(t, "profile", filepath.Join(dir, "missing-*.csv")); err == nil {
		t.Fatalf("expected error for unmatched glob")
	}
	writeTemp(t, dir, "c.xls", "legacy")
	if _, err := execCmd(t, "profile", filepath.Join(dir, "c.xls")); err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Fatalf("expected unsupported error, got %v", err)
	}
}

func TestCLI_AnalyzeWithoutAPIKey(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	data := writeTemp(t, dir, "sales.csv", "region,sales,cost\nnorth,10,4\nsouth,20,9\nnorth,30,13\neast,40,19\n")
	q := writeTemp(t, dir, "questions.txt", "Respond with a JSON object.\n1. Average: what is the average of the data?\n2. Slope: what is the regression slope of cost on sales?\n")
	dest := filepath.Join(dir, "answers.json")

	out := runCmd(t, "analyze", "-q", q, data, "--output", dest)
	if !strings.Contains(out, "Wrote answers") {
		t.Fatalf("unexpected output: %s", out)
	}
	b, err := os.ReadFile(dest)
	if err != nil {
		t.Fatalf("read answers: %v", err)
	}
	var got map[string]any
	if err := json.Unmarshal(b, &got); err != nil {
		t.Fatalf("answers not a JSON object: %v\n%s", err, b)
	}
	if s, _ := got["Average"].(string); !strings.Contains(s, "LLM unavailable") {
		t.Fatalf("Average: %#v", got["Average"])
	}
	stats, ok := got["Slope"].(map[string]any)
	if !ok {
		t.Fatalf("Slope: %#v", got["Slope"])
	}
	if _, ok := stats["regression_cost_sales"]; !ok {
		t.Fatalf("missing regression key: %v", stats)
	}
}

func TestCLI_AnalyzeArgumentErrors(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	q := writeTemp(t, dir, "questions.txt", "1. Anything?\n")
	cases := [][]string{
		{"analyze", filepath.Join(dir, "x.csv")},
		{"analyze", "-q", filepath.Join(dir, "nope.txt")},
		{"analyze", "-q", q, filepath.Join(dir, "missing.csv")},
		{"analyze", "-q", q, dir},
	}
	for _, args := range cases {
		if _, err := execCmd(t, args...); err == nil {
			t.Fatalf("expected error for %v", args)
		}
	}
}

func TestCLI_ModelsShowAndSync(t *testing.T) {
	isolate(t)
	out := runCmd(t, "models", "show")
	if !strings.Contains(out, "PROVIDER") || !strings.Contains(out, "gpt-4o-mini") {
		t.Fatalf("unexpected table:\n%s", out)
	}

	out = runCmd(t, "models", "show", "--json")
	var cat []map[string]any
	if err := json.Unmarshal([]byte(out), &cat); err != nil || len(cat) == 0 {
		t.Fatalf("models --json: %v\n%s", err, out)
	}

	file := writeTemp(t, t.TempDir(), "models.json", `{"acme/test-model": {"Provider": "openrouter", "ContextTokens": 4096, "InputPerK": 0.001, "OutputPerK": 0.002}}`)
	out = runCmd(t, "models", "sync", "--file", file)
	if !strings.Contains(out, "Merged 1 models") || !strings.Contains(out, "acme/test-model") {
		t.Fatalf("unexpected sync output:\n%s", out)
	}
	if _, err := execCmd(t, "models", "sync"); err == nil {
		t.Fatalf("expected error without --file")
	}
}

func TestBuildRuntime(t *testing.T) {
	base := func() *cfgpkg.Global {
		return &cfgpkg.Global{Provider: "openai", Model: "gpt-4o-mini", HTTPTimeoutSec: 5, OllamaHost: "http://127.0.0.1:11434"}
	}

	c := base()
	rt, model, err := buildRuntime(c)
	if err != nil || rt != nil || model != "gpt-4o-mini" {
		t.Fatalf("no key: rt=%v model=%q err=%v", rt, model, err)
	}

	c.APIKey = "sk-test"
	if rt, _, err := buildRuntime(c); err != nil || rt == nil {
		t.Fatalf("openai with key: rt=%v err=%v", rt, err)
	}

	c = base()
	c.Provider = "ollama"
	if rt, _, err := buildRuntime(c); err != nil || rt == nil {
		t.Fatalf("ollama without key should build: rt=%v err=%v", rt, err)
	}

	c = base()
	c.Provider = "nope"
	c.APIKey = "k"
	if _, _, err := buildRuntime(c); err == nil {
		t.Fatalf("expected unknown provider error")
	}
}
