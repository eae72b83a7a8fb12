package cmd

import (
	"fmt"
	"strings"
	"time"

	"github.com/KaramelBytes/dataloom-agent/internal/agent"
	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	cfgpkg "github.com/KaramelBytes/dataloom-agent/internal/config"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/scrape"
)

// buildRuntime returns the LLM runtime for the configured provider. Hosted
// providers without an API key yield a nil runtime; the agent then answers
// with keyword planning and an "LLM unavailable" notice.
func buildRuntime(c *cfgpkg.Global) (ai.Runtime, string, error) {
	provider := strings.ToLower(strings.TrimSpace(c.Provider))
	if provider == "" {
		provider = ai.ProviderOpenAI
	}
	model := strings.TrimSpace(c.Model)
	if provider != ai.ProviderOllama && c.APIKey == "" {
		logger.L().Warn("llm.disabled", "provider", provider, "reason", "api key missing")
		return nil, model, nil
	}
	rc := ai.RuntimeConfig{
		HTTPTimeout: time.Duration(c.HTTPTimeoutSec) * time.Second,
		RetryMax:    c.RetryMaxAttempts,
		BaseDelay:   time.Duration(c.RetryBaseDelayMs) * time.Millisecond,
		MaxDelay:    time.Duration(c.RetryMaxDelayMs) * time.Millisecond,
		APIKey:      c.APIKey,
		BaseURL:     c.BaseURL,
		Host:        c.OllamaHost,
	}
	rt, ok := ai.GetRuntime(provider, rc)
	if !ok {
		return nil, "", fmt.Errorf("unknown provider %q (available: %s)", provider, strings.Join(ai.Providers(), ", "))
	}
	return rt, model, nil
}

// newAgent wires the runtime, scraper and data limits from config.
func newAgent(c *cfgpkg.Global) (*agent.Agent, error) {
	rt, model, err := buildRuntime(c)
	if err != nil {
		return nil, err
	}
	return agent.New(rt, scrape.New(nil, c.ScrapeUserAgent), agent.Options{
		Model:         model,
		MaxTokens:     c.MaxTokens,
		Temperature:   c.Temperature,
		MaxRows:       c.MaxRows,
		SampleRows:    c.SampleRows,
		ImageMaxBytes: c.ImageMaxBytes,
	}), nil
}

// setupLogging starts the file logger; stderr mirrors it when requested.
// Failures are reported and logging stays disabled.
func setupLogging(c *cfgpkg.Global, stderr bool) func() {
	cleanup, err := logger.Setup(logger.Config{Dir: c.LogDir, Debug: c.Debug, Stderr: stderr})
	if err != nil {
		fmt.Printf("⚠ Warning: logging disabled: %v\n", err)
		return func() {}
	}
	return func() { _ = cleanup() }
}
