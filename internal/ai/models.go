package ai

import (
	"encoding/json"
	"os"
	"sort"
	"sync"
)

// Model metadata and simple pricing helpers for the per-request cost log.
// Prices are illustrative and should be verified against provider docs.

type ModelInfo struct {
	Name          string
	Provider      string
	ContextTokens int     // approximate context window
	InputPerK     float64 // USD per 1K input tokens
	OutputPerK    float64 // USD per 1K output tokens
}

var (
	catalogMu sync.RWMutex
	models    = map[string]ModelInfo{
		"gpt-4o-mini": {
			Name:          "gpt-4o-mini",
			Provider:      ProviderOpenAI,
			ContextTokens: 128000,
			InputPerK:     0.00015,
			OutputPerK:    0.0006,
		},
		"gpt-4o": {
			Name:          "gpt-4o",
			Provider:      ProviderOpenAI,
			ContextTokens: 128000,
			InputPerK:     0.0025,
			OutputPerK:    0.01,
		},
		"gpt-4.1-mini": {
			Name:          "gpt-4.1-mini",
			Provider:      ProviderOpenAI,
			ContextTokens: 1000000,
			InputPerK:     0.0004,
			OutputPerK:    0.0016,
		},
		"openai/gpt-4o-mini": {
			Name:          "openai/gpt-4o-mini",
			Provider:      ProviderOpenRouter,
			ContextTokens: 128000,
			InputPerK:     0.00015,
			OutputPerK:    0.0006,
		},
		"anthropic/claude-3.5-sonnet": {
			Name:          "anthropic/claude-3.5-sonnet",
			Provider:      ProviderOpenRouter,
			ContextTokens: 200000,
			InputPerK:     0.003,
			OutputPerK:    0.015,
		},
		"deepseek/deepseek-r1:free": {
			Name:          "deepseek/deepseek-r1:free",
			Provider:      ProviderOpenRouter,
			ContextTokens: 128000,
		},
		"gemini-1.5-flash": {
			Name:          "gemini-1.5-flash",
			Provider:      ProviderGemini,
			ContextTokens: 1000000,
			InputPerK:     0.000075,
			OutputPerK:    0.0003,
		},
		"gemini-2.0-flash": {
			Name:          "gemini-2.0-flash",
			Provider:      ProviderGemini,
			ContextTokens: 1000000,
			InputPerK:     0.0001,
			OutputPerK:    0.0004,
		},
		// Common local (Ollama) tags
		"llama3.1:8b-instruct": {
			Name:          "llama3.1:8b-instruct",
			Provider:      ProviderOllama,
			ContextTokens: 8192,
		},
		"qwen2.5-coder:7b": {
			Name:          "qwen2.5-coder:7b",
			Provider:      ProviderOllama,
			ContextTokens: 32768,
		},
		"mistral-nemo:latest": {
			Name:          "mistral-nemo:latest",
			Provider:      ProviderOllama,
			ContextTokens: 8192,
		},
	}
)

// LookupModel returns ModelInfo and ok flag.
func LookupModel(name string) (ModelInfo, bool) {
	catalogMu.RLock()
	defer catalogMu.RUnlock()
	mi, ok := models[name]
	return mi, ok
}

// EstimateCostUSD estimates total cost in USD for given tokens using model pricing.
// If the model is unknown, returns 0 and ok=false.
func EstimateCostUSD(model string, promptTokens, completionTokens int) (float64, bool) {
	mi, ok := LookupModel(model)
	if !ok {
		return 0, false
	}
	inCost := (float64(promptTokens) / 1000.0) * mi.InputPerK
	outCost := (float64(completionTokens) / 1000.0) * mi.OutputPerK
	return inCost + outCost, true
}

// LoadCatalogFromJSON loads a JSON object map[string]ModelInfo from a file path.
// Example entry:
// { "gpt-4o-mini": {"Name":"gpt-4o-mini","ContextTokens":128000,"InputPerK":0.00015,"OutputPerK":0.0006} }
func LoadCatalogFromJSON(path string) (map[string]ModelInfo, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	var m map[string]ModelInfo
	if err := json.NewDecoder(f).Decode(&m); err != nil {
		return nil, err
	}
	return m, nil
}

// MergeCatalog merges/overrides entries in the in-memory catalog.
func MergeCatalog(m map[string]ModelInfo) {
	if m == nil {
		return
	}
	catalogMu.Lock()
	defer catalogMu.Unlock()
	for k, v := range m {
		if v.Name == "" {
			v.Name = k
		}
		models[k] = v
	}
}

// Catalog returns the catalog sorted by provider, then name.
func Catalog() []ModelInfo {
	catalogMu.RLock()
	out := make([]ModelInfo, 0, len(models))
	for _, v := range models {
		out = append(out, v)
	}
	catalogMu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if out[i].Provider != out[j].Provider {
			return out[i].Provider < out[j].Provider
		}
		return out[i].Name < out[j].Name
	})
	return out
}
