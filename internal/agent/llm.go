package agent

import (
	"context"
	"errors"
	"time"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

// ErrNoRuntime is returned when no LLM runtime is configured.
var ErrNoRuntime = errors.New("no LLM runtime configured")

// unavailable is the answer given to model-backed questions without a runtime.
const unavailable = "LLM unavailable (API key missing)."

// llm wraps a runtime with usage and cost logging.
type llm struct {
	rt        ai.Runtime
	model     string
	maxTokens int
}

func (l *llm) available() bool { return l != nil && l.rt != nil }

// complete sends msgs and returns the trimmed reply text.
func (l *llm) complete(ctx context.Context, step string, msgs []ai.Message, temperature float64) (string, error) {
	if !l.available() {
		return "", ErrNoRuntime
	}
	log := logger.FromContext(ctx)
	estimate := 0
	for _, m := range msgs {
		estimate += utils.CountTokens(m.Content)
	}
	log.Debug("llm.request", "step", step, "model", l.model, "prompt_tokens_est", estimate)

	start := time.Now()
	resp, err := l.rt.Generate(ctx, ai.GenerateRequest{
		Model:       l.model,
		Messages:    msgs,
		MaxTokens:   l.maxTokens,
		Temperature: temperature,
	})
	if err != nil {
		log.Error("llm.failed", "step", step, "model", l.model, "kind", ai.FailureKind(err), "error", err, "elapsed_ms", time.Since(start).Milliseconds())
		return "", err
	}

	prompt, completion := resp.Usage.PromptTokens, resp.Usage.CompletionTokens
	if prompt == 0 {
		prompt = estimate
	}
	if completion == 0 {
		completion = utils.CountTokens(resp.Text())
	}
	attrs := []any{
		"step", step,
		"model", l.model,
		"prompt_tokens", prompt,
		"completion_tokens", completion,
		"elapsed_ms", time.Since(start).Milliseconds(),
	}
	if cost, ok := ai.EstimateCostUSD(l.model, prompt, completion); ok {
		attrs = append(attrs, "cost_usd", cost)
	}
	if resp.RequestID != "" {
		attrs = append(attrs, "provider_request_id", resp.RequestID)
	}
	log.Info("llm.completed", attrs...)
	return resp.Text(), nil
}
