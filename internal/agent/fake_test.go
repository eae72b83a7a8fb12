package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
)

// scriptedRuntime answers by inspecting the request.
type scriptedRuntime struct {
	mu    sync.Mutex
	calls []ai.GenerateRequest
	reply func(call int, req ai.GenerateRequest) (string, error)
}

func (s *scriptedRuntime) Generate(ctx context.Context, req ai.GenerateRequest) (*ai.GenerateResponse, error) {
	s.mu.Lock()
	s.calls = append(s.calls, req)
	n := len(s.calls)
	s.mu.Unlock()
	text, err := s.reply(n, req)
	if err != nil {
		return nil, err
	}
	return &ai.GenerateResponse{
		Choices: []ai.Choice{{Message: ai.Message{Role: "assistant", Content: text}}},
		Usage:   ai.Usage{PromptTokens: 100, CompletionTokens: 10, TotalTokens: 110},
	}, nil
}

func (s *scriptedRuntime) callsFor(step string) []ai.GenerateRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ai.GenerateRequest
	for _, c := range s.calls {
		if stepOf(c) == step {
			out = append(out, c)
		}
	}
	return out
}

func stepOf(req ai.GenerateRequest) string {
	sys := req.Messages[0].Content
	switch {
	case strings.Contains(sys, "Parse the given questions"):
		return "plan"
	case strings.Contains(sys, "Write SQL"):
		return "sql"
	}
	return "general"
}
