package agent

import (
	"context"
	"errors"
	"testing"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
)

func TestCreatePlanUsesModelTypes(t *testing.T) {
	rt := &scriptedRuntime{reply: func(int, ai.GenerateRequest) (string, error) {
		return "Here you go:\n```json\n[" +
			`{"text":"How many?","type":"data_analysis","url":null,"output_format":"json","requires_visualization":false},` +
			`{"text":"earliest","type":"DATA_ANALYSIS","url":null,"output_format":"json","requires_visualization":false},` +
			`{"text":"corr","type":"statistical","url":null,"output_format":"json","requires_visualization":false},` +
			`{"text":"plot","type":"bogus","url":null,"output_format":"json","requires_visualization":true}` +
			"]\n```", nil
	}}
	plan, err := NewPlanner(rt, "gpt-4o-mini").CreatePlan(context.Background(), filmQuestions, []string{"a.csv"})
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	want := []string{TypeDataAnalysis, TypeDataAnalysis, TypeStatistical, TypeVisualization}
	for i, typ := range plan.AnalysisTypes {
		if typ != want[i] {
			t.Errorf("type %d = %s want %s", i, typ, want[i])
		}
	}
	if plan.Questions[0].Text != "How many $2 bn movies were released before 2000?" {
		t.Fatalf("question text should come from the file: %q", plan.Questions[0].Text)
	}
	if plan.URL == "" || plan.Questions[2].URL != plan.URL {
		t.Fatalf("preamble url not inherited: %+v", plan)
	}
	if got := rt.calls[0].Temperature; got != 0.1 {
		t.Fatalf("plan temperature = %v", got)
	}
}

func TestCreatePlanFallsBack(t *testing.T) {
	cases := map[string]func(int, ai.GenerateRequest) (string, error){
		"error":     func(int, ai.GenerateRequest) (string, error) { return "", errors.New("boom") },
		"no json":   func(int, ai.GenerateRequest) (string, error) { return "I cannot help", nil },
		"bad count": func(int, ai.GenerateRequest) (string, error) { return `[{"text":"x","type":"general"}]`, nil },
	}
	for name, reply := range cases {
		t.Run(name, func(t *testing.T) {
			plan, err := NewPlanner(&scriptedRuntime{reply: reply}, "m").CreatePlan(context.Background(), filmQuestions, nil)
			if err != nil {
				t.Fatalf("CreatePlan: %v", err)
			}
			if plan.AnalysisTypes[2] != TypeStatistical || plan.AnalysisTypes[3] != TypeVisualization {
				t.Fatalf("expected keyword classification, got %v", plan.AnalysisTypes)
			}
		})
	}
}

func TestCreatePlanWithoutRuntime(t *testing.T) {
	plan, err := NewPlanner(nil, "").CreatePlan(context.Background(), "1. Plot the data", nil)
	if err != nil {
		t.Fatalf("CreatePlan: %v", err)
	}
	if len(plan.Questions) != 1 || plan.Questions[0].Type != TypeVisualization {
		t.Fatalf("plan: %+v", plan)
	}
	if _, err := NewPlanner(nil, "").CreatePlan(context.Background(), "  \n", nil); !errors.Is(err, ErrNoQuestions) {
		t.Fatalf("expected ErrNoQuestions, got %v", err)
	}
}
