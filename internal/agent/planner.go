package agent

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
)

// ErrNoQuestions is returned for a question set with no text.
var ErrNoQuestions = errors.New("no questions found")

const planSystemPrompt = `You are a data analysis expert. Parse the given questions and classify each question by its analysis type.
Analysis types: web_scraping, data_analysis, statistical, visualization, general.
Return one object per numbered question, in order. Introductory text is not a question.
Return ONLY a JSON array with objects: {text, type, url, output_format, requires_visualization}.`

var jsonArray = regexp.MustCompile(`(?s)\[.*\]`)

// Planner turns a question set into a Plan.
type Planner struct {
	llm *llm
}

func NewPlanner(rt ai.Runtime, model string) *Planner {
	return &Planner{llm: &llm{rt: rt, model: model}}
}

// CreatePlan asks the model to classify the questions and falls back to
// keyword classification when the model is missing, fails, or replies with
// something that does not line up with the numbered questions.
func (p *Planner) CreatePlan(ctx context.Context, questions string, files []string) (*Plan, error) {
	if strings.TrimSpace(questions) == "" {
		return nil, ErrNoQuestions
	}
	log := logger.FromContext(ctx)
	basic := ParseQuestionsBasic(questions)
	if len(basic) == 0 {
		return nil, ErrNoQuestions
	}
	preamble, _ := SplitPreamble(questions)
	plan := &Plan{
		Questions: basic,
		DataFiles: append([]string(nil), files...),
		Preamble:  preamble,
		URL:       FirstURL(preamble),
	}

	if p.llm.available() {
		qs, err := p.classify(ctx, questions, basic)
		switch {
		case err == nil:
			plan.Questions = qs
		case ctx.Err() != nil:
			return nil, ctx.Err()
		default:
			log.Warn("plan.fallback", "error", err)
		}
	}

	plan.AnalysisTypes = make([]string, len(plan.Questions))
	for i, q := range plan.Questions {
		plan.AnalysisTypes[i] = q.Type
	}
	log.Info("plan.created", "questions", len(plan.Questions), "types", plan.AnalysisTypes, "files", len(files), "url", plan.URL)
	return plan, nil
}

func (p *Planner) classify(ctx context.Context, questions string, basic []Question) ([]Question, error) {
	reply, err := p.llm.complete(ctx, "plan", []ai.Message{
		{Role: "system", Content: planSystemPrompt},
		{Role: "user", Content: "Questions to analyze:\n\n" + questions},
	}, 0.1)
	if err != nil {
		return nil, err
	}
	qs, err := parsePlanReply(reply)
	if err != nil {
		return nil, err
	}
	if len(qs) != len(basic) {
		return nil, fmt.Errorf("model returned %d questions, expected %d", len(qs), len(basic))
	}
	// Text, links and format come from the question file; the model only classifies.
	for i := range qs {
		t := strings.ToLower(strings.TrimSpace(qs[i].Type))
		if !validType(t) {
			t = basic[i].Type
		}
		qs[i] = Question{
			Text:                  basic[i].Text,
			Type:                  t,
			URL:                   firstNonEmpty(basic[i].URL, FirstURL(qs[i].URL)),
			OutputFormat:          basic[i].OutputFormat,
			RequiresVisualization: qs[i].RequiresVisualization || t == TypeVisualization,
		}
	}
	return qs, nil
}

func parsePlanReply(reply string) ([]Question, error) {
	m := jsonArray.FindString(reply)
	if m == "" {
		return nil, errors.New("no JSON array in model reply")
	}
	var qs []Question
	if err := json.Unmarshal([]byte(m), &qs); err != nil {
		return nil, fmt.Errorf("decode plan: %w", err)
	}
	return qs, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
