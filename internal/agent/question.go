package agent

import (
	"regexp"
	"strings"
)

// Question types.
const (
	TypeWebScraping   = "web_scraping"
	TypeDataAnalysis  = "data_analysis"
	TypeStatistical   = "statistical"
	TypeVisualization = "visualization"
	TypeGeneral       = "general"
)

// Question is one numbered item of a question set.
type Question struct {
	Text                  string `json:"text"`
	Type                  string `json:"type"`
	URL                   string `json:"url,omitempty"`
	OutputFormat          string `json:"output_format,omitempty"`
	RequiresVisualization bool   `json:"requires_visualization"`
}

// Plan is the ordered work for one request.
type Plan struct {
	Questions     []Question `json:"questions"`
	DataFiles     []string   `json:"data_files"`
	AnalysisTypes []string   `json:"analysis_types"`
	// Preamble is the text before the first numbered question.
	Preamble string `json:"preamble,omitempty"`
	// URL is the first link in the preamble.
	URL string `json:"url,omitempty"`
}

var (
	numbered = regexp.MustCompile(`\n\s*\d+\.`)
	urlRe    = regexp.MustCompile(`https?://[^\s<>"'\)\]]+`)
)

var vizWords = []string{"plot", "chart", "scatter"}

// SplitPreamble separates the introduction from the numbered items. Text
// without numbered items is a single item and has no preamble.
func SplitPreamble(text string) (preamble string, items []string) {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	parts := numbered.Split("\n"+text, -1)
	if len(parts) == 1 {
		if t := strings.TrimSpace(text); t != "" {
			items = append(items, t)
		}
		return "", items
	}
	preamble = strings.TrimSpace(parts[0])
	for _, p := range parts[1:] {
		if t := strings.TrimSpace(p); t != "" {
			items = append(items, t)
		}
	}
	return preamble, items
}

// ParseQuestionsBasic classifies questions by keyword without a model.
// Questions without a link inherit the preamble's.
func ParseQuestionsBasic(text string) []Question {
	preamble, items := SplitPreamble(text)
	inherited := FirstURL(preamble)
	format := OutputFormat(text)
	out := make([]Question, 0, len(items))
	for _, item := range items {
		q := Question{
			Text:                  item,
			Type:                  Classify(item),
			URL:                   FirstURL(item),
			OutputFormat:          format,
			RequiresVisualization: containsAny(strings.ToLower(item), vizWords...),
		}
		if q.URL == "" {
			q.URL = inherited
		}
		out = append(out, q)
	}
	return out
}

// Classify picks a question type from keywords, checked in priority order.
func Classify(text string) string {
	lower := strings.ToLower(text)
	switch {
	case containsAny(lower, "scrape", "http", "wikipedia"):
		return TypeWebScraping
	case containsAny(lower, vizWords...):
		return TypeVisualization
	case containsAny(lower, "correlation", "regression", "slope"):
		return TypeStatistical
	case strings.Contains(lower, "data"):
		return TypeDataAnalysis
	}
	return TypeGeneral
}

// FirstURL returns the first http(s) link in text with trailing punctuation removed.
func FirstURL(text string) string {
	return strings.TrimRight(urlRe.FindString(text), ".,;:!?")
}

// OutputFormat reads the requested answer shape from the question set.
func OutputFormat(text string) string {
	lower := strings.ToLower(text)
	switch {
	case strings.Contains(lower, "json object"):
		return "json_object"
	case strings.Contains(lower, "json array"):
		return "json_array"
	}
	return "json"
}

func validType(t string) bool {
	switch t {
	case TypeWebScraping, TypeDataAnalysis, TypeStatistical, TypeVisualization, TypeGeneral:
		return true
	}
	return false
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
