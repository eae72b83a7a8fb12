package agent

import (
	"regexp"
	"strconv"
	"strings"
)

var (
	keyLine    = regexp.MustCompile("^\\s*[-*]\\s*`?([^`:]+?)`?\\s*:")
	leadingNum = regexp.MustCompile(`^\s*\d+[.)]\s*`)
)

// FormatResults shapes the answers the way the question set asks. A set
// asking for a "JSON object" gets an object; anything else gets an array in
// question order.
//
// Object keys come from a bulleted key list ("- `name`: type") when it has
// one entry per answer, otherwise from each question's first line, cut at
// the first colon.
func FormatResults(questionsText string, questions []Question, results []any) any {
	if OutputFormat(questionsText) != "json_object" {
		out := make([]any, len(results))
		copy(out, results)
		return out
	}
	keys := bulletKeys(questionsText)
	if len(keys) != len(results) {
		keys = make([]string, len(results))
		for i := range results {
			if i < len(questions) {
				keys[i] = questionKey(questions[i].Text)
			}
		}
	}
	out := make(map[string]any, len(results))
	for i, r := range results {
		k := keys[i]
		if k == "" {
			k = "question_" + strconv.Itoa(i+1)
		}
		out[k] = r
	}
	return out
}

func bulletKeys(text string) []string {
	var keys []string
	for _, line := range strings.Split(text, "\n") {
		if m := keyLine.FindStringSubmatch(line); m != nil {
			keys = append(keys, strings.TrimSpace(m[1]))
		}
	}
	return keys
}

func questionKey(text string) string {
	line, _, _ := strings.Cut(strings.TrimSpace(text), "\n")
	line = leadingNum.ReplaceAllString(line, "")
	if before, _, ok := strings.Cut(line, ":"); ok && strings.TrimSpace(before) != "" && !strings.HasSuffix(before, "http") && !strings.HasSuffix(before, "https") {
		line = before
	}
	return strings.TrimSpace(line)
}
