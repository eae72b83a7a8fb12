package agent

import (
	"reflect"
	"testing"
)

func TestFormatResultsArray(t *testing.T) {
	qs := ParseQuestionsBasic(filmQuestions)
	got := FormatResults(filmQuestions, qs, []any{1, "Titanic", 0.48, "data:image/png;base64,xx"})
	want := []any{1, "Titanic", 0.48, "data:image/png;base64,xx"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestFormatResultsObjectFromKeyList(t *testing.T) {
	text := "Analyze edges.csv and return a JSON object with keys:\n" +
		"- `edge_count`: number\n" +
		"- `highest_degree_node`: string\n\n" +
		"1. How many edges are in the network?\n" +
		"2. Which node has the highest degree?\n"
	qs := ParseQuestionsBasic(text)
	got := FormatResults(text, qs, []any{7, "Bob"})
	want := map[string]any{"edge_count": 7, "highest_degree_node": "Bob"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestFormatResultsObjectFromQuestions(t *testing.T) {
	text := "Return a JSON object.\n1. Total sales: sum of sales\n2. Which region is best?\n"
	qs := ParseQuestionsBasic(text)
	got := FormatResults(text, qs, []any{100.0, nil})
	want := map[string]any{"Total sales": 100.0, "Which region is best?": nil}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %#v", got)
	}
}

func TestQuestionKeyKeepsURLs(t *testing.T) {
	if got := questionKey("3. Fetch https://example.com/x"); got != "Fetch https://example.com/x" {
		t.Fatalf("got %q", got)
	}
}
