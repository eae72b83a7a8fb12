package agent

import (
	"fmt"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
	"github.com/KaramelBytes/dataloom-agent/internal/utils"
)

const sqlRules = `Rules:
1. Write exactly one SQLite SELECT statement (a WITH clause is allowed).
2. Use only the tables and columns listed. Quote identifiers with double quotes.
3. REAL columns hold parsed numbers. TEXT columns hold the raw cell text.
4. Return only what the question asks for: a single value as one row and one column, a list as one column.
5. Reply with the SQL only.`

func sqlSystemPrompt(schema, summaries string) string {
	var b strings.Builder
	b.WriteString("You are a data analyst. Write SQL that answers the question using the tables below.\n\n")
	b.WriteString("[TABLES]\n")
	b.WriteString(schema)
	if summaries != "" {
		b.WriteString("\n")
		b.WriteString(summaries)
		b.WriteString("\n")
	}
	b.WriteString("\n")
	b.WriteString(sqlRules)
	return b.String()
}

func sqlRepairPrompt(sql string, err error) string {
	return fmt.Sprintf("The query\n%s\nfailed with: %v\nReply with a corrected SQL statement only.", sql, err)
}

const generalSystemPrompt = "You are a data analysis expert. Provide a concise answer."

func generalUserPrompt(question string, files []string, tables, context string) string {
	var b strings.Builder
	b.WriteString("Question: ")
	b.WriteString(question)
	b.WriteString("\nAvailable files: ")
	if len(files) == 0 {
		b.WriteString("(none)")
	} else {
		b.WriteString(strings.Join(files, ", "))
	}
	if tables != "" {
		b.WriteString("\n\n")
		b.WriteString(tables)
	}
	if context != "" {
		b.WriteString("\n\n[CONTEXT]\n")
		b.WriteString(context)
	}
	return b.String()
}

// summaries renders dataset reports for prompts, sharing budget tokens
// across frames.
func summaries(frames []*analysis.Frame, sampleRows, budget int) string {
	if len(frames) == 0 {
		return ""
	}
	per := budget / len(frames)
	opt := analysis.DefaultOptions()
	opt.SampleRows = sampleRows
	parts := make([]string, 0, len(frames))
	for _, f := range frames {
		md := analysis.Profile(f, opt).Markdown()
		if per > 0 {
			md = utils.TruncateWithNote(md, per)
		}
		parts = append(parts, md)
	}
	return strings.Join(parts, "\n\n")
}
