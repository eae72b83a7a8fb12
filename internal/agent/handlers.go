package agent

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
	"github.com/KaramelBytes/dataloom-agent/internal/chart"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/query"
	"github.com/KaramelBytes/dataloom-agent/internal/scrape"
)

// fetched is a scraped page and the table registered from it.
type fetched struct {
	page  *scrape.Page
	table *analysis.Frame
}

// fetch downloads url once per session. The table best matching hint is
// registered as a frame and the page text is indexed for later prompts.
func (a *Agent) fetch(ctx context.Context, s *session, url, hint string) (*fetched, error) {
	if p, ok := s.pages[url]; ok {
		return &fetched{page: p, table: s.tableFor(url)}, nil
	}
	page, err := a.scraper.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	s.pages[url] = page
	log := logger.FromContext(ctx)
	if err := s.docs.Add(ctx, url, page.Text); err != nil {
		log.Warn("scrape.index_failed", "url", url, "error", err)
	}
	best := scrape.BestTable(page, hint)
	if best == nil {
		log.Info("scrape.no_table", "url", url, "title", page.Title)
		return &fetched{page: page}, nil
	}
	s.addFrame(best)
	s.scraped = append(s.scraped, scrapedTable{url: url, frame: best})
	log.Info("scrape.table_registered", "url", url, "table", best.Name, "rows", best.NumRows(), "cols", best.NumCols())
	return &fetched{page: page, table: best}, nil
}

func (a *Agent) webScraping(ctx context.Context, s *session, q Question) (any, error) {
	if q.URL == "" {
		return nil, nil
	}
	res, err := a.fetch(ctx, s, q.URL, q.Text)
	if err != nil {
		return nil, err
	}
	out := map[string]any{
		"source":  q.URL,
		"title":   res.page.Title,
		"rows":    0,
		"columns": []string{},
	}
	if res.table != nil {
		out["table"] = res.table.Name
		out["rows"] = res.table.NumRows()
		out["columns"] = res.table.Header
	}
	return out, nil
}

func (a *Agent) dataAnalysis(ctx context.Context, s *session, q Question) (any, error) {
	if len(s.frames) == 0 {
		return a.general(ctx, s, q)
	}
	if !a.llm.available() {
		return unavailable, nil
	}
	db, err := s.database(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tables: %w", err)
	}
	msgs := []ai.Message{
		{Role: "system", Content: sqlSystemPrompt(db.Schema(), a.summaries(s))},
		{Role: "user", Content: "Question: " + q.Text},
	}
	reply, err := a.llm.complete(ctx, "data_analysis", msgs, 0.05)
	if err != nil {
		return nil, err
	}
	log := logger.FromContext(ctx)
	stmt := query.ExtractSQL(reply)
	log.Debug("query.generated", "sql", stmt)
	res, err := db.Run(ctx, stmt)
	if err != nil && ctx.Err() == nil {
		log.Warn("query.retry", "error", err)
		msgs = append(msgs,
			ai.Message{Role: "assistant", Content: reply},
			ai.Message{Role: "user", Content: sqlRepairPrompt(stmt, err)},
		)
		reply, err = a.llm.complete(ctx, "data_analysis_repair", msgs, 0.05)
		if err != nil {
			return nil, err
		}
		stmt = query.ExtractSQL(reply)
		log.Debug("query.generated", "sql", stmt, "repair", true)
		res, err = db.Run(ctx, stmt)
	}
	if err != nil {
		return nil, fmt.Errorf("run query: %w", err)
	}
	if res.Truncated {
		log.Warn("query.truncated", "limit", query.MaxResultRows)
	}
	return res.Value(), nil
}

func (a *Agent) statistical(s *session, q Question) (any, error) {
	f := pickFrame(q.Text, s.frames)
	if f == nil {
		return nil, nil
	}
	return analysis.StatisticalAnalysis(q.Text, f), nil
}

func (a *Agent) visualization(s *session, q Question) (any, error) {
	f := pickFrame(q.Text, s.frames)
	if f == nil {
		return nil, nil
	}
	return chart.Render(q.Text, f, chart.Options{MaxBytes: a.opts.ImageMaxBytes})
}

func (a *Agent) general(ctx context.Context, s *session, q Question) (any, error) {
	if !a.llm.available() {
		return unavailable, nil
	}
	passages, err := s.docs.Context(ctx, q.Text, a.opts.ContextTokens)
	if err != nil {
		logger.FromContext(ctx).Warn("context.retrieval_failed", "error", err)
	}
	reply, err := a.llm.complete(ctx, "general", []ai.Message{
		{Role: "system", Content: generalSystemPrompt},
		{Role: "user", Content: generalUserPrompt(q.Text, s.files, a.summaries(s), passages)},
	}, a.opts.Temperature)
	if err != nil {
		return nil, err
	}
	return reply, nil
}

// summaries caches the dataset reports until a new frame is registered.
func (a *Agent) summaries(s *session) string {
	if s.summaryFrames != len(s.frames) {
		s.summary = summaries(s.frames, a.opts.SampleRows, a.opts.SummaryTokens)
		s.summaryFrames = len(s.frames)
	}
	return s.summary
}

// pickFrame returns the frame whose columns or name the question mentions
// most, preferring earlier frames on ties.
func pickFrame(question string, frames []*analysis.Frame) *analysis.Frame {
	var best *analysis.Frame
	bestScore := -1
	lower := strings.ToLower(question)
	for _, f := range frames {
		score := len(analysis.MentionedColumns(question, f.Header))
		stem := strings.ToLower(strings.TrimSuffix(f.Name, filepath.Ext(f.Name)))
		if stem != "" && strings.Contains(lower, stem) {
			score += 2
		}
		if score > bestScore {
			best, bestScore = f, score
		}
	}
	return best
}
