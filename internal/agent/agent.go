// Package agent answers a question set against uploaded files and web pages.
package agent

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/KaramelBytes/dataloom-agent/internal/ai"
	"github.com/KaramelBytes/dataloom-agent/internal/analysis"
	"github.com/KaramelBytes/dataloom-agent/internal/chart"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/parser"
	"github.com/KaramelBytes/dataloom-agent/internal/query"
	"github.com/KaramelBytes/dataloom-agent/internal/retrieval"
	"github.com/KaramelBytes/dataloom-agent/internal/scrape"
)

// Options tune one Agent.
type Options struct {
	Model     string
	MaxTokens int
	// Temperature applies to free-form answers; planning and SQL run cooler.
	Temperature float64
	// MaxRows caps rows loaded per data file; 0 means unlimited.
	MaxRows    int
	SampleRows int
	// ImageMaxBytes bounds chart data URIs.
	ImageMaxBytes int
	// SummaryTokens is the prompt budget for dataset summaries.
	SummaryTokens int
	// ContextTokens is the prompt budget for retrieved document passages.
	ContextTokens int
}

func (o Options) withDefaults() Options {
	if o.SampleRows <= 0 {
		o.SampleRows = 5
	}
	if o.Temperature <= 0 {
		o.Temperature = 0.3
	}
	if o.ImageMaxBytes <= 0 {
		o.ImageMaxBytes = chart.DefaultMaxBytes
	}
	if o.SummaryTokens <= 0 {
		o.SummaryTokens = 3000
	}
	if o.ContextTokens <= 0 {
		o.ContextTokens = 1500
	}
	return o
}

// Agent runs question sets. It holds no per-request state and is safe for
// concurrent use.
type Agent struct {
	llm     *llm
	planner *Planner
	scraper *scrape.Scraper
	opts    Options
}

// New builds an Agent. rt may be nil, in which case model-backed steps
// answer with a notice and planning uses keyword classification.
func New(rt ai.Runtime, scraper *scrape.Scraper, opts Options) *Agent {
	if scraper == nil {
		scraper = scrape.New(nil, "")
	}
	opts = opts.withDefaults()
	return &Agent{
		llm:     &llm{rt: rt, model: opts.Model, maxTokens: opts.MaxTokens},
		planner: NewPlanner(rt, opts.Model),
		scraper: scraper,
		opts:    opts,
	}
}

// Request is one question set plus its attachments keyed by file name.
type Request struct {
	Questions string
	Files     map[string]string
}

// session is the state of one Run.
type session struct {
	files  []string
	frames []*analysis.Frame
	docs   *retrieval.Index
	pages  map[string]*scrape.Page

	scraped []scrapedTable

	db       *query.DB
	dbFrames int

	summary       string
	summaryFrames int
}

type scrapedTable struct {
	url   string
	frame *analysis.Frame
}

func (s *session) tableFor(url string) *analysis.Frame {
	for _, t := range s.scraped {
		if t.url == url {
			return t.frame
		}
	}
	return nil
}

func (s *session) addFrame(f *analysis.Frame) {
	s.frames = append(s.frames, f)
}

// database returns a query DB holding every frame loaded so far.
func (s *session) database(ctx context.Context) (*query.DB, error) {
	if s.db != nil && s.dbFrames == len(s.frames) {
		return s.db, nil
	}
	if s.db != nil {
		_ = s.db.Close()
		s.db = nil
	}
	db, err := query.Open(ctx, s.frames)
	if err != nil {
		return nil, err
	}
	s.db, s.dbFrames = db, len(s.frames)
	return db, nil
}

func (s *session) close() {
	if s.db != nil {
		_ = s.db.Close()
	}
}

// Run plans the question set, loads the attachments, answers each question
// in order and formats the answers. Step failures become "Error: ..."
// answers; only planning failures and context cancellation abort the run.
func (a *Agent) Run(ctx context.Context, req Request) (any, error) {
	log := logger.FromContext(ctx)
	start := time.Now()

	names := make([]string, 0, len(req.Files))
	for name := range req.Files {
		names = append(names, name)
	}
	sort.Strings(names)

	plan, err := a.planner.CreatePlan(ctx, req.Questions, names)
	if err != nil {
		return nil, fmt.Errorf("create plan: %w", err)
	}

	s := &session{
		files: names,
		docs:  retrieval.NewIndex(nil, retrieval.Options{ChunkMaxTokens: 300, ChunkOverlap: 40, MaxChunksPerDoc: 200}),
		pages: map[string]*scrape.Page{},
	}
	defer s.close()
	a.loadFiles(ctx, s, names, req.Files)

	if plan.URL != "" {
		if _, err := a.fetch(ctx, s, plan.URL, plan.Preamble); err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			log.Warn("scrape.preamble_failed", "url", plan.URL, "error", err)
		}
	}

	results := make([]any, len(plan.Questions))
	for i, q := range plan.Questions {
		qlog := log.With("question", i+1, "type", q.Type)
		qlog.Info("question.start", "text", truncate(q.Text, 100))
		res, err := a.execute(ctx, s, q)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			serr := &StepError{Index: i, Question: q.Text, Type: q.Type, Err: err}
			qlog.Error("question.failed", "error", serr)
			if q.Type == TypeVisualization {
				res = chart.ErrorImage(err.Error())
			} else {
				res = "Error: " + err.Error()
			}
		}
		results[i] = res
	}

	out := FormatResults(req.Questions, plan.Questions, results)
	log.Info("analysis.completed", "questions", len(plan.Questions), "frames", len(s.frames), "elapsed_ms", time.Since(start).Milliseconds())
	return out, nil
}

// loadFiles parses tabular attachments into frames and indexes text ones.
// Unreadable files are logged and skipped.
func (a *Agent) loadFiles(ctx context.Context, s *session, names []string, paths map[string]string) {
	log := logger.FromContext(ctx)
	for _, name := range names {
		path := paths[name]
		switch {
		case parser.Supported(name):
			f, err := parser.LoadFile(path, parser.Options{MaxRows: a.opts.MaxRows})
			if err != nil {
				log.Warn("file.load_failed", "file", name, "error", err)
				continue
			}
			f.Name = name
			s.addFrame(f)
			log.Info("file.loaded", "file", name, "rows", f.NumRows(), "cols", f.NumCols(), "truncated", f.Truncated)
		case parser.IsText(name) && !strings.HasSuffix(strings.ToLower(name), "questions.txt"):
			text, err := parser.ReadText(path)
			if err != nil {
				log.Warn("file.read_failed", "file", name, "error", err)
				continue
			}
			if err := s.docs.Add(ctx, name, text); err != nil {
				log.Warn("file.index_failed", "file", name, "error", err)
			}
		default:
			log.Info("file.skipped", "file", name, "ext", filepath.Ext(name))
		}
	}
}

func (a *Agent) execute(ctx context.Context, s *session, q Question) (any, error) {
	switch q.Type {
	case TypeWebScraping:
		return a.webScraping(ctx, s, q)
	case TypeDataAnalysis:
		return a.dataAnalysis(ctx, s, q)
	case TypeStatistical:
		return a.statistical(s, q)
	case TypeVisualization:
		return a.visualization(s, q)
	default:
		return a.general(ctx, s, q)
	}
}

var errNoData = errors.New("no data files or scraped tables available")

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
