package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/KaramelBytes/dataloom-agent/internal/agent"
	"github.com/KaramelBytes/dataloom-agent/internal/logger"
	"github.com/KaramelBytes/dataloom-agent/internal/workspace"
)

const questionsFile = "questions.txt"

func (s *Server) root(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"message": "DataLoom analysis agent",
		"version": s.cfg.Version,
		"endpoints": gin.H{
			"analysis": "/api/",
			"health":   "/health",
		},
		"timestamp": time.Now().Format(time.RFC3339),
	})
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now().Format(time.RFC3339)})
}

// analyze accepts a multipart form holding one questions.txt plus
// attachments, under the "files" field or one field per file.
// POST /api/
func (s *Server) analyze(c *gin.Context) {
	log := logger.FromContext(c.Request.Context())
	if c.Request.ContentLength > s.cfg.MaxUploadBytes {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)})
		return
	}
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.cfg.MaxUploadBytes)

	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			c.JSON(http.StatusRequestEntityTooLarge, gin.H{"detail": fmt.Sprintf("upload exceeds %d bytes", s.cfg.MaxUploadBytes)})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"detail": "invalid multipart form: " + err.Error()})
		return
	}
	defer func() { _ = form.RemoveAll() }()

	ws, err := workspace.New(s.cfg.WorkDir)
	if err != nil {
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Analysis failed: " + err.Error()})
		return
	}
	defer func() {
		if err := ws.Close(); err != nil {
			log.Warn("workspace.cleanup_failed", "dir", ws.Dir(), "error", err)
		}
	}()

	questions, found, err := stageUploads(ws, form.File)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"detail": err.Error()})
		return
	}
	if !found || strings.TrimSpace(questions) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"detail": "questions.txt file is required"})
		return
	}
	recs := ws.Records()
	staged := make([]string, len(recs))
	for i, r := range recs {
		staged[i] = fmt.Sprintf("%s (%s, %d bytes)", r.Name, r.Type, r.Size)
	}
	log.Info("analysis.received", "files", staged, "question_chars", len(questions), "workspace", ws.ID)

	ctx, cancel := context.WithTimeout(c.Request.Context(), s.cfg.RequestTimeout)
	defer cancel()
	out, err := s.analyzer.Run(ctx, agent.Request{Questions: questions, Files: ws.Files()})
	if err != nil {
		_ = c.Error(err)
		if errors.Is(err, context.DeadlineExceeded) {
			c.JSON(http.StatusGatewayTimeout, gin.H{"detail": fmt.Sprintf("Analysis timed out after %s", s.cfg.RequestTimeout)})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"detail": "Analysis failed: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, out)
}

// stageUploads saves attachments from every form field into ws and returns
// the question text. The questions file is recognized by file or field name.
func stageUploads(ws *workspace.Workspace, fields map[string][]*multipart.FileHeader) (string, bool, error) {
	var (
		questions string
		found     bool
	)
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, field := range names {
		for _, fh := range fields[field] {
			q, isQuestions, err := stageOne(ws, field, fh)
			if err != nil {
				return "", false, err
			}
			if isQuestions {
				questions, found = q, true
			}
		}
	}
	return questions, found, nil
}

func stageOne(ws *workspace.Workspace, field string, fh *multipart.FileHeader) (string, bool, error) {
	f, err := fh.Open()
	if err != nil {
		return "", false, fmt.Errorf("open upload %s: %w", fh.Filename, err)
	}
	defer f.Close()
	if isQuestionsFile(fh.Filename) || isQuestionsFile(field) {
		b, err := io.ReadAll(f)
		if err != nil {
			return "", false, fmt.Errorf("read %s: %w", fh.Filename, err)
		}
		return string(b), true, nil
	}
	name := fh.Filename
	if strings.TrimSpace(name) == "" {
		name = field
	}
	if _, err := ws.Save(name, f); err != nil {
		return "", false, err
	}
	return "", false, nil
}

func isQuestionsFile(name string) bool {
	return strings.HasSuffix(strings.ToLower(strings.TrimSpace(name)), questionsFile)
}
