package parser

import (
	"archive/zip"
	"bytes"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	paragraphEnd = regexp.MustCompile(`</w:p>|<w:br/>|<w:tab/>`)
	xmlTag       = regexp.MustCompile(`<[^>]+>`)
	xmlEntities  = strings.NewReplacer("&amp;", "&", "&lt;", "<", "&gt;", ">", "&quot;", `"`, "&apos;", "'")
)

type txtParser struct{}

func (txtParser) CanParse(filename string) bool { return hasSuffix(filename, ".txt") }

func (txtParser) Parse(content []byte) (string, error) {
	return normalizeText(string(content)), nil
}

type markdownParser struct{}

func (markdownParser) CanParse(filename string) bool { return hasSuffix(filename, ".md", ".markdown") }

func (markdownParser) Parse(content []byte) (string, error) {
	return normalizeText(string(content)), nil
}

type docxParser struct{}

func (docxParser) CanParse(filename string) bool { return hasSuffix(filename, ".docx") }

// Parse extracts word/document.xml and keeps paragraph breaks.
func (docxParser) Parse(content []byte) (string, error) {
	zr, err := zip.NewReader(bytes.NewReader(content), int64(len(content)))
	if err != nil {
		return "", fmt.Errorf("open docx: %w", err)
	}
	for _, f := range zr.File {
		if f.Name != "word/document.xml" {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return "", fmt.Errorf("open document.xml: %w", err)
		}
		b, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			return "", fmt.Errorf("read document.xml: %w", err)
		}
		text := paragraphEnd.ReplaceAllString(string(b), "\n")
		text = xmlEntities.Replace(xmlTag.ReplaceAllString(text, ""))
		return normalizeText(text), nil
	}
	return "", fmt.Errorf("document.xml not found in DOCX")
}

// normalizeText unifies line endings, strips a BOM and collapses runs of
// blank lines.
func normalizeText(text string) string {
	text = strings.TrimPrefix(text, "\ufeff")
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	for strings.Contains(text, "\n\n\n") {
		text = strings.ReplaceAll(text, "\n\n\n", "\n\n")
	}
	return strings.TrimSpace(text)
}
