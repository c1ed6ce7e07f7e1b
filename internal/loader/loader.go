// Package loader reads a directory of source documents into rag.Documents.
// PDF files yield one Document per page and plain-text files yield one
// Document per file. Files with other extensions are ignored.
package loader

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/gen2brain/go-fitz"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// PageExtractor returns the text of every page of a paged document, in page order.
type PageExtractor interface {
	Pages(path string) ([]string, error)
}

// FitzExtractor extracts PDF page text with MuPDF via go-fitz.
type FitzExtractor struct{}

// Pages implements PageExtractor.
func (FitzExtractor) Pages(path string) ([]string, error) {
	doc, err := fitz.New(path)
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}
	defer doc.Close()

	pages := make([]string, 0, doc.NumPage())
	for n := range doc.NumPage() {
		text, err := doc.Text(n)
		if err != nil {
			return nil, fmt.Errorf("page %d: %w", n+1, err)
		}
		pages = append(pages, text)
	}
	return pages, nil
}

// SkippedFile records a recognised file that could not be parsed.
type SkippedFile struct {
	// Path is the file that was skipped.
	Path string

	// Err is the parse or read failure.
	Err error
}

// Report is the result of loading a directory.
type Report struct {
	// Documents holds the loaded documents in path order, pages in page order.
	Documents []rag.Document

	// Skipped lists recognised files that failed to load.
	Skipped []SkippedFile
}

// Config holds the loader dependencies.
type Config struct {
	// PDF extracts page text from .pdf files. Defaults to FitzExtractor.
	PDF PageExtractor

	// Logger receives skip warnings. Defaults to slog.Default().
	Logger *slog.Logger
}

// Loader loads source documents from a directory.
type Loader struct {
	// pdf extracts page text from PDF files.
	pdf PageExtractor

	// log records skipped files.
	log *slog.Logger
}

// New returns a Loader. A nil cfg uses the defaults.
func New(cfg *Config) *Loader {
	if cfg == nil {
		cfg = &Config{}
	}
	l := &Loader{pdf: cfg.PDF, log: cfg.Logger}
	if l.pdf == nil {
		l.pdf = FitzExtractor{}
	}
	if l.log == nil {
		l.log = slog.Default()
	}
	return l
}

// Load reads every .pdf and .txt file directly inside dir. Files are processed
// in lexical order so repeated runs produce the same document sequence. A file
// that fails to parse is skipped and listed in the report; a missing or
// unreadable directory is an error wrapping rag.ErrIO.
func (l *Loader) Load(ctx context.Context, dir string) (*Report, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("loader: read dir %s: %w: %w", dir, rag.ErrIO, err)
	}

	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	slices.Sort(names)

	report := &Report{}
	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("loader: %w", err)
		}

		path := filepath.Join(dir, name)
		ext := strings.ToLower(strings.TrimPrefix(filepath.Ext(name), "."))

		var docs []rag.Document
		switch ext {
		case "pdf":
			docs, err = l.loadPDF(path)
		case "txt":
			docs, err = loadText(path)
		default:
			l.log.Debug("loader: ignoring unsupported file", "path", path)
			continue
		}
		if err != nil {
			l.log.Warn("loader: skipping unreadable file", "path", path, "error", err)
			report.Skipped = append(report.Skipped, SkippedFile{Path: path, Err: err})
			continue
		}
		report.Documents = append(report.Documents, docs...)
	}

	l.log.Info("loader: directory loaded",
		"dir", dir,
		"documents", len(report.Documents),
		"skipped", len(report.Skipped),
	)
	return report, nil
}

func (l *Loader) loadPDF(path string) ([]rag.Document, error) {
	pages, err := l.pdf.Pages(path)
	if err != nil {
		return nil, err
	}
	docs := make([]rag.Document, 0, len(pages))
	for i, text := range pages {
		page := i + 1
		docs = append(docs, rag.Document{
			ID:         rag.DocumentID(path, page),
			SourcePath: path,
			Text:       strings.ToValidUTF8(text, string(utf8.RuneError)),
			Metadata:   rag.Metadata{Page: page, FileType: "pdf"},
		})
	}
	return docs, nil
}

func loadText(path string) ([]rag.Document, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return []rag.Document{{
		ID:         rag.DocumentID(path, 0),
		SourcePath: path,
		Text:       strings.ToValidUTF8(string(b), string(utf8.RuneError)),
		Metadata:   rag.Metadata{FileType: "txt"},
	}}, nil
}
