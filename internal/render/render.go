// Package render writes generated documents to disk as plain text and,
// optionally, as a paginated PDF.
//
// Characters the target encoding cannot represent are replaced with
// Placeholder, one placeholder per rune, so output length changes
// deterministically. PDF output always uses Windows-1252 because the core
// PDF fonts are single-byte.
package render

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/go-pdf/fpdf"
	"golang.org/x/text/encoding/charmap"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// Supported text encodings.
const (
	EncodingUTF8        = "utf-8"
	EncodingWindows1252 = "windows-1252"
)

// Placeholder replaces runes that Windows-1252 cannot encode.
const Placeholder = '?'

// StdoutPath as TextPath writes the text output to Config.Stdout.
const StdoutPath = "-"

// DefaultTextPath is the conventional text output file.
const DefaultTextPath = "generated_cv.txt"

// PDF layout.
const (
	pdfMarginMM   = 15.0
	pdfFontFamily = "Helvetica"
	pdfFontSizePt = 11.0
	pdfLineMM     = 5.5
)

// Config holds the output settings.
type Config struct {
	// TextPath is where the plain-text document is written. Empty disables
	// text output; StdoutPath writes to Stdout.
	TextPath string
	// PDFPath is where the PDF document is written. Empty disables PDF output.
	PDFPath string
	// Encoding is the plain-text encoding, EncodingUTF8 (default) or
	// EncodingWindows1252.
	Encoding string
	// Stdout receives text output when TextPath is StdoutPath. Defaults to
	// os.Stdout.
	Stdout io.Writer
}

// Result reports what Render wrote.
type Result struct {
	// TextPath is the text output location, empty when disabled.
	TextPath string
	// TextBytes is the number of bytes written to TextPath.
	TextBytes int
	// PDFPath is the PDF output location, empty when disabled.
	PDFPath string
	// Substituted counts runes replaced by Placeholder in the text output.
	Substituted int
}

// Renderer writes documents according to its Config. It holds no mutable
// state and is safe for concurrent use as long as callers write to distinct
// paths.
type Renderer struct {
	cfg Config
}

// New validates cfg and returns a Renderer.
func New(cfg Config) (*Renderer, error) {
	enc := strings.ToLower(strings.TrimSpace(cfg.Encoding))
	switch enc {
	case "", "utf8", EncodingUTF8:
		enc = EncodingUTF8
	case "cp1252", EncodingWindows1252:
		enc = EncodingWindows1252
	default:
		return nil, fmt.Errorf("render: unsupported encoding %q, valid values: %s, %s: %w",
			cfg.Encoding, EncodingUTF8, EncodingWindows1252, rag.ErrRender)
	}
	cfg.Encoding = enc
	if cfg.Stdout == nil {
		cfg.Stdout = os.Stdout
	}
	return &Renderer{cfg: cfg}, nil
}

// Encode converts text to bytes in the configured encoding and reports how
// many runes were substituted.
func (r *Renderer) Encode(text string) ([]byte, int) {
	if r.cfg.Encoding == EncodingWindows1252 {
		return EncodeWindows1252(text)
	}
	if utf8.ValidString(text) {
		return []byte(text), 0
	}
	buf := make([]byte, 0, len(text)+8)
	n := 0
	for i := 0; i < len(text); {
		ru, size := utf8.DecodeRuneInString(text[i:])
		if ru == utf8.RuneError && size == 1 {
			buf = utf8.AppendRune(buf, utf8.RuneError)
			n++
		} else {
			buf = append(buf, text[i:i+size]...)
		}
		i += size
	}
	return buf, n
}

// EncodeWindows1252 encodes text as Windows-1252, replacing every rune that
// has no Windows-1252 representation (and every invalid UTF-8 byte) with
// Placeholder. It returns the encoded bytes and the replacement count.
func EncodeWindows1252(text string) ([]byte, int) {
	var buf bytes.Buffer
	buf.Grow(len(text))
	n := 0
	for _, ru := range text {
		if b, ok := charmap.Windows1252.EncodeRune(ru); ok {
			buf.WriteByte(b)
			continue
		}
		buf.WriteByte(Placeholder)
		n++
	}
	return buf.Bytes(), n
}

// WriteText writes text to w in the configured encoding.
func (r *Renderer) WriteText(w io.Writer, text string) (int, error) {
	data, _ := r.Encode(text)
	n, err := w.Write(data)
	if err != nil {
		return n, fmt.Errorf("render: write text: %w: %w", rag.ErrRender, err)
	}
	return n, nil
}

// Render writes doc to every configured output.
func (r *Renderer) Render(doc *rag.GeneratedDocument) (*Result, error) {
	if doc == nil {
		return nil, fmt.Errorf("render: nil document: %w", rag.ErrRender)
	}
	res := &Result{}

	switch r.cfg.TextPath {
	case "":
	case StdoutPath:
		data, subs := r.Encode(doc.Text)
		if _, err := r.cfg.Stdout.Write(append(data, '\n')); err != nil {
			return nil, fmt.Errorf("render: write stdout: %w: %w", rag.ErrRender, err)
		}
		res.TextPath, res.TextBytes, res.Substituted = StdoutPath, len(data), subs
	default:
		data, subs := r.Encode(doc.Text)
		if err := writeFile(r.cfg.TextPath, data); err != nil {
			return nil, err
		}
		res.TextPath, res.TextBytes, res.Substituted = r.cfg.TextPath, len(data), subs
	}

	if r.cfg.PDFPath != "" {
		if err := WritePDF(r.cfg.PDFPath, doc.Text); err != nil {
			return nil, err
		}
		res.PDFPath = r.cfg.PDFPath
	}
	return res, nil
}

// WritePDF renders text as an A4 PDF at path: 15 mm margins, automatic page
// breaks, Helvetica 11 pt. Text is Windows-1252 encoded with Placeholder
// substitution.
func WritePDF(path, text string) error {
	if err := ensureDir(path); err != nil {
		return err
	}

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(pdfMarginMM, pdfMarginMM, pdfMarginMM)
	pdf.SetAutoPageBreak(true, pdfMarginMM)
	pdf.AddPage()
	pdf.SetFont(pdfFontFamily, "", pdfFontSizePt)

	encoded, _ := EncodeWindows1252(text)
	pdf.MultiCell(0, pdfLineMM, string(encoded), "", "L", false)

	if err := pdf.OutputFileAndClose(path); err != nil {
		return fmt.Errorf("render: write pdf %s: %w: %w", path, rag.ErrRender, err)
	}
	return nil
}

// writeFile creates the parent directory and writes data to path.
func writeFile(path string, data []byte) error {
	if err := ensureDir(path); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("render: write %s: %w: %w", path, rag.ErrRender, err)
	}
	return nil
}

// ensureDir creates the parent directory of path if it does not exist.
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	if dir == "" || dir == "." {
		return nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("render: create directory %s: %w: %w", dir, rag.ErrRender, err)
	}
	return nil
}
