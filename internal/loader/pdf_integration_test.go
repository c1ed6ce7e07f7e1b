//go:build integration

package loader

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-pdf/fpdf"
)

// Test_Integration_FitzExtractor writes a two-page PDF and reads it back
// through MuPDF. Run with: go test -tags integration ./internal/loader/
func Test_Integration_FitzExtractor(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "cv.pdf")

	pdf := fpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Helvetica", "", 12)
	pdf.AddPage()
	pdf.Cell(40, 10, "Senior Go Engineer")
	pdf.AddPage()
	pdf.Cell(40, 10, "Kubernetes operator author")
	if err := pdf.OutputFileAndClose(path); err != nil {
		t.Fatalf("write pdf: %v", err)
	}

	report, err := New(&Config{Logger: quietLogger()}).Load(context.Background(), dir)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(report.Documents) != 2 {
		t.Fatalf("want 2 pages, got %d (skipped: %+v)", len(report.Documents), report.Skipped)
	}
	if !strings.Contains(report.Documents[0].Text, "Senior Go Engineer") {
		t.Errorf("page 1 text: %q", report.Documents[0].Text)
	}
	if report.Documents[1].Metadata.Page != 2 {
		t.Errorf("want page 2, got %d", report.Documents[1].Metadata.Page)
	}
}
