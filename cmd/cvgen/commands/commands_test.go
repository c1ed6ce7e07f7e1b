package commands

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"testing"

	"github.com/54b3r/cvgen-go/internal/version"
)

// isolateConfig keeps the host's config files and tracing keys out of the run.
func isolateConfig(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("HOME", dir)
	t.Setenv("CVGEN_CONFIG", "")
	t.Setenv("CVGEN_DOTENV", filepath.Join(dir, "missing.env"))
	t.Setenv("LANGFUSE_PUBLIC_KEY", "")
	t.Setenv("LOG_LEVEL", "error")
}

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	root := NewRootCmd()
	var out bytes.Buffer
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestRoot_Subcommands(t *testing.T) {
	root := NewRootCmd()
	for _, name := range []string{"index", "generate", "serve", "version"} {
		if cmd, _, err := root.Find([]string{name}); err != nil || cmd.Name() != name {
			t.Errorf("subcommand %q not registered (err=%v)", name, err)
		}
	}
}

func TestVersion(t *testing.T) {
	isolateConfig(t)
	out, err := run(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if strings.TrimSpace(out) != version.String() {
		t.Errorf("version output = %q, want %q", out, version.String())
	}
}

func TestGenerate_RejectsUnknownEncoding(t *testing.T) {
	isolateConfig(t)
	_, err := run(t, "generate", "--encoding", "latin-9", "--out", filepath.Join(t.TempDir(), "cv.txt"))
	if err == nil || !strings.Contains(err.Error(), "unsupported encoding") {
		t.Errorf("want unsupported encoding error, got %v", err)
	}
}

func TestServe_FlagDefaults(t *testing.T) {
	cmd := NewServeCmd()
	if got := cmd.Flags().Lookup("host").DefValue; got != "127.0.0.1" {
		t.Errorf("host default = %q", got)
	}
	if got := cmd.Flags().Lookup("port").DefValue; got != "8080" {
		t.Errorf("port default = %q", got)
	}
}

func TestIndex_UnknownBackend(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "chroma")
	if _, err := openIndex(context.Background(), discard(), 384); err == nil ||
		!strings.Contains(err.Error(), "unknown INDEX_BACKEND") {
		t.Errorf("want unknown backend error, got %v", err)
	}
}

func TestIndex_SQLiteBackend(t *testing.T) {
	t.Setenv("INDEX_BACKEND", "sqlite")
	t.Setenv("INDEX_PATH", filepath.Join(t.TempDir(), "nested", "index.db"))
	idx, err := openIndex(context.Background(), discard(), 384)
	if err != nil {
		t.Fatalf("openIndex: %v", err)
	}
	defer idx.Close()
	if idx.local == nil || idx.qdrant != nil {
		t.Errorf("sqlite backend should set only the local index")
	}
	if idx.local.Len() != 0 {
		t.Errorf("fresh index has %d chunks", idx.local.Len())
	}
}
