package embedder

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/54b3r/cvgen-go/internal/rag"
)

// maxErrorBody bounds how much of an error response body is quoted.
const maxErrorBody = 512

// transportError classifies a failed HTTP round trip. A deadline becomes
// rag.ErrTimeout; anything else means the backend could not be reached and
// becomes rag.ErrModelLoad.
func transportError(ctx context.Context, name string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%s: request timed out: %w: %w", name, rag.ErrTimeout, err)
	}
	return fmt.Errorf("%s: backend unreachable: %w: %w", name, rag.ErrModelLoad, err)
}

// statusError turns a non-2xx response into an error. Unknown models (404) and
// models that are still loading (503) wrap rag.ErrModelLoad.
func statusError(name string, resp *http.Response, msg string) error {
	if msg == "" {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		msg = strings.TrimSpace(string(b))
	}
	if msg == "" {
		msg = http.StatusText(resp.StatusCode)
	}
	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusServiceUnavailable:
		return fmt.Errorf("%s: HTTP %d: %s: %w", name, resp.StatusCode, msg, rag.ErrModelLoad)
	default:
		return fmt.Errorf("%s: HTTP %d: %s", name, resp.StatusCode, msg)
	}
}
