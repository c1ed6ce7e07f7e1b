// Package prompt assembles the final generation prompt from retrieved chunks,
// the user's query and optional free-form context. Templates use the
// Python-style {placeholder} syntax rendered by Eino's FString formatter and
// must reference both {context} and {query}.
package prompt

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/cvgen-go/internal/budget"
	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// DefaultTemplate is the built-in CV prompt.
const DefaultTemplate = "Based on the following context documents, help generate a professional CV:\n\n" +
	"Context: {context}\n\n" +
	"Task: {query}\n\n" +
	"Please provide a concise, well-formatted response that highlights key professional details."

// DefaultQuery is used when the caller supplies no query text.
const DefaultQuery = "Generate a CV for a software engineer with 5 years of experience."

const (
	contextKey = "context"
	queryKey   = "query"

	// chunkSeparator joins retrieved chunk texts inside {context}.
	chunkSeparator = "\n\n"
	// additionalContextLabel introduces the caller's free-form context.
	additionalContextLabel = "\n\nAdditional Context: "
	// truncationMarker is appended to a context that was cut to fit.
	truncationMarker = " ..."
)

// Prompt is the assembled prompt plus bookkeeping about how it was built.
type Prompt struct {
	// Text is the fully rendered prompt.
	Text string
	// Truncated reports whether the context had to be shortened to fit the
	// input token budget.
	Truncated bool
	// Sources lists the chunks whose text went into the context, in rank order.
	Sources []rag.Chunk
}

// Config holds the settings for constructing an Assembler.
type Config struct {
	// Template is the prompt template. Defaults to DefaultTemplate.
	Template string
	// MaxInputTokens bounds the estimated size of the rendered prompt.
	// Defaults to budget.DefaultMaxInputTokens. Negative disables the bound.
	MaxInputTokens int
}

// Assembler renders prompts from a validated template. It holds no mutable
// state and is safe for concurrent use.
type Assembler struct {
	// template is the Eino chat template built from Config.Template.
	template *einoprompt.DefaultChatTemplate
	// raw is the unparsed template string, used for error messages.
	raw string
	// maxTokens is the prompt budget; <= 0 means unbounded.
	maxTokens int
}

// New validates cfg and returns an Assembler. The template must contain both
// the {context} and {query} placeholders.
func New(cfg Config) (*Assembler, error) {
	tpl := cfg.Template
	if strings.TrimSpace(tpl) == "" {
		tpl = DefaultTemplate
	}
	for _, key := range []string{contextKey, queryKey} {
		if !strings.Contains(tpl, "{"+key+"}") {
			return nil, fmt.Errorf("prompt: template is missing the {%s} placeholder", key)
		}
	}

	maxTokens := cfg.MaxInputTokens
	switch {
	case maxTokens == 0:
		maxTokens = budget.DefaultMaxInputTokens
	case maxTokens < 0:
		maxTokens = 0
	}

	a := &Assembler{
		template:  einoprompt.FromMessages(schema.FString, schema.UserMessage(tpl)),
		raw:       tpl,
		maxTokens: maxTokens,
	}

	// Render once with placeholder values so malformed templates (stray
	// braces, unknown keys) fail at construction instead of per request.
	if _, err := a.render(context.Background(), "", ""); err != nil {
		return nil, err
	}
	return a, nil
}

// LoadTemplate reads a template file from disk. An empty path returns
// DefaultTemplate.
func LoadTemplate(path string) (string, error) {
	if path == "" {
		return DefaultTemplate, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("prompt: read template %s: %w: %w", path, rag.ErrIO, err)
	}
	return string(data), nil
}

// Template returns the template text in use.
func (a *Assembler) Template() string { return a.raw }

// Assemble renders the prompt for query from the ranked hits and the optional
// additional context. Hits are included in the order given. An empty query
// falls back to DefaultQuery. When the rendered prompt would exceed the token
// budget, the context is cut from its end and Truncated is set.
func (a *Assembler) Assemble(ctx context.Context, query rag.Query, hits []rag.Hit) (*Prompt, error) {
	task := strings.TrimSpace(query.Text)
	if task == "" {
		task = DefaultQuery
	}

	texts := make([]string, 0, len(hits))
	sources := make([]rag.Chunk, 0, len(hits))
	for _, h := range hits {
		texts = append(texts, h.Chunk.Text)
		sources = append(sources, h.Chunk)
	}
	ctxText := strings.Join(texts, chunkSeparator)
	if extra := strings.TrimSpace(query.AdditionalContext); extra != "" {
		ctxText += additionalContextLabel + extra
	}

	p := &Prompt{Sources: sources}

	if a.maxTokens > 0 {
		skeleton, err := a.render(ctx, "", task)
		if err != nil {
			return nil, err
		}
		room := a.maxTokens - budget.Estimate(skeleton)
		if budget.Estimate(ctxText) > room {
			// One token of slack absorbs rounding across the three joined parts.
			cut := budget.KeepHead(ctxText, room-budget.Estimate(truncationMarker)-1)
			logging.FromContext(ctx).Warn("prompt: context truncated to fit input budget",
				slog.Int("max_tokens", a.maxTokens),
				slog.Int("context_tokens", budget.Estimate(ctxText)),
				slog.Int("kept_tokens", budget.Estimate(cut)),
			)
			ctxText = strings.TrimRight(cut, " \n") + truncationMarker
			p.Truncated = true
		}
	}

	text, err := a.render(ctx, ctxText, task)
	if err != nil {
		return nil, err
	}
	p.Text = text
	return p, nil
}

// render formats the template with the given values.
func (a *Assembler) render(ctx context.Context, ctxText, task string) (string, error) {
	msgs, err := a.template.Format(ctx, map[string]any{
		contextKey: ctxText,
		queryKey:   task,
	})
	if err != nil {
		return "", fmt.Errorf("prompt: render template: %w", err)
	}
	if len(msgs) != 1 {
		return "", fmt.Errorf("prompt: template produced %d messages, want 1", len(msgs))
	}
	return msgs[0].Content, nil
}
