// Package generator turns an assembled prompt into a generated document. It
// wraps an Eino chat model in a single-node compose chain so callback handlers
// (Langfuse tracing) observe every call, serializes calls on the shared model
// handle, enforces the input budget and the time budget, and post-processes
// the raw continuation.
package generator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	"github.com/54b3r/cvgen-go/internal/budget"
	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/rag"
)

// Defaults applied by New when the corresponding Params field is zero.
const (
	DefaultTimeout           = 2 * time.Minute
	DefaultNoRepeatNgramSize = 2
	DefaultRetryInterval     = 500 * time.Millisecond
)

// Params controls how a prompt is fed to the model and how its output is
// cleaned. Sampling parameters live with the model backend configuration.
type Params struct {
	// MaxInputTokens bounds the estimated prompt size. Longer prompts are
	// clamped by dropping text from the start. Defaults to
	// budget.DefaultMaxInputTokens.
	MaxInputTokens int
	// NoRepeatNgramSize collapses immediately repeated word n-grams of at
	// least this length in the output. 0 disables the filter.
	NoRepeatNgramSize int
	// Timeout bounds a single generation including retries. Defaults to
	// DefaultTimeout.
	Timeout time.Duration
	// MaxRetries is how often a call failing with rag.ErrModelLoad (backend
	// unreachable, model still loading) is retried. Other failures are never
	// retried.
	MaxRetries int
	// RetryInterval is the initial backoff between retries. Defaults to
	// DefaultRetryInterval.
	RetryInterval time.Duration
}

// Validate checks p for values that cannot be defaulted.
func (p Params) Validate() error {
	switch {
	case p.MaxInputTokens < 0:
		return fmt.Errorf("generator: max input tokens must be >= 0, got %d", p.MaxInputTokens)
	case p.NoRepeatNgramSize < 0:
		return fmt.Errorf("generator: no-repeat n-gram size must be >= 0, got %d", p.NoRepeatNgramSize)
	case p.Timeout < 0:
		return fmt.Errorf("generator: timeout must be >= 0, got %s", p.Timeout)
	case p.MaxRetries < 0:
		return fmt.Errorf("generator: max retries must be >= 0, got %d", p.MaxRetries)
	}
	return nil
}

// Config holds the dependencies required to construct a Generator.
type Config struct {
	// ChatModel is the model handle constructed by the provider factory.
	ChatModel model.BaseChatModel
	// ModelName identifies the backend and model in the generated document.
	ModelName string
	// Params controls prompt clamping, post-processing and timeouts.
	Params Params
}

// Generator produces documents from prompts. Calls are serialized because
// the underlying model handle is not assumed to be safe for concurrent use.
type Generator struct {
	// mu serializes Generate and guards closed.
	mu sync.Mutex
	// closed is set by Close.
	closed bool
	// runnable is the compiled single-node chain around the chat model.
	runnable compose.Runnable[[]*schema.Message, *schema.Message]
	// modelName is copied into every GeneratedDocument.
	modelName string
	// params holds the defaulted parameters.
	params Params
}

// New validates cfg, applies defaults and compiles the model chain.
func New(ctx context.Context, cfg *Config) (*Generator, error) {
	if cfg.ChatModel == nil {
		return nil, fmt.Errorf("generator: ChatModel must not be nil")
	}
	if err := cfg.Params.Validate(); err != nil {
		return nil, err
	}

	p := cfg.Params
	if p.MaxInputTokens == 0 {
		p.MaxInputTokens = budget.DefaultMaxInputTokens
	}
	if p.Timeout == 0 {
		p.Timeout = DefaultTimeout
	}
	if p.RetryInterval <= 0 {
		p.RetryInterval = DefaultRetryInterval
	}

	chain := compose.NewChain[[]*schema.Message, *schema.Message]()
	chain.AppendChatModel(cfg.ChatModel, compose.WithNodeName("cv_generator"))
	runnable, err := chain.Compile(ctx)
	if err != nil {
		return nil, fmt.Errorf("generator: compile chain: %w", err)
	}

	return &Generator{
		runnable:  runnable,
		modelName: cfg.ModelName,
		params:    p,
	}, nil
}

// Params returns the effective (defaulted) parameters.
func (g *Generator) Params() Params { return g.params }

// Generate runs the model on prompt and returns the cleaned continuation.
// Errors wrap rag.ErrTimeout when the time budget expires, rag.ErrModelLoad
// when the backend is unavailable, and rag.ErrGeneration otherwise,
// including when the cleaned output is empty.
func (g *Generator) Generate(ctx context.Context, prompt string) (*rag.GeneratedDocument, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.closed {
		return nil, fmt.Errorf("generator: closed: %w", rag.ErrGeneration)
	}

	log := logging.FromContext(ctx)

	if est := budget.Estimate(prompt); est > g.params.MaxInputTokens {
		prompt = budget.KeepTail(prompt, g.params.MaxInputTokens)
		log.Warn("generator: prompt clamped from the start to fit model input",
			slog.Int("estimated_tokens", est),
			slog.Int("max_input_tokens", g.params.MaxInputTokens),
		)
	}

	ctx, cancel := context.WithTimeout(ctx, g.params.Timeout)
	defer cancel()

	start := time.Now()
	var out *schema.Message
	op := func() error {
		msg, err := g.runnable.Invoke(ctx, []*schema.Message{schema.UserMessage(prompt)})
		if err != nil {
			err = classify(ctx, err)
			if errors.Is(err, rag.ErrModelLoad) {
				return err
			}
			return backoff.Permanent(err)
		}
		out = msg
		return nil
	}
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = g.params.RetryInterval
	notify := func(err error, wait time.Duration) {
		log.Warn("generator: model unavailable, retrying",
			slog.Any("error", err),
			slog.Duration("wait", wait),
		)
	}
	err := backoff.RetryNotify(op, backoff.WithContext(backoff.WithMaxRetries(b, uint64(g.params.MaxRetries)), ctx), notify)
	if err != nil {
		return nil, classify(ctx, err)
	}

	text := Clean(out.Content, prompt, g.params.NoRepeatNgramSize)
	if text == "" {
		return nil, fmt.Errorf("generator: model returned no usable text: %w", rag.ErrGeneration)
	}

	log.Info("generator: generation complete",
		slog.String("model", g.modelName),
		slog.Int("prompt_tokens", budget.Estimate(prompt)),
		slog.Int("output_chars", len(text)),
		slog.Duration("elapsed", time.Since(start)),
	)

	return &rag.GeneratedDocument{
		Text:   text,
		Prompt: prompt,
		Model:  g.modelName,
	}, nil
}

// classify maps a model failure onto the error taxonomy. Transport failures
// (refused connection, DNS, reset) mean the backend is unavailable and are
// reported as rag.ErrModelLoad.
func classify(ctx context.Context, err error) error {
	var netErr net.Error
	switch {
	case errors.Is(err, rag.ErrTimeout), errors.Is(err, rag.ErrModelLoad), errors.Is(err, rag.ErrGeneration):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("generator: %w: %w", rag.ErrTimeout, err)
	case errors.As(err, &netErr):
		if netErr.Timeout() {
			return fmt.Errorf("generator: %w: %w", rag.ErrTimeout, err)
		}
		return fmt.Errorf("generator: backend unreachable: %w: %w", rag.ErrModelLoad, err)
	default:
		return fmt.Errorf("generator: %w: %w", rag.ErrGeneration, err)
	}
}

// Close releases the generator. Subsequent Generate calls fail.
func (g *Generator) Close() error {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.closed = true
	return nil
}
