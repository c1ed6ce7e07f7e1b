// Package tracing wires optional Langfuse tracing into the generation chain.
package tracing

import (
	"strings"

	"github.com/cloudwego/eino-ext/callbacks/langfuse"
	"github.com/cloudwego/eino/callbacks"

	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/version"
)

// DefaultHost is the Langfuse endpoint used when LANGFUSE_HOST is unset.
const DefaultHost = "http://localhost:3000"

// traceName labels every cvgen trace in the Langfuse UI.
const traceName = "cvgen.generate"

// Settings is the resolved Langfuse configuration.
type Settings struct {
	Host      string
	PublicKey string
	SecretKey string
	// Tags are attached to every trace, from comma-separated LANGFUSE_TAGS.
	Tags []string
}

// SettingsFromEnv reads LANGFUSE_HOST, LANGFUSE_PUBLIC_KEY,
// LANGFUSE_SECRET_KEY and LANGFUSE_TAGS. ok is false when either key is
// missing or LANGFUSE_ENABLED=false.
func SettingsFromEnv() (Settings, bool) {
	s := Settings{
		Host:      config.String("LANGFUSE_HOST", DefaultHost),
		PublicKey: config.String("LANGFUSE_PUBLIC_KEY", ""),
		SecretKey: config.String("LANGFUSE_SECRET_KEY", ""),
	}
	for _, tag := range strings.Split(config.String("LANGFUSE_TAGS", ""), ",") {
		if tag = strings.TrimSpace(tag); tag != "" {
			s.Tags = append(s.Tags, tag)
		}
	}
	if !config.Bool("LANGFUSE_ENABLED", true) || s.PublicKey == "" || s.SecretKey == "" {
		return s, false
	}
	return s, true
}

// Setup returns the Langfuse callback handler and its flush function when
// tracing is configured. flush must run before exit or buffered traces are
// lost. When tracing is off all return values are zero.
func Setup() (callbacks.Handler, func(), bool) {
	s, ok := SettingsFromEnv()
	if !ok {
		return nil, nil, false
	}

	handler, flusher := langfuse.NewLangfuseHandler(&langfuse.Config{
		Host:      s.Host,
		PublicKey: s.PublicKey,
		SecretKey: s.SecretKey,
		Name:      traceName,
		Release:   version.Version,
		Tags:      s.Tags,
	})

	return handler, flusher, true
}
