package commands

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/cvgen-go/internal/config"
	"github.com/54b3r/cvgen-go/internal/logging"
	"github.com/54b3r/cvgen-go/internal/prompt"
	"github.com/54b3r/cvgen-go/internal/rag"
	"github.com/54b3r/cvgen-go/internal/render"
)

// cliMaxRetries is how often the CLI retries a generation call that failed
// because the backend was unavailable or still loading the model.
const cliMaxRetries = 2

// NewGenerateCmd constructs the `cvgen generate` command, which runs the
// query phase against an existing index and writes the result.
func NewGenerateCmd() *cobra.Command {
	var (
		extra    string
		textPath string
		pdfPath  string
		encoding string
	)

	cmd := &cobra.Command{
		Use:   "generate [query]",
		Short: "Generate a CV from the indexed documents",
		Long: `Embed the query, retrieve the most similar chunks from the index, assemble
the prompt and generate a CV with the configured model.

The query defaults to:
  "` + prompt.DefaultQuery + `"

Output goes to OUTPUT_TEXT_PATH (default: generated_cv.txt, "-" for stdout)
and optionally to a PDF at OUTPUT_PDF_PATH.

Examples:
  cvgen generate
  cvgen generate "CV for a senior backend engineer focused on Go"
  cvgen generate --context "Highlight Kubernetes work" --pdf cv.pdf
  MODEL_PROVIDER=ollama cvgen generate --out -`,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.FromContext(ctx)

			flush := setupTracing(log)
			defer flush()

			if !cmd.Flags().Changed("out") {
				textPath = config.String("OUTPUT_TEXT_PATH", render.DefaultTextPath)
			}
			if !cmd.Flags().Changed("pdf") {
				pdfPath = config.String("OUTPUT_PDF_PATH", "")
			}
			if !cmd.Flags().Changed("encoding") {
				encoding = config.String("OUTPUT_ENCODING", render.EncodingUTF8)
			}
			renderer, err := render.New(render.Config{
				TextPath: textPath,
				PDFPath:  pdfPath,
				Encoding: encoding,
				Stdout:   cmd.OutOrStdout(),
			})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}

			qs, err := buildQueryStack(ctx, log, cliMaxRetries)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			defer func() { _ = qs.Close() }()

			res, err := qs.agent.Generate(ctx, rag.Query{
				Text:              strings.Join(args, " "),
				AdditionalContext: extra,
			})
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if res.Prompt.Truncated {
				log.Warn("generate: retrieved context was truncated to fit the prompt budget")
			}

			out, err := renderer.Render(res.Document)
			if err != nil {
				return fmt.Errorf("generate: %w", err)
			}
			if out.Substituted > 0 {
				log.Warn("generate: characters replaced during encoding",
					slog.String("encoding", encoding),
					slog.Int("count", out.Substituted),
				)
			}
			log.Info("generate complete",
				slog.Int("sources", len(res.Hits)),
				slog.String("text_path", out.TextPath),
				slog.Int("text_bytes", out.TextBytes),
				slog.String("pdf_path", out.PDFPath),
			)
			if out.TextPath != "" && out.TextPath != render.StdoutPath {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out.TextPath)
			}
			if out.PDFPath != "" {
				fmt.Fprintf(cmd.ErrOrStderr(), "wrote %s\n", out.PDFPath)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&extra, "context", "c", "", "Additional context appended after the retrieved chunks")
	cmd.Flags().StringVarP(&textPath, "out", "o", render.DefaultTextPath, `Text output path, "-" for stdout (default: $OUTPUT_TEXT_PATH)`)
	cmd.Flags().StringVar(&pdfPath, "pdf", "", "PDF output path, empty disables (default: $OUTPUT_PDF_PATH)")
	cmd.Flags().StringVar(&encoding, "encoding", render.EncodingUTF8, "Text encoding: utf-8 or windows-1252 (default: $OUTPUT_ENCODING)")

	return cmd
}
