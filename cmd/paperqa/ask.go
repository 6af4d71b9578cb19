package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/dream-ai/paperqa/internal/domain"
)

var (
	askQuery   string
	askSources bool
)

var askCmd = &cobra.Command{
	Use:   "ask FILE.pdf",
	Short: "Index a PDF and answer one question about it",
	Long: `Extract, chunk and embed a PDF, then answer a question against it.
Without --query the configured default asks for the title, summary,
publication date and authors.`,
	Args: cobra.ExactArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askQuery, "query", "q", "", "question to ask (default from config)")
	askCmd.Flags().BoolVar(&askSources, "sources", false, "print the retrieved excerpts after the answer")
}

func runAsk(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path := args[0]
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	interactive := progressEnabled()
	opts := a.sessionOptions()
	progress := &embedProgress{}
	if interactive {
		opts.Index.Progress = progress.update
	}
	session := a.newSession(opts)
	defer session.Close()

	idx, err := session.Ingest(ctx, filepath.Base(path), raw)
	progress.finish()
	if err != nil {
		return err
	}

	query := askQuery
	if query == "" {
		query = opts.Query
	}
	stopSpinner := startSpinner(interactive, "generating")
	answer, err := session.Query(ctx, idx, query)
	stopSpinner()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintln(out, answer.Text)
	if askSources {
		printSources(out, answer.Sources)
	}
	return nil
}

func printSources(out io.Writer, result domain.QueryResult) {
	fmt.Fprintf(out, "\n--- %d excerpts ---\n", len(result.Chunks))
	for _, c := range result.Chunks {
		fmt.Fprintf(out, "[chunk %d, page %d, score %.3f]\n%s\n\n", c.Chunk.Index, c.Chunk.SegmentIndex+1, c.Score, c.Chunk.Text)
	}
}
