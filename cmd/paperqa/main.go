// Package main implements the paperqa CLI: ask questions about a research
// paper PDF from the command line or an interactive shell.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/dream-ai/paperqa/internal/domain"
)

var (
	// configPath overrides ~/.paperqa/config.yaml
	configPath string
	// logLevel overrides logging.level
	logLevel string
	// metricsAddr overrides metrics.addr
	metricsAddr string
	// version information
	version = "dev"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		if kind := domain.Kind(err); kind != "Error" {
			fmt.Fprintf(os.Stderr, "%s: %v\n", kind, err)
		} else {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "paperqa",
	Short: "Extract title, summary, date and authors from research papers",
	Long: `paperqa indexes a PDF research paper in memory and answers questions about it
with retrieval-augmented generation. Embeddings and answers come from Ollama or
any OpenAI-compatible API.`,
	Version:       version,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "config file (default ~/.paperqa/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address, e.g. :9464")
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(tuiCmd)
	rootCmd.AddCommand(modelsCmd)
	rootCmd.AddCommand(historyCmd)
}
