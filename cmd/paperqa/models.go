package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/dream-ai/paperqa/internal/ollama"
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the Ollama server",
	Args:  cobra.NoArgs,
	RunE:  runModels,
}

func runModels(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	selector := ollama.NewModelSelector(ollama.NewClient(cfg.Ollama.BaseURL, cfg.Ollama.APIKey))
	models, err := selector.ListModels(cmd.Context())
	if err != nil {
		return err
	}
	if len(models) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No models installed. Run: ollama pull llama3.2")
		return nil
	}
	best, _ := ollama.SelectBestModel(models)

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tSIZE\tKIND\t")
	for _, m := range models {
		kind := "generation"
		if m.IsEmbedding() {
			kind = "embedding"
		}
		mark := ""
		if m.Name == best {
			mark = "recommended"
		}
		fmt.Fprintf(w, "%s\t%.1f GB\t%s\t%s\n", m.Name, float64(m.Size)/1e9, kind, mark)
	}
	return w.Flush()
}
