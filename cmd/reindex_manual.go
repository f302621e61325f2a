package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/psds-microservice/field-service/internal/application"
	"github.com/psds-microservice/field-service/internal/knowledge"
	"github.com/spf13/cobra"
)

var reindexManualCmd = &cobra.Command{
	Use:   "reindex-manual [fragments-file]",
	Short: "Embed equipment manual fragments into the vector index (default MANUAL_FRAGMENTS_PATH)",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runReindexManual,
}

func runReindexManual(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if !cfg.LLMEnabled() {
		return errors.New("reindex-manual: LLM_API_KEY is required to compute embeddings")
	}
	path := cfg.Knowledge.FragmentsPath
	if len(args) == 1 {
		path = args[0]
	}
	ai, err := application.NewAssistant(cfg)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Minute)
	defer cancel()
	n, err := knowledge.Reindex(ctx, ai.Index, path)
	if err != nil {
		return fmt.Errorf("reindex %s: %w", path, err)
	}
	slog.Info("reindex-manual: done", "fragments", n, "index_size", ai.Index.Count(), "dir", cfg.Knowledge.VectorDir)
	return nil
}
