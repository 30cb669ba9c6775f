package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/folioforge/concierge/core/config"
	"github.com/folioforge/concierge/core/docs"
	"github.com/folioforge/concierge/core/storage"
)

var indexDocsDir string

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Rebuild the help docs search index",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runIndex()
	},
}

func init() {
	indexCmd.Flags().StringVar(&indexDocsDir, "docs-dir", "", "docs source directory (overrides config)")
	rootCmd.AddCommand(indexCmd)
}

func runIndex() error {
	dirs := storage.ResolveDirs()
	manager := config.NewManager(dirs)
	if err := manager.Load(); err != nil {
		return err
	}
	cfg := manager.Get()

	sourceDir := cfg.Docs.SourceDir
	if indexDocsDir != "" {
		sourceDir = indexDocsDir
	}
	if sourceDir == "" {
		return fmt.Errorf("no docs source directory configured; pass --docs-dir or set docs.source_dir")
	}

	index := docs.NewIndex(docs.IndexConfig{
		Path:      cfg.Docs.IndexPath,
		SourceDir: sourceDir,
	})
	if err := index.Open(); err != nil {
		return fmt.Errorf("open index: %w", err)
	}
	defer index.Close()

	count, err := index.IndexDir(context.Background())
	if err != nil {
		return fmt.Errorf("index %s: %w", sourceDir, err)
	}

	total, _ := index.DocCount()
	fmt.Printf("indexed %d documents from %s (%d total)\n", count, sourceDir, total)
	return nil
}
