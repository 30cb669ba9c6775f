package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/folioforge/concierge/core/config"
	"github.com/folioforge/concierge/core/state"
	"github.com/folioforge/concierge/core/storage"
)

var stateCmd = &cobra.Command{
	Use:   "state",
	Short: "Inspect stored conversation state",
}

var stateShowCmd = &cobra.Command{
	Use:   "show <conversation-id>",
	Short: "Print a conversation's stored state as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runStateShow(args[0])
	},
}

func init() {
	stateCmd.AddCommand(stateShowCmd)
	rootCmd.AddCommand(stateCmd)
}

func runStateShow(conversationID string) error {
	dirs := storage.ResolveDirs()
	manager := config.NewManager(dirs)
	if err := manager.Load(); err != nil {
		return err
	}

	store, err := state.NewSQLiteStore(state.SQLiteConfig{
		Path: manager.Get().State.Path,
	})
	if err != nil {
		return fmt.Errorf("open state store: %w", err)
	}
	defer store.Close()

	st, err := store.Get(context.Background(), conversationID)
	if errors.Is(err, state.ErrNotFound) {
		return fmt.Errorf("conversation %s not found", conversationID)
	}
	if err != nil {
		return err
	}

	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(st)
}
