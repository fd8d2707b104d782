package cli

import (
	"context"
	"fmt"
	"log"

	"contest-engine/internal/config"
	"contest-engine/internal/jobs"
	"github.com/spf13/cobra"
)

// NewReplayCmd settles queued results once, for one user or all of them.
func NewReplayCmd(configPath *string) *cobra.Command {
	var userID string
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Retry settlement of queued results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(*configPath)
			if err != nil {
				return err
			}
			return runReplay(cmd.Context(), cfg, userID)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "", "only replay this user's result")
	return cmd
}

func runReplay(ctx context.Context, cfg config.Config, userID string) error {
	svc, cleanup, err := buildServices(ctx, cfg)
	if err != nil {
		return err
	}
	defer cleanup()

	if userID != "" {
		replayed, err := svc.reconciler.Replay(ctx, userID)
		if err != nil {
			return fmt.Errorf("replay %s: %w", userID, err)
		}
		log.Printf("replay %s: settled=%v", userID, replayed)
		return nil
	}

	settled, err := jobs.NewOutboxSweeper(svc.outbox, svc.reconciler).Sweep(ctx)
	if err != nil {
		return err
	}
	log.Printf("replayed %d queued result(s)", settled)
	return nil
}
