package main

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"
)

var promoteLimit int

var promoteCmd = &cobra.Command{
	Use:   "promote",
	Short: "Promote due deferred notifications once and exit",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		a, err := newApp(ctx)
		if err != nil {
			return err
		}
		defer a.close(ctx)

		if err := a.aggregator.Start(context.WithoutCancel(ctx)); err != nil {
			return err
		}
		defer func() { _ = a.aggregator.Stop() }()

		limit := a.notify.PromoteLimit
		if promoteLimit > 0 {
			limit = promoteLimit
		}

		n, err := a.dispatcher.PromoteDue(ctx, time.Now(), limit)
		if err != nil {
			return fmt.Errorf("promoted %d records, the rest are left for the next run: %w", n, err)
		}
		a.logger.LogAttrs(ctx, slog.LevelInfo, "promoted deferred notifications", slog.Int("count", n))
		return nil
	},
}

func init() {
	promoteCmd.Flags().IntVar(&promoteLimit, "limit", 0, "maximum records to promote (defaults to NOTIFY_PROMOTE_LIMIT)")
}
