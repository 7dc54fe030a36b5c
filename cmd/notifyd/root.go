package main

import (
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "notifyd",
	Short: "Multi-channel notification dispatch daemon",
	Long: `notifyd delivers queued notifications over email, push and SMS,
reduces delivery outcomes into notification records and promotes
notifications deferred by quiet hours or a schedule once they are due.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.AddCommand(serveCmd, promoteCmd)
}
