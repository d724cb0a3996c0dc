// Package cli handles the command-line interface logic
// using the Cobra library.
package cli

import (
	"errors"

	"github.com/spf13/cobra"

	"github.com/BartekS5/blobmigrate/internal/etl"
)

// Process exit codes.
const (
	ExitOK      = 0
	ExitFailure = 1
	ExitConfig  = 2
	ExitPartial = 3
)

func NewRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "blobmigrate",
		Short: "blobmigrate - move document attachments from SQL Server into a document store",
		Long: `blobmigrate pages attachment payloads out of a CRM SQL Server database
and uploads them one by one to GridFS, WebDAV or S3, checkpointing the
last uploaded record so an interrupted run can be resumed.`,
		SilenceUsage: true,
		Run: func(cmd *cobra.Command, args []string) {
			cmd.Help()
		},
	}

	rootCmd.AddCommand(NewMigrateCmd(), NewCursorCmd())

	return rootCmd
}

// ExitCode maps a command error to the process exit status.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return ExitOK
	case errors.Is(err, etl.Config):
		return ExitConfig
	case errors.Is(err, etl.PartialBatch):
		return ExitPartial
	default:
		return ExitFailure
	}
}
