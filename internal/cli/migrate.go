package cli

import (
	"github.com/spf13/cobra"

	"github.com/BartekS5/blobmigrate/internal/etl"
)

type MigrateOptions struct {
	Entity    string
	From      int64
	HasFrom   bool
	PageSize  int
	ChunkSize int
	DryRun    bool
	Label     string
}

func NewMigrateCmd() *cobra.Command {
	opts := &MigrateOptions{}

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Attachment migration operations",
		PersistentPreRun: func(c *cobra.Command, args []string) {
			opts.HasFrom = c.Flags().Changed("from")
		},
	}

	cmd.PersistentFlags().StringVarP(&opts.Entity, "entity", "e", "", "Entity type to migrate (e.g. Account)")
	cmd.PersistentFlags().Int64Var(&opts.From, "from", 0, "First OrderKey to migrate (inclusive); overrides the stored cursor")
	cmd.PersistentFlags().IntVarP(&opts.PageSize, "page-size", "p", etl.DefaultPageSize, "Records fetched per source query")
	cmd.MarkPersistentFlagRequired("entity")

	run := &cobra.Command{
		Use:   "run",
		Short: "Upload every pending attachment of an entity type",
		RunE: func(c *cobra.Command, args []string) error {
			return runMigration(c, opts)
		},
	}
	run.Flags().IntVarP(&opts.ChunkSize, "chunk-size", "c", etl.DefaultChunkSize, "Records per checkpointed transfer")
	run.Flags().BoolVar(&opts.DryRun, "dry-run", false, "Page through the source without uploading or checkpointing")
	run.Flags().StringVar(&opts.Label, "label", etl.DefaultLabel, "Progress line label")

	count := &cobra.Command{
		Use:   "count",
		Short: "Report how many attachments are pending for an entity type",
		RunE: func(c *cobra.Command, args []string) error {
			return runCount(c, opts)
		},
	}

	cmd.AddCommand(run, count)
	return cmd
}
