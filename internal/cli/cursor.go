package cli

import (
	"github.com/spf13/cobra"
)

func NewCursorCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "cursor",
		Short: "Inspect or override stored migration cursors",
	}

	show := &cobra.Command{
		Use:   "show [entity]",
		Short: "Print the last uploaded OrderKey per entity type",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(c *cobra.Command, args []string) error {
			entity := ""
			if len(args) == 1 {
				entity = args[0]
			}
			return runCursorShow(c, entity)
		},
	}

	set := &cobra.Command{
		Use:   "set <entity> <orderKey>",
		Short: "Store the last uploaded OrderKey for an entity type",
		Args:  cobra.ExactArgs(2),
		RunE: func(c *cobra.Command, args []string) error {
			return runCursorSet(c, args[0], args[1])
		},
	}

	cmd.AddCommand(show, set)
	return cmd
}
