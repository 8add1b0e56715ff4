package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"
)

// NewCleanupCommand creates the cleanup command.
func NewCleanupCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Purge records older than the retention window",
		Long: `Purge uniqueness records created before now minus RETENTION.

Exits non-zero when the store cannot be reached.`,
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := BuildEngine(rootOpts.Config, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			res, err := eng.Service.Cleanup(cmd.Context())
			if err != nil {
				return err
			}
			return emit(rootOpts, cmd.OutOrStdout(), res, func(w io.Writer) error {
				_, err := fmt.Fprintf(w, "purged %d records created before %s\n", res.Purged, res.Cutoff.UTC().Format(time.RFC3339))
				return err
			})
		},
	}
}
