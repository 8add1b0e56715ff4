package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

// NewStatsCommand creates the stats command.
func NewStatsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:          "stats",
		Short:        "Print uniqueness store statistics",
		Args:         cobra.NoArgs,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			eng, err := BuildEngine(rootOpts.Config, nil)
			if err != nil {
				return err
			}
			defer eng.Close()

			st := eng.Service.Statistics(cmd.Context())
			return emit(rootOpts, cmd.OutOrStdout(), st, func(w io.Writer) error {
				if !st.StoreAvailable {
					_, err := fmt.Fprintln(w, "store unavailable")
					return err
				}
				_, err := fmt.Fprintf(w, "total messages:   %d\nunique subjects:  %d\nlast 24h:         %d\nlast 7d:          %d\n",
					st.Store.TotalMessages, st.Store.UniqueSubjects, st.Store.MessagesLast24h, st.Store.MessagesLast7d)
				return err
			})
		},
	}
}
