package cmd

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func newStatsCmd(opts *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "stats <file>",
		Short: "Show document statistics and the most frequent words",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cat, img, err := opts.load(args[0])
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintf(w, "document\t%s\n", img.Name())
			fmt.Fprintf(w, "lines\t%d\n", img.NumLines())
			fmt.Fprintf(w, "words\t%d\n", img.TokenCount())
			fmt.Fprintf(w, "distinct\t%d\n", img.VocabularySize())
			fmt.Fprintf(w, "longest line\t%d\n", img.LongestLine())

			entries := img.Snapshot()
			if top >= 0 && len(entries) > top {
				entries = entries[:top]
			}
			if len(entries) > 0 {
				fmt.Fprintln(w)
				fmt.Fprintln(w, "word\tcount")
				for _, e := range entries {
					fmt.Fprintf(w, "%s\t%d\n", cat.Registry().Text(e.Word), len(e.Positions))
				}
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "most frequent words to list")
	return cmd
}
