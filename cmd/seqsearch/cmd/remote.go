package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/remote"
	"github.com/spf13/cobra"
)

type remoteOptions struct {
	addr     string
	timeout  time.Duration
	strategy string
	limit    int
	json     bool
}

func newRemoteCmd() *cobra.Command {
	ro := &remoteOptions{}
	cmd := &cobra.Command{
		Use:   "remote",
		Short: "Query a running search service over RPC",
	}
	pf := cmd.PersistentFlags()
	pf.StringVar(&ro.addr, "addr", "localhost:9091", "RPC address of the search service")
	pf.DurationVar(&ro.timeout, "timeout", 10*time.Second, "deadline for each call")

	search := &cobra.Command{
		Use:   "search <document> [query...]",
		Short: "Search a document held by the service",
		Args:  cobra.MinimumNArgs(1),
		RunE:  ro.search,
	}
	f := search.Flags()
	f.StringVar(&ro.strategy, "strategy", "", "alignment strategy (service default when empty)")
	f.IntVar(&ro.limit, "limit", 0, "windows listed per length (0 uses the service default)")
	f.BoolVar(&ro.json, "json", false, "print the report as JSON")

	docs := &cobra.Command{
		Use:   "docs",
		Short: "List the documents held by the service",
		Args:  cobra.NoArgs,
		RunE:  ro.docs,
	}

	cmd.AddCommand(search, docs)
	return cmd
}

func (ro *remoteOptions) dial(cmd *cobra.Command) (*remote.Client, context.Context, context.CancelFunc, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), ro.timeout)
	c, err := remote.Dial(ctx, ro.addr)
	if err != nil {
		cancel()
		return nil, nil, nil, err
	}
	return c, ctx, cancel, nil
}

func (ro *remoteOptions) search(cmd *cobra.Command, args []string) error {
	c, ctx, cancel, err := ro.dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	rep, err := c.Search(ctx, executor.Request{
		Document: args[0],
		Query:    strings.Join(args[1:], " "),
		Strategy: ro.strategy,
		Limit:    ro.limit,
	})
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if ro.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return rep.WriteText(out)
}

func (ro *remoteOptions) docs(cmd *cobra.Command, _ []string) error {
	c, ctx, cancel, err := ro.dial(cmd)
	if err != nil {
		return err
	}
	defer cancel()
	defer c.Close()

	docs, err := c.ListDocuments(ctx)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tLINES\tWORDS\tVOCABULARY")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\n", d.Name, d.Lines, d.Tokens, d.Vocabulary)
	}
	return tw.Flush()
}
