package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/executor"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/matching"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/spf13/cobra"
)

type searchOptions struct {
	*options
	strategy string
	limit    int
	workers  int
	timeout  time.Duration
	json     bool
}

func newSearchCmd(opts *options) *cobra.Command {
	so := &searchOptions{options: opts}
	cmd := &cobra.Command{
		Use:   "search <file> [query...]",
		Short: "Find the longest runs of query words in a file",
		Long: "Search aligns the query against every line of <file>. The query is the remaining " +
			"arguments joined by spaces; without them, each line of stdin is run as a separate query.",
		Args: cobra.MinimumNArgs(1),
		RunE: so.run,
	}
	f := cmd.Flags()
	f.StringVar(&so.strategy, "strategy", matching.StrategySubsequence,
		"alignment strategy: "+strings.Join(matching.StrategyNames(), " or "))
	f.IntVar(&so.limit, "limit", 0, "windows listed per length (0 lists all)")
	f.IntVar(&so.workers, "workers", 1, "lines aligned in parallel")
	f.DurationVar(&so.timeout, "timeout", 0, "abort a query after this long (0 disables)")
	f.BoolVar(&so.json, "json", false, "print reports as JSON")
	return cmd
}

func (so *searchOptions) run(cmd *cobra.Command, args []string) error {
	cat, img, err := so.load(args[0])
	if err != nil {
		return err
	}
	exec := executor.New(cat, config.SearchConfig{
		DefaultStrategy: so.strategy,
		Workers:         so.workers,
		Timeout:         so.timeout,
	}, nil)

	out := cmd.OutOrStdout()
	if len(args) > 1 {
		return so.search(cmd, exec, img.Name(), strings.Join(args[1:], " "), out)
	}

	scanner := bufio.NewScanner(cmd.InOrStdin())
	first := true
	for scanner.Scan() {
		if !first && !so.json {
			fmt.Fprintln(out)
		}
		first = false
		if err := so.search(cmd, exec, img.Name(), scanner.Text(), out); err != nil {
			return err
		}
	}
	return scanner.Err()
}

func (so *searchOptions) search(cmd *cobra.Command, exec *executor.Executor, doc, query string, out io.Writer) error {
	req, err := exec.Normalize(executor.Request{Document: doc, Query: query, Strategy: so.strategy, Limit: so.limit})
	if err != nil {
		return err
	}
	rep, err := exec.Execute(cmd.Context(), req)
	if err != nil {
		return err
	}
	if so.json {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}
	return rep.WriteText(out)
}
