package cmd

import (
	"fmt"
	"os"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/catalog"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/document"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/pkg/logger"
	"github.com/spf13/cobra"
)

// options are the flags shared by every subcommand.
type options struct {
	splitter   string
	normalizer string
	stopWords  bool
	logLevel   string
}

// NewRootCmd builds the command tree. Each call returns fresh flag state.
func NewRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "seqsearch",
		Short:         "seqsearch - longest in-order word runs in text files",
		Long:          "Align a query against every line of a document and report the longest runs of query words that appear in order, gaps allowed.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logger.SetupWriter(os.Stderr, opts.logLevel, "text")
		},
	}
	flags := root.PersistentFlags()
	flags.StringVar(&opts.splitter, "splitter", "whitespace", "line splitter: whitespace or words")
	flags.StringVar(&opts.normalizer, "normalizer", "identity", "word normaliser: identity, casefold or stem")
	flags.BoolVar(&opts.stopWords, "stopwords", false, "drop English stop words before matching")
	flags.StringVar(&opts.logLevel, "log-level", "warn", "log level for stderr diagnostics")

	root.AddCommand(newSearchCmd(opts))
	root.AddCommand(newStatsCmd(opts))
	root.AddCommand(newRemoteCmd())
	root.AddCommand(newKeysCmd())
	return root
}

// Execute runs the root command and prints any error to stderr.
func Execute() error {
	err := NewRootCmd().Execute()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
	}
	return err
}

// load builds a one-document catalog for path.
func (o *options) load(path string) (*catalog.Catalog, *document.Image, error) {
	cat, err := catalog.FromConfig(config.TokenizerConfig{
		Splitter:   o.splitter,
		Normalizer: o.normalizer,
		StopWords:  o.stopWords,
	}, config.DocumentsConfig{})
	if err != nil {
		return nil, nil, err
	}
	img, err := cat.LoadFile(path)
	if err != nil {
		return nil, nil, err
	}
	return cat, img, nil
}
