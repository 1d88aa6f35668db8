// seqsearch finds the longest in-order runs of query words in a text file.
package main

import (
	"os"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/cmd/seqsearch/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
