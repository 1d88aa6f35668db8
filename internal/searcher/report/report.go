// Package report turns matching results into the JSON and text shapes served
// to clients. Word IDs are resolved back to text through the registry that
// built the document.
package report

import (
	"fmt"
	"io"
	"strings"

	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/indexer/vocabulary"
	"github.com/Adithya-Monish-Kumar-K/sequence-search/internal/searcher/matching"
)

type Report struct {
	Document     string        `json:"document"`
	Query        string        `json:"query"`
	Strategy     string        `json:"strategy"`
	MaxLength    int           `json:"max_length"`
	TotalMatches int           `json:"total_matches"`
	Groups       []GroupReport `json:"groups"`
	TookMs       float64       `json:"took_ms"`
	Cached       bool          `json:"cached"`
}

// GroupReport describes every window of one run length. Count is exact even
// when Windows was cut to a limit.
type GroupReport struct {
	Length    int            `json:"length"`
	Count     int            `json:"count"`
	Truncated bool           `json:"truncated,omitempty"`
	Windows   []WindowReport `json:"windows"`
}

// WindowReport is one window. Line is 1-based, Start is the 0-based word
// offset within the line.
type WindowReport struct {
	Line  int      `json:"line"`
	Start int      `json:"start"`
	Text  string   `json:"text"`
	Words []string `json:"words"`
}

// Options control how much of a result ends up in the report.
type Options struct {
	Document string
	Query    string
	Strategy string
	// Limit caps the windows listed per group; 0 lists all of them.
	Limit int
}

// Build converts result into a Report.
func Build(result *matching.Result, registry *vocabulary.Registry, opts Options) *Report {
	groups := result.Groups()
	rep := &Report{
		Document:     opts.Document,
		Query:        opts.Query,
		Strategy:     opts.Strategy,
		MaxLength:    result.MaxLength(),
		TotalMatches: result.TotalWindows(),
		Groups:       make([]GroupReport, 0, len(groups)),
	}

	for _, g := range groups {
		windows := g.Windows
		truncated := false
		if opts.Limit > 0 && len(windows) > opts.Limit {
			windows = windows[:opts.Limit]
			truncated = true
		}
		gr := GroupReport{
			Length:    g.Length,
			Count:     g.Count(),
			Truncated: truncated,
			Windows:   make([]WindowReport, len(windows)),
		}
		for i, w := range windows {
			words := registry.Texts(w.Words)
			gr.Windows[i] = WindowReport{
				Line:  w.Line + 1,
				Start: w.Start,
				Text:  strings.Join(words, " "),
				Words: words,
			}
		}
		rep.Groups = append(rep.Groups, gr)
	}
	return rep
}

// NoMatch reports whether the search found nothing.
func (r *Report) NoMatch() bool {
	return r.MaxLength == 0
}

// WriteText renders the report in the command-line format:
//
//	length 2 (1 match)
//	  4:5  safely delivered
func (r *Report) WriteText(w io.Writer) error {
	if _, err := fmt.Fprintf(w, "%s: %q (%s)\n", r.Document, r.Query, r.Strategy); err != nil {
		return err
	}
	if r.NoMatch() {
		_, err := fmt.Fprintln(w, "no matches")
		return err
	}
	for _, g := range r.Groups {
		noun := "matches"
		if g.Count == 1 {
			noun = "match"
		}
		if _, err := fmt.Fprintf(w, "length %d (%d %s)\n", g.Length, g.Count, noun); err != nil {
			return err
		}
		for _, win := range g.Windows {
			if _, err := fmt.Fprintf(w, "  %d:%d  %s\n", win.Line, win.Start, win.Text); err != nil {
				return err
			}
		}
		if g.Truncated {
			if _, err := fmt.Fprintf(w, "  ... %d more\n", g.Count-len(g.Windows)); err != nil {
				return err
			}
		}
	}
	return nil
}
