package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/brand-cli/internal/model"
	"github.com/sells-group/brand-cli/internal/scorer"
)

var scoreCmd = &cobra.Command{
	Use:   "score <document.json>",
	Short: "Score a brand document without storing it",
	Long: `Computes the completion score of a brand document read from a JSON file
("-" reads stdin). The default table output lists every scored section with its
filled and total field counts.

Examples:
  score acme.json
  score --format json acme.json
  cat acme.json | score -`,
	Args: cobra.ExactArgs(1),
	RunE: runScore,
}

func init() {
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, args []string) error {
	doc, err := readDocument(cmd.InOrStdin(), args[0])
	if err != nil {
		return err
	}

	b := scorer.Explain(doc)
	out := cmd.OutOrStdout()
	if cmd.Flags().Changed("format") {
		return printOutput(out, outputFormat, b)
	}
	return writeScoreTable(out, b)
}

// readDocument decodes a JSON object from path, or from in when path is "-".
func readDocument(in io.Reader, path string) (model.Document, error) {
	var data []byte
	var err error
	if path == "-" {
		data, err = io.ReadAll(in)
	} else {
		data, err = os.ReadFile(path)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "read document %s", path)
	}

	var doc model.Document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, eris.Wrapf(err, "parse document %s", path)
	}
	if doc == nil {
		return nil, eris.Errorf("document %s is not a JSON object", path)
	}
	return doc, nil
}

func writeScoreTable(w io.Writer, b scorer.Breakdown) error {
	header := fmt.Sprintf("%-24s %-8s %7s\n", "Section", "Present", "Fields")
	if _, err := fmt.Fprint(w, header); err != nil {
		return eris.Wrap(err, "score: write table header")
	}
	if _, err := fmt.Fprintln(w, strings.Repeat("-", 41)); err != nil {
		return eris.Wrap(err, "score: write table separator")
	}

	for _, s := range b.Sections {
		line := fmt.Sprintf("%-24s %-8v %3d/%-3d\n", s.Section, s.Present, s.FilledFields, s.TotalFields)
		if _, err := fmt.Fprint(w, line); err != nil {
			return eris.Wrap(err, "score: write table row")
		}
	}

	_, err := fmt.Fprintf(w, "\nSections %d/%d, fields %d/%d, score %d (%s)\n",
		b.FilledSections, b.TotalSections, b.FilledFields, b.TotalFields, b.Score, scorer.StatusFor(b.Score))
	return eris.Wrap(err, "score: write summary")
}
