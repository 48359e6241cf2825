package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/bananahana720/RE-analysis-generator-sub002/internal/bootstrap"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/pipeline"
)

// maxLineBytes bounds one JSON line of the input file.
const maxLineBytes = 16 << 20

func runCommand() *cobra.Command {
	var (
		input  string
		source string
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Process a JSON Lines file of work items and exit",
		Long: `Reads one work item per line, for example
  {"source":"mls","payload":{"target":{"url":"https://example.com/l/1"}}}
  {"source":"mls","payload":{"content":"3 bed home, $450,000","content_type":"text/plain"}}
and processes them until every item is stored, rejected or dead-lettered.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			items, err := readItems(input, source)
			if err != nil {
				return err
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				summary, runErr := app.RunOnce(cmd.Context(), items)
				renderSummary(cmd.OutOrStdout(), summary)
				return runErr
			})
		},
	}
	cmd.Flags().StringVarP(&input, "input", "i", "-", "JSON Lines file of work items, - for stdin")
	cmd.Flags().StringVar(&source, "source", "", "source for items that do not name one")
	return cmd
}

func readItems(path, defaultSource string) ([]domain.WorkItem, error) {
	var r io.Reader = os.Stdin
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open input: %w", err)
		}
		defer f.Close()
		r = f
	}
	return decodeItems(r, defaultSource)
}

func decodeItems(r io.Reader, defaultSource string) ([]domain.WorkItem, error) {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var (
		items []domain.WorkItem
		line  int
	)
	for scanner.Scan() {
		line++
		raw := scanner.Bytes()
		if len(raw) == 0 {
			continue
		}
		var item domain.WorkItem
		if err := json.Unmarshal(raw, &item); err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		if item.Source == "" {
			item.Source = defaultSource
		}
		if item.Source == "" {
			return nil, fmt.Errorf("line %d: source is required", line)
		}
		if item.AttemptCount < 0 {
			return nil, fmt.Errorf("line %d: attempt_count must not be negative", line)
		}
		items = append(items, item)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read input: %w", err)
	}
	return items, nil
}

func renderSummary(w io.Writer, s pipeline.Summary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"Outcome", "Items"})
	t.AppendRows([]table.Row{
		{"accepted", s.Accepted},
		{"rejected", s.Rejected},
		{"dead-lettered", s.DeadLettered},
		{"requeued", s.Requeued},
	})
	t.AppendFooter(table.Row{"total", s.Total()})
	t.Render()
}
