package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"

	infralogger "github.com/bananahana720/RE-analysis-generator-sub002/infrastructure/logger"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/bootstrap"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/deadletter"
	"github.com/bananahana720/RE-analysis-generator-sub002/internal/domain"
)

const lastErrorWidth = 60

type dlqFlags struct {
	ids       []string
	source    string
	errorCode string
	limit     int
}

func (f *dlqFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringSliceVar(&f.ids, "id", nil, "entry ids")
	cmd.Flags().StringVar(&f.source, "source", "", "only entries from this source")
	cmd.Flags().StringVar(&f.errorCode, "error-code", "", "only entries with this error code")
	cmd.Flags().IntVar(&f.limit, "limit", 0, "maximum entries, 0 for all")
}

func (f *dlqFlags) filter() deadletter.ListFilter {
	return deadletter.ListFilter{
		IDs:       f.ids,
		Source:    f.source,
		ErrorCode: domain.ErrorCode(f.errorCode),
		Limit:     f.limit,
	}
}

func dlqCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "dlq",
		Short: "Inspect and replay dead-lettered items",
	}
	cmd.AddCommand(dlqListCommand(), dlqReplayCommand())
	return cmd
}

func dlqListCommand() *cobra.Command {
	var flags dlqFlags
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List dead-letter entries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				entries, err := app.DeadLetter.List(cmd.Context(), flags.filter())
				if err != nil {
					return fmt.Errorf("list dead letters: %w", err)
				}
				renderEntries(cmd.OutOrStdout(), entries)
				return nil
			})
		},
	}
	flags.register(cmd)
	return cmd
}

func dlqReplayCommand() *cobra.Command {
	var (
		flags dlqFlags
		all   bool
	)
	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Resubmit dead-letter entries and process them now",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := flags.filter()
			if filter.IsZero() && !all {
				return fmt.Errorf("select entries with --id, --source or --error-code, or pass --all")
			}
			return withApp(cmd.Context(), func(app *bootstrap.App) error {
				return replay(cmd.Context(), cmd.OutOrStdout(), app, filter)
			})
		},
	}
	flags.register(cmd)
	cmd.Flags().BoolVar(&all, "all", false, "replay every entry")
	return cmd
}

func replay(ctx context.Context, w io.Writer, app *bootstrap.App, filter deadletter.ListFilter) error {
	replayed, replayErr := app.Replayer.Replay(ctx, filter, app.Submit)
	app.Logger.Info("Dead letters resubmitted", infralogger.Int("count", replayed))
	if replayed > 0 {
		summary, err := app.Pipeline.Run(ctx)
		renderSummary(w, summary)
		if err != nil {
			return err
		}
	}
	if replayErr != nil {
		return fmt.Errorf("replay incomplete: %w", replayErr)
	}
	return nil
}

func renderEntries(w io.Writer, entries []domain.DeadLetterEntry) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleLight)
	t.AppendHeader(table.Row{"ID", "Item", "Source", "Code", "Attempts", "Enqueued", "Last error"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 5, Align: text.AlignRight},
		{Number: 7, WidthMax: lastErrorWidth},
	})
	for _, e := range entries {
		t.AppendRow(table.Row{
			e.ID, e.ItemID, e.Source, e.ErrorCode, e.AttemptCount,
			e.EnqueuedAt.Format(time.RFC3339), e.LastError,
		})
	}
	t.AppendFooter(table.Row{"", "", "", "", "", "total", len(entries)})
	t.Render()
}
