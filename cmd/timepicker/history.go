package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"github.com/mtpick/timepicker/internal/db"
	"github.com/mtpick/timepicker/internal/history"
	"github.com/mtpick/timepicker/internal/marks"
)

var (
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("15")).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	borderStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))

	statusColors = map[string]lipgloss.Color{
		history.StatusSucceeded: lipgloss.Color("42"),
		history.StatusSent:      lipgloss.Color("39"),
		history.StatusRunning:   lipgloss.Color("214"),
		history.StatusFailed:    lipgloss.Color("196"),
	}
)

const statusColumn = 3

func newHistoryCmd(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent dispatches of marked time points",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			database, err := db.New(a.cfg.DBPath(), a.logger)
			if err != nil {
				return fmt.Errorf("failed to open history: %w", err)
			}
			defer database.Close()

			rows, err := history.NewRepository(database.Conn()).List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			renderHistory(cmd.OutOrStdout(), rows)
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of dispatches to show")
	return cmd
}

func renderHistory(w io.Writer, rows []*history.Dispatch) {
	if len(rows) == 0 {
		fmt.Fprintln(w, "no dispatches yet")
		return
	}

	data := make([][]string, len(rows))
	for i, d := range rows {
		data[i] = []string{
			d.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			d.Kind,
			d.Target,
			d.Status,
			formatMarks(d.Marks),
			strings.Join(d.Flags, " "),
		}
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(borderStyle).
		Headers("WHEN", "KIND", "TARGET", "STATUS", "MARKS", "FLAGS").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == statusColumn && row >= 0 && row < len(rows) {
				if c, ok := statusColors[rows[row].Status]; ok {
					return cellStyle.Foreground(c)
				}
			}
			return cellStyle
		})

	fmt.Fprintln(w, t.Render())
}

func formatMarks(times []float64) string {
	parts := make([]string, len(times))
	for i, t := range times {
		parts[i] = marks.FormatDuration(t)
	}
	return strings.Join(parts, " ")
}
