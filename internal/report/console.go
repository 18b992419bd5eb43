package report

import (
	"fmt"
	"io"
	"slices"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/seantiz/xbrowse/internal/browser"
	"github.com/seantiz/xbrowse/internal/model"
)

// maxErrorWidth wraps long error text in the failures table.
const maxErrorWidth = 80

// Print writes the run summary to w: counts per engine and status, then one
// row per non-passing unit with its error and artifacts. Colors are used
// only when color is true.
func Print(w io.Writer, r Results, color bool) {
	printSummary(w, r, color)
	printFailures(w, r)

	fmt.Fprintf(w, "Pass rate: %.1f%% (%d/%d) in %s\n",
		r.Summary.PassRate, r.Summary.ByStatus[model.StatusPassed], r.Summary.Total,
		formatDuration(time.Duration(r.Summary.DurationMS)*time.Millisecond))
	for _, d := range r.Diagnostics {
		fmt.Fprintf(w, "warning: %s\n", d)
	}
}

func printSummary(w io.Writer, r Results, color bool) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle(fmt.Sprintf("Run %s", r.RunID))

	header := table.Row{"Engine", "Version", "Total"}
	for _, st := range model.Statuses {
		header = append(header, st)
	}
	t.AppendHeader(header)

	configs := []table.ColumnConfig{{Name: "Total", Align: text.AlignRight}}
	for _, st := range model.Statuses {
		configs = append(configs, table.ColumnConfig{Name: st, Align: text.AlignRight})
	}
	t.SetColumnConfigs(configs)

	engines := make([]string, 0, len(r.Summary.ByEngine))
	for e := range r.Summary.ByEngine {
		engines = append(engines, e)
	}
	slices.Sort(engines)

	for _, e := range engines {
		ec := r.Summary.ByEngine[e]
		row := table.Row{e, r.BrowserVersions[e], ec.Total}
		for _, st := range model.Statuses {
			row = append(row, ec.ByStatus[st])
		}
		t.AppendRow(row)
	}

	footer := table.Row{"TOTAL", "", r.Summary.Total}
	for _, st := range model.Statuses {
		footer = append(footer, r.Summary.ByStatus[st])
	}
	t.AppendFooter(footer)

	switch {
	case !color:
		t.SetStyle(table.StyleLight)
	case failing(r.Summary) > 0:
		t.SetStyle(table.StyleColoredBlackOnRedWhite)
	default:
		t.SetStyle(table.StyleColoredBlackOnGreenWhite)
	}
	t.Render()
}

func printFailures(w io.Writer, r Results) {
	var rows []table.Row
	for _, o := range r.Outcomes {
		if o.Status == model.StatusPassed {
			continue
		}
		artifact := ""
		if len(o.Artifacts) > 0 {
			artifact = o.Artifacts[0]
		}
		rows = append(rows, table.Row{o.UnitID, o.Status, formatDuration(o.Duration()), o.Error, artifact})
	}
	if len(rows) == 0 {
		return
	}

	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Not passed")
	t.AppendHeader(table.Row{"Unit", "Status", "Duration", "Error", "Artifact"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Duration", Align: text.AlignRight},
		{Name: "Error", WidthMax: maxErrorWidth, WidthMaxEnforcer: text.WrapSoft},
	})
	t.AppendRows(rows)
	t.SetStyle(table.StyleLight)
	t.Render()
}

// PrintEngines writes the engine registry as a table: one row per engine
// with its status and either where it was found or why it is missing.
func PrintEngines(w io.Writer, engines []browser.EngineDescriptor) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetTitle("Browser engines")
	t.AppendHeader(table.Row{"Engine", "Family", "Status", "Source", "Detail"})
	for _, d := range engines {
		status, detail := "available", d.ExecutablePath
		if !d.Available {
			status, detail = "unavailable", d.Reason
		}
		t.AppendRow(table.Row{d.Name, d.Family, status, d.Source, detail})
	}
	t.SetStyle(table.StyleLight)
	t.Render()
}

func failing(s model.Summary) int {
	n := 0
	for st, c := range s.ByStatus {
		if model.IsFailureStatus(st) {
			n += c
		}
	}
	return n
}

func formatDuration(d time.Duration) string {
	return fmt.Sprintf("%.1fs", d.Seconds())
}
