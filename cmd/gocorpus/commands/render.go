package commands

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"
	"github.com/jedib0t/go-pretty/v6/table"
	"gopkg.in/yaml.v3"

	"github.com/Sumatoshi-tech/gocorpus/pkg/aggregate"
	"github.com/Sumatoshi-tech/gocorpus/pkg/scan"
)

// Output formats.
const (
	FormatText = "text"
	FormatJSON = "json"
	FormatYAML = "yaml"
	FormatPlot = "plot"
)

// ErrUnknownFormat is returned for an unsupported --format value.
var ErrUnknownFormat = errors.New("unknown output format")

const (
	matchColumnWidth = 80
	plotLabelRotate  = 45
	plotLabelMax     = 40
	plotHeight       = "600px"
)

// report is what json and yaml output encode.
type report struct {
	scan.Summary `yaml:",inline"`

	Outcome scan.RunOutcome `json:"outcome" yaml:"outcome"`
}

func validFormat(format string) bool {
	switch format {
	case FormatText, FormatJSON, FormatYAML, FormatPlot:
		return true
	default:
		return false
	}
}

// renderSummary writes s in format, keeping at most limit results (0 keeps all).
func renderSummary(w io.Writer, s *scan.Summary, format string, limit int) error {
	trimmed := *s
	if limit > 0 && len(trimmed.Results) > limit {
		trimmed.Results = trimmed.Results[:limit]
	}

	switch format {
	case FormatText:
		return renderText(w, &trimmed, len(s.Results))
	case FormatJSON:
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")

		return enc.Encode(report{Summary: trimmed, Outcome: s.Outcome()})
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		defer enc.Close()

		return enc.Encode(report{Summary: trimmed, Outcome: s.Outcome()})
	case FormatPlot:
		return renderPlot(w, &trimmed)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

func renderText(w io.Writer, s *scan.Summary, distinct int) error {
	tbl := table.NewWriter()
	tbl.SetOutputMirror(w)
	tbl.SetStyle(table.StyleLight)
	tbl.Style().Options.DrawBorder = false
	tbl.Style().Options.SeparateColumns = false
	tbl.SetColumnConfigs([]table.ColumnConfig{{Number: 3, WidthMax: matchColumnWidth}})

	tbl.AppendHeader(table.Row{"#", "Count", "Match"})

	for i, entry := range s.Results {
		tbl.AppendRow(table.Row{i + 1, entry.Count, entry.Text})
	}

	if distinct > len(s.Results) {
		tbl.AppendFooter(table.Row{"", "", fmt.Sprintf("%d of %d distinct matches", len(s.Results), distinct)})
	}

	if len(s.Results) > 0 {
		tbl.Render()
		fmt.Fprintln(w)
	}

	bold := color.New(color.Bold)

	if s.ScoreDefined {
		bold.Fprintf(w, "Frequency score: %.2f", s.FrequencyScore)
		fmt.Fprintln(w, " (matches per 70 lines of code)")
	} else {
		bold.Fprintln(w, "Frequency score: n/a")
	}

	fmt.Fprintf(w, "Files: %d/%d  SLOC: %d  Hits: %d  Elapsed: %s\n",
		s.FilesScanned, s.FilesTotal, s.SLOCProcessed, s.Hits, s.Elapsed.Round(time.Millisecond))

	if s.DroppedKeys > 0 {
		color.New(color.FgYellow).Fprintf(w, "%d distinct matches were not counted: result limit reached\n", s.DroppedKeys)
	}

	switch s.Outcome() {
	case scan.RunInterrupted:
		color.New(color.FgYellow).Fprintln(w, "Interrupted: results are partial")
	case scan.RunFailed, scan.RunLoadFailed:
		color.New(color.FgRed).Fprintf(w, "Failed: %s\n", s.Err)
	case scan.RunCompleted:
	}

	return nil
}

func renderPlot(w io.Writer, s *scan.Summary) error {
	subtitle := fmt.Sprintf("%d hits in %d files", s.Hits, s.FilesScanned)
	if s.ScoreDefined {
		subtitle += fmt.Sprintf(", frequency score %.2f", s.FrequencyScore)
	}

	bar := charts.NewBar()
	bar.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{PageTitle: "gocorpus", Width: "100%", Height: plotHeight}),
		charts.WithTitleOpts(opts.Title{Title: "Top matches", Subtitle: subtitle}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
		charts.WithXAxisOpts(opts.XAxis{AxisLabel: &opts.AxisLabel{Rotate: plotLabelRotate, Interval: "0"}}),
		charts.WithYAxisOpts(opts.YAxis{Name: "Count"}),
	)

	labels, data := plotSeries(s.Results)
	bar.SetXAxis(labels)
	bar.AddSeries("Matches", data)

	return bar.Render(w)
}

func plotSeries(entries []aggregate.Entry) ([]string, []opts.BarData) {
	labels := make([]string, len(entries))
	data := make([]opts.BarData, len(entries))

	for i, entry := range entries {
		label := strings.Join(strings.Fields(entry.Text), " ")
		if runes := []rune(label); len(runes) > plotLabelMax {
			label = string(runes[:plotLabelMax]) + "..."
		}

		labels[i] = label
		data[i] = opts.BarData{Value: entry.Count}
	}

	return labels, data
}
