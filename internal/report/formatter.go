// Package report renders pipeline results as plain text.
package report

import (
	"fmt"
	"math"
	"strings"
	"text/tabwriter"

	"github.com/dustin/go-humanize"

	"StockDash/internal/model"
	"StockDash/internal/pipeline"
)

// MsgNoChart is appended to every degraded result.
const MsgNoChart = "No chart, please adjust inputs."

// MsgNoMetrics is shown when the metric selection matches no column.
const MsgNoMetrics = "Please select at least one metric to visualize."

// Options controls which sections are rendered.
type Options struct {
	// Metrics selects the columns summarized in the metrics section.
	// Nil means Close only. Unknown names are ignored.
	Metrics []string
	// ShowRaw adds the row table, newest first.
	ShowRaw bool
	// MaxRows caps the row table. 0 means every row.
	MaxRows int
}

// Format renders res according to opts.
func Format(res pipeline.Result, opts Options) string {
	var b strings.Builder

	if !res.OK() {
		b.WriteString(res.Message)
		b.WriteString("\n")
		b.WriteString(MsgNoChart)
		b.WriteString("\n")
		return b.String()
	}

	st := res.Stats
	fmt.Fprintf(&b, "%s Stock Analysis | %s\n\n", res.Ticker, res.Range)
	fmt.Fprintf(&b, "First Date: %s   Last Date: %s   Latest Close: $%.2f (%+.2f%%)\n\n",
		st.FirstDate.Format(model.DateLayout), st.LastDate.Format(model.DateLayout), st.LatestClose, st.PctChange)

	b.WriteString("Key Statistics\n")
	fmt.Fprintf(&b, "  52 Week High: $%.2f   52 Week Low: $%.2f\n", st.Week52High, st.Week52Low)
	fmt.Fprintf(&b, "  Average Volume: %s   Current Volume: %s\n\n", Volume(st.AvgVolume), Volume(st.LatestVolume))

	writeMetrics(&b, res.Series, opts.Metrics)

	if opts.ShowRaw {
		b.WriteString("\nRaw Data\n")
		writeRows(&b, res.Series, opts.MaxRows)
	}
	return b.String()
}

// Volume formats v with thousands separators and no decimals.
func Volume(v float64) string {
	if math.IsNaN(v) {
		return "-"
	}
	return humanize.Comma(int64(math.Round(v)))
}

// SelectMetrics returns the requested metrics that exist in series, in
// column order. A nil request selects Close.
func SelectMetrics(series *model.TimeSeries, requested []string) []string {
	if requested == nil {
		requested = []string{model.FieldClose}
	}
	want := make(map[string]bool, len(requested))
	for _, m := range requested {
		want[strings.TrimSpace(m)] = true
	}
	var out []string
	for _, name := range series.Names() {
		if want[name] {
			out = append(out, name)
		}
	}
	return out
}

func writeMetrics(b *strings.Builder, series *model.TimeSeries, requested []string) {
	selected := SelectMetrics(series, requested)
	if len(selected) == 0 {
		b.WriteString(MsgNoMetrics)
		b.WriteString("\n")
		return
	}

	b.WriteString("Metrics\n")
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(tw, "\tMetric\tLatest\tMin\tMax\t")
	for _, name := range selected {
		values, _ := series.Column(name)
		lo, hi := minMax(values)
		fmt.Fprintf(tw, "\t%s\t%s\t%s\t%s\t\n", name,
			cell(name, values[len(values)-1]), cell(name, lo), cell(name, hi))
	}
	tw.Flush()
}

func writeRows(b *strings.Builder, series *model.TimeSeries, maxRows int) {
	names := series.Names()
	tw := tabwriter.NewWriter(b, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintf(tw, "\tDate\t%s\t\n", strings.Join(names, "\t"))

	shown := 0
	for i := series.Len() - 1; i >= 0; i-- {
		if maxRows > 0 && shown == maxRows {
			break
		}
		cells := make([]string, len(names))
		for j, c := range series.Columns {
			cells[j] = cell(names[j], c.Values[i])
		}
		fmt.Fprintf(tw, "\t%s\t%s\t\n", series.Dates[i].Format(model.DateLayout), strings.Join(cells, "\t"))
		shown++
	}
	tw.Flush()
}

func cell(name string, v float64) string {
	if name == model.FieldVolume {
		return Volume(v)
	}
	if math.IsNaN(v) {
		return "-"
	}
	return fmt.Sprintf("%.2f", v)
}

func minMax(values []float64) (lo, hi float64) {
	lo, hi = math.Inf(1), math.Inf(-1)
	for _, v := range values {
		if math.IsNaN(v) {
			continue
		}
		lo = math.Min(lo, v)
		hi = math.Max(hi, v)
	}
	if math.IsInf(lo, 1) {
		return math.NaN(), math.NaN()
	}
	return lo, hi
}
