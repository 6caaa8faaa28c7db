package commands

import (
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/wonny/gapscan/internal/contracts"
	"github.com/wonny/gapscan/internal/screener"
)

// ═══════════════════════════════════════════════════════════
// Common Formatting Utilities
// Every command prints through these helpers so output stays uniform
// ═══════════════════════════════════════════════════════════

// TimestampFormat is the layout of the result table's time column
const TimestampFormat = "2006-01-02 15:04:05"

// headlineWidth caps the headline column
const headlineWidth = 60

// printer writes formatted output to w
type printer struct {
	w io.Writer
}

func newPrinter(w io.Writer) *printer {
	return &printer{w: w}
}

// Separator prints a visual separator
func (p *printer) Separator() {
	fmt.Fprintln(p.w, "───────────────────────────────────────────────────────────")
}

// DoubleSeparator prints a double-line separator
func (p *printer) DoubleSeparator() {
	fmt.Fprintln(p.w, "═══════════════════════════════════════════════════════════")
}

// Header prints a titled block header
func (p *printer) Header(title string) {
	fmt.Fprintln(p.w)
	p.DoubleSeparator()
	fmt.Fprintf(p.w, "  %s\n", title)
	p.Separator()
}

// Warning prints a warning message
func (p *printer) Warning(message string) {
	fmt.Fprintf(p.w, "⚠️  %s\n", message)
}

// Success prints a success message
func (p *printer) Success(message string) {
	fmt.Fprintf(p.w, "✅ %s\n", message)
}

// Info prints an info message
func (p *printer) Info(message string) {
	fmt.Fprintf(p.w, "ℹ️  %s\n", message)
}

// KeyValue prints key-value pairs
func (p *printer) KeyValue(key string, value string, keyWidth int) {
	fmt.Fprintf(p.w, "   %-*s : %s\n", keyWidth, key, value)
}

// TableHeader prints a table header
func (p *printer) TableHeader(columns []string, widths []int) {
	p.TableRow(columns, widths)

	totalWidth := 0
	for i, width := range widths {
		totalWidth += width
		if i < len(widths)-1 {
			totalWidth += 2 // spacing
		}
	}
	fmt.Fprintln(p.w, strings.Repeat("─", totalWidth))
}

// TableRow prints a table row
func (p *printer) TableRow(values []string, widths []int) {
	for i, val := range values {
		if i < len(values)-1 {
			fmt.Fprintf(p.w, "%-*s  ", widths[i], val)
		} else {
			fmt.Fprint(p.w, val)
		}
	}
	fmt.Fprintln(p.w)
}

// Criteria prints the active filter thresholds
func (p *printer) Criteria(c contracts.FilterCriteria) {
	p.KeyValue("Price", fmt.Sprintf("$%.2f ~ $%.2f", c.PriceMin, c.PriceMax), 10)
	p.KeyValue("% Change", fmt.Sprintf(">= %.1f%%", c.PercentChangeMin), 10)
	p.KeyValue("Rel. Vol", fmt.Sprintf(">= %.1fx (%d days)", c.RelativeVolumeMin, c.LookbackDays), 10)
	p.KeyValue("Float", fmt.Sprintf("<= %.1fM", c.FloatMaxMillions), 10)
	p.KeyValue("Max", fmt.Sprintf("%d candidates", c.MaxCandidates), 10)
}

var resultColumns = []string{"Ticker", "Price", "% Chg", "Rel Vol", "Float(M)", "Time", "Headline"}
var resultWidths = []int{6, 8, 8, 8, 9, 19, headlineWidth}

// Report prints the scan outcome: the candidate line, the results table or
// the empty-result message, then any warnings
func (p *printer) Report(r *screener.Report) {
	if r.NoCandidates {
		p.Info(r.Message())
		return
	}

	p.Info("Scanning the following tickers: " + contracts.JoinTickers(r.Candidates))
	fmt.Fprintln(p.w)

	if r.NoQualifying() {
		p.Info(r.Message())
	} else {
		p.TableHeader(resultColumns, resultWidths)
		for _, res := range r.Results {
			p.TableRow(resultRow(res), resultWidths)
		}
		fmt.Fprintln(p.w)
		p.Success(r.Message())
	}

	if len(r.Warnings) > 0 {
		fmt.Fprintln(p.w)
		for _, w := range r.Warnings {
			p.Warning(fmt.Sprintf("%s [%s] %s", w.Ticker, w.Stage, w.Message))
		}
	}
}

func resultRow(r contracts.ScreenResult) []string {
	return []string{
		string(r.Ticker),
		fmt.Sprintf("%.2f", r.Price),
		fmt.Sprintf("%.2f", r.PercentChange),
		fmt.Sprintf("%.2f", r.RelativeVolume),
		fmt.Sprintf("%.1f", r.FloatMillions),
		r.ComputedAt.Local().Format(TimestampFormat),
		truncate(r.Headline, headlineWidth),
	}
}

// truncate shortens s to max runes, marking the cut with an ellipsis
func truncate(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + "…"
}

// Rejections lists why each non-qualifying candidate was dropped
func (p *printer) Rejections(r *screener.Report) {
	if len(r.Rejected) == 0 && len(r.Skipped) == 0 {
		return
	}
	fmt.Fprintln(p.w)
	p.Separator()
	for _, t := range contracts.SortedTickers(r.Rejected) {
		p.KeyValue(string(t), r.Rejected[t], 6)
	}
	for _, t := range r.Skipped {
		p.KeyValue(string(t), "invalid quote", 6)
	}
}
