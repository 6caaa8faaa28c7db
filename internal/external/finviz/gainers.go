package finviz

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/wonny/gapscan/internal/contracts"
)

// ParseGainers extracts ticker symbols from a screener page. Every table is
// scanned since the result table's position shifts with page layout changes.
// limit <= 0 means no limit.
func ParseGainers(html string, limit int) []contracts.Ticker {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return []contracts.Ticker{}
	}

	var raw []string

	// Screener rows link each symbol to its quote page
	doc.Find("a.screener-link-primary, a.tab-link").Each(func(_ int, a *goquery.Selection) {
		if href, ok := a.Attr("href"); ok && !strings.Contains(href, "quote.ashx") {
			return
		}
		// Company names share the link class; symbols are printed uppercase
		text := strings.TrimSpace(a.Text())
		if text != strings.ToUpper(text) {
			return
		}
		raw = append(raw, text)
	})

	// Fallback: any table with a "Ticker" header column
	if len(raw) == 0 {
		doc.Find("table").Each(func(_ int, table *goquery.Selection) {
			raw = append(raw, tickerColumn(table)...)
		})
	}

	return contracts.UniqueTickers(raw, limit)
}

// tickerColumn returns the cell texts under a header named "Ticker"
func tickerColumn(table *goquery.Selection) []string {
	col := -1
	var out []string

	table.Find("tr").Each(func(_ int, row *goquery.Selection) {
		cells := row.ChildrenFiltered("th, td")
		if col < 0 {
			cells.EachWithBreak(func(i int, cell *goquery.Selection) bool {
				if strings.EqualFold(strings.TrimSpace(cell.Text()), "ticker") {
					col = i
					return false
				}
				return true
			})
			return
		}
		if cells.Length() <= col {
			return
		}
		out = append(out, strings.TrimSpace(cells.Eq(col).Text()))
	})

	return out
}
