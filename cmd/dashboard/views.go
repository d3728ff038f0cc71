package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/lipgloss"
	"github.com/rxtech-lab/marketboard/internal/depth"
	"github.com/rxtech-lab/marketboard/internal/types"
)

const (
	barWidth     = 20
	depthRows    = 10
	tradeRows    = 12
	sizePlaces   = 4
	percentPlace = 2
)

// NewSymbolInput creates the text input used to switch symbols.
func NewSymbolInput() textinput.Model {
	ti := textinput.New()
	ti.Placeholder = "ETH-USDT"
	ti.CharLimit = 20
	ti.Width = 20
	ti.Prompt = "symbol> "

	return ti
}

// NewTradesTable creates the recent trades table.
func NewTradesTable() table.Model {
	columns := []table.Column{
		{Title: "Time", Width: 10},
		{Title: "Side", Width: 5},
		{Title: "Price", Width: 14},
		{Title: "Qty", Width: 12},
	}

	t := table.New(
		table.WithColumns(columns),
		table.WithFocused(false),
		table.WithHeight(tradeRows),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.Foreground(lipgloss.NoColor{}).Bold(false)

	t.SetStyles(s)

	return t
}

// UpdateTradeRows replaces the table rows with trades, newest first.
func UpdateTradeRows(t table.Model, trades []types.Trade) table.Model {
	rows := make([]table.Row, 0, len(trades))

	for _, trade := range trades {
		rows = append(rows, table.Row{
			trade.ExecutedAt().Format("15:04:05"),
			string(trade.Side()),
			trade.Price.String(),
			trade.Quantity.StringFixed(sizePlaces),
		})
	}

	t.SetRows(rows)

	return t
}

// RenderTicker draws the headline numbers of the selected symbol.
func RenderTicker(ticker types.Ticker, previous types.Ticker) string {
	change := ticker.PriceChangePercent.StringFixed(percentPlace) + "%"
	if ticker.PriceChange.IsNegative() {
		change = AskStyle.Render(change)
	} else {
		change = BidStyle.Render("+" + change)
	}

	return fmt.Sprintf("Last %s   24h %s   High %s   Low %s   Vol %s",
		FormatPriceWithArrow(ticker.LastPrice, previous.LastPrice),
		change,
		ticker.HighPrice.String(),
		ticker.LowPrice.String(),
		ticker.Volume.StringFixed(percentPlace),
	)
}

// RenderDepth draws asks above bids with the spread between them, the way
// an order book ladder is read.
func RenderDepth(book depth.Book, rows int) string {
	var s strings.Builder

	asks := book.Asks
	if len(asks) > rows {
		asks = asks[:rows]
	}

	for _, level := range depth.StackTowardSpread(asks) {
		s.WriteString(depthRow(level, AskStyle))
		s.WriteString("\n")
	}

	s.WriteString(SpreadStyle.Render(spreadLine(book)))
	s.WriteString("\n")

	bids := book.Bids
	if len(bids) > rows {
		bids = bids[:rows]
	}

	for _, level := range bids {
		s.WriteString(depthRow(level, BidStyle))
		s.WriteString("\n")
	}

	return s.String()
}

// RenderDepthSideBySide draws bids and asks in two columns, best price on top.
func RenderDepthSideBySide(book depth.Book, rows int) string {
	column := func(title string, levels []types.DepthLevel, style lipgloss.Style) string {
		var s strings.Builder

		s.WriteString(TitleStyle.Render(title))
		s.WriteString("\n")

		for i, level := range levels {
			if i == rows {
				break
			}

			s.WriteString(depthRow(level, style))
			s.WriteString("\n")
		}

		return s.String()
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top,
			column("Bids", book.Bids, BidStyle),
			"  ",
			column("Asks", book.Asks, AskStyle),
		),
		SpreadStyle.Render(spreadLine(book)),
	)
}

func depthRow(level types.DepthLevel, style lipgloss.Style) string {
	return fmt.Sprintf("%14s %12s %14s %s",
		style.Render(level.Price.String()),
		level.Size.StringFixed(sizePlaces),
		level.CumulativeSize.StringFixed(sizePlaces),
		style.Render(DepthBar(level.PercentageOfMax, barWidth)),
	)
}

// DepthBar is a bar of at most width cells for a 0-100 percentage.
func DepthBar(percent float64, width int) string {
	if percent <= 0 || width <= 0 {
		return ""
	}

	if percent > 100 {
		percent = 100
	}

	cells := int(percent / 100 * float64(width))
	if cells == 0 {
		cells = 1
	}

	return strings.Repeat("█", cells)
}

func spreadLine(book depth.Book) string {
	spread, err := book.Spread.Take()
	if err != nil {
		return "spread: n/a"
	}

	line := fmt.Sprintf("spread %s (%.4f%%)", spread.Value.String(), spread.Percent)

	if imbalance, err := book.Imbalance().Take(); err == nil {
		line += fmt.Sprintf("   bids %.0f%%", imbalance*100)
	}

	return line
}

// NextPreset returns the first preset longer than current, or the longest.
func NextPreset(presets []time.Duration, current time.Duration) time.Duration {
	for _, p := range presets {
		if p > current {
			return p
		}
	}

	return presets[len(presets)-1]
}

// PrevPreset returns the last preset shorter than current, or the shortest.
func PrevPreset(presets []time.Duration, current time.Duration) time.Duration {
	for i := len(presets) - 1; i >= 0; i-- {
		if presets[i] < current {
			return presets[i]
		}
	}

	return presets[0]
}
