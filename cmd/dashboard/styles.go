package main

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/shopspring/decimal"
)

// Style definitions.
var (
	TitleStyle = lipgloss.NewStyle().Bold(true)

	HelpStyle = lipgloss.NewStyle().Faint(true)

	ErrorStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("9"))

	// BannerStyle marks synthetic data.
	BannerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("0")).
			Background(lipgloss.Color("214")).
			Padding(0, 1)

	BidStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("2"))

	AskStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("1"))

	SpreadStyle = lipgloss.NewStyle().Faint(true).Italic(true)

	PanelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)
)

// FormatPriceWithArrow marks a price that moved since the previous render.
func FormatPriceWithArrow(current, previous decimal.Decimal) string {
	priceStr := current.String()

	if previous.IsZero() {
		return priceStr
	}

	switch current.Cmp(previous) {
	case 1:
		return BidStyle.Render(priceStr + " ▲")
	case -1:
		return AskStyle.Render(priceStr + " ▼")
	default:
		return priceStr
	}
}
