// Package cli provides styled terminal output for the customs commands.
package cli

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/Veraticus/customs-flow/internal/model"
)

var (
	// PrimaryColor is the main theme color.
	PrimaryColor = lipgloss.Color("#4A90D9")
	// SuccessColor indicates successful operations.
	SuccessColor = lipgloss.Color("#4ECDC4")
	// WarningColor indicates flagged or pending items.
	WarningColor = lipgloss.Color("#FFE66D")
	// ErrorColor indicates failures and rejections.
	ErrorColor = lipgloss.Color("#FF6B6B")
	// SubtleColor is used for secondary details.
	SubtleColor = lipgloss.Color("#666666")

	// TitleStyle is used for section titles.
	TitleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(PrimaryColor).
			MarginBottom(1)

	// SuccessStyle formats success messages.
	SuccessStyle = lipgloss.NewStyle().Foreground(SuccessColor)

	// WarningStyle formats warning messages.
	WarningStyle = lipgloss.NewStyle().Foreground(WarningColor)

	// ErrorStyle formats error messages.
	ErrorStyle = lipgloss.NewStyle().Foreground(ErrorColor)

	// SubtleStyle formats less prominent text.
	SubtleStyle = lipgloss.NewStyle().Foreground(SubtleColor)

	// BoxStyle is used for bordered detail views.
	BoxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#333")).
			Padding(1, 2)

	// TableHeaderStyle is used for table headers.
	TableHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				BorderStyle(lipgloss.NormalBorder()).
				BorderBottom(true).
				BorderForeground(lipgloss.Color("#333"))

	// TableCellStyle pads table cells.
	TableCellStyle = lipgloss.NewStyle().PaddingRight(2)
)

// Icons.
const (
	SuccessIcon = "✓"
	ErrorIcon   = "✗"
	WarningIcon = "⚠"
	FlagIcon    = "⚑"
	CustomsIcon = "🛃"
)

// FormatSuccess formats a success message with icon.
func FormatSuccess(message string) string {
	return SuccessStyle.Render(SuccessIcon + " " + message)
}

// FormatError formats an error message with icon.
func FormatError(message string) string {
	return ErrorStyle.Render(ErrorIcon + " " + message)
}

// FormatWarning formats a warning message with icon.
func FormatWarning(message string) string {
	return WarningStyle.Render(WarningIcon + " " + message)
}

// FormatTitle formats a title with the customs icon.
func FormatTitle(title string) string {
	return TitleStyle.Render(CustomsIcon + " " + title)
}

// RenderBox renders content in a styled box.
func RenderBox(title, content string) string {
	boxTitle := TitleStyle.UnsetMargins().Render(title)
	return BoxStyle.Render(lipgloss.JoinVertical(lipgloss.Left, boxTitle, content))
}

// FormatConfidence renders a confidence score, highlighting low values.
func FormatConfidence(confidence, threshold float64) string {
	text := fmt.Sprintf("%.2f", confidence)
	if confidence < threshold {
		return WarningStyle.Render(text)
	}
	return SuccessStyle.Render(text)
}

// FormatHSCode renders a line's code, or a placeholder when unclassified.
func FormatHSCode(code string) string {
	if code == "" {
		return SubtleStyle.Render("unclassified")
	}
	return code
}

// FormatFlag renders the review flag column.
func FormatFlag(flagged bool) string {
	if flagged {
		return WarningStyle.Render(FlagIcon)
	}
	return ""
}

// FormatInvoiceStatus colors an invoice status by lifecycle stage.
func FormatInvoiceStatus(status model.InvoiceStatus) string {
	switch status {
	case model.InvoiceStatusApproved:
		return SuccessStyle.Render(string(status))
	case model.InvoiceStatusRejected:
		return ErrorStyle.Render(string(status))
	case model.InvoiceStatusSubmitted:
		return WarningStyle.Render(string(status))
	default:
		return SubtleStyle.Render(string(status))
	}
}

// FormatSubmissionStatus colors a submission status by disposition.
func FormatSubmissionStatus(status model.SubmissionStatus) string {
	switch status {
	case model.SubmissionAccepted:
		return SuccessStyle.Render(string(status))
	case model.SubmissionRejected, model.SubmissionFailed:
		return ErrorStyle.Render(string(status))
	default:
		return WarningStyle.Render(string(status))
	}
}

// RenderTable lays rows out in columns under a header row.
// Column widths follow the widest rendered cell.
func RenderTable(headers []string, rows [][]string) string {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = lipgloss.Width(h)
	}
	for _, row := range rows {
		for i := 0; i < len(row) && i < len(widths); i++ {
			widths[i] = max(widths[i], lipgloss.Width(row[i]))
		}
	}

	renderRow := func(cells []string, style lipgloss.Style) string {
		out := make([]string, len(widths))
		for i := range widths {
			cell := ""
			if i < len(cells) {
				cell = cells[i]
			}
			out[i] = TableCellStyle.Width(widths[i] + 2).Render(cell)
		}
		return style.Render(lipgloss.JoinHorizontal(lipgloss.Top, out...))
	}

	lines := make([]string, 0, len(rows)+1)
	lines = append(lines, renderRow(headers, TableHeaderStyle))
	for _, row := range rows {
		lines = append(lines, renderRow(row, lipgloss.NewStyle()))
	}
	return strings.Join(lines, "\n")
}

// Truncate shortens s to at most n runes, marking the cut with an ellipsis.
func Truncate(s string, n int) string {
	runes := []rune(s)
	if n <= 0 || len(runes) <= n {
		return s
	}
	if n == 1 {
		return "…"
	}
	return string(runes[:n-1]) + "…"
}
