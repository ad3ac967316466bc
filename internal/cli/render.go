package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/solbeam/solbeam/internal/batch"
	"github.com/solbeam/solbeam/internal/executor"
)

// Column widths for the status table.
const (
	colIndexWidth     = 5
	colRecipientWidth = 44
	colAmountWidth    = 16
	colStateWidth     = 10
	colAttemptsWidth  = 8
)

// Styles for state cells. Colors are dropped automatically when stdout is not
// a terminal.
//
//nolint:gochecknoglobals // Render styles are fixed at startup.
var (
	headerStyle    = lipgloss.NewStyle().Bold(true)
	confirmedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	submittedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	failedStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// amountPrinter inserts thousands separators into the integer part of a
// decimal amount string.
func amountPrinter(raw string) string {
	intPart, fracPart, hasFrac := strings.Cut(raw, ".")
	n, err := strconv.ParseInt(intPart, 10, 64)
	if err != nil {
		return raw
	}
	printer := message.NewPrinter(language.English)
	out := printer.Sprintf("%d", n)
	if hasFrac {
		out += "." + fracPart
	}
	return out
}

// stateCell renders a record state with its color when appropriate.
func stateCell(state batch.State) string {
	text := string(state)
	if !isTerminal(os.Stdout) {
		return text
	}
	switch state {
	case batch.StateConfirmed:
		return confirmedStyle.Render(text)
	case batch.StateSubmitted:
		return submittedStyle.Render(text)
	case batch.StateFailed:
		return failedStyle.Render(text)
	default:
		return text
	}
}

// renderReport writes the per-record status table plus a summary line. Every
// run and confirm invocation ends with this table.
func renderReport(w io.Writer, batchName string, report *executor.Report) {
	header := fmt.Sprintf("%-*s %-*s %*s %-*s %*s %s",
		colIndexWidth, "INDEX",
		colRecipientWidth, "RECIPIENT",
		colAmountWidth, "AMOUNT",
		colStateWidth, "STATE",
		colAttemptsWidth, "ATTEMPTS",
		"SIGNATURE / ERROR")
	if isTerminal(os.Stdout) {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w, header)

	for i := range report.Records {
		rec := &report.Records[i]
		detail := rec.Handle
		if rec.State == batch.StateFailed && rec.LastError != "" {
			detail = rec.LastError
		}
		fmt.Fprintf(w, "%-*d %-*s %*s %-*s %*d %s\n",
			colIndexWidth, rec.Index,
			colRecipientWidth, rec.Request.Recipient,
			colAmountWidth, amountPrinter(rec.Request.Amount.String()),
			colStateWidth, stateCell(rec.State),
			colAttemptsWidth, rec.Attempts,
			detail)
	}

	fmt.Fprintf(w, "\nBatch %s: %d confirmed, %d submitted, %d pending, %d failed\n",
		batchName, report.Confirmed, report.Submitted, report.Pending, report.Failed)
	fmt.Fprintf(w, "Transferred (incl. unconfirmed): %s, remaining: %s\n",
		amountPrinter(report.TotalTransferred.String()),
		amountPrinter(report.TotalRemaining.String()))
}

// renderPlan writes the dry-run projection.
func renderPlan(w io.Writer, rows []executor.PlanRow) {
	header := fmt.Sprintf("%-*s %-*s %*s %-*s %s",
		colIndexWidth, "INDEX",
		colRecipientWidth, "RECIPIENT",
		colAmountWidth, "AMOUNT",
		colStateWidth, "STATE",
		"ACTION")
	if isTerminal(os.Stdout) {
		header = headerStyle.Render(header)
	}
	fmt.Fprintln(w, header)

	submits := 0
	for _, row := range rows {
		if row.Action == "submit" {
			submits++
		}
		fmt.Fprintf(w, "%-*d %-*s %*s %-*s %s\n",
			colIndexWidth, row.Index,
			colRecipientWidth, row.Recipient,
			colAmountWidth, amountPrinter(row.Amount),
			colStateWidth, stateCell(row.State),
			row.Action)
	}

	fmt.Fprintf(w, "\nDry run: %d of %d records would be submitted\n", submits, len(rows))
}
