package internal

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/olekukonko/tablewriter"
	"github.com/sensiblebit/certbatch/internal/batch"
)

// Output formats accepted by the Format* functions.
const (
	OutputText  = "text"
	OutputJSON  = "json"
	OutputTable = "table"
)

// OutputFormats lists the valid output formats, for flag completion.
var OutputFormats = []string{OutputText, OutputJSON, OutputTable}

func marshalJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON: %w", err)
	}
	return string(data) + "\n", nil
}

func unsupportedFormat(format string) error {
	return fmt.Errorf("unsupported output format %q (use %s)", format, strings.Join(OutputFormats, ", "))
}

// ReportAnnotation returns a parenthetical annotation like
// " (2 expired, 1 expiring soon)" for non-zero counts, or an empty string.
func ReportAnnotation(expired, expiringSoon, untrusted int) string {
	var parts []string
	if expired > 0 {
		parts = append(parts, fmt.Sprintf("%d expired", expired))
	}
	if expiringSoon > 0 {
		parts = append(parts, fmt.Sprintf("%d expiring soon", expiringSoon))
	}
	if untrusted > 0 {
		parts = append(parts, fmt.Sprintf("%d untrusted", untrusted))
	}
	if len(parts) == 0 {
		return ""
	}
	return " (" + strings.Join(parts, ", ") + ")"
}

// FormatResult formats a job result.
func FormatResult(res *batch.Result, format string) (string, error) {
	switch format {
	case OutputJSON:
		return marshalJSON(res)
	case OutputText:
		return formatResultText(res), nil
	case OutputTable:
		return formatResultTable(res), nil
	default:
		return "", unsupportedFormat(format)
	}
}

func formatResultText(res *batch.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s (%s): %s\n", res.JobID, res.Type, res.Status)
	fmt.Fprintf(&sb, "  Items:     %d\n", res.TotalItems)
	fmt.Fprintf(&sb, "  Succeeded: %d\n", res.SuccessCount)
	fmt.Fprintf(&sb, "  Failed:    %d\n", res.FailedCount)
	if skipped := res.TotalItems - res.SuccessCount - res.FailedCount; skipped > 0 {
		fmt.Fprintf(&sb, "  Skipped:   %d\n", skipped)
	}
	fmt.Fprintf(&sb, "  Duration:  %s\n", res.Duration.Round(time.Millisecond))

	if failed := res.FailedItems(); len(failed) > 0 {
		sb.WriteString("\nFailures:\n")
		for _, it := range failed {
			fmt.Fprintf(&sb, "  %s: %s\n", it.InputPath, it.ErrorMessage)
		}
	}
	return sb.String()
}

func formatResultTable(res *batch.Result) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Job %s (%s): %s\n", res.JobID, res.Type, res.Status)
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"Item", "Input", "Status", "Output / Error"})
	table.SetAutoWrapText(false)
	for _, it := range res.Items {
		detail := it.OutputPath
		if it.Status == batch.ItemError {
			detail = it.ErrorMessage
		}
		table.Append([]string{it.ID, it.InputPath, string(it.Status), detail})
	}
	table.Render()
	return sb.String()
}

// FormatExpirationReport formats an expiration report.
func FormatExpirationReport(rep *batch.ExpirationReport, format string) (string, error) {
	switch format {
	case OutputJSON:
		return marshalJSON(rep)
	case OutputText:
		return formatReportText(rep), nil
	case OutputTable:
		return formatReportTable(rep), nil
	default:
		return "", unsupportedFormat(format)
	}
}

func untrustedCount(rep *batch.ExpirationReport) int {
	n := 0
	for _, it := range rep.Items {
		if it.Trusted != nil && !*it.Trusted {
			n++
		}
	}
	return n
}

func reportSummary(rep *batch.ExpirationReport) string {
	return fmt.Sprintf("Scanned %s: %d certificate(s)%s\n",
		rep.ScannedDir, rep.TotalCertificates,
		ReportAnnotation(rep.ExpiredCount, rep.ExpiringSoonCount, untrustedCount(rep)))
}

func trustLabel(trusted *bool) string {
	switch {
	case trusted == nil:
		return ""
	case *trusted:
		return "trusted"
	default:
		return "untrusted"
	}
}

func formatReportText(rep *batch.ExpirationReport) string {
	var sb strings.Builder
	sb.WriteString(reportSummary(rep))
	for _, it := range rep.Items {
		fmt.Fprintf(&sb, "\n%s\n", it.Path)
		fmt.Fprintf(&sb, "  Subject:   %s\n", it.Subject)
		fmt.Fprintf(&sb, "  Issuer:    %s\n", it.Issuer)
		fmt.Fprintf(&sb, "  Serial:    %s\n", it.SerialNumber)
		fmt.Fprintf(&sb, "  Not After: %s (%d days)\n", it.ValidTo.UTC().Format(time.RFC3339), it.DaysUntilExpiration)
		fmt.Fprintf(&sb, "  Status:    %s\n", it.Status)
		if label := trustLabel(it.Trusted); label != "" {
			fmt.Fprintf(&sb, "  Trust:     %s\n", label)
		}
	}
	fmt.Fprintf(&sb, "\nValid: %d  Expiring soon (<= %d days): %d  Expired: %d\n",
		rep.ValidCount, rep.WarningDays, rep.ExpiringSoonCount, rep.ExpiredCount)
	return sb.String()
}

func formatReportTable(rep *batch.ExpirationReport) string {
	var sb strings.Builder
	sb.WriteString(reportSummary(rep))
	table := tablewriter.NewWriter(&sb)
	table.SetHeader([]string{"File", "Subject", "Not After", "Days", "Status", "Trust"})
	table.SetAutoWrapText(false)
	for _, it := range rep.Items {
		table.Append([]string{
			it.FileName,
			it.Subject,
			it.ValidTo.UTC().Format(time.DateOnly),
			fmt.Sprintf("%d", it.DaysUntilExpiration),
			string(it.Status),
			trustLabel(it.Trusted),
		})
	}
	table.Render()
	return sb.String()
}

// FormatHistory formats job history records.
func FormatHistory(records []HistoryRecord, format string) (string, error) {
	switch format {
	case OutputJSON:
		return marshalJSON(records)
	case OutputText, OutputTable:
		var sb strings.Builder
		table := tablewriter.NewWriter(&sb)
		table.SetHeader([]string{"Started", "Job", "Label", "Type", "Status", "OK", "Failed", "Total", "Duration"})
		for _, r := range records {
			table.Append([]string{
				r.StartedAt.Local().Format(time.DateTime),
				r.JobID,
				r.Label,
				r.JobType,
				r.Status,
				fmt.Sprintf("%d", r.Succeeded),
				fmt.Sprintf("%d", r.Failed),
				fmt.Sprintf("%d", r.Total),
				(time.Duration(r.DurationMS) * time.Millisecond).String(),
			})
		}
		table.Render()
		return sb.String(), nil
	default:
		return "", unsupportedFormat(format)
	}
}
