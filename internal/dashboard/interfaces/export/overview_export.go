// Package export renders the dashboard overview as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	dashboard "flowdistributor/internal/dashboard/application"
	"flowdistributor/internal/observability/metrics"
)

const (
	FormatPDF  = "pdf"
	FormatXLSX = "xlsx"
)

// BuildOverviewPDF renders a one-page PDF summary of an overview.
func BuildOverviewPDF(overview dashboard.Overview) ([]byte, error) {
	started := time.Now()
	out, err := buildOverviewPDF(overview)
	observe(FormatPDF, started, err)
	return out, err
}

func buildOverviewPDF(overview dashboard.Overview) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "FlowDistributor Dashboard")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", overview.GeneratedAt.Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Cache: %s (version %d)", overview.CacheState, overview.Version))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Net balance: %s", overview.Totals.NetBalance.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Pending sales: %d (%s)", overview.Sales.PendingCount, overview.Sales.Pending.TotalIncome.StringFixed(2)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Client debt: %s", overview.Master.TotalDebt.StringFixed(2)))
	pdf.Ln(8)

	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Account", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Income", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Expense", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "Net", "1", 0, "C", false, 0, "")
	pdf.CellFormat(35, 6, "rfActual", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, account := range overview.Accounts {
		snapshot := "-"
		if account.HasSnapshot {
			snapshot = account.Snapshot.StringFixed(2)
		}
		pdf.CellFormat(40, 6, tr(account.DisplayName), "1", 0, "L", false, 0, "")
		pdf.CellFormat(35, 6, account.Completed.TotalIncome.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, account.Completed.TotalExpense.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, account.Completed.NetBalance.StringFixed(2), "1", 0, "R", false, 0, "")
		pdf.CellFormat(35, 6, snapshot, "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	if len(overview.Alerts) > 0 {
		pdf.Ln(6)
		pdf.SetFont("Arial", "B", 10)
		pdf.Cell(0, 6, "Alerts")
		pdf.Ln(6)
		pdf.SetFont("Arial", "", 9)
		for _, alert := range overview.Alerts {
			pdf.MultiCell(0, 5, tr(fmt.Sprintf("[%s] %s", alert.Severity, alert.Message)), "", "L", false)
		}
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildOverviewXLSX renders an overview workbook with summary, accounts,
// monthly and alerts sheets.
func BuildOverviewXLSX(overview dashboard.Overview) ([]byte, error) {
	started := time.Now()
	out, err := buildOverviewXLSX(overview)
	observe(FormatXLSX, started, err)
	return out, err
}

func buildOverviewXLSX(overview dashboard.Overview) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	summarySheet := "summary"
	accountsSheet := "accounts"
	monthlySheet := "monthly"
	alertsSheet := "alerts"
	if err := f.SetSheetName("Sheet1", summarySheet); err != nil {
		return nil, err
	}
	for _, name := range []string{accountsSheet, monthlySheet, alertsSheet} {
		if _, err := f.NewSheet(name); err != nil {
			return nil, err
		}
	}

	_ = f.SetCellValue(summarySheet, "A1", "FlowDistributor Dashboard")
	_ = f.SetCellValue(summarySheet, "A3", "Generated")
	_ = f.SetCellValue(summarySheet, "B3", overview.GeneratedAt.Format(time.RFC3339))
	_ = f.SetCellValue(summarySheet, "A4", "Cache State")
	_ = f.SetCellValue(summarySheet, "B4", overview.CacheState)
	_ = f.SetCellValue(summarySheet, "A5", "Total Income")
	_ = f.SetCellValue(summarySheet, "B5", overview.Totals.TotalIncome.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A6", "Total Expense")
	_ = f.SetCellValue(summarySheet, "B6", overview.Totals.TotalExpense.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A7", "Net Balance")
	_ = f.SetCellValue(summarySheet, "B7", overview.Totals.NetBalance.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A8", "GYA Net")
	_ = f.SetCellValue(summarySheet, "B8", overview.Transfers.NetBalance.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A9", "Pending Sales")
	_ = f.SetCellValue(summarySheet, "B9", overview.Sales.PendingCount)
	_ = f.SetCellValue(summarySheet, "A10", "Client Debt")
	_ = f.SetCellValue(summarySheet, "B10", overview.Master.TotalDebt.InexactFloat64())
	_ = f.SetCellValue(summarySheet, "A11", "Rejected Records")
	_ = f.SetCellValue(summarySheet, "B11", len(overview.Rejected))

	headers := []string{"Account", "Income", "Expense", "Net", "Pending", "rfActual", "Delta", "Trend %"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(accountsSheet, cell, h)
	}
	for i, account := range overview.Accounts {
		row := i + 2
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("A%d", row), account.DisplayName)
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("B%d", row), account.Completed.TotalIncome.InexactFloat64())
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("C%d", row), account.Completed.TotalExpense.InexactFloat64())
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("D%d", row), account.Completed.NetBalance.InexactFloat64())
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("E%d", row), account.Pending.NetBalance.InexactFloat64())
		if account.HasSnapshot {
			_ = f.SetCellValue(accountsSheet, fmt.Sprintf("F%d", row), account.Snapshot.InexactFloat64())
			_ = f.SetCellValue(accountsSheet, fmt.Sprintf("G%d", row), account.Delta.InexactFloat64())
		}
		_ = f.SetCellValue(accountsSheet, fmt.Sprintf("H%d", row), account.Trend.PercentChange)
	}

	_ = f.SetCellValue(monthlySheet, "A1", "Month")
	_ = f.SetCellValue(monthlySheet, "B1", "Entries")
	_ = f.SetCellValue(monthlySheet, "C1", "Sum")
	for i, bucket := range overview.Monthly {
		row := i + 2
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("A%d", row), bucket.Key.String())
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("B%d", row), bucket.Count)
		_ = f.SetCellValue(monthlySheet, fmt.Sprintf("C%d", row), bucket.Sum.InexactFloat64())
	}

	_ = f.SetCellValue(alertsSheet, "A1", "Severity")
	_ = f.SetCellValue(alertsSheet, "B1", "Kind")
	_ = f.SetCellValue(alertsSheet, "C1", "Subject")
	_ = f.SetCellValue(alertsSheet, "D1", "Message")
	for i, alert := range overview.Alerts {
		row := i + 2
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("A%d", row), string(alert.Severity))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("B%d", row), string(alert.Kind))
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("C%d", row), alert.SubjectRef)
		_ = f.SetCellValue(alertsSheet, fmt.Sprintf("D%d", row), alert.Message)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func observe(format string, started time.Time, err error) {
	result := metrics.ResultSuccess
	if err != nil {
		result = metrics.ResultError
	}
	metrics.ObserveExport(format, result, time.Since(started))
}
