package interfaces

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	analytics "fleet-cloud/internal/analytics/domain"
)

// BuildUtilizationPDF renders a minimal PDF utilization report.
func BuildUtilizationPDF(tenantID string, from, to time.Time, rows []analytics.DailyUtilization) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Fleet Utilization Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Tenant: %s", tenantID))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Period: %s to %s", from.Format("2006-01-02"), to.Format("2006-01-02")))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", time.Now().UTC().Format(time.RFC3339)))
	pdf.Ln(8)

	// Rows table
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Machine", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Distance (km)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(40, 6, "Engine On (h)", "1", 0, "C", false, 0, "")
	pdf.CellFormat(30, 6, "Idle (h)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, row := range rows {
		pdf.CellFormat(40, 6, row.MachineID, "1", 0, "C", false, 0, "")
		pdf.CellFormat(30, 6, row.Day.Format("2006-01-02"), "1", 0, "C", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", row.TotalDistance), "1", 0, "R", false, 0, "")
		pdf.CellFormat(40, 6, fmt.Sprintf("%.2f", row.EngineOnSecs/3600), "1", 0, "R", false, 0, "")
		pdf.CellFormat(30, 6, fmt.Sprintf("%.2f", row.IdleSecs/3600), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	err := pdf.Output(&buf)
	if err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// BuildUtilizationXLSX renders a minimal XLSX utilization report.
func BuildUtilizationXLSX(tenantID string, from, to time.Time, rows []analytics.DailyUtilization) ([]byte, error) {
	f := excelize.NewFile()
	summarySheet := "summary"
	dailySheet := "daily"
	f.SetSheetName("Sheet1", summarySheet)
	f.NewSheet(dailySheet)

	var totalDistance, engineOn, idle float64
	for _, row := range rows {
		totalDistance += row.TotalDistance
		engineOn += row.EngineOnSecs
		idle += row.IdleSecs
	}

	_ = f.SetCellValue(summarySheet, "A1", "Fleet Utilization Report")
	_ = f.SetCellValue(summarySheet, "A3", "Tenant")
	_ = f.SetCellValue(summarySheet, "B3", tenantID)
	_ = f.SetCellValue(summarySheet, "A4", "From")
	_ = f.SetCellValue(summarySheet, "B4", from.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A5", "To")
	_ = f.SetCellValue(summarySheet, "B5", to.Format("2006-01-02"))
	_ = f.SetCellValue(summarySheet, "A6", "Total Distance (km)")
	_ = f.SetCellValue(summarySheet, "B6", totalDistance)
	_ = f.SetCellValue(summarySheet, "A7", "Engine On (h)")
	_ = f.SetCellValue(summarySheet, "B7", engineOn/3600)
	_ = f.SetCellValue(summarySheet, "A8", "Idle (h)")
	_ = f.SetCellValue(summarySheet, "B8", idle/3600)

	_ = f.SetCellValue(dailySheet, "A1", "Machine")
	_ = f.SetCellValue(dailySheet, "B1", "Day")
	_ = f.SetCellValue(dailySheet, "C1", "Distance (km)")
	_ = f.SetCellValue(dailySheet, "D1", "Engine On (s)")
	_ = f.SetCellValue(dailySheet, "E1", "Idle (s)")
	for i, row := range rows {
		line := i + 2
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("A%d", line), row.MachineID)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("B%d", line), row.Day.Format("2006-01-02"))
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("C%d", line), row.TotalDistance)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("D%d", line), row.EngineOnSecs)
		_ = f.SetCellValue(dailySheet, fmt.Sprintf("E%d", line), row.IdleSecs)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
