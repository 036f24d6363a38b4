package reports

import (
	"bytes"
	"fmt"
	"time"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"
)

// BuildPDF renders the report summary and daily energy table.
func BuildPDF(report Report) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetFont("Arial", "", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, "Solar Telemetry Report")
	pdf.Ln(10)
	pdf.SetFont("Arial", "", 10)
	pdf.Cell(0, 6, fmt.Sprintf("Generated: %s", report.GeneratedAt.UTC().Format(time.RFC3339)))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Readings summarized: %d", report.Summary.Count))
	pdf.Ln(5)
	pdf.Cell(0, 6, fmt.Sprintf("Total Energy (kWh): %.4f", report.TotalKWh))
	pdf.Ln(5)
	if report.Latest != nil {
		pdf.Cell(0, 6, fmt.Sprintf("Latest: %.2f V  %.3f A  %.2f W  light %.0f  (%s)",
			report.Latest.Voltage, report.Latest.Current, report.Latest.Power, report.Latest.LightRaw,
			report.Latest.Timestamp.UTC().Format(time.RFC3339)))
		pdf.Ln(5)
	}
	pdf.Ln(4)

	s := report.Summary
	pdf.SetFont("Arial", "B", 10)
	for _, head := range []string{"Metric", "Average", "Min", "Max"} {
		pdf.CellFormat(40, 6, head, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	rows := [][]string{
		{"Voltage (V)", statCell(s.Count, s.Voltage.Avg), statCell(s.Count, s.Voltage.Min), statCell(s.Count, s.Voltage.Max)},
		{"Current (A)", statCell(s.Count, s.Current.Avg), statCell(s.Count, s.Current.Min), statCell(s.Count, s.Current.Max)},
		{"Power (W)", statCell(s.Count, s.Power.Avg), statCell(s.Count, s.Power.Min), statCell(s.Count, s.Power.Max)},
		{"Light (Raw)", lightCell(s.Count, s.Light.Avg), "N/A", "N/A"},
	}
	for _, row := range rows {
		for i, cell := range row {
			align := "R"
			if i == 0 {
				align = "L"
			}
			pdf.CellFormat(40, 6, cell, "1", 0, align, false, 0, "")
		}
		pdf.Ln(-1)
	}

	pdf.Ln(6)
	pdf.SetFont("Arial", "B", 10)
	pdf.CellFormat(40, 6, "Day", "1", 0, "C", false, 0, "")
	pdf.CellFormat(50, 6, "Energy (kWh)", "1", 0, "C", false, 0, "")
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 10)
	for _, day := range report.DailyEnergy {
		pdf.CellFormat(40, 6, day.Date, "1", 0, "C", false, 0, "")
		pdf.CellFormat(50, 6, fmt.Sprintf("%.4f", day.KWh), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// Sheet names used by BuildXLSX.
const (
	SummarySheet = "summary"
	EnergySheet  = "daily_energy"
)

// BuildXLSX renders a summary sheet and a daily energy sheet.
func BuildXLSX(report Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SummarySheet); err != nil {
		return nil, err
	}
	if _, err := f.NewSheet(EnergySheet); err != nil {
		return nil, err
	}

	s := report.Summary
	_ = f.SetCellValue(SummarySheet, "A1", "Solar Telemetry Report")
	_ = f.SetCellValue(SummarySheet, "A2", "Generated")
	_ = f.SetCellValue(SummarySheet, "B2", report.GeneratedAt.UTC().Format(time.RFC3339))
	_ = f.SetCellValue(SummarySheet, "A3", "Readings")
	_ = f.SetCellValue(SummarySheet, "B3", s.Count)
	_ = f.SetCellValue(SummarySheet, "A4", "Total Energy (kWh)")
	_ = f.SetCellValue(SummarySheet, "B4", report.TotalKWh)

	_ = f.SetSheetRow(SummarySheet, "A6", &[]any{"Metric", "Average", "Min", "Max"})
	_ = f.SetSheetRow(SummarySheet, "A7", &[]any{"Voltage (V)", s.Voltage.Avg, s.Voltage.Min, s.Voltage.Max})
	_ = f.SetSheetRow(SummarySheet, "A8", &[]any{"Current (A)", s.Current.Avg, s.Current.Min, s.Current.Max})
	_ = f.SetSheetRow(SummarySheet, "A9", &[]any{"Power (W)", s.Power.Avg, s.Power.Min, s.Power.Max})
	_ = f.SetSheetRow(SummarySheet, "A10", &[]any{"Light (Raw)", s.Light.Avg, s.Light.Min, s.Light.Max})

	_ = f.SetCellValue(EnergySheet, "A1", "Day")
	_ = f.SetCellValue(EnergySheet, "B1", "Energy (kWh)")
	for i, day := range report.DailyEnergy {
		row := i + 2
		_ = f.SetCellValue(EnergySheet, fmt.Sprintf("A%d", row), day.Date)
		_ = f.SetCellValue(EnergySheet, fmt.Sprintf("B%d", row), day.KWh)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
