// Package export renders monthly arrival reports as downloadable documents.
package export

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/xuri/excelize/v2"

	"github.com/couchcryptid/telemetry-arrival-report/internal/domain"
)

// Format is a supported export format.
type Format string

const (
	FormatXLSX Format = "xlsx"
	FormatPDF  Format = "pdf"
)

const sheetName = "Monthly Arrivals"

// ParseFormat accepts "xlsx" (the default when empty) or "pdf".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatXLSX:
		return FormatXLSX, nil
	case FormatPDF:
		return FormatPDF, nil
	default:
		return "", fmt.Errorf("unsupported export format %q", s)
	}
}

// ContentType returns the MIME type for the format.
func (f Format) ContentType() string {
	if f == FormatPDF {
		return "application/pdf"
	}
	return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
}

// Filename returns the attachment name for a report, e.g. monthly-report-2026-03.xlsx.
func Filename(report domain.Report, f Format) string {
	return fmt.Sprintf("monthly-report-%04d-%02d.%s", report.Year, report.Month, f)
}

// Render dispatches to the renderer for f.
func Render(report domain.Report, f Format) ([]byte, error) {
	switch f {
	case FormatPDF:
		return PDF(report)
	case FormatXLSX:
		return XLSX(report)
	default:
		return nil, fmt.Errorf("unsupported export format %q", f)
	}
}

// header returns the column titles: station name, one column per day, then totals.
func header(report domain.Report) []string {
	cols := make([]string, 0, len(report.DayHeaders)+4)
	cols = append(cols, "Station")
	for _, d := range report.DayHeaders {
		cols = append(cols, strconv.Itoa(d))
	}
	return append(cols, "Expected", "Actual", "Rate (%)")
}

// XLSX renders the report as a single-sheet workbook.
func XLSX(report domain.Report) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetName); err != nil {
		return nil, fmt.Errorf("rename sheet: %w", err)
	}

	titles := header(report)
	headerRow := make([]any, len(titles))
	for i, title := range titles {
		headerRow[i] = title
	}
	if err := f.SetSheetRow(sheetName, "A1", &headerRow); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}

	for i, row := range report.Rows {
		values := make([]any, 0, len(titles))
		values = append(values, row.StationName)
		for _, n := range row.DailyActual {
			values = append(values, n)
		}
		values = append(values, row.ExpectedTotal, row.ActualTotal, row.Rate)

		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		if err := f.SetSheetRow(sheetName, cell, &values); err != nil {
			return nil, fmt.Errorf("write row %s: %w", row.StationID, err)
		}
	}

	if err := f.SetPanes(sheetName, &excelize.Panes{
		Freeze:      true,
		XSplit:      1,
		YSplit:      1,
		TopLeftCell: "B2",
		ActivePane:  "bottomRight",
	}); err != nil {
		return nil, fmt.Errorf("freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if err := f.Write(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// PDF renders the report as a landscape table.
func PDF(report domain.Report) ([]byte, error) {
	pdf := gofpdf.New("L", "mm", "A3", "")
	pdf.SetFont("Arial", "B", 12)
	pdf.AddPage()

	pdf.Cell(0, 8, fmt.Sprintf("Monthly Arrival Report %04d-%02d", report.Year, report.Month))
	pdf.Ln(8)
	pdf.SetFont("Arial", "", 9)
	pdf.Cell(0, 6, fmt.Sprintf("Day starts at %02d:00, %d days", report.DayStartHour, report.DaysInMonth))
	pdf.Ln(8)

	const (
		nameWidth  = 40.0
		dayWidth   = 9.0
		totalWidth = 16.0
		rowHeight  = 5.0
	)

	pdf.SetFont("Arial", "B", 7)
	for i, title := range header(report) {
		w := dayWidth
		switch {
		case i == 0:
			w = nameWidth
		case i > len(report.DayHeaders):
			w = totalWidth
		}
		pdf.CellFormat(w, rowHeight, title, "1", 0, "C", false, 0, "")
	}
	pdf.Ln(-1)

	pdf.SetFont("Arial", "", 7)
	for _, row := range report.Rows {
		pdf.CellFormat(nameWidth, rowHeight, row.StationName, "1", 0, "L", false, 0, "")
		for _, n := range row.DailyActual {
			pdf.CellFormat(dayWidth, rowHeight, strconv.Itoa(n), "1", 0, "R", false, 0, "")
		}
		pdf.CellFormat(totalWidth, rowHeight, strconv.Itoa(row.ExpectedTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(totalWidth, rowHeight, strconv.Itoa(row.ActualTotal), "1", 0, "R", false, 0, "")
		pdf.CellFormat(totalWidth, rowHeight, strconv.FormatFloat(row.Rate, 'f', 1, 64), "1", 0, "R", false, 0, "")
		pdf.Ln(-1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
