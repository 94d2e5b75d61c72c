package patient

import (
	"bytes"
	"fmt"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	rosterSheet     = "Patients"
)

var rosterHeaders = []string{
	"Patient Key", "Patient ID", "First Name", "Last Name", "Date of Birth",
	"Gender", "Status", "Priority", "Team", "Payer", "Payer Type",
	"Last Order", "Updated At",
}

var rosterWidths = []float64{38, 16, 16, 18, 14, 10, 12, 10, 18, 24, 14, 30, 22}

// BuildRoster renders records as an xlsx workbook with one row per patient
// under a frozen header row.
func BuildRoster(records []*Record) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(rosterSheet)
	if err != nil {
		return nil, fmt.Errorf("create sheet: %w", err)
	}
	f.DeleteSheet("Sheet1")
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("create header style: %w", err)
	}

	header := make([]interface{}, len(rosterHeaders))
	for i, h := range rosterHeaders {
		header[i] = h
	}
	if err := f.SetSheetRow(rosterSheet, "A1", &header); err != nil {
		return nil, fmt.Errorf("write header: %w", err)
	}
	last, err := excelize.CoordinatesToCellName(len(rosterHeaders), 1)
	if err != nil {
		return nil, err
	}
	if err := f.SetCellStyle(rosterSheet, "A1", last, headerStyle); err != nil {
		return nil, fmt.Errorf("style header: %w", err)
	}
	for i, w := range rosterWidths {
		col, err := excelize.ColumnNumberToName(i + 1)
		if err != nil {
			return nil, err
		}
		if err := f.SetColWidth(rosterSheet, col, col, w); err != nil {
			return nil, fmt.Errorf("set column width: %w", err)
		}
	}

	for i, rec := range records {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return nil, err
		}
		row := rosterRow(rec)
		if err := f.SetSheetRow(rosterSheet, cell, &row); err != nil {
			return nil, fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if err := f.SetPanes(rosterSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return nil, fmt.Errorf("freeze header: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func rosterRow(r *Record) []interface{} {
	item := ToListItem(r)
	var payerName, payerKind, order string
	if item.PrimaryPayer != nil {
		payerName = item.PrimaryPayer.DisplayName
		payerKind = item.PrimaryPayer.PayerType
	}
	if r.LastOrder != nil {
		order = r.LastOrder.DisplayText
		if order == "" {
			order = r.LastOrder.OrderNumber
		}
	}
	return []interface{}{
		r.Key, r.DisplayID, r.FirstName, r.LastName, deref(r.DateOfBirth),
		deref(r.Gender), r.Status, item.Priority, r.TeamName(), payerName, payerKind,
		order, r.Metadata.UpdatedAt.Format(time.RFC3339),
	}
}
