package export

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"
)

const (
	minColumnWidth = 10
	maxColumnWidth = 60
)

// WriteExcel writes the review as a workbook with one sheet per table.
func WriteExcel(w io.Writer, r Review) error {
	file := excelize.NewFile()
	defer file.Close()

	tables := []table{changesTable(r.Changes, r.Positions), feedbackTable(r.Items), auditTable(r.Entries)}
	for i, t := range tables {
		if i == 0 {
			if err := file.SetSheetName("Sheet1", t.name); err != nil {
				return fmt.Errorf("failed to rename sheet: %w", err)
			}
		} else if _, err := file.NewSheet(t.name); err != nil {
			return fmt.Errorf("failed to create sheet: %w", err)
		}
		if err := writeSheet(file, t); err != nil {
			return fmt.Errorf("failed to write sheet %s: %w", t.name, err)
		}
	}

	if err := file.SetDocProps(&excelize.DocProperties{
		Title:   r.Title,
		Subject: r.DocumentID,
		Created: r.GeneratedAt.UTC().Format(time.RFC3339),
	}); err != nil {
		return fmt.Errorf("failed to set document properties: %w", err)
	}
	return file.Write(w)
}

func writeSheet(file *excelize.File, t table) error {
	headerStyle, err := file.NewStyle(&excelize.Style{
		Font:      &excelize.Font{Bold: true, Size: 11, Color: "FFFFFF"},
		Fill:      excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"4472C4"}},
		Alignment: &excelize.Alignment{Horizontal: "center"},
	})
	if err != nil {
		return err
	}
	dateStyle, err := file.NewStyle(&excelize.Style{NumFmt: 22})
	if err != nil {
		return err
	}

	widths := make([]float64, len(t.columns))
	for i, col := range t.columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		if err := file.SetCellValue(t.name, cell, col); err != nil {
			return err
		}
		widths[i] = float64(len(col))
	}
	last, _ := excelize.CoordinatesToCellName(len(t.columns), 1)
	if err := file.SetCellStyle(t.name, "A1", last, headerStyle); err != nil {
		return err
	}

	for r, row := range t.rows {
		for c, val := range row {
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			if err := file.SetCellValue(t.name, cell, val); err != nil {
				return err
			}
			if _, ok := val.(time.Time); ok {
				if err := file.SetCellStyle(t.name, cell, cell, dateStyle); err != nil {
					return err
				}
			}
			if w := float64(len(formatValue(val))) * 1.2; w > widths[c] {
				widths[c] = w
			}
		}
	}

	for i, w := range widths {
		col, _ := excelize.ColumnNumberToName(i + 1)
		w = min(max(w, minColumnWidth), maxColumnWidth)
		if err := file.SetColWidth(t.name, col, col, w); err != nil {
			return err
		}
	}

	if err := file.SetPanes(t.name, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return err
	}
	if len(t.rows) > 0 {
		lastCell, _ := excelize.CoordinatesToCellName(len(t.columns), len(t.rows)+1)
		if err := file.AutoFilter(t.name, "A1:"+lastCell, nil); err != nil {
			return err
		}
	}
	return nil
}
