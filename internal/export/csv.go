package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// WriteAuditCSV writes the audit trail as CSV with a header row.
func WriteAuditCSV(w io.Writer, r Review) error {
	t := auditTable(r.Entries)
	writer := csv.NewWriter(w)
	if err := writer.Write(t.columns); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for _, row := range t.rows {
		record := make([]string, len(row))
		for i, val := range row {
			record[i] = formatValue(val)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	writer.Flush()
	return writer.Error()
}
