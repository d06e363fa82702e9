package ingest

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// Column names recognised in the CSV header. Matching is case-insensitive.
const (
	ColumnName            = "name"
	ColumnAmount          = "amount"
	ColumnCreatedAt       = "created_at"
	ColumnTransferNote    = "transfer_note"
	ColumnTransactionType = "transaction_type"
)

var requiredColumns = []string{ColumnName, ColumnAmount, ColumnCreatedAt}

// RawRow is one CSV record before parsing
type RawRow struct {
	Line            int
	Name            string
	Amount          string
	CreatedAt       string
	TransferNote    string
	TransactionType string
}

// ReadRows reads header-driven CSV. Columns may appear in any order and
// unknown columns are ignored.
func ReadRows(r io.Reader) ([]RawRow, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("csv is empty")
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}

	columns := make(map[string]int, len(header))
	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff")))
		columns[key] = i
	}
	for _, name := range requiredColumns {
		if _, ok := columns[name]; !ok {
			return nil, fmt.Errorf("missing required column %q", name)
		}
	}

	field := func(record []string, name string) string {
		i, ok := columns[name]
		if !ok || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	var rows []RawRow
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}

		row := RawRow{
			Line:            line,
			Name:            field(record, ColumnName),
			Amount:          field(record, ColumnAmount),
			CreatedAt:       field(record, ColumnCreatedAt),
			TransferNote:    field(record, ColumnTransferNote),
			TransactionType: strings.ToLower(field(record, ColumnTransactionType)),
		}
		if row.Name == "" && row.Amount == "" && row.CreatedAt == "" {
			continue
		}
		rows = append(rows, row)
	}

	return rows, nil
}
