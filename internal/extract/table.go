package extract

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/xuri/excelize/v2"

	"github.com/hyperjump/healthassist/internal/models"
)

// NameColumn is the header that identifies a patient row.
const NameColumn = "Name"

// Table is a header row plus data rows, values kept verbatim.
type Table struct {
	Header []string
	Rows   [][]string
}

// ReadCSV parses a CSV file whose first row is the header. Ragged rows are allowed.
func ReadCSV(r io.Reader) (*Table, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: parse CSV: %v", models.ErrUnreadableFile, err)
	}
	return newTable(records)
}

// ReadXLSX reads the first sheet of a workbook as a table.
func ReadXLSX(r io.Reader) (*Table, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("%w: open Excel: %v", models.ErrUnreadableFile, err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", models.ErrUnreadableFile)
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: get rows for sheet %q: %v", models.ErrUnreadableFile, sheets[0], err)
	}
	return newTable(rows)
}

func newTable(rows [][]string) (*Table, error) {
	if len(rows) == 0 {
		return nil, fmt.Errorf("%w: no header row", models.ErrUnreadableFile)
	}
	header := make([]string, len(rows[0]))
	for i, h := range rows[0] {
		if i == 0 {
			h = strings.TrimPrefix(h, "\ufeff")
		}
		header[i] = strings.TrimSpace(h)
	}
	return &Table{Header: header, Rows: rows[1:]}, nil
}

// ColumnIndex returns the first column named name, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.Header {
		if h == name {
			return i
		}
	}
	return -1
}

// Names returns the Name column in row order, duplicates included.
func (t *Table) Names() ([]string, error) {
	col := t.ColumnIndex(NameColumn)
	if col < 0 {
		return nil, models.ErrMissingNameColumn
	}
	names := make([]string, 0, len(t.Rows))
	for _, row := range t.Rows {
		if col < len(row) {
			names = append(names, row[col])
		} else {
			names = append(names, "")
		}
	}
	return names, nil
}

// Lookup returns the first row whose Name equals name, or the first row when
// name is empty. An unknown name yields an empty record, not an error.
func (t *Table) Lookup(name string) (*models.PatientRecord, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		if len(t.Rows) == 0 {
			return models.NewPatientRecord(""), nil
		}
		return t.record(t.Rows[0]), nil
	}
	col := t.ColumnIndex(NameColumn)
	if col < 0 {
		return nil, models.ErrMissingNameColumn
	}
	for _, row := range t.Rows {
		if col < len(row) && strings.TrimSpace(row[col]) == name {
			return t.record(row), nil
		}
	}
	return models.NewPatientRecord(""), nil
}

// record maps a row onto the header. Columns past the end of a short row stay absent.
func (t *Table) record(row []string) *models.PatientRecord {
	rec := models.NewPatientRecord("")
	for i, h := range t.Header {
		if h == "" || i >= len(row) {
			continue
		}
		if _, seen := rec.Get(h); seen {
			continue
		}
		rec.Set(h, row[i])
	}
	return rec
}
