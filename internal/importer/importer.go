// Package importer reads lead spreadsheets (CSV or Excel) and maps their
// columns onto leads.
package importer

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/madhatter5501/leadboard/kanban"
)

// MaxUploadSize is the largest accepted import file.
const MaxUploadSize = 5 << 20

var (
	// ErrEmptyFile is returned when a file has a header but no data rows.
	ErrEmptyFile = errors.New("arquivo vazio ou inválido")
	// ErrUnsupportedFormat is returned for extensions other than csv and xlsx.
	// Legacy .xls workbooks are rejected here too.
	ErrUnsupportedFormat = errors.New("formato de arquivo não suportado")
)

// Field is one header/value cell of a row.
type Field struct {
	Header string
	Value  string
}

// Row keeps the cells of a spreadsheet row in header order.
type Row []Field

// Get returns the value of the first header containing any keyword, trying
// keywords in order. Matching is case-insensitive and empty cells are
// skipped, so a blank column does not hide a later match.
func (r Row) Get(keywords ...string) (string, bool) {
	for _, kw := range keywords {
		for _, f := range r {
			if f.Value != "" && strings.Contains(strings.ToLower(f.Header), kw) {
				return f.Value, true
			}
		}
	}
	return "", false
}

// Parse reads a spreadsheet named name. The first row is the header.
func Parse(name string, r io.Reader) ([]Row, error) {
	var (
		records [][]string
		err     error
	)
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		records, err = readCSV(r)
	case ".xlsx":
		records, err = readExcel(r)
	case ".xls":
		return nil, fmt.Errorf("%w: %s (salve como .xlsx ou .csv)", ErrUnsupportedFormat, name)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, name)
	}
	if err != nil {
		return nil, err
	}
	return toRows(records)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read csv: %w", err)
	}
	return records, nil
}

func readExcel(r io.Reader) ([][]string, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("failed to open spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmptyFile
	}
	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("failed to read sheet %s: %w", sheets[0], err)
	}
	return records, nil
}

func toRows(records [][]string) ([]Row, error) {
	if len(records) < 2 {
		return nil, ErrEmptyFile
	}

	header := records[0]
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	var rows []Row
	for _, rec := range records[1:] {
		if blank(rec) {
			continue
		}
		row := make(Row, 0, len(header))
		for i, h := range header {
			var v string
			if i < len(rec) {
				v = strings.TrimSpace(rec[i])
			}
			row = append(row, Field{Header: strings.TrimSpace(h), Value: v})
		}
		rows = append(rows, row)
	}
	if len(rows) == 0 {
		return nil, ErrEmptyFile
	}
	return rows, nil
}

func blank(rec []string) bool {
	for _, v := range rec {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}

// DefaultName is used when a row has no name column or an empty name.
const DefaultName = "Sem Nome"

// Normalize maps rows onto new leads in the first stage.
func Normalize(rows []Row, now time.Time) []kanban.Lead {
	leads := make([]kanban.Lead, 0, len(rows))
	for _, row := range rows {
		name, _ := row.Get("nome", "name")
		if name == "" {
			name = DefaultName
		}
		email, _ := row.Get("email")
		phone, _ := row.Get("telefone", "phone")
		company, _ := row.Get("empresa", "company")

		leads = append(leads, kanban.Lead{
			Name:      name,
			Email:     email,
			Phone:     phone,
			Company:   company,
			Status:    kanban.StatusNew,
			Source:    kanban.SourceImport,
			CreatedAt: now,
		})
	}
	return leads
}
