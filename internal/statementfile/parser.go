// Package statementfile reads bank statement exports (CSV or XLSX) into raw
// lines for the importer.
package statementfile

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"bank-reconciliation-backend/internal/services/importer"
)

var ErrUnsupportedFile = errors.New("unsupported statement file type")

var dateLayouts = []string{"2006-01-02", "02-01-2006", "02/01/2006", "2006/01/02", time.RFC3339}

var columnAliases = map[string]string{
	"date":             "date",
	"transaction_date": "date",
	"value_date":       "date",
	"posting_date":     "date",
	"description":      "description",
	"narration":        "description",
	"details":          "description",
	"reference":        "reference",
	"ref":              "reference",
	"amount":           "amount",
	"type":             "type",
	"classification":   "type",
	"cr_dr":            "type",
	"balance":          "balance",
	"debit":            "debit",
	"withdrawal":       "debit",
	"credit":           "credit",
	"deposit":          "credit",
}

// Parse dispatches on the file extension.
func Parse(r io.Reader, filename string) ([]importer.RawLine, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".csv", ".txt":
		return ParseCSV(r)
	case ".xlsx":
		return ParseXLSX(r)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFile, filename)
	}
}

func ParseCSV(r io.Reader) ([]importer.RawLine, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	reader := csv.NewReader(bytes.NewReader(data))
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true
	reader.Comma = sniffDelimiter(data)

	rows, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("parse csv: %w", err)
	}
	return fromRows(rows)
}

func ParseXLSX(r io.Reader) ([]importer.RawLine, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer f.Close()

	rows, err := f.GetRows(f.GetSheetName(0))
	if err != nil {
		return nil, fmt.Errorf("read xlsx rows: %w", err)
	}
	return fromRows(rows)
}

// sniffDelimiter picks the most frequent of comma, semicolon and tab in the
// first line.
func sniffDelimiter(data []byte) rune {
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	best, bestCount := ',', bytes.Count(first, []byte{','})
	for _, d := range []rune{';', '\t'} {
		if c := bytes.Count(first, []byte(string(d))); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}

func fromRows(rows [][]string) ([]importer.RawLine, error) {
	if len(rows) == 0 {
		return nil, errors.New("statement file is empty")
	}
	cols := make(map[string]int)
	for i, h := range rows[0] {
		key := strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
		key = strings.ReplaceAll(key, " ", "_")
		if canonical, ok := columnAliases[key]; ok {
			if _, seen := cols[canonical]; !seen {
				cols[canonical] = i
			}
		}
	}
	if _, ok := cols["date"]; !ok {
		return nil, errors.New("statement file has no date column")
	}
	_, hasAmount := cols["amount"]
	_, hasDebit := cols["debit"]
	_, hasCredit := cols["credit"]
	if !hasAmount && !(hasDebit || hasCredit) {
		return nil, errors.New("statement file has no amount column")
	}

	cell := func(row []string, name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}

	var lines []importer.RawLine
	for _, row := range rows[1:] {
		if strings.TrimSpace(strings.Join(row, "")) == "" {
			continue
		}
		line := importer.RawLine{
			Date:           parseDate(cell(row, "date")),
			Description:    cell(row, "description"),
			Reference:      cell(row, "reference"),
			Classification: cell(row, "type"),
			Balance:        parseAmount(cell(row, "balance")),
		}

		switch {
		case hasAmount && cell(row, "amount") != "":
			line.Amount = parseAmount(cell(row, "amount"))
		case hasDebit && cell(row, "debit") != "":
			line.Amount = parseAmount(cell(row, "debit"))
			if line.Classification == "" {
				line.Classification = "DEBIT"
			}
		case hasCredit && cell(row, "credit") != "":
			line.Amount = parseAmount(cell(row, "credit"))
			if line.Classification == "" {
				line.Classification = "CREDIT"
			}
		}

		// a signed amount stands in for a missing type column
		if line.Classification == "" && line.Amount != nil {
			if line.Amount.IsNegative() {
				line.Classification = "DEBIT"
			} else {
				line.Classification = "CREDIT"
			}
		}
		lines = append(lines, line)
	}
	return lines, nil
}

func parseDate(s string) *time.Time {
	if s == "" {
		return nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return &t
		}
	}
	return nil
}

func parseAmount(s string) *decimal.Decimal {
	s = strings.ReplaceAll(s, ",", "")
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return &d
}
