package statementfile

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func TestParseCSVWithTypeColumn(t *testing.T) {
	data := "Date,Description,Reference,Amount,Type,Balance\n" +
		"2024-01-15,ACME PAYMENT,INV-1,1000.00,CREDIT,5000.00\n" +
		"\n" +
		"16-01-2024,RENT,,250.00,debit,4750.00\n" +
		"bad-date,BROKEN,,abc,CREDIT,\n"

	lines, err := Parse(strings.NewReader(data), "statement.csv")
	require.NoError(t, err)
	require.Len(t, lines, 3)

	assert.Equal(t, time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC), *lines[0].Date)
	assert.Equal(t, "ACME PAYMENT", lines[0].Description)
	assert.Equal(t, "INV-1", lines[0].Reference)
	assert.Equal(t, "1000", lines[0].Amount.String())
	assert.Equal(t, "5000", lines[0].Balance.String())
	assert.Equal(t, "CREDIT", lines[0].Classification)

	assert.Equal(t, time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC), *lines[1].Date)
	assert.Equal(t, "debit", lines[1].Classification)

	assert.Nil(t, lines[2].Date)
	assert.Nil(t, lines[2].Amount)
}

func TestParseCSVSignedAmountsAndSemicolons(t *testing.T) {
	data := "value_date;narration;amount\n2024-02-01;CARD FEE;-12.50\n2024-02-02;REFUND;7.25\n"

	lines, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "DEBIT", lines[0].Classification)
	assert.Equal(t, "-12.5", lines[0].Amount.String())
	assert.Equal(t, "CREDIT", lines[1].Classification)
}

func TestParseCSVDebitCreditColumns(t *testing.T) {
	data := "date,details,withdrawal,deposit\n2024-03-01,ATM,\"1,200.00\",\n2024-03-02,SALARY,,3000\n"

	lines, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, lines, 2)
	assert.Equal(t, "DEBIT", lines[0].Classification)
	assert.Equal(t, "1200", lines[0].Amount.String())
	assert.Equal(t, "CREDIT", lines[1].Classification)
	assert.Equal(t, "3000", lines[1].Amount.String())
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	rows := [][]interface{}{
		{"Transaction Date", "Description", "Amount", "Classification"},
		{"2024-01-20", "WIRE IN", "480.10", "CREDIT"},
	}
	for i, row := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		require.NoError(t, err)
		require.NoError(t, f.SetSheetRow(sheet, cell, &row))
	}
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	lines, err := Parse(&buf, "export.XLSX")
	require.NoError(t, err)
	require.Len(t, lines, 1)
	assert.Equal(t, "WIRE IN", lines[0].Description)
	assert.Equal(t, "480.1", lines[0].Amount.String())
	assert.Equal(t, "CREDIT", lines[0].Classification)
}

func TestParseRejectsUnusableFiles(t *testing.T) {
	_, err := Parse(strings.NewReader("x"), "statement.pdf")
	assert.ErrorIs(t, err, ErrUnsupportedFile)

	_, err = ParseCSV(strings.NewReader("description,amount\nX,1\n"))
	assert.EqualError(t, err, "statement file has no date column")

	_, err = ParseCSV(strings.NewReader(""))
	assert.Error(t, err)
}
