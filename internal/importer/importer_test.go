package importer

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/madhatter5501/leadboard/kanban"
)

func TestParseCSV(t *testing.T) {
	data := "\ufeffNome Completo,E-mail,Telefone Celular,Empresa\nAna,ana@x.com,1199,ACME\n,,,\nBruno,,,\n"
	rows, err := Parse("leads.CSV", strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 2, "blank rows are skipped")

	name, ok := rows[0].Get("nome")
	assert.True(t, ok)
	assert.Equal(t, "Ana", name)
	assert.Equal(t, "Nome Completo", rows[0][0].Header)
}

func TestParseEmpty(t *testing.T) {
	_, err := Parse("leads.csv", strings.NewReader("Nome,Email\n"))
	assert.ErrorIs(t, err, ErrEmptyFile)

	_, err = Parse("leads.csv", strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmptyFile)
}

func TestParseUnsupported(t *testing.T) {
	_, err := Parse("leads.txt", strings.NewReader("a"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestParseLegacyExcelRejected(t *testing.T) {
	// BIFF8 workbooks start with the OLE2 compound file signature.
	biff := []byte{0xD0, 0xCF, 0x11, 0xE0, 0xA1, 0xB1, 0x1A, 0xE1, 0, 0, 0, 0}
	_, err := Parse("leads.XLS", bytes.NewReader(biff))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
	assert.Contains(t, err.Error(), ".xlsx")
}

func TestParseMalformedExcel(t *testing.T) {
	_, err := Parse("leads.xlsx", strings.NewReader("not a zip"))
	assert.Error(t, err)
}

func TestParseExcel(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	require.NoError(t, f.SetSheetRow(sheet, "A1", &[]any{"Name", "Company", "Phone"}))
	require.NoError(t, f.SetSheetRow(sheet, "A2", &[]any{"Carla", "Globex", "555"}))

	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))
	require.NoError(t, f.Close())

	rows, err := Parse("leads.xlsx", &buf)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	leads := Normalize(rows, time.Now())
	assert.Equal(t, "Carla", leads[0].Name)
	assert.Equal(t, "Globex", leads[0].Company)
	assert.Equal(t, "555", leads[0].Phone)
}

func TestNormalize(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rows := []Row{
		{{Header: "Nome Completo", Value: "Ana"}},
		{{Header: "Email", Value: "b@x.com"}},
		{{Header: "Company Name", Value: "ACME"}, {Header: "Nome", Value: "Dani"}},
	}

	leads := Normalize(rows, now)
	require.Len(t, leads, 3)

	assert.Equal(t, "Ana", leads[0].Name)
	assert.Equal(t, kanban.StatusNew, leads[0].Status)
	assert.Equal(t, kanban.SourceImport, leads[0].Source)
	assert.Equal(t, now, leads[0].CreatedAt)

	assert.Equal(t, DefaultName, leads[1].Name)
	assert.Equal(t, "b@x.com", leads[1].Email)

	// "Company Name" contains "name" but "nome" is tried first
	assert.Equal(t, "Dani", leads[2].Name)
	assert.Equal(t, "ACME", leads[2].Company)
}

func TestNormalizeFirstHeaderWins(t *testing.T) {
	rows := []Row{{{Header: "Company Name", Value: "ACME"}, {Header: "Contact Name", Value: "Eva"}}}
	leads := Normalize(rows, time.Now())
	assert.Equal(t, "ACME", leads[0].Name)
}

func TestGetSkipsEmptyCells(t *testing.T) {
	row := Row{
		{Header: "Nome", Value: ""},
		{Header: "Name", Value: "Eva"},
		{Header: "Telefone Fixo", Value: ""},
		{Header: "Telefone Celular", Value: "1199"},
		{Header: "Empresa", Value: ""},
	}

	name, ok := row.Get("nome", "name")
	assert.True(t, ok)
	assert.Equal(t, "Eva", name)

	phone, ok := row.Get("telefone", "phone")
	assert.True(t, ok)
	assert.Equal(t, "1199", phone)

	_, ok = row.Get("empresa", "company")
	assert.False(t, ok)

	leads := Normalize([]Row{row}, time.Now())
	assert.Equal(t, "Eva", leads[0].Name)
	assert.Equal(t, "1199", leads[0].Phone)
}
