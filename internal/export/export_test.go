package export

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Qubut/ops-harvester/internal/normalize"
)

func sampleRecords() []normalize.Record {
	return []normalize.Record{
		{
			normalize.FieldDocumentNumber:   "EP1000001",
			normalize.FieldPublicationDate:  "20240117",
			normalize.FieldApplicantName:    "ACME GMBH",
			normalize.FieldApplicantCountry: "DE",
			normalize.FieldCpcMain:          "A01B",
			normalize.FieldCpcFull:          "A01B3300;A01B3500",
			normalize.FieldRepName:          "Reps LLP",
			normalize.FieldOpponentName:     "",
			normalize.FieldAppealNr:         "",
		},
		{
			normalize.FieldDocumentNumber:  "EP1000002",
			normalize.FieldPublicationDate: "",
			normalize.FieldApplicantName:   "Name, with comma",
		},
	}
}

func TestCSVRoundTrip(t *testing.T) {
	records := sampleRecords()

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	require.Len(t, got, 2)

	for i, want := range records {
		for _, col := range normalize.Columns {
			assert.Equal(t, want[col], got[i][col], "record %d column %s", i, col)
		}
	}
}

func TestCSVHeaderAndOrder(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, sampleRecords()))

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Equal(t,
		"DocumentNumber,PublicationDate,ApplicantName,ApplicantCountry,CpcMain,CpcFull,RepName,OpponentName,AppealNr",
		string(lines[0]))
}

func TestCSVEmptyResultSet(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))

	got, err := ReadCSV(&buf)
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestWriteXLSXFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "patents.xlsx")
	require.NoError(t, WriteXLSXFile(path, sampleRecords()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rows), 3)
	assert.Equal(t, normalize.Columns, rows[0])
	assert.Equal(t, "EP1000001", rows[1][0])
	assert.Equal(t, "A01B3300;A01B3500", rows[1][5])
	assert.Equal(t, "EP1000002", rows[2][0])
}

func TestWriteAllBothFormats(t *testing.T) {
	dir := t.TempDir()
	csvPath := filepath.Join(dir, "out.csv")
	xlsxPath := filepath.Join(dir, "out.xlsx")

	require.NoError(t, WriteAll(context.Background(), sampleRecords(), csvPath, xlsxPath))

	_, err := os.Stat(csvPath)
	assert.NoError(t, err)
	_, err = os.Stat(xlsxPath)
	assert.NoError(t, err)
}

func TestWriteAllSkipsEmptyPaths(t *testing.T) {
	require.NoError(t, WriteAll(context.Background(), sampleRecords(), "", ""))
}
