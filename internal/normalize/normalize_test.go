package normalize

import (
	"strings"
	"testing"

	"github.com/antchfx/xmlquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func parse(t *testing.T, xml string) *xmlquery.Node {
	t.Helper()
	doc, err := xmlquery.Parse(strings.NewReader(xml))
	require.NoError(t, err)
	return doc
}

const snippetXML = `<?xml version="1.0"?>
<document-id document-id-type="docdb">
  <country>EP</country>
  <doc-number>1234567</doc-number>
  <kind>A1</kind>
  <date>20240115</date>
</document-id>`

const biblioXML = `<?xml version="1.0"?>
<exchange-document>
  <bibliographic-data>
    <publication-reference>
      <document-id document-id-type="epodoc">
        <doc-number>EP1234567</doc-number>
        <date>20240117</date>
      </document-id>
    </publication-reference>
    <parties>
      <applicants>
        <applicant data-format="epodoc">
          <applicant-name><name>ACME GMBH</name></applicant-name>
          <residence><country>DE</country></residence>
        </applicant>
      </applicants>
    </parties>
  </bibliographic-data>
</exchange-document>`

const classificationXML = `<?xml version="1.0"?>
<classifications-cpc>
  <classification-cpc><classification-symbol>A01B33/00</classification-symbol></classification-cpc>
  <classification-cpc><classification-symbol>A01B 35/00</classification-symbol></classification-cpc>
</classifications-cpc>`

const registerXML = `<?xml version="1.0"?>
<register-document>
  <agents>
    <agent><addressbook><name>Patent Reps LLP</name></addressbook></agent>
  </agents>
  <opposition-data>
    <opponent><addressbook><name>Rival Corp</name></addressbook></opponent>
  </opposition-data>
  <appeal-data>
    <appeal-nr>T 0123/24</appeal-nr>
  </appeal-data>
</register-document>`

func TestNormalizePrefersBiblioOverSnippet(t *testing.T) {
	rec := Normalize("EP1234567", Sections{
		Snippet: parse(t, snippetXML),
		Biblio:  parse(t, biblioXML),
	}, false)

	assert.Equal(t, "EP1234567", rec[FieldDocumentNumber])
	assert.Equal(t, "20240117", rec[FieldPublicationDate])
	assert.Equal(t, "ACME GMBH", rec[FieldApplicantName])
	assert.Equal(t, "DE", rec[FieldApplicantCountry])
}

func TestNormalizeFallsBackToSnippet(t *testing.T) {
	rec := Normalize("EP1234567", Sections{Snippet: parse(t, snippetXML)}, false)

	// Biblio lookup failed entirely; the snippet date is still usable,
	// everything else degrades to the empty string.
	assert.Equal(t, "20240115", rec[FieldPublicationDate])
	assert.Equal(t, "", rec[FieldApplicantName])
	assert.Equal(t, "", rec[FieldCpcMain])
	assert.Equal(t, "", rec[FieldCpcFull])
}

func TestNormalizeClassificationScenario(t *testing.T) {
	rec := Normalize("EP1234567", Sections{
		Classification: parse(t, classificationXML),
	}, false)

	assert.Equal(t, "A01B", rec[FieldCpcMain])
	assert.Equal(t, "A01B3300;A01B3500", rec[FieldCpcFull])
}

func TestNormalizeRegisterRequested(t *testing.T) {
	rec := Normalize("EP1234567", Sections{
		Biblio:   parse(t, biblioXML),
		Register: parse(t, registerXML),
	}, true)

	assert.Equal(t, "Patent Reps LLP", rec[FieldRepName])
	assert.Equal(t, "Rival Corp", rec[FieldOpponentName])
	assert.Equal(t, "T 0123/24", rec[FieldAppealNr])
}

func TestNormalizeRegisterNotRequested(t *testing.T) {
	rec := Normalize("EP1234567", Sections{
		Biblio:   parse(t, biblioXML),
		Register: parse(t, registerXML),
	}, false)

	// Fields are absent from the record, not zero-filled.
	_, ok := rec[FieldRepName]
	assert.False(t, ok)
	_, ok = rec[FieldOpponentName]
	assert.False(t, ok)
	_, ok = rec[FieldAppealNr]
	assert.False(t, ok)
}

func TestNormalizeRegisterRequestedButMissing(t *testing.T) {
	rec := Normalize("EP1234567", Sections{Biblio: parse(t, biblioXML)}, true)

	assert.Equal(t, "", rec[FieldRepName])
	assert.Equal(t, "", rec[FieldOpponentName])
	assert.Equal(t, "", rec[FieldAppealNr])
}

func TestSummarizeCPC(t *testing.T) {
	tests := []struct {
		name     string
		codes    []string
		wantMain string
		wantFull string
	}{
		{"spaces and slashes stripped", []string{"A01B33/00", "A01B 35/00"}, "A01B", "A01B3300;A01B3500"},
		{"short code kept whole", []string{"H04"}, "H04", "H04"},
		{"blank entries dropped", []string{"  ", "G06F17/30"}, "G06F", "G06F1730"},
		{"empty", nil, "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			main, full := summarizeCPC(tt.codes)
			assert.Equal(t, tt.wantMain, main)
			assert.Equal(t, tt.wantFull, full)
		})
	}
}
