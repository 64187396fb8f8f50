package fieldpath

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

const biblioXML = `<?xml version="1.0"?>
<exchange-document xmlns="http://www.epo.org/exchange">
  <bibliographic-data>
    <publication-reference>
      <document-id document-id-type="epodoc">
        <doc-number>EP1234567</doc-number>
        <date>  20240117  </date>
      </document-id>
      <document-id document-id-type="docdb">
        <country>EP</country>
        <doc-number>1234567</doc-number>
        <kind>A1</kind>
        <date>20240118</date>
      </document-id>
    </publication-reference>
    <parties>
      <applicants>
        <applicant data-format="epodoc">
          <applicant-name><name>ACME GMBH</name></applicant-name>
        </applicant>
        <applicant data-format="original">
          <applicant-name><name>Acme GmbH</name></applicant-name>
        </applicant>
      </applicants>
    </parties>
    <classifications-cpc>
      <classification-cpc><classification-symbol>A01B33/00</classification-symbol></classification-cpc>
      <classification-cpc><classification-symbol>A01B 35/00</classification-symbol></classification-cpc>
    </classifications-cpc>
  </bibliographic-data>
</exchange-document>`

func TestExtractFirstCandidateWins(t *testing.T) {
	doc := parse(t, biblioXML)
	p := First(
		"//*[local-name()='document-id'][@document-id-type='epodoc']/*[local-name()='date']",
		"//*[local-name()='document-id'][@document-id-type='docdb']/*[local-name()='date']",
	)
	assert.Equal(t, "20240117", Extract(doc, p))
}

func TestExtractFallsBackWhenPreferredAbsent(t *testing.T) {
	doc := parse(t, biblioXML)
	p := First(
		"//*[local-name()='document-id'][@document-id-type='nonesuch']/*[local-name()='date']",
		"//*[local-name()='document-id'][@document-id-type='docdb']/*[local-name()='date']",
	)
	assert.Equal(t, "20240118", Extract(doc, p))
}

func TestExtractSkipsWhitespaceOnlyMatches(t *testing.T) {
	doc := parse(t, `<r><a>   </a><b> value </b></r>`)
	p := First("//a", "//b")
	assert.Equal(t, "value", Extract(doc, p))
}

func TestExtractMissing(t *testing.T) {
	doc := parse(t, `<r><a/></r>`)
	tests := []struct {
		name string
		path Path
	}{
		{"no match", First("//nope", "//also/nope")},
		{"empty match", First("//a")},
		{"invalid expression", First("//[broken", "//nope")},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, Missing, Extract(doc, tt.path))
		})
	}
}

func TestExtractNilDocument(t *testing.T) {
	assert.Equal(t, Missing, Extract(nil, First("//a")))
	assert.Nil(t, ExtractAll(nil, Each("//a")))
}

func TestExtractRepeatedTakesFirst(t *testing.T) {
	doc := parse(t, `<r><name>First Applicant</name><name>Second Applicant</name></r>`)
	assert.Equal(t, "First Applicant", Extract(doc, First("//name")))
}

func TestExtractAllPreservesOrder(t *testing.T) {
	doc := parse(t, biblioXML)
	p := Each("//*[local-name()='classification-symbol']")
	assert.Equal(t, []string{"A01B33/00", "A01B 35/00"}, ExtractAll(doc, p))
}

func TestExtractAllFirstYieldingCandidateOnly(t *testing.T) {
	doc := parse(t, `<r><a>one</a><b>two</b><b>three</b></r>`)
	got := ExtractAll(doc, Each("//a", "//b"))
	assert.Equal(t, []string{"one"}, got)
}

func TestExtractAllAllCandidatesEmpty(t *testing.T) {
	doc := parse(t, `<r><a>  </a></r>`)
	assert.Nil(t, ExtractAll(doc, Each("//a", "//b")))
}
