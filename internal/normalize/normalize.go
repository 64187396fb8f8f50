// Package normalize flattens the per-document OPS payloads into one tabular
// record per publication.
package normalize

import (
	"strings"

	"github.com/antchfx/xmlquery"

	"github.com/Qubut/ops-harvester/internal/fieldpath"
)

// Field names of the flat output record.
const (
	FieldDocumentNumber   = "DocumentNumber"
	FieldPublicationDate  = "PublicationDate"
	FieldApplicantName    = "ApplicantName"
	FieldApplicantCountry = "ApplicantCountry"
	FieldCpcMain          = "CpcMain"
	FieldCpcFull          = "CpcFull"
	FieldRepName          = "RepName"
	FieldOpponentName     = "OpponentName"
	FieldAppealNr         = "AppealNr"
)

// Columns is the fixed export column order.
var Columns = []string{
	FieldDocumentNumber,
	FieldPublicationDate,
	FieldApplicantName,
	FieldApplicantCountry,
	FieldCpcMain,
	FieldCpcFull,
	FieldRepName,
	FieldOpponentName,
	FieldAppealNr,
}

// Record is one flat output row. Fields that were looked up but not found
// hold the empty string; register fields are absent entirely when the
// register section was not requested.
type Record map[string]string

// Sections holds the per-document payloads one record is assembled from.
// Any of them may be nil when the lookup was skipped or failed; a nil
// section simply contributes no values.
type Sections struct {
	Snippet        *xmlquery.Node
	Biblio         *xmlquery.Node
	Classification *xmlquery.Node
	Register       *xmlquery.Node
}

var (
	pathPublicationDate = fieldpath.First(
		".//*[local-name()='publication-reference']//*[local-name()='document-id'][@document-id-type='epodoc']/*[local-name()='date']",
		".//*[local-name()='publication-reference']//*[local-name()='document-id'][@document-id-type='docdb']/*[local-name()='date']",
		".//*[local-name()='document-id']/*[local-name()='date']",
	)
	pathApplicantName = fieldpath.First(
		".//*[local-name()='applicants']/*[local-name()='applicant'][@data-format='epodoc']//*[local-name()='applicant-name']/*[local-name()='name']",
		".//*[local-name()='applicants']/*[local-name()='applicant'][@data-format='docdb']//*[local-name()='applicant-name']/*[local-name()='name']",
		".//*[local-name()='applicant']//*[local-name()='name']",
	)
	pathApplicantCountry = fieldpath.First(
		".//*[local-name()='applicant']//*[local-name()='residence']/*[local-name()='country']",
		".//*[local-name()='applicant']//*[local-name()='country']",
	)
	pathCpcCodes = fieldpath.Each(
		".//*[local-name()='classifications-cpc']//*[local-name()='classification-symbol']",
		".//*[local-name()='patent-classification']/*[local-name()='classification-symbol']",
		".//*[local-name()='classification-cpc']/*[local-name()='text']",
	)
	pathRepName = fieldpath.First(
		".//*[local-name()='agents']/*[local-name()='agent']//*[local-name()='name']",
		".//*[local-name()='agent']//*[local-name()='name']",
	)
	pathOpponentName = fieldpath.First(
		".//*[local-name()='opposition-data']//*[local-name()='opponent']//*[local-name()='name']",
		".//*[local-name()='opponent']//*[local-name()='name']",
	)
	pathAppealNr = fieldpath.First(
		".//*[local-name()='appeal-data']/*[local-name()='appeal-nr']",
		".//*[local-name()='appeal']/*[local-name()='appeal-number']",
	)
)

// Normalize assembles the flat record for one document identifier. Biblio
// fields prefer the detail document and fall back to the search snippet,
// which often already carries the answer and saves nothing being refetched.
// Register fields are only present when includeRegister is set.
func Normalize(documentID string, s Sections, includeRegister bool) Record {
	rec := Record{
		FieldDocumentNumber:   documentID,
		FieldPublicationDate:  firstOf(pathPublicationDate, s.Biblio, s.Snippet),
		FieldApplicantName:    firstOf(pathApplicantName, s.Biblio, s.Snippet),
		FieldApplicantCountry: firstOf(pathApplicantCountry, s.Biblio, s.Snippet),
	}

	codes := allOf(pathCpcCodes, s.Classification, s.Biblio, s.Snippet)
	rec[FieldCpcMain], rec[FieldCpcFull] = summarizeCPC(codes)

	if includeRegister {
		rec[FieldRepName] = fieldpath.Extract(s.Register, pathRepName)
		rec[FieldOpponentName] = fieldpath.Extract(s.Register, pathOpponentName)
		rec[FieldAppealNr] = fieldpath.Extract(s.Register, pathAppealNr)
	}
	return rec
}

// firstOf runs the path against each document in priority order and keeps
// the first non-missing value.
func firstOf(p fieldpath.Path, docs ...*xmlquery.Node) string {
	for _, doc := range docs {
		if v := fieldpath.Extract(doc, p); v != fieldpath.Missing {
			return v
		}
	}
	return fieldpath.Missing
}

func allOf(p fieldpath.Path, docs ...*xmlquery.Node) []string {
	for _, doc := range docs {
		if vs := fieldpath.ExtractAll(doc, p); len(vs) > 0 {
			return vs
		}
	}
	return nil
}

var cpcCleaner = strings.NewReplacer(" ", "", "/", "")

// summarizeCPC reduces the classification codes to the main class (first
// four characters of the first cleaned code) and the semicolon-joined full
// list, preserving document order.
func summarizeCPC(codes []string) (main, full string) {
	cleaned := make([]string, 0, len(codes))
	for _, c := range codes {
		if v := cpcCleaner.Replace(strings.TrimSpace(c)); v != "" {
			cleaned = append(cleaned, v)
		}
	}
	if len(cleaned) == 0 {
		return fieldpath.Missing, fieldpath.Missing
	}
	main = cleaned[0]
	if len(main) > 4 {
		main = main[:4]
	}
	return main, strings.Join(cleaned, ";")
}
