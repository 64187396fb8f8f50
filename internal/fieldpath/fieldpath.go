// Package fieldpath evaluates ordered lists of candidate XPath expressions
// against OPS documents. The same semantic field moves around between the
// epodoc and docdb document-id schemes and between single-item and repeated
// representations, so every field is located through a priority list rather
// than a single path.
package fieldpath

import (
	"strings"

	"github.com/antchfx/xmlquery"
)

// Missing is the sentinel for a field no candidate could locate. Records
// carry explicit empty strings, never nulls.
const Missing = ""

// Path is an ordered list of candidate locators for one field, most
// specific first. All selects between first-match and all-matches mode.
type Path struct {
	Candidates []string
	All        bool
}

// First builds a Path returning the first non-empty match.
func First(candidates ...string) Path {
	return Path{Candidates: candidates}
}

// Each builds a Path returning every non-empty match of the first
// candidate that yields any.
func Each(candidates ...string) Path {
	return Path{Candidates: candidates, All: true}
}

// Extract evaluates the candidates in order and returns the first
// trimmed non-empty value, or Missing. A nil document, an invalid
// expression or absent intermediate structure all count as a failed
// candidate, never an error.
func Extract(doc *xmlquery.Node, p Path) string {
	if doc == nil {
		return Missing
	}
	for _, expr := range p.Candidates {
		nodes, err := xmlquery.QueryAll(doc, expr)
		if err != nil {
			continue
		}
		for _, n := range nodes {
			if v := strings.TrimSpace(n.InnerText()); v != "" {
				return v
			}
		}
	}
	return Missing
}

// ExtractAll evaluates the candidates in order and returns the ordered
// non-empty values of the first candidate that yields at least one.
// Returns nil when every candidate fails.
func ExtractAll(doc *xmlquery.Node, p Path) []string {
	if doc == nil {
		return nil
	}
	for _, expr := range p.Candidates {
		nodes, err := xmlquery.QueryAll(doc, expr)
		if err != nil {
			continue
		}
		var values []string
		for _, n := range nodes {
			if v := strings.TrimSpace(n.InnerText()); v != "" {
				values = append(values, v)
			}
		}
		if len(values) > 0 {
			return values
		}
	}
	return nil
}
