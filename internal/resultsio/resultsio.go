// Package resultsio encodes an executor.SelectResult in the SPARQL 1.1
// Query Results formats: JSON, XML, CSV, and TSV.
package resultsio

import (
	"encoding/csv"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"strings"

	"github.com/jblamy/quadstore/internal/executor"
	"github.com/jblamy/quadstore/internal/rdf"
)

// Format names the four SPARQL 1.1 Query Results encodings this package
// supports.
type Format string

const (
	FormatJSON Format = "json"
	FormatXML  Format = "xml"
	FormatCSV  Format = "csv"
	FormatTSV  Format = "tsv"
)

// ContentType returns the media type to send with an HTTP response
// carrying f-encoded results.
func (f Format) ContentType() string {
	switch f {
	case FormatJSON:
		return "application/sparql-results+json; charset=utf-8"
	case FormatXML:
		return "application/sparql-results+xml; charset=utf-8"
	case FormatCSV:
		return "text/csv; charset=utf-8"
	case FormatTSV:
		return "text/tab-separated-values; charset=utf-8"
	}
	return "application/octet-stream"
}

// NegotiateFormat picks a Format from an HTTP Accept header, defaulting to
// JSON when nothing recognizable is present.
func NegotiateFormat(accept string) Format {
	accept = strings.ToLower(accept)
	switch {
	case strings.Contains(accept, "sparql-results+xml"), strings.Contains(accept, "/xml"):
		return FormatXML
	case strings.Contains(accept, "text/csv"):
		return FormatCSV
	case strings.Contains(accept, "tab-separated"):
		return FormatTSV
	default:
		return FormatJSON
	}
}

// Encode writes result to w in the given format.
func Encode(w io.Writer, result *executor.SelectResult, f Format) error {
	switch f {
	case FormatJSON:
		return encodeJSON(w, result)
	case FormatXML:
		return encodeXML(w, result)
	case FormatCSV:
		return encodeDelimited(w, result, ',')
	case FormatTSV:
		return encodeDelimited(w, result, '\t')
	}
	return fmt.Errorf("resultsio: unknown format %q", f)
}

// --- JSON ----------------------------------------------------------------

type jsonResults struct {
	Head    jsonHead    `json:"head"`
	Results jsonResults2 `json:"results"`
}

type jsonHead struct {
	Vars []string `json:"vars"`
}

type jsonResults2 struct {
	Bindings []map[string]jsonTerm `json:"bindings"`
}

type jsonTerm struct {
	Type     string `json:"type"`
	Value    string `json:"value"`
	Lang     string `json:"xml:lang,omitempty"`
	Datatype string `json:"datatype,omitempty"`
}

func encodeJSON(w io.Writer, result *executor.SelectResult) error {
	out := jsonResults{Head: jsonHead{Vars: result.Variables}}
	for _, row := range result.Rows {
		binding := make(map[string]jsonTerm, len(row))
		for name, term := range row {
			binding[name] = toJSONTerm(term)
		}
		out.Results.Bindings = append(out.Results.Bindings, binding)
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}

func toJSONTerm(t rdf.Term) jsonTerm {
	switch v := t.(type) {
	case *rdf.IRI:
		return jsonTerm{Type: "uri", Value: v.Value}
	case *rdf.BlankNode:
		return jsonTerm{Type: "bnode", Value: v.ID}
	case *rdf.Literal:
		jt := jsonTerm{Type: "literal", Value: v.Value, Lang: v.Language}
		if v.Datatype != nil {
			jt.Datatype = v.Datatype.Value
		}
		return jt
	}
	return jsonTerm{Type: "literal", Value: t.String()}
}

// --- XML -------------------------------------------------------------------

type xmlResults struct {
	XMLName xml.Name       `xml:"sparql"`
	Head    xmlHead        `xml:"head"`
	Results xmlResultsBody `xml:"results"`
}

type xmlHead struct {
	Vars []xmlVariable `xml:"variable"`
}

type xmlVariable struct {
	Name string `xml:"name,attr"`
}

type xmlResultsBody struct {
	Rows []xmlResultRow `xml:"result"`
}

type xmlResultRow struct {
	Bindings []xmlBinding `xml:"binding"`
}

type xmlBinding struct {
	Name    string    `xml:"name,attr"`
	URI     *string   `xml:"uri,omitempty"`
	BNode   *string   `xml:"bnode,omitempty"`
	Literal *xmlLiteral `xml:"literal,omitempty"`
}

type xmlLiteral struct {
	Value    string `xml:",chardata"`
	Lang     string `xml:"xml:lang,attr,omitempty"`
	Datatype string `xml:"datatype,attr,omitempty"`
}

func encodeXML(w io.Writer, result *executor.SelectResult) error {
	out := xmlResults{}
	for _, v := range result.Variables {
		out.Head.Vars = append(out.Head.Vars, xmlVariable{Name: v})
	}
	for _, row := range result.Rows {
		var xrow xmlResultRow
		for _, name := range result.Variables {
			term, ok := row[name]
			if !ok {
				continue
			}
			xrow.Bindings = append(xrow.Bindings, toXMLBinding(name, term))
		}
		out.Results.Rows = append(out.Results.Rows, xrow)
	}
	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	return enc.Encode(out)
}

func toXMLBinding(name string, t rdf.Term) xmlBinding {
	b := xmlBinding{Name: name}
	switch v := t.(type) {
	case *rdf.IRI:
		b.URI = &v.Value
	case *rdf.BlankNode:
		b.BNode = &v.ID
	case *rdf.Literal:
		lit := &xmlLiteral{Value: v.Value, Lang: v.Language}
		if v.Datatype != nil {
			lit.Datatype = v.Datatype.Value
		}
		b.Literal = lit
	}
	return b
}

// --- CSV/TSV -----------------------------------------------------------

func encodeDelimited(w io.Writer, result *executor.SelectResult, sep rune) error {
	cw := csv.NewWriter(w)
	cw.Comma = sep
	if err := cw.Write(result.Variables); err != nil {
		return err
	}
	for _, row := range result.Rows {
		record := make([]string, len(result.Variables))
		for i, name := range result.Variables {
			if term, ok := row[name]; ok {
				record[i] = termPlainText(term)
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func termPlainText(t rdf.Term) string {
	switch v := t.(type) {
	case *rdf.IRI:
		return v.Value
	case *rdf.BlankNode:
		return "_:" + v.ID
	case *rdf.Literal:
		return v.Value
	}
	return t.String()
}
