package resultsio_test

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jblamy/quadstore/internal/executor"
	"github.com/jblamy/quadstore/internal/rdf"
	"github.com/jblamy/quadstore/internal/resultsio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleResult() *executor.SelectResult {
	return &executor.SelectResult{
		Variables: []string{"person", "name"},
		Rows: []executor.Binding{
			{
				"person": rdf.NewIRI("http://example.org/alice"),
				"name":   rdf.NewLiteral("Alice"),
			},
			{
				"person": rdf.NewIRI("http://example.org/bob"),
				"name":   rdf.NewLangLiteral("Bob", "en"),
			},
		},
	}
}

func TestNegotiateFormat(t *testing.T) {
	tests := []struct {
		accept   string
		expected resultsio.Format
	}{
		{"application/sparql-results+json", resultsio.FormatJSON},
		{"application/sparql-results+xml", resultsio.FormatXML},
		{"text/csv", resultsio.FormatCSV},
		{"text/tab-separated-values", resultsio.FormatTSV},
		{"", resultsio.FormatJSON},
		{"*/*", resultsio.FormatJSON},
	}
	for _, tt := range tests {
		t.Run(tt.accept, func(t *testing.T) {
			assert.Equal(t, tt.expected, resultsio.NegotiateFormat(tt.accept))
		})
	}
}

func TestEncodeJSON(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, resultsio.Encode(&buf, sampleResult(), resultsio.FormatJSON))

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))

	head := decoded["head"].(map[string]interface{})
	vars := head["vars"].([]interface{})
	assert.Equal(t, []interface{}{"person", "name"}, vars)

	results := decoded["results"].(map[string]interface{})
	bindings := results["bindings"].([]interface{})
	assert.Len(t, bindings, 2)
}

func TestEncodeXML(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, resultsio.Encode(&buf, sampleResult(), resultsio.FormatXML))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, `<?xml`))
	assert.Contains(t, out, `<variable name="person">`)
	assert.Contains(t, out, `<uri>http://example.org/alice</uri>`)
	assert.Contains(t, out, `xml:lang="en"`)
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, resultsio.Encode(&buf, sampleResult(), resultsio.FormatCSV))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "person,name", strings.TrimSpace(lines[0]))
}

func TestEncodeTSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, resultsio.Encode(&buf, sampleResult(), resultsio.FormatTSV))

	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "person\tname"))
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	err := resultsio.Encode(&buf, sampleResult(), resultsio.Format("bogus"))
	assert.Error(t, err)
}

func TestContentType(t *testing.T) {
	assert.Equal(t, "application/sparql-results+json; charset=utf-8", resultsio.FormatJSON.ContentType())
	assert.Equal(t, "text/csv; charset=utf-8", resultsio.FormatCSV.ContentType())
}
