package transfer

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/huykn/dataquery/types"
)

func TestCSVParser(t *testing.T) {
	records, err := CSVParser{}.Parse(strings.NewReader("id, title ,status\n1,Hello,draft\n,World,\n"))
	require.NoError(t, err)
	assert.Equal(t, []types.Record{
		{"id": "1", "title": "Hello", "status": "draft"},
		{"title": "World"},
	}, records)

	records, err = CSVParser{Comma: ';'}.Parse(strings.NewReader("id;title\n7;Semi\n"))
	require.NoError(t, err)
	assert.Equal(t, "Semi", records[0]["title"])
}

func TestCSVParserErrors(t *testing.T) {
	_, err := CSVParser{}.Parse(strings.NewReader(""))
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = CSVParser{}.Parse(strings.NewReader("id,title\n1,a,extra\n"))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestCSVWriterDefaultColumns(t *testing.T) {
	var buf bytes.Buffer
	err := CSVWriter{}.Write(&buf, []types.Record{
		{"title": "Hello", "id": "1", "tags": []any{"a", "b"}},
		{"id": "2", "author": "ann"},
	})
	require.NoError(t, err)
	assert.Equal(t, "id,author,tags,title\n1,,\"[\"\"a\"\",\"\"b\"\"]\",Hello\n2,ann,,\n", buf.String())
}

func TestJSONParser(t *testing.T) {
	records, err := JSONParser{}.Parse(strings.NewReader(`[{"id": 5, "title": "x"}]`))
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ID("5"), types.IDOf(records[0]["id"]))

	_, err = JSONParser{}.Parse(strings.NewReader(`[1, 2]`))
	assert.ErrorIs(t, err, types.ErrValidation)

	_, err = JSONParser{}.Parse(strings.NewReader(`[null]`))
	assert.ErrorIs(t, err, types.ErrValidation)
}

func TestJSONWriter(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, JSONWriter{}.Write(&buf, nil))
	assert.Equal(t, "[]\n", buf.String())

	buf.Reset()
	require.NoError(t, JSONWriter{Indent: "  "}.Write(&buf, []types.Record{{"id": "1"}}))

	var back []types.Record
	require.NoError(t, json.Unmarshal(buf.Bytes(), &back))
	assert.Equal(t, []types.Record{{"id": "1"}}, back)
}

func TestFormatLookup(t *testing.T) {
	p, err := ParserFor(FormatCSV)
	require.NoError(t, err)
	assert.IsType(t, CSVParser{}, p)

	w, err := WriterFor("")
	require.NoError(t, err)
	assert.IsType(t, JSONWriter{}, w)

	_, err = ParserFor("xml")
	assert.Error(t, err)
	_, err = WriterFor("xml")
	assert.Error(t, err)
}

func TestYAMLRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	err := YAMLWriter{}.Write(&buf, []types.Record{{"id": "1", "title": "Hello", "views": 3}})
	require.NoError(t, err)
	assert.Equal(t, "- id: \"1\"\n  title: Hello\n  views: 3\n", buf.String())

	records, err := YAMLParser{}.Parse(&buf)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, types.ID("1"), types.IDOf(records[0]["id"]))
	assert.Equal(t, 3, records[0]["views"])
}

func TestYAMLParserErrors(t *testing.T) {
	_, err := YAMLParser{}.Parse(strings.NewReader("- 1\n- 2\n"))
	assert.ErrorIs(t, err, types.ErrValidation)

	records, err := YAMLParser{}.Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, records)
}
