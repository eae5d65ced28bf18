package request

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func post(body, contentType string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	if contentType != "" {
		r.Header.Set("Content-Type", contentType)
	}
	return r
}

func TestParser_Record(t *testing.T) {
	p := NewParser()

	rec, err := p.Record(httptest.NewRecorder(), post(`{"title":"Dune","author_id":9007199254740993}`, "application/json"))
	require.NoError(t, err)
	assert.Equal(t, "Dune", rec["title"])
	assert.Equal(t, json.Number("9007199254740993"), rec["author_id"])

	rec, err = p.Record(httptest.NewRecorder(), post(`title=Dune&isbn=0001`, "application/x-www-form-urlencoded"))
	require.NoError(t, err)
	assert.Equal(t, map[string]interface{}{"title": "Dune", "isbn": "0001"}, rec)
}

func TestParser_Batch(t *testing.T) {
	p := NewParser()
	records, batch, err := p.Records(httptest.NewRecorder(), post(` [{"label":"a"},{"label":"b"}]`, "application/json; charset=utf-8"))
	require.NoError(t, err)
	assert.True(t, batch)
	assert.Len(t, records, 2)

	_, err = p.Record(httptest.NewRecorder(), post(`[{"label":"a"}]`, ""))
	assert.Error(t, err)
}

func TestParser_Rejects(t *testing.T) {
	p := NewParserWithMaxSize(16)
	tests := map[string]*http.Request{
		"empty":        post("", "application/json"),
		"malformed":    post(`{"title":`, "application/json"),
		"two values":   post(`{} {}`, "application/json"),
		"not object":   post(`[1]`, "application/json"),
		"content type": post(`<a/>`, "application/xml"),
	}
	for name, r := range tests {
		_, _, err := p.Records(httptest.NewRecorder(), r)
		assert.Error(t, err, name)
	}

	_, _, err := p.Records(httptest.NewRecorder(), post(`{"title":"a very long title"}`, "application/json"))
	assert.ErrorIs(t, err, ErrBodyTooLarge)
}
