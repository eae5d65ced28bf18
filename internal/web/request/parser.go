// Package request decodes admin record payloads
package request

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
)

// DefaultMaxBodySize bounds request bodies
const DefaultMaxBodySize = 10 << 20

// ErrBodyTooLarge is returned when a body exceeds the parser's limit
var ErrBodyTooLarge = errors.New("request body too large")

// Parser handles parsing of HTTP request bodies
type Parser struct {
	maxBodySize int64
}

// NewParser creates a new request parser with default settings
func NewParser() *Parser {
	return &Parser{maxBodySize: DefaultMaxBodySize}
}

// NewParserWithMaxSize creates a parser with a custom max body size
func NewParserWithMaxSize(maxBytes int64) *Parser {
	return &Parser{maxBodySize: maxBytes}
}

// Records decodes a body holding one record or, for JSON, an array of
// records. batch reports whether an array was sent. Form bodies always hold
// one record.
func (p *Parser) Records(w http.ResponseWriter, r *http.Request) (records []map[string]interface{}, batch bool, err error) {
	mediaType, _, perr := mime.ParseMediaType(r.Header.Get("Content-Type"))
	if perr != nil {
		mediaType = r.Header.Get("Content-Type")
	}

	switch mediaType {
	case "application/json", "":
		return p.parseJSON(w, r)
	case "application/x-www-form-urlencoded":
		record, err := p.parseForm(w, r)
		if err != nil {
			return nil, false, err
		}
		return []map[string]interface{}{record}, false, nil
	default:
		return nil, false, fmt.Errorf("unsupported content type: %s", mediaType)
	}
}

// Record decodes a body holding exactly one record
func (p *Parser) Record(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	records, batch, err := p.Records(w, r)
	if err != nil {
		return nil, err
	}
	if batch {
		return nil, errors.New("expected a single JSON object")
	}
	return records[0], nil
}

// parseJSON decodes numbers as json.Number so large integer keys keep their
// precision
func (p *Parser) parseJSON(w http.ResponseWriter, r *http.Request) ([]map[string]interface{}, bool, error) {
	body, err := p.read(w, r)
	if err != nil {
		return nil, false, err
	}
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return nil, false, errors.New("request body is empty")
	}

	batch := body[0] == '['
	decoder := json.NewDecoder(bytes.NewReader(body))
	decoder.UseNumber()

	var records []map[string]interface{}
	if batch {
		err = decoder.Decode(&records)
	} else {
		var record map[string]interface{}
		err = decoder.Decode(&record)
		records = []map[string]interface{}{record}
	}
	if err != nil {
		return nil, false, fmt.Errorf("invalid JSON: %w", err)
	}
	if decoder.More() {
		return nil, false, errors.New("request body contains multiple JSON values")
	}
	for i, rec := range records {
		if rec == nil {
			return nil, false, fmt.Errorf("record %d is not a JSON object", i)
		}
	}
	return records, batch, nil
}

// parseForm maps URL-encoded fields to single string values. Repeated fields
// keep their last value.
func (p *Parser) parseForm(w http.ResponseWriter, r *http.Request) (map[string]interface{}, error) {
	body, err := p.read(w, r)
	if err != nil {
		return nil, err
	}
	values, err := url.ParseQuery(string(body))
	if err != nil {
		return nil, fmt.Errorf("invalid form data: %w", err)
	}
	record := make(map[string]interface{}, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			record[key] = vals[len(vals)-1]
		}
	}
	return record, nil
}

func (p *Parser) read(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	if r.Body == nil {
		return nil, nil
	}
	body := http.MaxBytesReader(w, r.Body, p.maxBodySize)
	defer body.Close()

	data, err := io.ReadAll(body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, ErrBodyTooLarge
		}
		return nil, fmt.Errorf("read body: %w", err)
	}
	return data, nil
}
