package csvimport

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"
)

// CSVParser reads canonical tabular text: a header row followed by data rows
type CSVParser struct {
	delimiter  rune
	lazyQuotes bool
	headers    []string
	headerMap  map[string]int
	currentRow int
	reader     *csv.Reader
}

// ParserOption is a functional option for CSVParser configuration
type ParserOption func(*CSVParser)

// WithDelimiter sets the field delimiter (default is comma)
func WithDelimiter(d rune) ParserOption {
	return func(p *CSVParser) {
		p.delimiter = d
	}
}

// WithLazyQuotes enables lazy quote handling
func WithLazyQuotes(lazy bool) ParserOption {
	return func(p *CSVParser) {
		p.lazyQuotes = lazy
	}
}

// NewCSVParser creates a parser. A UTF-8 BOM is skipped and content that is
// not UTF-8 is rejected.
func NewCSVParser(r io.Reader, opts ...ParserOption) (*CSVParser, error) {
	p := &CSVParser{
		delimiter:  ',',
		lazyQuotes: true,
		headerMap:  make(map[string]int),
	}
	for _, opt := range opts {
		opt(p)
	}

	br := bufio.NewReader(r)
	if bom, err := br.Peek(3); err == nil && bytes.Equal(bom, utf8BOM) {
		_, _ = br.Discard(3)
	}

	const checkSize = 4096
	head, err := br.Peek(checkSize)
	if err != nil && err != io.EOF && err != bufio.ErrBufferFull {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	if len(bytes.TrimSpace(head)) == 0 {
		return nil, ErrEmptyFile
	}
	if !validUTF8Prefix(head, len(head) == checkSize) {
		return nil, ErrInvalidEncoding
	}

	p.reader = csv.NewReader(br)
	p.reader.Comma = p.delimiter
	p.reader.LazyQuotes = p.lazyQuotes
	p.reader.FieldsPerRecord = -1
	return p, nil
}

// ParseFromBytes creates a parser from a byte slice
func ParseFromBytes(data []byte, opts ...ParserOption) (*CSVParser, error) {
	return NewCSVParser(bytes.NewReader(data), opts...)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// validUTF8Prefix tolerates a rune cut off at the end of a truncated window
func validUTF8Prefix(b []byte, truncated bool) bool {
	if utf8.Valid(b) {
		return true
	}
	if !truncated {
		return false
	}
	for i := 1; i < utf8.UTFMax && i < len(b); i++ {
		if utf8.Valid(b[:len(b)-i]) {
			return true
		}
	}
	return false
}

// ParseHeader reads the first non-empty row as the header
func (p *CSVParser) ParseHeader() error {
	for {
		record, err := p.reader.Read()
		if err == io.EOF {
			return ErrMissingHeader
		}
		if err != nil {
			return fmt.Errorf("failed to read header: %w", err)
		}
		p.currentRow, _ = p.reader.FieldPos(0)
		if isBlank(record) {
			continue
		}

		p.headers = make([]string, len(record))
		for i, h := range record {
			p.headers[i] = strings.TrimSpace(h)
			key := HeaderKey(h)
			if _, dup := p.headerMap[key]; !dup && key != "" {
				p.headerMap[key] = i
			}
		}
		return nil
	}
}

// Headers returns the header cells as written
func (p *CSVParser) Headers() []string {
	return p.headers
}

// Column returns the index of the first header whose key is one of names
func (p *CSVParser) Column(names ...string) (int, bool) {
	for _, n := range names {
		if idx, ok := p.headerMap[HeaderKey(n)]; ok {
			return idx, true
		}
	}
	return -1, false
}

// Row is a data row with the 1-based source line it starts on
type Row struct {
	LineNumber int
	Fields     []string
}

// Get returns the trimmed cell at idx, empty when out of range
func (r *Row) Get(idx int) string {
	if idx < 0 || idx >= len(r.Fields) {
		return ""
	}
	return strings.TrimSpace(r.Fields[idx])
}

// ReadRow reads the next row
func (p *CSVParser) ReadRow() (*Row, error) {
	record, err := p.reader.Read()
	if err == io.EOF {
		return nil, io.EOF
	}
	if err != nil {
		return nil, fmt.Errorf("error reading row after line %d: %w", p.currentRow, err)
	}
	p.currentRow, _ = p.reader.FieldPos(0)
	return &Row{LineNumber: p.currentRow, Fields: record}, nil
}

// ReadAllRows reads the remaining rows, skipping blank ones
func (p *CSVParser) ReadAllRows() ([]*Row, error) {
	var rows []*Row
	for {
		row, err := p.ReadRow()
		if err == io.EOF {
			return rows, nil
		}
		if err != nil {
			return rows, err
		}
		if isBlank(row.Fields) {
			continue
		}
		rows = append(rows, row)
	}
}

// HeaderKey folds a header to lower-case letters and digits so that
// "Style No.", "style_no" and "STYLE NO" compare equal.
func HeaderKey(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

func isBlank(cells []string) bool {
	for _, c := range cells {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
