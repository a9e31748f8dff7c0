package loader

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"strings"
)

var (
	ErrSourceNotFound   = errors.New("input file not found")
	ErrPermissionDenied = errors.New("input file permission denied")
	ErrMissingColumn    = errors.New("input header missing required column")
)

// Columns maps the logical input fields onto header names.
type Columns struct {
	LocalID   string
	Code      string
	CodeType  string
	LocalName string
	// CodeName is optional. When present it names the code on the row.
	CodeName string
}

// DefaultColumns is the header layout used when none is configured.
func DefaultColumns() Columns {
	return Columns{
		LocalID:   "LOCAL_ID",
		Code:      "CODE",
		CodeType:  "CODE_TYPE",
		LocalName: "LOCAL_NAME",
		CodeName:  "CODE_NAME",
	}
}

func (c Columns) required() []string {
	return []string{c.LocalID, c.Code, c.CodeType, c.LocalName}
}

// Row is one input record keyed by header name.
type Row struct {
	Line   int
	Fields map[string]string
}

func (r Row) Get(column string) string {
	return strings.TrimSpace(r.Fields[column])
}

// RowSource yields rows until io.EOF.
type RowSource interface {
	Header() []string
	Next() (Row, error)
}

// CSVSource reads comma separated rows with a header line.
type CSVSource struct {
	r      *csv.Reader
	header []string
	line   int
}

// NewCSVSource reads the header from r and checks that every required
// column is present.
func NewCSVSource(r io.Reader, cols Columns) (*CSVSource, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(strings.TrimPrefix(header[i], "\ufeff"))
	}
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	for _, want := range cols.required() {
		if !have[want] {
			return nil, fmt.Errorf("%w: %s", ErrMissingColumn, want)
		}
	}
	return &CSVSource{r: cr, header: header, line: 1}, nil
}

func (s *CSVSource) Header() []string { return s.header }

func (s *CSVSource) Next() (Row, error) {
	rec, err := s.r.Read()
	if err != nil {
		return Row{}, err
	}
	s.line++
	fields := make(map[string]string, len(s.header))
	for i, h := range s.header {
		if i < len(rec) {
			fields[h] = rec[i]
		}
	}
	return Row{Line: s.line, Fields: fields}, nil
}

// OpenFile opens path for loading. Missing files and permission failures
// map to ErrSourceNotFound and ErrPermissionDenied.
func OpenFile(path string) (*os.File, error) {
	f, err := os.Open(path)
	switch {
	case err == nil:
		return f, nil
	case errors.Is(err, fs.ErrNotExist):
		return nil, fmt.Errorf("%w: %s", ErrSourceNotFound, path)
	case errors.Is(err, fs.ErrPermission):
		return nil, fmt.Errorf("%w: %s", ErrPermissionDenied, path)
	}
	return nil, fmt.Errorf("open %s: %w", path, err)
}
