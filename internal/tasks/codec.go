package tasks

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// Format identifies which row encoding a tasks file uses.
type Format int

// Row encodings. FormatCurrent is the only one ever written.
const (
	// FormatCurrent is id,status,"title","description",pain_count with
	// doubled quotes inside the quoted fields, plus a quoted
	// acceptance_criteria field on rows that have any.
	FormatCurrent Format = iota
	// FormatLegacy is id|status|title|description|pain_count with \| and
	// \\ escapes and optional trailing fields.
	FormatLegacy
)

func (f Format) String() string {
	if f == FormatLegacy {
		return "legacy"
	}
	return "current"
}

const (
	legacySep  = '|'
	currentSep = ','
	quote      = '"'
	escape     = '\\'
)

var utf8BOM = []byte("\xEF\xBB\xBF")

// RecordError reports a row that could not be decoded. Err is one of
// ErrMalformedRecord, ErrUnknownStatus or ErrInvalidNumber.
type RecordError struct {
	Line int    // 1-based line on which the row starts
	Err  error  // sentinel
	Msg  string // detail
}

func (e *RecordError) Error() string {
	if e.Msg == "" {
		return fmt.Sprintf("line %d: %v", e.Line, e.Err)
	}
	return fmt.Sprintf("line %d: %v: %s", e.Line, e.Err, e.Msg)
}

func (e *RecordError) Unwrap() error { return e.Err }

func recordErr(line int, sentinel error, format string, args ...any) *RecordError {
	return &RecordError{Line: line, Err: sentinel, Msg: fmt.Sprintf(format, args...)}
}

// DetectFormat inspects the first non-blank row: after its leading id
// digits, a '|' means FormatLegacy and a ',' means FormatCurrent. Empty
// input is FormatCurrent. A UTF-8 byte order mark and indentation before
// the id are ignored.
func DetectFormat(data []byte) (Format, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	line := 1
	for len(data) > 0 {
		row, rest, _ := bytes.Cut(data, []byte{'\n'})
		if !isBlank(row) {
			i := 0
			for i < len(row) && (row[i] == ' ' || row[i] == '\t') {
				i++
			}
			for i < len(row) && row[i] >= '0' && row[i] <= '9' {
				i++
			}
			if i < len(row) {
				switch row[i] {
				case legacySep:
					return FormatLegacy, nil
				case currentSep:
					return FormatCurrent, nil
				}
			}
			return FormatCurrent, recordErr(line, ErrMalformedRecord, "cannot detect row format")
		}
		data = rest
		line++
	}
	return FormatCurrent, nil
}

// Decode parses a whole tasks file. The format is detected once from the
// first row and applied to every row. Tasks are returned in file order;
// BlockedBy is always empty (blockers live in their own file).
func Decode(data []byte) ([]Task, Format, error) {
	data = bytes.TrimPrefix(data, utf8BOM)
	format, err := DetectFormat(data)
	if err != nil {
		return nil, format, err
	}
	var rows []row
	if format == FormatLegacy {
		rows = splitLegacyRows(data)
	} else {
		rows, err = splitCurrentRows(data)
		if err != nil {
			return nil, format, err
		}
	}

	out := make([]Task, 0, len(rows))
	seen := make(map[int]int, len(rows))
	for _, r := range rows {
		t, err := taskFromFields(r.fields, r.line)
		if err != nil {
			return nil, format, err
		}
		if prev, dup := seen[t.ID]; dup {
			return nil, format, recordErr(r.line, ErrMalformedRecord, "duplicate id %d (first on line %d)", t.ID, prev)
		}
		seen[t.ID] = r.line
		out = append(out, t)
	}
	return out, format, nil
}

// Encode renders tasks in the current format, one row per task.
func Encode(ts []Task) []byte {
	var b strings.Builder
	for _, t := range ts {
		b.WriteString(EncodeTask(t))
	}
	return []byte(b.String())
}

// EncodeTask renders a single newline-terminated row in the current format.
// Title and description are always quoted, even when empty.
func EncodeTask(t Task) string {
	var b strings.Builder
	b.WriteString(strconv.Itoa(t.ID))
	b.WriteByte(currentSep)
	b.WriteString(string(t.Status))
	b.WriteByte(currentSep)
	writeQuoted(&b, t.Title)
	b.WriteByte(currentSep)
	writeQuoted(&b, t.Description)
	b.WriteByte(currentSep)
	b.WriteString(strconv.Itoa(t.PainCount))
	if t.AcceptanceCriteria != "" {
		b.WriteByte(currentSep)
		writeQuoted(&b, t.AcceptanceCriteria)
	}
	b.WriteByte('\n')
	return b.String()
}

func writeQuoted(b *strings.Builder, s string) {
	b.WriteByte(quote)
	b.WriteString(strings.ReplaceAll(s, `"`, `""`))
	b.WriteByte(quote)
}

// row is one record's raw fields and the line it started on.
type row struct {
	line   int
	fields []string
}

func taskFromFields(fields []string, line int) (Task, error) {
	if len(fields) < 3 {
		return Task{}, recordErr(line, ErrMalformedRecord, "expected at least 3 fields (id, status, title), got %d", len(fields))
	}
	if len(fields) > 6 {
		return Task{}, recordErr(line, ErrMalformedRecord, "expected at most 6 fields, got %d", len(fields))
	}
	id, err := strconv.Atoi(strings.TrimSpace(fields[0]))
	if err != nil || id <= 0 {
		return Task{}, recordErr(line, ErrInvalidNumber, "id %q", fields[0])
	}
	st, err := ParseStatus(fields[1])
	if err != nil {
		return Task{}, recordErr(line, ErrUnknownStatus, "%q", fields[1])
	}
	if strings.TrimSpace(fields[2]) == "" {
		return Task{}, recordErr(line, ErrMalformedRecord, "empty title")
	}
	t := Task{ID: id, Status: st, Title: fields[2]}
	if len(fields) >= 4 {
		t.Description = fields[3]
	}
	if len(fields) >= 5 && fields[4] != "" {
		pain, err := strconv.Atoi(fields[4])
		if err != nil || pain < 0 {
			return Task{}, recordErr(line, ErrInvalidNumber, "pain count %q", fields[4])
		}
		t.PainCount = pain
	}
	if len(fields) == 6 {
		t.AcceptanceCriteria = fields[5]
	}
	return t, nil
}

// splitLegacyRows splits a legacy file into rows. Legacy rows never span
// lines; a trailing "\r" is dropped.
func splitLegacyRows(data []byte) []row {
	var rows []row
	for i, ln := range strings.Split(string(data), "\n") {
		ln = strings.TrimSuffix(ln, "\r")
		if isBlank([]byte(ln)) {
			continue
		}
		rows = append(rows, row{line: i + 1, fields: splitLegacy(ln)})
	}
	return rows
}

// splitLegacy splits on unescaped '|' and resolves \| and \\. Any other
// backslash sequence is kept verbatim.
func splitLegacy(ln string) []string {
	var fields []string
	var b strings.Builder
	for i := 0; i < len(ln); i++ {
		c := ln[i]
		switch {
		case c == escape && i+1 < len(ln) && (ln[i+1] == legacySep || ln[i+1] == escape):
			b.WriteByte(ln[i+1])
			i++
		case c == legacySep:
			fields = append(fields, b.String())
			b.Reset()
		default:
			b.WriteByte(c)
		}
	}
	return append(fields, b.String())
}

// splitCurrentRows scans a current-format file. Quoted fields may contain
// separators, doubled quotes and raw newlines, so rows are found by
// scanning rather than by splitting lines.
func splitCurrentRows(data []byte) ([]row, error) {
	s := &rowScanner{data: data, line: 1}
	var rows []row
	for {
		s.skipBlankLines()
		if s.pos >= len(s.data) {
			return rows, nil
		}
		r, err := s.scanRow()
		if err != nil {
			return nil, err
		}
		rows = append(rows, r)
	}
}

type rowScanner struct {
	data []byte
	pos  int
	line int
}

func (s *rowScanner) skipBlankLines() {
	for s.pos < len(s.data) {
		end := bytes.IndexByte(s.data[s.pos:], '\n')
		if end < 0 {
			end = len(s.data) - s.pos
		}
		if !isBlank(s.data[s.pos : s.pos+end]) {
			return
		}
		s.pos += end + 1
		s.line++
	}
}

// scanRow reads fields until the end of the row, consuming its newline.
func (s *rowScanner) scanRow() (row, error) {
	r := row{line: s.line}
	for {
		var field string
		var err error
		if s.pos < len(s.data) && s.data[s.pos] == quote {
			field, err = s.scanQuoted(r.line)
		} else {
			field, err = s.scanBare(r.line)
		}
		if err != nil {
			return row{}, err
		}
		r.fields = append(r.fields, field)

		switch {
		case s.pos >= len(s.data):
			return r, nil
		case s.data[s.pos] == currentSep:
			s.pos++
		case s.data[s.pos] == '\n':
			s.pos++
			s.line++
			return r, nil
		case s.data[s.pos] == '\r' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '\n':
			s.pos += 2
			s.line++
			return r, nil
		default:
			return row{}, recordErr(r.line, ErrMalformedRecord, "unexpected %q after quoted field", s.data[s.pos])
		}
	}
}

// scanBare reads an unquoted field up to the next separator or line end.
func (s *rowScanner) scanBare(line int) (string, error) {
	start := s.pos
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == currentSep || c == '\n' {
			break
		}
		if c == '\r' && s.pos+1 < len(s.data) && s.data[s.pos+1] == '\n' {
			break
		}
		if c == quote {
			return "", recordErr(line, ErrMalformedRecord, "bare quote in unquoted field")
		}
		s.pos++
	}
	return string(s.data[start:s.pos]), nil
}

// scanQuoted reads a quoted field, undoubling embedded quotes. The
// scanner is left on the byte after the closing quote.
func (s *rowScanner) scanQuoted(line int) (string, error) {
	s.pos++ // opening quote
	var b strings.Builder
	for s.pos < len(s.data) {
		c := s.data[s.pos]
		if c == quote {
			if s.pos+1 < len(s.data) && s.data[s.pos+1] == quote {
				b.WriteByte(quote)
				s.pos += 2
				continue
			}
			s.pos++
			return b.String(), nil
		}
		if c == '\n' {
			s.line++
		}
		b.WriteByte(c)
		s.pos++
	}
	return "", recordErr(line, ErrMalformedRecord, "unterminated quoted field")
}

func isBlank(b []byte) bool {
	return len(bytes.TrimSpace(b)) == 0
}
