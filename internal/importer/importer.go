// Package importer bulk-creates users from CSV.
//
// Every data row goes through the user service's Save, so each row gets the
// same normalization and rejections as a single create. Rejected rows are
// collected with their line number and reason; a contract error from the
// store aborts the whole import.
package importer

import (
	"bufio"
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/JonMunkholm/sheetusers/internal/alert"
	"github.com/JonMunkholm/sheetusers/internal/logging"
	"github.com/JonMunkholm/sheetusers/internal/user"
)

// Columns are the required CSV headers, matched case-insensitively in any order.
var Columns = []string{user.FieldDocument, user.FieldName, user.FieldPassword, user.FieldRole}

// ContextCheckInterval is how often (in rows) cancellation is checked.
var ContextCheckInterval = 100

var (
	ErrMissingColumns = errors.New("missing required columns")
	ErrEmptyFile      = errors.New("empty file")
	ErrTooManyRows    = errors.New("too many rows")
)

// Saver creates one user. *user.Service implements it.
type Saver interface {
	Save(ctx context.Context, document, name, password, role string) (alert.Result, error)
}

// Failure is a rejected row.
type Failure struct {
	Line     int      `json:"line"`
	Document string   `json:"document,omitempty"`
	Reason   string   `json:"reason"`
	Row      []string `json:"-"`
}

// Report summarizes an import.
type Report struct {
	Rows     int       `json:"rows"`
	Created  int       `json:"created"`
	Rejected int       `json:"rejected"`
	IDs      []string  `json:"ids,omitempty"`
	Failures []Failure `json:"failures,omitempty"`

	header []string
}

// Importer reads CSV user lists.
type Importer struct {
	users   Saver
	maxRows int
}

// New returns an importer. maxRows <= 0 means no limit.
func New(users Saver, maxRows int) *Importer {
	return &Importer{users: users, maxRows: maxRows}
}

// Import reads r and saves every non-empty data row.
func (im *Importer) Import(ctx context.Context, r io.Reader) (*Report, error) {
	cr := csv.NewReader(skipBOM(r))
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmptyFile
	}
	if err != nil {
		return nil, fmt.Errorf("invalid csv: %w", err)
	}
	idx, err := headerIndex(header)
	if err != nil {
		return nil, err
	}

	rep := &Report{header: header}
	log := logging.FromContext(ctx)

	for n := 0; ; n++ {
		row, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return rep, fmt.Errorf("invalid csv: %w", err)
		}
		// csv.Reader drops blank lines, so take the line from the reader.
		line, _ := cr.FieldPos(0)
		if n%ContextCheckInterval == 0 {
			if err := ctx.Err(); err != nil {
				return rep, fmt.Errorf("import cancelled at line %d: %w", line, err)
			}
		}
		if blank(row) {
			continue
		}

		rep.Rows++
		if im.maxRows > 0 && rep.Rows > im.maxRows {
			return rep, fmt.Errorf("%w: limit is %d", ErrTooManyRows, im.maxRows)
		}

		get := func(col string) string {
			if i := idx[col]; i < len(row) {
				return strings.TrimSpace(row[i])
			}
			return ""
		}
		document := get(user.FieldDocument)

		res, err := im.users.Save(ctx, document, get(user.FieldName), get(user.FieldPassword), get(user.FieldRole))
		if err != nil {
			return rep, fmt.Errorf("import aborted at line %d: %w", line, err)
		}
		if !res.OK() {
			rep.Rejected++
			rep.Failures = append(rep.Failures, Failure{Line: line, Document: document, Reason: res.Message, Row: row})
			continue
		}
		rep.Created++
		if id, ok := res.Data.(string); ok {
			rep.IDs = append(rep.IDs, id)
		}
	}

	log.Infow("user import finished", "rows", rep.Rows, "created", rep.Created, "rejected", rep.Rejected)
	return rep, nil
}

// WriteFailures writes the rejected rows as CSV: a Status column with the
// reason followed by the row as it was read.
func (rep *Report) WriteFailures(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(append([]string{"Status"}, rep.header...)); err != nil {
		return err
	}
	for _, f := range rep.Failures {
		reason := fmt.Sprintf("line %d: %s", f.Line, f.Reason)
		if err := cw.Write(append([]string{reason}, f.Row...)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// headerIndex maps each required column to its position.
func headerIndex(header []string) (map[string]int, error) {
	idx := make(map[string]int, len(header))
	for i, h := range header {
		key := cleanHeader(h)
		if _, dup := idx[key]; !dup {
			idx[key] = i
		}
	}

	out := make(map[string]int, len(Columns))
	var missing []string
	for _, col := range Columns {
		i, ok := idx[strings.ToLower(col)]
		if !ok {
			missing = append(missing, col)
			continue
		}
		out[col] = i
	}
	if len(missing) > 0 {
		return nil, fmt.Errorf("%w: %s", ErrMissingColumns, strings.Join(missing, ", "))
	}
	return out, nil
}

// skipBOM drops a leading UTF-8 byte order mark.
func skipBOM(r io.Reader) io.Reader {
	br := bufio.NewReader(r)
	if b, err := br.Peek(len(bom)); err == nil && bytes.Equal(b, bom) {
		_, _ = br.Discard(len(bom))
	}
	return br
}

var bom = []byte{0xEF, 0xBB, 0xBF}

// cleanHeader strips spreadsheet formula quoting and surrounding space.
func cleanHeader(h string) string {
	h = strings.TrimPrefix(strings.TrimSpace(h), "=")
	h = strings.Trim(h, `"' `)
	return strings.ToLower(h)
}

func blank(row []string) bool {
	for _, v := range row {
		if strings.TrimSpace(v) != "" {
			return false
		}
	}
	return true
}
