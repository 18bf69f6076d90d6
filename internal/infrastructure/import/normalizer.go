package csvimport

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

// SourceKind is the detected shape of an upload
type SourceKind string

const (
	KindCSV         SourceKind = "csv"
	KindSpreadsheet SourceKind = "spreadsheet"
	KindText        SourceKind = "text"
)

// Result is an upload rendered as canonical comma-separated text
type Result struct {
	Text string
	Kind SourceKind
	// Sheet and Rows are set for spreadsheets: the sheet read and the
	// number of rows kept.
	Sheet string
	Rows  int
}

// IsEmpty reports whether no content survived normalization
func (r *Result) IsEmpty() bool {
	return strings.TrimSpace(r.Text) == ""
}

// Normalizer converts CSV and spreadsheet uploads into canonical CSV text
type Normalizer struct {
	maxSize int64
	logger  *zap.Logger
}

// NewNormalizer creates a Normalizer. maxSize of zero disables the size check.
func NewNormalizer(maxSize int64, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{maxSize: maxSize, logger: logger}
}

// Normalize renders data by the extension of filename. CSV and unknown
// extensions pass through unchanged; .xlsx and .xls read the first sheet.
func (n *Normalizer) Normalize(filename string, data []byte) (*Result, error) {
	if n.maxSize > 0 && int64(len(data)) > n.maxSize {
		return nil, fmt.Errorf("%w: %d bytes, limit %d", ErrFileTooLarge, len(data), n.maxSize)
	}

	var (
		res *Result
		err error
	)
	switch ext := strings.ToLower(filepath.Ext(filename)); ext {
	case ".csv":
		res = &Result{Text: string(data), Kind: KindCSV}
	case ".xlsx", ".xlsm":
		res, err = n.readXLSX(data)
	case ".xls":
		res, err = n.readXLS(data)
	default:
		res = &Result{Text: string(data), Kind: KindText}
	}
	if err != nil {
		return nil, err
	}

	n.logger.Debug("Upload normalized",
		zap.String("filename", filename),
		zap.String("kind", string(res.Kind)),
		zap.String("sheet", res.Sheet),
		zap.Int("rows", res.Rows),
	)
	return res, nil
}

func (n *Normalizer) readXLSX(data []byte) (*Result, error) {
	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrNoSheets
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("%w: sheet %q: %v", ErrUnreadableWorkbook, sheets[0], err)
	}
	return spreadsheetResult(sheets[0], rows), nil
}

// readXLS reads a legacy BIFF workbook. The decoder panics on some malformed
// files, which is reported as ErrUnreadableWorkbook.
func (n *Normalizer) readXLS(data []byte) (res *Result, err error) {
	defer func() {
		if r := recover(); r != nil {
			res, err = nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, r)
		}
	}()

	wb, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnreadableWorkbook, err)
	}
	if wb.NumSheets() == 0 {
		return nil, ErrNoSheets
	}
	sheet := wb.GetSheet(0)
	if sheet == nil {
		return nil, ErrNoSheets
	}

	var rows [][]string
	for i := 0; i <= int(sheet.MaxRow); i++ {
		row := xlsRow(sheet, i)
		if row == nil {
			rows = append(rows, nil)
			continue
		}
		cells := make([]string, 0, row.LastCol())
		for c := 0; c < row.LastCol(); c++ {
			cells = append(cells, row.Col(c))
		}
		rows = append(rows, cells)
	}
	return spreadsheetResult(sheet.Name, rows), nil
}

// xlsRow returns row i, or nil when the sheet stores no record for it.
// The decoder dereferences missing rows.
func xlsRow(sheet *xls.WorkSheet, i int) (row *xls.Row) {
	defer func() {
		if recover() != nil {
			row = nil
		}
	}()
	return sheet.Row(i)
}

func spreadsheetResult(sheet string, rows [][]string) *Result {
	kept := DropBlankRows(PadRows(rows))
	return &Result{
		Text:  EncodeRows(kept),
		Kind:  KindSpreadsheet,
		Sheet: sheet,
		Rows:  len(kept),
	}
}

// PadRows fills every row with empty cells up to the widest row and
// normalizes line breaks inside cells to LF
func PadRows(rows [][]string) [][]string {
	width := 0
	for _, r := range rows {
		if len(r) > width {
			width = len(r)
		}
	}
	out := make([][]string, len(rows))
	for i, r := range rows {
		padded := make([]string, width)
		for j, cell := range r {
			padded[j] = normalizeLineBreaks(cell)
		}
		out[i] = padded
	}
	return out
}

// normalizeLineBreaks turns CRLF and lone CR inside a cell into LF, the
// only line break a quoted CSV field keeps on reading.
func normalizeLineBreaks(cell string) string {
	if !strings.Contains(cell, "\r") {
		return cell
	}
	return strings.ReplaceAll(strings.ReplaceAll(cell, "\r\n", "\n"), "\r", "\n")
}

// DropBlankRows removes rows whose cells are all empty or whitespace
func DropBlankRows(rows [][]string) [][]string {
	out := make([][]string, 0, len(rows))
	for _, r := range rows {
		if !isBlank(r) {
			out = append(out, r)
		}
	}
	return out
}

// EncodeRows renders rows as comma-separated lines joined by "\n"
func EncodeRows(rows [][]string) string {
	var b strings.Builder
	for i, r := range rows {
		if i > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(EncodeRow(r))
	}
	return b.String()
}

// EncodeRow renders one row. A cell containing a comma, quote, backslash or
// line break is quoted, with embedded quotes doubled. A CSV reader returns
// a quoted CRLF as LF, so spreadsheet cells are normalized to LF by PadRows
// before encoding.
func EncodeRow(cells []string) string {
	var b strings.Builder
	for i, c := range cells {
		if i > 0 {
			b.WriteByte(',')
		}
		if strings.ContainsAny(c, ",\"\\\n\r") {
			b.WriteByte('"')
			b.WriteString(strings.ReplaceAll(c, `"`, `""`))
			b.WriteByte('"')
			continue
		}
		b.WriteString(c)
	}
	return b.String()
}
