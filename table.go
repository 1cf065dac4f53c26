package rowfill

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Sentinel errors for dataset loading.
var (
	ErrInputNotFound     = errors.New("input file not found")
	ErrUnsupportedFormat = errors.New("unsupported input format")
)

// Format identifies how a Table is persisted.
type Format int

const (
	FormatCSV Format = iota
	FormatTSV
	FormatXLSX
)

// headerRowCount is the number of leading non-data rows in every supported
// input. Data row i therefore lives at sheet row i+2 (1-based).
const headerRowCount = 1

// Table is an ordered, in-memory copy of a tabular dataset. It is owned by
// a ResultStore for the duration of a run; nothing else may mutate it while
// workers are active.
type Table struct {
	header  []string
	records [][]string
	format  Format
	sheet   string // xlsx sheet name, empty otherwise

	path    string // original input
	outPath string // snapshot target; equals path for delimited input

	// columns whose cells still need to be flushed to an xlsx snapshot;
	// delimited snapshots always rewrite the whole file.
	dirtyCols map[int]bool
	copied    bool // derived xlsx output exists on disk
}

// ResultColumn derives the synthesized result column name from a model
// identifier. The mapping is deterministic so re-running with a different
// model targets a different column.
func ResultColumn(model string) string {
	mapped := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		default:
			return '_'
		}
	}, model)
	return "result_" + mapped
}

// derivedPath returns the output path used for workbook input: the input
// name with "_results" appended before the extension.
func derivedPath(path string) string {
	ext := filepath.Ext(path)
	return strings.TrimSuffix(path, ext) + "_results" + ext
}

// LoadTable reads the dataset at path into memory. Delimited files load and
// save as direct round-trips. Workbook input resumes from the derived
// output file when one already exists, since that is where earlier runs
// recorded their results.
func LoadTable(path string, log *slog.Logger) (*Table, error) {
	if log == nil {
		log = slog.Default()
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, fmt.Errorf("%w: %s", ErrInputNotFound, path)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return loadDelimited(path, FormatCSV, ',')
	case ".tsv":
		return loadDelimited(path, FormatTSV, '\t')
	case ".xlsx", ".xlsm":
		return loadWorkbook(path, log)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(path))
	}
}

func loadDelimited(path string, format Format, comma rune) (*Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.Comma = comma
	r.FieldsPerRecord = -1

	rows, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	if len(rows) == 0 {
		rows = [][]string{{}}
	}

	t := &Table{
		header:    rows[0],
		records:   rows[1:],
		format:    format,
		path:      path,
		outPath:   path,
		dirtyCols: make(map[int]bool),
	}
	t.normalize()
	return t, nil
}

func loadWorkbook(path string, log *slog.Logger) (*Table, error) {
	src := path
	out := derivedPath(path)
	copied := false
	if _, err := os.Stat(out); err == nil {
		// A previous run already produced the derived output; resume from
		// it so completed rows are not re-billed.
		log.Info("resuming from derived output", "path", out)
		src = out
		copied = true
	}

	f, err := excelize.OpenFile(src)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", src, err)
	}
	defer f.Close()

	sheet := f.GetSheetName(0)
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	if len(rows) == 0 {
		rows = [][]string{{}}
	}

	t := &Table{
		header:    rows[0],
		records:   rows[1:],
		format:    FormatXLSX,
		sheet:     sheet,
		path:      path,
		outPath:   out,
		dirtyCols: make(map[int]bool),
		copied:    copied,
	}
	t.normalize()
	return t, nil
}

// normalize pads every record to the header width so cell addressing is
// uniform across the table.
func (t *Table) normalize() {
	for i, rec := range t.records {
		for len(rec) < len(t.header) {
			rec = append(rec, "")
		}
		t.records[i] = rec
	}
}

// Len returns the number of data rows.
func (t *Table) Len() int { return len(t.records) }

// Header returns the column names. The slice is shared; callers must not
// mutate it.
func (t *Table) Header() []string { return t.header }

// Path returns the original input path.
func (t *Table) Path() string { return t.path }

// OutputPath returns where snapshots are written. For delimited input this
// is the input path itself; for workbook input it is the derived file.
func (t *Table) OutputPath() string { return t.outPath }

// Format returns the persistence format of the table.
func (t *Table) Format() Format { return t.format }

// SheetRow converts a 0-based data row index to the 1-based sheet row used
// by the workbook container (and by the ImageIndex).
func (t *Table) SheetRow(row int) int { return row + headerRowCount + 1 }

// ColumnIndex returns the index of the named column, or -1.
func (t *Table) ColumnIndex(name string) int {
	for i, h := range t.header {
		if h == name {
			return i
		}
	}
	return -1
}

// EnsureColumn returns the index of the named column, appending it (with
// empty cells) when missing. Existing columns are never reordered.
func (t *Table) EnsureColumn(name string) int {
	if i := t.ColumnIndex(name); i >= 0 {
		t.dirtyCols[i] = true
		return i
	}
	t.header = append(t.header, name)
	col := len(t.header) - 1
	for i, rec := range t.records {
		for len(rec) <= col {
			rec = append(rec, "")
		}
		t.records[i] = rec
	}
	t.dirtyCols[col] = true
	return col
}

// Cell returns the value at (row, col). Out-of-range reads yield "".
func (t *Table) Cell(row, col int) string {
	if row < 0 || row >= len(t.records) || col < 0 || col >= len(t.records[row]) {
		return ""
	}
	return t.records[row][col]
}

// SetCell writes a value at (row, col) and marks the column for the next
// workbook snapshot. Out-of-range writes are ignored.
func (t *Table) SetCell(row, col int, value string) {
	if row < 0 || row >= len(t.records) || col < 0 || col >= len(t.records[row]) {
		return
	}
	t.records[row][col] = value
	t.dirtyCols[col] = true
}

// Save persists the table. Delimited tables rewrite the file in place.
// Workbook tables copy the original container to the derived output on
// first write and then update only the dirty cells through excelize, which
// keeps every embedded drawing intact. Re-serializing the sheet from the
// in-memory records would drop them.
func (t *Table) Save() error {
	switch t.format {
	case FormatCSV, FormatTSV:
		return t.saveDelimited()
	case FormatXLSX:
		return t.saveWorkbook()
	default:
		return fmt.Errorf("%w: format %d", ErrUnsupportedFormat, t.format)
	}
}

func (t *Table) saveDelimited() error {
	f, err := os.Create(t.outPath)
	if err != nil {
		return fmt.Errorf("create %s: %w", t.outPath, err)
	}

	w := csv.NewWriter(f)
	if t.format == FormatTSV {
		w.Comma = '\t'
	}
	if err := w.Write(t.header); err != nil {
		f.Close()
		return fmt.Errorf("write header: %w", err)
	}
	for _, rec := range t.records {
		if err := w.Write(rec); err != nil {
			f.Close()
			return fmt.Errorf("write record: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		f.Close()
		return fmt.Errorf("flush %s: %w", t.outPath, err)
	}
	return f.Close()
}

func (t *Table) saveWorkbook() error {
	if !t.copied {
		if err := copyFile(t.path, t.outPath); err != nil {
			return fmt.Errorf("copy container: %w", err)
		}
		t.copied = true
	}

	f, err := excelize.OpenFile(t.outPath)
	if err != nil {
		return fmt.Errorf("open %s: %w", t.outPath, err)
	}
	defer f.Close()

	for col := range t.dirtyCols {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("cell name: %w", err)
		}
		if err := f.SetCellValue(t.sheet, cell, t.header[col]); err != nil {
			return fmt.Errorf("set header cell %s: %w", cell, err)
		}
		for row := range t.records {
			cell, err := excelize.CoordinatesToCellName(col+1, t.SheetRow(row))
			if err != nil {
				return fmt.Errorf("cell name: %w", err)
			}
			if err := f.SetCellValue(t.sheet, cell, t.records[row][col]); err != nil {
				return fmt.Errorf("set cell %s: %w", cell, err)
			}
		}
	}

	return f.Save()
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
