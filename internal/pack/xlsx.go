package pack

import (
	"math"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"
	"go.uber.org/zap"
)

// XLSXOptions configures metric-table import.
type XLSXOptions struct {
	SheetIndex int    // default 0
	SheetName  string // if set, overrides SheetIndex
}

// ReadMetricTable reads a spreadsheet into a pack file. The first row
// is the header, the first column holds feature ids, and every other
// column becomes a metric: numeric when all non-empty cells parse as
// numbers, categorical otherwise. Empty numeric cells decode as NaN.
func ReadMetricTable(path string, opts XLSXOptions) (*File, error) {
	f, err := xlsx.OpenFile(path)
	if err != nil {
		return nil, eris.Wrap(err, "pack: open xlsx")
	}
	sheet, err := getSheet(f, opts)
	if err != nil {
		return nil, err
	}
	if len(sheet.Rows) < 2 {
		return nil, eris.Errorf("pack: sheet has no data rows")
	}

	header := rowToStrings(sheet.Rows[0])
	if len(header) < 2 {
		return nil, eris.New("pack: need an id column and at least one metric column")
	}

	rows := make([][]string, 0, len(sheet.Rows)-1)
	for _, row := range sheet.Rows[1:] {
		cells := rowToStrings(row)
		// Ragged rows pad out to the header width.
		for len(cells) < len(header) {
			cells = append(cells, "")
		}
		rows = append(rows, cells)
	}

	out := &File{
		Numeric: map[string][]float32{},
		Strings: map[string]StringColumn{},
	}
	for _, cells := range rows {
		out.IDs = append(out.IDs, cells[0])
	}

	for c := 1; c < len(header); c++ {
		name := strings.TrimSpace(header[c])
		if name == "" {
			zap.L().Warn("pack: skipping unnamed column", zap.Int("column", c))
			continue
		}
		if nums, ok := numericColumn(rows, c); ok {
			out.Numeric[name] = nums
		} else {
			out.Strings[name] = dictColumn(rows, c)
		}
	}
	return out, nil
}

// numericColumn parses one column as numbers. Fails (ok=false) on the
// first non-empty cell that is not a number.
func numericColumn(rows [][]string, c int) ([]float32, bool) {
	out := make([]float32, len(rows))
	for i, cells := range rows {
		cell := strings.TrimSpace(strings.ReplaceAll(cells[c], ",", ""))
		if cell == "" {
			out[i] = float32(math.NaN())
			continue
		}
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			return nil, false
		}
		out[i] = float32(v)
	}
	return out, true
}

// dictColumn dictionary-encodes one column in encounter order.
func dictColumn(rows [][]string, c int) StringColumn {
	col := StringColumn{Indexes: make([]uint32, len(rows))}
	seen := map[string]uint32{}
	for i, cells := range rows {
		v := strings.TrimSpace(cells[c])
		idx, ok := seen[v]
		if !ok {
			idx = uint32(len(col.Dict))
			seen[v] = idx
			col.Dict = append(col.Dict, v)
		}
		col.Indexes[i] = idx
	}
	return col
}

func getSheet(f *xlsx.File, opts XLSXOptions) (*xlsx.Sheet, error) {
	if opts.SheetName != "" {
		sheet, ok := f.Sheet[opts.SheetName]
		if !ok {
			return nil, eris.Errorf("pack: sheet %q not found", opts.SheetName)
		}
		return sheet, nil
	}
	if opts.SheetIndex >= len(f.Sheets) {
		return nil, eris.Errorf("pack: sheet index %d out of range (file has %d sheets)", opts.SheetIndex, len(f.Sheets))
	}
	return f.Sheets[opts.SheetIndex], nil
}

func rowToStrings(row *xlsx.Row) []string {
	cells := make([]string, len(row.Cells))
	for j, cell := range row.Cells {
		cells[j] = cell.String()
	}
	return cells
}
