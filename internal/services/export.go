package services

import (
	"bytes"
	"image/color"
	"strings"

	"github.com/fogleman/gg"
)

// Column is one fixed export column.
type Column[T any] struct {
	Header string
	Value  func(T) string
}

// Table is the shared projection both CSV and the print grid render from.
type Table struct {
	Columns []string
	Rows    [][]string
}

// Project maps records to rows of strings using a fixed column list.
func Project[T any](columns []Column[T], records []T) Table {
	t := Table{Columns: make([]string, len(columns)), Rows: make([][]string, 0, len(records))}
	for i, c := range columns {
		t.Columns[i] = c.Header
	}
	for _, r := range records {
		row := make([]string, len(columns))
		for i, c := range columns {
			row[i] = c.Value(r)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// WriteCSV renders the header and one record per row with every cell double-quoted.
// Quotes inside a cell are doubled; commas and newlines are kept verbatim.
func WriteCSV(t Table) []byte {
	buf := &bytes.Buffer{}
	writeRecord(buf, t.Columns)
	for _, row := range t.Rows {
		writeRecord(buf, row)
	}
	return buf.Bytes()
}

func writeRecord(buf *bytes.Buffer, cells []string) {
	for i, c := range cells {
		if i > 0 {
			buf.WriteByte(',')
		}
		buf.WriteByte('"')
		buf.WriteString(strings.ReplaceAll(c, `"`, `""`))
		buf.WriteByte('"')
	}
	buf.WriteByte('\n')
}

// GridOptions controls the print layout.
type GridOptions struct {
	Title       string
	FontPath    string // TrueType font; the built-in face is used when empty
	FontSize    float64
	MaxColWidth float64
}

const (
	gridPad       = 8.0
	gridRowHeight = 24.0
	gridMinWidth  = 60.0
)

// RenderPrintGrid draws the table as a fixed-layout PNG grid for printing.
func RenderPrintGrid(t Table, opts GridOptions) ([]byte, error) {
	if opts.MaxColWidth <= 0 {
		opts.MaxColWidth = 280
	}
	if opts.FontSize <= 0 {
		opts.FontSize = 12
	}
	measure := gg.NewContext(1, 1)
	if opts.FontPath != "" {
		if err := measure.LoadFontFace(opts.FontPath, opts.FontSize); err != nil {
			return nil, err
		}
	}

	widths := make([]float64, len(t.Columns))
	for i, h := range t.Columns {
		widths[i] = cellWidth(measure, h, opts.MaxColWidth)
	}
	for _, row := range t.Rows {
		for i := range widths {
			if i < len(row) {
				if w := cellWidth(measure, row[i], opts.MaxColWidth); w > widths[i] {
					widths[i] = w
				}
			}
		}
	}
	total := 2 * gridPad
	for _, w := range widths {
		total += w
	}
	top := gridPad
	if opts.Title != "" {
		top += gridRowHeight
	}
	height := top + gridRowHeight*float64(len(t.Rows)+1) + gridPad

	dc := gg.NewContext(int(total), int(height))
	if opts.FontPath != "" {
		if err := dc.LoadFontFace(opts.FontPath, opts.FontSize); err != nil {
			return nil, err
		}
	}
	dc.SetColor(color.White)
	dc.Clear()

	if opts.Title != "" {
		dc.SetColor(color.Black)
		dc.DrawStringAnchored(opts.Title, gridPad, gridPad+gridRowHeight/2, 0, 0.5)
	}

	dc.SetColor(color.RGBA{R: 235, G: 238, B: 242, A: 255})
	dc.DrawRectangle(gridPad, top, total-2*gridPad, gridRowHeight)
	dc.Fill()

	drawRow := func(y float64, cells []string) {
		x := gridPad
		for i, w := range widths {
			text := ""
			if i < len(cells) {
				text = fitCell(dc, cells[i], w-2*gridPad)
			}
			dc.SetColor(color.Black)
			dc.DrawStringAnchored(text, x+gridPad, y+gridRowHeight/2, 0, 0.5)
			dc.SetColor(color.Gray{Y: 170})
			dc.SetLineWidth(1)
			dc.DrawRectangle(x, y, w, gridRowHeight)
			dc.Stroke()
			x += w
		}
	}
	drawRow(top, t.Columns)
	for i, row := range t.Rows {
		drawRow(top+gridRowHeight*float64(i+1), row)
	}

	var out bytes.Buffer
	if err := dc.EncodePNG(&out); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func cellWidth(dc *gg.Context, s string, limit float64) float64 {
	w, _ := dc.MeasureString(flatten(s))
	w += 2 * gridPad
	if w < gridMinWidth {
		return gridMinWidth
	}
	if w > limit {
		return limit
	}
	return w
}

// fitCell shortens s with an ellipsis until it fits into width.
func fitCell(dc *gg.Context, s string, width float64) string {
	s = flatten(s)
	if w, _ := dc.MeasureString(s); w <= width {
		return s
	}
	runes := []rune(s)
	for len(runes) > 0 {
		runes = runes[:len(runes)-1]
		cand := string(runes) + "..."
		if w, _ := dc.MeasureString(cand); w <= width {
			return cand
		}
	}
	return ""
}

func flatten(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
