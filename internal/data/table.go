package data

import (
	"strings"
)

// Table is the assembled result of a run: Items[row][col], row 0 at the top.
type Table struct {
	Items [][]string `json:"items"`
}

// NewTable allocates rows x cols empty cells.
func NewTable(rows, cols int) *Table {
	rows, cols = max(rows, 0), max(cols, 0)
	items := make([][]string, rows)
	for i := range items {
		items[i] = make([]string, cols)
	}
	return &Table{Items: items}
}

func (t *Table) Rows() int { return len(t.Items) }

func (t *Table) Cols() int {
	if len(t.Items) == 0 {
		return 0
	}
	return len(t.Items[0])
}

// Set writes one cell; coordinates outside the table are ignored.
func (t *Table) Set(row, col int, text string) bool {
	if row < 0 || row >= len(t.Items) || col < 0 || col >= len(t.Items[row]) {
		return false
	}
	t.Items[row][col] = text
	return true
}

func (t *Table) Get(row, col int) string {
	if row < 0 || row >= len(t.Items) || col < 0 || col >= len(t.Items[row]) {
		return ""
	}
	return t.Items[row][col]
}

// Delimited renders every field wrapped in double quotes, fields joined by
// `", "` and rows by newlines. Quotes inside a field are not escaped; use the
// csv writer when the output must round-trip.
func (t *Table) Delimited() string {
	rows := make([]string, len(t.Items))
	for i, row := range t.Items {
		fields := make([]string, len(row))
		for j, item := range row {
			fields[j] = `"` + item + `"`
		}
		rows[i] = strings.Join(fields, ", ")
	}
	return strings.Join(rows, "\n")
}
