package output

import (
	"io"

	"github.com/olekukonko/tablewriter"
)

// TableRenderer is implemented by command results that have a tabular view.
type TableRenderer interface {
	Headers() []string
	Rows() [][]string
}

// plainTable returns a borderless, left-aligned writer with two-space column
// padding. sep is drawn between columns.
func plainTable(w io.Writer, sep string) *tablewriter.Table {
	t := tablewriter.NewWriter(w)
	t.SetBorder(false)
	t.SetHeaderLine(false)
	t.SetAutoWrapText(false)
	t.SetAlignment(tablewriter.ALIGN_LEFT)
	t.SetCenterSeparator("")
	t.SetRowSeparator("")
	t.SetColumnSeparator(sep)
	t.SetTablePadding("  ")
	t.SetNoWhiteSpace(true)
	return t
}

// PrintTable writes data with upper-cased headers.
func PrintTable(w io.Writer, data TableRenderer) error {
	t := plainTable(w, "")
	t.SetHeader(data.Headers())
	t.SetAutoFormatHeaders(true)
	t.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	t.AppendBulk(data.Rows())
	t.Render()
	return nil
}

// SimpleTable prints "key: value" pairs, one per line.
func SimpleTable(w io.Writer, pairs [][2]string) error {
	t := plainTable(w, ":")
	t.SetAutoFormatHeaders(false)
	for _, p := range pairs {
		t.Append(p[:])
	}
	t.Render()
	return nil
}
