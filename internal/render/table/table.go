package table

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
)

// DefaultSeparator joins the elements of composite values.
const DefaultSeparator = ","

// Print renders records as a table described by format. Nothing is written
// when records is empty.
func Print(w io.Writer, records []map[string]any, format string) error {
	if w == nil {
		return errors.New("table: writer is nil")
	}
	spec, err := Parse(format)
	if err != nil {
		return err
	}
	return PrintSpec(w, records, spec)
}

// PrintSpec renders records with an already parsed spec.
func PrintSpec(w io.Writer, records []map[string]any, spec Spec) error {
	if len(records) == 0 {
		return nil
	}

	ew := &errWriter{w: w}
	tw := tablewriter.NewWriter(ew)
	tw.SetAutoFormatHeaders(false)
	tw.SetAutoWrapText(false)
	tw.SetAlignment(tablewriter.ALIGN_LEFT)
	tw.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	if spec.Box {
		tw.SetBorder(true)
		tw.SetRowLine(false)
	} else {
		tw.SetBorder(false)
		tw.SetHeaderLine(false)
		tw.SetColumnSeparator("")
		tw.SetCenterSeparator("")
		tw.SetRowSeparator("")
		tw.SetTablePadding("  ")
		tw.SetNoWhiteSpace(true)
	}

	if !spec.NoHeading {
		headers := make([]string, 0, len(spec.Columns))
		for _, col := range spec.Columns {
			headers = append(headers, col.Heading())
		}
		tw.SetHeader(headers)
	}

	for _, record := range records {
		tw.Append(Project(record, spec))
	}
	tw.Render()
	return ew.err
}

// Project extracts the display cells of one record.
func Project(record map[string]any, spec Spec) []string {
	cells := make([]string, 0, len(spec.Columns))
	for _, col := range spec.Columns {
		cells = append(cells, col.Value(record))
	}
	return cells
}

// Value extracts and formats this column's cell from record.
func (c Column) Value(record map[string]any) string {
	var v any = record
	for _, key := range c.Key {
		m, ok := v.(map[string]any)
		if !ok {
			return ""
		}
		v = m[key]
	}
	for _, tr := range c.Transforms {
		v = tr.apply(v)
	}
	return Format(v, DefaultSeparator)
}

func (t Transform) apply(v any) any {
	switch t.Name {
	case "slice":
		list, ok := v.([]any)
		if !ok || len(t.Args) == 0 {
			return nil
		}
		i, err := strconv.Atoi(t.Args[0])
		if err != nil {
			return nil
		}
		if i < 0 {
			i += len(list)
		}
		if i < 0 || i >= len(list) {
			return nil
		}
		return list[i]
	case "join":
		sep := DefaultSeparator
		if len(t.Args) > 0 {
			sep = t.Args[0]
		}
		return Format(v, sep)
	default:
		return v
	}
}

// Format renders a JSON-shaped value as display text. Lists are flattened and
// joined with sep.
func Format(v any, sep string) string {
	switch typed := v.(type) {
	case nil:
		return ""
	case string:
		return typed
	case bool:
		return strconv.FormatBool(typed)
	case float64:
		return strconv.FormatFloat(typed, 'f', -1, 64)
	case json.Number:
		return typed.String()
	case []any:
		parts := make([]string, 0, len(typed))
		for _, item := range typed {
			parts = append(parts, Format(item, sep))
		}
		return strings.Join(parts, sep)
	case map[string]any:
		keys := make([]string, 0, len(typed))
		for k := range typed {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, 0, len(keys))
		for _, k := range keys {
			parts = append(parts, k+"="+Format(typed[k], sep))
		}
		return strings.Join(parts, sep)
	default:
		return fmt.Sprint(typed)
	}
}

type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) Write(p []byte) (int, error) {
	if e.err != nil {
		return 0, e.err
	}
	n, err := e.w.Write(p)
	if err != nil {
		e.err = err
	}
	return n, err
}
