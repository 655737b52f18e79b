package table

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Spec is a parsed table format such as
//
//	table[box](total_elapsed_time, cpu_time:label="CPU")
//	table(row.slice(0).join():label="SingerId")
type Spec struct {
	Box       bool
	NoHeading bool
	Columns   []Column
}

// Column projects one cell out of a record.
type Column struct {
	// Key names the record field; further path segments descend into maps.
	Key        []string
	Transforms []Transform
	Label      string
	// HasLabel is set when the format gave a label, even an empty one.
	HasLabel bool
}

// Transform is a function applied to a column value, e.g. slice(1) or join(",").
type Transform struct {
	Name string
	Args []string
}

// Heading returns the label shown above the column. Without a label the
// upper-cased key is used.
func (c Column) Heading() string {
	if c.HasLabel {
		return c.Label
	}
	return strings.ToUpper(strings.Join(c.Key, "."))
}

// Parse parses a declarative table format string.
func Parse(format string) (Spec, error) {
	var spec Spec
	format = strings.TrimSpace(format)

	open := strings.IndexAny(format, "[(")
	if open < 0 {
		return spec, fmt.Errorf("table: format %q has no column list", format)
	}
	if name := strings.TrimSpace(format[:open]); name != "table" {
		return spec, fmt.Errorf("table: unsupported format %q", name)
	}
	rest := format[open:]

	if rest[0] == '[' {
		end := matching(rest, 0)
		if end < 0 {
			return spec, fmt.Errorf("table: unbalanced attributes in %q", format)
		}
		for _, attr := range splitTop(rest[1:end], ',') {
			switch attr = strings.TrimSpace(attr); attr {
			case "":
			case "box":
				spec.Box = true
			case "no-heading":
				spec.NoHeading = true
			default:
				return spec, fmt.Errorf("table: unknown attribute %q", attr)
			}
		}
		rest = strings.TrimSpace(rest[end+1:])
	}

	if rest == "" || rest[0] != '(' {
		return spec, fmt.Errorf("table: format %q has no column list", format)
	}
	end := matching(rest, 0)
	if end != len(rest)-1 {
		return spec, fmt.Errorf("table: unbalanced column list in %q", format)
	}

	for _, raw := range splitTop(rest[1:end], ',') {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		col, err := parseColumn(raw)
		if err != nil {
			return spec, err
		}
		spec.Columns = append(spec.Columns, col)
	}
	if len(spec.Columns) == 0 {
		return spec, errors.New("table: no columns")
	}
	return spec, nil
}

func parseColumn(raw string) (Column, error) {
	var col Column

	parts := splitTop(raw, ':')
	for _, attr := range parts[1:] {
		name, value, ok := strings.Cut(strings.TrimSpace(attr), "=")
		if !ok || strings.TrimSpace(name) != "label" {
			return col, fmt.Errorf("table: unknown column attribute %q", attr)
		}
		label, err := unquote(strings.TrimSpace(value))
		if err != nil {
			return col, fmt.Errorf("table: column label %s: %w", value, err)
		}
		col.Label = label
		col.HasLabel = true
	}

	for _, seg := range splitTop(strings.TrimSpace(parts[0]), '.') {
		seg = strings.TrimSpace(seg)
		open := strings.IndexByte(seg, '(')
		if open < 0 {
			if seg == "" {
				return col, fmt.Errorf("table: empty key in column %q", raw)
			}
			if len(col.Transforms) > 0 {
				return col, fmt.Errorf("table: key %q follows a transform in column %q", seg, raw)
			}
			col.Key = append(col.Key, seg)
			continue
		}
		if matching(seg, open) != len(seg)-1 {
			return col, fmt.Errorf("table: unbalanced transform %q", seg)
		}
		tr := Transform{Name: seg[:open]}
		if !knownTransform(tr.Name) {
			return col, fmt.Errorf("table: unknown transform %q", tr.Name)
		}
		for _, arg := range splitTop(seg[open+1:len(seg)-1], ',') {
			arg = strings.TrimSpace(arg)
			if arg == "" {
				continue
			}
			value, err := unquote(arg)
			if err != nil {
				return col, fmt.Errorf("table: transform %s argument %s: %w", tr.Name, arg, err)
			}
			tr.Args = append(tr.Args, value)
		}
		col.Transforms = append(col.Transforms, tr)
	}
	if len(col.Key) == 0 {
		return col, fmt.Errorf("table: column %q has no key", raw)
	}
	return col, nil
}

func knownTransform(name string) bool {
	switch name {
	case "slice", "join":
		return true
	default:
		return false
	}
}

// matching returns the index of the bracket closing s[open], or -1.
func matching(s string, open int) int {
	depth := 0
	var quote byte
	for i := open; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// splitTop splits s on sep, ignoring separators inside brackets or quotes.
func splitTop(s string, sep byte) []string {
	var out []string
	depth, start := 0, 0
	var quote byte
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == '\\' {
				i++
			} else if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(' || c == '[':
			depth++
		case c == ')' || c == ']':
			depth--
		case c == sep && depth == 0:
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	return append(out, s[start:])
}

func unquote(s string) (string, error) {
	if len(s) >= 2 {
		switch {
		case s[0] == '"' && s[len(s)-1] == '"':
			return strconv.Unquote(s)
		case s[0] == '\'' && s[len(s)-1] == '\'':
			return s[1 : len(s)-1], nil
		}
	}
	if strings.ContainsAny(s, `"'`) {
		return "", errors.New("unterminated quote")
	}
	return s, nil
}
