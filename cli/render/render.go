// Package render provides output rendering for the ganhost CLI.
//
// Without --format, output is a table on a TTY and JSON otherwise. --no-color
// affects table output only; the TUI keeps its own styling.
//
// Table output follows json tags: a field tagged "-" is hidden, and a nil or
// empty field tagged omitempty is skipped. A struct field holding a slice of
// structs, such as an archive's component rows, is printed as a nested table
// below the key/value block.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strings"
	"text/tabwriter"

	"github.com/charmbracelet/lipgloss"
	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/sopimagenta/ganworker/cli/tui"
)

// inlineSliceMax is the longest scalar slice printed in full, e.g. a
// component shape. Longer slices print as an item count.
const inlineSliceMax = 8

var (
	labelStyle   = lipgloss.NewStyle().Bold(true)
	sectionStyle = lipgloss.NewStyle().Bold(true).Underline(true)
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses a format string. The empty string is returned as-is so
// the caller can pick a default.
func ParseFormat(s string) (Format, error) {
	switch f := Format(strings.ToLower(s)); f {
	case FormatJSON, FormatTable, FormatYAML, "":
		return f, nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format  Format
	noColor bool
	out     io.Writer
}

// NewRenderer creates a renderer from CLI context.
func NewRenderer(c *cli.Context) (*Renderer, error) {
	format, err := ParseFormat(c.String("format"))
	if err != nil {
		return nil, err
	}
	if format == "" {
		format = FormatJSON
		if isTTY(os.Stdout) {
			format = FormatTable
		}
	}
	return NewRendererWithWriter(format, c.Bool("no-color"), os.Stdout), nil
}

// NewRendererWithWriter creates a renderer with a custom writer (for testing).
func NewRendererWithWriter(format Format, noColor bool, out io.Writer) *Renderer {
	return &Renderer{format: format, noColor: noColor, out: out}
}

// Format returns the selected output format.
func (r *Renderer) Format() Format {
	return r.format
}

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		enc := json.NewEncoder(r.out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case FormatYAML:
		enc := yaml.NewEncoder(r.out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return err
		}
		return enc.Close()
	case FormatTable:
		return r.renderTable(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the read-only TUI for the given view type.
func (r *Renderer) RenderTUI(viewType string, data any) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data)
}

func (r *Renderer) style(s lipgloss.Style, text string) string {
	if r.noColor {
		return text
	}
	return s.Render(text)
}

func (r *Renderer) renderTable(data any) error {
	v := deref(reflect.ValueOf(data))
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		return r.writeRows(r.out, v)
	case reflect.Struct:
		return r.writeRecord(v)
	case reflect.Map:
		return r.writeMap(v)
	default:
		_, err := fmt.Fprintf(r.out, "%v\n", data)
		return err
	}
}

// column is one visible struct field.
type column struct {
	name      string
	index     int
	omitEmpty bool
}

// columnsOf lists the visible fields of a struct type in declaration order.
func columnsOf(t reflect.Type) []column {
	var cols []column
	for i := range t.NumField() {
		f := t.Field(i)
		if !f.IsExported() {
			continue
		}
		name, opts, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			continue
		}
		if name == "" {
			name = strings.ToLower(f.Name)
		}
		cols = append(cols, column{
			name:      name,
			index:     i,
			omitEmpty: slices.Contains(strings.Split(opts, ","), "omitempty"),
		})
	}
	return cols
}

// writeRecord prints a struct as label/value lines followed by any nested
// tables.
func (r *Renderer) writeRecord(v reflect.Value) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)

	type nested struct {
		name string
		rows reflect.Value
	}
	var tables []nested

	for _, col := range columnsOf(v.Type()) {
		fv := v.Field(col.index)
		if col.omitEmpty && fv.IsZero() {
			continue
		}
		if isStructSlice(fv) {
			tables = append(tables, nested{col.name, fv})
			continue
		}
		fmt.Fprintf(w, "%s\t%s\n", r.style(labelStyle, col.name+":"), formatValue(fv))
	}
	if err := w.Flush(); err != nil {
		return err
	}

	for _, t := range tables {
		fmt.Fprintf(r.out, "\n%s\n", r.style(sectionStyle, t.name))
		if err := r.writeRows(r.out, t.rows); err != nil {
			return err
		}
	}
	return nil
}

// writeRows prints a slice as a table with one header row.
func (r *Renderer) writeRows(out io.Writer, v reflect.Value) error {
	if v.Len() == 0 {
		_, err := fmt.Fprintln(out, "(no results)")
		return err
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	first := deref(v.Index(0))

	switch first.Kind() {
	case reflect.Struct:
		cols := columnsOf(first.Type())
		header := make([]string, len(cols))
		for i, col := range cols {
			header[i] = col.name
		}
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for i := range v.Len() {
			row := deref(v.Index(i))
			cells := make([]string, len(cols))
			for j, col := range cols {
				cells[j] = formatValue(row.Field(col.index))
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	case reflect.Map:
		keys := sortedKeys(first)
		header := make([]string, len(keys))
		for i, k := range keys {
			header[i] = fmt.Sprint(k.Interface())
		}
		fmt.Fprintln(w, strings.Join(header, "\t"))
		for i := range v.Len() {
			row := deref(v.Index(i))
			cells := make([]string, len(keys))
			for j, k := range keys {
				cells[j] = formatValue(row.MapIndex(k))
			}
			fmt.Fprintln(w, strings.Join(cells, "\t"))
		}
	default:
		for i := range v.Len() {
			fmt.Fprintln(w, formatValue(v.Index(i)))
		}
	}
	return w.Flush()
}

func (r *Renderer) writeMap(v reflect.Value) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	for _, k := range sortedKeys(v) {
		label := r.style(labelStyle, fmt.Sprint(k.Interface())+":")
		fmt.Fprintf(w, "%s\t%s\n", label, formatValue(v.MapIndex(k)))
	}
	return w.Flush()
}

// sortedKeys returns map keys in a stable order.
func sortedKeys(v reflect.Value) []reflect.Value {
	keys := v.MapKeys()
	slices.SortFunc(keys, func(a, b reflect.Value) int {
		return strings.Compare(fmt.Sprint(a.Interface()), fmt.Sprint(b.Interface()))
	})
	return keys
}

func deref(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Pointer || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func isStructSlice(v reflect.Value) bool {
	if v.Kind() != reflect.Slice {
		return false
	}
	elem := v.Type().Elem()
	if elem.Kind() == reflect.Pointer {
		elem = elem.Elem()
	}
	return elem.Kind() == reflect.Struct
}

func formatValue(v reflect.Value) string {
	v = deref(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%.6g", v.Float())
	case reflect.Slice, reflect.Array:
		return formatSlice(v)
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return "{...}"
	default:
		return fmt.Sprint(v.Interface())
	}
}

// formatSlice prints short scalar slices in full and everything else as a
// count.
func formatSlice(v reflect.Value) string {
	if v.Len() == 0 {
		return "[]"
	}
	switch v.Type().Elem().Kind() {
	case reflect.Struct, reflect.Map, reflect.Slice, reflect.Pointer, reflect.Interface:
		return fmt.Sprintf("[%d items]", v.Len())
	}
	if v.Len() > inlineSliceMax {
		return fmt.Sprintf("[%d items]", v.Len())
	}
	parts := make([]string, v.Len())
	for i := range v.Len() {
		parts[i] = formatValue(v.Index(i))
	}
	return "[" + strings.Join(parts, " ") + "]"
}

// isTTY returns true if the writer is a TTY.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
