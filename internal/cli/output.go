package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"
)

// OutputFormat represents the output format for CLI commands
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ParseOutputFormat validates a --output flag value.
func ParseOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	case "":
		return OutputFormatTable, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s (want table, json or yaml)", s)
	}
}

// Table is the tabular rendering of a result.
type Table struct {
	Header []string
	Rows   [][]interface{}
	// Empty is printed instead of an empty table.
	Empty string
}

// Printer writes results in the selected format.
type Printer struct {
	Format OutputFormat
	Out    io.Writer
}

// Print writes data as JSON or YAML, or tab as a table.
func (p Printer) Print(data interface{}, tab Table) error {
	switch p.Format {
	case OutputFormatJSON:
		enc := json.NewEncoder(p.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(data)
	case OutputFormatYAML:
		enc := yaml.NewEncoder(p.Out)
		enc.SetIndent(2)
		if err := enc.Encode(data); err != nil {
			return fmt.Errorf("failed to convert to YAML: %w", err)
		}
		return enc.Close()
	case OutputFormatTable, "":
		return p.printTable(tab)
	default:
		return fmt.Errorf("unsupported output format: %s", p.Format)
	}
}

func (p Printer) printTable(tab Table) error {
	if len(tab.Rows) == 0 {
		msg := tab.Empty
		if msg == "" {
			msg = "No items found"
		}
		_, err := fmt.Fprintln(p.Out, text.FgYellow.Sprint(msg))
		return err
	}

	t := table.NewWriter()
	t.SetOutputMirror(p.Out)
	t.SetStyle(table.StyleRounded)

	header := make(table.Row, len(tab.Header))
	for i, col := range tab.Header {
		header[i] = text.FgHiCyan.Sprint(strings.ToUpper(col))
	}
	t.AppendHeader(header)
	for _, row := range tab.Rows {
		t.AppendRow(table.Row(row))
	}
	t.Render()
	return nil
}

// FormatState colors a unit state for table output.
func FormatState(state string) interface{} {
	switch state {
	case "active":
		return text.FgGreen.Sprint(state)
	case "starting", "stopping", "resolving":
		return text.FgYellow.Sprint(state)
	case "removed":
		return text.FgRed.Sprint(state)
	case "":
		return text.FgHiBlack.Sprint("-")
	default:
		return state
	}
}

// FormatList joins values for a table cell.
func FormatList(values []string) interface{} {
	if len(values) == 0 {
		return text.FgHiBlack.Sprint("-")
	}
	return strings.Join(values, ", ")
}
