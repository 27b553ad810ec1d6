package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/hazyhaar/sugos/sugos"
)

// writeJSON encodes v as indented JSON to the command's stdout.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// wantJSON reports whether output should be JSON: when asked, or when stdout
// is not a terminal.
func wantJSON(cmd *cobra.Command, flag bool) bool {
	if flag {
		return true
	}
	f, ok := cmd.OutOrStdout().(*os.File)
	if !ok {
		return false
	}
	fd := f.Fd()
	return !isatty.IsTerminal(fd) && !isatty.IsCygwinTerminal(fd)
}

// renderTable renders rows with a rounded style; columns listed in right are
// right-aligned (1-based).
func renderTable(headers []string, rows [][]string, right ...int) string {
	return newTable(headers, rows, right...).Render()
}

func newTable(headers []string, rows [][]string, right ...int) table.Writer {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(headers))
	for i, h := range headers {
		header[i] = h
	}
	tw.AppendHeader(header)
	for _, row := range rows {
		r := make(table.Row, len(headers))
		for i := range headers {
			if i < len(row) {
				r[i] = row[i]
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(right))
	for _, n := range right {
		configs = append(configs, table.ColumnConfig{Number: n, Align: text.AlignRight, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)
	return tw
}

// renderLinks renders the link index as a table, or as markdown with one
// section per identifier.
func renderLinks(links sugos.LinkIndex, markdown bool) string {
	if !markdown {
		var rows [][]string
		for _, il := range links {
			if len(il.Orders) == 0 {
				rows = append(rows, []string{il.Identifier, "", "(no links)", ""})
				continue
			}
			for _, ol := range il.Orders {
				for _, l := range ol.Links {
					rows = append(rows, []string{il.Identifier, ol.OrderID, l.Name, l.URL})
				}
			}
		}
		return renderTable([]string{"Identifier", "Order", "Link", "URL"}, rows)
	}

	var b strings.Builder
	for _, il := range links {
		fmt.Fprintf(&b, "## %s\n\n", il.Identifier)
		if len(il.Orders) == 0 {
			b.WriteString("No links.\n\n")
			continue
		}
		var rows [][]string
		for _, ol := range il.Orders {
			for _, l := range ol.Links {
				rows = append(rows, []string{ol.OrderID, "[" + l.Name + "](" + l.URL + ")"})
			}
		}
		b.WriteString(newTable([]string{"Order", "Link"}, rows).RenderMarkdown())
		b.WriteString("\n\n")
	}
	return strings.TrimRight(b.String(), "\n")
}
