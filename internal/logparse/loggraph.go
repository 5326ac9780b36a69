package logparse

import (
	"strings"

	"github.com/xia2/xia2-go/internal/errors"
)

// LogGraph is one `$TABLE` block of CCP4 loggraph output.
type LogGraph struct {
	Title   string
	Columns []string
	Rows    [][]string
}

// ParseLogGraph collects the loggraph tables in lines, in order of appearance. A table consists of the
// `$TABLE: title:` line followed by four `$$` separated sections: graphs, column names, comment, data. Data rows
// whose width differs from the column count are dropped.
func ParseLogGraph(lines []string) ([]LogGraph, error) {
	var tables []LogGraph

	for i := 0; i < len(lines); i++ {
		line := lines[i]
		if !strings.Contains(line, "$TABLE") {
			continue
		}

		title := line
		if parts := strings.SplitN(line, ":", 3); len(parts) > 1 {
			title = parts[1]
		}

		title = strings.TrimSpace(strings.ReplaceAll(title, ">", ""))

		var block []string

		dollars := 0

		for ; i < len(lines); i++ {
			dollars += strings.Count(lines[i], "$$")
			block = append(block, lines[i])

			if dollars >= 4 {
				break
			}
		}

		sections := strings.Split(strings.Join(block, "\n"), "$$")
		if len(sections) < 4 {
			return nil, errors.New(&ParseError{Schema: "loggraph", Reason: "table " + title + " is truncated"})
		}

		table := LogGraph{Title: title, Columns: strings.Fields(sections[1])}

		for _, row := range strings.Split(sections[3], "\n") {
			if fields := strings.Fields(row); len(fields) == len(table.Columns) && len(fields) > 0 {
				table.Rows = append(table.Rows, fields)
			}
		}

		tables = append(tables, table)
	}

	return tables, nil
}

// Column returns the values of the named column.
func (graph LogGraph) Column(name string) ([]string, bool) {
	index := -1

	for i, column := range graph.Columns {
		if column == name {
			index = i
			break
		}
	}

	if index < 0 {
		return nil, false
	}

	values := make([]string, len(graph.Rows))
	for i, row := range graph.Rows {
		values[i] = row[index]
	}

	return values, true
}
