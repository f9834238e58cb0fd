package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Table is a simple named-column table used for ECSV interchange of
// catalogs and match tables. All columns are float64.
type Table struct {
	Names   []string
	Units   map[string]string
	Columns [][]float64
}

// NewTable creates an empty table with the given column names.
func NewTable(names ...string) *Table {
	t := &Table{
		Names:   names,
		Units:   make(map[string]string),
		Columns: make([][]float64, len(names)),
	}
	return t
}

// NRows returns the number of rows in the table.
func (t *Table) NRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0])
}

// AddRow appends one value per column.
func (t *Table) AddRow(values ...float64) error {
	if len(values) != len(t.Names) {
		return fmt.Errorf("row has %d values, table has %d columns", len(values), len(t.Names))
	}
	for i, v := range values {
		t.Columns[i] = append(t.Columns[i], v)
	}
	return nil
}

// Column returns the named column, or nil if absent.
func (t *Table) Column(name string) []float64 {
	for i, n := range t.Names {
		if n == name {
			return t.Columns[i]
		}
	}
	return nil
}

// RenameColumn renames a column in place; missing names are ignored so
// callers can normalise optional upstream headers.
func (t *Table) RenameColumn(from, to string) {
	for i, n := range t.Names {
		if n == from {
			t.Names[i] = to
			if u, ok := t.Units[from]; ok {
				delete(t.Units, from)
				t.Units[to] = u
			}
			return
		}
	}
}

// WriteECSV writes the table in the ECSV 1.0 subset understood by this
// package: a commented YAML datatype header followed by space-delimited
// data rows.
func (t *Table) WriteECSV(filename string) error {
	f, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("create ECSV file: %w", err)
	}
	defer f.Close()

	w := bufio.NewWriter(f)
	fmt.Fprintln(w, "#", "%ECSV", "1.0")
	fmt.Fprintln(w, "# ---")
	fmt.Fprintln(w, "# datatype:")
	for _, name := range t.Names {
		if unit, ok := t.Units[name]; ok && unit != "" {
			fmt.Fprintf(w, "# - {name: %s, unit: %s, datatype: float64}\n", name, unit)
		} else {
			fmt.Fprintf(w, "# - {name: %s, datatype: float64}\n", name)
		}
	}
	fmt.Fprintln(w, "# schema: astropy-2.0")
	fmt.Fprintln(w, strings.Join(t.Names, " "))

	n := t.NRows()
	for row := 0; row < n; row++ {
		for i := range t.Names {
			if i > 0 {
				fmt.Fprint(w, " ")
			}
			fmt.Fprintf(w, "%g", t.Columns[i][row])
		}
		fmt.Fprintln(w)
	}
	return w.Flush()
}

// ReadECSV reads a table written in the ECSV subset produced by
// WriteECSV (and by astropy's default space-delimited writer).
func ReadECSV(filename string) (*Table, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open ECSV file: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	if !scanner.Scan() {
		return nil, fmt.Errorf("empty ECSV file %s", filename)
	}
	if !strings.HasPrefix(strings.TrimSpace(scanner.Text()), "# %ECSV") {
		return nil, fmt.Errorf("%s is not an ECSV file", filename)
	}

	var table *Table
	units := make(map[string]string)
	var names []string

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "#") {
			body := strings.TrimSpace(strings.TrimPrefix(line, "#"))
			if strings.HasPrefix(body, "- {") {
				name, unit := parseDatatypeLine(body)
				if name != "" {
					names = append(names, name)
					if unit != "" {
						units[name] = unit
					}
				}
			}
			continue
		}

		if table == nil {
			// First non-comment line is the column-name header.
			header := strings.Fields(line)
			if len(names) > 0 && len(header) != len(names) {
				return nil, fmt.Errorf("header has %d columns, datatype lists %d", len(header), len(names))
			}
			table = NewTable(header...)
			table.Units = units
			continue
		}

		fields := strings.Fields(line)
		if len(fields) != len(table.Names) {
			return nil, fmt.Errorf("row has %d fields, expected %d", len(fields), len(table.Names))
		}
		values := make([]float64, len(fields))
		for i, fstr := range fields {
			v, err := strconv.ParseFloat(fstr, 64)
			if err != nil {
				return nil, fmt.Errorf("parse %q: %w", fstr, err)
			}
			values[i] = v
		}
		if err := table.AddRow(values...); err != nil {
			return nil, err
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read ECSV file: %w", err)
	}
	if table == nil {
		return nil, fmt.Errorf("no column header in %s", filename)
	}
	return table, nil
}

// parseDatatypeLine extracts the name and unit from a line like
// "- {name: x, unit: pix, datatype: float64}".
func parseDatatypeLine(line string) (name, unit string) {
	line = strings.TrimPrefix(line, "- {")
	line = strings.TrimSuffix(line, "}")
	for _, part := range strings.Split(line, ",") {
		kv := strings.SplitN(part, ":", 2)
		if len(kv) != 2 {
			continue
		}
		key := strings.TrimSpace(kv[0])
		val := strings.TrimSpace(kv[1])
		switch key {
		case "name":
			name = val
		case "unit":
			unit = val
		}
	}
	return name, unit
}
