package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// ColumnSpec selects which columns of a user catalog file hold the
// coordinate and flux values. Indices are 1-based; FluxCol 0 means no
// flux column (fluxes default to zero).
type ColumnSpec struct {
	XCol    int
	YCol    int
	FluxCol int
}

// DefaultColumns uses the first two columns for X,Y with no flux.
func DefaultColumns() ColumnSpec {
	return ColumnSpec{XCol: 1, YCol: 2}
}

// ReadColumns reads numeric columns from a whitespace- or
// separator-delimited text file, skipping blank lines and lines starting
// with '#'. cols holds 1-based column indices; the result is one slice
// per requested column in request order.
func ReadColumns(filename, separator string, cols []int) ([][]float64, error) {
	f, err := os.Open(filename)
	if err != nil {
		return nil, fmt.Errorf("open catalog file: %w", err)
	}
	defer f.Close()

	out := make([][]float64, len(cols))
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)

	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		var fields []string
		if separator == "" {
			fields = strings.Fields(line)
		} else {
			fields = strings.Split(line, separator)
		}

		for i, col := range cols {
			if col < 1 || col > len(fields) {
				return nil, fmt.Errorf("line %d: column %d out of range (%d fields)", lineNo, col, len(fields))
			}
			v, err := strconv.ParseFloat(strings.TrimSpace(fields[col-1]), 64)
			if err != nil {
				return nil, fmt.Errorf("line %d column %d: %w", lineNo, col, err)
			}
			out[i] = append(out[i], v)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read catalog file: %w", err)
	}
	return out, nil
}

// ReadUserCatalog builds a pixel catalog from a user-supplied coordinate
// file. Missing flux columns produce zero fluxes; IDs are assigned
// sequentially from startID.
func ReadUserCatalog(filename, separator string, spec ColumnSpec, startID int) (*Catalog, error) {
	cols := []int{spec.XCol, spec.YCol}
	if spec.FluxCol > 0 {
		cols = append(cols, spec.FluxCol)
	}

	data, err := ReadColumns(filename, separator, cols)
	if err != nil {
		return nil, err
	}

	cat := NewCatalog(filename, nil)
	n := len(data[0])
	cat.Sources = make([]Source, n)
	for i := 0; i < n; i++ {
		cat.Sources[i] = Source{
			ID: startID + i,
			X:  data[0][i],
			Y:  data[1][i],
		}
		if spec.FluxCol > 0 {
			cat.Sources[i].Flux = data[2][i]
		}
	}
	return cat, nil
}

// ReadRefCatalog builds a reference catalog from a file of RA/Dec
// columns in degrees. The positions are stored in both the pixel and
// sky fields since reference catalogs are already undistorted sky
// positions.
func ReadRefCatalog(filename, separator string, spec ColumnSpec) (*Catalog, error) {
	cat, err := ReadUserCatalog(filename, separator, spec, 0)
	if err != nil {
		return nil, err
	}
	cat.InUnits = "degrees"
	if err := cat.GenerateRaDec(); err != nil {
		return nil, err
	}
	return cat, nil
}
