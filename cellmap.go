package ecalveto

import (
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"go-hep.org/x/hep/csvutil"
	"gonum.org/v1/gonum/spatial/r2"
)

// CellMap is the table of ECal sensor cell centers. It is read once and only
// read afterwards.
type CellMap struct {
	IDs     []int64
	Centers []r2.Vec
}

// LoadCellMap reads a whitespace separated "cellID x y" table.
func LoadCellMap(fname string) (*CellMap, error) {
	tbl, err := csvutil.Open(fname)
	if err != nil {
		return nil, fmt.Errorf("could not open cell map: %w", err)
	}
	defer tbl.Close()
	tbl.Reader.Comma = ' '
	tbl.Reader.Comment = '#'
	tbl.Reader.TrimLeadingSpace = true
	tbl.Reader.FieldsPerRecord = -1

	rows, err := tbl.ReadRows(0, -1)
	if err != nil {
		return nil, fmt.Errorf("could not read cell map rows: %w", err)
	}
	defer rows.Close()

	cm := &CellMap{}
	for rows.Next() {
		// columns may be separated by any run of spaces or tabs
		fields := strings.Fields(strings.Join(rows.Fields(), " "))
		if len(fields) == 0 {
			continue
		}
		if len(fields) < 3 {
			return nil, fmt.Errorf("cell map row %d has %d columns, want 3", len(cm.IDs), len(fields))
		}
		var vals [3]float64
		for i := range vals {
			vals[i], err = strconv.ParseFloat(fields[i], 64)
			if err != nil {
				return nil, fmt.Errorf("could not parse cell map row %d: %w", len(cm.IDs), err)
			}
		}
		cm.IDs = append(cm.IDs, int64(vals[0]))
		cm.Centers = append(cm.Centers, r2.Vec{X: vals[1], Y: vals[2]})
	}
	if err := rows.Err(); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("could not read cell map: %w", err)
	}
	if len(cm.Centers) == 0 {
		return nil, fmt.Errorf("cell map %q is empty", fname)
	}
	return cm, nil
}

func (cm *CellMap) Len() int { return len(cm.Centers) }

// Contains reports whether p lies within radius of any cell center. The scan
// stops at the first matching cell.
func (cm *CellMap) Contains(p r2.Vec, radius float64) bool {
	for _, c := range cm.Centers {
		if r2.Norm(r2.Sub(c, p)) <= radius {
			return true
		}
	}
	return false
}
