package marketdata

import (
	"encoding/csv"
	"fmt"
	"io"
)

// rawTable is an upstream CSV response before schema normalization.
type rawTable struct {
	columns []string
	rows    [][]string
}

func parseCSV(r io.Reader) (rawTable, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return rawTable{}, fmt.Errorf("malformed csv: %w", err)
	}
	if len(records) == 0 {
		return rawTable{}, fmt.Errorf("empty csv body")
	}
	return rawTable{columns: records[0], rows: records[1:]}, nil
}
