package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"

	"github.com/Sternrassler/elexon-crawler/pkg/rows"
)

// csvStore writes a header row followed by one line per row. Every value
// is stored as text; rows read back carry string values.
type csvStore struct {
	base
}

func (s *csvStore) Upsert(table string, records []rows.Row, keys []string) error {
	if len(records) == 0 {
		return nil
	}
	path := s.Path(table)
	exists, err := s.exists(table)
	if err != nil {
		return err
	}

	if !exists {
		header := columns(records)
		return s.replace(path, func(f *os.File) error {
			return writeCSV(f, header, records, true)
		})
	}

	header, existing, err := readCSV(path)
	if err != nil {
		return err
	}
	extended := unionHeader(header, records)

	if len(keys) == 0 && len(extended) == len(header) {
		f, err := os.OpenFile(path, os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if err := writeCSV(f, header, records, false); err != nil {
			f.Close()
			return err
		}
		s.logger.Debug().Str("table", table).Int("rows", len(records)).Msg("Appended rows")
		return f.Close()
	}

	merged := Merge(existing, records, keys)
	s.logger.Debug().
		Str("table", table).
		Int("existing", len(existing)).
		Int("incoming", len(records)).
		Int("merged", len(merged)).
		Strs("columns", extended).
		Msg("Merged rows")

	return s.replace(path, func(f *os.File) error {
		return writeCSV(f, extended, merged, true)
	})
}

// unionHeader keeps the existing column order and appends new columns in
// sorted order.
func unionHeader(header []string, records []rows.Row) []string {
	out := slices.Clone(header)
	for _, c := range columns(records) {
		if !slices.Contains(out, c) {
			out = append(out, c)
		}
	}
	return out
}

func writeCSV(f *os.File, header []string, records []rows.Row, withHeader bool) error {
	w := csv.NewWriter(f)
	if withHeader {
		if err := w.Write(header); err != nil {
			return fmt.Errorf("write header: %w", err)
		}
	}

	line := make([]string, len(header))
	for _, r := range records {
		for i, c := range header {
			line[i] = formatValue(r[c])
		}
		if err := w.Write(line); err != nil {
			return fmt.Errorf("write row: %w", err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}

func readCSV(path string) ([]string, []rows.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header of %s: %w", path, err)
	}

	var out []rows.Row
	for {
		line, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, nil, fmt.Errorf("read %s: %w", path, err)
		}
		row := make(rows.Row, len(header))
		for i, c := range header {
			if i < len(line) {
				row[c] = line[i]
			}
		}
		out = append(out, row)
	}
	return header, out, nil
}
