package store

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/parquet-go/parquet-go"

	"github.com/Sternrassler/elexon-crawler/pkg/rows"
)

// parquetStore writes every column as an optional UTF-8 string. A table is
// rewritten on every upsert since parquet files cannot be appended to.
type parquetStore struct {
	base
}

func (s *parquetStore) Upsert(table string, records []rows.Row, keys []string) error {
	if len(records) == 0 {
		return nil
	}
	path := s.Path(table)
	exists, err := s.exists(table)
	if err != nil {
		return err
	}

	merged := records
	var existing []rows.Row
	if exists {
		if existing, err = readParquet(path); err != nil {
			return err
		}
		merged = Merge(existing, records, keys)
	}
	s.logger.Debug().
		Str("table", table).
		Int("existing", len(existing)).
		Int("incoming", len(records)).
		Int("merged", len(merged)).
		Msg("Merged rows")

	return s.replace(path, func(f *os.File) error {
		return writeParquet(f, merged)
	})
}

func stringSchema(cols []string) *parquet.Schema {
	group := make(parquet.Group, len(cols))
	for _, c := range cols {
		group[c] = parquet.Optional(parquet.String())
	}
	return parquet.NewSchema("row", group)
}

func writeParquet(f *os.File, records []rows.Row) error {
	schema := stringSchema(columns(records))
	leaves := schema.Columns()

	out := make([]parquet.Row, len(records))
	for i, r := range records {
		row := make(parquet.Row, len(leaves))
		for j, path := range leaves {
			v, ok := r[path[0]]
			if !ok || v == nil {
				row[j] = parquet.Value{}.Level(0, 0, j)
				continue
			}
			row[j] = parquet.ValueOf(formatValue(v)).Level(0, 1, j)
		}
		out[i] = row
	}

	w := parquet.NewWriter(f, schema)
	if _, err := w.WriteRows(out); err != nil {
		w.Close()
		return fmt.Errorf("write rows: %w", err)
	}
	if err := w.Close(); err != nil {
		return fmt.Errorf("close parquet writer: %w", err)
	}
	return nil
}

func readParquet(path string) ([]rows.Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	r := parquet.NewReader(f)
	defer r.Close()
	leaves := r.Schema().Columns()

	var out []rows.Row
	buf := make([]parquet.Row, 128)
	for {
		n, err := r.ReadRows(buf)
		for _, pr := range buf[:n] {
			row := make(rows.Row, len(leaves))
			for _, v := range pr {
				if v.IsNull() {
					continue
				}
				row[leaves[v.Column()][0]] = string(v.ByteArray())
			}
			out = append(out, row)
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	return out, nil
}
