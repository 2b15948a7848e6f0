package store

import (
	"bufio"
	"bytes"
	"fmt"
	"os"

	"github.com/goccy/go-json"

	"github.com/Sternrassler/elexon-crawler/pkg/rows"
)

// jsonlStore writes one JSON object per line.
type jsonlStore struct {
	base
}

func (s *jsonlStore) Upsert(table string, records []rows.Row, keys []string) error {
	if len(records) == 0 {
		return nil
	}
	path := s.Path(table)
	exists, err := s.exists(table)
	if err != nil {
		return err
	}

	if !exists || len(keys) == 0 {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		if err := writeJSONLines(f, records); err != nil {
			f.Close()
			return err
		}
		s.logger.Debug().Str("table", table).Int("rows", len(records)).Msg("Appended rows")
		return f.Close()
	}

	existing, err := readJSONLines(path)
	if err != nil {
		return err
	}
	merged := Merge(existing, records, keys)
	s.logger.Debug().
		Str("table", table).
		Int("existing", len(existing)).
		Int("incoming", len(records)).
		Int("merged", len(merged)).
		Msg("Merged rows")

	return s.replace(path, func(f *os.File) error {
		return writeJSONLines(f, merged)
	})
}

func writeJSONLines(f *os.File, records []rows.Row) error {
	w := bufio.NewWriter(f)
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return fmt.Errorf("encode row: %w", err)
		}
	}
	if err := w.Flush(); err != nil {
		return fmt.Errorf("write %s: %w", f.Name(), err)
	}
	return nil
}

func readJSONLines(path string) ([]rows.Row, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	var out []rows.Row
	for i, line := range bytes.Split(data, []byte("\n")) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		var r rows.Row
		if err := json.Unmarshal(line, &r); err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+1, err)
		}
		out = append(out, r)
	}
	return out, nil
}
