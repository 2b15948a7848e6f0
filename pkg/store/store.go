// Package store persists row chunks as tables with idempotent keyed upserts.
//
// A table is one file under the output directory. Upsert appends when no
// primary key is given or the table does not exist yet; otherwise the
// existing rows and the new records are merged and deduplicated on the key
// tuple, keeping the last write. Rewrites go through a temporary file and a
// rename so an interrupted run never leaves a truncated table.
package store

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/goccy/go-json"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/elexon-crawler/pkg/logging"
	"github.com/Sternrassler/elexon-crawler/pkg/rows"
)

// Format names a table file format.
type Format string

// Supported formats.
const (
	JSONLines Format = "jsonl"
	CSV       Format = "csv"
	Parquet   Format = "parquet"
)

// Formats lists the supported formats.
var Formats = []Format{JSONLines, CSV, Parquet}

// ParseFormat validates a format name. "json" is accepted for JSON lines.
func ParseFormat(s string) (Format, error) {
	if s == "json" {
		return JSONLines, nil
	}
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unsupported format %q (want jsonl, csv or parquet)", s)
}

// Store writes tables.
type Store interface {
	// Upsert merges records into table, deduplicating on keys.
	Upsert(table string, records []rows.Row, keys []string) error

	// Path returns the file backing table.
	Path(table string) string

	// Format returns the file format.
	Format() Format
}

// New returns a store writing format files under dir, creating dir.
func New(dir string, format Format) (Store, error) {
	if dir == "" {
		return nil, fmt.Errorf("output directory is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}

	b := base{dir: dir, format: format, logger: logging.NewLogger("store")}
	switch format {
	case JSONLines:
		return &jsonlStore{base: b}, nil
	case CSV:
		return &csvStore{base: b}, nil
	case Parquet:
		return &parquetStore{base: b}, nil
	default:
		return nil, fmt.Errorf("unsupported format %q", format)
	}
}

type base struct {
	dir    string
	format Format
	logger zerolog.Logger
}

func (b base) Path(table string) string {
	return filepath.Join(b.dir, table+"."+string(b.format))
}

func (b base) Format() Format { return b.format }

// exists reports whether table has been written before.
func (b base) exists(table string) (bool, error) {
	_, err := os.Stat(b.Path(table))
	if err == nil {
		return true, nil
	}
	if os.IsNotExist(err) {
		return false, nil
	}
	return false, fmt.Errorf("stat %s: %w", b.Path(table), err)
}

// replace writes a new version of path through a temporary file.
func (b base) replace(path string, write func(f *os.File) error) error {
	tmp, err := os.CreateTemp(b.dir, filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := write(tmp); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}

// Merge concatenates existing and incoming and drops every row whose key
// tuple occurs again later, so the last write wins and keeps its position.
// Without keys, or when a key column appears in none of the rows, the
// concatenation is returned unchanged.
func Merge(existing, incoming []rows.Row, keys []string) []rows.Row {
	all := make([]rows.Row, 0, len(existing)+len(incoming))
	all = append(all, existing...)
	all = append(all, incoming...)
	if len(keys) == 0 || !hasColumns(all, keys) {
		return all
	}

	last := make(map[string]int, len(all))
	for i, r := range all {
		last[keyOf(r, keys)] = i
	}

	out := make([]rows.Row, 0, len(last))
	for i, r := range all {
		if last[keyOf(r, keys)] == i {
			out = append(out, r)
		}
	}
	return out
}

// hasColumns reports whether every key is a column of at least one row.
func hasColumns(rs []rows.Row, keys []string) bool {
	for _, k := range keys {
		found := false
		for _, r := range rs {
			if _, ok := r[k]; ok {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	return true
}

// keyOf renders the key tuple of r. Values are formatted the way they are
// written so a row read back from disk matches its in-memory original.
func keyOf(r rows.Row, keys []string) string {
	parts := make([]string, len(keys))
	for i, k := range keys {
		parts[i] = formatValue(r[k])
	}
	return strings.Join(parts, "\x1f")
}

// formatValue renders a scalar as text. Nested values become JSON.
func formatValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(x), 'f', -1, 32)
	case bool:
		return strconv.FormatBool(x)
	case map[string]any, []any, rows.Row:
		b, err := json.Marshal(x)
		if err != nil {
			return fmt.Sprint(x)
		}
		return string(b)
	default:
		return fmt.Sprint(x)
	}
}

// columns returns the sorted union of the field names of records.
func columns(records []rows.Row) []string {
	seen := make(map[string]struct{})
	for _, r := range records {
		for k := range r {
			seen[k] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
