// Package rows turns decoded API payloads into enriched, filtered rows.
package rows

import (
	"fmt"
	"maps"
	"sort"
	"strings"

	json "github.com/goccy/go-json"

	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

// Row is one decoded item plus the context fields injected into it.
type Row map[string]any

// Enricher adds fields to rows. It runs after the built-in enrichment and
// may update the context, e.g. to record an effective publish time.
type Enricher func(rows []Row, ctx window.Context) []Row

// Filter drops or reorders rows. It runs last.
type Filter func(rows []Row, ctx window.Context) []Row

// fallbackPaths are tried in order when no items path is configured.
var fallbackPaths = []string{"data", "items", "results"}

// Decode parses a JSON payload.
func Decode(body []byte) (any, error) {
	var payload any
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	return payload, nil
}

// Extract locates the item collection at the dotted itemsPath. An empty
// path tries "data", "items" and "results" in turn and accepts a top-level
// array. A collection given as an object yields its values ordered by key.
// A missing path segment yields no rows. Items that are not objects are
// skipped.
func Extract(payload any, itemsPath string) []Row {
	var items any
	if itemsPath == "" {
		if list, ok := payload.([]any); ok {
			items = list
		}
		for _, p := range fallbackPaths {
			if items != nil {
				break
			}
			if v := dig(payload, p); !isEmpty(v) {
				items = v
			}
		}
	} else {
		items = dig(payload, itemsPath)
	}

	var list []any
	switch v := items.(type) {
	case []any:
		list = v
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			list = append(list, v[k])
		}
	default:
		return nil
	}

	out := make([]Row, 0, len(list))
	for _, item := range list {
		if obj, ok := item.(map[string]any); ok {
			out = append(out, Row(obj))
		}
	}
	return out
}

// dig walks a dotted path through nested objects.
func dig(payload any, path string) any {
	cur := payload
	for _, segment := range strings.Split(path, ".") {
		obj, ok := cur.(map[string]any)
		if !ok {
			return nil
		}
		cur = obj[segment]
	}
	return cur
}

func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case []any:
		return len(x) == 0
	case map[string]any:
		return len(x) == 0
	default:
		return false
	}
}

// Enrich copies every row and injects context fields without overwriting
// existing row fields: settlementPeriod, date, the remaining context fields
// by name, and the nominal slot period as settlementPeriod. The custom
// enricher, if any, runs last.
func Enrich(rows []Row, ctx window.Context, enricher Enricher) []Row {
	fields := ctx.Fields()
	slotPeriod := 0
	if pc, ok := ctx.(*window.PublishContext); ok {
		slotPeriod = pc.SlotPeriod
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		rec := maps.Clone(r)
		if rec == nil {
			rec = Row{}
		}
		for _, name := range []string{window.FieldSettlementPeriod, window.FieldDate} {
			if v, ok := window.Lookup(ctx, name); ok {
				setDefault(rec, name, v)
			}
		}
		for _, f := range fields {
			setDefault(rec, f.Name, f.Value)
		}
		if slotPeriod > 0 {
			setDefault(rec, window.FieldSettlementPeriod, slotPeriod)
		}
		out = append(out, rec)
	}

	if enricher != nil {
		out = enricher(out, ctx)
	}
	return out
}

// Apply runs filter over rows when set.
func Apply(rows []Row, ctx window.Context, filter Filter) []Row {
	if filter == nil {
		return rows
	}
	return filter(rows, ctx)
}

func setDefault(r Row, name string, value any) {
	if _, ok := r[name]; !ok {
		r[name] = value
	}
}
