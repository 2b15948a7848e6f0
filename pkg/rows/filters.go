package rows

import (
	"math"
	"sort"
	"strconv"
	"time"

	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

// timeLayouts are the ISO-8601 renderings seen in BMRS payloads.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// ParseTime parses an ISO-8601 timestamp into UTC. Timestamps without an
// offset are taken as UTC.
func ParseTime(v any) (time.Time, bool) {
	s, ok := v.(string)
	if !ok || s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.UTC(), true
		}
	}
	return time.Time{}, false
}

// toInt converts decoded JSON numbers and numeric strings.
func toInt(v any) (int, bool) {
	switch x := v.(type) {
	case int:
		return x, true
	case int64:
		return int(x), true
	case float64:
		if x != math.Trunc(x) {
			return 0, false
		}
		return int(x), true
	case string:
		n, err := strconv.Atoi(x)
		return n, err == nil
	default:
		return 0, false
	}
}

// ExactSettlementPeriod keeps rows whose settlementPeriod and
// settlementPeriodFrom (when present) equal the context's period.
func ExactSettlementPeriod(rows []Row, ctx window.Context) []Row {
	want := -1
	if v, ok := window.Lookup(ctx, window.FieldSettlementPeriod); ok {
		if n, ok := toInt(v); ok {
			want = n
		}
	}

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		if v, ok := r["settlementPeriod"]; ok {
			if n, ok := toInt(v); !ok || n != want {
				continue
			}
		}
		if v, ok := r["settlementPeriodFrom"]; ok && v != nil {
			if n, ok := toInt(v); !ok || n != want {
				continue
			}
		}
		out = append(out, r)
	}
	return out
}

// DayAheadWindow keeps rows whose startTime lies in [P+30m, P+24h], both
// inclusive, where P is the context's effective publish time, or its
// publish time when no effective time is known. Rows without a parseable
// startTime and contexts without a publish time yield nothing.
func DayAheadWindow(rows []Row, ctx window.Context) []Row {
	pc, ok := ctx.(*window.PublishContext)
	if !ok {
		return nil
	}
	ref := pc.Reference()
	from := ref.Add(30 * time.Minute)
	to := ref.Add(24 * time.Hour)

	out := make([]Row, 0, len(rows))
	for _, r := range rows {
		start, ok := ParseTime(r["startTime"])
		if !ok {
			continue
		}
		if !start.Before(from) && !start.After(to) {
			out = append(out, r)
		}
	}
	return out
}

// EnrichPublishEffective records the publish time actually served: the
// first row's publishTime, or the requested publish time when that is
// missing. It is injected as publishTimeEffective without overwriting and
// stored on the context for later filtering.
func EnrichPublishEffective(rows []Row, ctx window.Context) []Row {
	pc, ok := ctx.(*window.PublishContext)
	if !ok {
		return rows
	}

	effective := pc.PublishTime.UTC()
	if len(rows) > 0 {
		if t, ok := ParseTime(rows[0]["publishTime"]); ok {
			effective = t
		}
	}
	iso := effective.Format(window.TimestampLayout)

	for _, r := range rows {
		setDefault(r, window.FieldPublishTimeEffective, iso)
	}
	pc.EffectivePublishTime = effective
	return rows
}

// LatestBeforeStart returns a filter treating the context publish time as
// the forecast start time. It keeps rows published at least one hour before
// the start, latest first, at most n of them. Rows without a parseable
// publishTime count as published at the start.
func LatestBeforeStart(n int) Filter {
	return func(rows []Row, ctx window.Context) []Row {
		pc, ok := ctx.(*window.PublishContext)
		if !ok {
			return nil
		}
		start := pc.PublishTime.UTC()
		cutoff := start.Add(-time.Hour)

		type ranked struct {
			row       Row
			published time.Time
		}
		kept := make([]ranked, 0, len(rows))
		for _, r := range rows {
			published, ok := ParseTime(r["publishTime"])
			if !ok {
				published = start
			}
			if !published.After(cutoff) {
				kept = append(kept, ranked{row: r, published: published})
			}
		}

		sort.SliceStable(kept, func(i, j int) bool {
			return kept[i].published.After(kept[j].published)
		})
		if len(kept) > n {
			kept = kept[:n]
		}

		out := make([]Row, len(kept))
		for i, k := range kept {
			out[i] = k.row
		}
		return out
	}
}
