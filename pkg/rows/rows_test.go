package rows

import (
	"reflect"
	"testing"
	"time"

	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

func decode(t *testing.T, body string) any {
	t.Helper()
	payload, err := Decode([]byte(body))
	if err != nil {
		t.Fatalf("Decode() error = %v", err)
	}
	return payload
}

func ids(rows []Row) []any {
	out := make([]any, len(rows))
	for i, r := range rows {
		out[i] = r["id"]
	}
	return out
}

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		itemsPath string
		want      []any
	}{
		{
			name:      "data path",
			body:      `{"data":[{"id":1},{"id":2},{"id":3}]}`,
			itemsPath: "data",
			want:      []any{1.0, 2.0, 3.0},
		},
		{
			name:      "nested path",
			body:      `{"result":{"items":[{"id":"a"}]}}`,
			itemsPath: "result.items",
			want:      []any{"a"},
		},
		{
			name:      "missing segment",
			body:      `{"result":{}}`,
			itemsPath: "result.items",
			want:      []any{},
		},
		{
			name:      "segment through a list",
			body:      `{"result":[{"items":[]}]}`,
			itemsPath: "result.items",
			want:      []any{},
		},
		{
			name:      "object collection sorted by key",
			body:      `{"data":{"b":{"id":2},"a":{"id":1},"c":{"id":3}}}`,
			itemsPath: "data",
			want:      []any{1.0, 2.0, 3.0},
		},
		{
			name: "fallback to items",
			body: `{"items":[{"id":7}]}`,
			want: []any{7.0},
		},
		{
			name: "fallback skips empty data",
			body: `{"data":[],"results":[{"id":9}]}`,
			want: []any{9.0},
		},
		{
			name: "fallback top-level array",
			body: `[{"id":1},{"id":2}]`,
			want: []any{1.0, 2.0},
		},
		{
			name:      "non-object items skipped",
			body:      `{"data":[{"id":1},2,"x",null]}`,
			itemsPath: "data",
			want:      []any{1.0},
		},
		{
			name:      "scalar at path",
			body:      `{"data":"none"}`,
			itemsPath: "data",
			want:      []any{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ids(Extract(decode(t, tt.body), tt.itemsPath))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Extract() ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecode_Invalid(t *testing.T) {
	if _, err := Decode([]byte("{nope")); err == nil {
		t.Error("Decode() should fail on invalid JSON")
	}
}

func TestEnrich_FirstWriteWins(t *testing.T) {
	ctx := &window.PeriodContext{
		Base: window.Base{
			Date: "2024-01-01",
			Dims: []window.Dimension{{Name: "bidOfferType", Value: "bid"}},
		},
		SettlementPeriod: 5,
	}
	in := []Row{
		{"id": 1},
		{"id": 2, "settlementPeriod": 9, "bidOfferType": "offer", "date": "2023-12-31"},
	}

	out := Enrich(in, ctx, nil)

	want := []Row{
		{"id": 1, "settlementPeriod": 5, "date": "2024-01-01", "bidOfferType": "bid"},
		{"id": 2, "settlementPeriod": 9, "date": "2023-12-31", "bidOfferType": "offer"},
	}
	if !reflect.DeepEqual(out, want) {
		t.Errorf("Enrich() = %v, want %v", out, want)
	}

	// Input rows are not modified.
	if _, ok := in[0]["date"]; ok {
		t.Error("Enrich() modified its input")
	}
}

func TestEnrich_RangeFields(t *testing.T) {
	day, _ := window.ParseDate("2024-07-01")
	ctxs, err := window.Expand(day, day, window.Strategy{Kind: window.FromToRange}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	out := Enrich([]Row{{"id": 1}}, ctxs[0], nil)
	want := Row{
		"id":            1,
		"date":          "2024-07-01",
		"fromTimestamp": "2024-06-30T23:00:00Z",
		"toTimestamp":   "2024-07-01T22:59:59Z",
	}
	if !reflect.DeepEqual(out[0], want) {
		t.Errorf("Enrich() = %v, want %v", out[0], want)
	}
}

func TestEnrich_SlotPeriod(t *testing.T) {
	ctx := &window.PublishContext{
		Base:        window.Base{Date: "2024-06-01"},
		PublishTime: time.Date(2024, 6, 1, 3, 30, 0, 0, time.UTC),
		SlotPeriod:  6,
	}

	out := Enrich([]Row{{"id": 1}, {"id": 2, "settlementPeriod": 7.0}}, ctx, nil)

	if out[0]["settlementPeriod"] != 6 {
		t.Errorf("row 0 settlementPeriod = %v, want 6", out[0]["settlementPeriod"])
	}
	if out[1]["settlementPeriod"] != 7.0 {
		t.Errorf("row 1 settlementPeriod = %v, want 7 (kept)", out[1]["settlementPeriod"])
	}
	if out[0]["publishTime"] != "2024-06-01T03:30:00Z" {
		t.Errorf("row 0 publishTime = %v", out[0]["publishTime"])
	}
}

func TestEnrich_CustomEnricherRunsLast(t *testing.T) {
	ctx := &window.DateContext{Base: window.Base{Date: "2024-01-01"}}

	var sawDate bool
	enricher := func(rows []Row, _ window.Context) []Row {
		sawDate = rows[0]["date"] == "2024-01-01"
		for _, r := range rows {
			r["extra"] = true
		}
		return rows
	}

	out := Enrich([]Row{{"id": 1}}, ctx, enricher)
	if !sawDate {
		t.Error("custom enricher ran before built-in enrichment")
	}
	if out[0]["extra"] != true {
		t.Error("custom enricher output lost")
	}
}

func TestApply(t *testing.T) {
	ctx := &window.DateContext{Base: window.Base{Date: "2024-01-01"}}
	in := []Row{{"id": 1}, {"id": 2}}

	if got := Apply(in, ctx, nil); len(got) != 2 {
		t.Errorf("Apply(nil) = %v, want rows unchanged", got)
	}

	dropAll := func([]Row, window.Context) []Row { return nil }
	if got := Apply(in, ctx, dropAll); len(got) != 0 {
		t.Errorf("Apply(dropAll) = %v, want none", got)
	}
}
