package window

import (
	"errors"
	"testing"
	"time"
)

func mustDate(t *testing.T, s string) time.Time {
	t.Helper()
	d, err := ParseDate(s)
	if err != nil {
		t.Fatalf("ParseDate(%q) error = %v", s, err)
	}
	return d
}

func TestSettlementPeriods(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{date: "2024-01-01", want: 48},
		{date: "2024-03-31", want: 46}, // clocks go forward
		{date: "2024-06-15", want: 48},
		{date: "2024-10-27", want: 50}, // clocks go back
		{date: "2023-03-26", want: 46},
		{date: "2023-10-29", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			if got := SettlementPeriods(mustDate(t, tt.date)); got != tt.want {
				t.Errorf("SettlementPeriods(%s) = %d, want %d", tt.date, got, tt.want)
			}
		})
	}
}

func TestExpand_DateSettlementPeriod(t *testing.T) {
	tests := []struct {
		date string
		want int
	}{
		{date: "2024-01-01", want: 48},
		{date: "2024-03-31", want: 46},
		{date: "2024-10-27", want: 50},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			day := mustDate(t, tt.date)
			ctxs, err := Expand(day, day, Strategy{Kind: DateSettlementPeriod}, nil)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if len(ctxs) != tt.want {
				t.Fatalf("len(contexts) = %d, want %d", len(ctxs), tt.want)
			}
			for i, c := range ctxs {
				pc, ok := c.(*PeriodContext)
				if !ok {
					t.Fatalf("context %d is %T, want *PeriodContext", i, c)
				}
				if pc.SettlementPeriod != i+1 {
					t.Errorf("context %d period = %d, want %d", i, pc.SettlementPeriod, i+1)
				}
				if pc.Day() != tt.date {
					t.Errorf("context %d date = %s, want %s", i, pc.Day(), tt.date)
				}
			}
		})
	}
}

func TestExpand_DateOnlyRange(t *testing.T) {
	ctxs, err := Expand(mustDate(t, "2024-02-28"), mustDate(t, "2024-03-01"), Strategy{Kind: DateOnly}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []string{"2024-02-28", "2024-02-29", "2024-03-01"}
	if len(ctxs) != len(want) {
		t.Fatalf("len(contexts) = %d, want %d", len(ctxs), len(want))
	}
	for i, c := range ctxs {
		if c.Day() != want[i] {
			t.Errorf("context %d date = %s, want %s", i, c.Day(), want[i])
		}
		if c.Kind() != DateOnly {
			t.Errorf("context %d kind = %s, want date_only", i, c.Kind())
		}
	}
}

func TestExpand_EndBeforeStart(t *testing.T) {
	ctxs, err := Expand(mustDate(t, "2024-01-02"), mustDate(t, "2024-01-01"), Strategy{Kind: DateOnly}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(ctxs) != 0 {
		t.Errorf("len(contexts) = %d, want 0", len(ctxs))
	}
}

func TestExpand_FromToRange(t *testing.T) {
	tests := []struct {
		date     string
		wantFrom string
		wantTo   string
	}{
		{date: "2024-01-15", wantFrom: "2024-01-15T00:00:00Z", wantTo: "2024-01-15T23:59:59Z"},
		{date: "2024-07-01", wantFrom: "2024-06-30T23:00:00Z", wantTo: "2024-07-01T22:59:59Z"},
		{date: "2024-03-31", wantFrom: "2024-03-31T00:00:00Z", wantTo: "2024-03-31T22:59:59Z"},
		{date: "2024-10-27", wantFrom: "2024-10-26T23:00:00Z", wantTo: "2024-10-27T23:59:59Z"},
	}

	for _, tt := range tests {
		t.Run(tt.date, func(t *testing.T) {
			day := mustDate(t, tt.date)
			ctxs, err := Expand(day, day, Strategy{Kind: FromToRange}, nil)
			if err != nil {
				t.Fatalf("Expand() error = %v", err)
			}
			if len(ctxs) != 1 {
				t.Fatalf("len(contexts) = %d, want 1", len(ctxs))
			}

			from, _ := Lookup(ctxs[0], FieldFromTimestamp)
			to, _ := Lookup(ctxs[0], FieldToTimestamp)
			if from != tt.wantFrom {
				t.Errorf("fromTimestamp = %v, want %v", from, tt.wantFrom)
			}
			if to != tt.wantTo {
				t.Errorf("toTimestamp = %v, want %v", to, tt.wantTo)
			}
		})
	}
}

func TestExpand_FixedPublishSlots(t *testing.T) {
	day := mustDate(t, "2024-06-01")
	strategy := Strategy{
		Kind:        FixedPublishSlots,
		Slots:       []string{"03:30", "23:30", "12:00"},
		SlotPeriods: map[string]int{"03:30": 6, "23:30": 46},
	}

	ctxs, err := Expand(day, day, strategy, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []struct {
		publish string
		period  int
	}{
		{publish: "2024-06-01T03:30:00Z", period: 6},
		{publish: "2024-06-01T23:30:00Z", period: 46},
		{publish: "2024-06-01T12:00:00Z", period: 0},
	}
	if len(ctxs) != len(want) {
		t.Fatalf("len(contexts) = %d, want %d", len(ctxs), len(want))
	}
	for i, c := range ctxs {
		pc := c.(*PublishContext)
		if got := pc.PublishTime.Format(TimestampLayout); got != want[i].publish {
			t.Errorf("context %d publishTime = %s, want %s", i, got, want[i].publish)
		}
		if pc.SlotPeriod != want[i].period {
			t.Errorf("context %d slot period = %d, want %d", i, pc.SlotPeriod, want[i].period)
		}
		if pc.Kind() != FixedPublishSlots {
			t.Errorf("context %d kind = %s", i, pc.Kind())
		}
	}
}

func TestExpand_InvalidSlot(t *testing.T) {
	day := mustDate(t, "2024-06-01")
	_, err := Expand(day, day, Strategy{Kind: FixedPublishSlots, Slots: []string{"25:99"}}, nil)

	var strategyErr *StrategyError
	if !errors.As(err, &strategyErr) {
		t.Fatalf("Expand() error = %v, want *StrategyError", err)
	}
	if strategyErr.Value != "25:99" {
		t.Errorf("Value = %q, want 25:99", strategyErr.Value)
	}
}

func TestExpand_UnknownKind(t *testing.T) {
	day := mustDate(t, "2024-06-01")
	_, err := Expand(day, day, Strategy{Kind: Kind(42)}, nil)

	var strategyErr *StrategyError
	if !errors.As(err, &strategyErr) {
		t.Fatalf("Expand() error = %v, want *StrategyError", err)
	}
}

func TestExpand_HalfHourSlots(t *testing.T) {
	// The UTC day always has 48 boundaries, DST or not.
	day := mustDate(t, "2024-03-31")
	ctxs, err := Expand(day, day, Strategy{Kind: HalfHourSlots}, nil)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(ctxs) != 48 {
		t.Fatalf("len(contexts) = %d, want 48", len(ctxs))
	}

	first := ctxs[0].(*PublishContext).PublishTime.Format(TimestampLayout)
	last := ctxs[47].(*PublishContext).PublishTime.Format(TimestampLayout)
	if first != "2024-03-31T00:00:00Z" {
		t.Errorf("first publishTime = %s", first)
	}
	if last != "2024-03-31T23:30:00Z" {
		t.Errorf("last publishTime = %s", last)
	}
}

func TestExpand_DimensionOrder(t *testing.T) {
	day := mustDate(t, "2024-01-01")
	axes := []Axis{
		{Name: "bidOfferType", Values: []string{"bid", "offer"}},
		{Name: "region", Values: []string{"N", "S"}},
	}

	ctxs, err := Expand(day, mustDate(t, "2024-01-02"), Strategy{Kind: DateOnly}, axes)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}

	want := []string{
		"2024-01-01/bid/N", "2024-01-01/bid/S", "2024-01-01/offer/N", "2024-01-01/offer/S",
		"2024-01-02/bid/N", "2024-01-02/bid/S", "2024-01-02/offer/N", "2024-01-02/offer/S",
	}
	if len(ctxs) != len(want) {
		t.Fatalf("len(contexts) = %d, want %d", len(ctxs), len(want))
	}
	for i, c := range ctxs {
		dims := c.Dimensions()
		got := c.Day() + "/" + dims[0].Value + "/" + dims[1].Value
		if got != want[i] {
			t.Errorf("context %d = %s, want %s", i, got, want[i])
		}
	}
}

func TestExpand_PeriodMajorOverDimensions(t *testing.T) {
	day := mustDate(t, "2024-01-01")
	axes := []Axis{{Name: "bidOfferType", Values: []string{"bid", "offer"}}}

	ctxs, err := Expand(day, day, Strategy{Kind: DateSettlementPeriod}, axes)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(ctxs) != 96 {
		t.Fatalf("len(contexts) = %d, want 96", len(ctxs))
	}

	for i, c := range ctxs[:4] {
		pc := c.(*PeriodContext)
		wantSP := i/2 + 1
		wantDim := []string{"bid", "offer"}[i%2]
		if pc.SettlementPeriod != wantSP || pc.Dims[0].Value != wantDim {
			t.Errorf("context %d = (%d, %s), want (%d, %s)", i, pc.SettlementPeriod, pc.Dims[0].Value, wantSP, wantDim)
		}
	}
}

func TestExpand_Deterministic(t *testing.T) {
	start := mustDate(t, "2024-10-26")
	end := mustDate(t, "2024-10-28")
	axes := []Axis{{Name: "bidOfferType", Values: []string{"bid", "offer"}}}

	a, err := Expand(start, end, Strategy{Kind: DateSettlementPeriod}, axes)
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	b, _ := Expand(start, end, Strategy{Kind: DateSettlementPeriod}, axes)

	if len(a) != (48+50+48)*2 {
		t.Fatalf("len(contexts) = %d, want %d", len(a), (48+50+48)*2)
	}
	for i := range a {
		pa, pb := a[i].(*PeriodContext), b[i].(*PeriodContext)
		if pa.Date != pb.Date || pa.SettlementPeriod != pb.SettlementPeriod || pa.Dims[0] != pb.Dims[0] {
			t.Fatalf("context %d differs between runs", i)
		}
	}
}

func TestExpand_EmptyAxisYieldsNothing(t *testing.T) {
	day := mustDate(t, "2024-01-01")
	ctxs, err := Expand(day, day, Strategy{Kind: DateOnly}, []Axis{{Name: "region"}})
	if err != nil {
		t.Fatalf("Expand() error = %v", err)
	}
	if len(ctxs) != 0 {
		t.Errorf("len(contexts) = %d, want 0", len(ctxs))
	}
}
