package window

import (
	"fmt"
	"time"

	// Europe/London must resolve on hosts without a zoneinfo database.
	_ "time/tzdata"
)

// DateLayout is the calendar day format used by contexts and the CLI.
const DateLayout = "2006-01-02"

const settlementPeriod = 30 * time.Minute

var london = mustLoadLocation("Europe/London")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

// London returns the Europe/London location used for calendar days.
func London() *time.Location {
	return london
}

// ParseDate parses a YYYY-MM-DD calendar day.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse date %q: %w", s, err)
	}
	return d, nil
}

// SettlementPeriods returns the number of settlement periods of the local
// day: 48 normally, 46 when clocks go forward, 50 when they go back.
func SettlementPeriods(day time.Time) int {
	start, next := localDay(day)
	return int(next.Sub(start) / settlementPeriod)
}

// DayBounds returns the UTC instants of local 00:00:00 and 23:59:59 on day.
func DayBounds(day time.Time) (from, to time.Time) {
	y, m, d := day.Date()
	from = time.Date(y, m, d, 0, 0, 0, 0, london).UTC()
	to = time.Date(y, m, d, 23, 59, 59, 0, london).UTC()
	return from, to
}

func localDay(day time.Time) (start, next time.Time) {
	y, m, d := day.Date()
	start = time.Date(y, m, d, 0, 0, 0, 0, london)
	next = time.Date(y, m, d+1, 0, 0, 0, 0, london)
	return start, next
}

// Expand returns the contexts for every day in [start, end] (only the
// calendar date of each bound is used). Order is day-major, then settlement
// period or slot, then dimension tuple in axis order. An end before start
// yields no contexts.
func Expand(start, end time.Time, strategy Strategy, axes []Axis) ([]Context, error) {
	slots, err := resolveSlots(strategy)
	if err != nil {
		return nil, err
	}

	tuples := product(axes)
	first := civil(start)
	last := civil(end)

	var out []Context
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		date := day.Format(DateLayout)

		switch strategy.Kind {
		case DateOnly:
			for _, dims := range tuples {
				out = append(out, &DateContext{Base: Base{Date: date, Dims: dims}})
			}

		case DateSettlementPeriod:
			n := SettlementPeriods(day)
			for sp := 1; sp <= n; sp++ {
				for _, dims := range tuples {
					out = append(out, &PeriodContext{
						Base:             Base{Date: date, Dims: dims},
						SettlementPeriod: sp,
					})
				}
			}

		case FromToRange:
			from, to := DayBounds(day)
			for _, dims := range tuples {
				out = append(out, &RangeContext{
					Base: Base{Date: date, Dims: dims},
					From: from,
					To:   to,
				})
			}

		case FixedPublishSlots:
			for _, s := range slots {
				for _, dims := range tuples {
					out = append(out, &PublishContext{
						Base:        Base{Date: date, Dims: dims},
						kind:        FixedPublishSlots,
						PublishTime: day.Add(s.offset),
						SlotPeriod:  s.period,
					})
				}
			}

		case HalfHourSlots:
			for offset := time.Duration(0); offset < 24*time.Hour; offset += settlementPeriod {
				for _, dims := range tuples {
					out = append(out, &PublishContext{
						Base:        Base{Date: date, Dims: dims},
						kind:        HalfHourSlots,
						PublishTime: day.Add(offset),
					})
				}
			}

		default:
			return nil, &StrategyError{Kind: strategy.Kind, Err: fmt.Errorf("unknown time strategy")}
		}
	}

	return out, nil
}

type slot struct {
	offset time.Duration
	period int
}

// resolveSlots validates the publish slots of a FixedPublishSlots strategy.
func resolveSlots(strategy Strategy) ([]slot, error) {
	if strategy.Kind != FixedPublishSlots {
		return nil, nil
	}

	out := make([]slot, 0, len(strategy.Slots))
	for _, s := range strategy.Slots {
		offset, err := slotOffset(s)
		if err != nil {
			return nil, &StrategyError{Kind: strategy.Kind, Value: s, Err: err}
		}
		out = append(out, slot{offset: offset, period: strategy.SlotPeriods[s]})
	}
	return out, nil
}

// civil returns the calendar date of t as UTC midnight.
func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// product returns the Cartesian product of the axes in order; the last axis
// varies fastest. No axes yield one empty tuple.
func product(axes []Axis) [][]Dimension {
	tuples := [][]Dimension{nil}
	for _, axis := range axes {
		next := make([][]Dimension, 0, len(tuples)*len(axis.Values))
		for _, prefix := range tuples {
			for _, v := range axis.Values {
				tuple := make([]Dimension, len(prefix), len(prefix)+1)
				copy(tuple, prefix)
				next = append(next, append(tuple, Dimension{Name: axis.Name, Value: v}))
			}
		}
		tuples = next
	}
	return tuples
}
