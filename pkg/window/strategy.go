// Package window expands a date range into the ordered fetch contexts of a
// time strategy. Calendar days follow the Europe/London calendar; every
// rendered instant is UTC.
package window

import (
	"fmt"
	"time"
)

// Kind selects how one calendar day expands into contexts.
type Kind int

const (
	// DateOnly yields one context per day.
	DateOnly Kind = iota

	// DateSettlementPeriod yields one context per settlement period of the
	// local day (46, 48 or 50).
	DateSettlementPeriod

	// FromToRange yields one context spanning the local day.
	FromToRange

	// FixedPublishSlots yields one context per configured HH:MM UTC slot.
	FixedPublishSlots

	// HalfHourSlots yields one context per 30-minute UTC boundary.
	HalfHourSlots
)

var kindNames = map[Kind]string{
	DateOnly:             "date_only",
	DateSettlementPeriod: "date_settlement_period",
	FromToRange:          "from_to_range",
	FixedPublishSlots:    "fixed_publish_slots",
	HalfHourSlots:        "half_hour_slots",
}

// String returns the snake_case name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", int(k))
}

// Strategy is a time strategy with its per-kind configuration.
type Strategy struct {
	Kind Kind

	// Slots are HH:MM UTC publish slots (FixedPublishSlots only).
	Slots []string

	// SlotPeriods maps a slot to its nominal settlement period (optional).
	SlotPeriods map[string]int
}

// Axis is a named dimension whose values multiply every context.
type Axis struct {
	Name   string
	Values []string
}

// StrategyError reports an invalid strategy configuration.
type StrategyError struct {
	Kind  Kind
	Value string
	Err   error
}

// Error implements the error interface.
func (e *StrategyError) Error() string {
	if e.Value != "" {
		return fmt.Sprintf("strategy %s: invalid value %q: %v", e.Kind, e.Value, e.Err)
	}
	return fmt.Sprintf("strategy %s: %v", e.Kind, e.Err)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *StrategyError) Unwrap() error {
	return e.Err
}

// slotOffset parses an HH:MM slot into its offset from midnight.
func slotOffset(slot string) (time.Duration, error) {
	t, err := time.Parse("15:04", slot)
	if err != nil {
		return 0, err
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
