package window

import "time"

// TimestampLayout renders UTC instants in request parameters and rows.
const TimestampLayout = "2006-01-02T15:04:05Z"

// Field names exposed by contexts to templates and row enrichment.
const (
	FieldDate                 = "date"
	FieldSettlementPeriod     = "settlementPeriod"
	FieldFromTimestamp        = "fromTimestamp"
	FieldToTimestamp          = "toTimestamp"
	FieldPublishTime          = "publishTime"
	FieldPublishTimeEffective = "publishTimeEffective"
)

// Dimension is one value of a dimension axis.
type Dimension struct {
	Name  string
	Value string
}

// Field is a named context value. Values are string or int.
type Field struct {
	Name  string
	Value any
}

// Context is one unit of fetch work. Implementations are *DateContext,
// *PeriodContext, *RangeContext and *PublishContext.
type Context interface {
	// Kind returns the strategy that produced the context.
	Kind() Kind

	// Day returns the calendar day as YYYY-MM-DD.
	Day() string

	// Dimensions returns the dimension tuple in axis order.
	Dimensions() []Dimension

	// Fields returns every named value in a stable order: strategy fields
	// first, then dimensions.
	Fields() []Field
}

// Lookup returns the value of the named field.
func Lookup(c Context, name string) (any, bool) {
	for _, f := range c.Fields() {
		if f.Name == name {
			return f.Value, true
		}
	}
	return nil, false
}

// Base carries the fields shared by every context.
type Base struct {
	Date string
	Dims []Dimension
}

// Day implements Context.
func (b *Base) Day() string { return b.Date }

// Dimensions implements Context.
func (b *Base) Dimensions() []Dimension { return b.Dims }

func (b *Base) fields(strategy ...Field) []Field {
	out := make([]Field, 0, 1+len(strategy)+len(b.Dims))
	out = append(out, Field{Name: FieldDate, Value: b.Date})
	out = append(out, strategy...)
	for _, d := range b.Dims {
		out = append(out, Field{Name: d.Name, Value: d.Value})
	}
	return out
}

// DateContext is produced by DateOnly.
type DateContext struct {
	Base
}

// Kind implements Context.
func (c *DateContext) Kind() Kind { return DateOnly }

// Fields implements Context.
func (c *DateContext) Fields() []Field { return c.fields() }

// PeriodContext is produced by DateSettlementPeriod.
type PeriodContext struct {
	Base
	SettlementPeriod int
}

// Kind implements Context.
func (c *PeriodContext) Kind() Kind { return DateSettlementPeriod }

// Fields implements Context.
func (c *PeriodContext) Fields() []Field {
	return c.fields(Field{Name: FieldSettlementPeriod, Value: c.SettlementPeriod})
}

// RangeContext is produced by FromToRange.
type RangeContext struct {
	Base
	From time.Time
	To   time.Time
}

// Kind implements Context.
func (c *RangeContext) Kind() Kind { return FromToRange }

// Fields implements Context.
func (c *RangeContext) Fields() []Field {
	return c.fields(
		Field{Name: FieldFromTimestamp, Value: c.From.UTC().Format(TimestampLayout)},
		Field{Name: FieldToTimestamp, Value: c.To.UTC().Format(TimestampLayout)},
	)
}

// PublishContext is produced by FixedPublishSlots and HalfHourSlots.
type PublishContext struct {
	Base
	kind Kind

	PublishTime time.Time

	// SlotPeriod is the nominal settlement period of the slot, 0 if unmapped.
	SlotPeriod int

	// EffectivePublishTime is set by enrichers once the payload reveals the
	// publish time actually served. Zero until then.
	EffectivePublishTime time.Time
}

// Kind implements Context.
func (c *PublishContext) Kind() Kind { return c.kind }

// Fields implements Context.
func (c *PublishContext) Fields() []Field {
	strategy := []Field{{Name: FieldPublishTime, Value: c.PublishTime.UTC().Format(TimestampLayout)}}
	if !c.EffectivePublishTime.IsZero() {
		strategy = append(strategy, Field{
			Name:  FieldPublishTimeEffective,
			Value: c.EffectivePublishTime.UTC().Format(TimestampLayout),
		})
	}
	return c.fields(strategy...)
}

// Reference returns the effective publish time when known, the requested
// publish time otherwise.
func (c *PublishContext) Reference() time.Time {
	if !c.EffectivePublishTime.IsZero() {
		return c.EffectivePublishTime
	}
	return c.PublishTime
}
