// Package endpoint defines immutable endpoint specifications and the
// registry that names them.
package endpoint

import (
	"fmt"
	"net/http"
	"slices"

	"github.com/Sternrassler/elexon-crawler/pkg/request"
	"github.com/Sternrassler/elexon-crawler/pkg/rows"
	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

// Spec describes how to crawl one endpoint.
type Spec struct {
	// Name identifies the spec in the registry and on the command line.
	Name string

	// Method is the HTTP method. Only GET is supported; empty means GET.
	Method string

	// Request holds the path and query templates.
	Request request.Template

	// Dimensions multiply every context, in order.
	Dimensions []window.Axis

	// Strategy selects the time partitioning.
	Strategy window.Strategy

	// ItemsPath is the dotted path of the item collection. Empty tries
	// "data", "items" and "results".
	ItemsPath string

	// Table is the destination table.
	Table string

	// PrimaryKeys identify a row within Table.
	PrimaryKeys []string

	// Enricher runs after the built-in enrichment (optional).
	Enricher rows.Enricher

	// Filter runs last (optional).
	Filter rows.Filter
}

// strategyFields lists the template fields each strategy provides.
var strategyFields = map[window.Kind][]string{
	window.DateOnly:             {window.FieldDate},
	window.DateSettlementPeriod: {window.FieldDate, window.FieldSettlementPeriod},
	window.FromToRange:          {window.FieldDate, window.FieldFromTimestamp, window.FieldToTimestamp},
	window.FixedPublishSlots:    {window.FieldDate, window.FieldPublishTime},
	window.HalfHourSlots:        {window.FieldDate, window.FieldPublishTime},
}

// Validate checks the spec for configuration errors: missing names, an
// unsupported method, unknown strategies and placeholders no context of
// the strategy can fill.
func (s Spec) Validate() error {
	if s.Name == "" {
		return fmt.Errorf("spec name is required")
	}
	if s.Table == "" {
		return fmt.Errorf("spec %s: table is required", s.Name)
	}
	if s.Method != "" && s.Method != http.MethodGet {
		return fmt.Errorf("spec %s: unsupported method %s", s.Name, s.Method)
	}

	fields, ok := strategyFields[s.Strategy.Kind]
	if !ok {
		return fmt.Errorf("spec %s: unknown time strategy %s", s.Name, s.Strategy.Kind)
	}
	available := slices.Clone(fields)
	for _, axis := range s.Dimensions {
		available = append(available, axis.Name)
	}

	templates := []string{s.Request.Path}
	for _, v := range s.Request.Query {
		templates = append(templates, v)
	}
	for _, tmpl := range templates {
		for _, name := range request.Placeholders(tmpl) {
			if !slices.Contains(available, name) {
				return fmt.Errorf("spec %s: placeholder {%s} not provided by %s contexts", s.Name, name, s.Strategy.Kind)
			}
		}
	}
	return nil
}

// clone returns a deep copy of the spec's slices and maps.
func (s Spec) clone() Spec {
	out := s
	out.Request.Query = cloneMap(s.Request.Query)
	out.PrimaryKeys = slices.Clone(s.PrimaryKeys)
	out.Strategy.Slots = slices.Clone(s.Strategy.Slots)
	out.Strategy.SlotPeriods = cloneMap(s.Strategy.SlotPeriods)
	out.Dimensions = make([]window.Axis, len(s.Dimensions))
	for i, axis := range s.Dimensions {
		out.Dimensions[i] = window.Axis{Name: axis.Name, Values: slices.Clone(axis.Values)}
	}
	return out
}

func cloneMap[V any](m map[string]V) map[string]V {
	if m == nil {
		return nil
	}
	out := make(map[string]V, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}
