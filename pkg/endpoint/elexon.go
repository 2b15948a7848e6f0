package endpoint

import (
	"github.com/Sternrassler/elexon-crawler/pkg/request"
	"github.com/Sternrassler/elexon-crawler/pkg/rows"
	"github.com/Sternrassler/elexon-crawler/pkg/window"
)

// windForecastSlots are the daily wind forecast publishes (UTC) with the
// settlement period each one targets.
var windForecastSlots = window.Strategy{
	Kind:  window.FixedPublishSlots,
	Slots: []string{"03:30", "05:30", "08:30", "10:30", "12:30", "16:30", "19:30", "23:30"},
	SlotPeriods: map[string]int{
		"03:30": 6, "05:30": 10, "08:30": 16, "10:30": 20,
		"12:30": 24, "16:30": 32, "19:30": 38, "23:30": 46,
	},
}

// ElexonSpecs returns the BMRS Insights endpoint definitions.
func ElexonSpecs() []Spec {
	return []Spec{
		{
			Name:        "isp_stack",
			Request:     request.Template{Path: "/balancing/settlement/stack/all/{bidOfferType}/{date}/{settlementPeriod}"},
			Dimensions:  []window.Axis{{Name: "bidOfferType", Values: []string{"bid", "offer"}}},
			Strategy:    window.Strategy{Kind: window.DateSettlementPeriod},
			ItemsPath:   "data",
			Table:       "isp_stack",
			PrimaryKeys: []string{"date", "settlementPeriod", "stackComponent", "bidOfferType"},
		},
		{
			Name:        "acceptances_by_sp",
			Request:     request.Template{Path: "/balancing/settlement/acceptances/all/{date}/{settlementPeriod}"},
			Strategy:    window.Strategy{Kind: window.DateSettlementPeriod},
			ItemsPath:   "data",
			Table:       "acceptances_by_sp",
			PrimaryKeys: []string{"date", "settlementPeriod", "bmUnitId", "acceptanceId"},
			Filter:      rows.ExactSettlementPeriod,
		},
		{
			Name: "bidoffer_level_acceptances",
			Request: request.Template{
				Path:  "/balancing/acceptances/all",
				Query: map[string]string{"settlementDate": "{date}", "settlementPeriod": "{settlementPeriod}"},
			},
			Strategy:    window.Strategy{Kind: window.DateSettlementPeriod},
			ItemsPath:   "data",
			Table:       "bidoffer_level_acceptances",
			PrimaryKeys: []string{"date", "settlementPeriod", "bmUnitId", "acceptanceId"},
			Filter:      rows.ExactSettlementPeriod,
		},
		{
			Name: "dayahead_demand_history",
			Request: request.Template{
				Path:  "/forecast/demand/day-ahead/history",
				Query: map[string]string{"publishTime": "{publishTime}"},
			},
			Strategy:    window.Strategy{Kind: window.HalfHourSlots},
			ItemsPath:   "data",
			Table:       "dayahead_demand_history",
			PrimaryKeys: []string{"publishTimeEffective", "startTime", "region"},
			Enricher:    rows.EnrichPublishEffective,
			Filter:      rows.DayAheadWindow,
		},
		{
			Name: "wind_history",
			Request: request.Template{
				Path:  "/forecast/generation/wind/history",
				Query: map[string]string{"publishTime": "{publishTime}"},
			},
			Strategy:    windForecastSlots,
			ItemsPath:   "data",
			Table:       "wind_history",
			PrimaryKeys: []string{"publishTime", "startTime", "region"},
		},
		{
			Name: "wind_evolution",
			Request: request.Template{
				Path:  "/forecast/generation/wind/evolution",
				Query: map[string]string{"startTime": "{publishTime}", "format": "json"},
			},
			Strategy:    window.Strategy{Kind: window.HalfHourSlots},
			ItemsPath:   "data",
			Table:       "wind_evolution",
			PrimaryKeys: []string{"startTime", "publishTime", "region"},
			Filter:      rows.LatestBeforeStart(8),
		},
		{
			Name: "agpt",
			Request: request.Template{
				Path:  "/datasets/AGPT",
				Query: map[string]string{"publishDateTimeFrom": "{fromTimestamp}", "publishDateTimeTo": "{toTimestamp}"},
			},
			Strategy:    window.Strategy{Kind: window.FromToRange},
			ItemsPath:   "data",
			Table:       "agpt",
			PrimaryKeys: []string{"publishTime", "bmUnitId", "startTime"},
		},
		{
			Name: "agws",
			Request: request.Template{
				Path:  "/datasets/AGWS",
				Query: map[string]string{"publishDateTimeFrom": "{fromTimestamp}", "publishDateTimeTo": "{toTimestamp}"},
			},
			Strategy:    window.Strategy{Kind: window.FromToRange},
			ItemsPath:   "data",
			Table:       "agws",
			PrimaryKeys: []string{"publishTime", "region", "startTime"},
		},
		{
			Name:        "system_prices",
			Request:     request.Template{Path: "/balancing/settlement/system-prices/{date}"},
			Strategy:    window.Strategy{Kind: window.DateOnly},
			ItemsPath:   "data",
			Table:       "system_prices",
			PrimaryKeys: []string{"date", "settlementPeriod", "priceType"},
		},
		{
			Name: "demand_outturn",
			Request: request.Template{
				Path:  "/demand/outturn",
				Query: map[string]string{"settlementDateFrom": "{date}", "settlementDateTo": "{date}"},
			},
			Strategy:    window.Strategy{Kind: window.DateOnly},
			ItemsPath:   "data",
			Table:       "demand_outturn",
			PrimaryKeys: []string{"date", "settlementPeriod", "region"},
		},
		{
			Name: "netbsad",
			Request: request.Template{
				Path:  "/datasets/netbsad",
				Query: map[string]string{"from": "{fromTimestamp}", "to": "{toTimestamp}"},
			},
			Strategy:    window.Strategy{Kind: window.FromToRange},
			ItemsPath:   "data",
			Table:       "netbsad",
			PrimaryKeys: []string{"publishTime", "recordId"},
		},
	}
}

// Elexon returns the registry of BMRS Insights endpoints.
func Elexon() *Registry {
	r, err := NewRegistry(ElexonSpecs()...)
	if err != nil {
		panic("elexon registry: " + err.Error())
	}
	return r
}
