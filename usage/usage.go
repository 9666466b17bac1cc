// Package usage describes the resource-usage records the billing worker
// prices, and the source they are fetched from.
package usage

import (
	"context"
	"time"

	"github.com/xraph/finance/pricing"
)

// StateInterval is a span of time a resource spent in one order state.
type StateInterval struct {
	State string    `json:"state"`
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Record describes one resource's consumption. When States is empty the
// whole [Start, End) interval is billed at the stateless price. A zero End
// means the resource is still running.
type Record struct {
	Item   pricing.Item    `json:"item"`
	Start  time.Time       `json:"start"`
	End    time.Time       `json:"end"`
	States []StateInterval `json:"states,omitempty"`
}

// Span is a billable duration of an item in an order state.
type Span struct {
	Item     pricing.Item
	State    string
	Duration time.Duration
}

// Spans clips the record to [from, to) and returns its billable durations,
// one per order state, or a single stateless span. Empty spans are dropped.
func (r Record) Spans(from, to time.Time) []Span {
	if len(r.States) == 0 {
		if d := overlap(r.Start, r.End, from, to); d > 0 {
			return []Span{{Item: r.Item, Duration: d}}
		}
		return nil
	}

	var out []Span
	index := make(map[string]int)
	for _, si := range r.States {
		d := overlap(si.Start, si.End, from, to)
		if d <= 0 {
			continue
		}
		if i, ok := index[si.State]; ok {
			out[i].Duration += d
			continue
		}
		index[si.State] = len(out)
		out = append(out, Span{Item: r.Item, State: si.State, Duration: d})
	}
	return out
}

func overlap(start, end, from, to time.Time) time.Duration {
	if start.Before(from) {
		start = from
	}
	if end.IsZero() || (!to.IsZero() && end.After(to)) {
		end = to
	}
	if !end.After(start) {
		return 0
	}
	return end.Sub(start)
}

// Source returns the usage records of a user for [start, end).
type Source interface {
	UsageRecords(ctx context.Context, userID, providerID string, start, end time.Time) ([]Record, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, userID, providerID string, start, end time.Time) ([]Record, error)

// UsageRecords calls f.
func (f SourceFunc) UsageRecords(ctx context.Context, userID, providerID string, start, end time.Time) ([]Record, error) {
	return f(ctx, userID, providerID, start, end)
}

// Empty is a Source that never reports usage.
var Empty Source = SourceFunc(func(context.Context, string, string, time.Time, time.Time) ([]Record, error) {
	return nil, nil
})
