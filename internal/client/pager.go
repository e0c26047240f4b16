package client

import (
	"context"

	"github.com/groblegark/ksilo/internal/model"
)

// DefaultPageSize is the initial window size for paged log views.
const DefaultPageSize = 20

// EventPager implements the client-side pagination convention for the event
// log: the server returns the full filtered corpus, and the pager shows a
// window that doubles each time the caller asks for more (20, 40, 80, ...).
// Because the server's ordering is stable, each window is a strict superset
// of the previous one.
type EventPager struct {
	client SiloClient
	filter model.EventFilter
	limit  int
}

// NewEventPager creates a pager over the given filter starting at
// DefaultPageSize.
func NewEventPager(c SiloClient, filter model.EventFilter) *EventPager {
	return &EventPager{client: c, filter: filter, limit: DefaultPageSize}
}

// Next fetches the log and returns the current window, along with whether
// more events exist beyond it. Each call doubles the window for the next one.
func (p *EventPager) Next(ctx context.Context) ([]*model.Event, bool, error) {
	all, err := p.client.GetLogEvents(ctx, p.filter)
	if err != nil {
		return nil, false, err
	}

	n := p.limit
	if n > len(all) {
		n = len(all)
	}
	window := all[:n]
	more := len(all) > p.limit

	p.limit *= 2
	return window, more, nil
}

// Limit reports the current window size.
func (p *EventPager) Limit() int { return p.limit }
