// Package query maps locators onto storage queries and keeps live queries
// up to date by re-running them whenever their rows change.
package query

import (
	"context"
	"time"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/metrics"
	"github.com/i474232898/forecast-cache/internal/notify"
	"github.com/i474232898/forecast-cache/internal/weather"
)

// requeryTimeout bounds a live-query re-execution.
const requeryTimeout = 5 * time.Second

// Router is the read-only query surface over a weather.Store.
type Router struct {
	store    weather.Store
	notifier *notify.Notifier
	recorder *metrics.Recorder
}

// New creates a Router. recorder may be nil.
func New(store weather.Store, notifier *notify.Notifier, recorder *metrics.Recorder) *Router {
	return &Router{
		store:    store,
		notifier: notifier,
		recorder: recorder,
	}
}

// Query runs the storage query addressed by loc.
func (r *Router) Query(ctx context.Context, loc weather.Locator) (weather.ResultSet, error) {
	filter, order, err := route(loc)
	if err != nil {
		return nil, err
	}
	return r.store.Query(ctx, filter, order)
}

// QueryCollection returns rows with date >= minDate (all rows when nil),
// sorted ascending by date.
func (r *Router) QueryCollection(ctx context.Context, minDate *int64) (weather.ResultSet, error) {
	return r.Query(ctx, weather.Collection{MinDate: minDate})
}

// QueryItem returns zero or one row for date.
func (r *Router) QueryItem(ctx context.Context, date int64) (weather.ResultSet, error) {
	return r.Query(ctx, weather.Item{Date: date})
}

// Subscribe registers a live query. onChange receives a fresh result set each
// time rows underneath loc are mutated. Cancel the returned subscription to
// stop deliveries; a delivery already under way is not interrupted.
func (r *Router) Subscribe(loc weather.Locator, onChange func(weather.ResultSet)) (*notify.Subscription, error) {
	if _, _, err := route(loc); err != nil {
		return nil, err
	}

	kind := kindOf(loc)
	return r.notifier.Subscribe(loc, func(weather.Change) {
		ctx, cancel := context.WithTimeout(context.Background(), requeryTimeout)
		defer cancel()

		rs, err := r.Query(ctx, loc)
		if err != nil {
			logger.Errorf("query: live query %s failed: %v", loc, err)
			return
		}
		r.recorder.RecordDelivery(kind)
		onChange(rs)
	}), nil
}

func route(loc weather.Locator) (weather.Filter, weather.SortOrder, error) {
	switch l := loc.(type) {
	case weather.Collection:
		if l.MinDate != nil {
			return weather.Since(*l.MinDate), weather.SortAscending, nil
		}
		return weather.AllRows(), weather.SortAscending, nil
	case weather.Item:
		return weather.OnDate(l.Date), weather.SortUnspecified, nil
	default:
		return weather.Filter{}, weather.SortUnspecified, &weather.RoutingError{Locator: loc}
	}
}

func kindOf(loc weather.Locator) string {
	if _, ok := loc.(weather.Item); ok {
		return "item"
	}
	return "collection"
}
