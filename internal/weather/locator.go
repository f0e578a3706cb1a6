package weather

import (
	"strconv"
	"strings"
)

// Authority is the host part of a content URI addressing the forecast table.
const Authority = "forecast-cache"

// PathWeather is the collection path segment.
const PathWeather = "weather"

// Locator addresses either the whole forecast collection or a single day.
// The set of implementations is closed: Collection and Item.
type Locator interface {
	locator()
	String() string
}

// Collection addresses every row, optionally restricted to date >= MinDate.
type Collection struct {
	MinDate *int64
}

func (Collection) locator() {}

func (c Collection) String() string {
	if c.MinDate == nil {
		return PathWeather
	}
	return PathWeather + "?from=" + strconv.FormatInt(*c.MinDate, 10)
}

// Item addresses the row for a single normalized date.
type Item struct {
	Date int64
}

func (Item) locator() {}

func (i Item) String() string {
	return PathWeather + "/" + strconv.FormatInt(i.Date, 10)
}

// CollectionSince is a convenience for a collection locator with a lower bound.
func CollectionSince(minDate int64) Collection {
	return Collection{MinDate: &minDate}
}

// ParseLocator resolves a content URI or bare path into a Locator.
// Accepted forms: "weather", "weather/<millis>", "weather/<YYYY-MM-DD>",
// each optionally prefixed by "content://<authority>/".
func ParseLocator(uri string) (Locator, error) {
	path := strings.TrimPrefix(uri, "content://")
	if path != uri {
		slash := strings.IndexByte(path, '/')
		if slash < 0 || path[:slash] != Authority {
			return nil, &RoutingError{URI: uri}
		}
		path = path[slash+1:]
	}
	path = strings.Trim(path, "/")

	segments := strings.Split(path, "/")
	if segments[0] != PathWeather {
		return nil, &RoutingError{URI: uri}
	}

	switch len(segments) {
	case 1:
		return Collection{}, nil
	case 2:
		date, err := ParseDate(segments[1])
		if err != nil {
			return nil, &RoutingError{URI: uri}
		}
		return Item{Date: date}, nil
	default:
		return nil, &RoutingError{URI: uri}
	}
}

// Change describes one committed mutation of the forecast table.
// Dates holds every date key whose row was removed, inserted or replaced.
type Change struct {
	Dates []int64
}

// Empty reports whether the mutation touched no rows.
func (c Change) Empty() bool {
	return len(c.Dates) == 0
}

// Affects reports whether rows underneath loc were touched by this change.
func (c Change) Affects(loc Locator) bool {
	switch l := loc.(type) {
	case Collection:
		for _, d := range c.Dates {
			if l.MinDate == nil || d >= *l.MinDate {
				return true
			}
		}
		return false
	case Item:
		for _, d := range c.Dates {
			if d == l.Date {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// ChangePublisher receives committed mutations from a Store.
type ChangePublisher interface {
	Publish(change Change) int
}
