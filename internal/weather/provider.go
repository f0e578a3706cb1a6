package weather

import (
	"context"
	"time"
)

// Fetcher retrieves the raw forecast payload for a location.
// Implementations own their own timeout and retry policy.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, loc Location) ([]byte, error)
}

// Decoder turns a raw payload into candidate records. A payload carrying an
// embedded error code must yield a *DecodeError.
type Decoder interface {
	Decode(payload []byte) ([]ForecastRecord, error)
}

// Provider is a forecast feed that can both fetch and decode its payloads.
type Provider interface {
	Fetcher
	Decoder
}

// Preferences exposes the user-owned notification settings.
type Preferences interface {
	NotificationsEnabled() bool
	TimeSinceLastNotification() time.Duration
	RecordNotificationShown(now time.Time) error
}

// NotificationSignal is told when fresh weather is available. It is
// fire-and-forget; nothing it returns is relied upon.
type NotificationSignal interface {
	NotifyNewWeather()
}

// Store is the contract every forecast storage backend must satisfy.
type Store interface {
	// ReplaceAll atomically swaps the table contents for records and returns
	// the number of rows written after de-duplication by date.
	ReplaceAll(ctx context.Context, records []ForecastRecord) (int, error)
	// DeleteAll removes every row and returns how many were removed.
	DeleteAll(ctx context.Context) (int, error)
	Query(ctx context.Context, filter Filter, order SortOrder) (ResultSet, error)
	// LastReplaced returns when ReplaceAll last committed, or the zero time.
	LastReplaced(ctx context.Context) (time.Time, error)
	Close() error
}

// FilterKind selects between the two supported query predicates.
type FilterKind int

const (
	FilterAll FilterKind = iota
	FilterExact
)

// Filter is a storage query predicate.
type Filter struct {
	Kind    FilterKind
	Date    int64  // FilterExact only
	MinDate *int64 // FilterAll only; nil means unbounded
}

// AllRows matches the whole table.
func AllRows() Filter {
	return Filter{Kind: FilterAll}
}

// Since matches rows with date >= minDate.
func Since(minDate int64) Filter {
	return Filter{Kind: FilterAll, MinDate: &minDate}
}

// OnDate matches the single row for date.
func OnDate(date int64) Filter {
	return Filter{Kind: FilterExact, Date: date}
}

// SortOrder orders all-rows queries by date.
type SortOrder string

const (
	SortUnspecified SortOrder = ""
	SortAscending   SortOrder = "ASC"
	SortDescending  SortOrder = "DESC"
)

// Validate checks that order is usable with filter.
func (f Filter) Validate(order SortOrder) error {
	switch f.Kind {
	case FilterExact:
		return nil
	case FilterAll:
		if order != SortAscending && order != SortDescending {
			return &ValidationError{Index: -1, Reason: "all-rows query requires an explicit sort order"}
		}
		return nil
	default:
		return &ValidationError{Index: -1, Reason: "unknown filter kind"}
	}
}

// ValidateRecords fails fast on the first record whose date is not normalized.
func ValidateRecords(records []ForecastRecord) error {
	for i, r := range records {
		if !IsNormalized(r.Date) {
			return &ValidationError{Index: i, Date: r.Date, Reason: "date must be normalized to UTC midnight"}
		}
	}
	return nil
}
