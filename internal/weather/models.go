package weather

import "fmt"

// Condition represents a normalized high-level weather condition.
type Condition string

const (
	ConditionUnknown Condition = "unknown"
	ConditionClear   Condition = "clear"
	ConditionCloudy  Condition = "cloudy"
	ConditionRain    Condition = "rain"
	ConditionSnow    Condition = "snow"
	ConditionStorm   Condition = "storm"
	ConditionMist    Condition = "mist"
)

// ConditionForID maps an OpenWeatherMap condition id onto a Condition.
// Every provider translates its native codes into this vocabulary before
// records reach the store, so the stored id always has this meaning.
func ConditionForID(id int) Condition {
	switch {
	case id >= 200 && id < 300:
		return ConditionStorm
	case id >= 300 && id < 600:
		return ConditionRain
	case id >= 600 && id < 700:
		return ConditionSnow
	case id >= 700 && id < 800:
		return ConditionMist
	case id == 800:
		return ConditionClear
	case id > 800 && id < 900:
		return ConditionCloudy
	default:
		return ConditionUnknown
	}
}

// Location is the externally owned place the forecast feed is requested for.
// Either City or Lat/Lon must be set, depending on the provider.
type Location struct {
	City    string   `json:"city"`
	Country string   `json:"country"`
	Lat     *float64 `json:"lat,omitempty"`
	Lon     *float64 `json:"lon,omitempty"`
}

// Key returns a canonical string key for this location, used in logs.
func (l Location) Key() string {
	if l.City == "" && l.Lat != nil && l.Lon != nil {
		return fmt.Sprintf("%.4f,%.4f", *l.Lat, *l.Lon)
	}
	return l.City + ":" + l.Country
}

// ForecastRecord is one day of forecast, keyed by its normalized UTC date.
type ForecastRecord struct {
	Date          int64   `json:"date"` // UTC midnight, epoch millis
	ConditionID   int     `json:"conditionId"`
	MinTemp       float64 `json:"minTemp"` // Celsius
	MaxTemp       float64 `json:"maxTemp"`
	Humidity      float64 `json:"humidity"` // percent
	Pressure      float64 `json:"pressure"` // hPa
	WindSpeed     float64 `json:"windSpeed"`
	WindDirection float64 `json:"windDirection"` // degrees
}

// ResultSet is an ordered sequence of forecast rows returned by a query.
type ResultSet []ForecastRecord

// Dates returns the date key of every row, in order.
func (rs ResultSet) Dates() []int64 {
	out := make([]int64, len(rs))
	for i, r := range rs {
		out[i] = r.Date
	}
	return out
}
