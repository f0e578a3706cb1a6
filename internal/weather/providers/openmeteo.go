package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/sony/gobreaker"

	"github.com/i474232898/forecast-cache/internal/weather"
)

// OpenMeteoProvider fetches and decodes the Open-Meteo daily forecast.
// It needs no API key but requires latitude and longitude.
type OpenMeteoProvider struct {
	name    string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

const openMeteoDaily = "weather_code,temperature_2m_max,temperature_2m_min,wind_speed_10m_max," +
	"wind_direction_10m_dominant,relative_humidity_2m_mean,surface_pressure_mean"

func NewOpenMeteoProvider(opts Options) *OpenMeteoProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.open-meteo.com/v1/forecast"
	}

	return &OpenMeteoProvider{
		name:    "openmeteo",
		baseURL: baseURL,
		days:    min(daysOrDefault(opts.Days), 16),
		httpCfg: newHTTPConfig(opts),
		circuit: newCircuitBreaker("openmeteo"),
	}
}

func (p *OpenMeteoProvider) Name() string {
	return p.name
}

func (p *OpenMeteoProvider) Fetch(ctx context.Context, loc weather.Location) ([]byte, error) {
	if loc.Lat == nil || loc.Lon == nil {
		return nil, &weather.FetchError{Provider: p.name, Err: errors.New("openmeteo requires latitude and longitude")}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("latitude", fmt.Sprintf("%f", *loc.Lat))
		values.Set("longitude", fmt.Sprintf("%f", *loc.Lon))
		values.Set("daily", openMeteoDaily)
		values.Set("timezone", "UTC")
		values.Set("timeformat", "unixtime")
		values.Set("wind_speed_unit", "ms")
		values.Set("forecast_days", strconv.Itoa(p.days))

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	return fetchBody(ctx, p.name, p.httpCfg, p.circuit, buildRequest)
}

type openMeteoPayload struct {
	Error  bool   `json:"error"`
	Reason string `json:"reason"`
	Daily  struct {
		Time        []int64   `json:"time"`
		WeatherCode []int     `json:"weather_code"`
		TempMax     []float64 `json:"temperature_2m_max"`
		TempMin     []float64 `json:"temperature_2m_min"`
		WindMax     []float64 `json:"wind_speed_10m_max"`
		WindDir     []float64 `json:"wind_direction_10m_dominant"`
		Humidity    []float64 `json:"relative_humidity_2m_mean"`
		Pressure    []float64 `json:"surface_pressure_mean"`
	} `json:"daily"`
}

// Decode parses the column-oriented daily payload. Every column must have one
// value per day.
func (p *OpenMeteoProvider) Decode(payload []byte) ([]weather.ForecastRecord, error) {
	var body openMeteoPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, decodeError(p.name, "", err)
	}
	if body.Error {
		return nil, decodeError(p.name, "error", errors.New(body.Reason))
	}

	d := body.Daily
	n := len(d.Time)
	for _, l := range []int{len(d.WeatherCode), len(d.TempMax), len(d.TempMin), len(d.WindMax), len(d.WindDir), len(d.Humidity), len(d.Pressure)} {
		if l != n {
			return nil, decodeError(p.name, "", fmt.Errorf("daily columns have mismatched lengths (%d vs %d)", l, n))
		}
	}

	records := make([]weather.ForecastRecord, 0, n)
	for i := 0; i < n; i++ {
		records = append(records, weather.ForecastRecord{
			Date:          weather.Normalize(d.Time[i] * 1000),
			ConditionID:   mapOpenMeteoCondition(d.WeatherCode[i]),
			MinTemp:       d.TempMin[i],
			MaxTemp:       d.TempMax[i],
			Humidity:      d.Humidity[i],
			Pressure:      d.Pressure[i],
			WindSpeed:     d.WindMax[i],
			WindDirection: d.WindDir[i],
		})
	}
	return records, nil
}

// mapOpenMeteoCondition translates WMO weather codes into the OpenWeatherMap
// id vocabulary (simplified).
func mapOpenMeteoCondition(code int) int {
	switch {
	case code == 0:
		return 800
	case code >= 1 && code <= 3:
		return 800 + code
	case code == 45 || code == 48:
		return 741
	case code >= 51 && code <= 57:
		return 300
	case (code >= 61 && code <= 67) || (code >= 80 && code <= 82):
		return 500
	case (code >= 71 && code <= 77) || code == 85 || code == 86:
		return 600
	case code >= 95:
		return 200
	default:
		return 0
	}
}

var _ weather.Provider = (*OpenMeteoProvider)(nil)
