package providers

import (
	"bytes"
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

// OpenWeatherProvider fetches and decodes the OpenWeatherMap daily forecast.
// Its condition ids are the vocabulary the store uses, so they pass through.
type OpenWeatherProvider struct {
	name    string
	apiKey  string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewOpenWeatherProvider(apiKey string, opts Options) *OpenWeatherProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openweathermap.org/data/2.5/forecast/daily"
	}

	return &OpenWeatherProvider{
		name:    "openweathermap",
		apiKey:  apiKey,
		baseURL: baseURL,
		days:    daysOrDefault(opts.Days),
		httpCfg: newHTTPConfig(opts),
		circuit: newCircuitBreaker("openweather"),
	}
}

func (p *OpenWeatherProvider) Name() string {
	return p.name
}

func (p *OpenWeatherProvider) Fetch(ctx context.Context, loc weather.Location) ([]byte, error) {
	if p.apiKey == "" {
		return nil, &weather.FetchError{Provider: p.name, Err: errors.New("openweather api key is not configured")}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("appid", p.apiKey)
		values.Set("units", "metric")
		values.Set("cnt", strconv.Itoa(p.days))

		if loc.Lat != nil && loc.Lon != nil {
			values.Set("lat", fmt.Sprintf("%f", *loc.Lat))
			values.Set("lon", fmt.Sprintf("%f", *loc.Lon))
		} else {
			// city,country
			q := loc.City
			if loc.Country != "" {
				q = fmt.Sprintf("%s,%s", loc.City, loc.Country)
			}
			values.Set("q", q)
		}

		u := fmt.Sprintf("%s?%s", p.baseURL, values.Encode())
		return http.NewRequest(http.MethodGet, u, nil)
	}

	return fetchBody(ctx, p.name, p.httpCfg, p.circuit, buildRequest)
}

type openWeatherPayload struct {
	Cod     json.RawMessage `json:"cod"`
	Message json.RawMessage `json:"message"`
	List    []struct {
		Dt   int64 `json:"dt"`
		Temp struct {
			Min float64 `json:"min"`
			Max float64 `json:"max"`
		} `json:"temp"`
		Pressure float64 `json:"pressure"`
		Humidity float64 `json:"humidity"`
		Speed    float64 `json:"speed"`
		Deg      float64 `json:"deg"`
		Weather  []struct {
			ID int `json:"id"`
		} `json:"weather"`
	} `json:"list"`
}

// Decode parses a daily forecast payload. The "cod" field may be a string or
// a number; anything other than 200 is an embedded error code.
func (p *OpenWeatherProvider) Decode(payload []byte) ([]weather.ForecastRecord, error) {
	var body openWeatherPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, decodeError(p.name, "", err)
	}

	if code := rawCode(body.Cod); code != "" && code != "200" {
		return nil, decodeError(p.name, code, fmt.Errorf("feed reported %s", bytes.Trim(body.Message, `"`)))
	}

	records := make([]weather.ForecastRecord, 0, len(body.List))
	for _, day := range body.List {
		conditionID := 0
		if len(day.Weather) > 0 {
			conditionID = day.Weather[0].ID
		}
		records = append(records, weather.ForecastRecord{
			Date:          weather.Normalize(day.Dt * 1000),
			ConditionID:   conditionID,
			MinTemp:       day.Temp.Min,
			MaxTemp:       day.Temp.Max,
			Humidity:      day.Humidity,
			Pressure:      day.Pressure,
			WindSpeed:     day.Speed,
			WindDirection: day.Deg,
		})
	}
	return records, nil
}

func rawCode(raw json.RawMessage) string {
	return string(bytes.Trim(bytes.TrimSpace(raw), `"`))
}

var _ weather.Provider = (*OpenWeatherProvider)(nil)
