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

// WeatherAPIProvider fetches and decodes the WeatherAPI.com forecast.
type WeatherAPIProvider struct {
	name    string
	apiKey  string
	baseURL string
	days    int
	httpCfg HTTPClientConfig
	circuit *gobreaker.CircuitBreaker
}

func NewWeatherAPIProvider(apiKey string, opts Options) *WeatherAPIProvider {
	baseURL := opts.BaseURL
	if baseURL == "" {
		baseURL = "https://api.weatherapi.com/v1/forecast.json"
	}

	return &WeatherAPIProvider{
		name:    "weatherapi",
		apiKey:  apiKey,
		baseURL: baseURL,
		days:    daysOrDefault(opts.Days),
		httpCfg: newHTTPConfig(opts),
		circuit: newCircuitBreaker("weatherapi"),
	}
}

func (p *WeatherAPIProvider) Name() string {
	return p.name
}

func (p *WeatherAPIProvider) Fetch(ctx context.Context, loc weather.Location) ([]byte, error) {
	if p.apiKey == "" {
		return nil, &weather.FetchError{Provider: p.name, Err: errors.New("weatherapi api key is not configured")}
	}

	buildRequest := func() (*http.Request, error) {
		values := url.Values{}
		values.Set("key", p.apiKey)
		values.Set("days", strconv.Itoa(p.days))
		values.Set("aqi", "no")
		values.Set("alerts", "no")
		// WeatherAPI uses "q" for location; it accepts "city,country" or "lat,lon".
		if loc.Lat != nil && loc.Lon != nil {
			values.Set("q", fmt.Sprintf("%f,%f", *loc.Lat, *loc.Lon))
		} else {
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

type weatherAPIPayload struct {
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Forecast struct {
		ForecastDay []struct {
			DateEpoch int64 `json:"date_epoch"`
			Day       struct {
				MaxTempC    float64 `json:"maxtemp_c"`
				MinTempC    float64 `json:"mintemp_c"`
				MaxWindKph  float64 `json:"maxwind_kph"`
				AvgHumidity float64 `json:"avghumidity"`
				Condition   struct {
					Code int `json:"code"`
				} `json:"condition"`
			} `json:"day"`
			Hour []struct {
				PressureMb float64 `json:"pressure_mb"`
				WindDegree float64 `json:"wind_degree"`
			} `json:"hour"`
		} `json:"forecastday"`
	} `json:"forecast"`
}

// Decode parses a forecast payload. Day-level pressure and wind direction are
// not published, so they are derived from the hourly series: mean pressure
// and the midday wind direction.
func (p *WeatherAPIProvider) Decode(payload []byte) ([]weather.ForecastRecord, error) {
	var body weatherAPIPayload
	if err := json.Unmarshal(payload, &body); err != nil {
		return nil, decodeError(p.name, "", err)
	}
	if body.Error != nil {
		return nil, decodeError(p.name, strconv.Itoa(body.Error.Code), errors.New(body.Error.Message))
	}

	days := body.Forecast.ForecastDay
	records := make([]weather.ForecastRecord, 0, len(days))
	for _, d := range days {
		var pressure, degrees float64
		if n := len(d.Hour); n > 0 {
			for _, h := range d.Hour {
				pressure += h.PressureMb
			}
			pressure /= float64(n)
			degrees = d.Hour[min(12, n-1)].WindDegree
		}

		records = append(records, weather.ForecastRecord{
			Date:          weather.Normalize(d.DateEpoch * 1000),
			ConditionID:   mapWeatherAPICondition(d.Day.Condition.Code),
			MinTemp:       d.Day.MinTempC,
			MaxTemp:       d.Day.MaxTempC,
			Humidity:      d.Day.AvgHumidity,
			Pressure:      pressure,
			WindSpeed:     d.Day.MaxWindKph / 3.6, // kph to m/s
			WindDirection: degrees,
		})
	}
	return records, nil
}

// mapWeatherAPICondition translates WeatherAPI condition codes into the
// OpenWeatherMap id vocabulary.
func mapWeatherAPICondition(code int) int {
	switch code {
	case 1000:
		return 800 // sunny / clear
	case 1003:
		return 802
	case 1006:
		return 803
	case 1009:
		return 804
	case 1030, 1135, 1147:
		return 741 // mist / fog
	case 1087, 1273, 1276, 1279, 1282:
		return 211 // thunder
	case 1063, 1150, 1153, 1168, 1171, 1180, 1183, 1198:
		return 500 // light rain / drizzle
	case 1186, 1189, 1192, 1195, 1201, 1240, 1243, 1246:
		return 502
	case 1066, 1069, 1072, 1114, 1117, 1204, 1207, 1210, 1213, 1216, 1219, 1222, 1225,
		1237, 1249, 1252, 1255, 1258, 1261, 1264:
		return 601 // snow, sleet, ice pellets
	default:
		return 0
	}
}

var _ weather.Provider = (*WeatherAPIProvider)(nil)
