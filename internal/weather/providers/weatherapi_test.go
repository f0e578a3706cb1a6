package providers

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/i474232898/forecast-cache/internal/weather"
)

const weatherAPIForecast = `{
  "location": {"name": "London", "country": "United Kingdom"},
  "forecast": {
    "forecastday": [
      {
        "date": "2024-03-10",
        "date_epoch": 1710028800,
        "day": {
          "maxtemp_c": 12.5, "mintemp_c": 4.1, "maxwind_kph": 36.0, "avghumidity": 81,
          "condition": {"text": "Patchy rain possible", "code": 1063}
        },
        "hour": [
          {"pressure_mb": 1010, "wind_degree": 180},
          {"pressure_mb": 1014, "wind_degree": 200}
        ]
      }
    ]
  }
}`

func TestWeatherAPI_FetchAndDecode(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		assert.Equal(t, "k", q.Get("key"))
		assert.Equal(t, "London,UK", q.Get("q"))
		assert.Equal(t, "2", q.Get("days"))
		w.Write([]byte(weatherAPIForecast))
	}))
	defer srv.Close()

	p := NewWeatherAPIProvider("k", testOptions(srv))
	assert.Equal(t, "weatherapi", p.Name())

	payload, err := p.Fetch(context.Background(), weather.Location{City: "London", Country: "UK"})
	require.NoError(t, err)

	records, err := p.Decode(payload)
	require.NoError(t, err)
	require.Len(t, records, 1)

	r := records[0]
	assert.Equal(t, int64(1710028800000), r.Date)
	assert.Equal(t, 500, r.ConditionID)
	assert.Equal(t, weather.ConditionRain, weather.ConditionForID(r.ConditionID))
	assert.Equal(t, 4.1, r.MinTemp)
	assert.Equal(t, 12.5, r.MaxTemp)
	assert.Equal(t, 81.0, r.Humidity)
	assert.Equal(t, 1012.0, r.Pressure)
	assert.InDelta(t, 10.0, r.WindSpeed, 1e-9)
	assert.Equal(t, 200.0, r.WindDirection)
}

func TestWeatherAPI_DecodeEmbeddedError(t *testing.T) {
	_, err := NewWeatherAPIProvider("k", Options{}).
		Decode([]byte(`{"error":{"code":1006,"message":"No matching location found."}}`))

	var de *weather.DecodeError
	require.ErrorAs(t, err, &de)
	assert.Equal(t, "1006", de.Code)
	assert.Contains(t, err.Error(), "No matching location")
}

func TestWeatherAPI_ConditionMapping(t *testing.T) {
	assert.Equal(t, weather.ConditionClear, weather.ConditionForID(mapWeatherAPICondition(1000)))
	assert.Equal(t, weather.ConditionCloudy, weather.ConditionForID(mapWeatherAPICondition(1009)))
	assert.Equal(t, weather.ConditionMist, weather.ConditionForID(mapWeatherAPICondition(1135)))
	assert.Equal(t, weather.ConditionStorm, weather.ConditionForID(mapWeatherAPICondition(1276)))
	assert.Equal(t, weather.ConditionSnow, weather.ConditionForID(mapWeatherAPICondition(1225)))
	assert.Equal(t, weather.ConditionUnknown, weather.ConditionForID(mapWeatherAPICondition(42)))
}
