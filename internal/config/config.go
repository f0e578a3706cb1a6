package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/hashicorp/go-multierror"
	"github.com/joho/godotenv"

	"github.com/i474232898/forecast-cache/internal/logger"
	"github.com/i474232898/forecast-cache/internal/weather"
)

type AppConfig struct {
	// FeedProvider selects the forecast feed: openweather, weatherapi or openmeteo.
	FeedProvider      string `validate:"oneof=openweather weatherapi openmeteo"`
	OpenWeatherAPIKey string `validate:"required_if=FeedProvider openweather"`
	WeatherAPIKey     string `validate:"required_if=FeedProvider weatherapi"`

	Location     weather.Location
	ForecastDays int `validate:"min=1,max=16"`

	// SyncInterval controls how often the cache is refreshed.
	SyncInterval  time.Duration `validate:"min=1m"`
	HTTPTimeout   time.Duration `validate:"gt=0"`
	FeedRateLimit float64       `validate:"gte=0"`

	StoreDriver string `validate:"oneof=sqlite memory"`
	DBPath      string `validate:"required_if=StoreDriver sqlite"`

	PreferencesFile      string
	NotificationsEnabled bool
	NotifyWebhookURL     string `validate:"omitempty,url"`

	LogLevel string `validate:"oneof=debug info warn error"`
	Port     string `validate:"required,numeric"`
}

var validate = validator.New()

// Load reads configuration from environment with sensible defaults.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil {
		logger.Debugf("config: no .env file found or error loading it: %v", err)
	}
	return FromEnv()
}

// FromEnv builds the configuration from the current environment only. Every
// problem found is reported, not just the first.
func FromEnv() (*AppConfig, error) {
	var errs *multierror.Error

	cfg := &AppConfig{
		FeedProvider:      strings.ToLower(getenvDefault("FEED_PROVIDER", "openweather")),
		OpenWeatherAPIKey: os.Getenv("OPENWEATHER_API_KEY"),
		WeatherAPIKey:     os.Getenv("WEATHERAPI_API_KEY"),
		ForecastDays:      getenvInt("FORECAST_DAYS", 14),
		StoreDriver:       strings.ToLower(getenvDefault("STORE_DRIVER", "sqlite")),
		DBPath:            getenvDefault("DB_PATH", "forecast.db"),
		PreferencesFile:   os.Getenv("PREFERENCES_FILE"),
		NotifyWebhookURL:  os.Getenv("NOTIFY_WEBHOOK_URL"),
		LogLevel:          strings.ToLower(getenvDefault("LOG_LEVEL", "info")),
		Port:              getenvDefault("PORT", "8080"),
	}

	var err error
	// The original app synced every 3 hours.
	if cfg.SyncInterval, err = getenvDuration("SYNC_INTERVAL", 3*time.Hour); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.HTTPTimeout, err = getenvDuration("HTTP_TIMEOUT", 10*time.Second); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.FeedRateLimit, err = getenvFloat("FEED_RATE_LIMIT", 1); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.NotificationsEnabled, err = getenvBool("NOTIFICATIONS_ENABLED", true); err != nil {
		errs = multierror.Append(errs, err)
	}

	loc, err := loadLocation()
	if err != nil {
		errs = multierror.Append(errs, err)
	}
	cfg.Location = loc

	if err := validate.Struct(cfg); err != nil {
		errs = multierror.Append(errs, err)
	}
	if cfg.FeedProvider == "openmeteo" && (loc.Lat == nil || loc.Lon == nil) {
		errs = multierror.Append(errs, fmt.Errorf("openmeteo requires WEATHER_LOCATION_LAT and WEATHER_LOCATION_LON"))
	}
	if loc.City == "" && (loc.Lat == nil || loc.Lon == nil) {
		errs = multierror.Append(errs, fmt.Errorf("either WEATHER_LOCATION_CITY or WEATHER_LOCATION_LAT/LON must be set"))
	}

	if err := errs.ErrorOrNil(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadLocation() (weather.Location, error) {
	loc := weather.Location{
		City:    strings.TrimSpace(os.Getenv("WEATHER_LOCATION_CITY")),
		Country: strings.TrimSpace(os.Getenv("WEATHER_LOCATION_COUNTRY")),
	}

	latStr := os.Getenv("WEATHER_LOCATION_LAT")
	lonStr := os.Getenv("WEATHER_LOCATION_LON")
	if latStr == "" && lonStr == "" {
		return loc, nil
	}
	if latStr == "" || lonStr == "" {
		return loc, fmt.Errorf("WEATHER_LOCATION_LAT and WEATHER_LOCATION_LON must be set together")
	}

	lat, err := strconv.ParseFloat(latStr, 64)
	if err != nil || lat < -90 || lat > 90 {
		return loc, fmt.Errorf("invalid WEATHER_LOCATION_LAT %q", latStr)
	}
	lon, err := strconv.ParseFloat(lonStr, 64)
	if err != nil || lon < -180 || lon > 180 {
		return loc, fmt.Errorf("invalid WEATHER_LOCATION_LON %q", lonStr)
	}
	loc.Lat, loc.Lon = &lat, &lon
	return loc, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getenvInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err == nil {
			return n
		}
	}
	return def
}

func getenvDuration(key string, def time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return d, nil
}

func getenvFloat(key string, def float64) (float64, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return f, nil
}

func getenvBool(key string, def bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def, fmt.Errorf("invalid %s: %w", key, err)
	}
	return b, nil
}
