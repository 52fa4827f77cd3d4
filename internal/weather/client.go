package weather

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aclarkson2013/boz-weather-trader/internal/httpfetch"
	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/ratelimit"
	"github.com/aclarkson2013/boz-weather-trader/internal/station"
)

// GridPoint identifies a NWS forecast office and gridpoint coordinate.
type GridPoint struct {
	Office string
	X      int
	Y      int
}

// gridCache is the per-process, in-memory, write-once cache of
// lat/lon -> gridpoint lookups. Geographic constants never change during
// a process lifetime, so it is never invalidated.
type gridCache struct {
	mu   sync.Mutex
	data map[model.City]GridPoint
}

func newGridCache() *gridCache {
	return &gridCache{data: make(map[model.City]GridPoint)}
}

type pointsResponse struct {
	Properties struct {
		GridID string `json:"gridId"`
		GridX  int    `json:"gridX"`
		GridY  int    `json:"gridY"`
	} `json:"properties"`
}

// Client fetches and normalizes weather forecasts from NWS and Open-Meteo.
type Client struct {
	log       *slog.Logger
	userAgent string
	grid      *gridCache
}

// NewClient builds a weather Client. userAgent is sent on every NWS
// request, per the configured User-Agent requirement.
func NewClient(log *slog.Logger, userAgent string) *Client {
	return &Client{log: log, userAgent: userAgent, grid: newGridCache()}
}

// GridPointFor resolves and caches a city's NWS office/x/y coordinate.
func (c *Client) GridPointFor(ctx context.Context, city model.City) (GridPoint, error) {
	c.grid.mu.Lock()
	if gp, ok := c.grid.data[city]; ok {
		c.grid.mu.Unlock()
		return gp, nil
	}
	c.grid.mu.Unlock()

	cfg, err := station.Get(city)
	if err != nil {
		return GridPoint{}, err
	}

	url := fmt.Sprintf("https://api.weather.gov/points/%.4f,%.4f", cfg.Latitude, cfg.Longitude)
	var resp pointsResponse
	if err := httpfetch.FetchJSON(ctx, ratelimit.NWS, url, httpfetch.Options{UserAgent: c.userAgent}, &resp); err != nil {
		return GridPoint{}, fmt.Errorf("weather: fetch gridpoint for %s: %w", city, err)
	}
	gp := GridPoint{Office: resp.Properties.GridID, X: resp.Properties.GridX, Y: resp.Properties.GridY}

	c.grid.mu.Lock()
	c.grid.data[city] = gp
	c.grid.mu.Unlock()
	return gp, nil
}

// FetchNWSForecast fetches and normalizes the NWS 12-hour period forecast
// for a city.
func (c *Client) FetchNWSForecast(ctx context.Context, city model.City) ([]model.WeatherForecast, error) {
	gp, err := c.GridPointFor(ctx, city)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://api.weather.gov/gridpoints/%s/%d,%d/forecast", gp.Office, gp.X, gp.Y)
	raw, err := httpfetch.FetchText(ctx, ratelimit.NWS, url, httpfetch.Options{UserAgent: c.userAgent})
	if err != nil {
		return nil, fmt.Errorf("weather: fetch NWS forecast for %s: %w", city, err)
	}
	return NormalizeNWSForecast(c.log, city, []byte(raw))
}

// FetchNWSGridpoint fetches and normalizes the NWS raw gridpoint data for
// a city.
func (c *Client) FetchNWSGridpoint(ctx context.Context, city model.City) ([]model.WeatherForecast, error) {
	gp, err := c.GridPointFor(ctx, city)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("https://api.weather.gov/gridpoints/%s/%d,%d", gp.Office, gp.X, gp.Y)
	raw, err := httpfetch.FetchText(ctx, ratelimit.NWS, url, httpfetch.Options{UserAgent: c.userAgent})
	if err != nil {
		return nil, fmt.Errorf("weather: fetch NWS gridpoint for %s: %w", city, err)
	}
	return NormalizeNWSGridpoint(c.log, city, []byte(raw))
}

// FetchCLIReport fetches the raw NWS daily climate report text for a
// city's station.
func (c *Client) FetchCLIReport(ctx context.Context, city model.City) (string, error) {
	cfg, err := station.Get(city)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf(
		"https://forecast.weather.gov/product.php?site=%s&issuedby=%s&product=CLI&format=txt",
		cfg.NWSOffice, cfg.StationID,
	)
	raw, err := httpfetch.FetchText(ctx, ratelimit.NWS, url, httpfetch.Options{UserAgent: c.userAgent})
	if err != nil {
		return "", fmt.Errorf("weather: fetch CLI report for %s: %w", city, err)
	}
	return raw, nil
}

var openMeteoModels = []struct {
	param string
	label model.WeatherSource
}{
	{"gfs_seamless", model.SourceOpenMeteoGFS},
	{"ecmwf_ifs025", model.SourceOpenMeteoECMWF},
	{"icon_seamless", model.SourceOpenMeteoICON},
}

const openMeteoDailyVars = "temperature_2m_max,temperature_2m_min,windspeed_10m_max,windgusts_10m_max," +
	"relative_humidity_2m_max,cloudcover_mean,dewpoint_2m_min,surface_pressure_mean"

// FetchOpenMeteo fetches and normalizes the multi-model Open-Meteo daily
// forecast for a city, trying the nested-per-model response shape first
// and falling back to suffix-keyed remapping of a shared daily block.
func (c *Client) FetchOpenMeteo(ctx context.Context, city model.City) ([]model.WeatherForecast, error) {
	cfg, err := station.Get(city)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf(
		"https://api.open-meteo.com/v1/forecast?latitude=%.4f&longitude=%.4f&daily=%s"+
			"&models=gfs_seamless,ecmwf_ifs025,icon_seamless&temperature_unit=fahrenheit"+
			"&windspeed_unit=mph&timezone=%s&forecast_days=7",
		cfg.Latitude, cfg.Longitude, openMeteoDailyVars, cfg.IANATimezone,
	)

	var raw map[string]json.RawMessage
	if err := httpfetch.FetchJSON(ctx, ratelimit.OpenMeteo, url, httpfetch.Options{}, &raw); err != nil {
		return nil, fmt.Errorf("weather: fetch Open-Meteo for %s: %w", city, err)
	}

	var out []model.WeatherForecast
	for _, m := range openMeteoModels {
		daily, ok := extractModelDaily(raw, m.param)
		if !ok {
			continue
		}
		rows, err := NormalizeOpenMeteo(c.log, city, m.label, daily)
		if err != nil {
			c.log.Warn("open-meteo normalize failed", "city", city, "model", m.param, "error", err)
			continue
		}
		out = append(out, rows...)
	}
	return out, nil
}

// extractModelDaily tries the nested "daily_<model>" key first (one
// response shape Open-Meteo's multi-model API returns), then falls back
// to remapping a shared "daily" block whose variable names are suffixed
// with the model name.
func extractModelDaily(raw map[string]json.RawMessage, modelParam string) (OpenMeteoModelDaily, bool) {
	if nested, ok := raw["daily_"+modelParam]; ok {
		var daily OpenMeteoModelDaily
		if err := json.Unmarshal(nested, &daily); err == nil && len(daily.Time) > 0 {
			return daily, true
		}
	}

	sharedRaw, ok := raw["daily"]
	if !ok {
		return OpenMeteoModelDaily{}, false
	}
	var shared map[string]json.RawMessage
	if err := json.Unmarshal(sharedRaw, &shared); err != nil {
		return OpenMeteoModelDaily{}, false
	}

	remapped := make(map[string]json.RawMessage)
	suffix := "_" + modelParam
	for key, val := range shared {
		if key == "time" {
			remapped["time"] = val
			continue
		}
		if len(key) > len(suffix) && key[len(key)-len(suffix):] == suffix {
			remapped[key[:len(key)-len(suffix)]] = val
		}
	}
	if len(remapped) <= 1 {
		return OpenMeteoModelDaily{}, false
	}

	blob, _ := json.Marshal(remapped)
	var daily OpenMeteoModelDaily
	if err := json.Unmarshal(blob, &daily); err != nil || len(daily.Time) == 0 {
		return OpenMeteoModelDaily{}, false
	}
	return daily, true
}
