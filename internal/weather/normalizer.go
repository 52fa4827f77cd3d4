// Package weather fetches and normalizes forecasts from NWS and Open-Meteo
// into the model.WeatherForecast shape. Normalizers are pure functions
// grounded verbatim on the original Python implementation's
// weather/normalizer.py, including its exact unit-conversion rules
// (NWS gridpoint Celsius/km-h/Pa, NWS period and Open-Meteo already in
// Fahrenheit/mph).
package weather

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
	"github.com/aclarkson2013/boz-weather-trader/internal/station"
)

// ParseError wraps a structural normalization failure.
type ParseError struct{ Msg string }

func (e *ParseError) Error() string { return "weather: " + e.Msg }

// --- NWS period forecast ---

type nwsForecastResponse struct {
	Properties struct {
		Periods []nwsPeriod `json:"periods"`
	} `json:"properties"`
}

type nwsPeriod struct {
	Name            string  `json:"name"`
	IsDaytime       bool    `json:"isDaytime"`
	StartTime       string  `json:"startTime"`
	Temperature     float64 `json:"temperature"`
	TemperatureUnit string  `json:"temperatureUnit"`
	WindSpeed       string  `json:"windSpeed"`
}

// NormalizeNWSForecast converts a raw NWS period-forecast JSON body into
// WeatherForecast rows, one per daytime period.
func NormalizeNWSForecast(log *slog.Logger, city model.City, raw []byte) ([]model.WeatherForecast, error) {
	var resp nwsForecastResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("NWS forecast response missing properties.periods for %s: %v", city, err)}
	}

	now := time.Now().UTC()
	var out []model.WeatherForecast

	for _, p := range resp.Properties.Periods {
		if !p.IsDaytime {
			continue
		}
		startTime, err := time.Parse(time.RFC3339, p.StartTime)
		if err != nil {
			log.Warn("skipping malformed NWS forecast period", "city", city, "period", p.Name, "error", err)
			continue
		}

		temp := p.Temperature
		if strings.EqualFold(p.TemperatureUnit, "C") {
			temp = station.CelsiusToFahrenheit(temp)
		}
		wind := parseNWSWindSpeed(p.WindSpeed)

		rawBlob, _ := json.Marshal(p)
		out = append(out, model.WeatherForecast{
			City:              city,
			TargetDate:        civilDate(startTime),
			Source:            model.SourceNWS,
			ForecastHighF:     temp,
			Variables:         model.WeatherVariables{WindSpeedMPH: wind},
			ModelRunTimestamp: &now,
			RawData:           string(rawBlob),
			FetchedAt:         now,
		})
	}
	return out, nil
}

func parseNWSWindSpeed(s string) *float64 {
	if s == "" {
		return nil
	}
	cleaned := strings.TrimSpace(strings.ToLower(strings.ReplaceAll(s, "mph", "")))
	if strings.Contains(cleaned, " to ") {
		parts := strings.Split(cleaned, " to ")
		v, err := strconv.ParseFloat(strings.TrimSpace(parts[len(parts)-1]), 64)
		if err != nil {
			return nil
		}
		return &v
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}

// --- NWS gridpoint ---

type gridpointValueEntry struct {
	ValidTime string  `json:"validTime"`
	Value     float64 `json:"value"`
}

type gridpointVariable struct {
	Values []gridpointValueEntry `json:"values"`
}

type nwsGridpointResponse struct {
	Properties map[string]json.RawMessage `json:"properties"`
}

// NormalizeNWSGridpoint converts a raw NWS gridpoint JSON body into
// WeatherForecast rows, converting Celsius/km-h/Pa to Fahrenheit/mph/mb.
func NormalizeNWSGridpoint(log *slog.Logger, city model.City, raw []byte) ([]model.WeatherForecast, error) {
	var resp nwsGridpointResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, &ParseError{Msg: fmt.Sprintf("NWS gridpoint response missing properties for %s: %v", city, err)}
	}

	maxTemps := extractGridpointValues(resp.Properties, "maxTemperature")
	if len(maxTemps) == 0 {
		log.Warn("no maxTemperature data in NWS gridpoint response", "city", city)
		return nil, nil
	}

	minByDate := valuesByDate(extractGridpointValues(resp.Properties, "minTemperature"))
	humidityByDate := valuesByDate(extractGridpointValues(resp.Properties, "relativeHumidity"))
	windByDate := valuesByDate(extractGridpointValues(resp.Properties, "windSpeed"))
	gustByDate := valuesByDate(extractGridpointValues(resp.Properties, "windGust"))
	dewpointByDate := valuesByDate(extractGridpointValues(resp.Properties, "dewpoint"))
	pressureByDate := valuesByDate(extractGridpointValues(resp.Properties, "pressure"))

	now := time.Now().UTC()
	var out []model.WeatherForecast

	for _, entry := range maxTemps {
		validTimeStr := strings.SplitN(entry.ValidTime, "/", 2)[0]
		validTime, err := time.Parse(time.RFC3339, validTimeStr)
		if err != nil {
			log.Warn("skipping malformed NWS gridpoint entry", "city", city, "error", err)
			continue
		}
		forecastDate := civilDate(validTime)
		highF := station.CelsiusToFahrenheit(entry.Value)

		vars := model.WeatherVariables{}
		if lowC, ok := minByDate[forecastDate]; ok {
			v := station.CelsiusToFahrenheit(lowC)
			vars.TempLowF = &v
		}
		if dewC, ok := dewpointByDate[forecastDate]; ok {
			v := station.CelsiusToFahrenheit(dewC)
			vars.DewPointF = &v
		}
		if h, ok := humidityByDate[forecastDate]; ok {
			v := h
			vars.HumidityPct = &v
		}
		if windKmh, ok := windByDate[forecastDate]; ok {
			v := round1(windKmh * 0.621371)
			vars.WindSpeedMPH = &v
		}
		_ = gustByDate // gust values are read but not stored: WeatherVariables has no gust field
		if pressurePa, ok := pressureByDate[forecastDate]; ok {
			v := round1(pressurePa / 100.0)
			vars.PressureMB = &v
		}

		rawBlob, _ := json.Marshal(entry)
		out = append(out, model.WeatherForecast{
			City:              city,
			TargetDate:        forecastDate,
			Source:            model.SourceNWSGridpoint,
			ForecastHighF:     highF,
			Variables:         vars,
			ModelRunTimestamp: &now,
			RawData:           string(rawBlob),
			FetchedAt:         now,
		})
	}
	return out, nil
}

func extractGridpointValues(properties map[string]json.RawMessage, name string) []gridpointValueEntry {
	raw, ok := properties[name]
	if !ok {
		return nil
	}
	var v gridpointVariable
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil
	}
	return v.Values
}

func valuesByDate(entries []gridpointValueEntry) map[time.Time]float64 {
	result := make(map[time.Time]float64)
	for _, e := range entries {
		validTimeStr := strings.SplitN(e.ValidTime, "/", 2)[0]
		validTime, err := time.Parse(time.RFC3339, validTimeStr)
		if err != nil {
			continue
		}
		d := civilDate(validTime)
		if _, exists := result[d]; !exists {
			result[d] = e.Value
		}
	}
	return result
}

// --- Open-Meteo ---

// OpenMeteoModelDaily is the subset of the Open-Meteo "daily" block used
// for one model's results, already in Fahrenheit/mph since requested that
// way.
type OpenMeteoModelDaily struct {
	Time               []string  `json:"time"`
	TemperatureMax     []*float64 `json:"temperature_2m_max"`
	TemperatureMin     []*float64 `json:"temperature_2m_min"`
	WindSpeedMax       []*float64 `json:"windspeed_10m_max"`
	WindGustMax        []*float64 `json:"windgusts_10m_max"`
	RelativeHumidityMax []*float64 `json:"relative_humidity_2m_max"`
	CloudCoverMean     []*float64 `json:"cloudcover_mean"`
	DewpointMin        []*float64 `json:"dewpoint_2m_min"`
	SurfacePressureMean []*float64 `json:"surface_pressure_mean"`
}

// NormalizeOpenMeteo converts one model's daily block into WeatherForecast
// rows. No unit conversion needed: the request asked for Fahrenheit/mph.
func NormalizeOpenMeteo(log *slog.Logger, city model.City, sourceLabel model.WeatherSource, daily OpenMeteoModelDaily) ([]model.WeatherForecast, error) {
	if len(daily.Time) == 0 {
		return nil, &ParseError{Msg: fmt.Sprintf("Open-Meteo daily data missing 'time' array for %s", city)}
	}

	now := time.Now().UTC()
	var out []model.WeatherForecast

	for i, dateStr := range daily.Time {
		forecastDate, err := time.Parse("2006-01-02", dateStr)
		if err != nil {
			log.Warn("skipping malformed Open-Meteo daily entry", "city", city, "source", sourceLabel, "index", i, "error", err)
			continue
		}

		highF := safeFloatAt(daily.TemperatureMax, i)
		if highF == nil {
			log.Warn("missing temp_max in Open-Meteo response", "city", city, "source", sourceLabel, "date", dateStr)
			continue
		}

		vars := model.WeatherVariables{
			TempLowF:      safeFloatAt(daily.TemperatureMin, i),
			HumidityPct:   safeFloatAt(daily.RelativeHumidityMax, i),
			WindSpeedMPH:  safeFloatAt(daily.WindSpeedMax, i),
			CloudCoverPct: safeFloatAt(daily.CloudCoverMean, i),
			DewPointF:     safeFloatAt(daily.DewpointMin, i),
			PressureMB:    safeFloatAt(daily.SurfacePressureMean, i),
		}

		out = append(out, model.WeatherForecast{
			City:              city,
			TargetDate:        civilDate(forecastDate),
			Source:            sourceLabel,
			ForecastHighF:     *highF,
			Variables:         vars,
			ModelRunTimestamp: &now,
			RawData:           fmt.Sprintf(`{"model_daily_index":%d,"date":%q,"source":%q}`, i, dateStr, sourceLabel),
			FetchedAt:         now,
		})
	}
	return out, nil
}

func safeFloatAt(values []*float64, index int) *float64 {
	if index < 0 || index >= len(values) {
		return nil
	}
	return values[index]
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func round1(v float64) float64 {
	if v >= 0 {
		return float64(int64(v*10+0.5)) / 10
	}
	return float64(int64(v*10-0.5)) / 10
}
