// Package features extracts the fixed 21-float feature vector used by the
// ML ensemble from weather forecast data. Pure — no I/O, no database
// access. Grounded verbatim on the original Python implementation's
// prediction/features.py, including its fixed feature ordering.
package features

import (
	"math"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// KnownSources lists forecast sources in the fixed order used for feature
// columns.
var KnownSources = []model.WeatherSource{
	model.SourceNWS,
	model.SourceOpenMeteoECMWF,
	model.SourceOpenMeteoGFS,
	model.SourceOpenMeteoICON,
}

// CityCodes lists cities in the fixed order used for one-hot encoding.
var CityCodes = model.AllCities

// Names lists feature names matching the output order of Extract /
// ExtractRow.
var Names = []string{
	"nws_high_f", "ecmwf_high_f", "gfs_high_f", "icon_high_f",
	"nws_low_f", "ecmwf_low_f", "gfs_low_f", "icon_low_f",
	"humidity_pct", "wind_speed_mph", "cloud_cover_pct",
	"spread_f", "source_count",
	"month", "day_of_year", "sin_month", "cos_month",
	"city_nyc", "city_chi", "city_mia", "city_aus",
}

// NumFeatures is the fixed feature vector dimensionality.
var NumFeatures = len(Names)

// NWSVars carries the three NWS-sourced supplementary variables used as
// features, each nil if unavailable.
type NWSVars struct {
	HumidityPct   *float64
	WindSpeedMPH  *float64
	CloudCoverPct *float64
}

// Extract builds the feature vector from a set of forecasts for one
// city/date, indexing by source and delegating to ExtractRow.
func Extract(forecasts []model.WeatherForecast, city model.City, targetDate time.Time) []float64 {
	bySource := make(map[model.WeatherSource]model.WeatherForecast)
	for _, fc := range forecasts {
		bySource[fc.Source] = fc
	}

	sourceHighs := make(map[model.WeatherSource]float64)
	sourceLows := make(map[model.WeatherSource]float64)
	for _, src := range KnownSources {
		if fc, ok := bySource[src]; ok {
			sourceHighs[src] = fc.ForecastHighF
			if fc.Variables.TempLowF != nil {
				sourceLows[src] = *fc.Variables.TempLowF
			}
		}
	}

	var nwsVars NWSVars
	if fc, ok := bySource[model.SourceNWS]; ok {
		nwsVars = NWSVars{
			HumidityPct:   fc.Variables.HumidityPct,
			WindSpeedMPH:  fc.Variables.WindSpeedMPH,
			CloudCoverPct: fc.Variables.CloudCoverPct,
		}
	}

	return ExtractRow(sourceHighs, sourceLows, nwsVars, city, int(targetDate.Month()), targetDate.YearDay())
}

// ExtractRow builds the feature vector from pre-processed data (e.g. a
// database query during training, rather than live forecasts).
func ExtractRow(sourceHighs, sourceLows map[model.WeatherSource]float64, nwsVars NWSVars, city model.City, month, dayOfYear int) []float64 {
	out := make([]float64, 0, NumFeatures)

	for _, src := range KnownSources {
		if v, ok := sourceHighs[src]; ok {
			out = append(out, v)
		} else {
			out = append(out, math.NaN())
		}
	}
	for _, src := range KnownSources {
		if v, ok := sourceLows[src]; ok {
			out = append(out, v)
		} else {
			out = append(out, math.NaN())
		}
	}

	out = append(out, orNaN(nwsVars.HumidityPct), orNaN(nwsVars.WindSpeedMPH), orNaN(nwsVars.CloudCoverPct))

	highs := make([]float64, 0, len(sourceHighs))
	for _, v := range sourceHighs {
		highs = append(highs, v)
	}
	var spread float64
	switch {
	case len(highs) >= 2:
		lo, hi := highs[0], highs[0]
		for _, v := range highs {
			if v < lo {
				lo = v
			}
			if v > hi {
				hi = v
			}
		}
		spread = hi - lo
	case len(highs) == 1:
		spread = 0.0
	default:
		spread = math.NaN()
	}
	out = append(out, spread, float64(len(highs)))

	out = append(out, float64(month), float64(dayOfYear),
		math.Sin(2*math.Pi*float64(month)/12), math.Cos(2*math.Pi*float64(month)/12))

	for _, code := range CityCodes {
		if city == code {
			out = append(out, 1.0)
		} else {
			out = append(out, 0.0)
		}
	}

	return out
}

func orNaN(v *float64) float64 {
	if v == nil {
		return math.NaN()
	}
	return *v
}
