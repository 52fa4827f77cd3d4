// Package station holds the static catalog of weather stations and cities
// this system trades, plus the unit-conversion and local-standard-time
// helpers that depend on it. Coordinates, station IDs, and UTC offsets are
// geographic constants — this package never mutates at runtime.
package station

import (
	"fmt"
	"time"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

// Config describes one city's weather station and its fixed local-standard
// time offset from UTC. Offsets ignore DST by design: Kalshi's settlement
// calendar runs on the station's standard time, not wall-clock local time.
type Config struct {
	City              model.City
	StationID         string
	StationName       string
	Latitude          float64
	Longitude         float64
	NWSOffice         string
	IANATimezone      string
	StandardUTCOffset int // hours, e.g. -5 for America/New_York standard time
}

// Catalog is the fixed set of supported stations, keyed by city code.
var Catalog = map[model.City]Config{
	model.CityNYC: {
		City: model.CityNYC, StationID: "KNYC", StationName: "Central Park",
		Latitude: 40.7828, Longitude: -73.9653, NWSOffice: "OKX",
		IANATimezone: "America/New_York", StandardUTCOffset: -5,
	},
	model.CityCHI: {
		City: model.CityCHI, StationID: "KMDW", StationName: "Midway",
		Latitude: 41.7868, Longitude: -87.7522, NWSOffice: "LOT",
		IANATimezone: "America/Chicago", StandardUTCOffset: -6,
	},
	model.CityMIA: {
		City: model.CityMIA, StationID: "KMIA", StationName: "Miami Intl",
		Latitude: 25.7959, Longitude: -80.2870, NWSOffice: "MFL",
		IANATimezone: "America/New_York", StandardUTCOffset: -5,
	},
	model.CityAUS: {
		City: model.CityAUS, StationID: "KAUS", StationName: "Bergstrom",
		Latitude: 30.1945, Longitude: -97.6699, NWSOffice: "EWX",
		IANATimezone: "America/Chicago", StandardUTCOffset: -6,
	},
}

// ValidCities lists every recognized city code.
var ValidCities = model.AllCities

// Get looks up a city's station config, erroring on an unrecognized code so
// callers hit the "unknown city code -> fatal at startup" policy at
// the boundary where they first see the bad input.
func Get(city model.City) (Config, error) {
	cfg, ok := Catalog[city]
	if !ok {
		return Config{}, fmt.Errorf("station: unknown city code %q", city)
	}
	return cfg, nil
}

// Now returns the current instant expressed in a city's fixed standard-time
// offset, ignoring DST entirely.
func Now(city model.City) (time.Time, error) {
	cfg, err := Get(city)
	if err != nil {
		return time.Time{}, err
	}
	loc := time.FixedZone(fmt.Sprintf("%s-standard", city), cfg.StandardUTCOffset*3600)
	return time.Now().In(loc), nil
}

// TradingDay returns the civil date (midnight UTC-normalized) of "today" in
// a city's local standard time — the day boundary used for daily risk
// resets and trade-date stamping.
func TradingDay(city model.City) (time.Time, error) {
	now, err := Now(city)
	if err != nil {
		return time.Time{}, err
	}
	return civilDate(now), nil
}

// SettlementDate returns the date whose climate report is expected to be
// available this morning: yesterday in the station's standard time.
func SettlementDate(city model.City) (time.Time, error) {
	today, err := TradingDay(city)
	if err != nil {
		return time.Time{}, err
	}
	return today.AddDate(0, 0, -1), nil
}

// IsForecastForToday reports whether a forecast's target date matches the
// city's current trading day.
func IsForecastForToday(city model.City, targetDate time.Time) (bool, error) {
	today, err := TradingDay(city)
	if err != nil {
		return false, err
	}
	return civilDate(targetDate).Equal(today), nil
}

func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// CelsiusToFahrenheit converts and rounds to one decimal, matching the
// reference implementation's per-step rounding exactly.
func CelsiusToFahrenheit(c float64) float64 {
	return round1(c*9/5 + 32)
}

// FahrenheitToCelsius converts and rounds to one decimal.
func FahrenheitToCelsius(f float64) float64 {
	return round1((f - 32) * 5 / 9)
}

func round1(v float64) float64 {
	if v >= 0 {
		return float64(int64(v*10+0.5)) / 10
	}
	return float64(int64(v*10-0.5)) / 10
}
