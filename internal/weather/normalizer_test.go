package weather

import (
	"io"
	"log/slog"
	"testing"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNormalizeNWSForecastSkipsNighttime(t *testing.T) {
	raw := []byte(`{
		"properties": {
			"periods": [
				{"name":"Tonight","isDaytime":false,"startTime":"2026-02-18T18:00:00-05:00","temperature":40,"temperatureUnit":"F"},
				{"name":"Today","isDaytime":true,"startTime":"2026-02-18T06:00:00-05:00","temperature":55,"temperatureUnit":"F","windSpeed":"10 to 15 mph"}
			]
		}
	}`)

	rows, err := NormalizeNWSForecast(testLogger(), model.CityNYC, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (nighttime period must be skipped)", len(rows))
	}
	if rows[0].ForecastHighF != 55 {
		t.Errorf("ForecastHighF = %v, want 55", rows[0].ForecastHighF)
	}
	if rows[0].Variables.WindSpeedMPH == nil || *rows[0].Variables.WindSpeedMPH != 15 {
		t.Errorf("WindSpeedMPH = %v, want 15 (upper bound of range)", rows[0].Variables.WindSpeedMPH)
	}
}

func TestNormalizeNWSGridpointConvertsCelsius(t *testing.T) {
	raw := []byte(`{
		"properties": {
			"maxTemperature": {"values": [{"validTime":"2026-02-18T00:00:00+00:00/P1D","value":12.8}]},
			"windSpeed": {"values": [{"validTime":"2026-02-18T00:00:00+00:00/P1D","value":16.1}]},
			"pressure": {"values": [{"validTime":"2026-02-18T00:00:00+00:00/P1D","value":101500}]}
		}
	}`)

	rows, err := NormalizeNWSGridpoint(testLogger(), model.CityNYC, raw)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1", len(rows))
	}
	// 12.8C -> 55.0F
	if rows[0].ForecastHighF != 55.0 {
		t.Errorf("ForecastHighF = %v, want 55.0", rows[0].ForecastHighF)
	}
	if rows[0].Variables.WindSpeedMPH == nil {
		t.Fatal("WindSpeedMPH missing")
	}
	if got := *rows[0].Variables.WindSpeedMPH; got < 9.9 || got > 10.1 {
		t.Errorf("WindSpeedMPH = %v, want ~10.0 (16.1 km/h)", got)
	}
	if rows[0].Variables.PressureMB == nil || *rows[0].Variables.PressureMB != 1015.0 {
		t.Errorf("PressureMB = %v, want 1015.0", rows[0].Variables.PressureMB)
	}
}

func TestNormalizeOpenMeteoSkipsMissingHigh(t *testing.T) {
	daily := OpenMeteoModelDaily{
		Time:           []string{"2026-02-18", "2026-02-19"},
		TemperatureMax: []*float64{f64p(55.0), nil},
	}
	rows, err := NormalizeOpenMeteo(testLogger(), model.CityNYC, model.SourceOpenMeteoGFS, daily)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("got %d rows, want 1 (missing high must be skipped)", len(rows))
	}
	if rows[0].ForecastHighF != 55.0 {
		t.Errorf("ForecastHighF = %v, want 55.0", rows[0].ForecastHighF)
	}
}

func f64p(v float64) *float64 { return &v }
