package station

import (
	"testing"

	"github.com/aclarkson2013/boz-weather-trader/internal/model"
)

func TestGetKnownCities(t *testing.T) {
	for _, c := range ValidCities {
		cfg, err := Get(c)
		if err != nil {
			t.Fatalf("Get(%s): %v", c, err)
		}
		if cfg.StationID == "" {
			t.Errorf("Get(%s): empty station id", c)
		}
	}
}

func TestGetUnknownCity(t *testing.T) {
	if _, err := Get(model.City("XXX")); err == nil {
		t.Fatal("expected error for unknown city code")
	}
}

func TestStandardOffsetsDSTInsensitive(t *testing.T) {
	cases := map[model.City]int{
		model.CityNYC: -5,
		model.CityMIA: -5,
		model.CityCHI: -6,
		model.CityAUS: -6,
	}
	for city, want := range cases {
		cfg, err := Get(city)
		if err != nil {
			t.Fatal(err)
		}
		if cfg.StandardUTCOffset != want {
			t.Errorf("%s offset = %d, want %d", city, cfg.StandardUTCOffset, want)
		}
	}
}

func TestCelsiusToFahrenheitRoundTrip(t *testing.T) {
	for _, f := range []float64{-10, 0, 32, 55.4, 98.6, 110} {
		c := FahrenheitToCelsius(f)
		back := CelsiusToFahrenheit(c)
		diff := back - f
		if diff < 0 {
			diff = -diff
		}
		if diff > 0.1 {
			t.Errorf("round trip %.1f -> %.1f -> %.1f diverged by %.2f", f, c, back, diff)
		}
	}
}

func TestCelsiusToFahrenheitKnownValue(t *testing.T) {
	got := CelsiusToFahrenheit(0)
	if got != 32.0 {
		t.Errorf("0C = %.1fF, want 32.0", got)
	}
}

func TestTradingDayResolvesForEachOffset(t *testing.T) {
	if _, err := TradingDay(model.CityNYC); err != nil {
		t.Fatal(err)
	}
	if _, err := TradingDay(model.CityCHI); err != nil {
		t.Fatal(err)
	}
}
