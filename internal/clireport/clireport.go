// Package clireport parses the NWS CLI (Daily Climate Report) plain-text
// product into the official observed high/low used for settlement. Pure —
// no I/O. Grounded verbatim on the original Python implementation's
// weather/cli_parser.py, including its exact regex-driven extraction
// rules and the "ignore the historical-record second column" behavior.
package clireport

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

// ErrParse is the sentinel error kind wrapped by every parse failure here,
// matching the "Parse failure on required field" taxonomy entry.
var ErrParse = errors.New("clireport: parse error")

func parseErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrParse, fmt.Sprintf(format, args...))
}

// Report is the parsed result of one CLI product.
type Report struct {
	HighF      float64
	LowF       *float64
	Station    string
	ReportDate time.Time
	RawText    string
}

var (
	stationParenRe = regexp.MustCompile(`\(([A-Z]{4})\)`)
	stationCLIRe   = regexp.MustCompile(`CLI([A-Z]{3,4})\b`)
	stationBroadRe = regexp.MustCompile(`(?i)CLIMATE REPORT FOR\s+[^(]+\((\w+)\)`)

	dateMDYRe = regexp.MustCompile(`(\d{2})/(\d{2})/(\d{4})`)

	temperatureSectionRe = regexp.MustCompile(`(?is)TEMPERATURE\s*\(?F?\)?.*?\n(.*?)(?:\n\s*\n|\nPRECIPITATION|\nHEATING|\nCOOLING|\z)`)
)

var monthNames = map[string]time.Month{
	"JANUARY": time.January, "FEBRUARY": time.February, "MARCH": time.March,
	"APRIL": time.April, "MAY": time.May, "JUNE": time.June,
	"JULY": time.July, "AUGUST": time.August, "SEPTEMBER": time.September,
	"OCTOBER": time.October, "NOVEMBER": time.November, "DECEMBER": time.December,
}

var monthNameRe = buildMonthNameRe()

func buildMonthNameRe() *regexp.Regexp {
	names := make([]string, 0, len(monthNames))
	for name := range monthNames {
		names = append(names, name)
	}
	// Deterministic order doesn't matter for alternation matching semantics.
	pattern := `(?i)(` + strings.Join(names, "|") + `)\s+(\d{1,2})\s+(\d{4})`
	return regexp.MustCompile(pattern)
}

// Parse extracts the settlement-relevant fields from a raw CLI report.
func Parse(text string) (Report, error) {
	if strings.TrimSpace(text) == "" {
		return Report{}, parseErr("empty CLI report text")
	}

	station, err := extractStation(text)
	if err != nil {
		return Report{}, err
	}
	reportDate, err := extractReportDate(text)
	if err != nil {
		return Report{}, err
	}
	highF, err := extractTemperature(text, "MAXIMUM", true)
	if err != nil {
		return Report{}, err
	}
	lowF, err := extractTemperature(text, "MINIMUM", false)
	if err != nil {
		return Report{}, err
	}

	return Report{
		HighF:      *highF,
		LowF:       lowF,
		Station:    station,
		ReportDate: reportDate,
		RawText:    text,
	}, nil
}

func extractStation(text string) (string, error) {
	if m := stationParenRe.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	if m := stationCLIRe.FindStringSubmatch(text); m != nil {
		return "K" + m[1], nil
	}
	if m := stationBroadRe.FindStringSubmatch(text); m != nil {
		return m[1], nil
	}
	return "", parseErr("could not extract station identifier from CLI report header")
}

func extractReportDate(text string) (time.Time, error) {
	if m := dateMDYRe.FindStringSubmatch(text); m != nil {
		month, _ := strconv.Atoi(m[1])
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if month < 1 || month > 12 || day < 1 || day > 31 {
			return time.Time{}, parseErr("invalid date in CLI report: %s", m[0])
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	}

	if m := monthNameRe.FindStringSubmatch(text); m != nil {
		month := monthNames[strings.ToUpper(m[1])]
		day, _ := strconv.Atoi(m[2])
		year, _ := strconv.Atoi(m[3])
		if day < 1 || day > 31 {
			return time.Time{}, parseErr("invalid date in CLI report: %s", m[0])
		}
		return time.Date(year, month, day, 0, 0, 0, 0, time.UTC), nil
	}

	return time.Time{}, parseErr("could not extract report date from CLI report")
}

func extractTemperature(text, field string, required bool) (*float64, error) {
	sectionMatch := temperatureSectionRe.FindStringSubmatch(text)
	if sectionMatch == nil {
		if required {
			return nil, parseErr("no TEMPERATURE section found in CLI report for %s", field)
		}
		return nil, nil
	}
	section := sectionMatch[1]

	fieldRe := regexp.MustCompile(`(?i)` + field + `\s+([-\dM]+)`)
	fieldMatch := fieldRe.FindStringSubmatch(section)
	if fieldMatch == nil {
		if required {
			return nil, parseErr("no %s value found in TEMPERATURE section", field)
		}
		return nil, nil
	}

	valueStr := strings.TrimSpace(fieldMatch[1])
	if strings.ToUpper(valueStr) == "M" {
		if required {
			return nil, parseErr("%s temperature is missing (M) in CLI report", field)
		}
		return nil, nil
	}

	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return nil, parseErr("could not parse %s temperature value: %q", field, valueStr)
	}
	return &value, nil
}
