package domain

import (
	"time"
)

// forecastDateLayout is the DDMMYY token embedded in forecast file names.
const forecastDateLayout = "020106"

// ParseForecastDate parses a DDMMYY token (e.g. "011221" = 1 Dec 2021) into a
// civil date at UTC midnight.
func ParseForecastDate(token string) (time.Time, error) {
	if len(token) != len(forecastDateLayout) {
		return time.Time{}, &DateParseError{Token: token}
	}
	for _, r := range token {
		if r < '0' || r > '9' {
			return time.Time{}, &DateParseError{Token: token}
		}
	}
	t, err := time.Parse(forecastDateLayout, token)
	if err != nil {
		return time.Time{}, &DateParseError{Token: token, Err: err}
	}
	return t, nil
}

// civilDate truncates t to its calendar date at UTC midnight.
func civilDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
