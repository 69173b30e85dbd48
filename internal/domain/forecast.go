package domain

import "time"

// ForecastFile is one grid file found in the forecast directory, with the
// issue and horizon dates already taken from its name.
type ForecastFile struct {
	Path        string
	Name        string
	IssueDate   time.Time
	HorizonDate time.Time
}
