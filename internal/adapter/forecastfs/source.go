// Package forecastfs discovers forecast grid files in a directory and reads
// their points. Issue and horizon dates come from the file name.
package forecastfs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"

	"github.com/couchcryptid/forecast-precip-etl/internal/domain"
)

// Source lists forecast files in a single directory.
type Source struct {
	dir     string
	pattern *regexp.Regexp
	issue   int
	horizon int
	logger  *slog.Logger
}

// NewSource creates a Source over dir. The pattern must have at least two
// capture groups; groups named "issue" and "horizon" win over positions 1
// and 2.
func NewSource(dir string, pattern *regexp.Regexp, logger *slog.Logger) (*Source, error) {
	issue, horizon, err := dateGroups(pattern)
	if err != nil {
		return nil, err
	}
	return &Source{
		dir:     dir,
		pattern: pattern,
		issue:   issue,
		horizon: horizon,
		logger:  logger,
	}, nil
}

func dateGroups(pattern *regexp.Regexp) (issue, horizon int, err error) {
	if pattern == nil {
		return 0, 0, fmt.Errorf("forecast file pattern is required")
	}
	if pattern.NumSubexp() < 2 {
		return 0, 0, fmt.Errorf("forecast file pattern %q needs 2 capture groups, has %d",
			pattern.String(), pattern.NumSubexp())
	}
	issue, horizon = 1, 2
	if i := pattern.SubexpIndex("issue"); i > 0 {
		issue = i
	}
	if i := pattern.SubexpIndex("horizon"); i > 0 {
		horizon = i
	}
	if issue == horizon {
		return 0, 0, fmt.Errorf("forecast file pattern %q maps issue and horizon to the same group", pattern.String())
	}
	return issue, horizon, nil
}

// Discover returns the matching regular files in the directory, sorted by
// name. A matching name whose date tokens do not parse fails discovery.
func (s *Source) Discover(ctx context.Context) ([]domain.ForecastFile, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list forecast directory: %w", err)
	}

	var files []domain.ForecastFile
	skipped := 0
	for _, entry := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !entry.Type().IsRegular() {
			continue
		}
		name := entry.Name()
		m := s.pattern.FindStringSubmatch(name)
		if m == nil {
			skipped++
			continue
		}
		issue, err := domain.ParseForecastDate(m[s.issue])
		if err != nil {
			return nil, fmt.Errorf("forecast file %s: issue date: %w", name, err)
		}
		horizon, err := domain.ParseForecastDate(m[s.horizon])
		if err != nil {
			return nil, fmt.Errorf("forecast file %s: horizon date: %w", name, err)
		}
		files = append(files, domain.ForecastFile{
			Path:        filepath.Join(s.dir, name),
			Name:        name,
			IssueDate:   issue,
			HorizonDate: horizon,
		})
	}

	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	s.logger.Debug("forecast files discovered", "dir", s.dir, "files", len(files), "skipped", skipped)
	return files, nil
}

// Extract reads every grid point of file.
func (s *Source) Extract(_ context.Context, file domain.ForecastFile) ([]domain.GridPoint, error) {
	return domain.ReadGridFile(file.Path)
}
