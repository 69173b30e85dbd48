//go:build integration

package integration_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/couchcryptid/forecast-precip-etl/internal/mockdata"
	"github.com/stretchr/testify/require"
)

// corruptFile appends a two-field record to the last forecast file.
func corruptFile(t *testing.T, ds *mockdata.Dataset) {
	t.Helper()
	path := filepath.Join(ds.ForecastDir, ds.Files[len(ds.Files)-1])
	f, err := os.OpenFile(path, os.O_APPEND|os.O_WRONLY, 0o600)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString("-44.0 -22.0\n")
	require.NoError(t, err)
}
