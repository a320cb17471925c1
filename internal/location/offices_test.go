package location

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const officesYAML = `offices:
  - id: HN1
    name: Ha Noi 1
    latitude: 20.9725054
    longitude: 105.7575887
    radius_meters: 100
    enabled: true
  - id: OLD
    name: Closed office
    latitude: 20.9725
    longitude: 105.7576
    radius_meters: 5000
    enabled: false
  - id: HCM
    name: Ho Chi Minh
    latitude: 10.8380556
    longitude: 106.7351069
    radius_meters: 50.5
    enabled: true
`

func TestLoadYAMLSkipsDisabledOffices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(officesYAML), 0644))

	logger, _ := test.NewNullLogger()
	g := NewOfficeGeofence(path, logger)
	require.NoError(t, g.Load())

	offices := g.Offices()
	require.Len(t, offices, 2)
	assert.Equal(t, "HN1", offices[0].ID)
	assert.Equal(t, "HCM", offices[1].ID)
}

func TestCheckLocationMessages(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offices.yaml")
	require.NoError(t, os.WriteFile(path, []byte(officesYAML), 0644))

	logger, _ := test.NewNullLogger()
	g := NewOfficeGeofence(path, logger)
	require.NoError(t, g.Load())

	inside, err := g.CheckLocation(context.Background(), 20.9725054, 105.7575887)
	require.NoError(t, err)
	assert.True(t, inside.Allowed)
	assert.Equal(t, 100.0, inside.MaxDistance)
	assert.Equal(t, "Bạn đang trong phạm vi cho phép (0m / 100m)", inside.Message)

	// ~1.1km north of the HCM office
	outside, err := g.CheckLocation(context.Background(), 10.8480556, 106.7351069)
	require.NoError(t, err)
	assert.False(t, outside.Allowed)
	assert.InDelta(t, 1112, outside.Distance, 5)
	assert.Contains(t, outside.Message, "Bạn đang ở quá xa công ty (111")
	assert.Contains(t, outside.Message, "Khoảng cách tối đa cho phép: 50.5m")
}

func TestLoadCreatesDefaultJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config", "offices.json")

	logger, _ := test.NewNullLogger()
	g := NewOfficeGeofence(path, logger)
	require.NoError(t, g.Load())

	_, err := os.Stat(path)
	require.NoError(t, err)
	require.Len(t, g.Offices(), 1)

	loc, err := g.CompanyLocation(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.7769, loc.Latitude)
	assert.Equal(t, 50.0, loc.Radius)
}

func TestLoadFailsWithoutEnabledOffices(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offices.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"offices":[{"id":"X","enabled":false}]}`), 0644))

	logger, _ := test.NewNullLogger()
	err := NewOfficeGeofence(path, logger).Load()
	assert.ErrorContains(t, err, "no enabled offices")
}

func TestCheckLocationWithoutLoad(t *testing.T) {
	logger, _ := test.NewNullLogger()
	_, err := NewOfficeGeofence("unused.json", logger).CheckLocation(context.Background(), 1, 1)
	assert.Error(t, err)
}
