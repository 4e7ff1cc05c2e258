package main

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/towerguard/site-health/internal/domain"
	"github.com/towerguard/site-health/internal/sites"
)

func TestBuildCatalog_SeedsCleanly(t *testing.T) {
	data, err := buildCatalog(3)
	require.NoError(t, err)

	cat, err := sites.Parse(bytes.NewReader(data), domain.KenyaBounds)
	require.NoError(t, err)

	assert.Empty(t, cat.Rejected)
	assert.Len(t, cat.Towers, len(towers))
	assert.Len(t, cat.Sites, 3*len(towers))

	first := cat.Sites[0]
	assert.Equal(t, "mau_forest_complex-01", first.ID)
	assert.InDelta(t, -0.54, first.Lat, 1e-9)
	assert.InDelta(t, 35.76, first.Lon, 1e-9)
	require.NotNil(t, first.ElevationM)
	assert.InDelta(t, 2400.0, *first.ElevationM, 1e-9)
	assert.Greater(t, first.AreaHa, 400.0, "0.02 degree plot is roughly 490 ha at the equator")
}

func TestBuildCatalog_Deterministic(t *testing.T) {
	a, err := buildCatalog(2)
	require.NoError(t, err)
	b, err := buildCatalog(2)
	require.NoError(t, err)
	assert.Equal(t, a, b)
}
