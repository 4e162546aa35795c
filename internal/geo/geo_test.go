package geo

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	samu     = Coordinate{Lat: -5.1845, Lon: -37.336}
	hospital = Coordinate{Lat: -5.1978, Lon: -37.3441}
)

func TestDistanceSelfIsZero(t *testing.T) {
	assert.Equal(t, 0, Distance(samu, samu))
	assert.Equal(t, 0, Distance(hospital, hospital))
}

func TestDistanceCommutative(t *testing.T) {
	pairs := [][2]Coordinate{
		{samu, hospital},
		{{Lat: 0, Lon: 0}, {Lat: 0, Lon: 1}},
		{{Lat: 51.5, Lon: -0.12}, {Lat: 48.85, Lon: 2.35}},
		{{Lat: -33.86, Lon: 151.2}, {Lat: 35.68, Lon: 139.69}},
	}
	for _, p := range pairs {
		ab := Distance(p[0], p[1])
		ba := Distance(p[1], p[0])
		assert.LessOrEqual(t, abs(ab-ba), 1, "%v <-> %v", p[0], p[1])
	}
}

func TestDistanceKnownValues(t *testing.T) {
	// one degree of longitude on the equator is R*pi/180
	assert.Equal(t, 111195, Distance(Coordinate{0, 0}, Coordinate{0, 1}))
	// same along a meridian
	assert.Equal(t, 111195, Distance(Coordinate{0, 0}, Coordinate{1, 0}))
}

func TestInterpolate(t *testing.T) {
	a := Coordinate{Lat: 0, Lon: 0}
	b := Coordinate{Lat: 2, Lon: -4}

	assert.Equal(t, a, Interpolate(a, b, 0))
	assert.Equal(t, b, Interpolate(a, b, 1))
	mid := Interpolate(a, b, 0.5)
	assert.InDelta(t, 1.0, mid.Lat, 1e-12)
	assert.InDelta(t, -2.0, mid.Lon, 1e-12)
}

func TestCoordinateJSON(t *testing.T) {
	data, err := json.Marshal(samu)
	require.NoError(t, err)
	assert.JSONEq(t, `[-5.1845,-37.336]`, string(data))

	var c Coordinate
	require.NoError(t, json.Unmarshal([]byte(`[1.5, 2.5]`), &c))
	assert.Equal(t, Coordinate{Lat: 1.5, Lon: 2.5}, c)

	assert.Error(t, json.Unmarshal([]byte(`[1.5]`), &c))
	assert.Error(t, json.Unmarshal([]byte(`{"lat":1}`), &c))
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
