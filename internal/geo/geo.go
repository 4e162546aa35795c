package geo

import (
	"encoding/json"
	"fmt"
	"math"
)

// EarthRadius is the mean Earth radius in meters used for all distances.
const EarthRadius = 6371000.0

// Coordinate is a WGS84 latitude/longitude pair in degrees.
// It encodes as a [lat, lon] JSON array.
type Coordinate struct {
	Lat float64
	Lon float64
}

func (c Coordinate) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]float64{c.Lat, c.Lon})
}

func (c *Coordinate) UnmarshalJSON(data []byte) error {
	var pair []float64
	if err := json.Unmarshal(data, &pair); err != nil {
		return err
	}
	if len(pair) != 2 {
		return fmt.Errorf("geo: coordinate needs 2 values, got %d", len(pair))
	}
	c.Lat, c.Lon = pair[0], pair[1]
	return nil
}

func toRadians(deg float64) float64 { return deg * math.Pi / 180 }

// Haversine returns the great-circle distance between a and b in meters.
func Haversine(a, b Coordinate) float64 {
	phi1 := toRadians(a.Lat)
	phi2 := toRadians(b.Lat)
	deltaPhi := toRadians(b.Lat - a.Lat)
	deltaLambda := toRadians(b.Lon - a.Lon)

	h := math.Sin(deltaPhi/2)*math.Sin(deltaPhi/2) +
		math.Cos(phi1)*math.Cos(phi2)*
			math.Sin(deltaLambda/2)*math.Sin(deltaLambda/2)
	c := 2 * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))

	return EarthRadius * c
}

// Distance is Haversine rounded to the nearest meter.
func Distance(a, b Coordinate) int {
	return int(math.Round(Haversine(a, b)))
}

// Interpolate returns the point a fraction t of the way from a to b,
// interpolating latitude and longitude linearly.
func Interpolate(a, b Coordinate, t float64) Coordinate {
	return Coordinate{
		Lat: a.Lat + (b.Lat-a.Lat)*t,
		Lon: a.Lon + (b.Lon-a.Lon)*t,
	}
}
