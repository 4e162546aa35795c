package model

import "github.com/atharv3903/routeplay/internal/geo"

// AccidentRoute is the solver's answer for one incident: a path from the
// dispatch origin to the incident and one from the incident to the nearest
// hospital. Vertex indices are 0-based.
type AccidentRoute struct {
	OccurrenceVertex     int   `json:"ocurrenceVertex"`
	ToOccurrencePath     []int `json:"toOcurrencePath"`
	ToOccurrenceDistance int   `json:"toOcurrenceDistance"`

	HospitalVertex     int   `json:"hospitalVertex"`
	ToHospitalPath     []int `json:"toHospitalPath"`
	ToHospitalDistance int   `json:"toHospitalDistance"`

	ExecutionTimeMillis float64 `json:"executionTimeMillis"`
}

type RouteResponse struct {
	Points               []geo.Coordinate `json:"points"`
	Vertices             []int            `json:"vertices"`
	PauseIndex           int              `json:"pauseIndex"`
	OccurrenceVertex     int              `json:"occurrenceVertex"`
	HospitalVertex       int              `json:"hospitalVertex"`
	Occurrence           *geo.Coordinate  `json:"occurrence,omitempty"`
	Hospital             *geo.Coordinate  `json:"hospital,omitempty"`
	Polyline             string           `json:"polyline"`
	ToOccurrenceDistance int              `json:"toOccurrenceDistance"`
	ToHospitalDistance   int              `json:"toHospitalDistance"`
	ExecutionTimeMillis  float64          `json:"executionTimeMillis"`
	CacheHit             bool             `json:"cacheHit"`
}

type NearestResponse struct {
	Vertex         int            `json:"vertex"`
	Coord          geo.Coordinate `json:"coord"`
	DistanceMeters int            `json:"distanceMeters"`
}

type CacheStats struct {
	Gets      int `json:"gets"`
	Hits      int `json:"hits"`
	Puts      int `json:"puts"`
	Evictions int `json:"evictions"`
}
