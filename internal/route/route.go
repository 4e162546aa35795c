package route

import (
	"encoding/json"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/twpayne/go-polyline"

	"github.com/atharv3903/routeplay/internal/geo"
	"github.com/atharv3903/routeplay/internal/model"
)

// Assembled is one drivable route: origin -> incident -> hospital.
type Assembled struct {
	Points []geo.Coordinate
	// Vertices[i] is the table index Points[i] came from.
	Vertices []int
	// PauseIndex is the position in Points where the vehicle stops at the
	// incident. -1 when there is no leg to the incident.
	PauseIndex int

	Occurrence *geo.Coordinate
	Hospital   *geo.Coordinate
	Source     model.AccidentRoute
}

// Assemble merges the two legs of acc, dropping the duplicated incident
// vertex at the start of the hospital leg, and maps indices through coords.
// Indices outside the table are skipped.
func Assemble(acc model.AccidentRoute, coords []geo.Coordinate) Assembled {
	toHospital := acc.ToHospitalPath
	if len(toHospital) > 0 {
		toHospital = toHospital[1:]
	}

	indices := make([]int, 0, len(acc.ToOccurrencePath)+len(toHospital))
	indices = append(indices, acc.ToOccurrencePath...)
	indices = append(indices, toHospital...)

	r := Assembled{
		Points:     make([]geo.Coordinate, 0, len(indices)),
		Vertices:   make([]int, 0, len(indices)),
		PauseIndex: len(acc.ToOccurrencePath) - 1,
		Source:     acc,
	}
	for _, v := range indices {
		if v < 0 || v >= len(coords) {
			continue
		}
		r.Points = append(r.Points, coords[v])
		r.Vertices = append(r.Vertices, v)
	}

	if c, ok := lookup(coords, acc.OccurrenceVertex); ok {
		r.Occurrence = &c
	}
	if c, ok := lookup(coords, acc.HospitalVertex); ok {
		r.Hospital = &c
	}
	return r
}

func lookup(coords []geo.Coordinate, v int) (geo.Coordinate, bool) {
	if v < 0 || v >= len(coords) {
		return geo.Coordinate{}, false
	}
	return coords[v], true
}

// Segments is the number of edges playback will traverse.
func (r Assembled) Segments() int {
	if len(r.Points) < 2 {
		return 0
	}
	return len(r.Points) - 1
}

// Length sums the geodesic length of every segment in meters.
func (r Assembled) Length() int {
	total := 0
	for i := 1; i < len(r.Points); i++ {
		total += geo.Distance(r.Points[i-1], r.Points[i])
	}
	return total
}

// Polyline encodes Points as a Google encoded polyline.
func (r Assembled) Polyline() string {
	coords := make([][]float64, len(r.Points))
	for i, p := range r.Points {
		coords[i] = []float64{p.Lat, p.Lon}
	}
	return string(polyline.EncodeCoords(coords))
}

// GeoJSON renders the route as a LineString feature.
func (r Assembled) GeoJSON() ([]byte, error) {
	ls := make(orb.LineString, len(r.Points))
	for i, p := range r.Points {
		ls[i] = orb.Point{p.Lon, p.Lat}
	}

	f := geojson.NewFeature(ls)
	f.Properties["pauseIndex"] = r.PauseIndex
	f.Properties["occurrenceVertex"] = r.Source.OccurrenceVertex
	f.Properties["hospitalVertex"] = r.Source.HospitalVertex
	f.Properties["distanceMeters"] = r.Length()
	f.Properties["vertices"] = r.Vertices

	return json.Marshal(f)
}

// Response converts the route into the API payload.
func (r Assembled) Response(cacheHit bool) model.RouteResponse {
	return model.RouteResponse{
		Points:               r.Points,
		Vertices:             r.Vertices,
		PauseIndex:           r.PauseIndex,
		OccurrenceVertex:     r.Source.OccurrenceVertex,
		HospitalVertex:       r.Source.HospitalVertex,
		Occurrence:           r.Occurrence,
		Hospital:             r.Hospital,
		Polyline:             r.Polyline(),
		ToOccurrenceDistance: r.Source.ToOccurrenceDistance,
		ToHospitalDistance:   r.Source.ToHospitalDistance,
		ExecutionTimeMillis:  r.Source.ExecutionTimeMillis,
		CacheHit:             cacheHit,
	}
}
