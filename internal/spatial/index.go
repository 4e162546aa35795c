// Package spatial answers "which vertex is closest to this point" for
// click-to-select.
package spatial

import (
	"errors"
	"math"

	"github.com/dhconnelly/rtreego"

	"github.com/atharv3903/routeplay/internal/geo"
)

var ErrEmptyIndex = errors.New("spatial: index is empty")

// candidates is how many planar neighbours are re-ranked by geodesic
// distance; lat/lon boxes distort away from the equator.
const candidates = 5

const pointTol = 1e-9

type vertex struct {
	idx   int
	coord geo.Coordinate
	rect  rtreego.Rect
}

func (v *vertex) Bounds() rtreego.Rect { return v.rect }

// Index is read-only after New and safe for concurrent use.
type Index struct {
	tree *rtreego.Rtree
	n    int
}

func New(coords []geo.Coordinate) *Index {
	tree := rtreego.NewTree(2, 25, 50)
	for i, c := range coords {
		p := rtreego.Point{c.Lat, c.Lon}
		tree.Insert(&vertex{idx: i, coord: c, rect: p.ToRect(pointTol)})
	}
	return &Index{tree: tree, n: len(coords)}
}

func (ix *Index) Size() int { return ix.n }

// Nearest returns the vertex closest to c and its distance in meters.
func (ix *Index) Nearest(c geo.Coordinate) (int, int, error) {
	if ix.n == 0 {
		return -1, 0, ErrEmptyIndex
	}

	best, bestDist := -1, math.MaxFloat64
	for _, s := range ix.tree.NearestNeighbors(candidates, rtreego.Point{c.Lat, c.Lon}) {
		if s == nil {
			continue
		}
		v := s.(*vertex)
		d := geo.Haversine(c, v.coord)
		if d < bestDist || (d == bestDist && v.idx < best) {
			best, bestDist = v.idx, d
		}
	}
	if best < 0 {
		return -1, 0, ErrEmptyIndex
	}
	return best, int(math.Round(bestDist)), nil
}
