package dataset

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/paulmach/osm"
	"github.com/paulmach/osm/osmxml"

	"github.com/atharv3903/routeplay/internal/geo"
)

// ReadOSM builds a dataset from an OSM XML extract. Every node referenced by
// a highway way becomes a vertex, numbered in order of first reference.
// Consecutive way nodes become neighbors in both directions, or one
// direction for oneway ways.
func ReadOSM(ctx context.Context, r io.Reader) (*Dataset, error) {
	scanner := osmxml.New(ctx, r)
	defer scanner.Close()

	points := make(map[osm.NodeID]geo.Coordinate)
	var ways []*osm.Way

	for scanner.Scan() {
		switch object := scanner.Object().(type) {
		case *osm.Node:
			points[object.ID] = geo.Coordinate{Lat: object.Lat, Lon: object.Lon}
		case *osm.Way:
			if object.TagMap()["highway"] == "" {
				continue
			}
			ways = append(ways, object)
		default:
			continue
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("dataset: scan osm: %w", err)
	}

	index := make(map[osm.NodeID]int)
	d := &Dataset{}
	vertex := func(id osm.NodeID) (int, error) {
		if v, ok := index[id]; ok {
			return v, nil
		}
		p, ok := points[id]
		if !ok {
			return 0, fmt.Errorf("dataset: way references missing node %d", id)
		}
		v := len(d.Coords)
		index[id] = v
		d.Coords = append(d.Coords, p)
		d.Neighbors = append(d.Neighbors, nil)
		return v, nil
	}

	for _, w := range ways {
		forward, backward := direction(w.TagMap()["oneway"])
		ids := w.Nodes.NodeIDs()
		for i := 1; i < len(ids); i++ {
			a, err := vertex(ids[i-1])
			if err != nil {
				return nil, err
			}
			b, err := vertex(ids[i])
			if err != nil {
				return nil, err
			}
			if a == b {
				continue
			}
			if forward {
				d.Neighbors[a] = appendUnique(d.Neighbors[a], b)
			}
			if backward {
				d.Neighbors[b] = appendUnique(d.Neighbors[b], a)
			}
		}
	}

	if len(d.Coords) == 0 {
		return nil, ErrEmpty
	}
	return d, nil
}

func direction(oneway string) (forward, backward bool) {
	switch oneway {
	case "yes", "true", "1":
		return true, false
	case "-1", "reverse":
		return false, true
	default:
		return true, true
	}
}

func appendUnique(row []int, v int) []int {
	for _, x := range row {
		if x == v {
			return row
		}
	}
	return append(row, v)
}

// OSMFile loads a dataset from an OSM XML file on disk.
type OSMFile string

func (p OSMFile) Load(ctx context.Context) (*Dataset, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, fmt.Errorf("could not open osm file: %w", err)
	}
	defer f.Close()
	return ReadOSM(ctx, f)
}
