// Package dataset holds the fixed coordinate table and per-vertex neighbor
// lists the weight matrix is built from, plus loaders for the formats the
// table is authored in.
package dataset

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/atharv3903/routeplay/internal/geo"
)

var (
	ErrEmpty    = errors.New("dataset: no coordinates")
	ErrBadIndex = errors.New("dataset: neighbor id must be >= 1")
)

// Dataset is a coordinate table of size N and a 0-based neighbor list.
// Neighbors may be shorter than Coords; missing rows declare no edges.
type Dataset struct {
	Coords    []geo.Coordinate
	Neighbors [][]int
}

// Source is anything that can produce a dataset (file, database).
type Source interface {
	Load(ctx context.Context) (*Dataset, error)
}

func (d *Dataset) Size() int { return len(d.Coords) }

// FromOneBased converts externally authored 1-based neighbor ids to 0-based
// vertex indices. Range checks against the table are left to the matrix
// builder; only ids that cannot be 1-based are rejected here.
func FromOneBased(connections [][]int) ([][]int, error) {
	out := make([][]int, len(connections))
	for i, row := range connections {
		out[i] = make([]int, len(row))
		for k, id := range row {
			if id < 1 {
				return nil, fmt.Errorf("%w: vertex %d lists %d", ErrBadIndex, i, id)
			}
			out[i][k] = id - 1
		}
	}
	return out, nil
}

type jsonFile struct {
	Coords      []geo.Coordinate `json:"coords"`
	Connections [][]int          `json:"connections"`
}

// ReadJSON parses {"coords": [[lat,lon],...], "connections": [[1-based ids],...]}.
func ReadJSON(r io.Reader) (*Dataset, error) {
	var f jsonFile
	if err := json.NewDecoder(r).Decode(&f); err != nil {
		return nil, fmt.Errorf("dataset: decode json: %w", err)
	}
	if len(f.Coords) == 0 {
		return nil, ErrEmpty
	}
	neighbors, err := FromOneBased(f.Connections)
	if err != nil {
		return nil, err
	}
	return &Dataset{Coords: f.Coords, Neighbors: neighbors}, nil
}

// JSONFile loads a dataset from a JSON file on disk.
type JSONFile string

func (p JSONFile) Load(_ context.Context) (*Dataset, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return nil, fmt.Errorf("could not open dataset file: %w", err)
	}
	defer f.Close()
	return ReadJSON(f)
}
