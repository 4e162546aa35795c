package db

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/atharv3903/routeplay/internal/dataset"
	"github.com/atharv3903/routeplay/internal/geo"
)

// Store reads the coordinate table and neighbor declarations from MySQL.
//
//	vertices(idx INT PRIMARY KEY, lat DOUBLE, lon DOUBLE)
//	neighbors(src INT, dst INT, ord INT)   -- src/dst are 1-based like the authored data
type Store struct {
	DB *sql.DB
}

func (s Store) Coordinates(ctx context.Context) ([]geo.Coordinate, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT idx, lat, lon
        FROM vertices
        ORDER BY idx
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	coords := make([]geo.Coordinate, 0, 128)

	for rows.Next() {
		var idx int
		var c geo.Coordinate

		if err := rows.Scan(&idx, &c.Lat, &c.Lon); err != nil {
			return nil, err
		}
		if idx != len(coords) {
			return nil, fmt.Errorf("db: vertex table has a gap at %d (got idx %d)", len(coords), idx)
		}

		coords = append(coords, c)
	}

	return coords, rows.Err()
}

// Connections returns the 1-based neighbor rows, one per vertex in [0, n).
func (s Store) Connections(ctx context.Context, n int) ([][]int, error) {
	rows, err := s.DB.QueryContext(ctx, `
        SELECT src, dst
        FROM neighbors
        ORDER BY src, ord
    `)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	conns := make([][]int, n)

	for rows.Next() {
		var src, dst int

		if err := rows.Scan(&src, &dst); err != nil {
			return nil, err
		}
		if src < 1 || src > n {
			return nil, fmt.Errorf("db: neighbor row for unknown vertex %d", src)
		}

		conns[src-1] = append(conns[src-1], dst)
	}

	return conns, rows.Err()
}

func (s Store) Load(ctx context.Context) (*dataset.Dataset, error) {
	coords, err := s.Coordinates(ctx)
	if err != nil {
		return nil, err
	}
	if len(coords) == 0 {
		return nil, dataset.ErrEmpty
	}

	conns, err := s.Connections(ctx, len(coords))
	if err != nil {
		return nil, err
	}

	neighbors, err := dataset.FromOneBased(conns)
	if err != nil {
		return nil, err
	}

	return &dataset.Dataset{Coords: coords, Neighbors: neighbors}, nil
}
