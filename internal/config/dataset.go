package config

import (
	"context"

	"github.com/atharv3903/routeplay/internal/dataset"
	"github.com/atharv3903/routeplay/internal/db"
)

// Kind reports which source Open will use.
func (d Dataset) Kind() string {
	switch {
	case d.JSON != "":
		return "json"
	case d.OSM != "":
		return "osm"
	case d.MySQLDSN != "":
		return "mysql"
	}
	return ""
}

// Open returns the configured dataset source and a func releasing it.
func (d Dataset) Open(ctx context.Context) (dataset.Source, func() error, error) {
	nop := func() error { return nil }
	switch d.Kind() {
	case "json":
		return dataset.JSONFile(d.JSON), nop, nil
	case "osm":
		return dataset.OSMFile(d.OSM), nop, nil
	case "mysql":
		conn, err := db.Open(ctx, d.MySQLDSN)
		if err != nil {
			return nil, nil, err
		}
		return db.Store{DB: conn}, conn.Close, nil
	}
	return nil, nil, ErrInvalid
}
