// Package matrix builds the dense all-pairs weight matrix handed to the
// external shortest-path solver and reads/writes its text format.
package matrix

import (
	"errors"
	"fmt"

	"github.com/atharv3903/routeplay/internal/geo"
)

// Unreachable is the solver's infinity for pairs with no declared edge.
const Unreachable = 9999

var (
	ErrNeighborOutOfRange = errors.New("matrix: neighbor index out of range")
	ErrOutOfRange         = errors.New("matrix: index out of range")
	ErrMalformed          = errors.New("matrix: malformed matrix file")
)

// Matrix is an N x N table of distances in meters. Built once, never mutated.
type Matrix struct {
	n    int
	data []int
}

// Build fills an N x N matrix from coords and a 0-based neighbor list.
// Each declared i -> j gets the rounded geodesic distance; the reverse
// direction is only set if it is declared too.
func Build(coords []geo.Coordinate, neighbors [][]int) (*Matrix, error) {
	n := len(coords)
	if len(neighbors) > n {
		return nil, fmt.Errorf("%w: %d neighbor rows for %d vertices", ErrNeighborOutOfRange, len(neighbors), n)
	}

	m := newMatrix(n)
	for i := 0; i < n; i++ {
		for j := 0; j < n; j++ {
			if i != j {
				m.data[i*n+j] = Unreachable
			}
		}
	}

	for i, row := range neighbors {
		for _, j := range row {
			if j < 0 || j >= n {
				return nil, fmt.Errorf("%w: vertex %d declares %d (size %d)", ErrNeighborOutOfRange, i, j, n)
			}
			if i == j {
				continue
			}
			m.data[i*n+j] = geo.Distance(coords[i], coords[j])
		}
	}

	return m, nil
}

func newMatrix(n int) *Matrix {
	return &Matrix{n: n, data: make([]int, n*n)}
}

// Size returns N.
func (m *Matrix) Size() int { return m.n }

func (m *Matrix) At(i, j int) (int, error) {
	if i < 0 || i >= m.n || j < 0 || j >= m.n {
		return 0, fmt.Errorf("%w: (%d,%d) in %dx%d", ErrOutOfRange, i, j, m.n, m.n)
	}
	return m.data[i*m.n+j], nil
}

// Row returns a copy of row i.
func (m *Matrix) Row(i int) ([]int, error) {
	if i < 0 || i >= m.n {
		return nil, fmt.Errorf("%w: row %d in %dx%d", ErrOutOfRange, i, m.n, m.n)
	}
	row := make([]int, m.n)
	copy(row, m.data[i*m.n:(i+1)*m.n])
	return row, nil
}

// Reachable reports whether a direct edge i -> j is declared.
func (m *Matrix) Reachable(i, j int) bool {
	v, err := m.At(i, j)
	if err != nil {
		return false
	}
	return i == j || v != Unreachable
}

// Asymmetries lists pairs (i, j), i < j, where exactly one direction is
// declared. Usually a sign of a one-sided neighbor entry in the dataset.
func (m *Matrix) Asymmetries() [][2]int {
	var out [][2]int
	for i := 0; i < m.n; i++ {
		for j := i + 1; j < m.n; j++ {
			if m.Reachable(i, j) != m.Reachable(j, i) {
				out = append(out, [2]int{i, j})
			}
		}
	}
	return out
}

// Edges counts declared off-diagonal entries.
func (m *Matrix) Edges() int {
	count := 0
	for i := 0; i < m.n; i++ {
		for j := 0; j < m.n; j++ {
			if i != j && m.data[i*m.n+j] != Unreachable {
				count++
			}
		}
	}
	return count
}
