package main

import (
	"context"
	"fmt"
	"os"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/dataset"
	"github.com/atharv3903/routeplay/internal/matrix"
)

// maxAsymmetryWarnings caps how many one-way pairs are logged individually.
const maxAsymmetryWarnings = 20

func defaultName(n int) string { return fmt.Sprintf("DistSAMU_%d.txt", n) }

// successLine is printed on stdout once the matrix file is written.
func successLine(path string) string { return fmt.Sprintf("Arquivo %s gerado com sucesso!", path) }

// generate builds the matrix for src and writes it to out, or to
// DistSAMU_<N>.txt when out is empty. It returns the path written.
func generate(ctx context.Context, src dataset.Source, out string, verify bool, log *slog.Logger) (string, error) {
	data, err := src.Load(ctx)
	if err != nil {
		return "", fmt.Errorf("load dataset: %w", err)
	}

	m, err := matrix.Build(data.Coords, data.Neighbors)
	if err != nil {
		return "", err
	}
	log.Info("matrix built", "vertices", m.Size(), "edges", m.Edges())

	if asym := m.Asymmetries(); len(asym) > 0 {
		for i, p := range asym {
			if i == maxAsymmetryWarnings {
				break
			}
			log.Warn("one-way neighbor pair", "from", p[0], "to", p[1],
				"forward", m.Reachable(p[0], p[1]), "backward", m.Reachable(p[1], p[0]))
		}
		log.Warn("dataset has one-way pairs", "count", len(asym))
	}

	if out == "" {
		out = defaultName(m.Size())
	}
	if err := writeFile(out, m); err != nil {
		return "", err
	}

	if verify {
		if err := verifyFile(out, m); err != nil {
			return "", err
		}
		log.Info("matrix verified", "file", out)
	}
	return out, nil
}

func writeFile(path string, m *matrix.Matrix) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if _, err := m.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	return f.Close()
}

func verifyFile(path string, want *matrix.Matrix) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	got, err := matrix.Read(f)
	if err != nil {
		return fmt.Errorf("verify %s: %w", path, err)
	}
	if got.String() != want.String() {
		return fmt.Errorf("verify %s: contents differ from the built matrix", path)
	}
	return nil
}
