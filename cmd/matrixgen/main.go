// Command matrixgen turns a vertex dataset into the adjacency matrix file the
// route solver reads.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"

	"golang.org/x/exp/slog"

	"github.com/atharv3903/routeplay/internal/config"
	"github.com/atharv3903/routeplay/internal/logging"
)

func main() {
	var (
		out    string
		verify bool
	)
	cfg, err := config.Load("matrixgen", os.Args[1:], func(fs *flag.FlagSet) {
		fs.StringVar(&out, "out", "", "output file (default DistSAMU_<N>.txt)")
		fs.BoolVar(&verify, "verify", false, "read the file back and compare")
	})
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		slog.Error("config", "err", err)
		os.Exit(2)
	}

	log := logging.New(os.Stderr, cfg.Log.Level)
	slog.SetDefault(log)

	ctx := context.Background()
	src, release, err := cfg.Dataset.Open(ctx)
	if err != nil {
		log.Error("open dataset", "err", err)
		os.Exit(1)
	}
	path, err := generate(ctx, src, out, verify, log)
	release()
	if err != nil {
		log.Error("matrixgen", "source", cfg.Dataset.Kind(), "err", err)
		os.Exit(1)
	}
	fmt.Println(successLine(path))
}
