package fitters

import (
	"fmt"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/traj"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/mat"
)

// Project fits every demonstration onto the basis set, using at most workers
// goroutines (all of them at once if workers < 1). Results keep the order of
// demos. All demonstrations must have the same number of dimensions.
func Project(demos []*traj.Demonstration, set *basis.Set, workers int, opts ...traj.FitOption) ([]*mat.VecDense, error) {
	if len(demos) == 0 {
		return nil, nil
	}
	dims := demos[0].Dims()
	for i, demo := range demos {
		if demo.Dims() != dims {
			return nil, fmt.Errorf("%w: demonstration %d has %d dimensions, want %d", basis.ErrInvalidConfig, i, demo.Dims(), dims)
		}
	}

	ws := make([]*mat.VecDense, len(demos))
	var g errgroup.Group
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, demo := range demos {
		i, demo := i, demo
		g.Go(func() error {
			w, err := traj.Fit(demo, set, opts...)
			if err != nil {
				return fmt.Errorf("demonstration %d: %w", i, err)
			}
			ws[i] = w
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return ws, nil
}
