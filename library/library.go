// Package library keeps a named collection of primitives together with the
// demonstrations observed for each of them, and fits them in parallel.
package library

import (
	"errors"
	"fmt"
	"math"
	"sort"
	"sync"

	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/traj"
	"go.uber.org/zap"
)

var ErrUnknownPrimitive = errors.New("unknown primitive")
var ErrDuplicatePrimitive = errors.New("primitive already exists")

type entry struct {
	primitive *promp.Primitive
	demos     []*traj.Demonstration
}

// Library is safe for concurrent use.
type Library struct {
	mu      sync.Mutex
	entries map[string]*entry
	logger  *zap.SugaredLogger
}

// New returns an empty library. A nil logger discards output.
func New(logger *zap.SugaredLogger) *Library {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Library{
		entries: make(map[string]*entry),
		logger:  logger,
	}
}

func (l *Library) Add(name string, p *promp.Primitive) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if p == nil {
		return fmt.Errorf("%w: nil primitive %q", basis.ErrInvalidConfig, name)
	}
	if _, ok := l.entries[name]; ok {
		return fmt.Errorf("%w: %q", ErrDuplicatePrimitive, name)
	}
	l.entries[name] = &entry{primitive: p}
	return nil
}

// Observe queues a demonstration for the named primitive. It is used at the
// next call to Fit.
func (l *Library) Observe(name string, demo *traj.Demonstration) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownPrimitive, name)
	}
	if demo == nil {
		return fmt.Errorf("%w: nil demonstration for %q", basis.ErrInvalidConfig, name)
	}
	if demo.Dims() != e.primitive.Dims() {
		return fmt.Errorf("%w: %q has %d dimensions, demonstration has %d", basis.ErrInvalidConfig, name, e.primitive.Dims(), demo.Dims())
	}
	e.demos = append(e.demos, demo)
	return nil
}

// Fit refits every primitive that has observed demonstrations, using
// nWorkers goroutines. Failures do not stop the other fits; they are
// returned joined.
func (l *Library) Fit(nWorkers int) error {
	if nWorkers < 1 {
		nWorkers = 1
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	type job struct {
		name string
		e    *entry
	}
	jobs := make(chan job, 100)
	var wg sync.WaitGroup
	var errMu sync.Mutex
	var errs []error

	for i := 0; i < nWorkers; i++ {
		go func() {
			for j := range jobs {
				if err := j.e.primitive.Fit(j.e.demos); err != nil {
					errMu.Lock()
					errs = append(errs, fmt.Errorf("%s: %w", j.name, err))
					errMu.Unlock()
				}
				wg.Done()
			}
		}()
	}

	fitted := 0
	for _, name := range l.sortedNames() {
		e := l.entries[name]
		if len(e.demos) == 0 {
			continue
		}
		fitted++
		wg.Add(1)
		jobs <- job{name: name, e: e}
	}
	wg.Wait()
	close(jobs)

	l.logger.Infow("fitted library", "primitives", fitted, "failed", len(errs), "workers", nWorkers)
	return errors.Join(errs...)
}

func (l *Library) Primitive(name string) (*promp.Primitive, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	e, ok := l.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPrimitive, name)
	}
	return e.primitive, nil
}

// Names returns the primitive names in lexical order.
func (l *Library) Names() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sortedNames()
}

func (l *Library) sortedNames() []string {
	names := make([]string, 0, len(l.entries))
	for name := range l.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// LogLikelihood sums the log-likelihood of every observed demonstration under
// its primitive.
func (l *Library) LogLikelihood(noiseVariance float64) (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	ll := 0.0
	for _, name := range l.sortedNames() {
		e := l.entries[name]
		for _, demo := range e.demos {
			contrib, err := e.primitive.LogLikelihood(demo, noiseVariance)
			if err != nil {
				return 0, fmt.Errorf("%s: %w", name, err)
			}
			ll += contrib
		}
	}
	return ll, nil
}

// Classify returns the fitted primitive under which demo is most likely.
func (l *Library) Classify(demo *traj.Demonstration, noiseVariance float64) (string, float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	best, bestLL := "", math.Inf(-1)
	for _, name := range l.sortedNames() {
		p := l.entries[name].primitive
		if p.State() == promp.Empty || p.Dims() != demo.Dims() {
			continue
		}
		ll, err := p.LogLikelihood(demo, noiseVariance)
		if err != nil {
			return "", 0, fmt.Errorf("%s: %w", name, err)
		}
		if ll > bestLL {
			best, bestLL = name, ll
		}
	}
	if best == "" {
		return "", 0, fmt.Errorf("%w: no fitted primitive with %d dimensions", ErrUnknownPrimitive, demo.Dims())
	}
	return best, bestLL, nil
}
