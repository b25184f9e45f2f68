// Command promp fits, queries and stores probabilistic movement primitives.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math/rand/v2"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/google/uuid"
	"github.com/lucasmaystre/gopromp/basis"
	"github.com/lucasmaystre/gopromp/gauss"
	"github.com/lucasmaystre/gopromp/internal/logging"
	"github.com/lucasmaystre/gopromp/library"
	"github.com/lucasmaystre/gopromp/obs"
	"github.com/lucasmaystre/gopromp/promp"
	"github.com/lucasmaystre/gopromp/store"
	"github.com/lucasmaystre/gopromp/traj"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/mat"
)

func main() {
	if err := run(context.Background(), os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	if len(args) == 0 {
		return usageError("missing command")
	}

	switch args[0] {
	case "fit":
		return runFit(ctx, args[1:], stdout)
	case "predict":
		return runPredict(ctx, args[1:], stdout)
	case "condition":
		return runCondition(ctx, args[1:], stdout)
	case "sample":
		return runSample(ctx, args[1:], stdout)
	case "classify":
		return runClassify(ctx, args[1:], stdout)
	case "export":
		return runExport(ctx, args[1:], stdout)
	case "import":
		return runImport(ctx, args[1:], stdout)
	case "list":
		return runList(ctx, args[1:], stdout)
	case "delete":
		return runDelete(ctx, args[1:], stdout)
	default:
		return usageError(fmt.Sprintf("unknown command: %s", args[0]))
	}
}

func usageError(msg string) error {
	return fmt.Errorf("%s\nusage: promp <fit|predict|condition|sample|classify|export|import|list|delete> [flags]", msg)
}

// env is what every command needs once flags are parsed.
type env struct {
	ctx   context.Context
	cfg   Config
	store store.Store
}

func setup(ctx context.Context, configPath string) (*env, func(), error) {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return nil, nil, err
	}
	ctx = logging.WithLogger(ctx, logging.NewLogger(cfg.Debug))

	s, err := store.NewStore(cfg.Store, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	if err := s.Init(ctx); err != nil {
		return nil, nil, fmt.Errorf("init %s store: %w", cfg.Store, err)
	}
	cleanup := func() {
		_ = store.Close(s)
		_ = logging.FromContext(ctx).Sync()
	}
	return &env{ctx: ctx, cfg: cfg, store: s}, cleanup, nil
}

func (e *env) options() []promp.Option {
	return e.cfg.primitiveOptions(logging.FromContext(e.ctx))
}

func (e *env) load(name string) (*promp.Primitive, store.Record, error) {
	if name == "" {
		return nil, store.Record{}, errors.New("-name is required")
	}
	rec, ok, err := store.Latest(e.ctx, e.store, name)
	if err != nil {
		return nil, store.Record{}, err
	}
	if !ok {
		return nil, store.Record{}, fmt.Errorf("no primitive named %q", name)
	}
	p, err := promp.FromParams(rec.Params, e.options()...)
	if err != nil {
		return nil, store.Record{}, fmt.Errorf("load %s: %w", rec.ID, err)
	}
	return p, rec, nil
}

func (e *env) save(name string, p *promp.Primitive, stdout io.Writer) error {
	params, err := p.Export()
	if err != nil {
		return err
	}
	rec := store.NewRecord(name, params)
	if err := e.store.Save(e.ctx, rec); err != nil {
		return err
	}
	logging.FromContext(e.ctx).Infow("saved primitive", "name", name, "id", rec.ID, "state", p.State())
	fmt.Fprintln(stdout, rec.ID)
	return nil
}

func runFit(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("fit", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	name := fs.String("name", "", "primitive name")
	timed := fs.Bool("timed", false, "first CSV column holds times instead of phases")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *name == "" || fs.NArg() == 0 {
		return usageError("fit needs -name and at least one demonstration file")
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	demos := make([]*traj.Demonstration, 0, fs.NArg())
	for _, path := range fs.Args() {
		demo, err := readDemonstrationFile(path, *timed)
		if err != nil {
			return err
		}
		demos = append(demos, demo)
	}
	set, err := basis.New(e.cfg.Basis)
	if err != nil {
		return err
	}
	p, err := promp.New(set, demos[0].Dims(), e.options()...)
	if err != nil {
		return err
	}
	if err := p.Fit(demos); err != nil {
		return err
	}
	return e.save(*name, p, stdout)
}

// phaseGrid returns the phases given explicitly, or points evenly spaced
// phases over [0, 1].
func phaseGrid(list string, points int) ([]float64, error) {
	phases, err := parseList(list)
	if err != nil {
		return nil, fmt.Errorf("parse phases: %w", err)
	}
	if phases != nil {
		return phases, nil
	}
	if points < 2 {
		return nil, fmt.Errorf("need at least two points, got %d", points)
	}
	phases = make([]float64, points)
	floats.Span(phases, 0, 1)
	return phases, nil
}

func header(dims int, prefixes ...string) []string {
	out := []string{"x"}
	for _, prefix := range prefixes {
		for d := 0; d < dims; d++ {
			out = append(out, prefix+strconv.Itoa(d))
		}
	}
	return out
}

func runPredict(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("predict", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	name := fs.String("name", "", "primitive name")
	list := fs.String("phases", "", "comma separated phases (or times with -time)")
	points := fs.Int("points", 11, "number of evenly spaced phases when -phases is empty")
	order := fs.Int("order", 0, "derivative order: 0 position, 1 velocity, 2 acceleration")
	atTime := fs.Bool("time", false, "interpret -phases as times")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	p, _, err := e.load(*name)
	if err != nil {
		return err
	}
	xs, err := phaseGrid(*list, *points)
	if err != nil {
		return err
	}
	means := make([]*mat.VecDense, len(xs))
	vars := make([]*mat.VecDense, len(xs))
	for i, x := range xs {
		var cov *mat.SymDense
		if *atTime {
			means[i], cov, err = p.PredictAtTime(x, *order)
		} else {
			means[i], cov, err = p.PredictDerivative(x, *order)
		}
		if err != nil {
			return err
		}
		vars[i] = mat.NewVecDense(p.Dims(), nil)
		for d := 0; d < p.Dims(); d++ {
			vars[i].SetVec(d, cov.At(d, d))
		}
	}
	return writeRows(stdout, header(p.Dims(), "mean_", "var_"), xs, means, vars)
}

func runCondition(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("condition", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	name := fs.String("name", "", "primitive name")
	as := fs.String("as", "", "name of the conditioned primitive (default: -name)")
	phase := fs.Float64("phase", 1, "phase of the via-point")
	target := fs.String("target", "", "comma separated target values")
	variance := fs.Float64("var", 0, "observation noise variance, 0 for an exact via-point")
	order := fs.Int("order", 0, "derivative order constrained by the via-point")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	p, _, err := e.load(*name)
	if err != nil {
		return err
	}
	values, err := parseList(*target)
	if err != nil {
		return fmt.Errorf("parse target: %w", err)
	}
	var cov [][]float64
	if *variance > 0 {
		cov = make([][]float64, len(values))
		for i := range cov {
			cov[i] = make([]float64, len(values))
			cov[i][i] = *variance
		}
	}
	via, err := obs.NewViaPoint(*phase, values, cov, obs.Order(*order))
	if err != nil {
		return err
	}
	post, err := p.ConditionOn(via)
	if err != nil {
		return err
	}
	if *as == "" {
		*as = *name
	}
	return e.save(*as, post, stdout)
}

func runSample(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("sample", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	name := fs.String("name", "", "primitive name")
	count := fs.Int("n", 1, "number of trajectories")
	list := fs.String("phases", "", "comma separated phases")
	points := fs.Int("points", 11, "number of evenly spaced phases when -phases is empty")
	seed := fs.Uint64("seed", 0, "random seed, 0 for a random one")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	p, _, err := e.load(*name)
	if err != nil {
		return err
	}
	phases, err := phaseGrid(*list, *points)
	if err != nil {
		return err
	}
	var src gauss.Source
	if *seed != 0 {
		src = rand.New(rand.NewPCG(*seed, *seed))
	}
	for i := 0; i < *count; i++ {
		values, err := p.SampleTrajectory(phases, src)
		if err != nil {
			return err
		}
		var h []string
		if i == 0 {
			h = header(p.Dims(), "value_")
		}
		if err := writeRows(stdout, h, phases, values); err != nil {
			return err
		}
	}
	return nil
}

func runClassify(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("classify", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	timed := fs.Bool("timed", false, "first CSV column holds times instead of phases")
	noise := fs.Float64("noise", 1e-4, "observation noise variance")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return usageError("classify needs one demonstration file")
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	demo, err := readDemonstrationFile(fs.Arg(0), *timed)
	if err != nil {
		return err
	}
	records, err := e.store.List(e.ctx)
	if err != nil {
		return err
	}
	lib := library.New(logging.FromContext(e.ctx))
	seen := make(map[string]bool)
	// Newest record per name wins.
	for i := len(records) - 1; i >= 0; i-- {
		rec := records[i]
		if seen[rec.Name] {
			continue
		}
		seen[rec.Name] = true
		p, err := promp.FromParams(rec.Params, e.options()...)
		if err != nil {
			return fmt.Errorf("load %s: %w", rec.ID, err)
		}
		if err := lib.Add(rec.Name, p); err != nil {
			return err
		}
	}
	best, ll, err := lib.Classify(demo, *noise)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%s\t%s\n", best, formatFloat(ll))
	return nil
}

func runExport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("export", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	name := fs.String("name", "", "primitive name")
	out := fs.String("out", "", "output file (default: stdout)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	_, rec, err := e.load(*name)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	if *out == "" {
		_, err = stdout.Write(data)
		return err
	}
	return os.WriteFile(*out, data, 0o644)
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("import", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	in := fs.String("in", "", "exported record file")
	name := fs.String("name", "", "store as a new record under this name")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return usageError("import needs -in")
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	data, err := os.ReadFile(*in)
	if err != nil {
		return err
	}
	rec, err := store.DecodeRecord(data)
	if err != nil {
		return fmt.Errorf("decode %s: %w", *in, err)
	}
	if _, err := promp.FromParams(rec.Params); err != nil {
		return fmt.Errorf("invalid parameters in %s: %w", *in, err)
	}
	if *name != "" {
		// A renamed import is a new record.
		rec.ID = uuid.New()
		rec.Name = *name
	}
	if err := e.store.Save(e.ctx, rec); err != nil {
		return err
	}
	fmt.Fprintln(stdout, rec.ID)
	return nil
}

func runList(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	if err := fs.Parse(args); err != nil {
		return err
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	records, err := e.store.List(e.ctx)
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCREATED\tDIMS\tBASIS\tSTATE")
	for _, rec := range records {
		state := promp.Fitted
		if rec.Params.Conditioned {
			state = promp.Conditioned
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\n", rec.ID, rec.Name, rec.CreatedAt.Format(time.RFC3339),
			rec.Params.Dims, rec.Params.Basis.Count, state)
	}
	return w.Flush()
}

func runDelete(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("delete", flag.ContinueOnError)
	configPath := fs.String("config", "", "TOML config file")
	rawID := fs.String("id", "", "record id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	id, err := uuid.Parse(*rawID)
	if err != nil {
		return fmt.Errorf("parse -id: %w", err)
	}

	e, cleanup, err := setup(ctx, *configPath)
	if err != nil {
		return err
	}
	defer cleanup()

	removed, err := e.store.Delete(e.ctx, id)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("no record %s", id)
	}
	fmt.Fprintf(stdout, "deleted %s\n", id)
	return nil
}
