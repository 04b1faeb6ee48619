package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"meshc/internal/backend"
	"meshc/internal/graph"
	"meshc/internal/mem"
	"meshc/internal/observ"
	"meshc/internal/pe"
	"meshc/internal/programs"
	"meshc/internal/trace"
	"meshc/internal/ui"
)

var runCmd = &cobra.Command{
	Use:   "run [flags] [graph files...]",
	Short: "Bind graph documents to a program and run it",
	Long: `Load each graph document, bind its sets to the program's arguments and
globals by name, initialize, run once and print the program's output field.
Without files, the graphs listed in meshc.toml are used.`,
	RunE: runGraphs,
}

func init() {
	runCmd.Flags().String("program", "gemv", "program to run ("+strings.Join(programs.Names(), "|")+")")
	runCmd.Flags().Int("jobs", 1, "number of graph documents processed concurrently")
}

type runResult struct {
	file   string
	output []float64
	timer  *observ.Timer
	err    error
}

func runGraphs(cmd *cobra.Command, args []string) error {
	program, err := cmd.Flags().GetString("program")
	if err != nil {
		return fmt.Errorf("failed to get program flag: %w", err)
	}
	jobs, err := cmd.Flags().GetInt("jobs")
	if err != nil {
		return fmt.Errorf("failed to get jobs flag: %w", err)
	}
	if jobs < 1 {
		return fmt.Errorf("--jobs must be at least 1, got %d", jobs)
	}
	files := args
	if len(files) == 0 {
		files = configGraphs()
	}
	if len(files) == 0 {
		return fmt.Errorf("no graph documents given\nplease name them on the command line or under [run].graphs in %s", configFileName)
	}
	showTimings, err := rootBool(cmd, "timings")
	if err != nil {
		return err
	}
	quiet, err := rootBool(cmd, "quiet")
	if err != nil {
		return err
	}
	cache, err := openIndexCache(cmd)
	if err != nil {
		return err
	}
	metrics, reg := newMetrics()

	ctx, span := trace.Start(cmd.Context(), trace.ScopeDriver, "run")
	span.WithExtra("program", program).WithExtra("files", strconv.Itoa(len(files)))

	results := make([]runResult, len(files))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)
	for i, file := range files {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				results[i] = runResult{file: file, err: err}
				return nil
			}
			results[i] = runOne(gctx, file, program, metrics, cache)
			return nil
		})
	}
	_ = g.Wait()
	span.End("")

	var failed []error
	out := cmd.OutOrStdout()
	for _, r := range results {
		if r.err != nil {
			failed = append(failed, fmt.Errorf("%s: %w", r.file, r.err))
		}
	}
	if !quiet || len(failed) > 0 {
		tb := ui.Table{Title: "run " + program, Header: []string{"graph", "status", "output"}, MaxWidth: 60}
		for _, r := range results {
			status, detail := "ok", formatFloats(r.output)
			if r.err != nil {
				status, detail = "error", r.err.Error()
			}
			tb.Rows = append(tb.Rows, []string{r.file, ui.Status(status, styled()), detail})
		}
		if err := tb.Render(out, styled()); err != nil {
			return err
		}
	}
	if showTimings {
		for _, r := range results {
			if r.timer != nil {
				fmt.Fprintf(out, "%s\n%s", r.file, r.timer.Summary())
			}
		}
	}
	if err := writeMetrics(cmd, reg); err != nil {
		return err
	}
	return errors.Join(failed...)
}

// runOne gives the document its own address space, image and Function.
func runOne(ctx context.Context, file, program string, metrics *observ.Metrics, cache *pe.DiskCache) (res runResult) {
	res.file = file
	g, err := graph.LoadFile(file)
	if err != nil {
		res.err = err
		return res
	}
	p, err := programs.Build(program, mem.NewSpace())
	if err != nil {
		res.err = err
		return res
	}
	opts := []backend.Option{backend.WithContext(ctx), backend.WithMetrics(metrics)}
	if cache != nil {
		opts = append(opts, backend.WithIndexCache(cache))
	}
	f, err := backend.New(p.Image, p.Func, opts...)
	if err != nil {
		res.err = err
		return res
	}
	res.timer = f.Timings()
	defer func() {
		if cerr := f.Close(); cerr != nil && res.err == nil {
			res.err = cerr
		}
	}()

	for _, name := range f.Bindables() {
		s := g.Set(name)
		if s == nil {
			res.err = fmt.Errorf("graph has no set %q for %s", name, p.Name)
			return res
		}
		if err := f.BindSet(name, s); err != nil {
			res.err = err
			return res
		}
	}
	if err := f.RunSafe(); err != nil {
		res.err = err
		return res
	}
	res.output, res.err = outputField(g, p.Output)
	return res
}

// outputField reads a "set.field" reference.
func outputField(g *graph.Graph, ref string) ([]float64, error) {
	setName, fieldName, ok := strings.Cut(ref, ".")
	if !ok {
		return nil, fmt.Errorf("malformed output reference %q", ref)
	}
	s := g.Set(setName)
	if s == nil {
		return nil, fmt.Errorf("graph has no set %q", setName)
	}
	fld := s.Field(fieldName)
	if fld == nil {
		return nil, fmt.Errorf("set %q has no field %q", setName, fieldName)
	}
	return fld.Floats(), nil
}

func formatFloats(xs []float64) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = strconv.FormatFloat(x, 'g', -1, 64)
	}
	return "[" + strings.Join(parts, " ") + "]"
}

func programNames() []string { return programs.Names() }
