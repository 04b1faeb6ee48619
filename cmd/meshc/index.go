package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"meshc/internal/graph"
	"meshc/internal/pe"
	"meshc/internal/trace"
	"meshc/internal/ui"
)

var indexCmd = &cobra.Command{
	Use:   "index [flags] <graph file>",
	Short: "Build and print a path index over a graph",
	Long: `Build the path index of the edge set named by --via and print it in CSR
form. By default the index relates elements that share an edge
(exists e in via: link(i, e) and link(e, j)); --link prints the incidence
between the edges and their endpoints instead.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("via", "", "edge or lattice link set the path runs through (required)")
	indexCmd.Flags().Int("endpoint", 0, "path endpoint the index is evaluated from (0|1)")
	indexCmd.Flags().Bool("link", false, "print the edge-endpoint incidence instead of element neighbors")
	_ = indexCmd.MarkFlagRequired("via")
}

func runIndex(cmd *cobra.Command, args []string) error {
	via, err := cmd.Flags().GetString("via")
	if err != nil {
		return fmt.Errorf("failed to get via flag: %w", err)
	}
	endpoint, err := cmd.Flags().GetInt("endpoint")
	if err != nil {
		return fmt.Errorf("failed to get endpoint flag: %w", err)
	}
	if endpoint != 0 && endpoint != 1 {
		return fmt.Errorf("--endpoint must be 0 or 1, got %d", endpoint)
	}
	linkOnly, err := cmd.Flags().GetBool("link")
	if err != nil {
		return fmt.Errorf("failed to get link flag: %w", err)
	}

	g, err := graph.LoadFile(args[0])
	if err != nil {
		return err
	}
	edges := g.Set(via)
	if edges == nil {
		return fmt.Errorf("%s: no set %q", args[0], via)
	}
	if edges.Cardinality() != 2 {
		return fmt.Errorf("%s: set %q has %d endpoints, want 2", args[0], via, edges.Cardinality())
	}

	cache, err := openIndexCache(cmd)
	if err != nil {
		return err
	}
	metrics, reg := newMetrics()
	ctx, span := trace.Start(cmd.Context(), trace.ScopeDriver, "index")
	defer span.End(via)

	opts := []pe.Option{pe.WithContext(ctx), pe.WithMetrics(metrics)}
	if cache != nil {
		opts = append(opts, pe.WithCache(cache))
	}
	b := pe.NewBuilder(opts...)
	for _, s := range g.Sets() {
		b.Bind(s.Name(), s)
	}

	expr := pathFor(edges, linkOnly)
	idx := b.BuildSegmented(expr, endpoint)
	coords, sinks, _ := idx.Segmented()

	tb := ui.Table{
		Title:  fmt.Sprintf("%s from endpoint %d: %d elements, %d neighbors", expr, endpoint, idx.NumElements(), idx.NumNeighbors()),
		Header: []string{"element", "count", "neighbors"},
	}
	for e := range idx.Elements() {
		var ns []string
		for n := range idx.Neighbors(e) {
			ns = append(ns, strconv.Itoa(n))
		}
		tb.AddRow(e, idx.NumNeighborsOf(e), strings.Join(ns, " "))
	}
	out := cmd.OutOrStdout()
	if err := tb.Render(out, styled()); err != nil {
		return err
	}
	fmt.Fprintf(out, "rowptr %v\ncolidx %v\n", coords, sinks)
	return writeMetrics(cmd, reg)
}

// pathFor returns the element neighbor relation through edges, or with
// linkOnly the link between edges and their first endpoint set.
func pathFor(edges *graph.Set, linkOnly bool) pe.PathExpression {
	e := pe.Var{Name: "e", Set: edges.Name()}
	i := pe.Var{Name: "i", Set: edges.EndpointSet(0).Name()}
	if linkOnly {
		return pe.Link(e, i)
	}
	j := pe.Var{Name: "j", Set: edges.EndpointSet(1).Name()}
	return pe.Exists(e, pe.Link(i, e), pe.Link(e, j))
}
