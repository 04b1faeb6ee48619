package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"meshc/internal/graph"
	"meshc/internal/ui"
)

var inspectCmd = &cobra.Command{
	Use:   "inspect <graph file>",
	Short: "Show the sets and fields of a graph document",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		g, err := graph.LoadFile(args[0])
		if err != nil {
			return err
		}
		return renderGraph(cmd, args[0], g)
	},
}

func renderGraph(cmd *cobra.Command, file string, g *graph.Graph) error {
	tb := ui.Table{Title: file, Header: []string{"set", "kind", "size", "endpoints", "fields"}}
	for _, s := range g.Sets() {
		eps := make([]string, s.Cardinality())
		for i := range eps {
			eps[i] = s.EndpointSet(i).Name()
		}
		endpoints := strings.Join(eps, ",")
		if dims := s.Dimensions(); len(dims) > 0 {
			endpoints += fmt.Sprintf(" dims=%v", dims)
		}
		var fields []string
		for _, f := range s.Fields() {
			fields = append(fields, fmt.Sprintf("%s:%s x%d", f.Name(), f.Component(), f.BlockSize()))
		}
		tb.AddRow(s.Name(), s.Kind(), s.Size(), endpoints, strings.Join(fields, " "))
	}
	return tb.Render(cmd.OutOrStdout(), styled())
}
