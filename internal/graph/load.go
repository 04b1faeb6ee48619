package graph

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/go-playground/validator/v10"
	"golang.org/x/text/unicode/norm"
	"gopkg.in/yaml.v3"

	"meshc/internal/diag"
)

// Format is a graph document encoding.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Document is the on-disk description of a graph.
type Document struct {
	Sets []SetDoc `toml:"sets" yaml:"sets" validate:"required,min=1,dive"`
}

// SetDoc describes one set. Node sets give Size, edge sets give Endpoints
// and Edges, lattice link sets give Lattice (the point set) and Dims.
type SetDoc struct {
	Name      string     `toml:"name" yaml:"name" validate:"required"`
	Size      int        `toml:"size" yaml:"size" validate:"gte=0"`
	Endpoints []string   `toml:"endpoints" yaml:"endpoints" validate:"omitempty,dive,required"`
	Edges     [][]int    `toml:"edges" yaml:"edges" validate:"omitempty,dive,dive,gte=0"`
	Lattice   string     `toml:"lattice" yaml:"lattice"`
	Dims      []int      `toml:"dims" yaml:"dims" validate:"omitempty,dive,gt=0"`
	Fields    []FieldDoc `toml:"fields" yaml:"fields" validate:"omitempty,dive"`
}

// FieldDoc describes a field and its initial values (one row per element,
// flattened when BlockSize > 1). Values may be omitted for zeroed fields.
type FieldDoc struct {
	Name      string    `toml:"name" yaml:"name" validate:"required"`
	Type      string    `toml:"type" yaml:"type" validate:"omitempty,oneof=float int"`
	BlockSize int       `toml:"block" yaml:"block" validate:"gte=0"`
	Values    []float64 `toml:"values" yaml:"values"`
}

var docValidate = validator.New()

// FormatOf picks the document format from a file extension.
func FormatOf(path string) (Format, bool) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, true
	case ".yaml", ".yml":
		return FormatYAML, true
	}
	return "", false
}

// LoadFile reads and builds the graph document at path.
func LoadFile(path string) (*Graph, error) {
	format, ok := FormatOf(path)
	if !ok {
		return nil, diag.Usage(diag.GrfUnknownFormat, path, ".toml, .yaml or .yml", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Load(data, format, path)
}

// Load decodes, validates and builds a graph document. Problems are
// collected and returned together.
func Load(data []byte, format Format, file string) (*Graph, error) {
	var doc Document
	switch format {
	case FormatTOML:
		if _, err := toml.NewDecoder(bytes.NewReader(data)).Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	case FormatYAML:
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%s: %w", file, err)
		}
	default:
		return nil, diag.Usage(diag.GrfUnknownFormat, file, "toml or yaml", string(format))
	}

	bag := diag.NewBag(64)
	g := Build(&doc, file, diag.BagReporter{Bag: bag})
	if err := bag.Err(); err != nil {
		return nil, err
	}
	return g, nil
}

// Build turns a decoded document into a graph. Node sets and lattices are
// created first so edge sets may reference them in any order; edge sets
// may only reference edge sets listed before them.
func Build(doc *Document, file string, r diag.Reporter) *Graph {
	g := NewGraph()
	if err := docValidate.Struct(doc); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				diag.ReportError(r, diag.GrfInvalidDocument, diag.Location{File: file, Path: fe.Namespace()},
					fmt.Sprintf("failed %q constraint", fe.Tag()))
			}
		} else {
			diag.ReportError(r, diag.GrfInvalidDocument, diag.Location{File: file}, err.Error())
		}
		return g
	}
	for i := range doc.Sets {
		doc.Sets[i].Name = norm.NFC.String(doc.Sets[i].Name)
		doc.Sets[i].Lattice = norm.NFC.String(doc.Sets[i].Lattice)
		for j := range doc.Sets[i].Endpoints {
			doc.Sets[i].Endpoints[j] = norm.NFC.String(doc.Sets[i].Endpoints[j])
		}
		for j := range doc.Sets[i].Fields {
			doc.Sets[i].Fields[j].Name = norm.NFC.String(doc.Sets[i].Fields[j].Name)
		}
	}

	at := func(sd *SetDoc, suffix string) diag.Location {
		p := "sets." + sd.Name
		if suffix != "" {
			p += "." + suffix
		}
		return diag.Location{File: file, Path: p}
	}
	insert := func(sd *SetDoc, s *Set) {
		if err := g.Insert(s); err != nil {
			diag.ReportError(r, diag.GrfDuplicateSet, at(sd, ""), err.Error())
		}
	}

	// node sets
	for i := range doc.Sets {
		sd := &doc.Sets[i]
		if len(sd.Endpoints) != 0 || sd.Lattice != "" {
			continue
		}
		if len(sd.Edges) != 0 {
			diag.ReportError(r, diag.GrfInvalidDocument, at(sd, "edges"), "edges given for a set without endpoints")
			continue
		}
		s := NewSet(sd.Name)
		for range sd.Size {
			s.Add()
		}
		insert(sd, s)
	}
	// lattices
	for i := range doc.Sets {
		sd := &doc.Sets[i]
		if sd.Lattice == "" {
			continue
		}
		if len(sd.Endpoints) != 0 || len(sd.Edges) != 0 {
			diag.ReportError(r, diag.GrfBadLattice, at(sd, ""), "lattice sets take no explicit endpoints or edges")
			continue
		}
		points := g.Set(sd.Lattice)
		if points == nil {
			diag.ReportError(r, diag.GrfUnknownSet, at(sd, "lattice"), fmt.Sprintf("unknown point set %q", sd.Lattice))
			continue
		}
		s, err := NewLatticeLinkSet(sd.Name, points, sd.Dims)
		if err != nil {
			diag.ReportError(r, diag.GrfBadLattice, at(sd, "dims"), err.Error())
			continue
		}
		insert(sd, s)
	}
	// edge sets
	for i := range doc.Sets {
		sd := &doc.Sets[i]
		if len(sd.Endpoints) == 0 || sd.Lattice != "" {
			continue
		}
		eps := make([]*Set, len(sd.Endpoints))
		ok := true
		for j, name := range sd.Endpoints {
			if eps[j] = g.Set(name); eps[j] == nil {
				diag.ReportError(r, diag.GrfUnknownSet, at(sd, fmt.Sprintf("endpoints[%d]", j)), fmt.Sprintf("unknown set %q", name))
				ok = false
			}
		}
		if !ok {
			continue
		}
		s := NewEdgeSet(sd.Name, eps...)
		for j, e := range sd.Edges {
			if _, err := s.AddEdge(e...); err != nil {
				diag.ReportError(r, diag.GrfBadEndpoint, at(sd, fmt.Sprintf("edges[%d]", j)), err.Error())
			}
		}
		insert(sd, s)
	}
	// fields
	for i := range doc.Sets {
		sd := &doc.Sets[i]
		s := g.Set(sd.Name)
		if s == nil {
			continue
		}
		for _, fd := range sd.Fields {
			buildField(s, fd, r, at(sd, "fields."+fd.Name))
		}
	}
	return g
}

func buildField(s *Set, fd FieldDoc, r diag.Reporter, loc diag.Location) {
	ct := Float64
	if fd.Type == "int" {
		ct = Int32
	}
	block := fd.BlockSize
	if block == 0 {
		block = 1
	}
	f, err := s.AddField(fd.Name, ct, block)
	if err != nil {
		diag.ReportError(r, diag.GrfInvalidDocument, loc, err.Error())
		return
	}
	if len(fd.Values) == 0 {
		return
	}
	if want := s.Size() * block; len(fd.Values) != want {
		diag.ReportError(r, diag.GrfFieldLength, loc,
			fmt.Sprintf("%d values for %d elements of block size %d", len(fd.Values), s.Size(), block))
		return
	}
	for k, v := range fd.Values {
		f.SetFloat(k/block, k%block, v)
	}
}
