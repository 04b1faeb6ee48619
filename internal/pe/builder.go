package pe

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"slices"
	"strconv"

	"fortio.org/safecast"

	"meshc/internal/observ"
	"meshc/internal/trace"
)

// Set is the view of a graph set the builder needs.
type Set interface {
	ID() uint64
	Name() string
	Size() int
	Cardinality() int
	Endpoint(elem, i int) int
	EndpointSetID(i int) uint64
	// Endpoints returns the flattened Size()*Cardinality() endpoint table.
	Endpoints() []uint32
}

// Cache persists segmented indices across builders. Keys are digests of
// the expression, the source endpoint and the bound sets' topology.
type Cache interface {
	Get(digest string) (coords, sinks []uint32, ok bool, err error)
	Put(digest string, coords, sinks []uint32) error
}

// Stats counts builder work.
type Stats struct {
	Builds    int
	MemoHits  int
	CacheHits int
}

type memoKey struct {
	expr     string
	endpoint int
}

// Builder evaluates path expressions over bound sets. Built indices are
// memoized by (expression key, source endpoint), and sub-expressions are
// built through the same table. A Builder is not safe for concurrent use.
type Builder struct {
	ctx      context.Context
	bindings map[string]Set
	memo     map[memoKey]PathIndex
	cache    Cache
	metrics  *observ.Metrics
	stats    Stats
}

// Option configures a Builder.
type Option func(*Builder)

// WithContext sets the context carrying the tracer and parent span.
func WithContext(ctx context.Context) Option {
	return func(b *Builder) { b.ctx = ctx }
}

// WithCache consults c on memo misses for segmented indices.
func WithCache(c Cache) Option {
	return func(b *Builder) { b.cache = c }
}

// WithMetrics records builds, memo hits and cache lookups in m.
func WithMetrics(m *observ.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder returns a builder with no bindings.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		ctx:      context.Background(),
		bindings: make(map[string]Set),
		memo:     make(map[memoKey]PathIndex),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Bind binds a set parameter name to a concrete set. Rebinding a name to a
// different set drops every memoized index.
func (b *Builder) Bind(name string, s Set) {
	if s == nil {
		panic(fmt.Errorf("pe: nil set bound to %q", name))
	}
	if old, ok := b.bindings[name]; ok && old.ID() != s.ID() {
		clear(b.memo)
	}
	b.bindings[name] = s
}

// Binding returns the set bound to name.
func (b *Builder) Binding(name string) (Set, bool) {
	s, ok := b.bindings[name]
	return s, ok
}

// Stats returns the work counters.
func (b *Builder) Stats() Stats { return b.stats }

func (b *Builder) mustBinding(name string) Set {
	s, ok := b.bindings[name]
	if !ok {
		panic(fmt.Errorf("pe: no set bound to %q", name))
	}
	return s
}

// BuildSetEndpoint returns the endpoint-table index of the edge set bound
// to name.
func (b *Builder) BuildSetEndpoint(name string) PathIndex {
	s := b.mustBinding(name)
	if s.Cardinality() == 0 {
		panic(fmt.Errorf("pe: %q is not an edge set", name))
	}
	b.metrics.IndexBuilt("set_endpoint", 0)
	return setEndpointIndex(s)
}

// BuildSegmented evaluates expr from path endpoint sourceEndpoint and
// returns the neighbors of every element of the source set in CSR form.
// Requests for an expression already built by this builder return the
// memoized index.
func (b *Builder) BuildSegmented(expr PathExpression, sourceEndpoint int) PathIndex {
	expr.mustDefined()
	if sourceEndpoint != 0 && sourceEndpoint != 1 {
		panic(fmt.Errorf("pe: source endpoint %d not in {0,1}", sourceEndpoint))
	}
	return b.build(expr.n, sourceEndpoint)
}

func (b *Builder) build(n *node, src int) PathIndex {
	key := memoKey{expr: n.key, endpoint: src}
	if idx, ok := b.memo[key]; ok {
		b.stats.MemoHits++
		b.metrics.MemoHit()
		return idx
	}
	for _, v := range n.ends {
		b.mustBinding(v.Set)
	}

	ctx, span := trace.Start(b.ctx, trace.ScopeModule, "pidx")
	span.WithExtra("expr", n.key).WithExtra("source", strconv.Itoa(src))

	digest := ""
	if b.cache != nil {
		digest = b.digest(n, src)
		coords, sinks, ok, err := b.cache.Get(digest)
		switch {
		case err != nil:
			b.metrics.CacheLookup("error")
			trace.PointFrom(ctx, trace.ScopeModule, "pidx-cache", err.Error())
		case ok:
			if idx, err := FromCSR(coords, sinks); err == nil && idx.NumElements() == b.mustBinding(n.ends[src].Set).Size() {
				b.metrics.CacheLookup("hit")
				b.stats.CacheHits++
				b.memo[key] = idx
				span.End("cached")
				return idx
			}
			b.metrics.CacheLookup("error")
		default:
			b.metrics.CacheLookup("miss")
		}
	}

	var rows [][]int
	switch n.op {
	case OpLink:
		rows = b.link(n, src)
	case OpAnd, OpOr:
		rows = b.combine(n, src)
	case OpExists:
		rows = b.exists(n, src)
	default:
		panic(fmt.Errorf("pe: unknown path operator %d", n.op))
	}
	idx := pack(rows)
	b.memo[key] = idx
	b.stats.Builds++
	b.metrics.IndexBuilt("segmented", idx.NumNeighbors())

	if b.cache != nil {
		if err := b.cache.Put(digest, idx.coords, idx.sinks); err != nil {
			trace.PointFrom(ctx, trace.ScopeModule, "pidx-cache", err.Error())
		}
	}
	span.End(fmt.Sprintf("%d neighbors", idx.NumNeighbors()))
	return idx
}

// link evaluates the incidence between an edge set and one of its
// endpoint sets. From an edge the neighbors are its endpoints in the
// endpoint set, in endpoint order; from an element they are the incident
// edges, ascending.
func (b *Builder) link(n *node, src int) [][]int {
	from := b.mustBinding(n.ends[src].Set)
	to := b.mustBinding(n.ends[1-src].Set)

	if pos := endpointPositions(from, to); len(pos) > 0 {
		rows := make([][]int, from.Size())
		for e := range rows {
			row := make([]int, 0, len(pos))
			for _, i := range pos {
				row = append(row, from.Endpoint(e, i))
			}
			rows[e] = row
		}
		return rows
	}
	if pos := endpointPositions(to, from); len(pos) > 0 {
		rows := make([][]int, from.Size())
		for e := range to.Size() {
			for _, i := range pos {
				v := to.Endpoint(e, i)
				// edges are visited in ascending order, so a repeat is always last
				if r := rows[v]; len(r) > 0 && r[len(r)-1] == e {
					continue
				}
				rows[v] = append(rows[v], e)
			}
		}
		return rows
	}
	panic(fmt.Errorf("pe: link between unrelated sets %q and %q", from.Name(), to.Name()))
}

func endpointPositions(edges, elems Set) []int {
	var pos []int
	for i := range edges.Cardinality() {
		if edges.EndpointSetID(i) == elems.ID() {
			pos = append(pos, i)
		}
	}
	return pos
}

// exists composes the sub-paths through the quantified variable.
func (b *Builder) exists(n *node, src int) [][]int {
	start := n.ends[src]
	first, second := n.subs[0], n.subs[1]
	if src == 1 {
		first, second = second, first
	}
	toQ := b.build(first, position(first, start))
	fromQ := b.build(second, position(second, n.quant))

	size := b.mustBinding(start.Set).Size()
	width := b.mustBinding(n.ends[1-src].Set).Size()
	seen := make([]int, width)
	rows := make([][]int, size)
	for x := range size {
		var row []int
		for q := range toQ.Neighbors(x) {
			for y := range fromQ.Neighbors(q) {
				if seen[y] != x+1 {
					seen[y] = x + 1
					row = append(row, y)
				}
			}
		}
		slices.Sort(row)
		rows[x] = row
	}
	return rows
}

// combine intersects (And) or unites (Or) two paths over the same
// endpoints.
func (b *Builder) combine(n *node, src int) [][]int {
	left := b.build(n.subs[0], src)
	right := b.build(n.subs[1], src)

	size := b.mustBinding(n.ends[src].Set).Size()
	width := b.mustBinding(n.ends[1-src].Set).Size()
	mark := make([]int, width)
	rows := make([][]int, size)
	for x := range size {
		var row []int
		for y := range left.Neighbors(x) {
			mark[y] = x + 1
			if n.op == OpOr {
				row = append(row, y)
			}
		}
		for y := range right.Neighbors(x) {
			switch {
			case n.op == OpAnd && mark[y] == x+1:
				row = append(row, y)
				mark[y] = -(x + 1)
			case n.op == OpOr && mark[y] != x+1:
				row = append(row, y)
				mark[y] = x + 1
			}
		}
		slices.Sort(row)
		rows[x] = slices.Compact(row)
	}
	return rows
}

func pack(rows [][]int) PathIndex {
	total := 0
	for _, r := range rows {
		total += len(r)
	}
	coords := make([]uint32, len(rows)+1)
	sinks := make([]uint32, 0, total)
	for i, r := range rows {
		for _, s := range r {
			sinks = append(sinks, mustU32(s))
		}
		coords[i+1] = mustU32(len(sinks))
	}
	return PathIndex{kind: Segmented, coords: coords, sinks: sinks}
}

func mustU32(v int) uint32 {
	u, err := safecast.Conv[uint32](v)
	if err != nil {
		panic(fmt.Errorf("path index overflow: %w", err))
	}
	return u
}

// digest keys the cache by expression, source endpoint and the topology
// of every set the expression mentions.
func (b *Builder) digest(n *node, src int) string {
	h := sha256.New()
	h.Write([]byte(n.key))
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(src))
	h.Write(buf[:])
	for _, name := range (PathExpression{n: n}).Sets() {
		s := b.mustBinding(name)
		h.Write([]byte(name))
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Size()))
		h.Write(buf[:])
		binary.LittleEndian.PutUint64(buf[:], uint64(s.Cardinality()))
		h.Write(buf[:])
		for _, ep := range s.Endpoints() {
			binary.LittleEndian.PutUint32(buf[:4], ep)
			h.Write(buf[:4])
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
