package layout

// recordKey is the shape of a set record. Two set types with the same
// shape share a layout whatever their element or field names.
type recordKey struct {
	lattice   bool
	endpoints int
	fields    int
}

// cache memoizes record layouts by shape. A nil cache never hits.
type cache struct {
	byShape map[recordKey]SetLayout
	hits    int
}

func newCache() *cache {
	return &cache{byShape: make(map[recordKey]SetLayout, 8)}
}

func (c *cache) get(k recordKey) (SetLayout, bool) {
	if c == nil {
		return SetLayout{}, false
	}
	l, ok := c.byShape[k]
	if ok {
		c.hits++
	}
	return l, ok
}

func (c *cache) put(k recordKey, l SetLayout) {
	if c != nil {
		c.byShape[k] = l
	}
}
