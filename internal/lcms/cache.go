package lcms

// pointKey addresses a peak by scan and exact m/z. The m/z values come
// straight from the stored spectra, so exact comparison is safe.
type pointKey struct {
	scanID int
	mz     float64
}

// TraceCache maps every point of every built trace to its trace, so that
// building from any point of an existing trace returns that trace.
type TraceCache struct {
	byPoint map[pointKey]*Trace
	hits    int
	misses  int
}

// NewTraceCache returns an empty cache
func NewTraceCache() *TraceCache {
	return &TraceCache{byPoint: make(map[pointKey]*Trace)}
}

// Lookup returns the trace that contains the peak at mz in scan scanID
func (c *TraceCache) Lookup(scanID int, mz float64) (*Trace, bool) {
	t, ok := c.byPoint[pointKey{scanID, mz}]
	if ok {
		c.hits++
	} else {
		c.misses++
	}
	return t, ok
}

// Insert registers all points of t. Points that already belong to
// another trace keep their first owner.
func (c *TraceCache) Insert(t *Trace) {
	for _, p := range t.points {
		k := pointKey{p.ScanID, p.Mz}
		if _, ok := c.byPoint[k]; !ok {
			c.byPoint[k] = t
		}
	}
}

// Len returns the number of cached points
func (c *TraceCache) Len() int {
	return len(c.byPoint)
}

// Stats returns the number of lookup hits and misses
func (c *TraceCache) Stats() (hits, misses int) {
	return c.hits, c.misses
}
