package lcms

// Dedupe removes ions that were also found as an adduct or in-source
// fragment of another ion. An ion is a duplicate when the correlated
// entry of the other ion has exactly its apex point, and both share the
// same point at the other ion's apex. The entry is rewritten to refer to
// the removed ion, which keeps its fragment spectrum reachable.
func Dedupe(ions []*FragmentedIon) []*FragmentedIon {
	removed := make([]bool, len(ions))
	for i, host := range ions {
		if removed[i] {
			continue
		}
		for j, cand := range ions {
			if i == j || removed[j] || !scanRangesOverlap(&host.IonGroup, &cand.IonGroup) {
				continue
			}
			if e := matchingEntry(host, cand); e != nil {
				e.Ion = &cand.IonGroup
				removed[j] = true
			}
		}
	}
	out := ions[:0:0]
	for i, ion := range ions {
		if !removed[i] {
			out = append(out, ion)
		}
	}
	return out
}

func scanRangesOverlap(a, b *IonGroup) bool {
	a1, a2 := a.Trace.ScanRange(a.Segment)
	b1, b2 := b.Trace.ScanRange(b.Segment)
	return a1 <= b2 && b1 <= a2
}

// matchingEntry returns the adduct or in-source fragment of host that is
// the same ion as cand
func matchingEntry(host, cand *FragmentedIon) *CorrelatedIon {
	candApex := cand.Apex()
	hostApex := host.Apex().ScanID
	for _, list := range [][]CorrelatedIon{host.Adducts, host.InSourceFragments} {
		for k := range list {
			e := &list[k]
			if e.Ion == nil || e.Ion == &cand.IonGroup {
				continue
			}
			p, ok := e.Ion.Trace.PointAt(candApex.ScanID)
			if !ok || p != candApex {
				continue
			}
			q, ok := e.Ion.Trace.PointAt(hostApex)
			r, ok2 := cand.Trace.PointAt(hostApex)
			if ok && ok2 && q == r {
				return e
			}
		}
	}
	return nil
}
