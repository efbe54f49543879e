package lcms

// AnnotateIdentifications attaches the identifications of the fragment
// scans that were merged into each ion. idents is keyed by the native
// spectrum ID of the scan. It returns the number of annotated ions.
func AnnotateIdentifications(ions []*FragmentedIon, run *Run, idents map[string][]Identification) int {
	if len(idents) == 0 {
		return 0
	}
	n := 0
	for _, ion := range ions {
		for _, id := range ion.MsMsScans {
			scan, ok := run.ScanByNumber(id)
			if !ok || scan.NativeID == "" {
				continue
			}
			ion.Identifications = append(ion.Identifications, idents[scan.NativeID]...)
		}
		if len(ion.Identifications) > 0 {
			n++
		}
	}
	return n
}
