package mapping

// Master builds the master view: base rows followed by overlay rows,
// deduplicated by key (overlay wins) and filtered by the source filter.
// It is a pure function of its inputs.
func Master(base []Row, overlay Overlay, filter SourceFilter) []Row {
	combined := make([]Row, 0, len(base)+overlay.Len())
	combined = append(combined, base...)
	combined = append(combined, overlay.Rows...)

	merged := DedupeKeepLast(combined)
	out := merged[:0]
	for _, r := range merged {
		if filter.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Lookup indexes rows by key.
func Lookup(rows []Row) map[string]Row {
	m := make(map[string]Row, len(rows))
	for _, r := range rows {
		m[r.Key] = r
	}
	return m
}
