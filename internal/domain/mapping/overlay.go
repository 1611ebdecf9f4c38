package mapping

// Overlay is the session-owned collection of user-contributed rows layered
// over the base dataset. It is immutable: Merge returns a new Overlay with
// an incremented Version.
type Overlay struct {
	Version int   `json:"version"`
	Rows    []Row `json:"rows"`
}

// Len returns the number of rows in the overlay.
func (o Overlay) Len() int { return len(o.Rows) }

// Get returns the overlay row for key.
func (o Overlay) Get(key string) (Row, bool) {
	for i := len(o.Rows) - 1; i >= 0; i-- {
		if o.Rows[i].Key == key {
			return o.Rows[i].clone(), true
		}
	}
	return Row{}, false
}

// Merge returns a new overlay holding the current rows followed by batch,
// deduplicated by key with the batch winning on collision.
func (o Overlay) Merge(batch []Row) Overlay {
	combined := make([]Row, 0, len(o.Rows)+len(batch))
	combined = append(combined, o.Rows...)
	combined = append(combined, batch...)
	return Overlay{
		Version: o.Version + 1,
		Rows:    DedupeKeepLast(combined),
	}
}

// DedupeKeepLast drops every row whose key appears again later in rows.
// Surviving rows keep their relative order and are copied.
func DedupeKeepLast(rows []Row) []Row {
	last := make(map[string]int, len(rows))
	for i, r := range rows {
		last[r.Key] = i
	}
	out := make([]Row, 0, len(last))
	for i, r := range rows {
		if last[r.Key] == i {
			out = append(out, r.clone())
		}
	}
	return out
}

// KeySet collects the keys of rows.
func KeySet(rows ...[]Row) map[string]struct{} {
	n := 0
	for _, rs := range rows {
		n += len(rs)
	}
	set := make(map[string]struct{}, n)
	for _, rs := range rows {
		for _, r := range rs {
			set[r.Key] = struct{}{}
		}
	}
	return set
}
