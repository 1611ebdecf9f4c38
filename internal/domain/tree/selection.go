package tree

import "strings"

// NormalizeSelection reduces raw selection tokens to canonical ROW:<key>
// identifiers. Legacy composite tokens ("organ|group|key") resolve to their
// last segment; anything else is dropped. The result is deduplicated in
// first-seen order, so the function is idempotent.
func NormalizeSelection(raw []string) []string {
	out := make([]string, 0, len(raw))
	seen := make(map[string]bool, len(raw))
	for _, v := range raw {
		v = strings.TrimSpace(v)
		var key string
		switch {
		case strings.HasPrefix(v, PrefixRow):
			key = strings.TrimSpace(strings.TrimPrefix(v, PrefixRow))
		case strings.Contains(v, "|"):
			parts := strings.Split(v, "|")
			key = strings.TrimSpace(parts[len(parts)-1])
		}
		if key == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, LeafID(key))
	}
	return out
}

// FilterSelection keeps the entries whose row key is in valid, in order.
func FilterSelection(selection []string, valid map[string]struct{}) []string {
	out := make([]string, 0, len(selection))
	for _, id := range selection {
		key, ok := RowKey(id)
		if !ok {
			continue
		}
		if _, ok := valid[key]; ok {
			out = append(out, id)
		}
	}
	return out
}

// SelectedKeys returns the row keys of a canonical selection.
func SelectedKeys(selection []string) []string {
	keys := make([]string, 0, len(selection))
	for _, id := range selection {
		if key, ok := RowKey(id); ok {
			keys = append(keys, key)
		}
	}
	return keys
}

// Add appends the leaf identifiers of keys not yet selected.
func Add(selection []string, keys ...string) []string {
	ids := make([]string, 0, len(selection)+len(keys))
	ids = append(ids, selection...)
	for _, k := range keys {
		ids = append(ids, LeafID(k))
	}
	return NormalizeSelection(ids)
}
