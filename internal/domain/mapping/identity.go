package mapping

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

// StableKey returns the cross-source identity of a normalised row:
// EPIC:<id> if it has an EPIC id, else PDMS:<id>, else "" (no stable
// identity).
func StableKey(r Row) string {
	if r.EpicID != "" {
		return KeyPrefixEPIC + r.EpicID
	}
	if r.PDMSID != "" {
		return KeyPrefixPDMS + r.PDMSID
	}
	return ""
}

// HasStableIdentity reports whether key came from an EPIC or PDMS id.
func HasStableIdentity(key string) bool {
	return strings.HasPrefix(key, KeyPrefixEPIC) || strings.HasPrefix(key, KeyPrefixPDMS)
}

// baseSyntheticKey derives a deterministic key for a base row without
// identifiers from its content and position in the base dataset.
func baseSyntheticKey(r Row, position int) string {
	sum := sha256.Sum256([]byte(strings.Join([]string{
		r.Variable, r.OrganSystem, r.Group, strconv.Itoa(position),
	}, "\x1f")))
	return KeyPrefixBase + hex.EncodeToString(sum[:])[:10]
}

// NewKey returns a fresh synthetic key for a user row without identifiers.
func NewKey() string {
	return KeyPrefixNew + uuid.NewString()
}

// AssignBaseKeys returns a copy of rows, normalised, keyed and tagged as
// base rows.
func AssignBaseKeys(rows []Row) []Row {
	out := Normalize(rows)
	for i := range out {
		key := StableKey(out[i])
		if key == "" {
			key = baseSyntheticKey(out[i], i)
		}
		out[i].Key = key
		out[i].Origin = OriginBase
		out[i].Contribution = ""
		out[i].UserCreated = false
		out[i].UploadedAt = nil
	}
	return out
}
