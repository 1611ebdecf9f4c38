package mapping

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation is matched by every *ValidationError.
var ErrValidation = errors.New("validation failed")

// ValidationError rejects one user-supplied row.
type ValidationError struct {
	Index  int    `json:"index"`
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("row %d: %s: %s", e.Index, e.Field, e.Reason)
}

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

// UpsertOptions controls how a batch is classified.
type UpsertOptions struct {
	Contribution Contribution
	// RequireIdentifier rejects rows with neither an EPIC nor a PDMS id.
	RequireIdentifier bool
	Now               func() time.Time
	NewKey            func() string
}

func (o UpsertOptions) withDefaults() UpsertOptions {
	if o.Contribution == "" {
		o.Contribution = ContributionUpload
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewKey == nil {
		o.NewKey = NewKey
	}
	return o
}

// UpsertResult reports how a batch was absorbed.
type UpsertResult struct {
	Added    int               `json:"added"`
	Updated  int               `json:"updated"`
	Skipped  int               `json:"skipped"`
	Rows     []Row             `json:"rows"`
	Rejected []ValidationError `json:"rejected,omitempty"`

	inserted []string
}

// AddedKeys returns the keys this batch inserted, in batch order.
func (r UpsertResult) AddedKeys() []string {
	return append([]string(nil), r.inserted...)
}

// Upsert classifies batch against base and overlay and returns the new
// overlay. Rows whose key already exists are updates; everything else is
// an insert, flagged user-created and timestamped. Rows without a variable
// name are skipped. Neither base nor overlay is modified.
func Upsert(base []Row, overlay Overlay, batch []Row, opts UpsertOptions) (Overlay, UpsertResult) {
	opts = opts.withDefaults()
	now := opts.Now().UTC()

	existing := KeySet(base, overlay.Rows)
	mappingIDs := make(map[string]string)
	for _, r := range base {
		if r.MappingID != "" {
			mappingIDs[r.Key] = r.MappingID
		}
	}
	// Keys the user inserted, in an earlier batch or earlier in this one,
	// keep their creation metadata when a later row updates them.
	insertedAt := make(map[string]time.Time)
	for _, r := range overlay.Rows {
		if r.MappingID != "" {
			mappingIDs[r.Key] = r.MappingID
		}
		if r.UserCreated && r.UploadedAt != nil {
			insertedAt[r.Key] = *r.UploadedAt
		}
	}

	var res UpsertResult
	processed := make([]Row, 0, len(batch))

	for i, raw := range Normalize(batch) {
		if raw.Variable == "" {
			res.Skipped++
			res.Rejected = append(res.Rejected, ValidationError{Index: i, Field: ColVariable, Reason: "variable name is required"})
			continue
		}
		if opts.RequireIdentifier && raw.EpicID == "" && raw.PDMSID == "" {
			res.Skipped++
			res.Rejected = append(res.Rejected, ValidationError{Index: i, Field: ColEpicID, Reason: "at least one identifier (EPIC ID or PDMS ID) is required"})
			continue
		}

		row := raw
		row.Origin = OriginUser
		row.Contribution = opts.Contribution
		row.Key = StableKey(row)
		if row.Key == "" {
			row.Key = opts.NewKey()
		}

		if _, ok := existing[row.Key]; ok {
			row.UserCreated = false
			row.UploadedAt = nil
			if ts, ok := insertedAt[row.Key]; ok {
				row.UserCreated = true
				row.UploadedAt = &ts
			}
			if row.MappingID == "" {
				row.MappingID = mappingIDs[row.Key]
			}
			res.Updated++
		} else {
			ts := now
			row.UserCreated = true
			row.UploadedAt = &ts
			existing[row.Key] = struct{}{}
			insertedAt[row.Key] = ts
			res.inserted = append(res.inserted, row.Key)
			res.Added++
		}
		processed = append(processed, row)
	}

	res.Rows = processed
	if len(processed) == 0 {
		return overlay, res
	}
	return overlay.Merge(processed), res
}
