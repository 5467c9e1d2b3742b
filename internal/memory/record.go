package memory

import (
	"fmt"
	"maps"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewID returns a fresh record id.
func NewID() string {
	return uuid.NewString()
}

// NewRecord builds a record from a validated entry and its embedding.
func NewRecord(e Entry, embedding []float32, now time.Time) (Record, error) {
	meta, err := NormalizeMetadata(e.Metadata)
	if err != nil {
		return Record{}, err
	}
	return Record{
		ID:        NewID(),
		Content:   e.Content,
		Tags:      NormalizeTags(e.Tags),
		Metadata:  meta,
		Embedding: embedding,
		CreatedAt: now.UTC(),
	}, nil
}

// Validate checks that the entry can be stored.
func (e Entry) Validate() error {
	if strings.TrimSpace(e.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidEntry)
	}
	if _, err := NormalizeMetadata(e.Metadata); err != nil {
		return err
	}
	return nil
}

// NormalizeTags trims tags, drops empty ones and removes duplicates while
// keeping first-seen order. It returns nil for an empty set.
func NormalizeTags(tags []string) []string {
	if len(tags) == 0 {
		return nil
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]struct{}, len(tags))
	for _, t := range tags {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// NormalizeMetadata copies metadata, converting numeric values to float64
// so that every tier round-trips the same representation. Non-scalar
// values are rejected.
func NormalizeMetadata(m map[string]any) (map[string]any, error) {
	if len(m) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(m))
	for k, v := range m {
		if k == "" {
			return nil, fmt.Errorf("%w: empty metadata key", ErrInvalidEntry)
		}
		switch val := v.(type) {
		case string, bool, float64:
			out[k] = val
		case float32:
			out[k] = float64(val)
		case int:
			out[k] = float64(val)
		case int32:
			out[k] = float64(val)
		case int64:
			out[k] = float64(val)
		case uint:
			out[k] = float64(val)
		case uint32:
			out[k] = float64(val)
		case uint64:
			out[k] = float64(val)
		case nil:
			continue
		default:
			return nil, fmt.Errorf("%w: metadata %q has non-scalar type %T", ErrInvalidEntry, k, v)
		}
	}
	return out, nil
}

// Clone returns a deep copy of the record.
func (r Record) Clone() Record {
	r.Tags = slices.Clone(r.Tags)
	r.Metadata = maps.Clone(r.Metadata)
	r.Embedding = slices.Clone(r.Embedding)
	return r
}

// HasAnyTag reports whether the record carries at least one of tags.
func (r Record) HasAnyTag(tags []string) bool {
	for _, t := range tags {
		if slices.Contains(r.Tags, t) {
			return true
		}
	}
	return false
}
