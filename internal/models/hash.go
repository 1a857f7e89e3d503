package models

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// ContentHash returns a stable digest of the tag's merge-relevant fields.
// Timestamps are excluded: two copies with identical content hash equal even
// when their clocks disagree. Reference lists are sorted so ordering noise
// does not register as an edit.
func (t Tag) ContentHash() string {
	return hashFields(map[string]any{
		"name":        t.Name,
		"description": t.Description,
		"color":       t.Color,
		"bindings":    sortedCopy(t.Bindings),
		"deleted":     t.Deleted,
	})
}

// ContentHash returns a stable digest of the page's merge-relevant fields.
func (p Page) ContentHash() string {
	return hashFields(map[string]any{
		"url":         p.URL,
		"title":       p.Title,
		"domain":      p.Domain,
		"tags":        sortedCopy(p.Tags),
		"favicon":     p.Favicon,
		"description": p.Description,
		"deleted":     p.Deleted,
	})
}

// hashFields marshals the map (json sorts keys) and hashes the result.
func hashFields(fields map[string]any) string {
	data, err := json.Marshal(fields)
	if err != nil {
		// Only unmarshalable types can fail here; field maps are all
		// strings, bools and string slices.
		return ""
	}
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sortedCopy(s []string) []string {
	if len(s) == 0 {
		return nil
	}
	out := make([]string, len(s))
	copy(out, s)
	sort.Strings(out)
	return out
}
