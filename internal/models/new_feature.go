package models

// NewFeature is one entry of the denormalized feature cache stored on a
// changeset row. URL ("{osm_type}-{osm_id}") is the identity key when
// merging reports from multiple detectors.
type NewFeature struct {
	OSMID   int64   `json:"osm_id"`
	URL     string  `json:"url"`
	Version int     `json:"version"`
	Name    string  `json:"name,omitempty"`
	Note    string  `json:"note,omitempty"`
	Reasons []int64 `json:"reasons"`
}

// MergeNewFeatures folds incoming into existing. Entries are matched by
// URL; on a match the reason id sets are unioned and a non-empty incoming
// name or note wins. Unmatched incoming entries are appended in order.
// The existing slice is not mutated.
func MergeNewFeatures(existing, incoming []NewFeature) []NewFeature {
	merged := make([]NewFeature, len(existing))
	copy(merged, existing)
	for i := range merged {
		merged[i].Reasons = append([]int64(nil), existing[i].Reasons...)
	}

	index := make(map[string]int, len(merged))
	for i, f := range merged {
		index[f.URL] = i
	}

	for _, in := range incoming {
		i, ok := index[in.URL]
		if !ok {
			f := in
			f.Reasons = append([]int64(nil), in.Reasons...)
			index[f.URL] = len(merged)
			merged = append(merged, f)
			continue
		}
		merged[i].Reasons = unionReasonIDs(merged[i].Reasons, in.Reasons)
		if in.Name != "" {
			merged[i].Name = in.Name
		}
		if in.Note != "" {
			merged[i].Note = in.Note
		}
		if in.Version > merged[i].Version {
			merged[i].Version = in.Version
		}
	}
	return merged
}

func unionReasonIDs(a, b []int64) []int64 {
	seen := make(map[int64]struct{}, len(a)+len(b))
	out := make([]int64, 0, len(a)+len(b))
	for _, id := range a {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	for _, id := range b {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
