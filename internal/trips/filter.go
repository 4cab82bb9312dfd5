package trips

import (
	"sort"
)

type seasoned interface {
	season() Season
}

// FilterBySeason returns the records whose season equals the selection, in
// their original order. SeasonAll returns the input unchanged.
func FilterBySeason[R seasoned](records []R, season Season) []R {
	if season == SeasonAll {
		return records
	}
	out := make([]R, 0)
	for _, r := range records {
		if r.season() == season {
			out = append(out, r)
		}
	}
	return out
}

// Seasons returns the sorted distinct non-empty seasons present in records.
func Seasons[R seasoned](records []R) []Season {
	seen := make(map[Season]struct{})
	for _, r := range records {
		if s := r.season(); s != "" {
			seen[s] = struct{}{}
		}
	}
	out := make([]Season, 0, len(seen))
	for s := range seen {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
