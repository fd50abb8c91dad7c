// Package merge fuses two component lists into one bounded, deduplicated list.
package merge

import "forge-endpointify/internal/models"

// MaxComponents caps merged output.
const MaxComponents = 12

// Merge returns primary followed by every fallback entry whose dedup key
// (selector, else id) is not already present. First occurrence wins, so a
// primary entry always shadows a fallback entry with the same key. The
// result is truncated to MaxComponents.
func Merge(primary, fallback []models.Component) []models.Component {
	seen := make(map[string]struct{}, len(primary)+len(fallback))
	out := make([]models.Component, 0, min(len(primary)+len(fallback), MaxComponents))

	add := func(list []models.Component) {
		for _, c := range list {
			key := c.Key()
			if _, dup := seen[key]; dup {
				continue
			}
			seen[key] = struct{}{}
			out = append(out, c.Clone())
		}
	}
	add(primary)
	add(fallback)

	if len(out) > MaxComponents {
		out = out[:MaxComponents]
	}
	return out
}
