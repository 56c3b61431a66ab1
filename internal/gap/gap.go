// Package gap implements C9: the pure set-difference that decides
// whether a symbol newly discovered in the catalog needs a full
// historical backfill (spec.md §4.9).
package gap

// Detect returns discovered − knownInStore: symbols present in the
// live/catalog discovery set that the store has never recorded a row
// for. An empty result is the common path; a non-empty one names the
// symbols C10 routes to BACKFILL_NEW via C2's bulk lister.
func Detect(discovered, knownInStore []string) []string {
	known := make(map[string]struct{}, len(knownInStore))
	for _, s := range knownInStore {
		known[s] = struct{}{}
	}

	var out []string
	for _, s := range discovered {
		if _, ok := known[s]; !ok {
			out = append(out, s)
		}
	}
	return out
}
