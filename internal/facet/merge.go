package facet

import "github.com/klask-io/klask-io-sub002/internal/domain"

// Merge implements spec.md §4.7's canonical merge rule: given the static
// facet list, the scoped (query+filter-restricted) facet list, and the
// values currently selected by the user, produce the list the UI should
// display for one category.
//
// Guarantees: every selected value survives; no zero-count value appears
// unless selected; static_list's relative order is preserved, with any
// selected-but-absent values appended after it.
func Merge(staticList, scopedList []domain.FacetValue, selected []string) []domain.FacetValue {
	if len(scopedList) == 0 {
		return staticList
	}
	if len(staticList) == 0 {
		return scopedList
	}

	scopedMap := make(map[string]int, len(scopedList))
	for _, v := range scopedList {
		scopedMap[v.Value] = v.Count
	}

	selectedSet := make(map[string]bool, len(selected))
	for _, s := range selected {
		selectedSet[s] = true
	}

	staticValues := make(map[string]bool, len(staticList))
	for _, v := range staticList {
		staticValues[v.Value] = true
	}

	merged := make([]domain.FacetValue, 0, len(staticList)+len(selected))
	for _, v := range staticList {
		merged = append(merged, v)
	}
	for _, s := range selected {
		if !staticValues[s] {
			merged = append(merged, domain.FacetValue{Value: s, Count: scopedMap[s]})
		}
	}

	out := make([]domain.FacetValue, 0, len(merged))
	for _, v := range merged {
		count := scopedMap[v.Value]
		if count > 0 || selectedSet[v.Value] {
			out = append(out, domain.FacetValue{Value: v.Value, Count: count})
		}
	}
	return out
}
