package core

import (
	"sort"
	"strings"
	"sync"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Label ordering and uniqueness are case-insensitive everywhere. Both live
// here so the SQL and in-memory backends cannot drift apart: uniqueness works
// on the case-folded form persisted next to each label, ordering goes through
// one shared collator.

var (
	labelMu       sync.Mutex
	labelCollator = collate.New(language.Und, collate.IgnoreCase)
)

// FoldLabel returns the canonical case-folded form of a label, used for
// duplicate detection and stored alongside the display form.
func FoldLabel(s string) string {
	return cases.Fold().String(strings.TrimSpace(s))
}

// CompareLabels orders labels case-insensitively; the collator is not safe
// for concurrent use, hence the lock.
func CompareLabels(a, b string) int {
	labelMu.Lock()
	defer labelMu.Unlock()
	return labelCollator.CompareString(a, b)
}

// SortEntriesByLabel orders registry entries by label, case-insensitive
// ascending, id ascending as tie-break.
func SortEntriesByLabel(entries []RegistryEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		if c := CompareLabels(entries[i].Label, entries[j].Label); c != 0 {
			return c < 0
		}
		return entries[i].ID < entries[j].ID
	})
}
