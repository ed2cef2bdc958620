package reconcile

import "strings"

// Strategy is a set of repairs. Within one pass they run in declaration
// order regardless of how the set was built.
type Strategy uint8

const (
	// RepairEntities decodes HTML entities in every image URL.
	RepairEntities Strategy = 1 << iota
	// RepairVariants swaps the small rendition hash for the large one.
	RepairVariants
	// RepairRefetch re-fetches detail pages for fresh image URLs.
	RepairRefetch
	// RepairPlaceholder fills empty or still-expired image sets with
	// deterministic placeholders.
	RepairPlaceholder
)

const (
	// Offline is every repair that needs no network.
	Offline = RepairEntities | RepairVariants | RepairPlaceholder
	// All is every repair.
	All = Offline | RepairRefetch
)

var strategyNames = []struct {
	s    Strategy
	name string
}{
	{RepairEntities, "entities"},
	{RepairVariants, "variants"},
	{RepairRefetch, "refetch"},
	{RepairPlaceholder, "placeholder"},
}

// Has reports whether every repair in f is part of s.
func (s Strategy) Has(f Strategy) bool {
	return s&f == f
}

func (s Strategy) String() string {
	var names []string
	for _, n := range strategyNames {
		if s.Has(n.s) {
			names = append(names, n.name)
		}
	}
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, "+")
}
