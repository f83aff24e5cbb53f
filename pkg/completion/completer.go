// Package completion computes shell completion candidates for the
// CLI: target names out of the inventory and remote paths out of
// directory listings. Everything here is pure so the completion
// behavior stays testable without a live channel.
package completion

import (
	"sort"
	"strings"

	"velo/pkg/inventory"
)

// Targets returns the target names matching prefix, plus the implicit
// "local" target, sorted.
func Targets(inv *inventory.Inventory, prefix string) []string {
	names := append(inv.Names(), "local")
	matches := make([]string, 0, len(names))
	for _, name := range names {
		if strings.HasPrefix(name, prefix) {
			matches = append(matches, name)
		}
	}
	sort.Strings(matches)
	return matches
}
