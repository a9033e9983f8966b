package playlist

import "sort"

// Selection tracks the selected song positions inside one playlist view. It
// supports the usual click, shift-click range extension and ctrl-click
// toggling. Selections are ephemeral: switching playlists clears them.
type Selection struct {
	anchor    int
	positions map[int]bool
}

// NewSelection returns an empty selection.
func NewSelection() *Selection {
	return &Selection{anchor: -1, positions: make(map[int]bool)}
}

// Set replaces the selection with the single position, which becomes the
// anchor for later range extension.
func (sel *Selection) Set(position int) {
	sel.positions = map[int]bool{position: true}
	sel.anchor = position
}

// Toggle flips one position in or out of the selection.
func (sel *Selection) Toggle(position int) {
	if sel.positions[position] {
		delete(sel.positions, position)
		return
	}
	sel.positions[position] = true
	if sel.anchor == -1 {
		sel.anchor = position
	}
}

// ExtendTo selects the contiguous range between the anchor and position.
// Without an anchor it behaves like Set.
func (sel *Selection) ExtendTo(position int) {
	if sel.anchor == -1 {
		sel.Set(position)
		return
	}
	lo, hi := sel.anchor, position
	if lo > hi {
		lo, hi = hi, lo
	}
	sel.positions = make(map[int]bool, hi-lo+1)
	for p := lo; p <= hi; p++ {
		sel.positions[p] = true
	}
}

// Clear empties the selection.
func (sel *Selection) Clear() {
	sel.positions = make(map[int]bool)
	sel.anchor = -1
}

// Contains reports whether the position is selected.
func (sel *Selection) Contains(position int) bool {
	return sel.positions[position]
}

// Empty reports whether nothing is selected.
func (sel *Selection) Empty() bool {
	return len(sel.positions) == 0
}

// Positions returns the selected positions in ascending order.
func (sel *Selection) Positions() []int {
	out := make([]int, 0, len(sel.positions))
	for p := range sel.positions {
		out = append(out, p)
	}
	sort.Ints(out)
	return out
}

// Remap applies a reorder permutation (perm[old] = new) to the selection.
func (sel *Selection) Remap(perm []int) {
	next := make(map[int]bool, len(sel.positions))
	for p := range sel.positions {
		if p >= 0 && p < len(perm) {
			next[perm[p]] = true
		}
	}
	sel.positions = next
	if sel.anchor >= 0 && sel.anchor < len(perm) {
		sel.anchor = perm[sel.anchor]
	}
}
