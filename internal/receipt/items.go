package receipt

import (
	"fmt"
	"sort"
)

// Renumber sorts items by their current position and rewrites positions as
// 1..n. The input slice is not modified.
func Renumber(items []LineItem) []LineItem {
	out := make([]LineItem, len(items))
	copy(out, items)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	for i := range out {
		out[i].Position = i + 1
	}
	return out
}

// Add appends item at the end.
func Add(items []LineItem, item LineItem) ([]LineItem, error) {
	if err := item.Validate(); err != nil {
		return nil, err
	}
	out := Renumber(items)
	item.Position = len(out) + 1
	return append(out, item), nil
}

// Remove drops the item with id and closes the gap.
func Remove(items []LineItem, id string) ([]LineItem, error) {
	out := Renumber(items)
	for i, item := range out {
		if item.ID == id {
			out = append(out[:i], out[i+1:]...)
			return Renumber(out), nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrPositionMissing, id)
}

// Move places the item with id at position to (1-based).
func Move(items []LineItem, id string, to int) ([]LineItem, error) {
	out := Renumber(items)
	if to < 1 || to > len(out) {
		return nil, fmt.Errorf("%w: %d", ErrPositionMissing, to)
	}
	from := -1
	for i, item := range out {
		if item.ID == id {
			from = i
			break
		}
	}
	if from < 0 {
		return nil, fmt.Errorf("%w: %s", ErrPositionMissing, id)
	}
	moved := out[from]
	out = append(out[:from], out[from+1:]...)
	idx := to - 1
	out = append(out[:idx], append([]LineItem{moved}, out[idx:]...)...)
	for i := range out {
		out[i].Position = i + 1
	}
	return out, nil
}

// Reorder applies an explicit id order. Every existing id must appear once.
func Reorder(items []LineItem, ids []string) ([]LineItem, error) {
	if len(ids) != len(items) {
		return nil, fmt.Errorf("%w: expected %d ids, got %d", ErrInvalidItem, len(items), len(ids))
	}
	byID := make(map[string]LineItem, len(items))
	for _, item := range items {
		byID[item.ID] = item
	}
	out := make([]LineItem, 0, len(ids))
	for i, id := range ids {
		item, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrPositionMissing, id)
		}
		delete(byID, id)
		item.Position = i + 1
		out = append(out, item)
	}
	return out, nil
}
