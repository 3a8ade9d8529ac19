package state

import (
	"slices"
	"strings"
)

// upsertSorted replaces the element whose key matches item's key, or
// inserts item at its sorted position. list must already be sorted by key.
func upsertSorted[T any](list []T, item T, key func(T) string) []T {
	k := key(item)
	i, found := slices.BinarySearchFunc(list, k, func(e T, k string) int {
		return strings.Compare(key(e), k)
	})
	if found {
		list[i] = item
		return list
	}
	return slices.Insert(list, i, item)
}

// removeSorted deletes the element with the given key. It reports false
// when no such element exists.
func removeSorted[T any](list []T, k string, key func(T) string) ([]T, bool) {
	i, found := slices.BinarySearchFunc(list, k, func(e T, k string) int {
		return strings.Compare(key(e), k)
	})
	if !found {
		return list, false
	}
	return slices.Delete(list, i, i+1), true
}
