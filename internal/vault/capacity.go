package vault

import (
	"context"
	"fmt"
	"slices"
)

// EvictionVictims returns the ids to delete so that one more insertion keeps
// the total at or below max. Oldest ids go first.
func EvictionVictims(ids []int64, max int) []int64 {
	if max < 1 {
		max = 1
	}
	excess := len(ids) - (max - 1)
	if excess <= 0 {
		return nil
	}
	sorted := slices.Clone(ids)
	slices.Sort(sorted)
	return sorted[:excess]
}

// EnforceLimit evicts the oldest entries from s ahead of an insertion. Any
// storage failure is returned so the caller can abort the save.
func EnforceLimit(ctx context.Context, s Store, max int) ([]int64, error) {
	ids, err := s.EntryIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entry ids: %w", err)
	}
	victims := EvictionVictims(ids, max)
	if len(victims) == 0 {
		return nil, nil
	}
	if err := s.DeleteEntries(ctx, victims); err != nil {
		return nil, fmt.Errorf("evict entries: %w", err)
	}
	return victims, nil
}
