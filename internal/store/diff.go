package store

import (
	"context"
	"fmt"
	"sort"
)

// ChangeKind classifies a difference between two runs.
type ChangeKind int

const (
	// ChangeAdded is a value only the newer run reports.
	ChangeAdded ChangeKind = iota
	// ChangeRemoved is a value only the older run reports.
	ChangeRemoved
	// ChangeRetyped is a value whose type differs between the runs.
	ChangeRetyped
)

// String returns a human-readable representation of the change kind.
func (k ChangeKind) String() string {
	switch k {
	case ChangeAdded:
		return "added"
	case ChangeRemoved:
		return "removed"
	case ChangeRetyped:
		return "retyped"
	default:
		return fmt.Sprintf("ChangeKind(%d)", k)
	}
}

// ValueChange is one value whose recovered type changed between runs.
type ValueChange struct {
	Kind  ChangeKind
	Value string
	Old   string
	New   string
}

// DiffRuns compares the upper types of two runs. Changes are sorted by
// value, then kind.
func (s *Store) DiffRuns(ctx context.Context, oldID, newID string) ([]ValueChange, error) {
	oldVals, err := s.readValueTypes(ctx, oldID)
	if err != nil {
		return nil, err
	}
	newVals, err := s.readValueTypes(ctx, newID)
	if err != nil {
		return nil, err
	}

	before := make(map[string]string, len(oldVals))
	for _, v := range oldVals {
		before[v.Value] = v.Upper
	}
	var changes []ValueChange
	for _, v := range newVals {
		old, ok := before[v.Value]
		switch {
		case !ok:
			changes = append(changes, ValueChange{Kind: ChangeAdded, Value: v.Value, New: v.Upper})
		case old != v.Upper:
			changes = append(changes, ValueChange{Kind: ChangeRetyped, Value: v.Value, Old: old, New: v.Upper})
		}
		delete(before, v.Value)
	}
	for value, old := range before {
		changes = append(changes, ValueChange{Kind: ChangeRemoved, Value: value, Old: old})
	}

	sort.Slice(changes, func(i, j int) bool {
		if changes[i].Value != changes[j].Value {
			return changes[i].Value < changes[j].Value
		}
		return changes[i].Kind < changes[j].Kind
	})
	return changes, nil
}
