// Copyright 2025 Toly Pochkin
// SPDX-License-Identifier: Apache-2.0

package overcache

import (
	"slices"

	"github.com/mobiletoly/go-overtodo/overtodo"
)

// MutationKind identifies which coordinator runs a mutation
type MutationKind string

const (
	KindCreate MutationKind = "create"
	KindToggle MutationKind = "toggle"
	KindDelete MutationKind = "delete"
)

// Patch is the reversible per-item delta of one optimistic mutation.
// Apply, Revert and Reconcile touch only the item the patch targets, so undoing one
// mutation never discards the effects of another.
type Patch struct {
	Kind     MutationKind   `json:"kind"`
	TargetID string         `json:"target_id"`          // Temp id for create, item id otherwise
	Prior    *overtodo.Item `json:"prior,omitempty"`    // Value before the mutation (nil for create)
	Next     *overtodo.Item `json:"next,omitempty"`     // Optimistic value (nil for delete)
	Index    int            `json:"index"`              // Position of Prior at begin time
	AfterID  string         `json:"after_id,omitempty"` // Id of the item preceding Prior at begin time
}

// MutationContext is the rollback context threaded through the phases of one mutation
type MutationContext struct {
	ID    uint64 `json:"id"` // Unique per Store; identifies the coordinator invocation
	Key   string `json:"key"`
	Patch Patch  `json:"patch"`
}

// Kind is the mutation kind of the context's patch
func (m *MutationContext) Kind() MutationKind { return m.Patch.Kind }

// TargetID is the id of the item the mutation acts on
func (m *MutationContext) TargetID() string { return m.Patch.TargetID }

// Apply writes the optimistic value. It is idempotent so pending patches can be
// re-applied on top of freshly fetched server state.
func (p Patch) Apply(items []overtodo.Item) []overtodo.Item {
	switch p.Kind {
	case KindCreate:
		if p.Next != nil && indexOf(items, p.Next.ID) < 0 {
			items = append(items, *p.Next)
		}
	case KindToggle:
		if i := indexOf(items, p.TargetID); i >= 0 && p.Next != nil {
			items[i].Complete = p.Next.Complete
		}
	case KindDelete:
		items = removeID(items, p.TargetID)
	}
	return items
}

// Revert undoes Apply for this patch only
func (p Patch) Revert(items []overtodo.Item) []overtodo.Item {
	switch p.Kind {
	case KindCreate:
		items = removeID(items, p.TargetID)
	case KindToggle:
		if i := indexOf(items, p.TargetID); i >= 0 && p.Prior != nil {
			items[i].Complete = p.Prior.Complete
		}
	case KindDelete:
		if p.Prior == nil || indexOf(items, p.TargetID) >= 0 {
			return items
		}
		items = slices.Insert(items, p.reinsertIndex(items), *p.Prior)
	}
	return items
}

// Reconcile replaces the optimistic value with the server-confirmed item
func (p Patch) Reconcile(items []overtodo.Item, confirmed *overtodo.Item) []overtodo.Item {
	switch p.Kind {
	case KindCreate:
		if confirmed == nil {
			return removeID(items, p.TargetID)
		}
		tmp := indexOf(items, p.TargetID)
		stable := indexOf(items, confirmed.ID)
		switch {
		case stable >= 0:
			// A refresh already brought the stable item in; drop the placeholder
			items[stable] = *confirmed
			items = removeID(items, p.TargetID)
		case tmp >= 0:
			items[tmp] = *confirmed
		default:
			items = append(items, *confirmed)
		}
	case KindToggle:
		if confirmed == nil {
			return items
		}
		if i := indexOf(items, p.TargetID); i >= 0 {
			items[i] = *confirmed
		}
	case KindDelete:
		items = removeID(items, p.TargetID)
	}
	return items
}

// reinsertIndex places a deleted item back after its former predecessor, falling back
// to its former index when the predecessor is gone too
func (p Patch) reinsertIndex(items []overtodo.Item) int {
	if p.AfterID == "" {
		return 0
	}
	if j := indexOf(items, p.AfterID); j >= 0 {
		return j + 1
	}
	return min(max(p.Index, 0), len(items))
}

func indexOf(items []overtodo.Item, id string) int {
	return slices.IndexFunc(items, func(it overtodo.Item) bool { return it.ID == id })
}

func removeID(items []overtodo.Item, id string) []overtodo.Item {
	return slices.DeleteFunc(items, func(it overtodo.Item) bool { return it.ID == id })
}
