package membership

import "github.com/google/uuid"

// Reconciliation is the outcome of replacing a space's member list.
type Reconciliation struct {
	Removed []uuid.UUID `json:"removed"`
	ReAdded []uuid.UUID `json:"reAdded"`
	Added   []uuid.UUID `json:"added"`
}

// Changed reports whether applying r writes anything.
func (r Reconciliation) Changed() bool {
	return len(r.Removed)+len(r.ReAdded)+len(r.Added) > 0
}

// Joined returns everyone who becomes an active member, re-added first.
func (r Reconciliation) Joined() []uuid.UUID {
	out := make([]uuid.UUID, 0, len(r.ReAdded)+len(r.Added))
	out = append(out, r.ReAdded...)
	return append(out, r.Added...)
}

// PlanReconcile diffs the requested member list R against the active members
// E and current past participants P. The owner is always part of R.
//
//	Removed = E \ R
//	ReAdded = R ∩ P
//	Added   = R \ E \ P
//
// Output order follows the order of existing (for Removed) and requested
// (for ReAdded and Added).
func PlanReconcile(owner uuid.UUID, existing, past, requested []uuid.UUID) Reconciliation {
	want := set(requested)
	want[owner] = struct{}{}
	active := set(existing)
	former := set(past)

	var plan Reconciliation
	for _, id := range existing {
		if _, keep := want[id]; !keep {
			plan.Removed = append(plan.Removed, id)
		}
	}

	seen := make(map[uuid.UUID]struct{}, len(want))
	for _, id := range append(append([]uuid.UUID(nil), requested...), owner) {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := active[id]; ok {
			continue
		}
		if _, ok := former[id]; ok {
			plan.ReAdded = append(plan.ReAdded, id)
		} else {
			plan.Added = append(plan.Added, id)
		}
	}
	return plan
}

func set(ids []uuid.UUID) map[uuid.UUID]struct{} {
	m := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		m[id] = struct{}{}
	}
	return m
}

// dedupe keeps the first occurrence of each id and drops uuid.Nil.
func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if id == uuid.Nil {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
