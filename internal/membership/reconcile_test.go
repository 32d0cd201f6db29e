package membership

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
)

func TestPlanReconcile(t *testing.T) {
	owner, a, b, c, d := uuid.New(), uuid.New(), uuid.New(), uuid.New(), uuid.New()

	tests := []struct {
		name      string
		existing  []uuid.UUID
		past      []uuid.UUID
		requested []uuid.UUID
		want      Reconciliation
	}{
		{
			name:      "no change",
			existing:  []uuid.UUID{owner, a},
			requested: []uuid.UUID{a},
		},
		{
			name:      "owner is never removed",
			existing:  []uuid.UUID{owner, a},
			requested: nil,
			want:      Reconciliation{Removed: []uuid.UUID{a}},
		},
		{
			name:      "mixed",
			existing:  []uuid.UUID{owner, a, b},
			past:      []uuid.UUID{c},
			requested: []uuid.UUID{a, c, d},
			want: Reconciliation{
				Removed: []uuid.UUID{b},
				ReAdded: []uuid.UUID{c},
				Added:   []uuid.UUID{d},
			},
		},
		{
			name:      "duplicates in request",
			existing:  []uuid.UUID{owner},
			requested: []uuid.UUID{d, d},
			want:      Reconciliation{Added: []uuid.UUID{d}},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := PlanReconcile(owner, tt.existing, tt.past, tt.requested)
			assert.Equal(t, tt.want.Removed, got.Removed)
			assert.Equal(t, tt.want.ReAdded, got.ReAdded)
			assert.Equal(t, tt.want.Added, got.Added)
		})
	}
}

func TestJoinedOrder(t *testing.T) {
	a, b := uuid.New(), uuid.New()
	r := Reconciliation{ReAdded: []uuid.UUID{a}, Added: []uuid.UUID{b}}
	assert.Equal(t, []uuid.UUID{a, b}, r.Joined())
}
