// Package membership owns the durable membership state machine of a space:
//
//	NonMember -> Invited -> Member -> Left|Removed -> Member -> ...
//
// Every compound mutation runs in one store transaction that locks the space
// row first, so concurrent changes to the same space serialize.
package membership

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

// Lifecycle applies membership transitions.
type Lifecycle struct {
	store  store.Store
	logger *zap.Logger
	now    func() time.Time
}

// New creates a Lifecycle. now defaults to time.Now.
func New(st store.Store, logger *zap.Logger, now func() time.Time) *Lifecycle {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Lifecycle{store: st, logger: logger, now: now}
}

// lockLive locks the space row and rejects missing or deleted spaces.
func lockLive(ctx context.Context, tx store.Queries, spaceID uuid.UUID) (*models.Space, error) {
	sp, err := tx.LockSpace(ctx, spaceID)
	if err != nil {
		return nil, apperr.Transient("lock space", err)
	}
	if sp == nil || sp.IsDeleted {
		return nil, apperr.NotFound("collab not found")
	}
	return sp, nil
}

// admit inserts memberships and clears any past-participant rows for the same users.
func admit(ctx context.Context, tx store.Queries, spaceID uuid.UUID, ids []uuid.UUID, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	if err := tx.DeletePastParticipants(ctx, spaceID, ids); err != nil {
		return apperr.Transient("clear past participants", err)
	}
	if err := tx.InsertMemberships(ctx, spaceID, ids, at); err != nil {
		return apperr.Transient("insert memberships", err)
	}
	return nil
}

// Establish creates sp with its owner and the given members in one
// transaction and returns the members added besides the owner.
func (l *Lifecycle) Establish(ctx context.Context, sp *models.Space, memberIDs []uuid.UUID) ([]uuid.UUID, error) {
	var added []uuid.UUID
	for _, id := range dedupe(memberIDs) {
		if id != sp.OwnerID {
			added = append(added, id)
		}
	}
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		if err := tx.CreateSpace(ctx, sp); err != nil {
			return apperr.Transient("create space", err)
		}
		return admit(ctx, tx, sp.ID, append([]uuid.UUID{sp.OwnerID}, added...), l.now())
	})
	if err != nil {
		return nil, apperr.Transient("create collab", err)
	}
	l.logger.Info("collab created", zap.String("space_id", sp.ID.String()), zap.Int("members", len(added)+1))
	return added, nil
}

// AddMembers makes every id an active member and returns the ids that were
// not members before. Already-active ids are ignored.
func (l *Lifecycle) AddMembers(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	var added []uuid.UUID
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		if _, err := lockLive(ctx, tx, spaceID); err != nil {
			return err
		}
		existing, err := tx.ListMemberIDs(ctx, spaceID)
		if err != nil {
			return apperr.Transient("list members", err)
		}
		active := set(existing)
		for _, id := range dedupe(userIDs) {
			if _, ok := active[id]; !ok {
				added = append(added, id)
			}
		}
		return admit(ctx, tx, spaceID, added, l.now())
	})
	if err != nil {
		return nil, apperr.Transient("add members", err)
	}
	if len(added) > 0 {
		l.logger.Info("members added", zap.String("space_id", spaceID.String()), zap.Int("count", len(added)))
	}
	return added, nil
}

// Leave moves a member to the left state. The owner cannot leave.
func (l *Lifecycle) Leave(ctx context.Context, userID, spaceID uuid.UUID) error {
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		sp, err := lockLive(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if sp.OwnerID == userID {
			return apperr.Forbidden("owner cannot leave collab")
		}
		member, err := tx.IsMember(ctx, spaceID, userID)
		if err != nil {
			return apperr.Transient("check membership", err)
		}
		if !member {
			return apperr.Conflict("user is not a member of this collab")
		}
		if err := tx.DeleteMemberships(ctx, spaceID, []uuid.UUID{userID}); err != nil {
			return apperr.Transient("delete membership", err)
		}
		at := l.now()
		return apperr.Transient("record past participant", tx.InsertPastParticipants(ctx, []models.PastParticipant{{
			UserID:  userID,
			SpaceID: spaceID,
			Status:  models.StatusLeft,
			LeftAt:  &at,
		}}))
	})
	if err != nil {
		return apperr.Transient("leave collab", err)
	}
	l.logger.Info("member left", zap.String("space_id", spaceID.String()), zap.String("user_id", userID.String()))
	return nil
}

// RemoveAndReconcile replaces the member list of a space with requested. Only
// the owner may call it and the owner always stays a member. Applying the same
// list twice writes nothing the second time.
func (l *Lifecycle) RemoveAndReconcile(ctx context.Context, requesterID, spaceID uuid.UUID, requested []uuid.UUID) (Reconciliation, error) {
	var plan Reconciliation
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		sp, err := lockOwned(ctx, tx, requesterID, spaceID)
		if err != nil {
			return err
		}
		plan, err = l.reconcile(ctx, tx, requesterID, sp, requested)
		return err
	})
	if err != nil {
		return Reconciliation{}, apperr.Transient("reconcile members", err)
	}
	l.logPlan(spaceID, plan)
	return plan, nil
}

// Update writes patch (when non-nil) and reconciles members against
// requested (when non-nil) in one transaction, so a failed reconcile leaves
// the space unpatched.
func (l *Lifecycle) Update(ctx context.Context, requesterID, spaceID uuid.UUID, patch *models.Space, requested []uuid.UUID) (Reconciliation, error) {
	var plan Reconciliation
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		sp, err := lockOwned(ctx, tx, requesterID, spaceID)
		if err != nil {
			return err
		}
		if patch != nil {
			if err := tx.UpdateSpace(ctx, patch); err != nil {
				return apperr.Transient("update space", err)
			}
		}
		if requested == nil {
			return nil
		}
		plan, err = l.reconcile(ctx, tx, requesterID, sp, requested)
		return err
	})
	if err != nil {
		return Reconciliation{}, apperr.Transient("update collab", err)
	}
	l.logPlan(spaceID, plan)
	return plan, nil
}

func lockOwned(ctx context.Context, tx store.Queries, requesterID, spaceID uuid.UUID) (*models.Space, error) {
	sp, err := lockLive(ctx, tx, spaceID)
	if err != nil {
		return nil, err
	}
	if sp.OwnerID != requesterID {
		return nil, apperr.Forbidden("only the collab owner can change members")
	}
	return sp, nil
}

func (l *Lifecycle) reconcile(ctx context.Context, tx store.Queries, requesterID uuid.UUID, sp *models.Space, requested []uuid.UUID) (Reconciliation, error) {
	existing, err := tx.ListMemberIDs(ctx, sp.ID)
	if err != nil {
		return Reconciliation{}, apperr.Transient("list members", err)
	}
	past, err := tx.ListCurrentPastIDs(ctx, sp.ID)
	if err != nil {
		return Reconciliation{}, apperr.Transient("list past participants", err)
	}
	plan := PlanReconcile(sp.OwnerID, existing, past, dedupe(requested))
	if !plan.Changed() {
		return plan, nil
	}

	at := l.now()
	if len(plan.Removed) > 0 {
		if err := tx.DeleteMemberships(ctx, sp.ID, plan.Removed); err != nil {
			return Reconciliation{}, apperr.Transient("delete memberships", err)
		}
		rows := make([]models.PastParticipant, 0, len(plan.Removed))
		for _, id := range plan.Removed {
			removedAt := at
			by := requesterID
			rows = append(rows, models.PastParticipant{
				UserID:    id,
				SpaceID:   sp.ID,
				Status:    models.StatusRemoved,
				LeftAt:    &removedAt,
				RemovedAt: &removedAt,
				RemovedBy: &by,
			})
		}
		if err := tx.InsertPastParticipants(ctx, rows); err != nil {
			return Reconciliation{}, apperr.Transient("record removed participants", err)
		}
	}
	if err := admit(ctx, tx, sp.ID, plan.Joined(), at); err != nil {
		return Reconciliation{}, err
	}
	return plan, nil
}

func (l *Lifecycle) logPlan(spaceID uuid.UUID, plan Reconciliation) {
	if !plan.Changed() {
		return
	}
	l.logger.Info("members reconciled",
		zap.String("space_id", spaceID.String()),
		zap.Int("removed", len(plan.Removed)),
		zap.Int("re_added", len(plan.ReAdded)),
		zap.Int("added", len(plan.Added)),
	)
}

// JoinPublic lets any user join a public space.
func (l *Lifecycle) JoinPublic(ctx context.Context, userID, spaceID uuid.UUID) error {
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		sp, err := lockLive(ctx, tx, spaceID)
		if err != nil {
			return err
		}
		if sp.Visibility != models.VisibilityPublic {
			return apperr.Forbidden("collab is private")
		}
		member, err := tx.IsMember(ctx, spaceID, userID)
		if err != nil {
			return apperr.Transient("check membership", err)
		}
		if member {
			return apperr.Conflict("user is already a member of this collab")
		}
		return admit(ctx, tx, spaceID, []uuid.UUID{userID}, l.now())
	})
	if err != nil {
		return apperr.Transient("join collab", err)
	}
	l.logger.Info("member joined", zap.String("space_id", spaceID.String()), zap.String("user_id", userID.String()))
	return nil
}

// AcceptInvite admits the user through the newest invitation addressed to
// email. The invitation row stays locked until commit, so a concurrent expiry
// either sees joined=true or wins first and makes this call fail.
func (l *Lifecycle) AcceptInvite(ctx context.Context, userID uuid.UUID, email string, spaceID uuid.UUID) error {
	err := l.store.InTx(ctx, func(tx store.Queries) error {
		if _, err := lockLive(ctx, tx, spaceID); err != nil {
			return err
		}
		inv, err := tx.LockLatestInvitation(ctx, spaceID, email)
		if err != nil {
			return apperr.Transient("lock invitation", err)
		}
		switch {
		case inv == nil:
			return apperr.NotFound("invitation not found")
		case inv.Expired:
			return apperr.ExpiredState("invitation has expired")
		case inv.Joined:
			return apperr.Conflict("invitation already used")
		}
		member, err := tx.IsMember(ctx, spaceID, userID)
		if err != nil {
			return apperr.Transient("check membership", err)
		}
		if member {
			return apperr.Conflict("user is already a member of this collab")
		}
		if err := admit(ctx, tx, spaceID, []uuid.UUID{userID}, l.now()); err != nil {
			return err
		}
		return apperr.Transient("mark invitation joined", tx.MarkInvitationJoined(ctx, inv.ID))
	})
	if err != nil {
		return apperr.Transient("accept invitation", err)
	}
	l.logger.Info("invitation accepted", zap.String("space_id", spaceID.String()), zap.String("user_id", userID.String()))
	return nil
}

// Status returns the user's standing in a space and, for past participants,
// the cutoff after which messages are hidden.
func (l *Lifecycle) Status(ctx context.Context, userID, spaceID uuid.UUID) (models.ParticipantStatus, *time.Time, error) {
	member, err := l.store.IsMember(ctx, spaceID, userID)
	if err != nil {
		return "", nil, apperr.Transient("check membership", err)
	}
	if member {
		return models.StatusMember, nil, nil
	}
	past, err := l.store.GetCurrentPast(ctx, spaceID, userID)
	if err != nil {
		return "", nil, apperr.Transient("get past participant", err)
	}
	if past == nil {
		return "", nil, nil
	}
	return past.Status, past.Cutoff(), nil
}
