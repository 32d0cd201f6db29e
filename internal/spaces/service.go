// Package spaces implements the collab CRUD surface and hooks it to the
// membership lifecycle, invitations and notifications.
package spaces

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/invitations"
	"github.com/collabspace/backend/internal/membership"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/store"
	"github.com/collabspace/backend/pkg/storage"
)

const maxNameLen = 255

// AvatarStore uploads base64 avatars. *storage.S3 implements it.
type AvatarStore interface {
	PutAvatar(ctx context.Context, spaceID uuid.UUID, dataURL string) (string, error)
}

// Notifier delivers personal notifications. *notifications.Router implements it.
type Notifier interface {
	NotifyUser(ctx context.Context, userID uuid.UUID, record models.Notification, ev realtime.NotificationPayload)
}

// CreateInput is a new collab.
type CreateInput struct {
	Name       string            `json:"name" binding:"required,max=255"`
	Bio        string            `json:"bio"`
	Visibility models.Visibility `json:"visibility"`
	Avatar     string            `json:"avatar"`
	Members    []uuid.UUID       `json:"members"`
	Emails     []string          `json:"emails"`
}

// UpdateInput patches a collab. Nil fields are left unchanged; a non-nil
// Members replaces the member list and a non-nil Emails replaces the invited list.
type UpdateInput struct {
	Name       *string            `json:"name"`
	Bio        *string            `json:"bio"`
	Visibility *models.Visibility `json:"visibility"`
	Avatar     *string            `json:"avatar"`
	Members    []uuid.UUID        `json:"members"`
	Emails     []string           `json:"emails"`
}

// Service is the collab CRUD service.
type Service struct {
	store    store.Store
	members  *membership.Lifecycle
	invites  *invitations.Service
	avatars  AvatarStore
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
	wg       sync.WaitGroup
}

// Deps are the collaborators of a Service. Avatars may be nil, which disables
// data-URL uploads.
type Deps struct {
	Store       store.Store
	Members     *membership.Lifecycle
	Invitations *invitations.Service
	Avatars     AvatarStore
	Notifier    Notifier
	Logger      *zap.Logger
	Now         func() time.Time
}

// NewService creates a Service.
func NewService(d Deps) *Service {
	s := &Service{
		store:    d.Store,
		members:  d.Members,
		invites:  d.Invitations,
		avatars:  d.Avatars,
		notifier: d.Notifier,
		logger:   d.Logger,
		now:      d.Now,
	}
	if s.logger == nil {
		s.logger = zap.NewNop()
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s
}

func validName(name string) error {
	n := utf8.RuneCountInString(name)
	if n == 0 {
		return apperr.Validation("name is required")
	}
	if n > maxNameLen {
		return apperr.Validation(fmt.Sprintf("name must be at most %d characters", maxNameLen))
	}
	return nil
}

func (s *Service) resolveAvatar(ctx context.Context, spaceID uuid.UUID, avatar string) (string, error) {
	if !storage.IsDataURL(avatar) {
		return avatar, nil
	}
	if s.avatars == nil {
		return "", apperr.Validation("avatar uploads are not configured")
	}
	if _, _, err := storage.DecodeDataURL(avatar); err != nil {
		return "", apperr.Validation(err.Error())
	}
	url, err := s.avatars.PutAvatar(ctx, spaceID, avatar)
	if err != nil {
		return "", apperr.Transient("upload avatar", err)
	}
	return url, nil
}

func (s *Service) checkUsers(ctx context.Context, ids []uuid.UUID) error {
	if len(ids) == 0 {
		return nil
	}
	found, err := s.store.ExistingUserIDs(ctx, ids)
	if err != nil {
		return apperr.Transient("lookup users", err)
	}
	known := make(map[uuid.UUID]struct{}, len(found))
	for _, id := range found {
		known[id] = struct{}{}
	}
	for _, id := range ids {
		if _, ok := known[id]; !ok {
			return apperr.Validation("unknown user " + id.String())
		}
	}
	return nil
}

// loadOwned returns a live space that requesterID owns.
func (s *Service) loadOwned(ctx context.Context, requesterID, spaceID uuid.UUID) (*models.Space, error) {
	sp, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, apperr.Transient("get space", err)
	}
	if sp == nil || sp.IsDeleted {
		return nil, apperr.NotFound("collab not found")
	}
	if sp.OwnerID != requesterID {
		return nil, apperr.Forbidden("only the collab owner can do this")
	}
	return sp, nil
}

// RequireOwner fails unless userID owns the live space.
func (s *Service) RequireOwner(ctx context.Context, userID, spaceID uuid.UUID) error {
	_, err := s.loadOwned(ctx, userID, spaceID)
	return err
}

func (s *Service) detail(ctx context.Context, spaceID, viewerID uuid.UUID) (*models.SpaceDetail, error) {
	d, err := s.store.GetSpaceDetail(ctx, spaceID, viewerID)
	if err != nil {
		return nil, apperr.Transient("get space detail", err)
	}
	if d == nil || d.IsDeleted {
		return nil, apperr.NotFound("collab not found")
	}
	return d, nil
}

// Create makes a new collab owned by ownerID, notifies every added member and
// sends invitations in the background.
func (s *Service) Create(ctx context.Context, ownerID uuid.UUID, in CreateInput) (*models.SpaceDetail, error) {
	in.Name = strings.TrimSpace(in.Name)
	if err := validName(in.Name); err != nil {
		return nil, err
	}
	if in.Visibility == "" {
		in.Visibility = models.VisibilityPublic
	}
	if !in.Visibility.Valid() {
		return nil, apperr.Validation("visibility must be public or private")
	}
	if err := s.invites.Validate(in.Emails); err != nil {
		return nil, err
	}

	owner, err := s.store.GetUser(ctx, ownerID)
	if err != nil {
		return nil, apperr.Transient("get owner", err)
	}
	if owner == nil {
		return nil, apperr.NotFound("owner not found")
	}
	if err := s.checkUsers(ctx, in.Members); err != nil {
		return nil, err
	}

	sp := &models.Space{
		ID:         uuid.New(),
		Name:       in.Name,
		Bio:        in.Bio,
		OwnerID:    ownerID,
		Visibility: in.Visibility,
	}
	if sp.Avatar, err = s.resolveAvatar(ctx, sp.ID, in.Avatar); err != nil {
		return nil, err
	}

	added, err := s.members.Establish(ctx, sp, in.Members)
	if err != nil {
		return nil, err
	}
	s.notifyAdded(ctx, sp, owner, added)
	s.invite(ctx, sp, in.Emails, false)
	return s.detail(ctx, sp.ID, ownerID)
}

// Update patches a collab. Only the owner may update it.
func (s *Service) Update(ctx context.Context, requesterID, spaceID uuid.UUID, in UpdateInput) (*models.SpaceDetail, error) {
	sp, err := s.loadOwned(ctx, requesterID, spaceID)
	if err != nil {
		return nil, err
	}
	if in.Emails != nil {
		if err := s.invites.Validate(in.Emails); err != nil {
			return nil, err
		}
	}
	if err := s.checkUsers(ctx, in.Members); err != nil {
		return nil, err
	}

	changed := false
	if in.Name != nil {
		name := strings.TrimSpace(*in.Name)
		if err := validName(name); err != nil {
			return nil, err
		}
		sp.Name, changed = name, true
	}
	if in.Bio != nil {
		sp.Bio, changed = *in.Bio, true
	}
	if in.Visibility != nil {
		if !in.Visibility.Valid() {
			return nil, apperr.Validation("visibility must be public or private")
		}
		sp.Visibility, changed = *in.Visibility, true
	}
	if in.Avatar != nil && *in.Avatar != sp.Avatar {
		if sp.Avatar, err = s.resolveAvatar(ctx, sp.ID, *in.Avatar); err != nil {
			return nil, err
		}
		changed = true
	}
	if changed || in.Members != nil {
		var patch *models.Space
		if changed {
			patch = sp
		}
		plan, err := s.members.Update(ctx, requesterID, spaceID, patch, in.Members)
		if err != nil {
			return nil, err
		}
		if joined := plan.Joined(); len(joined) > 0 {
			owner, err := s.store.GetUser(ctx, sp.OwnerID)
			if err != nil || owner == nil {
				owner = &models.User{ID: sp.OwnerID}
			}
			s.notifyAdded(ctx, sp, owner, joined)
		}
	}
	if in.Emails != nil {
		s.invite(ctx, sp, in.Emails, true)
	}
	return s.detail(ctx, spaceID, requesterID)
}

// Delete soft-deletes a collab. Only the owner may delete it.
func (s *Service) Delete(ctx context.Context, requesterID, spaceID uuid.UUID) error {
	if _, err := s.loadOwned(ctx, requesterID, spaceID); err != nil {
		return err
	}
	if err := s.store.MarkSpaceDeleted(ctx, spaceID); err != nil {
		return apperr.Transient("delete space", err)
	}
	s.logger.Info("collab deleted", zap.String("space_id", spaceID.String()))
	return nil
}

// Get returns the collab as seen by viewerID.
func (s *Service) Get(ctx context.Context, viewerID, spaceID uuid.UUID) (*models.SpaceDetail, error) {
	return s.detail(ctx, spaceID, viewerID)
}

// ListForUser returns the user's current and past collabs, most recently active first.
func (s *Service) ListForUser(ctx context.Context, userID uuid.UUID) ([]models.SpaceSummary, error) {
	list, err := s.store.ListUserSpaces(ctx, userID)
	if err != nil {
		return nil, apperr.Transient("list user spaces", err)
	}
	if list == nil {
		list = []models.SpaceSummary{}
	}
	return list, nil
}

// AddMembers adds users to a collab and notifies the newly added ones. Only
// the owner may add members.
func (s *Service) AddMembers(ctx context.Context, requesterID, spaceID uuid.UUID, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	sp, err := s.loadOwned(ctx, requesterID, spaceID)
	if err != nil {
		return nil, err
	}
	if err := s.checkUsers(ctx, userIDs); err != nil {
		return nil, err
	}
	added, err := s.members.AddMembers(ctx, spaceID, userIDs)
	if err != nil {
		return nil, err
	}
	if len(added) > 0 {
		owner, err := s.store.GetUser(ctx, sp.OwnerID)
		if err != nil || owner == nil {
			owner = &models.User{ID: sp.OwnerID}
		}
		s.notifyAdded(ctx, sp, owner, added)
	}
	if added == nil {
		added = []uuid.UUID{}
	}
	return added, nil
}

// JoinPublic adds userID to a public collab.
func (s *Service) JoinPublic(ctx context.Context, userID, spaceID uuid.UUID) (*models.SpaceDetail, error) {
	if err := s.members.JoinPublic(ctx, userID, spaceID); err != nil {
		return nil, err
	}
	return s.detail(ctx, spaceID, userID)
}

// AcceptInvite joins userID through the invitation sent to email.
func (s *Service) AcceptInvite(ctx context.Context, userID uuid.UUID, email string, spaceID uuid.UUID) (*models.SpaceDetail, error) {
	if strings.TrimSpace(email) == "" {
		return nil, apperr.Validation("token carries no email")
	}
	if err := s.members.AcceptInvite(ctx, userID, email, spaceID); err != nil {
		return nil, err
	}
	return s.detail(ctx, spaceID, userID)
}

// Leave removes userID from the collab. The owner cannot leave.
func (s *Service) Leave(ctx context.Context, userID, spaceID uuid.UUID) (*models.SpaceDetail, error) {
	if err := s.members.Leave(ctx, userID, spaceID); err != nil {
		return nil, err
	}
	return s.detail(ctx, spaceID, userID)
}

// SendInvitations invites emails to the collab. Only the owner may invite.
func (s *Service) SendInvitations(ctx context.Context, requesterID, spaceID uuid.UUID, emails []string) ([]models.Invitation, error) {
	sp, err := s.loadOwned(ctx, requesterID, spaceID)
	if err != nil {
		return nil, err
	}
	created, err := s.invites.Send(ctx, sp, emails)
	if err != nil {
		return nil, err
	}
	if created == nil {
		created = []models.Invitation{}
	}
	return created, nil
}

// Invitations lists a collab's invitations, newest first. Only the owner may see them.
func (s *Service) Invitations(ctx context.Context, requesterID, spaceID uuid.UUID) ([]models.Invitation, error) {
	if _, err := s.loadOwned(ctx, requesterID, spaceID); err != nil {
		return nil, err
	}
	return s.invites.ListBySpace(ctx, spaceID)
}

// CanJoinRoom authorizes a live connection to join a collab's chat room:
// members, past participants and anyone on a public collab may listen.
func (s *Service) CanJoinRoom(ctx context.Context, userID uuid.UUID, room string) error {
	spaceID, err := uuid.Parse(room)
	if err != nil {
		return apperr.Validation("unknown room")
	}
	sp, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return apperr.Transient("get space", err)
	}
	if sp == nil || sp.IsDeleted {
		return apperr.NotFound("collab not found")
	}
	if sp.Visibility == models.VisibilityPublic {
		return nil
	}
	status, _, err := s.members.Status(ctx, userID, spaceID)
	if err != nil {
		return err
	}
	if status == "" {
		return apperr.Forbidden("collab is private")
	}
	return nil
}

func (s *Service) notifyAdded(ctx context.Context, sp *models.Space, by *models.User, ids []uuid.UUID) {
	text := fmt.Sprintf("You have been added to the collab %s by %s", sp.QuotedName(), by.FullName())
	ref := sp.Ref()
	actor := by.Acting()
	record := models.Notification{
		Title:      "New Collab",
		Body:       text + ".",
		ClickURL:   sp.ID.String(),
		ActingUser: actor,
		Space:      &ref,
	}
	ev := realtime.NotificationPayload{
		Type:    realtime.NotificationNewCollab,
		Message: text,
		Collab:  &ref,
		User:    actor,
		AddedBy: &actor,
	}
	for _, id := range ids {
		if id == sp.OwnerID {
			continue
		}
		s.notifier.NotifyUser(ctx, id, record, ev)
	}
}

// invite sends invitations off the request path. With replace set, invitations
// for addresses no longer listed are dropped too.
func (s *Service) invite(ctx context.Context, sp *models.Space, emails []string, replace bool) {
	if len(emails) == 0 && !replace {
		return
	}
	ctx = context.WithoutCancel(ctx)
	space := *sp
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var err error
		if replace {
			_, err = s.invites.Sync(ctx, &space, emails)
		} else {
			_, err = s.invites.Send(ctx, &space, emails)
		}
		if err != nil {
			s.logger.Error("send invitations", zap.String("space_id", space.ID.String()), zap.Error(err))
		}
	}()
}

// Wait blocks until background invitation sends finish or ctx is done.
func (s *Service) Wait(ctx context.Context) error {
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
