// Package messages implements chat messages inside a space.
package messages

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/membership"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/readstatus"
	"github.com/collabspace/backend/internal/realtime"
	"github.com/collabspace/backend/internal/store"
)

const (
	defaultLimit = 10
	maxLimit     = 100
)

// Notifier delivers message fan-out. *notifications.Router implements it.
type Notifier interface {
	BroadcastExceptUser(room string, ev realtime.Event, userID uuid.UUID)
	NotifyMembers(ctx context.Context, memberIDs []uuid.UUID, senderID uuid.UUID, record models.Notification, ev realtime.NotifyMembersPayload, room string)
}

// CreateInput is a new message.
type CreateInput struct {
	SpaceID     uuid.UUID           `json:"collabId" binding:"required"`
	Content     string              `json:"content"`
	Attachments []models.Attachment `json:"attachments"`
}

// Service creates, lists and deletes messages.
type Service struct {
	store    store.Store
	members  *membership.Lifecycle
	reads    *readstatus.Tracker
	notifier Notifier
	logger   *zap.Logger
	now      func() time.Time
}

// NewService creates a message service. now defaults to time.Now.
func NewService(st store.Store, members *membership.Lifecycle, reads *readstatus.Tracker, notifier Notifier, logger *zap.Logger, now func() time.Time) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if now == nil {
		now = time.Now
	}
	return &Service{store: st, members: members, reads: reads, notifier: notifier, logger: logger, now: now}
}

func validate(in *CreateInput) error {
	if in.SpaceID == uuid.Nil {
		return apperr.Validation("collabId is required")
	}
	if strings.TrimSpace(in.Content) == "" && len(in.Attachments) == 0 {
		return apperr.Validation("message needs content or an attachment")
	}
	for _, a := range in.Attachments {
		if a.FileName == "" {
			return apperr.Validation("attachment fileName is required")
		}
		if a.Type != models.AttachmentImage && a.Type != models.AttachmentVideo {
			return apperr.Validation(fmt.Sprintf("unsupported attachment type %q", a.Type))
		}
	}
	return nil
}

// Create stores a message by authorID, queues unread rows for the other
// members, then broadcasts it to the room and notifies members who are not
// viewing it.
func (s *Service) Create(ctx context.Context, authorID uuid.UUID, in CreateInput) (*models.Message, error) {
	if err := validate(&in); err != nil {
		return nil, err
	}

	msg := &models.Message{
		ID:          uuid.New(),
		SpaceID:     in.SpaceID,
		UserID:      authorID,
		Content:     in.Content,
		Attachments: in.Attachments,
		CreatedAt:   s.now(),
	}
	if msg.Attachments == nil {
		msg.Attachments = []models.Attachment{}
	}

	var (
		sp        *models.Space
		memberIDs []uuid.UUID
	)
	err := s.store.InTx(ctx, func(tx store.Queries) error {
		var err error
		sp, err = tx.LockSpace(ctx, in.SpaceID)
		if err != nil {
			return apperr.Transient("lock space", err)
		}
		if sp == nil || sp.IsDeleted {
			return apperr.NotFound("collab not found")
		}
		ok, err := tx.IsMember(ctx, sp.ID, authorID)
		if err != nil {
			return apperr.Transient("check membership", err)
		}
		if !ok {
			return apperr.Forbidden("user is not a member of this collab or has left")
		}
		if err := tx.InsertMessage(ctx, msg); err != nil {
			return apperr.Transient("insert message", err)
		}
		if memberIDs, err = tx.ListMemberIDs(ctx, sp.ID); err != nil {
			return apperr.Transient("list members", err)
		}
		if err := s.reads.OnMessageCreated(ctx, tx, msg, memberIDs); err != nil {
			return err
		}
		return apperr.Transient("set last message", tx.SetLastMessage(ctx, sp.ID, msg.ID))
	})
	if err != nil {
		return nil, err
	}

	s.notifier.BroadcastExceptUser(sp.Room(), realtime.NewMessageEvent(msg), authorID)
	s.notifyMembers(ctx, sp, msg, memberIDs)
	return msg, nil
}

func (s *Service) notifyMembers(ctx context.Context, sp *models.Space, msg *models.Message, memberIDs []uuid.UUID) {
	sender, err := s.store.GetUser(ctx, msg.UserID)
	if err != nil || sender == nil {
		s.logger.Warn("message sender profile unavailable",
			zap.String("user_id", msg.UserID.String()), zap.Error(err))
		sender = &models.User{ID: msg.UserID}
	}

	kind := "message"
	if strings.TrimSpace(msg.Content) == "" {
		kind = "attachment"
	}
	notice := fmt.Sprintf("%s sent a %s in %s", sender.FullName(), kind, sp.QuotedName())
	ref := sp.Ref()

	record := models.Notification{
		Title:      "New Message",
		Body:       notice,
		ClickURL:   sp.ID.String(),
		ActingUser: sender.Acting(),
		Space:      &ref,
	}
	ev := realtime.NotifyMembersPayload{
		Message:     notice,
		Content:     msg.Content,
		Attachments: msg.Attachments,
		Collab:      ref,
		Sender:      sender.Acting(),
	}
	s.notifier.NotifyMembers(ctx, memberIDs, msg.UserID, record, ev, sp.Room())
}

// Delete removes a message. Only its author or the space owner may do so.
func (s *Service) Delete(ctx context.Context, userID, messageID uuid.UUID) error {
	msg, err := s.store.GetMessage(ctx, messageID)
	if err != nil {
		return apperr.Transient("get message", err)
	}
	if msg == nil {
		return apperr.NotFound("message not found")
	}
	if msg.UserID != userID {
		sp, err := s.store.GetSpace(ctx, msg.SpaceID)
		if err != nil {
			return apperr.Transient("get space", err)
		}
		if sp == nil || sp.OwnerID != userID {
			return apperr.Forbidden("only the author or the collab owner can delete a message")
		}
	}
	return apperr.Transient("delete message", s.store.DeleteMessage(ctx, messageID))
}

// List returns a page of the space's history, newest first. Past participants
// only see messages up to when they left or were removed.
func (s *Service) List(ctx context.Context, viewerID, spaceID uuid.UUID, page, limit int) (*models.MessagePage, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = defaultLimit
	}
	if limit > maxLimit {
		limit = maxLimit
	}

	sp, err := s.store.GetSpace(ctx, spaceID)
	if err != nil {
		return nil, apperr.Transient("get space", err)
	}
	if sp == nil || sp.IsDeleted {
		return nil, apperr.NotFound("collab not found")
	}

	status, cutoff, err := s.members.Status(ctx, viewerID, spaceID)
	if err != nil {
		return nil, err
	}
	if status == "" && sp.Visibility == models.VisibilityPrivate {
		return nil, apperr.Forbidden("collab is private")
	}

	msgs, total, err := s.store.ListMessages(ctx, spaceID, cutoff, limit, (page-1)*limit)
	if err != nil {
		return nil, apperr.Transient("list messages", err)
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	return &models.MessagePage{Messages: msgs, TotalPages: (total + limit - 1) / limit}, nil
}

// MarkAllRead marks every message in the space read for userID.
func (s *Service) MarkAllRead(ctx context.Context, userID, spaceID uuid.UUID) (int64, error) {
	return s.reads.MarkAllRead(ctx, spaceID, userID)
}

// UnreadCount is the number of unread messages in the space for userID.
func (s *Service) UnreadCount(ctx context.Context, userID, spaceID uuid.UUID) (int, error) {
	return s.reads.UnreadCount(ctx, spaceID, userID)
}
