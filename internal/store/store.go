// Package store defines the transactional persistence contract shared by the
// membership, invitation, messaging and notification services.
//
// Lookups return (nil, nil) when the row does not exist. Methods prefixed
// with Lock take a row lock and are only meaningful inside InTx.
package store

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/collabspace/backend/internal/models"
)

// Store is the root handle. InTx runs fn inside one transaction; fn's error
// rolls everything back.
type Store interface {
	Queries
	InTx(ctx context.Context, fn func(tx Queries) error) error
}

// Queries is every durable operation. Both the root Store and the handle
// passed to InTx implement it.
type Queries interface {
	SpaceQueries
	MembershipQueries
	InvitationQueries
	MessageQueries
	NotificationQueries
	UserQueries
	EmailLogQueries
}

type SpaceQueries interface {
	CreateSpace(ctx context.Context, s *models.Space) error
	GetSpace(ctx context.Context, id uuid.UUID) (*models.Space, error)
	LockSpace(ctx context.Context, id uuid.UUID) (*models.Space, error)
	UpdateSpace(ctx context.Context, s *models.Space) error
	MarkSpaceDeleted(ctx context.Context, id uuid.UUID) error
	SetLastMessage(ctx context.Context, spaceID, messageID uuid.UUID) error
	GetSpaceDetail(ctx context.Context, spaceID, viewerID uuid.UUID) (*models.SpaceDetail, error)
	ListUserSpaces(ctx context.Context, userID uuid.UUID) ([]models.SpaceSummary, error)
}

type MembershipQueries interface {
	ListMemberIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error)
	IsMember(ctx context.Context, spaceID, userID uuid.UUID) (bool, error)
	InsertMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID, at time.Time) error
	DeleteMemberships(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error
	ListCurrentPastIDs(ctx context.Context, spaceID uuid.UUID) ([]uuid.UUID, error)
	GetCurrentPast(ctx context.Context, spaceID, userID uuid.UUID) (*models.PastParticipant, error)
	InsertPastParticipants(ctx context.Context, rows []models.PastParticipant) error
	DeletePastParticipants(ctx context.Context, spaceID uuid.UUID, userIDs []uuid.UUID) error
}

type InvitationQueries interface {
	InsertInvitation(ctx context.Context, inv *models.Invitation) error
	GetInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	LockInvitation(ctx context.Context, id uuid.UUID) (*models.Invitation, error)
	// LockLatestInvitation locks the newest invitation for (space, email).
	LockLatestInvitation(ctx context.Context, spaceID uuid.UUID, email string) (*models.Invitation, error)
	ListInvitations(ctx context.Context, spaceID uuid.UUID) ([]models.Invitation, error)
	DeleteInvitations(ctx context.Context, spaceID uuid.UUID, email string) error
	DeleteInvitationsExcept(ctx context.Context, spaceID uuid.UUID, keep []string) error
	MarkInvitationSent(ctx context.Context, id uuid.UUID) error
	MarkInvitationExpired(ctx context.Context, id uuid.UUID) error
	MarkInvitationJoined(ctx context.Context, id uuid.UUID) error
	// ListExpirableInvitations returns ids of open invitations created at or before cutoff.
	ListExpirableInvitations(ctx context.Context, cutoff time.Time) ([]uuid.UUID, error)
}

type MessageQueries interface {
	InsertMessage(ctx context.Context, m *models.Message) error
	GetMessage(ctx context.Context, id uuid.UUID) (*models.Message, error)
	DeleteMessage(ctx context.Context, id uuid.UUID) error
	// ListMessages returns newest-first messages, optionally only those created at or before cutoff,
	// plus the total count matching the same filter.
	ListMessages(ctx context.Context, spaceID uuid.UUID, cutoff *time.Time, limit, offset int) ([]models.Message, int, error)
	InsertReadStatuses(ctx context.Context, rows []models.ReadStatus) error
	MarkAllRead(ctx context.Context, spaceID, userID uuid.UUID) (int64, error)
	CountUnread(ctx context.Context, spaceID, userID uuid.UUID) (int, error)
}

type NotificationQueries interface {
	InsertNotification(ctx context.Context, n *models.Notification) error
	ListNotifications(ctx context.Context, userID uuid.UUID, limit, offset int) ([]models.Notification, int, error)
	CountUnreadNotifications(ctx context.Context, userID uuid.UUID) (int, error)
	MarkNotificationRead(ctx context.Context, id, userID uuid.UUID) (*models.Notification, error)
	MarkAllNotificationsRead(ctx context.Context, userID uuid.UUID) (int64, error)
}

type UserQueries interface {
	GetUser(ctx context.Context, id uuid.UUID) (*models.User, error)
	ListUsersByEmail(ctx context.Context, emails []string) ([]models.User, error)
	// ExistingUserIDs returns the subset of ids that belong to a user.
	ExistingUserIDs(ctx context.Context, ids []uuid.UUID) ([]uuid.UUID, error)
}

type EmailLogQueries interface {
	InsertEmailLog(ctx context.Context, l *models.EmailLog) error
	// ListEmailLogs returns a space's email log, newest first.
	ListEmailLogs(ctx context.Context, spaceID uuid.UUID) ([]models.EmailLog, error)
}
