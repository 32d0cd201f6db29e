package emaillogs

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store/memstore"
)

func TestRecordAndList(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memstore.New())
	sentAt := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return sentAt }
	space, other := uuid.New(), uuid.New()

	require.NoError(t, repo.Record(ctx, models.EmailLog{SpaceID: space, RecipientEmail: "a@example.com", Attempt: 0}, nil))
	require.NoError(t, repo.Record(ctx, models.EmailLog{SpaceID: space, RecipientEmail: "b@example.com", Attempt: 1}, errors.New("550 mailbox unavailable")))
	require.NoError(t, repo.Record(ctx, models.EmailLog{SpaceID: other, RecipientEmail: "c@example.com"}, nil))

	logs, err := repo.ListBySpace(ctx, space)
	require.NoError(t, err)
	require.Len(t, logs, 2)

	failed, sent := logs[0], logs[1]
	assert.Equal(t, models.EmailLogStatusFailed, failed.Status)
	assert.Equal(t, "550 mailbox unavailable", failed.ErrorMessage)
	assert.Nil(t, failed.SentAt)

	assert.Equal(t, models.EmailLogStatusSent, sent.Status)
	assert.Equal(t, models.EmailTypeInvitation, sent.EmailType)
	require.NotNil(t, sent.SentAt)
	assert.Equal(t, sentAt, *sent.SentAt)
}

func TestRecordKeepsExplicitStatus(t *testing.T) {
	ctx := context.Background()
	repo := NewRepository(memstore.New())
	space := uuid.New()

	require.NoError(t, repo.Record(ctx, models.EmailLog{SpaceID: space, Status: models.EmailLogStatusSkipped}, nil))

	logs, err := repo.ListBySpace(ctx, space)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, models.EmailLogStatusSkipped, logs[0].Status)
	assert.Nil(t, logs[0].SentAt)
}

func TestListBySpaceEmpty(t *testing.T) {
	logs, err := NewRepository(memstore.New()).ListBySpace(context.Background(), uuid.New())
	require.NoError(t, err)
	assert.NotNil(t, logs)
	assert.Empty(t, logs)
}
