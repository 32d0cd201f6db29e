package notifications

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/apperr"
	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store/memstore"
)

func seed(t *testing.T, st *memstore.Store, user uuid.UUID, n int) []models.Notification {
	t.Helper()
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]models.Notification, 0, n)
	for i := 0; i < n; i++ {
		rec := models.Notification{UserID: user, Title: "t", CreatedAt: base.Add(time.Duration(i) * time.Minute)}
		require.NoError(t, st.InsertNotification(context.Background(), &rec))
		out = append(out, rec)
	}
	return out
}

func TestInboxListPaginates(t *testing.T) {
	st := memstore.New()
	user := uuid.New()
	recs := seed(t, st, user, 5)
	seed(t, st, uuid.New(), 2)

	page, err := NewInbox(st).List(context.Background(), user, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 5, page.Total)
	assert.Equal(t, 3, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, recs[2].ID, page.Items[0].ID)
	assert.Equal(t, recs[1].ID, page.Items[1].ID)
}

func TestInboxListClampsArguments(t *testing.T) {
	st := memstore.New()
	user := uuid.New()
	seed(t, st, user, 3)

	page, err := NewInbox(st).List(context.Background(), user, 0, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1, page.Page)
	assert.Equal(t, maxLimit, page.Limit)
	assert.Len(t, page.Items, 3)
}

func TestInboxMarkRead(t *testing.T) {
	st := memstore.New()
	user := uuid.New()
	recs := seed(t, st, user, 3)
	inbox := NewInbox(st)
	ctx := context.Background()

	n, err := inbox.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	got, err := inbox.MarkRead(ctx, user, recs[0].ID)
	require.NoError(t, err)
	assert.True(t, got.Read)

	_, err = inbox.MarkRead(ctx, uuid.New(), recs[1].ID)
	assert.ErrorIs(t, err, apperr.ErrNotFound)

	updated, err := inbox.MarkAllRead(ctx, user)
	require.NoError(t, err)
	assert.Equal(t, int64(2), updated)

	n, err = inbox.UnreadCount(ctx, user)
	require.NoError(t, err)
	assert.Zero(t, n)
}
