package memstore

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/collabspace/backend/internal/models"
	"github.com/collabspace/backend/internal/store"
)

func TestInTxCommitAndRollback(t *testing.T) {
	ctx := context.Background()
	st := New()
	sp := &models.Space{Name: "kept", OwnerID: uuid.New()}

	require.NoError(t, st.InTx(ctx, func(tx store.Queries) error {
		return tx.CreateSpace(ctx, sp)
	}))
	writes := st.Writes()

	boom := errors.New("boom")
	err := st.InTx(ctx, func(tx store.Queries) error {
		require.NoError(t, tx.CreateSpace(ctx, &models.Space{Name: "dropped", OwnerID: uuid.New()}))
		require.NoError(t, tx.InsertMemberships(ctx, sp.ID, []uuid.UUID{sp.OwnerID}, time.Now()))
		return boom
	})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, writes, st.Writes())

	ids, err := st.ListMemberIDs(ctx, sp.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
	got, err := st.GetSpace(ctx, sp.ID)
	require.NoError(t, err)
	assert.Equal(t, "kept", got.Name)
}

func TestRollbackKeepsConcurrentWrites(t *testing.T) {
	ctx := context.Background()
	st := New()
	user := uuid.New()

	inside := make(chan struct{})
	release := make(chan struct{})
	txDone := make(chan error, 1)
	go func() {
		txDone <- st.InTx(ctx, func(tx store.Queries) error {
			close(inside)
			<-release
			return errors.New("rolled back")
		})
	}()
	<-inside

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, st.InsertNotification(ctx, &models.Notification{UserID: user, Title: "New Message"}))
	}()
	time.Sleep(20 * time.Millisecond)
	close(release)

	assert.Error(t, <-txDone)
	wg.Wait()
	require.Len(t, st.Notifications(user), 1)
	assert.Equal(t, "New Message", st.Notifications(user)[0].Title)
}

func TestFailMembershipWrites(t *testing.T) {
	ctx := context.Background()
	st := New()
	boom := errors.New("db down")
	st.FailMembershipWrites = boom

	err := st.InTx(ctx, func(tx store.Queries) error {
		return tx.InsertMemberships(ctx, uuid.New(), []uuid.UUID{uuid.New()}, time.Now())
	})
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, st.Writes())
}
