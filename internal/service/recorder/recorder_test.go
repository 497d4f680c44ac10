package recorder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	dbcontracts "foodtracker/contracts/db"
	"foodtracker/internal/model"
	"foodtracker/pkg/util"
)

type memStore struct {
	mu      sync.Mutex
	records []dbcontracts.NotificationRecord
	err     error
	active  int
	overlap bool
}

func (m *memStore) InsertRecord(_ context.Context, rec *dbcontracts.NotificationRecord) error {
	m.mu.Lock()
	m.active++
	if m.active > 1 {
		m.overlap = true
	}
	m.mu.Unlock()

	time.Sleep(time.Millisecond)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.active--
	if m.err != nil {
		return m.err
	}
	rec.ID = int64(len(m.records) + 1)
	m.records = append(m.records, *rec)
	return nil
}

func TestRecord_WritesOnlyOnSuccess(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, nil)
	pid := int64(7)

	ok, err := r.Record(context.Background(), Entry{CycleID: "c1", UserID: 1, ProductID: &pid, Channel: model.ChannelEmail, Message: "Reminder: Milk expires in 2 days", Succeeded: false})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, store.records)

	ok, err = r.Record(context.Background(), Entry{CycleID: "c1", UserID: 1, ProductID: &pid, Channel: model.ChannelEmail, Message: "Reminder: Milk expires in 2 days", Succeeded: true})
	require.NoError(t, err)
	assert.True(t, ok)
	require.Len(t, store.records, 1)

	rec := store.records[0]
	assert.Equal(t, "email", rec.NotificationType)
	assert.Equal(t, "Reminder: Milk expires in 2 days", rec.Message)
	assert.Equal(t, "c1", rec.CycleID)
	assert.Equal(t, &pid, rec.ProductID)
	assert.True(t, rec.IsSent)
	assert.False(t, rec.SentAt.IsZero())
}

func TestRecord_StoreErrorIsDataAccess(t *testing.T) {
	r := NewRecorder(&memStore{err: errors.New("tx aborted")}, nil)

	ok, err := r.Record(context.Background(), Entry{UserID: 1, Channel: model.ChannelPush, Succeeded: true})
	assert.False(t, ok)
	assert.ErrorIs(t, err, util.ErrDataAccess)
}

func TestRecord_SerializesConcurrentWrites(t *testing.T) {
	store := &memStore{}
	r := NewRecorder(store, nil)

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := r.Record(context.Background(), Entry{UserID: int64(i), Channel: model.ChannelEmail, Succeeded: true})
			assert.NoError(t, err)
		}(i)
	}
	wg.Wait()

	assert.Len(t, store.records, 16)
	assert.False(t, store.overlap)
}
