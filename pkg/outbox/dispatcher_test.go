package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/zap/zaptest"

	"foodtracker/pkg/trace"
)

type fakeStore struct {
	pending []*Event
	sent    []int64
	failed  []int64
}

func (s *fakeStore) GetPendingEvents(_ context.Context, limit int) ([]*Event, error) {
	if len(s.pending) > limit {
		return s.pending[:limit], nil
	}
	return s.pending, nil
}

func (s *fakeStore) MarkAsSent(_ context.Context, id int64) error {
	s.sent = append(s.sent, id)
	return nil
}

func (s *fakeStore) MarkAsFailed(_ context.Context, id int64, _ int) error {
	s.failed = append(s.failed, id)
	return nil
}

type fakePublisher struct {
	failKey  string
	keys     []string
	traceIDs []string
}

func (p *fakePublisher) PublishWithContext(ctx context.Context, routingKey string, _ any) error {
	if routingKey == p.failKey {
		return errors.New("channel closed")
	}
	p.keys = append(p.keys, routingKey)
	p.traceIDs = append(p.traceIDs, trace.FromContext(ctx))
	return nil
}

func event(id int64, key string, payload map[string]any) *Event {
	raw, _ := json.Marshal(payload)
	return &Event{ID: id, RoutingKey: key, Payload: raw, Status: StatusPending}
}

func TestDispatcher_ProcessPendingEvents(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(1, "notification.recorded", map[string]any{"trace_id": "cycle-1", "user_id": 1}),
		event(2, "broken.key", map[string]any{"user_id": 2}),
		{ID: 3, RoutingKey: "notification.recorded", Payload: json.RawMessage(`not json`)},
	}}
	pub := &fakePublisher{failKey: "broken.key"}

	d := NewDispatcher(store, pub, zaptest.NewLogger(t)).WithBatchSize(10)
	published := d.ProcessPendingEvents(context.Background())

	assert.Equal(t, 1, published)
	assert.Equal(t, []int64{1}, store.sent)
	assert.ElementsMatch(t, []int64{2, 3}, store.failed)
	assert.Equal(t, []string{"cycle-1"}, pub.traceIDs)
}

func TestDispatcher_RespectsBatchSize(t *testing.T) {
	store := &fakeStore{pending: []*Event{
		event(1, "a", map[string]any{}),
		event(2, "a", map[string]any{}),
		event(3, "a", map[string]any{}),
	}}
	pub := &fakePublisher{}

	d := NewDispatcher(store, pub, zaptest.NewLogger(t)).WithBatchSize(2)
	assert.Equal(t, 2, d.ProcessPendingEvents(context.Background()))
}
