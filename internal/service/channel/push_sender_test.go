package channel

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	mqcontracts "foodtracker/contracts/mq"
	"foodtracker/internal/model"
	"foodtracker/pkg/mq"
	"foodtracker/pkg/trace"
	"foodtracker/pkg/util"
)

type fakeTokens struct {
	tokens []string
	err    error
}

func (f fakeTokens) ListTokens(context.Context, int64) ([]string, error) { return f.tokens, f.err }

type fakeTransport struct {
	err   error
	calls int
	title string
	body  string
}

func (f *fakeTransport) SendToTokens(_ context.Context, _ int64, _ []string, title, body string) error {
	f.calls++
	f.title, f.body = title, body
	return f.err
}

func TestPushSender_Delivers(t *testing.T) {
	tr := &fakeTransport{}
	s := NewPushSender(fakeTokens{tokens: []string{"tok-1"}}, tr, false, nil)

	assert.Equal(t, model.ChannelPush, s.Channel())
	assert.True(t, s.Deliver(context.Background(), alice, "Expiration Reminder", "Reminder: Milk expires in 2 days"))
	assert.Equal(t, 1, tr.calls)
	assert.Equal(t, "Expiration Reminder", tr.title)
	assert.Equal(t, "Reminder: Milk expires in 2 days", tr.body)
}

func TestPushSender_EmptyTokens(t *testing.T) {
	tr := &fakeTransport{}

	skip := NewPushSender(fakeTokens{}, tr, false, nil)
	assert.False(t, skip.Deliver(context.Background(), alice, "t", "b"))

	succeed := NewPushSender(fakeTokens{}, tr, true, nil)
	assert.True(t, succeed.Deliver(context.Background(), alice, "t", "b"))

	assert.Zero(t, tr.calls)
}

func TestPushSender_Failures(t *testing.T) {
	log, logs := observed()

	tokenErr := NewPushSender(fakeTokens{err: errors.New("db down")}, &fakeTransport{}, true, log)
	assert.False(t, tokenErr.Deliver(context.Background(), alice, "t", "b"))
	assert.Equal(t, 1, logs.FilterMessage("Failed to load device tokens").Len())

	sendErr := NewPushSender(fakeTokens{tokens: []string{"tok"}}, &fakeTransport{err: errors.New("broker gone")}, false, log)
	assert.False(t, sendErr.Deliver(context.Background(), alice, "t", "b"))
	assert.Equal(t, 1, logs.FilterMessage("Failed to send push reminder").Len())
}

type recordingPublisher struct {
	key     string
	payload any
	err     error
}

func (p *recordingPublisher) PublishWithContext(_ context.Context, routingKey string, payload any) error {
	p.key, p.payload = routingKey, payload
	return p.err
}

func TestMQPushTransport(t *testing.T) {
	pub := &recordingPublisher{}
	tr := NewMQPushTransport(pub)
	ctx := trace.WithContext(context.Background(), "trace-1")

	require.NoError(t, tr.SendToTokens(ctx, 9, []string{"a", "b"}, "Expiration Reminder", "body"))
	assert.Equal(t, mq.RoutingKeyPushRequested, pub.key)

	p, ok := pub.payload.(mqcontracts.PushRequestedPayload)
	require.True(t, ok)
	assert.Equal(t, int64(9), p.UserID)
	assert.Equal(t, []string{"a", "b"}, p.Tokens)
	assert.Equal(t, "trace-1", p.TraceID)

	pub.err = errors.New("channel closed")
	err := tr.SendToTokens(ctx, 9, []string{"a"}, "t", "b")
	assert.ErrorIs(t, err, util.ErrTransientSend)
}
