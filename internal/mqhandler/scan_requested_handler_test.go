package mqhandler

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	mqcontracts "foodtracker/contracts/mq"
	"foodtracker/internal/scheduler"
)

type fakeRunner struct {
	err   error
	calls int
}

func (f *fakeRunner) RunOnce(context.Context) error {
	f.calls++
	return f.err
}

func payload(t *testing.T) json.RawMessage {
	t.Helper()
	raw, err := json.Marshal(mqcontracts.ScanRequestedPayload{RequestedBy: "cron", RequestedAt: time.Now()})
	require.NoError(t, err)
	return raw
}

func TestScanRequestedHandler(t *testing.T) {
	runner := &fakeRunner{}
	h := NewScanRequestedHandler(runner, zaptest.NewLogger(t))

	require.NoError(t, h.Handle(context.Background(), payload(t)))
	assert.Equal(t, 1, runner.calls)
}

func TestScanRequestedHandler_CoalescesRunningCycle(t *testing.T) {
	for _, err := range []error{scheduler.ErrCycleInProgress, scheduler.ErrLeaseHeld} {
		h := NewScanRequestedHandler(&fakeRunner{err: err}, zaptest.NewLogger(t))
		assert.NoError(t, h.Handle(context.Background(), payload(t)))
	}
}

func TestScanRequestedHandler_Errors(t *testing.T) {
	runner := &fakeRunner{err: errors.New("select candidates: data access failure")}
	h := NewScanRequestedHandler(runner, zaptest.NewLogger(t))
	assert.Error(t, h.Handle(context.Background(), payload(t)))

	assert.Error(t, h.Handle(context.Background(), json.RawMessage(`{not json`)))
	assert.Equal(t, 1, runner.calls)
}
