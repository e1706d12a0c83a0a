package tasks

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"permabay/p120/internal/config"
	"permabay/p120/internal/models"
	"permabay/p120/internal/services"
)

type captureSender struct {
	to      []string
	subject string
	message []byte
	err     error
}

func (c *captureSender) Send(ctx context.Context, to []string, subject string, message []byte) error {
	c.to = to
	c.subject = subject
	c.message = message
	return c.err
}

type fakeSweeper struct {
	result services.SweepResult
	err    error
	calls  int
}

func (f *fakeSweeper) Sweep(ctx context.Context, now time.Time) (services.SweepResult, error) {
	f.calls++
	return f.result, f.err
}

func testProcessor(sender *captureSender, sweeper *fakeSweeper) *TaskProcessor {
	cfg := &config.Config{
		SmtpFromAddress: "noreply@permabay.test",
		PublicBaseURL:   "https://permabay.test",
	}
	return NewTaskProcessor(cfg, sender, sweeper)
}

func emailTask(t *testing.T, payload StatusEmailPayload) *asynq.Task {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	return asynq.NewTask(TypeEmailDelivery, raw)
}

func TestHandleEmailDeliveryTask_Approved(t *testing.T) {
	sender := &captureSender{}
	p := testProcessor(sender, &fakeSweeper{})

	slot := 7
	task := emailTask(t, StatusEmailPayload{
		To:        "seller@example.com",
		Title:     "Vintage Lamp",
		NewStatus: models.StatusApproved,
		Slot:      &slot,
	})

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	require.NoError(t, err)

	assert.Equal(t, []string{"seller@example.com"}, sender.to)
	assert.Contains(t, sender.subject, "approved")
	msg := string(sender.message)
	assert.Contains(t, msg, "To: seller@example.com")
	assert.Contains(t, msg, "From: noreply@permabay.test")
	assert.Contains(t, msg, "https://permabay.test/P7")
}

func TestHandleEmailDeliveryTask_RejectedIncludesFeedback(t *testing.T) {
	sender := &captureSender{}
	p := testProcessor(sender, &fakeSweeper{})

	task := emailTask(t, StatusEmailPayload{
		To:        "seller@example.com",
		Title:     "Vintage Lamp",
		NewStatus: models.StatusRejected,
		Feedback:  "photos are too dark",
	})

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	require.NoError(t, err)

	assert.Contains(t, sender.subject, "rejected")
	assert.Contains(t, string(sender.message), "photos are too dark")
}

func TestHandleEmailDeliveryTask_Expired(t *testing.T) {
	sender := &captureSender{}
	p := testProcessor(sender, &fakeSweeper{})

	task := emailTask(t, StatusEmailPayload{
		To:        "seller@example.com",
		Title:     "Vintage Lamp",
		NewStatus: models.StatusExpired,
	})

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	require.NoError(t, err)
	assert.Contains(t, sender.subject, "expired")
}

func TestHandleEmailDeliveryTask_MissingRecipientSkipsRetry(t *testing.T) {
	sender := &captureSender{}
	p := testProcessor(sender, &fakeSweeper{})

	task := emailTask(t, StatusEmailPayload{Title: "Orphan", NewStatus: models.StatusApproved})

	err := p.HandleEmailDeliveryTask(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
	assert.Nil(t, sender.to)
}

func TestHandleEmailDeliveryTask_BadPayloadSkipsRetry(t *testing.T) {
	sender := &captureSender{}
	p := testProcessor(sender, &fakeSweeper{})

	task := asynq.NewTask(TypeEmailDelivery, []byte("{not json"))
	err := p.HandleEmailDeliveryTask(context.Background(), task)
	require.Error(t, err)
	assert.True(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleEmailDeliveryTask_SenderFailurePropagates(t *testing.T) {
	sender := &captureSender{err: errors.New("smtp unreachable")}
	p := testProcessor(sender, &fakeSweeper{})

	task := emailTask(t, StatusEmailPayload{To: "seller@example.com", Title: "Lamp", NewStatus: models.StatusApproved})
	err := p.HandleEmailDeliveryTask(context.Background(), task)
	assert.Error(t, err)
	assert.False(t, errors.Is(err, asynq.SkipRetry))
}

func TestHandleSlotSweepTask(t *testing.T) {
	sweeper := &fakeSweeper{result: services.SweepResult{Expired: 2, Backfilled: 1}}
	p := testProcessor(&captureSender{}, sweeper)

	err := p.HandleSlotSweepTask(context.Background(), asynq.NewTask(TypeSlotSweep, nil))
	require.NoError(t, err)
	assert.Equal(t, 1, sweeper.calls)
}

func TestHandleSlotSweepTask_Failure(t *testing.T) {
	sweeper := &fakeSweeper{err: errors.New("store unavailable")}
	p := testProcessor(&captureSender{}, sweeper)

	err := p.HandleSlotSweepTask(context.Background(), asynq.NewTask(TypeSlotSweep, nil))
	assert.Error(t, err)
}
